package db

import "time"

type Admin struct {
	Username    string
	AdminIDHash string
	Role        string
	CreatedAt   time.Time
}

type StatusRecord struct {
	ID        int64
	Text      string
	UpdatedAt time.Time
}
