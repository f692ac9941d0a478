package db

import (
	"context"
	"fmt"
	"time"
)

// Timestamps are stored as RFC 3339 text.
const timeLayout = time.RFC3339Nano

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid stored timestamp %q: %w", s, err)
	}
	return t, nil
}

const getAdminByUsername = `-- name: GetAdminByUsername :one
SELECT username, admin_id_hash, role, created_at FROM admins
WHERE username = ?
`

func (q *Queries) GetAdminByUsername(ctx context.Context, username string) (Admin, error) {
	row := q.db.QueryRowContext(ctx, getAdminByUsername, username)
	var i Admin
	var createdAt string
	err := row.Scan(&i.Username, &i.AdminIDHash, &i.Role, &createdAt)
	if err != nil {
		return i, err
	}
	i.CreatedAt, err = parseTime(createdAt)
	return i, err
}

const upsertAdmin = `-- name: UpsertAdmin :exec
INSERT INTO admins (username, admin_id_hash, role, created_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (username) DO UPDATE SET
    admin_id_hash = excluded.admin_id_hash,
    role = excluded.role
`

type UpsertAdminParams struct {
	Username    string
	AdminIDHash string
	Role        string
	CreatedAt   time.Time
}

func (q *Queries) UpsertAdmin(ctx context.Context, arg UpsertAdminParams) error {
	_, err := q.db.ExecContext(ctx, upsertAdmin,
		arg.Username,
		arg.AdminIDHash,
		arg.Role,
		arg.CreatedAt.UTC().Format(timeLayout),
	)
	return err
}

const listStatusRecords = `-- name: ListStatusRecords :many
SELECT id, text, updated_at FROM status_records
ORDER BY id
`

func (q *Queries) ListStatusRecords(ctx context.Context) ([]StatusRecord, error) {
	rows, err := q.db.QueryContext(ctx, listStatusRecords)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []StatusRecord{}
	for rows.Next() {
		var i StatusRecord
		var updatedAt string
		if err := rows.Scan(&i.ID, &i.Text, &updatedAt); err != nil {
			return nil, err
		}
		if i.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const upsertStatusRecord = `-- name: UpsertStatusRecord :exec
INSERT INTO status_records (id, text, updated_at)
VALUES (?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    text = excluded.text,
    updated_at = excluded.updated_at
`

type UpsertStatusRecordParams struct {
	ID        int64
	Text      string
	UpdatedAt time.Time
}

func (q *Queries) UpsertStatusRecord(ctx context.Context, arg UpsertStatusRecordParams) error {
	_, err := q.db.ExecContext(ctx, upsertStatusRecord, arg.ID, arg.Text, arg.UpdatedAt.UTC().Format(timeLayout))
	return err
}

const deleteAllStatusRecords = `-- name: DeleteAllStatusRecords :exec
DELETE FROM status_records
`

func (q *Queries) DeleteAllStatusRecords(ctx context.Context) error {
	_, err := q.db.ExecContext(ctx, deleteAllStatusRecords)
	return err
}

const countStatusRecords = `-- name: CountStatusRecords :one
SELECT COUNT(*) FROM status_records
`

func (q *Queries) CountStatusRecords(ctx context.Context) (int64, error) {
	row := q.db.QueryRowContext(ctx, countStatusRecords)
	var count int64
	err := row.Scan(&count)
	return count, err
}
