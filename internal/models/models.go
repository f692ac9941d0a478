package models

import "time"

// TrackSnapshot is the canonical "now playing" record. When IsPlaying is
// false no other field is set, so it encodes as {"isPlaying":false}.
type TrackSnapshot struct {
	IsPlaying     bool   `json:"isPlaying"`
	Title         string `json:"title,omitempty"`
	Artist        string `json:"artist,omitempty"`
	AlbumImageURL string `json:"albumImageUrl,omitempty"`
	SongURL       string `json:"songUrl,omitempty"`
}

// NotPlaying is the sentinel snapshot for idle playback.
func NotPlaying() TrackSnapshot {
	return TrackSnapshot{IsPlaying: false}
}

// StreamError is the degraded payload pushed on the event stream when the
// upstream cannot be reached.
type StreamError struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Timestamp string `json:"timestamp"`
	RetryIn   int    `json:"retryIn,omitempty"`
}

// Spotify code exchange
type TokenExchangeResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

// Admin login
type AdminLoginRequest struct {
	Username string `json:"username"`
	AdminID  string `json:"adminId"`
	Role     string `json:"role"`
}

type AdminLoginResponse struct {
	Token string `json:"token"`
	Type  string `json:"type"`
}

// Status records ("life updates")
type StatusRecord struct {
	ID        int       `json:"id"`
	Text      string    `json:"text"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type StatusRecordInput struct {
	ID   int    `json:"id"`
	Text string `json:"text"`
}

type UpdateStatusRecordsRequest struct {
	Updates []StatusRecordInput `json:"updates"`
}

type StatusRecordsResponse struct {
	Message string         `json:"message"`
	Updates []StatusRecord `json:"updates"`
}

// Health
type HealthResponse struct {
	Status            string  `json:"status"`
	Timestamp         string  `json:"timestamp"`
	UptimeSeconds     float64 `json:"uptime"`
	Environment       string  `json:"environment"`
	StreamConnections int     `json:"streamConnections"`
}

// Error response
type ErrorResponse struct {
	Error     string         `json:"error"`
	Code      string         `json:"code,omitempty"`
	Message   string         `json:"message,omitempty"`
	RequestID string         `json:"requestId,omitempty"`
	Timestamp string         `json:"timestamp,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	Stack     []string       `json:"stack,omitempty"`
}
