package handlers

import (
	"net/http"
	"time"

	"github.com/nowplaying/backend/internal/apperror"
	"github.com/nowplaying/backend/internal/logging"
	"github.com/nowplaying/backend/internal/models"
)

// ConnectionCounter reports the number of open streams.
type ConnectionCounter interface {
	Size() int
}

type HealthHandler struct {
	streams     ConnectionCounter
	environment string
	started     time.Time
}

func NewHealthHandler(streams ConnectionCounter, environment string) *HealthHandler {
	return &HealthHandler{
		streams:     streams,
		environment: environment,
		started:     time.Now(),
	}
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, models.HealthResponse{
		Status:            "ok",
		Timestamp:         time.Now().UTC().Format(time.RFC3339),
		UptimeSeconds:     time.Since(h.started).Seconds(),
		Environment:       h.environment,
		StreamConnections: h.streams.Size(),
	})
}

// Root is the service banner.
func (h *HealthHandler) Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Now-playing backend is running",
		"stream":  "/api/now-playing-stream",
	})
}

func (h *HealthHandler) NotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, models.ErrorResponse{
		Error:     "Not Found",
		Code:      string(apperror.KindNotFound),
		Message:   "Route " + r.Method + " " + r.URL.Path + " not found",
		RequestID: logging.RequestID(r.Context()),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *HealthHandler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusMethodNotAllowed, models.ErrorResponse{
		Error:     "Method not allowed",
		Code:      "METHOD_NOT_ALLOWED",
		RequestID: logging.RequestID(r.Context()),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
