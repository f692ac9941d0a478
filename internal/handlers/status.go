package handlers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/nowplaying/backend/internal/models"
)

// StatusService manages status records and their public ETag.
type StatusService interface {
	List(ctx context.Context) ([]models.StatusRecord, error)
	Update(ctx context.Context, inputs []models.StatusRecordInput) ([]models.StatusRecord, int, error)
	Reset(ctx context.Context) ([]models.StatusRecord, error)
	PublicList(ctx context.Context, ifNoneMatch string) ([]models.StatusRecord, string, bool, error)
	ETag(records []models.StatusRecord) (string, error)
}

type StatusHandler struct {
	responder
	status StatusService
}

func NewStatusHandler(status StatusService, production bool) *StatusHandler {
	return &StatusHandler{responder: responder{production: production}, status: status}
}

// List returns every record for the admin view.
func (h *StatusHandler) List(w http.ResponseWriter, r *http.Request) {
	records, err := h.status.List(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// Update applies {updates:[{id,text}]} and returns the full list with a fresh ETag.
func (h *StatusHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateStatusRecordsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	records, applied, err := h.status.Update(r.Context(), req.Updates)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if etag, err := h.status.ETag(records); err == nil {
		w.Header().Set("ETag", etag)
	}
	writeJSON(w, http.StatusOK, models.StatusRecordsResponse{
		Message: fmt.Sprintf("Successfully updated %d life update(s)", applied),
		Updates: records,
	})
}

// Reset restores the default records.
func (h *StatusHandler) Reset(w http.ResponseWriter, r *http.Request) {
	records, err := h.status.Reset(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.StatusRecordsResponse{
		Message: "Life updates reset to defaults",
		Updates: records,
	})
}

// Public serves the records with ETag revalidation.
func (h *StatusHandler) Public(w http.ResponseWriter, r *http.Request) {
	records, etag, notModified, err := h.status.PublicList(r.Context(), r.Header.Get("If-None-Match"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	hdr := w.Header()
	hdr.Set("ETag", etag)
	hdr.Set("Cache-Control", "private, must-revalidate")
	hdr.Set("Access-Control-Expose-Headers", "ETag")

	if notModified {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	writeJSON(w, http.StatusOK, records)
}
