package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/nowplaying/backend/internal/apperror"
	"github.com/nowplaying/backend/internal/logging"
	"github.com/nowplaying/backend/internal/models"
)

// writeError renders a rejection produced before any handler runs.
func writeError(w http.ResponseWriter, r *http.Request, kind apperror.Kind, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apperror.StatusOf(kind))
	_ = json.NewEncoder(w).Encode(models.ErrorResponse{
		Error:     message,
		Code:      string(kind),
		RequestID: logging.RequestID(r.Context()),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
