package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/nowplaying/backend/internal/apperror"
	"github.com/nowplaying/backend/internal/logging"
	"github.com/nowplaying/backend/internal/models"
)

// writeJSON serializes data as JSON and writes it to the response.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// responder renders errors. In production, server-side failures are
// reduced to a generic message and internals never leave the process.
type responder struct {
	production bool
}

// writeError renders err as JSON with its kind's status and logs server errors
// with a stack trace.
func (rs responder) writeError(w http.ResponseWriter, r *http.Request, err error) {
	appErr, ok := apperror.As(err)
	if !ok {
		appErr = apperror.Wrap(apperror.KindInternal, "Internal Server Error", err)
	}
	status := appErr.Status()

	resp := models.ErrorResponse{
		Error:     appErr.Message,
		Code:      string(appErr.Kind),
		RequestID: logging.RequestID(r.Context()),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Details:   appErr.Details,
	}

	if status >= http.StatusInternalServerError {
		wrapped := logging.WrapError(err, appErr.Message)
		logging.LogErrorWithStatus(r.Context(), status, "error response", wrapped)
		if rs.production {
			resp.Error = apperror.GenericMessage(appErr.Kind)
		}
	}

	if !rs.production && appErr.Cause != nil {
		resp.Message = appErr.Cause.Error()
		resp.Stack = logging.StackFrames(logging.WithStack(err))
		w.Header().Set("X-Error-Detail", appErr.Cause.Error())
	}

	if appErr.Kind == apperror.KindCapacityExceeded {
		w.Header().Set("Retry-After", "30")
	}

	writeJSON(w, status, resp)
}

// decodeJSON reads a JSON body of at most 64KB into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 64<<10)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperror.Wrap(apperror.KindBadRequest, "Invalid request body", err)
	}
	return nil
}
