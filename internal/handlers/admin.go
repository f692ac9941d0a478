package handlers

import (
	"context"
	"net/http"

	"github.com/nowplaying/backend/internal/apperror"
	"github.com/nowplaying/backend/internal/logging"
	"github.com/nowplaying/backend/internal/models"
)

// AdminLogin verifies admin credentials and issues tokens.
type AdminLogin interface {
	Login(ctx context.Context, req models.AdminLoginRequest) (*models.AdminLoginResponse, error)
}

type AdminHandler struct {
	responder
	admins AdminLogin
}

func NewAdminHandler(admins AdminLogin, production bool) *AdminHandler {
	return &AdminHandler{responder: responder{production: production}, admins: admins}
}

// Login exchanges {username, adminId, role} for a short-lived bearer token.
func (h *AdminHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.AdminLoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	resp, err := h.admins.Login(r.Context(), req)
	if err != nil {
		if apperror.Is(err, apperror.KindUnauthorized) {
			logging.LogSecurityEvent(r.Context(), logging.SecurityEventBadAdminCreds, "admin login rejected")
		}
		h.writeError(w, r, err)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusCreated, resp)
}
