package handlers

import (
	"context"
	"net/http"

	"github.com/nowplaying/backend/internal/apperror"
	"github.com/nowplaying/backend/internal/models"
)

// TrackService is the upstream music provider.
type TrackService interface {
	FetchCurrentTrack(ctx context.Context) (models.TrackSnapshot, error)
	ExchangeCode(ctx context.Context, code string) (*models.TokenExchangeResponse, error)
}

// SpotifyHandler serves one-shot now-playing lookups and the token exchange.
type SpotifyHandler struct {
	responder
	tracks TrackService
}

func NewSpotifyHandler(tracks TrackService, production bool) *SpotifyHandler {
	return &SpotifyHandler{responder: responder{production: production}, tracks: tracks}
}

// NowPlaying returns the current snapshot as JSON.
func (h *SpotifyHandler) NowPlaying(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.tracks.FetchCurrentTrack(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, snapshot)
}

// GetToken exchanges the authorization code in ?code= for a token pair.
func (h *SpotifyHandler) GetToken(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		h.writeError(w, r, apperror.New(apperror.KindBadRequest, "query parameter 'code' is required"))
		return
	}

	tokens, err := h.tracks.ExchangeCode(r.Context(), code)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, tokens)
}
