package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/nowplaying/backend/internal/apperror"
	"github.com/nowplaying/backend/internal/models"
)

const (
	DefaultSpotifyAccountsURL = "https://accounts.spotify.com"
	DefaultSpotifyAPIURL      = "https://api.spotify.com"

	tokenExpiryMargin = 60 * time.Second
)

type SpotifyConfig struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	RedirectURI  string
	AccountsURL  string
	APIURL       string
	Timeout      time.Duration
}

type SpotifyService struct {
	cfg         SpotifyConfig
	httpClient  *http.Client
	token       string
	tokenExpiry time.Time
	mu          sync.RWMutex
}

type spotifyTokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

type currentlyPlaying struct {
	IsPlaying bool          `json:"is_playing"`
	Item      *SpotifyTrack `json:"item"`
}

type SpotifyTrack struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Album        Album        `json:"album"`
	Artists      []Artist     `json:"artists"`
	ExternalURLs ExternalURLs `json:"external_urls"`
}

type Album struct {
	Name   string  `json:"name"`
	Images []Image `json:"images"`
}

type Artist struct {
	Name string `json:"name"`
}

type Image struct {
	URL    string `json:"url"`
	Height int    `json:"height"`
	Width  int    `json:"width"`
}

type ExternalURLs struct {
	Spotify string `json:"spotify"`
}

func NewSpotifyService(cfg SpotifyConfig) *SpotifyService {
	if cfg.AccountsURL == "" {
		cfg.AccountsURL = DefaultSpotifyAccountsURL
	}
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultSpotifyAPIURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	cfg.AccountsURL = strings.TrimRight(cfg.AccountsURL, "/")
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")

	return &SpotifyService{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

func (s *SpotifyService) getAccessToken(ctx context.Context) (string, error) {
	s.mu.RLock()
	if s.token != "" && time.Now().Before(s.tokenExpiry) {
		token := s.token
		s.mu.RUnlock()
		return token, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	// Double-check after acquiring write lock
	if s.token != "" && time.Now().Before(s.tokenExpiry) {
		return s.token, nil
	}

	data := url.Values{}
	data.Set("grant_type", "refresh_token")
	data.Set("refresh_token", s.cfg.RefreshToken)

	tokenResp, err := s.requestToken(ctx, data)
	if err != nil {
		return "", err
	}

	s.token = tokenResp.AccessToken
	s.tokenExpiry = time.Now().Add(time.Duration(tokenResp.ExpiresIn)*time.Second - tokenExpiryMargin)

	return s.token, nil
}

// dropToken forgets token if it is still the cached one, so the next call
// refreshes.
func (s *SpotifyService) dropToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == token {
		s.token = ""
		s.tokenExpiry = time.Time{}
	}
}

func (s *SpotifyService) requestToken(ctx context.Context, form url.Values) (*spotifyTokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.AccountsURL+"/api/token", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	credentials := base64.StdEncoding.EncodeToString([]byte(s.cfg.ClientID + ":" + s.cfg.ClientSecret))
	req.Header.Set("Authorization", "Basic "+credentials)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to get token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("token request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var tokenResp spotifyTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return nil, fmt.Errorf("token response missing access_token")
	}

	return &tokenResp, nil
}

// FetchCurrentTrack reports what the account is playing right now. Any
// failure is returned as an UPSTREAM_UNAVAILABLE error.
func (s *SpotifyService) FetchCurrentTrack(ctx context.Context) (models.TrackSnapshot, error) {
	token, err := s.getAccessToken(ctx)
	if err != nil {
		return models.TrackSnapshot{}, apperror.Upstream("Failed to refresh Spotify access token", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.APIURL+"/v1/me/player/currently-playing", nil)
	if err != nil {
		return models.TrackSnapshot{}, apperror.Upstream("Failed to fetch currently playing track", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return models.TrackSnapshot{}, apperror.Upstream("Failed to fetch currently playing track",
			fmt.Errorf("currently-playing request failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return models.NotPlaying(), nil
	}
	if resp.StatusCode == http.StatusUnauthorized {
		s.dropToken(token)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return models.TrackSnapshot{}, apperror.Upstream("Failed to fetch currently playing track",
			fmt.Errorf("currently-playing request failed with status %d: %s", resp.StatusCode, string(body)))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.TrackSnapshot{}, apperror.Upstream("Failed to fetch currently playing track",
			fmt.Errorf("failed to read currently-playing response: %w", err))
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return models.NotPlaying(), nil
	}

	var playing currentlyPlaying
	if err := json.Unmarshal(body, &playing); err != nil {
		return models.TrackSnapshot{}, apperror.Upstream("Failed to fetch currently playing track",
			fmt.Errorf("failed to decode currently-playing response: %w", err))
	}

	return toSnapshot(playing), nil
}

func toSnapshot(p currentlyPlaying) models.TrackSnapshot {
	if !p.IsPlaying || p.Item == nil {
		return models.NotPlaying()
	}

	artists := make([]string, 0, len(p.Item.Artists))
	for _, a := range p.Item.Artists {
		artists = append(artists, a.Name)
	}

	var image string
	if len(p.Item.Album.Images) > 0 {
		image = p.Item.Album.Images[0].URL
	}

	return models.TrackSnapshot{
		IsPlaying:     true,
		Title:         p.Item.Name,
		Artist:        strings.Join(artists, ", "),
		AlbumImageURL: image,
		SongURL:       p.Item.ExternalURLs.Spotify,
	}
}

// ExchangeCode trades an authorization code for a token pair.
func (s *SpotifyService) ExchangeCode(ctx context.Context, code string) (*models.TokenExchangeResponse, error) {
	data := url.Values{}
	data.Set("grant_type", "authorization_code")
	data.Set("code", code)
	data.Set("redirect_uri", s.cfg.RedirectURI)

	tokenResp, err := s.requestToken(ctx, data)
	if err != nil {
		return nil, apperror.Upstream("Failed to exchange authorization code", err)
	}

	return &models.TokenExchangeResponse{
		AccessToken:  tokenResp.AccessToken,
		RefreshToken: tokenResp.RefreshToken,
		ExpiresIn:    tokenResp.ExpiresIn,
	}, nil
}
