package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/nowplaying/backend/internal/broker"
	"github.com/nowplaying/backend/internal/config"
	"github.com/nowplaying/backend/internal/handlers"
	"github.com/nowplaying/backend/internal/middleware"
	"github.com/nowplaying/backend/internal/services"
)

// Deps are the long-lived collaborators the routes are served from.
type Deps struct {
	Hub      *broker.Hub
	Tracks   handlers.TrackService
	Status   handlers.StatusService
	Admins   handlers.AdminLogin
	Auth     *services.AuthService
	Reporter handlers.ErrorReporter
}

// Router is the HTTP entry point. Close releases the rate limiters.
type Router struct {
	http.Handler
	limiters []*middleware.RateLimiter
}

func New(cfg *config.Config, deps Deps) *Router {
	r := chi.NewRouter()

	globalLimiter := middleware.NewRateLimiter(cfg.GlobalRateLimit, cfg.GlobalRateWindow)
	adminLimiter := middleware.NewRateLimiter(cfg.AdminRateLimit, cfg.AdminRateWindow)

	// Global middleware
	r.Use(middleware.NewRealIP(cfg.TrustedProxies).Handler)
	r.Use(middleware.RequestContextMiddleware)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.SecurityHeaders(cfg.Production))
	r.Use(middleware.CORSMiddleware(cfg.CORSAllowedOrigins))
	r.Use(globalLimiter.Middleware)

	// Handlers
	streamHandler := handlers.NewStreamHandler(deps.Hub, deps.Tracks, deps.Reporter, handlers.StreamOptions{
		Production:        cfg.Production,
		AllowedOrigin:     cfg.StreamAllowedOrigin,
		HeartbeatInterval: cfg.HeartbeatInterval,
		WriteTimeout:      cfg.WriteTimeout,
		FetchTimeout:      cfg.UpstreamTimeout,
		Buffer:            cfg.StreamBuffer,
	})
	spotifyHandler := handlers.NewSpotifyHandler(deps.Tracks, cfg.Production)
	statusHandler := handlers.NewStatusHandler(deps.Status, cfg.Production)
	adminHandler := handlers.NewAdminHandler(deps.Admins, cfg.Production)
	healthHandler := handlers.NewHealthHandler(deps.Hub.Registry(), cfg.Environment())

	r.NotFound(healthHandler.NotFound)
	r.MethodNotAllowed(healthHandler.MethodNotAllowed)

	// The stream is never compressed.
	r.Get("/api/now-playing-stream", streamHandler.Stream)

	r.Group(func(r chi.Router) {
		r.Use(chimiddleware.Compress(5, "application/json"))

		r.Get("/", healthHandler.Root)

		r.Route("/api", func(r chi.Router) {
			r.Get("/now-playing", spotifyHandler.NowPlaying)
			r.Get("/get-token", spotifyHandler.GetToken)
		})

		r.Route("/public", func(r chi.Router) {
			r.Get("/health", healthHandler.Health)
			r.Get("/life-updates", statusHandler.Public)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(adminLimiter.Middleware)

			r.Post("/", adminHandler.Login)

			r.Group(func(r chi.Router) {
				r.Use(middleware.AuthMiddleware(deps.Auth))
				r.Use(middleware.AdminOnlyMiddleware)

				r.Get("/life-updates", statusHandler.List)
				r.Put("/life-updates", statusHandler.Update)
				r.Delete("/life-updates", statusHandler.Reset)
			})
		})
	})

	return &Router{Handler: r, limiters: []*middleware.RateLimiter{globalLimiter, adminLimiter}}
}

func (rt *Router) Close() {
	for _, l := range rt.limiters {
		l.Stop()
	}
}
