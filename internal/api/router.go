package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/parleychat/parley/internal/api/middleware"
	"github.com/parleychat/parley/internal/config"
	"github.com/parleychat/parley/internal/handlers"
	"github.com/parleychat/parley/internal/store"
	"github.com/parleychat/parley/internal/ws"
)

// NewRouter creates and configures the HTTP router. redisStore may be nil,
// in which case rate limiting is skipped.
func NewRouter(logger zerolog.Logger, cfg *config.Config, st store.DataStore, redisStore *store.RedisStore, h *handlers.Handler, wsServer *ws.Server) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware (order matters!)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(16 * 1024)) // 16KB max body
	r.Use(middleware.ValidateRequest)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	// Rate limiting needs Redis; single-instance dev runs without it
	if redisStore != nil {
		limiter := middleware.NewRateLimiter(redisStore.Client(), logger, middleware.RateLimiterConfig{
			Whitelist:        cfg.RateLimitWhitelist,
			AutoBlockEnabled: cfg.AutoBlockEnabled,
		})
		r.Use(limiter.Middleware)
	}

	// CORS - browser clients connect from anywhere
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	auth := middleware.NewAuthMiddleware(st, cfg.JWTSecret)

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	// Public routes (no auth required)
	r.Get("/", h.Root)
	r.Get("/health", h.Health)
	r.Post("/register", h.Register)
	r.Post("/login", h.Login)

	// Authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth)

		r.Get("/users", h.ListUsers)
		r.Put("/profile", h.UpdateProfile)

		r.Post("/chats/private", h.StartPrivateChat)

		r.Post("/rooms", h.CreateRoom)
		r.Get("/rooms", h.ListRooms)
		r.Delete("/rooms/{id}", h.DeleteRoom)
		r.Post("/rooms/{id}/leave", h.LeaveRoom)
		r.Get("/rooms/{id}/members", h.RoomMembers)
		r.Post("/rooms/{id}/members", h.AddMembers)
		r.Delete("/rooms/{id}/members/{userID}", h.RemoveMember)
		r.Get("/rooms/{id}/messages", h.ListMessages)
		r.Post("/rooms/{id}/messages", h.PostMessage)
		r.Post("/rooms/{id}/invites", h.CreateRoomInvite)

		r.Post("/invites/private", h.CreatePrivateInvite)
		r.Post("/invites/{token}/redeem", h.RedeemInvite)

		r.Post("/assistant", h.Assistant)

		r.Get("/ws", wsServer.ServeRoom)
		r.Get("/ws/presence", wsServer.ServePresence)
	})

	return r
}
