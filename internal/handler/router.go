package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/heirloom-restoration/workshop/internal/middleware"
	"github.com/heirloom-restoration/workshop/internal/ratelimit"
	"github.com/heirloom-restoration/workshop/pkg/logger"
)

// RouterConfig holds the HTTP-level settings for NewRouter.
type RouterConfig struct {
	JWTSecret      string
	AdminRole      string
	AllowedOrigins []string

	// Coarse limit applied to the whole /api/v1 tree.
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Per-route limit for posting chat messages.
	ChatMessageLimit ratelimit.Options
}

// Handlers groups the handlers mounted by NewRouter.
type Handlers struct {
	Health        *HealthHandler
	Session       *SessionHandler
	Portfolio     *PortfolioHandler
	Team          *TeamHandler
	Chat          *ChatHandler
	Conversations *ConversationHandler
	Stream        *StreamHandler
	Dashboard     *DashboardHandler
	Uploads       *UploadHandler
}

// NewRouter builds the API route tree.
func NewRouter(cfg RouterConfig, h Handlers, limiter *ratelimit.Limiter, log *logger.Logger) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	// Health endpoints (no auth required)
	r.Get("/health", h.Health.Health)
	r.Get("/ready", h.Health.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Get("/session", h.Session.Get)

		r.Get("/portfolio", h.Portfolio.List)
		r.Get("/portfolio/{id}", h.Portfolio.Get)
		r.Get("/team", h.Team.List)

		r.Route("/chat/conversations", func(r chi.Router) {
			r.Post("/", h.Chat.Start)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/messages", h.Chat.ListMessages)
				r.With(middleware.Throttle(limiter, cfg.ChatMessageLimit)).
					Post("/messages", h.Chat.Send)
				r.Post("/read", h.Chat.MarkRead)
				r.Get("/stream", h.Stream.Stream)
			})
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWTSecret))
			r.Use(middleware.RequireRole(cfg.AdminRole))

			r.Post("/portfolio", h.Portfolio.Create)
			r.Put("/portfolio/{id}", h.Portfolio.Update)
			r.Delete("/portfolio/{id}", h.Portfolio.Delete)

			r.Post("/team", h.Team.Create)
			r.Put("/team/{id}", h.Team.Update)
			r.Delete("/team/{id}", h.Team.Delete)

			r.Route("/conversations", func(r chi.Router) {
				r.Get("/", h.Conversations.List)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", h.Conversations.Get)
					r.Patch("/", h.Conversations.Update)
					r.Delete("/", h.Conversations.Delete)
					r.Post("/messages", h.Conversations.Reply)
					r.Post("/read", h.Conversations.MarkRead)
				})
			})
			r.Get("/stream", h.Stream.Inbox)

			r.Get("/customers", h.Dashboard.Customers)
			r.Get("/stats", h.Dashboard.Stats)

			r.Get("/cache", h.Dashboard.CacheStats)
			r.Delete("/cache", h.Dashboard.InvalidateCache)

			r.Post("/uploads", h.Uploads.Upload)
			r.Get("/uploads", h.Uploads.List)
			r.Delete("/uploads", h.Uploads.Delete)
		})
	})

	return r
}
