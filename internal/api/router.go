package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/Shivamkadam692/WorkConnect/internal/api/middleware"
	"github.com/Shivamkadam692/WorkConnect/internal/handlers"
	"github.com/Shivamkadam692/WorkConnect/internal/store"
)

// Options configures the router.
type Options struct {
	Logger             zerolog.Logger
	Handler            *handlers.Handler
	Redis              *store.RedisStore // nil disables rate limiting
	RateLimit          middleware.RateLimiterConfig
	CORSAllowedOrigins []string
	PaymentSecret      string
}

// NewRouter creates and configures the HTTP router.
func NewRouter(opts Options) *chi.Mux {
	r := chi.NewRouter()
	h := opts.Handler

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware (order matters!)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(8 * 1024)) // 8KB max body
	r.Use(middleware.ValidateRequest)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(opts.Logger))
	r.Use(chimw.Recoverer)

	// Rate limiting needs Redis; single-node development runs without it.
	if opts.Redis != nil {
		limiter := middleware.NewRateLimiter(opts.Redis.Client(), opts.Logger, opts.RateLimit)
		r.Use(limiter.Middleware)
	}

	origins := opts.CORSAllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", middleware.HeaderUserID, middleware.HeaderUserRole, middleware.HeaderInternalToken},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	// Public routes
	r.Get("/api", h.Root)
	r.Get("/health", h.Health)

	// Payment collaborator callback
	r.With(middleware.RequireInternalToken(opts.PaymentSecret)).Post("/internal/payments", h.PaymentReceived)

	// Routes for identified users
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireIdentity)

		r.Get("/ws", h.ServeWS)

		r.Route("/requests", func(r chi.Router) {
			r.Post("/", h.CreateRequest)
			r.Get("/", h.ListRequests)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetRequest)
				r.Post("/accept", h.AcceptRequest)
				r.Post("/reject", h.RejectRequest)
				r.Post("/start", h.StartRequest)
				r.Post("/complete", h.CompleteRequest)
				r.Get("/messages", h.ListMessages)
				r.Post("/messages", h.PostMessage)
				r.Get("/tracking", h.Tracking)
				r.Post("/location", h.UpdateLocation)
				r.Delete("/location", h.StopTracking)
			})
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", h.ListNotifications)
			r.Get("/unread-count", h.UnreadCount)
			r.Put("/read-all", h.MarkAllNotificationsRead)
			r.Delete("/read", h.DeleteReadNotifications)
			r.Put("/{id}/read", h.MarkNotificationRead)
			r.Delete("/{id}", h.DeleteNotification)
		})

		r.Put("/workers/{id}/status", h.SetWorkerStatus)
	})

	return r
}
