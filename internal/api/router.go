package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/codexgate/codexgate/internal/database"
	"github.com/codexgate/codexgate/internal/events"
	mw "github.com/codexgate/codexgate/internal/middleware"
)

// HandlerSet holds handler functions injected from main.go to avoid import cycles.
type HandlerSet struct {
	// Gateway control plane
	Redeem       http.HandlerFunc
	PlanStatus   http.HandlerFunc
	Limits       http.HandlerFunc
	Admit        http.HandlerFunc
	RecordUsage  http.HandlerFunc
	UsageStats   http.HandlerFunc
	UsageHistory http.HandlerFunc
	UsageDaily   http.HandlerFunc

	// Admin surface
	CreateCode      http.HandlerFunc
	CreateCodeBatch http.HandlerFunc
	ListCodes       http.HandlerFunc
	DeleteCode      http.HandlerFunc
	SystemUsage     http.HandlerFunc
	CacheInspect    http.HandlerFunc
	CacheSet        http.HandlerFunc
	CacheRemove     http.HandlerFunc
	ListAudit       http.HandlerFunc
	AuditConfigured bool

	// Middleware
	AuthMiddleware  func(http.Handler) http.Handler
	AdminMiddleware func(http.Handler) http.Handler
}

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	CORSAllowedOrigins []string
	RedeemThrottle     func(http.Handler) http.Handler
}

func NewRouter(pool *pgxpool.Pool, natsClient *events.Client, redisHealthy func() bool, cfg RouterConfig, h HandlerSet) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.RequestID)
	r.Use(mw.SecurityHeaders)
	r.Use(mw.Logging)
	r.Use(mw.Recovery)
	r.Use(mw.Metrics)
	r.Use(cors.Handler(mw.CORS(cfg.CORSAllowedOrigins)))

	// Liveness probe — always 200, no dependency checks
	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		JSON(w, http.StatusOK, map[string]string{"status": "alive"})
	})

	// Readiness probe — checks DB, Redis, NATS. Redis being down does not
	// degrade readiness: the limiter fails open and the cache falls back.
	readinessHandler := func(w http.ResponseWriter, r *http.Request) {
		health := map[string]string{
			"status":   "healthy",
			"database": "healthy",
			"redis":    "healthy",
			"nats":     "healthy",
		}

		status := http.StatusOK

		if err := database.HealthCheck(r.Context(), pool); err != nil {
			health["database"] = "unhealthy"
			health["status"] = "degraded"
			status = http.StatusServiceUnavailable
		}

		if redisHealthy != nil && !redisHealthy() {
			health["redis"] = "unhealthy (degraded mode)"
		}

		if natsClient != nil && !natsClient.Healthy() {
			health["nats"] = "unhealthy"
			health["status"] = "degraded"
			status = http.StatusServiceUnavailable
		} else if natsClient == nil {
			health["nats"] = "not configured"
		}

		JSON(w, status, health)
	}

	r.Get("/health/ready", readinessHandler)
	r.Get("/health", readinessHandler)

	// Prometheus metrics
	r.Handle("/metrics", promhttp.Handler())

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(h.AuthMiddleware)

			// Redemption is additionally throttled per client IP: codes are
			// guessable strings and the endpoint must not be brute-forceable.
			r.Group(func(r chi.Router) {
				if cfg.RedeemThrottle != nil {
					r.Use(cfg.RedeemThrottle)
				}
				r.Post("/redeem", h.Redeem)
			})

			r.Get("/plan", h.PlanStatus)
			r.Get("/limits", h.Limits)
			r.Post("/admission", h.Admit)

			r.Route("/usage", func(r chi.Router) {
				r.Post("/", h.RecordUsage)
				r.Get("/", h.UsageStats)
				r.Get("/history", h.UsageHistory)
				r.Get("/daily", h.UsageDaily)
			})

			// Admin surface
			r.Group(func(r chi.Router) {
				r.Use(h.AdminMiddleware)

				r.Route("/admin", func(r chi.Router) {
					r.Route("/codes", func(r chi.Router) {
						r.Post("/", h.CreateCode)
						r.Post("/batch", h.CreateCodeBatch)
						r.Get("/", h.ListCodes)
						r.Delete("/{id}", h.DeleteCode)
					})

					r.Get("/usage", h.SystemUsage)

					r.Route("/cache", func(r chi.Router) {
						r.Get("/", h.CacheInspect)
						r.Post("/", h.CacheSet)
						r.Delete("/", h.CacheRemove)
					})

					if h.AuditConfigured {
						r.Get("/audit", h.ListAudit)
					}
				})
			})
		})
	})

	return r
}
