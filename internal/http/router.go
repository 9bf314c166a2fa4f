package httpserver

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/time/rate"

	"gitea.jw6.us/james/crmdesk/internal/api"
	"gitea.jw6.us/james/crmdesk/internal/auth"
	"gitea.jw6.us/james/crmdesk/internal/config"
	"gitea.jw6.us/james/crmdesk/internal/http/ratelimit"
	"gitea.jw6.us/james/crmdesk/internal/logging"
	"gitea.jw6.us/james/crmdesk/internal/metrics"
	"gitea.jw6.us/james/crmdesk/internal/store"
)

// Router is the root HTTP handler. Close releases background resources.
type Router struct {
	http.Handler
	authLimiter *ratelimit.IPRateLimiter
}

func (r *Router) Close() {
	r.authLimiter.Close()
}

// NewRouter wires the health endpoints, metrics and the /api surface.
func NewRouter(cfg *config.Config, st *store.Store, authService *auth.Service, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	r := chi.NewRouter()

	authRateLimiter := ratelimit.NewIPRateLimiter(rate.Limit(cfg.Auth.RateLimit), cfg.Auth.RateBurst, 5*time.Minute, cfg.TrustedProxies)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{
		Logger:  logging.StdLogger(logger, slog.LevelInfo),
		NoColor: true,
	}))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))
	r.Use(metrics.Middleware())

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("CRM API is running!"))
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := st.HealthCheck(ctx); err != nil {
			logger.WarnContext(ctx, "readiness check failed", "error", err, "request_id", middleware.GetReqID(r.Context()))
			http.Error(w, "unready", http.StatusServiceUnavailable)
			return
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	if cfg.PrometheusEnabled {
		r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
			metrics.Handler().ServeHTTP(w, r)
		})
	}

	handlers := api.New(st, authService)
	r.Route("/api", func(r chi.Router) {
		handlers.Register(r, authRateLimiter.Middleware())
	})

	return &Router{Handler: r, authLimiter: authRateLimiter}
}
