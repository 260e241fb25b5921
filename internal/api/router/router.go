// Package router assembles the HTTP surface: the public gateway webhook,
// health and metrics, and the JWT-protected admin endpoints.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wfsantos/agendabot/internal/http/handlers"
	httpmiddleware "github.com/wfsantos/agendabot/internal/http/middleware"
	"github.com/wfsantos/agendabot/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger             *logging.Logger
	GatewayWebhooks    *handlers.GatewayWebhookHandler
	Health             *handlers.HealthHandler
	AdminConversations *handlers.AdminConversationHandler
	AdminGateway       *handlers.AdminGatewayHandler
	AdminAuthSecret    string
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
	RateLimitRPS       float64
	RateLimitBurst     int
}

// New creates a chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Group(func(public chi.Router) {
		if cfg.Health != nil {
			public.Get("/health", cfg.Health.Handle)
		}
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		if cfg.GatewayWebhooks != nil {
			webhook := public.With(noopIfZeroRate(cfg.RateLimitRPS, cfg.RateLimitBurst))
			webhook.Post("/webhooks/gateway/messages", cfg.GatewayWebhooks.HandleMessages)
		}
	})

	if cfg.AdminAuthSecret != "" {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
			if cfg.AdminConversations != nil {
				admin.Get("/tenants/{tenantID}/conversations/{phone}", cfg.AdminConversations.HandleGet)
			}
			if cfg.AdminGateway != nil {
				admin.Get("/gateway/{instanceID}/state", cfg.AdminGateway.HandleState)
				admin.Post("/gateway/{instanceID}", cfg.AdminGateway.HandleCreate)
			}
		})
	}

	return r
}

func noopIfZeroRate(rps float64, burst int) func(http.Handler) http.Handler {
	if rps <= 0 || burst <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httpmiddleware.RateLimit(rps, burst)
}
