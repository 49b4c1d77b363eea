// Package subpage предоставляет маршруты шлюза страницы подключения.
package subpage

import (
	"log/slog"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/oblepiha-vpn/miniapp/internal/config"
	"github.com/oblepiha-vpn/miniapp/internal/http/handlers/health"
	"github.com/oblepiha-vpn/miniapp/internal/http/handlers/sub/page"
	"github.com/oblepiha-vpn/miniapp/internal/http/handlers/sub/qr"
	"github.com/oblepiha-vpn/miniapp/internal/http/middlewarectx"
)

// RegisterRoutes регистрирует все маршруты шлюза.
func RegisterRoutes(r chi.Router, logger *slog.Logger, cfg *config.Config, resolver page.Resolver) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
		middleware.URLFormat,
	)

	r.Group(func(r chi.Router) {
		r.Use(middlewarectx.RateLimitMiddleware(logger, cfg.RateLimit, cfg.RateLimit*2))
		r.Get("/sub", page.New(logger, resolver, cfg.Links).ServeHTTP)
		r.Get("/sub/qr", qr.New(logger).ServeHTTP)
	})

	r.Get("/healthz", health.New(logger).ServeHTTP)
	r.Handle("/metrics", promhttp.Handler())
}
