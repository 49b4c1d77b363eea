// Package middlewarectx содержит http-middleware страницы подключения.
package middlewarectx

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/render"
	"golang.org/x/time/rate"

	"github.com/oblepiha-vpn/miniapp/internal/http/response"
)

// RateLimitMiddleware ограничивает частоту запросов к странице подключения.
// rps задаёт установившуюся скорость, burst допустимый всплеск.
func RateLimitMiddleware(log *slog.Logger, rps, burst int) func(http.Handler) http.Handler {
	limiter := rate.NewLimiter(rate.Limit(rps), burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				log.Error("too many requests")
				w.WriteHeader(http.StatusTooManyRequests)
				render.JSON(w, r, response.Error("too many requests"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
