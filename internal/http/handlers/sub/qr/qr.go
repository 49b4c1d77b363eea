// Package qr реализует HTTP-обработчик GET /sub/qr, отдающий строку подписки
// в виде PNG с QR-кодом.
package qr

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/oblepiha-vpn/miniapp/internal/deeplink"
	"github.com/oblepiha-vpn/miniapp/internal/http/response"
	"github.com/oblepiha-vpn/miniapp/internal/lib/sl"
)

// Request параметры запроса QR-кода.
type Request struct {
	URL string `validate:"required,uri"`
}

// Handler обрабатывает запросы на QR-код строки подписки.
type Handler struct {
	log      *slog.Logger
	validate *validator.Validate
}

// New создает новый Handler с переданным логгером.
func New(log *slog.Logger) *Handler {
	return &Handler{
		log:      log,
		validate: validator.New(),
	}
}

// ServeHTTP обрабатывает HTTP-запрос на QR-код.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.sub.qr"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	req := Request{URL: r.URL.Query().Get("url")}
	if err := h.validate.Struct(req); err != nil {
		log.Info("subscription link missing or malformed", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("url query parameter is required"))
		return
	}

	size := deeplink.DefaultQRSize
	if raw := r.URL.Query().Get("size"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 64 || parsed > 1024 {
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error("size must be a number between 64 and 1024"))
			return
		}
		size = parsed
	}

	png, err := deeplink.QRPNG(req.URL, size)
	if err != nil {
		log.Error("failed to render qr code", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not render qr code"))
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(png)
}
