// Package page реализует HTTP-обработчик страницы подключения GET /sub.
//
// Handler разбирает строку подписки из query-параметра, строит кандидатов
// deep-link под обнаруженную платформу и отдаёт HTML-страницу, которая
// выполняет переход в приложение и показывает ручное восстановление,
// если переход не подтвердился за отведённое окно.
package page

import (
	"context"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/middleware"
	"github.com/go-playground/validator"

	"github.com/oblepiha-vpn/miniapp/internal/config"
	"github.com/oblepiha-vpn/miniapp/internal/deeplink"
	"github.com/oblepiha-vpn/miniapp/internal/handoff"
	"github.com/oblepiha-vpn/miniapp/internal/lib/sl"
	"github.com/oblepiha-vpn/miniapp/internal/metrics"
	"github.com/oblepiha-vpn/miniapp/internal/platform"
)

// Resolver описывает интерфейс построения кандидатов deep-link.
type Resolver interface {
	Resolve(ctx context.Context, credential string, target deeplink.ClientApp) []deeplink.Candidate
}

// Request параметры запроса страницы подключения.
type Request struct {
	URL string `validate:"required,uri"`
}

// Handler обрабатывает запросы на страницу подключения.
type Handler struct {
	log      *slog.Logger
	resolver Resolver
	links    config.Links
	validate *validator.Validate
	tmpl     *template.Template
}

// New создает новый Handler с переданным логгером, резолвером и ссылками.
func New(log *slog.Logger, resolver Resolver, links config.Links) *Handler {
	return &Handler{
		log:      log,
		resolver: resolver,
		links:    links,
		validate: validator.New(),
		tmpl:     template.Must(template.New("sub").Parse(pageTemplate)),
	}
}

// candidateView — кандидат в виде, пригодном для шаблона. Custom-схемы
// deep-link не проходят URL-фильтр html/template, поэтому ссылка помечается
// доверенной явно.
type candidateView struct {
	Kind deeplink.CandidateKind
	Href template.URL
}

type pageData struct {
	Primary    string
	Candidates []candidateView
	QRHref     string
	Install    string
	Support    string
	WindowMS   int64
}

// ServeHTTP обрабатывает HTTP-запрос страницы подключения.
//
// Выполняет:
// - Валидацию строки подписки из query.
// - Определение платформы по подсказке tgWebAppPlatform и User-Agent.
// - Построение кандидатов и рендеринг страницы с переходом.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.sub.page"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	req := Request{URL: r.URL.Query().Get("url")}
	if err := h.validate.Struct(req); err != nil {
		log.Info("subscription link missing or malformed", sl.Err(err))
		metrics.SubPageRequestsTotal.WithLabelValues("not_found").Inc()
		h.renderNotFound(w)
		return
	}

	os := platform.Detect(r.URL.Query().Get("tgWebAppPlatform"), r.UserAgent())
	candidates := h.resolver.Resolve(r.Context(), req.URL, deeplink.AppHapp)
	if len(candidates) == 0 {
		log.Info("no candidates for credential")
		metrics.SubPageRequestsTotal.WithLabelValues("not_found").Inc()
		h.renderNotFound(w)
		return
	}

	data := pageData{
		QRHref:   "/sub/qr?url=" + url.QueryEscape(req.URL),
		Install:  h.installLink(os),
		Support:  h.links.SupportURL,
		WindowMS: handoff.ConfirmWindow.Milliseconds(),
	}
	for _, c := range candidates {
		if !c.Navigable() {
			continue
		}
		if data.Primary == "" {
			data.Primary = c.URI
		}
		data.Candidates = append(data.Candidates, candidateView{Kind: c.Kind, Href: template.URL(c.URI)})
	}

	log.Info("handoff page served",
		slog.String("platform", string(os)),
		slog.Int("candidates", len(candidates)))
	metrics.SubPageRequestsTotal.WithLabelValues("ok").Inc()

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.tmpl.Execute(w, data); err != nil {
		log.Error("failed to render handoff page", sl.Err(err))
	}
}

func (h *Handler) installLink(os platform.OS) string {
	switch os {
	case platform.IOS:
		return h.links.Happ.IOS
	case platform.Windows:
		return h.links.Happ.Windows
	default:
		return h.links.Happ.Android
	}
}

func (h *Handler) renderNotFound(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	_, _ = w.Write([]byte(notFoundPage))
}

const pageTemplate = `<!DOCTYPE html>
<html lang="ru">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Подключение</title>
</head>
<body>
<p>Открываем приложение…</p>
<div id="manual" hidden>
<p>Не удалось открыть приложение автоматически.</p>
<ul>
{{range .Candidates}}<li><a href="{{.Href}}">Открыть ({{.Kind}})</a></li>
{{end}}<li><a href="{{.QRHref}}">Показать QR-код</a></li>
<li><a href="{{.Install}}">Установить приложение</a></li>
<li><a href="{{.Support}}">Поддержка</a></li>
</ul>
</div>
<script>
setTimeout(function () {
  document.getElementById("manual").hidden = false;
}, {{.WindowMS}});
window.location.href = "{{.Primary}}";
</script>
</body>
</html>
`

const notFoundPage = `<!DOCTYPE html>
<html lang="ru">
<head>
<meta charset="utf-8">
<title>Ссылка не найдена</title>
</head>
<body>
<p>Ссылка не найдена. Откройте страницу подключения из мини-приложения заново.</p>
</body>
</html>
`
