// Package deeplink строит кандидатов deep-link для передачи строки подписки
// в установленный VPN-клиент. Кандидаты упорядочены по ожидаемой надёжности:
// сырая ссылка с известной схемой, обёртка в custom-схему клиента,
// зашифрованный вариант, QR-код. Сама строка подписки для пакета непрозрачна —
// она не разбирается, только перекодируется для передачи.
package deeplink

import (
	"context"
	"log/slog"
	"net/url"
	"strings"

	"github.com/oblepiha-vpn/miniapp/internal/lib/sl"
)

// CandidateKind — вид кандидата.
type CandidateKind string

const (
	// KindRaw — строка подписки как есть; клиент, зарегистрированный
	// на её схему, перехватит переход напрямую.
	KindRaw CandidateKind = "raw"
	// KindScheme — обёртка в custom-схему клиента с глаголом add.
	KindScheme CandidateKind = "scheme"
	// KindCrypto — зашифрованная ссылка, не раскрывающая строку подписки
	// в адресной строке.
	KindCrypto CandidateKind = "crypto"
	// KindQR — QR-код с сырой строкой; рендерится, переход не выполняется.
	KindQR CandidateKind = "qr"
)

// Candidate — один вариант ссылки для попытки передачи.
type Candidate struct {
	Kind CandidateKind
	URI  string
}

// Navigable сообщает, выполняется ли по кандидату переход.
func (c Candidate) Navigable() bool {
	return c.Kind != KindQR
}

// rawSchemes — схемы VPN-протоколов, которые клиенты регистрируют за собой.
var rawSchemes = []string{"vmess://", "vless://", "trojan://", "ss://", "socks://"}

// HasRawScheme сообщает, начинается ли строка подписки с известной
// протокольной схемы.
func HasRawScheme(credential string) bool {
	lower := strings.ToLower(credential)
	for _, s := range rawSchemes {
		if strings.HasPrefix(lower, s) {
			return true
		}
	}
	return false
}

// Encrypter — внешний эндпоинт шифрования строки подписки.
// Возвращает непрозрачный токен для встраивания в crypto-ссылку.
type Encrypter interface {
	Encrypt(ctx context.Context, credential string) (string, error)
}

// Resolver строит список кандидатов для заданного клиента.
type Resolver struct {
	log       *slog.Logger
	encrypter Encrypter
}

// NewResolver создаёт Resolver. encrypter может быть nil — тогда
// зашифрованные варианты не строятся.
func NewResolver(log *slog.Logger, encrypter Encrypter) *Resolver {
	return &Resolver{log: log, encrypter: encrypter}
}

// Resolve возвращает упорядоченный список кандидатов для строки подписки.
// Пустая строка — пустой список: у пользователя нет подписки, действия
// передачи должны быть отключены. Недоступность шифрования не ошибка:
// crypto-кандидат просто опускается.
func (r *Resolver) Resolve(ctx context.Context, credential string, target ClientApp) []Candidate {
	const op = "deeplink.Resolve"

	if credential == "" {
		return nil
	}

	app, ok := LookupApp(target)
	if !ok {
		app = apps[AppHapp]
	}

	var candidates []Candidate

	if HasRawScheme(credential) {
		candidates = append(candidates, Candidate{Kind: KindRaw, URI: credential})
	} else {
		wrapped := app.Scheme + "://add/" + url.QueryEscape(credential)
		candidates = append(candidates, Candidate{Kind: KindScheme, URI: wrapped})
	}

	if app.SupportsCrypto && r.encrypter != nil {
		token, err := r.encrypter.Encrypt(ctx, credential)
		switch {
		case err != nil:
			r.log.Warn("crypto link unavailable", slog.String("op", op), sl.Err(err))
		case token != "":
			candidates = append(candidates, Candidate{Kind: KindCrypto, URI: cryptoURI(app, token)})
		}
	}

	candidates = append(candidates, Candidate{Kind: KindQR, URI: credential})
	return candidates
}

func cryptoURI(app App, token string) string {
	// эндпоинт может вернуть уже готовую ссылку со схемой
	if strings.Contains(token, "://") {
		return token
	}
	return app.Scheme + "://crypto2/" + token
}
