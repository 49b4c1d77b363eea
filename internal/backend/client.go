// Package backend реализует клиент REST-контракта бэкенда подписки.
// Контракт фиксированный: бэкенд создаёт пользователя при первом
// обращении, платежи проводит через внешний виджет, а статусы транслирует
// из платёжного провайдера. Аутентифицированные вызовы несут непрозрачный
// токен идентичности хоста в заголовке X-Telegram-Init-Data.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/oblepiha-vpn/miniapp/internal/metrics"
	"github.com/oblepiha-vpn/miniapp/internal/models"
)

const initDataHeader = "X-Telegram-Init-Data"

// APIError — ошибка, которую вернул бэкенд (non-2xx с телом {"detail": ...}).
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("backend: %s (HTTP %d)", e.Detail, e.StatusCode)
	}
	return "backend: HTTP " + strconv.Itoa(e.StatusCode)
}

// Client — HTTP-клиент бэкенда.
type Client struct {
	baseURL    string
	initData   string
	httpClient *http.Client
}

// New создаёт клиент. initData может быть пустым только для публичных
// вызовов (каталог тарифов); остальные методы бэкенд отклонит.
func New(baseURL, initData string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		initData:   initData,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.initData != "" {
		req.Header.Set(initDataHeader, c.initData)
	}
	return req, nil
}

// do выполняет запрос и декодирует ответ. Сетевые и протокольные ошибки
// приводятся к типизированным исходам на границе I/O — дальше они
// не всплывают как неструктурированные.
func (c *Client) do(req *http.Request, endpoint string, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.BackendRequestsTotal.WithLabelValues(endpoint, "error").Inc()
		return err
	}
	defer resp.Body.Close()

	metrics.BackendRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var detail struct {
			Detail string `json:"detail"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&detail); err == nil {
			apiErr.Detail = detail.Detail
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// GetTariffs возвращает каталог тарифов. Публичный вызов.
func (c *Client) GetTariffs(ctx context.Context) ([]models.Tariff, error) {
	const op = "backend.GetTariffs"

	req, err := c.newRequest(ctx, http.MethodGet, "/api/tariffs", nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	var tariffs []models.Tariff
	if err := c.do(req, "tariffs", &tariffs); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return tariffs, nil
}

// userWire — как бэкенд сериализует пользователя: способ оплаты приходит
// плоскими полями, клиент собирает из них закрытый вариант.
type userWire struct {
	ID                    int64      `json:"id"`
	TelegramID            int64      `json:"telegramId"`
	TelegramUsername      string     `json:"telegramUsername"`
	FirstName             string     `json:"firstName"`
	IsActive              bool       `json:"isActive"`
	SubscriptionExpiresAt *time.Time `json:"subscriptionExpiresAt"`
	DaysLeft              int        `json:"daysLeft"`
	SubscriptionURL       string     `json:"subscriptionUrl"`
	TrafficUsedBytes      int64      `json:"trafficUsedBytes"`
	TrafficLimitBytes     int64      `json:"trafficLimitBytes"`
	ReferralCode          string     `json:"referralCode"`
	TermsAcceptedAt       *time.Time `json:"termsAcceptedAt"`
	TrialUsed             bool       `json:"trialUsed"`
	AutoRenewEnabled      bool       `json:"autoRenewEnabled"`
	HasPaymentMethod      bool       `json:"hasPaymentMethod"`
	PaymentMethodKind     string     `json:"paymentMethodKind"`
	CardLast4             string     `json:"cardLast4"`
	CardBrand             string     `json:"cardBrand"`
}

func (w userWire) toUser() *models.User {
	u := &models.User{
		ID:                    w.ID,
		TelegramID:            w.TelegramID,
		TelegramUsername:      w.TelegramUsername,
		FirstName:             w.FirstName,
		IsActive:              w.IsActive,
		SubscriptionExpiresAt: w.SubscriptionExpiresAt,
		DaysLeft:              w.DaysLeft,
		SubscriptionURL:       w.SubscriptionURL,
		TrafficUsedBytes:      w.TrafficUsedBytes,
		TrafficLimitBytes:     w.TrafficLimitBytes,
		ReferralCode:          w.ReferralCode,
		TermsAcceptedAt:       w.TermsAcceptedAt,
		TrialUsed:             w.TrialUsed,
		AutoRenewEnabled:      w.AutoRenewEnabled,
	}
	if w.HasPaymentMethod {
		kind := models.PaymentMethodKind(w.PaymentMethodKind)
		if !kind.Valid() {
			kind = models.MethodCard
		}
		u.PaymentMethod = &models.PaymentMethod{
			Kind:  kind,
			Last4: w.CardLast4,
			Brand: w.CardBrand,
		}
	}
	u.Normalize()
	return u
}

// GetMe возвращает проекцию текущего пользователя; на сервере запись
// создаётся при первом обращении.
func (c *Client) GetMe(ctx context.Context) (*models.User, error) {
	const op = "backend.GetMe"

	req, err := c.newRequest(ctx, http.MethodGet, "/api/users/me", nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	var wire userWire
	if err := c.do(req, "users_me", &wire); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return wire.toUser(), nil
}

// GetStats возвращает снимок подписки и трафика.
func (c *Client) GetStats(ctx context.Context) (*models.Stats, error) {
	const op = "backend.GetStats"

	req, err := c.newRequest(ctx, http.MethodGet, "/api/users/me/stats", nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	var stats models.Stats
	if err := c.do(req, "users_me_stats", &stats); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &stats, nil
}

type createPaymentRequest struct {
	TariffID       string `json:"tariffId"`
	SetupAutoRenew bool   `json:"setupAutoRenew"`
}

// CreatePayment создаёт платёж и возвращает URL подтверждения внешнего
// виджета. Заголовок Idempotence-Key защищает от дублей при ретраях —
// бэкенд пробрасывает его в платёжный провайдер.
func (c *Client) CreatePayment(ctx context.Context, tariffID string, setupAutoRenew bool) (*models.Payment, error) {
	const op = "backend.CreatePayment"

	req, err := c.newRequest(ctx, http.MethodPost, "/api/payments", createPaymentRequest{
		TariffID:       tariffID,
		SetupAutoRenew: setupAutoRenew,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Idempotence-Key", uuid.NewString())

	var payment models.Payment
	if err := c.do(req, "payments_create", &payment); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &payment, nil
}

// GetPaymentStatus возвращает снимок статуса платежа (пригоден для
// поллинга, постоянный цикл опроса клиент не ведёт).
func (c *Client) GetPaymentStatus(ctx context.Context, paymentID string) (*models.PaymentStatus, error) {
	const op = "backend.GetPaymentStatus"

	req, err := c.newRequest(ctx, http.MethodGet, "/api/payments/"+paymentID+"/status", nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	var status models.PaymentStatus
	if err := c.do(req, "payments_status", &status); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &status, nil
}

// AcceptTerms отмечает принятие условий пользования.
func (c *Client) AcceptTerms(ctx context.Context) error {
	const op = "backend.AcceptTerms"

	req, err := c.newRequest(ctx, http.MethodPost, "/api/users/me/accept-terms", nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := c.do(req, "accept_terms", nil); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// EnableAutoRenew включает автопродление (нужен сохранённый способ оплаты).
func (c *Client) EnableAutoRenew(ctx context.Context) error {
	const op = "backend.EnableAutoRenew"

	req, err := c.newRequest(ctx, http.MethodPost, "/api/users/me/auto-renew/enable", nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := c.do(req, "auto_renew_enable", nil); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// DisableAutoRenew выключает автопродление, способ оплаты сохраняется.
func (c *Client) DisableAutoRenew(ctx context.Context) error {
	const op = "backend.DisableAutoRenew"

	req, err := c.newRequest(ctx, http.MethodPost, "/api/users/me/auto-renew/disable", nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := c.do(req, "auto_renew_disable", nil); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// DeletePaymentMethod удаляет сохранённый способ оплаты; бэкенд при этом
// выключает и автопродление.
func (c *Client) DeletePaymentMethod(ctx context.Context) error {
	const op = "backend.DeletePaymentMethod"

	req, err := c.newRequest(ctx, http.MethodDelete, "/api/users/me/auto-renew/payment-method", nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := c.do(req, "payment_method_delete", nil); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// GetReferralStats возвращает реферальную статистику пользователя.
func (c *Client) GetReferralStats(ctx context.Context) (*models.ReferralStats, error) {
	const op = "backend.GetReferralStats"

	req, err := c.newRequest(ctx, http.MethodGet, "/api/users/me/referrals", nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	var stats models.ReferralStats
	if err := c.do(req, "referrals", &stats); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &stats, nil
}

type setReferrerRequest struct {
	ReferralCode string `json:"referralCode"`
}

// SetReferrer привязывает пригласившего по его реферальному коду.
func (c *Client) SetReferrer(ctx context.Context, code string) error {
	const op = "backend.SetReferrer"

	req, err := c.newRequest(ctx, http.MethodPost, "/api/users/me/set-referrer", setReferrerRequest{ReferralCode: code})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := c.do(req, "set_referrer", nil); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
