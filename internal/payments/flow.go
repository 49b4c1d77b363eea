// Package payments управляет покупкой тарифа: шлюз условий пользования,
// создание платежа и передача URL подтверждения во внешний браузер.
// Колбэка о завершении внешней оплаты нет — согласование состояния
// происходит только через refresh по возврату в приложение.
package payments

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/oblepiha-vpn/miniapp/internal/entitlement"
	"github.com/oblepiha-vpn/miniapp/internal/lib/sl"
	"github.com/oblepiha-vpn/miniapp/internal/models"
)

// ErrTermsRequired — покупка приостановлена до принятия условий.
// Не сбой: вызывающая сторона показывает подтверждение и затем
// вызывает ConfirmTerms.
var ErrTermsRequired = errors.New("terms acceptance required")

// ErrNoTariff — HandlePayment без выбранного тарифа.
var ErrNoTariff = errors.New("no tariff selected")

// Store — часть entitlement-хранилища, нужная потоку оплаты.
type Store interface {
	Snapshot() entitlement.Snapshot
	Purchase(ctx context.Context, tariffID string) (*models.Payment, error)
	AcceptTerms(ctx context.Context) error
}

// Opener открывает URL во внешнем браузере (возможность хоста).
type Opener interface {
	OpenLink(url string) error
}

// Flow — контроллер потока оплаты. Все ошибки создания платежа
// возвращаются вызывающему как повторяемые: контроллер после них
// полностью готов к новой попытке.
type Flow struct {
	log    *slog.Logger
	store  Store
	opener Opener

	mu      sync.Mutex
	pending string // тариф приостановленной покупки, ждущей условий
}

// NewFlow создаёт контроллер потока оплаты.
func NewFlow(log *slog.Logger, store Store, opener Opener) *Flow {
	return &Flow{log: log, store: store, opener: opener}
}

// HandlePayment начинает покупку тарифа. Если условия пользования ещё
// не приняты, намерение приостанавливается и возвращается
// ErrTermsRequired; после ConfirmTerms выполнится покупка именно этого
// тарифа. Повторный выбор до подтверждения заменяет отложенный тариф.
func (f *Flow) HandlePayment(ctx context.Context, tariffID string) (*models.Payment, error) {
	if tariffID == "" {
		return nil, ErrNoTariff
	}

	snap := f.store.Snapshot()
	if snap.User != nil && !snap.User.TermsAccepted() {
		f.mu.Lock()
		f.pending = tariffID
		f.mu.Unlock()
		return nil, ErrTermsRequired
	}

	return f.purchase(ctx, tariffID)
}

// ConfirmTerms вызывается, когда пользователь согласился с условиями.
// Сначала завершается принятие условий, и только затем возобновляется
// приостановленная покупка. При ошибке принятия намерение сохраняется
// для повторной попытки.
func (f *Flow) ConfirmTerms(ctx context.Context) (*models.Payment, error) {
	if err := f.store.AcceptTerms(ctx); err != nil {
		return nil, err
	}

	f.mu.Lock()
	tariffID := f.pending
	f.pending = ""
	f.mu.Unlock()

	if tariffID == "" {
		return nil, nil
	}
	return f.purchase(ctx, tariffID)
}

// DeclineTerms сбрасывает приостановленное намерение покупки.
func (f *Flow) DeclineTerms() {
	f.mu.Lock()
	f.pending = ""
	f.mu.Unlock()
}

// Pending возвращает тариф приостановленной покупки, если она есть.
func (f *Flow) Pending() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pending, f.pending != ""
}

// purchase создаёт платёж и один раз открывает URL подтверждения.
// URL обязан существовать до попытки открытия; пустой URL (демо-режим)
// означает, что открывать нечего.
func (f *Flow) purchase(ctx context.Context, tariffID string) (*models.Payment, error) {
	payment, err := f.store.Purchase(ctx, tariffID)
	if err != nil {
		f.log.Error("failed to create payment",
			slog.String("tariff_id", tariffID), sl.Err(err))
		return nil, err
	}

	if payment.ConfirmationURL != "" {
		if err := f.opener.OpenLink(payment.ConfirmationURL); err != nil {
			// платёж создан, виджет доступен по URL — пользователь
			// сможет открыть его повторно из UI
			f.log.Warn("failed to open confirmation url", sl.Err(err))
		}
	}

	f.log.Info("payment created",
		slog.String("payment_id", payment.PaymentID),
		slog.String("tariff_id", tariffID))
	return payment, nil
}
