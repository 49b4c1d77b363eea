package entitlement

import (
	"context"
	"sync"
	"time"

	"github.com/oblepiha-vpn/miniapp/internal/models"
)

// demoCredential — тестовая строка подписки для демонстрационного режима.
const demoCredential = "vless://demo-subscription-url"

// demoStore обслуживает мини-апп, когда хост не подтвердил идентичность
// пользователя: фиксированная проекция и мутаторы без сети. UI остаётся
// полностью рабочим для просмотра и скриншотов.
type demoStore struct {
	mu       sync.Mutex
	user     models.User
	stats    models.Stats
	referral models.ReferralStats
	tariffs  []models.Tariff
}

func newDemoStore() *demoStore {
	expires := time.Now().Add(30 * 24 * time.Hour).UTC()
	accepted := time.Now().UTC()
	return &demoStore{
		user: models.User{
			ID:                    1,
			TelegramID:            123456789,
			TelegramUsername:      "demo_user",
			FirstName:             "Вадим",
			IsActive:              true,
			SubscriptionExpiresAt: &expires,
			DaysLeft:              30,
			SubscriptionURL:       demoCredential,
			TrafficUsedBytes:      10 << 30,
			TrafficLimitBytes:     500 << 30,
			ReferralCode:          "DEMO2024",
			TermsAcceptedAt:       &accepted,
			TrialUsed:             true,
			AutoRenewEnabled:      true,
			PaymentMethod: &models.PaymentMethod{
				Kind:  models.MethodCard,
				Last4: "4242",
				Brand: "Visa",
			},
		},
		stats: models.Stats{
			IsActive:        true,
			DaysLeft:        30,
			TotalDays:       30,
			TrafficLeftGB:   490,
			TotalTrafficGB:  500,
			SubscriptionURL: demoCredential,
		},
		referral: models.ReferralStats{
			Invited:   3,
			Purchased: 1,
			BonusDays: 10,
			ShareLink: "https://t.me/oblepiha_vpn_bot?start=ref_DEMO2024",
		},
		tariffs: models.FallbackTariffs(),
	}
}

func (s *demoStore) Load(context.Context) error { return nil }

func (s *demoStore) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	user := s.user
	stats := s.stats
	referral := s.referral
	return Snapshot{
		User:     &user,
		Stats:    &stats,
		Referral: &referral,
		Tariffs:  s.tariffs,
	}
}

func (s *demoStore) Refresh(context.Context) error { return nil }

// Purchase в демо-режиме успешен, но платёж не несёт URL подтверждения:
// открывать внешний виджет нечем и незачем.
func (s *demoStore) Purchase(_ context.Context, tariffID string) (*models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tariffID == models.TrialTariffID && s.user.TrialUsed {
		return nil, ErrTrialUsed
	}
	return &models.Payment{
		PaymentID: "demo-payment",
		TariffID:  tariffID,
	}, nil
}

func (s *demoStore) AcceptTerms(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user.TermsAcceptedAt == nil {
		now := time.Now().UTC()
		s.user.TermsAcceptedAt = &now
	}
	return nil
}

func (s *demoStore) SetAutoRenew(_ context.Context, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	// инвариант действует и в демо-режиме
	if enabled && s.user.PaymentMethod == nil {
		return ErrNoPaymentMethod
	}
	s.user.AutoRenewEnabled = enabled
	return nil
}

func (s *demoStore) RemovePaymentMethod(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user.PaymentMethod = nil
	s.user.AutoRenewEnabled = false
	return nil
}

func (s *demoStore) SetReferrer(_ context.Context, code string) error {
	if code == "" {
		return ErrNoReferralCode
	}
	return nil
}

func (s *demoStore) Close() {}
