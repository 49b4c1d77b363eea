// Package models содержит доменные структуры мини-аппа: пользователь,
// тарифы, платежи и реферальная статистика. Клиент хранит только кешированную
// проекцию серверных данных — записи никогда не удаляются на стороне клиента.
package models

import "time"

// PaymentMethodKind — закрытый набор типов сохранённого способа оплаты.
// Новый тип добавляется сюда и во все switch ниже, а не в строковые словари.
type PaymentMethodKind string

const (
	// MethodCard — банковская карта.
	MethodCard PaymentMethodKind = "bank_card"
	// MethodSBP — оплата через СБП (привязка по банку).
	MethodSBP PaymentMethodKind = "sbp"
	// MethodWallet — кошелёк ЮMoney.
	MethodWallet PaymentMethodKind = "yoo_money"
)

// Valid сообщает, известен ли тип способа оплаты клиенту.
func (k PaymentMethodKind) Valid() bool {
	switch k {
	case MethodCard, MethodSBP, MethodWallet:
		return true
	}
	return false
}

// DisplayName возвращает человекочитаемое название типа оплаты.
func (k PaymentMethodKind) DisplayName() string {
	switch k {
	case MethodCard:
		return "Банковская карта"
	case MethodSBP:
		return "СБП"
	case MethodWallet:
		return "ЮMoney"
	default:
		return "Способ оплаты"
	}
}

// Icon возвращает имя иконки для типа оплаты.
func (k PaymentMethodKind) Icon() string {
	switch k {
	case MethodCard:
		return "credit_card"
	case MethodSBP:
		return "account_balance"
	case MethodWallet:
		return "wallet"
	default:
		return "payments"
	}
}

// PaymentMethod — сохранённый способ оплаты пользователя.
// Поля Last4 и Brand заполняются только для карт.
type PaymentMethod struct {
	Kind  PaymentMethodKind `json:"kind"`
	Last4 string            `json:"last4,omitempty"`
	Brand string            `json:"brand,omitempty"`
}

// Label возвращает строку для отображения способа оплаты в UI.
func (m PaymentMethod) Label() string {
	if m.Kind == MethodCard && m.Last4 != "" {
		brand := m.Brand
		if brand == "" {
			brand = m.Kind.DisplayName()
		}
		return brand + " •••• " + m.Last4
	}
	return m.Kind.DisplayName()
}

// User — кешированная проекция пользователя, которую отдаёт бэкенд.
// Запись создаётся на сервере при первом обращении к /users/me.
//
// Инвариант: AutoRenewEnabled может быть true только при непустом
// PaymentMethod; отключение способа оплаты сбрасывает автопродление.
type User struct {
	ID                    int64          `json:"id"`
	TelegramID            int64          `json:"telegramId"`
	TelegramUsername      string         `json:"telegramUsername,omitempty"`
	FirstName             string         `json:"firstName,omitempty"`
	IsActive              bool           `json:"isActive"`
	SubscriptionExpiresAt *time.Time     `json:"subscriptionExpiresAt,omitempty"`
	DaysLeft              int            `json:"daysLeft"`
	SubscriptionURL       string         `json:"subscriptionUrl,omitempty"`
	TrafficUsedBytes      int64          `json:"trafficUsedBytes"`
	TrafficLimitBytes     int64          `json:"trafficLimitBytes"`
	ReferralCode          string         `json:"referralCode,omitempty"`
	TermsAcceptedAt       *time.Time     `json:"termsAcceptedAt,omitempty"`
	TrialUsed             bool           `json:"trialUsed"`
	AutoRenewEnabled      bool           `json:"autoRenewEnabled"`
	PaymentMethod         *PaymentMethod `json:"paymentMethod,omitempty"`
}

// HasPaymentMethod сообщает, есть ли у пользователя сохранённый способ оплаты.
func (u *User) HasPaymentMethod() bool {
	return u.PaymentMethod != nil
}

// TermsAccepted сообщает, принял ли пользователь условия пользования.
func (u *User) TermsAccepted() bool {
	return u.TermsAcceptedAt != nil
}

// Normalize приводит проекцию к инвариантам клиента: автопродление без
// сохранённого способа оплаты невозможно.
func (u *User) Normalize() {
	if u.PaymentMethod == nil {
		u.AutoRenewEnabled = false
	}
}

// Stats — снимок подписки и трафика для главного экрана.
type Stats struct {
	IsActive        bool    `json:"isActive"`
	DaysLeft        int     `json:"daysLeft"`
	TotalDays       int     `json:"totalDays"`
	TrafficLeftGB   float64 `json:"trafficLeftGb"`
	TotalTrafficGB  float64 `json:"totalTrafficGb"`
	SubscriptionURL string  `json:"subscriptionUrl,omitempty"`
}

const bytesPerGB = 1 << 30

// GBFromBytes переводит байты в гигабайты для отображения.
func GBFromBytes(b int64) float64 {
	return float64(b) / bytesPerGB
}
