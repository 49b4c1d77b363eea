package models

// ReferralStats — реферальная статистика пользователя. Проекция только
// для чтения: счётчики и готовая ссылка для приглашений.
type ReferralStats struct {
	Invited   int    `json:"invited"`
	Purchased int    `json:"purchased"`
	BonusDays int    `json:"bonusDays"`
	ShareLink string `json:"shareLink"`
}
