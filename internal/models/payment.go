package models

// Статусы платежа. Словарём владеет бэкенд (он транслирует статусы ЮKassa),
// клиент различает только эти три.
const (
	PaymentPending   = "pending"
	PaymentSucceeded = "succeeded"
	PaymentCanceled  = "canceled"
)

// Payment — результат создания платежа. Создаётся один раз на попытку
// покупки; клиент его не изменяет, только опрашивает статус.
type Payment struct {
	PaymentID       string `json:"paymentId"`
	ConfirmationURL string `json:"confirmationUrl"`
	Amount          int    `json:"amount"`
	TariffID        string `json:"tariffId"`
	TariffName      string `json:"tariffName"`
}

// PaymentStatus — снимок статуса платежа для поллинга.
type PaymentStatus struct {
	PaymentID string `json:"paymentId"`
	Status    string `json:"status"`
	Paid      bool   `json:"paid"`
}
