package models

// TariffIcon — закрытый набор иконок тарифов, который понимает клиент.
type TariffIcon string

const (
	IconTrial   TariffIcon = "trial"
	IconMonth   TariffIcon = "month"
	IconQuarter TariffIcon = "quarter"
)

// Tariff — позиция каталога тарифов. Каталог отдаёт сервер, структура
// неизменяемая; цена в рублях.
type Tariff struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Price       int        `json:"price"`
	Days        int        `json:"days"`
	Icon        TariffIcon `json:"icon"`
}

// TrialTariffID — идентификатор пробного тарифа, покупается только один раз.
const TrialTariffID = "trial"

// FallbackTariffs — статический каталог на случай недоступности бэкенда.
// Должен совпадать с серверным по умолчанию.
func FallbackTariffs() []Tariff {
	return []Tariff{
		{ID: "trial", Name: "3 дня", Description: "Пробный", Price: 10, Days: 3, Icon: IconTrial},
		{ID: "month", Name: "1 Месяц", Description: "Самый популярный", Price: 199, Days: 30, Icon: IconMonth},
		{ID: "quarter", Name: "3 Месяца", Description: "Выгодно", Price: 549, Days: 90, Icon: IconQuarter},
	}
}
