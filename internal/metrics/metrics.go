// Package metrics регистрирует Prometheus-метрики мини-аппа.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Метрики страницы передачи подписки
	HandoffAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "handoff_attempts_total",
			Help: "Total number of deep link handoff attempts",
		},
		[]string{"kind"},
	)
	HandoffTimeoutsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "handoff_timeouts_total",
			Help: "Handoff attempts that fell back to manual recovery",
		},
	)
	SubPageRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subpage_requests_total",
			Help: "Requests to the /sub handoff page",
		},
		[]string{"outcome"},
	)

	// Метрики клиента бэкенда
	BackendRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backend_requests_total",
			Help: "Requests to the subscription backend",
		},
		[]string{"endpoint", "status"},
	)
	PaymentsCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "payments_created_total",
			Help: "Payments successfully created through the flow controller",
		},
	)
)

// Register регистрирует все метрики в реестре по умолчанию.
// Вызывается один раз при старте приложения.
func Register() {
	prometheus.MustRegister(
		HandoffAttemptsTotal,
		HandoffTimeoutsTotal,
		SubPageRequestsTotal,
		BackendRequestsTotal,
		PaymentsCreatedTotal,
	)
}
