package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	applicationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "checkout",
			Name:      "applications_total",
			Help:      "职位申请提交结果计数。",
		},
		[]string{"outcome"},
	)

	paymentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "checkout",
			Name:      "payments_total",
			Help:      "支付订单状态流转计数。",
		},
		[]string{"provider", "status"},
	)

	reconciledPaymentsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "checkout",
			Name:      "reconciled_payments_total",
			Help:      "超时未支付被标记为 FAILED 的订单数。",
		},
	)
)

// ObserveApplication 记录一次申请的结果（accepted / quota_exceeded）。
func ObserveApplication(outcome string) {
	applicationsTotal.WithLabelValues(outcome).Inc()
}

// ObservePayment 记录支付状态变化（created / success / replayed / signature_invalid / gateway_error）。
func ObservePayment(provider, status string) {
	paymentsTotal.WithLabelValues(provider, status).Inc()
}

// ObserveReconciled 记录对账任务关闭的订单数量。
func ObserveReconciled(n int64) {
	if n > 0 {
		reconciledPaymentsTotal.Add(float64(n))
	}
}
