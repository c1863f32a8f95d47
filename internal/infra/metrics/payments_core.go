package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		paymentsTotal,
		paymentsCreditedTotal,
	)
}

var (
	paymentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_total",
			Help: "Deposits by source (utr/razorpay/admin) and status.",
		},
		[]string{"source", "status"},
	)

	paymentsCreditedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_credited_total",
			Help: "Total balance units credited to users, labeled by source.",
		},
		[]string{"source"},
	)
)

func IncPayment(source, status string) {
	paymentsTotal.WithLabelValues(norm(source), norm(status)).Inc()
}

func AddCredited(source string, amount int64) {
	paymentsCreditedTotal.WithLabelValues(norm(source)).Add(float64(amount))
}
