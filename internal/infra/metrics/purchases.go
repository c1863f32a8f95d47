package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(purchasesTotal, stockLevel) }

var (
	purchasesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "purchases_total",
			Help: "Purchase transitions by resulting status (pending/otp_received/cancelled/rejected).",
		},
		[]string{"status"},
	)

	stockLevel = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "stock_accounts",
			Help: "Phone accounts in the stock log by status.",
		},
		[]string{"status"},
	)
)

func IncPurchase(status string) {
	purchasesTotal.WithLabelValues(norm(status)).Inc()
}

func SetStockLevel(status string, n int) {
	stockLevel.WithLabelValues(norm(status)).Set(float64(n))
}
