package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		listenersActive,
		listenerStartsTotal,
		codesReceivedTotal,
		notifyFailuresTotal,
		teardownsTotal,
	)
}

var (
	listenersActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "otp_listeners_active",
			Help: "Number of phone numbers with a registered listener.",
		},
	)

	listenerStartsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otp_listener_starts_total",
			Help: "Listener start attempts by result (started/already_active/connect_error/unauthorized).",
		},
		[]string{"result"},
	)

	codesReceivedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "otp_codes_received_total",
			Help: "Codes extracted from incoming messages and recorded on a purchase.",
		},
	)

	notifyFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "otp_notify_failures_total",
			Help: "Buyer notifications that could not be delivered.",
		},
	)

	teardownsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otp_teardowns_total",
			Help: "Listener stops by reason.",
		},
		[]string{"reason"},
	)
)

func ListenerUp()   { listenersActive.Inc() }
func ListenerDown() { listenersActive.Dec() }

func IncListenerStart(result string) {
	listenerStartsTotal.WithLabelValues(norm(result)).Inc()
}

func IncCodeReceived() { codesReceivedTotal.Inc() }

func IncNotifyFailure() { notifyFailuresTotal.Inc() }

func IncTeardown(reason string) {
	teardownsTotal.WithLabelValues(norm(reason)).Inc()
}
