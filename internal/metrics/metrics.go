package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	orderTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "carecircle",
			Subsystem: "orders",
			Name:      "transitions_total",
			Help:      "Order status transitions by kind and resulting status.",
		},
		[]string{"kind", "status"},
	)

	gigTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "carecircle",
			Subsystem: "gigs",
			Name:      "transitions_total",
			Help:      "Gig status transitions by resulting status.",
		},
		[]string{"status"},
	)

	walletMovements = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "carecircle",
			Subsystem: "wallet",
			Name:      "movements_total",
			Help:      "Wallet transactions recorded by type.",
		},
		[]string{"type"},
	)

	walletAmount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "carecircle",
			Subsystem: "wallet",
			Name:      "amount_total",
			Help:      "Sum of wallet transaction amounts by type.",
		},
		[]string{"type"},
	)

	notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "carecircle",
			Subsystem: "notifications",
			Name:      "added_total",
			Help:      "Notifications appended by receiver role.",
		},
		[]string{"role"},
	)

	chatMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "carecircle",
			Subsystem: "chat",
			Name:      "messages_total",
			Help:      "Chat messages appended by type and origin.",
		},
		[]string{"type", "origin"},
	)

	realtimeClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "carecircle",
			Subsystem: "realtime",
			Name:      "connected_clients",
			Help:      "Websocket clients currently connected.",
		},
	)

	persistFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "carecircle",
			Subsystem: "state",
			Name:      "persist_failures_total",
			Help:      "Failed ledger snapshot writes by key.",
		},
		[]string{"key"},
	)
)

func init() {
	Registry.MustRegister(
		orderTransitions,
		gigTransitions,
		walletMovements,
		walletAmount,
		notifications,
		chatMessages,
		realtimeClients,
		persistFailures,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

func RecordOrderTransition(kind, status string) {
	orderTransitions.WithLabelValues(kind, status).Inc()
}

func RecordGigTransition(status string) {
	gigTransitions.WithLabelValues(status).Inc()
}

func RecordWalletMovement(txType string, amount float64) {
	walletMovements.WithLabelValues(txType).Inc()
	walletAmount.WithLabelValues(txType).Add(amount)
}

func RecordNotification(role string) {
	notifications.WithLabelValues(role).Inc()
}

func RecordChatMessage(msgType, origin string) {
	chatMessages.WithLabelValues(msgType, origin).Inc()
}

func RecordPersistFailure(key string) {
	persistFailures.WithLabelValues(key).Inc()
}

func RealtimeClientConnected() {
	realtimeClients.Inc()
}

func RealtimeClientDisconnected() {
	realtimeClients.Dec()
}
