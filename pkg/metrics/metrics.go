package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Connection lifecycle metrics
	ConnectAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_connect_attempts_total",
			Help: "Total number of connect attempts by result",
		},
		[]string{"result"},
	)

	SessionState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "burrow_session_state",
			Help: "Current session state per node (1 = in this state)",
		},
		[]string{"node_id", "state"},
	)

	// Registration metrics
	RegistrationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "burrow_registrations_total",
			Help: "Total number of registrations created",
		},
	)

	RegistrationRepairsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "burrow_registration_repairs_total",
			Help: "Total number of corrupted registrations repaired",
		},
	)

	CorruptedRegistrationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "burrow_corrupted_registrations_total",
			Help: "Total number of corrupted registrations detected",
		},
	)

	// Control message metrics
	MessagesSentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_messages_sent_total",
			Help: "Total number of control messages sent by type and scope",
		},
		[]string{"type", "scope"},
	)

	MessagesHandledTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_messages_handled_total",
			Help: "Total number of control messages handled by type and result",
		},
		[]string{"type", "result"},
	)

	MessagesDuplicateTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "burrow_messages_duplicate_total",
			Help: "Total number of redelivered control messages suppressed",
		},
	)
)

func init() {
	// Register all metrics with Prometheus
	prometheus.MustRegister(ConnectAttemptsTotal)
	prometheus.MustRegister(SessionState)
	prometheus.MustRegister(RegistrationsTotal)
	prometheus.MustRegister(RegistrationRepairsTotal)
	prometheus.MustRegister(CorruptedRegistrationsTotal)
	prometheus.MustRegister(MessagesSentTotal)
	prometheus.MustRegister(MessagesHandledTotal)
	prometheus.MustRegister(MessagesDuplicateTotal)
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint
func Handler() http.Handler {
	return promhttp.Handler()
}

// SetSessionState sets the session state gauge for a node, clearing the
// other states so exactly one series reads 1
func SetSessionState(nodeID, state string) {
	for _, s := range []string{"disconnected", "connecting", "connected", "stopped"} {
		v := 0.0
		if s == state {
			v = 1.0
		}
		SessionState.WithLabelValues(nodeID, s).Set(v)
	}
}
