package hub

import "github.com/prometheus/client_golang/prometheus"

// Metrics exported by the hub. A nil Registerer leaves them unregistered,
// which is what tests use.
type Metrics struct {
	Connections      prometheus.Gauge
	Events           *prometheus.CounterVec
	FallbackWrites   prometheus.Counter
	FallbackReads    prometheus.Counter
	BroadcastDropped prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chat_connections_active",
			Help: "Number of open websocket connections.",
		}),
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_events_total",
			Help: "Inbound events by name and outcome.",
		}, []string{"event", "outcome"}),
		FallbackWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chat_fallback_writes_total",
			Help: "Messages stored in the in-memory fallback buffer.",
		}),
		FallbackReads: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chat_fallback_reads_total",
			Help: "History requests served from the fallback buffer.",
		}),
		BroadcastDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chat_broadcast_dropped_total",
			Help: "Connections dropped because their send buffer was full.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Connections, m.Events, m.FallbackWrites, m.FallbackReads, m.BroadcastDropped)
	}
	return m
}
