package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the dispatcher's Prometheus collectors. A nil registerer keeps
// them unregistered, which tests use to read values with testutil.
type Metrics struct {
	Actions       *prometheus.CounterVec
	Stages        *prometheus.CounterVec
	Violations    *prometheus.CounterVec
	QueueDepth    prometheus.Gauge
	QueueOverflow prometheus.Counter
	SinkErrors    prometheus.Counter
	ExecuteTime   prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "parkcraft",
			Name:      "actions_total",
			Help:      "Actions that reached a final result, by kind and status.",
		}, []string{"kind", "status"}),
		Stages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "parkcraft",
			Name:      "action_stages_total",
			Help:      "Pipeline stage transitions.",
		}, []string{"stage"}),
		Violations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "parkcraft",
			Name:      "protocol_violations_total",
			Help:      "Protocol violations by message id.",
		}, []string{"reason"}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "parkcraft",
			Name:      "action_queue_depth",
			Help:      "Sealed actions waiting for their tick.",
		}),
		QueueOverflow: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "parkcraft",
			Name:      "action_queue_overflow_total",
			Help:      "Actions refused because the queue was full.",
		}),
		SinkErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "parkcraft",
			Name:      "replay_sink_errors_total",
			Help:      "Replay entries a sink failed to record.",
		}),
		ExecuteTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "parkcraft",
			Name:      "action_execute_seconds",
			Help:      "Time spent in query plus execute under the world lock.",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 8),
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Actions, m.Stages, m.Violations, m.QueueDepth, m.QueueOverflow, m.SinkErrors, m.ExecuteTime)
	}
	return m
}
