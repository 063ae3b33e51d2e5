package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Outcome label values for StatementsSent.
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// Metrics holds the Prometheus collectors for the ingest pipeline and the graph output.
type Metrics struct {
	MessagesReceived *prometheus.CounterVec
	StatementsSent   *prometheus.CounterVec
	RenderErrors     prometheus.Counter
	DispatchDuration prometheus.Histogram
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.MessagesReceived,
		m.StatementsSent,
		m.RenderErrors,
		m.DispatchDuration,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		MessagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "graphsink",
			Name:      "messages_received_total",
			Help:      "Total messages produced by the ingest processor, by input source.",
		}, []string{"source"}),
		StatementsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "graphsink",
			Name:      "statements_sent_total",
			Help:      "Total statements submitted to Neo4j, by transport and outcome.",
		}, []string{"transport", "outcome"}),
		RenderErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "graphsink",
			Name:      "render_errors_total",
			Help:      "Total query template executions that failed.",
		}),
		DispatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "graphsink",
			Name:      "dispatch_duration_seconds",
			Help:      "Duration of a single statement round trip to Neo4j.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
	}
}
