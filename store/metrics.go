package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors of a Client. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	UpdateAttemptsTotal  prometheus.Counter
	UpdateConflictsTotal prometheus.Counter
	UpdateFailuresTotal  prometheus.Counter
	PageFetchesTotal     prometheus.Counter
	GateTimeoutsTotal    prometheus.Counter
	GateWaitSeconds      prometheus.Histogram
	Throughput           prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		UpdateAttemptsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "docket",
			Name:      "update_attempts_total",
			Help:      "Total number of read-merge-write attempts made by Update",
		}),
		UpdateConflictsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "docket",
			Name:      "update_conflicts_total",
			Help:      "Total number of Update attempts rejected by a stale etag",
		}),
		UpdateFailuresTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "docket",
			Name:      "update_failures_total",
			Help:      "Total number of Update calls that returned an error",
		}),
		PageFetchesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "docket",
			Name:      "page_fetches_total",
			Help:      "Total number of query pages fetched from the connector",
		}),
		GateTimeoutsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "docket",
			Subsystem: "throughput",
			Name:      "gate_timeouts_total",
			Help:      "Total number of throughput changes that could not claim the gate",
		}),
		GateWaitSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "docket",
			Subsystem: "throughput",
			Name:      "gate_wait_seconds",
			Help:      "Time spent waiting for the throughput gate",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 15},
		}),
		Throughput: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "docket",
			Subsystem: "throughput",
			Name:      "current",
			Help:      "Last observed provisioned throughput of the collection",
		}),
	}
}

func (m *Metrics) updateAttempt() {
	if m != nil {
		m.UpdateAttemptsTotal.Inc()
	}
}

func (m *Metrics) updateConflict() {
	if m != nil {
		m.UpdateConflictsTotal.Inc()
	}
}

func (m *Metrics) updateFailure() {
	if m != nil {
		m.UpdateFailuresTotal.Inc()
	}
}

func (m *Metrics) pageFetch() {
	if m != nil {
		m.PageFetchesTotal.Inc()
	}
}

func (m *Metrics) gateWait(seconds float64, acquired bool) {
	if m == nil {
		return
	}
	m.GateWaitSeconds.Observe(seconds)
	if !acquired {
		m.GateTimeoutsTotal.Inc()
	}
}

func (m *Metrics) throughput(v int) {
	if m != nil {
		m.Throughput.Set(float64(v))
	}
}
