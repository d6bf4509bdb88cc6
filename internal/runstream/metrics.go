package runstream

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors that report stream consumption.
type Metrics struct {
	stepsTotal     *prometheus.CounterVec
	malformedLines prometheus.Counter
	runsStarted    prometheus.Counter
	runsSettled    *prometheus.CounterVec
}

var (
	defaultMetricsOnce sync.Once
	sharedMetrics      *Metrics
)

// defaultMetrics returns the package-level metrics instance registered with
// the global Prometheus registry. The collectors are created only once to
// avoid duplicate registration panics when multiple clients are constructed
// (e.g. in unit tests or concurrent runs).
func defaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		sharedMetrics = MustNewMetrics(prometheus.DefaultRegisterer)
	})
	return sharedMetrics
}

// MustNewMetrics constructs a Metrics instance using the provided registerer.
// Callers needing unique metric names (for example in tests) should supply a
// fresh registry. Registration errors panic, mirroring promauto semantics.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	stepsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "devhub",
			Subsystem: "runstream",
			Name:      "steps_total",
			Help:      "Steps appended to run logs, by step type.",
		},
		[]string{"type"},
	)
	malformedLines := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "devhub",
			Subsystem: "runstream",
			Name:      "malformed_lines_total",
			Help:      "Data lines dropped because they failed to decode.",
		},
	)
	runsStarted := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "devhub",
			Subsystem: "runstream",
			Name:      "runs_started_total",
			Help:      "Runs started by this process.",
		},
	)
	runsSettled := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "devhub",
			Subsystem: "runstream",
			Name:      "runs_settled_total",
			Help:      "Runs that reached a terminal state, by outcome.",
		},
		[]string{"outcome"},
	)

	for _, collector := range []prometheus.Collector{stepsTotal, malformedLines, runsStarted, runsSettled} {
		if err := reg.Register(collector); err != nil {
			panic(err)
		}
	}

	return &Metrics{
		stepsTotal:     stepsTotal,
		malformedLines: malformedLines,
		runsStarted:    runsStarted,
		runsSettled:    runsSettled,
	}
}

func (m *Metrics) observeStep(kind StepKind) {
	if m == nil {
		return
	}
	m.stepsTotal.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) observeMalformedLine() {
	if m == nil {
		return
	}
	m.malformedLines.Inc()
}

func (m *Metrics) observeRunStarted() {
	if m == nil {
		return
	}
	m.runsStarted.Inc()
}

func (m *Metrics) observeRunSettled(outcome string) {
	if m == nil {
		return
	}
	m.runsSettled.WithLabelValues(outcome).Inc()
}
