package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/rickgao/fixrouter/internal/journal"
	"github.com/rickgao/fixrouter/internal/router"
	"github.com/rickgao/fixrouter/internal/session"
)

const namespace = "fixrouter"

// Metrics holds the router's collectors in a dedicated registry. It
// implements router.Observer and session.Observer.
type Metrics struct {
	Registry *prometheus.Registry

	messages       *prometheus.CounterVec
	rejects        *prometheus.CounterVec
	stageDuration  *prometheus.HistogramVec
	sessionsActive *prometheus.GaugeVec
	sessionsTotal  *prometheus.CounterVec
}

// New creates the collectors, plus the Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		messages: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "router",
				Name:      "messages_total",
				Help:      "Messages handled, by outcome",
			},
			[]string{"outcome"},
		),
		rejects: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "router",
				Name:      "rejects_total",
				Help:      "Reject messages sent back to sources, by reason",
			},
			[]string{"reason"},
		),
		stageDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "router",
				Name:      "stage_duration_seconds",
				Help:      "Pipeline latency, by the stage that ended processing",
				Buckets:   []float64{.00001, .00005, .0001, .0005, .001, .005, .01, .05, .1},
			},
			[]string{"stage"},
		),
		sessionsActive: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "sessions_active",
				Help:      "Connections currently past the handshake, by role",
			},
			[]string{"role"},
		),
		sessionsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sessions_total",
				Help:      "Session lifecycle events, by role and kind",
			},
			[]string{"role", "kind"},
		),
	}
}

// Observe records a pipeline event.
func (m *Metrics) Observe(ev router.Event) {
	m.messages.WithLabelValues(ev.Outcome.String()).Inc()
	if ev.Outcome == router.Replayed {
		return
	}
	if ev.Reason != "" {
		m.rejects.WithLabelValues(ev.Reason).Inc()
	}
	if ev.Stage != "" {
		m.stageDuration.WithLabelValues(ev.Stage).Observe(ev.Duration.Seconds())
	}
}

// SessionEvent records a session lifecycle event.
func (m *Metrics) SessionEvent(ev session.Event) {
	role := string(ev.Role)
	m.sessionsTotal.WithLabelValues(role, string(ev.Kind)).Inc()

	switch ev.Kind {
	case session.KindNew, session.KindReconnect:
		m.sessionsActive.WithLabelValues(role).Inc()
	case session.KindClosed:
		m.sessionsActive.WithLabelValues(role).Dec()
	}
}

// RegisterPending exposes the pending queue size, read from fn at scrape
// time.
func (m *Metrics) RegisterPending(fn func() int) {
	promauto.With(m.Registry).NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_messages",
			Help:      "Messages queued for identities that are unreachable or replaying",
		},
		func() float64 { return float64(fn()) },
	)
}

// RegisterJournal exposes journal writer counters, read from stats at
// scrape time.
func (m *Metrics) RegisterJournal(stats func() journal.Stats) {
	f := promauto.With(m.Registry)
	rows := func(result string, pick func(journal.Stats) int64) {
		f.NewCounterFunc(
			prometheus.CounterOpts{
				Namespace:   namespace,
				Subsystem:   "journal",
				Name:        "rows_total",
				Help:        "Journal rows, by result",
				ConstLabels: prometheus.Labels{"result": result},
			},
			func() float64 { return float64(pick(stats())) },
		)
	}
	rows("inserted", func(s journal.Stats) int64 { return s.Inserts })
	rows("conflict", func(s journal.Stats) int64 { return s.Conflicts })
	rows("dropped", func(s journal.Stats) int64 { return s.Dropped })

	f.NewCounterFunc(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "journal",
			Name:      "batch_errors_total",
			Help:      "Journal batches that failed to insert",
		},
		func() float64 { return float64(stats().Errors) },
	)
}
