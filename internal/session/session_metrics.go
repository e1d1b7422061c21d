package session

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the session subsystem.
type Metrics struct {
	SavesTotal            *prometheus.CounterVec
	WritesTotal           *prometheus.CounterVec
	LoadsTotal            *prometheus.CounterVec
	ClearsTotal           prometheus.Counter
	ImportsTotal          *prometheus.CounterVec
	HistoryEvictionsTotal prometheus.Counter
}

// NewMetrics registers and returns session metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SavesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scribe_session_saves_total",
			Help: "Total session save calls by mode.",
		}, []string{"mode"}),
		WritesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scribe_session_writes_total",
			Help: "Total session storage writes by outcome.",
		}, []string{"outcome"}),
		LoadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scribe_session_loads_total",
			Help: "Total session storage reads by outcome.",
		}, []string{"outcome"}),
		ClearsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scribe_session_clears_total",
			Help: "Total explicit session clears.",
		}),
		ImportsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scribe_session_imports_total",
			Help: "Total session imports by outcome.",
		}, []string{"outcome"}),
		HistoryEvictionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scribe_session_history_evictions_total",
			Help: "Total execution records evicted by the history cap.",
		}),
	}

	reg.MustRegister(
		m.SavesTotal,
		m.WritesTotal,
		m.LoadsTotal,
		m.ClearsTotal,
		m.ImportsTotal,
		m.HistoryEvictionsTotal,
	)

	return m
}
