package audit

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the audit subsystem.
type Metrics struct {
	EntriesTotal      prometheus.Counter
	DroppedTotal      prometheus.Counter
	BatchFlushesTotal *prometheus.CounterVec
	BatchEntries      prometheus.Histogram
	SubmitsTotal      *prometheus.CounterVec
	SubmitDuration    prometheus.Histogram
	SpooledTotal      *prometheus.CounterVec
	SpoolDepth        prometheus.Gauge
	SpoolDroppedTotal prometheus.Counter
	DrainsTotal       *prometheus.CounterVec
}

// NewMetrics registers and returns audit metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		EntriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scribe_audit_entries_total",
			Help: "Total audit entries accepted.",
		}),
		DroppedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scribe_audit_batch_dropped_total",
			Help: "Total entries dropped because the pending batch was full.",
		}),
		BatchFlushesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scribe_audit_batch_flushes_total",
			Help: "Total batch flushes by trigger.",
		}, []string{"trigger"}),
		BatchEntries: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "scribe_audit_batch_entries",
			Help:    "Entries per flushed batch.",
			Buckets: prometheus.LinearBuckets(1, 1, 10), // 1 .. 10
		}),
		SubmitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scribe_audit_submits_total",
			Help: "Total delivery attempts by outcome.",
		}, []string{"outcome"}),
		SubmitDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "scribe_audit_submit_duration_seconds",
			Help:    "Duration of delivery attempts in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 8), // 50ms .. ~6.4s
		}),
		SpooledTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scribe_audit_spooled_total",
			Help: "Total entries written to the spool by reason.",
		}, []string{"reason"}),
		SpoolDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "scribe_audit_spool_depth",
			Help: "Entries currently waiting in the spool.",
		}),
		SpoolDroppedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scribe_audit_spool_dropped_total",
			Help: "Total entries dropped after exhausting delivery retries.",
		}),
		DrainsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scribe_audit_drains_total",
			Help: "Total spool drains by trigger.",
		}, []string{"trigger"}),
	}

	reg.MustRegister(
		m.EntriesTotal,
		m.DroppedTotal,
		m.BatchFlushesTotal,
		m.BatchEntries,
		m.SubmitsTotal,
		m.SubmitDuration,
		m.SpooledTotal,
		m.SpoolDepth,
		m.SpoolDroppedTotal,
		m.DrainsTotal,
	)

	return m
}
