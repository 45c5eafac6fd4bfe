package syncer

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts sync activity. Registered once per process.
type Metrics struct {
	attempts     *prometheus.CounterVec
	rowsMirrored *prometheus.CounterVec
	assetUploads *prometheus.CounterVec
	duration     *prometheus.HistogramVec
}

// NewMetrics builds and registers the sync metric set.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		attempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sync_attempts_total",
				Help: "Total number of sync attempts",
			},
			[]string{"mode", "result"},
		),
		rowsMirrored: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sync_rows_mirrored_total",
				Help: "Total number of rows written to the remote mirror",
			},
			[]string{"table"},
		),
		assetUploads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "asset_uploads_total",
				Help: "Total number of letterhead upload attempts",
			},
			[]string{"result"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sync_duration_seconds",
				Help:    "Duration of sync attempts in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"mode"},
		),
	}

	reg.MustRegister(m.attempts, m.rowsMirrored, m.assetUploads, m.duration)
	return m
}
