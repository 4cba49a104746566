package scanner

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	scanRunsMetrics = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stockpattern_scan_runs_total",
			Help: "Total number of scan runs by outcome",
		}, []string{"outcome"},
	)

	scanDurationMetrics = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "stockpattern_scan_duration_seconds",
			Help:    "Wall time of a full scan run",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12), // 0.5s to ~17m
		},
	)

	tickerErrorMetrics = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stockpattern_ticker_errors_total",
			Help: "Total number of per-ticker failures by pipeline stage",
		}, []string{"stage"},
	)

	setupsDetectedMetrics = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stockpattern_setups_detected_total",
			Help: "Total number of setups persisted by pattern",
		}, []string{"pattern", "broke_out"},
	)
)

func init() {
	prometheus.MustRegister(
		scanRunsMetrics,
		scanDurationMetrics,
		tickerErrorMetrics,
		setupsDetectedMetrics,
	)
}
