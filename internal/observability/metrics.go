// Package observability exposes Prometheus metrics for prioritization runs.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "sector_priority"

// Metrics holds the Prometheus counters, histograms and gauges for runs.
type Metrics struct {
	Runs        *prometheus.CounterVec // labels: outcome={success,error}
	RunDuration prometheus.Histogram
	LastRunUnix prometheus.Gauge

	// Source loading.
	SourceLoadDuration *prometheus.HistogramVec // labels: source={sectors,cases,coverage}
	RowsDropped        *prometheus.CounterVec   // labels: source, reason

	// Output of the last successful run.
	SectorsRanked   prometheus.Gauge
	SectorsUnranked prometheus.Gauge
	Coverage        prometheus.Gauge
	MeanIncidence   prometheus.Gauge
}

func newMetrics(withHelp bool) *Metrics {
	help := func(s string) string {
		if withHelp {
			return s
		}
		return ""
	}
	return &Metrics{
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      help("Prioritization runs by outcome."),
		}, []string{"outcome"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      help("Duration of a complete load-rank run."),
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		LastRunUnix: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      help("Unix time of the last successful run."),
		}),
		SourceLoadDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "source_load_duration_seconds",
			Help:      help("Time to stage and parse one source."),
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		}, []string{"source"}),
		RowsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_dropped_total",
			Help:      help("Source rows excluded during ingestion, by source and reason."),
		}, []string{"source", "reason"}),
		SectorsRanked: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sectors_ranked",
			Help:      help("Sectors with a score in the last successful run."),
		}),
		SectorsUnranked: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sectors_unranked",
			Help:      help("Sectors left unranked for lack of a risk population in the last successful run."),
		}),
		Coverage: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "vaccine_coverage_ratio",
			Help:      help("Normalized vaccine coverage used by the last successful run."),
		}),
		MeanIncidence: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mean_incidence",
			Help:      help("Mean incidence constant used by the last successful run."),
		}),
	}
}

// NewMetrics creates and registers all run metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics(true)
	prometheus.MustRegister(m.Collectors()...)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics(false)
}

// Collectors returns every collector, for registration with a custom registry.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.Runs,
		m.RunDuration,
		m.LastRunUnix,
		m.SourceLoadDuration,
		m.RowsDropped,
		m.SectorsRanked,
		m.SectorsUnranked,
		m.Coverage,
		m.MeanIncidence,
	}
}
