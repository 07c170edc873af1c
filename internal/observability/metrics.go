package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "gelap_etl"

// Metrics holds the Prometheus counters, histograms, and gauges for a conversion run.
type Metrics struct {
	ArchivesExtracted prometheus.Counter
	HousesConverted   prometheus.Counter
	TablesWritten     prometheus.Counter
	PipelineRunning   prometheus.Gauge

	// Per-file metrics, labelled kind={site_meter,appliance}.
	FilesRead              *prometheus.CounterVec
	RowsRead               *prometheus.CounterVec
	FileProcessingDuration *prometheus.HistogramVec

	// RowsDropped is labelled reason={missing,duplicate}.
	RowsDropped *prometheus.CounterVec
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics(true)
	prometheus.MustRegister(
		m.ArchivesExtracted,
		m.HousesConverted,
		m.TablesWritten,
		m.PipelineRunning,
		m.FilesRead,
		m.RowsRead,
		m.FileProcessingDuration,
		m.RowsDropped,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics(false)
}

func newMetrics(withHelp bool) *Metrics {
	help := func(s string) string {
		if withHelp {
			return s
		}
		return ""
	}
	return &Metrics{
		ArchivesExtracted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archives_extracted_total",
			Help:      help("House archives unpacked."),
		}),
		HousesConverted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "houses_converted_total",
			Help:      help("Houses whose tables were all written."),
		}),
		TablesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tables_written_total",
			Help:      help("Canonical tables written to the store."),
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      help("1 while a conversion is in progress, 0 otherwise."),
		}),
		FilesRead: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_read_total",
			Help:      help("CSV files parsed, by meter kind."),
		}, []string{"kind"}),
		RowsRead: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_read_total",
			Help:      help("CSV data rows parsed, by meter kind."),
		}, []string{"kind"}),
		FileProcessingDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "file_processing_duration_seconds",
			Help:      help("Time to read, normalize and store one CSV file."),
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"kind"}),
		RowsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_dropped_total",
			Help:      help("Rows removed during normalization, by reason."),
		}, []string{"reason"}),
	}
}
