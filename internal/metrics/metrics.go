package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all compendium metrics
const namespace = "compendium"

// Registry is the global Prometheus registry for all metrics
var Registry = prometheus.NewRegistry()

// AppInfo is a gauge that exposes application version information as labels
var AppInfo = promauto.With(Registry).NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "app_info",
		Help:      "Application version information (always set to 1, version info in labels)",
	},
	[]string{"version", "commit", "build_date"},
)

// Import metrics

// RecordsProcessed counts raw records by entity kind and outcome
// (created, updated, skipped, errored).
var RecordsProcessed = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "import_records_total",
		Help:      "Total number of records processed by the importer",
	},
	[]string{"kind", "outcome"},
)

// RecordErrors counts per-record failures by the pipeline stage that raised them.
var RecordErrors = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "import_errors_total",
		Help:      "Total number of per-record import errors",
	},
	[]string{"kind", "stage"},
)

// ImportDuration tracks the wall-clock time of one importer pass
var ImportDuration = promauto.With(Registry).NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "import_duration_seconds",
		Help:      "Duration of one entity kind import in seconds",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
	},
	[]string{"kind"},
)

// PhaseDuration tracks the wall-clock time of each orchestrator phase
var PhaseDuration = promauto.With(Registry).NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "phase_duration_seconds",
		Help:      "Duration of one import phase in seconds",
		Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 900},
	},
	[]string{"phase"},
)

// LinksResolved counts relationship resolutions by relation and outcome
// (created, updated, errored).
var LinksResolved = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "links_total",
		Help:      "Total number of relationship references processed by the linker",
	},
	[]string{"relation", "outcome"},
)

// Init sets application info metrics
func Init(version, commit, buildDate string) {
	AppInfo.WithLabelValues(version, commit, buildDate).Set(1)
}

// WriteTextfile writes the current state of Registry in the text exposition
// format, for pickup by a node_exporter textfile collector.
func WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, Registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
