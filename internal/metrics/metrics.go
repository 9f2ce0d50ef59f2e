package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Scan metrics
var (
	ScanRunsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dlmanager_scan_runs_total",
			Help: "Total number of download directory scans",
		},
	)

	ScanDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dlmanager_scan_duration_seconds",
			Help:    "Duration of a full download directory scan",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)

	ScanFilesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dlmanager_scan_files_total",
			Help: "Archives seen by scans by outcome",
		},
		[]string{"result"}, // "entry", "stub", "dropped"
	)

	ScanWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dlmanager_scan_workers",
			Help: "Number of workers used by the last scan",
		},
	)

	ScanIsRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dlmanager_scan_running",
			Help: "Whether a scan is currently running (1) or not (0)",
		},
	)
)

// Collection metrics
var (
	CollectionEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dlmanager_collection_entries",
			Help: "Number of entries in the current collection",
		},
	)

	CollectionBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dlmanager_collection_bytes",
			Help: "Total size of indexed archives in bytes",
		},
	)
)

// Mutation metrics
var (
	MutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dlmanager_mutations_total",
			Help: "Mutating operations by kind and status",
		},
		[]string{"operation", "status"},
	)
)

// Lookup and hashing metrics
var (
	LookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dlmanager_lookups_total",
			Help: "Hash lookups by result",
		},
		[]string{"result"}, // "match", "miss", "failure", "cache_hit"
	)

	LookupDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dlmanager_lookup_duration_seconds",
			Help:    "Remote hash lookup duration",
			Buckets: prometheus.DefBuckets,
		},
	)

	HashedBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dlmanager_hashed_bytes_total",
			Help: "Bytes read by the hash worker",
		},
	)
)

const (
	StatusSuccess = "success"
	StatusFailure = "failure"

	ResultEntry   = "entry"
	ResultStub    = "stub"
	ResultDropped = "dropped"

	ResultMatch    = "match"
	ResultMiss     = "miss"
	ResultFailure  = "failure"
	ResultCacheHit = "cache_hit"
)

// Status maps an error to a status label.
func Status(err error) string {
	if err != nil {
		return StatusFailure
	}

	return StatusSuccess
}
