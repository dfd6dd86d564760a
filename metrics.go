package gofootprint

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	FootprintsCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "footprint_created_total",
		Help: "Total number of footprints created",
	})
	WalkRetries = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "footprint_walk_retries_total",
		Help: "Total boundary walks retried with smaller increments",
	})
	WalkFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "footprint_walk_failures_total",
		Help: "Total footprint creations that failed",
	})
	OverlapRecords = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "footprint_overlap_records_total",
		Help: "Total non-empty overlap records produced",
	})
	LedgerEntries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "footprint_ledger_entries_total",
		Help: "Total recovery actions recorded in the error ledger",
	}, []string{"kind"})
	SeedPoints = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "footprint_seed_points_total",
		Help: "Total seed points produced by the grid seeder",
	})
)

// Registry holds every footprint collector.
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(FootprintsCreated, WalkRetries, WalkFailures, OverlapRecords, LedgerEntries, SeedPoints)
}

// WriteMetrics dumps the registry in text exposition format, for the
// node exporter textfile collector.
func WriteMetrics(path string) error {
	return prometheus.WriteToTextfile(path, Registry)
}
