package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// IngestedBytes tracks the uncompressed bytes ingested per table
	IngestedBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modelardb_sim_ingested_bytes_total",
			Help: "Uncompressed bytes ingested per table",
		},
		[]string{"table"},
	)

	// TransferredBytes tracks the last aggregated remote store size per node type and table
	TransferredBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "modelardb_sim_transferred_bytes",
			Help: "Bytes stored in remote object stores per deployment type and table",
		},
		[]string{"node_type", "table"},
	)

	// FlushesTotal tracks flush attempts per node and outcome
	FlushesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modelardb_sim_flushes_total",
			Help: "Flushes per node by status",
		},
		[]string{"node", "status"},
	)

	// FlushesSkipped tracks flush ticks skipped because the previous flush was still running
	FlushesSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modelardb_sim_flushes_skipped_total",
			Help: "Flush ticks skipped while a flush was in flight",
		},
		[]string{"node"},
	)

	// FlushDuration tracks flush durations in seconds
	FlushDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "modelardb_sim_flush_duration_seconds",
			Help:    "Duration of node flushes in seconds",
			Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 30},
		},
		[]string{"node_type"},
	)

	// SampleFailures tracks failed remote store samples per node
	SampleFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modelardb_sim_sample_failures_total",
			Help: "Remote object store samples that failed",
		},
		[]string{"node"},
	)

	// EventsDropped tracks bus deliveries dropped for slow subscribers
	EventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modelardb_sim_events_dropped_total",
			Help: "Event deliveries dropped because a subscriber was full",
		},
		[]string{"event"},
	)
)

// RecordIngested adds a batch size to a table's counter
func RecordIngested(table string, bytes uint64) {
	IngestedBytes.WithLabelValues(table).Add(float64(bytes))
}

// SetTransferred sets the aggregated sizes of a node type, one per table
func SetTransferred(nodeType string, tables []string, sizes []uint64) {
	for i, t := range tables {
		if i < len(sizes) {
			TransferredBytes.WithLabelValues(nodeType, t).Set(float64(sizes[i]))
		}
	}
}

// RecordFlush records a completed flush
func RecordFlush(node, nodeType, status string, durationSeconds float64) {
	FlushesTotal.WithLabelValues(node, status).Inc()
	FlushDuration.WithLabelValues(nodeType).Observe(durationSeconds)
}

// RecordFlushSkipped counts a skipped flush tick
func RecordFlushSkipped(node string) {
	FlushesSkipped.WithLabelValues(node).Inc()
}

// RecordSampleFailure counts a failed sample
func RecordSampleFailure(node string) {
	SampleFailures.WithLabelValues(node).Inc()
}

// RecordDropped counts a dropped delivery
func RecordDropped(event string) {
	EventsDropped.WithLabelValues(event).Inc()
}

// Reset zeroes the per-run series
func Reset() {
	IngestedBytes.Reset()
	TransferredBytes.Reset()
}
