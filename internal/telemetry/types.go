// Synthetic wind turbine rows
package telemetry

import "time"

// Row is one time-series row. Tags and Fields follow the table's column order.
type Row struct {
	Timestamp time.Time `json:"timestamp"`
	Tags      []string  `json:"tags"`
	Fields    []float32 `json:"fields"`
}

// Batch is the set of rows written for one table in one ingestion tick.
type Batch struct {
	Table string
	Rows  []Row
	// Size is the uncompressed byte count accounted for the batch.
	Size uint64
}
