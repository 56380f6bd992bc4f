package sim

import (
	"context"

	"modelardb-sim/internal/registry"
	"modelardb-sim/internal/telemetry"
)

// Sink stores an ingested batch.
type Sink interface {
	Write(ctx context.Context, b telemetry.Batch) error
}

// Flusher triggers a node's upload of buffered data to its object store.
type Flusher interface {
	Flush(ctx context.Context, n registry.Node) error
}

// Sampler reads the cumulative stored bytes per table behind a node, in
// catalog table order.
type Sampler interface {
	TableSizes(ctx context.Context, n registry.Node) ([]uint64, error)
}

// TableManager recreates the logical tables in the storage engine.
type TableManager interface {
	CreateTables(ctx context.Context) error
}

// Backend is the storage engine the simulator drives. Mirrors receive every
// batch the Sink accepted; their failures are logged and otherwise ignored.
type Backend struct {
	Sink    Sink
	Flusher Flusher
	Sampler Sampler
	Tables  TableManager
	Mirrors []Sink
}
