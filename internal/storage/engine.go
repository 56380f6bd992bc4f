// Package storage simulates the storage engines of edge and cloud nodes: rows
// are buffered per table, and a flush compresses the buffer and uploads it as
// a segment to the node's object store bucket.
package storage

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"modelardb-sim/internal/registry"
	"modelardb-sim/internal/telemetry"
)

// DefaultRecentRows is how many rows per table an engine keeps for queries.
const DefaultRecentRows = 1000

// FlushStats describes one flush.
type FlushStats struct {
	Segments int
	Raw      uint64
	Stored   uint64
	Elapsed  time.Duration
}

// Engine is the storage engine of one simulated node.
type Engine struct {
	Node registry.Node

	tables    []registry.Table
	codec     Codec
	bucket    *Bucket
	bandwidth float64
	keep      int

	mu      sync.Mutex
	buffers map[string][]byte
	recent  map[string][]telemetry.Row
}

func newEngine(n registry.Node, tables []registry.Table, b *Bucket, opts Options) *Engine {
	codec := CodecZstd
	if n.Type == registry.Comparison {
		codec = CodecLZ4
	}
	return &Engine{
		Node:      n,
		tables:    tables,
		codec:     codec,
		bucket:    b,
		bandwidth: opts.Bandwidth,
		keep:      opts.RecentRows,
		buffers:   map[string][]byte{},
		recent:    map[string][]telemetry.Row{},
	}
}

func (e *Engine) table(name string) (registry.Table, bool) {
	for _, t := range e.tables {
		if t.Name == name {
			return t, true
		}
	}
	return registry.Table{}, false
}

// bits is the mantissa truncation for a table. The comparison system stores
// everything losslessly.
func (e *Engine) bits(t registry.Table) uint {
	if e.Node.Type == registry.Comparison {
		return 0
	}
	return DroppedBits(t.ErrorBound)
}

// Write buffers a batch.
func (e *Engine) Write(b telemetry.Batch) error {
	t, ok := e.table(b.Table)
	if !ok {
		return fmt.Errorf("engine %s: unknown table %q", e.Node.URL, b.Table)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.buffers[t.Name] = EncodeRows(e.buffers[t.Name], b.Rows, e.bits(t))
	if e.keep > 0 {
		rows := append(e.recent[t.Name], b.Rows...)
		if len(rows) > e.keep {
			rows = slices.Clone(rows[len(rows)-e.keep:])
		}
		e.recent[t.Name] = rows
	}
	return nil
}

// Buffered returns the number of uncompressed bytes waiting for a flush.
func (e *Engine) Buffered() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	var n uint64
	for _, b := range e.buffers {
		n += uint64(len(b))
	}
	return n
}

// Flush compresses every non-empty buffer, waits the transfer time, and
// stores the segments. On failure the buffers are restored so no rows are
// lost.
func (e *Engine) Flush(ctx context.Context) (FlushStats, error) {
	start := time.Now()
	e.mu.Lock()
	pending := e.buffers
	e.buffers = map[string][]byte{}
	e.mu.Unlock()

	var stats FlushStats
	segments := map[string][]byte{}
	for _, t := range e.tables {
		raw := pending[t.Name]
		if len(raw) == 0 {
			continue
		}
		seg, err := Compress(e.codec, raw)
		if err != nil {
			e.restore(pending)
			return stats, fmt.Errorf("engine %s: table %s: %w", e.Node.URL, t.Name, err)
		}
		segments[t.Name] = seg
		stats.Raw += uint64(len(raw))
		stats.Stored += uint64(len(seg))
	}
	if err := e.transfer(ctx, stats.Stored); err != nil {
		e.restore(pending)
		return stats, fmt.Errorf("engine %s: upload: %w", e.Node.URL, err)
	}
	for table, seg := range segments {
		e.bucket.AddSegment(table, seg)
		stats.Segments++
	}
	stats.Elapsed = time.Since(start)
	return stats, nil
}

func (e *Engine) transfer(ctx context.Context, n uint64) error {
	if e.bandwidth <= 0 || n == 0 {
		return ctx.Err()
	}
	d := time.Duration(float64(n) / e.bandwidth * float64(time.Second))
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// restore puts taken buffers back in front of anything written meanwhile.
func (e *Engine) restore(pending map[string][]byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for table, raw := range pending {
		e.buffers[table] = append(raw, e.buffers[table]...)
	}
}

// TableSizes returns the stored bytes per table in catalog order.
func (e *Engine) TableSizes() []uint64 {
	sizes := make([]uint64, len(e.tables))
	for i, t := range e.tables {
		sizes[i] = e.bucket.Size(TablePrefix(t.Name))
	}
	return sizes
}

// Recent returns up to limit of the newest rows of a table. limit <= 0 means all kept rows.
func (e *Engine) Recent(table string, limit int) []telemetry.Row {
	e.mu.Lock()
	defer e.mu.Unlock()
	rows := e.recent[table]
	if limit > 0 && len(rows) > limit {
		rows = rows[len(rows)-limit:]
	}
	return slices.Clone(rows)
}

// Reset drops buffers and recent rows.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.buffers = map[string][]byte{}
	e.recent = map[string][]telemetry.Row{}
}
