package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"modelardb-sim/internal/registry"
	"modelardb-sim/internal/telemetry"
)

// ErrUnreachable is returned for nodes that are offline.
var ErrUnreachable = errors.New("node unreachable")

// Options tune the simulated fleet.
type Options struct {
	// Bandwidth is the simulated upload speed in bytes per second. Zero
	// uploads instantly.
	Bandwidth float64
	// RecentRows is how many rows per table each engine keeps for queries.
	RecentRows int
}

// Fleet is the set of simulated engines for every participating node.
// Batches are routed round-robin to one edge node per deployment type, so each
// system stores every ingested row exactly once.
type Fleet struct {
	reg     *registry.Registry
	buckets map[string]*Bucket
	engines map[string]*Engine

	mu      sync.Mutex
	offline map[string]bool
	next    map[registry.DeploymentType]int
}

// NewFleet builds engines for every participating node in the registry.
func NewFleet(reg *registry.Registry, opts Options) *Fleet {
	if opts.RecentRows == 0 {
		opts.RecentRows = DefaultRecentRows
	}
	f := &Fleet{
		reg:     reg,
		buckets: map[string]*Bucket{},
		engines: map[string]*Engine{},
		offline: map[string]bool{},
		next:    map[registry.DeploymentType]int{},
	}
	tables := reg.Tables()
	for _, n := range reg.Nodes() {
		if !n.Participates() {
			continue
		}
		key := n.StoreKey()
		b, ok := f.buckets[key]
		if !ok {
			b = NewBucket(key)
			f.buckets[key] = b
		}
		f.engines[n.URL] = newEngine(n, tables, b, opts)
	}
	return f
}

// Engine returns the engine of a node.
func (f *Fleet) Engine(url string) (*Engine, bool) {
	e, ok := f.engines[url]
	return e, ok
}

// Bucket returns a bucket by name.
func (f *Fleet) Bucket(name string) (*Bucket, bool) {
	b, ok := f.buckets[name]
	return b, ok
}

// SetOffline takes a node offline or brings it back.
func (f *Fleet) SetOffline(url string, offline bool) error {
	if _, ok := f.engines[url]; !ok {
		return fmt.Errorf("unknown node %q", url)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if offline {
		f.offline[url] = true
	} else {
		delete(f.offline, url)
	}
	return nil
}

// Offline lists the nodes currently offline.
func (f *Fleet) Offline() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.offline))
	for _, n := range f.reg.Nodes() {
		if f.offline[n.URL] {
			out = append(out, n.URL)
		}
	}
	return out
}

func (f *Fleet) reachable(url string) (*Engine, error) {
	e, ok := f.engines[url]
	if !ok {
		return nil, fmt.Errorf("unknown node %q", url)
	}
	f.mu.Lock()
	down := f.offline[url]
	f.mu.Unlock()
	if down {
		return nil, fmt.Errorf("%s: %w", url, ErrUnreachable)
	}
	return e, nil
}

// pick returns the next reachable edge engine of a type.
func (f *Fleet) pick(t registry.DeploymentType) (*Engine, error) {
	edges := f.reg.EdgeNodes(t)
	if len(edges) == 0 {
		return nil, fmt.Errorf("no %s edge nodes", t)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for range edges {
		i := f.next[t] % len(edges)
		f.next[t] = i + 1
		if url := edges[i].URL; !f.offline[url] {
			return f.engines[url], nil
		}
	}
	return nil, fmt.Errorf("all %s edge nodes: %w", t, ErrUnreachable)
}

// Write stores the batch on one edge node of every deployment type.
func (f *Fleet) Write(ctx context.Context, b telemetry.Batch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var errs []error
	for _, t := range registry.DeploymentTypes {
		e, err := f.pick(t)
		if err == nil {
			err = e.Write(b)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Flush flushes one node's engine.
func (f *Fleet) Flush(ctx context.Context, n registry.Node) error {
	e, err := f.reachable(n.URL)
	if err != nil {
		return err
	}
	_, err = e.Flush(ctx)
	return err
}

// TableSizes samples the bucket behind a node.
func (f *Fleet) TableSizes(ctx context.Context, n registry.Node) ([]uint64, error) {
	e, err := f.reachable(n.URL)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return e.TableSizes(), nil
}

// CreateTables drops all stored and buffered data.
func (f *Fleet) CreateTables(ctx context.Context) error {
	for _, e := range f.engines {
		e.Reset()
	}
	for _, b := range f.buckets {
		b.Clear()
	}
	return ctx.Err()
}

// Recent returns a node's newest rows for a table. Edge nodes answer from
// their own engine. Cloud nodes, and the local node for the primary system,
// see the merged rows of every edge node of their type.
func (f *Fleet) Recent(url, table string, limit int) ([]telemetry.Row, error) {
	n, ok := f.reg.Node(url)
	if !ok {
		return nil, fmt.Errorf("unknown node %q", url)
	}
	if n.Mode == registry.Edge {
		e, err := f.reachable(url)
		if err != nil {
			return nil, err
		}
		return e.Recent(table, limit), nil
	}
	if n.Mode == registry.Cloud {
		if _, err := f.reachable(url); err != nil {
			return nil, err
		}
	}
	var rows []telemetry.Row
	for _, edge := range f.reg.EdgeNodes(n.Type) {
		rows = append(rows, f.engines[edge.URL].Recent(table, limit)...)
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Timestamp.Before(rows[j].Timestamp) })
	if limit > 0 && len(rows) > limit {
		rows = rows[len(rows)-limit:]
	}
	return rows, nil
}

// Serves reports whether url names a simulated node.
func (f *Fleet) Serves(url string) bool {
	_, ok := f.reg.Node(url)
	return ok
}
