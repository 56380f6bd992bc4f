// Package ratio computes compression ratios from the event stream the way a
// dashboard would: ingested bytes over bytes stored in remote object stores.
// Store sizes arrive as cumulative snapshots and are diffed, never summed.
package ratio

import (
	"context"
	"sort"
	"sync"
	"time"

	"modelardb-sim/internal/events"
)

type point struct {
	at time.Time
	v  uint64
}

// Table is the ratio of one table for one deployment type.
type Table struct {
	Name        string  `json:"name"`
	Ingested    uint64  `json:"ingested"`
	Transferred uint64  `json:"transferred"`
	Ratio       float64 `json:"ratio"`
}

// Summary is the compression picture of one deployment type.
type Summary struct {
	NodeType    string  `json:"node_type"`
	Ingested    uint64  `json:"ingested"`
	Transferred uint64  `json:"transferred"`
	Ratio       float64 `json:"ratio"`
	WindowRatio float64 `json:"window_ratio"`
	Tables      []Table `json:"tables"`
}

// Tracker accumulates ingestion and store size events. A zero window disables
// the windowed ratio.
type Tracker struct {
	tables []string
	window time.Duration

	mu        sync.Mutex
	ingested  map[string]uint64
	ingestLog []point
	stores    map[string][]point
	latest    map[string][]uint64
}

// NewTracker creates a tracker for tables in catalog order.
func NewTracker(tables []string, window time.Duration) *Tracker {
	return &Tracker{
		tables:   tables,
		window:   window,
		ingested: map[string]uint64{},
		stores:   map[string][]point{},
		latest:   map[string][]uint64{},
	}
}

// Observe feeds one event received at at. Other event names are ignored.
func (t *Tracker) Observe(ev events.Event, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch p := ev.Payload.(type) {
	case events.IngestedSize:
		t.ingested[p.TableName] += p.Size
		t.ingestLog = t.trim(append(t.ingestLog, point{at: at, v: t.total()}), at)
	case events.RemoteObjectStoreSize:
		t.latest[p.NodeType] = append([]uint64(nil), p.TableSizes...)
		pts := t.stores[p.NodeType]
		// a shrinking store was recreated; start a new baseline
		if n := len(pts); n > 0 && p.Total() < pts[n-1].v {
			pts = nil
		}
		t.stores[p.NodeType] = t.trim(append(pts, point{at: at, v: p.Total()}), at)
	}
}

// Reset forgets everything, as after a simulation reset.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ingested = map[string]uint64{}
	t.ingestLog = nil
	t.stores = map[string][]point{}
	t.latest = map[string][]uint64{}
}

func (t *Tracker) total() uint64 {
	var sum uint64
	for _, v := range t.ingested {
		sum += v
	}
	return sum
}

// trim drops points older than the window but keeps the last one before it as
// the baseline.
func (t *Tracker) trim(pts []point, now time.Time) []point {
	if t.window <= 0 {
		return pts[len(pts)-1:]
	}
	cut := now.Add(-t.window)
	i := sort.Search(len(pts), func(i int) bool { return !pts[i].at.Before(cut) })
	if i > 1 {
		pts = pts[i-1:]
	}
	return pts
}

// delta is the growth over the retained window.
func delta(pts []point) uint64 {
	if len(pts) < 2 {
		return 0
	}
	first, last := pts[0].v, pts[len(pts)-1].v
	if last < first {
		return 0
	}
	return last - first
}

func divide(a, b uint64) float64 {
	if b == 0 {
		return 0
	}
	return float64(a) / float64(b)
}

// Summary returns the ratios of a deployment type. Ratios are 0 while nothing
// has been transferred.
func (t *Tracker) Summary(nodeType string) Summary {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := Summary{NodeType: nodeType, Ingested: t.total()}
	latest := t.latest[nodeType]
	for i, name := range t.tables {
		tb := Table{Name: name, Ingested: t.ingested[name]}
		if i < len(latest) {
			tb.Transferred = latest[i]
		}
		tb.Ratio = divide(tb.Ingested, tb.Transferred)
		s.Transferred += tb.Transferred
		s.Tables = append(s.Tables, tb)
	}
	s.Ratio = divide(s.Ingested, s.Transferred)
	if t.window > 0 {
		s.WindowRatio = divide(delta(t.ingestLog), delta(t.stores[nodeType]))
	}
	return s
}

// Follow observes every event from sub until ctx is done or sub is closed.
func (t *Tracker) Follow(ctx context.Context, sub *events.Subscription, now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			t.Observe(ev, now())
		}
	}
}
