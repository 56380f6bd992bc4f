package ratio

import (
	"context"
	"math"
	"testing"
	"time"

	"modelardb-sim/internal/events"
	"modelardb-sim/internal/registry"
)

func TestSummaryUsesLatestSnapshot(t *testing.T) {
	tr := NewTracker([]string{"wind", "wind_5"}, 0)
	at := time.Unix(0, 0)
	tr.Observe(events.DataIngested("wind", 1000), at)
	tr.Observe(events.DataIngested("wind_5", 1000), at)
	tr.Observe(events.StoreSize(registry.Primary, []uint64{400, 100}), at)
	tr.Observe(events.StoreSize(registry.Primary, []uint64{500, 100}), at.Add(time.Second))

	s := tr.Summary("modelardb")
	if s.Transferred != 600 {
		t.Fatalf("transferred = %d, want the latest cumulative 600", s.Transferred)
	}
	if math.Abs(s.Ratio-2000.0/600.0) > 1e-9 {
		t.Fatalf("ratio = %v", s.Ratio)
	}
	if s.Tables[1].Ratio != 10 {
		t.Fatalf("wind_5 ratio = %v, want 10", s.Tables[1].Ratio)
	}
	if other := tr.Summary("comparison"); other.Ratio != 0 {
		t.Fatalf("ratio without snapshots = %v, want 0", other.Ratio)
	}
}

func TestWindowRatioDiffsSnapshots(t *testing.T) {
	tr := NewTracker([]string{"wind"}, 10*time.Second)
	at := time.Unix(100, 0)
	tr.Observe(events.DataIngested("wind", 5000), at)
	tr.Observe(events.StoreSize(registry.Primary, []uint64{1000}), at)

	tr.Observe(events.DataIngested("wind", 600), at.Add(5*time.Second))
	tr.Observe(events.StoreSize(registry.Primary, []uint64{1200}), at.Add(5*time.Second))

	s := tr.Summary("modelardb")
	if s.WindowRatio != 3 {
		t.Fatalf("window ratio = %v, want 600/200 = 3", s.WindowRatio)
	}
}

func TestReset(t *testing.T) {
	tr := NewTracker([]string{"wind"}, time.Second)
	tr.Observe(events.DataIngested("wind", 10), time.Now())
	tr.Reset()
	if s := tr.Summary("modelardb"); s.Ingested != 0 {
		t.Fatalf("ingested after reset = %d", s.Ingested)
	}
}

func TestFollowObservesBus(t *testing.T) {
	bus := events.NewBus(0)
	sub := bus.Subscribe()
	tr := NewTracker([]string{"wind"}, 0)
	done := make(chan struct{})
	go func() {
		defer close(done)
		tr.Follow(context.Background(), sub, nil)
	}()
	bus.Publish(events.DataIngested("wind", 300))
	bus.Publish(events.StoreSize(registry.Comparison, []uint64{100}))
	deadline := time.Now().Add(2 * time.Second)
	for tr.Summary("comparison").Ratio != 3 {
		if time.Now().After(deadline) {
			t.Fatalf("ratio = %v, want 3", tr.Summary("comparison").Ratio)
		}
		time.Sleep(5 * time.Millisecond)
	}
	sub.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Follow did not return after the subscription closed")
	}
}

func TestWindowRatioAfterStoreShrinks(t *testing.T) {
	tr := NewTracker([]string{"wind"}, time.Minute)
	at := time.Unix(100, 0)
	tr.Observe(events.StoreSize(registry.Primary, []uint64{1000}), at)
	tr.Observe(events.DataIngested("wind", 500), at.Add(time.Second))
	tr.Observe(events.StoreSize(registry.Primary, []uint64{100}), at.Add(2*time.Second))
	tr.Observe(events.DataIngested("wind", 500), at.Add(3*time.Second))
	tr.Observe(events.StoreSize(registry.Primary, []uint64{200}), at.Add(4*time.Second))

	s := tr.Summary("modelardb")
	if s.WindowRatio != 5 {
		t.Fatalf("window ratio = %v, want 500/100 = 5 from the new baseline", s.WindowRatio)
	}
	if s.Transferred != 200 {
		t.Fatalf("transferred = %d, want 200", s.Transferred)
	}
}

func TestDeltaNeverWraps(t *testing.T) {
	if d := delta([]point{{v: 10}, {v: 3}}); d != 0 {
		t.Fatalf("delta = %d, want 0", d)
	}
}
