package sim

import (
	"context"
	"time"

	"modelardb-sim/internal/events"
	"modelardb-sim/internal/logging"
	"modelardb-sim/internal/metrics"
	"modelardb-sim/internal/registry"
	"modelardb-sim/internal/state"
)

// ingestLoop writes one batch per tick. Ticks are sequential, so a table's
// running total never skips or repeats a batch.
func (s *Simulator) ingestLoop(ctx context.Context, spec state.Spec) {
	t, _ := s.reg.Table(spec.Table)
	log := logging.FromContext(ctx).With("table", t.Name)
	log.Info("ingestion started", "rows_per_tick", spec.Rows, "ticks", spec.Ticks, "bytes_per_row", t.BytesPerRow())

	ticker := time.NewTicker(s.opts.Tick)
	defer ticker.Stop()

	for n := 1; ; n++ {
		select {
		case <-ctx.Done():
			log.Info("ingestion stopped")
			return
		case <-ticker.C:
		}
		if ctx.Err() != nil {
			log.Info("ingestion stopped")
			return
		}
		if err := s.ingestTick(ctx, t, spec.Rows); err != nil {
			log.Warn("ingestion tick skipped", "err", err)
		}
		if spec.Ticks > 0 && n >= spec.Ticks {
			log.Info("ingestion finished", "ticks", n)
			return
		}
	}
}

// ingestTick generates and writes one batch, then commits and publishes its
// size. The write is not cancelled by a replacement so a tick in flight
// completes.
func (s *Simulator) ingestTick(ctx context.Context, t registry.Table, rows uint32) error {
	batch := s.gen.Batch(t, int(rows))
	wctx := context.WithoutCancel(ctx)
	if rows > 0 && s.backend.Sink != nil {
		if err := s.backend.Sink.Write(wctx, batch); err != nil {
			return err
		}
		for _, m := range s.backend.Mirrors {
			if err := m.Write(wctx, batch); err != nil {
				logging.FromContext(ctx).Warn("mirror write failed", "table", t.Name, "err", err)
			}
		}
	}
	total := s.state.AddIngested(t.Name, batch.Size)
	metrics.RecordIngested(t.Name, batch.Size)
	s.bus.Publish(events.DataIngested(t.Name, batch.Size))
	logging.FromContext(ctx).Debug("batch ingested", "table", t.Name, "rows", rows, "size", batch.Size, "total", total)
	return nil
}
