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

// flushLoop triggers a flush of every edge node of one deployment type per
// tick. A node whose previous flush is still running is skipped for that
// tick; missed ticks are never queued.
func (s *Simulator) flushLoop(ctx context.Context, spec state.Spec) {
	log := logging.FromContext(ctx).With("node_type", spec.NodeType)
	nodes := s.reg.EdgeNodes(spec.NodeType)
	log.Info("flush loop started", "interval", spec.Interval, "nodes", len(nodes))

	ticker := time.NewTicker(spec.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("flush loop stopped")
			return
		case <-ticker.C:
		}
		for _, n := range nodes {
			s.triggerFlush(ctx, n)
		}
	}
}

func (s *Simulator) triggerFlush(ctx context.Context, n registry.Node) {
	log := logging.FromContext(ctx)
	if !s.state.BeginFlush(n.URL) {
		log.Info("flush skipped, previous flush still running", "node", n.URL)
		metrics.RecordFlushSkipped(n.URL)
		return
	}
	s.bus.Publish(events.Flushing(n.Type, n.URL))

	s.flushes.Add(1)
	go func() {
		defer s.flushes.Done()
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.FlushTimeout)
		defer cancel()

		start := time.Now()
		var err error
		if s.backend.Flusher != nil {
			err = s.backend.Flusher.Flush(fctx, n)
		}
		elapsed := time.Since(start)
		s.state.EndFlush(n.URL)

		status := "ok"
		if err != nil {
			status = "error"
			log.Warn("flush failed", "node", n.URL, "node_type", n.Type, "err", err)
			s.bus.Publish(events.Unreachable(n, err))
		} else {
			log.Debug("flush finished", "node", n.URL, "elapsed", elapsed)
		}
		metrics.RecordFlush(n.URL, string(n.Type), status, elapsed.Seconds())
		s.bus.Publish(events.Flushing(n.Type, s.stillFlushing(n.Type)))
	}()
}

// stillFlushing returns an edge node of type t with a flush in flight, or "".
func (s *Simulator) stillFlushing(t registry.DeploymentType) string {
	for _, n := range s.reg.EdgeNodes(t) {
		if s.state.Flushing(n.URL) {
			return n.URL
		}
	}
	return ""
}
