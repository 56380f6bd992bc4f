package sim

import (
	"context"
	"sync"
	"time"

	"modelardb-sim/internal/events"
	"modelardb-sim/internal/logging"
	"modelardb-sim/internal/metrics"
	"modelardb-sim/internal/registry"
	"modelardb-sim/internal/state"
)

// store is one remote object store and the nodes that can report its size.
type store struct {
	key   string
	nodes []registry.Node
}

// stores groups the participating nodes of a type by object store, so a bucket
// shared by several nodes is counted once.
func (s *Simulator) stores(t registry.DeploymentType) []store {
	var out []store
	index := map[string]int{}
	for _, n := range s.reg.NodesOfType(t) {
		k := n.StoreKey()
		i, ok := index[k]
		if !ok {
			i = len(out)
			index[k] = i
			out = append(out, store{key: k})
		}
		out[i].nodes = append(out[i].nodes, n)
	}
	return out
}

func (s *Simulator) monitorLoop(ctx context.Context, spec state.Spec) {
	log := logging.FromContext(ctx).With("node_type", spec.NodeType)
	stores := s.stores(spec.NodeType)
	log.Info("monitor started", "interval", spec.Interval, "stores", len(stores))

	ticker := time.NewTicker(spec.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("monitor stopped")
			return
		case <-ticker.C:
		}
		s.monitorTick(ctx, spec.NodeType, stores)
	}
}

// monitorTick samples every store concurrently and publishes the aggregate.
// A store that cannot be sampled contributes its last known sizes.
func (s *Simulator) monitorTick(ctx context.Context, t registry.DeploymentType, stores []store) {
	sizes := make([][]uint64, len(stores))
	var wg sync.WaitGroup
	for i, st := range stores {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sizes[i] = s.sampleStore(ctx, st)
		}()
	}
	wg.Wait()

	total := make([]uint64, len(s.reg.TableNames()))
	for _, ss := range sizes {
		for j := range total {
			if j < len(ss) {
				total[j] += ss[j]
			}
		}
	}
	s.state.SetTransferred(t, total)
	metrics.SetTransferred(string(t), s.reg.TableNames(), total)
	s.bus.Publish(events.StoreSize(t, total))
}

// sampleStore asks the store's nodes in order until one answers.
func (s *Simulator) sampleStore(ctx context.Context, st store) []uint64 {
	log := logging.FromContext(ctx)
	if s.backend.Sampler != nil {
		for _, n := range st.nodes {
			sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.SampleTimeout)
			sizes, err := s.backend.Sampler.TableSizes(sctx, n)
			cancel()
			if err == nil {
				return s.state.RecordStore(st.key, sizes)
			}
			log.Warn("sample failed", "node", n.URL, "node_type", n.Type, "err", err)
			metrics.RecordSampleFailure(n.URL)
			s.bus.Publish(events.Unreachable(n, err))
		}
	}
	return s.state.LastKnown(st.key)
}
