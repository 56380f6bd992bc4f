// Simulator driving ingestion, flush, and monitor loops against a node fleet
package sim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"modelardb-sim/internal/events"
	"modelardb-sim/internal/logging"
	"modelardb-sim/internal/metrics"
	"modelardb-sim/internal/registry"
	"modelardb-sim/internal/state"
	"modelardb-sim/internal/telemetry"
)

var (
	ErrUnknownTable    = errors.New("unknown table")
	ErrInvalidInterval = errors.New("interval must be positive")
	ErrInvalidTicks    = errors.New("tick count must not be negative")
	ErrNotRunning      = errors.New("simulation is not running, create tables first")
	ErrClosed          = errors.New("simulator closed")
)

// Options tune the simulator. Zero values pick the defaults.
type Options struct {
	// Tick is the ingestion tick interval.
	Tick time.Duration
	// SampleTimeout bounds one node's size query.
	SampleTimeout time.Duration
	// FlushTimeout bounds one node's flush.
	FlushTimeout time.Duration
	Rand         *rand.Rand
	Now          func() time.Time
}

const (
	DefaultTick          = time.Second
	DefaultSampleTimeout = 5 * time.Second
	DefaultFlushTimeout  = time.Minute
)

// Simulator owns the simulation state and every scheduled loop. Commands are
// serialized; loops run concurrently and never take the command lock.
type Simulator struct {
	reg     *registry.Registry
	backend Backend
	bus     *events.Bus
	state   *state.State
	gen     *telemetry.Generator
	opts    Options

	cmdMu   sync.Mutex
	base    context.Context
	cancel  context.CancelFunc
	closed  bool
	flushes sync.WaitGroup
}

// New creates a simulator in the Uninitialized phase. Loops log through
// logger.
func New(reg *registry.Registry, backend Backend, bus *events.Bus, opts Options, logger *slog.Logger) *Simulator {
	if opts.Tick <= 0 {
		opts.Tick = DefaultTick
	}
	if opts.SampleTimeout <= 0 {
		opts.SampleTimeout = DefaultSampleTimeout
	}
	if opts.FlushTimeout <= 0 {
		opts.FlushTimeout = DefaultFlushTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	base, cancel := context.WithCancel(logging.NewContext(context.Background(), logger))
	return &Simulator{
		reg:     reg,
		backend: backend,
		bus:     bus,
		state:   state.New(reg.TableNames()),
		gen:     telemetry.NewGenerator(opts.Rand, opts.Now),
		opts:    opts,
		base:    base,
		cancel:  cancel,
	}
}

// Registry returns the catalog the simulator runs against.
func (s *Simulator) Registry() *registry.Registry { return s.reg }

// Bus returns the event bus.
func (s *Simulator) Bus() *events.Bus { return s.bus }

// Snapshot returns a consistent copy of the simulation state.
func (s *Simulator) Snapshot() state.Snapshot { return s.state.Snapshot() }

// CreateTables recreates the tables in the storage engine, zeroes every
// counter, and restarts the loops that were active. Recreating while running
// replaces all loops.
func (s *Simulator) CreateTables(ctx context.Context) error {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()
	if s.closed {
		return ErrClosed
	}
	log := logging.FromContext(s.base)

	stopped := s.stopAll()
	if s.backend.Tables != nil {
		if err := s.backend.Tables.CreateTables(ctx); err != nil {
			for _, spec := range stopped {
				s.start(spec)
			}
			return fmt.Errorf("create tables: %w", err)
		}
	}
	runID := s.state.Begin()
	metrics.Reset()
	for _, spec := range stopped {
		s.start(spec)
	}
	log.Info("tables created", "run_id", runID, "tables", s.reg.TableNames(), "restarted", len(stopped))
	return nil
}

// IngestIntoTable starts or replaces the ingestion loop of a table with the
// given rows per tick. A positive ticks ends the loop after that many ticks;
// 0 runs until replaced or reset.
func (s *Simulator) IngestIntoTable(table string, rows uint32, ticks int) error {
	if _, ok := s.reg.Table(table); !ok {
		return fmt.Errorf("ingest into %q: %w", table, ErrUnknownTable)
	}
	if ticks < 0 {
		return fmt.Errorf("ingest into %q: %w", table, ErrInvalidTicks)
	}
	return s.command(state.Spec{Kind: state.KindIngest, Table: table, Rows: rows, Ticks: ticks})
}

// FlushNodes starts or replaces the flush loop of every deployment type.
func (s *Simulator) FlushNodes(interval time.Duration) error {
	return s.everyType(state.KindFlush, interval)
}

// MonitorNodes starts or replaces the remote store monitor of every
// deployment type.
func (s *Simulator) MonitorNodes(interval time.Duration) error {
	return s.everyType(state.KindMonitor, interval)
}

// MonitorRemoteObjectStores is MonitorNodes under the name the dashboard uses.
func (s *Simulator) MonitorRemoteObjectStores(interval time.Duration) error {
	return s.MonitorNodes(interval)
}

func (s *Simulator) everyType(kind state.Kind, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("%s every %s: %w", kind, interval, ErrInvalidInterval)
	}
	specs := make([]state.Spec, 0, len(registry.DeploymentTypes))
	for _, t := range registry.DeploymentTypes {
		specs = append(specs, state.Spec{Kind: kind, NodeType: t, Interval: interval})
	}
	return s.command(specs...)
}

func (s *Simulator) command(specs ...state.Spec) error {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.state.Phase() != state.Running {
		return ErrNotRunning
	}
	for _, spec := range specs {
		s.start(spec)
	}
	return nil
}

// ResetState cancels every loop and zeroes every counter. The registries are
// kept.
func (s *Simulator) ResetState() {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()
	s.stopAll()
	s.state.Clear()
	metrics.Reset()
	logging.FromContext(s.base).Info("simulation reset")
}

// Run blocks until ctx is done, then closes the simulator.
func (s *Simulator) Run(ctx context.Context) {
	<-ctx.Done()
	s.Close()
}

// Close stops every loop and waits for in-flight flushes.
func (s *Simulator) Close() {
	s.cmdMu.Lock()
	if s.closed {
		s.cmdMu.Unlock()
		return
	}
	s.closed = true
	s.stopAll()
	s.cancel()
	s.cmdMu.Unlock()
	s.flushes.Wait()
}

// start replaces the loop under spec's key. The old loop has exited when the
// new one is installed. Callers hold cmdMu.
func (s *Simulator) start(spec state.Spec) {
	if old := s.state.Take(spec.Key()); old != nil {
		old.Stop()
	}
	sched, ctx := state.NewSchedule(s.base, spec, s.opts.Now())
	s.state.Install(sched)
	var loop func(context.Context, state.Spec)
	switch spec.Kind {
	case state.KindIngest:
		loop = s.ingestLoop
	case state.KindFlush:
		loop = s.flushLoop
	case state.KindMonitor:
		loop = s.monitorLoop
	}
	go func() {
		defer sched.Finish()
		defer s.state.Remove(sched)
		loop(ctx, spec)
	}()
}

// stopAll cancels every loop, waits for them, and returns their specs.
func (s *Simulator) stopAll() []state.Spec {
	scheds := s.state.TakeAll()
	specs := make([]state.Spec, 0, len(scheds))
	for _, sched := range scheds {
		sched.Stop()
		specs = append(specs, sched.Spec)
	}
	return specs
}
