// Package state holds the process-wide simulation counters and schedule
// handles. All methods are safe for concurrent use and never block on I/O.
package state

import (
	"slices"
	"sort"
	"sync"

	"github.com/google/uuid"

	"modelardb-sim/internal/registry"
)

// Phase is the lifecycle position of the simulation.
type Phase string

const (
	Uninitialized Phase = "uninitialized"
	Running       Phase = "running"
	Reset         Phase = "reset"
)

// TableTotal is one table's running ingested byte count.
type TableTotal struct {
	Table string `json:"table"`
	Bytes uint64 `json:"bytes"`
}

// Snapshot is a consistent copy of the state.
type Snapshot struct {
	Phase       Phase               `json:"phase"`
	RunID       string              `json:"run_id,omitempty"`
	Ingested    []TableTotal        `json:"ingested"`
	Transferred map[string][]uint64 `json:"transferred"`
	Flushing    []string            `json:"flushing"`
	Schedules   []Spec              `json:"schedules"`
}

// IngestedTotal sums the ingested bytes of every table.
func (s Snapshot) IngestedTotal() uint64 {
	var sum uint64
	for _, t := range s.Ingested {
		sum += t.Bytes
	}
	return sum
}

// State is the simulation state shared by every scheduler.
type State struct {
	mu          sync.Mutex
	tables      []string
	phase       Phase
	runID       string
	ingested    map[string]uint64
	transferred map[registry.DeploymentType][]uint64
	stores      map[string][]uint64
	flushing    map[string]bool
	schedules   map[string]*Schedule
}

// New creates uninitialized state for the given tables, in catalog order.
func New(tables []string) *State {
	s := &State{
		tables:    slices.Clone(tables),
		phase:     Uninitialized,
		flushing:  map[string]bool{},
		schedules: map[string]*Schedule{},
	}
	s.zero()
	return s
}

func (s *State) zero() {
	s.ingested = make(map[string]uint64, len(s.tables))
	for _, t := range s.tables {
		s.ingested[t] = 0
	}
	s.transferred = map[registry.DeploymentType][]uint64{}
	for _, t := range registry.DeploymentTypes {
		s.transferred[t] = make([]uint64, len(s.tables))
	}
	s.stores = map[string][]uint64{}
}

// Begin zeroes the counters, assigns a new run ID, and enters Running.
// Schedules must have been taken and stopped by the caller.
func (s *State) Begin() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.zero()
	s.runID = uuid.New().String()
	s.phase = Running
	return s.runID
}

// Clear zeroes the counters and enters Reset. Flush marks survive because an
// upload already in flight still owns its node.
func (s *State) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.zero()
	s.runID = ""
	s.phase = Reset
}

// Phase returns the lifecycle phase.
func (s *State) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// RunID returns the current run identifier, empty outside Running.
func (s *State) RunID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runID
}

// AddIngested adds n bytes to a table and returns the new total.
func (s *State) AddIngested(table string, n uint64) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ingested[table] += n
	return s.ingested[table]
}

// Ingested returns a table's running total.
func (s *State) Ingested(table string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ingested[table]
}

// RecordStore stores a successful sample of one remote store and returns the
// effective sizes. Remote stores only grow through flushes, so a sample
// smaller than the last known value keeps the last known value.
func (s *State) RecordStore(key string, sizes []uint64) []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.stores[key]
	eff := make([]uint64, len(s.tables))
	for i := range eff {
		if i < len(sizes) {
			eff[i] = sizes[i]
		}
		if i < len(prev) {
			eff[i] = max(eff[i], prev[i])
		}
	}
	s.stores[key] = eff
	return slices.Clone(eff)
}

// LastKnown returns the last recorded sizes of a store, zeros if never sampled.
func (s *State) LastKnown(key string) []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.stores[key]; ok {
		return slices.Clone(prev)
	}
	return make([]uint64, len(s.tables))
}

// SetTransferred replaces the aggregated remote sizes of a deployment type.
func (s *State) SetTransferred(t registry.DeploymentType, sizes []uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transferred[t] = slices.Clone(sizes)
}

// Transferred returns the aggregated remote sizes of a deployment type.
func (s *State) Transferred(t registry.DeploymentType) []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.transferred[t])
}

// BeginFlush marks a node as flushing. It returns false if a flush is already
// in flight for the node.
func (s *State) BeginFlush(url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.flushing[url] {
		return false
	}
	s.flushing[url] = true
	return true
}

// EndFlush clears a node's flushing mark.
func (s *State) EndFlush(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.flushing, url)
}

// Flushing reports whether a node has a flush in flight.
func (s *State) Flushing(url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushing[url]
}

// Install registers a schedule under its key. The slot must be empty; use
// Take first to replace a loop.
func (s *State) Install(sched *Schedule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schedules[sched.Spec.Key()] = sched
}

// Take removes and returns the schedule under key, nil if none.
func (s *State) Take(key string) *Schedule {
	s.mu.Lock()
	defer s.mu.Unlock()
	sched := s.schedules[key]
	delete(s.schedules, key)
	return sched
}

// Remove deletes sched if it still occupies its slot. Finished loops call it so
// they do not evict a replacement.
func (s *State) Remove(sched *Schedule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := sched.Spec.Key()
	if s.schedules[key] == sched {
		delete(s.schedules, key)
	}
}

// TakeAll removes and returns every schedule, ordered by key.
func (s *State) TakeAll() []*Schedule {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.schedules))
	for k := range s.schedules {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]*Schedule, 0, len(keys))
	for _, k := range keys {
		out = append(out, s.schedules[k])
	}
	s.schedules = map[string]*Schedule{}
	return out
}

// Snapshot copies the state.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		Phase:       s.phase,
		RunID:       s.runID,
		Ingested:    make([]TableTotal, 0, len(s.tables)),
		Transferred: map[string][]uint64{},
		Flushing:    []string{},
		Schedules:   []Spec{},
	}
	for _, t := range s.tables {
		snap.Ingested = append(snap.Ingested, TableTotal{Table: t, Bytes: s.ingested[t]})
	}
	for t, sizes := range s.transferred {
		snap.Transferred[string(t)] = slices.Clone(sizes)
	}
	for url := range s.flushing {
		snap.Flushing = append(snap.Flushing, url)
	}
	sort.Strings(snap.Flushing)
	for _, sched := range s.schedules {
		snap.Schedules = append(snap.Schedules, sched.Spec)
	}
	sort.Slice(snap.Schedules, func(i, j int) bool { return snap.Schedules[i].Key() < snap.Schedules[j].Key() })
	return snap
}
