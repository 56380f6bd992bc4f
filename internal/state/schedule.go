package state

import (
	"context"
	"fmt"
	"time"

	"modelardb-sim/internal/registry"
)

// Kind names a scheduled loop.
type Kind string

const (
	KindIngest  Kind = "ingest"
	KindFlush   Kind = "flush"
	KindMonitor Kind = "monitor"
)

// Spec holds the parameters a loop was started with, so it can be restarted.
type Spec struct {
	Kind     Kind                    `json:"kind"`
	Table    string                  `json:"table,omitempty"`
	Rows     uint32                  `json:"rows,omitempty"`
	Ticks    int                     `json:"ticks,omitempty"`
	NodeType registry.DeploymentType `json:"node_type,omitempty"`
	Interval time.Duration           `json:"interval,omitempty"`
}

// Key is the logical slot a loop occupies. At most one loop runs per key.
func (s Spec) Key() string {
	switch s.Kind {
	case KindIngest:
		return fmt.Sprintf("%s/%s", s.Kind, s.Table)
	default:
		return fmt.Sprintf("%s/%s", s.Kind, s.NodeType)
	}
}

// Schedule is the cancellation handle of a running loop.
type Schedule struct {
	Spec    Spec
	Started time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

// NewSchedule derives the loop context from parent. The loop must call Finish
// when it returns.
func NewSchedule(parent context.Context, spec Spec, now time.Time) (*Schedule, context.Context) {
	ctx, cancel := context.WithCancel(parent)
	return &Schedule{Spec: spec, Started: now, cancel: cancel, done: make(chan struct{})}, ctx
}

// Finish marks the loop as exited.
func (s *Schedule) Finish() {
	s.cancel()
	close(s.done)
}

// Done is closed once the loop has exited.
func (s *Schedule) Done() <-chan struct{} { return s.done }

// Stop cancels the loop and waits for it to exit. A tick already in flight
// completes first.
func (s *Schedule) Stop() {
	s.cancel()
	<-s.done
}
