// Package events carries typed simulation events from the schedulers to
// subscribers.
package events

import (
	"sync"
	"sync/atomic"
)

// DefaultBuffer is the per-subscriber queue length.
const DefaultBuffer = 256

// Event is a named payload. Names are part of the wire contract.
type Event struct {
	Name    string
	Payload any
}

// Subscription receives events published after it was created.
type Subscription struct {
	C <-chan Event

	ch      chan Event
	bus     *Bus
	dropped atomic.Uint64
	once    sync.Once
}

// Dropped returns the number of events discarded because the queue was full.
func (s *Subscription) Dropped() uint64 { return s.dropped.Load() }

// Close detaches the subscription and closes C.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.bus.remove(s)
	})
}

// Bus fans events out to subscribers. Publish never blocks: each subscriber
// gets one delivery attempt, and a full queue drops the event for that
// subscriber only. Events from one publisher arrive in publish order.
type Bus struct {
	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	buffer int
	// OnDrop is called for each dropped delivery, if set.
	OnDrop func(Event)
}

// NewBus creates a bus whose subscribers queue up to buffer events. A
// non-positive buffer uses DefaultBuffer.
func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Bus{subs: map[*Subscription]struct{}{}, buffer: buffer}
}

// Subscribe attaches a new subscriber.
func (b *Bus) Subscribe() *Subscription {
	ch := make(chan Event, b.buffer)
	s := &Subscription{C: ch, ch: ch, bus: b}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()
	return s
}

// Publish delivers ev to every current subscriber.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for s := range b.subs {
		select {
		case s.ch <- ev:
		default:
			s.dropped.Add(1)
			if b.OnDrop != nil {
				b.OnDrop(ev)
			}
		}
	}
}

// Subscribers returns the number of attached subscribers.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *Bus) remove(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[s]; ok {
		delete(b.subs, s)
		close(s.ch)
	}
}
