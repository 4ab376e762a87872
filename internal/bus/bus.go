// Package bus implements a bounded broadcast channel for create events.
//
// One producer appends events to a shared ring; any number of subscribers
// read through independent cursors. Publishing never waits for readers: when
// the ring wraps, the slowest readers lose the overwritten entries and are
// told so explicitly via LagError instead of silently receiving stale data.
package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"pumpfeed/internal/domain"
)

// DefaultCapacity is the number of recent events retained for slow readers.
const DefaultCapacity = 1000

// ErrClosed is returned by Next once the bus is closed and the cursor has
// drained all retained events.
var ErrClosed = errors.New("bus: closed")

// LagError reports that a subscriber fell behind by more than the bus
// capacity. The cursor has been advanced to the oldest retained event; the
// following Next call resumes delivery from there.
type LagError struct {
	// Missed is the number of events overwritten before the cursor caught up.
	Missed uint64
}

func (e *LagError) Error() string {
	return fmt.Sprintf("bus: subscriber lagged, %d events dropped", e.Missed)
}

// Bus is a single-producer multi-consumer broadcast ring.
type Bus struct {
	mu     sync.Mutex
	buf    []domain.CreateEvent
	next   uint64 // sequence number assigned to the next published event
	closed bool
	wakeup chan struct{} // closed and replaced on every publish
}

// New creates a bus retaining up to capacity events. Non-positive capacity
// falls back to DefaultCapacity.
func New(capacity int) *Bus {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Bus{
		buf:    make([]domain.CreateEvent, capacity),
		wakeup: make(chan struct{}),
	}
}

// Capacity returns the number of events the bus retains.
func (b *Bus) Capacity() int {
	return len(b.buf)
}

// Publish appends an event to the ring, overwriting the oldest entry when
// full, and wakes all waiting subscribers. It never blocks. Publishing on a
// closed bus is a no-op.
func (b *Bus) Publish(ev domain.CreateEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	b.buf[b.next%uint64(len(b.buf))] = ev
	b.next++

	close(b.wakeup)
	b.wakeup = make(chan struct{})
}

// Close marks the bus closed and wakes all waiting subscribers. Subscribers
// drain any retained events, then receive ErrClosed.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	close(b.wakeup)
}

// Subscription is an independent read cursor over the bus. It is not safe
// for concurrent use by multiple goroutines; each consumer owns its own.
type Subscription struct {
	bus    *Bus
	cursor uint64
}

// Subscribe attaches a new cursor positioned at "now": only events published
// after this call are delivered, history is not replayed. Dropping the
// returned subscription detaches it; no explicit cleanup is needed and other
// subscribers are unaffected.
func (b *Bus) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	return &Subscription{bus: b, cursor: b.next}
}

// Next blocks until an event is available, the context is done, or the bus
// closes. If the cursor fell behind by more than the bus capacity it returns
// a *LagError exactly once for the gap and resumes from the oldest retained
// event on the following call.
func (s *Subscription) Next(ctx context.Context) (domain.CreateEvent, error) {
	b := s.bus
	for {
		b.mu.Lock()

		var oldest uint64
		if b.next > uint64(len(b.buf)) {
			oldest = b.next - uint64(len(b.buf))
		}

		if s.cursor < oldest {
			missed := oldest - s.cursor
			s.cursor = oldest
			b.mu.Unlock()
			return domain.CreateEvent{}, &LagError{Missed: missed}
		}

		if s.cursor < b.next {
			ev := b.buf[s.cursor%uint64(len(b.buf))]
			s.cursor++
			b.mu.Unlock()
			return ev, nil
		}

		if b.closed {
			b.mu.Unlock()
			return domain.CreateEvent{}, ErrClosed
		}

		wakeup := b.wakeup
		b.mu.Unlock()

		select {
		case <-wakeup:
		case <-ctx.Done():
			return domain.CreateEvent{}, ctx.Err()
		}
	}
}
