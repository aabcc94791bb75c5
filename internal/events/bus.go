package events

import (
	"sync"

	"github.com/boristopalov/abby/internal/model"
)

// Bus is a per-session fan-in/fan-out of Events. Multiple producers
// call Publish concurrently; each is delivered to the single
// subscriber in the order that producer published (spec.md §4.6's
// ordering guarantee: "events produced by a single producer are
// delivered in production order. Events from distinct producers may
// interleave."). This holds because each Publish call fully completes
// its channel send (or buffered enqueue) before returning, so a
// producer's own sequential calls are strictly ordered by call order.
type Bus struct {
	mu     sync.Mutex
	ch     chan Event
	closed bool
}

// NewBus creates a Bus with the given outbound buffer size. A small
// buffer absorbs bursts (e.g. a fast token stream) without blocking
// producers on a slow subscriber for more than the buffer depth.
func NewBus(buffer int) *Bus {
	return &Bus{ch: make(chan Event, buffer)}
}

// Publish enqueues ev for delivery. Publish on a closed Bus is a
// silent no-op: producers (observer commits, agent turns) may outlive
// a subscriber that has already disconnected.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return
	}
	defer func() { recover() }() // guards a send racing a concurrent Close
	b.ch <- ev
}

// Events returns the receive-only channel the subscriber reads from.
func (b *Bus) Events() <-chan Event {
	return b.ch
}

// Close stops accepting further publishes and closes the channel, so
// a ranging subscriber's loop terminates.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	close(b.ch)
}

// PublishParameterChange satisfies internal/observer.Publisher,
// letting a session wire its Bus directly to its Observer.
func (b *Bus) PublishParameterChange(c model.ParameterChange) {
	b.Publish(ParameterChanged(c))
}
