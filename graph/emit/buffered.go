package emit

import "sync"

// BufferedEmitter captures events in a bounded in-memory ring.
//
// Useful for CLIs that render a run transcript after completion and for
// tests asserting on emitted events. When the buffer is full the oldest
// events are dropped — observability must never block or grow without bound.
type BufferedEmitter struct {
	mu      sync.Mutex
	events  []Event
	max     int
	dropped int
}

// DefaultBufferSize is the event capacity when NewBufferedEmitter is given a
// non-positive size.
const DefaultBufferSize = 1024

// NewBufferedEmitter creates a BufferedEmitter holding at most size events.
func NewBufferedEmitter(size int) *BufferedEmitter {
	if size <= 0 {
		size = DefaultBufferSize
	}
	return &BufferedEmitter{max: size}
}

// Emit appends the event, evicting the oldest when at capacity.
func (b *BufferedEmitter) Emit(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.events) >= b.max {
		b.events = b.events[1:]
		b.dropped++
	}
	b.events = append(b.events, event)
}

// Events returns a copy of the buffered events in emission order.
func (b *BufferedEmitter) Events() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Event, len(b.events))
	copy(out, b.events)
	return out
}

// Dropped reports how many events were evicted due to the capacity bound.
func (b *BufferedEmitter) Dropped() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// Reset clears the buffer and the dropped counter.
func (b *BufferedEmitter) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = nil
	b.dropped = 0
}
