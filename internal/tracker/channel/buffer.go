package channel

import (
	"sync"

	api "github.com/netvoice/tracker/api/v1alpha1"
)

// Buffer is the channel's inbound message buffer: append-only within a
// generation, capacity-bounded, oldest messages evicted first. Consumers
// read with a (generation, cursor) pair; the generation is bumped whenever
// the connection is re-established, which invalidates old cursors instead of
// letting them silently point into a different message sequence.
//
// There is no gap-filling: a message evicted before it was read is gone, and
// the poll fallback is what bounds the resulting staleness.
type Buffer struct {
	mu         sync.Mutex
	msgs       []api.EventMessage
	capacity   int
	dropped    int
	generation uint64
	notify     chan struct{}
}

func newBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &Buffer{
		capacity: capacity,
		notify:   make(chan struct{}, 1),
	}
}

// Append adds a message in arrival order, evicting the oldest retained
// message when the buffer is full, and signals waiting consumers.
func (b *Buffer) Append(msg api.EventMessage) {
	b.mu.Lock()
	if len(b.msgs) == b.capacity {
		b.msgs = b.msgs[1:]
		b.dropped++
	}
	b.msgs = append(b.msgs, msg)
	b.mu.Unlock()

	select {
	case b.notify <- struct{}{}:
	default:
	}
}

// Reset clears the buffer and starts a new generation. Called on reconnect:
// the server's delivery sequence starts over, so cursors into the old
// sequence must not survive.
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.msgs = nil
	b.dropped = 0
	b.generation++
}

// Since returns all retained messages at or after the cursor, in arrival
// order, together with the generation and cursor to use on the next call.
// A cursor from an older generation restarts from the beginning of the
// current one. A cursor that fell behind the eviction horizon resumes at the
// oldest retained message.
func (b *Buffer) Since(generation uint64, cursor int) ([]api.EventMessage, uint64, int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if generation != b.generation {
		generation = b.generation
		cursor = 0
	}
	if cursor < b.dropped {
		cursor = b.dropped
	}

	start := cursor - b.dropped
	if start >= len(b.msgs) {
		return nil, generation, b.dropped + len(b.msgs)
	}

	out := make([]api.EventMessage, len(b.msgs)-start)
	copy(out, b.msgs[start:])
	return out, generation, b.dropped + len(b.msgs)
}

// Notify returns a channel that receives a signal after new messages arrive.
// The signal is coalesced; one receive may cover several appends.
func (b *Buffer) Notify() <-chan struct{} {
	return b.notify
}

// Size returns the number of retained messages.
func (b *Buffer) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.msgs)
}
