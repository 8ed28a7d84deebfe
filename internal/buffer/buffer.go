// Package buffer accumulates deletion events between flush cycles.
package buffer

import (
	"sync"

	"github.com/roach88/deleteaudit/internal/audit"
)

// Buffer is a concurrency-safe accumulator of deletion events.
//
// Append is called from the host's edit callback; DrainAll from the flush
// cycle. Both take the same mutex, so an event lands either in a drained
// batch or in the buffer afterwards, never both and never neither.
//
// The pending flag is raised by Append and lowered only by SettleIfEmpty,
// under the same mutex as the slice.
type Buffer struct {
	mu      sync.Mutex
	events  []audit.DeletionEvent
	pending bool
	signal  chan struct{} // buffered, size 1
}

// New creates an empty buffer.
func New() *Buffer {
	return &Buffer{
		events: make([]audit.DeletionEvent, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Append adds events in order. Appending nothing leaves the pending flag
// untouched.
func (b *Buffer) Append(events ...audit.DeletionEvent) {
	if len(events) == 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.events = append(b.events, events...)
	b.pending = true

	// Non-blocking; the size-1 buffer coalesces signals.
	select {
	case b.signal <- struct{}{}:
	default:
	}
}

// DrainAll removes and returns every buffered event in append order.
// The bool reports whether any events existed.
func (b *Buffer) DrainAll() ([]audit.DeletionEvent, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.events) == 0 {
		return nil, false
	}

	batch := b.events
	b.events = make([]audit.DeletionEvent, 0, cap(batch))
	return batch, true
}

// Pending reports whether deletions have been recorded since the last
// successful reconcile.
func (b *Buffer) Pending() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pending
}

// SettleIfEmpty lowers the pending flag after a successful reconcile.
// It refuses when events arrived after the last drain, so those events keep
// the flag raised. Returns whether the flag was lowered.
func (b *Buffer) SettleIfEmpty() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.events) > 0 {
		return false
	}
	b.pending = false
	return true
}

// Len returns the number of buffered events.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

// Wait returns a channel that receives after Append. Used by tests and
// tooling that want to react to new deletions without polling.
func (b *Buffer) Wait() <-chan struct{} {
	return b.signal
}
