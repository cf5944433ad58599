// Package ringbuf provides a fixed-capacity, thread-safe ring buffer used
// for sample history. Writes past capacity overwrite the oldest entries, so
// a reader always sees the most recent window.
package ringbuf

import (
	"fmt"
	"sync"
)

// Ring is a generic overwrite-oldest ring buffer.
type Ring[T any] struct {
	mu    sync.Mutex
	data  []T
	head  int
	count int
}

// New creates a ring buffer with the given capacity.
func New[T any](capacity int) (*Ring[T], error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("ringbuf: capacity must be positive, got %d", capacity)
	}
	return &Ring[T]{data: make([]T, capacity)}, nil
}

// Push appends one item, overwriting the oldest when full.
func (r *Ring[T]) Push(item T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[r.head] = item
	r.head = (r.head + 1) % len(r.data)
	if r.count < len(r.data) {
		r.count++
	}
}

// PushAll appends items in order, keeping only the newest capacity entries.
func (r *Ring[T]) PushAll(items []T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, item := range items {
		r.data[r.head] = item
		r.head = (r.head + 1) % len(r.data)
		if r.count < len(r.data) {
			r.count++
		}
	}
}

// Snapshot returns the buffered items oldest-first.
func (r *Ring[T]) Snapshot() []T {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make([]T, r.count)
	start := r.head - r.count
	if start < 0 {
		start += len(r.data)
	}
	for i := 0; i < r.count; i++ {
		result[i] = r.data[(start+i)%len(r.data)]
	}
	return result
}

// Last returns up to n of the newest items, oldest-first.
func (r *Ring[T]) Last(n int) []T {
	snapshot := r.Snapshot()
	if n >= len(snapshot) {
		return snapshot
	}
	return snapshot[len(snapshot)-n:]
}

// Len returns the number of buffered items.
func (r *Ring[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Cap returns the buffer capacity.
func (r *Ring[T]) Cap() int {
	return len(r.data)
}

// Clear discards all buffered items.
func (r *Ring[T]) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.head = 0
	r.count = 0
}
