// Package ringbuf provides a fixed-capacity insertion-ordered buffer.
package ringbuf

// Buffer holds the last cap items pushed, oldest first internally.
// Pushing beyond capacity evicts from the head. Not safe for concurrent use;
// callers wrap access in their own lock.
type Buffer[T any] struct {
	items    []T
	capacity int
}

// New creates a buffer with the given capacity. Capacity must be positive.
func New[T any](capacity int) *Buffer[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Buffer[T]{
		items:    make([]T, 0, capacity),
		capacity: capacity,
	}
}

// Push appends item, evicting the oldest entries until len <= capacity.
func (b *Buffer[T]) Push(item T) {
	b.items = append(b.items, item)
	if n := len(b.items) - b.capacity; n > 0 {
		b.items = append(b.items[:0], b.items[n:]...)
	}
}

// Recent returns up to n most recently pushed items, newest first.
// This ordering is the external read contract and must not change.
func (b *Buffer[T]) Recent(n int) []T {
	if n > len(b.items) {
		n = len(b.items)
	}
	if n <= 0 {
		return nil
	}
	out := make([]T, n)
	for i := 0; i < n; i++ {
		out[i] = b.items[len(b.items)-1-i]
	}
	return out
}

// Len returns the current number of buffered items.
func (b *Buffer[T]) Len() int {
	return len(b.items)
}

// Capacity returns the configured maximum length.
func (b *Buffer[T]) Capacity() int {
	return b.capacity
}
