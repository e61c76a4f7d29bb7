// Package ring provides a fixed-capacity ring buffer. The backing slice is
// allocated once; pushes past capacity overwrite the oldest slot.
package ring

// Buffer is not safe for concurrent use. Callers guard it with their own lock.
type Buffer[T any] struct {
	items []T
	head  int // next write position
	size  int
}

func New[T any](capacity int) *Buffer[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer[T]{items: make([]T, capacity)}
}

// Push appends v, evicting the oldest element when the buffer is full.
// It reports whether an element was evicted.
func (b *Buffer[T]) Push(v T) bool {
	evicted := b.size == len(b.items)
	b.items[b.head] = v
	b.head = (b.head + 1) % len(b.items)
	if !evicted {
		b.size++
	}
	return evicted
}

// Latest returns the most recently pushed element.
func (b *Buffer[T]) Latest() (T, bool) {
	var zero T
	if b.size == 0 {
		return zero, false
	}
	idx := (b.head - 1 + len(b.items)) % len(b.items)
	return b.items[idx], true
}

// Snapshot copies the contents ordered oldest to newest.
func (b *Buffer[T]) Snapshot() []T {
	out := make([]T, 0, b.size)
	start := (b.head - b.size + len(b.items)) % len(b.items)
	for i := 0; i < b.size; i++ {
		out = append(out, b.items[(start+i)%len(b.items)])
	}
	return out
}

func (b *Buffer[T]) Len() int { return b.size }

func (b *Buffer[T]) Cap() int { return len(b.items) }

// Reset drops all elements and releases references held by the slots.
func (b *Buffer[T]) Reset() {
	var zero T
	for i := range b.items {
		b.items[i] = zero
	}
	b.head = 0
	b.size = 0
}
