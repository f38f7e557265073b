// Package buffer provides the FIFO queue that decouples the routing hot path
// from slower event consumers such as the journal writer.
package buffer

import (
	"context"
	"sync"
)

// Growable is a thread-safe FIFO ring buffer that doubles its capacity when
// it reaches 70% full, up to an optional ceiling. Once the ceiling is reached
// further sends are dropped and counted.
type Growable[T any] struct {
	mu       sync.Mutex
	cond     *sync.Cond
	buf      []T
	head     int // read position
	tail     int // write position
	count    int
	capacity int
	max      int // 0 = unbounded
	closed   bool

	// Stats
	totalIn     int64
	totalOut    int64
	dropped     int64
	resizeCount int
}

// Stats contains buffer statistics.
type Stats struct {
	Count       int
	Capacity    int
	TotalIn     int64
	TotalOut    int64
	Dropped     int64
	ResizeCount int
}

// New creates a buffer with the given initial capacity. maxCapacity <= 0
// leaves the buffer unbounded.
func New[T any](initialCapacity, maxCapacity int) *Growable[T] {
	if initialCapacity < 1 {
		initialCapacity = 1
	}
	if maxCapacity > 0 && maxCapacity < initialCapacity {
		maxCapacity = initialCapacity
	}
	b := &Growable[T]{
		buf:      make([]T, initialCapacity),
		capacity: initialCapacity,
		max:      maxCapacity,
	}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Send appends item. It returns false if the buffer is closed or full at its
// ceiling.
func (b *Growable[T]) Send(item T) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return false
	}

	threshold := (b.capacity * 70) / 100
	if threshold < 1 {
		threshold = 1
	}
	if b.count+1 >= threshold && (b.max == 0 || b.capacity < b.max) {
		b.grow()
	}
	if b.count == b.capacity {
		b.dropped++
		return false
	}

	b.buf[b.tail] = item
	b.tail = (b.tail + 1) % b.capacity
	b.count++
	b.totalIn++

	b.cond.Signal()
	return true
}

// Receive blocks until an item is available, the buffer is closed and
// empty, or ctx is done.
func (b *Growable[T]) Receive(ctx context.Context) (T, bool) {
	stop := context.AfterFunc(ctx, func() {
		b.mu.Lock()
		b.cond.Broadcast()
		b.mu.Unlock()
	})
	defer stop()

	b.mu.Lock()
	defer b.mu.Unlock()

	for b.count == 0 && !b.closed && ctx.Err() == nil {
		b.cond.Wait()
	}

	if b.count == 0 {
		var zero T
		return zero, false
	}
	return b.pop(), true
}

// TryReceive returns the oldest item without blocking.
func (b *Growable[T]) TryReceive() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		var zero T
		return zero, false
	}
	return b.pop(), true
}

// DrainTo removes up to max items (all when max <= 0) in FIFO order.
func (b *Growable[T]) DrainTo(max int) []T {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		return nil
	}

	n := b.count
	if max > 0 && max < n {
		n = max
	}

	result := make([]T, n)
	for i := 0; i < n; i++ {
		result[i] = b.pop()
	}
	return result
}

// Close stops further sends and wakes blocked receivers. Items already
// buffered can still be received.
func (b *Growable[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	b.cond.Broadcast()
}

// Len returns the number of buffered items.
func (b *Growable[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Cap returns the current capacity.
func (b *Growable[T]) Cap() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.capacity
}

// Stats returns buffer statistics.
func (b *Growable[T]) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		Count:       b.count,
		Capacity:    b.capacity,
		TotalIn:     b.totalIn,
		TotalOut:    b.totalOut,
		Dropped:     b.dropped,
		ResizeCount: b.resizeCount,
	}
}

// pop removes the head item. Must be called with lock held and count > 0.
func (b *Growable[T]) pop() T {
	item := b.buf[b.head]
	var zero T
	b.buf[b.head] = zero
	b.head = (b.head + 1) % b.capacity
	b.count--
	b.totalOut++
	return item
}

// grow doubles the capacity, clamped to max. Must be called with lock held.
func (b *Growable[T]) grow() {
	newCapacity := b.capacity * 2
	if b.max > 0 && newCapacity > b.max {
		newCapacity = b.max
	}
	if newCapacity == b.capacity {
		return
	}
	newBuf := make([]T, newCapacity)

	if b.count > 0 {
		if b.head < b.tail {
			copy(newBuf, b.buf[b.head:b.tail])
		} else {
			n := copy(newBuf, b.buf[b.head:])
			copy(newBuf[n:], b.buf[:b.tail])
		}
	}

	b.buf = newBuf
	b.head = 0
	b.tail = b.count
	b.capacity = newCapacity
	b.resizeCount++
}
