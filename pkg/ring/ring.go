// Package ring provides a fixed-capacity single-producer/single-consumer
// queue which is safe to share between two goroutines without locks.
package ring

import "sync/atomic"

// Ring is a bounded queue of capacity Cap()-1 usable slots.
// One slot is always left free so full and empty can be told apart
// from the two indices alone.
//
// The write index is only advanced through the Producer handle and the
// read index only through the Consumer handle. Exactly one goroutine
// may own each handle.
type Ring[T any] struct {
	buf   []T
	write atomic.Uint32
	read  atomic.Uint32
}

// Producer is the write side of a Ring.
type Producer[T any] struct {
	r *Ring[T]
}

// Consumer is the read side of a Ring.
type Consumer[T any] struct {
	r *Ring[T]
}

// New creates a Ring with the given capacity.
// The storage is allocated once here and never grows.
func New[T any](capacity int) *Ring[T] {
	if capacity < 2 {
		panic("ring: capacity must be at least 2")
	}
	return &Ring[T]{buf: make([]T, capacity)}
}

// Producer returns the write handle.
func (r *Ring[T]) Producer() Producer[T] {
	return Producer[T]{r: r}
}

// Consumer returns the read handle.
func (r *Ring[T]) Consumer() Consumer[T] {
	return Consumer[T]{r: r}
}

// Cap returns the capacity the ring was created with.
func (r *Ring[T]) Cap() int {
	return len(r.buf)
}

// Len returns the number of queued elements.
func (r *Ring[T]) Len() int {
	w, rd := r.write.Load(), r.read.Load()
	if w >= rd {
		return int(w - rd)
	}
	return len(r.buf) - int(rd-w)
}

// Free returns the number of elements which can be pushed before the
// ring becomes full.
func (r *Ring[T]) Free() int {
	return len(r.buf) - 1 - r.Len()
}

// Empty reports whether there is nothing to pop.
func (r *Ring[T]) Empty() bool {
	return r.write.Load() == r.read.Load()
}

// Full reports whether a push would fail.
func (r *Ring[T]) Full() bool {
	return r.next(r.write.Load()) == r.read.Load()
}

func (r *Ring[T]) next(i uint32) uint32 {
	if i++; i == uint32(len(r.buf)) {
		return 0
	}
	return i
}

// TryPush appends v. When the ring is full v is dropped and false is
// returned, nothing is changed.
func (p Producer[T]) TryPush(v T) bool {
	r := p.r
	w := r.write.Load()
	next := r.next(w)
	if next == r.read.Load() {
		return false
	}
	r.buf[w] = v
	r.write.Store(next)
	return true
}

// TryPushAll appends all of vs or nothing. The free space seen here can
// only grow until the push completes as the consumer never moves the
// write index.
func (p Producer[T]) TryPushAll(vs []T) bool {
	if len(vs) > p.r.Free() {
		return false
	}
	for _, v := range vs {
		p.TryPush(v)
	}
	return true
}

// Ring returns the underlying ring.
func (p Producer[T]) Ring() *Ring[T] {
	return p.r
}

// TryPop removes the oldest element. It returns false if the ring is empty.
func (c Consumer[T]) TryPop() (v T, ok bool) {
	r := c.r
	rd := r.read.Load()
	if rd == r.write.Load() {
		return
	}
	v = r.buf[rd]
	r.read.Store(r.next(rd))
	return v, true
}

// Ring returns the underlying ring.
func (c Consumer[T]) Ring() *Ring[T] {
	return c.r
}
