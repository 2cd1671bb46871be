// Package ring implements a bounded single-consumer ring buffer with
// support for multiple concurrent producers, used to hand order
// requests from arbitrary caller goroutines to the single matching
// worker goroutine.
package ring

import (
	"errors"
	"runtime"
	"sync/atomic"
)

// ErrInvalidCapacity is returned by New when capacity is not a power of
// two.
var ErrInvalidCapacity = errors.New("ring: capacity must be a power of two")

type cell[T any] struct {
	// written flags whether val currently holds an unconsumed item.
	// The padding only rounds the flag up to eight bytes; cells are not
	// padded or aligned to a cache line, so adjacent cells can share one.
	written atomic.Bool
	_       [7]byte
	val     T
}

// Buffer is a bounded MPSC (multi-producer, single-consumer) ring.
// Producers may call Push concurrently from any goroutine; Pop must
// only ever be called from one goroutine at a time.
type Buffer[T any] struct {
	mask uint64
	buf  []cell[T]

	// head is claimed by producers via atomic fetch-add; tail is only
	// ever touched by the single consumer.
	head atomic.Uint64
	_    [56]byte
	tail uint64
}

// New constructs a Buffer with the given capacity, which must be a
// power of two (so slot selection can use a mask instead of a modulo).
func New[T any](capacity int) (*Buffer[T], error) {
	if capacity <= 0 || capacity&(capacity-1) != 0 {
		return nil, ErrInvalidCapacity
	}
	return &Buffer[T]{
		buf:  make([]cell[T], capacity),
		mask: uint64(capacity - 1),
	}, nil
}

// Push claims the next slot and writes v into it, spinning if the
// buffer is full (the slot about to be claimed still holds an
// unconsumed item). Safe to call from multiple goroutines concurrently.
func (b *Buffer[T]) Push(v T) {
	idx := b.head.Add(1) - 1
	c := &b.buf[idx&b.mask]
	for c.written.Load() {
		runtime.Gosched()
	}
	c.val = v
	c.written.Store(true)
}

// Pop removes and returns the next item, spinning until one is
// available. Must only be called from the single consumer goroutine.
func (b *Buffer[T]) Pop() T {
	c := &b.buf[b.tail&b.mask]
	for !c.written.Load() {
		runtime.Gosched()
	}
	v := c.val
	var zero T
	c.val = zero
	c.written.Store(false)
	b.tail++
	return v
}

// TryPop is the non-blocking form of Pop, used by the worker's shutdown
// drain path.
func (b *Buffer[T]) TryPop() (T, bool) {
	c := &b.buf[b.tail&b.mask]
	if !c.written.Load() {
		var zero T
		return zero, false
	}
	v := c.val
	var zero T
	c.val = zero
	c.written.Store(false)
	b.tail++
	return v, true
}

// Cap returns the buffer's fixed capacity.
func (b *Buffer[T]) Cap() int { return len(b.buf) }
