// Package queue provides the fixed-capacity stitch ring buffer that sits
// between the file decoder and the real-time job tick.
//
// The queue is single-producer single-consumer. The producer only stores
// head and the consumer only stores tail; each side loads the other's
// index atomically, so no lock is taken on either path.
package queue

import (
	"fmt"
	"sync/atomic"

	"github.com/pithecene-io/stitcher/types"
)

// DefaultSize is the ring capacity used when none is configured.
const DefaultSize = 8

// Queue is a ring of N slots holding at most N-1 stitches.
// head == tail means empty.
type Queue struct {
	slots []types.Stitch
	mask  uint32
	head  atomic.Uint32 // next write slot, producer-owned
	tail  atomic.Uint32 // next read slot, consumer-owned
}

// New creates a queue with size slots. size must be a power of two >= 2.
func New(size int) (*Queue, error) {
	if size < 2 || size&(size-1) != 0 {
		return nil, fmt.Errorf("queue size %d is not a power of two >= 2", size)
	}
	return &Queue{
		slots: make([]types.Stitch, size),
		mask:  uint32(size - 1),
	}, nil
}

// TryPush appends s. Returns false, leaving the queue unchanged, when full.
// Producer side only.
func (q *Queue) TryPush(s types.Stitch) bool {
	head := q.head.Load()
	next := (head + 1) & q.mask
	if next == q.tail.Load() {
		return false
	}
	q.slots[head] = s
	q.head.Store(next)
	return true
}

// Peek returns the oldest stitch without consuming it.
// Consumer side only.
func (q *Queue) Peek() (types.Stitch, bool) {
	return q.PeekAt(0)
}

// PeekAt returns the stitch i positions behind the oldest one without
// consuming anything. Consumer side only.
func (q *Queue) PeekAt(i int) (types.Stitch, bool) {
	tail := q.tail.Load()
	if i < 0 || uint32(i) >= q.used(q.head.Load(), tail) {
		return types.Stitch{}, false
	}
	return q.slots[(tail+uint32(i))&q.mask], true
}

// Pop removes and returns the oldest stitch.
// Consumer side only.
func (q *Queue) Pop() (types.Stitch, bool) {
	tail := q.tail.Load()
	if tail == q.head.Load() {
		return types.Stitch{}, false
	}
	s := q.slots[tail]
	q.tail.Store((tail + 1) & q.mask)
	return s, true
}

// Drain discards all queued stitches and returns how many were dropped.
// Consumer side only.
func (q *Queue) Drain() int {
	n := 0
	for {
		if _, ok := q.Pop(); !ok {
			return n
		}
		n++
	}
}

// Len returns the number of queued stitches.
func (q *Queue) Len() int {
	return int(q.used(q.head.Load(), q.tail.Load()))
}

// Cap returns the usable depth, one less than the slot count.
func (q *Queue) Cap() int {
	return len(q.slots) - 1
}

// Empty reports whether no stitch is queued.
func (q *Queue) Empty() bool {
	return q.head.Load() == q.tail.Load()
}

// Full reports whether TryPush would fail.
func (q *Queue) Full() bool {
	return (q.head.Load()+1)&q.mask == q.tail.Load()
}

func (q *Queue) used(head, tail uint32) uint32 {
	return (head - tail) & q.mask
}
