package audio

import (
	"sync"
	"sync/atomic"
)

// Queue is a bounded hand-off between a capture callback and the detection
// loop. When the consumer falls behind, Push evicts the oldest queued block
// instead of blocking the producer or growing without bound.
type Queue struct {
	mu      sync.Mutex
	ch      chan Block
	closed  bool
	dropped atomic.Int64
	onDrop  func()
}

// NewQueue returns a queue holding at most capacity blocks (minimum 1).
// onDrop, when non-nil, is called once per evicted block.
func NewQueue(capacity int, onDrop func()) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{ch: make(chan Block, capacity), onDrop: onDrop}
}

// Push enqueues b without blocking. It reports false if b could not be queued
// because the queue is closed.
func (q *Queue) Push(b Block) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	for {
		select {
		case q.ch <- b:
			return true
		default:
		}
		select {
		case <-q.ch:
			q.dropped.Add(1)
			if q.onDrop != nil {
				q.onDrop()
			}
		default:
			// The consumer drained the queue between the two selects.
		}
	}
}

// C returns the receive side of the queue. It is closed by [Queue.Close].
func (q *Queue) C() <-chan Block { return q.ch }

// Len returns the number of queued blocks.
func (q *Queue) Len() int { return len(q.ch) }

// Dropped returns the number of blocks evicted so far.
func (q *Queue) Dropped() int64 { return q.dropped.Load() }

// Close closes the receive channel. Queued blocks remain readable. Close is
// idempotent and Push after Close is a no-op.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
}
