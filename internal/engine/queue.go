package engine

import (
	"sync"

	"github.com/roach88/duelsync/internal/model"
)

// BatchKind distinguishes between batch kinds.
type BatchKind int

const (
	// BatchSet carries a hydration page or snapshot (SetEntities).
	BatchSet BatchKind = iota + 1
	// BatchUpdate carries one live update (UpdateEntity).
	BatchUpdate
	// BatchReset clears the store.
	BatchReset
	// BatchBarrier carries nothing; it completes once every earlier batch
	// has been applied.
	BatchBarrier
)

func (k BatchKind) String() string {
	switch k {
	case BatchSet:
		return "set"
	case BatchUpdate:
		return "update"
	case BatchReset:
		return "reset"
	case BatchBarrier:
		return "barrier"
	}
	return "unknown"
}

// Batch is one unit of work for the engine loop.
type Batch struct {
	Kind     BatchKind
	Entities []model.Entity

	// Generation the batch was produced under; 0 skips the staleness check.
	Generation int64

	// Source names the producer for logs (fetch purpose, subscription id).
	Source string

	// done receives the outcome when the submitter waits for it.
	done chan error
}

func (b Batch) reply(err error) {
	if b.done != nil {
		b.done <- err
	}
}

// batchQueue is a thread-safe FIFO queue for batches.
//
// The queue is unbounded so a subscriber's reader goroutine never blocks on
// a slow merge and never reorders updates for one entity.
//
// The queue uses a channel for signaling to enable context-aware waiting
// in the Run loop.
type batchQueue struct {
	mu      sync.Mutex
	batches []Batch
	closed  bool
	signal  chan struct{} // Signals batch availability (buffered, size 1)
}

func newBatchQueue() *batchQueue {
	return &batchQueue{
		batches: make([]Batch, 0, 64),
		signal:  make(chan struct{}, 1),
	}
}

// Enqueue adds a batch to the back of the queue.
// Returns false if the queue is closed.
func (q *batchQueue) Enqueue(b Batch) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.batches = append(q.batches, b)

	// Non-blocking: buffer of 1 coalesces multiple signals
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue attempts to dequeue without blocking.
// Returns (Batch{}, false) if queue is empty.
func (q *batchQueue) TryDequeue() (Batch, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.batches) == 0 {
		return Batch{}, false
	}

	b := q.batches[0]

	// Nil out the slot so the entity payload can be collected.
	q.batches[0] = Batch{}

	if len(q.batches) == 1 {
		q.batches = q.batches[:0]
	} else {
		q.batches = q.batches[1:]
	}

	return b, true
}

// Wait returns a channel that signals when batches may be available.
func (q *batchQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *batchQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.batches)
}

// Close signals that no more batches will be enqueued.
// Wakes any blocked waiters by closing the signal channel.
func (q *batchQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}

// Drain removes and returns every queued batch.
func (q *batchQueue) Drain() []Batch {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := q.batches
	q.batches = nil
	return out
}
