// Package queue provides the sequential submission queue that serializes
// all settlement work performed with the facilitator's signing key.
//
// A Stellar account has a monotonic sequence number and can carry only one
// transaction in flight; concurrent submissions from the same key race on
// the sequence number and all but one are rejected by the network. The
// queue therefore executes tasks strictly one at a time, in enqueue order,
// on a single dedicated worker goroutine.
package queue

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/Pasa-Tanda/PasaTanda-Payment-Backend/x402"
)

// DefaultBuffer is the enqueue buffer used when no size is given.
const DefaultBuffer = 256

// Task is a unit of settlement work. Tasks report their outcome through
// whatever the closure captures; a failing task never blocks the chain.
type Task func()

// Queue executes tasks strictly sequentially in enqueue order.
type Queue struct {
	mu     sync.Mutex
	tasks  chan Task
	closed bool
	done   chan struct{}
	depth  atomic.Int64
	logger *slog.Logger
}

// New creates a queue with the given buffer size and starts its worker.
// A non-positive buffer falls back to DefaultBuffer.
func New(buffer int, logger *slog.Logger) *Queue {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	if logger == nil {
		logger = slog.Default()
	}
	q := &Queue{
		tasks:  make(chan Task, buffer),
		done:   make(chan struct{}),
		logger: logger,
	}
	go q.run()
	return q
}

// Enqueue appends a task to the pipeline. It returns ErrQueueClosed after
// Close. Enqueue may block briefly when the buffer is full; tasks already
// accepted are always executed before later ones.
func (q *Queue) Enqueue(task Task) error {
	if task == nil {
		return x402.ErrInvalidPayload
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return x402.ErrQueueClosed
	}
	q.depth.Add(1)
	q.tasks <- task
	return nil
}

// Depth reports the number of tasks queued or in flight, for operational
// monitoring.
func (q *Queue) Depth() int {
	return int(q.depth.Load())
}

// Close stops accepting tasks and blocks until every accepted task has
// finished executing.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.done
		return
	}
	q.closed = true
	close(q.tasks)
	q.mu.Unlock()
	<-q.done
}

func (q *Queue) run() {
	defer close(q.done)
	for task := range q.tasks {
		task()
		q.depth.Add(-1)
	}
	q.logger.Debug("submission queue drained")
}
