package queue

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/ternarybob/arbor"
)

// MemoryQueue is a generic in-process FIFO worker. Exactly one consumer
// goroutine drains the queue, started lazily on the first Submit; a task
// that errors or panics is logged and the consumer moves on to the next
// task. There is no upper bound on queue depth - backpressure is the
// caller's responsibility.
type MemoryQueue[T any] struct {
	name    string
	handler func(ctx context.Context, task T) error
	logger  arbor.ILogger

	mu    sync.Mutex
	items []T

	wake      chan struct{}
	startOnce sync.Once
	ctx       context.Context
	cancel    context.CancelFunc
	drained   sync.WaitGroup
}

// NewMemoryQueue creates a queue that routes every task to handler.
func NewMemoryQueue[T any](name string, handler func(ctx context.Context, task T) error, logger arbor.ILogger) *MemoryQueue[T] {
	ctx, cancel := context.WithCancel(context.Background())
	return &MemoryQueue[T]{
		name:    name,
		handler: handler,
		logger:  logger,
		wake:    make(chan struct{}, 1),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Submit enqueues a task and guarantees the consumer goroutine is running.
// Safe for concurrent use; the sync.Once guard means concurrent submits
// never spawn a second consumer.
func (q *MemoryQueue[T]) Submit(task T) {
	q.mu.Lock()
	q.items = append(q.items, task)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}

	q.startOnce.Do(func() {
		q.drained.Add(1)
		go q.consume()
	})
}

// Len returns the number of queued tasks not yet handed to the handler.
func (q *MemoryQueue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Stop cancels the consumer. Queued tasks that have not started are dropped;
// an in-flight task runs to completion.
func (q *MemoryQueue[T]) Stop() {
	q.cancel()
}

func (q *MemoryQueue[T]) consume() {
	defer q.drained.Done()

	for {
		task, ok := q.pop()
		if !ok {
			select {
			case <-q.ctx.Done():
				return
			case <-q.wake:
				continue
			}
		}

		q.run(task)
	}
}

func (q *MemoryQueue[T]) pop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	if len(q.items) == 0 {
		return zero, false
	}
	task := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]
	return task, true
}

// run executes one task with crash isolation. One bad task must never kill
// the consumer.
func (q *MemoryQueue[T]) run(task T) {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			q.logger.Error().
				Str("queue", q.name).
				Str("panic", fmt.Sprintf("%v", r)).
				Str("stack", string(buf[:n])).
				Msg("Task handler panicked")
		}
	}()

	if err := q.handler(q.ctx, task); err != nil {
		q.logger.Error().
			Err(err).
			Str("queue", q.name).
			Msg("Task handler failed")
	}
}
