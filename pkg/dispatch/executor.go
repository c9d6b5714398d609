// Package dispatch runs fire-and-forget tasks on a background worker.
//
// Tasks run one at a time in submission order, so two broadcasts scheduled by the same
// goroutine reach observers in the order they were issued. Submit never blocks: when the
// queue is full the task is dropped and reported.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aretw0/proctrace/internal/logging"
	"github.com/aretw0/proctrace/pkg/metrics"
)

// DefaultQueueSize is the number of pending tasks an Executor buffers.
const DefaultQueueSize = 1024

// Executor is a single-worker FIFO task queue.
type Executor struct {
	queue   chan func()
	done    chan struct{}
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu     sync.RWMutex
	closed bool
}

// Option configures the Executor.
type Option func(*Executor)

// WithLogger configures a logger for dropped or panicking tasks.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		e.logger = logger
	}
}

// WithMetrics records dropped tasks.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Executor) {
		e.metrics = m
	}
}

// New creates an Executor with room for size pending tasks and starts its worker.
// A size <= 0 selects DefaultQueueSize.
func New(size int, opts ...Option) *Executor {
	if size <= 0 {
		size = DefaultQueueSize
	}
	e := &Executor{
		queue:  make(chan func(), size),
		done:   make(chan struct{}),
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	go e.run()
	return e
}

func (e *Executor) run() {
	defer close(e.done)
	for task := range e.queue {
		e.execute(task)
	}
}

func (e *Executor) execute(task func()) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Background task panicked", "panic", fmt.Sprint(r))
		}
	}()
	task()
}

// Submit schedules task without waiting for it. It returns false when the executor is
// closed or its queue is full.
func (e *Executor) Submit(task func()) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		e.logger.Debug("Executor closed, task rejected")
		return false
	}
	select {
	case e.queue <- task:
		return true
	default:
		e.logger.Warn("Executor queue full, dropping task", "capacity", cap(e.queue))
		e.metrics.TaskDropped()
		return false
	}
}

// Pending returns the number of queued tasks.
func (e *Executor) Pending() int {
	return len(e.queue)
}

// Close stops accepting tasks and waits until queued tasks ran or ctx is done.
func (e *Executor) Close(ctx context.Context) error {
	e.mu.Lock()
	if !e.closed {
		e.closed = true
		close(e.queue)
	}
	e.mu.Unlock()

	select {
	case <-e.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("executor drain interrupted with %d pending tasks: %w", len(e.queue), ctx.Err())
	}
}
