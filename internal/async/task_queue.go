package async

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/invoice-rules/internal/common"
	"github.com/joseph-ayodele/invoice-rules/internal/regression"
)

// TaskQueue is a bounded channel drained by a fixed number of workers. Each task runs under
// its own timeout, detached from the request that submitted it.
type TaskQueue struct {
	exec    Executor
	logger  *slog.Logger
	workers int
	timeout time.Duration

	ch      chan Job
	quit    chan struct{}
	wg      sync.WaitGroup
	senders sync.WaitGroup
	once    sync.Once

	mu     sync.Mutex
	closed bool
}

type Option func(*TaskQueue)

func WithWorkers(n int) Option {
	return func(q *TaskQueue) {
		if n > 0 {
			q.workers = n
		}
	}
}
func WithQueueSize(n int) Option {
	return func(q *TaskQueue) {
		if n > 0 {
			q.ch = make(chan Job, n)
		}
	}
}
func WithTaskTimeout(d time.Duration) Option {
	return func(q *TaskQueue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

func NewTaskQueue(exec Executor, logger *slog.Logger, opts ...Option) *TaskQueue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &TaskQueue{
		exec:    exec,
		logger:  logger,
		workers: 2,
		timeout: 30 * time.Minute,
		ch:      make(chan Job, 64),
		quit:    make(chan struct{}),
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *TaskQueue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Info("worker started", "worker_id", workerID)

				for job := range q.ch {
					q.run(workerID, job)
				}

				q.logger.Info("worker stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

func (q *TaskQueue) run(workerID int, job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()
	if job.RequestID != "" {
		ctx = common.WithRequestID(ctx, job.RequestID)
	}
	log := q.logger.With("worker_id", workerID, "task_id", job.TaskID)

	defer func() {
		if rec := recover(); rec != nil {
			log.Error("task panicked", "panic", rec)
		}
	}()

	start := time.Now()
	err := q.exec.Execute(ctx, job.TaskID)
	switch {
	case errors.Is(err, regression.ErrTaskFatal):
		log.Error("task failed", "error", err, "queued_ms", start.Sub(job.SubmittedAt).Milliseconds())
	case err != nil:
		log.Error("task execution error", "error", err)
	default:
		log.Info("task finished", "elapsed_ms", time.Since(start).Milliseconds())
	}
}

// Enqueue blocks while the queue is full until ctx ends or the queue shuts down.
func (q *TaskQueue) Enqueue(ctx context.Context, taskID uuid.UUID) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		q.logger.Warn("cannot enqueue: queue is shutting down", "task_id", taskID)
		return ErrQueueClosed
	}
	q.senders.Add(1)
	q.mu.Unlock()
	defer q.senders.Done()

	job := Job{TaskID: taskID, SubmittedAt: time.Now(), RequestID: common.RequestIDFromContext(ctx)}
	select {
	case q.ch <- job:
		q.logger.Info("queued task", "task_id", taskID)
		return nil
	default:
	}

	q.logger.Warn("queue full, applying backpressure", "task_id", taskID)
	select {
	case q.ch <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-q.quit:
		return ErrQueueClosed
	}
}

// Shutdown stops intake and waits for queued tasks until ctx ends. Blocked senders give up
// with ErrQueueClosed before the channel closes.
func (q *TaskQueue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.quit)
	q.mu.Unlock()

	q.senders.Wait()
	close(q.ch)

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("shutdown interrupted by context")
	case <-done:
		q.logger.Info("queue drained, shutdown complete")
	}
}

// Inline runs tasks synchronously on Enqueue. The batch CLI uses it so a run finishes before
// the report is written.
type Inline struct {
	Exec Executor
}

func (i Inline) Enqueue(ctx context.Context, taskID uuid.UUID) error {
	err := i.Exec.Execute(ctx, taskID)
	if errors.Is(err, regression.ErrTaskFatal) {
		// The task is already FAILED and readable; the caller inspects it.
		return nil
	}
	return err
}

func (Inline) Shutdown(context.Context) {}
