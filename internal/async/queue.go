// Package async runs regression tasks on a fixed pool of background workers.
package async

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrQueueClosed is returned by Enqueue after Shutdown has started.
var ErrQueueClosed = errors.New("task queue is shutting down")

// Job is one queued task execution.
type Job struct {
	TaskID      uuid.UUID
	SubmittedAt time.Time
	RequestID   string
}

// Executor runs a task to a terminal state.
type Executor interface {
	Execute(ctx context.Context, taskID uuid.UUID) error
}

type Queue interface {
	Enqueue(ctx context.Context, taskID uuid.UUID) error
	Shutdown(ctx context.Context)
}
