package regression

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/joseph-ayodele/invoice-rules/constants"
	"github.com/joseph-ayodele/invoice-rules/internal/common"
	"github.com/joseph-ayodele/invoice-rules/internal/entity"
)

// StatusLister finds tasks left behind by a previous process.
type StatusLister interface {
	ListByStatus(ctx context.Context, status constants.TaskStatus) ([]*entity.TestTask, error)
}

const interruptedMessage = "interrupted: worker stopped before the task finished"

// Recover runs at startup before workers accept new tasks. RUNNING tasks cannot be resumed,
// so they are failed; PENDING tasks are enqueued again.
func Recover(ctx context.Context, list StatusLister, tasks TaskStore, queue Queue, logger *slog.Logger) (failed, requeued int, err error) {
	if logger == nil {
		logger = slog.Default()
	}

	running, err := list.ListByStatus(ctx, constants.TaskStatusRunning)
	if err != nil {
		return 0, 0, fmt.Errorf("list running tasks: %w", err)
	}
	for _, t := range running {
		if err := tasks.Fail(ctx, t.ID, interruptedMessage); err != nil {
			if errors.Is(err, common.ErrConflict) {
				continue
			}
			return failed, requeued, err
		}
		failed++
		logger.Warn("regression.task.interrupted", "task_id", t.ID)
	}

	pending, err := list.ListByStatus(ctx, constants.TaskStatusPending)
	if err != nil {
		return failed, requeued, fmt.Errorf("list pending tasks: %w", err)
	}
	for _, t := range pending {
		if err := queue.Enqueue(ctx, t.ID); err != nil {
			return failed, requeued, fmt.Errorf("requeue %s: %w", t.ID, err)
		}
		requeued++
	}
	if failed+requeued > 0 {
		logger.Info("regression.recovered", "failed", failed, "requeued", requeued)
	}
	return failed, requeued, nil
}
