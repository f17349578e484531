package regression

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/invoice-rules/constants"
	"github.com/joseph-ayodele/invoice-rules/internal/common"
	"github.com/joseph-ayodele/invoice-rules/internal/pattern"
)

// finalWriteTimeout bounds terminal-state writes made after the run context ended.
const finalWriteTimeout = 10 * time.Second

// Executor drives one task through RUNNING to a terminal state.
type Executor struct {
	tasks    TaskStore
	details  DetailStore
	corpus   CorpusResolver
	runner   *Runner
	cancels  *Cancellations
	recorder Recorder
	logger   *slog.Logger
}

func NewExecutor(tasks TaskStore, details DetailStore, corpus CorpusResolver, runner *Runner, cancels *Cancellations, recorder Recorder, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	if cancels == nil {
		cancels = NewCancellations()
	}
	return &Executor{
		tasks:    tasks,
		details:  details,
		corpus:   corpus,
		runner:   runner,
		cancels:  cancels,
		recorder: recorder,
		logger:   logger,
	}
}

// Execute claims and runs taskID. A task that is no longer PENDING is skipped. The returned
// error wraps ErrTaskFatal when the task ended FAILED.
func (e *Executor) Execute(ctx context.Context, taskID uuid.UUID) error {
	ctx = common.WithTaskID(ctx, taskID.String())
	log := e.logger.With("task_id", taskID)
	start := time.Now()

	task, err := e.tasks.Get(ctx, taskID)
	if err != nil {
		return fmt.Errorf("load task: %w", err)
	}
	if task.Status != constants.TaskStatusPending {
		e.cancels.Clear(taskID)
		log.Info("regression.task.skipped", "status", task.Status)
		return nil
	}
	if e.cancels.IsRequested(taskID) {
		if err := e.tasks.Cancel(ctx, taskID, 0, 0); err != nil && !errors.Is(err, common.ErrConflict) {
			return fmt.Errorf("cancel pending task: %w", err)
		}
		e.cancels.Clear(taskID)
		return nil
	}
	if err := e.tasks.Claim(ctx, taskID); err != nil {
		if errors.Is(err, common.ErrConflict) {
			log.Info("regression.task.claim_lost")
			return nil
		}
		return fmt.Errorf("claim task: %w", err)
	}
	log.Info("regression.task.started", "field", task.FieldName, "rule_type", task.RuleType)

	original, err := pattern.Decode(task.OriginalType, task.OriginalPattern)
	if err != nil {
		return e.fail(ctx, log, taskID, fatal("decode original pattern", err))
	}
	test, err := pattern.Decode(task.RuleType, task.TestPattern)
	if err != nil {
		return e.fail(ctx, log, taskID, fatal("decode test pattern", err))
	}

	ids, err := e.corpus.Resolve(ctx, task.Corpus)
	if err != nil {
		return e.fail(ctx, log, taskID, fatal("resolve corpus", err))
	}
	if err := e.tasks.SetTotal(ctx, taskID, len(ids)); err != nil {
		return e.fail(ctx, log, taskID, fatal("record corpus size", err))
	}
	log.Info("regression.corpus.resolved", "documents", len(ids))

	report, err := e.runner.Run(ctx, Job{
		TaskID:      taskID,
		FieldName:   task.FieldName,
		Original:    original,
		Test:        test,
		DocumentIDs: ids,
	}, Hooks{
		OnDetail: e.details.Insert,
		OnProgress: func(ctx context.Context, p Progress) {
			if err := e.tasks.UpdateProgress(ctx, taskID, p.Tested, p.Errors, p.Percent); err != nil {
				log.Warn("regression.progress.update_failed", "tested", p.Tested, "error", err)
			}
		},
		OnResult: func(r DocumentResult) {
			if r.Err != nil {
				e.recorder.DocumentFailed(r.Err.Stage)
			} else {
				e.recorder.DocumentProcessed(string(r.Detail.ChangeType))
			}
		},
		Cancelled: func() bool { return e.cancels.IsRequested(taskID) },
	})
	if err != nil {
		return e.fail(ctx, log, taskID, fatal("run", err))
	}

	final, cancel := finalContext(ctx)
	defer cancel()

	if report.Cancelled {
		if err := e.tasks.Cancel(final, taskID, report.Tested, len(report.Errors)); err != nil {
			return e.fail(ctx, log, taskID, fatal("record cancellation", err))
		}
		e.cancels.Clear(taskID)
		e.recorder.TaskFinished(string(constants.TaskStatusCancelled), report.Tested)
		log.Info("regression.task.cancelled", "tested", report.Tested, "total", report.Total,
			"elapsed_ms", time.Since(start).Milliseconds())
		return nil
	}

	if err := e.tasks.Complete(final, taskID, report.Summary, report.Tested, len(report.Errors)); err != nil {
		return e.fail(ctx, log, taskID, fatal("record completion", err))
	}
	e.cancels.Clear(taskID)
	e.recorder.TaskFinished(string(constants.TaskStatusCompleted), report.Tested)
	log.Info("regression.task.completed",
		"tested", report.Tested,
		"errors", len(report.Errors),
		"improved", report.Summary.Improved,
		"regressed", report.Summary.Regressed,
		"net_improvement", report.Summary.NetImprovement,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func (e *Executor) fail(ctx context.Context, log *slog.Logger, taskID uuid.UUID, cause error) error {
	final, cancel := finalContext(ctx)
	defer cancel()
	if err := e.tasks.Fail(final, taskID, cause.Error()); err != nil {
		log.Error("regression.task.fail_record_failed", "error", err, "cause", cause)
	}
	e.cancels.Clear(taskID)
	e.recorder.TaskFinished(string(constants.TaskStatusFailed), 0)
	log.Error("regression.task.failed", "error", cause)
	return cause
}

// finalContext outlives ctx so terminal states are written even after a deadline.
func finalContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), finalWriteTimeout)
}
