package regression

import (
	"context"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/invoice-rules/internal/entity"
)

// TaskStore persists test tasks. Every transition is conditional on the current status and
// returns an error wrapping common.ErrConflict when the task is no longer in the expected state.
type TaskStore interface {
	Create(ctx context.Context, t *entity.TestTask) error
	Get(ctx context.Context, id uuid.UUID) (*entity.TestTask, error)
	// Claim moves PENDING to RUNNING.
	Claim(ctx context.Context, id uuid.UUID) error
	SetTotal(ctx context.Context, id uuid.UUID, total int) error
	// UpdateProgress never lowers progress and only applies while RUNNING.
	UpdateProgress(ctx context.Context, id uuid.UUID, tested, errors, progress int) error
	Complete(ctx context.Context, id uuid.UUID, summary entity.Summary, tested, errors int) error
	// Cancel moves PENDING or RUNNING to CANCELLED.
	Cancel(ctx context.Context, id uuid.UUID, tested, errors int) error
	// CancelPending moves PENDING to CANCELLED and leaves a claimed task alone.
	CancelPending(ctx context.Context, id uuid.UUID) error
	// Fail moves PENDING or RUNNING to FAILED with message.
	Fail(ctx context.Context, id uuid.UUID, message string) error
}

// DetailStore persists per-document comparison records.
type DetailStore interface {
	Insert(ctx context.Context, d entity.TestDetail) error
	List(ctx context.Context, taskID uuid.UUID) ([]entity.TestDetail, error)
}

// CorpusResolver turns a selection into concrete document IDs.
type CorpusResolver interface {
	Validate(sel entity.CorpusSelection) error
	Resolve(ctx context.Context, sel entity.CorpusSelection) ([]string, error)
}

// RuleStore reads mapping rules so a test can start from a rule's current pattern.
type RuleStore interface {
	Get(ctx context.Context, id uuid.UUID) (*entity.MappingRule, error)
}

// Queue schedules a task for a worker.
type Queue interface {
	Enqueue(ctx context.Context, taskID uuid.UUID) error
}

// Recorder observes task and document outcomes. metrics.Handler implements it.
type Recorder interface {
	TaskFinished(status string, documents int)
	DocumentProcessed(changeType string)
	DocumentFailed(stage string)
}

type nopRecorder struct{}

func (nopRecorder) TaskFinished(string, int)  {}
func (nopRecorder) DocumentProcessed(string) {}
func (nopRecorder) DocumentFailed(string)    {}
