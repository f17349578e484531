package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/invoice-rules/constants"
	"github.com/joseph-ayodele/invoice-rules/internal/common"
	"github.com/joseph-ayodele/invoice-rules/internal/entity"
)

const tasksTable = "test_tasks"

var taskColumns = []string{
	"id", "rule_id", "field_name", "rule_type", "original_type", "original_pattern", "test_pattern",
	"corpus", "status", "progress", "total_documents", "tested_documents", "error_count", "summary",
	"error_message", "created_at", "started_at", "finished_at",
}

// TaskRepository persists regression test tasks. Status transitions are conditional updates;
// losing a race yields an error wrapping common.ErrConflict.
type TaskRepository interface {
	Create(ctx context.Context, t *entity.TestTask) error
	Get(ctx context.Context, id uuid.UUID) (*entity.TestTask, error)
	ListByStatus(ctx context.Context, status constants.TaskStatus) ([]*entity.TestTask, error)
	Claim(ctx context.Context, id uuid.UUID) error
	SetTotal(ctx context.Context, id uuid.UUID, total int) error
	UpdateProgress(ctx context.Context, id uuid.UUID, tested, errors, progress int) error
	Complete(ctx context.Context, id uuid.UUID, summary entity.Summary, tested, errors int) error
	Cancel(ctx context.Context, id uuid.UUID, tested, errors int) error
	CancelPending(ctx context.Context, id uuid.UUID) error
	Fail(ctx context.Context, id uuid.UUID, message string) error
}

type taskRepository struct {
	db     *DB
	logger *slog.Logger
}

func NewTaskRepository(db *DB, logger *slog.Logger) TaskRepository {
	return &taskRepository{db: db, logger: logger}
}

func (r *taskRepository) Create(ctx context.Context, t *entity.TestTask) error {
	corpus, err := json.Marshal(t.Corpus)
	if err != nil {
		return fmt.Errorf("encode corpus: %w", err)
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	var ruleID any
	if t.RuleID != nil {
		ruleID = t.RuleID.String()
	}
	q, args := r.db.builder().Insert(tasksTable).
		Columns("id", "rule_id", "field_name", "rule_type", "original_type", "original_pattern",
			"test_pattern", "corpus", "status", "created_at").
		Values(t.ID.String(), ruleID, t.FieldName, t.RuleType, t.OriginalType, string(t.OriginalPattern),
			string(t.TestPattern), string(corpus), string(t.Status), t.CreatedAt.UTC()).
		Query()
	if _, err := r.db.exec(ctx, q, args); err != nil {
		r.logger.Error("failed to create task", "task_id", t.ID, "error", err)
		return dbError("create task", err)
	}
	return nil
}

func (r *taskRepository) Get(ctx context.Context, id uuid.UUID) (*entity.TestTask, error) {
	b := r.db.builder()
	q, args := b.Select(taskColumns...).From(b.Table(tasksTable)).
		Where(entsql.EQ("id", id.String())).
		Query()
	var out *entity.TestTask
	err := r.db.query(ctx, q, args, func(rows *entsql.Rows) error {
		t, err := scanTask(rows)
		out = t
		return err
	})
	if err != nil {
		return nil, dbError("get task", err)
	}
	if out == nil {
		return nil, common.NewAppError("TASK_NOT_FOUND", fmt.Sprintf("task %s not found", id), common.ErrNotFound)
	}
	return out, nil
}

func (r *taskRepository) ListByStatus(ctx context.Context, status constants.TaskStatus) ([]*entity.TestTask, error) {
	b := r.db.builder()
	q, args := b.Select(taskColumns...).From(b.Table(tasksTable)).
		Where(entsql.EQ("status", string(status))).
		OrderBy("created_at").
		Query()
	var out []*entity.TestTask
	err := r.db.query(ctx, q, args, func(rows *entsql.Rows) error {
		t, err := scanTask(rows)
		if err == nil {
			out = append(out, t)
		}
		return err
	})
	if err != nil {
		return nil, dbError("list tasks", err)
	}
	return out, nil
}

func (r *taskRepository) Claim(ctx context.Context, id uuid.UUID) error {
	u := r.db.builder().Update(tasksTable).
		Set("status", string(constants.TaskStatusRunning)).
		Set("started_at", time.Now().UTC()).
		Where(entsql.And(entsql.EQ("id", id.String()), entsql.EQ("status", string(constants.TaskStatusPending))))
	return r.transition(ctx, id, u, "claim")
}

func (r *taskRepository) SetTotal(ctx context.Context, id uuid.UUID, total int) error {
	u := r.db.builder().Update(tasksTable).
		Set("total_documents", total).
		Where(entsql.And(entsql.EQ("id", id.String()), entsql.EQ("status", string(constants.TaskStatusRunning))))
	return r.transition(ctx, id, u, "set total")
}

// UpdateProgress is a no-op when a concurrent writer already recorded higher progress.
func (r *taskRepository) UpdateProgress(ctx context.Context, id uuid.UUID, tested, errors, progress int) error {
	q, args := r.db.builder().Update(tasksTable).
		Set("tested_documents", tested).
		Set("error_count", errors).
		Set("progress", progress).
		Where(entsql.And(
			entsql.EQ("id", id.String()),
			entsql.EQ("status", string(constants.TaskStatusRunning)),
			entsql.LTE("progress", progress),
			entsql.LTE("tested_documents", tested),
		)).
		Query()
	n, err := r.db.exec(ctx, q, args)
	if err != nil {
		return dbError("update progress", err)
	}
	if n > 0 {
		return nil
	}
	t, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if t.Status != constants.TaskStatusRunning {
		return conflict(id, t.Status, "update progress")
	}
	return nil
}

func (r *taskRepository) Complete(ctx context.Context, id uuid.UUID, summary entity.Summary, tested, errors int) error {
	raw, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	u := r.db.builder().Update(tasksTable).
		Set("status", string(constants.TaskStatusCompleted)).
		Set("summary", string(raw)).
		Set("progress", 100).
		Set("tested_documents", tested).
		Set("error_count", errors).
		Set("finished_at", time.Now().UTC()).
		Where(entsql.And(entsql.EQ("id", id.String()), entsql.EQ("status", string(constants.TaskStatusRunning))))
	return r.transition(ctx, id, u, "complete")
}

func (r *taskRepository) Cancel(ctx context.Context, id uuid.UUID, tested, errors int) error {
	u := r.db.builder().Update(tasksTable).
		Set("status", string(constants.TaskStatusCancelled)).
		Set("tested_documents", tested).
		Set("error_count", errors).
		Set("finished_at", time.Now().UTC()).
		Where(entsql.And(
			entsql.EQ("id", id.String()),
			entsql.In("status", string(constants.TaskStatusPending), string(constants.TaskStatusRunning)),
		))
	return r.transition(ctx, id, u, "cancel")
}

// CancelPending cancels a task no worker has claimed yet.
func (r *taskRepository) CancelPending(ctx context.Context, id uuid.UUID) error {
	u := r.db.builder().Update(tasksTable).
		Set("status", string(constants.TaskStatusCancelled)).
		Set("finished_at", time.Now().UTC()).
		Where(entsql.And(entsql.EQ("id", id.String()), entsql.EQ("status", string(constants.TaskStatusPending))))
	return r.transition(ctx, id, u, "cancel pending")
}

func (r *taskRepository) Fail(ctx context.Context, id uuid.UUID, message string) error {
	u := r.db.builder().Update(tasksTable).
		Set("status", string(constants.TaskStatusFailed)).
		Set("error_message", message).
		Set("finished_at", time.Now().UTC()).
		Where(entsql.And(
			entsql.EQ("id", id.String()),
			entsql.In("status", string(constants.TaskStatusPending), string(constants.TaskStatusRunning)),
		))
	return r.transition(ctx, id, u, "fail")
}

func (r *taskRepository) transition(ctx context.Context, id uuid.UUID, u *entsql.UpdateBuilder, op string) error {
	q, args := u.Query()
	n, err := r.db.exec(ctx, q, args)
	if err != nil {
		r.logger.Error("task update failed", "task_id", id, "op", op, "error", err)
		return dbError(op+" task", err)
	}
	if n == 1 {
		return nil
	}
	t, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	return conflict(id, t.Status, op)
}

func conflict(id uuid.UUID, status constants.TaskStatus, op string) error {
	return common.NewAppError("TASK_STATE_CONFLICT", fmt.Sprintf("cannot %s task %s in status %s", op, id, status), common.ErrConflict)
}

func scanTask(rows *entsql.Rows) (*entity.TestTask, error) {
	var (
		t                                      entity.TestTask
		ruleID                                 uuid.NullUUID
		origPattern, testPattern, corpus, summ []byte
		status                                 string
		errMsg                                 sql.NullString
		startedAt, finishedAt                  sql.NullTime
	)
	err := rows.Scan(&t.ID, &ruleID, &t.FieldName, &t.RuleType, &t.OriginalType, &origPattern, &testPattern,
		&corpus, &status, &t.Progress, &t.TotalDocuments, &t.TestedDocuments, &t.ErrorCount, &summ,
		&errMsg, &t.CreatedAt, &startedAt, &finishedAt)
	if err != nil {
		return nil, err
	}
	t.Status = constants.TaskStatus(status)
	t.OriginalPattern = json.RawMessage(origPattern)
	t.TestPattern = json.RawMessage(testPattern)
	if err := json.Unmarshal(corpus, &t.Corpus); err != nil {
		return nil, fmt.Errorf("decode corpus: %w", err)
	}
	if len(summ) > 0 {
		var s entity.Summary
		if err := json.Unmarshal(summ, &s); err != nil {
			return nil, fmt.Errorf("decode summary: %w", err)
		}
		t.Summary = &s
	}
	if ruleID.Valid {
		t.RuleID = &ruleID.UUID
	}
	if errMsg.Valid {
		t.ErrorMessage = &errMsg.String
	}
	if startedAt.Valid {
		t.StartedAt = &startedAt.Time
	}
	if finishedAt.Valid {
		t.FinishedAt = &finishedAt.Time
	}
	return &t, nil
}
