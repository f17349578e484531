package repository

import (
	"context"
	"database/sql"
	"log/slog"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/invoice-rules/constants"
	"github.com/joseph-ayodele/invoice-rules/internal/entity"
)

const detailsTable = "test_details"

type DetailRepository interface {
	Insert(ctx context.Context, d entity.TestDetail) error
	List(ctx context.Context, taskID uuid.UUID) ([]entity.TestDetail, error)
}

type detailRepository struct {
	db     *DB
	logger *slog.Logger
}

func NewDetailRepository(db *DB, logger *slog.Logger) DetailRepository {
	return &detailRepository{db: db, logger: logger}
}

func (r *detailRepository) Insert(ctx context.Context, d entity.TestDetail) error {
	q, args := r.db.builder().Insert(detailsTable).
		Columns("task_id", "seq", "document_id", "original_result", "original_confidence", "test_result",
			"test_confidence", "actual_value", "original_accurate", "test_accurate", "change_type").
		Values(d.TaskID.String(), d.Seq, d.DocumentID, nullable(d.OriginalResult), d.OriginalConfidence,
			nullable(d.TestResult), d.TestConfidence, nullable(d.ActualValue), d.OriginalAccurate,
			d.TestAccurate, string(d.ChangeType)).
		Query()
	if _, err := r.db.exec(ctx, q, args); err != nil {
		r.logger.Error("failed to insert test detail", "task_id", d.TaskID, "document_id", d.DocumentID, "error", err)
		return dbError("insert test detail", err)
	}
	return nil
}

// List returns details in corpus order.
func (r *detailRepository) List(ctx context.Context, taskID uuid.UUID) ([]entity.TestDetail, error) {
	b := r.db.builder()
	q, args := b.Select("task_id", "seq", "document_id", "original_result", "original_confidence", "test_result",
		"test_confidence", "actual_value", "original_accurate", "test_accurate", "change_type").
		From(b.Table(detailsTable)).
		Where(entsql.EQ("task_id", taskID.String())).
		OrderBy("seq").
		Query()
	var out []entity.TestDetail
	err := r.db.query(ctx, q, args, func(rows *entsql.Rows) error {
		var (
			d                  entity.TestDetail
			orig, test, actual sql.NullString
			changeType         string
		)
		if err := rows.Scan(&d.TaskID, &d.Seq, &d.DocumentID, &orig, &d.OriginalConfidence, &test,
			&d.TestConfidence, &actual, &d.OriginalAccurate, &d.TestAccurate, &changeType); err != nil {
			return err
		}
		d.OriginalResult = fromNullable(orig)
		d.TestResult = fromNullable(test)
		d.ActualValue = fromNullable(actual)
		d.ChangeType = constants.ChangeType(changeType)
		out = append(out, d)
		return nil
	})
	if err != nil {
		return nil, dbError("list test details", err)
	}
	return out, nil
}

func nullable(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func fromNullable(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}
