package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/joseph-ayodele/invoice-rules/internal/common"
	"github.com/joseph-ayodele/invoice-rules/internal/corpus"
	"github.com/joseph-ayodele/invoice-rules/internal/document"
)

const (
	documentsTable   = "documents"
	groundTruthTable = "ground_truth"
)

// DocumentRepository stores OCR document views. It serves document.Store and corpus.Index.
type DocumentRepository interface {
	Save(ctx context.Context, v *document.View) error
	Get(ctx context.Context, id string) (*document.View, error)
	ListDocumentIDs(ctx context.Context, f corpus.Filter) ([]string, error)
}

type documentRepository struct {
	db     *DB
	logger *slog.Logger
}

func NewDocumentRepository(db *DB, logger *slog.Logger) DocumentRepository {
	return &documentRepository{db: db, logger: logger}
}

// Save inserts or replaces a view. A zero ReceivedAt is stamped with the current time.
func (r *documentRepository) Save(ctx context.Context, v *document.View) error {
	if v.ReceivedAt.IsZero() {
		v.ReceivedAt = time.Now()
	}
	v.ReceivedAt = v.ReceivedAt.UTC()
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode document %s: %w", v.ID, err)
	}
	q, args := r.db.builder().Insert(documentsTable).
		Columns("id", "content", "received_at").
		Values(v.ID, string(raw), v.ReceivedAt).
		OnConflict(entsql.ConflictColumns("id"), entsql.ResolveWithNewValues()).
		Query()
	if _, err := r.db.exec(ctx, q, args); err != nil {
		r.logger.Error("failed to save document", "document_id", v.ID, "error", err)
		return dbError("save document", err)
	}
	return nil
}

func (r *documentRepository) Get(ctx context.Context, id string) (*document.View, error) {
	b := r.db.builder()
	q, args := b.Select("content").From(b.Table(documentsTable)).
		Where(entsql.EQ("id", id)).
		Query()
	var raw []byte
	err := r.db.query(ctx, q, args, func(rows *entsql.Rows) error {
		return rows.Scan(&raw)
	})
	if err != nil {
		return nil, dbError("get document", err)
	}
	if raw == nil {
		return nil, common.NewAppError("DOCUMENT_NOT_FOUND", fmt.Sprintf("document %s not found", id), common.ErrNotFound)
	}
	return document.Parse(raw)
}

func (r *documentRepository) ListDocumentIDs(ctx context.Context, f corpus.Filter) ([]string, error) {
	b := r.db.builder()
	sel := b.Select("id").From(b.Table(documentsTable))
	if f.From != nil {
		sel.Where(entsql.GTE("received_at", f.From.UTC()))
	}
	if f.To != nil {
		sel.Where(entsql.LTE("received_at", f.To.UTC()))
	}
	if f.Newest {
		sel.OrderBy(entsql.Desc("received_at"), entsql.Desc("id"))
	} else {
		sel.OrderBy(entsql.Asc("received_at"), entsql.Asc("id"))
	}
	if f.Limit > 0 {
		sel.Limit(f.Limit)
	}
	q, args := sel.Query()
	var ids []string
	err := r.db.query(ctx, q, args, func(rows *entsql.Rows) error {
		var id string
		if err := rows.Scan(&id); err != nil {
			return err
		}
		ids = append(ids, id)
		return nil
	})
	if err != nil {
		return nil, dbError("list documents", err)
	}
	return ids, nil
}

// GroundTruthRepository stores verified field values per document.
type GroundTruthRepository interface {
	Save(ctx context.Context, documentID string, values map[string]*string) error
	Get(ctx context.Context, documentID, fieldName string) (*string, error)
	Fields(ctx context.Context, documentID string) (map[string]*string, error)
}

type groundTruthRepository struct {
	db     *DB
	logger *slog.Logger
}

func NewGroundTruthRepository(db *DB, logger *slog.Logger) GroundTruthRepository {
	return &groundTruthRepository{db: db, logger: logger}
}

// Save upserts every field of one document. A nil value records that the field is absent.
func (r *groundTruthRepository) Save(ctx context.Context, documentID string, values map[string]*string) error {
	if len(values) == 0 {
		return nil
	}
	ins := r.db.builder().Insert(groundTruthTable).Columns("document_id", "field_name", "value")
	for field, v := range values {
		ins.Values(documentID, field, nullable(v))
	}
	q, args := ins.OnConflict(entsql.ConflictColumns("document_id", "field_name"), entsql.ResolveWithNewValues()).Query()
	if _, err := r.db.exec(ctx, q, args); err != nil {
		r.logger.Error("failed to save ground truth", "document_id", documentID, "error", err)
		return dbError("save ground truth", err)
	}
	return nil
}

// Get returns nil when no verified value is recorded.
func (r *groundTruthRepository) Get(ctx context.Context, documentID, fieldName string) (*string, error) {
	b := r.db.builder()
	q, args := b.Select("value").From(b.Table(groundTruthTable)).
		Where(entsql.And(entsql.EQ("document_id", documentID), entsql.EQ("field_name", fieldName))).
		Query()
	var out *string
	err := r.db.query(ctx, q, args, func(rows *entsql.Rows) error {
		var ns sql.NullString
		if err := rows.Scan(&ns); err != nil {
			return err
		}
		out = fromNullable(ns)
		return nil
	})
	if err != nil {
		return nil, dbError("get ground truth", err)
	}
	return out, nil
}

func (r *groundTruthRepository) Fields(ctx context.Context, documentID string) (map[string]*string, error) {
	b := r.db.builder()
	q, args := b.Select("field_name", "value").From(b.Table(groundTruthTable)).
		Where(entsql.EQ("document_id", documentID)).
		Query()
	out := make(map[string]*string)
	err := r.db.query(ctx, q, args, func(rows *entsql.Rows) error {
		var (
			field string
			ns    sql.NullString
		)
		if err := rows.Scan(&field, &ns); err != nil {
			return err
		}
		out[field] = fromNullable(ns)
		return nil
	})
	if err != nil {
		return nil, dbError("list ground truth", err)
	}
	return out, nil
}
