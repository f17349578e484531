package repository

import (
	"context"
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

const rulesTable = "mapping_rules"

var ruleColumns = []string{
	"id", "field_name", "extraction_type", "pattern", "priority", "confidence_threshold", "version",
	"status", "created_at", "updated_at",
}

type RuleRepository interface {
	Create(ctx context.Context, rule *entity.MappingRule) error
	Get(ctx context.Context, id uuid.UUID) (*entity.MappingRule, error)
	ListByField(ctx context.Context, fieldName string) ([]*entity.MappingRule, error)
	UpdatePattern(ctx context.Context, id uuid.UUID, extractionType string, pattern json.RawMessage) (*entity.MappingRule, error)
}

type ruleRepository struct {
	db     *DB
	logger *slog.Logger
}

func NewRuleRepository(db *DB, logger *slog.Logger) RuleRepository {
	return &ruleRepository{db: db, logger: logger}
}

func (r *ruleRepository) Create(ctx context.Context, rule *entity.MappingRule) error {
	now := time.Now().UTC()
	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	}
	if rule.Version == 0 {
		rule.Version = 1
	}
	if rule.Status == "" {
		rule.Status = constants.RuleStatusDraft
	}
	rule.CreatedAt, rule.UpdatedAt = now, now
	q, args := r.db.builder().Insert(rulesTable).
		Columns(ruleColumns...).
		Values(rule.ID.String(), rule.FieldName, rule.ExtractionType, string(rule.Pattern), rule.Priority,
			rule.ConfidenceThreshold, rule.Version, string(rule.Status), now, now).
		Query()
	if _, err := r.db.exec(ctx, q, args); err != nil {
		r.logger.Error("failed to create rule", "field", rule.FieldName, "error", err)
		return dbError("create rule", err)
	}
	return nil
}

func (r *ruleRepository) Get(ctx context.Context, id uuid.UUID) (*entity.MappingRule, error) {
	rules, err := r.list(ctx, entsql.EQ("id", id.String()))
	if err != nil {
		return nil, err
	}
	if len(rules) == 0 {
		return nil, common.NewAppError("RULE_NOT_FOUND", fmt.Sprintf("rule %s not found", id), common.ErrNotFound)
	}
	return rules[0], nil
}

// ListByField returns rules for fieldName, highest priority first.
func (r *ruleRepository) ListByField(ctx context.Context, fieldName string) ([]*entity.MappingRule, error) {
	return r.list(ctx, entsql.EQ("field_name", fieldName))
}

// UpdatePattern replaces the pattern and bumps the version.
func (r *ruleRepository) UpdatePattern(ctx context.Context, id uuid.UUID, extractionType string, pattern json.RawMessage) (*entity.MappingRule, error) {
	q, args := r.db.builder().Update(rulesTable).
		Set("extraction_type", extractionType).
		Set("pattern", string(pattern)).
		Add("version", 1).
		Set("updated_at", time.Now().UTC()).
		Where(entsql.EQ("id", id.String())).
		Query()
	n, err := r.db.exec(ctx, q, args)
	if err != nil {
		return nil, dbError("update rule pattern", err)
	}
	if n == 0 {
		return nil, common.NewAppError("RULE_NOT_FOUND", fmt.Sprintf("rule %s not found", id), common.ErrNotFound)
	}
	r.logger.Info("rule pattern updated", "rule_id", id, "extraction_type", extractionType)
	return r.Get(ctx, id)
}

func (r *ruleRepository) list(ctx context.Context, where *entsql.Predicate) ([]*entity.MappingRule, error) {
	b := r.db.builder()
	q, args := b.Select(ruleColumns...).From(b.Table(rulesTable)).
		Where(where).
		OrderBy(entsql.Desc("priority"), entsql.Asc("created_at")).
		Query()
	var out []*entity.MappingRule
	err := r.db.query(ctx, q, args, func(rows *entsql.Rows) error {
		var (
			m       entity.MappingRule
			pattern []byte
			status  string
		)
		if err := rows.Scan(&m.ID, &m.FieldName, &m.ExtractionType, &pattern, &m.Priority,
			&m.ConfidenceThreshold, &m.Version, &status, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return err
		}
		m.Pattern = json.RawMessage(pattern)
		m.Status = constants.RuleStatus(status)
		out = append(out, &m)
		return nil
	})
	if err != nil {
		return nil, dbError("list rules", err)
	}
	return out, nil
}
