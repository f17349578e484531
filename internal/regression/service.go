package regression

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/invoice-rules/constants"
	"github.com/joseph-ayodele/invoice-rules/internal/common"
	"github.com/joseph-ayodele/invoice-rules/internal/document"
	"github.com/joseph-ayodele/invoice-rules/internal/entity"
	"github.com/joseph-ayodele/invoice-rules/internal/extract"
	"github.com/joseph-ayodele/invoice-rules/internal/pattern"
	"github.com/joseph-ayodele/invoice-rules/internal/recommend"
)

// SubmitRequest asks for a regression test. When RuleID is set, the rule's current pattern is
// the original and FieldName defaults to the rule's field.
type SubmitRequest struct {
	RuleID          *uuid.UUID
	FieldName       string
	OriginalType    string
	OriginalPattern json.RawMessage
	TestType        string
	TestPattern     json.RawMessage
	Corpus          entity.CorpusSelection
}

// PreviewRequest runs one pattern against one stored document.
type PreviewRequest struct {
	Type       string
	Pattern    json.RawMessage
	DocumentID string
	Fields     map[string]string
}

// Service is the entry point used by transports and the batch CLI.
type Service struct {
	tasks      TaskStore
	details    DetailStore
	rules      RuleStore
	corpus     CorpusResolver
	docs       document.Store
	engine     Extractor
	queue      Queue
	cancels    *Cancellations
	thresholds recommend.Thresholds
	logger     *slog.Logger
}

type ServiceDeps struct {
	Tasks      TaskStore
	Details    DetailStore
	Rules      RuleStore
	Corpus     CorpusResolver
	Documents  document.Store
	Engine     Extractor
	Queue      Queue
	Cancels    *Cancellations
	Thresholds recommend.Thresholds
	Logger     *slog.Logger
}

func NewService(d ServiceDeps) *Service {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Cancels == nil {
		d.Cancels = NewCancellations()
	}
	return &Service{
		tasks:      d.Tasks,
		details:    d.Details,
		rules:      d.Rules,
		corpus:     d.Corpus,
		docs:       d.Documents,
		engine:     d.Engine,
		queue:      d.Queue,
		cancels:    d.Cancels,
		thresholds: d.Thresholds,
		logger:     d.Logger,
	}
}

// Submit validates both patterns and the corpus selection, stores a PENDING task and queues it.
// Validation failures return an error wrapping common.ErrValidation and store nothing.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*entity.TestTask, error) {
	if req.RuleID != nil {
		if s.rules == nil {
			return nil, common.NewAppError("RULES_UNAVAILABLE", "rule lookup is not configured", common.ErrInvalidInput)
		}
		rule, err := s.rules.Get(ctx, *req.RuleID)
		if err != nil {
			return nil, fmt.Errorf("load rule %s: %w", req.RuleID, err)
		}
		if len(req.OriginalPattern) == 0 {
			req.OriginalType = rule.ExtractionType
			req.OriginalPattern = rule.Pattern
		}
		if req.FieldName == "" {
			req.FieldName = rule.FieldName
		}
	}
	if req.TestType == "" {
		req.TestType = req.OriginalType
	}

	field := strings.TrimSpace(req.FieldName)
	if f, ok := constants.CanonicalField(field); ok {
		field = string(f)
	}
	v := common.NewValidator().
		Field("fieldName", field, common.Required, common.FieldName, common.MaxLength(128))
	if v.HasErrors() {
		return nil, v.Error("INVALID_REQUEST")
	}
	if err := s.corpus.Validate(req.Corpus); err != nil {
		return nil, err
	}
	orig, err := pattern.Decode(req.OriginalType, req.OriginalPattern)
	if err != nil {
		return nil, fmt.Errorf("originalPattern: %w", err)
	}
	test, err := pattern.Decode(req.TestType, req.TestPattern)
	if err != nil {
		return nil, fmt.Errorf("testPattern: %w", err)
	}
	for _, p := range []struct {
		name string
		pat  pattern.Pattern
	}{{"originalPattern", orig}, {"testPattern", test}} {
		if name, ok := selfContext(p.pat, field); ok {
			v.Check(false, p.name+".contextFields", name, "must not include the field under test")
		}
	}
	if err := v.Error("INVALID_PATTERN"); err != nil {
		return nil, err
	}

	task := &entity.TestTask{
		ID:              uuid.New(),
		RuleID:          req.RuleID,
		FieldName:       field,
		RuleType:        req.TestType,
		OriginalType:    req.OriginalType,
		OriginalPattern: req.OriginalPattern,
		TestPattern:     req.TestPattern,
		Corpus:          req.Corpus,
		Status:          constants.TaskStatusPending,
		CreatedAt:       time.Now().UTC(),
	}
	if err := s.tasks.Create(ctx, task); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	s.logger.Info("regression.task.submitted",
		"task_id", task.ID, "field", task.FieldName, "rule_type", task.RuleType, "corpus_mode", task.Corpus.Mode)

	if err := s.queue.Enqueue(ctx, task.ID); err != nil {
		final, cancel := finalContext(ctx)
		defer cancel()
		if fErr := s.tasks.Fail(final, task.ID, "enqueue failed: "+err.Error()); fErr != nil {
			s.logger.Error("regression.task.fail_record_failed", "task_id", task.ID, "error", fErr)
		}
		return nil, fmt.Errorf("enqueue task: %w", err)
	}
	return s.tasks.Get(ctx, task.ID)
}

// Get returns the current task snapshot. It is safe to poll while the task runs.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*entity.TestTask, error) {
	return s.tasks.Get(ctx, id)
}

// Details returns the task's TestDetail records in corpus order.
func (s *Service) Details(ctx context.Context, id uuid.UUID) ([]entity.TestDetail, error) {
	if _, err := s.tasks.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.details.List(ctx, id)
}

// Cancel requests cooperative cancellation. A PENDING task is cancelled immediately; a RUNNING
// task stops at the next document boundary.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*entity.TestTask, error) {
	task, err := s.tasks.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if task.Status.IsTerminal() {
		return nil, common.NewAppError("TASK_TERMINAL", fmt.Sprintf("task is already %s", task.Status), common.ErrConflict)
	}

	s.cancels.Request(id)
	if task.Status == constants.TaskStatusPending {
		if err := s.tasks.CancelPending(ctx, id); err != nil && !errors.Is(err, common.ErrConflict) {
			return nil, fmt.Errorf("cancel task: %w", err)
		}
	}
	s.logger.Info("regression.task.cancel_requested", "task_id", id, "status", task.Status)
	return s.tasks.Get(ctx, id)
}

// Preview executes one pattern against one document and returns the outcome with its
// diagnostic. Malformed patterns are a validation error.
func (s *Service) Preview(ctx context.Context, req PreviewRequest) (extract.Outcome, error) {
	p, err := pattern.Decode(req.Type, req.Pattern)
	if err != nil {
		return extract.Outcome{}, err
	}
	if req.DocumentID == "" {
		return extract.Outcome{}, common.NewValidator().Field("documentId", req.DocumentID, common.Required).Error("INVALID_REQUEST")
	}
	doc, err := s.docs.Get(ctx, req.DocumentID)
	if err != nil {
		return extract.Outcome{}, err
	}
	return s.engine.Execute(ctx, extract.Request{Pattern: p, Document: doc, Fields: req.Fields}), nil
}

// Recommendation evaluates a COMPLETED task's summary against the configured thresholds.
func (s *Service) Recommendation(ctx context.Context, id uuid.UUID) (recommend.Recommendation, *entity.TestTask, error) {
	task, err := s.tasks.Get(ctx, id)
	if err != nil {
		return recommend.Recommendation{}, nil, err
	}
	if task.Status != constants.TaskStatusCompleted || task.Summary == nil {
		return recommend.Recommendation{}, task, common.NewAppError("TASK_NOT_COMPLETED",
			fmt.Sprintf("task is %s; a recommendation needs a completed run", task.Status), common.ErrConflict)
	}
	return recommend.Recommend(*task.Summary, s.thresholds), task, nil
}

// Thresholds returns the thresholds recommendations are evaluated against.
func (s *Service) Thresholds() recommend.Thresholds {
	return s.thresholds
}
