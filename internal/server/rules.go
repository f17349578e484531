package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/invoice-rules/internal/common"
	"github.com/joseph-ayodele/invoice-rules/internal/entity"
	"github.com/joseph-ayodele/invoice-rules/internal/export"
	"github.com/joseph-ayodele/invoice-rules/internal/extract"
	"github.com/joseph-ayodele/invoice-rules/internal/recommend"
	"github.com/joseph-ayodele/invoice-rules/internal/regression"
)

type previewRequest struct {
	Type       string            `json:"type"`
	Pattern    json.RawMessage   `json:"pattern"`
	DocumentID string            `json:"documentId"`
	Fields     map[string]string `json:"fields,omitempty"`
}

type submitRequest struct {
	RuleID          string                 `json:"ruleId,omitempty"`
	FieldName       string                 `json:"fieldName,omitempty"`
	OriginalType    string                 `json:"originalType,omitempty"`
	OriginalPattern json.RawMessage        `json:"originalPattern,omitempty"`
	TestType        string                 `json:"testType,omitempty"`
	TestPattern     json.RawMessage        `json:"testPattern"`
	Corpus          entity.CorpusSelection `json:"corpus"`
}

type taskRequest struct {
	TaskID string `json:"taskId"`
}

type detailsResponse struct {
	TaskID  string              `json:"taskId"`
	Status  string              `json:"status"`
	Details []entity.TestDetail `json:"details"`
}

type recommendationResponse struct {
	TaskID    string            `json:"taskId"`
	Verdict   recommend.Verdict `json:"verdict"`
	Rationale string            `json:"rationale"`
	Summary   entity.Summary    `json:"summary"`
}

type exportResponse struct {
	TaskID   string `json:"taskId"`
	Filename string `json:"filename"`
	// XLSX is base64 encoded by encoding/json.
	XLSX []byte `json:"xlsx"`
}

// RuleTestService adapts regression.Service to the gRPC surface.
type RuleTestService struct {
	svc      *regression.Service
	exporter *export.Service
	logger   *slog.Logger
}

func NewRuleTestService(svc *regression.Service, exporter *export.Service, logger *slog.Logger) *RuleTestService {
	if logger == nil {
		logger = slog.Default()
	}
	return &RuleTestService{svc: svc, exporter: exporter, logger: logger}
}

func (s *RuleTestService) PreviewExtraction(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req previewRequest
	if err := decode(in, &req); err != nil {
		return nil, common.ToStatus(err)
	}
	out, err := s.svc.Preview(ctx, regression.PreviewRequest{
		Type:       req.Type,
		Pattern:    req.Pattern,
		DocumentID: strings.TrimSpace(req.DocumentID),
		Fields:     req.Fields,
	})
	if err != nil {
		s.logger.Warn("preview extraction failed", "document_id", req.DocumentID, "type", req.Type, "error", err)
		return nil, common.ToStatus(err)
	}
	return encode(out)
}

func (s *RuleTestService) SubmitTest(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req submitRequest
	if err := decode(in, &req); err != nil {
		return nil, common.ToStatus(err)
	}
	sub := regression.SubmitRequest{
		FieldName:       strings.TrimSpace(req.FieldName),
		OriginalType:    req.OriginalType,
		OriginalPattern: req.OriginalPattern,
		TestType:        req.TestType,
		TestPattern:     req.TestPattern,
		Corpus:          req.Corpus,
	}
	if rid := strings.TrimSpace(req.RuleID); rid != "" {
		id, err := uuid.Parse(rid)
		if err != nil {
			return nil, common.InvalidArgumentError("ruleId must be a UUID")
		}
		sub.RuleID = &id
	}

	task, err := s.svc.Submit(ctx, sub)
	if err != nil {
		s.logger.Warn("submit test rejected", "field", req.FieldName, "error", err)
		return nil, common.ToStatus(err)
	}
	return encode(task)
}

func (s *RuleTestService) GetTest(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := taskID(in)
	if err != nil {
		return nil, err
	}
	task, err := s.svc.Get(ctx, id)
	if err != nil {
		return nil, common.ToStatus(err)
	}
	return encode(task)
}

func (s *RuleTestService) CancelTest(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := taskID(in)
	if err != nil {
		return nil, err
	}
	task, err := s.svc.Cancel(ctx, id)
	if err != nil {
		return nil, common.ToStatus(err)
	}
	return encode(task)
}

func (s *RuleTestService) ListTestDetails(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := taskID(in)
	if err != nil {
		return nil, err
	}
	task, err := s.svc.Get(ctx, id)
	if err != nil {
		return nil, common.ToStatus(err)
	}
	details, err := s.svc.Details(ctx, id)
	if err != nil {
		return nil, common.ToStatus(err)
	}
	if details == nil {
		details = []entity.TestDetail{}
	}
	return encode(detailsResponse{TaskID: id.String(), Status: string(task.Status), Details: details})
}

func (s *RuleTestService) GetRecommendation(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := taskID(in)
	if err != nil {
		return nil, err
	}
	rec, task, err := s.svc.Recommendation(ctx, id)
	if err != nil {
		return nil, common.ToStatus(err)
	}
	return encode(recommendationResponse{TaskID: id.String(), Verdict: rec.Verdict, Rationale: rec.Rationale, Summary: *task.Summary})
}

func (s *RuleTestService) ExportTest(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := taskID(in)
	if err != nil {
		return nil, err
	}
	xlsx, err := s.exporter.ExportTestXLSX(ctx, id)
	if err != nil {
		if !errors.Is(err, common.ErrNotFound) {
			s.logger.Error("export.xlsx.failed", "task_id", id, "error", err)
		}
		return nil, common.ToStatus(err)
	}
	return encode(exportResponse{TaskID: id.String(), Filename: fmt.Sprintf("rule-test-%s.xlsx", id), XLSX: xlsx})
}

func taskID(in *structpb.Struct) (uuid.UUID, error) {
	var req taskRequest
	if err := decode(in, &req); err != nil {
		return uuid.Nil, common.ToStatus(err)
	}
	tid := strings.TrimSpace(req.TaskID)
	if tid == "" {
		return uuid.Nil, common.InvalidArgumentError("taskId is required")
	}
	id, err := uuid.Parse(tid)
	if err != nil {
		return uuid.Nil, common.InvalidArgumentError("taskId must be a UUID")
	}
	return id, nil
}

func strictUnmarshal(raw []byte, dst any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
