package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/invoice-rules/constants"
	"github.com/joseph-ayodele/invoice-rules/internal/entity"
	"github.com/joseph-ayodele/invoice-rules/internal/recommend"
	"github.com/joseph-ayodele/invoice-rules/internal/utils"
)

const (
	DetailsSheet = "Details"
	SummarySheet = "Summary"
)

// DetailHeaders are the stable column names of the Details sheet.
var DetailHeaders = []string{
	"Document ID",
	"Original Result",
	"Original Confidence",
	"Test Result",
	"Test Confidence",
	"Actual Value",
	"Original Accurate",
	"Test Accurate",
	"Change Type",
}

// Source reads a task and its details. regression.Service implements it.
type Source interface {
	Get(ctx context.Context, id uuid.UUID) (*entity.TestTask, error)
	Details(ctx context.Context, id uuid.UUID) ([]entity.TestDetail, error)
}

// Service produces XLSX bytes for regression reports.
type Service struct {
	source     Source
	thresholds recommend.Thresholds
	logger     *slog.Logger
}

func NewService(source Source, thresholds recommend.Thresholds, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{source: source, thresholds: thresholds, logger: logger}
}

// ExportTestXLSX returns a workbook with a Details sheet in corpus order and a Summary sheet.
// Tasks that did not complete are exported with their partial details and no verdict.
func (s *Service) ExportTestXLSX(ctx context.Context, taskID uuid.UUID) ([]byte, error) {
	start := time.Now()

	task, err := s.source.Get(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("load task: %w", err)
	}
	details, err := s.source.Details(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("load details: %w", err)
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := writeDetails(f, details); err != nil {
		return nil, err
	}
	if err := s.writeSummary(f, task); err != nil {
		return nil, err
	}
	if idx, _ := f.GetSheetIndex("Sheet1"); idx != -1 {
		_ = f.DeleteSheet("Sheet1")
	}
	activeIndex, _ := f.GetSheetIndex(SummarySheet)
	f.SetActiveSheet(activeIndex)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"task_id", taskID.String(),
		"status", task.Status,
		"rows", len(details),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func writeDetails(f *excelize.File, details []entity.TestDetail) error {
	if _, err := f.NewSheet(DetailsSheet); err != nil {
		return err
	}
	if err := f.SetSheetRow(DetailsSheet, "A1", &DetailHeaders); err != nil {
		return err
	}

	for i, d := range details {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		row := []any{
			d.DocumentID,
			utils.StrOrEmpty(d.OriginalResult),
			d.OriginalConfidence,
			utils.StrOrEmpty(d.TestResult),
			d.TestConfidence,
			utils.StrOrEmpty(d.ActualValue),
			d.OriginalAccurate,
			d.TestAccurate,
			string(d.ChangeType),
		}
		if err := f.SetSheetRow(DetailsSheet, cell, &row); err != nil {
			return err
		}
	}

	_ = f.SetColWidth(DetailsSheet, "A", "A", 24) // document
	_ = f.SetColWidth(DetailsSheet, "B", "B", 28)
	_ = f.SetColWidth(DetailsSheet, "D", "D", 28)
	_ = f.SetColWidth(DetailsSheet, "F", "F", 28)
	_ = f.SetColWidth(DetailsSheet, "I", "I", 14)
	return nil
}

func (s *Service) writeSummary(f *excelize.File, task *entity.TestTask) error {
	if _, err := f.NewSheet(SummarySheet); err != nil {
		return err
	}
	rows := [][]any{
		{"Task ID", task.ID.String()},
		{"Field", task.FieldName},
		{"Rule Type", task.RuleType},
		{"Status", string(task.Status)},
		{"Total Documents", task.TotalDocuments},
		{"Tested Documents", task.TestedDocuments},
		{"Errors", task.ErrorCount},
	}
	if task.ErrorMessage != nil {
		rows = append(rows, []any{"Error Message", truncate(*task.ErrorMessage, 500)})
	}
	if sm := task.Summary; sm != nil {
		rows = append(rows,
			[]any{"Improved", sm.Improved},
			[]any{"Regressed", sm.Regressed},
			[]any{"Both Right", sm.BothRight},
			[]any{"Both Wrong", sm.BothWrong},
			[]any{"Improvement Rate", sm.ImprovementRate},
			[]any{"Regression Rate", sm.RegressionRate},
			[]any{"Net Improvement", sm.NetImprovement},
			[]any{"Original Accuracy", sm.OriginalAccuracy},
			[]any{"Test Accuracy", sm.TestAccuracy},
		)
	}
	if task.Status == constants.TaskStatusCompleted && task.Summary != nil {
		rec := recommend.Recommend(*task.Summary, s.thresholds)
		rows = append(rows, []any{"Verdict", string(rec.Verdict)}, []any{"Rationale", rec.Rationale})
	} else {
		rows = append(rows, []any{"Verdict", "n/a (" + string(task.Status) + ", partial results)"})
	}

	for i, r := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(SummarySheet, cell, &r); err != nil {
			return err
		}
	}
	_ = f.SetColWidth(SummarySheet, "A", "A", 20)
	_ = f.SetColWidth(SummarySheet, "B", "B", 60)
	return nil
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:n]
	}
	return s[:n-1] + "…"
}
