package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/invoice-rules/constants"
)

// TestTask is one regression run comparing an original pattern with a candidate pattern.
type TestTask struct {
	ID              uuid.UUID            `json:"id"`
	RuleID          *uuid.UUID           `json:"ruleId,omitempty"`
	FieldName       string               `json:"fieldName"`
	RuleType        string               `json:"ruleType"`
	OriginalType    string               `json:"originalType"`
	OriginalPattern json.RawMessage      `json:"originalPattern"`
	TestPattern     json.RawMessage      `json:"testPattern"`
	Corpus          CorpusSelection      `json:"corpus"`
	Status          constants.TaskStatus `json:"status"`
	Progress        int                  `json:"progress"`
	TotalDocuments  int                  `json:"totalDocuments"`
	TestedDocuments int                  `json:"testedDocuments"`
	ErrorCount      int                  `json:"errorCount"`
	Summary         *Summary             `json:"summary,omitempty"`
	ErrorMessage    *string              `json:"errorMessage,omitempty"`
	CreatedAt       time.Time            `json:"createdAt"`
	StartedAt       *time.Time           `json:"startedAt,omitempty"`
	FinishedAt      *time.Time           `json:"finishedAt,omitempty"`
}

// Summary is the aggregate attached to a COMPLETED task. Rates are fractions in [0,1].
type Summary struct {
	Total            int     `json:"total"`
	Improved         int     `json:"improved"`
	Regressed        int     `json:"regressed"`
	BothRight        int     `json:"bothRight"`
	BothWrong        int     `json:"bothWrong"`
	Errors           int     `json:"errors"`
	ImprovementRate  float64 `json:"improvementRate"`
	RegressionRate   float64 `json:"regressionRate"`
	NetImprovement   int     `json:"netImprovement"`
	OriginalAccuracy float64 `json:"originalAccuracy"`
	TestAccuracy     float64 `json:"testAccuracy"`
}
