package entity

import (
	"github.com/google/uuid"

	"github.com/joseph-ayodele/invoice-rules/constants"
)

// TestDetail is the per-document comparison record. The JSON names are consumed by reporting
// and export and must not change.
type TestDetail struct {
	TaskID             uuid.UUID            `json:"-"`
	Seq                int                  `json:"-"`
	DocumentID         string               `json:"documentId"`
	OriginalResult     *string              `json:"originalResult"`
	OriginalConfidence float64              `json:"originalConfidence"`
	TestResult         *string              `json:"testResult"`
	TestConfidence     float64              `json:"testConfidence"`
	ActualValue        *string              `json:"actualValue"`
	OriginalAccurate   bool                 `json:"originalAccurate"`
	TestAccurate       bool                 `json:"testAccurate"`
	ChangeType         constants.ChangeType `json:"changeType"`
}
