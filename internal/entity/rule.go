package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/invoice-rules/constants"
)

// MappingRule binds a field name to a stored extraction pattern.
type MappingRule struct {
	ID                  uuid.UUID            `json:"id"`
	FieldName           string               `json:"fieldName"`
	ExtractionType      string               `json:"extractionType"`
	Pattern             json.RawMessage      `json:"pattern"`
	Priority            int                  `json:"priority"`
	ConfidenceThreshold float64              `json:"confidenceThreshold"`
	Version             int                  `json:"version"`
	Status              constants.RuleStatus `json:"status"`
	CreatedAt           time.Time            `json:"createdAt"`
	UpdatedAt           time.Time            `json:"updatedAt"`
}
