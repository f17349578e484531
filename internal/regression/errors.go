package regression

import (
	"errors"
	"fmt"
)

// ErrTaskFatal marks a failure outside the per-document boundary. The task becomes FAILED.
var ErrTaskFatal = errors.New("regression task failed")

// Document processing stages reported in DocumentError.Stage.
const (
	StageFetchDocument   = "fetch_document"
	StageExtractOriginal = "extract_original"
	StageExtractTest     = "extract_test"
	StageGroundTruth     = "ground_truth"
	StagePersistDetail   = "persist_detail"
)

// DocumentError is a failure confined to one document. It is counted and the run continues.
type DocumentError struct {
	DocumentID string
	Stage      string
	Err        error
}

func (e *DocumentError) Error() string {
	return fmt.Sprintf("document %s: %s: %v", e.DocumentID, e.Stage, e.Err)
}

func (e *DocumentError) Unwrap() error {
	return e.Err
}

func fatal(stage string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrTaskFatal, stage, err)
}
