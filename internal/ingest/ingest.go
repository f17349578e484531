// Package ingest loads document views and ground truth from a directory into the stores
// the regression tester reads from.
package ingest

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/joseph-ayodele/invoice-rules/constants"
	"github.com/joseph-ayodele/invoice-rules/internal/document"
	"github.com/joseph-ayodele/invoice-rules/internal/ocr"
)

// Source says how a file was turned into store rows.
type Source string

const (
	SourceView        Source = "view"
	SourceOCR         Source = "ocr"
	SourceGroundTruth Source = "ground_truth"
)

// FileResult is the per-file load outcome.
type FileResult struct {
	Path        string
	DocumentIDs []string
	Source      Source
	Err         string
}

// DirStats summarizes a directory load.
type DirStats struct {
	Scanned   uint32
	Matched   uint32
	Succeeded uint32
	Failed    uint32
	Documents uint32
	Truths    uint32 // documents with ground truth rows
}

type DocumentSink interface {
	Save(ctx context.Context, v *document.View) error
}

type GroundTruthSink interface {
	Save(ctx context.Context, documentID string, values map[string]*string) error
}

// ImageOCR turns an image file into a view.
type ImageOCR interface {
	Extract(ctx context.Context, path, id string) (ocr.ExtractionResult, error)
}

// Loadable reports whether the loader handles the file at path.
func Loadable(path string) bool {
	if filepath.Base(path) == constants.GroundTruthFile {
		return true
	}
	ext := constants.NormalizeExt(filepath.Ext(path))
	if _, ok := constants.DocumentExtensions[ext]; ok {
		return true
	}
	_, ok := constants.ImageExtensions[ext]
	return ok
}

// IsHidden checks if a file or directory is hidden (starts with '.').
func IsHidden(path string) bool {
	base := filepath.Base(path)
	return strings.HasPrefix(base, ".") && base != "." && base != ".."
}
