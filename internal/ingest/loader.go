package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joseph-ayodele/invoice-rules/constants"
	"github.com/joseph-ayodele/invoice-rules/internal/document"
)

// Loader writes views and ground truth found on disk into the stores.
type Loader struct {
	docs   DocumentSink
	truth  GroundTruthSink
	ocr    ImageOCR
	logger *slog.Logger
}

// NewLoader builds a loader. A nil ocr makes image files fail with an error result.
func NewLoader(docs DocumentSink, truth GroundTruthSink, ocr ImageOCR, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{docs: docs, truth: truth, ocr: ocr, logger: logger}
}

// LoadPath loads a single file: a serialized view, an image for OCR, or a ground truth sidecar.
func (l *Loader) LoadPath(ctx context.Context, path string) (FileResult, error) {
	out := FileResult{Path: path}
	if filepath.Base(path) == constants.GroundTruthFile {
		out.Source = SourceGroundTruth
		ids, err := l.loadGroundTruth(ctx, path)
		out.DocumentIDs = ids
		return out, err
	}

	ext := constants.NormalizeExt(filepath.Ext(path))
	var (
		view *document.View
		err  error
	)
	switch {
	case isDocumentExt(ext):
		out.Source = SourceView
		view, err = readView(path)
	case isImageExt(ext):
		out.Source = SourceOCR
		view, err = l.extractImage(ctx, path)
	default:
		return out, fmt.Errorf("unsupported or missing extension: %q", ext)
	}
	if err != nil {
		return out, err
	}
	if view.ReceivedAt.IsZero() {
		if info, statErr := os.Stat(path); statErr == nil {
			view.ReceivedAt = info.ModTime()
		}
	}
	if err := l.docs.Save(ctx, view); err != nil {
		return out, fmt.Errorf("save %s: %w", view.ID, err)
	}
	out.DocumentIDs = []string{view.ID}
	l.logger.Debug("document loaded", "path", path, "document_id", view.ID, "source", out.Source)
	return out, nil
}

// LoadDirectory walks root, skips hidden entries if requested, and calls LoadPath for each
// loadable file. Returns per-file results + aggregate stats.
func (l *Loader) LoadDirectory(ctx context.Context, root string, skipHidden bool) ([]FileResult, DirStats, error) {
	if strings.TrimSpace(root) == "" {
		return nil, DirStats{}, errors.New("root path is required")
	}

	var results []FileResult
	var stats DirStats

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		stats.Scanned++
		if walkErr != nil {
			results = append(results, FileResult{Path: path, Err: walkErr.Error()})
			stats.Failed++
			return nil
		}
		if skipHidden && path != root && IsHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !Loadable(path) {
			return nil
		}
		stats.Matched++

		r, err := l.LoadPath(ctx, path)
		if err != nil {
			l.logger.Warn("failed to load file", "path", path, "error", err)
			r.Err = err.Error()
			results = append(results, r)
			stats.Failed++
			return nil
		}
		results = append(results, r)
		stats.Succeeded++
		if r.Source == SourceGroundTruth {
			stats.Truths += uint32(len(r.DocumentIDs))
		} else {
			stats.Documents++
		}
		return nil
	})
	if err != nil {
		return results, stats, fmt.Errorf("walk: %w", err)
	}

	l.logger.Info("directory loaded",
		"root", root,
		"scanned", stats.Scanned,
		"matched", stats.Matched,
		"documents", stats.Documents,
		"ground_truth", stats.Truths,
		"failed", stats.Failed)
	return results, stats, nil
}

func (l *Loader) extractImage(ctx context.Context, path string) (*document.View, error) {
	if l.ocr == nil {
		return nil, fmt.Errorf("no ocr extractor configured for %s", filepath.Base(path))
	}
	res, err := l.ocr.Extract(ctx, path, "")
	if err != nil {
		return nil, err
	}
	for _, w := range res.Warnings {
		l.logger.Warn("ocr warning", "path", path, "warning", w)
	}
	return res.View, nil
}

func readView(path string) (*document.View, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	v, err := document.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return v, nil
}

func isDocumentExt(ext string) bool {
	_, ok := constants.DocumentExtensions[ext]
	return ok
}

func isImageExt(ext string) bool {
	_, ok := constants.ImageExtensions[ext]
	return ok
}
