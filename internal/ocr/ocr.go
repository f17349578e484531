// Package ocr turns scanned invoice images into document views by shelling out to tesseract.
package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joseph-ayodele/invoice-rules/constants"
	"github.com/joseph-ayodele/invoice-rules/internal/document"
)

type Config struct {
	Tesseract     string // binary name or absolute path; if empty -> "tesseract"
	TesseractLang string // default "eng"
	TessdataDir   string

	PSM int // e.g., 6 is good for uniform block of text
	OEM int // 1 = LSTM; leave 0 to use default
}

// ExtractionResult is one OCR run over an image.
type ExtractionResult struct {
	View       *document.View
	Language   string
	Duration   time.Duration
	Confidence float64
	Warnings   []string
}

type Extractor struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

func NewExtractor(cfg Config, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return newExtractor(cfg, execRunner{logger: logger}, logger)
}

func newExtractor(cfg Config, runner Runner, logger *slog.Logger) *Extractor {
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.TesseractLang == "" {
		cfg.TesseractLang = "eng"
	}
	return &Extractor{cfg: cfg, runner: runner, logger: logger}
}

// Extract OCRs an image into a view with a pixel-unit layout. An empty id derives
// the document id from the file name.
func (e *Extractor) Extract(ctx context.Context, path, id string) (ExtractionResult, error) {
	start := time.Now()
	ext := constants.NormalizeExt(filepath.Ext(path))
	if _, ok := constants.ImageExtensions[ext]; !ok {
		e.logger.Error("unsupported ocr extension", "extension", ext)
		return ExtractionResult{}, fmt.Errorf("unsupported extension: %q", ext)
	}
	if id == "" {
		id = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	e.logger.Debug("starting ocr extraction", "path", path, "document_id", id)

	stdout, stderr, err := e.runner.Run(ctx, e.cfg.Tesseract, e.args(path)...)
	if err != nil {
		return ExtractionResult{}, fmt.Errorf("tesseract %s: %w: %s", filepath.Base(path), err, strings.TrimSpace(string(stderr)))
	}
	parsed, err := ParseTSV(stdout)
	if err != nil {
		return ExtractionResult{}, fmt.Errorf("tesseract %s: %w", filepath.Base(path), err)
	}

	res := ExtractionResult{
		View: &document.View{
			ID:     id,
			Text:   Normalize(parsed.Text),
			Layout: parsed.Layout,
		},
		Language:   e.cfg.TesseractLang,
		Confidence: parsed.Confidence,
		Duration:   time.Since(start),
	}
	if res.View.Text == "" {
		res.Warnings = append(res.Warnings, "tesseract returned no text")
	}
	if len(parsed.Layout.Pages) == 0 {
		res.View.Layout = nil
	}
	e.logger.Info("ocr extraction done",
		"document_id", id,
		"pages", len(parsed.Layout.Pages),
		"confidence", res.Confidence,
		"duration_ms", res.Duration.Milliseconds())
	return res, nil
}

func (e *Extractor) args(path string) []string {
	args := []string{path, "stdout", "-l", e.cfg.TesseractLang}
	if e.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", e.cfg.TessdataDir)
	}
	if e.cfg.PSM > 0 {
		args = append(args, "--psm", strconv.Itoa(e.cfg.PSM))
	}
	if e.cfg.OEM > 0 {
		args = append(args, "--oem", strconv.Itoa(e.cfg.OEM))
	}
	return append(args, "tsv")
}
