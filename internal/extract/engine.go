// Package extract interprets extraction patterns against a document view.
//
// Execute never returns an error: every recoverable failure (bad regex, missing layout, no
// match, collaborator timeout) yields an Outcome with a nil Value, zero Confidence and a
// Diagnostic explaining what happened. Malformed patterns are rejected earlier by
// pattern.Decode.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/joseph-ayodele/invoice-rules/internal/document"
	"github.com/joseph-ayodele/invoice-rules/internal/llm"
	"github.com/joseph-ayodele/invoice-rules/internal/pattern"
)

// Fixed confidences reported on a successful extraction.
const (
	RegexConfidence            = 0.9
	KeywordConfidence          = 0.75
	PositionConfidence         = 0.85
	PositionFallbackConfidence = 0.6
	TableConfidence            = 0.8
)

const defaultAITimeout = 30 * time.Second

// Located is where on the document a value was found.
type Located struct {
	Page int                  `json:"page"`
	Box  document.BoundingBox `json:"box"`
}

// Outcome is the result of one pattern execution.
type Outcome struct {
	Value      *string  `json:"value"`
	Confidence float64  `json:"confidence"`
	Position   *Located `json:"position,omitempty"`
	Diagnostic string   `json:"diagnostic,omitempty"`
}

// Request carries one execution. Fields holds values already extracted from the same document
// and is only read by AI-assisted patterns.
type Request struct {
	Pattern  pattern.Pattern
	Document *document.View
	Fields   map[string]string
}

// Observer is notified after every execution.
type Observer func(kind pattern.Kind, out Outcome, elapsed time.Duration)

type Engine struct {
	completer llm.Completer
	aiTimeout time.Duration
	observer  Observer
	logger    *slog.Logger
}

type Option func(*Engine)

// WithCompleter sets the model collaborator used by AI-assisted patterns.
func WithCompleter(c llm.Completer) Option {
	return func(e *Engine) { e.completer = c }
}

// WithAITimeout bounds a model call when the pattern does not set its own timeout.
func WithAITimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.aiTimeout = d
		}
	}
}

func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		aiTimeout: defaultAITimeout,
		logger:    slog.Default(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Execute runs req.Pattern against req.Document.
func (e *Engine) Execute(ctx context.Context, req Request) Outcome {
	start := time.Now()

	var out Outcome
	switch {
	case req.Pattern == nil:
		out = fail("no pattern supplied")
	case req.Document == nil:
		out = fail("no document supplied")
	default:
		out = pattern.Visit[Outcome](req.Pattern, executor{ctx: ctx, req: req, engine: e})
	}
	out = finalize(out)

	if req.Pattern != nil {
		if out.Value == nil {
			e.logger.Debug("extract.no_value", "kind", req.Pattern.Kind(), "diagnostic", out.Diagnostic)
		}
		if e.observer != nil {
			e.observer(req.Pattern.Kind(), out, time.Since(start))
		}
	}
	return out
}

// executor binds one request to the pattern visitor.
type executor struct {
	ctx    context.Context
	req    Request
	engine *Engine
}

func fail(format string, args ...any) Outcome {
	return Outcome{Diagnostic: fmt.Sprintf(format, args...)}
}

func found(value string, confidence float64) Outcome {
	return Outcome{Value: &value, Confidence: confidence}
}

// finalize enforces confidence ∈ [0,1] and Value == nil ⇒ Confidence == 0.
func finalize(out Outcome) Outcome {
	if out.Value == nil {
		out.Confidence = 0
		out.Position = nil
		return out
	}
	if math.IsNaN(out.Confidence) {
		out.Confidence = 0
	}
	out.Confidence = min(max(out.Confidence, 0), 1)
	return out
}
