// Package regression replays an original and a candidate pattern over a document corpus and
// classifies each document against ground truth.
package regression

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/invoice-rules/constants"
	"github.com/joseph-ayodele/invoice-rules/internal/classify"
	"github.com/joseph-ayodele/invoice-rules/internal/document"
	"github.com/joseph-ayodele/invoice-rules/internal/entity"
	"github.com/joseph-ayodele/invoice-rules/internal/extract"
	"github.com/joseph-ayodele/invoice-rules/internal/pattern"
)

// Extractor is the extraction engine as seen by the runner.
type Extractor interface {
	Execute(ctx context.Context, req extract.Request) extract.Outcome
}

// GroundTruth returns the verified value of a field, nil when none is recorded.
type GroundTruth interface {
	Get(ctx context.Context, documentID, fieldName string) (*string, error)
}

// Job is one replay over a resolved corpus.
type Job struct {
	TaskID      uuid.UUID
	FieldName   string
	Original    pattern.Pattern
	Test        pattern.Pattern
	DocumentIDs []string
}

// Progress is published after every finished document. Tested counts failed documents too.
type Progress struct {
	Tested  int
	Errors  int
	Total   int
	Percent int
}

// Hooks connect a run to persistence and cancellation. All fields are optional.
type Hooks struct {
	// OnDetail persists a detail. An error turns the document into a DocumentError.
	OnDetail func(ctx context.Context, d entity.TestDetail) error
	// OnProgress is called with strictly increasing Tested values.
	OnProgress func(ctx context.Context, p Progress)
	// OnResult observes every per-document result.
	OnResult func(r DocumentResult)
	// Cancelled is polled before each document.
	Cancelled func() bool
}

// DocumentResult holds exactly one of Detail and Err.
type DocumentResult struct {
	DocumentID string
	Detail     *entity.TestDetail
	Err        *DocumentError
}

// Report is what a run produced. Details are in corpus order.
type Report struct {
	Details   []entity.TestDetail
	Errors    []DocumentError
	Total     int
	Tested    int
	Cancelled bool
	Summary   entity.Summary
}

type Runner struct {
	engine      Extractor
	docs        document.Store
	truth       GroundTruth
	parallelism int
	logger      *slog.Logger
}

type RunnerOption func(*Runner)

// WithParallelism sets how many documents of one task are processed at once.
func WithParallelism(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.parallelism = n
		}
	}
}

func WithRunnerLogger(l *slog.Logger) RunnerOption {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

func NewRunner(engine Extractor, docs document.Store, truth GroundTruth, opts ...RunnerOption) *Runner {
	r := &Runner{
		engine:      engine,
		docs:        docs,
		truth:       truth,
		parallelism: 1,
		logger:      slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Run processes job.DocumentIDs. Per-document failures end up in Report.Errors. An error is
// returned only when ctx ends before the corpus is exhausted; the partial report is returned
// with it.
func (r *Runner) Run(ctx context.Context, job Job, hooks Hooks) (Report, error) {
	total := len(job.DocumentIDs)
	results := make([]*DocumentResult, total)

	var (
		tested    atomic.Int64
		failed    atomic.Int64
		cancelled atomic.Bool
		pubMu     sync.Mutex
		published int
	)

	isCancelled := func() bool {
		if cancelled.Load() {
			return true
		}
		if hooks.Cancelled != nil && hooks.Cancelled() {
			cancelled.Store(true)
			return true
		}
		return false
	}

	publish := func() {
		pubMu.Lock()
		defer pubMu.Unlock()
		cur := int(tested.Load())
		if cur <= published {
			return
		}
		published = cur
		if hooks.OnProgress != nil {
			hooks.OnProgress(ctx, Progress{
				Tested:  cur,
				Errors:  int(failed.Load()),
				Total:   total,
				Percent: percent(cur, total),
			})
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.parallelism)
	for i, id := range job.DocumentIDs {
		if isCancelled() || gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if isCancelled() || gctx.Err() != nil {
				return nil
			}
			res := r.process(gctx, job, i, id, hooks)
			results[i] = &res
			if res.Err != nil {
				failed.Add(1)
				r.logger.Warn("regression.document.failed",
					"task_id", job.TaskID, "document_id", id, "stage", res.Err.Stage, "error", res.Err.Err)
			}
			tested.Add(1)
			if hooks.OnResult != nil {
				hooks.OnResult(res)
			}
			publish()
			return nil
		})
	}
	_ = g.Wait()

	report := Report{Total: total, Tested: int(tested.Load()), Cancelled: cancelled.Load()}
	for _, res := range results {
		if res == nil {
			continue
		}
		if res.Detail != nil {
			report.Details = append(report.Details, *res.Detail)
		} else {
			report.Errors = append(report.Errors, *res.Err)
		}
	}
	report.Summary = Summarize(report.Details, len(report.Errors))

	if err := ctx.Err(); err != nil && report.Tested < total && !report.Cancelled {
		return report, fmt.Errorf("run interrupted after %d of %d documents: %w", report.Tested, total, err)
	}
	return report, nil
}

// process handles one document. Panics inside the engine or the collaborators are converted
// into a DocumentError for the stage that was running.
func (r *Runner) process(ctx context.Context, job Job, seq int, id string, hooks Hooks) (res DocumentResult) {
	stage := StageFetchDocument
	res.DocumentID = id
	defer func() {
		if rec := recover(); rec != nil {
			res = DocumentResult{DocumentID: id, Err: &DocumentError{DocumentID: id, Stage: stage, Err: fmt.Errorf("panic: %v", rec)}}
		}
	}()
	docErr := func(err error) DocumentResult {
		return DocumentResult{DocumentID: id, Err: &DocumentError{DocumentID: id, Stage: stage, Err: err}}
	}

	doc, err := r.docs.Get(ctx, id)
	if err != nil {
		return docErr(err)
	}

	stage = StageGroundTruth
	fields, err := r.contextFields(ctx, id, job.FieldName, job.Original, job.Test)
	if err != nil {
		return docErr(err)
	}

	stage = StageExtractOriginal
	orig := r.engine.Execute(ctx, extract.Request{Pattern: job.Original, Document: doc, Fields: fields})
	stage = StageExtractTest
	test := r.engine.Execute(ctx, extract.Request{Pattern: job.Test, Document: doc, Fields: fields})

	stage = StageGroundTruth
	actual, err := r.truth.Get(ctx, id, job.FieldName)
	if err != nil {
		return docErr(err)
	}

	origOK := classify.IsAccurate(orig.Value, actual)
	testOK := classify.IsAccurate(test.Value, actual)
	d := entity.TestDetail{
		TaskID:             job.TaskID,
		Seq:                seq,
		DocumentID:         id,
		OriginalResult:     orig.Value,
		OriginalConfidence: orig.Confidence,
		TestResult:         test.Value,
		TestConfidence:     test.Confidence,
		ActualValue:        actual,
		OriginalAccurate:   origOK,
		TestAccurate:       testOK,
		ChangeType:         classify.FromAccuracy(origOK, testOK),
	}

	stage = StagePersistDetail
	if hooks.OnDetail != nil {
		if err := hooks.OnDetail(ctx, d); err != nil {
			return docErr(err)
		}
	}
	return DocumentResult{DocumentID: id, Detail: &d}
}

// contextFields loads the verified values AI-assisted patterns ask for as prompt context.
// The field under test is never loaded: its ground truth is the comparison baseline.
func (r *Runner) contextFields(ctx context.Context, id, fieldName string, patterns ...pattern.Pattern) (map[string]string, error) {
	var fields map[string]string
	for _, p := range patterns {
		ai, ok := p.(*pattern.AIAssisted)
		if !ok {
			continue
		}
		for _, name := range ai.ContextFields {
			if _, seen := fields[name]; seen || sameField(name, fieldName) {
				continue
			}
			v, err := r.truth.Get(ctx, id, name)
			if err != nil {
				return nil, fmt.Errorf("context field %s: %w", name, err)
			}
			if v == nil {
				continue
			}
			if fields == nil {
				fields = make(map[string]string)
			}
			fields[name] = *v
		}
	}
	return fields, nil
}

// sameField compares field names after canonicalization.
func sameField(a, b string) bool {
	return canonicalField(a) == canonicalField(b)
}

func canonicalField(name string) string {
	if f, ok := constants.CanonicalField(name); ok {
		return string(f)
	}
	return strings.TrimSpace(name)
}

// selfContext returns the context field of p that names fieldName, if any.
func selfContext(p pattern.Pattern, fieldName string) (string, bool) {
	ai, ok := p.(*pattern.AIAssisted)
	if !ok {
		return "", false
	}
	for _, name := range ai.ContextFields {
		if sameField(name, fieldName) {
			return name, true
		}
	}
	return "", false
}

func percent(tested, total int) int {
	if total <= 0 {
		return 100
	}
	return int(math.Round(float64(tested) / float64(total) * 100))
}
