package regression

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/invoice-rules/constants"
	"github.com/joseph-ayodele/invoice-rules/internal/common"
	"github.com/joseph-ayodele/invoice-rules/internal/document"
	"github.com/joseph-ayodele/invoice-rules/internal/entity"
	"github.com/joseph-ayodele/invoice-rules/internal/extract"
	"github.com/joseph-ayodele/invoice-rules/internal/pattern"
)

func sp(s string) *string { return &s }

// scriptedEngine answers by regex expression and document ID.
type scriptedEngine struct {
	values map[string]map[string]*string
	panics map[string]bool
}

func (e *scriptedEngine) Execute(_ context.Context, req extract.Request) extract.Outcome {
	if e.panics[req.Document.ID] {
		panic("engine exploded")
	}
	expr := req.Pattern.(*pattern.Regex).Expression
	v := e.values[expr][req.Document.ID]
	if v == nil {
		return extract.Outcome{Diagnostic: "no match"}
	}
	return extract.Outcome{Value: v, Confidence: extract.RegexConfidence}
}

type memDocs struct {
	missing map[string]bool
}

func (m *memDocs) Get(_ context.Context, id string) (*document.View, error) {
	if m.missing[id] {
		return nil, fmt.Errorf("document %s: %w", id, common.ErrNotFound)
	}
	return &document.View{ID: id, Text: "Invoice " + id}, nil
}

type memTruth struct {
	values map[string]map[string]*string
}

func (m *memTruth) Get(_ context.Context, docID, field string) (*string, error) {
	return m.values[docID][field], nil
}

type memTasks struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]*entity.TestTask
}

func newMemTasks() *memTasks {
	return &memTasks{tasks: make(map[uuid.UUID]*entity.TestTask)}
}

func (m *memTasks) Create(_ context.Context, t *entity.TestTask) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.tasks[t.ID] = &cp
	return nil
}

func (m *memTasks) Get(_ context.Context, id uuid.UUID) (*entity.TestTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, common.NewAppError("TASK_NOT_FOUND", "task not found", common.ErrNotFound)
	}
	cp := *t
	return &cp, nil
}

func (m *memTasks) transition(id uuid.UUID, fn func(t *entity.TestTask), from ...constants.TaskStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return common.ErrNotFound
	}
	for _, s := range from {
		if t.Status == s {
			fn(t)
			return nil
		}
	}
	return fmt.Errorf("task is %s: %w", t.Status, common.ErrConflict)
}

func (m *memTasks) Claim(_ context.Context, id uuid.UUID) error {
	return m.transition(id, func(t *entity.TestTask) { t.Status = constants.TaskStatusRunning }, constants.TaskStatusPending)
}

func (m *memTasks) SetTotal(_ context.Context, id uuid.UUID, total int) error {
	return m.transition(id, func(t *entity.TestTask) { t.TotalDocuments = total }, constants.TaskStatusRunning)
}

func (m *memTasks) UpdateProgress(_ context.Context, id uuid.UUID, tested, errs, progress int) error {
	return m.transition(id, func(t *entity.TestTask) {
		if progress < t.Progress {
			return
		}
		t.TestedDocuments, t.ErrorCount, t.Progress = tested, errs, progress
	}, constants.TaskStatusRunning)
}

func (m *memTasks) Complete(_ context.Context, id uuid.UUID, s entity.Summary, tested, errs int) error {
	return m.transition(id, func(t *entity.TestTask) {
		t.Status, t.Summary, t.Progress = constants.TaskStatusCompleted, &s, 100
		t.TestedDocuments, t.ErrorCount = tested, errs
	}, constants.TaskStatusRunning)
}

func (m *memTasks) Cancel(_ context.Context, id uuid.UUID, tested, errs int) error {
	return m.transition(id, func(t *entity.TestTask) {
		t.Status = constants.TaskStatusCancelled
		t.TestedDocuments, t.ErrorCount = tested, errs
	}, constants.TaskStatusPending, constants.TaskStatusRunning)
}

func (m *memTasks) CancelPending(_ context.Context, id uuid.UUID) error {
	return m.transition(id, func(t *entity.TestTask) { t.Status = constants.TaskStatusCancelled }, constants.TaskStatusPending)
}

func (m *memTasks) Fail(_ context.Context, id uuid.UUID, msg string) error {
	return m.transition(id, func(t *entity.TestTask) {
		t.Status, t.ErrorMessage = constants.TaskStatusFailed, &msg
	}, constants.TaskStatusPending, constants.TaskStatusRunning)
}

type memDetails struct {
	mu       sync.Mutex
	rows     []entity.TestDetail
	failFor  map[string]bool
	onInsert func(n int)
}

func (m *memDetails) Insert(_ context.Context, d entity.TestDetail) error {
	if m.failFor[d.DocumentID] {
		return errors.New("disk full")
	}
	m.mu.Lock()
	m.rows = append(m.rows, d)
	n := len(m.rows)
	m.mu.Unlock()
	if m.onInsert != nil {
		m.onInsert(n)
	}
	return nil
}

func (m *memDetails) List(_ context.Context, taskID uuid.UUID) ([]entity.TestDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []entity.TestDetail
	for _, d := range m.rows {
		if d.TaskID == taskID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

type staticCorpus struct {
	ids []string
	err error
}

func (c *staticCorpus) Validate(sel entity.CorpusSelection) error {
	if sel.Mode == "" {
		return common.NewValidator().Field("corpus.mode", "", common.Required).Error("INVALID_CORPUS")
	}
	return nil
}

func (c *staticCorpus) Resolve(context.Context, entity.CorpusSelection) ([]string, error) {
	return c.ids, c.err
}

type recordingQueue struct {
	mu  sync.Mutex
	ids []uuid.UUID
	err error
}

func (q *recordingQueue) Enqueue(_ context.Context, id uuid.UUID) error {
	if q.err != nil {
		return q.err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ids = append(q.ids, id)
	return nil
}

type countingRecorder struct {
	mu       sync.Mutex
	finished []string
	changes  map[string]int
	failures map[string]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{changes: map[string]int{}, failures: map[string]int{}}
}

func (r *countingRecorder) TaskFinished(status string, _ int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = append(r.finished, status)
}

func (r *countingRecorder) DocumentProcessed(ct string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes[ct]++
}

func (r *countingRecorder) DocumentFailed(stage string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[stage]++
}

func docIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("doc-%02d", i)
	}
	return ids
}

const (
	origExpr = `Invoice (\S+)`
	testExpr = `Invoice #?(\S+)`
)

// tenDocScenario yields 3 improved, 1 regressed and 6 both-right documents for invoiceNumber.
func tenDocScenario() (*scriptedEngine, *memTruth, []string) {
	ids := docIDs(10)
	eng := &scriptedEngine{values: map[string]map[string]*string{origExpr: {}, testExpr: {}}}
	truth := &memTruth{values: map[string]map[string]*string{}}
	for i, id := range ids {
		truth.values[id] = map[string]*string{"invoiceNumber": sp("INV-" + id)}
		good := sp("INV-" + id)
		switch {
		case i < 3:
			eng.values[origExpr][id] = sp("wrong")
			eng.values[testExpr][id] = good
		case i == 3:
			eng.values[origExpr][id] = good
			eng.values[testExpr][id] = nil
		default:
			eng.values[origExpr][id] = good
			eng.values[testExpr][id] = sp(" inv-" + id + " ")
		}
	}
	return eng, truth, ids
}

// extractorFunc observes requests and never finds a value.
type extractorFunc func(req extract.Request)

func (f extractorFunc) Execute(_ context.Context, req extract.Request) extract.Outcome {
	f(req)
	return extract.Outcome{Diagnostic: "no match"}
}
