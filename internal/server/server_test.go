package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/invoice-rules/constants"
	"github.com/joseph-ayodele/invoice-rules/internal/common"
	"github.com/joseph-ayodele/invoice-rules/internal/document"
	"github.com/joseph-ayodele/invoice-rules/internal/entity"
	"github.com/joseph-ayodele/invoice-rules/internal/export"
	"github.com/joseph-ayodele/invoice-rules/internal/extract"
	"github.com/joseph-ayodele/invoice-rules/internal/recommend"
	"github.com/joseph-ayodele/invoice-rules/internal/regression"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type docs map[string]*document.View

func (d docs) Get(_ context.Context, id string) (*document.View, error) {
	if v, ok := d[id]; ok {
		return v, nil
	}
	return nil, common.NewAppError("DOCUMENT_NOT_FOUND", "document "+id+" not found", common.ErrNotFound)
}

type truth map[string]map[string]*string

func (t truth) Get(_ context.Context, docID, field string) (*string, error) {
	return t[docID][field], nil
}

type tasks struct {
	mu sync.Mutex
	m  map[uuid.UUID]*entity.TestTask
}

func (s *tasks) with(id uuid.UUID, fn func(t *entity.TestTask) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.m[id]
	if !ok {
		return common.NewAppError("TASK_NOT_FOUND", "task not found", common.ErrNotFound)
	}
	return fn(t)
}

func (s *tasks) Create(_ context.Context, t *entity.TestTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *t
	s.m[t.ID] = &cp
	return nil
}

func (s *tasks) Get(_ context.Context, id uuid.UUID) (*entity.TestTask, error) {
	var out entity.TestTask
	err := s.with(id, func(t *entity.TestTask) error { out = *t; return nil })
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func expect(t *entity.TestTask, want ...constants.TaskStatus) error {
	for _, w := range want {
		if t.Status == w {
			return nil
		}
	}
	return fmt.Errorf("status %s: %w", t.Status, common.ErrConflict)
}

func (s *tasks) Claim(_ context.Context, id uuid.UUID) error {
	return s.with(id, func(t *entity.TestTask) error {
		if err := expect(t, constants.TaskStatusPending); err != nil {
			return err
		}
		t.Status = constants.TaskStatusRunning
		return nil
	})
}

func (s *tasks) SetTotal(_ context.Context, id uuid.UUID, n int) error {
	return s.with(id, func(t *entity.TestTask) error { t.TotalDocuments = n; return nil })
}

func (s *tasks) UpdateProgress(_ context.Context, id uuid.UUID, tested, errs, p int) error {
	return s.with(id, func(t *entity.TestTask) error {
		t.TestedDocuments, t.ErrorCount, t.Progress = tested, errs, p
		return nil
	})
}

func (s *tasks) Complete(_ context.Context, id uuid.UUID, sum entity.Summary, tested, errs int) error {
	return s.with(id, func(t *entity.TestTask) error {
		t.Status, t.Summary, t.Progress, t.TestedDocuments, t.ErrorCount = constants.TaskStatusCompleted, &sum, 100, tested, errs
		return nil
	})
}

func (s *tasks) Cancel(_ context.Context, id uuid.UUID, tested, errs int) error {
	return s.with(id, func(t *entity.TestTask) error {
		if err := expect(t, constants.TaskStatusPending, constants.TaskStatusRunning); err != nil {
			return err
		}
		t.Status, t.TestedDocuments, t.ErrorCount = constants.TaskStatusCancelled, tested, errs
		return nil
	})
}

func (s *tasks) CancelPending(_ context.Context, id uuid.UUID) error {
	return s.with(id, func(t *entity.TestTask) error {
		if err := expect(t, constants.TaskStatusPending); err != nil {
			return err
		}
		t.Status = constants.TaskStatusCancelled
		return nil
	})
}

func (s *tasks) Fail(_ context.Context, id uuid.UUID, msg string) error {
	return s.with(id, func(t *entity.TestTask) error {
		t.Status, t.ErrorMessage = constants.TaskStatusFailed, &msg
		return nil
	})
}

type details struct {
	mu   sync.Mutex
	rows []entity.TestDetail
}

func (d *details) Insert(_ context.Context, row entity.TestDetail) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rows = append(d.rows, row)
	return nil
}

func (d *details) List(_ context.Context, id uuid.UUID) ([]entity.TestDetail, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []entity.TestDetail
	for _, r := range d.rows {
		if r.TaskID == id {
			out = append(out, r)
		}
	}
	return out, nil
}

type fixedCorpus []string

func (c fixedCorpus) Validate(sel entity.CorpusSelection) error {
	if sel.Mode == "" {
		return common.NewValidator().Field("corpus.mode", "", common.Required).Error("INVALID_CORPUS")
	}
	return nil
}

func (c fixedCorpus) Resolve(context.Context, entity.CorpusSelection) ([]string, error) { return c, nil }

// inlineQueue runs the task before Enqueue returns.
type inlineQueue struct{ exec *regression.Executor }

func (q *inlineQueue) Enqueue(ctx context.Context, id uuid.UUID) error {
	if err := q.exec.Execute(ctx, id); err != nil && !errors.Is(err, regression.ErrTaskFatal) {
		return err
	}
	return nil
}

func sp(s string) *string { return &s }

func startServer(t *testing.T) *Client {
	t.Helper()
	store := docs{}
	gt := truth{}
	var ids []string
	for i := 0; i < 4; i++ {
		id := fmt.Sprintf("inv-%d", i)
		ids = append(ids, id)
		store[id] = &document.View{ID: id, Text: fmt.Sprintf("Invoice No: INV-%06d\nTotal: %d.00", i, 100+i)}
		gt[id] = map[string]*string{"invoiceNumber": sp(fmt.Sprintf("INV-%06d", i))}
	}

	engine := extract.NewEngine(extract.WithLogger(quiet))
	tk := &tasks{m: map[uuid.UUID]*entity.TestTask{}}
	dt := &details{}
	corpus := fixedCorpus(ids)
	cancels := regression.NewCancellations()
	runner := regression.NewRunner(engine, store, gt, regression.WithRunnerLogger(quiet))
	exec := regression.NewExecutor(tk, dt, corpus, runner, cancels, nil, quiet)

	svc := regression.NewService(regression.ServiceDeps{
		Tasks: tk, Details: dt, Corpus: corpus, Documents: store, Engine: engine,
		Queue: &inlineQueue{exec: exec}, Cancels: cancels, Thresholds: recommend.DefaultThresholds(), Logger: quiet,
	})
	exporter := export.NewService(svc, recommend.DefaultThresholds(), quiet)

	lis := bufconn.Listen(1 << 20)
	gs := grpc.NewServer(grpc.ChainUnaryInterceptor(UnaryLogging(quiet)))
	RegisterRuleTestServer(gs, NewRuleTestService(svc, exporter, quiet))
	go func() { _ = gs.Serve(lis) }()
	t.Cleanup(gs.Stop)

	cc, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cc.Close() })
	return NewClient(cc)
}

func mustStruct(t *testing.T, v map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(v)
	require.NoError(t, err)
	return s
}

func call(t *testing.T, c *Client, method string, in map[string]any) (map[string]any, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	out, err := c.Call(ctx, method, mustStruct(t, in))
	if err != nil {
		return nil, err
	}
	return out.AsMap(), nil
}

func TestPreviewExtraction(t *testing.T) {
	c := startServer(t)

	out, err := call(t, c, MethodPreviewExtraction, map[string]any{
		"type":       "regex",
		"pattern":    map[string]any{"expression": `INV-(\d{6})`},
		"documentId": "inv-2",
	})
	require.NoError(t, err)
	assert.Equal(t, "000002", out["value"])
	assert.Equal(t, extract.RegexConfidence, out["confidence"])

	out, err = call(t, c, MethodPreviewExtraction, map[string]any{
		"type":       "position",
		"pattern":    map[string]any{"region": map[string]any{"x1": 0, "y1": 0, "x2": 10, "y2": 10}, "unit": "percent"},
		"documentId": "inv-2",
	})
	require.NoError(t, err)
	assert.Nil(t, out["value"])
	assert.NotEmpty(t, out["diagnostic"])

	_, err = call(t, c, MethodPreviewExtraction, map[string]any{
		"type": "regex", "pattern": map[string]any{"expr": "x"}, "documentId": "inv-2",
	})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = call(t, c, MethodPreviewExtraction, map[string]any{
		"type": "regex", "pattern": map[string]any{"expression": "x"}, "documentId": "nope",
	})
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestSubmitRunRecommendExport(t *testing.T) {
	c := startServer(t)

	task, err := call(t, c, MethodSubmitTest, map[string]any{
		"fieldName":       "invoice number",
		"originalType":    "regex",
		"originalPattern": map[string]any{"expression": `INV-(\d{6})`},
		"testType":        "regex",
		"testPattern":     map[string]any{"expression": `Invoice No: (\S+)`},
		"corpus":          map[string]any{"mode": "all"},
	})
	require.NoError(t, err)
	id := task["id"].(string)
	assert.Equal(t, "COMPLETED", task["status"])
	assert.Equal(t, "invoiceNumber", task["fieldName"])

	got, err := call(t, c, MethodGetTest, map[string]any{"taskId": id})
	require.NoError(t, err)
	assert.Equal(t, float64(100), got["progress"])
	summary := got["summary"].(map[string]any)
	assert.Equal(t, float64(4), summary["improved"])

	list, err := call(t, c, MethodListTestDetails, map[string]any{"taskId": id})
	require.NoError(t, err)
	rows := list["details"].([]any)
	require.Len(t, rows, 4)
	first := rows[0].(map[string]any)
	assert.Equal(t, "IMPROVED", first["changeType"])
	assert.Equal(t, "INV-000000", first["testResult"])

	rec, err := call(t, c, MethodGetRecommendation, map[string]any{"taskId": id})
	require.NoError(t, err)
	assert.Equal(t, "Adopt", rec["verdict"])

	exp, err := call(t, c, MethodExportTest, map[string]any{"taskId": id})
	require.NoError(t, err)
	raw, err := base64.StdEncoding.DecodeString(exp["xlsx"].(string))
	require.NoError(t, err)
	assert.Equal(t, []byte("PK"), raw[:2])

	_, err = call(t, c, MethodCancelTest, map[string]any{"taskId": id})
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))
}

func TestSubmitValidation(t *testing.T) {
	c := startServer(t)

	_, err := call(t, c, MethodSubmitTest, map[string]any{
		"fieldName":       "invoiceNumber",
		"originalType":    "regex",
		"originalPattern": map[string]any{"expression": "x"},
		"testType":        "keyword",
		"testPattern":     map[string]any{"keywords": []any{}, "direction": "right"},
		"corpus":          map[string]any{"mode": "all"},
	})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = call(t, c, MethodSubmitTest, map[string]any{"bogus": true})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = call(t, c, MethodGetTest, map[string]any{"taskId": "not-a-uuid"})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = call(t, c, MethodGetTest, map[string]any{"taskId": uuid.NewString()})
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestEncodeKeepsJSONNames(t *testing.T) {
	s, err := encode(entity.TestDetail{DocumentID: "d", ChangeType: constants.ChangeBothRight})
	require.NoError(t, err)
	raw, err := json.Marshal(s.AsMap())
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"documentId":"d"`)
	assert.Contains(t, string(raw), `"originalResult":null`)
}
