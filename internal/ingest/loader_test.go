package ingest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/invoice-rules/internal/document"
	"github.com/joseph-ayodele/invoice-rules/internal/ocr"
)

type memSink struct {
	mu    sync.Mutex
	views map[string]*document.View
	truth map[string]map[string]*string
	fail  bool
}

func newMemSink() *memSink {
	return &memSink{views: map[string]*document.View{}, truth: map[string]map[string]*string{}}
}

func (m *memSink) Save(_ context.Context, v *document.View) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("disk full")
	}
	m.views[v.ID] = v
	return nil
}

type truthSink struct{ *memSink }

func (t truthSink) Save(_ context.Context, id string, values map[string]*string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.truth[id] = values
	return nil
}

type fakeOCR struct{ calls []string }

func (f *fakeOCR) Extract(_ context.Context, path, _ string) (ocr.ExtractionResult, error) {
	f.calls = append(f.calls, filepath.Base(path))
	return ocr.ExtractionResult{
		View:     &document.View{ID: "scan-1", Text: "Invoice INV-9"},
		Warnings: []string{"low contrast"},
	}, nil
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoadDirectory(t *testing.T) {
	root := t.TempDir()
	write(t, filepath.Join(root, "a.json"), `{"id":"doc-a","text":"Invoice INV-1"}`)
	write(t, filepath.Join(root, "nested", "b.JSON"), `{"id":"doc-b","text":"Invoice INV-2","receivedAt":"2024-03-01T00:00:00Z"}`)
	write(t, filepath.Join(root, "scan-1.png"), "png")
	write(t, filepath.Join(root, "broken.json"), `{"text":"no id"}`)
	write(t, filepath.Join(root, "notes.txt"), "ignored")
	write(t, filepath.Join(root, ".hidden", "c.json"), `{"id":"doc-c","text":""}`)
	write(t, filepath.Join(root, "ground_truth.json"), `{"doc-a":{"invoice_number":"INV-1","totalAmount":120.5},"doc-b":{"invoiceNumber":null}}`)

	sink := newMemSink()
	ocrx := &fakeOCR{}
	l := NewLoader(sink, truthSink{sink}, ocrx, quiet())

	results, stats, err := l.LoadDirectory(context.Background(), root, true)
	require.NoError(t, err)

	assert.Equal(t, uint32(5), stats.Matched)
	assert.Equal(t, uint32(4), stats.Succeeded)
	assert.Equal(t, uint32(1), stats.Failed)
	assert.Equal(t, uint32(3), stats.Documents)
	assert.Equal(t, uint32(2), stats.Truths)
	assert.Len(t, results, 5)

	ids := make([]string, 0, len(sink.views))
	for id := range sink.views {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	assert.Equal(t, []string{"doc-a", "doc-b", "scan-1"}, ids)
	assert.Equal(t, []string{"scan-1.png"}, ocrx.calls)

	assert.False(t, sink.views["doc-a"].ReceivedAt.IsZero(), "mod time stamped")
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), sink.views["doc-b"].ReceivedAt.UTC())

	require.Contains(t, sink.truth, "doc-a")
	assert.Equal(t, "INV-1", *sink.truth["doc-a"]["invoiceNumber"])
	assert.Equal(t, "120.5", *sink.truth["doc-a"]["totalAmount"])
	assert.Nil(t, sink.truth["doc-b"]["invoiceNumber"])

	var failed FileResult
	for _, r := range results {
		if r.Err != "" {
			failed = r
		}
	}
	assert.Equal(t, "broken.json", filepath.Base(failed.Path))
	assert.Contains(t, failed.Err, "missing id")
}

func TestLoadPathErrors(t *testing.T) {
	root := t.TempDir()
	sink := newMemSink()
	l := NewLoader(sink, truthSink{sink}, nil, quiet())

	_, err := l.LoadPath(context.Background(), filepath.Join(root, "a.pdf"))
	assert.ErrorContains(t, err, "unsupported")

	img := filepath.Join(root, "scan.jpg")
	write(t, img, "jpg")
	_, err = l.LoadPath(context.Background(), img)
	assert.ErrorContains(t, err, "no ocr extractor")

	doc := filepath.Join(root, "a.json")
	write(t, doc, `{"id":"doc-a","text":"x"}`)
	sink.fail = true
	_, err = l.LoadPath(context.Background(), doc)
	assert.ErrorContains(t, err, "disk full")
}

func TestLoadDirectoryRequiresRoot(t *testing.T) {
	l := NewLoader(newMemSink(), nil, nil, quiet())
	_, _, err := l.LoadDirectory(context.Background(), " ", false)
	assert.Error(t, err)
}

func TestParseGroundTruthRejectsNested(t *testing.T) {
	_, err := ParseGroundTruth([]byte(`{"doc-a":{"lines":[1,2]}}`))
	assert.ErrorContains(t, err, "must be a scalar")

	_, err = ParseGroundTruth([]byte(`{"":{}}`))
	assert.ErrorContains(t, err, "empty document id")
}

func TestWatcherInitialScan(t *testing.T) {
	root := t.TempDir()
	write(t, filepath.Join(root, "a.json"), `{"id":"doc-a","text":"x"}`)
	write(t, filepath.Join(root, "skip.txt"), "x")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	paths, _, err := StartWatcher(ctx, WatchConfig{Roots: []string{root}, InitialScan: true}, quiet())
	require.NoError(t, err)

	select {
	case p := <-paths:
		assert.Equal(t, filepath.Join(root, "a.json"), p)
	case <-time.After(2 * time.Second):
		t.Fatal("initial scan did not emit")
	}

	_, _, err = StartWatcher(ctx, WatchConfig{}, quiet())
	assert.Error(t, err)
}
