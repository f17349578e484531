package openai

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/invoice-rules/internal/llm"
)

func newServer(t *testing.T, content string, status int) (*httptest.Server, *map[string]any) {
	t.Helper()
	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &captured)
		w.WriteHeader(status)
		resp := map[string]any{"choices": []any{map[string]any{"message": map[string]any{"content": content}}}}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv, &captured
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCompleteStrictAnswer(t *testing.T) {
	srv, captured := newServer(t, `{"value":"PO-7781","confidence":0.92}`, http.StatusOK)
	c := NewClient(Config{APIKey: "test-key", BaseURL: srv.URL}, quietLogger())

	out, err := c.Complete(context.Background(), llm.CompletionRequest{
		Prompt:        "Find the purchase order number",
		ContextValues: map[string]string{"vendorName": "Acme"},
		DocumentText:  "PO: PO-7781",
	})
	require.NoError(t, err)
	require.NotNil(t, out.Value)
	assert.Equal(t, "PO-7781", *out.Value)
	assert.InDelta(t, 0.92, out.Confidence, 1e-9)
	assert.Equal(t, "gpt-4o-mini", (*captured)["model"])
}

func TestCompleteLenientRepairsNearMiss(t *testing.T) {
	srv, _ := newServer(t, "```json\n{\"answer\": 1234.5, \"score\": \"87%\", \"why\": \"seen\"}\n```", http.StatusOK)
	c := NewClient(Config{APIKey: "test-key", BaseURL: srv.URL, Lenient: true}, quietLogger())

	out, err := c.Complete(context.Background(), llm.CompletionRequest{Prompt: "total"})
	require.NoError(t, err)
	require.NotNil(t, out.Value)
	assert.Equal(t, "1234.5", *out.Value)
	assert.InDelta(t, 0.87, out.Confidence, 1e-9)
}

func TestCompleteStrictRejectsNearMiss(t *testing.T) {
	srv, _ := newServer(t, `{"answer":"x"}`, http.StatusOK)
	c := NewClient(Config{APIKey: "test-key", BaseURL: srv.URL}, quietLogger())

	_, err := c.Complete(context.Background(), llm.CompletionRequest{Prompt: "total"})
	assert.Error(t, err)
}

func TestCompleteHTTPError(t *testing.T) {
	srv, _ := newServer(t, `{}`, http.StatusTooManyRequests)
	c := NewClient(Config{APIKey: "test-key", BaseURL: srv.URL}, quietLogger())

	_, err := c.Complete(context.Background(), llm.CompletionRequest{Prompt: "total"})
	require.Error(t, err)
	var httpErr *llm.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusTooManyRequests, httpErr.Status)
}
