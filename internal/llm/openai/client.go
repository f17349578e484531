package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/invoice-rules/internal/llm"
)

var _ llm.Completer = (*Client)(nil)

// Complete implements llm.Completer using text-only chat/completions in JSON mode.
func (c *Client) Complete(ctx context.Context, req llm.CompletionRequest) (llm.Completion, error) {
	rid := uuid.New().String()
	start := time.Now()

	model := req.Model
	if model == "" {
		model = c.cfg.Model
	}
	temperature := req.Temperature
	if temperature == 0 {
		temperature = float64(c.cfg.Temperature)
	}

	c.logger.Info("llm.complete.start",
		"req_id", rid,
		"model", model,
		"temp", temperature,
		"text_len", len(req.DocumentText),
		"context_fields", len(req.ContextValues),
	)

	schema := llm.BuildCompletionJSONSchema()
	body := map[string]any{
		"model":           model,
		"temperature":     temperature,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "system", "content": llm.BuildSystemPrompt()},
			{"role": "user", "content": llm.BuildUserPrompt(req) + "\nReturn ONLY JSON that matches the provided schema."},
			{"role": "system", "content": "JSON Schema:\n" + mustJSON(schema)},
		},
	}
	if req.MaxTokens > 0 {
		body["max_tokens"] = req.MaxTokens
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	headers := map[string]string{"Authorization": "Bearer " + c.cfg.APIKey}
	raw, err := llm.SendJSON(ctx, c.http, endpoint, body, headers, c.logger)
	if err != nil {
		c.logger.Error("llm.complete.http_error",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return llm.Completion{}, fmt.Errorf("openai request: %w", err)
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		c.logger.Error("llm.complete.decode_error", "req_id", rid, "error", err, "raw_bytes", len(raw))
		return llm.Completion{}, fmt.Errorf("decode openai response: %w", err)
	}
	if len(cc.Choices) == 0 {
		c.logger.Error("llm.complete.no_choices", "req_id", rid)
		return llm.Completion{}, fmt.Errorf("no choices in openai response")
	}

	content, err := llm.ExtractJSONObject(cc.Choices[0].Message.Content)
	if err != nil {
		c.logger.Error("llm.complete.no_json", "req_id", rid, "content", cc.Choices[0].Message.Content)
		return llm.Completion{}, err
	}

	if err := llm.ValidateCompletionJSON(content); err != nil {
		if !c.cfg.Lenient {
			c.logger.Error("llm.complete.schema_validation_failed", "req_id", rid, "error", err, "content", string(content))
			return llm.Completion{}, fmt.Errorf("schema validation failed: %w", err)
		}
		cleaned, changed, sErr := llm.NormalizeAndSanitizeJSON(content, c.logger)
		if sErr != nil {
			c.logger.Error("llm.complete.sanitize_failed", "req_id", rid, "error", sErr)
			return llm.Completion{}, fmt.Errorf("sanitize failed: %w", sErr)
		}
		if vErr := llm.ValidateCompletionJSON(cleaned); vErr != nil {
			c.logger.Error("llm.complete.schema_validation_failed", "req_id", rid, "error", vErr, "content", string(cleaned))
			return llm.Completion{}, fmt.Errorf("schema validation failed: %w", vErr)
		}
		c.logger.Warn("llm.complete.lenient_sanitize_applied", "req_id", rid, "changed", changed)
		content = cleaned
	}

	var out llm.Completion
	if err := json.Unmarshal(content, &out); err != nil {
		return llm.Completion{}, fmt.Errorf("unmarshal completion: %w", err)
	}

	c.logger.Info("llm.complete.ok",
		"req_id", rid,
		"found", out.Value != nil,
		"confidence", out.Confidence,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

func mustJSON(v any) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}
