package extract

import (
	"context"
	"strings"
	"time"

	"github.com/joseph-ayodele/invoice-rules/internal/llm"
	"github.com/joseph-ayodele/invoice-rules/internal/pattern"
)

func (x executor) VisitAIAssisted(p *pattern.AIAssisted) Outcome {
	e := x.engine
	if e.completer == nil {
		return fail("no model collaborator configured")
	}

	req := llm.CompletionRequest{
		Prompt:        p.Prompt,
		ContextValues: make(map[string]string, len(p.ContextFields)),
		DocumentText:  x.req.Document.Text,
	}
	var missing []string
	for _, f := range p.ContextFields {
		if v, ok := x.req.Fields[f]; ok {
			req.ContextValues[f] = v
		} else {
			missing = append(missing, f)
		}
	}

	timeout := e.aiTimeout
	if mc := p.ModelConfig; mc != nil {
		req.Model = mc.Model
		req.Temperature = mc.Temperature
		req.MaxTokens = mc.MaxTokens
		if mc.TimeoutSeconds > 0 {
			timeout = time.Duration(mc.TimeoutSeconds) * time.Second
		}
	}

	ctx, cancel := context.WithTimeout(x.ctx, timeout)
	defer cancel()

	c, err := e.completer.Complete(ctx, req)
	if err != nil {
		return fail("model collaborator failed: %v", err)
	}
	if c.Value == nil || strings.TrimSpace(*c.Value) == "" {
		return fail("model returned no value")
	}

	out := found(strings.TrimSpace(*c.Value), c.Confidence)
	if len(missing) > 0 {
		out.Diagnostic = "context fields not yet extracted: " + strings.Join(missing, ", ")
	}
	return out
}
