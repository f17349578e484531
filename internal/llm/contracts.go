package llm

import "context"

// CompletionRequest is what the AI-assisted pattern sends to the model collaborator.
type CompletionRequest struct {
	Prompt        string
	Model         string
	Temperature   float64
	MaxTokens     int
	ContextValues map[string]string
	// DocumentText is the OCR text the model reads the value from.
	DocumentText string
}

// Completion is the normalized model answer. Value is nil when the model found nothing.
type Completion struct {
	Value      *string `json:"value"`
	Confidence float64 `json:"confidence"`
}

// Completer is the model-completion collaborator the extraction engine depends on.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (Completion, error)
}
