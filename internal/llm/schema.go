package llm

// BuildCompletionJSONSchema returns the JSON-Schema (draft 2020-12 subset) a model answer must
// satisfy. We pass it to the model as an output constraint and also use it locally to validate.
func BuildCompletionJSONSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"value":      map[string]any{"type": []string{"string", "null"}},
			"confidence": map[string]any{"type": "number", "minimum": 0.0, "maximum": 1.0},
		},
		"required": []string{"value", "confidence"},
	}
}
