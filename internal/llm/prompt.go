package llm

import (
	"slices"
	"strings"
	"unicode/utf8"
)

// maxDocumentRunes caps how much OCR text goes into one prompt.
const maxDocumentRunes = 6000

// BuildSystemPrompt composes the fixed instructions every AI-assisted extraction shares.
func BuildSystemPrompt() string {
	parts := []string{
		"You extract a single field value from invoice OCR text.",
		"Return ONLY JSON that matches the provided JSON Schema: {\"value\": string or null, \"confidence\": number between 0 and 1}.",
		"Copy the value exactly as printed; do not reformat dates, numbers, or currency.",
		"If the value is not present, return null for value and 0 for confidence.",
		"Never add explanations or extra keys.",
	}
	return strings.Join(parts, " ")
}

// BuildUserPrompt packages the rule prompt, already-extracted context fields, and the OCR text.
// Context lines are sorted by field name so identical inputs produce identical prompts.
func BuildUserPrompt(req CompletionRequest) string {
	var b strings.Builder
	b.WriteString("Task: ")
	b.WriteString(strings.TrimSpace(req.Prompt))
	b.WriteString("\n")

	if len(req.ContextValues) > 0 {
		keys := make([]string, 0, len(req.ContextValues))
		for k := range req.ContextValues {
			keys = append(keys, k)
		}
		slices.Sort(keys)

		b.WriteString("\nKnown fields of this document:\n")
		for _, k := range keys {
			b.WriteString(k)
			b.WriteString(": ")
			b.WriteString(req.ContextValues[k])
			b.WriteString("\n")
		}
	}

	text := strings.TrimSpace(req.DocumentText)
	if text != "" {
		b.WriteString("\nOCR text:\n")
		if utf8.RuneCountInString(text) > maxDocumentRunes {
			b.WriteString(string([]rune(text)[:maxDocumentRunes]))
			b.WriteString("\n…(truncated)")
		} else {
			b.WriteString(text)
		}
		b.WriteString("\n")
	}
	return b.String()
}
