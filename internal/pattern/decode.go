package pattern

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/joseph-ayodele/invoice-rules/internal/common"
)

// CodeInvalidPattern is the AppError code for patterns rejected before execution.
const CodeInvalidPattern = "INVALID_PATTERN"

// Decode turns a stored (extractionType, pattern JSON) pair into a typed Pattern.
// Shape errors and semantic errors both come back as an AppError wrapping common.ErrValidation.
func Decode(kind string, raw []byte) (Pattern, error) {
	k, ok := ParseKind(kind)
	if !ok {
		return nil, invalid(common.ValidationError{Field: "extractionType", Value: kind, Message: "unknown pattern kind"})
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, invalid(common.ValidationError{Field: "pattern", Message: "is required"})
	}

	s, err := compiled(k)
	if err != nil {
		return nil, common.NewAppError("SCHEMA_ERROR", "pattern schema unavailable", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, invalid(common.ValidationError{Field: "pattern", Message: "not valid JSON: " + err.Error()})
	}
	if err := s.Validate(doc); err != nil {
		return nil, invalid(common.ValidationError{Field: "pattern", Value: string(k), Message: err.Error()})
	}

	var p Pattern
	switch k {
	case KindRegex:
		p = &Regex{}
	case KindPosition:
		p = &Position{}
	case KindKeyword:
		p = &Keyword{}
	case KindTable:
		p = &Table{}
	case KindAIAssisted:
		p = &AIAssisted{}
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(p); err != nil {
		return nil, invalid(common.ValidationError{Field: "pattern", Message: err.Error()})
	}

	if err := Validate(p); err != nil {
		return nil, err
	}
	return p, nil
}

// Encode returns the stored form of p.
func Encode(p Pattern) (string, json.RawMessage, error) {
	if p == nil {
		return "", nil, fmt.Errorf("encode pattern: nil pattern")
	}
	b, err := json.Marshal(p)
	if err != nil {
		return "", nil, fmt.Errorf("encode %s pattern: %w", p.Kind(), err)
	}
	return string(p.Kind()), b, nil
}

func invalid(errs ...common.ValidationError) error {
	v := common.NewValidator()
	for _, e := range errs {
		v.Check(false, e.Field, e.Value, e.Message)
	}
	return v.Error(CodeInvalidPattern)
}
