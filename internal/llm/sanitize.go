package llm

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"strconv"
	"strings"
)

// NormalizeAndSanitizeJSON
// - Renames known synonyms (answer/result -> value, score -> confidence)
// - Coerces numeric values to strings and string confidences to numbers
// - Maps empty or "null"-like values to null
// - Clamps confidence into [0,1]
// - Removes unknown keys (strict additionalProperties = false friendliness)
func NormalizeAndSanitizeJSON(raw []byte, logger *slog.Logger) ([]byte, []string, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, nil, fmt.Errorf("sanitize: decode: %w", err)
	}

	changed := make([]string, 0, 4)
	renamed := func(from, to string) {
		if v, ok := m[from]; ok {
			if _, exists := m[to]; !exists {
				m[to] = v
			}
			delete(m, from)
			changed = append(changed, from+"->"+to)
		}
	}

	renamed("answer", "value")
	renamed("result", "value")
	renamed("score", "confidence")

	switch t := m["value"].(type) {
	case nil:
		m["value"] = nil
	case float64:
		m["value"] = strconv.FormatFloat(t, 'f', -1, 64)
		changed = append(changed, "value(number)")
	case bool:
		m["value"] = strconv.FormatBool(t)
		changed = append(changed, "value(bool)")
	case string:
		s := strings.TrimSpace(t)
		if s == "" || strings.EqualFold(s, "null") || strings.EqualFold(s, "n/a") {
			m["value"] = nil
			changed = append(changed, "value(empty)")
		} else {
			m["value"] = s
		}
	default:
		m["value"] = nil
		changed = append(changed, "value(type)")
	}

	conf := 0.0
	switch t := m["confidence"].(type) {
	case float64:
		conf = t
	case string:
		s := strings.TrimSuffix(strings.TrimSpace(t), "%")
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			conf = f
			if strings.HasSuffix(strings.TrimSpace(t), "%") {
				conf = f / 100
			}
		}
		changed = append(changed, "confidence(string)")
	case nil:
		changed = append(changed, "confidence(missing)")
	}
	if conf > 1 && conf <= 100 {
		conf /= 100
	}
	m["confidence"] = min(max(conf, 0), 1)
	if m["value"] == nil {
		m["confidence"] = 0.0
	}

	for k := range maps.Clone(m) {
		if k != "value" && k != "confidence" {
			delete(m, k)
			changed = append(changed, k+"(unknown)")
		}
	}

	out, err := json.Marshal(m)
	if err != nil {
		return nil, changed, fmt.Errorf("sanitize: encode: %w", err)
	}
	if len(changed) > 0 {
		logger.Warn("llm.complete.normalize_sanitize", "changed", changed)
	}
	return out, changed, nil
}
