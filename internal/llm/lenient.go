package llm

import (
	"bytes"
	"errors"
	"strings"
)

var errNoJSONObject = errors.New("no JSON object in model output")

// ExtractJSONObject returns the first balanced top-level JSON object in content. Models sometimes
// wrap the answer in markdown fences or prose even when asked for bare JSON.
func ExtractJSONObject(content string) ([]byte, error) {
	s := strings.TrimSpace(content)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")

	start := strings.IndexByte(s, '{')
	if start < 0 {
		return nil, errNoJSONObject
	}
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return bytes.TrimSpace([]byte(s[start : i+1])), nil
			}
		}
	}
	return nil, errNoJSONObject
}
