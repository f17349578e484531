package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/joseph-ayodele/invoice-rules/constants"
)

// loadGroundTruth reads {"<documentId>": {"<field>": value}} and stores every document's map.
// Values may be strings, numbers, booleans or null; null means the field is known to be absent.
func (l *Loader) loadGroundTruth(ctx context.Context, path string) ([]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	truth, err := ParseGroundTruth(raw)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(truth))
	for id := range truth {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		if err := l.truth.Save(ctx, id, truth[id]); err != nil {
			return nil, fmt.Errorf("save ground truth %s: %w", id, err)
		}
	}
	return ids, nil
}

// ParseGroundTruth decodes a ground truth sidecar into document ID -> field -> value.
func ParseGroundTruth(raw []byte) (map[string]map[string]*string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc map[string]map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("parse ground truth: %w", err)
	}

	out := make(map[string]map[string]*string, len(doc))
	for id, fields := range doc {
		if strings.TrimSpace(id) == "" {
			return nil, fmt.Errorf("parse ground truth: empty document id")
		}
		values := make(map[string]*string, len(fields))
		for name, v := range fields {
			if f, ok := constants.CanonicalField(name); ok {
				name = string(f)
			}
			switch t := v.(type) {
			case nil:
				values[name] = nil
			case string:
				values[name] = &t
			case json.Number:
				s := t.String()
				values[name] = &s
			case bool:
				s := fmt.Sprint(t)
				values[name] = &s
			default:
				return nil, fmt.Errorf("parse ground truth: %s.%s must be a scalar", id, name)
			}
		}
		out[id] = values
	}
	return out, nil
}
