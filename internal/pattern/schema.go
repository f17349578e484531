package pattern

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

var (
	schemaOnce sync.Once
	schemas    map[Kind]*jsonschema.Schema
	schemaErr  error
)

// Schema returns the JSON-Schema document for one pattern kind as a generic map.
func Schema(kind Kind) map[string]any {
	switch kind {
	case KindRegex:
		return object(map[string]any{
			"expression": str(1),
			"flags":      map[string]any{"type": "string", "pattern": `^[a-zA-Z]*$`},
			"groupIndex": map[string]any{"type": "integer", "minimum": 0},
			"preprocessing": object(map[string]any{
				"trim":       map[string]any{"type": "boolean"},
				"whitespace": enum("", string(WhitespaceCollapse), string(WhitespaceRemove)),
				"case":       enum("", string(CaseUpper), string(CaseLower)),
			}),
		}, "expression")
	case KindPosition:
		return object(map[string]any{
			"region": object(map[string]any{
				"x1": num(), "y1": num(), "x2": num(), "y2": num(),
			}, "x1", "y1", "x2", "y2"),
			"unit":          enum(string(UnitPercent), string(UnitPixel)),
			"page":          map[string]any{"type": "integer", "minimum": 0},
			"fallbackToOCR": map[string]any{"type": "boolean"},
		}, "region", "unit")
	case KindKeyword:
		return object(map[string]any{
			"keywords":      map[string]any{"type": "array", "minItems": 1, "items": str(1)},
			"direction":     enum(string(DirectionRight), string(DirectionLeft), string(DirectionAbove), string(DirectionBelow)),
			"maxDistance":   map[string]any{"type": "integer", "minimum": 0},
			"extractLength": map[string]any{"type": "integer", "minimum": 1},
			"caseSensitive": map[string]any{"type": "boolean"},
		}, "keywords", "direction", "maxDistance", "extractLength")
	case KindTable:
		index := map[string]any{"type": "integer", "minimum": 0}
		words := map[string]any{"type": "array", "items": str(1)}
		return object(map[string]any{
			"tableLocator": object(map[string]any{
				"headerKeywords": words,
				"index":          index,
				"nearText":       map[string]any{"type": "string"},
			}),
			"column": object(map[string]any{
				"header": map[string]any{"type": "string"},
				"index":  index,
			}),
			"row": object(map[string]any{
				"keywords": words,
				"index":    index,
			}),
			"cellOptions": object(map[string]any{
				"trim":        map[string]any{"type": "boolean"},
				"parseNumber": map[string]any{"type": "boolean"},
			}),
		}, "tableLocator", "column", "row")
	case KindAIAssisted:
		return object(map[string]any{
			"prompt": str(1),
			"modelConfig": object(map[string]any{
				"model":          map[string]any{"type": "string"},
				"temperature":    map[string]any{"type": "number", "minimum": 0, "maximum": 2},
				"maxTokens":      map[string]any{"type": "integer", "minimum": 0},
				"timeoutSeconds": map[string]any{"type": "integer", "minimum": 0},
			}),
			"contextFields": map[string]any{"type": "array", "items": str(1)},
		}, "prompt")
	}
	return nil
}

func compiled(kind Kind) (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schemas = make(map[Kind]*jsonschema.Schema, len(Kinds))
		compiler := jsonschema.NewCompiler()
		for _, k := range Kinds {
			b, err := json.Marshal(Schema(k))
			if err != nil {
				schemaErr = fmt.Errorf("marshal %s schema: %w", k, err)
				return
			}
			url := string(k) + ".json"
			if err := compiler.AddResource(url, bytes.NewReader(b)); err != nil {
				schemaErr = fmt.Errorf("add %s schema: %w", k, err)
				return
			}
			s, err := compiler.Compile(url)
			if err != nil {
				schemaErr = fmt.Errorf("compile %s schema: %w", k, err)
				return
			}
			schemas[k] = s
		}
	})
	if schemaErr != nil {
		return nil, schemaErr
	}
	return schemas[kind], nil
}

func object(props map[string]any, required ...string) map[string]any {
	m := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           props,
	}
	if len(required) > 0 {
		m["required"] = required
	}
	return m
}

func str(minLength int) map[string]any {
	return map[string]any{"type": "string", "minLength": minLength}
}

func num() map[string]any {
	return map[string]any{"type": "number"}
}

func enum(values ...string) map[string]any {
	return map[string]any{"type": "string", "enum": values}
}
