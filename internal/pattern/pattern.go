// Package pattern holds the typed extraction patterns a mapping rule can carry.
//
// Pattern is a closed sum type: the five variants below are the only implementations, and
// code that must handle every variant goes through Visit with a Visitor, so a new variant is a
// compile error at every call site until handled.
package pattern

import "fmt"

type Kind string

const (
	KindRegex      Kind = "regex"
	KindPosition   Kind = "position"
	KindKeyword    Kind = "keyword"
	KindTable      Kind = "table"
	KindAIAssisted Kind = "ai_assisted"
)

// Kinds lists every variant tag in declaration order.
var Kinds = []Kind{KindRegex, KindPosition, KindKeyword, KindTable, KindAIAssisted}

// ParseKind accepts a stored extraction type.
func ParseKind(s string) (Kind, bool) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, true
		}
	}
	return "", false
}

type Pattern interface {
	Kind() Kind
	sealed()
}

// Visitor handles each pattern variant.
type Visitor[T any] interface {
	VisitRegex(p *Regex) T
	VisitPosition(p *Position) T
	VisitKeyword(p *Keyword) T
	VisitTable(p *Table) T
	VisitAIAssisted(p *AIAssisted) T
}

// Visit dispatches p to the matching Visitor method.
func Visit[T any](p Pattern, v Visitor[T]) T {
	switch p := p.(type) {
	case *Regex:
		return v.VisitRegex(p)
	case *Position:
		return v.VisitPosition(p)
	case *Keyword:
		return v.VisitKeyword(p)
	case *Table:
		return v.VisitTable(p)
	case *AIAssisted:
		return v.VisitAIAssisted(p)
	}
	panic(fmt.Sprintf("pattern: unhandled variant %T", p))
}

// Regex

type WhitespaceMode string

const (
	WhitespaceKeep     WhitespaceMode = ""
	WhitespaceCollapse WhitespaceMode = "collapse"
	WhitespaceRemove   WhitespaceMode = "remove"
)

type CaseMode string

const (
	CaseKeep  CaseMode = ""
	CaseUpper CaseMode = "upper"
	CaseLower CaseMode = "lower"
)

// Preprocessing applies Trim and Whitespace to the document text before matching and Case to
// the extracted value afterwards.
type Preprocessing struct {
	Trim       bool           `json:"trim,omitempty"`
	Whitespace WhitespaceMode `json:"whitespace,omitempty"`
	Case       CaseMode       `json:"case,omitempty"`
}

type Regex struct {
	Expression    string         `json:"expression"`
	Flags         string         `json:"flags,omitempty"`
	GroupIndex    int            `json:"groupIndex,omitempty"`
	Preprocessing *Preprocessing `json:"preprocessing,omitempty"`
}

func (*Regex) Kind() Kind { return KindRegex }
func (*Regex) sealed()    {}

// Position

type Unit string

const (
	UnitPercent Unit = "percent"
	UnitPixel   Unit = "pixel"
)

type Region struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// Position selects the words inside Region. Page is 1-based; zero selects the first page.
type Position struct {
	Region        Region `json:"region"`
	Unit          Unit   `json:"unit"`
	Page          int    `json:"page,omitempty"`
	FallbackToOCR bool   `json:"fallbackToOCR,omitempty"`
}

func (*Position) Kind() Kind { return KindPosition }
func (*Position) sealed()    {}

// Keyword

type Direction string

const (
	DirectionRight Direction = "right"
	DirectionLeft  Direction = "left"
	DirectionAbove Direction = "above"
	DirectionBelow Direction = "below"
)

type Keyword struct {
	Keywords      []string  `json:"keywords"`
	Direction     Direction `json:"direction"`
	MaxDistance   int       `json:"maxDistance"`
	ExtractLength int       `json:"extractLength"`
	CaseSensitive bool      `json:"caseSensitive,omitempty"`
}

func (*Keyword) Kind() Kind { return KindKeyword }
func (*Keyword) sealed()    {}

// Table

type TableLocator struct {
	HeaderKeywords []string `json:"headerKeywords,omitempty"`
	Index          *int     `json:"index,omitempty"`
	NearText       string   `json:"nearText,omitempty"`
}

type ColumnSelector struct {
	Header string `json:"header,omitempty"`
	Index  *int   `json:"index,omitempty"`
}

// RowSelector picks a data row (header row excluded) by identifier keywords or by index.
type RowSelector struct {
	Keywords []string `json:"keywords,omitempty"`
	Index    *int     `json:"index,omitempty"`
}

type CellOptions struct {
	Trim        bool `json:"trim,omitempty"`
	ParseNumber bool `json:"parseNumber,omitempty"`
}

type Table struct {
	TableLocator TableLocator   `json:"tableLocator"`
	Column       ColumnSelector `json:"column"`
	Row          RowSelector    `json:"row"`
	CellOptions  CellOptions    `json:"cellOptions"`
}

func (*Table) Kind() Kind { return KindTable }
func (*Table) sealed()    {}

// AIAssisted

type ModelConfig struct {
	Model          string  `json:"model,omitempty"`
	Temperature    float64 `json:"temperature,omitempty"`
	MaxTokens      int     `json:"maxTokens,omitempty"`
	TimeoutSeconds int     `json:"timeoutSeconds,omitempty"`
}

type AIAssisted struct {
	Prompt        string       `json:"prompt"`
	ModelConfig   *ModelConfig `json:"modelConfig,omitempty"`
	ContextFields []string     `json:"contextFields,omitempty"`
}

func (*AIAssisted) Kind() Kind { return KindAIAssisted }
func (*AIAssisted) sealed()    {}
