package extract

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/invoice-rules/internal/document"
	"github.com/joseph-ayodele/invoice-rules/internal/llm"
	"github.com/joseph-ayodele/invoice-rules/internal/pattern"
)

func ptr[T any](v T) *T { return &v }

func textDoc(text string) *document.View {
	return &document.View{ID: "doc-1", Text: text}
}

func word(text string, x, y, w, h float64) document.Word {
	return document.Word{Text: text, Box: document.BoundingBox{X: x, Y: y, Width: w, Height: h}}
}

// layoutDoc is a one-page invoice header laid out in percent units.
func layoutDoc() *document.View {
	return &document.View{
		ID:   "doc-layout",
		Text: "ACME Corp Invoice Number INV-2024-001 Total Due 1,250.00",
		Layout: &document.Layout{
			Unit: "percent",
			Pages: []document.Page{{
				Number: 1,
				Words: []document.Word{
					word("ACME", 5, 5, 8, 3),
					word("Corp", 14, 5, 7, 3),
					word("Invoice", 60, 5, 10, 2),
					word("Number", 71, 5, 10, 2),
					word("INV-2024-001", 60, 9, 20, 2),
					word("Total", 60, 80, 8, 2),
					word("Due", 69, 80, 5, 2),
					word("1,250.00", 80, 80, 12, 2),
				},
				Tables: []document.Table{{
					Box: document.BoundingBox{X: 5, Y: 30, Width: 90, Height: 40},
					Rows: [][]string{
						{"Description", "Qty", "Amount"},
						{"Widgets", "10", "$1,000.00"},
						{"Shipping", "1", " 250.00 "},
						{"Notes", "", ""},
					},
				}},
			}},
		},
	}
}

func run(t *testing.T, e *Engine, p pattern.Pattern, doc *document.View) Outcome {
	t.Helper()
	return e.Execute(context.Background(), Request{Pattern: p, Document: doc})
}

func requireValue(t *testing.T, out Outcome, want string, confidence float64) {
	t.Helper()
	require.NotNil(t, out.Value, "diagnostic: %s", out.Diagnostic)
	assert.Equal(t, want, *out.Value)
	assert.InDelta(t, confidence, out.Confidence, 1e-9)
}

func requireNoValue(t *testing.T, out Outcome, diagnostic string) {
	t.Helper()
	assert.Nil(t, out.Value)
	assert.Zero(t, out.Confidence)
	assert.Contains(t, out.Diagnostic, diagnostic)
}

func TestRegex(t *testing.T) {
	e := NewEngine()

	t.Run("invoice number group", func(t *testing.T) {
		out := run(t, e, &pattern.Regex{Expression: `INV-(\d{6})`, GroupIndex: 1}, textDoc("Invoice INV-123456 total"))
		requireValue(t, out, "123456", RegexConfidence)
	})
	t.Run("whole match by default", func(t *testing.T) {
		out := run(t, e, &pattern.Regex{Expression: `INV-\d+`}, textDoc("Invoice INV-123456 total"))
		requireValue(t, out, "INV-123456", RegexConfidence)
	})
	t.Run("flags and casing", func(t *testing.T) {
		p := &pattern.Regex{
			Expression:    `vendor: (\w+ \w+)`,
			Flags:         "gi",
			GroupIndex:    1,
			Preprocessing: &pattern.Preprocessing{Trim: true, Whitespace: pattern.WhitespaceCollapse, Case: pattern.CaseUpper},
		}
		out := run(t, e, p, textDoc("  VENDOR:   acme\n\tcorp  "))
		requireValue(t, out, "ACME CORP", RegexConfidence)
	})
	t.Run("whitespace removal", func(t *testing.T) {
		p := &pattern.Regex{Expression: `\d{8}`, Preprocessing: &pattern.Preprocessing{Whitespace: pattern.WhitespaceRemove}}
		out := run(t, e, p, textDoc("IBAN 1234 5678"))
		requireValue(t, out, "12345678", RegexConfidence)
	})
	t.Run("compile failure is recoverable", func(t *testing.T) {
		out := run(t, e, &pattern.Regex{Expression: `([unclosed`}, textDoc("x"))
		requireNoValue(t, out, "regex compile failed")
	})
	t.Run("unsupported flag", func(t *testing.T) {
		out := run(t, e, &pattern.Regex{Expression: `a`, Flags: "y"}, textDoc("a"))
		requireNoValue(t, out, "unsupported flag")
	})
	t.Run("no match", func(t *testing.T) {
		out := run(t, e, &pattern.Regex{Expression: `PO-\d+`}, textDoc("nothing here"))
		requireNoValue(t, out, "no match")
	})
	t.Run("group out of range", func(t *testing.T) {
		out := run(t, e, &pattern.Regex{Expression: `a(b)`, GroupIndex: 3}, textDoc("ab"))
		requireNoValue(t, out, "out of range")
	})
	t.Run("empty group", func(t *testing.T) {
		out := run(t, e, &pattern.Regex{Expression: `a(x*)b`, GroupIndex: 1}, textDoc("ab"))
		requireNoValue(t, out, "empty")
	})
}

func TestKeyword(t *testing.T) {
	e := NewEngine()

	t.Run("total right", func(t *testing.T) {
		p := &pattern.Keyword{Keywords: []string{"Total:"}, Direction: pattern.DirectionRight, MaxDistance: 50, ExtractLength: 9}
		out := run(t, e, p, textDoc("Total: 1234.56 USD"))
		require.NotNil(t, out.Value)
		assert.True(t, len(*out.Value) >= len("1234.56"))
		assert.Equal(t, "1234.56", (*out.Value)[:len("1234.56")])
		assert.Equal(t, *out.Value, trimmed(*out.Value))
		assert.InDelta(t, KeywordConfidence, out.Confidence, 1e-9)
	})
	t.Run("case insensitive by default", func(t *testing.T) {
		p := &pattern.Keyword{Keywords: []string{"due date"}, Direction: pattern.DirectionRight, MaxDistance: 5, ExtractLength: 10}
		out := run(t, e, p, textDoc("DUE DATE 2024-03-01 thanks"))
		requireValue(t, out, "2024-03-01", KeywordConfidence)
	})
	t.Run("case sensitive misses", func(t *testing.T) {
		p := &pattern.Keyword{Keywords: []string{"due date"}, Direction: pattern.DirectionRight, MaxDistance: 5, ExtractLength: 10, CaseSensitive: true}
		out := run(t, e, p, textDoc("DUE DATE 2024-03-01"))
		requireNoValue(t, out, "no keyword")
	})
	t.Run("left", func(t *testing.T) {
		p := &pattern.Keyword{Keywords: []string{"EUR"}, Direction: pattern.DirectionLeft, MaxDistance: 2, ExtractLength: 6}
		out := run(t, e, p, textDoc("Amount 950.00 EUR"))
		requireValue(t, out, "950.00", KeywordConfidence)
	})
	t.Run("gap beyond max distance", func(t *testing.T) {
		p := &pattern.Keyword{Keywords: []string{"Total:"}, Direction: pattern.DirectionRight, MaxDistance: 2, ExtractLength: 5}
		out := run(t, e, p, textDoc("Total:        99.00"))
		requireNoValue(t, out, "no keyword")
	})
	t.Run("falls through to next keyword", func(t *testing.T) {
		p := &pattern.Keyword{Keywords: []string{"Grand Total", "Total"}, Direction: pattern.DirectionRight, MaxDistance: 3, ExtractLength: 6}
		out := run(t, e, p, textDoc("Total 42.00"))
		requireValue(t, out, "42.00", KeywordConfidence)
	})
	t.Run("first occurring keyword wins", func(t *testing.T) {
		p := &pattern.Keyword{Keywords: []string{"Subtotal", "Total"}, Direction: pattern.DirectionRight, MaxDistance: 3, ExtractLength: 5}
		out := run(t, e, p, textDoc("Total 10.00 Subtotal 8.00"))
		requireValue(t, out, "8.00", KeywordConfidence)
	})
	t.Run("keyword at end yields nothing", func(t *testing.T) {
		p := &pattern.Keyword{Keywords: []string{"Total"}, Direction: pattern.DirectionRight, MaxDistance: 3, ExtractLength: 5}
		out := run(t, e, p, textDoc("Total"))
		requireNoValue(t, out, "no keyword")
	})
	t.Run("multibyte text counts characters", func(t *testing.T) {
		p := &pattern.Keyword{Keywords: []string{"Société"}, Direction: pattern.DirectionRight, MaxDistance: 1, ExtractLength: 6}
		out := run(t, e, p, textDoc("SOCIÉTÉ Générale SA"))
		requireValue(t, out, "Généra", KeywordConfidence)
	})
	t.Run("below needs layout", func(t *testing.T) {
		p := &pattern.Keyword{Keywords: []string{"Invoice Number"}, Direction: pattern.DirectionBelow, MaxDistance: 5, ExtractLength: 20}
		out := run(t, e, p, textDoc("Invoice Number\nINV-1"))
		requireNoValue(t, out, "requires layout")
	})
	t.Run("below with layout", func(t *testing.T) {
		p := &pattern.Keyword{Keywords: []string{"Invoice Number"}, Direction: pattern.DirectionBelow, MaxDistance: 5, ExtractLength: 20}
		out := run(t, e, p, layoutDoc())
		requireValue(t, out, "INV-2024-001", KeywordConfidence)
		require.NotNil(t, out.Position)
		assert.Equal(t, 1, out.Position.Page)
	})
	t.Run("above with layout", func(t *testing.T) {
		p := &pattern.Keyword{Keywords: []string{"INV-2024"}, Direction: pattern.DirectionAbove, MaxDistance: 5, ExtractLength: 30}
		out := run(t, e, p, layoutDoc())
		requireValue(t, out, "Invoice Number", KeywordConfidence)
	})
}

func trimmed(s string) string {
	for len(s) > 0 && (s[0] == ' ' || s[len(s)-1] == ' ') {
		if s[0] == ' ' {
			s = s[1:]
		} else {
			s = s[:len(s)-1]
		}
	}
	return s
}

func TestPosition(t *testing.T) {
	e := NewEngine()

	t.Run("words inside region", func(t *testing.T) {
		p := &pattern.Position{Region: pattern.Region{X1: 0, Y1: 0, X2: 30, Y2: 10}, Unit: pattern.UnitPercent}
		out := run(t, e, p, layoutDoc())
		requireValue(t, out, "ACME Corp", PositionConfidence)
		require.NotNil(t, out.Position)
		assert.Equal(t, document.BoundingBox{X: 5, Y: 5, Width: 16, Height: 3}, out.Position.Box)
	})
	t.Run("partial overlap excluded", func(t *testing.T) {
		p := &pattern.Position{Region: pattern.Region{X1: 0, Y1: 0, X2: 18, Y2: 10}, Unit: pattern.UnitPercent}
		out := run(t, e, p, layoutDoc())
		requireValue(t, out, "ACME", PositionConfidence)
	})
	t.Run("no words", func(t *testing.T) {
		p := &pattern.Position{Region: pattern.Region{X1: 0, Y1: 90, X2: 10, Y2: 100}, Unit: pattern.UnitPercent}
		out := run(t, e, p, layoutDoc())
		requireNoValue(t, out, "no words in region")
	})
	t.Run("fallback accepts overlapping words", func(t *testing.T) {
		p := &pattern.Position{Region: pattern.Region{X1: 85, Y1: 79, X2: 100, Y2: 83}, Unit: pattern.UnitPercent, FallbackToOCR: true}
		out := run(t, e, p, layoutDoc())
		requireValue(t, out, "1,250.00", PositionFallbackConfidence)
		assert.NotEmpty(t, out.Diagnostic)
	})
	t.Run("missing layout", func(t *testing.T) {
		p := &pattern.Position{Region: pattern.Region{X1: 0, Y1: 0, X2: 10, Y2: 10}, Unit: pattern.UnitPercent}
		out := run(t, e, p, textDoc("plain"))
		requireNoValue(t, out, "missing layout")
	})
	t.Run("no implicit unit conversion", func(t *testing.T) {
		p := &pattern.Position{Region: pattern.Region{X1: 0, Y1: 0, X2: 1000, Y2: 1000}, Unit: pattern.UnitPixel}
		out := run(t, e, p, layoutDoc())
		requireNoValue(t, out, "unit mismatch")
	})
	t.Run("page out of range", func(t *testing.T) {
		p := &pattern.Position{Region: pattern.Region{X1: 0, Y1: 0, X2: 10, Y2: 10}, Unit: pattern.UnitPercent, Page: 4}
		out := run(t, e, p, layoutDoc())
		requireNoValue(t, out, "page 4")
	})
}

func TestTable(t *testing.T) {
	e := NewEngine()

	t.Run("header keywords and row keyword", func(t *testing.T) {
		p := &pattern.Table{
			TableLocator: pattern.TableLocator{HeaderKeywords: []string{"description", "amount"}},
			Column:       pattern.ColumnSelector{Header: "Amount"},
			Row:          pattern.RowSelector{Keywords: []string{"widgets"}},
			CellOptions:  pattern.CellOptions{ParseNumber: true},
		}
		out := run(t, e, p, layoutDoc())
		requireValue(t, out, "1000.00", TableConfidence)
		require.NotNil(t, out.Position)
		assert.Equal(t, 1, out.Position.Page)
	})
	t.Run("indexes and trim", func(t *testing.T) {
		p := &pattern.Table{
			TableLocator: pattern.TableLocator{Index: ptr(0)},
			Column:       pattern.ColumnSelector{Index: ptr(2)},
			Row:          pattern.RowSelector{Index: ptr(1)},
			CellOptions:  pattern.CellOptions{Trim: true},
		}
		out := run(t, e, p, layoutDoc())
		requireValue(t, out, "250.00", TableConfidence)
	})
	t.Run("near text", func(t *testing.T) {
		p := &pattern.Table{
			TableLocator: pattern.TableLocator{NearText: "ACME Corp"},
			Column:       pattern.ColumnSelector{Header: "qty"},
			Row:          pattern.RowSelector{Keywords: []string{"shipping"}},
		}
		out := run(t, e, p, layoutDoc())
		requireValue(t, out, "1", TableConfidence)
	})
	t.Run("table not found", func(t *testing.T) {
		p := &pattern.Table{
			TableLocator: pattern.TableLocator{HeaderKeywords: []string{"VAT rate"}},
			Column:       pattern.ColumnSelector{Index: ptr(0)},
			Row:          pattern.RowSelector{Index: ptr(0)},
		}
		out := run(t, e, p, layoutDoc())
		requireNoValue(t, out, "table not found")
	})
	t.Run("column not found", func(t *testing.T) {
		p := &pattern.Table{
			TableLocator: pattern.TableLocator{Index: ptr(0)},
			Column:       pattern.ColumnSelector{Header: "Unit price"},
			Row:          pattern.RowSelector{Index: ptr(0)},
		}
		out := run(t, e, p, layoutDoc())
		requireNoValue(t, out, "column not found")
	})
	t.Run("row not found", func(t *testing.T) {
		p := &pattern.Table{
			TableLocator: pattern.TableLocator{Index: ptr(0)},
			Column:       pattern.ColumnSelector{Index: ptr(0)},
			Row:          pattern.RowSelector{Keywords: []string{"discount"}},
		}
		out := run(t, e, p, layoutDoc())
		requireNoValue(t, out, "row not found")
	})
	t.Run("empty cell", func(t *testing.T) {
		p := &pattern.Table{
			TableLocator: pattern.TableLocator{Index: ptr(0)},
			Column:       pattern.ColumnSelector{Index: ptr(2)},
			Row:          pattern.RowSelector{Keywords: []string{"notes"}},
		}
		out := run(t, e, p, layoutDoc())
		requireNoValue(t, out, "cell empty")
	})
	t.Run("plain text table", func(t *testing.T) {
		doc := textDoc("Invoice 7\n\nItem    Qty    Price\nPaper    2    1.234,50 €\nInk    1    12,00 €\n\nThanks")
		p := &pattern.Table{
			TableLocator: pattern.TableLocator{HeaderKeywords: []string{"price"}},
			Column:       pattern.ColumnSelector{Header: "Price"},
			Row:          pattern.RowSelector{Keywords: []string{"paper"}},
			CellOptions:  pattern.CellOptions{Trim: true, ParseNumber: true},
		}
		out := run(t, e, p, doc)
		requireValue(t, out, "1234.50", TableConfidence)
		assert.Nil(t, out.Position)
	})
	t.Run("not numeric", func(t *testing.T) {
		p := &pattern.Table{
			TableLocator: pattern.TableLocator{Index: ptr(0)},
			Column:       pattern.ColumnSelector{Index: ptr(0)},
			Row:          pattern.RowSelector{Index: ptr(0)},
			CellOptions:  pattern.CellOptions{ParseNumber: true},
		}
		out := run(t, e, p, layoutDoc())
		requireNoValue(t, out, "not numeric")
	})
}

func TestParseNumber(t *testing.T) {
	cases := map[string]string{
		"$1,234.56":  "1234.56",
		"1.234,56 €": "1234.56",
		"12,00":      "12.00",
		"1,234":      "1234",
		"(45.10)":    "-45.10",
		"-7":         "-7",
		"USD 50":     "50",
	}
	for in, want := range cases {
		got, ok := parseNumber(in)
		require.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	for _, bad := range []string{"", "n/a", ".", "1-2"} {
		_, ok := parseNumber(bad)
		assert.False(t, ok, bad)
	}
}

type mockCompleter struct {
	mock.Mock
}

func (m *mockCompleter) Complete(ctx context.Context, req llm.CompletionRequest) (llm.Completion, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(llm.Completion), args.Error(1)
}

func TestAIAssisted(t *testing.T) {
	p := &pattern.AIAssisted{
		Prompt:        "Find the purchase order number",
		ModelConfig:   &pattern.ModelConfig{Model: "gpt-4o-mini", TimeoutSeconds: 5},
		ContextFields: []string{"vendorName", "invoiceDate"},
	}
	doc := textDoc("PO PO-5521 issued by Acme")

	t.Run("maps the completion", func(t *testing.T) {
		m := &mockCompleter{}
		m.On("Complete", mock.Anything, mock.MatchedBy(func(req llm.CompletionRequest) bool {
			return req.Model == "gpt-4o-mini" &&
				req.ContextValues["vendorName"] == "Acme" &&
				len(req.ContextValues) == 1 &&
				req.DocumentText == doc.Text
		})).Return(llm.Completion{Value: ptr(" PO-5521 "), Confidence: 1.7}, nil).Once()

		e := NewEngine(WithCompleter(m))
		out := e.Execute(context.Background(), Request{Pattern: p, Document: doc, Fields: map[string]string{"vendorName": "Acme"}})
		requireValue(t, out, "PO-5521", 1)
		assert.Contains(t, out.Diagnostic, "invoiceDate")
		m.AssertExpectations(t)
	})
	t.Run("collaborator failure is recoverable", func(t *testing.T) {
		m := &mockCompleter{}
		m.On("Complete", mock.Anything, mock.Anything).Return(llm.Completion{}, context.DeadlineExceeded).Once()

		out := NewEngine(WithCompleter(m)).Execute(context.Background(), Request{Pattern: p, Document: doc})
		requireNoValue(t, out, "model collaborator failed")
	})
	t.Run("empty answer", func(t *testing.T) {
		m := &mockCompleter{}
		m.On("Complete", mock.Anything, mock.Anything).Return(llm.Completion{Value: nil, Confidence: 0.9}, nil).Once()

		out := NewEngine(WithCompleter(m)).Execute(context.Background(), Request{Pattern: p, Document: doc})
		requireNoValue(t, out, "no value")
	})
	t.Run("no collaborator", func(t *testing.T) {
		out := NewEngine().Execute(context.Background(), Request{Pattern: p, Document: doc})
		requireNoValue(t, out, "no model collaborator")
	})
	t.Run("timeout applied", func(t *testing.T) {
		m := &mockCompleter{}
		m.On("Complete", mock.MatchedBy(func(ctx context.Context) bool {
			dl, ok := ctx.Deadline()
			return ok && time.Until(dl) <= 5*time.Second
		}), mock.Anything).Return(llm.Completion{}, errors.New("slow")).Once()

		out := NewEngine(WithCompleter(m)).Execute(context.Background(), Request{Pattern: p, Document: doc})
		requireNoValue(t, out, "slow")
		m.AssertExpectations(t)
	})
}

func TestOutcomeInvariantsAndIdempotence(t *testing.T) {
	m := &mockCompleter{}
	m.On("Complete", mock.Anything, mock.Anything).Return(llm.Completion{Value: ptr("x"), Confidence: -3}, nil)

	e := NewEngine(WithCompleter(m))
	patterns := []pattern.Pattern{
		&pattern.Regex{Expression: `INV-(\d+)`, GroupIndex: 1},
		&pattern.Regex{Expression: `(`},
		&pattern.Keyword{Keywords: []string{"Total"}, Direction: pattern.DirectionRight, MaxDistance: 3, ExtractLength: 10},
		&pattern.Keyword{Keywords: []string{"Total"}, Direction: pattern.DirectionBelow, MaxDistance: 3, ExtractLength: 10},
		&pattern.Position{Region: pattern.Region{X1: 0, Y1: 0, X2: 100, Y2: 100}, Unit: pattern.UnitPercent},
		&pattern.Table{TableLocator: pattern.TableLocator{Index: ptr(0)}, Column: pattern.ColumnSelector{Index: ptr(1)}, Row: pattern.RowSelector{Index: ptr(0)}},
		&pattern.AIAssisted{Prompt: "anything"},
	}
	docs := []*document.View{textDoc(""), textDoc("INV-77 Total 5"), layoutDoc()}

	for _, p := range patterns {
		for _, d := range docs {
			first := run(t, e, p, d)
			assert.GreaterOrEqual(t, first.Confidence, 0.0)
			assert.LessOrEqual(t, first.Confidence, 1.0)
			if first.Value == nil {
				assert.Zero(t, first.Confidence)
			}
			assert.Equal(t, first, run(t, e, p, d), "%T on %s", p, d.ID)
		}
	}
}

func TestExecuteGuardsAndObserver(t *testing.T) {
	var kinds []pattern.Kind
	e := NewEngine(WithObserver(func(kind pattern.Kind, out Outcome, elapsed time.Duration) {
		kinds = append(kinds, kind)
		assert.GreaterOrEqual(t, elapsed, time.Duration(0))
	}))

	requireNoValue(t, e.Execute(context.Background(), Request{Document: textDoc("x")}), "no pattern")
	requireNoValue(t, e.Execute(context.Background(), Request{Pattern: &pattern.Regex{Expression: "x"}}), "no document")
	run(t, e, &pattern.Regex{Expression: "x"}, textDoc("x"))
	assert.Equal(t, []pattern.Kind{pattern.KindRegex, pattern.KindRegex}, kinds)
}
