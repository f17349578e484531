package extract

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/joseph-ayodele/invoice-rules/internal/document"
	"github.com/joseph-ayodele/invoice-rules/internal/pattern"
)

// located is a table together with the page it came from. Page is zero for tables recovered
// from plain text.
type located struct {
	table document.Table
	page  int
}

var cellSeparator = regexp.MustCompile(`\t+|\s*\|\s*|\s{2,}`)

func (x executor) VisitTable(p *pattern.Table) Outcome {
	doc := x.req.Document
	tables := layoutTables(doc)
	if len(tables) == 0 {
		tables = textTables(doc.Text)
	}
	if len(tables) == 0 {
		return fail("table not found: document has no tables")
	}

	t, diag := locateTable(tables, p.TableLocator, doc)
	if t == nil {
		return fail("table not found: %s", diag)
	}
	if len(t.table.Rows) == 0 {
		return fail("table not found: located table is empty")
	}

	header := t.table.Rows[0]
	col, ok := locateColumn(header, p.Column)
	if !ok {
		return fail("column not found")
	}
	row, ok := locateRow(t.table.Rows[1:], p.Row)
	if !ok {
		return fail("row not found")
	}
	if col >= len(row) {
		return fail("cell not found: row has %d cells, column index %d", len(row), col)
	}

	cell := row[col]
	if p.CellOptions.Trim {
		cell = strings.TrimSpace(cell)
	}
	if strings.TrimSpace(cell) == "" {
		return fail("cell empty")
	}
	if p.CellOptions.ParseNumber {
		n, ok := parseNumber(cell)
		if !ok {
			return fail("cell not numeric: %q", cell)
		}
		cell = n
	}

	out := found(cell, TableConfidence)
	if t.page > 0 {
		out.Position = &Located{Page: t.page, Box: t.table.Box}
	}
	return out
}

func layoutTables(doc *document.View) []located {
	if !doc.HasLayout() {
		return nil
	}
	var out []located
	for _, pg := range doc.Layout.Pages {
		for _, t := range pg.Tables {
			out = append(out, located{table: t, page: pg.Number})
		}
	}
	return out
}

// textTables recovers grids from plain text: runs of consecutive lines that split into at least
// two cells on tabs, pipes or wide spacing.
func textTables(text string) []located {
	var (
		out     []located
		current [][]string
	)
	flush := func() {
		if len(current) >= 2 {
			out = append(out, located{table: document.Table{Rows: current}})
		}
		current = nil
	}
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.Trim(strings.TrimSpace(line), "|")
		cells := cellSeparator.Split(strings.TrimSpace(trimmed), -1)
		if len(cells) < 2 {
			flush()
			continue
		}
		current = append(current, cells)
	}
	flush()
	return out
}

func locateTable(tables []located, loc pattern.TableLocator, doc *document.View) (*located, string) {
	if loc.Index != nil {
		if *loc.Index >= len(tables) {
			return nil, "index " + strconv.Itoa(*loc.Index) + " beyond " + strconv.Itoa(len(tables)) + " tables"
		}
		return &tables[*loc.Index], ""
	}

	candidates := tables
	if len(loc.HeaderKeywords) > 0 {
		candidates = nil
		for _, t := range tables {
			if len(t.table.Rows) > 0 && headerHasAll(t.table.Rows[0], loc.HeaderKeywords) {
				candidates = append(candidates, t)
			}
		}
		if len(candidates) == 0 {
			return nil, "no table header contains " + strings.Join(loc.HeaderKeywords, ", ")
		}
	}

	near := strings.TrimSpace(loc.NearText)
	if near == "" {
		return &candidates[0], ""
	}
	anchors := anchorsFor(doc, near)
	if len(anchors) == 0 {
		return nil, "near text " + strconv.Quote(near) + " not in layout"
	}

	best, bestDist := -1, math.Inf(1)
	for i, c := range candidates {
		for _, a := range anchors {
			if a.page != c.page {
				continue
			}
			if d := boxDistance(a.box, c.table.Box); d < bestDist {
				best, bestDist = i, d
			}
		}
	}
	if best < 0 {
		return nil, "no table on the page of " + strconv.Quote(near)
	}
	return &candidates[best], ""
}

type anchor struct {
	page int
	box  document.BoundingBox
}

func anchorsFor(doc *document.View, text string) []anchor {
	if !doc.HasLayout() {
		return nil
	}
	var out []anchor
	for _, pg := range doc.Layout.Pages {
		if box, ok := findPhrase(pg.Words, text, false); ok {
			out = append(out, anchor{page: pg.Number, box: box})
		}
	}
	return out
}

// boxDistance is the gap between two boxes, zero when they overlap.
func boxDistance(a, b document.BoundingBox) float64 {
	dx := max(0, max(a.X-b.Right(), b.X-a.Right()))
	dy := max(0, max(a.Y-b.Bottom(), b.Y-a.Bottom()))
	return math.Hypot(dx, dy)
}

func headerHasAll(header []string, keywords []string) bool {
	for _, kw := range keywords {
		k := strings.ToLower(strings.TrimSpace(kw))
		hit := false
		for _, h := range header {
			if strings.Contains(strings.ToLower(h), k) {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	return true
}

func locateColumn(header []string, sel pattern.ColumnSelector) (int, bool) {
	if want := strings.ToLower(strings.TrimSpace(sel.Header)); want != "" {
		for i, h := range header {
			if strings.ToLower(strings.TrimSpace(h)) == want {
				return i, true
			}
		}
		for i, h := range header {
			if strings.Contains(strings.ToLower(h), want) {
				return i, true
			}
		}
		return 0, false
	}
	if sel.Index != nil && *sel.Index < len(header) {
		return *sel.Index, true
	}
	return 0, false
}

// locateRow searches data rows, the header row already removed.
func locateRow(rows [][]string, sel pattern.RowSelector) ([]string, bool) {
	if len(sel.Keywords) > 0 {
		for _, row := range rows {
			for _, cell := range row {
				c := strings.ToLower(cell)
				for _, kw := range sel.Keywords {
					if k := strings.ToLower(strings.TrimSpace(kw)); k != "" && strings.Contains(c, k) {
						return row, true
					}
				}
			}
		}
		return nil, false
	}
	if sel.Index != nil && *sel.Index < len(rows) {
		return rows[*sel.Index], true
	}
	return nil, false
}

// parseNumber strips currency symbols and grouping separators and returns the amount with a
// '.' decimal separator. The digits after the separator are kept as printed. A parenthesized
// amount is negative.
func parseNumber(s string) (string, bool) {
	t := strings.TrimSpace(s)
	neg := false
	if strings.HasPrefix(t, "(") && strings.HasSuffix(t, ")") {
		neg = true
		t = t[1 : len(t)-1]
	}

	var b strings.Builder
	for _, r := range t {
		if unicode.IsDigit(r) || r == '.' || r == ',' || r == '-' {
			b.WriteRune(r)
		}
	}
	t = b.String()
	if rest, ok := strings.CutPrefix(t, "-"); ok {
		neg = true
		t = rest
	}

	lastDot, lastComma := strings.LastIndex(t, "."), strings.LastIndex(t, ",")
	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			t = strings.ReplaceAll(t, ".", "")
			t = strings.Replace(t, ",", ".", 1)
		} else {
			t = strings.ReplaceAll(t, ",", "")
		}
	case lastComma >= 0:
		if strings.Count(t, ",") == 1 && len(t)-lastComma-1 != 3 {
			t = strings.Replace(t, ",", ".", 1)
		} else {
			t = strings.ReplaceAll(t, ",", "")
		}
	}

	if t == "" || t == "." {
		return "", false
	}
	if _, err := strconv.ParseFloat(t, 64); err != nil {
		return "", false
	}
	if neg {
		t = "-" + t
	}
	return t, true
}
