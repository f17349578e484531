package extract

import (
	"strings"

	"github.com/joseph-ayodele/invoice-rules/internal/document"
	"github.com/joseph-ayodele/invoice-rules/internal/pattern"
)

func (x executor) VisitPosition(p *pattern.Position) Outcome {
	doc := x.req.Document
	if !doc.HasLayout() {
		return fail("missing layout data")
	}
	if u := doc.Layout.Unit; u != "" && u != string(p.Unit) {
		return fail("unit mismatch: pattern uses %s, layout uses %s", p.Unit, u)
	}
	page, ok := doc.Layout.Page(p.Page)
	if !ok {
		return fail("page %d not in layout", p.Page)
	}

	r := p.Region
	if out, ok := collectWords(page, func(b document.BoundingBox) bool { return b.Within(r.X1, r.Y1, r.X2, r.Y2) }); ok {
		out.Confidence = PositionConfidence
		return out
	}
	if p.FallbackToOCR {
		if out, ok := collectWords(page, func(b document.BoundingBox) bool { return b.Intersects(r.X1, r.Y1, r.X2, r.Y2) }); ok {
			out.Confidence = PositionFallbackConfidence
			out.Diagnostic = "no words fully inside region; used words overlapping it"
			return out
		}
	}
	return fail("no words in region")
}

// collectWords joins, in document order, the words on page whose box satisfies keep.
func collectWords(page *document.Page, keep func(document.BoundingBox) bool) (Outcome, bool) {
	var (
		texts []string
		box   document.BoundingBox
	)
	for _, w := range page.Words {
		if !keep(w.Box) || strings.TrimSpace(w.Text) == "" {
			continue
		}
		if len(texts) == 0 {
			box = w.Box
		} else {
			box = box.Union(w.Box)
		}
		texts = append(texts, strings.TrimSpace(w.Text))
	}
	if len(texts) == 0 {
		return Outcome{}, false
	}
	v := strings.Join(texts, " ")
	return Outcome{Value: &v, Position: &Located{Page: page.Number, Box: box}}, true
}
