package extract

import (
	"cmp"
	"math"
	"slices"
	"strings"
	"unicode"

	"github.com/joseph-ayodele/invoice-rules/internal/document"
	"github.com/joseph-ayodele/invoice-rules/internal/pattern"
)

func (x executor) VisitKeyword(p *pattern.Keyword) Outcome {
	switch p.Direction {
	case pattern.DirectionRight, pattern.DirectionLeft:
		return keywordInText(x.req.Document.Text, p)
	case pattern.DirectionAbove, pattern.DirectionBelow:
		if !x.req.Document.HasLayout() {
			return fail("direction %s requires layout data", p.Direction)
		}
		return keywordInLayout(x.req.Document.Layout, p)
	}
	return fail("unsupported direction %q", p.Direction)
}

// keywordInText works on runes so that extractLength and maxDistance count characters.
// The value must start within maxDistance characters of the keyword.
func keywordInText(text string, p *pattern.Keyword) Outcome {
	runes := []rune(text)
	haystack := runes
	if !p.CaseSensitive {
		haystack = foldRunes(runes)
	}

	for _, kw := range p.Keywords {
		needle := []rune(kw)
		if !p.CaseSensitive {
			needle = foldRunes(needle)
		}
		idx := indexRunes(haystack, needle)
		if idx < 0 {
			continue
		}

		var slice []rune
		if p.Direction == pattern.DirectionRight {
			start := idx + len(needle)
			gap := 0
			for start+gap < len(runes) && unicode.IsSpace(runes[start+gap]) {
				gap++
			}
			if gap > p.MaxDistance {
				continue
			}
			start += gap
			slice = runes[start:min(start+p.ExtractLength, len(runes))]
		} else {
			end := idx
			gap := 0
			for end-gap > 0 && unicode.IsSpace(runes[end-gap-1]) {
				gap++
			}
			if gap > p.MaxDistance {
				continue
			}
			end -= gap
			slice = runes[max(end-p.ExtractLength, 0):end]
		}

		if v := strings.TrimSpace(string(slice)); v != "" {
			return found(v, KeywordConfidence)
		}
	}
	return fail("no keyword yielded a value")
}

func keywordInLayout(layout *document.Layout, p *pattern.Keyword) Outcome {
	for _, kw := range p.Keywords {
		for pi := range layout.Pages {
			page := &layout.Pages[pi]
			anchor, ok := findPhrase(page.Words, kw, p.CaseSensitive)
			if !ok {
				continue
			}
			words := nearestLine(page.Words, anchor, p)
			if len(words) == 0 {
				continue
			}

			texts := make([]string, len(words))
			box := words[0].Box
			for i, w := range words {
				texts[i] = w.Text
				box = box.Union(w.Box)
			}
			joined := []rune(strings.Join(texts, " "))
			v := strings.TrimSpace(string(joined[:min(p.ExtractLength, len(joined))]))
			if v == "" {
				continue
			}
			out := found(v, KeywordConfidence)
			out.Position = &Located{Page: page.Number, Box: box}
			return out
		}
	}
	return fail("no keyword yielded a value")
}

// findPhrase locates consecutive words matching the whitespace-separated tokens of phrase and
// returns their combined box.
func findPhrase(words []document.Word, phrase string, caseSensitive bool) (document.BoundingBox, bool) {
	tokens := strings.Fields(phrase)
	if len(tokens) == 0 {
		return document.BoundingBox{}, false
	}
	norm := func(s string) string {
		if caseSensitive {
			return s
		}
		return string(foldRunes([]rune(s)))
	}
	for i := 0; i+len(tokens) <= len(words); i++ {
		match := true
		for j, tok := range tokens {
			if !strings.Contains(norm(words[i+j].Text), norm(tok)) {
				match = false
				break
			}
		}
		if !match {
			continue
		}
		box := words[i].Box
		for j := 1; j < len(tokens); j++ {
			box = box.Union(words[i+j].Box)
		}
		return box, true
	}
	return document.BoundingBox{}, false
}

// nearestLine returns the words of the closest line above or below anchor that overlaps it
// horizontally and lies within maxDistance, ordered left to right.
func nearestLine(words []document.Word, anchor document.BoundingBox, p *pattern.Keyword) []document.Word {
	type candidate struct {
		word document.Word
		gap  float64
	}
	var cands []candidate
	for _, w := range words {
		if w.Box.X >= anchor.Right() || w.Box.Right() <= anchor.X {
			continue
		}
		var gap float64
		if p.Direction == pattern.DirectionBelow {
			gap = w.Box.Y - anchor.Bottom()
		} else {
			gap = anchor.Y - w.Box.Bottom()
		}
		if gap < 0 || gap > float64(p.MaxDistance) {
			continue
		}
		cands = append(cands, candidate{word: w, gap: gap})
	}
	if len(cands) == 0 {
		return nil
	}

	best := slices.MinFunc(cands, func(a, b candidate) int { return cmp.Compare(a.gap, b.gap) })
	tolerance := best.word.Box.Height / 2
	var line []document.Word
	for _, c := range cands {
		if math.Abs(c.gap-best.gap) <= tolerance {
			line = append(line, c.word)
		}
	}
	slices.SortStableFunc(line, func(a, b document.Word) int { return cmp.Compare(a.Box.X, b.Box.X) })
	return line
}

func foldRunes(in []rune) []rune {
	out := make([]rune, len(in))
	for i, r := range in {
		out[i] = unicode.ToLower(r)
	}
	return out
}

func indexRunes(haystack, needle []rune) int {
	if len(needle) == 0 {
		return -1
	}
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if slices.Equal(haystack[i:i+len(needle)], needle) {
			return i
		}
	}
	return -1
}
