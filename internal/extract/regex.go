package extract

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/joseph-ayodele/invoice-rules/internal/pattern"
)

var whitespaceRun = regexp.MustCompile(`\s+`)

func (x executor) VisitRegex(p *pattern.Regex) Outcome {
	text := preprocess(x.req.Document.Text, p.Preprocessing)

	re, err := compileRegex(p.Expression, p.Flags)
	if err != nil {
		return fail("regex compile failed: %v", err)
	}
	m := re.FindStringSubmatch(text)
	if m == nil {
		return fail("no match")
	}
	if p.GroupIndex >= len(m) {
		return fail("group %d out of range: expression has %d groups", p.GroupIndex, len(m)-1)
	}
	v := m[p.GroupIndex]
	if v == "" {
		return fail("group %d matched empty text", p.GroupIndex)
	}
	if p.Preprocessing != nil {
		switch p.Preprocessing.Case {
		case pattern.CaseUpper:
			v = strings.ToUpper(v)
		case pattern.CaseLower:
			v = strings.ToLower(v)
		}
	}
	return found(v, RegexConfidence)
}

func preprocess(text string, pre *pattern.Preprocessing) string {
	if pre == nil {
		return text
	}
	if pre.Trim {
		text = strings.TrimSpace(text)
	}
	switch pre.Whitespace {
	case pattern.WhitespaceCollapse:
		text = whitespaceRun.ReplaceAllString(text, " ")
	case pattern.WhitespaceRemove:
		text = strings.Map(func(r rune) rune {
			if unicode.IsSpace(r) {
				return -1
			}
			return r
		}, text)
	}
	return text
}

// compileRegex maps flag letters onto RE2 inline flags. 'g' is accepted and ignored because
// only the first match is used.
func compileRegex(expr, flags string) (*regexp.Regexp, error) {
	var inline []rune
	for _, f := range flags {
		switch f {
		case 'i', 'm', 's', 'U':
			if !strings.ContainsRune(string(inline), f) {
				inline = append(inline, f)
			}
		case 'g', 'u':
		default:
			return nil, fmt.Errorf("unsupported flag %q", f)
		}
	}
	if len(inline) > 0 {
		expr = "(?" + string(inline) + ")" + expr
	}
	return regexp.Compile(expr)
}
