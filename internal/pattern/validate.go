package pattern

import (
	"regexp/syntax"
	"strings"

	"github.com/joseph-ayodele/invoice-rules/internal/common"
)

// Validate runs the semantic checks that the per-kind JSON schema cannot express.
func Validate(p Pattern) error {
	if p == nil {
		return invalid(common.ValidationError{Field: "pattern", Message: "is required"})
	}
	v := Visit[*common.Validator](p, validator{})
	return v.Error(CodeInvalidPattern)
}

type validator struct{}

func (validator) VisitRegex(p *Regex) *common.Validator {
	v := common.NewValidator().Field("expression", p.Expression, common.Required)
	if p.GroupIndex < 0 {
		v.Check(false, "groupIndex", p.GroupIndex, "must not be negative")
	}
	// Unparseable expressions are a runtime diagnostic, not a shape error, so only the
	// group count is checked here when the expression parses.
	if re, err := syntax.Parse(p.Expression, syntax.Perl); err == nil {
		v.Check(p.GroupIndex <= re.MaxCap(), "groupIndex", p.GroupIndex, "exceeds the number of capture groups")
	}
	return v
}

func (validator) VisitPosition(p *Position) *common.Validator {
	r := p.Region
	v := common.NewValidator().
		Field("unit", string(p.Unit), common.Required, common.OneOf(string(UnitPercent), string(UnitPixel))).
		Check(r.X2 > r.X1, "region.x2", r.X2, "must be greater than x1").
		Check(r.Y2 > r.Y1, "region.y2", r.Y2, "must be greater than y1").
		Check(r.X1 >= 0 && r.Y1 >= 0, "region", r, "coordinates must not be negative").
		Check(p.Page >= 0, "page", p.Page, "must not be negative")
	if p.Unit == UnitPercent {
		v.Check(r.X2 <= 100 && r.Y2 <= 100, "region", r, "percent coordinates must be within 0..100")
	}
	return v
}

func (validator) VisitKeyword(p *Keyword) *common.Validator {
	v := common.NewValidator().
		Field("keywords", p.Keywords, common.Required).
		Field("direction", string(p.Direction), common.Required,
			common.OneOf(string(DirectionRight), string(DirectionLeft), string(DirectionAbove), string(DirectionBelow))).
		Check(p.ExtractLength > 0, "extractLength", p.ExtractLength, "must be positive").
		Check(p.MaxDistance >= 0, "maxDistance", p.MaxDistance, "must not be negative")
	for _, kw := range p.Keywords {
		v.Check(strings.TrimSpace(kw) != "", "keywords", p.Keywords, "must not contain blank keywords")
	}
	return v
}

func (validator) VisitTable(p *Table) *common.Validator {
	loc := p.TableLocator
	return common.NewValidator().
		Check(len(loc.HeaderKeywords) > 0 || loc.Index != nil || strings.TrimSpace(loc.NearText) != "",
			"tableLocator", loc, "needs headerKeywords, index or nearText").
		Check(strings.TrimSpace(p.Column.Header) != "" || p.Column.Index != nil,
			"column", p.Column, "needs header or index").
		Check(len(p.Row.Keywords) > 0 || p.Row.Index != nil,
			"row", p.Row, "needs keywords or index")
}

func (validator) VisitAIAssisted(p *AIAssisted) *common.Validator {
	v := common.NewValidator().Field("prompt", p.Prompt, common.Required)
	for _, f := range p.ContextFields {
		v.Field("contextFields", f, common.FieldName)
	}
	if p.ModelConfig != nil {
		v.Field("modelConfig.temperature", p.ModelConfig.Temperature, common.Between(0, 2))
		v.Check(p.ModelConfig.TimeoutSeconds >= 0, "modelConfig.timeoutSeconds", p.ModelConfig.TimeoutSeconds, "must not be negative")
	}
	return v
}
