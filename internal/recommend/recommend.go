// Package recommend turns a regression summary into an adopt/reject verdict.
package recommend

import (
	"fmt"

	"github.com/joseph-ayodele/invoice-rules/internal/entity"
)

type Verdict string

const (
	VerdictReject  Verdict = "Reject"
	VerdictAdopt   Verdict = "Adopt"
	VerdictNeutral Verdict = "Neutral"
)

// Thresholds are regression-rate limits expressed as fractions.
type Thresholds struct {
	MaxRegressionRate         float64
	MaxRegressionRateForAdopt float64
}

// DefaultThresholds reject above 5% regressions and adopt only at or below 2%.
func DefaultThresholds() Thresholds {
	return Thresholds{MaxRegressionRate: 0.05, MaxRegressionRateForAdopt: 0.02}
}

type Recommendation struct {
	Verdict   Verdict `json:"verdict"`
	Rationale string  `json:"rationale"`
}

// Recommend evaluates, in order: reject on excessive regressions, adopt on a net gain with
// acceptable regressions, neutral on no net gain, neutral otherwise.
func Recommend(s entity.Summary, th Thresholds) Recommendation {
	switch {
	case s.Regressed > 0 && s.RegressionRate > th.MaxRegressionRate:
		return Recommendation{
			Verdict: VerdictReject,
			Rationale: fmt.Sprintf("regression rate %s exceeds the %s limit (%d regressed, net improvement %d)",
				pct(s.RegressionRate), pct(th.MaxRegressionRate), s.Regressed, s.NetImprovement),
		}
	case s.NetImprovement > 0 && s.RegressionRate <= th.MaxRegressionRateForAdopt:
		return Recommendation{
			Verdict: VerdictAdopt,
			Rationale: fmt.Sprintf("net improvement of %d documents with regression rate %s within the %s adoption limit",
				s.NetImprovement, pct(s.RegressionRate), pct(th.MaxRegressionRateForAdopt)),
		}
	case s.NetImprovement <= 0:
		return Recommendation{
			Verdict:   VerdictNeutral,
			Rationale: fmt.Sprintf("no net benefit (net improvement %d); re-evaluate the candidate rule", s.NetImprovement),
		}
	default:
		return Recommendation{
			Verdict: VerdictNeutral,
			Rationale: fmt.Sprintf("mixed signal: net improvement %d but regression rate %s is above the %s adoption limit; needs human judgement",
				s.NetImprovement, pct(s.RegressionRate), pct(th.MaxRegressionRateForAdopt)),
		}
	}
}

func pct(f float64) string {
	return fmt.Sprintf("%.1f%%", f*100)
}
