package regression

import (
	"github.com/joseph-ayodele/invoice-rules/constants"
	"github.com/joseph-ayodele/invoice-rules/internal/entity"
)

// Summarize aggregates classified documents. Total is the number of details; documents that
// failed are reported in Errors only. Rates are zero for an empty run.
func Summarize(details []entity.TestDetail, errorCount int) entity.Summary {
	s := entity.Summary{Total: len(details), Errors: errorCount}
	var origOK, testOK int
	for _, d := range details {
		switch d.ChangeType {
		case constants.ChangeImproved:
			s.Improved++
		case constants.ChangeRegressed:
			s.Regressed++
		case constants.ChangeBothRight:
			s.BothRight++
		case constants.ChangeBothWrong:
			s.BothWrong++
		}
		if d.OriginalAccurate {
			origOK++
		}
		if d.TestAccurate {
			testOK++
		}
	}
	s.NetImprovement = s.Improved - s.Regressed
	if s.Total > 0 {
		total := float64(s.Total)
		s.ImprovementRate = float64(s.Improved) / total
		s.RegressionRate = float64(s.Regressed) / total
		s.OriginalAccuracy = float64(origOK) / total
		s.TestAccuracy = float64(testOK) / total
	}
	return s
}
