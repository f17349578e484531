// Package classify compares two extracted values against ground truth.
package classify

import (
	"strings"

	"golang.org/x/text/cases"

	"github.com/joseph-ayodele/invoice-rules/constants"
)

// Normalize trims, case-folds and collapses whitespace runs to a single space.
// There is no numeric normalization: "100" and "100.00" stay different.
func Normalize(s string) string {
	return strings.Join(strings.Fields(cases.Fold().String(s)), " ")
}

// IsAccurate reports whether extracted matches actual after normalization. Two nil values are
// equal; nil never equals a present value.
func IsAccurate(extracted, actual *string) bool {
	if extracted == nil || actual == nil {
		return extracted == nil && actual == nil
	}
	return Normalize(*extracted) == Normalize(*actual)
}

// Classify maps the 2×2 accuracy space onto a ChangeType. It never returns ChangeUnchanged.
func Classify(original, test, actual *string) constants.ChangeType {
	return FromAccuracy(IsAccurate(original, actual), IsAccurate(test, actual))
}

// FromAccuracy is the exhaustive mapping used by Classify.
func FromAccuracy(originalAccurate, testAccurate bool) constants.ChangeType {
	switch {
	case !originalAccurate && testAccurate:
		return constants.ChangeImproved
	case originalAccurate && !testAccurate:
		return constants.ChangeRegressed
	case originalAccurate && testAccurate:
		return constants.ChangeBothRight
	default:
		return constants.ChangeBothWrong
	}
}
