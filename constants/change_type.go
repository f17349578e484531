package constants

// ChangeType classifies one document's outcome when comparing two patterns.
type ChangeType string

const (
	ChangeImproved  ChangeType = "IMPROVED"
	ChangeRegressed ChangeType = "REGRESSED"
	ChangeBothRight ChangeType = "BOTH_RIGHT"
	ChangeBothWrong ChangeType = "BOTH_WRONG"
	// ChangeUnchanged is kept for compatibility with stored reports. The classifier never emits it.
	ChangeUnchanged ChangeType = "UNCHANGED"
)

// ChangeTypes lists the values the classifier can produce, in report order.
var ChangeTypes = []ChangeType{ChangeImproved, ChangeRegressed, ChangeBothRight, ChangeBothWrong}
