package repair

// FixOutcome records one fix attempt against a single ValidationIssue.
type FixOutcome struct {
	Code     string // validate.ValidationIssue.Code this fix addressed
	Location string
	Detail   string
}

// Report summarises a Repair run: which issues were fixed and which
// auto-fixable issues had no registered fix (or failed). It holds no
// errors; Repair returns its error aggregate (go.uber.org/multierr)
// separately.
type Report struct {
	FixesApplied []FixOutcome
	FixesFailed  []FixOutcome
}
