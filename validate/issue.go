package validate

import "fmt"

// Severity mirrors spec.md §4.5's three-level scale. strict promotion of
// Warning to Error is the caller's decision, never encoded in the issue
// list itself.
type Severity string

const (
	SeverityError   Severity = "ERROR"
	SeverityWarning Severity = "WARNING"
	SeverityInfo    Severity = "INFO"
)

// ValidationIssue is one finding from a validation pass. Code is a stable,
// machine-readable string (e.g. "EPUB-MISSING-TOC", "IR-DANGLING-RESOURCE").
type ValidationIssue struct {
	Severity    Severity
	Code        string
	Message     string
	Location    string // e.g. a chapter ID or archive path; empty if document-wide
	AutoFixable bool
}

func (i ValidationIssue) String() string {
	if i.Location != "" {
		return fmt.Sprintf("%s(%s): %s [%s]", i.Severity, i.Code, i.Message, i.Location)
	}
	return fmt.Sprintf("%s(%s): %s", i.Severity, i.Code, i.Message)
}

// Report collects issues from a validation run, mirroring the teacher's
// report.Report accumulator shape.
type Report struct {
	Issues []ValidationIssue
}

func (r *Report) add(sev Severity, code, msg, location string, autoFixable bool) {
	r.Issues = append(r.Issues, ValidationIssue{
		Severity: sev, Code: code, Message: msg, Location: location, AutoFixable: autoFixable,
	})
}

// ErrorCount returns the number of Error-severity issues.
func (r *Report) ErrorCount() int { return r.countSeverity(SeverityError) }

// WarningCount returns the number of Warning-severity issues.
func (r *Report) WarningCount() int { return r.countSeverity(SeverityWarning) }

func (r *Report) countSeverity(sev Severity) int {
	n := 0
	for _, i := range r.Issues {
		if i.Severity == sev {
			n++
		}
	}
	return n
}

// IsValid reports whether the document has no Error-severity issues. Strict
// mode is applied by the caller before calling IsValid, by first promoting
// Warnings via Report.Promote.
func (r *Report) IsValid() bool { return r.ErrorCount() == 0 }

// Promote upgrades every Warning-severity issue to Error, implementing the
// caller-side "strict" decision from spec.md §4.5 without ever encoding it
// into the issue list produced by Validate itself.
func (r *Report) Promote() {
	for i := range r.Issues {
		if r.Issues[i].Severity == SeverityWarning {
			r.Issues[i].Severity = SeverityError
		}
	}
}
