// Package validate implements the phased, total validator from spec.md
// §4.5: it never errors on content problems, only reports them as a list
// of ValidationIssue, following the teacher's epubcheck-derived phased
// validator.
package validate
