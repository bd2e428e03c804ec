// Package repair implements spec.md's repair step: given a Document and a
// prior validate.Report, apply safe, mechanical, content-preserving fixes
// for auto-fixable issues. Repair is transactional — it clones the
// Document first and only ever returns the clone, never mutating the
// caller's copy, following the teacher's own clone-before-mutate
// discipline (ir.Document.Clone).
package repair
