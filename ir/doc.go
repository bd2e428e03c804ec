// Package ir documents its own invariants here rather than scattering them
// across call sites; see Document for the authoritative field list.
//
// Invariants (violated only transiently during package repair; package
// validate checks those not marked otherwise):
//
//   - Every Chapter.ID is unique within the Document.
//   - Every TocEntry.Href and every ImageNode.ResourceID resolves.
//   - If Metadata.CoverID is set, it resolves to a Resource whose MediaType
//     is an image type (validate checks only that it resolves).
//   - HeadingNode.Level is in [1,6] (not checked by validate); TableNode.Header
//     rows all have equal width; ListNode.Items is never empty (not checked
//     by validate).
//   - Metadata.Language, when set, is syntactically valid BCP-47 (not
//     checked by validate).
package ir
