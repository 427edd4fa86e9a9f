// Package doctree holds the in-memory shapes that flow through a parse:
// the typed element stream produced by a document reader and the section
// outline assembled from it.
package doctree

// Warning is a non-fatal problem recorded during a parse. The document still
// persists; warnings travel back to the caller with the ingest result.
type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Warning codes.
const (
	WarnUnsupportedInline = "unsupported_inline"
	WarnImageUnresolved   = "image_unresolved"
	WarnPreambleDropped   = "preamble_dropped"
	WarnLevelAdjusted     = "level_adjusted"
	WarnEmptyHeading      = "empty_heading"
)
