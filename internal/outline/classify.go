// Package outline turns a flat element stream into a numbered section tree.
package outline

import (
	"strconv"
	"strings"

	"github.com/dgallion1/docoutline/internal/doctree"
)

// DefaultMaxDepth matches the nine outline levels Word supports.
const DefaultMaxDepth = 9

// Classifier decides whether a paragraph is a heading and at which level.
// Only style metadata counts: bold or oversized plain paragraphs are body text.
type Classifier struct {
	maxDepth int
}

func NewClassifier(maxDepth int) *Classifier {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &Classifier{maxDepth: maxDepth}
}

// Classify returns the zero-based heading level of p, or ok=false for body text.
func (c *Classifier) Classify(p *doctree.Paragraph) (level int, ok bool) {
	if p == nil {
		return 0, false
	}
	for _, name := range []string{p.StyleName, p.StyleID} {
		if n, found := headingStyleNumber(name); found && n >= 1 && n <= c.maxDepth {
			return n - 1, true
		}
	}
	if p.OutlineLevel != nil && *p.OutlineLevel >= 0 && *p.OutlineLevel < c.maxDepth {
		return *p.OutlineLevel, true
	}
	return 0, false
}

// headingStyleNumber parses "heading 2", "Heading2" or "HEADING 2" into 2.
func headingStyleNumber(style string) (int, bool) {
	s := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(style), " ", ""))
	rest, found := strings.CutPrefix(s, "heading")
	if !found || rest == "" {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil {
		return 0, false
	}
	return n, true
}
