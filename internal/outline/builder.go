package outline

import (
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/dgallion1/docoutline/internal/doctree"
)

// manualNumber matches a typed-in dotted prefix such as "1.2 " or "3. ".
var manualNumber = regexp.MustCompile(`^(?:\d+(?:\.\d+)+\.?|\d+\.)\s+(.+)$`)

// Builder assembles the section outline from an element stream in one pass.
type Builder struct {
	maxDepth int
	newID    func() string
}

func NewBuilder(maxDepth int) *Builder {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &Builder{maxDepth: maxDepth, newID: newID}
}

func newID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Build consumes the stream. Sections, tables and images receive sort orders
// from a single counter so the result reads in document order without a
// tree walk. Content seen before the first heading is dropped with a warning.
func (b *Builder) Build(s doctree.Stream) (*doctree.Outline, error) {
	classifier := NewClassifier(b.maxDepth)
	numberer := NewNumberer(b.maxDepth)

	out := &doctree.Outline{}
	stack := make([]*doctree.Section, b.maxDepth)
	top := 0
	sortOrder := 0
	preamble := 0

	for {
		el, err := s.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read element: %w", err)
		}

		if el.Kind == doctree.KindParagraph {
			if el.Paragraph == nil {
				continue
			}
			text := strings.TrimSpace(el.Paragraph.Text())
			if text == "" {
				if _, ok := classifier.Classify(el.Paragraph); ok {
					out.Warnings = append(out.Warnings, doctree.Warning{
						Code:    doctree.WarnEmptyHeading,
						Message: fmt.Sprintf("heading paragraph with style %q has no text and was skipped", styleLabel(el.Paragraph)),
					})
				}
				continue
			}
			if level, ok := classifier.Classify(el.Paragraph); ok {
				effective, path, adjusted := numberer.Assign(level)
				if adjusted {
					out.Warnings = append(out.Warnings, doctree.Warning{
						Code:    doctree.WarnLevelAdjusted,
						Message: fmt.Sprintf("heading %q at level %d placed at level %d as %s", text, level, effective, path),
					})
				}

				top = effective
				sortOrder++
				sec := &doctree.Section{
					ID:         b.newID(),
					Level:      effective,
					NumberPath: path,
					Title:      headingTitle(text),
					SortOrder:  sortOrder,
				}
				if top > 0 {
					sec.ParentID = stack[top-1].ID
				}
				stack[top] = sec
				top++
				out.Sections = append(out.Sections, sec)
				continue
			}
		}

		if !hasPayload(el) {
			continue
		}
		if top == 0 {
			preamble++
			continue
		}
		sortOrder++
		item := doctree.ContentItem{SortOrder: sortOrder, Element: el}
		if el.Kind != doctree.KindParagraph {
			item.ID = b.newID()
		}
		cur := stack[top-1]
		cur.Items = append(cur.Items, item)
	}

	if preamble > 0 {
		out.Warnings = append(out.Warnings, doctree.Warning{
			Code:    doctree.WarnPreambleDropped,
			Message: fmt.Sprintf("%d element(s) before the first heading were dropped", preamble),
		})
	}
	return out, nil
}

func hasPayload(el doctree.Element) bool {
	switch el.Kind {
	case doctree.KindParagraph:
		return el.Paragraph != nil && strings.TrimSpace(el.Paragraph.Text()) != ""
	case doctree.KindTable:
		return el.Table != nil && len(el.Table.Rows) > 0
	case doctree.KindImage:
		return el.Image != nil && len(el.Image.Data) > 0
	}
	return false
}

func styleLabel(p *doctree.Paragraph) string {
	if p.StyleName != "" {
		return p.StyleName
	}
	return p.StyleID
}

func headingTitle(text string) string {
	if m := manualNumber.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return text
}
