package doctree

import "io"

// ElementKind tags the variant held by an Element.
type ElementKind int

const (
	KindParagraph ElementKind = iota + 1
	KindTable
	KindImage
)

func (k ElementKind) String() string {
	switch k {
	case KindParagraph:
		return "paragraph"
	case KindTable:
		return "table"
	case KindImage:
		return "image"
	}
	return "unknown"
}

// Element is one unit of the document body in reading order. Exactly one of
// Paragraph, Table or Image is set, matching Kind.
type Element struct {
	Kind      ElementKind
	Paragraph *Paragraph
	Table     *Table
	Image     *Image
}

// Mark is an inline formatting flag on a text run.
type Mark string

const (
	MarkBold      Mark = "bold"
	MarkItalic    Mark = "italic"
	MarkUnderline Mark = "underline"
	MarkStrike    Mark = "strike"
)

// Run is a span of text sharing one set of marks.
type Run struct {
	Text  string
	Marks []Mark
}

// Paragraph carries the style metadata the heading classifier needs plus its
// ordered text runs. OutlineLevel is nil when neither the paragraph nor its
// style declares one.
type Paragraph struct {
	StyleID      string
	StyleName    string
	OutlineLevel *int
	Runs         []Run
}

// Text concatenates the paragraph's runs.
func (p *Paragraph) Text() string {
	n := 0
	for _, r := range p.Runs {
		n += len(r.Text)
	}
	buf := make([]byte, 0, n)
	for _, r := range p.Runs {
		buf = append(buf, r.Text...)
	}
	return string(buf)
}

// Table is a row-major matrix of cell text.
type Table struct {
	Rows [][]string
}

// Cols returns the widest row length.
func (t *Table) Cols() int {
	cols := 0
	for _, row := range t.Rows {
		cols = max(cols, len(row))
	}
	return cols
}

// Image is an embedded picture. Width and Height are intrinsic pixel sizes
// when the reader could determine them.
type Image struct {
	Filename string
	MIMEType string
	Data     []byte
	Width    *int
	Height   *int
}

// NewParagraph, NewTable and NewImage wrap a variant in an Element.
func NewParagraph(p *Paragraph) Element { return Element{Kind: KindParagraph, Paragraph: p} }
func NewTable(t *Table) Element         { return Element{Kind: KindTable, Table: t} }
func NewImage(img *Image) Element       { return Element{Kind: KindImage, Image: img} }

// Stream yields elements in document order. Next returns io.EOF once the
// stream is exhausted.
type Stream interface {
	Next() (Element, error)
}

// SliceStream is a Stream over a pre-decoded element slice.
type SliceStream struct {
	elems []Element
	pos   int
}

func NewSliceStream(elems []Element) *SliceStream {
	return &SliceStream{elems: elems}
}

func (s *SliceStream) Next() (Element, error) {
	if s.pos >= len(s.elems) {
		return Element{}, io.EOF
	}
	e := s.elems[s.pos]
	s.pos++
	return e, nil
}
