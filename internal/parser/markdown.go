package parser

import (
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"

	"github.com/dgallion1/docoutline/internal/doctree"
)

// MarkdownReader handles Markdown files using goldmark. ATX and setext
// headings map to "heading N" styles so the classifier treats them like
// Word heading paragraphs.
type MarkdownReader struct{}

func (r *MarkdownReader) Open(data []byte) (Source, error) {
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	doc := md.Parser().Parse(text.NewReader(data))

	src := &markdownSource{src: data}
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		src.block(n)
	}
	src.stream = doctree.NewSliceStream(src.elems)
	return src, nil
}

type markdownSource struct {
	warnings
	src    []byte
	elems  []doctree.Element
	stream *doctree.SliceStream
}

func (s *markdownSource) Next() (doctree.Element, error) {
	return s.stream.Next()
}

func (s *markdownSource) block(n ast.Node) {
	switch node := n.(type) {
	case *ast.Heading:
		s.elems = append(s.elems, doctree.NewParagraph(&doctree.Paragraph{
			StyleName: "heading " + strconv.Itoa(node.Level),
			Runs:      s.inline(node, nil),
		}))
	case *ast.Paragraph, *ast.TextBlock:
		s.paragraph(s.inline(node, nil))
	case *extast.Table:
		s.elems = append(s.elems, doctree.NewTable(s.table(node)))
	case *ast.List:
		num := node.Start
		for item := node.FirstChild(); item != nil; item = item.NextSibling() {
			prefix := "- "
			if node.IsOrdered() {
				prefix = strconv.Itoa(num) + ". "
				num++
			}
			s.listItem(item, prefix)
		}
	case *ast.Blockquote:
		for c := node.FirstChild(); c != nil; c = c.NextSibling() {
			s.block(c)
		}
	case *ast.FencedCodeBlock, *ast.CodeBlock:
		s.paragraph([]doctree.Run{{Text: strings.TrimRight(s.lines(node), "\n")}})
	case *ast.ThematicBreak:
	default:
		s.add(doctree.WarnUnsupportedInline, "skipped %s block", n.Kind())
	}
}

// listItem flattens the item's first text block into one prefixed paragraph
// and emits nested blocks after it.
func (s *markdownSource) listItem(item ast.Node, prefix string) {
	first := true
	for c := item.FirstChild(); c != nil; c = c.NextSibling() {
		if first {
			if _, ok := c.(*ast.List); !ok {
				runs := s.inline(c, nil)
				s.paragraph(append([]doctree.Run{{Text: prefix}}, runs...))
				first = false
				continue
			}
		}
		s.block(c)
	}
}

func (s *markdownSource) paragraph(runs []doctree.Run) {
	if len(runs) == 0 {
		return
	}
	s.elems = append(s.elems, doctree.NewParagraph(&doctree.Paragraph{StyleName: "Normal", Runs: runs}))
}

func (s *markdownSource) lines(n ast.Node) string {
	var buf strings.Builder
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		buf.Write(seg.Value(s.src))
	}
	return buf.String()
}

func (s *markdownSource) table(t *extast.Table) *doctree.Table {
	out := &doctree.Table{}
	for row := t.FirstChild(); row != nil; row = row.NextSibling() {
		var cells []string
		for cell := row.FirstChild(); cell != nil; cell = cell.NextSibling() {
			cells = append(cells, strings.TrimSpace(plain(s.inline(cell, nil))))
		}
		out.Rows = append(out.Rows, cells)
	}
	return out
}

// inline collects text runs under n, carrying the marks of enclosing
// emphasis nodes.
func (s *markdownSource) inline(n ast.Node, marks []doctree.Mark) []doctree.Run {
	var runs []doctree.Run
	emit := func(t string) {
		if t != "" {
			runs = append(runs, doctree.Run{Text: t, Marks: marks})
		}
	}
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch node := c.(type) {
		case *ast.Text:
			t := string(node.Segment.Value(s.src))
			if node.SoftLineBreak() {
				t += " "
			}
			if node.HardLineBreak() {
				t += "\n"
			}
			emit(t)
		case *ast.String:
			emit(string(node.Value))
		case *ast.CodeSpan:
			runs = append(runs, s.inline(node, marks)...)
		case *ast.Emphasis:
			m := doctree.MarkItalic
			if node.Level >= 2 {
				m = doctree.MarkBold
			}
			runs = append(runs, s.inline(node, withMark(marks, m))...)
		case *extast.Strikethrough:
			runs = append(runs, s.inline(node, withMark(marks, doctree.MarkStrike))...)
		case *ast.Link:
			runs = append(runs, s.inline(node, marks)...)
		case *ast.AutoLink:
			emit(string(node.URL(s.src)))
		case *ast.Image:
			s.add(doctree.WarnImageUnresolved, "external image %q not embedded", string(node.Destination))
		default:
			s.add(doctree.WarnUnsupportedInline, "skipped %s inline", c.Kind())
		}
	}
	return runs
}

func withMark(marks []doctree.Mark, m doctree.Mark) []doctree.Mark {
	out := make([]doctree.Mark, 0, len(marks)+1)
	out = append(out, marks...)
	return append(out, m)
}

func plain(runs []doctree.Run) string {
	var buf strings.Builder
	for _, r := range runs {
		buf.WriteString(r.Text)
	}
	return buf.String()
}
