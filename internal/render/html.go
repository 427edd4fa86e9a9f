package render

import (
	"bytes"
	"encoding/base64"
	"strconv"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/dgallion1/docoutline/internal/doctree"
)

var markAtoms = map[doctree.Mark]atom.Atom{
	doctree.MarkBold:      atom.Strong,
	doctree.MarkItalic:    atom.Em,
	doctree.MarkUnderline: atom.U,
	doctree.MarkStrike:    atom.S,
}

var headingAtoms = []atom.Atom{atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6}

// refs resolves reference nodes to the records they point at.
type refs struct {
	tables map[string]*doctree.Table
	images map[string]*doctree.Image
}

// renderHTML maps a doc node onto HTML, one element per block node.
func renderHTML(doc Node, r refs) (string, error) {
	var buf bytes.Buffer
	for _, block := range doc.Content {
		n := htmlBlock(block, r)
		if n == nil {
			continue
		}
		if err := html.Render(&buf, n); err != nil {
			return "", err
		}
	}
	return buf.String(), nil
}

func htmlBlock(n Node, r refs) *html.Node {
	switch n.Type {
	case NodeHeading:
		level := 1
		if n.Attrs != nil {
			level = min(max(n.Attrs.Level, 1), 6)
		}
		h := element(headingAtoms[level-1])
		appendInline(h, n.Content)
		return h
	case NodeParagraph:
		p := element(atom.P)
		appendInline(p, n.Content)
		return p
	case NodeTableRef:
		if n.Attrs == nil {
			return nil
		}
		t, ok := r.tables[n.Attrs.Ref]
		if !ok {
			return nil
		}
		tbl := tableNode(t.Rows)
		tbl.Attr = append(tbl.Attr, html.Attribute{Key: "data-ref", Val: n.Attrs.Ref})
		return tbl
	case NodeImageRef:
		if n.Attrs == nil {
			return nil
		}
		img, ok := r.images[n.Attrs.Ref]
		if !ok {
			return nil
		}
		return imageNode(n.Attrs.Ref, img)
	}
	return nil
}

func appendInline(parent *html.Node, content []Node) {
	for _, c := range content {
		if c.Type != NodeText {
			continue
		}
		inner := &html.Node{Type: html.TextNode, Data: c.Text}
		for i := len(c.Marks) - 1; i >= 0; i-- {
			a, ok := markAtoms[c.Marks[i].Type]
			if !ok {
				continue
			}
			wrap := element(a)
			wrap.AppendChild(inner)
			inner = wrap
		}
		parent.AppendChild(inner)
	}
}

func tableNode(rows [][]string) *html.Node {
	tbl := element(atom.Table)
	for i, row := range rows {
		tr := element(atom.Tr)
		cellAtom := atom.Td
		if i == 0 {
			cellAtom = atom.Th
		}
		for _, cell := range row {
			c := element(cellAtom)
			c.AppendChild(&html.Node{Type: html.TextNode, Data: cell})
			tr.AppendChild(c)
		}
		tbl.AppendChild(tr)
	}
	return tbl
}

func imageNode(ref string, img *doctree.Image) *html.Node {
	mime := img.MIMEType
	if mime == "" {
		mime = defaultImageMIME
	}
	n := element(atom.Img)
	n.Attr = []html.Attribute{
		{Key: "src", Val: "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(img.Data)},
		{Key: "alt", Val: img.Filename},
		{Key: "data-ref", Val: ref},
	}
	if img.Width != nil {
		n.Attr = append(n.Attr, html.Attribute{Key: "width", Val: strconv.Itoa(*img.Width)})
	}
	if img.Height != nil {
		n.Attr = append(n.Attr, html.Attribute{Key: "height", Val: strconv.Itoa(*img.Height)})
	}
	return n
}

// TableHTML renders a standalone table record.
func TableHTML(rows [][]string) (string, error) {
	if len(rows) == 0 {
		return "", nil
	}
	var buf bytes.Buffer
	if err := html.Render(&buf, tableNode(rows)); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func element(a atom.Atom) *html.Node {
	return &html.Node{Type: html.ElementNode, DataAtom: a, Data: a.String()}
}
