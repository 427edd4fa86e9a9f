package parser

import (
	"bytes"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"

	"github.com/fumiama/go-docx"

	"github.com/dgallion1/docoutline/internal/doctree"
)

// emuPerPixel converts DrawingML extents (EMU) to pixels at 96 DPI.
const emuPerPixel = 9525

// DOCXReader handles .docx files.
type DOCXReader struct{}

// Open decodes the package eagerly and yields body elements lazily, in
// document order.
func (r *DOCXReader) Open(data []byte) (Source, error) {
	pkg, err := openPackage(data)
	if err != nil {
		return nil, fmt.Errorf("%w: not a zip package: %v", ErrUnreadable, err)
	}
	if !pkg.has("word/document.xml") {
		return nil, fmt.Errorf("%w: missing word/document.xml", ErrUnreadable)
	}

	doc, err := docx.Parse(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: parse docx: %v", ErrUnreadable, err)
	}

	src := &docxSource{pkg: pkg, items: doc.Document.Body.Items}
	body, _ := pkg.read("word/document.xml")
	if scan, err := scanBody(body); err == nil {
		src.scan = scan.children
	} else {
		src.add(doctree.WarnUnsupportedInline, "content outside plain runs could not be checked: %v", err)
	}
	return src, nil
}

type docxSource struct {
	warnings
	pkg     *packageIndex
	items   []interface{}
	item    int
	scan    []bodyChild
	pos     int
	pending []doctree.Element
	images  int
	list    listState
}

func (s *docxSource) Next() (doctree.Element, error) {
	for len(s.pending) == 0 {
		if !s.advance() {
			return doctree.Element{}, io.EOF
		}
	}
	e := s.pending[0]
	s.pending = s.pending[1:]
	return e, nil
}

// advance walks the scanned body children, taking the decoded item for each
// child go-docx understands and handling the rest from the scan. It reports
// false once both are exhausted.
func (s *docxSource) advance() bool {
	if s.pos >= len(s.scan) {
		return s.decoded(nil)
	}
	c := s.scan[s.pos]
	s.pos++
	switch c.tag {
	case "p", "tbl", "sectPr":
		s.decoded(c.para)
	case "sdt", "customXml":
		for _, p := range c.inner {
			s.pending = append(s.pending, s.scannedParagraph(p)...)
		}
		if c.tables > 0 {
			s.add(doctree.WarnUnsupportedInline, "skipped %d table(s) inside a content control", c.tables)
		}
	default:
		if strings.TrimSpace(c.text) != "" {
			s.add(doctree.WarnUnsupportedInline, "skipped body element %s: %q", c.tag, excerpt(c.text))
		}
	}
	return true
}

// decoded converts the next go-docx body item.
func (s *docxSource) decoded(sp *scannedPara) bool {
	if s.item >= len(s.items) {
		return false
	}
	item := s.items[s.item]
	s.item++
	switch it := item.(type) {
	case *docx.Paragraph:
		s.pending = s.paragraph(it, sp)
	case *docx.Table:
		s.pending = []doctree.Element{doctree.NewTable(s.table(it))}
	}
	return true
}

// paragraph converts one body paragraph. Drawings anchored in the paragraph
// follow it as separate image elements. sp carries what the decoder dropped
// and may be nil.
func (s *docxSource) paragraph(p *docx.Paragraph, sp *scannedPara) []doctree.Element {
	para := &doctree.Paragraph{}
	var num *numRef
	if p.Properties != nil {
		if p.Properties.Style != nil {
			para.StyleID = p.Properties.Style.Val
		}
		num = numRefFrom(p.Properties.NumProperties)
	}
	var direct *int
	if sp != nil {
		direct = sp.outlineLevel
	}
	s.applyStyle(para, direct)

	var images []doctree.Element
	if sp == nil {
		for _, child := range p.Children {
			images = append(images, s.inline(child, para, nil)...)
		}
	} else {
		next := 0
		for i := range sp.inlines {
			in := &sp.inlines[i]
			switch in.tag {
			case "r", "hyperlink", "rPr":
				if next < len(p.Children) {
					images = append(images, s.inline(p.Children[next], para, in)...)
					next++
				}
			default:
				s.wrapped(in, para)
			}
		}
		for ; next < len(p.Children); next++ {
			images = append(images, s.inline(p.Children[next], para, nil)...)
		}
	}
	s.applyList(para, num)

	out := make([]doctree.Element, 0, 1+len(images))
	if len(para.Runs) > 0 || para.StyleID != "" {
		out = append(out, doctree.NewParagraph(para))
	}
	return append(out, images...)
}

// scannedParagraph converts a paragraph the decoder never saw, such as one
// inside a block-level content control.
func (s *docxSource) scannedParagraph(sp *scannedPara) []doctree.Element {
	para := &doctree.Paragraph{StyleID: sp.styleID}
	s.applyStyle(para, sp.outlineLevel)
	for i := range sp.inlines {
		in := &sp.inlines[i]
		switch in.tag {
		case "r", "hyperlink":
			para.Runs = append(para.Runs, in.runs...)
		default:
			s.wrapped(in, para)
		}
	}
	s.applyList(para, sp.num)
	if len(para.Runs) == 0 && para.StyleID == "" {
		return nil
	}
	return []doctree.Element{doctree.NewParagraph(para)}
}

// applyStyle fills the style name and outline level. A level set on the
// paragraph itself wins over its style's.
func (s *docxSource) applyStyle(para *doctree.Paragraph, direct *int) {
	if info, ok := s.pkg.styles[para.StyleID]; ok && para.StyleID != "" {
		para.StyleName = info.Name
		para.OutlineLevel = info.OutlineLevel
	}
	if direct != nil {
		lvl := *direct
		para.OutlineLevel = &lvl
	}
}

func (s *docxSource) inline(child interface{}, para *doctree.Paragraph, scanned *scannedInline) []doctree.Element {
	switch c := child.(type) {
	case *docx.Run:
		return s.run(c, para)
	case *docx.Hyperlink:
		// go-docx keeps only one run per hyperlink.
		if scanned != nil {
			para.Runs = append(para.Runs, scanned.runs...)
			return nil
		}
		return s.run(&c.Run, para)
	}
	return nil
}

// wrapped handles a paragraph child the decoder skipped. Insertions, fields
// and content controls keep their text; anything else carrying text is
// reported.
func (s *docxSource) wrapped(in *scannedInline, para *doctree.Paragraph) {
	switch {
	case recoverableInline[in.tag]:
		para.Runs = append(para.Runs, in.runs...)
	case strings.TrimSpace(runsText(in.runs)) != "":
		s.add(doctree.WarnUnsupportedInline, "skipped inline %s: %q", in.tag, excerpt(runsText(in.runs)))
	}
}

func (s *docxSource) run(r *docx.Run, para *doctree.Paragraph) []doctree.Element {
	marks := runMarks(r)
	var images []doctree.Element
	var buf strings.Builder
	for _, child := range r.Children {
		switch c := child.(type) {
		case *docx.Text:
			buf.WriteString(c.Text)
		case *docx.Tab:
			buf.WriteByte('\t')
		case *docx.BarterRabbet:
			buf.WriteByte('\n')
		case *docx.Drawing:
			if img := s.drawing(c); img != nil {
				images = append(images, doctree.NewImage(img))
			}
		}
	}
	if buf.Len() > 0 {
		para.Runs = append(para.Runs, doctree.Run{Text: buf.String(), Marks: marks})
	}
	return images
}

func runMarks(r *docx.Run) []doctree.Mark {
	rp := r.RunProperties
	if rp == nil {
		return nil
	}
	var marks []doctree.Mark
	if rp.Bold != nil {
		marks = append(marks, doctree.MarkBold)
	}
	if rp.Italic != nil {
		marks = append(marks, doctree.MarkItalic)
	}
	if rp.Underline != nil && rp.Underline.Val != "none" {
		marks = append(marks, doctree.MarkUnderline)
	}
	if rp.Strike != nil && rp.Strike.Val != "false" && rp.Strike.Val != "0" {
		marks = append(marks, doctree.MarkStrike)
	}
	return marks
}

func (s *docxSource) drawing(d *docx.Drawing) *doctree.Image {
	s.images++
	var (
		graphic *docx.AGraphic
		extent  *docx.WPExtent
	)
	switch {
	case d.Inline != nil:
		graphic, extent = d.Inline.Graphic, d.Inline.Extent
	case d.Anchor != nil:
		graphic, extent = d.Anchor.Graphic, d.Anchor.Extent
	}
	if graphic == nil || graphic.GraphicData == nil || graphic.GraphicData.Pic == nil ||
		graphic.GraphicData.Pic.BlipFill == nil {
		s.add(doctree.WarnImageUnresolved, "image %d has no picture data", s.images)
		return nil
	}

	rID := graphic.GraphicData.Pic.BlipFill.Blip.Embed
	name, data, ok := s.pkg.media(rID)
	if !ok {
		s.add(doctree.WarnImageUnresolved, "image %d: relationship %q not found", s.images, rID)
		return nil
	}

	img := &doctree.Image{
		Filename: path.Base(name),
		MIMEType: mimeFromExt(path.Ext(name)),
		Data:     data,
	}
	if w, h, ok := imageSize(data); ok {
		img.Width, img.Height = &w, &h
	} else if extent != nil && extent.CX > 0 && extent.CY > 0 {
		w, h := int(extent.CX/emuPerPixel), int(extent.CY/emuPerPixel)
		img.Width, img.Height = &w, &h
	}
	return img
}

func (s *docxSource) table(t *docx.Table) *doctree.Table {
	out := &doctree.Table{}
	for _, row := range t.TableRows {
		if row == nil {
			continue
		}
		cells := make([]string, 0, len(row.TableCells))
		for _, cell := range row.TableCells {
			cells = append(cells, cellText(cell))
		}
		out.Rows = append(out.Rows, cells)
	}
	return out
}

func cellText(cell *docx.WTableCell) string {
	if cell == nil {
		return ""
	}
	var lines []string
	for _, p := range cell.Paragraphs {
		var buf strings.Builder
		for _, child := range p.Children {
			var r *docx.Run
			switch c := child.(type) {
			case *docx.Run:
				r = c
			case *docx.Hyperlink:
				r = &c.Run
			default:
				continue
			}
			for _, rc := range r.Children {
				if t, ok := rc.(*docx.Text); ok {
					buf.WriteString(t.Text)
				}
			}
		}
		lines = append(lines, buf.String())
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func numRefFrom(np *docx.NumProperties) *numRef {
	if np == nil || np.NumID == nil || np.NumID.Val == "" {
		return nil
	}
	ref := &numRef{numID: np.NumID.Val}
	if np.Ilvl != nil {
		ref.ilvl, _ = strconv.Atoi(np.Ilvl.Val)
	}
	return ref
}

// maxListLevel matches the nine levels a Word list definition carries.
const maxListLevel = 9

// listState numbers consecutive items of one list. Any other paragraph with
// text ends the list, so counting restarts under each new heading.
type listState struct {
	numID    string
	counters [maxListLevel]int
}

func (l *listState) reset() {
	*l = listState{}
}

func (l *listState) next(numID string, ilvl int) int {
	if numID != l.numID {
		*l = listState{numID: numID}
	}
	for i := ilvl + 1; i < maxListLevel; i++ {
		l.counters[i] = 0
	}
	l.counters[ilvl]++
	return l.counters[ilvl]
}

// applyList prefixes list items with their indent and marker: "N. " for
// numbered levels and "- " for bullets. Numbering comes from the paragraph's
// own w:numPr or else its style's. Headings are never list items.
func (s *docxSource) applyList(para *doctree.Paragraph, direct *numRef) {
	if strings.TrimSpace(para.Text()) == "" {
		return
	}
	ref := direct
	if ref == nil {
		if info, ok := s.pkg.styles[para.StyleID]; ok && para.StyleID != "" {
			ref = info.Num
		}
	}
	if ref == nil || ref.numID == "0" || headingLike(para) {
		s.list.reset()
		return
	}

	ilvl := min(max(ref.ilvl, 0), maxListLevel-1)
	ordered := s.pkg.ordered(ref.numID, ilvl)
	n := s.list.next(ref.numID, ilvl)
	marker := "- "
	if ordered {
		marker = strconv.Itoa(n) + ". "
	}
	prefix := doctree.Run{Text: strings.Repeat("  ", ilvl) + marker}
	para.Runs = append([]doctree.Run{prefix}, para.Runs...)
}

func headingLike(para *doctree.Paragraph) bool {
	if para.OutlineLevel != nil {
		return true
	}
	for _, name := range []string{para.StyleName, para.StyleID} {
		if strings.HasPrefix(strings.ToLower(strings.ReplaceAll(name, " ", "")), "heading") {
			return true
		}
	}
	return false
}
