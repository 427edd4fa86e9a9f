package parser

import (
	"bytes"
	"encoding/xml"
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/dgallion1/docoutline/internal/doctree"
)

// bodyScan is a token-level pass over word/document.xml. The go-docx body
// decoder drops whatever it does not model: a paragraph's own outlineLvl,
// inline wrappers such as w:ins or w:fldSimple, and body-level content
// controls. The scan records those per direct body child, in document order,
// so the source can line them up with the decoded items.
type bodyScan struct {
	children []bodyChild
}

type bodyChild struct {
	tag    string
	para   *scannedPara   // tag == "p"
	inner  []*scannedPara // paragraphs inside a body-level w:sdt or w:customXml
	tables int            // tables inside such a wrapper
	text   string         // text held by any other element
}

type scannedPara struct {
	styleID      string
	outlineLevel *int
	num          *numRef
	inlines      []scannedInline
}

// scannedInline is one direct child of a w:p other than w:pPr.
type scannedInline struct {
	tag  string
	runs []doctree.Run
}

// numRef points a paragraph at a numbering definition.
type numRef struct {
	numID string
	ilvl  int
}

// Inline wrappers whose runs are part of the visible text.
var recoverableInline = map[string]bool{
	"ins":       true,
	"smartTag":  true,
	"sdt":       true,
	"fldSimple": true,
	"customXml": true,
	"moveTo":    true,
	"dir":       true,
	"bdo":       true,
}

// Elements whose text is not part of the current document.
var droppedSubtree = map[string]bool{
	"del":       true,
	"moveFrom":  true,
	"delText":   true,
	"instrText": true,
	"sdtPr":     true,
	"sdtEndPr":  true,
	"rPrChange": true,
	"pPrChange": true,
	"drawing":   true,
	"pict":      true,
	"object":    true,
}

func scanBody(data []byte) (*bodyScan, error) {
	d := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := d.Token()
		if errors.Is(err, io.EOF) {
			return &bodyScan{}, nil
		}
		if err != nil {
			return nil, err
		}
		if se, ok := tok.(xml.StartElement); ok && se.Name.Local == "body" {
			break
		}
	}

	scan := &bodyScan{}
	for {
		tok, err := d.Token()
		if errors.Is(err, io.EOF) {
			return scan, nil
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			child, err := scanBodyChild(d, t)
			if err != nil {
				return nil, err
			}
			scan.children = append(scan.children, child)
		case xml.EndElement:
			return scan, nil
		}
	}
}

func scanBodyChild(d *xml.Decoder, start xml.StartElement) (bodyChild, error) {
	child := bodyChild{tag: start.Name.Local}
	var err error
	switch child.tag {
	case "p":
		child.para, err = scanParagraph(d)
	case "tbl", "sectPr":
		err = d.Skip()
	case "sdt", "customXml":
		child.inner, child.tables, err = scanBlockWrapper(d)
	default:
		var runs []doctree.Run
		runs, err = collectRuns(d)
		child.text = runsText(runs)
	}
	return child, err
}

// scanBlockWrapper collects the paragraphs of a block-level content control,
// descending through nested controls.
func scanBlockWrapper(d *xml.Decoder) ([]*scannedPara, int, error) {
	var (
		paras  []*scannedPara
		tables int
	)
	depth := 1
	for depth > 0 {
		tok, err := d.Token()
		if err != nil {
			return nil, 0, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch {
			case t.Name.Local == "p":
				p, err := scanParagraph(d)
				if err != nil {
					return nil, 0, err
				}
				paras = append(paras, p)
			case t.Name.Local == "tbl":
				tables++
				if err := d.Skip(); err != nil {
					return nil, 0, err
				}
			case droppedSubtree[t.Name.Local]:
				if err := d.Skip(); err != nil {
					return nil, 0, err
				}
			default:
				depth++
			}
		case xml.EndElement:
			depth--
		}
	}
	return paras, tables, nil
}

// scanParagraph reads a w:p whose start tag was just consumed.
func scanParagraph(d *xml.Decoder) (*scannedPara, error) {
	p := &scannedPara{}
	for {
		tok, err := d.Token()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch tag := t.Name.Local; {
			case tag == "pPr":
				if err := scanParagraphProps(d, p); err != nil {
					return nil, err
				}
			case tag == "rPr" || droppedSubtree[tag]:
				if err := d.Skip(); err != nil {
					return nil, err
				}
				p.inlines = append(p.inlines, scannedInline{tag: tag})
			default:
				runs, err := collectRuns(d)
				if err != nil {
					return nil, err
				}
				p.inlines = append(p.inlines, scannedInline{tag: tag, runs: runs})
			}
		case xml.EndElement:
			return p, nil
		}
	}
}

func scanParagraphProps(d *xml.Decoder, p *scannedPara) error {
	for {
		tok, err := d.Token()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "pStyle":
				p.styleID = attr(t, "val")
				if err := d.Skip(); err != nil {
					return err
				}
			case "outlineLvl":
				if n, err := strconv.Atoi(attr(t, "val")); err == nil {
					p.outlineLevel = &n
				}
				if err := d.Skip(); err != nil {
					return err
				}
			case "numPr":
				ref, err := scanNumPr(d)
				if err != nil {
					return err
				}
				p.num = ref
			default:
				if err := d.Skip(); err != nil {
					return err
				}
			}
		case xml.EndElement:
			return nil
		}
	}
}

func scanNumPr(d *xml.Decoder) (*numRef, error) {
	ref := &numRef{}
	for {
		tok, err := d.Token()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "numId":
				ref.numID = attr(t, "val")
			case "ilvl":
				ref.ilvl, _ = strconv.Atoi(attr(t, "val"))
			}
			if err := d.Skip(); err != nil {
				return nil, err
			}
		case xml.EndElement:
			if ref.numID == "" {
				return nil, nil
			}
			return ref, nil
		}
	}
}

// collectRuns gathers the visible run text under the element whose start tag
// was just consumed. Marks come from each run's w:rPr.
func collectRuns(d *xml.Decoder) ([]doctree.Run, error) {
	var (
		runs  []doctree.Run
		buf   strings.Builder
		marks []doctree.Mark
	)
	flush := func() {
		if buf.Len() > 0 {
			runs = append(runs, doctree.Run{Text: buf.String(), Marks: marks})
			buf.Reset()
		}
	}

	depth := 1
	for depth > 0 {
		tok, err := d.Token()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch tag := t.Name.Local; {
			case tag == "r":
				flush()
				marks = nil
				depth++
			case tag == "rPr":
				m, err := scanRunProps(d)
				if err != nil {
					return nil, err
				}
				flush()
				marks = m
			case tag == "t":
				var text string
				if err := d.DecodeElement(&text, &t); err != nil {
					return nil, err
				}
				buf.WriteString(text)
			case tag == "tab":
				buf.WriteByte('\t')
				if err := d.Skip(); err != nil {
					return nil, err
				}
			case tag == "br" || tag == "cr":
				buf.WriteByte('\n')
				if err := d.Skip(); err != nil {
					return nil, err
				}
			case droppedSubtree[tag]:
				if err := d.Skip(); err != nil {
					return nil, err
				}
			default:
				depth++
			}
		case xml.EndElement:
			depth--
			if t.Name.Local == "r" {
				flush()
				marks = nil
			}
		}
	}
	flush()
	return runs, nil
}

func scanRunProps(d *xml.Decoder) ([]doctree.Mark, error) {
	var marks []doctree.Mark
	for {
		tok, err := d.Token()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			val := attr(t, "val")
			switch t.Name.Local {
			case "b":
				if toggleOn(val) {
					marks = append(marks, doctree.MarkBold)
				}
			case "i":
				if toggleOn(val) {
					marks = append(marks, doctree.MarkItalic)
				}
			case "u":
				if val != "none" {
					marks = append(marks, doctree.MarkUnderline)
				}
			case "strike":
				if toggleOn(val) {
					marks = append(marks, doctree.MarkStrike)
				}
			}
			if err := d.Skip(); err != nil {
				return nil, err
			}
		case xml.EndElement:
			return marks, nil
		}
	}
}

func toggleOn(val string) bool {
	return val != "false" && val != "0" && val != "off"
}

func attr(se xml.StartElement, local string) string {
	for _, a := range se.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

func runsText(runs []doctree.Run) string {
	var b strings.Builder
	for _, r := range runs {
		b.WriteString(r.Text)
	}
	return b.String()
}

// excerpt shortens s for a warning message.
func excerpt(s string) string {
	s = strings.TrimSpace(s)
	if r := []rune(s); len(r) > 40 {
		return string(r[:40]) + "..."
	}
	return s
}
