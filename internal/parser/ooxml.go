package parser

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"path"
	"strconv"
	"strings"
)

// styleInfo is what the heading classifier and list numbering need from
// word/styles.xml.
type styleInfo struct {
	Name         string
	OutlineLevel *int
	Num          *numRef
}

type valAttr struct {
	Val string `xml:"val,attr"`
}

type stylesXML struct {
	Styles []struct {
		Type    string `xml:"type,attr"`
		StyleID string `xml:"styleId,attr"`
		Name    *struct {
			Val string `xml:"val,attr"`
		} `xml:"name"`
		BasedOn *struct {
			Val string `xml:"val,attr"`
		} `xml:"basedOn"`
		PPr *struct {
			OutlineLvl *valAttr `xml:"outlineLvl"`
			NumPr      *struct {
				NumID *valAttr `xml:"numId"`
				Ilvl  *valAttr `xml:"ilvl"`
			} `xml:"numPr"`
		} `xml:"pPr"`
	} `xml:"style"`
}

type numberingXML struct {
	AbstractNums []struct {
		ID     string `xml:"abstractNumId,attr"`
		Levels []struct {
			Ilvl    string   `xml:"ilvl,attr"`
			NumFmt  *valAttr `xml:"numFmt"`
			LvlText *valAttr `xml:"lvlText"`
		} `xml:"lvl"`
	} `xml:"abstractNum"`
	Nums []struct {
		ID            string   `xml:"numId,attr"`
		AbstractNumID *valAttr `xml:"abstractNumId"`
	} `xml:"num"`
}

type relationshipsXML struct {
	Rels []struct {
		ID         string `xml:"Id,attr"`
		Target     string `xml:"Target,attr"`
		TargetMode string `xml:"TargetMode,attr"`
	} `xml:"Relationship"`
}

// packageIndex gives access to the parts of an OOXML package that the body
// decoder does not expose: the style catalog, list definitions and image
// relationships.
type packageIndex struct {
	files     map[string]*zip.File
	styles    map[string]styleInfo
	numbering map[string]map[int]bool // numId -> ilvl -> ordered
	rels      map[string]string       // rId -> part path
}

func openPackage(data []byte) (*packageIndex, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}
	idx := &packageIndex{files: make(map[string]*zip.File, len(zr.File))}
	for _, f := range zr.File {
		idx.files[f.Name] = f
	}
	idx.styles = idx.loadStyles()
	idx.numbering = idx.loadNumbering()
	idx.rels = idx.loadRels()
	return idx, nil
}

func (p *packageIndex) has(name string) bool {
	_, ok := p.files[name]
	return ok
}

func (p *packageIndex) read(name string) ([]byte, bool) {
	f, ok := p.files[name]
	if !ok {
		return nil, false
	}
	rc, err := f.Open()
	if err != nil {
		return nil, false
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, false
	}
	return data, true
}

func (p *packageIndex) loadStyles() map[string]styleInfo {
	out := map[string]styleInfo{}
	data, ok := p.read("word/styles.xml")
	if !ok {
		return out
	}
	var doc stylesXML
	if err := xml.Unmarshal(data, &doc); err != nil {
		return out
	}

	basedOn := map[string]string{}
	for _, s := range doc.Styles {
		if s.Type != "" && s.Type != "paragraph" {
			continue
		}
		info := styleInfo{}
		if s.Name != nil {
			info.Name = s.Name.Val
		}
		if s.PPr != nil && s.PPr.OutlineLvl != nil {
			if n, err := strconv.Atoi(s.PPr.OutlineLvl.Val); err == nil {
				info.OutlineLevel = &n
			}
		}
		if s.PPr != nil && s.PPr.NumPr != nil && s.PPr.NumPr.NumID != nil {
			ref := &numRef{numID: s.PPr.NumPr.NumID.Val}
			if s.PPr.NumPr.Ilvl != nil {
				ref.ilvl, _ = strconv.Atoi(s.PPr.NumPr.Ilvl.Val)
			}
			info.Num = ref
		}
		if s.BasedOn != nil {
			basedOn[s.StyleID] = s.BasedOn.Val
		}
		out[s.StyleID] = info
	}

	// Outline levels and list membership are inherited through basedOn
	// chains. Resolution reads only declared values, so the order in which
	// styles are visited does not matter.
	declared := make(map[string]styleInfo, len(out))
	for id, info := range out {
		declared[id] = info
	}
	for id, info := range out {
		cur := id
		for range 10 {
			if info.OutlineLevel != nil && info.Num != nil {
				break
			}
			parent, ok := basedOn[cur]
			if !ok {
				break
			}
			pi := declared[parent]
			if info.OutlineLevel == nil && pi.OutlineLevel != nil {
				lvl := *pi.OutlineLevel
				info.OutlineLevel = &lvl
			}
			if info.Num == nil && pi.Num != nil {
				ref := *pi.Num
				info.Num = &ref
			}
			cur = parent
		}
		out[id] = info
	}
	return out
}

// loadNumbering resolves each w:num to whether its levels are ordered.
func (p *packageIndex) loadNumbering() map[string]map[int]bool {
	out := map[string]map[int]bool{}
	data, ok := p.read("word/numbering.xml")
	if !ok {
		return out
	}
	var doc numberingXML
	if err := xml.Unmarshal(data, &doc); err != nil {
		return out
	}

	abstract := make(map[string]map[int]bool, len(doc.AbstractNums))
	for _, a := range doc.AbstractNums {
		levels := make(map[int]bool, len(a.Levels))
		for _, lvl := range a.Levels {
			n, err := strconv.Atoi(lvl.Ilvl)
			if err != nil {
				continue
			}
			var format, text string
			if lvl.NumFmt != nil {
				format = lvl.NumFmt.Val
			}
			if lvl.LvlText != nil {
				text = lvl.LvlText.Val
			}
			levels[n] = orderedFormat(format, text)
		}
		abstract[a.ID] = levels
	}
	for _, n := range doc.Nums {
		if n.AbstractNumID == nil {
			continue
		}
		if levels, ok := abstract[n.AbstractNumID.Val]; ok {
			out[n.ID] = levels
		}
	}
	return out
}

// orderedFormat reports whether a list level counts its items. Bullets and
// unnumbered levels do not; unknown formats count when their level text
// carries a number placeholder.
func orderedFormat(format, text string) bool {
	switch format {
	case "bullet", "none":
		return false
	case "decimal", "decimalZero", "lowerRoman", "upperRoman", "lowerLetter", "upperLetter", "ordinal", "chineseCounting":
		return true
	}
	return text == "" || strings.Contains(text, "%")
}

// ordered reports whether items of list numID at ilvl are numbered. Lists
// with no definition are treated as numbered.
func (p *packageIndex) ordered(numID string, ilvl int) bool {
	levels, ok := p.numbering[numID]
	if !ok {
		return true
	}
	if o, ok := levels[ilvl]; ok {
		return o
	}
	if o, ok := levels[0]; ok {
		return o
	}
	return true
}

func (p *packageIndex) loadRels() map[string]string {
	out := map[string]string{}
	data, ok := p.read("word/_rels/document.xml.rels")
	if !ok {
		return out
	}
	var rels relationshipsXML
	if err := xml.Unmarshal(data, &rels); err != nil {
		return out
	}
	for _, r := range rels.Rels {
		if strings.EqualFold(r.TargetMode, "External") {
			continue
		}
		target := r.Target
		if strings.HasPrefix(target, "/") {
			target = strings.TrimPrefix(target, "/")
		} else {
			target = path.Join("word", target)
		}
		out[r.ID] = path.Clean(target)
	}
	return out
}

// media resolves an image relationship id to its part name and bytes.
func (p *packageIndex) media(rID string) (name string, data []byte, ok bool) {
	target, ok := p.rels[rID]
	if !ok {
		return "", nil, false
	}
	data, ok = p.read(target)
	if !ok {
		return "", nil, false
	}
	return target, data, true
}

// mimeFromExt returns the MIME type for common image extensions.
func mimeFromExt(ext string) string {
	switch strings.ToLower(ext) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".gif":
		return "image/gif"
	case ".bmp":
		return "image/bmp"
	case ".tiff", ".tif":
		return "image/tiff"
	case ".svg":
		return "image/svg+xml"
	case ".emf":
		return "image/emf"
	case ".wmf":
		return "image/wmf"
	default:
		return ""
	}
}

// imageSize returns the pixel size of an encoded image, or ok=false for
// formats the standard decoders cannot read.
func imageSize(data []byte) (w, h int, ok bool) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, false
	}
	return cfg.Width, cfg.Height, true
}
