package render

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dgallion1/docoutline/internal/doctree"
	"github.com/dgallion1/docoutline/internal/models"
)

const defaultImageMIME = "application/octet-stream"

// Options tunes rendering.
type Options struct {
	// IncludeHeading prepends a heading node "<number> <title>" to every
	// section's content.
	IncludeHeading bool
}

// Renderer fills the stored fields of every outline section.
type Renderer struct {
	opts Options
}

func New(opts Options) *Renderer {
	return &Renderer{opts: opts}
}

type tableJSON struct {
	RowCount int        `json:"row_count"`
	ColCount int        `json:"col_count"`
	Rows     [][]string `json:"rows"`
}

// Render converts the outline of one document into rows ready to persist.
// Items of an unknown kind are skipped and reported as warnings.
func (r *Renderer) Render(documentID string, out *doctree.Outline, now time.Time) (*models.ParsedTree, []doctree.Warning, error) {
	tree := &models.ParsedTree{
		Sections: make([]models.Section, 0, len(out.Sections)),
	}
	var warnings []doctree.Warning

	for _, sec := range out.Sections {
		var content []Node
		if r.opts.IncludeHeading {
			content = append(content, headingNode(sec.Level, strings.TrimSpace(sec.NumberPath+" "+sec.Title)))
		}
		rr := refs{tables: map[string]*doctree.Table{}, images: map[string]*doctree.Image{}}
		tableIdx, imageIdx := 0, 0

		for _, item := range sec.Items {
			el := item.Element
			switch {
			case el.Kind == doctree.KindParagraph && el.Paragraph != nil:
				content = append(content, paragraphNode(el.Paragraph.Runs))

			case el.Kind == doctree.KindTable && el.Table != nil:
				rec, err := tableRecord(sec.ID, item.ID, tableIdx, item.SortOrder, el.Table)
				if err != nil {
					return nil, nil, fmt.Errorf("section %s table %d: %w", sec.NumberPath, tableIdx, err)
				}
				tree.Tables = append(tree.Tables, rec)
				rr.tables[item.ID] = el.Table
				content = append(content, refNode(NodeTableRef, item.ID))
				tableIdx++

			case el.Kind == doctree.KindImage && el.Image != nil:
				tree.Images = append(tree.Images, imageRecord(sec.ID, item.ID, imageIdx, item.SortOrder, el.Image))
				rr.images[item.ID] = el.Image
				content = append(content, refNode(NodeImageRef, item.ID))
				imageIdx++

			default:
				warnings = append(warnings, doctree.Warning{
					Code:    doctree.WarnUnsupportedInline,
					Message: fmt.Sprintf("section %s: skipped %s element", sec.NumberPath, el.Kind),
				})
			}
		}

		doc := documentNode(content)
		contentJSON, err := json.Marshal(doc)
		if err != nil {
			return nil, nil, fmt.Errorf("section %s: marshal content: %w", sec.NumberPath, err)
		}
		contentHTML, err := renderHTML(doc, rr)
		if err != nil {
			return nil, nil, fmt.Errorf("section %s: render html: %w", sec.NumberPath, err)
		}

		row := models.Section{
			ID:          sec.ID,
			DocumentID:  documentID,
			NumberPath:  sec.NumberPath,
			Level:       sec.Level,
			Title:       sec.Title,
			ContentHTML: contentHTML,
			ContentJSON: string(contentJSON),
			SortOrder:   sec.SortOrder,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if sec.ParentID != "" {
			parent := sec.ParentID
			row.ParentID = &parent
		}
		tree.Sections = append(tree.Sections, row)
	}
	return tree, warnings, nil
}

func tableRecord(sectionID, id string, idx, sortOrder int, t *doctree.Table) (models.SectionTable, error) {
	data, err := json.Marshal(tableJSON{RowCount: len(t.Rows), ColCount: t.Cols(), Rows: t.Rows})
	if err != nil {
		return models.SectionTable{}, err
	}
	tableHTML, err := TableHTML(t.Rows)
	if err != nil {
		return models.SectionTable{}, err
	}
	return models.SectionTable{
		ID:         id,
		SectionID:  sectionID,
		TableIndex: idx,
		RowCount:   len(t.Rows),
		ColCount:   t.Cols(),
		HTML:       tableHTML,
		JSONData:   string(data),
		SortOrder:  sortOrder,
	}, nil
}

func imageRecord(sectionID, id string, idx, sortOrder int, img *doctree.Image) models.SectionImage {
	mime := img.MIMEType
	if mime == "" {
		mime = defaultImageMIME
	}
	return models.SectionImage{
		ID:         id,
		SectionID:  sectionID,
		ImageIndex: idx,
		Filename:   img.Filename,
		MIMEType:   mime,
		Base64Data: base64.StdEncoding.EncodeToString(img.Data),
		Width:      img.Width,
		Height:     img.Height,
		SortOrder:  sortOrder,
	}
}
