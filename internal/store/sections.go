package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dgallion1/docoutline/internal/models"
)

const sectionColumns = `id, document_id, number_path, level, parent_id, title, content_html, content_json, sort_order, created_at, updated_at`

func scanSection(row rowScanner) (*models.Section, error) {
	var (
		sec      models.Section
		parentID sql.NullString
	)
	err := row.Scan(&sec.ID, &sec.DocumentID, &sec.NumberPath, &sec.Level, &parentID, &sec.Title,
		&sec.ContentHTML, &sec.ContentJSON, &sec.SortOrder, &sec.CreatedAt, &sec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if parentID.Valid {
		p := parentID.String
		sec.ParentID = &p
	}
	return &sec, nil
}

// SectionOutline returns every section of a document in sort order without
// content payloads. One query.
func (s *Store) SectionOutline(ctx context.Context, documentID string) ([]models.OutlineRow, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT id, parent_id, number_path, level, title, sort_order
		FROM sections WHERE document_id = ? ORDER BY sort_order`), documentID)
	if err != nil {
		return nil, fmt.Errorf("section outline: %w", err)
	}
	defer rows.Close()

	var out []models.OutlineRow
	for rows.Next() {
		var (
			r        models.OutlineRow
			parentID sql.NullString
		)
		if err := rows.Scan(&r.ID, &parentID, &r.NumberPath, &r.Level, &r.Title, &r.SortOrder); err != nil {
			return nil, fmt.Errorf("scan outline row: %w", err)
		}
		if parentID.Valid {
			p := parentID.String
			r.ParentID = &p
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// SectionCounts returns child, table and image counts for every section of a
// document that has any, keyed by section id. One query.
func (s *Store) SectionCounts(ctx context.Context, documentID string) (map[string]models.SectionCounts, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT section_id, SUM(children), SUM(tables), SUM(images) FROM (
			SELECT parent_id AS section_id, 1 AS children, 0 AS tables, 0 AS images
			FROM sections WHERE document_id = ? AND parent_id IS NOT NULL
			UNION ALL
			SELECT t.section_id, 0, 1, 0
			FROM section_tables t JOIN sections s ON s.id = t.section_id WHERE s.document_id = ?
			UNION ALL
			SELECT i.section_id, 0, 0, 1
			FROM section_images i JOIN sections s ON s.id = i.section_id WHERE s.document_id = ?
		) c GROUP BY section_id`), documentID, documentID, documentID)
	if err != nil {
		return nil, fmt.Errorf("section counts: %w", err)
	}
	defer rows.Close()

	out := make(map[string]models.SectionCounts)
	for rows.Next() {
		var (
			id string
			c  models.SectionCounts
		)
		if err := rows.Scan(&id, &c.Children, &c.Tables, &c.Images); err != nil {
			return nil, fmt.Errorf("scan section counts: %w", err)
		}
		out[id] = c
	}
	return out, rows.Err()
}

// SectionByPath looks a section up by its unique (document, number path).
func (s *Store) SectionByPath(ctx context.Context, documentID, numberPath string) (*models.Section, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+sectionColumns+`
		FROM sections WHERE document_id = ? AND number_path = ?`), documentID, numberPath)
	sec, err := scanSection(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get section: %w", err)
	}
	return sec, nil
}

// SectionDetail returns a section with its tables, images, parent and
// direct children.
func (s *Store) SectionDetail(ctx context.Context, documentID, numberPath string) (*models.SectionDetail, error) {
	sec, err := s.SectionByPath(ctx, documentID, numberPath)
	if err != nil {
		return nil, err
	}
	detail := &models.SectionDetail{Section: *sec}

	if detail.Tables, err = s.tablesWhere(ctx, `t.section_id = ?`, sec.ID); err != nil {
		return nil, err
	}
	if detail.Images, err = s.imagesWhere(ctx, `i.section_id = ?`, sec.ID); err != nil {
		return nil, err
	}

	if sec.ParentID != nil {
		var p models.SectionBrief
		err := s.db.QueryRowContext(ctx, s.rebind(`SELECT id, number_path, level, title FROM sections WHERE id = ?`), *sec.ParentID).
			Scan(&p.ID, &p.NumberPath, &p.Level, &p.Title)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("get parent section: %w", err)
		}
		if err == nil {
			detail.Parent = &p
		}
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT id, number_path, level, title
		FROM sections WHERE parent_id = ? ORDER BY sort_order`), sec.ID)
	if err != nil {
		return nil, fmt.Errorf("list child sections: %w", err)
	}
	defer rows.Close()
	detail.Children = []models.SectionBrief{}
	for rows.Next() {
		var c models.SectionBrief
		if err := rows.Scan(&c.ID, &c.NumberPath, &c.Level, &c.Title); err != nil {
			return nil, fmt.Errorf("scan child section: %w", err)
		}
		detail.Children = append(detail.Children, c)
	}
	return detail, rows.Err()
}

// DocumentContent returns every section of a document with its tables and
// images, in reading order. Three queries regardless of document size.
func (s *Store) DocumentContent(ctx context.Context, documentID string) ([]models.SectionContent, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT `+sectionColumns+`
		FROM sections WHERE document_id = ? ORDER BY sort_order`), documentID)
	if err != nil {
		return nil, fmt.Errorf("list sections: %w", err)
	}
	defer rows.Close()

	out := []models.SectionContent{}
	index := map[string]int{}
	for rows.Next() {
		sec, err := scanSection(rows)
		if err != nil {
			return nil, fmt.Errorf("scan section: %w", err)
		}
		index[sec.ID] = len(out)
		out = append(out, models.SectionContent{
			Section: *sec,
			Tables:  []models.SectionTable{},
			Images:  []models.SectionImage{},
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	join := `s.document_id = ?`
	tables, err := s.tablesWhere(ctx, join, documentID)
	if err != nil {
		return nil, err
	}
	for _, t := range tables {
		if i, ok := index[t.SectionID]; ok {
			out[i].Tables = append(out[i].Tables, t)
		}
	}

	images, err := s.imagesWhere(ctx, join, documentID)
	if err != nil {
		return nil, err
	}
	for _, img := range images {
		if i, ok := index[img.SectionID]; ok {
			out[i].Images = append(out[i].Images, img)
		}
	}
	return out, nil
}

func (s *Store) tablesWhere(ctx context.Context, where string, arg any) ([]models.SectionTable, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT t.id, t.section_id, t.table_index, t.row_count, t.col_count, t.html, t.json_data, t.sort_order
		FROM section_tables t JOIN sections s ON s.id = t.section_id
		WHERE `+where+` ORDER BY t.sort_order`), arg)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	out := []models.SectionTable{}
	for rows.Next() {
		var t models.SectionTable
		if err := rows.Scan(&t.ID, &t.SectionID, &t.TableIndex, &t.RowCount, &t.ColCount, &t.HTML, &t.JSONData, &t.SortOrder); err != nil {
			return nil, fmt.Errorf("scan table: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) imagesWhere(ctx context.Context, where string, arg any) ([]models.SectionImage, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT i.id, i.section_id, i.image_index, i.filename, i.mime_type, i.base64_data, i.width, i.height, i.sort_order
		FROM section_images i JOIN sections s ON s.id = i.section_id
		WHERE `+where+` ORDER BY i.sort_order`), arg)
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}
	defer rows.Close()

	out := []models.SectionImage{}
	for rows.Next() {
		var (
			img  models.SectionImage
			w, h sql.NullInt64
		)
		if err := rows.Scan(&img.ID, &img.SectionID, &img.ImageIndex, &img.Filename, &img.MIMEType, &img.Base64Data, &w, &h, &img.SortOrder); err != nil {
			return nil, fmt.Errorf("scan image: %w", err)
		}
		img.Width, img.Height = intPtr(w), intPtr(h)
		out = append(out, img)
	}
	return out, rows.Err()
}
