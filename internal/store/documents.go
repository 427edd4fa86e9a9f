package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dgallion1/docoutline/internal/models"
)

const documentColumns = `id, filename, original_filename, content_hash, file_size, created_at, parsed_at`

// CreateDocumentTree writes a document and its whole parsed tree in one
// transaction, then marks the document parsed. Any failure rolls the
// transaction back; a content-hash collision returns ErrDuplicate.
func (s *Store) CreateDocumentTree(ctx context.Context, doc *models.Document, tree *models.ParsedTree, parsedAt time.Time) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, s.rebind(`INSERT INTO documents (`+documentColumns+`) VALUES (?, ?, ?, ?, ?, ?, NULL)`),
		doc.ID, doc.Filename, doc.OriginalFilename, doc.ContentHash, doc.FileSize, doc.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert document: %w", err)
	}

	if err = s.insertSections(ctx, tx, tree.Sections); err != nil {
		return err
	}
	if err = s.insertTables(ctx, tx, tree.Tables); err != nil {
		return err
	}
	if err = s.insertImages(ctx, tx, tree.Images); err != nil {
		return err
	}

	if _, err = tx.ExecContext(ctx, s.rebind(`UPDATE documents SET parsed_at = ? WHERE id = ?`), parsedAt, doc.ID); err != nil {
		return fmt.Errorf("mark parsed: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	doc.ParsedAt = &parsedAt
	return nil
}

func (s *Store) insertSections(ctx context.Context, tx *sql.Tx, sections []models.Section) error {
	if len(sections) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, s.rebind(`INSERT INTO sections
		(id, document_id, parent_id, number_path, level, title, content_html, content_json, sort_order, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`))
	if err != nil {
		return fmt.Errorf("prepare section insert: %w", err)
	}
	defer stmt.Close()

	for i := range sections {
		sec := &sections[i]
		_, err := stmt.ExecContext(ctx, sec.ID, sec.DocumentID, sec.ParentID, sec.NumberPath, sec.Level, sec.Title,
			sec.ContentHTML, sec.ContentJSON, sec.SortOrder, sec.CreatedAt, sec.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert section %s: %w", sec.NumberPath, err)
		}
	}
	return nil
}

func (s *Store) insertTables(ctx context.Context, tx *sql.Tx, tables []models.SectionTable) error {
	if len(tables) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, s.rebind(`INSERT INTO section_tables
		(id, section_id, table_index, row_count, col_count, html, json_data, sort_order)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`))
	if err != nil {
		return fmt.Errorf("prepare table insert: %w", err)
	}
	defer stmt.Close()

	for _, t := range tables {
		if _, err := stmt.ExecContext(ctx, t.ID, t.SectionID, t.TableIndex, t.RowCount, t.ColCount, t.HTML, t.JSONData, t.SortOrder); err != nil {
			return fmt.Errorf("insert table: %w", err)
		}
	}
	return nil
}

func (s *Store) insertImages(ctx context.Context, tx *sql.Tx, images []models.SectionImage) error {
	if len(images) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, s.rebind(`INSERT INTO section_images
		(id, section_id, image_index, filename, mime_type, base64_data, width, height, sort_order)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`))
	if err != nil {
		return fmt.Errorf("prepare image insert: %w", err)
	}
	defer stmt.Close()

	for _, img := range images {
		_, err := stmt.ExecContext(ctx, img.ID, img.SectionID, img.ImageIndex, img.Filename, img.MIMEType, img.Base64Data,
			nullableInt(img.Width), nullableInt(img.Height), img.SortOrder)
		if err != nil {
			return fmt.Errorf("insert image: %w", err)
		}
	}
	return nil
}

func scanDocument(row rowScanner, extra ...any) (*models.Document, error) {
	var (
		doc      models.Document
		parsedAt sql.NullTime
	)
	dest := append([]any{&doc.ID, &doc.Filename, &doc.OriginalFilename, &doc.ContentHash, &doc.FileSize, &doc.CreatedAt, &parsedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	if parsedAt.Valid {
		t := parsedAt.Time
		doc.ParsedAt = &t
	}
	return &doc, nil
}

func (s *Store) documentWhere(ctx context.Context, where string, arg any) (*models.Document, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+documentColumns+` FROM documents WHERE `+where+` = ?`), arg)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	return doc, nil
}

// DocumentByID returns ErrNotFound for unknown ids.
func (s *Store) DocumentByID(ctx context.Context, id string) (*models.Document, error) {
	return s.documentWhere(ctx, "id", id)
}

// DocumentByHash returns ErrNotFound when no document has the hash.
func (s *Store) DocumentByHash(ctx context.Context, hash string) (*models.Document, error) {
	return s.documentWhere(ctx, "content_hash", hash)
}

// ListDocuments returns one page of documents, newest first, each with its
// section count from a single grouped join, plus the total document count.
func (s *Store) ListDocuments(ctx context.Context, limit, offset int) ([]models.DocumentSummary, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count documents: %w", err)
	}
	if total == 0 || offset >= total {
		return []models.DocumentSummary{}, total, nil
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT d.id, d.filename, d.original_filename, d.content_hash, d.file_size, d.created_at, d.parsed_at,
		       COALESCE(c.n, 0)
		FROM documents d
		LEFT JOIN (
			SELECT document_id, COUNT(*) AS n FROM sections GROUP BY document_id
		) c ON c.document_id = d.id
		ORDER BY d.created_at DESC, d.id DESC
		LIMIT ? OFFSET ?`), limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	out := make([]models.DocumentSummary, 0, limit)
	for rows.Next() {
		var n int
		doc, err := scanDocument(rows, &n)
		if err != nil {
			return nil, 0, fmt.Errorf("scan document: %w", err)
		}
		out = append(out, models.DocumentSummary{Document: *doc, SectionCount: n})
	}
	return out, total, rows.Err()
}

// DeleteDocument removes a document; sections, tables and images cascade.
func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM documents WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
