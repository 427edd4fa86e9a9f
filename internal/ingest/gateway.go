// Package ingest is the deduplicating front door to the document store:
// it turns uploaded bytes into a persisted section tree at most once per
// distinct content, and reads trees back with a bounded number of queries.
package ingest

import (
	"context"
	"errors"
	"log/slog"
	"mime"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/dgallion1/docoutline/internal/apperr"
	"github.com/dgallion1/docoutline/internal/archive"
	"github.com/dgallion1/docoutline/internal/cache"
	"github.com/dgallion1/docoutline/internal/doctree"
	"github.com/dgallion1/docoutline/internal/metrics"
	"github.com/dgallion1/docoutline/internal/models"
	"github.com/dgallion1/docoutline/internal/outline"
	"github.com/dgallion1/docoutline/internal/parser"
	"github.com/dgallion1/docoutline/internal/render"
	"github.com/dgallion1/docoutline/internal/store"
)

var numberPathRe = regexp.MustCompile(`^[1-9][0-9]*(\.[1-9][0-9]*)*$`)

// Options bounds admission and pagination.
type Options struct {
	MaxUploadBytes  int64
	MaxDepth        int
	DefaultPageSize int
	MaxPageSize     int
	Render          render.Options
}

// Result is the outcome of Ingest. Created is false when the content was
// already stored. Warnings are non-fatal extraction problems.
type Result struct {
	Document     models.Document   `json:"document"`
	Created      bool              `json:"created"`
	SectionCount int               `json:"sections_count"`
	Warnings     []doctree.Warning `json:"warnings"`
}

// Partial reports whether some content could not be extracted.
func (r *Result) Partial() bool {
	return len(r.Warnings) > 0
}

// Gateway implements ingest and the tree read paths.
type Gateway struct {
	store    *store.Store
	cache    cache.TreeCache
	archive  archive.Archive
	renderer *render.Renderer
	opts     Options
	log      *slog.Logger
	flight   singleflight.Group

	now func() time.Time
}

// New builds a gateway. A nil cache or archive disables that feature.
func New(st *store.Store, c cache.TreeCache, a archive.Archive, opts Options, log *slog.Logger) *Gateway {
	if c == nil {
		c = cache.Nop{}
	}
	if a == nil {
		a = archive.Nop{}
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = outline.DefaultMaxDepth
	}
	if opts.DefaultPageSize <= 0 {
		opts.DefaultPageSize = 10
	}
	if opts.MaxPageSize <= 0 {
		opts.MaxPageSize = 100
	}
	return &Gateway{
		store:    st,
		cache:    c,
		archive:  a,
		renderer: render.New(opts.Render),
		opts:     opts,
		log:      log,
		now:      time.Now,
	}
}

type flightResult struct {
	result *Result
	leader *byte
}

// Ingest stores a document once per distinct content. Repeated or
// concurrent uploads of identical bytes return the same Document.
func (g *Gateway) Ingest(ctx context.Context, filename string, data []byte) (*Result, error) {
	start := time.Now()
	res, err := g.ingest(ctx, filename, data)
	switch {
	case err != nil:
		metrics.CaptureIngest(metrics.OutcomeFailed, time.Since(start))
	case res.Created:
		metrics.CaptureIngest(metrics.OutcomeCreated, time.Since(start))
	default:
		metrics.CaptureIngest(metrics.OutcomeExisting, time.Since(start))
	}
	return res, err
}

func (g *Gateway) ingest(ctx context.Context, filename string, data []byte) (*Result, error) {
	if len(data) == 0 {
		return nil, apperr.InvalidInput("empty file")
	}
	if size := int64(len(data)); g.opts.MaxUploadBytes > 0 && size > g.opts.MaxUploadBytes {
		return nil, apperr.TooLarge(size, g.opts.MaxUploadBytes)
	}
	reader, err := parser.ForFile(filename)
	if err != nil {
		return nil, apperr.InvalidInputWrap(err, "unsupported file type %q", filepath.Ext(filename))
	}

	hash := ContentHashHex(data)
	log := g.log.With("content_hash", hash[:12], "filename", filepath.Base(filename))

	if existing, err := g.existing(ctx, hash); err != nil || existing != nil {
		if existing != nil {
			log.Info("duplicate content, returning existing document", "doc_id", existing.Document.ID)
		}
		return existing, err
	}

	token := new(byte)
	v, err, _ := g.flight.Do(hash, func() (any, error) {
		// Detached so one caller going away does not fail the others.
		r, err := g.create(context.WithoutCancel(ctx), log, reader, filename, data, hash)
		return flightResult{result: r, leader: token}, err
	})
	if err != nil {
		return nil, err
	}
	fr := v.(flightResult)
	res := *fr.result
	if fr.leader != token {
		res.Created = false
	}
	return &res, nil
}

func (g *Gateway) existing(ctx context.Context, hash string) (*Result, error) {
	doc, err := g.store.DocumentByHash(ctx, hash)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Persistence(err, "could not look up document")
	}
	rows, err := g.store.SectionOutline(ctx, doc.ID)
	if err != nil {
		return nil, apperr.Persistence(err, "could not look up document")
	}
	return &Result{Document: *doc, SectionCount: len(rows), Warnings: []doctree.Warning{}}, nil
}

func (g *Gateway) create(ctx context.Context, log *slog.Logger, reader parser.Reader, filename string, data []byte, hash string) (*Result, error) {
	src, err := reader.Open(data)
	if err != nil {
		return nil, apperr.InvalidInputWrap(err, "unreadable document")
	}
	out, err := outline.NewBuilder(g.opts.MaxDepth).Build(src)
	if err != nil {
		return nil, apperr.InvalidInputWrap(err, "unreadable document")
	}

	docID := uuid.Must(uuid.NewV7()).String()
	now := g.now().UTC()
	tree, renderWarnings, err := g.renderer.Render(docID, out, now)
	if err != nil {
		return nil, apperr.Internal(err, "could not render document")
	}

	warnings := make([]doctree.Warning, 0, len(src.Warnings())+len(out.Warnings)+len(renderWarnings))
	warnings = append(warnings, src.Warnings()...)
	warnings = append(warnings, out.Warnings...)
	warnings = append(warnings, renderWarnings...)

	ext := strings.ToLower(filepath.Ext(filename))
	doc := models.Document{
		ID:               docID,
		Filename:         docID + ext,
		OriginalFilename: filepath.Base(filename),
		ContentHash:      hash,
		FileSize:         int64(len(data)),
		CreatedAt:        now,
	}
	log = log.With("doc_id", docID)

	if err := g.archive.Put(ctx, doc.Filename, data, contentType(ext)); err != nil {
		return nil, apperr.Persistence(err, "could not archive document")
	}

	err = g.store.CreateDocumentTree(ctx, &doc, tree, g.now().UTC())
	if err != nil {
		g.discardArchive(ctx, log, doc.Filename)
		if errors.Is(err, store.ErrDuplicate) {
			// Lost an insert race with another process.
			existing, lookupErr := g.existing(ctx, hash)
			if lookupErr != nil {
				return nil, lookupErr
			}
			if existing != nil {
				log.Info("duplicate insert resolved to existing document", "existing_doc_id", existing.Document.ID)
				return existing, nil
			}
		}
		log.Error("persist failed", "error", err)
		return nil, apperr.Persistence(err, "could not store document")
	}

	for _, w := range warnings {
		metrics.IncrementWarning(w.Code)
	}
	metrics.ObserveSections(len(tree.Sections))
	log.Info("document ingested",
		"sections", len(tree.Sections),
		"tables", len(tree.Tables),
		"images", len(tree.Images),
		"warnings", len(warnings),
	)

	return &Result{Document: doc, Created: true, SectionCount: len(tree.Sections), Warnings: warnings}, nil
}

func (g *Gateway) discardArchive(ctx context.Context, log *slog.Logger, key string) {
	if err := g.archive.Delete(ctx, key); err != nil {
		log.Warn("archive cleanup failed", "key", key, "error", err)
	}
}

func contentType(ext string) string {
	switch ext {
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case ".md", ".markdown":
		return "text/markdown"
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}

// GetTree returns the document's section hierarchy with per-section child,
// table and image counts. It costs one document lookup plus two bulk
// queries however large the tree is.
func (g *Gateway) GetTree(ctx context.Context, documentID string) (*models.DocumentTree, error) {
	if tree, ok := g.cache.Get(ctx, documentID); ok {
		metrics.CaptureCacheLookup(true)
		return tree, nil
	}
	metrics.CaptureCacheLookup(false)

	doc, err := g.document(ctx, documentID)
	if err != nil {
		return nil, err
	}
	rows, err := g.store.SectionOutline(ctx, documentID)
	if err != nil {
		return nil, apperr.Persistence(err, "could not load sections")
	}
	counts, err := g.store.SectionCounts(ctx, documentID)
	if err != nil {
		return nil, apperr.Persistence(err, "could not load sections")
	}

	tree := &models.DocumentTree{Document: *doc, Sections: assembleTree(rows, counts)}
	g.cache.Set(ctx, documentID, tree)
	return tree, nil
}

// GetSectionByPath returns one section, addressed by its number path, with
// its tables, images, parent and children.
func (g *Gateway) GetSectionByPath(ctx context.Context, documentID, numberPath string) (*models.SectionDetail, error) {
	if !numberPathRe.MatchString(numberPath) {
		return nil, apperr.NotFound("section %q not found", numberPath)
	}
	detail, err := g.store.SectionDetail(ctx, documentID, numberPath)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("section %q not found in document %q", numberPath, documentID)
	}
	if err != nil {
		return nil, apperr.Persistence(err, "could not load section")
	}
	return detail, nil
}

// ListDocuments returns one page of document summaries. Page and size are
// clamped; a page past the end is NotFound unless the store is empty.
func (g *Gateway) ListDocuments(ctx context.Context, page, pageSize int) (*models.Page[models.DocumentSummary], error) {
	page = max(page, 1)
	if pageSize <= 0 {
		pageSize = g.opts.DefaultPageSize
	}
	pageSize = min(pageSize, g.opts.MaxPageSize)

	items, total, err := g.store.ListDocuments(ctx, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, apperr.Persistence(err, "could not list documents")
	}
	pages := (total + pageSize - 1) / pageSize
	if total == 0 {
		page = 1
	} else if page > pages {
		return nil, apperr.NotFound("page %d is beyond the last page %d", page, pages)
	}
	return &models.Page[models.DocumentSummary]{
		Items:    items,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
		Pages:    max(pages, 1),
	}, nil
}

// GetDocument returns a document with every section's content, tables and
// images in reading order.
func (g *Gateway) GetDocument(ctx context.Context, documentID string) (*models.DocumentContent, error) {
	doc, err := g.document(ctx, documentID)
	if err != nil {
		return nil, err
	}
	sections, err := g.store.DocumentContent(ctx, documentID)
	if err != nil {
		return nil, apperr.Persistence(err, "could not load sections")
	}
	return &models.DocumentContent{Document: *doc, Sections: sections}, nil
}

// DeleteDocument removes a document and everything under it.
func (g *Gateway) DeleteDocument(ctx context.Context, documentID string) error {
	doc, err := g.document(ctx, documentID)
	if err != nil {
		return err
	}
	if err := g.store.DeleteDocument(ctx, documentID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFound("document %q not found", documentID)
		}
		return apperr.Persistence(err, "could not delete document")
	}
	g.cache.Invalidate(ctx, documentID)
	log := g.log.With("doc_id", documentID)
	g.discardArchive(ctx, log, doc.Filename)
	log.Info("document deleted")
	return nil
}

// Health checks the store.
func (g *Gateway) Health(ctx context.Context) error {
	if err := g.store.Ping(ctx); err != nil {
		return apperr.Persistence(err, "database unavailable")
	}
	return nil
}

func (g *Gateway) document(ctx context.Context, documentID string) (*models.Document, error) {
	doc, err := g.store.DocumentByID(ctx, documentID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("document %q not found", documentID)
	}
	if err != nil {
		return nil, apperr.Persistence(err, "could not load document")
	}
	return doc, nil
}
