package models

import (
	"time"
)

// Document is one uploaded file. ContentHash is unique across the store.
type Document struct {
	ID               string     `db:"id" json:"id"`
	Filename         string     `db:"filename" json:"filename"`
	OriginalFilename string     `db:"original_filename" json:"original_filename"`
	ContentHash      string     `db:"content_hash" json:"content_hash"`
	FileSize         int64      `db:"file_size" json:"file_size"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	ParsedAt         *time.Time `db:"parsed_at" json:"parsed_at"`
}

// DocumentSummary is a list row: the document plus its section count.
type DocumentSummary struct {
	Document
	SectionCount int `json:"sections_count"`
}

// Section is a numbered node of a document's outline.
type Section struct {
	ID          string    `db:"id" json:"id"`
	DocumentID  string    `db:"document_id" json:"document_id"`
	NumberPath  string    `db:"number_path" json:"number_path"`
	Level       int       `db:"level" json:"level"`
	ParentID    *string   `db:"parent_id" json:"parent_id"`
	Title       string    `db:"title" json:"title"`
	ContentHTML string    `db:"content_html" json:"content_html,omitempty"`
	ContentJSON string    `db:"content_json" json:"content_json,omitempty"`
	SortOrder   int       `db:"sort_order" json:"sort_order"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// SectionTable is a table extracted from a section.
type SectionTable struct {
	ID         string `db:"id" json:"id"`
	SectionID  string `db:"section_id" json:"section_id"`
	TableIndex int    `db:"table_index" json:"table_index"`
	RowCount   int    `db:"row_count" json:"row_count"`
	ColCount   int    `db:"col_count" json:"col_count"`
	HTML       string `db:"html" json:"html"`
	JSONData   string `db:"json_data" json:"json_data"`
	SortOrder  int    `db:"sort_order" json:"sort_order"`
}

// SectionImage is an image extracted from a section. Data is base64.
type SectionImage struct {
	ID         string `db:"id" json:"id"`
	SectionID  string `db:"section_id" json:"section_id"`
	ImageIndex int    `db:"image_index" json:"image_index"`
	Filename   string `db:"filename" json:"filename"`
	MIMEType   string `db:"mime_type" json:"mime_type"`
	Base64Data string `db:"base64_data" json:"base64_data"`
	Width      *int   `db:"width" json:"width"`
	Height     *int   `db:"height" json:"height"`
	SortOrder  int    `db:"sort_order" json:"sort_order"`
}

// ParsedTree is everything one parse produces for a document, ready to be
// written in a single transaction. Sections are in sort order, so every
// parent precedes its children.
type ParsedTree struct {
	Sections []Section
	Tables   []SectionTable
	Images   []SectionImage
}

// OutlineRow is the payload-free projection used to rebuild the tree.
type OutlineRow struct {
	ID         string
	ParentID   *string
	NumberPath string
	Level      int
	Title      string
	SortOrder  int
}

// SectionCounts holds per-section aggregates.
type SectionCounts struct {
	Children int
	Tables   int
	Images   int
}

// TreeNode is one node of a materialised section tree.
type TreeNode struct {
	ID         string      `json:"id"`
	NumberPath string      `json:"number_path"`
	Level      int         `json:"level"`
	Title      string      `json:"title"`
	SortOrder  int         `json:"sort_order"`
	ChildCount int         `json:"child_count"`
	TableCount int         `json:"table_count"`
	ImageCount int         `json:"image_count"`
	Children   []*TreeNode `json:"children"`
}

// DocumentTree is a document with its section hierarchy, without content
// payloads.
type DocumentTree struct {
	Document Document    `json:"document"`
	Sections []*TreeNode `json:"sections"`
}

// SectionBrief identifies a neighbouring section.
type SectionBrief struct {
	ID         string `json:"id"`
	NumberPath string `json:"number_path"`
	Level      int    `json:"level"`
	Title      string `json:"title"`
}

// SectionDetail is a section with its content records and neighbours.
type SectionDetail struct {
	Section
	Tables   []SectionTable `json:"tables"`
	Images   []SectionImage `json:"images"`
	Parent   *SectionBrief  `json:"parent"`
	Children []SectionBrief `json:"children"`
}

// SectionContent is a section with its tables and images.
type SectionContent struct {
	Section
	Tables []SectionTable `json:"tables"`
	Images []SectionImage `json:"images"`
}

// DocumentContent is a document with every section in reading order.
type DocumentContent struct {
	Document
	Sections []SectionContent `json:"sections"`
}

// Page is one slice of a paginated listing.
type Page[T any] struct {
	Items    []T `json:"items"`
	Total    int `json:"total"`
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
	Pages    int `json:"pages"`
}
