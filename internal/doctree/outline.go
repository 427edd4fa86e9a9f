package doctree

// ContentItem is one queued piece of section content. SortOrder is the
// document-global reading position; ID is the opaque reference used for
// tables and images.
type ContentItem struct {
	ID        string
	SortOrder int
	Element   Element
}

// Section is a node of the parse-side outline. Parents are referenced by id,
// not by pointer; children are found by scanning for ParentID.
type Section struct {
	ID         string
	ParentID   string // empty for top-level sections
	Level      int
	NumberPath string
	Title      string
	SortOrder  int
	Items      []ContentItem
}

// Outline is the flat, reading-ordered arena of sections built from one
// document.
type Outline struct {
	Sections []*Section
	Warnings []Warning
}

// ByID indexes the outline's sections.
func (o *Outline) ByID() map[string]*Section {
	m := make(map[string]*Section, len(o.Sections))
	for _, s := range o.Sections {
		m[s.ID] = s
	}
	return m
}
