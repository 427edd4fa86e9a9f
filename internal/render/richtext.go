// Package render converts queued section content into the stored
// representations: a canonical rich-text JSON tree, an HTML view derived from
// it, and standalone table and image records.
package render

import "github.com/dgallion1/docoutline/internal/doctree"

// NodeType discriminates rich-text nodes.
type NodeType string

const (
	NodeDocument  NodeType = "document"
	NodeHeading   NodeType = "heading"
	NodeParagraph NodeType = "paragraph"
	NodeText      NodeType = "text"
	NodeTableRef  NodeType = "tableRef"
	NodeImageRef  NodeType = "imageRef"
)

// Node is a rich-text node. Which fields are meaningful depends on Type:
// Content for doc, heading and paragraph; Text and Marks for text; Attrs.Ref
// for the two reference kinds; Attrs.Level for heading.
type Node struct {
	Type    NodeType `json:"type"`
	Attrs   *Attrs   `json:"attrs,omitempty"`
	Content []Node   `json:"content,omitempty"`
	Text    string   `json:"text,omitempty"`
	Marks   []Mark   `json:"marks,omitempty"`
}

type Attrs struct {
	Level int    `json:"level,omitempty"`
	Ref   string `json:"ref,omitempty"`
}

type Mark struct {
	Type doctree.Mark `json:"type"`
}

func documentNode(content []Node) Node {
	return Node{Type: NodeDocument, Content: content}
}

func headingNode(level int, text string) Node {
	return Node{
		Type:    NodeHeading,
		Attrs:   &Attrs{Level: min(level+1, 6)},
		Content: []Node{{Type: NodeText, Text: text}},
	}
}

func paragraphNode(runs []doctree.Run) Node {
	var content []Node
	for _, r := range runs {
		if r.Text == "" {
			continue
		}
		n := Node{Type: NodeText, Text: r.Text}
		for _, m := range r.Marks {
			n.Marks = append(n.Marks, Mark{Type: m})
		}
		// merge with the previous run when the marks are identical
		if last := len(content) - 1; last >= 0 && sameMarks(content[last].Marks, n.Marks) {
			content[last].Text += n.Text
			continue
		}
		content = append(content, n)
	}
	return Node{Type: NodeParagraph, Content: content}
}

func refNode(t NodeType, ref string) Node {
	return Node{Type: t, Attrs: &Attrs{Ref: ref}}
}

func sameMarks(a, b []Mark) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
