package ingest

import "github.com/dgallion1/docoutline/internal/models"

// assembleTree links outline rows into a forest in one pass. Rows arrive in
// sort order, so a parent is always seen before its children.
func assembleTree(rows []models.OutlineRow, counts map[string]models.SectionCounts) []*models.TreeNode {
	nodes := make(map[string]*models.TreeNode, len(rows))
	roots := []*models.TreeNode{}
	for _, r := range rows {
		c := counts[r.ID]
		n := &models.TreeNode{
			ID:         r.ID,
			NumberPath: r.NumberPath,
			Level:      r.Level,
			Title:      r.Title,
			SortOrder:  r.SortOrder,
			ChildCount: c.Children,
			TableCount: c.Tables,
			ImageCount: c.Images,
			Children:   make([]*models.TreeNode, 0, c.Children),
		}
		nodes[r.ID] = n

		if r.ParentID == nil {
			roots = append(roots, n)
			continue
		}
		parent, ok := nodes[*r.ParentID]
		if !ok {
			roots = append(roots, n)
			continue
		}
		parent.Children = append(parent.Children, n)
	}
	return roots
}
