package clustering

import "fmt"

// TreeRootName is the name of the visualization root.
const TreeRootName = "My Music"

// Tree is the root of the visualization hierarchy.
type Tree struct {
	Name     string        `json:"name"`
	Children []ClusterNode `json:"children"`
}

// ClusterNode is one cluster under the root.
type ClusterNode struct {
	Name       string      `json:"name"`
	ClusterID  *int        `json:"cluster_id"`
	Size       int         `json:"size"`
	Mood       string      `json:"mood"`
	AvgEnergy  *float64    `json:"avg_energy"`
	AvgValence *float64    `json:"avg_valence"`
	Children   []TrackNode `json:"children"`
}

// TrackNode is a leaf for one member track.
type TrackNode struct {
	Name       string   `json:"name"`
	ID         string   `json:"id"`
	Artist     string   `json:"artist"`
	Popularity *int     `json:"popularity"`
	Energy     *float64 `json:"energy"`
	Valence    *float64 `json:"valence"`
}

// BuildTree assembles the root -> cluster -> track hierarchy. Cluster nodes follow
// the order of summaries; leaves follow table row order. Callers skip it when
// clustering was degraded.
func BuildTree(table *Table, labels []int, summaries []Summary) (*Tree, error) {
	if err := checkAssignment(table.Len(), labels, len(summaries)); err != nil {
		return nil, err
	}

	root := &Tree{
		Name:     TreeRootName,
		Children: make([]ClusterNode, 0, len(summaries)),
	}
	for i, s := range summaries {
		node := ClusterNode{
			Name:       fmt.Sprintf("Cluster %d", i+1),
			ClusterID:  s.ClusterID,
			Size:       s.Size,
			Mood:       s.Mood,
			AvgEnergy:  s.AvgEnergy,
			AvgValence: s.AvgValence,
			Children:   []TrackNode{},
		}
		if s.ClusterID != nil {
			for row, t := range table.Tracks() {
				if labels[row] != *s.ClusterID {
					continue
				}
				node.Children = append(node.Children, TrackNode{
					Name:       t.Name,
					ID:         t.ID,
					Artist:     t.Artist,
					Popularity: t.Popularity,
					Energy:     t.Features.Energy,
					Valence:    t.Features.Valence,
				})
			}
		}
		root.Children = append(root.Children, node)
	}
	return root, nil
}

// LeafCount returns the number of track leaves in the tree.
func (t *Tree) LeafCount() int {
	if t == nil {
		return 0
	}
	n := 0
	for _, c := range t.Children {
		n += len(c.Children)
	}
	return n
}
