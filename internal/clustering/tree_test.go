package clustering

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildTree(t *testing.T) {
	tracks := make([]Track, 10)
	for i := range tracks {
		tracks[i] = makeTrack(fmt.Sprintf("t%d", i), 0.1*float64(i), 0.5)
	}
	table := NewTable(tracks)
	labels := []int{0, 1, 0, 0, 1, 0, 1, 0, 1, 0}

	summaries, err := Summarize(table, labels, 2)
	require.NoError(t, err)

	tree, err := BuildTree(table, labels, summaries)
	require.NoError(t, err)

	assert.Equal(t, "My Music", tree.Name)
	require.Len(t, tree.Children, 2)
	assert.Equal(t, "Cluster 1", tree.Children[0].Name)
	assert.Equal(t, "Cluster 2", tree.Children[1].Name)
	assert.Len(t, tree.Children[0].Children, 6)
	assert.Len(t, tree.Children[1].Children, 4)
	assert.Equal(t, 10, tree.LeafCount())

	var ids []string
	for _, leaf := range tree.Children[0].Children {
		ids = append(ids, leaf.ID)
	}
	assert.Equal(t, []string{"t0", "t2", "t3", "t5", "t7", "t9"}, ids)

	ids = nil
	for _, leaf := range tree.Children[1].Children {
		ids = append(ids, leaf.ID)
	}
	assert.Equal(t, []string{"t1", "t4", "t6", "t8"}, ids)

	leaf := tree.Children[1].Children[0]
	assert.Equal(t, "Artist t1", leaf.Artist)
	assert.InDelta(t, 0.1, *leaf.Energy, 1e-9)
}

func TestBuildTreeEmptyCluster(t *testing.T) {
	table := NewTable(spread(3))
	labels := []int{0, 0, 0}
	summaries, err := Summarize(table, labels, 2)
	require.NoError(t, err)

	tree, err := BuildTree(table, labels, summaries)
	require.NoError(t, err)

	require.Len(t, tree.Children, 2)
	assert.Empty(t, tree.Children[1].Children)
	assert.Equal(t, MoodEmptyCluster, tree.Children[1].Mood)
}

func TestBuildTreeShapeMismatch(t *testing.T) {
	table := NewTable(spread(3))
	summaries := []Summary{{ClusterID: ptr(0)}}

	_, err := BuildTree(table, []int{0, 0}, summaries)
	var sme *ShapeMismatchError
	assert.ErrorAs(t, err, &sme)

	_, err = BuildTree(table, []int{0, 1, 0}, summaries)
	assert.ErrorAs(t, err, &sme)
}

func TestTreeJSON(t *testing.T) {
	table := NewTable([]Track{{ID: "a", Name: "A", Artist: "X"}})
	tree, err := BuildTree(table, []int{0}, []Summary{{ClusterID: ptr(0), Size: 1, Mood: MoodSadCalm}})
	require.NoError(t, err)

	data, err := json.Marshal(tree)
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"name": "My Music",
		"children": [{
			"name": "Cluster 1", "cluster_id": 0, "size": 1, "mood": "Sad & Calm",
			"avg_energy": null, "avg_valence": null,
			"children": [{"name": "A", "id": "a", "artist": "X", "popularity": null, "energy": null, "valence": null}]
		}]
	}`, string(data))
}
