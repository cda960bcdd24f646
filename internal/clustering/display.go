package clustering

import (
	"fmt"
	"strings"
)

const sampleTrackCount = 3

// FormatClusterReport returns a human-readable summary of clusters.
// Shows mood, size and averages for each cluster, with the first 3 member tracks.
// A degraded clustering prints the sentinel mood only.
func FormatClusterReport(table *Table, labels []int, summaries []Summary) string {
	var sb strings.Builder

	if len(labels) == 0 {
		sb.WriteString(fmt.Sprintf("No clusters from %d tracks\n", table.Len()))
		for _, s := range summaries {
			sb.WriteString(fmt.Sprintf("  %s\n", s.Mood))
		}
		return sb.String()
	}

	clusterWord := "cluster"
	if len(summaries) > 1 {
		clusterWord = "clusters"
	}
	sb.WriteString(fmt.Sprintf("Found %d %s from %d tracks\n", len(summaries), clusterWord, table.Len()))

	for i, s := range summaries {
		sb.WriteString("\n")
		sb.WriteString(formatCluster(i+1, s, membersOf(table, labels, s.ClusterID)))
	}

	return sb.String()
}

// formatCluster formats a single cluster with its sample tracks.
func formatCluster(num int, s Summary, members []Track) string {
	var sb strings.Builder

	trackWord := "track"
	if s.Size != 1 {
		trackWord = "tracks"
	}

	sb.WriteString(fmt.Sprintf("Cluster %d: %s (%d %s)\n", num, s.Mood, s.Size, trackWord))
	if s.AvgEnergy != nil && s.AvgValence != nil {
		sb.WriteString(fmt.Sprintf("  energy %.2f  valence %.2f", *s.AvgEnergy, *s.AvgValence))
		if s.AvgTempo != nil {
			sb.WriteString(fmt.Sprintf("  tempo %.0f bpm", *s.AvgTempo))
		}
		sb.WriteString("\n")
	}

	sampleCount := min(sampleTrackCount, len(members))
	for i := 0; i < sampleCount; i++ {
		track := members[i]
		sb.WriteString(fmt.Sprintf("  • \"%s\" - %s\n", track.Name, track.Artist))
	}

	remaining := len(members) - sampleTrackCount
	if remaining > 0 {
		sb.WriteString(fmt.Sprintf("  ... and %d more\n", remaining))
	}

	return sb.String()
}

// membersOf returns the tracks labelled id, in table order.
func membersOf(table *Table, labels []int, id *int) []Track {
	if id == nil {
		return nil
	}
	var out []Track
	for row, t := range table.Tracks() {
		if row < len(labels) && labels[row] == *id {
			out = append(out, t)
		}
	}
	return out
}
