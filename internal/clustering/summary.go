package clustering

// Summary describes one cluster. Nil averages mark an empty cluster or the
// not-clustered sentinel and serialize as null.
type Summary struct {
	ClusterID       *int     `json:"cluster_id"`
	Size            int      `json:"size"`
	AvgEnergy       *float64 `json:"avg_energy"`
	AvgValence      *float64 `json:"avg_valence"`
	AvgTempo        *float64 `json:"avg_tempo"`
	AvgDanceability *float64 `json:"avg_danceability"`
	AvgAcousticness *float64 `json:"avg_acousticness"`
	Mood            string   `json:"mood"`
}

// NotClustered returns the single summary reported when clustering did not run.
func NotClustered() []Summary {
	return []Summary{{Mood: MoodNotClustered}}
}

// Summarize aggregates the table per cluster. With no labels it returns the
// not-clustered sentinel. Otherwise it returns exactly k summaries ordered by
// cluster id, or a *ShapeMismatchError when labels do not fit the table.
func Summarize(table *Table, labels []int, k int) ([]Summary, error) {
	if len(labels) == 0 {
		return NotClustered(), nil
	}
	if err := checkAssignment(table.Len(), labels, k); err != nil {
		return nil, err
	}

	type sums struct {
		energy, valence, tempo, dance, acoustic float64
		count                                   int
	}
	acc := make([]sums, k)
	for i, t := range table.Tracks() {
		s := &acc[labels[i]]
		s.energy += value(t.Features.Energy)
		s.valence += value(t.Features.Valence)
		s.tempo += value(t.Features.Tempo)
		s.dance += value(t.Features.Danceability)
		s.acoustic += value(t.Features.Acousticness)
		s.count++
	}

	summaries := make([]Summary, k)
	for id, s := range acc {
		summaries[id] = Summary{ClusterID: ptr(id), Size: s.count}
		if s.count == 0 {
			summaries[id].Mood = MoodEmptyCluster
			continue
		}
		n := float64(s.count)
		summaries[id].AvgEnergy = ptr(s.energy / n)
		summaries[id].AvgValence = ptr(s.valence / n)
		summaries[id].AvgTempo = ptr(s.tempo / n)
		summaries[id].AvgDanceability = ptr(s.dance / n)
		summaries[id].AvgAcousticness = ptr(s.acoustic / n)
		summaries[id].Mood = ClusterMood(s.valence/n, s.energy/n)
	}
	return summaries, nil
}

func value(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func ptr[T any](v T) *T {
	return &v
}
