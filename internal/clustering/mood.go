package clustering

// moodThreshold splits the valence and energy axes. A value equal to the
// threshold counts as low.
const moodThreshold = 0.5

// Cluster mood labels.
const (
	MoodHappyEnergetic = "Happy & Energetic"
	MoodHappyCalm      = "Happy & Calm"
	MoodSadEnergetic   = "Sad & Energetic"
	MoodSadCalm        = "Sad & Calm"

	MoodEmptyCluster = "Undefined (empty cluster)"
	MoodNotClustered = "Clustering not performed: missing audio features"
)

// Per-track mood labels.
const (
	TrackMoodHappy     = "Happy"
	TrackMoodCalm      = "Calm"
	TrackMoodEnergetic = "Energetic"
	TrackMoodSad       = "Sad"
)

// ClusterMood names the valence/energy quadrant of a cluster's averages.
//
// Quadrants:
//   - High Valence + High Energy = "Happy & Energetic"
//   - High Valence + Low Energy  = "Happy & Calm"
//   - Low Valence  + High Energy = "Sad & Energetic"
//   - Low Valence  + Low Energy  = "Sad & Calm"
func ClusterMood(valence, energy float64) string {
	highValence := valence > moodThreshold
	highEnergy := energy > moodThreshold

	switch {
	case highValence && highEnergy:
		return MoodHappyEnergetic
	case highValence:
		return MoodHappyCalm
	case highEnergy:
		return MoodSadEnergetic
	default:
		return MoodSadCalm
	}
}

// MoodDescription returns a one-line description of a cluster mood label.
func MoodDescription(mood string) string {
	switch mood {
	case MoodHappyEnergetic:
		return "High-energy, positive vibes - perfect for dancing and celebrations"
	case MoodHappyCalm:
		return "Relaxed and uplifting - great for unwinding"
	case MoodSadEnergetic:
		return "Intense, driving energy with darker emotional tones"
	case MoodSadCalm:
		return "Contemplative and introspective - ideal for quiet moments"
	}
	return ""
}

// TrackMood classifies a single track. It uses a smaller vocabulary than
// ClusterMood and is only used for the listening mood distribution.
func TrackMood(valence, energy float64) string {
	if valence > moodThreshold {
		if energy > moodThreshold {
			return TrackMoodHappy
		}
		return TrackMoodCalm
	}
	if energy > moodThreshold {
		return TrackMoodEnergetic
	}
	return TrackMoodSad
}

// MoodDistribution counts TrackMood over the rows that carry both valence and
// energy. The map is empty when either column is absent from the table.
func MoodDistribution(table *Table) map[string]int {
	dist := make(map[string]int)
	if !table.HasColumn(Valence) || !table.HasColumn(Energy) {
		return dist
	}
	for _, t := range table.Tracks() {
		if t.Features.Valence == nil || t.Features.Energy == nil {
			continue
		}
		dist[TrackMood(*t.Features.Valence, *t.Features.Energy)]++
	}
	return dist
}
