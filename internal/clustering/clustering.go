// Package clustering groups tracks into mood clusters from their audio features.
//
// The pipeline is Table -> Engine.Cluster -> Summarize -> BuildTree. The engine is
// stateless between calls: every fitted quantity (scaler, components, centroids)
// lives only for the duration of one Cluster call.
package clustering

import (
	"time"
)

// Audio feature column names.
const (
	Danceability     = "danceability"
	Energy           = "energy"
	Valence          = "valence"
	Tempo            = "tempo"
	Acousticness     = "acousticness"
	Instrumentalness = "instrumentalness"
	Liveness         = "liveness"
	Speechiness      = "speechiness"
	Loudness         = "loudness"
)

// FeatureColumns returns the nine audio feature columns in canonical order.
func FeatureColumns() []string {
	return []string{
		Danceability,
		Energy,
		Valence,
		Tempo,
		Acousticness,
		Instrumentalness,
		Liveness,
		Speechiness,
		Loudness,
	}
}

// identityColumns are always present in a Table, in this order.
var identityColumns = []string{
	"id", "name", "artist", "artist_id", "album",
	"popularity", "duration_ms", "played_at", "genres",
}

// Track is one row of the feature table.
type Track struct {
	ID         string
	Name       string
	Artist     string
	ArtistID   string
	Album      string
	Popularity *int       // nil if unknown
	DurationMs *int       // nil if unknown
	PlayedAt   *time.Time // nil for tracks not taken from listening history
	Genres     []string
	Features   AudioFeatures
}

// AudioFeatures holds the audio descriptors of a track (nil if not fetched).
type AudioFeatures struct {
	Danceability     *float64
	Energy           *float64
	Valence          *float64
	Tempo            *float64
	Acousticness     *float64
	Instrumentalness *float64
	Liveness         *float64
	Speechiness      *float64
	Loudness         *float64
}

// Get returns the value of the named feature column, or nil if the value is absent
// or the name is not an audio feature.
func (f AudioFeatures) Get(column string) *float64 {
	switch column {
	case Danceability:
		return f.Danceability
	case Energy:
		return f.Energy
	case Valence:
		return f.Valence
	case Tempo:
		return f.Tempo
	case Acousticness:
		return f.Acousticness
	case Instrumentalness:
		return f.Instrumentalness
	case Liveness:
		return f.Liveness
	case Speechiness:
		return f.Speechiness
	case Loudness:
		return f.Loudness
	}
	return nil
}

// Empty reports whether no feature value is set.
func (f AudioFeatures) Empty() bool {
	for _, name := range FeatureColumns() {
		if f.Get(name) != nil {
			return false
		}
	}
	return true
}
