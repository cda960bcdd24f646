package analysis

import (
	"time"

	"github.com/justestif/go-spotify-mood-map/internal/clustering"
)

// Report is the outcome of one Analyze call.
type Report struct {
	Labels     []int                `json:"cluster_labels"`
	Summaries  []clustering.Summary `json:"cluster_summaries"`
	Tree       *clustering.Tree     `json:"tree"`
	Clustering *clustering.Metadata `json:"cluster_metadata,omitempty"`
	Message    string               `json:"message,omitempty"`
	Reason     string               `json:"reason,omitempty"`

	table *clustering.Table
	k     int
}

// Clustered reports whether clustering succeeded.
func (r *Report) Clustered() bool {
	return r.Tree != nil
}

// Table returns the table the report was computed from.
func (r *Report) Table() *clustering.Table {
	return r.table
}

// Text renders the report for a terminal.
func (r *Report) Text() string {
	return clustering.FormatClusterReport(r.table, r.Labels, r.Summaries)
}

// TrackRow is one table row with its cluster label.
type TrackRow struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	Artist           string     `json:"artist"`
	ArtistID         string     `json:"artist_id"`
	Album            string     `json:"album"`
	Popularity       *int       `json:"popularity"`
	DurationMs       *int       `json:"duration_ms"`
	PlayedAt         *time.Time `json:"played_at"`
	Genres           []string   `json:"genres"`
	Danceability     *float64   `json:"danceability"`
	Energy           *float64   `json:"energy"`
	Valence          *float64   `json:"valence"`
	Tempo            *float64   `json:"tempo"`
	Acousticness     *float64   `json:"acousticness"`
	Instrumentalness *float64   `json:"instrumentalness"`
	Liveness         *float64   `json:"liveness"`
	Speechiness      *float64   `json:"speechiness"`
	Loudness         *float64   `json:"loudness"`
	Cluster          *int       `json:"cluster"`
}

// Rows returns every table row. Cluster is nil when clustering was degraded.
func (r *Report) Rows() []TrackRow {
	tracks := r.table.Tracks()
	rows := make([]TrackRow, len(tracks))
	for i, t := range tracks {
		genres := t.Genres
		if genres == nil {
			genres = []string{}
		}
		f := t.Features
		rows[i] = TrackRow{
			ID:               t.ID,
			Name:             t.Name,
			Artist:           t.Artist,
			ArtistID:         t.ArtistID,
			Album:            t.Album,
			Popularity:       t.Popularity,
			DurationMs:       t.DurationMs,
			PlayedAt:         t.PlayedAt,
			Genres:           genres,
			Danceability:     f.Danceability,
			Energy:           f.Energy,
			Valence:          f.Valence,
			Tempo:            f.Tempo,
			Acousticness:     f.Acousticness,
			Instrumentalness: f.Instrumentalness,
			Liveness:         f.Liveness,
			Speechiness:      f.Speechiness,
			Loudness:         f.Loudness,
		}
		if r.Clustered() && i < len(r.Labels) {
			label := r.Labels[i]
			rows[i].Cluster = &label
		}
	}
	return rows
}
