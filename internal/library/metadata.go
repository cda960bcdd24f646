package library

import (
	"cmp"
	"slices"
	"time"

	"github.com/justestif/go-spotify-mood-map/internal/clustering"
)

// Metadata describes a user's listening data independently of clustering.
type Metadata struct {
	TotalTracks      int            `json:"total_tracks"`
	TimePeriod       *TimePeriod    `json:"time_period"`
	Genres           []GenreCount   `json:"genres"`
	MoodDistribution map[string]int `json:"mood_distribution"`
	ListeningHours   [24]int        `json:"listening_hours"`
	WeekendShare     float64        `json:"weekend_share"`
}

// TimePeriod spans the earliest and latest play in the data.
type TimePeriod struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// GenreCount is the number of tracks tagged with a genre.
type GenreCount struct {
	Genre string `json:"genre"`
	Count int    `json:"count"`
}

// Describe computes metadata for table. Hour of day is taken in loc.
func Describe(table *clustering.Table, loc *time.Location) Metadata {
	if loc == nil {
		loc = time.UTC
	}

	md := Metadata{
		TotalTracks:      table.Len(),
		Genres:           genreDistribution(table.Tracks()),
		MoodDistribution: clustering.MoodDistribution(table),
	}

	var played, weekend int
	for _, t := range table.Tracks() {
		if t.PlayedAt == nil {
			continue
		}
		at := t.PlayedAt.In(loc)
		played++

		if md.TimePeriod == nil {
			md.TimePeriod = &TimePeriod{Start: at, End: at}
		} else {
			if at.Before(md.TimePeriod.Start) {
				md.TimePeriod.Start = at
			}
			if at.After(md.TimePeriod.End) {
				md.TimePeriod.End = at
			}
		}

		md.ListeningHours[at.Hour()]++
		if wd := at.Weekday(); wd == time.Saturday || wd == time.Sunday {
			weekend++
		}
	}
	if played > 0 {
		md.WeekendShare = float64(weekend) / float64(played)
	}
	return md
}

// genreDistribution counts genres across tracks, most common first and ties
// by name.
func genreDistribution(tracks []clustering.Track) []GenreCount {
	counts := make(map[string]int)
	for _, t := range tracks {
		for _, g := range t.Genres {
			counts[g]++
		}
	}

	out := make([]GenreCount, 0, len(counts))
	for g, n := range counts {
		out = append(out, GenreCount{Genre: g, Count: n})
	}
	slices.SortFunc(out, func(a, b GenreCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Genre, b.Genre)
	})
	return out
}
