package spotify

import "github.com/zmb3/spotify/v2"

// User identifies the authenticated Spotify account.
type User struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// PlaylistInfo is a playlist as listed in the user's library.
type PlaylistInfo struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Owner  string `json:"owner,omitempty"`
	Tracks int    `json:"tracks"`
}

// TimeRange selects the affinity window for top tracks.
type TimeRange = spotify.Range

// Top track time ranges.
const (
	ShortTerm  TimeRange = spotify.ShortTermRange
	MediumTerm TimeRange = spotify.MediumTermRange
	LongTerm   TimeRange = spotify.LongTermRange
)
