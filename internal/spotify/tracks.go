package spotify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/zmb3/spotify/v2"

	"github.com/justestif/go-spotify-mood-map/internal/clustering"
)

// RecentlyPlayed returns the user's most recent plays, newest first.
// Spotify caps limit at 50.
func (c *Client) RecentlyPlayed(ctx context.Context, limit int) ([]clustering.Track, error) {
	items, err := c.api.PlayerRecentlyPlayedOpt(ctx, &spotify.RecentlyPlayedOptions{
		Limit: spotify.Numeric(min(limit, maxPageSize)),
	})
	if err != nil {
		return nil, fmt.Errorf("fetching recently played: %w", err)
	}

	tracks := make([]clustering.Track, 0, len(items))
	for _, item := range items {
		tracks = append(tracks, convertPlayed(item))
	}

	c.logger.Debug("fetched recently played", "tracks", len(tracks))
	return tracks, nil
}

// TopTracks returns the user's top tracks for the given time range.
func (c *Client) TopTracks(ctx context.Context, limit int, timeRange TimeRange) ([]clustering.Track, error) {
	page, err := c.api.CurrentUsersTopTracks(ctx,
		spotify.Limit(min(limit, maxPageSize)),
		spotify.Timerange(timeRange),
	)
	if err != nil {
		return nil, fmt.Errorf("fetching top tracks: %w", err)
	}

	tracks := make([]clustering.Track, 0, len(page.Tracks))
	for _, ft := range page.Tracks {
		tracks = append(tracks, convertFullTrack(ft))
	}

	c.logger.Debug("fetched top tracks", "tracks", len(tracks), "range", timeRange)
	return tracks, nil
}

// PlaylistTracks retrieves every track of a playlist, following pagination.
// Episodes and unavailable items are skipped.
func (c *Client) PlaylistTracks(ctx context.Context, playlistID string) ([]clustering.Track, error) {
	page, err := c.api.GetPlaylistItems(ctx, spotify.ID(playlistID))
	if err != nil {
		return nil, fmt.Errorf("fetching playlist items: %w", err)
	}

	var tracks []clustering.Track
	for {
		for _, item := range page.Items {
			if item.Track.Track == nil || item.Track.Track.ID == "" {
				continue
			}
			tracks = append(tracks, convertFullTrack(*item.Track.Track))
		}

		c.logger.Debug("fetched playlist page", "playlist", playlistID, "tracks", len(tracks))

		err = c.api.NextPage(ctx, page)
		if errors.Is(err, spotify.ErrNoMorePages) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("fetching next page: %w", err)
		}
	}

	return tracks, nil
}

// convertPlayed converts a listening history item to clustering.Track.
// Simple tracks carry no popularity or album.
func convertPlayed(item spotify.RecentlyPlayedItem) clustering.Track {
	t := convertSimpleTrack(item.Track)
	if !item.PlayedAt.IsZero() {
		playedAt := item.PlayedAt.UTC()
		t.PlayedAt = &playedAt
	}
	return t
}

func convertSimpleTrack(st spotify.SimpleTrack) clustering.Track {
	name, artistID := joinArtists(st.Artists)
	duration := int(st.Duration)
	return clustering.Track{
		ID:         st.ID.String(),
		Name:       st.Name,
		Artist:     name,
		ArtistID:   artistID,
		DurationMs: &duration,
	}
}

// convertFullTrack converts a Spotify FullTrack to clustering.Track.
func convertFullTrack(ft spotify.FullTrack) clustering.Track {
	t := convertSimpleTrack(ft.SimpleTrack)
	t.Album = ft.Album.Name
	popularity := int(ft.Popularity)
	t.Popularity = &popularity
	return t
}

// joinArtists joins artist names with ", " and returns the primary artist's ID.
func joinArtists(artists []spotify.SimpleArtist) (string, string) {
	names := make([]string, len(artists))
	for i, a := range artists {
		names[i] = a.Name
	}
	var primary string
	if len(artists) > 0 {
		primary = artists[0].ID.String()
	}
	return strings.Join(names, ", "), primary
}
