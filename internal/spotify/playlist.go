package spotify

import (
	"context"
	"fmt"
	"slices"
	"unicode/utf8"

	"github.com/zmb3/spotify/v2"
)

// maxDescriptionLength is the longest playlist description Spotify accepts,
// in characters.
const maxDescriptionLength = 300

// UserPlaylists lists the current user's playlists.
func (c *Client) UserPlaylists(ctx context.Context, limit int) ([]PlaylistInfo, error) {
	page, err := c.api.CurrentUsersPlaylists(ctx, spotify.Limit(min(limit, maxPageSize)))
	if err != nil {
		return nil, fmt.Errorf("fetching playlists: %w", err)
	}

	out := make([]PlaylistInfo, len(page.Playlists))
	for i, p := range page.Playlists {
		out[i] = PlaylistInfo{
			ID:     p.ID.String(),
			Name:   p.Name,
			Owner:  p.Owner.DisplayName,
			Tracks: int(p.Tracks.Total),
		}
	}
	return out, nil
}

// CreatePlaylist creates a playlist owned by the current user and returns its
// ID. Over-long descriptions are cut to what Spotify accepts.
func (c *Client) CreatePlaylist(ctx context.Context, name, description string, public bool) (string, error) {
	owner, err := c.UserID(ctx)
	if err != nil {
		return "", err
	}

	if utf8.RuneCountInString(description) > maxDescriptionLength {
		description = string([]rune(description)[:maxDescriptionLength])
	}

	created, err := c.api.CreatePlaylistForUser(ctx, owner, name, description, public, false)
	if err != nil {
		return "", fmt.Errorf("creating playlist %q: %w", name, err)
	}
	c.logger.Debug("created playlist", "playlist", created.ID, "name", name)
	return created.ID.String(), nil
}

// AddTracksToPlaylist appends tracks in request-sized chunks. Repeated IDs
// are added once, keeping first-seen order.
func (c *Client) AddTracksToPlaylist(ctx context.Context, playlistID string, trackIDs []string) error {
	seen := make(map[string]struct{}, len(trackIDs))
	unique := trackIDs[:0:0]
	for _, id := range trackIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}

	added := 0
	for chunk := range slices.Chunk(toIDs(unique), maxTracksPerRequest) {
		if _, err := c.api.AddTracksToPlaylist(ctx, spotify.ID(playlistID), chunk...); err != nil {
			return fmt.Errorf("adding tracks %d-%d to %s: %w", added+1, added+len(chunk), playlistID, err)
		}
		added += len(chunk)
	}
	return nil
}
