package spotify

import (
	"context"
	"fmt"
	"slices"
)

// ArtistGenres retrieves the genres Spotify assigns to each artist, keyed by
// artist ID. Artists Spotify has no genres for map to an empty slice.
// Batches requests to max 50 artists per request per Spotify API limits.
func (c *Client) ArtistGenres(ctx context.Context, artistIDs []string) (map[string][]string, error) {
	out := make(map[string][]string, len(artistIDs))

	unique := slices.Compact(slices.Sorted(slices.Values(artistIDs)))
	unique = slices.DeleteFunc(unique, func(id string) bool { return id == "" })

	for batch := range slices.Chunk(toIDs(unique), maxArtistsPerRequest) {
		artists, err := c.api.GetArtists(ctx, batch...)
		if err != nil {
			return nil, fmt.Errorf("fetching artists: %w", err)
		}
		for _, a := range artists {
			if a == nil {
				continue
			}
			genres := a.Genres
			if genres == nil {
				genres = []string{}
			}
			out[a.ID.String()] = genres
		}
	}

	c.logger.Debug("fetched artist genres", "artists", len(out))
	return out, nil
}
