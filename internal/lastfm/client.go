package lastfm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	baseURL   = "https://ws.audioscrobbler.com/2.0/"
	userAgent = "spotify-mood-map/1.0"
)

// Error codes from https://www.last.fm/api/errorcodes.
const (
	errCodeInvalidParams = 6
	errCodeInvalidAPIKey = 10
	errCodeRateLimited   = 29
)

var (
	// ErrRateLimited is returned once every retry was rate limited.
	ErrRateLimited = errors.New("rate limit exceeded")

	ErrInvalidAPIKey = errors.New("invalid API key")

	// ErrArtistNotFound is returned when Last.fm does not know the artist.
	ErrArtistNotFound = errors.New("artist not found")

	errServer = errors.New("server error")
)

// Client fetches artist tags. Results are cached for the client's lifetime
// and concurrent lookups of one artist share a request.
type Client struct {
	cfg        Config
	httpClient *http.Client
	baseURL    string
	delays     []time.Duration

	mu       sync.RWMutex
	cache    map[string][]Tag
	inflight singleflight.Group
}

type Option func(*Client)

// WithBaseURL points the client at a different API root.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithRetryDelays sets the waits between attempts. The request is tried
// len(delays)+1 times.
func WithRetryDelays(delays ...time.Duration) Option {
	return func(c *Client) { c.delays = delays }
}

func NewClient(cfg Config, opts ...Option) *Client {
	cfg = cfg.withDefaults()
	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    baseURL,
		delays:     []time.Duration{time.Second, 2 * time.Second, 4 * time.Second},
		cache:      make(map[string][]Tag),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ArtistGenres returns the artist's heaviest tags as lowercase genre names,
// at most MaxTags of them and none lighter than MinTag. The result is never
// nil.
func (c *Client) ArtistGenres(ctx context.Context, artist string) ([]string, error) {
	tags, err := c.ArtistTags(ctx, artist)
	if err != nil {
		return nil, err
	}

	genres := make([]string, 0, c.cfg.MaxTags)
	for _, t := range tags {
		if len(genres) == c.cfg.MaxTags {
			break
		}
		if t.Count < c.cfg.MinTag {
			continue
		}
		name := strings.ToLower(strings.TrimSpace(t.Name))
		if name != "" && !slices.Contains(genres, name) {
			genres = append(genres, name)
		}
	}
	return genres, nil
}

// ArtistTags returns the artist's top tags, heaviest first. Artist names are
// matched case-insensitively.
func (c *Client) ArtistTags(ctx context.Context, artist string) ([]Tag, error) {
	key := strings.ToLower(strings.TrimSpace(artist))

	c.mu.RLock()
	tags, ok := c.cache[key]
	c.mu.RUnlock()
	if ok {
		return tags, nil
	}

	v, err, _ := c.inflight.Do(key, func() (any, error) {
		tags, err := c.fetchTopTags(ctx, artist)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.cache[key] = tags
		c.mu.Unlock()
		return tags, nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetching tags for %q: %w", artist, err)
	}
	return v.([]Tag), nil
}

func (c *Client) fetchTopTags(ctx context.Context, artist string) ([]Tag, error) {
	query := url.Values{}
	query.Set("method", "artist.getTopTags")
	query.Set("artist", artist)
	query.Set("autocorrect", "1")
	query.Set("format", "json")
	query.Set("api_key", c.cfg.APIKey)

	var env topTagsEnvelope
	if err := c.get(ctx, query, &env); err != nil {
		return nil, err
	}
	if env.TopTags.Tag == nil {
		return []Tag{}, nil
	}
	return env.TopTags.Tag, nil
}

// get calls the API, retrying rate limits and server errors after each of
// c.delays.
func (c *Client) get(ctx context.Context, query url.Values, out *topTagsEnvelope) error {
	endpoint := c.baseURL + "?" + query.Encode()

	err := c.attempt(ctx, endpoint, out)
	for _, wait := range c.delays {
		if !errors.Is(err, ErrRateLimited) && !errors.Is(err, errServer) {
			return err
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		*out = topTagsEnvelope{}
		err = c.attempt(ctx, endpoint, out)
	}
	return err
}

func (c *Client) attempt(ctx context.Context, endpoint string, out *topTagsEnvelope) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%w: %s", errServer, resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	switch out.Error {
	case 0:
		return nil
	case errCodeRateLimited:
		return ErrRateLimited
	case errCodeInvalidAPIKey:
		return ErrInvalidAPIKey
	case errCodeInvalidParams:
		return ErrArtistNotFound
	default:
		return fmt.Errorf("last.fm error %d: %s", out.Error, out.Message)
	}
}
