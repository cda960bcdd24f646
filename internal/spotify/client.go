// Package spotify provides a wrapper around the Spotify Web API.
package spotify

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/zmb3/spotify/v2"
	"golang.org/x/oauth2"
)

// Spotify API limits.
const (
	maxTracksPerRequest  = 100
	maxArtistsPerRequest = 50
	maxPageSize          = 50
)

// Client wraps the Spotify API client with convenience methods.
type Client struct {
	api    *spotify.Client
	logger *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger used for fetch progress.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a new Spotify client wrapper.
// The underlying client should already be authenticated.
func New(api *spotify.Client, opts ...Option) *Client {
	c := &Client{api: api, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewFromToken creates a client that sends tok as a bearer token and never
// refreshes it.
func NewFromToken(ctx context.Context, tok *oauth2.Token, opts ...Option) *Client {
	return NewFromHTTPClient(oauth2.NewClient(ctx, oauth2.StaticTokenSource(tok)), opts...)
}

// NewFromHTTPClient creates a client on top of an already authorized HTTP
// client. Rate limited requests are retried.
func NewFromHTTPClient(httpClient *http.Client, opts ...Option) *Client {
	return New(spotify.New(httpClient, spotify.WithRetry(true)), opts...)
}

// NewWithBaseURL creates a client against a custom API root. Tests point it at
// an httptest server.
func NewWithBaseURL(httpClient *http.Client, baseURL string, opts ...Option) *Client {
	return New(spotify.New(httpClient, spotify.WithBaseURL(baseURL)), opts...)
}

// UserID returns the current user's Spotify ID.
func (c *Client) UserID(ctx context.Context) (string, error) {
	user, err := c.api.CurrentUser(ctx)
	if err != nil {
		return "", fmt.Errorf("getting current user: %w", err)
	}
	return user.ID, nil
}

// CurrentUser returns the current user's ID and display name.
func (c *Client) CurrentUser(ctx context.Context) (User, error) {
	user, err := c.api.CurrentUser(ctx)
	if err != nil {
		return User{}, fmt.Errorf("getting current user: %w", err)
	}
	return User{ID: user.ID, DisplayName: user.DisplayName}, nil
}

func toIDs(ids []string) []spotify.ID {
	out := make([]spotify.ID, len(ids))
	for i, id := range ids {
		out[i] = spotify.ID(id)
	}
	return out
}
