// Package auth provides Spotify OAuth2 authentication for the web server and
// the command line, with on-disk token caching for the latter.
package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"golang.org/x/oauth2"
)

// cachedToken is the on-disk layout. Scopes records what the token was
// granted for so that adding a scope forces a new sign-in.
type cachedToken struct {
	Token   *oauth2.Token `json:"token"`
	Scopes  []string      `json:"scopes"`
	SavedAt time.Time     `json:"saved_at"`
}

// TokenCache stores the command-line OAuth token in a single JSON file.
type TokenCache struct {
	path string
}

// DefaultTokenCache places the cache under the user config directory,
// e.g. ~/.config/spotify-mood-map/token.json.
func DefaultTokenCache() (*TokenCache, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("locating config directory: %w", err)
	}
	return NewTokenCache(filepath.Join(base, "spotify-mood-map", "token.json")), nil
}

func NewTokenCache(path string) *TokenCache {
	return &TokenCache{path: path}
}

func (c *TokenCache) Path() string { return c.path }

// Load returns the cached token. A missing file, an empty entry, or a token
// granted for fewer scopes than Scopes all yield (nil, nil).
func (c *TokenCache) Load() (*oauth2.Token, error) {
	raw, err := os.ReadFile(c.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading token cache: %w", err)
	}

	var entry cachedToken
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("decoding token cache %s: %w", c.path, err)
	}

	tok := entry.Token
	if tok == nil || (tok.AccessToken == "" && tok.RefreshToken == "") {
		return nil, nil
	}
	for _, s := range Scopes {
		if !slices.Contains(entry.Scopes, s) {
			return nil, nil
		}
	}
	return tok, nil
}

// Save replaces the cache file with token. The write goes through a temp
// file in the same directory followed by a rename.
func (c *TokenCache) Save(token *oauth2.Token) error {
	if token == nil {
		return errors.New("saving token: token is nil")
	}

	raw, err := json.MarshalIndent(cachedToken{
		Token:   token,
		Scopes:  Scopes,
		SavedAt: time.Now().UTC(),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding token: %w", err)
	}

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}

	f, err := os.CreateTemp(dir, ".token-*")
	if err != nil {
		return fmt.Errorf("saving token: %w", err)
	}
	tmp := f.Name()
	defer os.Remove(tmp)

	_, werr := f.Write(raw)
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		return fmt.Errorf("saving token: %w", werr)
	}
	return os.Rename(tmp, c.path)
}

// Delete removes the cache file. A missing file is not an error.
func (c *TokenCache) Delete() error {
	if err := os.Remove(c.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing token cache: %w", err)
	}
	return nil
}
