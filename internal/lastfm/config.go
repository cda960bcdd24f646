// Package lastfm looks up artist genres from Last.fm top tags.
package lastfm

import (
	"errors"
	"fmt"
	"time"
)

var ErrMissingAPIKey = errors.New("missing Last.fm API key")

const (
	defaultMaxTags = 3
	defaultMinTag  = 10
	defaultTimeout = 10 * time.Second
)

// Config holds Last.fm API settings. Zero values take the defaults above.
type Config struct {
	APIKey string
	// MaxTags caps the genres kept per artist.
	MaxTags int
	// MinTag drops tags whose relative weight (0-100) is below it.
	MinTag  int
	Timeout time.Duration
}

func (c Config) Validate() error {
	if c.APIKey == "" {
		return ErrMissingAPIKey
	}
	if c.MinTag > 100 {
		return fmt.Errorf("minimum tag weight %d exceeds 100", c.MinTag)
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.MaxTags <= 0 {
		c.MaxTags = defaultMaxTags
	}
	if c.MinTag <= 0 {
		c.MinTag = defaultMinTag
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	return c
}
