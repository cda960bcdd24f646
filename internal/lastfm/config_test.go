package lastfm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr error
	}{
		{"valid API key", Config{APIKey: "abc123def456abc123def456abc12345"}, nil},
		{"missing API key", Config{}, ErrMissingAPIKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.cfg.Validate(), tt.wantErr)
		})
	}
}

func TestConfigValidateTagWeight(t *testing.T) {
	assert.Error(t, Config{APIKey: "k", MinTag: 101}.Validate())
	assert.NoError(t, Config{APIKey: "k", MinTag: 100}.Validate())
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{APIKey: "k", MaxTags: 5}.withDefaults()

	assert.Equal(t, 5, cfg.MaxTags)
	assert.Equal(t, defaultMinTag, cfg.MinTag)
	assert.Equal(t, defaultTimeout, cfg.Timeout)
}
