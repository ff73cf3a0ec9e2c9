package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("MEDIA_LEASE_TIMEOUT", "")
	t.Setenv("MEDIA_CONCURRENCY", "")

	cfg := LoadConfig()

	assert.Equal(t, 15*time.Minute, cfg.Media.LeaseTimeout)
	assert.Equal(t, 12, cfg.Media.Concurrency)
	assert.Equal(t, 5, cfg.Media.MaxAttempts)
	assert.Equal(t, "ffmpeg", cfg.Media.FFmpegBinary)
	assert.Equal(t, 30*time.Second, cfg.TokenExpirySkew)
	assert.Equal(t, "https://api.x.com/2/oauth2/token", cfg.Twitter.TokenURL)
}

func TestGetEnvDuration(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  time.Duration
	}{
		{name: "bare seconds", value: "900", want: 900 * time.Second},
		{name: "duration string", value: "2m30s", want: 150 * time.Second},
		{name: "garbage falls back", value: "soon", want: time.Minute},
		{name: "negative falls back", value: "-5", want: time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_DURATION", tt.value)
			assert.Equal(t, tt.want, getEnvDuration("TEST_DURATION", time.Minute))
		})
	}
}

func TestGetEnvInt(t *testing.T) {
	t.Setenv("TEST_INT", "7")
	assert.Equal(t, 7, getEnvInt("TEST_INT", 1))

	t.Setenv("TEST_INT", "zero")
	assert.Equal(t, 1, getEnvInt("TEST_INT", 1))
}
