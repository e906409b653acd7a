package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"PORT", "UPSTREAM_API_URL", "UPSTREAM_TIMEOUT", "LIVE_FEED_BACKEND", "CORS_ORIGINS", "RATE_LIMIT_REQUESTS"} {
		t.Setenv(k, "")
	}

	cfg := Load()

	assert.Equal(t, "3000", cfg.ServerPort)
	assert.Equal(t, "http://localhost:8000/api", cfg.UpstreamURL)
	assert.Equal(t, time.Duration(0), cfg.UpstreamTimeout)
	assert.Equal(t, "none", cfg.LiveFeedBackend)
	assert.Equal(t, []string{"http://localhost:5173"}, cfg.CORSOrigins)
	assert.Equal(t, 30, cfg.RateLimitRequests)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "8088")
	t.Setenv("UPSTREAM_API_URL", "http://django:8000/api")
	t.Setenv("UPSTREAM_TIMEOUT", "90s")
	t.Setenv("LIVE_FEED_BACKEND", "Hasura")
	t.Setenv("CORS_ORIGINS", "https://regbot.app, https://staging.regbot.app,")
	t.Setenv("RATE_LIMIT_REQUESTS", "not-a-number")
	t.Setenv("TRACING_ENABLED", "true")
	t.Setenv("ENV", "development")

	cfg := Load()

	assert.Equal(t, "8088", cfg.ServerPort)
	assert.Equal(t, "http://django:8000/api", cfg.UpstreamURL)
	assert.Equal(t, 90*time.Second, cfg.UpstreamTimeout)
	assert.Equal(t, "hasura", cfg.LiveFeedBackend)
	assert.Equal(t, []string{"https://regbot.app", "https://staging.regbot.app"}, cfg.CORSOrigins)
	assert.Equal(t, 30, cfg.RateLimitRequests)
	assert.True(t, cfg.TracingEnabled)
	assert.True(t, cfg.Development())
}
