package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("CAPTURE_TIMEOUT", "")
	t.Setenv("CORS_ALLOW_ORIGINS", "")
	t.Setenv("SESSION_IDLE_TIMEOUT", "")
	t.Setenv("CAPTURE_WEBHOOK_SECRET", "")

	cfg := Load()
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 5*time.Minute, cfg.CaptureTimeout)
	assert.Equal(t, 30*time.Minute, cfg.SessionIdle)
	assert.Empty(t, cfg.WebhookSecret)
	assert.Equal(t, []string{"*"}, cfg.CORSAllowOrigins)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("PERSIST_DEBOUNCE", "1s")
	t.Setenv("CAPTURE_TIMEOUT", "bogus")
	t.Setenv("CORS_ALLOW_ORIGINS", "http://a.test, ,http://b.test")
	t.Setenv("BLUEPRINT_DB_HOST", "db")
	t.Setenv("BLUEPRINT_DB_SCHEMA", "shop")
	t.Setenv("SESSION_IDLE_TIMEOUT", "90s")
	t.Setenv("CAPTURE_WEBHOOK_SECRET", "whsec")

	cfg := Load()
	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, time.Second, cfg.PersistDebounce)
	assert.Equal(t, 5*time.Minute, cfg.CaptureTimeout)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORSAllowOrigins)
	assert.Contains(t, cfg.DB.DSN(), "@db:")
	assert.Contains(t, cfg.DB.DSN(), "search_path=shop")
	assert.Equal(t, 90*time.Second, cfg.SessionIdle)
	assert.Equal(t, "whsec", cfg.WebhookSecret)
}
