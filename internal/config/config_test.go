package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "openai", cfg.Backend.Provider)
	assert.Equal(t, "gpt-4o-mini", cfg.Backend.Model)
	assert.Equal(t, "sk-test", cfg.Backend.APIKey)
	assert.Equal(t, "DEFAULT", cfg.DefaultCharacter)
	assert.Equal(t, 60*time.Second, cfg.Backend.Timeout)
	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins())
	assert.Equal(t, []string{"Authorization", "Content-Type"}, cfg.CORS.AllowedHeaders)
	assert.Equal(t, 10*time.Minute, cfg.CORS.MaxAge)
}

func TestLoadCORSSettings(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("FRONTEND_URL", "https://game.example/")
	t.Setenv("CORS_ALLOWED_HEADERS", " Authorization , X-Request-Id,,")
	t.Setenv("CORS_MAX_AGE", "90s")

	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.IsDevelopment())
	assert.Equal(t, []string{"https://game.example"}, cfg.AllowedOrigins())
	assert.Equal(t, []string{"Authorization", "X-Request-Id"}, cfg.CORS.AllowedHeaders)
	assert.Equal(t, 90*time.Second, cfg.CORS.MaxAge)
}

func TestLoadProviderSpecificKey(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("BACKEND_PROVIDER", "Gemini")
	t.Setenv("GEMINI_API_KEY", "g-key")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "gemini", cfg.Backend.Provider)
	assert.Equal(t, "g-key", cfg.Backend.APIKey)
	assert.Equal(t, "gemini-2.0-flash", cfg.Backend.Model)
}

func TestLoadRejectsMissingSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
}

func TestLoadRejectsUnknownProvider(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("BACKEND_PROVIDER", "mystery")
	t.Setenv("BACKEND_API_KEY", "k")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mystery")
}

func TestGetEnvDurationAcceptsMilliseconds(t *testing.T) {
	t.Setenv("X_DURATION", "1500")
	assert.Equal(t, 1500*time.Millisecond, getEnvDuration("X_DURATION", time.Second))

	t.Setenv("X_DURATION", "2m")
	assert.Equal(t, 2*time.Minute, getEnvDuration("X_DURATION", time.Second))

	t.Setenv("X_DURATION", "soon")
	assert.Equal(t, time.Second, getEnvDuration("X_DURATION", time.Second))
}

func TestLoadClientDefaults(t *testing.T) {
	cfg, err := LoadClient()
	require.NoError(t, err)
	assert.Equal(t, 15*time.Second, cfg.RequestTimeout)
	assert.Equal(t, time.Second, cfg.ReconnectBackoff)
	assert.Equal(t, 0, cfg.MaxReconnects)
}

func TestLoadClientRejectsBadScheme(t *testing.T) {
	t.Setenv("CHAT_SERVER_URL", "ftp://example.com")
	_, err := LoadClient()
	require.Error(t, err)
}
