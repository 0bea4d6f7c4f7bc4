package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("GIN_MODE", "release")
	t.Setenv("JWT_SECRET", "secret")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8083", cfg.Port)
	assert.Equal(t, BackendPostgres, cfg.StoreBackend)
	assert.Equal(t, AuthJWT, cfg.AuthMode)
	assert.Equal(t, 30*time.Second, cfg.FeedResyncInterval)
	assert.Equal(t, 30*time.Minute, cfg.RegistryIdleTTL)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.False(t, cfg.NeedsFirebase())
}

func TestLoadPrefixedOverrides(t *testing.T) {
	t.Setenv("GIN_MODE", "release")
	t.Setenv("INBOX_STORE_BACKEND", "Firestore")
	t.Setenv("INBOX_AUTH_MODE", "firebase")
	t.Setenv("INBOX_ALLOWED_ORIGINS", "https://app.example,https://admin.example")
	t.Setenv("INBOX_FEED_RESYNC_INTERVAL", "5s")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, BackendFirestore, cfg.StoreBackend)
	assert.True(t, cfg.NeedsFirebase())
	assert.Equal(t, []string{"https://app.example", "https://admin.example"}, cfg.AllowedOrigins)
	assert.Equal(t, 5*time.Second, cfg.FeedResyncInterval)
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Setenv("GIN_MODE", "release")

	t.Setenv("INBOX_AUTH_MODE", "jwt")
	t.Setenv("INBOX_JWT_SECRET", "")
	t.Setenv("JWT_SECRET", "")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("INBOX_JWT_SECRET", "s")
	t.Setenv("INBOX_STORE_BACKEND", "mysql")
	_, err = Load()
	assert.Error(t, err)
}
