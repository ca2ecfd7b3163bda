package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "liquidation.db", cfg.Database.Path)
	assert.Equal(t, "local-api-key", cfg.Auth.APIKey)
	assert.Equal(t, "local-api-secret", cfg.Auth.APISecret)
	assert.True(t, cfg.Sweep.Enabled)
	assert.Equal(t, 5*time.Minute, cfg.Sweep.Interval)
}

func TestLoadParsesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: "9090"
database:
  path: /var/lib/liquidation.db
auth:
  jwt_secret: file-secret
sweep:
  enabled: true
  interval: 30s
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "/var/lib/liquidation.db", cfg.Database.Path)
	assert.Equal(t, "file-secret", cfg.Auth.JWTSecret)
	assert.Equal(t, 30*time.Second, cfg.Sweep.Interval)
}

func TestEnvOverridesBeatFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: \"9090\"\n"), 0o644))

	t.Setenv("PORT", "7070")
	t.Setenv("JWT_SECRET", "env-secret")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "7070", cfg.Server.Port)
	assert.Equal(t, "env-secret", cfg.Auth.JWTSecret)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("auth:\n  jwt_secret: \"\"\n"), 0o644))

	// The file clears a required field and no env override restores it
	t.Setenv("JWT_SECRET", "")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jwt_secret")
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not a mapping"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}
