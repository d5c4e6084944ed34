package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoader(t *testing.T) {
	loader := NewLoader("/path/to/config.json")
	assert.Equal(t, "/path/to/config.json", loader.GetConfigPath())
}

func TestLoaderLoad(t *testing.T) {
	t.Run("defaults when file doesn't exist", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "nonexistent.json")

		cfg, err := NewLoader(configPath).Load()

		require.NoError(t, err)
		assert.Equal(t, DefaultEndpoint, cfg.Upload.Endpoint)
		assert.Equal(t, DefaultMaxStoredSessions, cfg.Sessions.MaxStored)
		assert.Equal(t, DefaultSchedule, cfg.Upload.Schedule)
	})

	t.Run("config from file keeps unset defaults", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.json")
		testConfig := `{
			"app_key": "abc-123",
			"upload": {
				"endpoint": "https://collector.example/api",
				"coalesce": true
			},
			"sessions": {"max_stored": 3}
		}`
		require.NoError(t, os.WriteFile(configPath, []byte(testConfig), 0644))

		cfg, err := NewLoader(configPath).Load()

		require.NoError(t, err)
		assert.Equal(t, "abc-123", cfg.AppKey)
		assert.Equal(t, "https://collector.example/api", cfg.Upload.Endpoint)
		assert.True(t, cfg.Upload.Coalesce)
		assert.Equal(t, 60, cfg.Upload.Timeout)
		assert.Equal(t, 3, cfg.Sessions.MaxStored)
	})

	t.Run("environment overrides", func(t *testing.T) {
		t.Setenv("TALLY_APP_KEY", "from-env")
		t.Setenv("TALLY_UPLOAD_TIMEOUT", "5")

		cfg, err := NewLoader(filepath.Join(t.TempDir(), "missing.json")).Load()

		require.NoError(t, err)
		assert.Equal(t, "from-env", cfg.AppKey)
		assert.Equal(t, 5, cfg.Upload.Timeout)
	})

	t.Run("invalid JSON", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "invalid.json")
		require.NoError(t, os.WriteFile(configPath, []byte("invalid json"), 0644))

		_, err := NewLoader(configPath).Load()
		assert.Error(t, err)
	})
}

func TestLoaderSaveRoundTrip(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "nested", "tally.json")
	loader := NewLoader(configPath)

	cfg := DefaultConfig()
	cfg.AppKey = "saved-key"
	cfg.Upload.Endpoint = "https://collector.example/api"
	cfg.Sessions.MaxStored = 4

	require.NoError(t, loader.Save(cfg))

	info, err := os.Stat(configPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, "saved-key", loaded.AppKey)
	assert.Equal(t, "https://collector.example/api", loaded.Upload.Endpoint)
	assert.Equal(t, 4, loaded.Sessions.MaxStored)
}
