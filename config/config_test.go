package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadFromFileAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, SaveToFile(&Config{}, path))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	require.Equal(t, "development", cfg.Environment)
	require.Equal(t, "memory", cfg.Storage.Backend)
	require.Equal(t, 8, cfg.Router.DefaultTTL)
	require.Equal(t, "127.0.0.1:7780", cfg.Control.HTTPAddr)
	require.Equal(t, "info", cfg.Logging.Level)
	require.True(t, cfg.Health.Enabled)
}

func TestLoadFromFileRoundTripsExplicitValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	want := &Config{
		Environment: "production",
		Storage:     &StorageConfig{Backend: "postgres", PostgresDSN: "host=db"},
		Control:     &ControlConfig{HTTPAddr: "0.0.0.0:9000"},
	}
	require.NoError(t, SaveToFile(want, path))

	got, err := LoadFromFile(path)
	require.NoError(t, err)
	require.Equal(t, "production", got.Environment)
	require.Equal(t, "postgres", got.Storage.Backend)
	require.Equal(t, "host=db", got.Storage.PostgresDSN)
	require.Equal(t, "0.0.0.0:9000", got.Control.HTTPAddr)
}

func TestLoadFromFileMissingFileErrors(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestSubstituteEnvVars(t *testing.T) {
	t.Setenv("NODECORE_TEST_VAR", "resolved")
	require.Equal(t, "resolved", SubstituteEnvVars("${NODECORE_TEST_VAR}"))
	require.Equal(t, "fallback", SubstituteEnvVars("${NODECORE_TEST_VAR_UNSET:fallback}"))
}

func TestSaveToFileJSONExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, SaveToFile(&Config{Environment: "staging"}, path))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	require.Equal(t, "staging", cfg.Environment)
}
