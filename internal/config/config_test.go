package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdir switches to dir for the duration of the test.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"PG_DATABASE_URL", "CCSYNC_DATABASE_URL", "CCSYNC_DEFINITIONS_DIR", "CCSYNC_DEFAULT_MODEL"} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
	t.Setenv("HOME", t.TempDir())
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	chdir(t, t.TempDir())

	cfg, err := Load(New(), "")
	require.NoError(t, err)
	assert.Equal(t, "definitions", cfg.DefinitionsDir)
	assert.Equal(t, "gpt-4", cfg.DefaultModel)
	assert.Empty(t, cfg.DatabaseURL)
	assert.Empty(t, cfg.Source)

	err = cfg.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConfiguration))
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, KeyDatabaseURL, cfgErr.Key)
}

func TestLoadEnvFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	chdir(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, EnvFile),
		[]byte("PG_DATABASE_URL=postgres://u:p@localhost/ccrm\nCCSYNC_DEFAULT_MODEL=gpt-4o\n"), 0o644))

	cfg, err := Load(New(), "")
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:p@localhost/ccrm", cfg.DatabaseURL)
	assert.Equal(t, "gpt-4o", cfg.DefaultModel)
	assert.NoError(t, cfg.Validate())
}

func TestEnvironmentOverridesFiles(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	chdir(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, EnvFile),
		[]byte("PG_DATABASE_URL=postgres://from-file/db\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ccsync.yaml"),
		[]byte("database_url: sqlite://from-yaml.db\ndefinitions_dir: defs\n"), 0o644))

	cfg, err := Load(New(), "")
	require.NoError(t, err)
	assert.Equal(t, "sqlite://from-yaml.db", cfg.DatabaseURL)
	assert.Equal(t, "defs", cfg.DefinitionsDir)
	assert.Equal(t, "ccsync.yaml", filepath.Base(cfg.Source))

	t.Setenv("PG_DATABASE_URL", "postgres://from-env/db")
	cfg, err = Load(New(), "")
	require.NoError(t, err)
	assert.Equal(t, "postgres://from-env/db", cfg.DatabaseURL)
}

func TestExplicitConfigFileMustExist(t *testing.T) {
	clearEnv(t)
	chdir(t, t.TempDir())

	_, err := Load(New(), "missing.yaml")
	assert.Error(t, err)
}
