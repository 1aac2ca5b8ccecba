package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaultsForUnsetFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "elemental.toml")
	require.NoError(t, os.WriteFile(path, []byte(`debug = true`), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.True(t, cfg.Debug)
	require.Equal(t, "embedded", cfg.Storage.Driver)
	require.Equal(t, 50, cfg.Engine.DefaultPageSize)
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "elemental.toml")
	contents := `
[storage]
driver = "server"
server_host = "db.internal"
server_port = 3307

[engine]
default_page_size = 10
max_page_size = 100
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "server", cfg.Storage.Driver)
	require.Equal(t, "db.internal", cfg.Storage.ServerHost)
	require.Equal(t, 3307, cfg.Storage.ServerPort)
	require.Equal(t, 10, cfg.Engine.DefaultPageSize)
	require.Equal(t, 100, cfg.Engine.MaxPageSize)
}

func TestLoadRejectsInvalidDriver(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "elemental.toml")
	require.NoError(t, os.WriteFile(path, []byte(`[storage]
driver = "sqlite"
`), 0600))

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadOrDefaultReturnsDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	require.Equal(t, "embedded", cfg.Storage.Driver)
}

func TestLoadRejectsMaxPageSizeBelowDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "elemental.toml")
	contents := `
[engine]
default_page_size = 200
max_page_size = 50
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0600))

	_, err := Load(path)
	require.Error(t, err)
}
