package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate keeps the developer's real config and environment out of the test
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))
	t.Setenv(EnvConfigPath, "")
	t.Setenv(EnvDatabasePath, "")
	t.Setenv(EnvDriver, "")
	t.Setenv(EnvLogLevel, "")
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	cfg, path, err := Load()
	require.NoError(t, err)
	assert.Empty(t, path)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoad_EnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv(EnvDatabasePath, "/tmp/words.db")
	t.Setenv(EnvDriver, "sqlite")
	t.Setenv(EnvLogLevel, "debug")

	cfg, _, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/words.db", cfg.Database.Path)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadFromPath(t *testing.T) {
	dir := isolate(t)

	tests := []struct {
		name    string
		yaml    string
		want    DatabaseConfig
		wantErr bool
	}{
		{
			name: "full file",
			yaml: "database:\n  path: /data/vocab.db\n  driver: sqlite\n  lock_timeout: 3s\nlog:\n  level: warn\n  format: json\n",
			want: DatabaseConfig{Path: "/data/vocab.db", Driver: "sqlite", LockTimeout: 3 * time.Second},
		},
		{
			name: "partial file gets defaults",
			yaml: "database:\n  path: mine.db\n",
			want: DatabaseConfig{Path: "mine.db", Driver: DefaultDriver, LockTimeout: DefaultLockTimeout},
		},
		{
			name:    "unknown driver",
			yaml:    "database:\n  driver: postgres\n",
			wantErr: true,
		},
		{
			name:    "unknown log level",
			yaml:    "log:\n  level: loud\n",
			wantErr: true,
		},
		{
			name:    "unknown log format",
			yaml:    "log:\n  format: xml\n",
			wantErr: true,
		},
		{
			name:    "malformed yaml",
			yaml:    "database: [\n",
			wantErr: true,
		},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, "cfg"+string(rune('a'+i))+".yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.yaml), 0644))

			cfg, gotPath, err := LoadFromPath(path)
			if (err != nil) != tt.wantErr {
				t.Errorf("LoadFromPath() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			assert.Equal(t, path, gotPath)
			if !tt.wantErr {
				assert.Equal(t, tt.want, cfg.Database)
			}
		})
	}
}

func TestLoadFromPath_Missing(t *testing.T) {
	dir := isolate(t)
	_, _, err := LoadFromPath(filepath.Join(dir, "nope.yaml"))
	assert.Error(t, err)
}

func TestFindConfigPath(t *testing.T) {
	dir := isolate(t)
	assert.Empty(t, FindConfigPath())

	home := filepath.Join(dir, ".config", ConfigDirName, "config.yaml")
	require.NoError(t, EnsureConfigDir(home))
	require.NoError(t, os.WriteFile(home, []byte("{}\n"), 0644))
	assert.Equal(t, home, FindConfigPath())

	xdg := filepath.Join(dir, "xdg", ConfigDirName, "config.yaml")
	require.NoError(t, EnsureConfigDir(xdg))
	require.NoError(t, os.WriteFile(xdg, []byte("{}\n"), 0644))
	assert.Equal(t, xdg, FindConfigPath())

	require.NoError(t, os.WriteFile(ConfigFileName, []byte("{}\n"), 0644))
	local, err := filepath.Abs(ConfigFileName)
	require.NoError(t, err)
	assert.Equal(t, local, FindConfigPath())

	explicit := filepath.Join(dir, "explicit.yaml")
	require.NoError(t, os.WriteFile(explicit, []byte("{}\n"), 0644))
	t.Setenv(EnvConfigPath, explicit)
	assert.Equal(t, explicit, FindConfigPath())
}

func TestDefaultConfigPath(t *testing.T) {
	dir := isolate(t)
	assert.Equal(t, filepath.Join(dir, "xdg", ConfigDirName, "config.yaml"), DefaultConfigPath())

	t.Setenv("XDG_CONFIG_HOME", "")
	assert.Equal(t, filepath.Join(dir, ".config", ConfigDirName, "config.yaml"), DefaultConfigPath())

	// A file written there is the one Load picks up
	cfg := DefaultConfig()
	cfg.Database.Path = "saved.db"
	require.NoError(t, cfg.Save(DefaultConfigPath()))

	loaded, path, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultConfigPath(), path)
	assert.Equal(t, "saved.db", loaded.Database.Path)
}

func TestConfig_SaveRoundTrip(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "nested", "palabrabox.yaml")

	cfg := DefaultConfig()
	cfg.Database.Path = "words.db"
	cfg.Database.LockTimeout = 1500 * time.Millisecond
	require.NoError(t, cfg.Save(path))

	loaded, _, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestConfig_NewLogger(t *testing.T) {
	var buf bytes.Buffer

	cfg := DefaultConfig()
	cfg.Log.Format = "json"
	cfg.Log.Level = "warn"
	logger := cfg.NewLogger(&buf)

	logger.Info("hidden")
	logger.Warn("shown", "k", "v")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.True(t, strings.HasPrefix(out, "{"), "json handler expected, got %q", out)
	assert.Contains(t, out, `"k":"v"`)
}
