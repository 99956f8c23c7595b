package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	assert.Nil(t, cfg.Practice.TestMode)

	_, err = LoadConfig("")
	require.Error(t, err)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[practice]
test-mode = true
duration = "45s"

[simulation]
wpm = 55
kind = "improving"

[capture]
engine = "script"
max-restarts = 5

[log]
level = "debug"
`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.NotNil(t, cfg.Practice.TestMode)
	assert.True(t, *cfg.Practice.TestMode)
	require.NotNil(t, cfg.Practice.Duration)
	assert.Equal(t, 45*time.Second, cfg.Practice.Duration.Duration)
	assert.Equal(t, 55, *cfg.Simulation.WPM)
	assert.Nil(t, cfg.Simulation.ErrorRate)
	assert.Equal(t, "script", *cfg.Capture.Engine)
	assert.Equal(t, 5, *cfg.Capture.MaxRestarts)
	assert.Equal(t, "debug", *cfg.Log.Level)
	assert.Nil(t, cfg.Metrics.Textfile)
}

func TestLoadConfigRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[practice]\nwords = 30\n"), 0o644))
	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "practice.words")
}

func TestLoadConfigBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[practice]\nduration = \"soon\"\n"), 0o644))
	_, err := LoadConfig(path)
	require.Error(t, err)
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("DEEPGRAM_API_KEY", "secret")
	t.Setenv("READFLUENT_DB", "/tmp/x.db")
	t.Setenv("READFLUENT_LOG_LEVEL", "warn")
	e, err := LoadEnv()
	require.NoError(t, err)
	assert.Equal(t, "secret", e.DeepgramAPIKey)
	assert.Equal(t, "/tmp/x.db", e.DBPath)
	assert.Equal(t, "warn", e.LogLevel)
	assert.Empty(t, e.LogFile)
}

func TestXDGPaths(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/cfg")
	t.Setenv("XDG_DATA_HOME", "/data")
	t.Setenv("XDG_STATE_HOME", "/state")
	assert.Equal(t, filepath.Join("/cfg", "readfluent", "config.toml"), DefaultConfigPath())
	assert.Equal(t, filepath.Join("/cfg", "readfluent", "microphone.toml"), DefaultConsentPath())
	assert.Equal(t, filepath.Join("/data", "readfluent", "readfluent.db"), DefaultDBPath())
	assert.Equal(t, filepath.Join("/state", "readfluent", "readfluent.log"), DefaultLogPath())
}
