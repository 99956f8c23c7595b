package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "readfluent.log")
	log, closer, err := New(Options{Level: "debug", Path: path})
	require.NoError(t, err)
	capture := Component(log, "capture")
	capture.Debug().Str("phase", "listening").Msg("started")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	line := string(data)
	assert.True(t, strings.Contains(line, `"component":"capture"`))
	assert.True(t, strings.Contains(line, `"phase":"listening"`))
}

func TestNewFallsBackToInfo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "readfluent.log")
	log, closer, err := New(Options{Level: "loud", Path: path})
	require.NoError(t, err)
	defer func() { _ = closer.Close() }()
	assert.Equal(t, zerolog.InfoLevel, log.GetLevel())
}
