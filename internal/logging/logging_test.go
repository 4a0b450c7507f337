package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/zpdzap/aoe/internal/config"
)

func TestNewWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aoe.log")
	log, closeLog, err := New(config.Log{Level: "debug", Format: "json", File: path})
	require.NoError(t, err)

	log.Debug("container created", zap.String("name", "aoe-sandbox-1234abcd"))
	require.NoError(t, log.Sync())
	require.NoError(t, closeLog())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"container created"`)
	assert.Contains(t, string(data), `"name":"aoe-sandbox-1234abcd"`)
}

func TestNewFiltersByLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aoe.log")
	log, closeLog, err := New(config.Log{Level: "warn", Format: "json", File: path})
	require.NoError(t, err)
	defer closeLog()

	log.Info("ignored")
	log.Warn("kept")
	require.NoError(t, log.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "ignored")
	assert.Contains(t, string(data), "kept")
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, _, err := New(config.Log{Level: "loud"})
	assert.Error(t, err)
}
