package log

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/observe-l/tvcsa/internal/config"
)

func TestLogLevelPrecedence(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	assert.Equal(t, logrus.WarnLevel, getLogLevel("warn"))
	assert.Equal(t, logrus.InfoLevel, getLogLevel("bogus"))
	t.Setenv("LOG_LEVEL", "debug")
	assert.Equal(t, logrus.DebugLevel, getLogLevel("warn"))
}

func TestNewLoggerWritesJSONFile(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	path := filepath.Join(t.TempDir(), "tvcsa.log")
	log, err := NewLogger(config.LogConfig{Level: "info", JSON: true, File: path}, "1.2.3")
	require.NoError(t, err)
	log.WithField("subsystem", "csa").Info("Using 64bit parallel descrambling")
	log.Debug("hidden")

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"version":"1.2.3"`)
	assert.Contains(t, string(b), `"subsystem":"csa"`)
	assert.NotContains(t, string(b), "hidden")
}
