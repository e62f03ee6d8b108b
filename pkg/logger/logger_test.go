package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dreambot-go/internal/config"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerLevelAndFormat(t *testing.T) {
	log, err := NewLogger(&config.LoggingConfig{Level: "debug", Format: "json", Output: "stdout"})
	require.NoError(t, err)

	assert.Equal(t, logrus.DebugLevel, log.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, log.Formatter)
}

func TestNewLoggerRejectsUnknownLevel(t *testing.T) {
	_, err := NewLogger(&config.LoggingConfig{Level: "chatty"})
	assert.Error(t, err)
}

func TestNewLoggerFileOutputCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "logs")
	log, err := NewLogger(&config.LoggingConfig{
		Level:  "info",
		Output: "file",
		File:   config.FileConfig{Path: filepath.Join(dir, "bot.log"), MaxSize: 1},
	})
	require.NoError(t, err)
	assert.DirExists(t, dir)
	assert.NotNil(t, log.Out)
}

func TestWithUser(t *testing.T) {
	log, hook := test.NewNullLogger()
	WithUser(log, "42", "7").Info("hello")

	require.Len(t, hook.Entries, 1)
	assert.Equal(t, "42", hook.LastEntry().Data["user_id"])
	assert.Equal(t, "7", hook.LastEntry().Data["channel_id"])
}

func TestNewLoggerStderrOutput(t *testing.T) {
	log, err := NewLogger(&config.LoggingConfig{Level: "error", Output: "stderr"})
	require.NoError(t, err)
	assert.Equal(t, os.Stderr, log.Out)
}
