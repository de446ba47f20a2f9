package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"careerHub/internal/config"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel(" error "))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestNew_WritesRotatingFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "logs", "api.log")
	logger, err := New(config.LogConfig{Level: "info", Format: "json", File: file, MaxSizeMB: 1}, "api")
	require.NoError(t, err)

	logger.Info("hello", slog.Int("n", 1))

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello"`)
	assert.Contains(t, string(data), `"service":"api"`)
}

func TestNew_RejectsUnknownFormat(t *testing.T) {
	_, err := New(config.LogConfig{Format: "xml"}, "")
	assert.Error(t, err)
}

func TestInitSentry_DisabledWithoutDSN(t *testing.T) {
	flush, err := InitSentry(config.SentryConfig{}, "test")
	require.NoError(t, err)
	require.NotNil(t, flush)
	flush()
}
