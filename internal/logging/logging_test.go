package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" DEBUG ": slog.LevelDebug,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"chatty":  slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), "level %q", in)
	}
}

func TestProductionWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "production", "info")

	logger.Debug("hidden")
	logger.Info("Upload committed", "clipboard_id", "abc")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)
	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "Upload committed", entry["msg"])
	assert.Equal(t, "abc", entry["clipboard_id"])
}

func TestDevelopmentUsesConsoleHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "development", "warn")

	logger.Info("hidden")
	logger.Warn("Chunk upload retried", "index", 3)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "Chunk upload retried")
	assert.Contains(t, out, "clipdrop")
	assert.Contains(t, out, "index=3")
}

func TestDiscard(t *testing.T) {
	assert.False(t, Discard().Enabled(t.Context(), slog.LevelWarn))
	assert.True(t, Discard().Enabled(t.Context(), slog.LevelError))
}
