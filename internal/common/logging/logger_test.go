package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferLogger(t *testing.T, level LogLevel) (Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	logger, err := NewZapLogger(LogConfig{
		Level:  level,
		Output: buf,
	})
	require.NoError(t, err)
	return logger, buf
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected LogLevel
	}{
		{"DEBUG", DebugLevel},
		{"debug", DebugLevel},
		{"INFO", InfoLevel},
		{"WARN", WarnLevel},
		{"warning", WarnLevel},
		{"ERROR", ErrorLevel},
		{"bogus", InfoLevel},
		{"", InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseLevel(tt.input))
		})
	}
}

func TestZapLogger_WritesStructuredFields(t *testing.T) {
	logger, buf := newBufferLogger(t, InfoLevel)

	logger.Info("token stored",
		Field{"username", "driver@example.com"},
		Field{"expires_in", 600},
	)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "token stored", entry["msg"])
	assert.Equal(t, "driver@example.com", entry["username"])
	assert.Equal(t, float64(600), entry["expires_in"])
}

func TestZapLogger_LevelFiltering(t *testing.T) {
	logger, buf := newBufferLogger(t, WarnLevel)

	logger.Debug("dropped")
	logger.Info("dropped too")
	logger.Warn("kept")

	out := buf.String()
	assert.NotContains(t, out, "dropped")
	assert.Contains(t, out, "kept")
}

func TestZapLogger_ErrorIncludesCause(t *testing.T) {
	logger, buf := newBufferLogger(t, InfoLevel)

	logger.Error("cache write failed", assert.AnError, Field{"key", "profile:bob"})

	out := buf.String()
	assert.Contains(t, out, "cache write failed")
	assert.Contains(t, out, assert.AnError.Error())
}

func TestWithFields(t *testing.T) {
	logger, buf := newBufferLogger(t, InfoLevel)

	scoped := logger.WithFields(Field{"component", "resolver"})
	scoped.Info("cache hit")

	lines := strings.TrimSpace(buf.String())
	assert.Contains(t, lines, `"component":"resolver"`)
}

func TestGlobalLogger(t *testing.T) {
	logger, _ := newBufferLogger(t, InfoLevel)
	SetGlobalLogger(logger)

	assert.Equal(t, logger, GetGlobalLogger())
}
