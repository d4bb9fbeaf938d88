package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/rowlabel/internal/model"
)

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := New(model.LogConfig{Level: "warn", Format: "json"}, &buf)

	logger.Info("hidden")
	logger.Warn("attempt failed")
	require.NoError(t, logger.Sync())

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "attempt failed", entry["message"])
	assert.Contains(t, entry, "timestamp")
}

func TestNew_ConsoleAndInvalidLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(model.LogConfig{Level: "nonsense", Format: "console"}, &buf)

	logger.Debug("hidden")
	logger.Info("checkpoint saved")
	require.NoError(t, logger.Sync())

	out := buf.String()
	assert.Contains(t, out, "INFO")
	assert.Contains(t, out, "checkpoint saved")
	assert.NotContains(t, out, "hidden")
}
