package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTextLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, Options{Level: "info", Prefix: "tasker"})
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("task added", "id", "tsk_1")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "INFO")
	assert.Contains(t, out, "tasker")
	assert.Contains(t, out, "task added")
	assert.Contains(t, out, "id=tsk_1")
}

func TestNewJSONLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, Options{Level: "DEBUG", Format: "json"})
	require.NoError(t, err)

	logger.Debug("dispatching", "intent", "read_tasks")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "dispatching", entry["msg"])
	assert.Equal(t, "read_tasks", entry["intent"])
	assert.Equal(t, "debug", entry["level"])
}

func TestDefaultLevelIsWarn(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, log.WarnLevel, logger.GetLevel())
	logger.Info("quiet")
	assert.Empty(t, buf.String())
}

func TestNewRejectsBadOptions(t *testing.T) {
	_, err := New(&bytes.Buffer{}, Options{Level: "loud"})
	assert.Error(t, err)

	_, err = New(&bytes.Buffer{}, Options{Format: "xml"})
	assert.Error(t, err)
}
