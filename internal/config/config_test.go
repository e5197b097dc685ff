package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("TASKER_ROOT", dir)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.Root)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, "light", cfg.UI.Theme)
	assert.Equal(t, "en-US", cfg.Speech.Lang)
	assert.Equal(t, 15*time.Second, cfg.Backend.Timeout)
	assert.Empty(t, cfg.Backend.URL)
	assert.Empty(t, cfg.File)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)
	content := "ui:\n  theme: ocean\nlog:\n  level: info\nbackend:\n  url: http://localhost:5000\n  timeout: 3s\nspeech:\n  capture_command: stt-listen --lang {lang}\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	t.Setenv("TASKER_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, path, cfg.File)
	assert.Equal(t, "ocean", cfg.UI.Theme)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "http://localhost:5000", cfg.Backend.URL)
	assert.Equal(t, 3*time.Second, cfg.Backend.Timeout)
	assert.Equal(t, "stt-listen --lang {lang}", cfg.Speech.CaptureCommand)
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte("ui: [unclosed"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestSetPersistsAndKeepsOtherKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", FileName)

	require.NoError(t, Set(path, "backend.url", "http://example.test"))
	require.NoError(t, SetTheme(path, "forest"))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "forest", cfg.UI.Theme)
	assert.Equal(t, "http://example.test", cfg.Backend.URL)
}

func TestSetRejectsBadInput(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)

	assert.Error(t, Set(path, "ui.colour", "red"))
	assert.Error(t, Set(path, "backend.timeout", "soon"))
	assert.NoFileExists(t, path)
}

func TestKeys(t *testing.T) {
	keys := Keys()
	assert.Contains(t, keys, "root")
	assert.Contains(t, keys, "ui.theme")
	assert.Contains(t, keys, "speech.output_command")
	assert.IsIncreasing(t, keys)
}
