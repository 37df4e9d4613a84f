package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSettings() RuntimeSettings {
	return RuntimeSettings{
		OCRModel:     "gpt-4o-mini",
		CronExpr:     "*/5 * * * *",
		RenderWidth:  1280,
		RenderHeight: 720,
		RenderFPS:    30,
	}
}

func TestRuntimeSettings_Validate(t *testing.T) {
	require.NoError(t, validSettings().Validate())

	invalid := validSettings()
	invalid.CronExpr = "bad cron"
	require.Error(t, invalid.Validate())

	oddSize := validSettings()
	oddSize.RenderWidth = 1281
	require.Error(t, oddSize.Validate())

	badFPS := validSettings()
	badFPS.RenderFPS = 25
	require.Error(t, badFPS.Validate())

	noModel := validSettings()
	noModel.OCRModel = " "
	require.Error(t, noModel.Validate())
}

func TestRuntimeSettingsFile_RoundTrip(t *testing.T) {
	tmp := t.TempDir()
	filePath := filepath.Join(tmp, "settings", "runtime.json")
	input := validSettings()
	input.BackgroundAudio = true

	require.NoError(t, WriteRuntimeSettingsFile(filePath, input))

	got, err := LoadRuntimeSettingsFile(filePath)
	require.NoError(t, err)
	assert.Equal(t, input, got)

	info, err := os.Stat(filePath)
	require.NoError(t, err)
	assert.False(t, info.IsDir())
	_, err = os.Stat(filePath + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestWithRuntimeSettings_OverridesConfig(t *testing.T) {
	t.Setenv("OCR_MODEL", "env-model")
	t.Setenv("SCAN_CRON", "0 1 * * *")
	t.Setenv("RENDER_FPS", "24")

	override := RuntimeSettings{
		OCRModel:        "file-model",
		CronExpr:        "*/30 * * * *",
		RenderWidth:     1920,
		RenderHeight:    1080,
		RenderFPS:       60,
		BackgroundAudio: true,
	}

	cfg, err := NewFromEnv(WithRuntimeSettings(override))
	require.NoError(t, err)
	assert.Equal(t, "file-model", cfg.OCR.Model)
	assert.Equal(t, "*/30 * * * *", cfg.Schedule.CronExpr)
	assert.Equal(t, 1920, cfg.Render.Width)
	assert.Equal(t, 1080, cfg.Render.Height)
	assert.Equal(t, 60, cfg.Render.FPS)
	assert.True(t, cfg.Render.BackgroundAudio)
	assert.Equal(t, override, cfg.RuntimeSettings())
}

func TestRuntimeSettingsStore_UpdatePersistsFile(t *testing.T) {
	tmp := t.TempDir()
	filePath := filepath.Join(tmp, "runtime-settings.json")

	store, err := NewRuntimeSettingsStore(filePath, validSettings())
	require.NoError(t, err)

	next := validSettings()
	next.CronExpr = "*/10 * * * *"
	next.RenderFPS = 60
	got, err := store.UpdateRuntimeSettings(next)
	require.NoError(t, err)
	assert.Equal(t, next, got)

	current, err := store.GetRuntimeSettings()
	require.NoError(t, err)
	assert.Equal(t, next, current)

	loaded, err := LoadRuntimeSettingsFile(filePath)
	require.NoError(t, err)
	assert.Equal(t, next, loaded)
}

func TestRuntimeSettingsStore_RejectsInvalidUpdate(t *testing.T) {
	store, err := NewRuntimeSettingsStore(filepath.Join(t.TempDir(), "s.json"), validSettings())
	require.NoError(t, err)

	bad := validSettings()
	bad.RenderFPS = 0
	_, err = store.UpdateRuntimeSettings(bad)
	require.Error(t, err)

	current, _ := store.GetRuntimeSettings()
	assert.Equal(t, validSettings(), current)
}
