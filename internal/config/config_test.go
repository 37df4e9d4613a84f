package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFromEnv_Defaults(t *testing.T) {
	cfg, err := NewFromEnv()
	require.NoError(t, err)

	assert.Equal(t, OCRProviderSidecar, cfg.OCR.Provider)
	assert.Equal(t, "und", cfg.OCR.Language.String())
	assert.Equal(t, 1280, cfg.Render.Width)
	assert.Equal(t, 720, cfg.Render.Height)
	assert.Equal(t, 30, cfg.Render.FPS)
	assert.Equal(t, 600, cfg.Render.PlanningPauseMs)
	assert.Equal(t, "*/30 * * * *", cfg.Schedule.CronExpr)
	assert.True(t, cfg.Schedule.WatchInbox)
	assert.Equal(t, 1, cfg.Jobs.Workers)
}

func TestNewFromEnv_HTTPDefaults(t *testing.T) {
	cfg, err := NewFromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "/app/web", cfg.HTTP.UIStaticDir)
	assert.True(t, cfg.HTTP.UIEnabled)
}

func TestNewFromEnv_DataDir(t *testing.T) {
	t.Setenv("DATA_DIR", "")
	cfg, err := NewFromEnv()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/app/data", "narrator.db"), cfg.DBPath())

	t.Setenv("DATA_DIR", "/tmp/narrator-data")
	cfg, err = NewFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/narrator-data", cfg.System.DataDir)
	assert.Equal(t, filepath.Join("/tmp/narrator-data", "narrator.db"), cfg.DBPath())
}

func TestNewFromEnv_Overrides(t *testing.T) {
	t.Setenv("OCR_PROVIDER", "Vision")
	t.Setenv("OCR_API_KEY", "sk-test")
	t.Setenv("OCR_LANGUAGE", "ja")
	t.Setenv("RENDER_BACKGROUND_AUDIO", "true")
	t.Setenv("WATCH_INBOX", "false")
	t.Setenv("JOB_WORKERS", "not-a-number")

	cfg, err := NewFromEnv()
	require.NoError(t, err)
	assert.Equal(t, OCRProviderVision, cfg.OCR.Provider)
	assert.Equal(t, "ja", cfg.OCR.Language.String())
	assert.True(t, cfg.Render.BackgroundAudio)
	assert.False(t, cfg.Schedule.WatchInbox)
	assert.Equal(t, 1, cfg.Jobs.Workers)
}

func TestNewFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"vision without key", map[string]string{"OCR_PROVIDER": "vision"}},
		{"unknown provider", map[string]string{"OCR_PROVIDER": "tesseract"}},
		{"unsupported fps", map[string]string{"RENDER_FPS": "25"}},
		{"bad cron", map[string]string{"SCAN_CRON": "every minute"}},
		{"zero width", map[string]string{"RENDER_WIDTH": "0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := NewFromEnv()
			assert.Error(t, err)
		})
	}
}
