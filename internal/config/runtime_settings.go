package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/robfig/cron/v3"
)

const DefaultRuntimeSettingsFile = "/app/config/settings.json"

// RuntimeSettings are the values that can be changed from the UI without a
// restart. They are layered on top of the environment at startup.
type RuntimeSettings struct {
	OCRModel        string `json:"ocr_model"`
	CronExpr        string `json:"cron_expr"`
	RenderWidth     int    `json:"render_width"`
	RenderHeight    int    `json:"render_height"`
	RenderFPS       int    `json:"render_fps"`
	BackgroundAudio bool   `json:"background_audio"`
}

func RuntimeSettingsFilePath() string {
	return getEnvString("SETTINGS_FILE", DefaultRuntimeSettingsFile)
}

func (s RuntimeSettings) Validate() error {
	if strings.TrimSpace(s.OCRModel) == "" {
		return fmt.Errorf("ocr_model is required")
	}
	if strings.TrimSpace(s.CronExpr) == "" {
		return fmt.Errorf("cron_expr is required")
	}
	if _, err := cron.ParseStandard(s.CronExpr); err != nil {
		return fmt.Errorf("invalid cron_expr: %w", err)
	}
	if s.RenderWidth <= 0 || s.RenderHeight <= 0 {
		return fmt.Errorf("render size must be positive, got %dx%d", s.RenderWidth, s.RenderHeight)
	}
	if s.RenderWidth%2 != 0 || s.RenderHeight%2 != 0 {
		return fmt.Errorf("render size must be even, got %dx%d", s.RenderWidth, s.RenderHeight)
	}
	if !slices.Contains(supportedFPS, s.RenderFPS) {
		return fmt.Errorf("render_fps must be one of %v", supportedFPS)
	}
	return nil
}

func (c *Config) RuntimeSettings() RuntimeSettings {
	return RuntimeSettings{
		OCRModel:        c.OCR.Model,
		CronExpr:        c.Schedule.CronExpr,
		RenderWidth:     c.Render.Width,
		RenderHeight:    c.Render.Height,
		RenderFPS:       c.Render.FPS,
		BackgroundAudio: c.Render.BackgroundAudio,
	}
}

func WithRuntimeSettings(settings RuntimeSettings) Option {
	return func(c *Config) {
		if strings.TrimSpace(settings.OCRModel) != "" {
			c.OCR.Model = settings.OCRModel
		}
		if strings.TrimSpace(settings.CronExpr) != "" {
			c.Schedule.CronExpr = settings.CronExpr
		}
		if settings.RenderWidth > 0 && settings.RenderHeight > 0 {
			c.Render.Width = settings.RenderWidth
			c.Render.Height = settings.RenderHeight
		}
		if settings.RenderFPS > 0 {
			c.Render.FPS = settings.RenderFPS
		}
		c.Render.BackgroundAudio = settings.BackgroundAudio
	}
}

func LoadRuntimeSettingsFile(path string) (RuntimeSettings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RuntimeSettings{}, err
	}
	var settings RuntimeSettings
	if err := json.Unmarshal(data, &settings); err != nil {
		return RuntimeSettings{}, fmt.Errorf("invalid settings file: %w", err)
	}
	return settings, nil
}

// WriteRuntimeSettingsFile validates and atomically replaces the settings file.
func WriteRuntimeSettingsFile(path string, settings RuntimeSettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	content, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err
	}
	content = append(content, '\n')

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, content, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

type RuntimeSettingsStore struct {
	path string

	mu      sync.RWMutex
	current RuntimeSettings
}

func NewRuntimeSettingsStore(path string, initial RuntimeSettings) (*RuntimeSettingsStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("settings file path is required")
	}
	if err := initial.Validate(); err != nil {
		return nil, err
	}
	return &RuntimeSettingsStore{
		path:    path,
		current: initial,
	}, nil
}

func (s *RuntimeSettingsStore) GetRuntimeSettings() (RuntimeSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current, nil
}

func (s *RuntimeSettingsStore) UpdateRuntimeSettings(next RuntimeSettings) (RuntimeSettings, error) {
	if err := WriteRuntimeSettingsFile(s.path, next); err != nil {
		return RuntimeSettings{}, err
	}

	s.mu.Lock()
	s.current = next
	s.mu.Unlock()
	return next, nil
}
