package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/MimeLyc/page-narrator/pkg/log"
	"github.com/robfig/cron/v3"
	"golang.org/x/text/language"
)

// Config holds all application configuration, read from environment
// variables with defaults.
//
// OCR:
// - OCR_PROVIDER: "sidecar" reads <page>.txt files, "vision" calls an
//   OpenAI-compatible vision model (default: sidecar)
// - OCR_API_KEY: API key, required for the vision provider
// - OCR_API_URL: API endpoint URL (default: https://api.openai.com/v1)
// - OCR_MODEL: vision model (default: gpt-4o-mini)
// - OCR_TIMEOUT: request timeout in seconds (default: 60)
// - OCR_CONCURRENCY: pages recognized in parallel (default: 2)
// - OCR_LANGUAGE: expected page language, BCP-47 (default: und)
//
// Render:
// - FFMPEG_PATH: ffmpeg binary (default: ffmpeg)
// - RENDER_WIDTH / RENDER_HEIGHT: output size (default: 1280x720)
// - RENDER_FPS: 24, 30 or 60 (default: 30)
// - RENDER_BACKGROUND_AUDIO: synthesize a background track (default: false)
// - PLANNING_PAUSE_MS: motion planning stage latency (default: 600)
//
// Paths and system:
// - INBOX_DIR: directory of chapter folders to narrate (default: /inbox)
// - OUTPUT_DIR: rendered output root (default: /output)
// - DATA_DIR: database directory (default: /app/data)
// - LOG_LEVEL: debug, info, warn, error (default: info)
//
// Schedule, HTTP and jobs:
// - SCAN_CRON: inbox scan schedule (default: */30 * * * *)
// - WATCH_INBOX: also scan on inbox file system events (default: true)
// - HTTP_ADDR (default: :8080), UI_STATIC_DIR (default: /app/web), UI_ENABLED (default: true)
// - JOB_WORKERS: concurrent narration jobs (default: 1)
type Config struct {
	OCR      OCRConfig      `json:"ocr"`
	Render   RenderConfig   `json:"render"`
	Paths    PathsConfig    `json:"paths"`
	System   SystemConfig   `json:"system"`
	Schedule ScheduleConfig `json:"schedule"`
	HTTP     HTTPConfig     `json:"http"`
	Jobs     JobsConfig     `json:"jobs"`
}

const (
	OCRProviderSidecar = "sidecar"
	OCRProviderVision  = "vision"
)

type OCRConfig struct {
	Provider    string       `json:"provider"`
	APIKey      string       `json:"-"`
	APIURL      string       `json:"api_url"`
	Model       string       `json:"model"`
	Timeout     int          `json:"timeout"`
	Concurrency int          `json:"concurrency"`
	Language    language.Tag `json:"language"`
}

type RenderConfig struct {
	FFmpegPath      string `json:"ffmpeg_path"`
	Width           int    `json:"width"`
	Height          int    `json:"height"`
	FPS             int    `json:"fps"`
	BackgroundAudio bool   `json:"background_audio"`
	PlanningPauseMs int    `json:"planning_pause_ms"`
}

type PathsConfig struct {
	InboxDir  string `json:"inbox_dir"`
	OutputDir string `json:"output_dir"`
}

type SystemConfig struct {
	DataDir  string `json:"data_dir"`
	LogLevel string `json:"log_level"`
}

type ScheduleConfig struct {
	CronExpr   string `json:"cron_expr"`
	WatchInbox bool   `json:"watch_inbox"`
}

type HTTPConfig struct {
	Addr        string `json:"addr"`
	UIStaticDir string `json:"ui_static_dir"`
	UIEnabled   bool   `json:"ui_enabled"`
}

type JobsConfig struct {
	Workers int `json:"workers"`
}

// DBPath is the SQLite database location inside the data directory.
func (c *Config) DBPath() string {
	return filepath.Join(c.System.DataDir, "narrator.db")
}

// Option is a function type for configuring Config
type Option func(*Config)

// NewFromEnv creates a new Config instance with values from environment variables and options
func NewFromEnv(opts ...Option) (*Config, error) {
	config := &Config{
		OCR: OCRConfig{
			Provider:    strings.ToLower(getEnvString("OCR_PROVIDER", OCRProviderSidecar)),
			APIKey:      getEnvString("OCR_API_KEY", ""),
			APIURL:      getEnvString("OCR_API_URL", "https://api.openai.com/v1"),
			Model:       getEnvString("OCR_MODEL", "gpt-4o-mini"),
			Timeout:     getEnvInt("OCR_TIMEOUT", 60),
			Concurrency: getEnvInt("OCR_CONCURRENCY", 2),
			Language:    getEnvLanguage("OCR_LANGUAGE", language.Und),
		},
		Render: RenderConfig{
			FFmpegPath:      getEnvString("FFMPEG_PATH", "ffmpeg"),
			Width:           getEnvInt("RENDER_WIDTH", 1280),
			Height:          getEnvInt("RENDER_HEIGHT", 720),
			FPS:             getEnvInt("RENDER_FPS", 30),
			BackgroundAudio: getEnvBool("RENDER_BACKGROUND_AUDIO", false),
			PlanningPauseMs: getEnvInt("PLANNING_PAUSE_MS", 600),
		},
		Paths: PathsConfig{
			InboxDir:  getEnvString("INBOX_DIR", "/inbox"),
			OutputDir: getEnvString("OUTPUT_DIR", "/output"),
		},
		System: SystemConfig{
			DataDir:  getEnvString("DATA_DIR", "/app/data"),
			LogLevel: getEnvString("LOG_LEVEL", "info"),
		},
		Schedule: ScheduleConfig{
			CronExpr:   getEnvString("SCAN_CRON", "*/30 * * * *"),
			WatchInbox: getEnvBool("WATCH_INBOX", true),
		},
		HTTP: HTTPConfig{
			Addr:        getEnvString("HTTP_ADDR", ":8080"),
			UIStaticDir: getEnvString("UI_STATIC_DIR", "/app/web"),
			UIEnabled:   getEnvBool("UI_ENABLED", true),
		},
		Jobs: JobsConfig{
			Workers: getEnvInt("JOB_WORKERS", 1),
		},
	}

	// Apply custom options
	for _, opt := range opts {
		opt(config)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	log.Info("Config: ocr=%s model=%s render=%dx%d@%d inbox=%s output=%s",
		config.OCR.Provider, config.OCR.Model,
		config.Render.Width, config.Render.Height, config.Render.FPS,
		config.Paths.InboxDir, config.Paths.OutputDir)
	return config, nil
}

var supportedFPS = []int{24, 30, 60}

// validate checks if all required configuration is properly set
func (c *Config) validate() error {
	switch c.OCR.Provider {
	case OCRProviderSidecar:
	case OCRProviderVision:
		if c.OCR.APIKey == "" {
			return fmt.Errorf("OCR_API_KEY is required for the %s provider", OCRProviderVision)
		}
	default:
		return fmt.Errorf("unknown OCR_PROVIDER %q", c.OCR.Provider)
	}
	if c.Render.Width <= 0 || c.Render.Height <= 0 {
		return fmt.Errorf("invalid render resolution %dx%d", c.Render.Width, c.Render.Height)
	}
	if !slices.Contains(supportedFPS, c.Render.FPS) {
		return fmt.Errorf("RENDER_FPS must be one of %v", supportedFPS)
	}
	if c.Schedule.CronExpr != "" {
		if _, err := cron.ParseStandard(c.Schedule.CronExpr); err != nil {
			return fmt.Errorf("invalid SCAN_CRON: %w", err)
		}
	}
	return nil
}

// getEnvString gets a string value from environment variables with default
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer value from environment variables with default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvLanguage(key string, defaultValue language.Tag) language.Tag {
	if value := os.Getenv(key); value != "" {
		if tag, err := language.Parse(value); err == nil {
			return tag
		}
	}
	return defaultValue
}
