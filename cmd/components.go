package main

import (
	"fmt"
	"time"

	"github.com/MimeLyc/page-narrator/internal/config"
	"github.com/MimeLyc/page-narrator/internal/ocr"
	"github.com/MimeLyc/page-narrator/internal/pipeline"
	"github.com/MimeLyc/page-narrator/internal/render"
	"github.com/MimeLyc/page-narrator/internal/service"
)

const ocrCacheTTL = 30 * 24 * time.Hour

// newRecognizer builds the configured recognizer, wrapped in the OCR cache
// when one is given. Sidecar transcripts are read fresh on every run so a
// corrected .txt file takes effect immediately.
func newRecognizer(cfg config.OCRConfig, cache ocr.Cache) (pipeline.Recognizer, error) {
	rec, err := ocr.New(cfg)
	if err != nil {
		return nil, err
	}
	if cache == nil || !cacheable(cfg) {
		return rec, nil
	}
	return ocr.NewCached(rec, cache, recognizerName(cfg), ocrCacheTTL), nil
}

func cacheable(cfg config.OCRConfig) bool {
	return cfg.Provider != config.OCRProviderSidecar && cfg.Provider != ""
}

func recognizerName(cfg config.OCRConfig) string {
	if cfg.Provider == config.OCRProviderVision {
		return fmt.Sprintf("%s:%s", cfg.Provider, cfg.Model)
	}
	return cfg.Provider
}

func newRendererFactory(cfg config.RenderConfig) service.RendererFactory {
	return func(outputDir string) pipeline.Renderer {
		return render.NewFFmpeg(cfg.FFmpegPath, outputDir)
	}
}

func renderOptions(cfg config.RenderConfig) pipeline.RenderOptions {
	return pipeline.RenderOptions{
		Width:           cfg.Width,
		Height:          cfg.Height,
		FPS:             cfg.FPS,
		BackgroundAudio: cfg.BackgroundAudio,
	}
}

func planningPause(cfg config.RenderConfig) time.Duration {
	return time.Duration(cfg.PlanningPauseMs) * time.Millisecond
}
