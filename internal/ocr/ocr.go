// Package ocr provides the page recognizers used by the narration pipeline.
package ocr

import (
	"fmt"
	"time"

	"github.com/MimeLyc/page-narrator/internal/config"
	"github.com/MimeLyc/page-narrator/internal/pipeline"
)

// New builds the recognizer selected by cfg.Provider.
func New(cfg config.OCRConfig) (pipeline.Recognizer, error) {
	switch cfg.Provider {
	case config.OCRProviderSidecar, "":
		return NewSidecar(), nil
	case config.OCRProviderVision:
		return NewVision(VisionConfig{
			APIKey:      cfg.APIKey,
			APIURL:      cfg.APIURL,
			Model:       cfg.Model,
			Timeout:     time.Duration(cfg.Timeout) * time.Second,
			Concurrency: cfg.Concurrency,
			Language:    cfg.Language,
		})
	default:
		return nil, fmt.Errorf("unknown OCR provider %q", cfg.Provider)
	}
}
