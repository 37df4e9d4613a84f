package ocr

import (
	"context"
	"sync"

	"github.com/MimeLyc/page-narrator/internal/pipeline"
)

// Swappable forwards to a recognizer that can be replaced at runtime, for
// example after the OCR model is changed in the settings. Calls already in
// flight finish on the recognizer they started with.
type Swappable struct {
	mu    sync.RWMutex
	inner pipeline.Recognizer
}

func NewSwappable(inner pipeline.Recognizer) *Swappable {
	return &Swappable{inner: inner}
}

func (s *Swappable) Swap(next pipeline.Recognizer) {
	s.mu.Lock()
	s.inner = next
	s.mu.Unlock()
}

func (s *Swappable) Recognize(ctx context.Context, pages []pipeline.Page, progress pipeline.ProgressFunc) ([]pipeline.OCRResult, error) {
	s.mu.RLock()
	inner := s.inner
	s.mu.RUnlock()
	return inner.Recognize(ctx, pages, progress)
}
