package service

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/MimeLyc/page-narrator/internal/persistence"
	"github.com/MimeLyc/page-narrator/internal/pipeline"
	"github.com/stretchr/testify/require"
)

type stubRecognizer struct {
	texts map[string]string
	err   error
	block chan struct{}
}

func (s *stubRecognizer) Recognize(ctx context.Context, pages []pipeline.Page, progress pipeline.ProgressFunc) ([]pipeline.OCRResult, error) {
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	ret := make([]pipeline.OCRResult, 0, len(pages))
	for i, p := range pages {
		progress(float64(i+1) / float64(len(pages)))
		ret = append(ret, pipeline.OCRResult{PageID: p.ID, Text: s.texts[p.Name]})
	}
	return ret, nil
}

type stubRenderer struct {
	outputDir string

	mu       sync.Mutex
	requests []pipeline.RenderRequest
	err      error
}

func (s *stubRenderer) Render(_ context.Context, req pipeline.RenderRequest, progress pipeline.ProgressFunc) (string, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	progress(0.5)
	progress(1)
	return filepath.Join(s.outputDir, "narration.mp4"), nil
}

func (s *stubRenderer) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

type rendererPool struct {
	mu        sync.Mutex
	renderers map[string]*stubRenderer
	err       error
}

func newRendererPool() *rendererPool {
	return &rendererPool{renderers: make(map[string]*stubRenderer)}
}

func (p *rendererPool) factory(outputDir string) pipeline.Renderer {
	p.mu.Lock()
	defer p.mu.Unlock()
	r := &stubRenderer{outputDir: outputDir, err: p.err}
	p.renderers[outputDir] = r
	return r
}

func (p *rendererPool) get(outputDir string) *stubRenderer {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.renderers[outputDir]
}

type memoryTimelines struct {
	mu      sync.Mutex
	records map[string]persistence.TimelineRecord
}

func newMemoryTimelines() *memoryTimelines {
	return &memoryTimelines{records: make(map[string]persistence.TimelineRecord)}
}

func (m *memoryTimelines) SaveTimeline(_ context.Context, record persistence.TimelineRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[record.OwnerID] = record
	return nil
}

func (m *memoryTimelines) LoadTimeline(_ context.Context, ownerID string) (persistence.TimelineRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.records[ownerID]
	return record, ok, nil
}

func writePages(t *testing.T, dir string, names ...string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("img"), 0o644))
	}
}
