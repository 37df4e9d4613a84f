package ocr

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/MimeLyc/page-narrator/internal/persistence"
	"github.com/MimeLyc/page-narrator/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryCache struct {
	mu      sync.Mutex
	entries map[string]persistence.OCRCacheEntry
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: make(map[string]persistence.OCRCacheEntry)}
}

func (m *memoryCache) GetOCRCache(_ context.Context, key string, now time.Time) (persistence.OCRCacheEntry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok || (!e.ExpiresAt.IsZero() && !e.ExpiresAt.After(now)) {
		return persistence.OCRCacheEntry{}, false, nil
	}
	return e, true, nil
}

func (m *memoryCache) PutOCRCache(_ context.Context, e persistence.OCRCacheEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[e.CacheKey] = e
	return nil
}

type countingRecognizer struct {
	calls [][]string
	err   error
}

func (r *countingRecognizer) Recognize(_ context.Context, pages []pipeline.Page, progress pipeline.ProgressFunc) ([]pipeline.OCRResult, error) {
	ids := make([]string, len(pages))
	ret := make([]pipeline.OCRResult, len(pages))
	for i, p := range pages {
		ids[i] = p.ID
		ret[i] = pipeline.OCRResult{PageID: p.ID, Text: "text of " + p.Name}
		if progress != nil {
			progress(float64(i+1) / float64(len(pages)))
		}
	}
	r.calls = append(r.calls, ids)
	if r.err != nil {
		return nil, r.err
	}
	return ret, nil
}

func cachedPages(t *testing.T) []pipeline.Page {
	t.Helper()
	dir := t.TempDir()
	var pages []pipeline.Page
	for i, name := range []string{"1.png", "2.png", "3.png"} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(name), 0o644))
		pages = append(pages, pipeline.Page{ID: "page-" + string(rune('1'+i)), Name: name, Path: path})
	}
	return pages
}

func TestCached_SkipsKnownPages(t *testing.T) {
	pages := cachedPages(t)
	inner := &countingRecognizer{}
	cache := newMemoryCache()
	c := NewCached(inner, cache, "vision:gpt-4o-mini", time.Hour)

	first, err := c.Recognize(context.Background(), pages[:2], nil)
	require.NoError(t, err)
	require.Len(t, first, 2)

	var fractions []float64
	second, err := c.Recognize(context.Background(), pages, func(f float64) {
		fractions = append(fractions, f)
	})
	require.NoError(t, err)

	assert.Equal(t, [][]string{{"page-1", "page-2"}, {"page-3"}}, inner.calls)
	assert.Equal(t, []pipeline.OCRResult{
		{PageID: "page-1", Text: "text of 1.png"},
		{PageID: "page-2", Text: "text of 2.png"},
		{PageID: "page-3", Text: "text of 3.png"},
	}, second)
	assert.InDeltaSlice(t, []float64{2.0 / 3, 1}, fractions, 1e-9)
}

func TestCached_NameChangeMisses(t *testing.T) {
	pages := cachedPages(t)
	cache := newMemoryCache()
	inner := &countingRecognizer{}

	_, err := NewCached(inner, cache, "vision:a", time.Hour).Recognize(context.Background(), pages, nil)
	require.NoError(t, err)
	_, err = NewCached(inner, cache, "vision:b", time.Hour).Recognize(context.Background(), pages, nil)
	require.NoError(t, err)

	assert.Len(t, inner.calls, 2)
}

func TestCached_ExpiredEntriesMiss(t *testing.T) {
	pages := cachedPages(t)
	cache := newMemoryCache()
	inner := &countingRecognizer{}
	c := NewCached(inner, cache, "vision", time.Minute)

	_, err := c.Recognize(context.Background(), pages, nil)
	require.NoError(t, err)

	c.now = func() time.Time { return time.Now().Add(time.Hour) }
	_, err = c.Recognize(context.Background(), pages, nil)
	require.NoError(t, err)
	assert.Len(t, inner.calls, 2)
}

func TestCached_InnerFailureIsNotCached(t *testing.T) {
	pages := cachedPages(t)
	cache := newMemoryCache()
	inner := &countingRecognizer{err: errors.New("boom")}

	_, err := NewCached(inner, cache, "vision", time.Hour).Recognize(context.Background(), pages, nil)
	require.Error(t, err)
	assert.Empty(t, cache.entries)
}
