package ocr

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/MimeLyc/page-narrator/internal/persistence"
	"github.com/MimeLyc/page-narrator/internal/pipeline"
	"github.com/MimeLyc/page-narrator/pkg/log"
)

// Cache stores recognized text by image content.
type Cache interface {
	GetOCRCache(ctx context.Context, cacheKey string, now time.Time) (persistence.OCRCacheEntry, bool, error)
	PutOCRCache(ctx context.Context, entry persistence.OCRCacheEntry) error
}

// Cached skips recognition of pages whose image content was already
// recognized by the same recognizer.
type Cached struct {
	inner pipeline.Recognizer
	cache Cache
	name  string
	ttl   time.Duration
	now   func() time.Time
}

// NewCached wraps inner. name identifies the recognizer and model so that a
// model change invalidates earlier entries.
func NewCached(inner pipeline.Recognizer, cache Cache, name string, ttl time.Duration) *Cached {
	return &Cached{inner: inner, cache: cache, name: name, ttl: ttl, now: time.Now}
}

func (c *Cached) Recognize(ctx context.Context, pages []pipeline.Page, progress pipeline.ProgressFunc) ([]pipeline.OCRResult, error) {
	results := make([]pipeline.OCRResult, len(pages))
	keys := make([]string, len(pages))
	var missIdx []int
	var missPages []pipeline.Page

	now := c.now()
	for i, page := range pages {
		key, err := c.cacheKey(page.Path)
		if err != nil {
			log.Warn("OCR cache key for %s: %v", page.Name, err)
		} else if entry, ok, err := c.cache.GetOCRCache(ctx, key, now); err != nil {
			log.Warn("OCR cache lookup for %s: %v", page.Name, err)
		} else if ok {
			results[i] = pipeline.OCRResult{PageID: page.ID, Text: entry.Text}
			continue
		}
		keys[i] = key
		missIdx = append(missIdx, i)
		missPages = append(missPages, page)
	}

	total := float64(len(pages))
	hits := len(pages) - len(missPages)
	if hits > 0 {
		log.Info("OCR cache hit for %d of %d pages", hits, len(pages))
		if progress != nil {
			progress(float64(hits) / total)
		}
	}
	if len(missPages) == 0 {
		return results, nil
	}

	inner, err := c.inner.Recognize(ctx, missPages, func(f float64) {
		if progress != nil {
			progress((float64(hits) + f*float64(len(missPages))) / total)
		}
	})
	if err != nil {
		return nil, err
	}
	if len(inner) != len(missPages) {
		return nil, fmt.Errorf("recognizer returned %d results for %d pages", len(inner), len(missPages))
	}

	for j, i := range missIdx {
		results[i] = pipeline.OCRResult{PageID: pages[i].ID, Text: inner[j].Text}
		if keys[i] == "" {
			continue
		}
		entry := persistence.OCRCacheEntry{
			CacheKey:   keys[i],
			ImagePath:  pages[i].Path,
			Recognizer: c.name,
			Text:       inner[j].Text,
			UpdatedAt:  now,
		}
		if c.ttl > 0 {
			entry.ExpiresAt = now.Add(c.ttl)
		}
		if err := c.cache.PutOCRCache(ctx, entry); err != nil {
			log.Warn("OCR cache store for %s: %v", pages[i].Name, err)
		}
	}
	return results, nil
}

func (c *Cached) cacheKey(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)) + "|" + c.name, nil
}
