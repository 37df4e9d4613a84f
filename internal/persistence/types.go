package persistence

import (
	"time"

	"github.com/MimeLyc/page-narrator/internal/caption"
)

// TimelineRecord is the last saved caption timeline of a job or session.
type TimelineRecord struct {
	OwnerID   string
	Timeline  caption.Timeline
	Language  string
	UpdatedAt time.Time
}

// OCRCacheEntry is recognized page text keyed by image content and
// recognizer.
type OCRCacheEntry struct {
	CacheKey   string
	ImagePath  string
	Recognizer string
	Text       string
	ExpiresAt  time.Time
	UpdatedAt  time.Time
}
