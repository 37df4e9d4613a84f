package library

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/MimeLyc/page-narrator/internal/pipeline"
	"github.com/MimeLyc/page-narrator/internal/render"
	"github.com/MimeLyc/page-narrator/internal/subtitle"
	"github.com/MimeLyc/page-narrator/pkg/file"
)

type scannerOptions struct {
	cacheTTL time.Duration
}

type Option func(*scannerOptions)

func WithCacheTTL(ttl time.Duration) Option {
	return func(o *scannerOptions) {
		o.cacheTTL = ttl
	}
}

type scanCache struct {
	version uint64
	scanned time.Time
	library *Library
}

// Scanner finds chapters in the inbox. Any directory that directly holds
// page images is a chapter; its output mirrors the inbox layout under the
// output directory.
type Scanner struct {
	inboxDir  string
	outputDir string

	mu       sync.RWMutex
	cacheTTL time.Duration
	cache    *scanCache
	version  uint64
}

func NewScanner(inboxDir, outputDir string, opts ...Option) *Scanner {
	options := scannerOptions{cacheTTL: 5 * time.Second}
	for _, opt := range opts {
		opt(&options)
	}
	return &Scanner{
		inboxDir:  inboxDir,
		outputDir: outputDir,
		cacheTTL:  options.cacheTTL,
	}
}

func (s *Scanner) InboxDir() string {
	return s.inboxDir
}

// OutputDirFor maps a pages directory inside the inbox to its output
// directory. Directories outside the inbox use their base name.
func (s *Scanner) OutputDirFor(pagesDir string) string {
	rel, err := filepath.Rel(s.inboxDir, pagesDir)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return filepath.Join(s.outputDir, filepath.Base(pagesDir))
	}
	return filepath.Join(s.outputDir, rel)
}

func (s *Scanner) Invalidate() {
	s.mu.Lock()
	s.cache = nil
	s.version++
	s.mu.Unlock()
}

func (s *Scanner) Scan(ctx context.Context) (*Library, error) {
	s.mu.RLock()
	version := s.version
	if s.cache != nil && s.cache.version == version && (s.cacheTTL <= 0 || time.Since(s.cache.scanned) < s.cacheTTL) {
		cached := cloneLibrary(s.cache.library)
		s.mu.RUnlock()
		return cached, nil
	}
	s.mu.RUnlock()

	ret := &Library{InboxDir: s.inboxDir, Chapters: make([]Chapter, 0)}
	if _, err := os.Stat(s.inboxDir); err != nil {
		if os.IsNotExist(err) {
			return ret, nil
		}
		return nil, err
	}

	pageCounts := make(map[string]int)
	err := filepath.WalkDir(s.inboxDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if path != s.inboxDir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if pipeline.IsImage(path) {
			pageCounts[filepath.Dir(path)]++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for dir, count := range pageCounts {
		ret.Chapters = append(ret.Chapters, s.chapter(dir, count))
	}
	pipeline.SortNatural(ret.Chapters, func(c Chapter) string { return c.ID })

	s.mu.Lock()
	if s.version == version {
		s.cache = &scanCache{
			version: version,
			scanned: time.Now(),
			library: cloneLibrary(ret),
		}
	}
	s.mu.Unlock()
	return ret, nil
}

func (s *Scanner) chapter(dir string, pageCount int) Chapter {
	rel, err := filepath.Rel(s.inboxDir, dir)
	if err != nil {
		rel = filepath.Base(dir)
	}
	id := filepath.ToSlash(rel)

	ch := Chapter{
		ID:        id,
		Name:      filepath.Base(dir),
		PagesDir:  dir,
		PageCount: pageCount,
		OutputDir: s.OutputDirFor(dir),
	}
	if parts := strings.SplitN(id, "/", 2); len(parts) == 2 {
		ch.Series = parts[0]
	}

	srt := filepath.Join(ch.OutputDir, subtitle.DefaultFileName)
	if file.Exists(srt) {
		ch.Narrated = true
		ch.SubtitlePath = srt
	}
	if video := filepath.Join(ch.OutputDir, render.DefaultOutputName); file.Exists(video) {
		ch.VideoPath = video
	}
	return ch
}

func cloneLibrary(in *Library) *Library {
	if in == nil {
		return nil
	}
	out := *in
	out.Chapters = append([]Chapter(nil), in.Chapters...)
	return &out
}
