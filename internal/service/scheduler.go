package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/MimeLyc/page-narrator/internal/config"
	"github.com/MimeLyc/page-narrator/internal/jobs"
	"github.com/MimeLyc/page-narrator/internal/library"
	"github.com/MimeLyc/page-narrator/internal/pipeline"
	"github.com/MimeLyc/page-narrator/pkg/icron"
	"github.com/MimeLyc/page-narrator/pkg/log"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"
)

// CronEngine is the subset of *cron.Cron the scheduler needs.
type CronEngine interface {
	AddFunc(spec string, cmd func()) (cron.EntryID, error)
	Remove(id cron.EntryID)
}

// Scheduler enqueues unnarrated inbox chapters on a cron schedule, on demand
// and on watcher events.
type Scheduler struct {
	cron    CronEngine
	scanner *library.Scanner
	queue   Enqueuer
	group   singleflight.Group

	mu        sync.Mutex
	ctx       context.Context
	cronExpr  string
	entryID   cron.EntryID
	scheduled bool
	options   pipeline.RenderOptions
}

func NewScheduler(cfg *config.Config, cronEngine CronEngine, scanner *library.Scanner, queue Enqueuer) *Scheduler {
	return &Scheduler{
		cron:     cronEngine,
		scanner:  scanner,
		queue:    queue,
		ctx:      context.Background(),
		cronExpr: cfg.Schedule.CronExpr,
		options: pipeline.RenderOptions{
			Width:           cfg.Render.Width,
			Height:          cfg.Render.Height,
			FPS:             cfg.Render.FPS,
			BackgroundAudio: cfg.Render.BackgroundAudio,
		},
	}
}

// Schedule registers the periodic inbox scan. Scans triggered by cron run
// on ctx.
func (s *Scheduler) Schedule(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ctx = ctx
	if err := s.scheduleLocked(s.cronExpr); err != nil {
		return err
	}
	log.Info("Inbox scan scheduled with %q", s.cronExpr)
	return nil
}

func (s *Scheduler) scheduleLocked(expr string) error {
	id, err := s.cron.AddFunc(expr, s.cronTick)
	if err != nil {
		return fmt.Errorf("failed to schedule inbox scan: %w", err)
	}
	if s.scheduled {
		s.cron.Remove(s.entryID)
	}
	s.entryID = id
	s.scheduled = true
	s.cronExpr = expr
	return nil
}

func (s *Scheduler) cronTick() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	if _, err := s.ScanNow(ctx, jobs.SourceCron); err != nil {
		log.Error("Scheduled inbox scan failed: %v", err)
	}
}

// ScanNow rescans the inbox and enqueues every pending chapter. Concurrent
// calls share one scan. It returns the number of newly created jobs.
func (s *Scheduler) ScanNow(ctx context.Context, source string) (int, error) {
	v, err, _ := s.group.Do("scan", func() (any, error) {
		s.scanner.Invalidate()
		lib, err := s.scanner.Scan(ctx)
		if err != nil {
			return 0, err
		}

		created := 0
		for _, ch := range lib.Pending() {
			if _, ok := s.enqueue(source, ch, false); ok {
				created++
			}
		}
		log.Info("Inbox scan (%s) found %d chapters, queued %d", source, len(lib.Chapters), created)
		return created, nil
	})
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

// EnqueueChapter queues one chapter by id regardless of whether it was
// narrated before.
func (s *Scheduler) EnqueueChapter(ctx context.Context, chapterID string, subtitlesOnly bool) (*jobs.NarrationJob, bool, error) {
	lib, err := s.scanner.Scan(ctx)
	if err != nil {
		return nil, false, err
	}
	for _, ch := range lib.Chapters {
		if ch.ID == strings.Trim(chapterID, "/") {
			job, created := s.enqueue(jobs.SourceManual, ch, subtitlesOnly)
			return job, created, nil
		}
	}
	return nil, false, pipeline.NewError(pipeline.ErrTypeNotFound, "chapter not found").
		WithContext("chapter", chapterID)
}

func (s *Scheduler) enqueue(source string, ch library.Chapter, subtitlesOnly bool) (*jobs.NarrationJob, bool) {
	s.mu.Lock()
	opts := s.options
	s.mu.Unlock()

	return s.queue.Enqueue(jobs.EnqueueRequest{
		Source:    source,
		DedupeKey: ch.PagesDir,
		Payload: jobs.JobPayload{
			PagesDir:        ch.PagesDir,
			OutputDir:       ch.OutputDir,
			Width:           opts.Width,
			Height:          opts.Height,
			FPS:             opts.FPS,
			BackgroundAudio: opts.BackgroundAudio,
			SubtitlesOnly:   subtitlesOnly,
		},
	})
}

// ApplyRuntimeSettings switches new jobs to the given render settings and
// moves the scan to the new cron expression if it changed.
func (s *Scheduler) ApplyRuntimeSettings(settings config.RuntimeSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.options = pipeline.RenderOptions{
		Width:           settings.RenderWidth,
		Height:          settings.RenderHeight,
		FPS:             settings.RenderFPS,
		BackgroundAudio: settings.BackgroundAudio,
	}

	expr := strings.TrimSpace(settings.CronExpr)
	if expr == "" || expr == s.cronExpr {
		return nil
	}
	if !s.scheduled {
		s.cronExpr = expr
		return nil
	}
	if err := s.scheduleLocked(expr); err != nil {
		return err
	}
	log.Info("Inbox scan rescheduled with %q", expr)
	return nil
}

func (s *Scheduler) CronExpr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cronExpr
}

// NextRun reports the previous and next scan times around now.
func (s *Scheduler) NextRun(now time.Time) (*icron.TriggerInfo, error) {
	return icron.GetTriggerInfo(s.CronExpr(), now)
}
