package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/MimeLyc/page-narrator/internal/jobs"
	"github.com/MimeLyc/page-narrator/internal/motion"
	"github.com/MimeLyc/page-narrator/internal/persistence"
	"github.com/MimeLyc/page-narrator/internal/pipeline"
	"github.com/MimeLyc/page-narrator/internal/subtitle"
	"github.com/MimeLyc/page-narrator/pkg/log"
)

type NarratorOption func(*Narrator)

func WithTimelineStore(store TimelineStore) NarratorOption {
	return func(n *Narrator) {
		n.timelines = store
	}
}

func WithProgressReporter(reporter ProgressReporter) NarratorOption {
	return func(n *Narrator) {
		n.progress = reporter
	}
}

func WithPlanningPause(d time.Duration) NarratorOption {
	return func(n *Narrator) {
		n.pause = d
	}
}

// WithDefaultRenderOptions fills in job payloads that leave the video
// settings empty.
func WithDefaultRenderOptions(opts pipeline.RenderOptions) NarratorOption {
	return func(n *Narrator) {
		n.defaults = opts
	}
}

// Narrator runs the whole pipeline for one chapter without user edits.
type Narrator struct {
	recognizer pipeline.Recognizer
	renderers  RendererFactory
	timelines  TimelineStore
	progress   ProgressReporter
	writer     subtitle.Writer
	pause      time.Duration
	defaults   pipeline.RenderOptions
}

func NewNarrator(recognizer pipeline.Recognizer, renderers RendererFactory, opts ...NarratorOption) *Narrator {
	n := &Narrator{
		recognizer: recognizer,
		renderers:  renderers,
		writer:     subtitle.NewWriter(),
		pause:      pipeline.DefaultPlanningPause,
		defaults:   pipeline.DefaultRenderOptions(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Execute narrates a queued job, mirroring stage and percent into the queue.
func (n *Narrator) Execute(ctx context.Context, job *jobs.NarrationJob) error {
	req := NarrateRequest{
		PagesDir:      job.Payload.PagesDir,
		OutputDir:     job.Payload.OutputDir,
		Options:       n.optionsFor(job.Payload),
		SubtitlesOnly: job.Payload.SubtitlesOnly,
	}
	result, err := n.narrate(ctx, job.ID, req)
	if err != nil {
		return err
	}
	if n.progress != nil {
		n.progress.SetOutputs(job.ID, result.VideoPath, result.SubtitlePath)
	}
	return nil
}

// Narrate runs one chapter outside the queue.
func (n *Narrator) Narrate(ctx context.Context, req NarrateRequest) (*NarrateResult, error) {
	return n.narrate(ctx, "", req)
}

func (n *Narrator) optionsFor(p jobs.JobPayload) pipeline.RenderOptions {
	opts := n.defaults
	if p.Width > 0 && p.Height > 0 {
		opts.Width = p.Width
		opts.Height = p.Height
	}
	if p.FPS > 0 {
		opts.FPS = p.FPS
	}
	opts.BackgroundAudio = opts.BackgroundAudio || p.BackgroundAudio
	return opts
}

func (n *Narrator) narrate(ctx context.Context, ownerID string, req NarrateRequest) (*NarrateResult, error) {
	if req.OutputDir == "" {
		return nil, pipeline.NewError(pipeline.ErrTypeValidation, "output directory is required")
	}
	if !req.SubtitlesOnly {
		if err := req.Options.Validate(); err != nil {
			return nil, pipeline.NewErrorWithCause(pipeline.ErrTypeValidation, "invalid render options", err)
		}
	}

	pages, err := pipeline.LoadPagesDir(req.PagesDir)
	if err != nil {
		return nil, err
	}
	if len(pages) == 0 {
		return nil, pipeline.NewError(pipeline.ErrTypeValidation, "no page images found").
			WithContext("dir", req.PagesDir)
	}

	var renderer pipeline.Renderer
	if !req.SubtitlesOnly {
		renderer = n.renderers(req.OutputDir)
	}
	orch := pipeline.NewOrchestrator(n.recognizer, renderer,
		pipeline.WithPlanningPause(n.pause),
		pipeline.WithOnChange(n.mirror(ownerID)),
	)
	if err := orch.SetPages(pages); err != nil {
		return nil, err
	}

	log.Info("Narrating %d pages from %s", len(pages), req.PagesDir)
	if err := orch.Run(ctx); err != nil {
		return nil, err
	}

	timeline := orch.Timeline()
	result := &NarrateResult{
		Pages:      len(pages),
		Captions:   timeline.Len(),
		DurationMs: timeline.TotalDurationMs(),
	}

	if err := os.MkdirAll(req.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	result.MotionPath = filepath.Join(req.OutputDir, MotionFileName)
	if err := motion.WriteFile(result.MotionPath, orch.Motion()); err != nil {
		return nil, err
	}

	if !req.SubtitlesOnly {
		video, err := orch.Render(ctx, req.Options)
		if err != nil {
			return nil, err
		}
		result.VideoPath = video
	}

	// The track is written last so an interrupted render leaves the chapter
	// unnarrated for the next scan.
	result.SubtitlePath = filepath.Join(req.OutputDir, subtitle.DefaultFileName)
	track := subtitle.FromCaptions(timeline.Units)
	if err := n.writer.Write(result.SubtitlePath, track); err != nil {
		return nil, fmt.Errorf("write subtitles: %w", err)
	}
	written, err := subtitle.NewReader(result.SubtitlePath).Read()
	if err != nil {
		return nil, fmt.Errorf("verify subtitles: %w", err)
	}
	result.Language = written.Language.String()

	if ownerID != "" && n.timelines != nil {
		record := persistence.TimelineRecord{
			OwnerID:  ownerID,
			Timeline: timeline,
			Language: result.Language,
		}
		if err := n.timelines.SaveTimeline(ctx, record); err != nil {
			log.Warn("Failed to persist caption timeline for %s: %v", ownerID, err)
		}
	}

	log.Info("Narrated %s: %d captions, %d ms", req.PagesDir, result.Captions, result.DurationMs)
	return result, nil
}

func (n *Narrator) mirror(ownerID string) func(pipeline.State) {
	return func(s pipeline.State) {
		if ownerID == "" || n.progress == nil {
			return
		}
		n.progress.UpdateProgress(ownerID, string(s.Stage), s.Percent)
	}
}
