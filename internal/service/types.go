package service

import (
	"context"

	"github.com/MimeLyc/page-narrator/internal/jobs"
	"github.com/MimeLyc/page-narrator/internal/persistence"
	"github.com/MimeLyc/page-narrator/internal/pipeline"
)

const MotionFileName = "motion.yaml"

// NarrateRequest is one chapter to turn into subtitles and a video.
type NarrateRequest struct {
	PagesDir      string
	OutputDir     string
	Options       pipeline.RenderOptions
	SubtitlesOnly bool
}

// NarrateResult lists what a narration produced.
type NarrateResult struct {
	Pages        int    `json:"pages"`
	Captions     int    `json:"captions"`
	DurationMs   int    `json:"duration_ms"`
	Language     string `json:"language"`
	SubtitlePath string `json:"subtitle_path"`
	MotionPath   string `json:"motion_path"`
	VideoPath    string `json:"video_path,omitempty"`
}

// RendererFactory builds a renderer writing into outputDir.
type RendererFactory func(outputDir string) pipeline.Renderer

// TimelineStore keeps the latest caption timeline of a job.
type TimelineStore interface {
	SaveTimeline(ctx context.Context, record persistence.TimelineRecord) error
	LoadTimeline(ctx context.Context, ownerID string) (persistence.TimelineRecord, bool, error)
}

// ProgressReporter receives job progress; *jobs.Queue implements it.
type ProgressReporter interface {
	UpdateProgress(id, stage string, percent int) bool
	SetOutputs(id, videoPath, subtitlePath string)
}

// Enqueuer accepts narration jobs; *jobs.Queue implements it.
type Enqueuer interface {
	Enqueue(req jobs.EnqueueRequest) (*jobs.NarrationJob, bool)
}
