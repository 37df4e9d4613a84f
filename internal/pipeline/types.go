package pipeline

import (
	"context"

	"github.com/MimeLyc/page-narrator/internal/caption"
	"github.com/MimeLyc/page-narrator/internal/motion"
)

// Stage is a step of the narration pipeline.
type Stage string

const (
	StageIdle             Stage = "idle"
	StageRecognizing      Stage = "recognizing"
	StageBuildingTimeline Stage = "building_timeline"
	StagePlanningMotion   Stage = "planning_motion"
	StageReadyToRender    Stage = "ready_to_render"
	StageRendering        Stage = "rendering"
	StageCompleted        Stage = "completed"
)

var stageLabels = map[Stage]string{
	StageIdle:             "Idle",
	StageRecognizing:      "Recognizing text",
	StageBuildingTimeline: "Building captions",
	StagePlanningMotion:   "Planning camera motion",
	StageReadyToRender:    "Ready to render",
	StageRendering:        "Rendering video",
	StageCompleted:        "Completed",
}

// Label is the display text for a stage.
func (s Stage) Label() string {
	if label, ok := stageLabels[s]; ok {
		return label
	}
	return string(s)
}

// State is the externally visible pipeline state.
type State struct {
	Stage   Stage  `json:"stage"`
	Label   string `json:"label"`
	Percent int    `json:"percent"`
	Busy    bool   `json:"busy"`
}

// Page is one source image. Pages are immutable once ingested.
type Page struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Path string `json:"path"`
}

// OCRResult is the recognized text of one page.
type OCRResult struct {
	PageID string `json:"pageId"`
	Text   string `json:"text"`
}

// ProgressFunc receives a stage-local fraction in [0, 1].
type ProgressFunc func(fraction float64)

// RenderRequest is everything the renderer needs to produce a video.
type RenderRequest struct {
	Pages    []Page
	Captions []caption.Unit
	Options  RenderOptions
	Motion   motion.Plan
}

// Recognizer extracts text from pages. Results must match the input order
// and cardinality; any failure fails the whole call.
type Recognizer interface {
	Recognize(ctx context.Context, pages []Page, progress ProgressFunc) ([]OCRResult, error)
}

// Renderer produces a playable video and returns an opaque handle to it.
type Renderer interface {
	Render(ctx context.Context, req RenderRequest, progress ProgressFunc) (string, error)
}

// MotionPlanner computes camera motion for the caption timeline.
type MotionPlanner interface {
	Plan(pages []motion.Page, units []caption.Unit) motion.Plan
}
