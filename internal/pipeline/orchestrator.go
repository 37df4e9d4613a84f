package pipeline

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/MimeLyc/page-narrator/internal/caption"
	"github.com/MimeLyc/page-narrator/internal/motion"
	"github.com/MimeLyc/page-narrator/pkg/log"
)

const DefaultPlanningPause = 600 * time.Millisecond

type Option func(*Orchestrator)

// WithPlanningPause sets the fixed latency of the motion planning stage.
func WithPlanningPause(d time.Duration) Option {
	return func(o *Orchestrator) {
		o.pause = d
	}
}

func WithMotionPlanner(p MotionPlanner) Option {
	return func(o *Orchestrator) {
		o.planner = p
	}
}

// WithOnChange registers a hook called after every state change. The hook
// runs outside the orchestrator lock and must not assume strict ordering
// between progress reports of the same stage.
func WithOnChange(fn func(State)) Option {
	return func(o *Orchestrator) {
		o.onChange = fn
	}
}

// Orchestrator drives recognize -> build timeline -> plan motion -> render
// for one session. Only one stage is in flight at a time; every mutating call
// made while busy returns ErrBusy.
type Orchestrator struct {
	recognizer Recognizer
	renderer   Renderer
	planner    MotionPlanner
	pause      time.Duration
	onChange   func(State)

	mu       sync.Mutex
	runID    uint64
	pages    []Page
	results  []OCRResult
	timeline caption.Timeline
	plan     motion.Plan
	video    string
	state    State
}

func NewOrchestrator(recognizer Recognizer, renderer Renderer, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		recognizer: recognizer,
		renderer:   renderer,
		planner:    motion.NewPlanner(),
		pause:      DefaultPlanningPause,
		state:      idleState(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func idleState() State {
	return State{Stage: StageIdle, Label: StageIdle.Label()}
}

// SetPages replaces the page set and resets all downstream state.
func (o *Orchestrator) SetPages(pages []Page) error {
	o.mu.Lock()
	if o.state.Busy {
		o.mu.Unlock()
		return ErrBusy
	}
	o.pages = slices.Clone(pages)
	o.resetDownstreamLocked()
	snapshot := o.state
	o.mu.Unlock()

	o.notify(snapshot)
	return nil
}

// Reset drops pages and every derived artifact and returns to idle.
func (o *Orchestrator) Reset() error {
	return o.SetPages(nil)
}

func (o *Orchestrator) resetDownstreamLocked() {
	o.runID++
	o.results = nil
	o.timeline = caption.Timeline{}
	o.plan = motion.Plan{}
	o.video = ""
	o.state = idleState()
}

// Run recognizes every page, builds the caption timeline and plans camera
// motion, leaving the pipeline ready to render. It is a no-op without pages.
//
// Results of the new run replace the previous ones only once recognition
// succeeds; after a failure the last successful captions stay available.
func (o *Orchestrator) Run(ctx context.Context) error {
	step, err := o.BeginRun()
	if err != nil || step == nil {
		return err
	}
	return step(ctx)
}

// BeginRun marks the pipeline busy and returns the rest of the run. The
// returned step is nil when there are no pages.
func (o *Orchestrator) BeginRun() (func(context.Context) error, error) {
	o.mu.Lock()
	if o.state.Busy {
		o.mu.Unlock()
		return nil, ErrBusy
	}
	if len(o.pages) == 0 {
		o.mu.Unlock()
		return nil, nil
	}
	o.runID++
	runID := o.runID
	pages := slices.Clone(o.pages)
	o.state = State{Stage: StageRecognizing, Label: StageRecognizing.Label(), Busy: true}
	snapshot := o.state
	o.mu.Unlock()
	o.notify(snapshot)

	return func(ctx context.Context) error {
		return o.run(ctx, runID, pages)
	}, nil
}

func (o *Orchestrator) run(ctx context.Context, runID uint64, pages []Page) error {
	log.Info("Recognizing %d pages (run %d)", len(pages), runID)
	results, err := o.recognizer.Recognize(ctx, pages, o.progressFor(runID, StageRecognizing))
	if err == nil && len(results) != len(pages) {
		err = fmt.Errorf("recognizer returned %d results for %d pages", len(results), len(pages))
	}
	if err != nil {
		o.fail(runID, StageRecognizing)
		return collaboratorError(StageRecognizing, err)
	}

	units := caption.Build(sourcesFor(pages, results))
	if !o.transition(runID, StageBuildingTimeline, func() {
		o.results = results
		o.timeline = caption.NewTimeline(units)
		o.plan = motion.Plan{}
		o.video = ""
		o.state.Percent = advancePercent(o.state.Percent, Percent(StageBuildingTimeline, 1))
	}) {
		return nil
	}
	log.Info("Built %d captions from %d pages (run %d)", len(units), len(pages), runID)

	if !o.transition(runID, StagePlanningMotion, nil) {
		return nil
	}
	if err := sleepContext(ctx, o.pause); err != nil {
		o.fail(runID, StagePlanningMotion)
		return err
	}
	plan := o.planner.Plan(motionPages(pages), units)

	o.transition(runID, StageReadyToRender, func() {
		o.plan = plan
		o.state.Percent = advancePercent(o.state.Percent, Percent(StagePlanningMotion, 1))
		o.state.Busy = false
	})
	return nil
}

// Render produces the video for the current captions. It is a no-op when
// there are no captions and requires the ready_to_render stage otherwise.
// A failed render returns the pipeline to ready_to_render so it can be retried.
func (o *Orchestrator) Render(ctx context.Context, opts RenderOptions) (string, error) {
	step, err := o.BeginRender(opts)
	if err != nil || step == nil {
		return "", err
	}
	return step(ctx)
}

// BeginRender checks that the pipeline can render with opts, marks it busy
// and returns the rendering step. The step is nil when there are no captions.
// The motion plan is rebuilt from the captions being rendered.
func (o *Orchestrator) BeginRender(opts RenderOptions) (func(context.Context) (string, error), error) {
	o.mu.Lock()
	if o.state.Busy {
		o.mu.Unlock()
		return nil, ErrBusy
	}
	if o.timeline.Len() == 0 {
		o.mu.Unlock()
		return nil, nil
	}
	if o.state.Stage != StageReadyToRender {
		stage := o.state.Stage
		o.mu.Unlock()
		return nil, NewErrorWithCause(ErrTypeNotReady, "render requested", ErrNotReady).
			WithContext("stage", string(stage))
	}
	if err := opts.Validate(); err != nil {
		o.mu.Unlock()
		return nil, NewErrorWithCause(ErrTypeValidation, "invalid render options", err)
	}

	runID := o.runID
	captions := o.timeline.Snapshot()
	o.plan = o.planner.Plan(motionPages(o.pages), captions)
	req := RenderRequest{
		Pages:    slices.Clone(o.pages),
		Captions: captions,
		Options:  opts,
		Motion:   o.plan,
	}
	o.state.Stage = StageRendering
	o.state.Label = StageRendering.Label()
	o.state.Percent = advancePercent(o.state.Percent, Percent(StageRendering, 0))
	o.state.Busy = true
	snapshot := o.state
	o.mu.Unlock()
	o.notify(snapshot)

	return func(ctx context.Context) (string, error) {
		return o.render(ctx, runID, req)
	}, nil
}

func (o *Orchestrator) render(ctx context.Context, runID uint64, req RenderRequest) (string, error) {
	opts := req.Options
	log.Info("Rendering %d captions at %dx%d@%d (run %d)", len(req.Captions), opts.Width, opts.Height, opts.FPS, runID)
	video, err := o.renderer.Render(ctx, req, o.progressFor(runID, StageRendering))
	if err != nil {
		o.transition(runID, StageReadyToRender, func() {
			o.state.Busy = false
		})
		return "", collaboratorError(StageRendering, err)
	}

	o.transition(runID, StageCompleted, func() {
		o.video = video
		o.state.Percent = Percent(StageCompleted, 1)
		o.state.Busy = false
	})
	return video, nil
}

// SetCaptionText replaces a caption's text and returns the new snapshot.
func (o *Orchestrator) SetCaptionText(id, text string) (caption.Timeline, error) {
	return o.edit(func(t caption.Timeline) (caption.Timeline, error) {
		return t.WithText(id, text)
	})
}

// SetCaptionDuration sets a caption's duration, clamped to the 500 ms floor.
func (o *Orchestrator) SetCaptionDuration(id string, ms int) (caption.Timeline, error) {
	return o.edit(func(t caption.Timeline) (caption.Timeline, error) {
		return t.WithDuration(id, ms)
	})
}

// SetCaptionDurationInput accepts raw user input; non-numeric input becomes the floor.
func (o *Orchestrator) SetCaptionDurationInput(id, raw string) (caption.Timeline, error) {
	return o.SetCaptionDuration(id, caption.ParseDurationInput(raw))
}

func (o *Orchestrator) edit(fn func(caption.Timeline) (caption.Timeline, error)) (caption.Timeline, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state.Busy {
		return o.timeline, ErrBusy
	}
	next, err := fn(o.timeline)
	if err != nil {
		return o.timeline, NewErrorWithCause(ErrTypeNotFound, "edit caption", err)
	}
	o.timeline = next
	if len(o.plan.Slides) > 0 {
		o.plan = o.planner.Plan(motionPages(o.pages), next.Snapshot())
	}
	return next, nil
}

func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) Pages() []Page {
	o.mu.Lock()
	defer o.mu.Unlock()
	return slices.Clone(o.pages)
}

func (o *Orchestrator) OCRResults() []OCRResult {
	o.mu.Lock()
	defer o.mu.Unlock()
	return slices.Clone(o.results)
}

// Timeline returns the current caption snapshot.
func (o *Orchestrator) Timeline() caption.Timeline {
	o.mu.Lock()
	defer o.mu.Unlock()
	return caption.Timeline{Version: o.timeline.Version, Units: o.timeline.Snapshot()}
}

func (o *Orchestrator) Captions() []caption.Unit {
	return o.Timeline().Units
}

func (o *Orchestrator) Motion() motion.Plan {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.plan
}

// Video returns the handle of the last rendered video, if any.
func (o *Orchestrator) Video() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.video
}

// transition moves a still-current run to the next stage. It reports false
// when the run has been superseded, in which case nothing is applied.
func (o *Orchestrator) transition(runID uint64, next Stage, apply func()) bool {
	o.mu.Lock()
	if o.runID != runID {
		o.mu.Unlock()
		log.Warn("Dropping results of superseded run %d", runID)
		return false
	}
	o.state.Stage = next
	o.state.Label = next.Label()
	if apply != nil {
		apply()
	}
	snapshot := o.state
	o.mu.Unlock()

	o.notify(snapshot)
	return true
}

// fail clears the busy flag and leaves the stage where the failure happened.
func (o *Orchestrator) fail(runID uint64, stage Stage) {
	o.mu.Lock()
	if o.runID != runID {
		o.mu.Unlock()
		return
	}
	o.state.Busy = false
	snapshot := o.state
	o.mu.Unlock()

	log.Error("Pipeline run %d failed during %s", runID, stage)
	o.notify(snapshot)
}

func (o *Orchestrator) progressFor(runID uint64, stage Stage) ProgressFunc {
	return func(fraction float64) {
		o.mu.Lock()
		if o.runID != runID || o.state.Stage != stage || !o.state.Busy {
			o.mu.Unlock()
			return
		}
		next := advancePercent(o.state.Percent, Percent(stage, fraction))
		if next == o.state.Percent {
			o.mu.Unlock()
			return
		}
		o.state.Percent = next
		snapshot := o.state
		o.mu.Unlock()

		o.notify(snapshot)
	}
}

func (o *Orchestrator) notify(s State) {
	if o.onChange != nil {
		o.onChange(s)
	}
}

// sourcesFor aligns OCR results with pages by id, falling back to position.
func sourcesFor(pages []Page, results []OCRResult) []caption.Source {
	byID := make(map[string]string, len(results))
	for _, r := range results {
		byID[r.PageID] = r.Text
	}

	ret := make([]caption.Source, len(pages))
	for i, p := range pages {
		text, ok := byID[p.ID]
		if !ok && i < len(results) {
			text = results[i].Text
		}
		ret[i] = caption.Source{PageID: p.ID, Text: text}
	}
	return ret
}

func motionPages(pages []Page) []motion.Page {
	ret := make([]motion.Page, len(pages))
	for i, p := range pages {
		ret[i] = motion.Page{ID: p.ID, Path: p.Path}
	}
	return ret
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
