package service

import (
	"context"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/MimeLyc/page-narrator/internal/caption"
	"github.com/MimeLyc/page-narrator/internal/pipeline"
	"github.com/MimeLyc/page-narrator/internal/subtitle"
	"github.com/MimeLyc/page-narrator/pkg/log"
	"github.com/google/uuid"
)

var ErrSessionNotFound = pipeline.NewError(pipeline.ErrTypeNotFound, "session not found")

// SessionView is the JSON snapshot of an interactive session.
type SessionView struct {
	ID              string           `json:"id"`
	PagesDir        string           `json:"pages_dir"`
	State           pipeline.State   `json:"state"`
	Pages           []pipeline.Page  `json:"pages"`
	Captions        caption.Timeline `json:"captions"`
	TotalDurationMs int              `json:"total_duration_ms"`
	Video           string           `json:"video,omitempty"`
	Error           string           `json:"error,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
}

// CaptionEdit changes a caption's text, duration or both. Duration is the raw
// user input in milliseconds.
type CaptionEdit struct {
	Text     *string
	Duration *string
}

type session struct {
	id        string
	pagesDir  string
	createdAt time.Time
	orch      *pipeline.Orchestrator

	mu      sync.Mutex
	lastErr string
}

func (s *session) setError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		s.lastErr = ""
		return
	}
	s.lastErr = err.Error()
}

func (s *session) view() *SessionView {
	s.mu.Lock()
	lastErr := s.lastErr
	s.mu.Unlock()

	timeline := s.orch.Timeline()
	return &SessionView{
		ID:              s.id,
		PagesDir:        s.pagesDir,
		State:           s.orch.State(),
		Pages:           s.orch.Pages(),
		Captions:        timeline,
		TotalDurationMs: timeline.TotalDurationMs(),
		Video:           s.orch.Video(),
		Error:           lastErr,
		CreatedAt:       s.createdAt,
	}
}

type SessionsOption func(*Sessions)

func WithSessionPlanningPause(d time.Duration) SessionsOption {
	return func(s *Sessions) {
		s.pause = d
	}
}

// Sessions keeps interactive sessions in memory, each owning one
// orchestrator. Run and Render return immediately and continue on the
// context given to NewSessions.
type Sessions struct {
	ctx        context.Context
	recognizer pipeline.Recognizer
	renderers  RendererFactory
	pause      time.Duration
	outputRoot string

	mu       sync.RWMutex
	sessions map[string]*session
	wg       sync.WaitGroup
}

func NewSessions(ctx context.Context, recognizer pipeline.Recognizer, renderers RendererFactory, outputRoot string, opts ...SessionsOption) *Sessions {
	s := &Sessions{
		ctx:        ctx,
		recognizer: recognizer,
		renderers:  renderers,
		pause:      pipeline.DefaultPlanningPause,
		outputRoot: outputRoot,
		sessions:   make(map[string]*session),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create ingests the images of pagesDir into a new idle session.
func (s *Sessions) Create(pagesDir string) (*SessionView, error) {
	pages, err := pipeline.LoadPagesDir(pagesDir)
	if err != nil {
		return nil, pipeline.NewErrorWithCause(pipeline.ErrTypeValidation, "cannot read pages", err)
	}
	if len(pages) == 0 {
		return nil, pipeline.NewError(pipeline.ErrTypeValidation, "no page images found").
			WithContext("dir", pagesDir)
	}

	id := uuid.NewString()
	outputDir := filepath.Join(s.outputRoot, "sessions", id)
	sess := &session{
		id:        id,
		pagesDir:  pagesDir,
		createdAt: time.Now(),
		orch: pipeline.NewOrchestrator(s.recognizer, s.renderers(outputDir),
			pipeline.WithPlanningPause(s.pause)),
	}
	if err := sess.orch.SetPages(pages); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()

	log.Info("Created session %s with %d pages", id, len(pages))
	return sess.view(), nil
}

func (s *Sessions) get(id string) (*session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

func (s *Sessions) Get(id string) (*SessionView, error) {
	sess, err := s.get(id)
	if err != nil {
		return nil, err
	}
	return sess.view(), nil
}

// List returns every session, oldest first.
func (s *Sessions) List() []*SessionView {
	s.mu.RLock()
	all := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		all = append(all, sess)
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		return all[i].createdAt.Before(all[j].createdAt)
	})
	ret := make([]*SessionView, 0, len(all))
	for _, sess := range all {
		ret = append(ret, sess.view())
	}
	return ret
}

func (s *Sessions) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	delete(s.sessions, id)
	return nil
}

// Run starts recognition in the background. The session is busy by the time
// Run returns; a concurrent call fails with ErrBusy.
func (s *Sessions) Run(id string) error {
	sess, err := s.get(id)
	if err != nil {
		return err
	}
	step, err := sess.orch.BeginRun()
	if err != nil || step == nil {
		return err
	}

	s.background(func() {
		err := step(s.ctx)
		sess.setError(err)
		if err != nil {
			log.Error("Session %s run failed: %v", id, err)
		}
	})
	return nil
}

// Render starts video production in the background after checking that the
// session can render with opts.
func (s *Sessions) Render(id string, opts pipeline.RenderOptions) error {
	sess, err := s.get(id)
	if err != nil {
		return err
	}
	if err := opts.Validate(); err != nil {
		return pipeline.NewErrorWithCause(pipeline.ErrTypeValidation, "invalid render options", err)
	}
	step, err := sess.orch.BeginRender(opts)
	if err != nil || step == nil {
		return err
	}

	s.background(func() {
		_, err := step(s.ctx)
		sess.setError(err)
		if err != nil {
			log.Error("Session %s render failed: %v", id, err)
		}
	})
	return nil
}

// Reset drops the session's captions and video and re-ingests its pages.
func (s *Sessions) Reset(id string) (*SessionView, error) {
	sess, err := s.get(id)
	if err != nil {
		return nil, err
	}
	if err := sess.orch.SetPages(sess.orch.Pages()); err != nil {
		return nil, err
	}
	sess.setError(nil)
	return sess.view(), nil
}

// EditCaption applies edit and returns the new caption snapshot.
func (s *Sessions) EditCaption(id, captionID string, edit CaptionEdit) (caption.Timeline, error) {
	sess, err := s.get(id)
	if err != nil {
		return caption.Timeline{}, err
	}
	if edit.Text == nil && edit.Duration == nil {
		return caption.Timeline{}, pipeline.NewError(pipeline.ErrTypeValidation, "nothing to change")
	}

	var timeline caption.Timeline
	if edit.Text != nil {
		if timeline, err = sess.orch.SetCaptionText(captionID, *edit.Text); err != nil {
			return timeline, err
		}
	}
	if edit.Duration != nil {
		if timeline, err = sess.orch.SetCaptionDurationInput(captionID, *edit.Duration); err != nil {
			return timeline, err
		}
	}
	return timeline, nil
}

// Subtitles exports the current captions as an SRT document.
func (s *Sessions) Subtitles(id string) ([]byte, error) {
	sess, err := s.get(id)
	if err != nil {
		return nil, err
	}
	return subtitle.Format(subtitle.FromCaptions(sess.orch.Captions())), nil
}

// Wait blocks until every background stage has returned.
func (s *Sessions) Wait() {
	s.wg.Wait()
}

func (s *Sessions) background(fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := SafeExecute(func() error {
			fn()
			return nil
		}); err != nil {
			log.Error("Session task crashed: %v", err)
		}
	}()
}
