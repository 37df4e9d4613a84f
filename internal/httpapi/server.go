package httpapi

import (
	"context"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/MimeLyc/page-narrator/internal/config"
	"github.com/MimeLyc/page-narrator/internal/jobs"
	"github.com/MimeLyc/page-narrator/internal/library"
	"github.com/MimeLyc/page-narrator/internal/persistence"
	"github.com/MimeLyc/page-narrator/internal/pipeline"
	"github.com/MimeLyc/page-narrator/internal/service"
	"github.com/MimeLyc/page-narrator/pkg/icron"
)

type runtimeSettingsStore interface {
	GetRuntimeSettings() (config.RuntimeSettings, error)
	UpdateRuntimeSettings(next config.RuntimeSettings) (config.RuntimeSettings, error)
}

type runtimeSettingsApplier func(next config.RuntimeSettings) error

// scheduler is the part of *service.Scheduler the API drives.
type scheduler interface {
	ScanNow(ctx context.Context, source string) (int, error)
	EnqueueChapter(ctx context.Context, chapterID string, subtitlesOnly bool) (*jobs.NarrationJob, bool, error)
	NextRun(now time.Time) (*icron.TriggerInfo, error)
}

type timelineLoader interface {
	LoadTimeline(ctx context.Context, ownerID string) (persistence.TimelineRecord, bool, error)
}

type Server struct {
	scanner   *library.Scanner
	queue     *jobs.Queue
	sessions  *service.Sessions
	scheduler scheduler
	timelines timelineLoader
	settings  runtimeSettingsStore
	apply     runtimeSettingsApplier
	render    pipeline.RenderOptions

	uiEnabled    bool
	uiStaticDir  string
	pollInterval time.Duration

	mux    *http.ServeMux
	server *http.Server
}

type Option func(*Server)

func WithUI(staticDir string, enabled bool) Option {
	return func(s *Server) {
		s.uiStaticDir = staticDir
		s.uiEnabled = enabled
	}
}

func WithSessions(sessions *service.Sessions) Option {
	return func(s *Server) {
		s.sessions = sessions
	}
}

func WithScheduler(sched scheduler) Option {
	return func(s *Server) {
		s.scheduler = sched
	}
}

// WithTimelines enables caption details for finished jobs.
func WithTimelines(loader timelineLoader) Option {
	return func(s *Server) {
		s.timelines = loader
	}
}

// WithRenderDefaults sets the options used when a render request omits them.
func WithRenderDefaults(opts pipeline.RenderOptions) Option {
	return func(s *Server) {
		s.render = opts
	}
}

func WithRuntimeSettingsStore(store runtimeSettingsStore) Option {
	return func(s *Server) {
		s.settings = store
	}
}

func WithRuntimeSettingsApplier(apply runtimeSettingsApplier) Option {
	return func(s *Server) {
		s.apply = apply
	}
}

// WithPollInterval sets how often SSE streams push a fresh snapshot.
func WithPollInterval(d time.Duration) Option {
	return func(s *Server) {
		s.pollInterval = d
	}
}

func NewServer(scanner *library.Scanner, queue *jobs.Queue, opts ...Option) *Server {
	s := &Server{
		scanner:      scanner,
		queue:        queue,
		render:       pipeline.DefaultRenderOptions(),
		pollInterval: time.Second,
		mux:          http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/library/chapters", s.handleListChapters)
	s.mux.HandleFunc("/api/jobs", s.handleJobs)
	s.mux.HandleFunc("GET /api/jobs/stream", s.handleJobStream)
	s.mux.HandleFunc("GET /api/jobs/{id}", s.handleJobDetail)
	s.mux.HandleFunc("GET /api/jobs/{id}/subtitles.srt", s.handleJobSubtitles)
	s.mux.HandleFunc("GET /api/jobs/{id}/motion", s.handleJobMotion)
	s.mux.HandleFunc("/api/scan", s.handleScan)
	s.mux.HandleFunc("GET /api/schedule", s.handleSchedule)
	s.mux.HandleFunc("/api/settings", s.handleSettings)

	s.mux.HandleFunc("GET /api/sessions", s.handleListSessions)
	s.mux.HandleFunc("POST /api/sessions", s.handleCreateSession)
	s.mux.HandleFunc("GET /api/sessions/{id}", s.handleGetSession)
	s.mux.HandleFunc("DELETE /api/sessions/{id}", s.handleDeleteSession)
	s.mux.HandleFunc("POST /api/sessions/{id}/run", s.handleRunSession)
	s.mux.HandleFunc("POST /api/sessions/{id}/render", s.handleRenderSession)
	s.mux.HandleFunc("POST /api/sessions/{id}/reset", s.handleResetSession)
	s.mux.HandleFunc("PATCH /api/sessions/{id}/captions/{captionId}", s.handleEditCaption)
	s.mux.HandleFunc("GET /api/sessions/{id}/subtitles.srt", s.handleSessionSubtitles)
	s.mux.HandleFunc("GET /api/sessions/{id}/stream", s.handleSessionStream)

	s.mux.HandleFunc("/", s.handleStatic)
}

func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	if !s.uiEnabled || s.uiStaticDir == "" || strings.HasPrefix(r.URL.Path, "/api/") {
		http.NotFound(w, r)
		return
	}

	rel := strings.TrimPrefix(path.Clean(r.URL.Path), "/")
	index := filepath.Join(s.uiStaticDir, "index.html")

	// Client-side routes have no extension and always get the app shell.
	if rel == "" || filepath.Ext(rel) == "" {
		http.ServeFile(w, r, index)
		return
	}

	asset := filepath.Join(s.uiStaticDir, filepath.FromSlash(rel))
	if _, err := os.Stat(asset); err != nil {
		http.ServeFile(w, r, index)
		return
	}
	http.ServeFile(w, r, asset)
}
