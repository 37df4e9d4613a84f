package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/MimeLyc/page-narrator/internal/caption"
	"github.com/MimeLyc/page-narrator/internal/config"
	"github.com/MimeLyc/page-narrator/internal/jobs"
	"github.com/MimeLyc/page-narrator/internal/library"
	"github.com/MimeLyc/page-narrator/internal/motion"
	"github.com/MimeLyc/page-narrator/internal/service"
	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSettingsStore struct {
	current   config.RuntimeSettings
	updateErr error
}

func (f *fakeSettingsStore) GetRuntimeSettings() (config.RuntimeSettings, error) {
	return f.current, nil
}

func (f *fakeSettingsStore) UpdateRuntimeSettings(next config.RuntimeSettings) (config.RuntimeSettings, error) {
	if f.updateErr != nil {
		return config.RuntimeSettings{}, f.updateErr
	}
	f.current = next
	return f.current, nil
}

func writePages(t *testing.T, dir string, names ...string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("img"), 0o644))
	}
}

func newLibrary(t *testing.T) (*library.Scanner, string, string) {
	t.Helper()
	inbox := filepath.Join(t.TempDir(), "inbox")
	output := filepath.Join(t.TempDir(), "output")
	require.NoError(t, os.MkdirAll(inbox, 0o755))
	return library.NewScanner(inbox, output), inbox, output
}

func serve(srv *Server, method, target string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServer_ListChaptersMarksActiveJobs(t *testing.T) {
	scanner, inbox, _ := newLibrary(t)
	writePages(t, filepath.Join(inbox, "series", "ch1"), "1.png")
	writePages(t, filepath.Join(inbox, "series", "ch2"), "1.png")

	queue := jobs.NewQueue(1, nil)
	queue.Enqueue(jobs.EnqueueRequest{
		Source:    jobs.SourceManual,
		DedupeKey: filepath.Join(inbox, "series", "ch2"),
		Payload:   jobs.JobPayload{PagesDir: filepath.Join(inbox, "series", "ch2")},
	})
	srv := NewServer(scanner, queue)

	rec := serve(srv, http.MethodGet, "/api/library/chapters", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var ret chaptersListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ret))
	require.Len(t, ret.Chapters, 2)
	assert.Equal(t, "series/ch1", ret.Chapters[0].ID)
	assert.False(t, ret.Chapters[0].InProgress)
	assert.True(t, ret.Chapters[1].InProgress)
	assert.Equal(t, jobs.StatusPending, ret.Chapters[1].JobStatus)
}

func TestServer_CreateJob_WithPagesDir(t *testing.T) {
	scanner, inbox, output := newLibrary(t)
	queue := jobs.NewQueue(1, nil)
	srv := NewServer(scanner, queue)

	pagesDir := filepath.Join(inbox, "vol1")
	body, _ := json.Marshal(map[string]any{"pages_dir": pagesDir, "subtitles_only": true})
	rec := serve(srv, http.MethodPost, "/api/jobs", body)

	require.Equal(t, http.StatusCreated, rec.Code)
	var ret struct {
		Created bool               `json:"created"`
		Job     *jobs.NarrationJob `json:"job"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ret))
	require.True(t, ret.Created)
	assert.Equal(t, pagesDir, ret.Job.DedupeKey)
	assert.Equal(t, filepath.Join(output, "vol1"), ret.Job.Payload.OutputDir)
	assert.True(t, ret.Job.Payload.SubtitlesOnly)

	again := serve(srv, http.MethodPost, "/api/jobs", body)
	assert.Equal(t, http.StatusOK, again.Code)
}

func TestServer_CreateJob_RequiresTarget(t *testing.T) {
	scanner, _, _ := newLibrary(t)
	srv := NewServer(scanner, jobs.NewQueue(1, nil))

	rec := serve(srv, http.MethodPost, "/api/jobs", []byte(`{}`))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "pages_dir")
}

func TestServer_CreateJob_UnknownChapter(t *testing.T) {
	scanner, _, _ := newLibrary(t)
	queue := jobs.NewQueue(1, nil)
	sched := service.NewScheduler(&config.Config{}, cron.New(), scanner, queue)
	srv := NewServer(scanner, queue, WithScheduler(sched))

	rec := serve(srv, http.MethodPost, "/api/jobs", []byte(`{"chapter_id":"nope"}`))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_ScanQueuesPendingChapters(t *testing.T) {
	scanner, inbox, _ := newLibrary(t)
	writePages(t, filepath.Join(inbox, "a"), "1.png")
	writePages(t, filepath.Join(inbox, "b"), "1.png")

	queue := jobs.NewQueue(1, nil)
	cfg := &config.Config{Render: config.RenderConfig{Width: 1280, Height: 720, FPS: 30}}
	srv := NewServer(scanner, queue, WithScheduler(service.NewScheduler(cfg, cron.New(), scanner, queue)))

	rec := serve(srv, http.MethodPost, "/api/scan", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var ret struct {
		Queued int `json:"queued"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ret))
	assert.Equal(t, 2, ret.Queued)
	for _, job := range queue.List() {
		assert.Equal(t, jobs.SourceManual, job.Source)
	}
}

func TestServer_Settings(t *testing.T) {
	scanner, _, _ := newLibrary(t)
	store := &fakeSettingsStore{current: config.RuntimeSettings{
		OCRModel: "gpt-4o-mini", CronExpr: "*/30 * * * *", RenderWidth: 1280, RenderHeight: 720, RenderFPS: 30,
	}}
	var applied config.RuntimeSettings
	srv := NewServer(scanner, jobs.NewQueue(1, nil),
		WithRuntimeSettingsStore(store),
		WithRuntimeSettingsApplier(func(next config.RuntimeSettings) error {
			applied = next
			return nil
		}),
	)

	rec := serve(srv, http.MethodGet, "/api/settings", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"cron_expr":"*/30 * * * *"`)

	next := config.RuntimeSettings{OCRModel: "gpt-4o", CronExpr: "0 * * * *", RenderWidth: 1920, RenderHeight: 1080, RenderFPS: 60, BackgroundAudio: true}
	body, _ := json.Marshal(next)
	rec = serve(srv, http.MethodPut, "/api/settings", body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, next, applied)
	assert.Equal(t, next, store.current)

	opts := srv.renderDefaults()
	assert.Equal(t, 1920, opts.Width)
	assert.True(t, opts.BackgroundAudio)
}

func TestServer_Settings_RejectsInvalid(t *testing.T) {
	scanner, _, _ := newLibrary(t)
	store := &fakeSettingsStore{}
	srv := NewServer(scanner, jobs.NewQueue(1, nil), WithRuntimeSettingsStore(store))

	body := []byte(`{"ocr_model":"m","cron_expr":"*/5 * * * *","render_width":1281,"render_height":720,"render_fps":30}`)
	rec := serve(srv, http.MethodPut, "/api/settings", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	store.updateErr = errors.New("disk full")
	body = []byte(`{"ocr_model":"m","cron_expr":"*/5 * * * *","render_width":1280,"render_height":720,"render_fps":30}`)
	rec = serve(srv, http.MethodPut, "/api/settings", body)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestServer_SettingsNotConfigured(t *testing.T) {
	scanner, _, _ := newLibrary(t)
	srv := NewServer(scanner, jobs.NewQueue(1, nil))

	rec := serve(srv, http.MethodGet, "/api/settings", nil)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestServer_JobDetailAndSubtitles(t *testing.T) {
	scanner, _, _ := newLibrary(t)
	queue := jobs.NewQueue(1, nil)
	srv := NewServer(scanner, queue)

	outDir := t.TempDir()
	srtPath := filepath.Join(outDir, "subtitles.srt")
	require.NoError(t, os.WriteFile(srtPath, []byte("1\n00:00:00,000 --> 00:00:01,000\nHi\n\n"), 0o644))

	job, _ := queue.Enqueue(jobs.EnqueueRequest{Source: jobs.SourceManual, DedupeKey: "d", Payload: jobs.JobPayload{PagesDir: "d", OutputDir: outDir}})

	rec := serve(srv, http.MethodGet, "/api/jobs/"+job.ID+"/subtitles.srt", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	done := make(chan struct{})
	queue.Start(func(ctx context.Context, j *jobs.NarrationJob) error {
		defer close(done)
		queue.SetOutputs(j.ID, "", srtPath)
		return nil
	})
	defer queue.Stop()
	<-done
	require.Eventually(t, func() bool {
		got, _ := queue.Get(job.ID)
		return got.Status == jobs.StatusSuccess
	}, timeout, tick)

	rec = serve(srv, http.MethodGet, "/api/jobs/"+job.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"success"`)

	rec = serve(srv, http.MethodGet, "/api/jobs/"+job.ID+"/subtitles.srt", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `attachment; filename="subtitles.srt"`, rec.Header().Get("Content-Disposition"))
	assert.Contains(t, rec.Body.String(), "Hi")

	rec = serve(srv, http.MethodGet, "/api/jobs/"+job.ID+"/motion", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	plan := motion.NewPlanner().Plan([]motion.Page{{ID: "p1", Path: "/pages/1.png"}},
		[]caption.Unit{{ID: "p1-0", Text: "Hi", DurationMs: 1000, PageIndex: 0}})
	require.NoError(t, motion.WriteFile(filepath.Join(outDir, "motion.yaml"), plan))
	rec = serve(srv, http.MethodGet, "/api/jobs/"+job.ID+"/motion", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got motion.Plan
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, plan, got)

	rec = serve(srv, http.MethodGet, "/api/jobs/job-999", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_ServesSPAFromStaticDir(t *testing.T) {
	staticDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(staticDir, "index.html"), []byte("<html>spa</html>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(staticDir, "app.js"), []byte("console.log(1)"), 0o644))

	scanner, _, _ := newLibrary(t)
	srv := NewServer(scanner, jobs.NewQueue(1, nil), WithUI(staticDir, true))

	for _, target := range []string{"/", "/sessions/abc", "/missing.css"} {
		rec := serve(srv, http.MethodGet, target, nil)
		assert.Equal(t, http.StatusOK, rec.Code, target)
		assert.Contains(t, rec.Body.String(), "spa", target)
	}

	rec := serve(srv, http.MethodGet, "/app.js", nil)
	assert.Contains(t, rec.Body.String(), "console.log")

	rec = serve(srv, http.MethodGet, "/api/unknown", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_UIDisabled(t *testing.T) {
	scanner, _, _ := newLibrary(t)
	srv := NewServer(scanner, jobs.NewQueue(1, nil))

	rec := serve(srv, http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
