package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/MimeLyc/page-narrator/internal/config"
	"github.com/MimeLyc/page-narrator/internal/jobs"
	"github.com/MimeLyc/page-narrator/internal/library"
	"github.com/MimeLyc/page-narrator/internal/pipeline"
)

type chaptersListResponse struct {
	InboxDir string            `json:"inbox_dir"`
	Chapters []chapterResponse `json:"chapters"`
}

type chapterResponse struct {
	library.Chapter
	InProgress bool        `json:"in_progress"`
	JobID      string      `json:"job_id,omitempty"`
	JobStatus  jobs.Status `json:"job_status,omitempty"`
	JobPercent int         `json:"job_percent,omitempty"`
}

func (s *Server) handleListChapters(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	lib, err := s.scanner.Scan(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	active := inProgressJobsByPagesDir(s.queue.List())
	ret := make([]chapterResponse, 0, len(lib.Chapters))
	for _, ch := range lib.Chapters {
		item := chapterResponse{Chapter: ch}
		if job, ok := active[ch.PagesDir]; ok {
			item.InProgress = true
			item.JobID = job.ID
			item.JobStatus = job.Status
			item.JobPercent = job.Percent
		}
		ret = append(ret, item)
	}
	writeJSON(w, http.StatusOK, chaptersListResponse{
		InboxDir: lib.InboxDir,
		Chapters: ret,
	})
}

func inProgressJobsByPagesDir(jobList []*jobs.NarrationJob) map[string]*jobs.NarrationJob {
	ret := make(map[string]*jobs.NarrationJob)
	for _, job := range jobList {
		if job == nil || job.Payload.PagesDir == "" || job.Terminal() {
			continue
		}
		existing, ok := ret[job.Payload.PagesDir]
		if !ok || preferInProgressJob(job, existing) {
			ret[job.Payload.PagesDir] = job
		}
	}
	return ret
}

func preferInProgressJob(next, current *jobs.NarrationJob) bool {
	nextRank := inProgressRank(next.Status)
	currentRank := inProgressRank(current.Status)
	if nextRank != currentRank {
		return nextRank > currentRank
	}
	return next.UpdatedAt.After(current.UpdatedAt)
}

func inProgressRank(status jobs.Status) int {
	switch status {
	case jobs.StatusRunning:
		return 2
	case jobs.StatusPending:
		return 1
	default:
		return 0
	}
}

type enqueueJobRequest struct {
	ChapterID     string `json:"chapter_id"`
	PagesDir      string `json:"pages_dir"`
	OutputDir     string `json:"output_dir"`
	SubtitlesOnly bool   `json:"subtitles_only"`
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.queue.List())
	case http.MethodPost:
		var req enqueueJobRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json body")
			return
		}

		var (
			job     *jobs.NarrationJob
			created bool
		)
		switch {
		case req.ChapterID != "" && s.scheduler != nil:
			var err error
			job, created, err = s.scheduler.EnqueueChapter(r.Context(), req.ChapterID, req.SubtitlesOnly)
			if err != nil {
				writeNarrationError(w, err)
				return
			}
		case req.PagesDir != "":
			pagesDir := filepath.Clean(req.PagesDir)
			outputDir := req.OutputDir
			if outputDir == "" {
				outputDir = s.scanner.OutputDirFor(pagesDir)
			}
			job, created = s.queue.Enqueue(jobs.EnqueueRequest{
				Source:    jobs.SourceManual,
				DedupeKey: pagesDir,
				Payload: jobs.JobPayload{
					PagesDir:      pagesDir,
					OutputDir:     outputDir,
					SubtitlesOnly: req.SubtitlesOnly,
				},
			})
		default:
			writeError(w, http.StatusBadRequest, "chapter_id or pages_dir is required")
			return
		}

		code := http.StatusCreated
		if !created {
			code = http.StatusOK
		}
		writeJSON(w, code, map[string]any{
			"created": created,
			"job":     job,
		})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.scheduler == nil {
		s.scanner.Invalidate()
		writeJSON(w, http.StatusAccepted, map[string]any{"ok": true})
		return
	}

	queued, err := s.scheduler.ScanNow(r.Context(), jobs.SourceManual)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"ok":     true,
		"queued": queued,
	})
}

type scheduleResponse struct {
	CronExpr string    `json:"cron_expr"`
	Next     time.Time `json:"next"`
	Last     time.Time `json:"last,omitzero"`
}

func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	if s.scheduler == nil {
		writeError(w, http.StatusNotImplemented, "scheduler is not configured")
		return
	}
	info, err := s.scheduler.NextRun(time.Now())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, scheduleResponse{
		CronExpr: info.Expression,
		Next:     info.Next,
		Last:     info.Last,
	})
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	if s.settings == nil {
		writeError(w, http.StatusNotImplemented, "settings store is not configured")
		return
	}

	switch r.Method {
	case http.MethodGet:
		settings, err := s.settings.GetRuntimeSettings()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, settings)
	case http.MethodPut:
		var req config.RuntimeSettings
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json body")
			return
		}
		if err := req.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		saved, err := s.settings.UpdateRuntimeSettings(req)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if s.apply != nil {
			if err := s.apply(saved); err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
		}
		writeJSON(w, http.StatusOK, saved)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

// writeNarrationError maps pipeline error types onto HTTP status codes.
func writeNarrationError(w http.ResponseWriter, err error) {
	var narrErr *pipeline.NarrationError
	if !errors.As(err, &narrErr) {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	status := http.StatusInternalServerError
	switch narrErr.Type {
	case pipeline.ErrTypeBusy, pipeline.ErrTypeNotReady:
		status = http.StatusConflict
	case pipeline.ErrTypeNotFound:
		status = http.StatusNotFound
	case pipeline.ErrTypeValidation:
		status = http.StatusBadRequest
	case pipeline.ErrTypeCollaborator:
		status = http.StatusBadGateway
	}
	writeJSON(w, status, map[string]any{
		"error": err.Error(),
		"type":  strings.ToLower(narrErr.Type.String()),
	})
}
