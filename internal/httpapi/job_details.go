package httpapi

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/MimeLyc/page-narrator/internal/caption"
	"github.com/MimeLyc/page-narrator/internal/jobs"
	"github.com/MimeLyc/page-narrator/internal/motion"
	"github.com/MimeLyc/page-narrator/internal/service"
	"github.com/MimeLyc/page-narrator/pkg/log"
)

type jobDetailResponse struct {
	Job      *jobs.NarrationJob `json:"job"`
	Captions *caption.Timeline  `json:"captions,omitempty"`
	Language string             `json:"language,omitempty"`
	// Editable is set when the chapter can be reopened in an interactive
	// session.
	Editable bool `json:"editable"`
}

func (s *Server) handleJobDetail(w http.ResponseWriter, r *http.Request) {
	job, ok := s.queue.Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}

	ret := jobDetailResponse{
		Job:      job,
		Editable: s.sessions != nil && job.Terminal(),
	}
	if s.timelines != nil && job.Status == jobs.StatusSuccess {
		record, found, err := s.timelines.LoadTimeline(r.Context(), job.ID)
		if err != nil {
			log.Warn("Failed to load caption timeline of %s: %v", job.ID, err)
		} else if found {
			ret.Captions = &record.Timeline
			ret.Language = record.Language
		}
	}
	writeJSON(w, http.StatusOK, ret)
}

func (s *Server) handleJobSubtitles(w http.ResponseWriter, r *http.Request) {
	job, ok := s.queue.Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if job.Status != jobs.StatusSuccess || job.SubtitlePath == "" {
		writeError(w, http.StatusConflict, "job is not completed")
		return
	}

	data, err := os.ReadFile(job.SubtitlePath)
	if err != nil {
		if os.IsNotExist(err) {
			writeError(w, http.StatusNotFound, "subtitle file is missing")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeSRT(w, data)
}

// handleJobMotion returns the camera plan written next to the job's subtitles.
func (s *Server) handleJobMotion(w http.ResponseWriter, r *http.Request) {
	job, ok := s.queue.Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if job.Status != jobs.StatusSuccess || job.SubtitlePath == "" {
		writeError(w, http.StatusConflict, "job is not completed")
		return
	}

	plan, err := motion.ReadFile(filepath.Join(filepath.Dir(job.SubtitlePath), service.MotionFileName))
	if err != nil {
		if os.IsNotExist(err) {
			writeError(w, http.StatusNotFound, "motion plan is missing")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, plan)
}
