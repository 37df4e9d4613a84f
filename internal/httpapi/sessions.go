package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/MimeLyc/page-narrator/internal/pipeline"
	"github.com/MimeLyc/page-narrator/internal/service"
	"github.com/MimeLyc/page-narrator/internal/subtitle"
)

type createSessionRequest struct {
	PagesDir  string `json:"pages_dir"`
	ChapterID string `json:"chapter_id"`
}

type renderSessionRequest struct {
	Width           int   `json:"width"`
	Height          int   `json:"height"`
	FPS             int   `json:"fps"`
	BackgroundAudio *bool `json:"background_audio"`
}

// editCaptionRequest accepts duration as a number or as the raw text of an
// input field.
type editCaptionRequest struct {
	Text     *string         `json:"text"`
	Duration json.RawMessage `json:"duration"`
}

func (s *Server) requireSessions(w http.ResponseWriter) bool {
	if s.sessions == nil {
		writeError(w, http.StatusNotImplemented, "sessions are not enabled")
		return false
	}
	return true
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	if !s.requireSessions(w) {
		return
	}
	writeJSON(w, http.StatusOK, s.sessions.List())
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	if !s.requireSessions(w) {
		return
	}
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	pagesDir := req.PagesDir
	if pagesDir == "" && req.ChapterID != "" {
		lib, err := s.scanner.Scan(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		for _, ch := range lib.Chapters {
			if ch.ID == req.ChapterID {
				pagesDir = ch.PagesDir
				break
			}
		}
		if pagesDir == "" {
			writeError(w, http.StatusNotFound, "chapter not found")
			return
		}
	}
	if pagesDir == "" {
		writeError(w, http.StatusBadRequest, "pages_dir or chapter_id is required")
		return
	}

	view, err := s.sessions.Create(pagesDir)
	if err != nil {
		writeNarrationError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	if !s.requireSessions(w) {
		return
	}
	view, err := s.sessions.Get(r.PathValue("id"))
	if err != nil {
		writeNarrationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if !s.requireSessions(w) {
		return
	}
	if err := s.sessions.Delete(r.PathValue("id")); err != nil {
		writeNarrationError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRunSession(w http.ResponseWriter, r *http.Request) {
	if !s.requireSessions(w) {
		return
	}
	id := r.PathValue("id")
	if err := s.sessions.Run(id); err != nil {
		writeNarrationError(w, err)
		return
	}
	s.writeSession(w, http.StatusAccepted, id)
}

func (s *Server) handleRenderSession(w http.ResponseWriter, r *http.Request) {
	if !s.requireSessions(w) {
		return
	}

	opts := s.renderDefaults()
	var req renderSessionRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json body")
			return
		}
	}
	if req.Width != 0 || req.Height != 0 {
		opts.Width = req.Width
		opts.Height = req.Height
	}
	if req.FPS != 0 {
		opts.FPS = req.FPS
	}
	if req.BackgroundAudio != nil {
		opts.BackgroundAudio = *req.BackgroundAudio
	}

	id := r.PathValue("id")
	if err := s.sessions.Render(id, opts); err != nil {
		writeNarrationError(w, err)
		return
	}
	s.writeSession(w, http.StatusAccepted, id)
}

func (s *Server) handleResetSession(w http.ResponseWriter, r *http.Request) {
	if !s.requireSessions(w) {
		return
	}
	view, err := s.sessions.Reset(r.PathValue("id"))
	if err != nil {
		writeNarrationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleEditCaption(w http.ResponseWriter, r *http.Request) {
	if !s.requireSessions(w) {
		return
	}
	var req editCaptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	edit := service.CaptionEdit{Text: req.Text}
	if raw := bytes.TrimSpace(req.Duration); len(raw) > 0 && string(raw) != "null" {
		duration := string(raw)
		var text string
		if json.Unmarshal(raw, &text) == nil {
			duration = text
		}
		edit.Duration = &duration
	}

	timeline, err := s.sessions.EditCaption(r.PathValue("id"), r.PathValue("captionId"), edit)
	if err != nil {
		writeNarrationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, timeline)
}

func (s *Server) handleSessionSubtitles(w http.ResponseWriter, r *http.Request) {
	if !s.requireSessions(w) {
		return
	}
	data, err := s.sessions.Subtitles(r.PathValue("id"))
	if err != nil {
		writeNarrationError(w, err)
		return
	}
	writeSRT(w, data)
}

func (s *Server) writeSession(w http.ResponseWriter, status int, id string) {
	view, err := s.sessions.Get(id)
	if err != nil {
		writeNarrationError(w, err)
		return
	}
	writeJSON(w, status, view)
}

func (s *Server) renderDefaults() pipeline.RenderOptions {
	opts := s.render
	if s.settings == nil {
		return opts
	}
	settings, err := s.settings.GetRuntimeSettings()
	if err != nil || settings.RenderWidth <= 0 || settings.RenderHeight <= 0 || settings.RenderFPS <= 0 {
		return opts
	}
	return pipeline.RenderOptions{
		Width:           settings.RenderWidth,
		Height:          settings.RenderHeight,
		FPS:             settings.RenderFPS,
		BackgroundAudio: settings.BackgroundAudio,
	}
}

func writeSRT(w http.ResponseWriter, data []byte) {
	w.Header().Set("Content-Type", "application/x-subrip; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+subtitle.DefaultFileName+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
