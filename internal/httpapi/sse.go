package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

func (s *Server) handleJobStream(w http.ResponseWriter, r *http.Request) {
	s.stream(w, r, func() (any, error) {
		return s.queue.List(), nil
	})
}

func (s *Server) handleSessionStream(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		writeError(w, http.StatusNotImplemented, "sessions are not enabled")
		return
	}
	id := r.PathValue("id")
	if _, err := s.sessions.Get(id); err != nil {
		writeNarrationError(w, err)
		return
	}
	s.stream(w, r, func() (any, error) {
		return s.sessions.Get(id)
	})
}

// stream pushes snapshot() as an SSE data frame on connect and then once per
// poll interval until the client leaves or snapshot fails.
func (s *Server) stream(w http.ResponseWriter, r *http.Request, snapshot func() (any, error)) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	var last []byte
	send := func() bool {
		data, err := snapshot()
		if err != nil {
			return false
		}
		payload, err := json.Marshal(data)
		if err != nil {
			return false
		}
		if last != nil && string(payload) == string(last) {
			return true
		}
		last = payload
		if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	if !send() {
		return
	}

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if !send() {
				return
			}
		}
	}
}
