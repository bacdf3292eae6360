package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/rendis/nodeflow/internal/streaming"
)

// handleSSEGlobal streams all scene events to the client via Server-Sent Events.
func (s *Server) handleSSEGlobal(w http.ResponseWriter, r *http.Request) {
	s.serveSSE(w, r, eventFilter(r, ""))
}

// handleSSEScene streams events for one open scene.
func (s *Server) handleSSEScene(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFor(w, r)
	if !ok {
		return
	}
	s.serveSSE(w, r, eventFilter(r, sess.ID()))
}

// eventFilter reads ?node= and a comma-separated ?types= list.
func eventFilter(r *http.Request, sceneID string) streaming.EventFilter {
	f := streaming.EventFilter{SceneID: sceneID, NodeID: r.URL.Query().Get("node")}
	if types := r.URL.Query().Get("types"); types != "" {
		f.EventTypes = strings.Split(types, ",")
	}
	return f
}

// serveSSE is the common SSE implementation.
func (s *Server) serveSSE(w http.ResponseWriter, r *http.Request, filter streaming.EventFilter) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	hub := s.deps.Scenes.Hub()
	if hub == nil {
		writeError(w, http.StatusServiceUnavailable, "event streaming is disabled")
		return
	}

	ch, cancel, err := hub.Subscribe(r.Context(), filter)
	if err != nil {
		s.deps.Logger.ErrorContext(r.Context(), "SSE subscribe failed", "error", err)
		writeError(w, http.StatusInternalServerError, "subscribe failed")
		return
	}
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(event)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.EventType, data)
			flusher.Flush()
		}
	}
}
