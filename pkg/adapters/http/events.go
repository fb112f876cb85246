package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/go-chi/chi/v5"
)

// SubscribeEvents handles GET /sessions/{id}/events, a Server-Sent Events
// stream of execution diffs. The optional watch query (comma separated
// context, history, status) drops diffs that touch none of the listed parts.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeJSON(w, http.StatusInternalServerError, errorBody{Error: "streaming not supported"})
		return
	}

	sessionID := chi.URLParam(r, "id")
	if _, err := s.Sessions.Load(r.Context(), sessionID); err != nil {
		s.writeError(w, "SubscribeEvents", err)
		return
	}

	var watch []string
	if v := r.URL.Query().Get("watch"); v != "" {
		for _, field := range strings.Split(v, ",") {
			watch = append(watch, strings.TrimSpace(field))
		}
	}

	ch, cancel := s.Sessions.Subscribe(sessionID)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()
	s.Logger.Info("SSE: subscribed", "session_id", sessionID)

	for {
		select {
		case <-r.Context().Done():
			s.Logger.Info("SSE: client disconnected", "session_id", sessionID)
			return
		case diff, ok := <-ch:
			if !ok {
				return
			}
			if !matchesWatch(diff, watch) {
				continue
			}
			data, err := json.Marshal(diff)
			if err != nil {
				s.Logger.Error("SSE: diff encode failed", "err", err)
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}

func matchesWatch(diff *domain.StateDiff, watch []string) bool {
	if len(watch) == 0 {
		return true
	}
	for _, field := range watch {
		switch field {
		case "context":
			if len(diff.Variables) > 0 || len(diff.SessionMemory) > 0 ||
				diff.UserInput != nil || diff.CurrentIntent != nil {
				return true
			}
		case "history":
			if diff.History != nil {
				return true
			}
		case "status":
			if diff.Running != nil || diff.Paused != nil ||
				diff.CurrentNodeID != nil || diff.LastError != nil {
				return true
			}
		}
	}
	return false
}
