package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/aretw0/keystone/internal/logging"
	"github.com/aretw0/keystone/pkg/domain"
	"github.com/go-chi/chi/v5"
)

// Event is one server-sent event.
type Event struct {
	Name string
	Data string
}

// StreamManager fans session events out to SSE subscribers.
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan Event]struct{} // SessionID -> set of channels
	logger      *slog.Logger
}

// NewStreamManager returns an empty manager. A nil logger discards output.
func NewStreamManager(logger *slog.Logger) *StreamManager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &StreamManager{
		subscribers: make(map[string]map[chan Event]struct{}),
		logger:      logger,
	}
}

// Subscribe registers a channel for sessionID. The returned func unsubscribes.
func (sm *StreamManager) Subscribe(sessionID string) (<-chan Event, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan Event, 10)
	if _, ok := sm.subscribers[sessionID]; !ok {
		sm.subscribers[sessionID] = make(map[chan Event]struct{})
	}
	sm.subscribers[sessionID][ch] = struct{}{}

	return ch, func() {
		sm.mu.Lock()
		defer sm.mu.Unlock()
		if subs, ok := sm.subscribers[sessionID]; ok {
			if _, ok := subs[ch]; ok {
				delete(subs, ch)
				close(ch)
			}
			if len(subs) == 0 {
				delete(sm.subscribers, sessionID)
			}
		}
	}
}

// Publish sends payload as JSON to every subscriber of sessionID.
// Slow subscribers lose the event instead of blocking the caller.
func (sm *StreamManager) Publish(sessionID, name string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		sm.logger.Error("SSE: encode failed", "event", name, "error", err)
		return
	}

	sm.mu.RLock()
	defer sm.mu.RUnlock()
	for ch := range sm.subscribers[sessionID] {
		select {
		case ch <- Event{Name: name, Data: string(data)}:
		default:
			sm.logger.Warn("SSE: client buffer full, dropping event", "session_id", sessionID, "event", name)
		}
	}
}

// Close ends every stream of sessionID.
func (sm *StreamManager) Close(sessionID string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	for ch := range sm.subscribers[sessionID] {
		close(ch)
	}
	delete(sm.subscribers, sessionID)
}

// CloseAll ends every open stream, e.g. on server shutdown.
func (sm *StreamManager) CloseAll() {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	for id, subs := range sm.subscribers {
		for ch := range subs {
			close(ch)
		}
		delete(sm.subscribers, id)
	}
}

// Subscribers returns the number of open streams for sessionID.
func (sm *StreamManager) Subscribers(sessionID string) int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.subscribers[sessionID])
}

// Hooks publishes machine lifecycle events, including the timer-driven gate
// reveal that no request observes. Ending a session closes its streams.
func (sm *StreamManager) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnCelebrate: func(_ context.Context, e *domain.EventBase) {
			sm.Publish(e.SessionID, string(e.Type), e)
		},
		OnGateShown: func(_ context.Context, e *domain.EventBase) {
			sm.Publish(e.SessionID, string(e.Type), e)
		},
		OnSubmit: func(_ context.Context, e *domain.SubmitEvent) {
			sm.Publish(e.SessionID, string(e.Type), e)
		},
		OnSessionEnd: func(_ context.Context, e *domain.EventBase) {
			sm.Close(e.SessionID)
		},
	}
}

// subscribeSession handles GET /api/sessions/{id}/events.
func (s *Server) subscribeSession(w http.ResponseWriter, r *http.Request) {
	m, err := s.engine.Session(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, r, fmt.Errorf("streaming not supported"))
		return
	}

	ch, cancel := s.streams.Subscribe(m.ID())
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	if data, err := json.Marshal(m.View()); err == nil {
		fmt.Fprintf(w, "event: view\ndata: %s\n\n", data)
	}
	flusher.Flush()

	s.logger.Info("SSE: client subscribed", "session_id", m.ID())
	for {
		select {
		case <-r.Context().Done():
			s.logger.Info("SSE: client disconnected", "session_id", m.ID())
			return
		case ev, ok := <-ch:
			if !ok {
				fmt.Fprintf(w, "event: closed\ndata: {}\n\n")
				flusher.Flush()
				return
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Name, ev.Data)
			flusher.Flush()
		}
	}
}
