package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/aretw0/keystone"
	"github.com/aretw0/keystone/pkg/domain"
	"github.com/go-chi/chi/v5"
)

type answerRequest struct {
	QuestionID string `json:"question_id"`
	Value      string `json:"value"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type submissionRequest struct {
	Email     string           `json:"email"`
	Responses domain.Responses `json:"responses"`
}

type reportRequest struct {
	Responses domain.Responses `json:"responses"`
}

type actionRequest struct {
	UserID string         `json:"user_id"`
	Action string         `json:"action"`
	Data   map[string]any `json:"data"`
}

type logWriteRequest struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

// intentFunc applies one intent to a session and reports whether state changed.
type intentFunc func(r *http.Request, m *keystone.Session) (bool, error)

// intent runs fn and renders the resulting view under the session lock, so a
// concurrent request cannot move the session between the two.
func (s *Server) intent(fn intentFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var (
			changed bool
			view    keystone.View
		)
		err := s.engine.Sessions().WithLock(r.Context(), chi.URLParam(r, "id"), func(_ context.Context, m *keystone.Session) error {
			var err error
			if changed, err = fn(r, m); err != nil {
				return err
			}
			view = m.View()
			return nil
		})
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.respondIntent(w, view, changed)
	}
}

// submitEmail handles POST /api/sessions/{id}/email. It holds no session lock
// around the write, so a concurrent submission reaches the machine and is
// refused as in flight.
func (s *Server) submitEmail(w http.ResponseWriter, r *http.Request) {
	m, err := s.engine.Session(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	changed, err := emailIntent(r, m)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.respondIntent(w, m.View(), changed)
}

func (s *Server) respondIntent(w http.ResponseWriter, view keystone.View, changed bool) {
	if changed {
		s.streams.Publish(view.SessionID, "view", view)
	}
	writeSuccess(w, http.StatusOK, map[string]any{"changed": changed, "view": view})
}

func answerIntent(r *http.Request, m *keystone.Session) (bool, error) {
	var body answerRequest
	if err := decodeJSON(r, &body); err != nil {
		return false, err
	}
	if err := required(map[string]string{"question_id": body.QuestionID, "value": body.Value}); err != nil {
		return false, err
	}
	return m.Answer(body.QuestionID, body.Value), nil
}

func skipIntent(r *http.Request, m *keystone.Session) (bool, error) {
	var body answerRequest
	if err := decodeJSON(r, &body); err != nil {
		return false, err
	}
	if err := required(map[string]string{"question_id": body.QuestionID}); err != nil {
		return false, err
	}
	return m.Skip(body.QuestionID), nil
}

func emailIntent(r *http.Request, m *keystone.Session) (bool, error) {
	var body emailRequest
	if err := decodeJSON(r, &body); err != nil {
		return false, err
	}
	if err := m.SubmitEmail(r.Context(), body.Email); err != nil {
		return false, err
	}
	return true, nil
}

// startSession handles POST /api/sessions.
func (s *Server) startSession(w http.ResponseWriter, r *http.Request) {
	m, err := s.engine.StartSession(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusCreated, map[string]any{"session_id": m.ID(), "view": m.View()})
}

// getSession handles GET /api/sessions/{id}.
func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	m, err := s.engine.Session(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"view": m.View()})
}

// endSession handles DELETE /api/sessions/{id}.
func (s *Server) endSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.engine.EndSession(id); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.streams.Close(id)
	writeSuccess(w, http.StatusOK, map[string]any{"session_id": id})
}

// submitSurvey handles POST /api/submissions.
func (s *Server) submitSurvey(w http.ResponseWriter, r *http.Request) {
	var body submissionRequest
	if err := decodeJSON(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	if body.Responses == nil {
		body.Responses = domain.Responses{}
	}
	record, err := s.engine.Submit(r.Context(), body.Email, body.Responses)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusCreated, map[string]any{"key": record.Key, "timestamp": record.Timestamp})
}

// previewReport handles POST /api/reports.
func (s *Server) previewReport(w http.ResponseWriter, r *http.Request) {
	var body reportRequest
	if err := decodeJSON(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"report": s.engine.Report(body.Responses)})
}

// signupPeerGroup handles POST /api/peer-group.
func (s *Server) signupPeerGroup(w http.ResponseWriter, r *http.Request) {
	signup := domain.NewPeerGroupSignup()
	if err := decodeJSON(r, &signup); err != nil {
		s.writeError(w, r, err)
		return
	}
	key, err := s.engine.SignupPeerGroup(r.Context(), signup)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusCreated, map[string]any{"key": key})
}

// logAction handles POST /api/actions.
func (s *Server) logAction(w http.ResponseWriter, r *http.Request) {
	var body actionRequest
	if err := decodeJSON(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.engine.Recorder().LogAction(r.Context(), body.UserID, body.Action, body.Data); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusCreated, nil)
}

// readResponseLogs handles GET /api/response-logs.
func (s *Server) readResponseLogs(w http.ResponseWriter, r *http.Request) {
	rec := s.engine.Recorder()
	key := r.URL.Query().Get("key")
	if key != "" {
		entries, err := rec.Lookup(r.Context(), key)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeSuccess(w, http.StatusOK, map[string]any{"key": key, "entries": entries})
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.writeError(w, r, domain.NewError(domain.KindValidation, "read logs", "limit must be a non-negative integer", err))
			return
		}
		limit = n
	}
	keys, err := rec.Keys(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"keys": keys})
}

// writeResponseLog handles POST /api/response-logs.
func (s *Server) writeResponseLog(w http.ResponseWriter, r *http.Request) {
	var body logWriteRequest
	if err := decodeJSON(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	entry, err := s.engine.Recorder().Put(r.Context(), body.Key, body.Value)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusCreated, map[string]any{"entry": entry})
}

// deleteResponseLogs handles DELETE /api/response-logs.
func (s *Server) deleteResponseLogs(w http.ResponseWriter, r *http.Request) {
	n, err := s.engine.Recorder().Forget(r.Context(), r.URL.Query().Get("key"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"deleted": n})
}
