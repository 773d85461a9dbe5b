package http

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/keystone"
	"github.com/aretw0/keystone/pkg/adapters/memory"
	"github.com/aretw0/keystone/pkg/domain"
	"github.com/aretw0/keystone/pkg/observability"
	"github.com/aretw0/keystone/pkg/ports"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// idleScheduler never fires; the gate stays hidden unless a test reveals it.
type idleScheduler struct{}

func (idleScheduler) AfterFunc(time.Duration, func()) func() bool {
	return func() bool { return true }
}

// failingStore refuses every operation.
type failingStore struct{ err error }

func (s failingStore) Write(context.Context, string, json.RawMessage) (ports.LogEntry, error) {
	return ports.LogEntry{}, s.err
}

func (s failingStore) Read(context.Context, string) ([]ports.LogEntry, error) {
	return nil, s.err
}

func (s failingStore) Delete(context.Context, string) (int, error) {
	return 0, s.err
}

var happyAnswers = domain.Responses{
	domain.QuestionMotivation:      "Retirement",
	domain.QuestionRevenue:         "$1M-$5M",
	domain.QuestionEmployees:       "10-50",
	domain.QuestionBuyerPreference: "No preference",
	domain.QuestionPreparation:     "No",
	domain.QuestionTimeline:        "6-12 months",
}

type fixture struct {
	engine   *keystone.Engine
	handler  http.Handler
	registry *prometheus.Registry
	streams  *StreamManager
}

func newFixture(t *testing.T, store ports.ResponseStore, opts ...Option) *fixture {
	t.Helper()
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	streams := NewStreamManager(nil)

	eng, err := keystone.New(store,
		keystone.WithScheduler(idleScheduler{}),
		keystone.WithMetrics(metrics),
		keystone.WithLifecycleHooks(streams.Hooks()),
	)
	require.NoError(t, err)
	t.Cleanup(eng.Close)

	opts = append([]Option{WithMetrics(metrics), WithGatherer(reg), WithStreams(streams)}, opts...)
	h, err := NewHandler(eng, opts...)
	require.NoError(t, err)
	return &fixture{engine: eng, handler: h, registry: reg, streams: streams}
}

func (f *fixture) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)

	var out map[string]any
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w, out
}

// walkToResults answers every question with happyAnswers and advances to Results.
func (f *fixture) walkToResults(t *testing.T, id string) {
	t.Helper()
	def := f.engine.Definition()
	for i := 0; i < def.Last(); i++ {
		step, _ := def.Step(i)
		if q, ok := step.AsQuestion(); ok {
			for _, item := range q.Items {
				w, body := f.do(t, http.MethodPost, "/api/sessions/"+id+"/answer",
					map[string]string{"question_id": item.ID, "value": happyAnswers[item.ID]})
				require.Equal(t, http.StatusOK, w.Code, w.Body.String())
				assert.Equal(t, true, body["changed"])
			}
		}
		w, _ := f.do(t, http.MethodPost, "/api/sessions/"+id+"/advance", nil)
		require.Equal(t, http.StatusOK, w.Code)
	}
}

func (f *fixture) start(t *testing.T) string {
	t.Helper()
	w, body := f.do(t, http.MethodPost, "/api/sessions", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, true, body["success"])
	id, _ := body["session_id"].(string)
	require.NotEmpty(t, id)
	return id
}

func view(body map[string]any) map[string]any {
	v, _ := body["view"].(map[string]any)
	return v
}

func TestHealthAndInfo(t *testing.T) {
	f := newFixture(t, memory.NewStore())

	w, body := f.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["success"])

	w, body = f.do(t, http.MethodGet, "/health/store", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, body = f.do(t, http.MethodGet, "/info", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "keystone-http", body["app"])
	assert.Equal(t, "1.0.0", body["api_version"])
	assert.Equal(t, strings.TrimSpace(keystone.Version), body["version"])
}

func TestOpenAPI_DocumentsEveryRoute(t *testing.T) {
	spec, err := Spec(context.Background())
	require.NoError(t, err)

	s, err := NewServer(nil)
	require.NoError(t, err)

	err = chi.Walk(s.Routes(), func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		item := spec.Paths.Value(route)
		if assert.NotNil(t, item, "route %s is not documented", route) {
			assert.NotNil(t, item.GetOperation(method), "%s %s is not documented", method, route)
		}
		return nil
	})
	require.NoError(t, err)
}

func TestOpenAPI_Served(t *testing.T) {
	f := newFixture(t, memory.NewStore())

	w, _ := f.do(t, http.MethodGet, "/openapi.yaml", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "openapi: 3.0.3")

	w, _ = f.do(t, http.MethodGet, "/swagger", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "/openapi.yaml")
}

func TestSession_HappyPath(t *testing.T) {
	store := memory.NewStore()
	f := newFixture(t, store)
	id := f.start(t)

	f.walkToResults(t, id)

	w, body := f.do(t, http.MethodGet, "/api/sessions/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	v := view(body)
	assert.Equal(t, string(domain.StepResults), v["kind"])
	assert.Equal(t, true, v["locked"])
	assert.Nil(t, v["report"])

	w, body = f.do(t, http.MethodPost, "/api/sessions/"+id+"/email", map[string]string{"email": "Owner@Example.com"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	v = view(body)
	rep, ok := v["report"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "$2M - $10M", rep["valuation_range"])

	keys, err := store.Keys(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.True(t, strings.HasPrefix(keys[0], "survey:owner@example.com:"))

	// a second submission conflicts
	w, body = f.do(t, http.MethodPost, "/api/sessions/"+id+"/email", map[string]string{"email": "owner@example.com"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.NotEmpty(t, body["error"])
}

func TestSession_Navigation(t *testing.T) {
	f := newFixture(t, memory.NewStore())
	id := f.start(t)

	w, body := f.do(t, http.MethodPost, "/api/sessions/"+id+"/retreat", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, body["changed"])

	w, body = f.do(t, http.MethodPost, "/api/sessions/"+id+"/next", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["changed"])
	assert.EqualValues(t, 1, view(body)["step_index"])

	// answering a question that is not on screen changes nothing
	w, body = f.do(t, http.MethodPost, "/api/sessions/"+id+"/answer",
		map[string]string{"question_id": domain.QuestionRevenue, "value": "$1M-$5M"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, body["changed"])

	w, body = f.do(t, http.MethodPost, "/api/sessions/"+id+"/answer", map[string]string{"value": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	details, _ := body["details"].(map[string]any)
	assert.Contains(t, details, "question_id")
}

func TestSession_Skip(t *testing.T) {
	f := newFixture(t, memory.NewStore())
	id := f.start(t)
	f.do(t, http.MethodPost, "/api/sessions/"+id+"/advance", nil)
	f.do(t, http.MethodPost, "/api/sessions/"+id+"/advance", nil)

	w, body := f.do(t, http.MethodPost, "/api/sessions/"+id+"/skip", map[string]string{"question_id": domain.QuestionMotivation})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["changed"])
	assert.EqualValues(t, 3, view(body)["step_index"])

	m, err := f.engine.Session(id)
	require.NoError(t, err)
	assert.Equal(t, domain.Skipped, m.State().Responses[domain.QuestionMotivation])
}

func TestSession_Email(t *testing.T) {
	t.Run("not at results", func(t *testing.T) {
		f := newFixture(t, memory.NewStore())
		id := f.start(t)
		w, _ := f.do(t, http.MethodPost, "/api/sessions/"+id+"/email", map[string]string{"email": "a@b.co"})
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("invalid email", func(t *testing.T) {
		f := newFixture(t, memory.NewStore())
		id := f.start(t)
		f.walkToResults(t, id)
		w, body := f.do(t, http.MethodPost, "/api/sessions/"+id+"/email", map[string]string{"email": "nope"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "Please enter a valid email address.", body["error"])
	})

	t.Run("store unavailable", func(t *testing.T) {
		f := newFixture(t, failingStore{err: errors.New("dial tcp: connection refused")})
		id := f.start(t)
		f.walkToResults(t, id)

		w, body := f.do(t, http.MethodPost, "/api/sessions/"+id+"/email", map[string]string{"email": "a@b.co"})
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Equal(t, msgUnavailable, body["error"])
		assert.NotContains(t, w.Body.String(), "connection refused")

		_, body = f.do(t, http.MethodGet, "/api/sessions/"+id, nil)
		gate, _ := view(body)["gate"].(map[string]any)
		require.NotNil(t, gate)
		assert.Equal(t, true, gate["visible"])
		assert.NotEmpty(t, gate["error"])
	})
}

func TestSession_NotFound(t *testing.T) {
	f := newFixture(t, memory.NewStore())

	for _, path := range []string{"/api/sessions/missing", "/api/sessions/missing/events"} {
		w, body := f.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusNotFound, w.Code, path)
		assert.Equal(t, "session not found", body["error"])
	}
	w, _ := f.do(t, http.MethodPost, "/api/sessions/missing/advance", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	id := f.start(t)
	w, _ = f.do(t, http.MethodDelete, "/api/sessions/"+id, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = f.do(t, http.MethodDelete, "/api/sessions/"+id, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSubmissions(t *testing.T) {
	store := memory.NewStore()
	f := newFixture(t, store)

	w, body := f.do(t, http.MethodPost, "/api/submissions", map[string]any{
		"email":     "lead@example.com",
		"responses": happyAnswers,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	key, _ := body["key"].(string)
	require.NotEmpty(t, key)

	entries, err := store.Read(context.Background(), key)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	var record domain.PersistedRecord
	require.NoError(t, json.Unmarshal(entries[0].Value, &record))
	assert.Equal(t, happyAnswers, record.Responses)

	w, _ = f.do(t, http.MethodPost, "/api/submissions", map[string]any{"email": ""})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/submissions", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReports(t *testing.T) {
	f := newFixture(t, memory.NewStore())

	w, body := f.do(t, http.MethodPost, "/api/reports", map[string]any{"responses": happyAnswers})
	require.Equal(t, http.StatusOK, w.Code)
	rep, _ := body["report"].(map[string]any)
	assert.Equal(t, "$2M - $10M", rep["valuation_range"])

	w, body = f.do(t, http.MethodPost, "/api/reports", map[string]any{})
	require.Equal(t, http.StatusOK, w.Code)
	rep, _ = body["report"].(map[string]any)
	assert.Equal(t, "Valuation pending", rep["valuation_range"])
}

func TestPeerGroup(t *testing.T) {
	f := newFixture(t, memory.NewStore())

	w, body := f.do(t, http.MethodPost, "/api/peer-group", map[string]any{
		"interests":      []string{"leadership"},
		"industry":       "commercial",
		"contact_method": "email",
		"name":           "Dana",
		"email":          "dana@example.com",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Contains(t, body["key"], "peer_group:dana@example.com:")

	w, body = f.do(t, http.MethodPost, "/api/peer-group", map[string]any{"contact_method": "text"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation failed", body["error"])
	details, _ := body["details"].(map[string]any)
	assert.Contains(t, details, "name")
}

func TestActions(t *testing.T) {
	store := memory.NewStore()
	f := newFixture(t, store)

	w, _ := f.do(t, http.MethodPost, "/api/actions", map[string]any{
		"user_id": "u-1",
		"action":  "download_report",
		"data":    map[string]any{"format": "markdown"},
	})
	require.Equal(t, http.StatusCreated, w.Code)

	entries, err := store.Read(context.Background(), "u-1")
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	w, _ = f.do(t, http.MethodPost, "/api/actions", map[string]any{"user_id": "u-1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestResponseLogs(t *testing.T) {
	f := newFixture(t, memory.NewStore())

	w, body := f.do(t, http.MethodPost, "/api/response-logs", map[string]any{"key": "debug", "value": map[string]int{"n": 1}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.NotNil(t, body["entry"])

	w, body = f.do(t, http.MethodGet, "/api/response-logs?key=debug", nil)
	require.Equal(t, http.StatusOK, w.Code)
	entries, _ := body["entries"].([]any)
	assert.Len(t, entries, 1)

	w, body = f.do(t, http.MethodGet, "/api/response-logs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []any{"debug"}, body["keys"])

	w, _ = f.do(t, http.MethodGet, "/api/response-logs?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, body = f.do(t, http.MethodDelete, "/api/response-logs?key=debug", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, body["deleted"])

	w, _ = f.do(t, http.MethodDelete, "/api/response-logs", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestResponseLogs_ListUnsupported(t *testing.T) {
	f := newFixture(t, failingStore{})

	w, _ := f.do(t, http.MethodGet, "/api/response-logs", nil)
	assert.Equal(t, http.StatusNotImplemented, w.Code)
}

func TestErrorResponse(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		msg    string
	}{
		{"not found", domain.ErrSessionNotFound, http.StatusNotFound, "session not found"},
		{"in flight", domain.ErrSubmissionInFlight, http.StatusConflict, domain.ErrSubmissionInFlight.Error()},
		{"validation", domain.NewError(domain.KindValidation, "op", "bad input", nil), http.StatusBadRequest, "bad input"},
		{"configuration", domain.NewError(domain.KindConfiguration, "op", "FIREBASE_DATABASE_URL is not set", nil), http.StatusServiceUnavailable, msgNotConfigured},
		{"transient", domain.NewError(domain.KindTransientWrite, "op", "timeout", nil), http.StatusServiceUnavailable, msgUnavailable},
		{"unexpected", domain.NewError(domain.KindUnexpected, "op", "secret detail", nil), http.StatusInternalServerError, msgInternal},
		{"untagged", errors.New("boom"), http.StatusInternalServerError, msgInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := errorResponse(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.msg, body.Error)
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, memory.NewStore())
	f.start(t)
	f.do(t, http.MethodGet, "/health", nil)

	w, _ := f.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	out := w.Body.String()
	assert.Contains(t, out, `keystone_http_requests_total{method="GET",route="/health",status="200"} 1`)
	assert.Contains(t, out, "keystone_sessions_started_total 1")
}

func TestCORS(t *testing.T) {
	t.Run("any origin", func(t *testing.T) {
		f := newFixture(t, memory.NewStore())
		req := httptest.NewRequest(http.MethodOptions, "/api/sessions", nil)
		w := httptest.NewRecorder()
		f.handler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("allow list", func(t *testing.T) {
		f := newFixture(t, memory.NewStore(), WithCORSOrigins("https://site.example"))

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set("Origin", "https://site.example")
		w := httptest.NewRecorder()
		f.handler.ServeHTTP(w, req)
		assert.Equal(t, "https://site.example", w.Header().Get("Access-Control-Allow-Origin"))

		req = httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set("Origin", "https://evil.example")
		w = httptest.NewRecorder()
		f.handler.ServeHTTP(w, req)
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestSubscribeSession(t *testing.T) {
	f := newFixture(t, memory.NewStore())
	srv := httptest.NewServer(f.handler)
	defer srv.Close()

	id := f.start(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/sessions/"+id+"/events", nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := make(chan string, 16)
	go func() {
		defer close(events)
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			if name, ok := strings.CutPrefix(scanner.Text(), "event: "); ok {
				events <- name
			}
		}
	}()

	next := func() string {
		select {
		case ev := <-events:
			return ev
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for event")
			return ""
		}
	}
	assert.Equal(t, "ping", next())
	assert.Equal(t, "view", next())

	require.Eventually(t, func() bool { return f.streams.Subscribers(id) == 1 }, time.Second, 10*time.Millisecond)
	f.do(t, http.MethodPost, "/api/sessions/"+id+"/advance", nil)
	assert.Equal(t, "view", next())

	f.do(t, http.MethodDelete, "/api/sessions/"+id, nil)
	assert.Equal(t, "closed", next())
}

func TestSubscribeSession_ClosedWhenReaped(t *testing.T) {
	f := newFixture(t, memory.NewStore())
	srv := httptest.NewServer(f.handler)
	defer srv.Close()

	id := f.start(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/sessions/"+id+"/events", nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	events := make(chan string, 16)
	go func() {
		defer close(events)
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			if name, ok := strings.CutPrefix(scanner.Text(), "event: "); ok {
				events <- name
			}
		}
	}()
	require.Eventually(t, func() bool { return f.streams.Subscribers(id) == 1 }, time.Second, 10*time.Millisecond)

	assert.Equal(t, 1, f.engine.Sessions().Reap(-time.Hour))

	var seen []string
	timeout := time.After(2 * time.Second)
	for done := false; !done; {
		select {
		case ev, ok := <-events:
			if !ok {
				done = true
				break
			}
			seen = append(seen, ev)
		case <-timeout:
			t.Fatalf("stream still open after reap, events so far: %v", seen)
		}
	}
	assert.Contains(t, seen, "closed")
	assert.Zero(t, f.streams.Subscribers(id))
}

func TestSession_IntentWaitsForSessionLock(t *testing.T) {
	f := newFixture(t, memory.NewStore())
	id := f.start(t)

	held := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = f.engine.Sessions().WithLock(context.Background(), id, func(context.Context, *keystone.Session) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	done := make(chan int, 1)
	go func() {
		w, _ := f.do(t, http.MethodPost, "/api/sessions/"+id+"/advance", nil)
		done <- w.Code
	}()

	select {
	case <-done:
		t.Fatal("advance ran while the session lock was held")
	case <-time.After(50 * time.Millisecond):
	}
	close(release)
	assert.Equal(t, http.StatusOK, <-done)
	assert.Equal(t, 1, f.engine.Sessions().Len())
}

func TestStreamManager_Hooks(t *testing.T) {
	sm := NewStreamManager(nil)
	ch, cancel := sm.Subscribe("s1")
	defer cancel()

	hooks := sm.Hooks()
	hooks.OnGateShown(context.Background(), &domain.EventBase{Type: domain.EventGateShown, SessionID: "s1"})
	hooks.OnGateShown(context.Background(), &domain.EventBase{Type: domain.EventGateShown, SessionID: "other"})

	ev := <-ch
	assert.Equal(t, "gate_shown", ev.Name)
	assert.Contains(t, ev.Data, `"session_id":"s1"`)
	assert.Empty(t, ch)
}

func TestStreamManager_SessionEndClosesStreams(t *testing.T) {
	sm := NewStreamManager(nil)
	ch, cancel := sm.Subscribe("s1")
	defer cancel()

	sm.Hooks().OnSessionEnd(context.Background(), &domain.EventBase{Type: domain.EventSessionEnd, SessionID: "s1"})

	_, ok := <-ch
	assert.False(t, ok)
	assert.Zero(t, sm.Subscribers("s1"))
}
