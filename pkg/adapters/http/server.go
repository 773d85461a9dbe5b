package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aretw0/keystone"
	"github.com/aretw0/keystone/internal/logging"
	"github.com/aretw0/keystone/pkg/domain"
	"github.com/aretw0/keystone/pkg/observability"
	"github.com/aretw0/keystone/pkg/persistence"
	"github.com/aretw0/keystone/pkg/report"
	"github.com/aretw0/keystone/pkg/session"
	"github.com/aretw0/keystone/pkg/survey"
	"github.com/getkin/kin-openapi/openapi3"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Engine is the part of keystone.Engine the HTTP API drives.
type Engine interface {
	Definition() *survey.Definition
	StartSession(ctx context.Context) (*keystone.Session, error)
	Session(id string) (*keystone.Session, error)
	EndSession(id string) error
	Submit(ctx context.Context, email string, responses domain.Responses) (domain.PersistedRecord, error)
	Report(responses domain.Responses) report.Report
	SignupPeerGroup(ctx context.Context, signup domain.PeerGroupSignup) (string, error)
	Recorder() *persistence.Recorder
	Sessions() *session.Manager
}

var _ Engine = (*keystone.Engine)(nil)

// Server serves the survey API.
type Server struct {
	engine   Engine
	logger   *slog.Logger
	metrics  *observability.Metrics
	gatherer prometheus.Gatherer
	streams  *StreamManager
	origins  []string
	spec     *openapi3.T
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetrics counts requests into m.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithGatherer sets what /metrics exposes. Defaults to prometheus.DefaultGatherer.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// WithStreams shares a StreamManager whose Hooks were given to the engine.
func WithStreams(sm *StreamManager) Option {
	return func(s *Server) {
		s.streams = sm
	}
}

// WithCORSOrigins restricts cross-origin access. No origins allows any.
func WithCORSOrigins(origins ...string) Option {
	return func(s *Server) {
		s.origins = origins
	}
}

// NewServer builds a Server for engine.
func NewServer(engine Engine, opts ...Option) (*Server, error) {
	s := &Server{engine: engine}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logging.NewNop()
	}
	if s.gatherer == nil {
		s.gatherer = prometheus.DefaultGatherer
	}
	if s.streams == nil {
		s.streams = NewStreamManager(s.logger)
	}
	spec, err := Spec(context.Background())
	if err != nil {
		return nil, err
	}
	s.spec = spec
	return s, nil
}

// NewHandler creates the HTTP handler for engine.
func NewHandler(engine Engine, opts ...Option) (http.Handler, error) {
	s, err := NewServer(engine, opts...)
	if err != nil {
		return nil, err
	}
	return s.Routes(), nil
}

// Routes returns the router with every endpoint mounted.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.instrument)
	r.Use(s.cors)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, ErrorBody{Error: "not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, ErrorBody{Error: "method not allowed"})
	})

	r.Get("/health", s.getHealth)
	r.Get("/health/store", s.getStoreHealth)
	r.Get("/info", s.getInfo)
	r.Get("/openapi.yaml", s.getOpenAPI)
	r.Get("/swagger", s.getSwagger)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Get("/api/survey", s.getSurvey)

	r.Post("/api/sessions", s.startSession)
	r.Get("/api/sessions/{id}", s.getSession)
	r.Delete("/api/sessions/{id}", s.endSession)
	r.Get("/api/sessions/{id}/events", s.subscribeSession)
	r.Post("/api/sessions/{id}/answer", s.intent(answerIntent))
	r.Post("/api/sessions/{id}/skip", s.intent(skipIntent))
	r.Post("/api/sessions/{id}/next", s.intent(func(_ *http.Request, m *keystone.Session) (bool, error) {
		return m.Next(), nil
	}))
	r.Post("/api/sessions/{id}/advance", s.intent(func(_ *http.Request, m *keystone.Session) (bool, error) {
		return m.Advance(), nil
	}))
	r.Post("/api/sessions/{id}/retreat", s.intent(func(_ *http.Request, m *keystone.Session) (bool, error) {
		return m.Retreat(), nil
	}))
	r.Post("/api/sessions/{id}/email", s.submitEmail)

	r.Post("/api/submissions", s.submitSurvey)
	r.Post("/api/reports", s.previewReport)
	r.Post("/api/peer-group", s.signupPeerGroup)
	r.Post("/api/actions", s.logAction)

	r.Get("/api/response-logs", s.readResponseLogs)
	r.Post("/api/response-logs", s.writeResponseLog)
	r.Delete("/api/response-logs", s.deleteResponseLogs)

	return r
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		if s.metrics != nil {
			s.metrics.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		}
		s.logger.DebugContext(r.Context(), "http request",
			"method", r.Method,
			"route", route,
			"status", status,
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := "*"
		if len(s.origins) > 0 {
			origin = ""
			requested := r.Header.Get("Origin")
			for _, o := range s.origins {
				if o == requested {
					origin = o
					break
				}
			}
			w.Header().Add("Vary", "Origin")
		}
		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// getHealth handles GET /health.
func (s *Server) getHealth(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, http.StatusOK, map[string]any{"status": "ok"})
}

// getStoreHealth handles GET /health/store.
func (s *Server) getStoreHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.engine.Recorder().Ping(ctx); err != nil {
		s.logger.WarnContext(r.Context(), "store health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, ErrorBody{Error: "response store unavailable"})
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"status": "ok"})
}

// getInfo handles GET /info.
func (s *Server) getInfo(w http.ResponseWriter, r *http.Request) {
	apiVersion := "unknown"
	if s.spec != nil && s.spec.Info != nil {
		apiVersion = s.spec.Info.Version
	}
	writeSuccess(w, http.StatusOK, map[string]any{
		"app":         "keystone-http",
		"version":     strings.TrimSpace(keystone.Version),
		"api_version": apiVersion,
		"survey":      s.engine.Definition().ID,
	})
}

// getSurvey handles GET /api/survey.
func (s *Server) getSurvey(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, http.StatusOK, map[string]any{"survey": s.engine.Definition()})
}
