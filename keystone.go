package keystone

import (
	"context"
	"log/slog"
	"time"

	"github.com/aretw0/keystone/internal/logging"
	"github.com/aretw0/keystone/internal/runtime"
	"github.com/aretw0/keystone/pkg/domain"
	"github.com/aretw0/keystone/pkg/observability"
	"github.com/aretw0/keystone/pkg/persistence"
	"github.com/aretw0/keystone/pkg/ports"
	"github.com/aretw0/keystone/pkg/report"
	"github.com/aretw0/keystone/pkg/session"
	"github.com/aretw0/keystone/pkg/survey"
)

// Session is one live survey state machine.
type Session = runtime.Machine

// View is the rendered form of a session's current step.
type View = runtime.View

// Engine is the high-level entry point for Keystone.
// It wires the survey definition, the recorder and the session registry together.
type Engine struct {
	def       *survey.Definition
	recorder  *persistence.Recorder
	sessions  *session.Manager
	hooks     domain.LifecycleHooks
	metrics   *observability.Metrics
	logger    *slog.Logger
	scheduler runtime.Scheduler

	gateDelay     time.Duration
	submitTimeout time.Duration
	maxSessions   int
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithDefinition replaces the embedded default survey.
func WithDefinition(def *survey.Definition) Option {
	return func(e *Engine) {
		e.def = def
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithMetrics feeds session, submission and step metrics to m.
func WithMetrics(m *observability.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithGateDelay sets how long after reaching Results the email gate appears.
func WithGateDelay(d time.Duration) Option {
	return func(e *Engine) {
		e.gateDelay = d
	}
}

// WithSubmitTimeout bounds each submission write.
func WithSubmitTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.submitTimeout = d
	}
}

// WithScheduler replaces the gate timer implementation.
func WithScheduler(s runtime.Scheduler) Option {
	return func(e *Engine) {
		e.scheduler = s
	}
}

// WithMaxSessions caps the number of live sessions.
func WithMaxSessions(n int) Option {
	return func(e *Engine) {
		e.maxSessions = n
	}
}

// New initializes a new Keystone Engine persisting to store.
// The store is constructed by the caller and injected here; a nil store is a configuration error.
func New(store ports.ResponseStore, opts ...Option) (*Engine, error) {
	eng := &Engine{
		gateDelay:     runtime.DefaultGateDelay,
		submitTimeout: runtime.DefaultSubmitTimeout,
	}
	for _, opt := range opts {
		opt(eng)
	}

	if eng.logger == nil {
		eng.logger = logging.NewNop()
	}
	if eng.def == nil {
		eng.def = survey.Default()
	}
	if err := eng.def.Validate(); err != nil {
		return nil, err
	}
	eng.logger = eng.logger.With("survey", eng.def.ID)

	recorder, err := persistence.NewRecorder(store,
		persistence.WithLogger(eng.logger),
		persistence.WithTimeout(eng.submitTimeout),
	)
	if err != nil {
		return nil, err
	}
	eng.recorder = recorder

	hooks := eng.hooks
	if eng.metrics != nil {
		hooks = observability.Compose(observability.Hooks(eng.metrics, nil), hooks)
	}

	machineOpts := []runtime.Option{
		runtime.WithLogger(eng.logger),
		runtime.WithLifecycleHooks(hooks),
		runtime.WithGateDelay(eng.gateDelay),
		runtime.WithSubmitTimeout(eng.submitTimeout),
	}
	if eng.scheduler != nil {
		machineOpts = append(machineOpts, runtime.WithScheduler(eng.scheduler))
	}

	managerOpts := []session.Option{
		session.WithLogger(eng.logger),
		session.WithMaxSessions(eng.maxSessions),
	}
	if eng.metrics != nil {
		gauge := eng.metrics.ActiveSessions
		managerOpts = append(managerOpts, session.WithOnChange(func(n int) { gauge.Set(float64(n)) }))
	}

	eng.sessions = session.NewManager(func(id string) *runtime.Machine {
		return runtime.NewMachine(eng.def, eng.recorder,
			append([]runtime.Option{runtime.WithID(id)}, machineOpts...)...)
	}, managerOpts...)

	return eng, nil
}

// Definition returns the survey served by this engine.
func (e *Engine) Definition() *survey.Definition {
	return e.def
}

// Recorder returns the persistence adapter.
func (e *Engine) Recorder() *persistence.Recorder {
	return e.recorder
}

// Sessions returns the session registry.
func (e *Engine) Sessions() *session.Manager {
	return e.sessions
}

// StartSession creates and starts a new survey session.
func (e *Engine) StartSession(ctx context.Context) (*Session, error) {
	return e.sessions.Start(ctx)
}

// Session returns a live session by ID.
func (e *Engine) Session(id string) (*Session, error) {
	return e.sessions.Get(id)
}

// EndSession tears a session down.
func (e *Engine) EndSession(id string) error {
	return e.sessions.Delete(id)
}

// Submit saves a completed survey without a session, as a one-shot server action.
func (e *Engine) Submit(ctx context.Context, email string, responses domain.Responses) (domain.PersistedRecord, error) {
	return e.recorder.Save(ctx, email, responses)
}

// Report generates the report for responses. It never touches the store.
func (e *Engine) Report(responses domain.Responses) report.Report {
	return report.Generate(responses)
}

// SignupPeerGroup validates and stores a peer-group signup.
func (e *Engine) SignupPeerGroup(ctx context.Context, signup domain.PeerGroupSignup) (string, error) {
	return e.recorder.SavePeerGroup(ctx, signup)
}

// Run reaps idle sessions until ctx is done.
func (e *Engine) Run(ctx context.Context, interval, idle time.Duration) {
	e.sessions.Run(ctx, interval, idle)
}

// Close tears down every live session.
func (e *Engine) Close() {
	e.sessions.CloseAll()
}
