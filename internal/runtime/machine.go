package runtime

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/keystone/internal/logging"
	"github.com/aretw0/keystone/pkg/domain"
	"github.com/aretw0/keystone/pkg/report"
	"github.com/aretw0/keystone/pkg/survey"
)

// Defaults for the gate reveal and the submission bound.
const (
	DefaultGateDelay     = 2 * time.Second
	DefaultSubmitTimeout = 10 * time.Second
)

// User-facing submission failure messages.
const (
	msgRetry   = "Failed to submit survey. Please check your connection and try again."
	msgGeneric = "Failed to submit survey. Please try again later."
)

// Saver persists a completed survey. *persistence.Recorder implements it.
type Saver interface {
	Save(ctx context.Context, email string, responses domain.Responses) (domain.PersistedRecord, error)
}

// Machine is the survey state machine for one session.
// Every method is safe for concurrent use; events run to completion under one mutex.
type Machine struct {
	id        string
	def       *survey.Definition
	saver     Saver
	hooks     domain.LifecycleHooks
	logger    *slog.Logger
	scheduler Scheduler
	renderers map[domain.StepKind]Renderer
	now       func() time.Time

	gateDelay     time.Duration
	submitTimeout time.Duration

	mu         sync.Mutex
	state      domain.SessionState
	gen        uint64
	epoch      uint64
	cancelGate func() bool
	closed     bool
	lastActive time.Time
}

// Option configures a Machine.
type Option func(*Machine)

// WithID sets the session ID reported in events and views.
func WithID(id string) Option {
	return func(m *Machine) { m.id = id }
}

// WithLogger sets the machine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Machine) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithLifecycleHooks registers observability callbacks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(m *Machine) { m.hooks = hooks }
}

// WithScheduler replaces the timer implementation used for the gate reveal.
func WithScheduler(s Scheduler) Option {
	return func(m *Machine) {
		if s != nil {
			m.scheduler = s
		}
	}
}

// WithGateDelay sets how long after reaching Results the email gate appears.
func WithGateDelay(d time.Duration) Option {
	return func(m *Machine) { m.gateDelay = d }
}

// WithSubmitTimeout bounds each SubmitEmail write. Zero disables the bound.
func WithSubmitTimeout(d time.Duration) Option {
	return func(m *Machine) { m.submitTimeout = d }
}

// WithRenderer overrides the renderer for one step kind.
func WithRenderer(kind domain.StepKind, r Renderer) Option {
	return func(m *Machine) { m.renderers[kind] = r }
}

// WithClock overrides the time source for events and activity tracking.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) {
		if now != nil {
			m.now = now
		}
	}
}

// NewMachine creates a machine over def. Call Start before driving it.
func NewMachine(def *survey.Definition, saver Saver, opts ...Option) *Machine {
	m := &Machine{
		def:           def,
		saver:         saver,
		logger:        logging.NewNop(),
		scheduler:     TimerScheduler{},
		renderers:     DefaultRenderers(),
		now:           time.Now,
		gateDelay:     DefaultGateDelay,
		submitTimeout: DefaultSubmitTimeout,
		state:         domain.NewSessionState(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.lastActive = m.now()
	return m
}

// ID returns the session ID.
func (m *Machine) ID() string { return m.id }

// Definition returns the survey this machine walks.
func (m *Machine) Definition() *survey.Definition { return m.def }

// Start resets the session: first step, no answers, no email, gate hidden.
func (m *Machine) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.stopGateLocked()
	m.epoch++
	m.state = domain.NewSessionState()
	m.touchLocked()

	if m.hooks.OnSessionStart != nil {
		m.hooks.OnSessionStart(context.Background(), m.eventLocked(domain.EventSessionStart))
	}
	m.emitStepEnterLocked()
}

// Answer records value for questionID if it belongs to the current Question step.
func (m *Machine) Answer(questionID, value string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false
	}
	if _, ok := m.itemPosLocked(questionID); !ok {
		return false
	}
	m.state.Responses[questionID] = value
	m.touchLocked()
	return true
}

// Skip records the skipped sentinel for questionID, then moves to the next item,
// or advances when it was the last item of the step.
func (m *Machine) Skip(questionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false
	}
	pos, ok := m.itemPosLocked(questionID)
	if !ok {
		return false
	}
	m.state.Responses[questionID] = domain.Skipped
	m.touchLocked()

	q, _ := m.currentStepLocked().AsQuestion()
	if pos < len(q.Items)-1 {
		m.state.ItemIndex = pos + 1
		return true
	}
	m.advanceLocked()
	return true
}

// Next moves to the next item of a multi-item Question step, or advances.
func (m *Machine) Next() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false
	}
	if q, ok := m.currentStepLocked().AsQuestion(); ok && m.state.ItemIndex < len(q.Items)-1 {
		m.state.ItemIndex++
		m.touchLocked()
		return true
	}
	return m.advanceLocked()
}

// Advance moves to the next step. It is a no-op on the Results step.
func (m *Machine) Advance() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false
	}
	return m.advanceLocked()
}

func (m *Machine) advanceLocked() bool {
	last := m.def.Last()
	if m.state.StepIndex >= last {
		return false
	}
	from := m.state.StepIndex
	m.state.StepIndex++
	m.state.ItemIndex = 0
	m.touchLocked()

	if from == last-1 {
		if m.hooks.OnCelebrate != nil {
			m.hooks.OnCelebrate(context.Background(), m.eventLocked(domain.EventCelebrate))
		}
		if !m.state.Submitted {
			m.scheduleGateLocked()
		}
	}
	m.emitStepEnterLocked()
	return true
}

// Retreat moves back one step, keeping answers. It is a no-op on the first step.
// Leaving Results cancels a pending gate reveal and hides the gate.
func (m *Machine) Retreat() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || m.state.StepIndex == 0 {
		return false
	}
	if m.state.StepIndex == m.def.Last() {
		m.stopGateLocked()
		m.state.GateVisible = false
	}
	m.state.StepIndex--
	m.state.ItemIndex = 0
	m.touchLocked()
	m.emitStepEnterLocked()
	return true
}

// SubmitEmail validates candidate and persists the responses with it.
// Only one write may be in flight; a concurrent call gets domain.ErrSubmissionInFlight.
func (m *Machine) SubmitEmail(ctx context.Context, candidate string) error {
	m.mu.Lock()
	switch {
	case m.closed:
		m.mu.Unlock()
		return domain.ErrSessionClosed
	case m.state.StepIndex != m.def.Last():
		m.mu.Unlock()
		return domain.ErrNotAtResults
	case m.state.Submitted:
		m.mu.Unlock()
		return domain.ErrAlreadySubmitted
	case m.state.Submitting:
		m.mu.Unlock()
		return domain.ErrSubmissionInFlight
	}
	if err := domain.ValidateEmail(candidate); err != nil {
		m.mu.Unlock()
		return err
	}
	email := strings.TrimSpace(candidate)
	m.state.Email = email
	m.state.Submitting = true
	responses := m.state.Responses.Clone()
	epoch := m.epoch
	m.touchLocked()
	m.mu.Unlock()

	// The write runs unlocked so View and navigation stay responsive.
	record, err := m.save(ctx, email, responses)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || epoch != m.epoch {
		// Torn down or restarted while the write was in flight.
		return err
	}
	m.state.Submitting = false

	event := &domain.SubmitEvent{EventBase: *m.eventLocked(domain.EventSubmit)}
	if err != nil {
		// A Retreat during the write already hid the gate; the next arrival reveals it again.
		if m.state.StepIndex == m.def.Last() {
			m.state.GateVisible = true
		}
		m.state.LastError = userMessage(err)
		event.IsError = true
		event.Kind = domain.KindOf(err)
		m.logger.WarnContext(ctx, "submission failed",
			"session_id", m.id,
			"kind", event.Kind,
			"error", err,
		)
	} else {
		m.stopGateLocked()
		m.state.Submitted = true
		m.state.GateVisible = false
		m.state.LastError = ""
		event.Key = record.Key
	}
	if m.hooks.OnSubmit != nil {
		m.hooks.OnSubmit(ctx, event)
	}
	return err
}

func (m *Machine) save(ctx context.Context, email string, responses domain.Responses) (domain.PersistedRecord, error) {
	if m.saver == nil {
		return domain.PersistedRecord{}, domain.NewError(domain.KindConfiguration, "submit email", "response store is not configured", nil)
	}
	if m.submitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.submitTimeout)
		defer cancel()
	}
	record, err := m.saver.Save(ctx, email, responses)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && domain.KindOf(err) == domain.KindUnexpected {
		err = domain.NewError(domain.KindTransientWrite, "submit email", "timed out", err)
	}
	return record, err
}

func userMessage(err error) string {
	var e *domain.Error
	if errors.As(err, &e) {
		switch e.Kind {
		case domain.KindValidation:
			return e.Message
		case domain.KindTransientWrite:
			return msgRetry
		}
	}
	return msgGeneric
}

// ProgressFraction is StepIndex/(stepCount-1).
func (m *Machine) ProgressFraction() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.progressLocked()
}

func (m *Machine) progressLocked() float64 {
	last := m.def.Last()
	if last <= 0 {
		return 1
	}
	return float64(m.state.StepIndex) / float64(last)
}

// ShowProgress reports whether the progress indicator is displayed: never on the first or last step.
func (m *Machine) ShowProgress() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.showProgressLocked()
}

func (m *Machine) showProgressLocked() bool {
	return m.state.StepIndex > 0 && m.state.StepIndex < m.def.Last()
}

// State returns a copy of the session state.
func (m *Machine) State() domain.SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Snapshot()
}

// Report returns the generated report once the session has submitted.
func (m *Machine) Report() (report.Report, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.state.Submitted {
		return report.Report{}, false
	}
	return report.Generate(m.state.Responses), true
}

// View renders the current step.
func (m *Machine) View() View {
	m.mu.Lock()
	defer m.mu.Unlock()

	step := m.currentStepLocked()
	in := RenderInput{
		SessionID:  m.id,
		Definition: m.def,
		State:      m.state.Snapshot(),
	}
	r, ok := m.renderers[step.Kind]
	if !ok {
		r = baseRenderer{}
	}
	v := r.Render(step, in)
	v.SessionID = m.id
	v.StepIndex = m.state.StepIndex
	v.StepCount = m.def.Len()
	v.Kind = step.Kind
	if m.showProgressLocked() {
		p := m.progressLocked()
		v.Progress = &p
	}
	return v
}

// LastActive returns when the session last handled an event.
func (m *Machine) LastActive() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastActive
}

// Closed reports whether Close was called.
func (m *Machine) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Close tears the session down and fires OnSessionEnd once.
// A pending gate reveal never fires afterwards.
func (m *Machine) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	m.stopGateLocked()
	if m.hooks.OnSessionEnd != nil {
		m.hooks.OnSessionEnd(context.Background(), m.eventLocked(domain.EventSessionEnd))
	}
}

func (m *Machine) scheduleGateLocked() {
	m.stopGateLocked()
	gen := m.gen
	m.cancelGate = m.scheduler.AfterFunc(m.gateDelay, func() {
		m.revealGate(gen)
	})
}

// stopGateLocked cancels the pending reveal and invalidates any callback already running.
func (m *Machine) stopGateLocked() {
	m.gen++
	if m.cancelGate != nil {
		m.cancelGate()
		m.cancelGate = nil
	}
}

func (m *Machine) revealGate(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || gen != m.gen {
		return
	}
	m.cancelGate = nil
	if m.state.StepIndex != m.def.Last() || m.state.Submitted {
		return
	}
	m.state.GateVisible = true
	if m.hooks.OnGateShown != nil {
		m.hooks.OnGateShown(context.Background(), m.eventLocked(domain.EventGateShown))
	}
}

func (m *Machine) currentStepLocked() domain.Step {
	step, _ := m.def.Step(m.state.StepIndex)
	return step
}

func (m *Machine) itemPosLocked(questionID string) (int, bool) {
	pos := m.currentStepLocked().ItemIndex(questionID)
	return pos, pos >= 0
}

func (m *Machine) touchLocked() {
	m.lastActive = m.now()
}

func (m *Machine) eventLocked(t domain.EventType) *domain.EventBase {
	return &domain.EventBase{
		Timestamp: m.now(),
		Type:      t,
		SessionID: m.id,
	}
}

func (m *Machine) emitStepEnterLocked() {
	if m.hooks.OnStepEnter == nil {
		return
	}
	m.hooks.OnStepEnter(context.Background(), &domain.StepEvent{
		EventBase: *m.eventLocked(domain.EventStepEnter),
		StepIndex: m.state.StepIndex,
		StepKind:  m.currentStepLocked().Kind,
	})
}
