package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/keystone/internal/logging"
	"github.com/aretw0/keystone/pkg/domain"
	"github.com/aretw0/keystone/pkg/ports"
)

// DefaultTimeout bounds a single write.
const DefaultTimeout = 10 * time.Second

// Key prefixes for the entries a Recorder writes.
const (
	PrefixSurvey    = "survey"
	PrefixPeerGroup = "peer_group"
)

// Recorder writes survey submissions, peer-group signups and user actions to a ResponseStore.
// Safe for concurrent use.
type Recorder struct {
	store   ports.ResponseStore
	logger  *slog.Logger
	now     func() time.Time
	timeout time.Duration

	mu   sync.Mutex
	last time.Time
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithLogger sets the logger for write failures.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Recorder) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithClock overrides the time source used for keys and timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) {
		if now != nil {
			r.now = now
		}
	}
}

// WithTimeout bounds each write. Zero or negative disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(r *Recorder) {
		r.timeout = d
	}
}

// NewRecorder creates a Recorder. A nil store is a configuration error.
func NewRecorder(store ports.ResponseStore, opts ...Option) (*Recorder, error) {
	if store == nil {
		return nil, domain.NewError(domain.KindConfiguration, "persistence.NewRecorder", "response store is not configured", nil)
	}
	r := &Recorder{
		store:   store,
		logger:  logging.NewNop(),
		now:     time.Now,
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Store returns the underlying store.
func (r *Recorder) Store() ports.ResponseStore {
	return r.store
}

// Key builds the response-log key for a submission.
func Key(prefix, id string, at time.Time) string {
	return prefix + ":" + normalizeID(id) + ":" + at.UTC().Format(time.RFC3339Nano)
}

func normalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// tick returns a timestamp strictly later than any previous one from this recorder,
// so two calls never share a key even within the clock's resolution.
func (r *Recorder) tick() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now().UTC()
	if !now.After(r.last) {
		now = r.last.Add(time.Nanosecond)
	}
	r.last = now
	return now
}

// Save persists the responses of a completed survey under a key unique to this call.
// It performs exactly one write and never retries.
func (r *Recorder) Save(ctx context.Context, email string, responses domain.Responses) (domain.PersistedRecord, error) {
	const op = "persistence.Save"

	if err := domain.ValidateEmail(email); err != nil {
		return domain.PersistedRecord{}, err
	}

	at := r.tick()
	record := domain.PersistedRecord{
		Key:       Key(PrefixSurvey, email, at),
		Email:     strings.TrimSpace(email),
		Responses: responses.Clone(),
		Timestamp: at.Format(time.RFC3339Nano),
	}

	if err := r.write(ctx, op, record.Key, record); err != nil {
		return domain.PersistedRecord{}, err
	}
	r.logger.InfoContext(ctx, "survey saved", "key", record.Key)
	return record, nil
}

// SavePeerGroup validates and persists a peer-group signup and returns its key.
func (r *Recorder) SavePeerGroup(ctx context.Context, signup domain.PeerGroupSignup) (string, error) {
	const op = "persistence.SavePeerGroup"

	if err := signup.Validate(); err != nil {
		return "", err
	}

	at := r.tick()
	key := Key(PrefixPeerGroup, signup.Contact(), at)

	value := struct {
		domain.PeerGroupSignup
		SubmittedAt string `json:"submitted_at"`
	}{signup, at.Format(time.RFC3339Nano)}

	if err := r.write(ctx, op, key, value); err != nil {
		return "", err
	}
	r.logger.InfoContext(ctx, "peer group signup saved", "key", key)
	return key, nil
}

// LogAction records a user interaction under the user's ID.
// Failures are logged and returned; callers usually ignore them.
func (r *Recorder) LogAction(ctx context.Context, userID, action string, data map[string]any) error {
	const op = "persistence.LogAction"

	if strings.TrimSpace(userID) == "" || strings.TrimSpace(action) == "" {
		return domain.NewError(domain.KindValidation, op, "user id and action are required", nil)
	}
	if data == nil {
		data = map[string]any{}
	}
	record := domain.ActionRecord{
		Action:    action,
		Data:      data,
		Timestamp: r.tick().Format(time.RFC3339Nano),
	}
	return r.write(ctx, op, userID, record)
}

// Lookup returns every entry stored under key, newest first.
func (r *Recorder) Lookup(ctx context.Context, key string) ([]ports.LogEntry, error) {
	const op = "persistence.Lookup"
	if strings.TrimSpace(key) == "" {
		return nil, domain.NewError(domain.KindValidation, op, "key is required", nil)
	}
	entries, err := r.store.Read(ctx, key)
	if err != nil {
		return nil, classify(op, err)
	}
	return entries, nil
}

// Forget deletes every entry stored under key and reports how many were removed.
func (r *Recorder) Forget(ctx context.Context, key string) (int, error) {
	const op = "persistence.Forget"
	if strings.TrimSpace(key) == "" {
		return 0, domain.NewError(domain.KindValidation, op, "key is required", nil)
	}
	n, err := r.store.Delete(ctx, key)
	if err != nil {
		return 0, classify(op, err)
	}
	return n, nil
}

// Keys lists the most recently written keys, up to limit (0 = no limit).
// Stores that cannot enumerate keys yield ports.ErrUnsupported.
func (r *Recorder) Keys(ctx context.Context, limit int) ([]string, error) {
	const op = "persistence.Keys"
	lister, ok := r.store.(ports.Lister)
	if !ok {
		return nil, ports.ErrUnsupported
	}
	keys, err := lister.Keys(ctx, limit)
	switch {
	case errors.Is(err, ports.ErrUnsupported):
		return nil, err
	case err != nil:
		return nil, classify(op, err)
	}
	return keys, nil
}

// Ping checks that the store is reachable. Stores without a health check are assumed up.
func (r *Recorder) Ping(ctx context.Context) error {
	pinger, ok := r.store.(ports.Pinger)
	if !ok {
		return nil
	}
	if err := pinger.Ping(ctx); err != nil {
		return classify("persistence.Ping", err)
	}
	return nil
}

// Put writes an arbitrary JSON value under key.
func (r *Recorder) Put(ctx context.Context, key string, value json.RawMessage) (ports.LogEntry, error) {
	const op = "persistence.Put"
	if strings.TrimSpace(key) == "" {
		return ports.LogEntry{}, domain.NewError(domain.KindValidation, op, "key is required", nil)
	}
	if !json.Valid(value) {
		return ports.LogEntry{}, domain.NewError(domain.KindValidation, op, "value must be valid JSON", nil)
	}
	ctx, cancel := r.bound(ctx)
	defer cancel()
	entry, err := r.store.Write(ctx, key, value)
	if err != nil {
		return ports.LogEntry{}, classify(op, err)
	}
	return entry, nil
}

func (r *Recorder) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.timeout)
}

func (r *Recorder) write(ctx context.Context, op, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return domain.NewError(domain.KindUnexpected, op, "could not encode record", err)
	}

	ctx, cancel := r.bound(ctx)
	defer cancel()

	if _, err := r.store.Write(ctx, key, data); err != nil {
		classified := classify(op, err)
		r.logger.ErrorContext(ctx, "write failed",
			"key", key,
			"kind", classified.Kind,
			"error", err,
		)
		return classified
	}
	return nil
}

// classify maps a store failure onto an error kind.
// Timeouts, cancellations and backend errors are transient; undecodable data is unexpected.
func classify(op string, err error) *domain.Error {
	var tagged *domain.Error
	if errors.As(err, &tagged) {
		return tagged
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return domain.NewError(domain.KindTransientWrite, op, "the response store did not answer in time", err)
	case errors.Is(err, context.Canceled):
		return domain.NewError(domain.KindTransientWrite, op, "the request was canceled", err)
	case errors.Is(err, domain.ErrMalformedRecord):
		return domain.NewError(domain.KindUnexpected, op, "stored data could not be read", err)
	}
	return domain.NewError(domain.KindTransientWrite, op, "response store unavailable", err)
}
