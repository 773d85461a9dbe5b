// Package telegram posts new-lead notifications to a Telegram chat.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/aretw0/keystone/internal/logging"
	"github.com/aretw0/keystone/pkg/domain"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

const (
	defaultQueue   = 64
	defaultTimeout = 10 * time.Second
	defaultDrain   = 5 * time.Second
)

// Sender is the subset of *bot.Bot used by the notifier.
type Sender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

// Lead is one successful submission waiting to be announced.
type Lead struct {
	SessionID string
	Key       string
	At        time.Time
}

// Notifier queues leads from lifecycle hooks and sends them from its own goroutine,
// so a slow Telegram API never holds a session lock.
type Notifier struct {
	sender  Sender
	chatID  int64
	survey  string
	logger  *slog.Logger
	timeout time.Duration
	drain   time.Duration
	queue   chan Lead
	dropped atomic.Int64
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithLogger sets the logger for send failures.
func WithLogger(logger *slog.Logger) Option {
	return func(n *Notifier) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// WithSurveyTitle names the survey in messages.
func WithSurveyTitle(title string) Option {
	return func(n *Notifier) {
		n.survey = title
	}
}

// WithQueueSize bounds the number of pending notifications.
func WithQueueSize(size int) Option {
	return func(n *Notifier) {
		if size > 0 {
			n.queue = make(chan Lead, size)
		}
	}
}

// WithDrainTimeout bounds how long Run keeps sending buffered leads after its context ends.
func WithDrainTimeout(d time.Duration) Option {
	return func(n *Notifier) {
		if d > 0 {
			n.drain = d
		}
	}
}

// New creates a Notifier backed by the Telegram Bot API.
func New(token string, chatID int64, opts ...Option) (*Notifier, error) {
	if token == "" {
		return nil, domain.NewError(domain.KindConfiguration, "telegram.New", "bot token is required", nil)
	}
	b, err := bot.New(token, bot.WithSkipGetMe())
	if err != nil {
		return nil, domain.NewError(domain.KindConfiguration, "telegram.New", "could not create bot", err)
	}
	return NewWithSender(b, chatID, opts...), nil
}

// NewWithSender creates a Notifier over any Sender.
func NewWithSender(sender Sender, chatID int64, opts ...Option) *Notifier {
	n := &Notifier{
		sender:  sender,
		chatID:  chatID,
		survey:  "Survey",
		logger:  logging.NewNop(),
		timeout: defaultTimeout,
		drain:   defaultDrain,
		queue:   make(chan Lead, defaultQueue),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Hooks enqueues every successful submission.
func (n *Notifier) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnSubmit: func(_ context.Context, e *domain.SubmitEvent) {
			if e.IsError {
				return
			}
			n.Enqueue(Lead{SessionID: e.SessionID, Key: e.Key, At: e.Timestamp})
		},
	}
}

// Enqueue adds a lead without blocking. It reports false when the queue is full.
func (n *Notifier) Enqueue(l Lead) bool {
	select {
	case n.queue <- l:
		return true
	default:
		n.dropped.Add(1)
		n.logger.Warn("lead notification dropped, queue full", "key", l.Key)
		return false
	}
}

// Dropped returns how many leads were discarded because the queue was full.
func (n *Notifier) Dropped() int64 {
	return n.dropped.Load()
}

// Run sends queued leads until ctx is done, then flushes what is still buffered
// within the drain timeout. Failed sends are logged and not retried.
func (n *Notifier) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			n.flush(ctx)
			return
		case l := <-n.queue:
			n.deliver(ctx, l)
		}
	}
}

func (n *Notifier) flush(parent context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), n.drain)
	defer cancel()
	for {
		if ctx.Err() != nil {
			if left := len(n.queue); left > 0 {
				n.logger.Warn("lead notifications lost at shutdown", "count", left)
			}
			return
		}
		select {
		case l := <-n.queue:
			n.deliver(ctx, l)
		default:
			return
		}
	}
}

func (n *Notifier) deliver(ctx context.Context, l Lead) {
	if err := n.send(ctx, l); err != nil {
		n.logger.Error("lead notification failed", "key", l.Key, "error", err)
	}
}

func (n *Notifier) send(ctx context.Context, l Lead) error {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()
	_, err := n.sender.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: n.chatID,
		Text:   Message(n.survey, l),
	})
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// Message formats the notification text for a lead.
func Message(survey string, l Lead) string {
	var b strings.Builder
	fmt.Fprintf(&b, "New lead: %s\n", survey)
	fmt.Fprintf(&b, "Record: %s\n", l.Key)
	if !l.At.IsZero() {
		fmt.Fprintf(&b, "At: %s\n", l.At.UTC().Format(time.RFC1123))
	}
	fmt.Fprintf(&b, "Session: %s", l.SessionID)
	return b.String()
}
