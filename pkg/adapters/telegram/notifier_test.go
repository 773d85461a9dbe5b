package telegram_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/keystone/pkg/adapters/telegram"
	"github.com/aretw0/keystone/pkg/domain"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []*bot.SendMessageParams
	err  error
	got  chan struct{}
}

func newFakeSender() *fakeSender {
	return &fakeSender{got: make(chan struct{}, 16)}
}

func (f *fakeSender) SendMessage(_ context.Context, p *bot.SendMessageParams) (*models.Message, error) {
	f.mu.Lock()
	f.sent = append(f.sent, p)
	f.mu.Unlock()
	f.got <- struct{}{}
	if f.err != nil {
		return nil, f.err
	}
	return &models.Message{}, nil
}

func (f *fakeSender) messages() []*bot.SendMessageParams {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*bot.SendMessageParams(nil), f.sent...)
}

func TestNotifier_SendsSuccessfulSubmissions(t *testing.T) {
	sender := newFakeSender()
	n := telegram.NewWithSender(sender, 42, telegram.WithSurveyTitle("Exit Readiness"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go n.Run(ctx)

	hooks := n.Hooks()
	hooks.OnSubmit(ctx, &domain.SubmitEvent{
		EventBase: domain.EventBase{SessionID: "s1", Type: domain.EventSubmit},
		IsError:   true,
		Kind:      domain.KindTransientWrite,
	})
	hooks.OnSubmit(ctx, &domain.SubmitEvent{
		EventBase: domain.EventBase{SessionID: "s1", Type: domain.EventSubmit},
		Key:       "survey:owner@firm.com:2026-01-02T03:04:05Z",
	})

	select {
	case <-sender.got:
	case <-time.After(2 * time.Second):
		t.Fatal("no message sent")
	}
	msgs := sender.messages()
	require.Len(t, msgs, 1, "failed submissions are not announced")
	assert.Equal(t, int64(42), msgs[0].ChatID)
	assert.Contains(t, msgs[0].Text, "New lead: Exit Readiness")
	assert.Contains(t, msgs[0].Text, "survey:owner@firm.com:2026-01-02T03:04:05Z")
}

func TestNotifier_QueueFull(t *testing.T) {
	n := telegram.NewWithSender(newFakeSender(), 1, telegram.WithQueueSize(1))

	assert.True(t, n.Enqueue(telegram.Lead{Key: "a"}))
	assert.False(t, n.Enqueue(telegram.Lead{Key: "b"}))
	assert.Equal(t, int64(1), n.Dropped())
}

func TestNotifier_SendFailureKeepsRunning(t *testing.T) {
	sender := newFakeSender()
	sender.err = errors.New("telegram down")
	n := telegram.NewWithSender(sender, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		n.Run(ctx)
		close(done)
	}()

	n.Enqueue(telegram.Lead{Key: "a"})
	n.Enqueue(telegram.Lead{Key: "b"})
	for i := 0; i < 2; i++ {
		select {
		case <-sender.got:
		case <-time.After(2 * time.Second):
			t.Fatal("worker stopped after a failure")
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestNew_RequiresToken(t *testing.T) {
	_, err := telegram.New("", 1)
	assert.Equal(t, domain.KindConfiguration, domain.KindOf(err))
}

func TestMessage(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	got := telegram.Message("Survey", telegram.Lead{SessionID: "s9", Key: "k", At: at})
	assert.Equal(t, "New lead: Survey\nRecord: k\nAt: Fri, 02 Jan 2026 03:04:05 UTC\nSession: s9", got)
}

func TestNotifier_FlushesQueueOnShutdown(t *testing.T) {
	sender := newFakeSender()
	n := telegram.NewWithSender(sender, 7, telegram.WithDrainTimeout(time.Second))

	for _, key := range []string{"a", "b", "c"} {
		require.True(t, n.Enqueue(telegram.Lead{Key: key}))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n.Run(ctx)

	msgs := sender.messages()
	require.Len(t, msgs, 3)
	for i, key := range []string{"a", "b", "c"} {
		assert.Contains(t, msgs[i].Text, "Record: "+key)
	}
}
