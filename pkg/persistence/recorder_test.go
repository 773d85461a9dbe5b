package persistence_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/keystone/pkg/adapters/memory"
	"github.com/aretw0/keystone/pkg/domain"
	"github.com/aretw0/keystone/pkg/persistence"
	"github.com/aretw0/keystone/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// failingStore returns err from every operation and counts writes.
type failingStore struct {
	err    error
	writes int
}

func (s *failingStore) Write(ctx context.Context, key string, value json.RawMessage) (ports.LogEntry, error) {
	s.writes++
	return ports.LogEntry{}, s.err
}

func (s *failingStore) Read(ctx context.Context, key string) ([]ports.LogEntry, error) {
	return nil, s.err
}

func (s *failingStore) Delete(ctx context.Context, key string) (int, error) {
	return 0, s.err
}

// blockingStore waits for the context to end.
type blockingStore struct{ failingStore }

func (s *blockingStore) Write(ctx context.Context, key string, value json.RawMessage) (ports.LogEntry, error) {
	<-ctx.Done()
	return ports.LogEntry{}, ctx.Err()
}

func fixedClock() func() time.Time {
	t := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time { return t }
}

func answers() domain.Responses {
	return domain.Responses{
		domain.QuestionMotivation:      "Retirement planning",
		domain.QuestionRevenue:         "$1M-$5M",
		domain.QuestionEmployees:       "11-50",
		domain.QuestionBuyerPreference: "Family member",
		domain.QuestionPreparation:     "Somewhat prepared",
		domain.QuestionTimeline:        "1-3 years",
	}
}

func TestNewRecorder_NilStore(t *testing.T) {
	_, err := persistence.NewRecorder(nil)
	require.Error(t, err)
	assert.Equal(t, domain.KindConfiguration, domain.KindOf(err))
}

func TestRecorder_Save(t *testing.T) {
	store := memory.NewStore()
	rec, err := persistence.NewRecorder(store, persistence.WithClock(fixedClock()))
	require.NoError(t, err)
	ctx := context.Background()

	record, err := rec.Save(ctx, " Owner@Firm.com ", answers())
	require.NoError(t, err)

	assert.Equal(t, "survey:owner@firm.com:2024-05-01T12:00:00Z", record.Key)
	assert.Equal(t, "Owner@Firm.com", record.Email)
	assert.Equal(t, "2024-05-01T12:00:00Z", record.Timestamp)

	entries, err := store.Read(ctx, record.Key)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	var stored domain.PersistedRecord
	require.NoError(t, json.Unmarshal(entries[0].Value, &stored))
	assert.Equal(t, record.Email, stored.Email)
	assert.Equal(t, answers(), stored.Responses)
}

func TestRecorder_Save_UniqueKeys(t *testing.T) {
	store := memory.NewStore()
	// A frozen clock forces the recorder to separate keys on its own
	rec, err := persistence.NewRecorder(store, persistence.WithClock(fixedClock()))
	require.NoError(t, err)
	ctx := context.Background()

	const n = 50
	keys := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			record, err := rec.Save(ctx, "a@b.co", answers())
			if assert.NoError(t, err) {
				keys <- record.Key
			}
		}()
	}
	wg.Wait()
	close(keys)

	seen := map[string]bool{}
	for k := range keys {
		assert.False(t, seen[k], "duplicate key %s", k)
		seen[k] = true
	}
	assert.Len(t, seen, n)
	assert.Equal(t, n, store.Len())
}

func TestRecorder_Save_InvalidEmail(t *testing.T) {
	store := &failingStore{}
	rec, err := persistence.NewRecorder(store)
	require.NoError(t, err)

	_, err = rec.Save(context.Background(), "not-an-email", answers())
	require.Error(t, err)
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))
	assert.Zero(t, store.writes, "validation failures never reach the store")
}

func TestRecorder_Save_Classification(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want domain.ErrorKind
	}{
		{"backend", errors.New("connection refused"), domain.KindTransientWrite},
		{"deadline", fmt.Errorf("dial: %w", context.DeadlineExceeded), domain.KindTransientWrite},
		{"malformed", domain.ErrMalformedRecord, domain.KindUnexpected},
		{"tagged", domain.NewError(domain.KindConfiguration, "store", "missing url", nil), domain.KindConfiguration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &failingStore{err: tt.err}
			rec, err := persistence.NewRecorder(store)
			require.NoError(t, err)

			_, err = rec.Save(context.Background(), "a@b.co", answers())
			require.Error(t, err)
			assert.Equal(t, tt.want, domain.KindOf(err))
			assert.Equal(t, 1, store.writes, "no retries")
		})
	}
}

func TestRecorder_Save_Timeout(t *testing.T) {
	rec, err := persistence.NewRecorder(&blockingStore{}, persistence.WithTimeout(20*time.Millisecond))
	require.NoError(t, err)

	start := time.Now()
	_, err = rec.Save(context.Background(), "a@b.co", answers())
	require.Error(t, err)
	assert.True(t, domain.IsRetryable(err))
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestRecorder_Save_DoesNotAliasResponses(t *testing.T) {
	rec, err := persistence.NewRecorder(memory.NewStore())
	require.NoError(t, err)

	in := answers()
	record, err := rec.Save(context.Background(), "a@b.co", in)
	require.NoError(t, err)

	in[domain.QuestionRevenue] = "changed"
	assert.Equal(t, "$1M-$5M", record.Responses[domain.QuestionRevenue])
}

func TestRecorder_SavePeerGroup(t *testing.T) {
	store := memory.NewStore()
	rec, err := persistence.NewRecorder(store, persistence.WithClock(fixedClock()))
	require.NoError(t, err)
	ctx := context.Background()

	signup := domain.NewPeerGroupSignup()
	_, err = rec.SavePeerGroup(ctx, signup)
	require.Error(t, err)
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))

	signup.Name = "Pat"
	signup.Phone = "555-0100"
	signup.Industry = "commercial"
	signup.Interests = []string{"leadership"}

	key, err := rec.SavePeerGroup(ctx, signup)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, "peer_group:555-0100:"))

	entries, err := rec.Lookup(ctx, key)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, string(entries[0].Value), `"submitted_at"`)
	assert.Contains(t, string(entries[0].Value), `"industry":"commercial"`)
}

func TestRecorder_LogAction(t *testing.T) {
	rec, err := persistence.NewRecorder(memory.NewStore())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, rec.LogAction(ctx, "user-1", "view_report", nil))
	require.NoError(t, rec.LogAction(ctx, "user-1", "download_report", map[string]any{"format": "md"}))

	entries, err := rec.Lookup(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)

	var latest domain.ActionRecord
	require.NoError(t, json.Unmarshal(entries[0].Value, &latest))
	assert.Equal(t, "download_report", latest.Action)
	assert.Equal(t, "md", latest.Data["format"])

	err = rec.LogAction(ctx, "", "x", nil)
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))
}

func TestRecorder_PutLookupForget(t *testing.T) {
	rec, err := persistence.NewRecorder(memory.NewStore())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = rec.Put(ctx, "k", json.RawMessage(`{"a":1}`))
	require.NoError(t, err)

	_, err = rec.Put(ctx, "k", json.RawMessage(`{bad`))
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))

	n, err := rec.Forget(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = rec.Lookup(ctx, " ")
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))
}

func TestRecorder_LookupFailure(t *testing.T) {
	rec, err := persistence.NewRecorder(&failingStore{err: domain.ErrMalformedRecord})
	require.NoError(t, err)

	_, err = rec.Lookup(context.Background(), "k")
	assert.Equal(t, domain.KindUnexpected, domain.KindOf(err))
}

func TestRecorder_Keys(t *testing.T) {
	ctx := context.Background()

	rec, err := persistence.NewRecorder(memory.NewStore())
	require.NoError(t, err)
	_, err = rec.Put(ctx, "a", json.RawMessage(`1`))
	require.NoError(t, err)
	_, err = rec.Put(ctx, "b", json.RawMessage(`2`))
	require.NoError(t, err)

	keys, err := rec.Keys(ctx, 0)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, keys)

	plain, err := persistence.NewRecorder(&failingStore{})
	require.NoError(t, err)
	_, err = plain.Keys(ctx, 0)
	assert.ErrorIs(t, err, ports.ErrUnsupported)
}
