package memory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/aretw0/keystone/pkg/ports"
	"github.com/google/uuid"
)

// Store implements ports.ResponseStore in memory.
// Safe for concurrent use.
type Store struct {
	data map[string][]ports.LogEntry
	mu   sync.RWMutex
	now  func() time.Time
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		data: make(map[string][]ports.LogEntry),
		now:  time.Now,
	}
}

// Write appends an entry under key.
func (s *Store) Write(ctx context.Context, key string, value json.RawMessage) (ports.LogEntry, error) {
	if err := ctx.Err(); err != nil {
		return ports.LogEntry{}, err
	}
	now := s.now().UTC()
	entry := ports.LogEntry{
		ID:        uuid.NewString(),
		Key:       key,
		Value:     append(json.RawMessage(nil), value...),
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = append(s.data[key], entry)
	return entry, nil
}

// Read returns the entries under key, newest first.
func (s *Store) Read(ctx context.Context, key string) ([]ports.LogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.data[key]
	out := make([]ports.LogEntry, 0, len(stored))
	for i := len(stored) - 1; i >= 0; i-- {
		// Copy on read so callers can't mutate store state through the slice
		e := stored[i]
		e.Value = append(json.RawMessage(nil), e.Value...)
		out = append(out, e)
	}
	return out, nil
}

// Delete removes every entry under key.
func (s *Store) Delete(ctx context.Context, key string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.data[key])
	delete(s.data, key)
	return n, nil
}

// Keys returns stored keys, most recently written first.
func (s *Store) Keys(ctx context.Context, limit int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type keyed struct {
		key  string
		last time.Time
	}
	all := make([]keyed, 0, len(s.data))
	for k, entries := range s.data {
		if len(entries) == 0 {
			continue
		}
		all = append(all, keyed{key: k, last: entries[len(entries)-1].CreatedAt})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].last.After(all[j].last) })

	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	keys := make([]string, len(all))
	for i, k := range all {
		keys[i] = k.key
	}
	return keys, nil
}

// Len returns the total number of entries across all keys.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, entries := range s.data {
		n += len(entries)
	}
	return n
}
