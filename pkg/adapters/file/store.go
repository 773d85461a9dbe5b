package file

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/keystone/pkg/ports"
	"github.com/google/uuid"
)

const ext = ".json"

// Store implements ports.ResponseStore using the local filesystem.
// Each key is one JSON file holding its entries, oldest first.
// Safe for concurrent use within one process.
type Store struct {
	BasePath string

	mu  sync.Mutex
	now func() time.Time
}

// New creates a new Store with the given base path.
// If basePath is empty, it defaults to ".keystone/responses".
func New(basePath string) *Store {
	if basePath == "" {
		basePath = filepath.Join(".keystone", "responses")
	}
	return &Store{BasePath: basePath, now: time.Now}
}

// Keys may hold characters that are not portable in file names (":" on Windows),
// so file names are the hex encoding of the key.
func (s *Store) path(key string) string {
	return filepath.Join(s.BasePath, hex.EncodeToString([]byte(key))+ext)
}

// Write appends an entry under key, rewriting the key's file atomically.
func (s *Store) Write(ctx context.Context, key string, value json.RawMessage) (ports.LogEntry, error) {
	if key == "" {
		return ports.LogEntry{}, fmt.Errorf("key cannot be empty")
	}
	if err := ctx.Err(); err != nil {
		return ports.LogEntry{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load(key)
	if err != nil {
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
	if err := s.save(key, append(entries, entry)); err != nil {
		return ports.LogEntry{}, err
	}
	return entry, nil
}

// Read returns the entries under key, newest first.
func (s *Store) Read(ctx context.Context, key string) ([]ports.LogEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	entries, err := s.load(key)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	out := make([]ports.LogEntry, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		out = append(out, entries[i])
	}
	return out, nil
}

// Delete removes the key's file.
func (s *Store) Delete(ctx context.Context, key string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load(key)
	if err != nil {
		return 0, err
	}
	if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		return 0, fmt.Errorf("failed to delete response file: %w", err)
	}
	return len(entries), nil
}

// Keys returns stored keys, most recently written first.
func (s *Store) Keys(ctx context.Context, limit int) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	dirEntries, err := os.ReadDir(s.BasePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to list responses: %w", err)
	}

	type keyed struct {
		key  string
		last time.Time
	}
	var all []keyed
	for _, de := range dirEntries {
		name := de.Name()
		if de.IsDir() || filepath.Ext(name) != ext || strings.HasPrefix(name, "tmp-") {
			continue
		}
		raw, err := hex.DecodeString(strings.TrimSuffix(name, ext))
		if err != nil {
			continue
		}
		key := string(raw)
		entries, err := s.load(key)
		if err != nil {
			return nil, err
		}
		if len(entries) == 0 {
			continue
		}
		all = append(all, keyed{key: key, last: entries[len(entries)-1].CreatedAt})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].last.Equal(all[j].last) {
			return all[i].key < all[j].key
		}
		return all[i].last.After(all[j].last)
	})

	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	keys := make([]string, len(all))
	for i, k := range all {
		keys[i] = k.key
	}
	return keys, nil
}

// Ping checks that the base directory exists or can be created.
func (s *Store) Ping(ctx context.Context) error {
	if err := os.MkdirAll(s.BasePath, 0755); err != nil {
		return fmt.Errorf("response directory unavailable: %w", err)
	}
	return nil
}

func (s *Store) load(key string) ([]ports.LogEntry, error) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read response file: %w", err)
	}
	var entries []ports.LogEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response file: %w", err)
	}
	return entries, nil
}

// save writes to a temporary file first, syncs via fsync, and then renames it to the destination.
func (s *Store) save(key string, entries []ports.LogEntry) error {
	if err := os.MkdirAll(s.BasePath, 0755); err != nil {
		return fmt.Errorf("failed to ensure response directory: %w", err)
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal entries: %w", err)
	}

	// Same directory keeps the rename on one filesystem.
	tmpFile, err := os.CreateTemp(s.BasePath, "tmp-*"+ext)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath) // no-op once renamed
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to fsync temp file: %w", err)
	}
	// Cannot rename an open file on Windows.
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	dest := s.path(key)
	// On Windows, os.Rename fails if dest exists.
	if _, err := os.Stat(dest); err == nil {
		if err := os.Remove(dest); err != nil {
			return fmt.Errorf("failed to remove existing response file for overwrite: %w", err)
		}
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
