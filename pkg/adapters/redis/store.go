package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aretw0/keystone/pkg/domain"
	"github.com/aretw0/keystone/pkg/ports"
	"github.com/google/uuid"
	backend "github.com/redis/go-redis/v9"
)

// Store implements ports.ResponseStore using Redis.
// Each key maps to a list of JSON entries (newest first) and a sorted-set index tracks keys.
type Store struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

type Option func(*Store)

// WithTTL sets the expiration for response logs.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix for response logs.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New creates a new Redis store with options.
func New(address, password string, db int, opts ...Option) *Store {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// WithClock overrides the time source used for timestamps and index pruning.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// NewFromURL creates a new Redis store from a redis:// or rediss:// URL.
func NewFromURL(url string, opts ...Option) (*Store, error) {
	options, err := backend.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	return NewFromClient(backend.NewClient(options), opts...), nil
}

// NewFromClient creates a new Redis store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: "keystone:responses:",
		ttl:    0, // No expiration by default
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(store)
	}

	return store
}

func (s *Store) key(key string) string {
	return s.prefix + "log:" + key
}

func (s *Store) indexKey() string {
	return s.prefix + "index"
}

// Write appends the entry and indexes the key inside one MULTI/EXEC transaction.
func (s *Store) Write(ctx context.Context, key string, value json.RawMessage) (ports.LogEntry, error) {
	now := s.now().UTC()
	entry := ports.LogEntry{
		ID:        uuid.NewString(),
		Key:       key,
		Value:     value,
		CreatedAt: now,
		UpdatedAt: now,
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return ports.LogEntry{}, fmt.Errorf("failed to marshal entry: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
		pipe.LPush(ctx, s.key(key), data)
		if s.ttl > 0 {
			pipe.Expire(ctx, s.key(key), s.ttl)
		}
		pipe.ZAdd(ctx, s.indexKey(), backend.Z{
			Score:  float64(now.UnixMilli()),
			Member: key,
		})
		return nil
	})
	if err != nil {
		return ports.LogEntry{}, fmt.Errorf("failed to write to redis: %w", err)
	}

	return entry, nil
}

// Read returns the entries under key, newest first.
func (s *Store) Read(ctx context.Context, key string) ([]ports.LogEntry, error) {
	vals, err := s.client.LRange(ctx, s.key(key), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read from redis: %w", err)
	}

	entries := make([]ports.LogEntry, 0, len(vals))
	for _, v := range vals {
		var entry ports.LogEntry
		if err := json.Unmarshal([]byte(v), &entry); err != nil {
			return nil, fmt.Errorf("%w: key %s: %v", domain.ErrMalformedRecord, key, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Delete removes the entries under key and drops it from the index.
func (s *Store) Delete(ctx context.Context, key string) (int, error) {
	var llen *backend.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
		llen = pipe.LLen(ctx, s.key(key))
		pipe.Del(ctx, s.key(key))
		pipe.ZRem(ctx, s.indexKey(), key)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to delete from redis: %w", err)
	}
	return int(llen.Val()), nil
}

// Keys returns indexed keys, most recently written first.
// With a TTL, keys whose last write is older than the TTL have expired and are pruned from the index.
func (s *Store) Keys(ctx context.Context, limit int) ([]string, error) {
	if s.ttl > 0 {
		cutoff := s.now().UTC().Add(-s.ttl).UnixMilli()
		if err := s.client.ZRemRangeByScore(ctx, s.indexKey(), "-inf", fmt.Sprintf("(%d", cutoff)).Err(); err != nil {
			return nil, fmt.Errorf("failed to prune expired keys: %w", err)
		}
	}
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	keys, err := s.client.ZRevRange(ctx, s.indexKey(), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	return keys, nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}
