package ports

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrUnsupported is returned when a store lacks an optional capability.
var ErrUnsupported = errors.New("operation not supported by underlying store")

// LogEntry is one durable row of the response log.
type LogEntry struct {
	ID        string          `json:"id"`
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// ResponseStore defines the interface for persisting survey responses.
// A key may hold several entries; each Write appends a new one.
type ResponseStore interface {
	// Write stores value under key as a single atomic operation and returns the new entry.
	Write(ctx context.Context, key string, value json.RawMessage) (LogEntry, error)

	// Read returns every entry stored under key, newest first.
	// A key without entries yields an empty slice and no error.
	Read(ctx context.Context, key string) ([]LogEntry, error)

	// Delete removes every entry stored under key and reports how many were removed.
	Delete(ctx context.Context, key string) (int, error)
}

// Pinger is implemented by stores that can check connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Lister is implemented by stores that can enumerate their keys.
type Lister interface {
	// Keys returns stored keys, most recently written first, up to limit (0 = no limit).
	Keys(ctx context.Context, limit int) ([]string, error)
}
