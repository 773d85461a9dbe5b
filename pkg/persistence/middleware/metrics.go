package middleware

import (
	"context"
	"encoding/json"
	"time"

	"github.com/aretw0/keystone/pkg/ports"
)

// StoreObserver receives the outcome of every store operation.
// *observability.Metrics implements it.
type StoreObserver interface {
	ObserveStore(op string, err error, elapsed time.Duration)
}

type metricsMiddleware struct {
	base
	observer StoreObserver
}

// NewMetricsMiddleware creates a middleware that reports operation counts and latency.
func NewMetricsMiddleware(observer StoreObserver) Middleware {
	return func(next ports.ResponseStore) ports.ResponseStore {
		return &metricsMiddleware{base: base{next: next}, observer: observer}
	}
}

func (m *metricsMiddleware) Write(ctx context.Context, key string, value json.RawMessage) (ports.LogEntry, error) {
	start := time.Now()
	entry, err := m.next.Write(ctx, key, value)
	m.observer.ObserveStore("write", err, time.Since(start))
	return entry, err
}

func (m *metricsMiddleware) Read(ctx context.Context, key string) ([]ports.LogEntry, error) {
	start := time.Now()
	entries, err := m.next.Read(ctx, key)
	m.observer.ObserveStore("read", err, time.Since(start))
	return entries, err
}

func (m *metricsMiddleware) Delete(ctx context.Context, key string) (int, error) {
	start := time.Now()
	n, err := m.next.Delete(ctx, key)
	m.observer.ObserveStore("delete", err, time.Since(start))
	return n, err
}
