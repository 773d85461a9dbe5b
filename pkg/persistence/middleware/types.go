package middleware

import (
	"context"

	"github.com/aretw0/keystone/pkg/ports"
)

// ErrUnsupported is returned by Keys when the wrapped store cannot list keys.
var ErrUnsupported = ports.ErrUnsupported

// Middleware allows wrapping a ResponseStore to add behavior.
type Middleware func(ports.ResponseStore) ports.ResponseStore

// Chain applies middlewares so that the first one listed is the outermost.
func Chain(store ports.ResponseStore, mws ...Middleware) ports.ResponseStore {
	for i := len(mws) - 1; i >= 0; i-- {
		store = mws[i](store)
	}
	return store
}

// base forwards the optional capabilities of the wrapped store.
type base struct {
	next ports.ResponseStore
}

func (b base) Keys(ctx context.Context, limit int) ([]string, error) {
	if l, ok := b.next.(ports.Lister); ok {
		return l.Keys(ctx, limit)
	}
	return nil, ErrUnsupported
}

func (b base) Ping(ctx context.Context) error {
	if p, ok := b.next.(ports.Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}
