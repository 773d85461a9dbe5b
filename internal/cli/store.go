package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/aretw0/keystone/internal/config"
	"github.com/aretw0/keystone/pkg/adapters/file"
	"github.com/aretw0/keystone/pkg/adapters/firebase"
	"github.com/aretw0/keystone/pkg/adapters/memory"
	"github.com/aretw0/keystone/pkg/adapters/redis"
	"github.com/aretw0/keystone/pkg/adapters/sqlite"
	"github.com/aretw0/keystone/pkg/persistence/middleware"
	"github.com/aretw0/keystone/pkg/ports"
)

// OpenedStore is a response store plus whatever must be released with it.
type OpenedStore struct {
	ports.ResponseStore
	closer io.Closer
}

// Close releases the backend connection, if any.
func (s *OpenedStore) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// Keys forwards to the wrapped store when it can list keys.
func (s *OpenedStore) Keys(ctx context.Context, limit int) ([]string, error) {
	if l, ok := s.ResponseStore.(ports.Lister); ok {
		return l.Keys(ctx, limit)
	}
	return nil, ports.ErrUnsupported
}

// Ping forwards to the wrapped store when it has a health check.
func (s *OpenedStore) Ping(ctx context.Context) error {
	if p, ok := s.ResponseStore.(ports.Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// OpenStore builds the configured backend and wraps it with the middleware
// chain: metrics outermost, then PII redaction, then encryption at rest.
func OpenStore(ctx context.Context, cfg config.Config, observer middleware.StoreObserver, logger *slog.Logger) (*OpenedStore, error) {
	backend, closer, err := openBackend(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	logger.Info("response store ready", "driver", cfg.Store.Driver)

	var mws []middleware.Middleware
	if observer != nil {
		mws = append(mws, middleware.NewMetricsMiddleware(observer))
	}
	if len(cfg.Store.RedactPatterns) > 0 {
		mws = append(mws, middleware.NewPIIMiddleware(cfg.Store.RedactPatterns))
	}
	key, err := cfg.EncryptionKeyBytes()
	if err != nil {
		if closer != nil {
			closer.Close()
		}
		return nil, fmt.Errorf("encryption key: %w", err)
	}
	if key != nil {
		mws = append(mws, middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: key}))
		logger.Info("encryption at rest enabled")
	}

	return &OpenedStore{
		ResponseStore: middleware.Chain(backend, mws...),
		closer:        closer,
	}, nil
}

func openBackend(ctx context.Context, cfg config.Store) (ports.ResponseStore, io.Closer, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		return memory.NewStore(), nil, nil
	case config.DriverRedis:
		var opts []redis.Option
		if cfg.Redis.Prefix != "" {
			opts = append(opts, redis.WithPrefix(cfg.Redis.Prefix))
		}
		if cfg.Redis.TTL > 0 {
			opts = append(opts, redis.WithTTL(cfg.Redis.TTL))
		}
		store, err := redis.NewFromURL(cfg.Redis.URL, opts...)
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	case config.DriverSQLite:
		store, err := sqlite.Open(ctx, cfg.SQLite.Path)
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	case config.DriverFile:
		return file.New(cfg.File.Dir), nil, nil
	case config.DriverFirebase:
		store, err := firebase.New(ctx, cfg.Firebase)
		if err != nil {
			return nil, nil, err
		}
		return store, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
