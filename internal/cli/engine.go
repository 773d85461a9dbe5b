package cli

import (
	"fmt"
	"log/slog"

	"github.com/aretw0/keystone"
	"github.com/aretw0/keystone/internal/config"
	"github.com/aretw0/keystone/pkg/domain"
	"github.com/aretw0/keystone/pkg/observability"
	"github.com/aretw0/keystone/pkg/ports"
	"github.com/aretw0/keystone/pkg/survey"
)

// createEngine initializes a Keystone engine with standard CLI conventions.
// metrics may be nil; extra hooks run after the logging hooks.
func createEngine(cfg config.Config, store ports.ResponseStore, logger *slog.Logger, metrics *observability.Metrics, extra ...domain.LifecycleHooks) (*keystone.Engine, error) {
	def := survey.Default()
	if cfg.Survey.Path != "" {
		loaded, err := survey.LoadFile(cfg.Survey.Path)
		if err != nil {
			return nil, err
		}
		def = loaded
	}

	hooks := append([]domain.LifecycleHooks{observability.Hooks(nil, logger)}, extra...)
	opts := []keystone.Option{
		keystone.WithDefinition(def),
		keystone.WithLogger(logger),
		keystone.WithLifecycleHooks(observability.Compose(hooks...)),
		keystone.WithGateDelay(cfg.Survey.GateDelay),
		keystone.WithSubmitTimeout(cfg.Survey.SubmitTimeout),
		keystone.WithMaxSessions(cfg.Sessions.MaxSessions),
	}
	if metrics != nil {
		opts = append(opts, keystone.WithMetrics(metrics))
	}

	engine, err := keystone.New(store, opts...)
	if err != nil {
		return nil, fmt.Errorf("error initializing engine: %w", err)
	}
	return engine, nil
}
