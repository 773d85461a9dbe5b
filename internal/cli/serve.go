package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/aretw0/keystone"
	"github.com/aretw0/keystone/internal/config"
	httpadapter "github.com/aretw0/keystone/pkg/adapters/http"
	"github.com/aretw0/keystone/pkg/adapters/telegram"
	"github.com/aretw0/keystone/pkg/domain"
	"github.com/aretw0/keystone/pkg/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
)

// ServeOptions tunes Serve for embedding and tests.
type ServeOptions struct {
	// OnListen is called once the listener is bound.
	OnListen func(addr net.Addr)
	// Notifier overrides the notifier built from cfg.Notify.
	Notifier *telegram.Notifier
}

// Serve runs the HTTP API until ctx is done, then shuts down gracefully.
func Serve(ctx context.Context, cfg config.Config, logger *slog.Logger, opts ServeOptions) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(reg)

	store, err := OpenStore(ctx, cfg, metrics, logger)
	if err != nil {
		logger.Error("response store is not usable", "driver", cfg.Store.Driver, "error", err)
		return err
	}
	defer store.Close()

	notifier := opts.Notifier
	if notifier == nil && cfg.Notify.TelegramToken != "" {
		if notifier, err = telegram.New(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID,
			telegram.WithLogger(logger)); err != nil {
			return err
		}
	}

	streams := httpadapter.NewStreamManager(logger)
	hooks := []domain.LifecycleHooks{streams.Hooks()}
	if notifier != nil {
		hooks = append(hooks, notifier.Hooks())
		logger.Info("lead notifications enabled", "channel", "telegram")
	}
	engine, err := createEngine(cfg, store, logger, metrics, hooks...)
	if err != nil {
		return err
	}
	defer engine.Close()

	handler, err := httpadapter.NewHandler(engine,
		httpadapter.WithLogger(logger),
		httpadapter.WithMetrics(metrics),
		httpadapter.WithGatherer(reg),
		httpadapter.WithStreams(streams),
		httpadapter.WithCORSOrigins(cfg.Server.CORSOrigins...),
	)
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Server.Addr, err)
	}
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}
	srv.RegisterOnShutdown(streams.CloseAll)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		engine.Run(gctx, cfg.Sessions.ReapInterval, cfg.Sessions.IdleTTL)
		return nil
	})
	if notifier != nil {
		g.Go(func() error {
			notifier.Run(gctx)
			return nil
		})
	}
	g.Go(func() error {
		logger.Info("Keystone server listening",
			"address", ln.Addr().String(),
			"version", strings.TrimSpace(keystone.Version),
			"survey", engine.Definition().ID,
		)
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown started")
		// Give outstanding requests a deadline for completion.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("graceful shutdown did not complete", "timeout", cfg.Server.ShutdownTimeout, "error", err)
			if err := srv.Close(); err != nil {
				return fmt.Errorf("could not stop server: %w", err)
			}
		}
		logger.Info("Keystone server stopped gracefully")
		return nil
	})
	if opts.OnListen != nil {
		opts.OnListen(ln.Addr())
	}

	return g.Wait()
}
