package cli

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"

	"github.com/aretw0/keystone"
	"github.com/aretw0/keystone/internal/config"
	"github.com/aretw0/keystone/internal/presentation/tui"
)

// SurveyOptions controls the interactive walkthrough.
type SurveyOptions struct {
	Input  io.Reader
	Output io.Writer
	// Pretty renders markdown with ANSI styling and prints the banner.
	Pretty bool
	// Width wraps rendered markdown; zero uses the renderer default.
	Width int
}

// RunSurvey walks one survey session in the terminal and persists the
// answers to the configured store once the user submits an email.
func RunSurvey(ctx context.Context, cfg config.Config, logger *slog.Logger, opts SurveyOptions) error {
	store, err := OpenStore(ctx, cfg, nil, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	engine, err := createEngine(cfg, store, logger, nil)
	if err != nil {
		return err
	}
	defer engine.Close()

	runner := keystone.NewRunner(opts.Input, opts.Output)
	if opts.Pretty {
		tui.PrintBanner(opts.Output, strings.TrimSpace(keystone.Version))
		runner.Renderer = tui.NewRenderer(opts.Width)
	}

	err = runner.Run(ctx, engine)
	switch {
	case err == nil:
		printSystemMessage(opts.Output, "Report unlocked. Thank you!")
		return nil
	case errors.Is(err, keystone.ErrQuit), isInterrupted(err):
		printSystemMessage(opts.Output, "Survey closed before submitting. Nothing was saved.")
		return nil
	default:
		return err
	}
}
