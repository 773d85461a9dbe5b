package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/aretw0/keystone/internal/config"
	"github.com/aretw0/keystone/pkg/persistence"
)

// openRecorder opens the configured store and wraps it in a Recorder.
// The caller must call the returned release func.
func openRecorder(ctx context.Context, cfg config.Config, logger *slog.Logger) (*persistence.Recorder, func(), error) {
	store, err := OpenStore(ctx, cfg, nil, logger)
	if err != nil {
		return nil, nil, err
	}
	rec, err := persistence.NewRecorder(store,
		persistence.WithLogger(logger),
		persistence.WithTimeout(cfg.Survey.SubmitTimeout),
	)
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	return rec, func() { store.Close() }, nil
}

// GetLogs prints every entry stored under key as indented JSON.
func GetLogs(ctx context.Context, cfg config.Config, logger *slog.Logger, key string, out io.Writer) error {
	rec, release, err := openRecorder(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer release()

	entries, err := rec.Lookup(ctx, key)
	if err != nil {
		return err
	}
	return printJSON(out, entries)
}

// ListLogs prints the most recent keys, one per line.
func ListLogs(ctx context.Context, cfg config.Config, logger *slog.Logger, limit int, out io.Writer) error {
	rec, release, err := openRecorder(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer release()

	keys, err := rec.Keys(ctx, limit)
	if err != nil {
		return fmt.Errorf("list keys on %s store: %w", cfg.Store.Driver, err)
	}
	for _, k := range keys {
		fmt.Fprintln(out, k)
	}
	return nil
}

// DeleteLogs removes every entry under key and reports the count.
func DeleteLogs(ctx context.Context, cfg config.Config, logger *slog.Logger, key string, out io.Writer) error {
	rec, release, err := openRecorder(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer release()

	n, err := rec.Forget(ctx, key)
	if err != nil {
		return err
	}
	printSystemMessage(out, "Deleted %d entries under %s", n, key)
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
