package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/aretw0/keystone/internal/config"
	"github.com/aretw0/keystone/pkg/adapters/sqlite"
)

// Migrate applies pending schema migrations to the SQLite store and lists them.
// Other drivers are schemaless and need nothing.
func Migrate(ctx context.Context, cfg config.Config, logger *slog.Logger, out io.Writer) error {
	if cfg.Store.Driver != config.DriverSQLite {
		printSystemMessage(out, "Store driver %q has no schema to migrate.", cfg.Store.Driver)
		return nil
	}

	store, err := sqlite.Connect(cfg.Store.SQLite.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	applied, err := store.Migrate(ctx)
	for _, name := range applied {
		fmt.Fprintf(out, "applied %s\n", name)
	}
	if err != nil {
		return err
	}
	logger.Info("schema up to date", "path", cfg.Store.SQLite.Path, "applied", len(applied))
	if len(applied) == 0 {
		printSystemMessage(out, "Schema at %s is already up to date.", cfg.Store.SQLite.Path)
	}
	return nil
}
