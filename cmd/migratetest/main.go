package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/myrjola/dossier/internal/errors"
	"github.com/myrjola/dossier/internal/repositories"
	"github.com/myrjola/dossier/internal/sqlite"
	"github.com/myrjola/dossier/internal/testhelpers"
)

func main() {
	logger := testhelpers.NewLogger(os.Stdout)
	var (
		err       error
		start     = time.Now()
		ctx       context.Context
		sqliteURL string
		ok        bool
		cancel    context.CancelFunc
	)
	ctx = context.Background()
	ctx, cancel = context.WithTimeout(ctx, 5*time.Second) //nolint:mnd // 5 seconds

	if sqliteURL, ok = os.LookupEnv("DOSSIER_SQLITE_URL"); !ok {
		logger.LogAttrs(ctx, slog.LevelError, "DOSSIER_SQLITE_URL not set")
		os.Exit(1)
	}

	var db *sqlite.Database
	if db, err = sqlite.NewDatabase(ctx, sqliteURL, logger); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "error creating database",
			slog.String("url", sqliteURL), errors.SlogError(err))
		os.Exit(1)
	}

	// Count the dossiers through the repository as a simple check that the migrated schema is readable.
	count, err := repositories.NewDossierRepository(db, logger).Count(ctx)
	if err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "error fetching dossier count", errors.SlogError(err))
		os.Exit(1)
	}
	if count == 0 {
		logger.LogAttrs(ctx, slog.LevelError, "no dossiers found, something is likely wrong")
		os.Exit(1)
	}
	logger.LogAttrs(ctx, slog.LevelInfo, "dossier count", slog.Int("count", count))

	if err = db.Close(); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "error closing database", errors.SlogError(err))
	}
	logger.LogAttrs(ctx, slog.LevelInfo, "Migration test successful 🙌", slog.Duration("duration", time.Since(start)))
	cancel()
	os.Exit(0)
}
