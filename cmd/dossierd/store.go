package main

import (
	"context"
	"log/slog"

	"github.com/myrjola/dossier/internal/errors"
	"github.com/myrjola/dossier/internal/protocol"
	"github.com/myrjola/dossier/internal/repositories"
	"github.com/myrjola/dossier/internal/sqlite"
)

// dossierStore is the repository surface the service uses.
type dossierStore interface {
	protocol.DossierStore
	Count(ctx context.Context) (int, error)
}

// openStore connects to the configured backing store. The returned close function releases it.
func openStore(ctx context.Context, cfg config, logger *slog.Logger) (dossierStore, func() error, error) {
	switch cfg.Store {
	case storeRedis:
		repo, err := repositories.NewRedisDossierRepository(ctx, cfg.RedisURL, logger)
		if err != nil {
			return nil, nil, errors.Wrap(err, "new redis dossier repository")
		}
		logger.LogAttrs(ctx, slog.LevelInfo, "connected to redis")
		return repo, repo.Close, nil
	case storeSQLite:
		dbs, err := sqlite.NewDatabase(ctx, cfg.SqliteURL, logger)
		if err != nil {
			return nil, nil, errors.Wrap(err, "new database", slog.String("url", cfg.SqliteURL))
		}
		logger.LogAttrs(ctx, slog.LevelInfo, "connected to db")
		return repositories.NewDossierRepository(dbs, logger), dbs.Close, nil
	}
	return nil, nil, errors.Wrap(errUnknownStore, "open store", slog.String("store", cfg.Store))
}
