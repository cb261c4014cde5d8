package main

import (
	"log/slog"
	"time"

	"github.com/myrjola/dossier/internal/envstruct"
	"github.com/myrjola/dossier/internal/errors"
)

const (
	storeSQLite = "sqlite"
	storeRedis  = "redis"
)

var errUnknownStore = errors.NewSentinel("unknown store")

type config struct {
	// Addr is the address to listen on. It's possible to choose the address dynamically with localhost:0.
	Addr string `env:"DOSSIER_ADDR" envDefault:"localhost:4000"`
	// Store selects the backing store, sqlite or redis.
	Store string `env:"DOSSIER_STORE" envDefault:"sqlite"`
	// SqliteURL is the URL to the SQLite database. You can use ":memory:" for an ephemeral in-memory database.
	SqliteURL string `env:"DOSSIER_SQLITE_URL" envDefault:"./dossier.sqlite"`
	RedisURL  string `env:"DOSSIER_REDIS_URL" envDefault:"redis://localhost:6379/0"`
	LogLevel  string `env:"DOSSIER_LOG_LEVEL" envDefault:"info"`
	// PprofAddr enables the pprof server on the loopback interface when not empty, e.g. ":6060".
	PprofAddr      string        `env:"DOSSIER_PPROF_ADDR" envDefault:""`
	RequestTimeout time.Duration `env:"DOSSIER_REQUEST_TIMEOUT" envDefault:"5s"`
}

func loadConfig(lookupEnv func(string) (string, bool)) (config, error) {
	var cfg config
	if err := envstruct.Populate(&cfg, lookupEnv); err != nil {
		return cfg, errors.Wrap(err, "populate config from environment")
	}
	switch cfg.Store {
	case storeSQLite, storeRedis:
	default:
		return cfg, errors.Wrap(errUnknownStore, "validate config", slog.String("store", cfg.Store))
	}
	if cfg.RequestTimeout <= time.Second {
		return cfg, errors.New("DOSSIER_REQUEST_TIMEOUT must be longer than one second",
			slog.Duration("timeout", cfg.RequestTimeout))
	}
	return cfg, nil
}
