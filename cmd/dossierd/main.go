package main

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/myrjola/dossier/internal/errors"
	"github.com/myrjola/dossier/internal/logging"
	"github.com/myrjola/dossier/internal/metrics"
	"github.com/myrjola/dossier/internal/pprofserver"
	"github.com/myrjola/dossier/internal/protocol"
	"github.com/myrjola/dossier/internal/stdio"
	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

type application struct {
	logger         *slog.Logger
	dispatcher     *protocol.Dispatcher
	metrics        *metrics.Metrics
	requestTimeout time.Duration
}

// run starts the HTTP server and blocks until it shuts down.
func run(ctx context.Context, logger *slog.Logger, lookupEnv func(string) (string, bool)) error {
	cfg, err := loadConfig(lookupEnv)
	if err != nil {
		return errors.Wrap(err, "load config")
	}

	// Initialise pprof listening on localhost so that it's not open to the world
	if cfg.PprofAddr != "" {
		pprofserver.Launch(ctx, cfg.PprofAddr, logger)
	}

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return errors.Wrap(err, "open store")
	}
	defer func() {
		if closeErr := closeStore(); closeErr != nil {
			logger.LogAttrs(ctx, slog.LevelError, "failed to close store", errors.SlogError(closeErr))
		}
	}()

	m := metrics.New()
	m.RegisterDossierCount(store.Count)

	dispatcher, err := protocol.NewDispatcher(store, logger, m)
	if err != nil {
		return errors.Wrap(err, "new dispatcher")
	}

	app := application{
		logger:         logger,
		dispatcher:     dispatcher,
		metrics:        m,
		requestTimeout: cfg.RequestTimeout,
	}

	return app.configureAndStartServer(ctx, cfg.Addr)
}

// runStdio serves the protocol on in and out until in is closed.
func runStdio(
	ctx context.Context,
	logger *slog.Logger,
	lookupEnv func(string) (string, bool),
	in io.Reader,
	out io.Writer,
) error {
	cfg, err := loadConfig(lookupEnv)
	if err != nil {
		return errors.Wrap(err, "load config")
	}

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return errors.Wrap(err, "open store")
	}
	defer func() {
		if closeErr := closeStore(); closeErr != nil {
			logger.LogAttrs(ctx, slog.LevelError, "failed to close store", errors.SlogError(closeErr))
		}
	}()

	dispatcher, err := protocol.NewDispatcher(store, logger, nil)
	if err != nil {
		return errors.Wrap(err, "new dispatcher")
	}
	if err = stdio.Serve(ctx, dispatcher, in, out, logger); err != nil && !errors.Is(err, context.Canceled) {
		return errors.Wrap(err, "serve stdio")
	}
	return nil
}

// loadDotEnv loads .env from the working directory if there is one.
func loadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return errors.Wrap(err, "load .env")
	}
	return nil
}

// newLogger logs to stderr since stdout is reserved for the stdio transport.
func newLogger(lookupEnv func(string) (string, bool)) *slog.Logger {
	level, _ := lookupEnv("DOSSIER_LOG_LEVEL")
	return logging.NewLogger(os.Stderr, logging.ParseLevel(level))
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "dossierd",
		Short:         "Player dossier store",
		Long:          `Stores player dossiers and serves them over HTTP or stdio.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return loadDotEnv()
		},
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Serve the protocol over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), newLogger(os.LookupEnv), os.LookupEnv)
		},
	})
	rootCmd.AddCommand(&cobra.Command{
		Use:   "stdio",
		Short: "Serve the protocol on stdin and stdout, one JSON object per line",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStdio(cmd.Context(), newLogger(os.LookupEnv), os.LookupEnv, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	})
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "dossierd %s\n", version)
		},
	})

	return rootCmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
