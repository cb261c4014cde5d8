package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/myrjola/dossier/internal/e2etest"
	"github.com/myrjola/dossier/internal/errors"
	"github.com/myrjola/dossier/internal/logging"
	"github.com/myrjola/dossier/internal/random"
)

// TestDossierLifecycle creates, reads, patches and deletes a throwaway dossier.
func TestDossierLifecycle(ctx context.Context, client *e2etest.Client) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second) //nolint:mnd // 10 seconds
	defer cancel()

	suffix, err := random.Letters(12) //nolint:mnd // 12 letters is plenty to avoid collisions
	if err != nil {
		return errors.Wrap(err, "generate dossier id")
	}
	id := "smoketest-" + suffix

	if _, err = client.CallTool(ctx, "dossier_create", map[string]any{
		"dossier_id":  id,
		"player_name": "Smoke Test",
		"data":        map[string]any{"source": "smoketest"},
	}); err != nil {
		return errors.Wrap(err, "create dossier", slog.String("dossier_id", id))
	}
	if _, err = client.CallTool(ctx, "dossier_update", map[string]any{
		"dossier_id": id,
		"patch":      map[string]any{"checked_at": time.Now().UTC().Format(time.RFC3339)},
	}); err != nil {
		return errors.Wrap(err, "update dossier", slog.String("dossier_id", id))
	}
	if _, err = client.CallTool(ctx, "dossier_get", map[string]any{"dossier_id": id}); err != nil {
		return errors.Wrap(err, "get dossier", slog.String("dossier_id", id))
	}
	if _, err = client.CallTool(ctx, "dossier_delete", map[string]any{"dossier_id": id}); err != nil {
		return errors.Wrap(err, "delete dossier", slog.String("dossier_id", id))
	}
	return nil
}

func main() {
	logger := logging.NewLogger(os.Stdout, slog.LevelDebug)
	ctx := context.Background()

	if len(os.Args) != 2 { //nolint:mnd // we expect only the base URL to be passed as argument.
		logger.LogAttrs(ctx, slog.LevelError, "usage: smoketest <base-url>")
		os.Exit(1)
	}

	url := os.Args[1]
	ctx = logging.WithAttrs(ctx, slog.String("url", url))
	client := e2etest.NewClient(url)

	if err := client.WaitForReady(ctx, "/api/healthy"); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "server not healthy", errors.SlogError(err))
		os.Exit(1)
	}
	if err := TestDossierLifecycle(ctx, client); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "error testing dossier lifecycle", errors.SlogError(err))
		os.Exit(1)
	}

	logger.LogAttrs(ctx, slog.LevelInfo, "Smoke test successful 🙌")
	os.Exit(0)
}
