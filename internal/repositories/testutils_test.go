package repositories_test

import (
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/myrjola/dossier/internal/models"
	"github.com/myrjola/dossier/internal/repositories"
	"github.com/myrjola/dossier/internal/sqlite"
	"github.com/myrjola/dossier/internal/testhelpers"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

// dossierStore is the behaviour shared by every repository implementation.
type dossierStore interface {
	Get(ctx context.Context, id string) (*models.Dossier, error)
	Create(ctx context.Context, dossier *models.Dossier) (*models.Dossier, error)
	Update(ctx context.Context, id string, newData models.Data) (*models.Dossier, error)
	Delete(ctx context.Context, id string) (bool, error)
	List(ctx context.Context) ([]models.Dossier, error)
	Count(ctx context.Context) (int, error)
}

// newTestDB creates a new in-memory database for testing purposes.
func newTestDB(t *testing.T) *sqlite.Database {
	t.Helper()
	return newTestDBWithURL(t, ":memory:")
}

// newTestFileDB creates a database file in a temporary directory. Use it when the test needs concurrent access
// since shared-cache in-memory databases fail fast on lock contention.
func newTestFileDB(t *testing.T) *sqlite.Database {
	t.Helper()
	return newTestDBWithURL(t, filepath.Join(t.TempDir(), "dossier.sqlite"))
}

func newTestDBWithURL(t *testing.T, url string) *sqlite.Database {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	dbs, err := sqlite.NewDatabase(ctx, url, testhelpers.NewLogger(io.Discard))
	require.NoError(t, err)
	t.Cleanup(func() {
		cancel()
		require.NoError(t, dbs.Close())
	})
	return dbs
}

func newSQLiteStore(t *testing.T) dossierStore {
	t.Helper()
	return repositories.NewDossierRepository(newTestDB(t), testhelpers.NewLogger(io.Discard))
}

func newRedisStore(t *testing.T) dossierStore {
	t.Helper()
	mini := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mini.Addr()})
	repo := repositories.NewRedisDossierRepositoryWithClient(client, testhelpers.NewLogger(io.Discard))
	t.Cleanup(func() {
		_ = repo.Close()
	})
	return repo
}
