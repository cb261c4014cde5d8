package repositories

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/myrjola/dossier/internal/errors"
	"github.com/myrjola/dossier/internal/models"
	"github.com/myrjola/dossier/internal/sqlite"
)

var (
	// ErrNotFound is returned when no dossier exists with the requested id.
	ErrNotFound = errors.NewSentinel("dossier not found")
	// ErrConflict is returned when creating a dossier whose id is already taken.
	ErrConflict = errors.NewSentinel("dossier already exists")
)

const dossierColumns = `id, player_name, data, created_at, updated_at`

// DossierRepository persists dossiers in SQLite.
//
// Reads go through the read-only connection pool and writes through the single read-write connection.
type DossierRepository struct {
	dbs    *sqlite.Database
	logger *slog.Logger
}

func NewDossierRepository(dbs *sqlite.Database, logger *slog.Logger) *DossierRepository {
	return &DossierRepository{
		dbs:    dbs,
		logger: logger.With("source", "DossierRepository"),
	}
}

// Get returns the stored dossier with id or ErrNotFound.
func (r *DossierRepository) Get(ctx context.Context, id string) (*models.Dossier, error) {
	var dossier models.Dossier
	stmt := `SELECT ` + dossierColumns + ` FROM dossiers WHERE id = ?`
	if err := r.dbs.ReadOnly.GetContext(ctx, &dossier, stmt, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrap(ErrNotFound, "read dossier", slog.String("dossier_id", id))
		}
		return nil, errors.Wrap(err, "read dossier", slog.String("dossier_id", id))
	}
	normalizeTimestamps(&dossier)
	return &dossier, nil
}

// Create inserts a new dossier. It fails with ErrConflict if the id is taken and never overwrites.
func (r *DossierRepository) Create(ctx context.Context, dossier *models.Dossier) (*models.Dossier, error) {
	created := dossier.Clone()
	if created.Data == nil {
		created.Data = models.Data{}
	}
	normalizeTimestamps(created)

	stmt := `INSERT INTO dossiers (` + dossierColumns + `)
VALUES (:id, :player_name, :data, :created_at, :updated_at)
ON CONFLICT (id) DO NOTHING`
	result, err := r.dbs.ReadWrite.NamedExecContext(ctx, stmt, created)
	if err != nil {
		return nil, errors.Wrap(err, "insert dossier", slog.String("dossier_id", created.ID))
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, errors.Wrap(err, "rows affected")
	}
	if affected == 0 {
		return nil, errors.Wrap(ErrConflict, "insert dossier", slog.String("dossier_id", created.ID))
	}
	r.logger.LogAttrs(ctx, slog.LevelDebug, "created dossier", slog.String("dossier_id", created.ID))
	return created, nil
}

// Update replaces the data of dossier id wholesale and refreshes updated_at.
//
// The new updated_at is strictly later than the previous one even if the clock has not advanced. Update never creates
// dossiers; a missing id yields ErrNotFound.
func (r *DossierRepository) Update(ctx context.Context, id string, newData models.Data) (*models.Dossier, error) {
	var (
		err     error
		tx      *sqlx.Tx
		current models.Dossier
	)
	if newData == nil {
		newData = models.Data{}
	}

	// The read-write connection uses immediate transactions so the read below already holds the write lock.
	if tx, err = r.dbs.ReadWrite.BeginTxx(ctx, nil); err != nil {
		return nil, errors.Wrap(err, "begin transaction")
	}
	defer func() {
		if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
			r.logger.LogAttrs(ctx, slog.LevelError, "failed to rollback transaction",
				errors.SlogError(errors.Wrap(rollbackErr, "rollback")))
		}
	}()

	stmt := `SELECT ` + dossierColumns + ` FROM dossiers WHERE id = ?`
	if err = tx.GetContext(ctx, &current, stmt, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrap(ErrNotFound, "read dossier for update", slog.String("dossier_id", id))
		}
		return nil, errors.Wrap(err, "read dossier for update", slog.String("dossier_id", id))
	}
	normalizeTimestamps(&current)

	updated := current
	updated.Data = newData.Clone()
	updated.UpdatedAt = nextUpdatedAt(current.UpdatedAt, time.Now())

	stmt = `UPDATE dossiers SET data = :data, updated_at = :updated_at WHERE id = :id`
	if _, err = tx.NamedExecContext(ctx, stmt, &updated); err != nil {
		return nil, errors.Wrap(err, "update dossier", slog.String("dossier_id", id))
	}
	if err = tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "commit transaction")
	}
	r.logger.LogAttrs(ctx, slog.LevelDebug, "updated dossier", slog.String("dossier_id", id))
	return &updated, nil
}

// Delete removes dossier id and reports whether a row was removed.
func (r *DossierRepository) Delete(ctx context.Context, id string) (bool, error) {
	result, err := r.dbs.ReadWrite.ExecContext(ctx, `DELETE FROM dossiers WHERE id = ?`, id)
	if err != nil {
		return false, errors.Wrap(err, "delete dossier", slog.String("dossier_id", id))
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "rows affected")
	}
	if affected > 0 {
		r.logger.LogAttrs(ctx, slog.LevelDebug, "deleted dossier", slog.String("dossier_id", id))
	}
	return affected > 0, nil
}

// List returns all dossiers, most recently updated first.
func (r *DossierRepository) List(ctx context.Context) ([]models.Dossier, error) {
	dossiers := []models.Dossier{}
	stmt := `SELECT ` + dossierColumns + ` FROM dossiers ORDER BY updated_at DESC, id`
	if err := r.dbs.ReadOnly.SelectContext(ctx, &dossiers, stmt); err != nil {
		return nil, errors.Wrap(err, "list dossiers")
	}
	for i := range dossiers {
		normalizeTimestamps(&dossiers[i])
	}
	return dossiers, nil
}

// Count returns the number of stored dossiers.
func (r *DossierRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.dbs.ReadOnly.GetContext(ctx, &count, `SELECT COUNT(*) FROM dossiers`); err != nil {
		return 0, errors.Wrap(err, "count dossiers")
	}
	return count, nil
}

// nextUpdatedAt returns now in UTC, bumped past previous when the clock has not moved forward.
func nextUpdatedAt(previous, now time.Time) time.Time {
	now = now.UTC()
	if !now.After(previous) {
		return previous.Add(time.Microsecond).UTC()
	}
	return now
}

func normalizeTimestamps(dossier *models.Dossier) {
	dossier.CreatedAt = dossier.CreatedAt.UTC()
	dossier.UpdatedAt = dossier.UpdatedAt.UTC()
}
