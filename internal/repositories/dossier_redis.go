package repositories

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/myrjola/dossier/internal/errors"
	"github.com/myrjola/dossier/internal/models"
	"github.com/redis/go-redis/v9"
)

const (
	redisDossierKeyPrefix = "dossier:"
	redisUpdatedIndexKey  = "dossiers:by_updated"
	redisMaxTxAttempts    = 5
)

// RedisDossierRepository persists dossiers in Redis.
//
// Each dossier is a JSON string under dossier:<id>. The sorted set dossiers:by_updated scores ids by updated_at in
// microseconds so that List can return the most recently updated dossiers first.
type RedisDossierRepository struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedisDossierRepository connects to the Redis server at url and verifies the connection.
func NewRedisDossierRepository(ctx context.Context, url string, logger *slog.Logger) (*RedisDossierRepository, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second) //nolint:mnd // 5 seconds
	defer cancel()
	if err = client.Ping(pingCtx).Err(); err != nil {
		return nil, errors.Join(errors.Wrap(err, "ping redis"), client.Close())
	}
	return NewRedisDossierRepositoryWithClient(client, logger), nil
}

// NewRedisDossierRepositoryWithClient wraps an existing client.
func NewRedisDossierRepositoryWithClient(client *redis.Client, logger *slog.Logger) *RedisDossierRepository {
	return &RedisDossierRepository{
		client: client,
		logger: logger.With("source", "RedisDossierRepository"),
	}
}

// Close closes the Redis connection pool.
func (r *RedisDossierRepository) Close() error {
	if err := r.client.Close(); err != nil {
		return errors.Wrap(err, "close redis client")
	}
	return nil
}

// Get returns the stored dossier with id or ErrNotFound.
func (r *RedisDossierRepository) Get(ctx context.Context, id string) (*models.Dossier, error) {
	raw, err := r.client.Get(ctx, dossierKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, errors.Wrap(ErrNotFound, "read dossier", slog.String("dossier_id", id))
		}
		return nil, errors.Wrap(err, "read dossier", slog.String("dossier_id", id))
	}
	dossier, err := decodeDossier(raw)
	if err != nil {
		return nil, errors.Wrap(err, "decode dossier", slog.String("dossier_id", id))
	}
	return dossier, nil
}

// Create stores a new dossier. It fails with ErrConflict if the id is taken and never overwrites.
//
// The document and its index entry are written in one transaction guarded by WATCH, so a concurrent delete or update
// of the same id cannot interleave with them.
func (r *RedisDossierRepository) Create(ctx context.Context, dossier *models.Dossier) (*models.Dossier, error) {
	created := dossier.Clone()
	if created.Data == nil {
		created.Data = models.Data{}
	}
	normalizeTimestamps(created)

	payload, err := json.Marshal(created)
	if err != nil {
		return nil, errors.Wrap(err, "encode dossier", slog.String("dossier_id", created.ID))
	}
	key := dossierKey(created.ID)

	txf := func(tx *redis.Tx) error {
		exists, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return errors.Wrap(err, "check dossier", slog.String("dossier_id", created.ID))
		}
		if exists > 0 {
			return errors.Wrap(ErrConflict, "insert dossier", slog.String("dossier_id", created.ID))
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, 0)
			pipe.ZAdd(ctx, redisUpdatedIndexKey, updatedMember(created))
			return nil
		})
		return err //nolint:wrapcheck // TxFailedErr must stay comparable for the retry loop.
	}

	if err = r.watch(ctx, key, txf); err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, err
		}
		return nil, errors.Wrap(err, "create dossier", slog.String("dossier_id", created.ID))
	}
	r.logger.LogAttrs(ctx, slog.LevelDebug, "created dossier", slog.String("dossier_id", created.ID))
	return created, nil
}

// Update replaces the data of dossier id wholesale and refreshes updated_at.
//
// The write is guarded with WATCH so a concurrent delete is never resurrected. Update never creates dossiers.
func (r *RedisDossierRepository) Update(ctx context.Context, id string, newData models.Data) (*models.Dossier, error) {
	if newData == nil {
		newData = models.Data{}
	}
	key := dossierKey(id)
	var updated *models.Dossier

	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return errors.Wrap(ErrNotFound, "read dossier for update", slog.String("dossier_id", id))
			}
			return errors.Wrap(err, "read dossier for update", slog.String("dossier_id", id))
		}
		current, err := decodeDossier(raw)
		if err != nil {
			return errors.Wrap(err, "decode dossier", slog.String("dossier_id", id))
		}

		next := current.Clone()
		next.Data = newData.Clone()
		next.UpdatedAt = nextUpdatedAt(current.UpdatedAt, time.Now())
		payload, err := json.Marshal(next)
		if err != nil {
			return errors.Wrap(err, "encode dossier", slog.String("dossier_id", id))
		}

		if _, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, 0)
			pipe.ZAdd(ctx, redisUpdatedIndexKey, updatedMember(next))
			return nil
		}); err != nil {
			return err //nolint:wrapcheck // TxFailedErr must stay comparable for the retry loop.
		}
		updated = next
		return nil
	}

	if err := r.watch(ctx, key, txf); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, errors.Wrap(err, "update dossier", slog.String("dossier_id", id))
	}
	r.logger.LogAttrs(ctx, slog.LevelDebug, "updated dossier", slog.String("dossier_id", id))
	return updated, nil
}

// watch runs txf under WATCH key and retries when another client modified key before the transaction committed.
func (r *RedisDossierRepository) watch(ctx context.Context, key string, txf func(tx *redis.Tx) error) error {
	for range redisMaxTxAttempts {
		err := r.client.Watch(ctx, txf, key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err //nolint:wrapcheck // callers wrap with their own context.
		}
	}
	return errors.New("too much contention", slog.String("key", key))
}

// Delete removes dossier id and reports whether it existed.
func (r *RedisDossierRepository) Delete(ctx context.Context, id string) (bool, error) {
	var del *redis.IntCmd
	if _, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, dossierKey(id))
		pipe.ZRem(ctx, redisUpdatedIndexKey, id)
		return nil
	}); err != nil {
		return false, errors.Wrap(err, "delete dossier", slog.String("dossier_id", id))
	}
	removed := del.Val() > 0
	if removed {
		r.logger.LogAttrs(ctx, slog.LevelDebug, "deleted dossier", slog.String("dossier_id", id))
	}
	return removed, nil
}

// List returns all dossiers, most recently updated first. Ties are ordered by id.
func (r *RedisDossierRepository) List(ctx context.Context) ([]models.Dossier, error) {
	ids, err := r.client.ZRevRange(ctx, redisUpdatedIndexKey, 0, -1).Result()
	if err != nil {
		return nil, errors.Wrap(err, "list dossier ids")
	}
	dossiers := make([]models.Dossier, 0, len(ids))
	if len(ids) == 0 {
		return dossiers, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = dossierKey(id)
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, errors.Wrap(err, "read dossiers")
	}
	for i, value := range values {
		raw, ok := value.(string)
		if !ok {
			// Deleted between ZREVRANGE and MGET.
			continue
		}
		dossier, decodeErr := decodeDossier([]byte(raw))
		if decodeErr != nil {
			return nil, errors.Wrap(decodeErr, "decode dossier", slog.String("dossier_id", ids[i]))
		}
		dossiers = append(dossiers, *dossier)
	}
	// ZREVRANGE orders equal scores by descending member.
	slices.SortStableFunc(dossiers, func(a, b models.Dossier) int {
		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return dossiers, nil
}

// Count returns the number of stored dossiers.
func (r *RedisDossierRepository) Count(ctx context.Context) (int, error) {
	count, err := r.client.ZCard(ctx, redisUpdatedIndexKey).Result()
	if err != nil {
		return 0, errors.Wrap(err, "count dossiers")
	}
	return int(count), nil
}

func dossierKey(id string) string {
	return redisDossierKeyPrefix + id
}

func updatedMember(dossier *models.Dossier) redis.Z {
	return redis.Z{Score: float64(dossier.UpdatedAt.UnixMicro()), Member: dossier.ID}
}

func decodeDossier(raw []byte) (*models.Dossier, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var dossier models.Dossier
	if err := dec.Decode(&dossier); err != nil {
		return nil, errors.Wrap(err, "decode json")
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("unexpected data after json object")
	}
	if dossier.Data == nil {
		dossier.Data = models.Data{}
	}
	normalizeTimestamps(&dossier)
	return &dossier, nil
}
