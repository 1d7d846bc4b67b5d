package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/sift/internal/shared"
)

// KVRepository stores JSON records in named partitions of the kv_records table.
//
// Writers are last-write-wins. Every method first migrates legacy rows, once per instance.
type KVRepository struct {
	db     *sql.DB
	logger *log.Logger
	now    func() time.Time
	legacy sync.Once
}

// Option configures a [KVRepository].
type Option func(*KVRepository)

// WithLogger sets the repository logger.
func WithLogger(l *log.Logger) Option {
	return func(r *KVRepository) { r.logger = l }
}

// WithClock overrides the clock used for updated_at timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *KVRepository) { r.now = now }
}

// NewKVRepository creates a repository over db. The schema is expected to be migrated with [shared.RunMigrations].
func NewKVRepository(db *sql.DB, opts ...Option) *KVRepository {
	r := &KVRepository{db: db, logger: defaultLogger(), now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *KVRepository) ensureMigrated(ctx context.Context) {
	r.legacy.Do(func() {
		n, err := r.MigrateLegacy(ctx)
		if err != nil {
			r.logger.Warn("legacy cache migration failed", "error", err)
			return
		}
		if n > 0 {
			r.logger.Info("migrated legacy cache entries", "count", n)
		}
	})
}

// Get decodes the record at store/key into dst and reports whether it exists.
//
// A missing table reads as an empty store.
func (r *KVRepository) Get(ctx context.Context, store, key string, dst any) (bool, error) {
	r.ensureMigrated(ctx)

	var value []byte
	err := r.db.QueryRowContext(ctx,
		"SELECT value FROM kv_records WHERE store = ? AND key = ?", store, key,
	).Scan(&value)
	switch {
	case errors.Is(err, sql.ErrNoRows), isMissingTable(err):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("%w: get %s/%s: %v", shared.ErrStorage, store, key, err)
	}

	if err := json.Unmarshal(value, dst); err != nil {
		return false, fmt.Errorf("%w: decode %s/%s: %v", shared.ErrStorage, store, key, err)
	}
	return true, nil
}

// Put writes value at store/key without an expiry, replacing any previous record atomically.
func (r *KVRepository) Put(ctx context.Context, store, key string, value any) error {
	return r.put(ctx, store, key, value, sql.NullInt64{})
}

// PutWithExpiry writes value with an expiry index used by [KVRepository.SweepExpired].
func (r *KVRepository) PutWithExpiry(ctx context.Context, store, key string, value any, expiresAt time.Time) error {
	return r.put(ctx, store, key, value, sql.NullInt64{Int64: expiresAt.UnixMilli(), Valid: true})
}

func (r *KVRepository) put(ctx context.Context, store, key string, value any, expiresAt sql.NullInt64) error {
	r.ensureMigrated(ctx)

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%w: encode %s/%s: %v", shared.ErrInvalidInput, store, key, err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO kv_records (store, key, value, expires_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(store, key) DO UPDATE SET
			value = excluded.value,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at
	`, store, key, data, expiresAt, r.now().UnixMilli())
	if err != nil {
		return wrapWriteError("put", store, key, err)
	}
	return nil
}

// Delete removes store/key. Deleting a missing record is not an error.
func (r *KVRepository) Delete(ctx context.Context, store, key string) error {
	r.ensureMigrated(ctx)

	_, err := r.db.ExecContext(ctx, "DELETE FROM kv_records WHERE store = ? AND key = ?", store, key)
	if err != nil && !isMissingTable(err) {
		return wrapWriteError("delete", store, key, err)
	}
	return nil
}

// ListKeys returns the keys in store in ascending order.
func (r *KVRepository) ListKeys(ctx context.Context, store string) ([]string, error) {
	r.ensureMigrated(ctx)

	rows, err := r.db.QueryContext(ctx, "SELECT key FROM kv_records WHERE store = ? ORDER BY key", store)
	if isMissingTable(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: list %s: %v", shared.ErrStorage, store, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("%w: scan key: %v", shared.ErrStorage, err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Clear deletes every record in store and returns how many were removed.
func (r *KVRepository) Clear(ctx context.Context, store string) (int, error) {
	r.ensureMigrated(ctx)

	res, err := r.db.ExecContext(ctx, "DELETE FROM kv_records WHERE store = ?", store)
	if isMissingTable(err) {
		return 0, nil
	}
	if err != nil {
		return 0, wrapWriteError("clear", store, "*", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// SweepExpired deletes records in store whose expiry is at or before now. Records without an expiry are kept.
func (r *KVRepository) SweepExpired(ctx context.Context, store string, now time.Time) (int, error) {
	r.ensureMigrated(ctx)

	res, err := r.db.ExecContext(ctx,
		"DELETE FROM kv_records WHERE store = ? AND expires_at IS NOT NULL AND expires_at <= ?",
		store, now.UnixMilli(),
	)
	if isMissingTable(err) {
		return 0, nil
	}
	if err != nil {
		return 0, wrapWriteError("sweep", store, "*", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// StoreStats summarizes one partition.
type StoreStats struct {
	Store   string
	Records int
	Bytes   int64
}

// Stats returns record counts and payload sizes for every known partition, including empty ones.
func (r *KVRepository) Stats(ctx context.Context) ([]StoreStats, error) {
	r.ensureMigrated(ctx)

	counts := make(map[string]StoreStats)
	rows, err := r.db.QueryContext(ctx,
		"SELECT store, COUNT(*), COALESCE(SUM(LENGTH(value)), 0) FROM kv_records GROUP BY store",
	)
	switch {
	case isMissingTable(err):
	case err != nil:
		return nil, fmt.Errorf("%w: stats: %v", shared.ErrStorage, err)
	default:
		defer rows.Close()
		for rows.Next() {
			var s StoreStats
			if err := rows.Scan(&s.Store, &s.Records, &s.Bytes); err != nil {
				return nil, fmt.Errorf("%w: scan stats: %v", shared.ErrStorage, err)
			}
			counts[s.Store] = s
		}
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}

	out := make([]StoreStats, len(Stores))
	for i, name := range Stores {
		s := counts[name]
		s.Store = name
		out[i] = s
	}
	return out, nil
}
