package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/intellidesk/internal/persistence"
	"github.com/example/intellidesk/internal/persistence/sqlite/migration"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// DefaultHistoryRetention is how many replaced payloads Swap keeps per collection.
const DefaultHistoryRetention = 20

// Store is a persistence.BlobStore backed by SQLite.
type Store struct {
	pool      *ConnectionPool
	retry     *RetryHelper
	now       func() time.Time
	retention int
}

// Open connects to the database described by cfg. Call Migrate before use.
func Open(cfg Config) (*Store, error) {
	pool, err := NewConnectionPool(cfg)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool, retry: NewRetryHelper(DefaultRetryConfig()), now: time.Now, retention: DefaultHistoryRetention}, nil
}

// KeepHistory caps collection_history at n versions per collection. Zero or
// less keeps no history.
func (s *Store) KeepHistory(n int) {
	if n < 0 {
		n = 0
	}
	s.retention = n
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.pool.Close()
}

// Migrate applies the embedded schema migrations.
func (s *Store) Migrate(ctx context.Context, logger *slog.Logger) error {
	return migration.NewManager(s.pool.DB(), migrationFiles, "migrations", logger).Run(ctx)
}

// MigrationStatus reports applied and pending schema migrations.
func (s *Store) MigrationStatus(ctx context.Context) (migration.Status, error) {
	return migration.NewManager(s.pool.DB(), migrationFiles, "migrations", nil).Status(ctx)
}

// Read returns the payload and version of a collection.
func (s *Store) Read(ctx context.Context, name string) (persistence.Blob, error) {
	var blob persistence.Blob
	err := s.retry.WithRetry(ctx, func() error {
		row := s.pool.DB().QueryRowContext(ctx, `SELECT payload, version FROM collections WHERE name = ?`, name)
		err := row.Scan(&blob.Payload, &blob.Version)
		if errors.Is(err, sql.ErrNoRows) {
			blob = persistence.Blob{}
			return nil
		}
		return err
	})
	if err != nil {
		return persistence.Blob{}, fmt.Errorf("sqlite: read %s: %w", name, err)
	}
	return blob, nil
}

// Swap replaces a collection's payload when its version equals expected.
// The replaced payload is copied to collection_history in the same transaction
// and versions beyond the retention limit are pruned.
func (s *Store) Swap(ctx context.Context, name string, payload []byte, expected int64) (int64, error) {
	next := expected + 1
	err := s.retry.WithRetry(ctx, func() error {
		return s.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
			var (
				current    int64
				oldPayload []byte
			)
			err := tx.QueryRowContext(ctx, `SELECT version, payload FROM collections WHERE name = ?`, name).Scan(&current, &oldPayload)
			switch {
			case errors.Is(err, sql.ErrNoRows):
				current = 0
			case err != nil:
				return err
			}
			if current != expected {
				return fmt.Errorf("%w: %s at %d, expected %d", persistence.ErrVersionConflict, name, current, expected)
			}

			stamp := s.now().UTC().Format(time.RFC3339Nano)
			if current > 0 && s.retention > 0 {
				if _, err := tx.ExecContext(ctx,
					`INSERT INTO collection_history (name, version, payload, replaced_at) VALUES (?, ?, ?, ?)`,
					name, current, oldPayload, stamp); err != nil {
					return err
				}
				if _, err := tx.ExecContext(ctx,
					`DELETE FROM collection_history WHERE name = ? AND version <= ?`,
					name, current-int64(s.retention)); err != nil {
					return err
				}
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO collections (name, payload, version, updated_at) VALUES (?, ?, ?, ?)
				ON CONFLICT(name) DO UPDATE SET payload = excluded.payload, version = excluded.version, updated_at = excluded.updated_at`,
				name, payload, next, stamp)
			return err
		})
	})
	if err != nil {
		if errors.Is(err, persistence.ErrVersionConflict) {
			return 0, err
		}
		return 0, fmt.Errorf("sqlite: swap %s: %w", name, err)
	}
	return next, nil
}

var _ persistence.BlobStore = (*Store)(nil)
