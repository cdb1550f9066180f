package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// sqliteSchema creates the KV table. The composite primary key is what
// enforces per-tenant namespacing at the storage layer.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS convomem_kv (
	tenant_id  TEXT NOT NULL,
	key        TEXT NOT NULL,
	value      BLOB NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	PRIMARY KEY (tenant_id, key)
);
`

// SQLiteKV is a KV implementation backed by a local SQLite database file.
// It is the durable local store for single-user deployments.
type SQLiteKV struct {
	db *sql.DB
}

// NewSQLiteKV opens (creating if needed) the database at path and ensures
// the schema exists. Use ":memory:" for an ephemeral store.
func NewSQLiteKV(path string) (*SQLiteKV, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	// SQLite allows one writer; serialize access through a single
	// connection to avoid SQLITE_BUSY under concurrent contexts.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteKV{db: db}, nil
}

// Close closes the underlying database.
func (s *SQLiteKV) Close() error {
	return s.db.Close()
}

// Get retrieves a value.
func (s *SQLiteKV) Get(ctx context.Context, tenantID, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM convomem_kv WHERE tenant_id = ? AND key = ?`,
		tenantID, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", tenantID, key, err)
	}
	return value, nil
}

// Set upserts a value.
func (s *SQLiteKV) Set(ctx context.Context, tenantID, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO convomem_kv (tenant_id, key, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (tenant_id, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		tenantID, key, value, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("set %s/%s: %w", tenantID, key, err)
	}
	return nil
}

// Delete removes a key. Deleting a missing key is not an error.
func (s *SQLiteKV) Delete(ctx context.Context, tenantID, key string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM convomem_kv WHERE tenant_id = ? AND key = ?`,
		tenantID, key,
	)
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", tenantID, key, err)
	}
	return nil
}

// ListKeys returns the tenant's keys in sorted order.
func (s *SQLiteKV) ListKeys(ctx context.Context, tenantID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key FROM convomem_kv WHERE tenant_id = ? ORDER BY key`,
		tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("list keys for %s: %w", tenantID, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// Update applies fn to the current value within a single transaction, so
// the read-modify-write cannot lose a concurrent update.
func (s *SQLiteKV) Update(ctx context.Context, tenantID, key string, fn func(old []byte) ([]byte, error)) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update: %w", err)
	}
	defer tx.Rollback()

	var old []byte
	err = tx.QueryRowContext(ctx,
		`SELECT value FROM convomem_kv WHERE tenant_id = ? AND key = ?`,
		tenantID, key,
	).Scan(&old)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("read %s/%s: %w", tenantID, key, err)
	}

	updated, err := fn(old)
	if err != nil {
		return err
	}

	if updated == nil {
		_, err = tx.ExecContext(ctx,
			`DELETE FROM convomem_kv WHERE tenant_id = ? AND key = ?`,
			tenantID, key,
		)
	} else {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO convomem_kv (tenant_id, key, value, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (tenant_id, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			tenantID, key, updated, time.Now().UTC(),
		)
	}
	if err != nil {
		return fmt.Errorf("write %s/%s: %w", tenantID, key, err)
	}
	return tx.Commit()
}
