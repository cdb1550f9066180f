package share

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Consensys/ask-o11y-plugin-sub002/types"
)

// PostgresStore implements Store using PostgreSQL with pgx. Intended for
// deployments where share links must resolve from any node.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL share store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate creates the shares table if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS convomem_shares (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			session_id TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			messages JSONB NOT NULL,
			summary TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL,
			expires_at TIMESTAMPTZ,
			revoked BOOLEAN NOT NULL DEFAULT FALSE
		);
		CREATE INDEX IF NOT EXISTS convomem_shares_tenant_idx ON convomem_shares (tenant_id, created_at DESC);
	`
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to migrate shares table: %w", err)
	}
	return nil
}

func (s *PostgresStore) Put(ctx context.Context, record *Record) error {
	messagesJSON, err := json.Marshal(record.Messages)
	if err != nil {
		return fmt.Errorf("failed to marshal share messages: %w", err)
	}

	var expiresAt *time.Time
	if !record.ExpiresAt.IsZero() {
		expiresAt = &record.ExpiresAt
	}

	query := `
		INSERT INTO convomem_shares (id, tenant_id, session_id, title, messages, summary, created_at, expires_at, revoked)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			messages = EXCLUDED.messages,
			summary = EXCLUDED.summary,
			expires_at = EXCLUDED.expires_at,
			revoked = EXCLUDED.revoked
	`

	_, err = s.pool.Exec(ctx, query,
		record.ID, record.TenantID, record.SessionID, record.Title,
		messagesJSON, record.Summary, record.CreatedAt, expiresAt, record.Revoked)
	if err != nil {
		return fmt.Errorf("failed to write share: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, shareID string) (*Record, error) {
	query := `
		SELECT id, tenant_id, session_id, title, messages, summary, created_at, expires_at, revoked
		FROM convomem_shares
		WHERE id = $1
	`
	record, err := scanRecord(s.pool.QueryRow(ctx, query, shareID))
	if err == pgx.ErrNoRows {
		return nil, ErrShareNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get share: %w", err)
	}
	return record, nil
}

func (s *PostgresStore) ListByTenant(ctx context.Context, tenantID string) ([]*Record, error) {
	query := `
		SELECT id, tenant_id, session_id, title, messages, summary, created_at, expires_at, revoked
		FROM convomem_shares
		WHERE tenant_id = $1
		ORDER BY created_at DESC
	`
	rows, err := s.pool.Query(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query shares: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan share: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating shares: %w", err)
	}
	return records, nil
}

func (s *PostgresStore) Delete(ctx context.Context, shareID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM convomem_shares WHERE id = $1`, shareID); err != nil {
		return fmt.Errorf("failed to delete share: %w", err)
	}
	return nil
}

func scanRecord(row pgx.Row) (*Record, error) {
	var record Record
	var messagesJSON []byte
	var expiresAt *time.Time

	err := row.Scan(
		&record.ID,
		&record.TenantID,
		&record.SessionID,
		&record.Title,
		&messagesJSON,
		&record.Summary,
		&record.CreatedAt,
		&expiresAt,
		&record.Revoked,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(messagesJSON, &record.Messages); err != nil {
		return nil, fmt.Errorf("failed to unmarshal share messages: %w", err)
	}
	if record.Messages == nil {
		record.Messages = []*types.Message{}
	}
	if expiresAt != nil {
		record.ExpiresAt = *expiresAt
	}
	return &record, nil
}
