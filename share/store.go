package share

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/Consensys/ask-o11y-plugin-sub002/storage"
)

// Share resolution errors.
var (
	ErrShareNotFound = errors.New("share: not found")
	ErrShareExpired  = errors.New("share: expired")
	ErrShareRevoked  = errors.New("share: revoked")
)

// Store persists share records. Get is tenant-less because share links
// resolve without knowing who created them.
type Store interface {
	Put(ctx context.Context, record *Record) error
	Get(ctx context.Context, shareID string) (*Record, error)
	ListByTenant(ctx context.Context, tenantID string) ([]*Record, error)
	Delete(ctx context.Context, shareID string) error
}

// Shares live in a reserved KV namespace outside any real tenant, since
// resolution crosses tenant boundaries.
const (
	shareNamespace = "_shares"
	shareKeyPrefix = "share:"
)

// KVStore implements Store on a storage.KV.
type KVStore struct {
	kv storage.KV
}

// NewKVStore creates a share store backed by kv.
func NewKVStore(kv storage.KV) *KVStore {
	return &KVStore{kv: kv}
}

func (s *KVStore) Put(ctx context.Context, record *Record) error {
	value, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode share %s: %w", record.ID, err)
	}
	return s.kv.Set(ctx, shareNamespace, shareKeyPrefix+record.ID, value)
}

func (s *KVStore) Get(ctx context.Context, shareID string) (*Record, error) {
	value, err := s.kv.Get(ctx, shareNamespace, shareKeyPrefix+shareID)
	if err == storage.ErrKeyNotFound {
		return nil, ErrShareNotFound
	}
	if err != nil {
		return nil, err
	}

	var record Record
	if err := json.Unmarshal(value, &record); err != nil {
		return nil, fmt.Errorf("decode share %s: %w", shareID, err)
	}
	return &record, nil
}

func (s *KVStore) ListByTenant(ctx context.Context, tenantID string) ([]*Record, error) {
	keys, err := s.kv.ListKeys(ctx, shareNamespace)
	if err != nil {
		return nil, err
	}

	var records []*Record
	for _, key := range keys {
		if !strings.HasPrefix(key, shareKeyPrefix) {
			continue
		}
		record, err := s.Get(ctx, strings.TrimPrefix(key, shareKeyPrefix))
		if err == ErrShareNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		if record.TenantID == tenantID {
			records = append(records, record)
		}
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	return records, nil
}

func (s *KVStore) Delete(ctx context.Context, shareID string) error {
	return s.kv.Delete(ctx, shareNamespace, shareKeyPrefix+shareID)
}
