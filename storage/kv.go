package storage

import "context"

// KV is the narrow repository interface the session store is built on. All
// operations are scoped by tenant; implementations must guarantee that keys
// of different tenants can never collide. Get returns ErrKeyNotFound for
// missing keys.
type KV interface {
	Get(ctx context.Context, tenantID, key string) ([]byte, error)
	Set(ctx context.Context, tenantID, key string, value []byte) error
	Delete(ctx context.Context, tenantID, key string) error
	ListKeys(ctx context.Context, tenantID string) ([]string, error)
}

// AtomicKV is implemented by stores that can apply a read-modify-write as a
// single atomic step. SessionStore uses it for index updates when available,
// falling back to re-read-before-write otherwise.
//
// fn receives nil when the key is missing; returning nil deletes the key.
type AtomicKV interface {
	KV
	Update(ctx context.Context, tenantID, key string, fn func(old []byte) ([]byte, error)) error
}
