// Package storage persists chat sessions behind a narrow tenant-scoped
// key-value repository.
//
// The key layout per tenant is fixed: one body key per session
// ("session:<id>"), a single index key ("index") listing lightweight entries
// for every session, and an active-session pointer key ("active"). All keys
// are namespaced by tenant identifier, so no cross-tenant key can collide
// and no cross-tenant read or write is possible through SessionStore.
//
// SessionStore enforces a per-tenant quota: a byte budget and a maximum
// session count. Writes that would exceed either limit evict the
// oldest-by-update sessions in batches until the write fits; the active
// session is never evicted unless it is the only session left and the
// incoming write replaces it.
//
// Every index mutation is read-modify-write against the latest persisted
// value (or the store's atomic update primitive when available), so
// concurrent contexts on the same tenant cannot lose updates.
package storage
