package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func newTestSQLiteKV(t *testing.T) *SQLiteKV {
	t.Helper()
	kv, err := NewSQLiteKV(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	t.Cleanup(func() { kv.Close() })
	return kv
}

func TestSQLiteKVRoundTrip(t *testing.T) {
	ctx := context.Background()
	kv := newTestSQLiteKV(t)

	if err := kv.Set(ctx, "t1", "k1", []byte("v1")); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	got, err := kv.Get(ctx, "t1", "k1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if string(got) != "v1" {
		t.Errorf("got %q, want %q", got, "v1")
	}

	// Overwrite.
	kv.Set(ctx, "t1", "k1", []byte("v2"))
	got, _ = kv.Get(ctx, "t1", "k1")
	if string(got) != "v2" {
		t.Errorf("got %q, want %q after overwrite", got, "v2")
	}
}

func TestSQLiteKVMissingKey(t *testing.T) {
	kv := newTestSQLiteKV(t)
	if _, err := kv.Get(context.Background(), "t1", "nope"); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("got %v, want ErrKeyNotFound", err)
	}
}

func TestSQLiteKVTenantIsolation(t *testing.T) {
	ctx := context.Background()
	kv := newTestSQLiteKV(t)

	kv.Set(ctx, "t1", "shared-key", []byte("from t1"))
	kv.Set(ctx, "t2", "shared-key", []byte("from t2"))

	got, _ := kv.Get(ctx, "t1", "shared-key")
	if string(got) != "from t1" {
		t.Errorf("tenant t1 sees %q", got)
	}

	kv.Delete(ctx, "t1", "shared-key")
	if _, err := kv.Get(ctx, "t2", "shared-key"); err != nil {
		t.Errorf("deleting in t1 affected t2: %v", err)
	}
}

func TestSQLiteKVListKeys(t *testing.T) {
	ctx := context.Background()
	kv := newTestSQLiteKV(t)

	kv.Set(ctx, "t1", "b", []byte("1"))
	kv.Set(ctx, "t1", "a", []byte("2"))
	kv.Set(ctx, "t2", "c", []byte("3"))

	keys, err := kv.ListKeys(ctx, "t1")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(keys) != 2 || keys[0] != "a" || keys[1] != "b" {
		t.Errorf("got %v, want sorted [a b]", keys)
	}
}

func TestSQLiteKVUpdate(t *testing.T) {
	ctx := context.Background()
	kv := newTestSQLiteKV(t)

	// Missing key: fn sees nil.
	err := kv.Update(ctx, "t1", "counter", func(old []byte) ([]byte, error) {
		if old != nil {
			t.Errorf("expected nil for missing key, got %q", old)
		}
		return []byte("1"), nil
	})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}

	// Existing key: fn sees the stored value.
	kv.Update(ctx, "t1", "counter", func(old []byte) ([]byte, error) {
		if string(old) != "1" {
			t.Errorf("got %q, want %q", old, "1")
		}
		return []byte("2"), nil
	})
	got, _ := kv.Get(ctx, "t1", "counter")
	if string(got) != "2" {
		t.Errorf("got %q, want %q", got, "2")
	}

	// Returning nil deletes.
	kv.Update(ctx, "t1", "counter", func(old []byte) ([]byte, error) {
		return nil, nil
	})
	if _, err := kv.Get(ctx, "t1", "counter"); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("got %v, want ErrKeyNotFound after delete-via-update", err)
	}

	// An fn error aborts the write.
	boom := errors.New("boom")
	kv.Set(ctx, "t1", "k", []byte("before"))
	if err := kv.Update(ctx, "t1", "k", func([]byte) ([]byte, error) { return nil, boom }); !errors.Is(err, boom) {
		t.Fatalf("got %v, want the fn error", err)
	}
	got, _ = kv.Get(ctx, "t1", "k")
	if string(got) != "before" {
		t.Errorf("failed update changed the value to %q", got)
	}
}

func TestSQLiteKVPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "test.db")

	kv, err := NewSQLiteKV(path)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	kv.Set(ctx, "t1", "k", []byte("durable"))
	kv.Close()

	reopened, err := NewSQLiteKV(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.Get(ctx, "t1", "k")
	if err != nil {
		t.Fatalf("get after reopen failed: %v", err)
	}
	if string(got) != "durable" {
		t.Errorf("got %q, want %q", got, "durable")
	}
}
