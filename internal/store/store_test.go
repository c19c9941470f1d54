package store

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
)

type kv interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
	Close() error
}

func stores(t *testing.T) map[string]kv {
	t.Helper()
	sqlite, err := OpenSQLite(filepath.Join(t.TempDir(), "nested", "tracker.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = sqlite.Close() })
	return map[string]kv{
		"memory": NewMemoryStore(),
		"sqlite": sqlite,
	}
}

func TestStoreGetPut(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			if _, ok, err := s.Get(ctx, "missing"); err != nil || ok {
				t.Fatalf("expected missing key, got ok=%v err=%v", ok, err)
			}

			if err := s.Put(ctx, "aqi_historical_data", []byte(`{"2024-03-01":[]}`)); err != nil {
				t.Fatalf("put: %v", err)
			}
			if err := s.Put(ctx, "aqi_historical_data", []byte(`{"2024-03-02":[]}`)); err != nil {
				t.Fatalf("overwrite: %v", err)
			}

			v, ok, err := s.Get(ctx, "aqi_historical_data")
			if err != nil || !ok {
				t.Fatalf("get: ok=%v err=%v", ok, err)
			}
			if !bytes.Equal(v, []byte(`{"2024-03-02":[]}`)) {
				t.Fatalf("unexpected value %s", v)
			}

			if err := s.Put(ctx, "", []byte("x")); !errors.Is(err, ErrEmptyKey) {
				t.Fatalf("expected ErrEmptyKey, got %v", err)
			}
		})
	}
}

func TestSQLiteStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tracker.db")

	first, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := first.Put(ctx, "last_data_collection", []byte(`"2024-03-01"`)); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	second, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer second.Close()

	v, ok, err := second.Get(ctx, "last_data_collection")
	if err != nil || !ok || string(v) != `"2024-03-01"` {
		t.Fatalf("expected persisted marker, got %q ok=%v err=%v", v, ok, err)
	}
}

func TestMemoryStoreCopiesValues(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	in := []byte("abc")
	_ = s.Put(ctx, "k", in)
	in[0] = 'z'

	out, _, _ := s.Get(ctx, "k")
	if string(out) != "abc" {
		t.Fatalf("store aliased caller slice: %s", out)
	}
	out[1] = 'z'
	again, _, _ := s.Get(ctx, "k")
	if string(again) != "abc" {
		t.Fatalf("store leaked internal slice: %s", again)
	}
}
