package kv

import (
	"context"
	"errors"
	"sync"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/clipkeep/dbopen"
)

func backends(t *testing.T) map[string]Backend {
	t.Helper()
	f, err := OpenFile(t.TempDir())
	if err != nil {
		t.Fatalf("open file backend: %v", err)
	}
	return map[string]Backend{
		"memory": NewMemory(),
		"sqlite": &SQLite{DB: dbopen.OpenMemory(t, dbopen.WithSchema(Schema))},
		"file":   f,
	}
}

func TestBackend_AbsentKey(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			v, found, err := b.Get(context.Background(), "missing")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if found || v != nil {
				t.Fatalf("get missing: got (%q, %v), want (nil, false)", v, found)
			}
		})
	}
}

func TestBackend_SetGet(t *testing.T) {
	ctx := context.Background()
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if err := b.Set(ctx, "clipboardHistory", []byte(`[1]`)); err != nil {
				t.Fatalf("set: %v", err)
			}
			if err := b.Set(ctx, "clipboardHistory", []byte(`[2]`)); err != nil {
				t.Fatalf("overwrite: %v", err)
			}
			v, found, err := b.Get(ctx, "clipboardHistory")
			if err != nil || !found {
				t.Fatalf("get: found=%v err=%v", found, err)
			}
			if string(v) != `[2]` {
				t.Fatalf("get: got %q, want [2]", v)
			}
		})
	}
}

func TestBackend_UpdateSkipWrite(t *testing.T) {
	ctx := context.Background()
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			b.Set(ctx, "k", []byte("keep"))
			err := b.Update(ctx, "k", func(old []byte, found bool) ([]byte, bool, error) {
				if !found || string(old) != "keep" {
					t.Errorf("update saw (%q, %v)", old, found)
				}
				return []byte("discarded"), false, nil
			})
			if err != nil {
				t.Fatalf("update: %v", err)
			}
			v, _, _ := b.Get(ctx, "k")
			if string(v) != "keep" {
				t.Fatalf("value after skipped write: got %q", v)
			}
		})
	}
}

func TestBackend_UpdateError(t *testing.T) {
	ctx := context.Background()
	sentinel := errors.New("abort")
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			err := b.Update(ctx, "k", func([]byte, bool) ([]byte, bool, error) {
				return []byte("x"), true, sentinel
			})
			if !errors.Is(err, sentinel) {
				t.Fatalf("update error: got %v, want sentinel", err)
			}
			if _, found, _ := b.Get(ctx, "k"); found {
				t.Fatal("value written despite error")
			}
		})
	}
}

func TestBackend_UpdateSerialises(t *testing.T) {
	ctx := context.Background()
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			var wg sync.WaitGroup
			for range 20 {
				wg.Add(1)
				go func() {
					defer wg.Done()
					b.Update(ctx, "n", func(old []byte, _ bool) ([]byte, bool, error) {
						return append(old, 'x'), true, nil
					})
				}()
			}
			wg.Wait()
			v, _, _ := b.Get(ctx, "n")
			if len(v) != 20 {
				t.Fatalf("lost updates: got %d increments, want 20", len(v))
			}
		})
	}
}

func TestMemory_Closed(t *testing.T) {
	m := NewMemory()
	m.Close()
	if _, _, err := m.Get(context.Background(), "k"); !errors.Is(err, ErrClosed) {
		t.Fatalf("get after close: got %v, want ErrClosed", err)
	}
}
