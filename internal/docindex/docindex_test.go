package docindex

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/starford/laguz/internal/apperr"
	"github.com/starford/laguz/internal/remote"
)

func testManager(t *testing.T) (*Manager, *remote.Memory) {
	t.Helper()
	store := remote.NewMemory()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewManager(store, logger), store
}

func TestRead_AbsentIsEmpty(t *testing.T) {
	m, _ := testManager(t)
	keys, err := m.Read(context.Background())
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(keys) != 0 {
		t.Errorf("keys = %v, want empty", keys)
	}
}

func TestRead_CorruptIsEmpty(t *testing.T) {
	m, store := testManager(t)
	ctx := context.Background()
	_ = store.Set(ctx, Key, "{{not json")

	keys, err := m.Read(ctx)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(keys) != 0 {
		t.Errorf("keys = %v, want empty", keys)
	}
}

func TestRead_GenericFailureIsEmpty(t *testing.T) {
	m, store := testManager(t)
	store.FailGet = func(string) error { return errors.New("boom") }

	keys, err := m.Read(context.Background())
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(keys) != 0 {
		t.Errorf("keys = %v", keys)
	}
}

func TestRead_UnreachableSurfaces(t *testing.T) {
	m, store := testManager(t)
	store.FailGet = func(string) error { return apperr.ErrUnreachable }

	if _, err := m.Read(context.Background()); !errors.Is(err, apperr.ErrUnreachable) {
		t.Errorf("err = %v, want ErrUnreachable", err)
	}
}

func TestWrite_DedupesAndSorts(t *testing.T) {
	m, store := testManager(t)
	ctx := context.Background()

	if err := m.Write(ctx, []string{"b.md", "a.md", "b.md", "c.md"}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	raw, ok, _ := store.Get(ctx, Key)
	if !ok {
		t.Fatal("index record not written")
	}
	var got []string
	if err := json.Unmarshal([]byte(raw), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	want := []string{"a.md", "b.md", "c.md"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("index mismatch (-want +got):\n%s", diff)
	}
}

func TestAdd_InsertIfAbsent(t *testing.T) {
	m, _ := testManager(t)
	ctx := context.Background()

	if err := m.Add(ctx, "a.md"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := m.Add(ctx, "a.md"); err != nil {
		t.Fatalf("Add again: %v", err)
	}
	keys, _ := m.Read(ctx)
	if diff := cmp.Diff([]string{"a.md"}, keys); diff != "" {
		t.Errorf("keys mismatch (-want +got):\n%s", diff)
	}
}

func TestRemove_FiltersKey(t *testing.T) {
	m, _ := testManager(t)
	ctx := context.Background()
	_ = m.Write(ctx, []string{"a.md", "b.md"})

	if err := m.Remove(ctx, "a.md"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	keys, _ := m.Read(ctx)
	if diff := cmp.Diff([]string{"b.md"}, keys); diff != "" {
		t.Errorf("keys mismatch (-want +got):\n%s", diff)
	}
}

func TestRemove_AbsentKeySkipsWrite(t *testing.T) {
	m, store := testManager(t)
	ctx := context.Background()
	_ = m.Write(ctx, []string{"a.md"})

	writes := 0
	store.FailSet = func(string) error { writes++; return nil }
	if err := m.Remove(ctx, "zzz.md"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if writes != 0 {
		t.Errorf("writes = %d, removing an absent key must not rewrite the index", writes)
	}
}
