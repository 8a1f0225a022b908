package remote

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func tempFileStore(t *testing.T) *File {
	t.Helper()
	f, err := NewFile(filepath.Join(t.TempDir(), "store.json"))
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	return f
}

func TestFile_SetGet(t *testing.T) {
	s := tempFileStore(t)
	ctx := context.Background()

	if err := s.Set(ctx, "a.md", "hello"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, ok, err := s.Get(ctx, "a.md")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok || v != "hello" {
		t.Errorf("got (%q, %v)", v, ok)
	}
}

func TestFile_GetAbsent(t *testing.T) {
	s := tempFileStore(t)
	_, ok, err := s.Get(context.Background(), "missing.md")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Error("absent key reported present")
	}
}

func TestFile_Remove(t *testing.T) {
	s := tempFileStore(t)
	ctx := context.Background()
	_ = s.Set(ctx, "x.md", "v")

	if err := s.Remove(ctx, "x.md"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "x.md"); ok {
		t.Error("key still present after remove")
	}
	// Removing again is not an error.
	if err := s.Remove(ctx, "x.md"); err != nil {
		t.Errorf("Remove absent: %v", err)
	}
}

func TestFile_PersistsAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "store.json")
	ctx := context.Background()

	s1, _ := NewFile(path)
	if err := s1.Set(ctx, "k", "v"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	s2, err := NewFile(path)
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	v, ok, err := s2.Get(ctx, "k")
	if err != nil || !ok || v != "v" {
		t.Errorf("got (%q, %v, %v)", v, ok, err)
	}
}

func TestFile_CorruptBackingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "store.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	s, _ := NewFile(path)
	if _, _, err := s.Get(context.Background(), "k"); err == nil {
		t.Error("expected error for corrupt store file")
	}
}

func TestNewFile_MissingDirectory(t *testing.T) {
	if _, err := NewFile(filepath.Join(t.TempDir(), "nope", "store.json")); err == nil {
		t.Error("expected error for missing parent directory")
	}
}
