package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/starford/laguz/internal/apperr"
	"github.com/starford/laguz/internal/docindex"
	"github.com/starford/laguz/internal/models"
	"github.com/starford/laguz/internal/parser"
	"github.com/starford/laguz/internal/remote"
	"github.com/starford/laguz/internal/retry"
	"github.com/starford/laguz/internal/testutil"
)

func testSyncer(t *testing.T) (*Synchronizer, *remote.Memory) {
	t.Helper()
	store := remote.NewMemory()
	logger := testutil.Logger()
	idx := docindex.NewManager(store, logger)
	db := testutil.TestCache(t)
	policy := retry.NewPolicy(3, []time.Duration{time.Millisecond})
	return New(store, idx, db, policy, logger, "alice"), store
}

func mustSave(t *testing.T, s *Synchronizer, doc *models.Document) {
	t.Helper()
	if err := s.Save(context.Background(), doc); err != nil {
		t.Fatalf("Save: %v", err)
	}
}

func indexKeys(t *testing.T, store *remote.Memory) []string {
	t.Helper()
	raw, ok, _ := store.Get(context.Background(), docindex.Key)
	if !ok {
		return nil
	}
	var keys []string
	if err := json.Unmarshal([]byte(raw), &keys); err != nil {
		t.Fatalf("corrupt index: %v", err)
	}
	return keys
}

func TestSave_NewDocument(t *testing.T) {
	s, store := testSyncer(t)
	doc := &models.Document{Title: "Hello", Contents: "# Hello\nworld", Format: models.FormatMarkdown}
	mustSave(t, s, doc)

	if doc.Key != "Hello.md" {
		t.Errorf("key = %q", doc.Key)
	}
	if doc.LastModified == 0 {
		t.Error("lastModified not stamped")
	}
	if !store.Has("Hello.md") {
		t.Error("document not written to store")
	}
	if diff := cmp.Diff([]string{"Hello.md"}, indexKeys(t, store)); diff != "" {
		t.Errorf("index mismatch (-want +got):\n%s", diff)
	}
	docs := s.Documents()
	if len(docs) != 1 || docs[0].Key != "Hello.md" {
		t.Errorf("documents = %+v", docs)
	}
}

func TestSave_UnchangedIsNoOp(t *testing.T) {
	s, store := testSyncer(t)
	doc := &models.Document{Title: "Same", Contents: "body"}
	mustSave(t, s, doc)

	writes := 0
	store.FailSet = func(string) error { writes++; return nil }
	mustSave(t, s, doc)
	if writes != 0 {
		t.Errorf("writes = %d, unchanged save must not touch the store", writes)
	}
}

func TestSave_ChangedContentsWritesAgain(t *testing.T) {
	s, store := testSyncer(t)
	doc := &models.Document{Title: "Doc", Contents: "v1"}
	mustSave(t, s, doc)

	doc.Contents = "v2"
	mustSave(t, s, doc)

	raw, _, _ := store.Get(context.Background(), "Doc.md")
	got, err := parser.Decode("Doc.md", raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Contents != "v2" {
		t.Errorf("contents = %q", got.Contents)
	}
}

func TestSave_Rename(t *testing.T) {
	s, store := testSyncer(t)
	doc := &models.Document{Title: "Old Title", Contents: "body"}
	mustSave(t, s, doc)

	doc.Title = "New Title"
	mustSave(t, s, doc)

	if doc.Key != "New Title.md" {
		t.Errorf("key = %q", doc.Key)
	}
	if store.Has("Old Title.md") {
		t.Error("old key still present in store")
	}
	if !store.Has("New Title.md") {
		t.Error("new key missing from store")
	}
	if diff := cmp.Diff([]string{"New Title.md"}, indexKeys(t, store)); diff != "" {
		t.Errorf("index mismatch (-want +got):\n%s", diff)
	}
	if _, ok := s.Get("Old Title.md"); ok {
		t.Error("stale entry under old key in memory")
	}
}

func TestSave_MovesDocumentToFront(t *testing.T) {
	s, _ := testSyncer(t)
	a := &models.Document{Title: "A", Contents: "a"}
	b := &models.Document{Title: "B", Contents: "b"}
	mustSave(t, s, a)
	mustSave(t, s, b)

	a.Contents = "a2"
	mustSave(t, s, a)

	docs := s.Documents()
	if len(docs) != 2 || docs[0].Key != "A.md" {
		t.Errorf("order = %v", keysOf(docs))
	}
}

func TestDelete(t *testing.T) {
	s, store := testSyncer(t)
	doc := &models.Document{Title: "Gone", Contents: "x"}
	mustSave(t, s, doc)

	if err := s.Delete(context.Background(), doc.Key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if store.Has("Gone.md") {
		t.Error("key still in store")
	}
	if keys := indexKeys(t, store); len(keys) != 0 {
		t.Errorf("index = %v, want empty", keys)
	}
	if _, ok := s.Get("Gone.md"); ok {
		t.Error("document still in memory")
	}

	docs, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(docs) != 0 {
		t.Errorf("load after delete returned %v", keysOf(docs))
	}
}

func TestLoad_PartialFailureDropsDocument(t *testing.T) {
	s, store := testSyncer(t)
	a := &models.Document{Title: "a", Contents: "aa"}
	b := &models.Document{Title: "b", Contents: "bb"}
	mustSave(t, s, a)
	mustSave(t, s, b)

	store.FailGet = func(key string) error {
		if key == "b.md" {
			return errors.New("read error")
		}
		return nil
	}

	docs, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(docs) != 1 || docs[0].Key != "a.md" {
		t.Errorf("docs = %v, want only a.md", keysOf(docs))
	}
}

func TestLoad_SortsMostRecentFirst(t *testing.T) {
	s, store := testSyncer(t)
	ctx := context.Background()

	put := func(key string, lastModified int64) {
		payload, _ := parser.Encode(&models.Document{Key: key, Title: key, Contents: key, LastModified: lastModified})
		if err := store.Set(ctx, key, payload); err != nil {
			t.Fatal(err)
		}
	}
	put("old.md", 100)
	put("new.md", 300)
	put("mid.md", 200)
	put("legacy.md", 0) // undefined recency sorts last
	idx := docindex.NewManager(store, testutil.Logger())
	if err := idx.Write(ctx, []string{"old.md", "new.md", "mid.md", "legacy.md"}); err != nil {
		t.Fatal(err)
	}

	docs, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := []string{"new.md", "mid.md", "old.md", "legacy.md"}
	if diff := cmp.Diff(want, keysOf(docs)); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_AbsentIndexIsEmpty(t *testing.T) {
	s, _ := testSyncer(t)
	docs, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(docs) != 0 {
		t.Errorf("docs = %v", keysOf(docs))
	}
}

func TestLoad_CorruptIndexIsEmpty(t *testing.T) {
	s, store := testSyncer(t)
	_ = store.Set(context.Background(), docindex.Key, "][ not json")

	docs, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(docs) != 0 {
		t.Errorf("docs = %v", keysOf(docs))
	}
}

func TestLoad_UnreachableStoreSurfaces(t *testing.T) {
	s, store := testSyncer(t)
	store.FailGet = func(string) error { return apperr.ErrUnreachable }

	if _, err := s.Load(context.Background()); !errors.Is(err, apperr.ErrUnreachable) {
		t.Errorf("err = %v, want ErrUnreachable", err)
	}
}

func TestSave_UnreachableStoreSurfaces(t *testing.T) {
	s, store := testSyncer(t)
	store.FailSet = func(string) error { return apperr.ErrUnreachable }

	err := s.Save(context.Background(), &models.Document{Title: "x", Contents: "y"})
	if !errors.Is(err, apperr.ErrUnreachable) {
		t.Errorf("err = %v, want ErrUnreachable", err)
	}
}

func TestSave_RetriesTransientFailures(t *testing.T) {
	s, store := testSyncer(t)
	attempts := 0
	store.FailSet = func(key string) error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	}

	mustSave(t, s, &models.Document{Title: "Flaky", Contents: "x"})
	if !store.Has("Flaky.md") {
		t.Error("document not written after retries")
	}
}

func TestWriteThrough_CacheMatchesList(t *testing.T) {
	s, _ := testSyncer(t)
	mustSave(t, s, &models.Document{Title: "A", Contents: "a"})
	mustSave(t, s, &models.Document{Title: "B", Contents: "b"})

	cached := s.LoadCached()
	if diff := cmp.Diff(keysOf(s.Documents()), keysOf(cached)); diff != "" {
		t.Errorf("cache/list mismatch (-list +cache):\n%s", diff)
	}
}

func TestLoadCached_SeedsNoOpDetection(t *testing.T) {
	s, store := testSyncer(t)
	doc := &models.Document{Title: "Cached", Contents: "body"}
	mustSave(t, s, doc)

	// A fresh synchronizer over the same cache sees the snapshot and
	// treats an identical save as a no-op.
	logger := testutil.Logger()
	s2 := New(store, docindex.NewManager(store, logger), s.cache, retry.NewPolicy(1, nil), logger, "alice")
	if got := s2.LoadCached(); len(got) != 1 {
		t.Fatalf("cached docs = %v", keysOf(got))
	}

	writes := 0
	store.FailSet = func(string) error { writes++; return nil }
	again := &models.Document{Key: "Cached.md", Title: "Cached", Contents: "body"}
	if err := s2.Save(context.Background(), again); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if writes != 0 {
		t.Errorf("writes = %d, cached state must short-circuit identical saves", writes)
	}
}

func TestSetIdentity_RescopesCache(t *testing.T) {
	store := remote.NewMemory()
	logger := testutil.Logger()
	db := testutil.TestCache(t)
	s := New(store, docindex.NewManager(store, logger), db, retry.NewPolicy(1, nil), logger, "fallback")

	mustSave(t, s, &models.Document{Title: "Note", Contents: "body"})
	if _, ok := db.Load("fallback"); !ok {
		t.Fatal("snapshot missing under fallback scope")
	}

	s.SetIdentity("alice")
	if s.Identity() != "alice" {
		t.Errorf("identity = %q, want alice", s.Identity())
	}
	docs, ok := db.Load("alice")
	if !ok || len(docs) != 1 || docs[0].Key != "Note.md" {
		t.Errorf("snapshot not written under new scope: %v", keysOf(docs))
	}
}

func keysOf(docs []models.Document) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.Key
	}
	return out
}
