package internal

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/starford/laguz/internal/docindex"
	"github.com/starford/laguz/internal/models"
	"github.com/starford/laguz/internal/remote"
	"github.com/starford/laguz/internal/retry"
	"github.com/starford/laguz/internal/syncer"
	"github.com/starford/laguz/internal/testutil"
)

func TestBuildStore_UsesInjectedStore(t *testing.T) {
	mem := remote.NewMemory()
	app := &application{config: NewDefaultConfig()}
	WithStore(mem)(app)

	store, err := buildStore(app)
	if err != nil {
		t.Fatalf("buildStore: %v", err)
	}
	if store != mem {
		t.Error("injected store not used")
	}
}

func TestBuildStore_FileBackend(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Remote.Path = filepath.Join(t.TempDir(), "store.json")

	store, err := buildStore(&application{config: cfg})
	if err != nil {
		t.Fatalf("buildStore: %v", err)
	}
	if _, ok := store.(*remote.File); !ok {
		t.Errorf("store = %T, want *remote.File", store)
	}
}

func testSyncerWithIdentity(t *testing.T, who string) *syncer.Synchronizer {
	t.Helper()
	store := remote.NewMemory()
	logger := testutil.Logger()
	idx := docindex.NewManager(store, logger)
	return syncer.New(store, idx, testutil.TestCache(t), retry.NewPolicy(1, nil), logger, who)
}

func TestRefreshIdentity_RescopesAfterOfflineStart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"identity":"alice"}`))
	}))
	defer srv.Close()

	cfg := NewDefaultConfig()
	cfg.Identity = IdentityConfig{Mode: IdentityModeRemote, URL: srv.URL, Fallback: "fallback"}

	sy := testSyncerWithIdentity(t, "fallback")
	doc := &models.Document{Title: "Note", Contents: "written while offline"}
	if err := sy.Save(context.Background(), doc); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if !refreshIdentity(context.Background(), cfg, sy, testutil.Logger()) {
		t.Fatal("refresh should succeed once the provider answers")
	}
	if sy.Identity() != "alice" {
		t.Errorf("identity = %q, want alice", sy.Identity())
	}
}

func TestRefreshIdentity_StaysDegradedWhileUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cfg := NewDefaultConfig()
	cfg.Identity = IdentityConfig{Mode: IdentityModeRemote, URL: srv.URL, Fallback: "fallback"}

	sy := testSyncerWithIdentity(t, "fallback")
	if refreshIdentity(context.Background(), cfg, sy, testutil.Logger()) {
		t.Fatal("refresh should fail while the provider is unreachable")
	}
	if sy.Identity() != "fallback" {
		t.Errorf("identity = %q, want fallback", sy.Identity())
	}
}
