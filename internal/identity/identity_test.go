package identity

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/starford/laguz/internal/apperr"
)

func TestStatic(t *testing.T) {
	id, err := Static{Name: "alice"}.Whoami(context.Background())
	if err != nil {
		t.Fatalf("Whoami: %v", err)
	}
	if id != "alice" {
		t.Errorf("identity = %q", id)
	}
}

func TestStatic_EmptyName(t *testing.T) {
	if _, err := (Static{}).Whoami(context.Background()); err == nil {
		t.Error("expected error for empty static identity")
	}
}

func TestHTTP_Whoami(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"identity":"bob"}`)
	}))
	defer srv.Close()

	id, err := NewHTTP(srv.URL).Whoami(context.Background())
	if err != nil {
		t.Fatalf("Whoami: %v", err)
	}
	if id != "bob" {
		t.Errorf("identity = %q", id)
	}
}

func TestHTTP_DownIsUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	if _, err := NewHTTP(url).Whoami(context.Background()); !errors.Is(err, apperr.ErrUnreachable) {
		t.Errorf("err = %v, want ErrUnreachable", err)
	}
}

func TestHTTP_EmptyIdentity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{}`)
	}))
	defer srv.Close()

	if _, err := NewHTTP(srv.URL).Whoami(context.Background()); err == nil {
		t.Error("expected error for empty identity")
	}
}
