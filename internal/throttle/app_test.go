package throttle

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

func TestApplication_ServesHealthAndGuardedRoutes(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	app, err := NewApplication(cfg, zerolog.New(io.Discard))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	server := httptest.NewServer(app.server.Handler)
	defer server.Close()

	resp, err := http.Get(server.URL + "/healthz")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status = %d, want 200", resp.StatusCode)
	}

	resp, err = http.Get(server.URL + "/metrics")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics status = %d, want 200", resp.StatusCode)
	}

	resp, err = http.Get(server.URL + "/check/default")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("guarded route status = %d, want 200", resp.StatusCode)
	}
	if resp.Header.Get("X-RateLimit-Limit") != "1000" {
		t.Fatalf("limit header = %q, want 1000", resp.Header.Get("X-RateLimit-Limit"))
	}

	app, err = NewApplication(&Config{StoreKind: "bogus"}, zerolog.New(io.Discard))
	if err == nil {
		t.Fatalf("expected error for unknown store kind")
	}
	if app != nil {
		t.Fatalf("application returned despite error")
	}
}

func TestApplication_StartBindsSynchronously(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.ListenAddr = "127.0.0.1:0"
	app, err := NewApplication(cfg, zerolog.New(io.Discard))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx := context.Background()
	if err := app.Start(ctx); err != nil {
		t.Fatalf("start on free port: %v", err)
	}
	if err := app.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestApplication_StartReportsBindFailure(t *testing.T) {
	t.Parallel()

	occupied, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer occupied.Close()

	cfg := DefaultConfig()
	cfg.ListenAddr = occupied.Addr().String()
	app, err := NewApplication(cfg, zerolog.New(io.Discard))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := app.Start(context.Background()); err == nil {
		t.Fatalf("start did not report the bind failure")
	}
}
