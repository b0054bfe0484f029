package server

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/hylla/tikk/internal/adapters/server/common"
	"github.com/hylla/tikk/internal/adapters/storage/memory"
	"github.com/hylla/tikk/internal/app"
)

func newTestDeps(t *testing.T, logs io.Writer) Dependencies {
	t.Helper()
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	svc := app.NewService(memory.New(), func() time.Time { return now }, app.ServiceConfig{})
	logger := log.NewWithOptions(logs, log.Options{Level: log.DebugLevel})
	return Dependencies{Service: common.NewAppServiceAdapter(svc), Logger: logger}
}

func TestNewHandlerServesHealthAndAPI(t *testing.T) {
	var logs bytes.Buffer
	handler, cfg, err := NewHandler(Config{}, newTestDeps(t, &logs))
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}
	if cfg.HTTPBind != defaultBindAddress || cfg.APIEndpoint != "/api/v1" || cfg.MCPEndpoint != "/mcp" {
		t.Fatalf("unexpected normalized config %#v", cfg)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Fatalf("healthz = %d %q", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/projects", strings.NewReader(`{"name":"Client"}`)))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create project status = %d (%s)", rec.Code, rec.Body.String())
	}
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/timer", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"running":false`) {
		t.Fatalf("timer = %d %q", rec.Code, rec.Body.String())
	}
	if !strings.Contains(logs.String(), "http request") {
		t.Fatalf("expected request log lines, got %q", logs.String())
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	handler, _, err := NewHandler(Config{}, newTestDeps(t, io.Discard))
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	generated := rec.Header().Get(RequestIDHeader)
	if len(generated) != 36 {
		t.Fatalf("expected generated uuid request id, got %q", generated)
	}

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if got := rec.Header().Get(RequestIDHeader); got != "abc-123" {
		t.Fatalf("expected inbound request id to be echoed, got %q", got)
	}

	var seen string
	inner := http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	})
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, strings.Repeat("x", maxRequestIDLength+1))
	withRequestLogging(log.New(io.Discard), inner).ServeHTTP(httptest.NewRecorder(), req)
	if len(seen) != 36 {
		t.Fatalf("expected oversized id to be replaced, got %q", seen)
	}
}

func TestCORSAllowsConfiguredOrigins(t *testing.T) {
	handler, _, err := NewHandler(Config{AllowedOrigins: []string{" http://localhost:3000 ", ""}}, newTestDeps(t, io.Discard))
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/projects", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Fatalf("Access-Control-Allow-Origin = %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/projects", nil)
	req.Header.Set("Origin", "http://evil.test")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("unexpected allow-origin for foreign origin %q", got)
	}
}

func TestNormalizeConfigRejectsCollidingEndpoints(t *testing.T) {
	if _, err := normalizeConfig(Config{APIEndpoint: "/x/", MCPEndpoint: "x"}); err == nil {
		t.Fatal("expected collision error")
	}
	cfg, err := normalizeConfig(Config{APIEndpoint: "/", MCPEndpoint: " tools "})
	if err != nil {
		t.Fatalf("normalizeConfig() error = %v", err)
	}
	if cfg.APIEndpoint != "/api/v1" || cfg.MCPEndpoint != "/tools" {
		t.Fatalf("unexpected endpoints %#v", cfg)
	}
}

func TestNewHandlerRequiresService(t *testing.T) {
	if _, _, err := NewHandler(Config{}, Dependencies{}); err == nil {
		t.Fatal("expected error without service")
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, Config{HTTPBind: "127.0.0.1:0"}, newTestDeps(t, io.Discard))
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}
