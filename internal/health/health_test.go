package health_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/recondite-labs/scholarpipe/internal/health"
)

func pass(context.Context) error { return nil }

func decode(t *testing.T, rec *httptest.ResponseRecorder) (string, map[string]string) {
	t.Helper()
	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return body.Status, body.Checks
}

func TestHealthzAlwaysOK(t *testing.T) {
	t.Parallel()

	h := health.New(health.Checker{Name: "broken", Check: func(context.Context) error {
		return errors.New("down")
	}})

	rec := httptest.NewRecorder()
	h.Healthz(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("Healthz status = %d, want 200", rec.Code)
	}
	if status, _ := decode(t, rec); status != "ok" {
		t.Errorf("Healthz body status = %q, want ok", status)
	}
}

func TestReadyzAllPass(t *testing.T) {
	t.Parallel()

	h := health.New(
		health.Checker{Name: "database", Check: pass},
		health.Checker{Name: "llm", Check: pass},
	)

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Readyz status = %d, want 200", rec.Code)
	}
	status, checks := decode(t, rec)
	if status != "ok" {
		t.Errorf("status = %q, want ok", status)
	}
	if checks["database"] != "ok" || checks["llm"] != "ok" {
		t.Errorf("checks = %v, want all ok", checks)
	}
}

func TestReadyzReportsFailure(t *testing.T) {
	t.Parallel()

	h := health.New(
		health.Checker{Name: "database", Check: pass},
		health.Checker{Name: "llm", Check: func(context.Context) error {
			return errors.New("llm endpoint unreachable")
		}},
	)

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("Readyz status = %d, want 503", rec.Code)
	}
	status, checks := decode(t, rec)
	if status != "fail" {
		t.Errorf("status = %q, want fail", status)
	}
	if checks["database"] != "ok" {
		t.Errorf("database check = %q, want ok", checks["database"])
	}
	if checks["llm"] != "fail: llm endpoint unreachable" {
		t.Errorf("llm check = %q, want failure detail", checks["llm"])
	}
}

func TestReadyzNoCheckers(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	health.New().Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("Readyz with no checkers status = %d, want 200", rec.Code)
	}
}

func TestCheckerReceivesDeadline(t *testing.T) {
	t.Parallel()

	h := health.New(health.Checker{Name: "deadline", Check: func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); !ok {
			return errors.New("no deadline set")
		}
		return nil
	}})

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusOK {
		body, _ := decode(t, rec)
		t.Errorf("Readyz status = %d, body status %q; checker saw no deadline", rec.Code, body)
	}
}

func TestRegisterRoutes(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	health.New(health.Checker{Name: "database", Check: pass}).Register(mux)

	for _, path := range []string{"/healthz", "/readyz"} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, rec.Code)
		}
	}
}
