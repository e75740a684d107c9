// Package health serves the liveness and readiness probes.
//
//   - GET /healthz always answers 200; a process that can serve HTTP is
//     alive.
//   - GET /readyz answers 200 only when every registered [Checker] passes,
//     and 503 with per-check detail otherwise.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// checkTimeout bounds each readiness check.
const checkTimeout = 5 * time.Second

// Checker probes one dependency. Check returns nil when healthy; the error
// text of a failing check appears verbatim in the /readyz response.
type Checker struct {
	// Name keys the check in the JSON response ("database", "llm", ...).
	Name string

	// Check must respect ctx cancellation.
	Check func(ctx context.Context) error
}

// report is the response body of both probes.
type report struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler evaluates a fixed checker list per /readyz request. Safe for
// concurrent use.
type Handler struct {
	checkers []Checker
}

// New builds a Handler evaluating checkers in the given order.
func New(checkers ...Checker) *Handler {
	h := &Handler{checkers: make([]Checker, len(checkers))}
	copy(h.checkers, checkers)
	return h
}

// Healthz is the liveness probe.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	respond(w, http.StatusOK, report{Status: "ok"})
}

// Readyz runs every checker under a per-check timeout and aggregates the
// outcome: all pass means 200 "ok", anything failing means 503 "fail".
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	out := report{Status: "ok", Checks: make(map[string]string, len(h.checkers))}
	status := http.StatusOK

	for _, c := range h.checkers {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		err := c.Check(ctx)
		cancel()

		if err != nil {
			out.Checks[c.Name] = "fail: " + err.Error()
			out.Status = "fail"
			status = http.StatusServiceUnavailable
		} else {
			out.Checks[c.Name] = "ok"
		}
	}
	respond(w, status, out)
}

// Register adds both probe routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func respond(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
