// Package api is the HTTP facade of the research service: task launch and
// inspection, report download, chat sessions with a streaming WebSocket, and
// result sharing, all behind opaque bearer-token authentication.
//
// Routing uses the standard library mux with method patterns. Handlers stay
// thin: request decoding, ownership checks, and response shaping; behaviour
// lives in the orchestrator, chat, and report packages.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/recondite-labs/scholarpipe/internal/chat"
	"github.com/recondite-labs/scholarpipe/internal/rag"
	"github.com/recondite-labs/scholarpipe/internal/report"
	"github.com/recondite-labs/scholarpipe/internal/research"
	"github.com/recondite-labs/scholarpipe/internal/store"
)

// Runner is the slice of the orchestrator the API needs.
type Runner interface {
	Launch(ctx context.Context, task *research.Task) error
	Status(ctx context.Context, taskID string) (*research.Task, error)
	Result(ctx context.Context, taskID string) (*research.Result, error)
	Cancel(taskID string) error
}

// Config wires the server's collaborators.
type Config struct {
	Store     store.Store
	Runner    Runner
	Chat      *chat.Service
	Retriever *rag.Retriever
	Reports   *report.Generator
	Auth      *Auth

	// DefaultDepth applies to research requests that carry no depth.
	DefaultDepth research.Depth
}

// Server holds the handler set. Safe for concurrent use.
type Server struct {
	store        store.Store
	runner       Runner
	chat         *chat.Service
	retriever    *rag.Retriever
	reports      *report.Generator
	auth         *Auth
	defaultDepth research.Depth
}

// NewServer constructs a Server from cfg.
func NewServer(cfg Config) *Server {
	depth := cfg.DefaultDepth
	if depth == "" {
		depth = research.DepthStandard
	}
	return &Server{
		store:        cfg.Store,
		runner:       cfg.Runner,
		chat:         cfg.Chat,
		retriever:    cfg.Retriever,
		reports:      cfg.Reports,
		auth:         cfg.Auth,
		defaultDepth: depth,
	}
}

// Routes registers every API route on mux.
func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/auth/register", s.handleRegister)
	mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	mux.HandleFunc("POST /api/auth/refresh", s.handleRefresh)
	mux.HandleFunc("POST /api/auth/logout", s.handleLogout)
	mux.HandleFunc("GET /api/auth/me", s.withAuth(s.handleMe))

	mux.HandleFunc("POST /api/research", s.withAuth(s.handleCreateResearch))
	mux.HandleFunc("GET /api/research/history", s.withAuth(s.handleHistory))
	mux.HandleFunc("GET /api/research/{task_id}", s.withAuth(s.handleTask))
	mux.HandleFunc("GET /api/research/{task_id}/status", s.withAuth(s.handleTaskStatus))
	mux.HandleFunc("GET /api/research/{task_id}/result", s.withAuth(s.handleTaskResult))
	mux.HandleFunc("GET /api/research/{task_id}/report", s.withAuth(s.handleTaskReport))
	mux.HandleFunc("POST /api/research/{task_id}/cancel", s.withAuth(s.handleCancel))
	mux.HandleFunc("DELETE /api/research/{task_id}", s.withAuth(s.handleDeleteTask))

	mux.HandleFunc("POST /api/research/{task_id}/share", s.withAuth(s.handleCreateShare))
	mux.HandleFunc("GET /api/shared/{token}", s.handleSharedResult)

	mux.HandleFunc("POST /api/chat/sessions", s.withAuth(s.handleCreateSession))
	mux.HandleFunc("GET /api/chat/sessions", s.withAuth(s.handleListSessions))
	mux.HandleFunc("GET /api/chat/sessions/{id}/messages", s.withAuth(s.handleSessionMessages))
	mux.HandleFunc("DELETE /api/chat/sessions/{id}", s.withAuth(s.handleDeleteSession))
	mux.HandleFunc("POST /api/chat/messages", s.withAuth(s.handleChatMessage))
	mux.HandleFunc("POST /api/chat/search", s.withAuth(s.handleChatSearch))
	mux.HandleFunc("GET /api/chat/stream", s.handleChatStream)
}

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error string `json:"error"`
}

// writeJSON encodes v with the given status. Encoding failures are logged;
// the status line has already been sent by then.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("response encode failed", "error", err)
	}
}

// writeError sends a JSON error body with the given status.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// decodeJSON decodes the request body into v, rejecting unknown fields.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// storeError maps store sentinel errors onto HTTP statuses.
func storeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, store.ErrDuplicate):
		writeError(w, http.StatusConflict, "already exists")
	default:
		slog.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// queryInt parses an integer query parameter, falling back to def when the
// parameter is absent or malformed.
func queryInt(r *http.Request, name string, def int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}
