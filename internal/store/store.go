// Package store defines the persistence contracts for scholarpipe: one
// repository interface per entity, a [Store] aggregate that groups them, and a
// function-scoped unit of work for multi-entity writes.
//
// The PostgreSQL implementation lives in internal/store/postgres; an in-memory
// implementation for tests lives in internal/store/mock. Consumers accept the
// interfaces and never import a concrete implementation.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/recondite-labs/scholarpipe/internal/research"
)

// Sentinel errors returned by every implementation.
var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrDuplicate indicates a uniqueness violation (email, username, token,
	// external task id).
	ErrDuplicate = errors.New("store: duplicate")

	// ErrSelfLoop indicates a graph edge whose source and target are the same
	// node.
	ErrSelfLoop = errors.New("store: self-loop edge")
)

// Store aggregates the per-entity repositories over one backing database.
//
// WithTx runs fn with a Store whose writes all commit or roll back together.
// The transactional Store is only valid for the duration of fn.
type Store interface {
	Users() UserRepo
	Sessions() SessionRepo
	Tasks() TaskRepo
	Results() ResultRepo
	Artifacts() ArtifactRepo
	Shares() ShareRepo
	Graph() GraphRepo
	Chats() ChatRepo

	WithTx(ctx context.Context, fn func(Store) error) error
}

// UserRepo persists user accounts.
type UserRepo interface {
	Create(ctx context.Context, u *research.User) error
	ByID(ctx context.Context, id uuid.UUID) (*research.User, error)
	ByEmail(ctx context.Context, email string) (*research.User, error)
	ByUsername(ctx context.Context, username string) (*research.User, error)
	RecordLogin(ctx context.Context, id uuid.UUID, at time.Time) error
}

// SessionRepo persists authenticated user sessions keyed by opaque token.
type SessionRepo interface {
	Create(ctx context.Context, s *research.UserSession) error
	ByToken(ctx context.Context, token string) (*research.UserSession, error)
	ByRefreshToken(ctx context.Context, token string) (*research.UserSession, error)
	Delete(ctx context.Context, token string) error
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// TaskRepo persists research tasks. Tasks are addressed by their external
// identifier ("res_…") except where noted.
type TaskRepo interface {
	Create(ctx context.Context, t *research.Task) error
	ByTaskID(ctx context.Context, taskID string) (*research.Task, error)
	ByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]research.Task, error)

	// RecentCompleted returns the user's most recently completed tasks,
	// newest first. It bounds the corpus a RAG retrieval searches over.
	RecentCompleted(ctx context.Context, userID uuid.UUID, limit int) ([]research.Task, error)

	// Update applies the non-nil fields of u to the task. Updating a task in
	// a terminal status is the caller's bug; the store does not re-check.
	Update(ctx context.Context, taskID string, u research.TaskUpdate) error

	// SetWarnings replaces the task's accumulated warning list.
	SetWarnings(ctx context.Context, taskID string, warnings []string) error

	Delete(ctx context.Context, taskID string) error
}

// SynthesisHit is one vector-search match over stored results.
type SynthesisHit struct {
	TaskUUID   uuid.UUID
	TaskID     string
	Query      string
	Content    string
	Similarity float64
	CreatedAt  time.Time
}

// ResultRepo persists the 1-1 result of a completed task.
type ResultRepo interface {
	Create(ctx context.Context, r *research.Result) error
	ByTaskUUID(ctx context.Context, taskUUID uuid.UUID) (*research.Result, error)

	// SearchSynthesis returns up to limit results whose synthesis embedding
	// is nearest to embedding by cosine distance, restricted to the given
	// tasks. Hits carry similarity = 1 - distance, most similar first.
	SearchSynthesis(ctx context.Context, embedding []float32, taskUUIDs []uuid.UUID, limit int) ([]SynthesisHit, error)
}

// ArtifactRepo persists rendered task by-products (reports).
type ArtifactRepo interface {
	Create(ctx context.Context, a *research.Artifact) error
	ByTask(ctx context.Context, taskUUID uuid.UUID) ([]research.Artifact, error)
	ByTaskAndType(ctx context.Context, taskUUID uuid.UUID, artifactType string) (*research.Artifact, error)
}

// ShareRepo persists result shares.
type ShareRepo interface {
	Create(ctx context.Context, s *research.Share) error
	ByToken(ctx context.Context, token string) (*research.Share, error)
	ByTask(ctx context.Context, taskUUID uuid.UUID) ([]research.Share, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// NodeHit is one vector-search match over graph nodes.
type NodeHit struct {
	Node       research.GraphNode
	Similarity float64
}

// Neighbor is one node reached by a single edge hop.
type Neighbor struct {
	Node     research.GraphNode
	EdgeType string
	Weight   float64
}

// GraphRepo persists per-task knowledge graphs.
type GraphRepo interface {
	CreateNode(ctx context.Context, n *research.GraphNode) error

	// CreateEdge inserts an edge. (SourceNodeID, TargetNodeID, EdgeType) is
	// unique; re-inserting an existing edge is a no-op. Self-loops return
	// [ErrSelfLoop].
	CreateEdge(ctx context.Context, e *research.GraphEdge) error

	NodesByTask(ctx context.Context, taskUUID uuid.UUID) ([]research.GraphNode, error)

	// DeleteTaskGraph removes the task's nodes and, by cascade, their edges.
	// Rebuilding a graph starts here.
	DeleteTaskGraph(ctx context.Context, taskUUID uuid.UUID) error

	// SearchNodes returns up to limit nodes nearest to embedding by cosine
	// distance, restricted to the given tasks. Most similar first.
	SearchNodes(ctx context.Context, embedding []float32, taskUUIDs []uuid.UUID, limit int) ([]NodeHit, error)

	// Neighbors returns up to limit nodes one hop from nodeID in either
	// direction, heaviest edges first.
	Neighbors(ctx context.Context, nodeID uuid.UUID, limit int) ([]Neighbor, error)
}

// ChatRepo persists chat sessions and their messages.
type ChatRepo interface {
	CreateSession(ctx context.Context, s *research.ChatSession) error
	SessionByID(ctx context.Context, id uuid.UUID) (*research.ChatSession, error)
	SessionsByUser(ctx context.Context, userID uuid.UUID, limit int) ([]research.ChatSession, error)
	TouchSession(ctx context.Context, id uuid.UUID, at time.Time) error
	DeleteSession(ctx context.Context, id uuid.UUID) error

	CreateMessage(ctx context.Context, m *research.ChatMessage) error

	// MessagesBySession returns the session's messages oldest first, capped
	// at limit most recent when limit > 0.
	MessagesBySession(ctx context.Context, sessionID uuid.UUID, limit int) ([]research.ChatMessage, error)
}
