package research

import (
	"time"

	"github.com/google/uuid"
)

// Task is one invocation of the research pipeline. The database is the
// authoritative store for task state; the orchestrator keeps a read-mostly
// in-memory copy for status polling.
type Task struct {
	// ID is the internal record id.
	ID uuid.UUID

	// TaskID is the external identifier ("res_" + 12 hex chars).
	TaskID string

	// UserID is the owning user.
	UserID uuid.UUID

	Query      string
	Depth      Depth
	MaxSources int
	Options    map[string]any

	Status   Status
	Progress int

	// Warnings accumulates degradation notices (stage timeouts, fallbacks)
	// so callers can distinguish a clean completion from a degraded one.
	Warnings []string

	ErrorMessage string

	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// Terminal reports whether the task has reached an absorbing status.
func (t *Task) Terminal() bool { return t.Status.IsTerminal() }

// TaskUpdate is the field set applied by [Task] status updates. Nil pointer
// fields are left unchanged.
type TaskUpdate struct {
	Status       *Status
	Progress     *int
	ErrorMessage *string
	StartedAt    *time.Time
	CompletedAt  *time.Time
}
