package research

import (
	"time"

	"github.com/google/uuid"
)

// Chat message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// ChatSession is a conversation over the user's research corpus.
type ChatSession struct {
	ID           uuid.UUID
	UserID       uuid.UUID
	Title        string
	Context      map[string]any
	LastActivity time.Time
	CreatedAt    time.Time
}

// ChatSource is the captured snapshot of one RAG source attached to an
// assistant message.
type ChatSource struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"task_id,omitempty"`
	Query     string    `json:"query,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// ChatMessage is one turn in a session. Creation timestamps within a session
// are strictly monotonic.
type ChatMessage struct {
	ID               uuid.UUID
	SessionID        uuid.UUID
	Role             string
	Content          string
	Sources          []ChatSource
	RetrievedContext map[string]any
	Metadata         map[string]any
	CreatedAt        time.Time
}
