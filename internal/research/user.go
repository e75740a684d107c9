package research

import (
	"time"

	"github.com/google/uuid"
)

// User is an account that owns research tasks and chat sessions.
type User struct {
	ID           uuid.UUID
	Email        string
	Username     string
	PasswordHash string
	FullName     string
	IsActive     bool
	IsVerified   bool
	Preferences  map[string]any
	CreatedAt    time.Time
	UpdatedAt    *time.Time
	LastLogin    *time.Time
}

// UserSession is an authenticated session identified by an opaque bearer
// token. Expired sessions are treated as absent by the store.
type UserSession struct {
	ID           uuid.UUID
	UserID       uuid.UUID
	Token        string
	RefreshToken string
	ExpiresAt    time.Time
	CreatedAt    time.Time
	IPAddress    string
	UserAgent    string
}

// Expired reports whether the session token is past its expiry.
func (s *UserSession) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
