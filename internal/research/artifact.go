package research

import (
	"time"

	"github.com/google/uuid"
)

// Artifact types produced by the report generator.
const (
	ArtifactReportMarkdown = "report_markdown"
	ArtifactReportHTML     = "report_html"
	ArtifactReportJSON     = "report_json"
)

// Artifact is a rendered by-product of a completed task, most commonly a
// report in one of the supported formats.
type Artifact struct {
	ID        uuid.UUID
	TaskID    uuid.UUID // internal record id of the owning task
	Type      string
	Name      string
	Content   string
	Metadata  map[string]any
	SizeBytes int
	CreatedAt time.Time
}

// Share permission levels.
const (
	PermissionRead    = "read"
	PermissionComment = "comment"
	PermissionEdit    = "edit"
)

// Share grants another user, or the public via token, access to a task's
// result.
type Share struct {
	ID           uuid.UUID
	TaskID       uuid.UUID
	SharedByID   uuid.UUID
	SharedWithID *uuid.UUID
	ShareToken   string
	Permission   string
	IsPublic     bool
	ExpiresAt    *time.Time
	CreatedAt    time.Time
}

// Expired reports whether the share is past its optional expiry.
func (s *Share) Expired(now time.Time) bool {
	return s.ExpiresAt != nil && now.After(*s.ExpiresAt)
}
