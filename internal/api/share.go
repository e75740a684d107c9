package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/recondite-labs/scholarpipe/internal/research"
)

type createShareRequest struct {
	IsPublic       bool   `json:"is_public"`
	Permission     string `json:"permission"`
	SharedWithID   string `json:"shared_with_id"`
	ExpiresInHours int    `json:"expires_in_hours"`
}

type shareResponse struct {
	ShareToken string     `json:"share_token"`
	ShareURL   string     `json:"share_url"`
	Permission string     `json:"permission"`
	IsPublic   bool       `json:"is_public"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

func (s *Server) handleCreateShare(w http.ResponseWriter, r *http.Request) {
	task := s.ownedTask(w, r)
	if task == nil {
		return
	}
	if task.Status != research.StatusCompleted {
		writeError(w, http.StatusConflict, "only completed tasks can be shared")
		return
	}

	var req createShareRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	permission := req.Permission
	if permission == "" {
		permission = research.PermissionRead
	}
	switch permission {
	case research.PermissionRead, research.PermissionComment, research.PermissionEdit:
	default:
		writeError(w, http.StatusBadRequest, "permission must be read, comment, or edit")
		return
	}

	share := &research.Share{
		TaskID:     task.ID,
		SharedByID: userFrom(r.Context()).ID,
		ShareToken: NewToken(),
		Permission: permission,
		IsPublic:   req.IsPublic,
	}
	if req.SharedWithID != "" {
		id, err := uuid.Parse(req.SharedWithID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "shared_with_id is not a valid id")
			return
		}
		share.SharedWithID = &id
	}
	if req.ExpiresInHours > 0 {
		at := time.Now().UTC().Add(time.Duration(req.ExpiresInHours) * time.Hour)
		share.ExpiresAt = &at
	}

	if err := s.store.Shares().Create(r.Context(), share); err != nil {
		storeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, shareResponse{
		ShareToken: share.ShareToken,
		ShareURL:   "/api/shared/" + share.ShareToken,
		Permission: share.Permission,
		IsPublic:   share.IsPublic,
		ExpiresAt:  share.ExpiresAt,
	})
}

// handleSharedResult serves a shared result by token. Public shares need no
// authentication; private shares require the recipient's token.
func (s *Server) handleSharedResult(w http.ResponseWriter, r *http.Request) {
	share, err := s.store.Shares().ByToken(r.Context(), r.PathValue("token"))
	if err != nil {
		storeError(w, err)
		return
	}
	if share.Expired(time.Now().UTC()) {
		writeError(w, http.StatusGone, "share expired")
		return
	}
	if !share.IsPublic {
		user, err := s.auth.Authenticate(r.Context(), bearerToken(r))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		allowed := user.ID == share.SharedByID ||
			(share.SharedWithID != nil && user.ID == *share.SharedWithID)
		if !allowed {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
	}

	result, err := s.store.Results().ByTaskUUID(r.Context(), share.TaskID)
	if err != nil {
		storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"permission":        share.Permission,
		"synthesis":         result.Synthesis,
		"sources":           result.Sources,
		"detailed_analysis": result.DetailedAnalysis,
		"featured_media":    result.FeaturedMedia,
		"sources_used":      result.SourcesUsed,
		"created_at":        result.CreatedAt,
	})
}
