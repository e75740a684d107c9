package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/recondite-labs/scholarpipe/internal/research"
	"github.com/recondite-labs/scholarpipe/internal/store"
)

var (
	_ store.ArtifactRepo = (*artifactRepo)(nil)
	_ store.ShareRepo    = (*shareRepo)(nil)
)

type artifactRepo struct {
	db querier
}

const artifactColumns = `id, task_id, artifact_type, artifact_name, content, metadata, size_bytes, created_at`

func (r *artifactRepo) Create(ctx context.Context, a *research.Artifact) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	if a.SizeBytes == 0 {
		a.SizeBytes = len(a.Content)
	}
	metadata, err := marshalJSON("artifacts: create", a.Metadata)
	if err != nil {
		return err
	}

	const q = `
		INSERT INTO research_artifacts
		    (id, task_id, artifact_type, artifact_name, content, metadata, size_bytes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err = r.db.Exec(ctx, q,
		a.ID, a.TaskID, a.Type, a.Name, a.Content, metadata, a.SizeBytes, a.CreatedAt,
	)
	if err != nil {
		return wrapErr("artifacts: create", err)
	}
	return nil
}

func (r *artifactRepo) ByTask(ctx context.Context, taskUUID uuid.UUID) ([]research.Artifact, error) {
	q := fmt.Sprintf(`
		SELECT %s FROM research_artifacts
		WHERE  task_id = $1
		ORDER  BY created_at`, artifactColumns)

	rows, err := r.db.Query(ctx, q, taskUUID)
	if err != nil {
		return nil, wrapErr("artifacts: by task", err)
	}

	artifacts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (research.Artifact, error) {
		return scanArtifact(row.Scan)
	})
	if err != nil {
		return nil, fmt.Errorf("artifacts: by task: scan rows: %w", err)
	}
	if artifacts == nil {
		artifacts = []research.Artifact{}
	}
	return artifacts, nil
}

func (r *artifactRepo) ByTaskAndType(ctx context.Context, taskUUID uuid.UUID, artifactType string) (*research.Artifact, error) {
	q := fmt.Sprintf(`
		SELECT %s FROM research_artifacts
		WHERE  task_id = $1 AND artifact_type = $2
		ORDER  BY created_at DESC
		LIMIT  1`, artifactColumns)

	a, err := scanArtifact(r.db.QueryRow(ctx, q, taskUUID, artifactType).Scan)
	if err != nil {
		return nil, wrapErr("artifacts: by task and type", err)
	}
	return &a, nil
}

func scanArtifact(scan func(dest ...any) error) (research.Artifact, error) {
	var (
		a        research.Artifact
		metadata []byte
	)
	err := scan(&a.ID, &a.TaskID, &a.Type, &a.Name, &a.Content, &metadata, &a.SizeBytes, &a.CreatedAt)
	if err != nil {
		return research.Artifact{}, err
	}
	if err := unmarshalJSON("artifacts", metadata, &a.Metadata); err != nil {
		return research.Artifact{}, err
	}
	return a, nil
}

type shareRepo struct {
	db querier
}

const shareColumns = `id, task_id, shared_by_id, shared_with_id, share_token,
       permission_level, is_public, expires_at, created_at`

func (r *shareRepo) Create(ctx context.Context, s *research.Share) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	if s.Permission == "" {
		s.Permission = research.PermissionRead
	}

	const q = `
		INSERT INTO research_shares
		    (id, task_id, shared_by_id, shared_with_id, share_token,
		     permission_level, is_public, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.db.Exec(ctx, q,
		s.ID, s.TaskID, s.SharedByID, s.SharedWithID, nullString(s.ShareToken),
		s.Permission, s.IsPublic, s.ExpiresAt, s.CreatedAt,
	)
	if err != nil {
		return wrapErr("shares: create", err)
	}
	return nil
}

func (r *shareRepo) ByToken(ctx context.Context, token string) (*research.Share, error) {
	q := fmt.Sprintf("SELECT %s FROM research_shares WHERE share_token = $1", shareColumns)

	s, err := scanShare(r.db.QueryRow(ctx, q, token).Scan)
	if err != nil {
		return nil, wrapErr("shares: by token", err)
	}
	return &s, nil
}

func (r *shareRepo) ByTask(ctx context.Context, taskUUID uuid.UUID) ([]research.Share, error) {
	q := fmt.Sprintf(`
		SELECT %s FROM research_shares
		WHERE  task_id = $1
		ORDER  BY created_at`, shareColumns)

	rows, err := r.db.Query(ctx, q, taskUUID)
	if err != nil {
		return nil, wrapErr("shares: by task", err)
	}

	shares, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (research.Share, error) {
		return scanShare(row.Scan)
	})
	if err != nil {
		return nil, fmt.Errorf("shares: by task: scan rows: %w", err)
	}
	if shares == nil {
		shares = []research.Share{}
	}
	return shares, nil
}

func (r *shareRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM research_shares WHERE id = $1`, id)
	if err != nil {
		return wrapErr("shares: delete", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("shares: delete: %w", store.ErrNotFound)
	}
	return nil
}

func scanShare(scan func(dest ...any) error) (research.Share, error) {
	var (
		s     research.Share
		token *string
	)
	err := scan(
		&s.ID, &s.TaskID, &s.SharedByID, &s.SharedWithID, &token,
		&s.Permission, &s.IsPublic, &s.ExpiresAt, &s.CreatedAt,
	)
	if err != nil {
		return research.Share{}, err
	}
	if token != nil {
		s.ShareToken = *token
	}
	return s, nil
}
