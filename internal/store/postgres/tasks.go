package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/recondite-labs/scholarpipe/internal/research"
	"github.com/recondite-labs/scholarpipe/internal/store"
)

var _ store.TaskRepo = (*taskRepo)(nil)

type taskRepo struct {
	db querier
}

const taskColumns = `id, user_id, task_id, query, status, depth, max_sources, options,
       progress, warnings, error_message, created_at, started_at, completed_at`

func (r *taskRepo) Create(ctx context.Context, t *research.Task) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	opts, err := marshalJSON("tasks: create", t.Options)
	if err != nil {
		return err
	}
	warnings, err := marshalJSON("tasks: create", warningsOrEmpty(t.Warnings))
	if err != nil {
		return err
	}

	const q = `
		INSERT INTO research_tasks
		    (id, user_id, task_id, query, status, depth, max_sources, options,
		     progress, warnings, error_message, created_at, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err = r.db.Exec(ctx, q,
		t.ID, nullUUID(t.UserID), t.TaskID, t.Query, string(t.Status), string(t.Depth),
		t.MaxSources, opts, t.Progress, warnings, t.ErrorMessage,
		t.CreatedAt, t.StartedAt, t.CompletedAt,
	)
	if err != nil {
		return wrapErr("tasks: create", err)
	}
	return nil
}

func (r *taskRepo) ByTaskID(ctx context.Context, taskID string) (*research.Task, error) {
	q := fmt.Sprintf("SELECT %s FROM research_tasks WHERE task_id = $1", taskColumns)
	row := r.db.QueryRow(ctx, q, taskID)

	t, err := scanTask(row.Scan)
	if err != nil {
		return nil, wrapErr("tasks: by task id", err)
	}
	return t, nil
}

func (r *taskRepo) ByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]research.Task, error) {
	q := fmt.Sprintf(`
		SELECT %s FROM research_tasks
		WHERE  user_id = $1
		ORDER  BY created_at DESC
		LIMIT  $2 OFFSET $3`, taskColumns)

	rows, err := r.db.Query(ctx, q, userID, limit, offset)
	if err != nil {
		return nil, wrapErr("tasks: by user", err)
	}
	return collectTasks("tasks: by user", rows)
}

func (r *taskRepo) RecentCompleted(ctx context.Context, userID uuid.UUID, limit int) ([]research.Task, error) {
	q := fmt.Sprintf(`
		SELECT %s FROM research_tasks
		WHERE  user_id = $1 AND status = $2
		ORDER  BY completed_at DESC NULLS LAST
		LIMIT  $3`, taskColumns)

	rows, err := r.db.Query(ctx, q, userID, string(research.StatusCompleted), limit)
	if err != nil {
		return nil, wrapErr("tasks: recent completed", err)
	}
	return collectTasks("tasks: recent completed", rows)
}

func (r *taskRepo) Update(ctx context.Context, taskID string, u research.TaskUpdate) error {
	args := []any{taskID}
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	var sets []string
	if u.Status != nil {
		sets = append(sets, "status = "+next(string(*u.Status)))
	}
	if u.Progress != nil {
		sets = append(sets, "progress = "+next(*u.Progress))
	}
	if u.ErrorMessage != nil {
		sets = append(sets, "error_message = "+next(*u.ErrorMessage))
	}
	if u.StartedAt != nil {
		sets = append(sets, "started_at = "+next(*u.StartedAt))
	}
	if u.CompletedAt != nil {
		sets = append(sets, "completed_at = "+next(*u.CompletedAt))
	}
	if len(sets) == 0 {
		return nil
	}

	q := "UPDATE research_tasks SET " + strings.Join(sets, ", ") + " WHERE task_id = $1"
	tag, err := r.db.Exec(ctx, q, args...)
	if err != nil {
		return wrapErr("tasks: update", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("tasks: update: %w", store.ErrNotFound)
	}
	return nil
}

func (r *taskRepo) SetWarnings(ctx context.Context, taskID string, warnings []string) error {
	data, err := marshalJSON("tasks: set warnings", warningsOrEmpty(warnings))
	if err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, `UPDATE research_tasks SET warnings = $2 WHERE task_id = $1`, taskID, data)
	if err != nil {
		return wrapErr("tasks: set warnings", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("tasks: set warnings: %w", store.ErrNotFound)
	}
	return nil
}

func (r *taskRepo) Delete(ctx context.Context, taskID string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM research_tasks WHERE task_id = $1`, taskID)
	if err != nil {
		return wrapErr("tasks: delete", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("tasks: delete: %w", store.ErrNotFound)
	}
	return nil
}

func scanTask(scan func(dest ...any) error) (*research.Task, error) {
	var (
		t             research.Task
		userID        *uuid.UUID
		status, depth string
		opts          []byte
		warnings      []byte
	)
	err := scan(
		&t.ID, &userID, &t.TaskID, &t.Query, &status, &depth, &t.MaxSources, &opts,
		&t.Progress, &warnings, &t.ErrorMessage, &t.CreatedAt, &t.StartedAt, &t.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	if userID != nil {
		t.UserID = *userID
	}
	t.Status = research.Status(status)
	t.Depth = research.Depth(depth)
	if err := unmarshalJSON("tasks", opts, &t.Options); err != nil {
		return nil, err
	}
	if err := unmarshalJSON("tasks", warnings, &t.Warnings); err != nil {
		return nil, err
	}
	return &t, nil
}

func collectTasks(op string, rows pgx.Rows) ([]research.Task, error) {
	tasks, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (research.Task, error) {
		t, err := scanTask(row.Scan)
		if err != nil {
			return research.Task{}, err
		}
		return *t, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: scan rows: %w", op, err)
	}
	if tasks == nil {
		tasks = []research.Task{}
	}
	return tasks, nil
}

// warningsOrEmpty keeps the warnings column a JSON array, never null.
func warningsOrEmpty(w []string) []string {
	if w == nil {
		return []string{}
	}
	return w
}
