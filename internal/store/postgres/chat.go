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

var _ store.ChatRepo = (*chatRepo)(nil)

type chatRepo struct {
	db querier
}

const chatSessionColumns = `id, user_id, title, context, created_at, last_activity`

func (r *chatRepo) CreateSession(ctx context.Context, s *research.ChatSession) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	now := time.Now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	if s.LastActivity.IsZero() {
		s.LastActivity = s.CreatedAt
	}
	contextJSON, err := marshalJSON("chats: create session", s.Context)
	if err != nil {
		return err
	}

	const q = `
		INSERT INTO chat_sessions (id, user_id, title, context, created_at, last_activity)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err = r.db.Exec(ctx, q,
		s.ID, nullUUID(s.UserID), s.Title, contextJSON, s.CreatedAt, s.LastActivity,
	)
	if err != nil {
		return wrapErr("chats: create session", err)
	}
	return nil
}

func (r *chatRepo) SessionByID(ctx context.Context, id uuid.UUID) (*research.ChatSession, error) {
	q := fmt.Sprintf("SELECT %s FROM chat_sessions WHERE id = $1", chatSessionColumns)

	s, err := scanChatSession(r.db.QueryRow(ctx, q, id).Scan)
	if err != nil {
		return nil, wrapErr("chats: session by id", err)
	}
	return &s, nil
}

func (r *chatRepo) SessionsByUser(ctx context.Context, userID uuid.UUID, limit int) ([]research.ChatSession, error) {
	q := fmt.Sprintf(`
		SELECT %s FROM chat_sessions
		WHERE  user_id = $1
		ORDER  BY last_activity DESC
		LIMIT  $2`, chatSessionColumns)

	rows, err := r.db.Query(ctx, q, userID, limit)
	if err != nil {
		return nil, wrapErr("chats: sessions by user", err)
	}

	sessions, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (research.ChatSession, error) {
		return scanChatSession(row.Scan)
	})
	if err != nil {
		return nil, fmt.Errorf("chats: sessions by user: scan rows: %w", err)
	}
	if sessions == nil {
		sessions = []research.ChatSession{}
	}
	return sessions, nil
}

func (r *chatRepo) TouchSession(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := r.db.Exec(ctx, `UPDATE chat_sessions SET last_activity = $2 WHERE id = $1`, id, at)
	if err != nil {
		return wrapErr("chats: touch session", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("chats: touch session: %w", store.ErrNotFound)
	}
	return nil
}

func (r *chatRepo) DeleteSession(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM chat_sessions WHERE id = $1`, id)
	if err != nil {
		return wrapErr("chats: delete session", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("chats: delete session: %w", store.ErrNotFound)
	}
	return nil
}

func (r *chatRepo) CreateMessage(ctx context.Context, m *research.ChatMessage) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	sources, err := marshalJSON("chats: create message", sourcesListOrEmpty(m.Sources))
	if err != nil {
		return err
	}
	retrieved, err := marshalJSON("chats: create message", m.RetrievedContext)
	if err != nil {
		return err
	}
	metadata, err := marshalJSON("chats: create message", m.Metadata)
	if err != nil {
		return err
	}

	const q = `
		INSERT INTO chat_messages
		    (id, session_id, role, content, sources, retrieved_context, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err = r.db.Exec(ctx, q,
		m.ID, m.SessionID, m.Role, m.Content, sources, retrieved, metadata, m.CreatedAt,
	)
	if err != nil {
		return wrapErr("chats: create message", err)
	}
	return nil
}

func (r *chatRepo) MessagesBySession(ctx context.Context, sessionID uuid.UUID, limit int) ([]research.ChatMessage, error) {
	// The inner query selects the most recent messages; the outer one
	// restores chronological order.
	q := `
		SELECT id, session_id, role, content, sources, retrieved_context, metadata, created_at
		FROM   chat_messages
		WHERE  session_id = $1
		ORDER  BY created_at`
	args := []any{sessionID}
	if limit > 0 {
		q = `
		SELECT * FROM (
		    SELECT id, session_id, role, content, sources, retrieved_context, metadata, created_at
		    FROM   chat_messages
		    WHERE  session_id = $1
		    ORDER  BY created_at DESC
		    LIMIT  $2
		) recent
		ORDER BY created_at`
		args = append(args, limit)
	}

	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, wrapErr("chats: messages by session", err)
	}

	messages, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (research.ChatMessage, error) {
		var (
			m         research.ChatMessage
			sources   []byte
			retrieved []byte
			metadata  []byte
		)
		err := row.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &sources, &retrieved, &metadata, &m.CreatedAt)
		if err != nil {
			return research.ChatMessage{}, err
		}
		const op = "chats: messages by session"
		if err := unmarshalJSON(op, sources, &m.Sources); err != nil {
			return research.ChatMessage{}, err
		}
		if err := unmarshalJSON(op, retrieved, &m.RetrievedContext); err != nil {
			return research.ChatMessage{}, err
		}
		if err := unmarshalJSON(op, metadata, &m.Metadata); err != nil {
			return research.ChatMessage{}, err
		}
		return m, nil
	})
	if err != nil {
		return nil, fmt.Errorf("chats: messages by session: scan rows: %w", err)
	}
	if messages == nil {
		messages = []research.ChatMessage{}
	}
	return messages, nil
}

func scanChatSession(scan func(dest ...any) error) (research.ChatSession, error) {
	var (
		s       research.ChatSession
		userID  *uuid.UUID
		context []byte
	)
	err := scan(&s.ID, &userID, &s.Title, &context, &s.CreatedAt, &s.LastActivity)
	if err != nil {
		return research.ChatSession{}, err
	}
	if userID != nil {
		s.UserID = *userID
	}
	if err := unmarshalJSON("chats", context, &s.Context); err != nil {
		return research.ChatSession{}, err
	}
	return s, nil
}

func sourcesListOrEmpty(s []research.ChatSource) []research.ChatSource {
	if s == nil {
		return []research.ChatSource{}
	}
	return s
}
