package chat

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/recondite-labs/scholarpipe/internal/research"
	"github.com/recondite-labs/scholarpipe/internal/store"
)

// historyLimit is how many prior messages are loaded per turn.
const historyLimit = 10

// Service manages chat sessions and message persistence around a [Responder].
// Safe for concurrent use.
type Service struct {
	store     store.Store
	responder *Responder
}

// NewService constructs a Service.
func NewService(st store.Store, responder *Responder) *Service {
	return &Service{store: st, responder: responder}
}

// Request is one incoming chat message.
type Request struct {
	Message string
	UserID  uuid.UUID

	// SessionID selects an existing session; the nil UUID creates one.
	SessionID uuid.UUID

	// Stream selects a streaming reply.
	Stream bool
}

// Outcome couples the reply with its session. The user message and, for unary
// replies, the assistant message are already persisted when Process returns;
// streaming callers persist the assembled assistant message via
// [Service.SaveAssistantMessage] after the stream drains.
type Outcome struct {
	Reply     *Reply
	SessionID uuid.UUID
}

// Process persists the user message, runs retrieval-augmented generation with
// the session's recent history, and persists the assistant reply.
func (s *Service) Process(ctx context.Context, req Request) (*Outcome, error) {
	session, err := s.ensureSession(ctx, req)
	if err != nil {
		return nil, err
	}

	history, err := s.store.Chats().MessagesBySession(ctx, session.ID, historyLimit)
	if err != nil {
		return nil, fmt.Errorf("chat: load history: %w", err)
	}

	if err := s.store.Chats().CreateMessage(ctx, &research.ChatMessage{
		SessionID: session.ID,
		Role:      research.RoleUser,
		Content:   req.Message,
	}); err != nil {
		return nil, fmt.Errorf("chat: save user message: %w", err)
	}

	var reply *Reply
	if req.Stream {
		reply, err = s.responder.RespondStream(ctx, req.Message, req.UserID, history)
	} else {
		reply, err = s.responder.Respond(ctx, req.Message, req.UserID, history)
	}
	if err != nil {
		return nil, err
	}

	if reply.Type == "complete" {
		if err := s.SaveAssistantMessage(ctx, session.ID, reply.Content, reply); err != nil {
			return nil, err
		}
	}

	if err := s.store.Chats().TouchSession(ctx, session.ID, time.Now().UTC()); err != nil {
		slog.Warn("session touch failed", "session", session.ID, "error", err)
	}

	return &Outcome{Reply: reply, SessionID: session.ID}, nil
}

// SaveAssistantMessage persists an assistant turn with its retrieval
// snapshot.
func (s *Service) SaveAssistantMessage(ctx context.Context, sessionID uuid.UUID, content string, reply *Reply) error {
	msg := &research.ChatMessage{
		SessionID: sessionID,
		Role:      research.RoleAssistant,
		Content:   content,
	}
	for _, src := range reply.Sources {
		msg.Sources = append(msg.Sources, research.ChatSource{
			ID:        src.ID,
			TaskID:    src.TaskID,
			Query:     src.Query,
			CreatedAt: src.CreatedAt,
		})
	}
	if reply.Context != nil {
		msg.RetrievedContext = map[string]any{
			"vector_results": len(reply.Context.VectorResults),
			"graph_results":  len(reply.Context.GraphResults),
			"combined":       len(reply.Context.Combined),
		}
	}
	if err := s.store.Chats().CreateMessage(ctx, msg); err != nil {
		return fmt.Errorf("chat: save assistant message: %w", err)
	}
	return nil
}

// ensureSession loads the requested session or creates a fresh one titled
// with the current date.
func (s *Service) ensureSession(ctx context.Context, req Request) (*research.ChatSession, error) {
	if req.SessionID != uuid.Nil {
		session, err := s.store.Chats().SessionByID(ctx, req.SessionID)
		if err != nil {
			return nil, fmt.Errorf("chat: load session: %w", err)
		}
		if session.UserID != req.UserID {
			return nil, fmt.Errorf("chat: load session: %w", store.ErrNotFound)
		}
		return session, nil
	}

	session := &research.ChatSession{
		UserID: req.UserID,
		Title:  "Chat " + time.Now().UTC().Format("2006-01-02 15:04"),
	}
	if err := s.store.Chats().CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("chat: create session: %w", err)
	}
	return session, nil
}
