package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/recondite-labs/scholarpipe/internal/chat"
	"github.com/recondite-labs/scholarpipe/internal/rag"
	"github.com/recondite-labs/scholarpipe/internal/research"
)

// sessionsDefaultLimit caps the session list per request.
const sessionsDefaultLimit = 50

// streamTurnTimeout bounds one retrieve-and-generate turn on the WebSocket.
const streamTurnTimeout = 2 * time.Minute

type createSessionRequest struct {
	Title string `json:"title"`
}

type sessionInfo struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	LastActivity time.Time `json:"last_activity"`
	CreatedAt    time.Time `json:"created_at"`
}

func toSessionInfo(s *research.ChatSession) sessionInfo {
	return sessionInfo{
		ID:           s.ID.String(),
		Title:        s.Title,
		LastActivity: s.LastActivity,
		CreatedAt:    s.CreatedAt,
	}
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = "Chat " + time.Now().UTC().Format("2006-01-02 15:04")
	}

	session := &research.ChatSession{
		UserID: userFrom(r.Context()).ID,
		Title:  title,
	}
	if err := s.store.Chats().CreateSession(r.Context(), session); err != nil {
		storeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSessionInfo(session))
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", sessionsDefaultLimit)
	sessions, err := s.store.Chats().SessionsByUser(r.Context(), userFrom(r.Context()).ID, limit)
	if err != nil {
		storeError(w, err)
		return
	}
	out := make([]sessionInfo, len(sessions))
	for i := range sessions {
		out[i] = toSessionInfo(&sessions[i])
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": out})
}

// ownedSession resolves {id} to a chat session owned by the authenticated
// user. Returns nil after writing the error response.
func (s *Server) ownedSession(w http.ResponseWriter, r *http.Request) *research.ChatSession {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "session id is not a valid id")
		return nil
	}
	session, err := s.store.Chats().SessionByID(r.Context(), id)
	if err != nil {
		storeError(w, err)
		return nil
	}
	if session.UserID != userFrom(r.Context()).ID {
		writeError(w, http.StatusNotFound, "not found")
		return nil
	}
	return session
}

type messageInfo struct {
	ID        string                `json:"id"`
	Role      string                `json:"role"`
	Content   string                `json:"content"`
	Sources   []research.ChatSource `json:"sources,omitempty"`
	CreatedAt time.Time             `json:"created_at"`
}

func (s *Server) handleSessionMessages(w http.ResponseWriter, r *http.Request) {
	session := s.ownedSession(w, r)
	if session == nil {
		return
	}
	messages, err := s.store.Chats().MessagesBySession(r.Context(), session.ID, queryInt(r, "limit", 0))
	if err != nil {
		storeError(w, err)
		return
	}
	out := make([]messageInfo, len(messages))
	for i, m := range messages {
		out[i] = messageInfo{
			ID:        m.ID.String(),
			Role:      m.Role,
			Content:   m.Content,
			Sources:   m.Sources,
			CreatedAt: m.CreatedAt,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": session.ID.String(),
		"messages":   out,
	})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	session := s.ownedSession(w, r)
	if session == nil {
		return
	}
	if err := s.store.Chats().DeleteSession(r.Context(), session.ID); err != nil {
		storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

type chatMessageRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
}

func (s *Server) handleChatMessage(w http.ResponseWriter, r *http.Request) {
	var req chatMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	sessionID := uuid.Nil
	if req.SessionID != "" {
		id, err := uuid.Parse(req.SessionID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "session_id is not a valid id")
			return
		}
		sessionID = id
	}

	outcome, err := s.chat.Process(r.Context(), chat.Request{
		Message:   req.Message,
		UserID:    userFrom(r.Context()).ID,
		SessionID: sessionID,
	})
	if err != nil {
		storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": outcome.SessionID.String(),
		"response":   outcome.Reply.Content,
		"sources":    outcome.Reply.Sources,
	})
}

type chatSearchRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

// handleChatSearch runs a hybrid retrieval over the user's research corpus
// without generating a reply.
func (s *Server) handleChatSearch(w http.ResponseWriter, r *http.Request) {
	var req chatSearchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	retrieved, err := s.retriever.Retrieve(r.Context(), rag.Query{
		Text:      req.Query,
		UserID:    userFrom(r.Context()).ID,
		TopK:      req.TopK,
		UseVector: true,
		UseGraph:  true,
	})
	if err != nil {
		storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"results": retrieved.Combined,
		"sources": retrieved.Sources,
	})
}

// --- WebSocket streaming ---

// streamFrame is one server-to-client message on the chat stream.
type streamFrame struct {
	Type      string       `json:"type"`
	Content   string       `json:"content,omitempty"`
	SessionID string       `json:"session_id,omitempty"`
	Sources   []rag.Source `json:"sources,omitempty"`
	Error     string       `json:"error,omitempty"`
}

// handleChatStream upgrades to a WebSocket and serves chat turns until the
// client disconnects. Browser WebSocket clients cannot set headers, so the
// bearer token arrives as a "token" query parameter.
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	user, err := s.auth.Authenticate(r.Context(), bearerToken(r))
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "closed")

	ctx := r.Context()
	for {
		var req chatMessageRequest
		if err := readFrame(ctx, conn, &req); err != nil {
			conn.Close(websocket.StatusNormalClosure, "bye")
			return
		}
		if strings.TrimSpace(req.Message) == "" {
			_ = writeFrame(ctx, conn, streamFrame{Type: "error", Error: "message is required"})
			continue
		}
		sessionID := uuid.Nil
		if req.SessionID != "" {
			id, err := uuid.Parse(req.SessionID)
			if err != nil {
				_ = writeFrame(ctx, conn, streamFrame{Type: "error", Error: "session_id is not a valid id"})
				continue
			}
			sessionID = id
		}
		if err := s.streamTurn(ctx, conn, user.ID, req.Message, sessionID); err != nil {
			slog.Warn("chat stream turn failed", "user", user.ID, "error", err)
			_ = writeFrame(ctx, conn, streamFrame{Type: "error", Error: "failed to generate a response"})
		}
	}
}

// streamTurn runs one retrieve-and-generate turn, forwarding chunks as they
// arrive and attaching sources after the final chunk.
func (s *Server) streamTurn(ctx context.Context, conn *websocket.Conn, userID uuid.UUID, message string, sessionID uuid.UUID) error {
	turnCtx, cancel := context.WithTimeout(ctx, streamTurnTimeout)
	defer cancel()

	if err := writeFrame(turnCtx, conn, streamFrame{Type: "typing"}); err != nil {
		return err
	}

	outcome, err := s.chat.Process(turnCtx, chat.Request{
		Message:   message,
		UserID:    userID,
		SessionID: sessionID,
		Stream:    true,
	})
	if err != nil {
		return err
	}
	reply := outcome.Reply

	var sb strings.Builder
	for chunk := range reply.Chunks {
		if chunk.Err != nil {
			return chunk.Err
		}
		sb.WriteString(chunk.Text)
		if err := writeFrame(turnCtx, conn, streamFrame{Type: "stream", Content: chunk.Text}); err != nil {
			return err
		}
	}

	if err := writeFrame(turnCtx, conn, streamFrame{Type: "sources", Sources: reply.Sources}); err != nil {
		return err
	}
	if err := s.chat.SaveAssistantMessage(turnCtx, outcome.SessionID, sb.String(), reply); err != nil {
		slog.Warn("assistant message save failed", "session", outcome.SessionID, "error", err)
	}
	return writeFrame(turnCtx, conn, streamFrame{Type: "complete", SessionID: outcome.SessionID.String()})
}

// readFrame decodes one JSON text message from the socket.
func readFrame(ctx context.Context, conn *websocket.Conn, v any) error {
	_, data, err := conn.Read(ctx)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errors.New("api: malformed stream frame")
	}
	return nil
}

// writeFrame encodes v as one JSON text message.
func writeFrame(ctx context.Context, conn *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}
