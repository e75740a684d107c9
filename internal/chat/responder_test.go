package chat

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/recondite-labs/scholarpipe/internal/rag"
	"github.com/recondite-labs/scholarpipe/internal/research"
	storemock "github.com/recondite-labs/scholarpipe/internal/store/mock"
	embedmock "github.com/recondite-labs/scholarpipe/pkg/embed/mock"
	"github.com/recondite-labs/scholarpipe/pkg/llm"
	llmmock "github.com/recondite-labs/scholarpipe/pkg/llm/mock"
)

func TestBuildPromptSections(t *testing.T) {
	t.Parallel()

	retrieved := &rag.Context{
		Combined: []rag.Item{
			{Type: "synthesis", Content: "Meditation reduces stress.", Source: rag.Source{Query: "meditation benefits"}},
			{Type: "graph", Content: "Cortisol levels drop with practice."},
		},
	}
	history := []research.ChatMessage{
		{Role: research.RoleUser, Content: "hello"},
		{Role: research.RoleAssistant, Content: "hi there"},
	}

	prompt := BuildPrompt("What are the main findings?", retrieved, history)

	for _, section := range []string{
		"## Relevant Context:",
		"### Context 1:",
		"Type: synthesis",
		"From research: meditation benefits",
		"## Conversation History:",
		"User: hello",
		"Assistant: hi there",
		"## Current Question:\nWhat are the main findings?",
	} {
		if !strings.Contains(prompt, section) {
			t.Errorf("prompt missing %q", section)
		}
	}
	if !strings.HasSuffix(prompt, "## Your Response:") {
		t.Errorf("prompt must end with the response cue, got %q", prompt[len(prompt)-40:])
	}
}

func TestBuildPromptCapsContextAndHistory(t *testing.T) {
	t.Parallel()

	var items []rag.Item
	for i := 0; i < 8; i++ {
		items = append(items, rag.Item{Type: "graph", Content: fmt.Sprintf("item %d", i)})
	}
	var history []research.ChatMessage
	for i := 0; i < 9; i++ {
		history = append(history, research.ChatMessage{Role: research.RoleUser, Content: fmt.Sprintf("turn %d", i)})
	}

	prompt := BuildPrompt("q", &rag.Context{Combined: items}, history)

	if strings.Contains(prompt, "### Context 6:") {
		t.Error("more than five context items in prompt")
	}
	if strings.Contains(prompt, "turn 3") {
		t.Error("history older than five turns leaked into prompt")
	}
	if !strings.Contains(prompt, "turn 8") {
		t.Error("latest history turn missing from prompt")
	}
}

func TestBuildPromptNoContext(t *testing.T) {
	t.Parallel()

	prompt := BuildPrompt("q", &rag.Context{}, nil)
	if strings.Contains(prompt, "## Relevant Context:") {
		t.Error("empty retrieval should omit the context section")
	}
	if !strings.Contains(prompt, "## Current Question:\nq") {
		t.Error("question section missing")
	}
}

func TestServiceProcessUnary(t *testing.T) {
	t.Parallel()

	st := storemock.NewStore()
	retriever := rag.New(st, &embedmock.Provider{EmbedResult: []float32{1, 0}})
	provider := &llmmock.Provider{GenerateResponse: "Here is what your research shows."}
	svc := NewService(st, NewResponder(retriever, provider))

	out, err := svc.Process(context.Background(), Request{
		Message: "What did I learn?",
		UserID:  uuid.New(),
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if out.Reply.Type != "complete" {
		t.Fatalf("reply type = %q, want complete", out.Reply.Type)
	}
	if out.SessionID == uuid.Nil {
		t.Fatal("no session created")
	}

	msgs, err := st.Chats().MessagesBySession(context.Background(), out.SessionID, 0)
	if err != nil {
		t.Fatalf("MessagesBySession: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want user + assistant", len(msgs))
	}
	if msgs[0].Role != research.RoleUser || msgs[1].Role != research.RoleAssistant {
		t.Errorf("roles = %q, %q", msgs[0].Role, msgs[1].Role)
	}
	if msgs[1].Content != "Here is what your research shows." {
		t.Errorf("assistant content = %q", msgs[1].Content)
	}
}

func TestServiceProcessStreamOrder(t *testing.T) {
	t.Parallel()

	st := storemock.NewStore()
	retriever := rag.New(st, &embedmock.Provider{EmbedResult: []float32{1, 0}})
	provider := &llmmock.Provider{StreamChunks: []llm.Chunk{
		{Text: "Medi"}, {Text: "tation "}, {Text: "helps."},
	}}
	svc := NewService(st, NewResponder(retriever, provider))

	out, err := svc.Process(context.Background(), Request{
		Message: "summarize",
		UserID:  uuid.New(),
		Stream:  true,
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if out.Reply.Type != "stream" {
		t.Fatalf("reply type = %q, want stream", out.Reply.Type)
	}

	var assembled strings.Builder
	for c := range out.Reply.Chunks {
		if c.Err != nil {
			t.Fatalf("chunk error: %v", c.Err)
		}
		assembled.WriteString(c.Text)
	}
	if assembled.String() != "Meditation helps." {
		t.Errorf("assembled stream = %q", assembled.String())
	}

	// The assistant message is persisted by the stream consumer.
	if err := svc.SaveAssistantMessage(context.Background(), out.SessionID, assembled.String(), out.Reply); err != nil {
		t.Fatalf("SaveAssistantMessage: %v", err)
	}
	msgs, _ := st.Chats().MessagesBySession(context.Background(), out.SessionID, 0)
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
}

func TestServiceSessionOwnership(t *testing.T) {
	t.Parallel()

	st := storemock.NewStore()
	owner := uuid.New()
	session := &research.ChatSession{UserID: owner, Title: "theirs"}
	if err := st.Chats().CreateSession(context.Background(), session); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	retriever := rag.New(st, &embedmock.Provider{EmbedResult: []float32{1}})
	svc := NewService(st, NewResponder(retriever, &llmmock.Provider{}))

	_, err := svc.Process(context.Background(), Request{
		Message:   "hi",
		UserID:    uuid.New(), // not the owner
		SessionID: session.ID,
	})
	if err == nil {
		t.Fatal("expected ownership error")
	}
}
