package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/recondite-labs/scholarpipe/pkg/llm"
)

func TestNew_RequiresModel(t *testing.T) {
	if _, err := New("http://localhost:11434", ""); err == nil {
		t.Fatal("expected error for empty model, got nil")
	}
}

func TestGenerate_SendsOptionsAndReturnsResponse(t *testing.T) {
	var got generateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("path = %q, want /api/generate", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(generateResponse{Response: "forty-two", Done: true})
	}))
	defer srv.Close()

	p, err := New(srv.URL, "qwen3:30b")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	text, err := p.Generate(context.Background(), llm.GenerateRequest{
		Prompt:      "the answer",
		System:      "be brief",
		Temperature: 0.4,
		MaxTokens:   100,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if text != "forty-two" {
		t.Errorf("text = %q, want %q", text, "forty-two")
	}
	if got.Stream {
		t.Error("stream = true, want false")
	}
	if got.Model != "qwen3:30b" {
		t.Errorf("model = %q, want qwen3:30b", got.Model)
	}
	if got.System != "be brief" {
		t.Errorf("system = %q, want %q", got.System, "be brief")
	}
	if got.Options.Temperature != 0.4 || got.Options.NumPredict != 100 {
		t.Errorf("options = %+v, want temperature 0.4 num_predict 100", got.Options)
	}
}

func TestGenerate_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(generateResponse{Error: "model not loaded"})
	}))
	defer srv.Close()

	p, _ := New(srv.URL, "qwen3:30b")
	_, err := p.Generate(context.Background(), llm.GenerateRequest{Prompt: "x"})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "model not loaded") {
		t.Errorf("error = %v, want to mention server message", err)
	}
}

func TestStreamGenerate_ForwardsFramesInOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		frames := []generateResponse{
			{Response: "Hello"},
			{Response: ", "},
			{Response: "world"},
			{Done: true},
		}
		enc := json.NewEncoder(w)
		for _, f := range frames {
			enc.Encode(f)
		}
	}))
	defer srv.Close()

	p, _ := New(srv.URL, "qwen3:30b")
	ch, err := p.StreamGenerate(context.Background(), llm.GenerateRequest{Prompt: "greet"})
	if err != nil {
		t.Fatalf("StreamGenerate: %v", err)
	}

	var sb strings.Builder
	for c := range ch {
		if c.Err != nil {
			t.Fatalf("unexpected chunk error: %v", c.Err)
		}
		sb.WriteString(c.Text)
	}
	if sb.String() != "Hello, world" {
		t.Errorf("assembled = %q, want %q", sb.String(), "Hello, world")
	}
}

func TestStreamGenerate_MidStreamErrorSurfacesAsChunk(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		enc := json.NewEncoder(w)
		enc.Encode(generateResponse{Response: "partial"})
		enc.Encode(generateResponse{Error: "out of memory"})
	}))
	defer srv.Close()

	p, _ := New(srv.URL, "qwen3:30b")
	ch, err := p.StreamGenerate(context.Background(), llm.GenerateRequest{Prompt: "x"})
	if err != nil {
		t.Fatalf("StreamGenerate: %v", err)
	}

	var last llm.Chunk
	for c := range ch {
		last = c
	}
	if last.Err == nil {
		t.Fatal("expected terminal error chunk, got none")
	}
	if !strings.Contains(last.Err.Error(), "out of memory") {
		t.Errorf("error = %v, want to mention server message", last.Err)
	}
}

func TestChat_ReturnsAssistantContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("path = %q, want /api/chat", r.URL.Path)
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if len(req.Messages) != 2 {
			t.Errorf("messages = %d, want 2", len(req.Messages))
		}
		var out chatResponse
		out.Message.Role = "assistant"
		out.Message.Content = "the sky is blue"
		out.Done = true
		json.NewEncoder(w).Encode(out)
	}))
	defer srv.Close()

	p, _ := New(srv.URL, "qwen3:30b")
	text, err := p.Chat(context.Background(), llm.ChatRequest{
		Messages: []llm.Message{
			{Role: "system", Content: "answer plainly"},
			{Role: "user", Content: "why is the sky blue?"},
		},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if text != "the sky is blue" {
		t.Errorf("text = %q, want %q", text, "the sky is blue")
	}
}

func TestHealth_ModelInCatalogue(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			t.Errorf("path = %q, want /api/tags", r.URL.Path)
		}
		w.Write([]byte(`{"models":[{"name":"qwen3:30b"},{"name":"all-minilm:latest"}]}`))
	}))
	defer srv.Close()

	p, _ := New(srv.URL, "qwen3:30b")
	if err := p.Health(context.Background()); err != nil {
		t.Errorf("Health: %v, want nil", err)
	}
}

func TestHealth_ModelMissing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"models":[{"name":"other:7b"}]}`))
	}))
	defer srv.Close()

	p, _ := New(srv.URL, "qwen3:30b")
	if err := p.Health(context.Background()); err == nil {
		t.Error("Health = nil, want error for missing model")
	}
}
