package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/recondite-labs/scholarpipe/pkg/llm"
	llmmock "github.com/recondite-labs/scholarpipe/pkg/llm/mock"
)

func TestLLMFallback_Generate_PrimarySuccess(t *testing.T) {
	primary := &llmmock.Provider{GenerateResponse: "hello from primary"}
	secondary := &llmmock.Provider{GenerateResponse: "hello from secondary"}

	fb := NewLLMFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	text, err := fb.Generate(context.Background(), llm.GenerateRequest{Prompt: "hi"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "hello from primary" {
		t.Fatalf("text = %q, want 'hello from primary'", text)
	}
	if len(primary.GenerateCalls) != 1 {
		t.Fatalf("primary called %d times, want 1", len(primary.GenerateCalls))
	}
	if len(secondary.GenerateCalls) != 0 {
		t.Fatalf("secondary called %d times, want 0", len(secondary.GenerateCalls))
	}
}

func TestLLMFallback_Generate_Failover(t *testing.T) {
	primary := &llmmock.Provider{GenerateErr: errors.New("primary down")}
	secondary := &llmmock.Provider{GenerateResponse: "hello from secondary"}

	fb := NewLLMFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	text, err := fb.Generate(context.Background(), llm.GenerateRequest{Prompt: "hi"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "hello from secondary" {
		t.Fatalf("text = %q, want 'hello from secondary'", text)
	}
}

func TestLLMFallback_Generate_AllFail(t *testing.T) {
	primary := &llmmock.Provider{GenerateErr: errors.New("primary down")}
	secondary := &llmmock.Provider{GenerateErr: errors.New("secondary down")}

	fb := NewLLMFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	_, err := fb.Generate(context.Background(), llm.GenerateRequest{Prompt: "hi"})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}

func TestLLMFallback_StreamGenerate_Failover(t *testing.T) {
	primary := &llmmock.Provider{StreamErr: errors.New("stream failed")}
	secondary := &llmmock.Provider{
		StreamChunks: []llm.Chunk{{Text: "chunk1"}, {Text: "chunk2"}},
	}

	fb := NewLLMFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	ch, err := fb.StreamGenerate(context.Background(), llm.GenerateRequest{Prompt: "hi"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var chunks []llm.Chunk
	for c := range ch {
		chunks = append(chunks, c)
	}
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2", len(chunks))
	}
	if chunks[0].Text != "chunk1" {
		t.Fatalf("chunk[0].Text = %q, want chunk1", chunks[0].Text)
	}
}

func TestLLMFallback_Chat_Failover(t *testing.T) {
	primary := &llmmock.Provider{ChatErr: errors.New("chat failed")}
	secondary := &llmmock.Provider{ChatResponse: "assistant turn"}

	fb := NewLLMFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	text, err := fb.Chat(context.Background(), llm.ChatRequest{
		Messages: []llm.Message{{Role: "user", Content: "test"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "assistant turn" {
		t.Fatalf("text = %q, want 'assistant turn'", text)
	}
}

func TestLLMFallback_Health_Failover(t *testing.T) {
	primary := &llmmock.Provider{HealthErr: errors.New("unreachable")}
	secondary := &llmmock.Provider{}

	fb := NewLLMFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	if err := fb.Health(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLLMFallback_Model(t *testing.T) {
	primary := &llmmock.Provider{ModelName: "qwen3:30b"}

	fb := NewLLMFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})

	if got := fb.Model(); got != "qwen3:30b" {
		t.Fatalf("Model() = %q, want qwen3:30b", got)
	}
}
