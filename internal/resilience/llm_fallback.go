package resilience

import (
	"context"

	"github.com/recondite-labs/scholarpipe/pkg/llm"
)

// LLMFallback implements [llm.Provider] with automatic failover across multiple
// LLM backends. Each backend has its own circuit breaker; when the primary fails
// or its breaker is open, the next healthy fallback is tried.
type LLMFallback struct {
	group *FallbackGroup[llm.Provider]
}

// Compile-time interface assertion.
var _ llm.Provider = (*LLMFallback)(nil)

// NewLLMFallback creates an [LLMFallback] with primary as the preferred backend.
func NewLLMFallback(primary llm.Provider, primaryName string, cfg FallbackConfig) *LLMFallback {
	return &LLMFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional LLM provider as a fallback.
func (f *LLMFallback) AddFallback(name string, provider llm.Provider) {
	f.group.AddFallback(name, provider)
}

// Generate sends the request to the first healthy provider and returns its
// response. If the primary fails, subsequent fallbacks are tried.
func (f *LLMFallback) Generate(ctx context.Context, req llm.GenerateRequest) (string, error) {
	return ExecuteWithResult(f.group, func(p llm.Provider) (string, error) {
		return p.Generate(ctx, req)
	})
}

// StreamGenerate sends the request to the first healthy provider and returns a
// streaming chunk channel. Note: only the initial connection attempt is covered
// by failover; once a stream is established, mid-stream errors are the caller's
// responsibility.
func (f *LLMFallback) StreamGenerate(ctx context.Context, req llm.GenerateRequest) (<-chan llm.Chunk, error) {
	return ExecuteWithResult(f.group, func(p llm.Provider) (<-chan llm.Chunk, error) {
		return p.StreamGenerate(ctx, req)
	})
}

// Chat sends the conversation to the first healthy provider and returns the
// next assistant turn.
func (f *LLMFallback) Chat(ctx context.Context, req llm.ChatRequest) (string, error) {
	return ExecuteWithResult(f.group, func(p llm.Provider) (string, error) {
		return p.Chat(ctx, req)
	})
}

// Health probes each provider in order and reports the first healthy one.
func (f *LLMFallback) Health(ctx context.Context) error {
	return f.group.Execute(func(p llm.Provider) error {
		return p.Health(ctx)
	})
}

// Model returns the model identifier of the first entry (the primary).
// This does not participate in failover because it is static metadata.
func (f *LLMFallback) Model() string {
	if len(f.group.values) > 0 {
		return f.group.values[0].Model()
	}
	return ""
}
