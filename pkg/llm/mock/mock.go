// Package mock provides a test double for the llm.Provider interface.
//
// Use Provider in unit tests to feed controlled model output without a live
// backend. Responses can be scripted per call (GenerateResponses) so retry
// ladders (fail, fail, succeed) are testable deterministically.
//
// Example:
//
//	p := &mock.Provider{GenerateResponses: []mock.GenerateResult{
//	    {Err: errors.New("boom")},
//	    {Text: `{"ok":true}`},
//	}}
//	_, err := p.Generate(ctx, req) // boom
//	text, _ := p.Generate(ctx, req) // {"ok":true}
package mock

import (
	"context"
	"sync"

	"github.com/recondite-labs/scholarpipe/pkg/llm"
)

// GenerateResult is one scripted outcome for Generate or Chat.
type GenerateResult struct {
	// Text is the response text returned when Err is nil.
	Text string

	// Err, if non-nil, is returned instead of Text.
	Err error
}

// GenerateCall records a single invocation of Generate.
type GenerateCall struct {
	// Ctx is the context passed to Generate.
	Ctx context.Context
	// Req is the request passed to Generate.
	Req llm.GenerateRequest
}

// ChatCall records a single invocation of Chat.
type ChatCall struct {
	// Ctx is the context passed to Chat.
	Ctx context.Context
	// Req is the request passed to Chat.
	Req llm.ChatRequest
}

// Provider is a mock implementation of llm.Provider.
// Zero values for response fields cause methods to return zero values and nil
// errors. Set Err fields to inject errors.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// GenerateResponses is consumed one entry per Generate call. When the
	// script is exhausted (or empty), GenerateResponse/GenerateErr are used.
	GenerateResponses []GenerateResult
	generateIdx       int

	// GenerateResponse is the fallback text returned by Generate.
	GenerateResponse string

	// GenerateErr, if non-nil, is the fallback error returned by Generate.
	GenerateErr error

	// GenerateFn, if non-nil, is called instead of any scripted response.
	// Useful for timeout simulations that block on ctx.
	GenerateFn func(ctx context.Context, req llm.GenerateRequest) (string, error)

	// StreamChunks is the sequence of chunks emitted by StreamGenerate before
	// the channel closes.
	StreamChunks []llm.Chunk

	// StreamErr, if non-nil, is returned from StreamGenerate instead of
	// starting a channel.
	StreamErr error

	// ChatResponse is returned by Chat.
	ChatResponse string

	// ChatErr, if non-nil, is returned by Chat.
	ChatErr error

	// HealthErr is returned by Health.
	HealthErr error

	// ModelName is returned by Model. Defaults to "mock-model" when empty.
	ModelName string

	// --- Call records (read after test) ---

	// GenerateCalls records every invocation of Generate in order.
	GenerateCalls []GenerateCall

	// StreamCalls records the requests passed to StreamGenerate in order.
	StreamCalls []llm.GenerateRequest

	// ChatCalls records every invocation of Chat in order.
	ChatCalls []ChatCall
}

// Generate records the call and returns the next scripted response, the
// GenerateFn result, or the fallback GenerateResponse/GenerateErr pair.
func (p *Provider) Generate(ctx context.Context, req llm.GenerateRequest) (string, error) {
	p.mu.Lock()
	p.GenerateCalls = append(p.GenerateCalls, GenerateCall{Ctx: ctx, Req: req})
	fn := p.GenerateFn
	if fn == nil && p.generateIdx < len(p.GenerateResponses) {
		r := p.GenerateResponses[p.generateIdx]
		p.generateIdx++
		p.mu.Unlock()
		return r.Text, r.Err
	}
	text, err := p.GenerateResponse, p.GenerateErr
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	return text, err
}

// StreamGenerate records the call and returns a channel that emits
// StreamChunks. If StreamErr is set, it returns nil, StreamErr without opening
// a channel.
func (p *Provider) StreamGenerate(ctx context.Context, req llm.GenerateRequest) (<-chan llm.Chunk, error) {
	p.mu.Lock()
	p.StreamCalls = append(p.StreamCalls, req)
	if p.StreamErr != nil {
		err := p.StreamErr
		p.mu.Unlock()
		return nil, err
	}
	chunks := make([]llm.Chunk, len(p.StreamChunks))
	copy(chunks, p.StreamChunks)
	p.mu.Unlock()

	ch := make(chan llm.Chunk, len(chunks))
	go func() {
		defer close(ch)
		for _, c := range chunks {
			select {
			case <-ctx.Done():
				return
			case ch <- c:
			}
		}
	}()
	return ch, nil
}

// Chat records the call and returns ChatResponse, ChatErr.
func (p *Provider) Chat(ctx context.Context, req llm.ChatRequest) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ChatCalls = append(p.ChatCalls, ChatCall{Ctx: ctx, Req: req})
	return p.ChatResponse, p.ChatErr
}

// Health returns HealthErr.
func (p *Provider) Health(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.HealthErr
}

// Model returns ModelName or "mock-model".
func (p *Provider) Model() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ModelName == "" {
		return "mock-model"
	}
	return p.ModelName
}

// Reset clears all recorded calls and rewinds the response script. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.GenerateCalls = nil
	p.StreamCalls = nil
	p.ChatCalls = nil
	p.generateIdx = 0
}

// Ensure Provider implements llm.Provider at compile time.
var _ llm.Provider = (*Provider)(nil)
