// Package mock provides a test double for the embed.Provider interface.
//
// Use Provider to return pre-canned embedding vectors without a live model
// and to verify that the correct texts are submitted for embedding. EmbedFn
// supports content-dependent vectors, which graph and RAG tests use to steer
// similarity scores.
//
// Example:
//
//	p := &mock.Provider{
//	    EmbedResult:     []float32{0.1, 0.2, 0.3},
//	    DimensionsValue: 3,
//	    ModelIDValue:    "test-embed-v1",
//	}
//	vec, _ := p.Embed(ctx, "benefits of meditation")
package mock

import (
	"context"
	"sync"

	"github.com/recondite-labs/scholarpipe/pkg/embed"
)

// EmbedCall records a single invocation of Embed.
type EmbedCall struct {
	// Ctx is the context passed to Embed.
	Ctx context.Context
	// Text is the string passed to Embed.
	Text string
}

// EmbedBatchCall records a single invocation of EmbedBatch.
type EmbedBatchCall struct {
	// Ctx is the context passed to EmbedBatch.
	Ctx context.Context
	// Texts is a copy of the string slice passed to EmbedBatch.
	Texts []string
}

// Provider is a mock implementation of embed.Provider.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// EmbedFn, if non-nil, is called by Embed (and per-text by EmbedBatch
	// when EmbedBatchResult is nil) instead of the canned results.
	EmbedFn func(text string) ([]float32, error)

	// EmbedResult is returned by Embed when EmbedFn is nil. If nil, a
	// zero-length slice is returned.
	EmbedResult []float32

	// EmbedErr, if non-nil, is returned as the error from Embed.
	EmbedErr error

	// EmbedBatchResult is returned by EmbedBatch. If nil and EmbedFn is nil,
	// a slice of nil slices is returned (one per input text).
	EmbedBatchResult [][]float32

	// EmbedBatchErr, if non-nil, is returned as the error from EmbedBatch.
	EmbedBatchErr error

	// DimensionsValue is returned by Dimensions.
	DimensionsValue int

	// ModelIDValue is returned by ModelID. Defaults to "mock-embed" when empty.
	ModelIDValue string

	// --- Call records ---

	// EmbedCalls records every call to Embed in order.
	EmbedCalls []EmbedCall

	// EmbedBatchCalls records every call to EmbedBatch in order.
	EmbedBatchCalls []EmbedBatchCall
}

// Embed records the call and returns EmbedFn(text) or EmbedResult, EmbedErr.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	p.mu.Lock()
	p.EmbedCalls = append(p.EmbedCalls, EmbedCall{Ctx: ctx, Text: text})
	fn := p.EmbedFn
	result, err := p.EmbedResult, p.EmbedErr
	p.mu.Unlock()

	if fn != nil {
		return fn(text)
	}
	return result, err
}

// EmbedBatch records the call and returns EmbedBatchResult, EmbedBatchErr.
// When EmbedBatchResult is nil it falls back to EmbedFn per text, or to a
// slice of nil slices matching the length of texts.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	p.mu.Lock()
	cp := make([]string, len(texts))
	copy(cp, texts)
	p.EmbedBatchCalls = append(p.EmbedBatchCalls, EmbedBatchCall{Ctx: ctx, Texts: cp})
	fn := p.EmbedFn
	batch, err := p.EmbedBatchResult, p.EmbedBatchErr
	p.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if batch != nil {
		return batch, nil
	}
	if fn != nil {
		result := make([][]float32, len(texts))
		for i, t := range texts {
			vec, err := fn(t)
			if err != nil {
				return nil, err
			}
			result[i] = vec
		}
		return result, nil
	}
	// Return a slice of nil slices so the caller gets the right length.
	result := make([][]float32, len(texts))
	return result, nil
}

// Dimensions returns DimensionsValue.
func (p *Provider) Dimensions() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.DimensionsValue
}

// ModelID returns ModelIDValue or "mock-embed".
func (p *Provider) ModelID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ModelIDValue == "" {
		return "mock-embed"
	}
	return p.ModelIDValue
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.EmbedCalls = nil
	p.EmbedBatchCalls = nil
}

// Ensure Provider implements embed.Provider at compile time.
var _ embed.Provider = (*Provider)(nil)
