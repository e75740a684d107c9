// Package anyllm provides an llm.Provider backed by
// github.com/mozilla-ai/any-llm-go, a unified multi-provider interface that
// supports OpenAI, Anthropic, Gemini, Ollama, DeepSeek, Mistral, Groq, and more.
//
// Use this backend when the pipeline fronts a hosted model instead of the
// native Ollama transport:
//
//	p, err := anyllm.New("openai", "gpt-4o", anyllmlib.WithAPIKey("sk-..."))
//	p, err := anyllm.New("anthropic", "claude-3-5-sonnet-latest", anyllmlib.WithAPIKey("sk-ant-..."))
package anyllm

import (
	"context"
	"fmt"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/llamacpp"
	"github.com/mozilla-ai/any-llm-go/providers/llamafile"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/recondite-labs/scholarpipe/pkg/llm"
)

// Ensure Provider implements llm.Provider at compile time.
var _ llm.Provider = (*Provider)(nil)

// Provider implements llm.Provider by wrapping github.com/mozilla-ai/any-llm-go.
type Provider struct {
	backend anyllmlib.Provider
	model   string
}

// New creates a new Provider backed by the given LLM provider name.
//
// providerName is one of: "openai", "anthropic", "gemini", "ollama",
// "deepseek", "mistral", "groq", "llamacpp", "llamafile".
//
// model is the specific model to use (e.g., "gpt-4o").
//
// opts are any-llm-go configuration options (e.g., anyllmlib.WithAPIKey,
// anyllmlib.WithBaseURL). If no API key option is provided, the backend falls
// back to the relevant environment variable (OPENAI_API_KEY, etc.).
func New(providerName string, model string, opts ...anyllmlib.Option) (*Provider, error) {
	if providerName == "" {
		return nil, fmt.Errorf("anyllm: providerName must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("anyllm: model must not be empty")
	}

	backend, err := createBackend(providerName, opts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm: create %q backend: %w", providerName, err)
	}

	return &Provider{backend: backend, model: model}, nil
}

// createBackend creates the underlying any-llm-go provider for the given name.
func createBackend(providerName string, opts ...anyllmlib.Option) (anyllmlib.Provider, error) {
	switch strings.ToLower(providerName) {
	case "openai":
		return anyllmoai.New(opts...)
	case "anthropic":
		return anthropic.New(opts...)
	case "gemini":
		return gemini.New(opts...)
	case "ollama":
		return ollama.New(opts...)
	case "deepseek":
		return deepseek.New(opts...)
	case "mistral":
		return mistral.New(opts...)
	case "groq":
		return groq.New(opts...)
	case "llamacpp":
		return llamacpp.New(opts...)
	case "llamafile":
		return llamafile.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported provider %q; supported: openai, anthropic, gemini, ollama, deepseek, mistral, groq, llamacpp, llamafile", providerName)
	}
}

// Generate implements llm.Provider.
func (p *Provider) Generate(ctx context.Context, req llm.GenerateRequest) (string, error) {
	params := p.buildParams(req.System, []llm.Message{{Role: "user", Content: req.Prompt}}, req.Temperature, req.MaxTokens)

	resp, err := p.backend.Completion(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anyllm: generate: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("anyllm: generate: empty choices in response")
	}
	return resp.Choices[0].Message.ContentString(), nil
}

// StreamGenerate implements llm.Provider. Backend stream chunks are flattened
// into llm.Chunk values; a backend error after the stream has started surfaces
// as a terminal chunk with Err set.
func (p *Provider) StreamGenerate(ctx context.Context, req llm.GenerateRequest) (<-chan llm.Chunk, error) {
	params := p.buildParams(req.System, []llm.Message{{Role: "user", Content: req.Prompt}}, req.Temperature, req.MaxTokens)

	backendChunks, backendErrs := p.backend.CompletionStream(ctx, params)

	ch := make(chan llm.Chunk, 32)
	go func() {
		defer close(ch)

		for chunk := range backendChunks {
			if len(chunk.Choices) == 0 {
				continue
			}
			text := chunk.Choices[0].Delta.Content
			if text == "" {
				continue
			}
			select {
			case ch <- llm.Chunk{Text: text}:
			case <-ctx.Done():
				return
			}
		}

		// Check for backend errors after the chunk channel is drained.
		if err := <-backendErrs; err != nil {
			select {
			case ch <- llm.Chunk{Err: fmt.Errorf("anyllm: stream generate: %w", err)}:
			case <-ctx.Done():
			}
		}
	}()

	return ch, nil
}

// Chat implements llm.Provider.
func (p *Provider) Chat(ctx context.Context, req llm.ChatRequest) (string, error) {
	params := p.buildParams("", req.Messages, req.Temperature, req.MaxTokens)

	resp, err := p.backend.Completion(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anyllm: chat: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("anyllm: chat: empty choices in response")
	}
	return resp.Choices[0].Message.ContentString(), nil
}

// Health implements llm.Provider with a minimal one-token completion probe.
// any-llm-go exposes no model catalogue endpoint across backends, so a cheap
// round-trip stands in for it.
func (p *Provider) Health(ctx context.Context) error {
	one := 1
	params := anyllmlib.CompletionParams{
		Model: p.model,
		Messages: []anyllmlib.Message{
			{Role: anyllmlib.RoleUser, Content: "ping"},
		},
		MaxTokens: &one,
	}
	if _, err := p.backend.Completion(ctx, params); err != nil {
		return fmt.Errorf("anyllm: health: %w", err)
	}
	return nil
}

// Model implements llm.Provider.
func (p *Provider) Model() string {
	return p.model
}

// buildParams converts our request shape into anyllm CompletionParams.
func (p *Provider) buildParams(system string, msgs []llm.Message, temperature float64, maxTokens int) anyllmlib.CompletionParams {
	var messages []anyllmlib.Message

	if system != "" {
		messages = append(messages, anyllmlib.Message{
			Role:    anyllmlib.RoleSystem,
			Content: system,
		})
	}
	for _, m := range msgs {
		messages = append(messages, anyllmlib.Message{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	params := anyllmlib.CompletionParams{
		Model:    p.model,
		Messages: messages,
	}
	if temperature != 0 {
		t := temperature
		params.Temperature = &t
	}
	if maxTokens > 0 {
		mt := maxTokens
		params.MaxTokens = &mt
	}
	return params
}
