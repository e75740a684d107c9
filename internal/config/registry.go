package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/recondite-labs/scholarpipe/pkg/embed"
	"github.com/recondite-labs/scholarpipe/pkg/llm"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions for each
// backend kind. It is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	llm        map[string]func(LLMConfig) (llm.Provider, error)
	embeddings map[string]func(EmbeddingsConfig) (embed.Provider, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		llm:        make(map[string]func(LLMConfig) (llm.Provider, error)),
		embeddings: make(map[string]func(EmbeddingsConfig) (embed.Provider, error)),
	}
}

// RegisterLLM registers an LLM provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterLLM(name string, factory func(LLMConfig) (llm.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm[name] = factory
}

// RegisterEmbeddings registers an embeddings provider factory under name.
func (r *Registry) RegisterEmbeddings(name string, factory func(EmbeddingsConfig) (embed.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.embeddings[name] = factory
}

// CreateLLM instantiates an LLM provider using the factory registered under
// cfg.Provider. Returns [ErrProviderNotRegistered] if no factory has been
// registered for that name.
func (r *Registry) CreateLLM(cfg LLMConfig) (llm.Provider, error) {
	r.mu.RLock()
	factory, ok := r.llm[cfg.Provider]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: llm/%q", ErrProviderNotRegistered, cfg.Provider)
	}
	return factory(cfg)
}

// CreateEmbeddings instantiates an embeddings provider using the factory
// registered under cfg.Provider.
func (r *Registry) CreateEmbeddings(cfg EmbeddingsConfig) (embed.Provider, error) {
	r.mu.RLock()
	factory, ok := r.embeddings[cfg.Provider]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: embeddings/%q", ErrProviderNotRegistered, cfg.Provider)
	}
	return factory(cfg)
}
