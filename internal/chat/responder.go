// Package chat assembles retrieval-augmented chat responses over the user's
// research corpus: hybrid context retrieval, fixed-structure prompt assembly,
// and unary or streaming LLM invocation, with sessions and messages persisted
// through the store.
package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/recondite-labs/scholarpipe/internal/rag"
	"github.com/recondite-labs/scholarpipe/internal/research"
	"github.com/recondite-labs/scholarpipe/pkg/llm"
)

// systemPrompt instructs the model how to ground and format its answers.
const systemPrompt = `You are a research assistant helping users explore their accumulated research. Answer questions using the provided research context. Cite sources inline as [Source: X] where X is the source identifier. Use markdown formatting: code blocks for code, tables for tabular data, and headers to structure longer answers. If the context does not contain the answer, say so rather than inventing one.`

// Response generation parameters.
const (
	responseTemp      = 0.7
	responseMaxTokens = 1000
)

// maxContextItems is how many combined retrieval items feed the prompt.
const maxContextItems = 5

// maxHistoryTurns is how many prior conversation turns feed the prompt.
const maxHistoryTurns = 5

// Responder turns a user message into a context-grounded reply. It is
// stateless and safe for concurrent use; persistence lives in [Service].
type Responder struct {
	retriever *rag.Retriever
	provider  llm.Provider
}

// NewResponder constructs a Responder.
func NewResponder(retriever *rag.Retriever, provider llm.Provider) *Responder {
	return &Responder{retriever: retriever, provider: provider}
}

// Reply is the outcome of processing one message. Exactly one of Content or
// Chunks is populated: Content for unary replies, Chunks for streaming ones.
type Reply struct {
	// Type is "complete" or "stream".
	Type string

	// Content is the full response text of a unary reply.
	Content string

	// Chunks is the finite, single-consumer chunk sequence of a streaming
	// reply. Sources are attached out-of-band below; senders forward them
	// once after the final chunk.
	Chunks <-chan llm.Chunk

	// Sources snapshots the retrieval sources used for this reply.
	Sources []rag.Source

	// Context is the full retrieval outcome, persisted alongside the
	// assistant message.
	Context *rag.Context
}

// Respond retrieves context for message and generates a unary reply.
func (r *Responder) Respond(ctx context.Context, message string, userID uuid.UUID, history []research.ChatMessage) (*Reply, error) {
	retrieved, err := r.retrieve(ctx, message, userID)
	if err != nil {
		return nil, err
	}

	content, err := r.provider.Generate(ctx, llm.GenerateRequest{
		Prompt:      BuildPrompt(message, retrieved, history),
		System:      systemPrompt,
		Temperature: responseTemp,
		MaxTokens:   responseMaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("chat: generate: %w", err)
	}

	return &Reply{
		Type:    "complete",
		Content: strings.TrimSpace(content),
		Sources: retrieved.Sources,
		Context: retrieved,
	}, nil
}

// RespondStream retrieves context for message and starts a streaming reply.
// The returned chunk channel is closed by the provider; cancelling ctx closes
// the underlying transport.
func (r *Responder) RespondStream(ctx context.Context, message string, userID uuid.UUID, history []research.ChatMessage) (*Reply, error) {
	retrieved, err := r.retrieve(ctx, message, userID)
	if err != nil {
		return nil, err
	}

	chunks, err := r.provider.StreamGenerate(ctx, llm.GenerateRequest{
		Prompt:      BuildPrompt(message, retrieved, history),
		System:      systemPrompt,
		Temperature: responseTemp,
		MaxTokens:   responseMaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("chat: stream: %w", err)
	}

	return &Reply{
		Type:    "stream",
		Chunks:  chunks,
		Sources: retrieved.Sources,
		Context: retrieved,
	}, nil
}

func (r *Responder) retrieve(ctx context.Context, message string, userID uuid.UUID) (*rag.Context, error) {
	retrieved, err := r.retriever.Retrieve(ctx, rag.Query{
		Text:      message,
		UserID:    userID,
		UseVector: true,
		UseGraph:  true,
	})
	if err != nil {
		return nil, fmt.Errorf("chat: retrieve context: %w", err)
	}
	return retrieved, nil
}

// BuildPrompt assembles the fixed-structure prompt: relevant context, then
// conversation history, then the current question, then the response cue.
func BuildPrompt(message string, retrieved *rag.Context, history []research.ChatMessage) string {
	var sb strings.Builder

	items := retrieved.Combined
	if len(items) > maxContextItems {
		items = items[:maxContextItems]
	}
	if len(items) > 0 {
		sb.WriteString("## Relevant Context:\n\n")
		for i, it := range items {
			fmt.Fprintf(&sb, "### Context %d:\n", i+1)
			fmt.Fprintf(&sb, "Type: %s\n", it.Type)
			fmt.Fprintf(&sb, "Content: %s\n", it.Content)
			if it.Source.Query != "" {
				fmt.Fprintf(&sb, "From research: %s\n", it.Source.Query)
			}
			sb.WriteString("\n")
		}
	}

	if len(history) > 0 {
		turns := history
		if len(turns) > maxHistoryTurns {
			turns = turns[len(turns)-maxHistoryTurns:]
		}
		sb.WriteString("## Conversation History:\n\n")
		for _, m := range turns {
			fmt.Fprintf(&sb, "%s: %s\n", titleRole(m.Role), m.Content)
		}
		sb.WriteString("\n")
	}

	fmt.Fprintf(&sb, "## Current Question:\n%s\n\n", message)
	sb.WriteString("## Your Response:")
	return sb.String()
}

func titleRole(role string) string {
	if role == "" {
		return "User"
	}
	return strings.ToUpper(role[:1]) + role[1:]
}
