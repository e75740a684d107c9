// Package llm defines the Provider interface for text-generation backends.
//
// A provider wraps a remote or local model API (e.g., a local Ollama instance,
// OpenAI, or Anthropic) and exposes a uniform surface for single-shot
// generation, streaming generation, and multi-turn chat, without coupling the
// research pipeline to any specific SDK.
//
// Implementors must be safe for concurrent use. Channels returned by
// StreamGenerate must be closed by the implementation when the stream ends or
// when the supplied context is cancelled.
package llm

import "context"

// Message is a single turn in a chat conversation.
type Message struct {
	// Role is one of "system", "user", or "assistant".
	Role string

	// Content is the text content of the message.
	Content string
}

// GenerateRequest carries everything a provider needs for a single-shot
// completion. Prompt must be non-empty; the rest is optional.
type GenerateRequest struct {
	// Prompt is the user-visible instruction driving the response.
	Prompt string

	// System is an optional high-priority instruction injected ahead of the
	// prompt. Providers without a dedicated system slot prepend it as a
	// "system"-role message.
	System string

	// Temperature controls output randomness in [0.0, 2.0]. Zero means use
	// the provider default.
	Temperature float64

	// MaxTokens caps the number of tokens the model may generate. Zero means
	// use the provider default.
	MaxTokens int
}

// ChatRequest carries a multi-turn conversation for completion.
type ChatRequest struct {
	// Messages is the ordered conversation history. The last message is
	// typically from the "user" role and drives the response.
	Messages []Message

	// Temperature controls output randomness in [0.0, 2.0].
	Temperature float64

	// MaxTokens caps the number of tokens the model may generate.
	MaxTokens int
}

// Chunk is an increment of a streaming generation.
//
// A stream is a finite sequence of chunks: zero or more text chunks followed
// by channel close. Errors that occur after the stream has started are
// delivered as a final chunk with Err set; the channel is closed immediately
// after.
type Chunk struct {
	// Text is the incremental text content. Empty on a terminal error chunk.
	Text string

	// Err is non-nil only on the terminal chunk of a failed stream.
	Err error
}

// Provider is the abstraction over any text-generation backend.
//
// Implementations must be safe for concurrent use from multiple goroutines
// and must propagate context cancellation promptly: when ctx is cancelled a
// method must return (or close its channel) as quickly as possible.
type Provider interface {
	// Generate sends a single-shot request and waits for the full response
	// text. Returns an error if the request fails or ctx is cancelled first.
	Generate(ctx context.Context, req GenerateRequest) (string, error)

	// StreamGenerate sends req and returns a read-only channel emitting
	// chunks as they arrive. The channel is closed by the implementation when
	// generation finishes, fails, or ctx is cancelled.
	//
	// Callers must drain the channel to avoid goroutine leaks. The initial
	// error return is non-nil only for failures that prevent the stream from
	// starting (bad request, unreachable backend). The returned channel is
	// never nil when error is nil. Streams are single-consumer and not
	// restartable.
	StreamGenerate(ctx context.Context, req GenerateRequest) (<-chan Chunk, error)

	// Chat sends a multi-turn conversation and waits for the full response
	// text of the next assistant turn.
	Chat(ctx context.Context, req ChatRequest) (string, error)

	// Health reports whether the backend is reachable and serving the
	// configured model. Used by readiness probes.
	Health(ctx context.Context) error

	// Model returns the configured model identifier.
	Model() string
}
