// Package ollama provides an llm.Provider backed by a local Ollama server.
//
// Ollama (https://ollama.com) hosts local large language models. This package
// speaks Ollama's native HTTP API directly: /api/generate for single-shot and
// streaming generation, /api/chat for multi-turn conversations, and /api/tags
// for health probing.
//
// Example usage:
//
//	p, err := ollama.New("", "qwen3:30b") // connects to http://localhost:11434
//	if err != nil {
//	    log.Fatal(err)
//	}
//	text, err := p.Generate(ctx, llm.GenerateRequest{Prompt: "Summarize …"})
//
// Only standard library packages are used; no additional dependencies are
// required beyond Go's net/http and encoding/json.
package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/recondite-labs/scholarpipe/pkg/llm"
)

// DefaultBaseURL is the default base URL for a locally running Ollama instance.
const DefaultBaseURL = "http://localhost:11434"

// Ensure Provider implements the llm.Provider interface at compile time.
var _ llm.Provider = (*Provider)(nil)

// Provider implements llm.Provider using a local Ollama server.
//
// A single pooled http.Client is shared across all calls; the provider is safe
// for concurrent use.
type Provider struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// config holds optional configuration collected from functional options.
type config struct {
	timeout time.Duration
}

// Option is a functional option for Provider.
type Option func(*config)

// WithTimeout sets a per-request HTTP timeout on the underlying HTTP client.
// A zero or negative value means no timeout (the default); callers are then
// expected to bound every call through the context deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// New constructs a new Ollama Provider.
//
// baseURL is the base URL of the Ollama server (e.g., "http://localhost:11434").
// If empty, DefaultBaseURL is used. A trailing slash is stripped automatically.
//
// model is the Ollama model name (e.g., "qwen3:30b"). It must not be empty.
func New(baseURL string, model string, opts ...Option) (*Provider, error) {
	if model == "" {
		return nil, fmt.Errorf("ollama: model must not be empty")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	httpClient := &http.Client{}
	if cfg.timeout > 0 {
		httpClient.Timeout = cfg.timeout
	}

	return &Provider{
		baseURL:    baseURL,
		model:      model,
		httpClient: httpClient,
	}, nil
}

// generateRequest is the JSON request body for Ollama's /api/generate endpoint.
type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	System  string          `json:"system,omitempty"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

// generateOptions carries sampling parameters understood by Ollama.
type generateOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

// generateResponse is one JSON frame from /api/generate. In non-streaming mode
// it is the whole body; in streaming mode frames arrive newline-delimited with
// incremental Response fields and Done set on the last frame.
type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

// chatRequest is the JSON request body for Ollama's /api/chat endpoint.
type chatRequest struct {
	Model    string          `json:"model"`
	Messages []llm.Message   `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  generateOptions `json:"options"`
}

// chatResponse is the JSON response body returned by /api/chat.
type chatResponse struct {
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done  bool   `json:"done"`
	Error string `json:"error,omitempty"`
}

// tagsResponse is the JSON response body returned by /api/tags.
type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// Generate implements llm.Provider by issuing a non-streaming /api/generate
// request and returning the full response text.
func (p *Provider) Generate(ctx context.Context, req llm.GenerateRequest) (string, error) {
	body := generateRequest{
		Model:  p.model,
		Prompt: req.Prompt,
		System: req.System,
		Stream: false,
		Options: generateOptions{
			Temperature: req.Temperature,
			NumPredict:  req.MaxTokens,
		},
	}

	resp, err := p.post(ctx, "/api/generate", body)
	if err != nil {
		return "", fmt.Errorf("ollama: generate: %w", err)
	}
	defer resp.Body.Close()

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("ollama: generate: decode response: %w", err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("ollama: generate: server error: %s", out.Error)
	}
	return out.Response, nil
}

// StreamGenerate implements llm.Provider by issuing a streaming /api/generate
// request. Frames arrive as newline-delimited JSON; each incremental Response
// field is forwarded as one llm.Chunk. The channel is closed when the final
// frame (Done) arrives, on a mid-stream error, or when ctx is cancelled.
func (p *Provider) StreamGenerate(ctx context.Context, req llm.GenerateRequest) (<-chan llm.Chunk, error) {
	body := generateRequest{
		Model:  p.model,
		Prompt: req.Prompt,
		System: req.System,
		Stream: true,
		Options: generateOptions{
			Temperature: req.Temperature,
			NumPredict:  req.MaxTokens,
		},
	}

	resp, err := p.post(ctx, "/api/generate", body)
	if err != nil {
		return nil, fmt.Errorf("ollama: stream generate: %w", err)
	}

	ch := make(chan llm.Chunk, 32)
	go func() {
		defer close(ch)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}

			var frame generateResponse
			if err := json.Unmarshal(line, &frame); err != nil {
				emit(ctx, ch, llm.Chunk{Err: fmt.Errorf("ollama: stream generate: decode frame: %w", err)})
				return
			}
			if frame.Error != "" {
				emit(ctx, ch, llm.Chunk{Err: fmt.Errorf("ollama: stream generate: server error: %s", frame.Error)})
				return
			}
			if frame.Response != "" {
				if !emit(ctx, ch, llm.Chunk{Text: frame.Response}) {
					return
				}
			}
			if frame.Done {
				return
			}
		}
		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			emit(ctx, ch, llm.Chunk{Err: fmt.Errorf("ollama: stream generate: read frames: %w", err)})
		}
	}()

	return ch, nil
}

// Chat implements llm.Provider by issuing a non-streaming /api/chat request
// and returning the assistant message content.
func (p *Provider) Chat(ctx context.Context, req llm.ChatRequest) (string, error) {
	body := chatRequest{
		Model:    p.model,
		Messages: req.Messages,
		Stream:   false,
		Options: generateOptions{
			Temperature: req.Temperature,
			NumPredict:  req.MaxTokens,
		},
	}

	resp, err := p.post(ctx, "/api/chat", body)
	if err != nil {
		return "", fmt.Errorf("ollama: chat: %w", err)
	}
	defer resp.Body.Close()

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("ollama: chat: decode response: %w", err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("ollama: chat: server error: %s", out.Error)
	}
	return out.Message.Content, nil
}

// Health implements llm.Provider. The server is healthy when /api/tags answers
// and the configured model appears in the catalogue. Model tags are compared
// with their ":tag" suffix stripped, so "qwen3:30b" matches a configured
// "qwen3".
func (p *Provider) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("ollama: health: build request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ollama: health: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama: health: unexpected status %d", resp.StatusCode)
	}

	var tags tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return fmt.Errorf("ollama: health: decode response: %w", err)
	}

	want := baseName(p.model)
	for _, m := range tags.Models {
		if m.Name == p.model || baseName(m.Name) == want {
			return nil
		}
	}
	return fmt.Errorf("ollama: health: model %q not in catalogue", p.model)
}

// Model implements llm.Provider.
func (p *Provider) Model() string {
	return p.model
}

// post sends a JSON POST to the given path and returns the raw response after
// checking the status code. The caller owns resp.Body.
func (p *Provider) post(ctx context.Context, path string, body any) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return resp, nil
}

// emit sends a chunk unless ctx is cancelled first. Reports whether the send
// succeeded.
func emit(ctx context.Context, ch chan<- llm.Chunk, c llm.Chunk) bool {
	select {
	case ch <- c:
		return true
	case <-ctx.Done():
		return false
	}
}

// baseName strips the ":tag" suffix from an Ollama model name.
func baseName(model string) string {
	if i := strings.IndexByte(model, ':'); i >= 0 {
		return model[:i]
	}
	return model
}
