// Package ollama provides an embeddings provider backed by a local Ollama server.
//
// Ollama hosts local embedding models such as all-minilm, nomic-embed-text,
// and mxbai-embed-large. This package uses Ollama's native /api/embed endpoint
// and post-normalizes every vector so the unit-norm contract of
// [embed.Provider] holds regardless of the model.
//
// Example usage:
//
//	p, err := ollama.New("", "all-minilm") // connects to http://localhost:11434
//	if err != nil {
//	    log.Fatal(err)
//	}
//	vec, err := p.Embed(ctx, "benefits of meditation")
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/recondite-labs/scholarpipe/pkg/embed"
)

// DefaultBaseURL is the default base URL for a locally running Ollama instance.
const DefaultBaseURL = "http://localhost:11434"

// Ensure Provider implements the embed.Provider interface at compile time.
var _ embed.Provider = (*Provider)(nil)

// Provider implements embed.Provider using a local Ollama server.
//
// Inputs are truncated at [embed.MaxInputChars] and outputs are L2-normalized
// before being returned. Provider is safe for concurrent use.
type Provider struct {
	baseURL    string
	model      string
	httpClient *http.Client
	dimensions int
}

// config holds optional configuration collected from functional options.
type config struct {
	timeout    time.Duration
	dimensions int
}

// Option is a functional option for Provider.
type Option func(*config)

// WithTimeout sets a per-request HTTP timeout on the underlying HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithDimensions pre-sets the embedding dimension for models not in the
// built-in table.
func WithDimensions(dims int) Option {
	return func(c *config) {
		c.dimensions = dims
	}
}

// New constructs a new Ollama embeddings Provider.
//
// baseURL defaults to DefaultBaseURL when empty; a trailing slash is stripped.
// model must not be empty.
func New(baseURL string, model string, opts ...Option) (*Provider, error) {
	if model == "" {
		return nil, fmt.Errorf("ollama embed: model must not be empty")
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

	dims := cfg.dimensions
	if dims == 0 {
		dims = knownDimensions(model)
	}

	return &Provider{
		baseURL:    baseURL,
		model:      model,
		httpClient: httpClient,
		dimensions: dims,
	}, nil
}

// embedRequest is the JSON request body sent to Ollama's /api/embed endpoint.
type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// embedResponse is the JSON response body returned by Ollama's /api/embed endpoint.
type embedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed implements embed.Provider.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.callEmbed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("ollama embed: embed: %w", err)
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("ollama embed: embed: empty response")
	}
	return vecs[0], nil
}

// EmbedBatch implements embed.Provider. All texts are embedded in a single
// /api/embed request; result[i] corresponds to texts[i].
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vecs, err := p.callEmbed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("ollama embed: embed batch: %w", err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("ollama embed: embed batch: expected %d embeddings, got %d", len(texts), len(vecs))
	}
	return vecs, nil
}

// Dimensions implements embed.Provider. Unknown models without an explicit
// WithDimensions fall back to [embed.DefaultDimensions].
func (p *Provider) Dimensions() int {
	if p.dimensions != 0 {
		return p.dimensions
	}
	return embed.DefaultDimensions
}

// ModelID implements embed.Provider.
func (p *Provider) ModelID() string {
	return p.model
}

// callEmbed posts the truncated texts to /api/embed and normalizes the result.
func (p *Provider) callEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	input := make([]string, len(texts))
	for i, t := range texts {
		input[i] = embed.Truncate(t)
	}

	body, err := json.Marshal(embedRequest{Model: p.model, Input: input})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var result embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(result.Embeddings) == 0 {
		return nil, fmt.Errorf("empty embeddings in response")
	}

	for i := range result.Embeddings {
		embed.Normalize(result.Embeddings[i])
	}
	return result.Embeddings, nil
}

// knownDimensions returns the output dimension for recognised Ollama embedding
// model names. Returns 0 for unknown models.
func knownDimensions(model string) int {
	lower := strings.ToLower(model)
	switch {
	case strings.Contains(lower, "all-minilm"):
		return 384
	case strings.Contains(lower, "nomic-embed-text"):
		return 768
	case strings.Contains(lower, "mxbai-embed-large"):
		return 1024
	default:
		return 0
	}
}
