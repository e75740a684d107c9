package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// directBackend queries the SearXNG instance over plain HTTP. It is the
// fallback path when the MCP server is unavailable, and produces the same
// normalized shape.
type directBackend struct {
	baseURL    string
	httpClient *http.Client
}

var _ backend = (*directBackend)(nil)

func (b *directBackend) name() string { return "direct" }

// searxResult is one entry of SearXNG's JSON response. The snippet lives in
// the "content" field.
type searxResult struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Engine  string  `json:"engine"`
	Score   float64 `json:"score"`
}

type searxResponse struct {
	Results []searxResult `json:"results"`
}

func (b *directBackend) search(ctx context.Context, req Request) ([]Result, error) {
	q := url.Values{}
	q.Set("q", req.Query)
	q.Set("format", "json")
	q.Set("safesearch", "0")
	if categoryOrDefault(req.Category) == "general" {
		q.Set("category_general", "1")
	} else {
		q.Set("category_general", "0")
	}
	if req.Limit > 0 {
		q.Set("limit", strconv.Itoa(req.Limit))
	}
	if req.Language != "" {
		q.Set("language", req.Language)
	}
	if req.TimeRange != "" {
		q.Set("time_range", req.TimeRange)
	}

	endpoint := strings.TrimRight(b.baseURL, "/") + "/search?" + q.Encode()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("search: direct request: %w", err)
	}

	resp, err := b.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("search: direct http: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search: direct http: unexpected status %d", resp.StatusCode)
	}

	var payload searxResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("search: direct response parse: %w", err)
	}

	results := make([]Result, 0, len(payload.Results))
	for _, r := range payload.Results {
		results = append(results, Result{
			Title:   r.Title,
			URL:     r.URL,
			Snippet: r.Content,
			Engine:  r.Engine,
			Score:   r.Score,
		})
	}
	results = Format(results)
	if req.Limit > 0 && len(results) > req.Limit {
		results = results[:req.Limit]
	}
	return results, nil
}

// health probes the SearXNG root.
func (b *directBackend) health(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL, nil)
	if err != nil {
		return fmt.Errorf("search: direct health: %w", err)
	}
	resp, err := b.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("search: direct health: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("search: direct health: status %d", resp.StatusCode)
	}
	return nil
}
