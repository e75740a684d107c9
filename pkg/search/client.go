package search

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/recondite-labs/scholarpipe/internal/observe"
	"github.com/recondite-labs/scholarpipe/internal/resilience"
)

// DefaultLimit is the result cap applied when a request carries none.
const DefaultLimit = 10

// defaultPace bounds batch queries to one per second.
const defaultPace = rate.Limit(1)

// healthTimeout bounds the initialize round-trip of Health.
const healthTimeout = 5 * time.Second

// backend is one transport capable of executing a search.
type backend interface {
	name() string
	search(ctx context.Context, req Request) ([]Result, error)
	health(ctx context.Context) error
}

// Config configures a [Client].
type Config struct {
	// MCPCommand launches the MCP search server; when empty the client runs
	// direct-only.
	MCPCommand string
	MCPArgs    []string
	MCPEnv     map[string]string

	// SearxURL is the base URL of the SearXNG instance used by the direct
	// fallback path.
	SearxURL string

	// Timeout bounds each individual search call. Zero means 30 seconds.
	Timeout time.Duration

	// Pace is the batch query rate. Zero means one query per second.
	Pace rate.Limit
}

// Client is the search facade used by the orchestrator. It routes each call
// through a fallback group: the MCP transport first, then direct HTTP, with a
// circuit breaker per transport so a repeatedly crashing MCP server
// short-circuits to the direct path.
//
// Client is safe for concurrent use.
type Client struct {
	group   *resilience.FallbackGroup[backend]
	limiter *rate.Limiter
	timeout time.Duration
}

// New constructs a Client from cfg. SearxURL must be set; MCPCommand is
// optional.
func New(cfg Config) (*Client, error) {
	if cfg.SearxURL == "" {
		return nil, fmt.Errorf("search: SearxURL must not be empty")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	direct := &directBackend{
		baseURL:    cfg.SearxURL,
		httpClient: &http.Client{Timeout: timeout},
	}

	fbCfg := resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			MaxFailures:  3,
			ResetTimeout: 30 * time.Second,
		},
	}

	var group *resilience.FallbackGroup[backend]
	if cfg.MCPCommand != "" {
		primary := &mcpBackend{command: cfg.MCPCommand, args: cfg.MCPArgs, env: cfg.MCPEnv}
		group = resilience.NewFallbackGroup[backend](primary, primary.name(), fbCfg)
		group.AddFallback(direct.name(), direct)
	} else {
		group = resilience.NewFallbackGroup[backend](direct, direct.name(), fbCfg)
	}

	pace := cfg.Pace
	if pace <= 0 {
		pace = defaultPace
	}

	return &Client{
		group:   group,
		limiter: rate.NewLimiter(pace, 1),
		timeout: timeout,
	}, nil
}

// Search executes one query. Upstream failures never surface as a Go error:
// the returned Response carries Error and an empty result list instead.
func (c *Client) Search(ctx context.Context, req Request) Response {
	if req.Limit <= 0 {
		req.Limit = DefaultLimit
	}

	start := time.Now()
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	results, err := resilience.ExecuteWithResult(c.group, func(b backend) ([]Result, error) {
		return b.search(callCtx, req)
	})

	observe.DefaultMetrics().RecordSearch(ctx, time.Since(start))

	resp := Response{
		Query:        req.Query,
		Results:      results,
		ResponseTime: time.Since(start).Seconds(),
	}
	if err != nil {
		slog.Warn("search failed", "query", req.Query, "error", err)
		resp.Results = []Result{}
		resp.Error = err.Error()
	}
	return resp
}

// BatchSearch runs queries in order with pacing between them and returns a
// query-keyed result map. Individual failures produce empty entries; the only
// error returned is context cancellation while waiting for the limiter.
func (c *Client) BatchSearch(ctx context.Context, queries []string, limitPerQuery int) (map[string][]Result, error) {
	out := make(map[string][]Result, len(queries))
	for _, q := range queries {
		if err := c.limiter.Wait(ctx); err != nil {
			return out, fmt.Errorf("search: batch pacing: %w", err)
		}
		resp := c.Search(ctx, Request{Query: q, Limit: limitPerQuery})
		out[q] = resp.Results
	}
	return out, nil
}

// Health verifies the search path end to end: the MCP initialize round-trip
// when the MCP transport is configured, otherwise a probe of the SearXNG
// instance. Bounded at five seconds.
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()
	return c.group.Execute(func(b backend) error {
		return b.health(ctx)
	})
}
