package search

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// searchToolName is the tool the MCP search server exposes.
const searchToolName = "search_web"

// mcpBackend issues each search through a fresh MCP server child process over
// stdio. The session is closed after every call; the server is expected to be
// cheap to start.
type mcpBackend struct {
	command string
	args    []string
	env     map[string]string
}

var _ backend = (*mcpBackend)(nil)

func (b *mcpBackend) name() string { return "mcp" }

// toolPayload is the normalized JSON shape inside the tool result's text
// content.
type toolPayload struct {
	Results []Result `json:"results"`
	Error   string   `json:"error,omitempty"`
}

func (b *mcpBackend) search(ctx context.Context, req Request) ([]Result, error) {
	client := mcpsdk.NewClient(
		&mcpsdk.Implementation{Name: "research-agent", Version: "1.0.0"},
		nil,
	)

	cmd := exec.CommandContext(ctx, b.command, b.args...)
	cmd.Env = os.Environ()
	for k, v := range b.env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	session, err := client.Connect(ctx, &mcpsdk.CommandTransport{Command: cmd}, nil)
	if err != nil {
		return nil, fmt.Errorf("search: mcp connect: %w", err)
	}
	defer session.Close()

	args := map[string]any{
		"query":    req.Query,
		"category": categoryOrDefault(req.Category),
		"limit":    req.Limit,
		"language": req.Language,
	}
	if req.TimeRange != "" {
		args["time_range"] = req.TimeRange
	}

	callResult, err := session.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      searchToolName,
		Arguments: args,
	})
	if err != nil {
		return nil, fmt.Errorf("search: mcp call: %w", err)
	}
	if callResult.IsError {
		return nil, fmt.Errorf("search: mcp tool error: %s", firstText(callResult))
	}

	text := firstText(callResult)
	if text == "" {
		return nil, fmt.Errorf("search: mcp call returned no text content")
	}

	var payload toolPayload
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		return nil, fmt.Errorf("search: mcp payload parse: %w", err)
	}
	if payload.Error != "" {
		return nil, fmt.Errorf("search: mcp upstream: %s", payload.Error)
	}

	results := Format(payload.Results)
	if req.Limit > 0 && len(results) > req.Limit {
		results = results[:req.Limit]
	}
	return results, nil
}

// health connects, completes the initialize round-trip, and disconnects.
func (b *mcpBackend) health(ctx context.Context) error {
	client := mcpsdk.NewClient(
		&mcpsdk.Implementation{Name: "research-agent", Version: "1.0.0"},
		nil,
	)
	cmd := exec.CommandContext(ctx, b.command, b.args...)
	cmd.Env = os.Environ()
	for k, v := range b.env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	session, err := client.Connect(ctx, &mcpsdk.CommandTransport{Command: cmd}, nil)
	if err != nil {
		return fmt.Errorf("search: mcp health: %w", err)
	}
	return session.Close()
}

// firstText concatenates the text content blocks of a tool result.
func firstText(res *mcpsdk.CallToolResult) string {
	var sb strings.Builder
	for _, c := range res.Content {
		if tc, ok := c.(*mcpsdk.TextContent); ok {
			sb.WriteString(tc.Text)
		}
	}
	return sb.String()
}

func categoryOrDefault(category string) string {
	if category == "" {
		return "general"
	}
	return category
}
