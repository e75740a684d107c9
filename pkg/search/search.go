// Package search provides the federated web-search client for the research
// pipeline.
//
// The primary transport talks to an MCP search server over a child-process
// stdio pipe; when that degrades the client transparently falls back to a
// direct HTTP query against the underlying SearXNG instance. Search never
// returns a Go error for upstream failures: the [Response] carries an Error
// string and an empty result list, and callers must tolerate both.
package search

import "strings"

// Result is one normalized search hit.
type Result struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Snippet string  `json:"snippet"`
	Engine  string  `json:"engine"`
	Score   float64 `json:"score,omitempty"`
}

// Response is the outcome of a single search. A failed search has an empty
// Results slice and a non-empty Error; it is still a valid value.
type Response struct {
	Query        string   `json:"query"`
	Results      []Result `json:"results"`
	ResponseTime float64  `json:"response_time"`
	Error        string   `json:"error,omitempty"`
}

// Request carries the parameters of one search call.
type Request struct {
	Query    string
	Category string // e.g. "general", "news", "science"; empty means general
	Limit    int
	Language string // e.g. "en"; empty means engine default
	// TimeRange restricts results by recency ("day", "week", "month", "year").
	TimeRange string
}

// ExtractURLs collects the non-empty URLs of results in order, skipping
// duplicates.
func ExtractURLs(results []Result) []string {
	seen := make(map[string]struct{}, len(results))
	urls := make([]string, 0, len(results))
	for _, r := range results {
		u := strings.TrimSpace(r.URL)
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		urls = append(urls, u)
	}
	return urls
}

// Format normalizes raw results for downstream consumption: fields are
// whitespace-trimmed, entries without a URL are dropped, and a missing engine
// is labelled "unknown".
func Format(results []Result) []Result {
	out := make([]Result, 0, len(results))
	for _, r := range results {
		r.Title = strings.TrimSpace(r.Title)
		r.URL = strings.TrimSpace(r.URL)
		r.Snippet = strings.TrimSpace(r.Snippet)
		r.Engine = strings.TrimSpace(r.Engine)
		if r.URL == "" {
			continue
		}
		if r.Engine == "" {
			r.Engine = "unknown"
		}
		out = append(out, r)
	}
	return out
}
