package webfetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"mime"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/recondite-labs/scholarpipe/internal/observe"
)

// Defaults applied by [New] when the corresponding Config field is zero.
const (
	DefaultMaxConcurrent  = 5
	DefaultTimeout        = 10 * time.Second
	DefaultMaxContentSize = 1 << 20 // 1 MiB
	DefaultUserAgent      = "Mozilla/5.0 (Research-Agent/1.0)"
	DefaultMaxRetries     = 3
	DefaultBackoffFactor  = 2.0
)

// baseBackoff is the first retry delay; successive delays multiply by the
// backoff factor.
const baseBackoff = 500 * time.Millisecond

// allowedContentTypes is the media-type allowlist for fetched pages.
var allowedContentTypes = map[string]struct{}{
	"text/html":             {},
	"text/plain":            {},
	"application/xhtml+xml": {},
}

// Config configures a [Fetcher].
type Config struct {
	// MaxConcurrent caps in-flight requests across all batch calls.
	MaxConcurrent int

	// Timeout bounds each HTTP request including retries' individual attempts.
	Timeout time.Duration

	// MaxContentSize rejects pages whose declared or actual body size exceeds
	// it, in bytes.
	MaxContentSize int64

	// UserAgent is sent on every request.
	UserAgent string

	// MaxRetries is the number of additional attempts after a transient
	// failure (timeout, connection reset, 5xx).
	MaxRetries int

	// BackoffFactor multiplies the delay between successive retries.
	BackoffFactor float64
}

// Fetcher downloads pages and extracts their content. One Fetcher holds one
// pooled [http.Client] (redirects followed, no cookie jar) and one semaphore;
// it is safe for concurrent use.
type Fetcher struct {
	client *http.Client
	sem    *semaphore.Weighted
	cfg    Config
}

// New constructs a Fetcher, filling zero Config fields with package defaults.
func New(cfg Config) *Fetcher {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxContentSize <= 0 {
		cfg.MaxContentSize = DefaultMaxContentSize
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	} else if cfg.MaxRetries == 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.BackoffFactor <= 0 {
		cfg.BackoffFactor = DefaultBackoffFactor
	}

	return &Fetcher{
		client: &http.Client{Timeout: cfg.Timeout},
		sem:    semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		cfg:    cfg,
	}
}

// FetchAndExtract downloads url and extracts its content. Failures are
// reported in the returned Content, never as a Go error.
func (f *Fetcher) FetchAndExtract(ctx context.Context, url string) Content {
	start := time.Now()
	html, err := f.fetch(ctx, url)
	if err != nil {
		observe.DefaultMetrics().RecordFetch(ctx, MethodFailed, "error", time.Since(start))
		slog.Warn("fetch failed", "url", url, "error", err)
		return Content{URL: url, Method: MethodFailed, Error: err.Error()}
	}

	content := Extract(html, url)
	observe.DefaultMetrics().RecordFetch(ctx, content.Method, "ok", time.Since(start))
	slog.Debug("content extracted",
		"url", url, "method", content.Method, "word_count", content.WordCount)
	return content
}

// BatchFetch fetches urls concurrently under the semaphore and returns one
// Content per unique input URL, in input order with duplicates collapsed at
// entry. The batch never fails: per-URL errors materialize as failed entries.
func (f *Fetcher) BatchFetch(ctx context.Context, urls []string) []Content {
	seen := make(map[string]struct{}, len(urls))
	unique := make([]string, 0, len(urls))
	for _, u := range urls {
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		unique = append(unique, u)
	}

	results := make([]Content, len(unique))
	var wg sync.WaitGroup
	for i, u := range unique {
		wg.Add(1)
		go func(i int, u string) {
			defer wg.Done()
			results[i] = f.FetchAndExtract(ctx, u)
		}(i, u)
	}
	wg.Wait()

	successful := 0
	for _, c := range results {
		if c.Text != "" {
			successful++
		}
	}
	slog.Info("batch fetch complete",
		"total", len(unique), "successful", successful, "failed", len(unique)-successful)
	return results
}

// errPermanent marks failures that retrying cannot fix.
type errPermanent struct{ err error }

func (e errPermanent) Error() string { return e.err.Error() }
func (e errPermanent) Unwrap() error { return e.err }

// fetch downloads url with retries on transient errors, honouring the
// content-type and size guards.
func (f *Fetcher) fetch(ctx context.Context, url string) (string, error) {
	if err := f.sem.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("webfetch: acquire slot: %w", err)
	}
	defer f.sem.Release(1)

	var lastErr error
	for attempt := 0; attempt <= f.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(float64(baseBackoff) * math.Pow(f.cfg.BackoffFactor, float64(attempt-1)))
			select {
			case <-ctx.Done():
				return "", fmt.Errorf("webfetch: %w", ctx.Err())
			case <-time.After(delay):
			}
		}

		body, err := f.attempt(ctx, url)
		if err == nil {
			return body, nil
		}
		lastErr = err

		var perm errPermanent
		if errors.As(err, &perm) || ctx.Err() != nil {
			break
		}
	}
	return "", fmt.Errorf("webfetch: fetch %s: %w", url, lastErr)
}

// attempt performs a single request. Permanent failures (4xx, unsupported
// content type, oversized body) are wrapped in errPermanent.
func (f *Fetcher) attempt(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", errPermanent{fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("http: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return "", errPermanent{fmt.Errorf("status %d", resp.StatusCode)}
	}

	mediaType := resp.Header.Get("Content-Type")
	if mt, _, err := mime.ParseMediaType(mediaType); err == nil {
		mediaType = mt
	}
	if _, ok := allowedContentTypes[strings.ToLower(mediaType)]; !ok {
		return "", errPermanent{fmt.Errorf("unsupported content type %q", mediaType)}
	}

	if resp.ContentLength > f.cfg.MaxContentSize {
		return "", errPermanent{fmt.Errorf("content too large: %d bytes", resp.ContentLength)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxContentSize+1))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > f.cfg.MaxContentSize {
		return "", errPermanent{fmt.Errorf("content too large: exceeds %d bytes", f.cfg.MaxContentSize)}
	}
	return string(body), nil
}
