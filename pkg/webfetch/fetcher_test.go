package webfetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

const testPage = `<html><head><title>Test Page</title></head><body>
<p>This paragraph carries enough words and, importantly, enough commas to register with the extractor, which wants substantial prose.</p>
<p>Another paragraph follows here, adding further mass so the page clears the minimum text threshold used by the primary tier of extraction.</p>
<p>A closing paragraph rounds the article out, ensuring the fetch tests exercise the same path that real pages do in production runs.</p>
</body></html>`

func TestFetchAndExtract(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); !strings.Contains(ua, "Research-Agent") {
			t.Errorf("User-Agent = %q, want the configured agent", ua)
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(testPage))
	}))
	defer srv.Close()

	f := New(Config{})
	c := f.FetchAndExtract(context.Background(), srv.URL)

	if c.Error != "" {
		t.Fatalf("Error = %q, want clean fetch", c.Error)
	}
	if c.Title != "Test Page" {
		t.Errorf("Title = %q, want %q", c.Title, "Test Page")
	}
	if c.Text == "" || c.WordCount == 0 {
		t.Errorf("Text/WordCount empty: %+v", c)
	}
}

func TestFetchRejectsUnsupportedContentType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF-1.4"))
	}))
	defer srv.Close()

	f := New(Config{})
	c := f.FetchAndExtract(context.Background(), srv.URL)

	if c.Method != MethodFailed {
		t.Errorf("Method = %q, want %q", c.Method, MethodFailed)
	}
	if !strings.Contains(c.Error, "content type") {
		t.Errorf("Error = %q, want content type rejection", c.Error)
	}
}

func TestFetchRejectsOversizedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(strings.Repeat("x", 2048)))
	}))
	defer srv.Close()

	f := New(Config{MaxContentSize: 1024})
	c := f.FetchAndExtract(context.Background(), srv.URL)

	if c.Method != MethodFailed {
		t.Errorf("Method = %q, want %q", c.Method, MethodFailed)
	}
	if !strings.Contains(c.Error, "too large") {
		t.Errorf("Error = %q, want size rejection", c.Error)
	}
}

func TestFetchRetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(testPage))
	}))
	defer srv.Close()

	f := New(Config{MaxRetries: 2})
	c := f.FetchAndExtract(context.Background(), srv.URL)

	if c.Error != "" {
		t.Fatalf("Error = %q, want success after retry", c.Error)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("server calls = %d, want 2 (one failure, one retry)", got)
	}
}

func TestFetchDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := New(Config{MaxRetries: 3})
	c := f.FetchAndExtract(context.Background(), srv.URL)

	if c.Method != MethodFailed {
		t.Errorf("Method = %q, want %q", c.Method, MethodFailed)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("server calls = %d, want exactly 1 for a 404", got)
	}
}

func TestBatchFetchTotalityAndOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/bad") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(testPage))
	}))
	defer srv.Close()

	urls := []string{
		srv.URL + "/a",
		srv.URL + "/bad",
		srv.URL + "/a", // duplicate, collapsed at entry
		srv.URL + "/b",
	}

	f := New(Config{MaxConcurrent: 2})
	results := f.BatchFetch(context.Background(), urls)

	if len(results) != 3 {
		t.Fatalf("got %d results, want 3 unique URLs", len(results))
	}
	if results[0].URL != srv.URL+"/a" || results[1].URL != srv.URL+"/bad" || results[2].URL != srv.URL+"/b" {
		t.Errorf("result order = [%s %s %s], want input order", results[0].URL, results[1].URL, results[2].URL)
	}

	bad := results[1]
	if bad.Method != MethodFailed || bad.Text != "" || bad.Error == "" {
		t.Errorf("failed entry = %+v, want method=failed, empty text, non-empty error", bad)
	}
}
