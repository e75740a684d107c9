package research_test

import (
	"strings"
	"testing"
	"time"

	"github.com/recondite-labs/scholarpipe/internal/research"
)

func TestStatusIsTerminal(t *testing.T) {
	t.Parallel()

	terminal := map[research.Status]bool{
		research.StatusPending:      false,
		research.StatusAnalyzing:    false,
		research.StatusSearching:    false,
		research.StatusFetching:     false,
		research.StatusSynthesizing: false,
		research.StatusGenerating:   false,
		research.StatusCompleted:    true,
		research.StatusFailed:       true,
		research.StatusCancelled:    true,
	}
	for status, want := range terminal {
		if !status.IsValid() {
			t.Errorf("%s: IsValid() = false", status)
		}
		if got := status.IsTerminal(); got != want {
			t.Errorf("%s: IsTerminal() = %v, want %v", status, got, want)
		}
	}
	if research.Status("paused").IsValid() {
		t.Error("unknown status reported valid")
	}
}

func TestSettingsPerDepth(t *testing.T) {
	t.Parallel()

	tests := []struct {
		depth       research.Depth
		maxSearches int
		maxSources  int
		detail      string
	}{
		{research.DepthQuick, 1, 5, "brief"},
		{research.DepthStandard, 3, 15, "standard"},
		{research.DepthComprehensive, 5, 30, "detailed"},
	}
	for _, tt := range tests {
		cfg := research.Settings(tt.depth)
		if cfg.MaxSearches != tt.maxSearches {
			t.Errorf("%s: MaxSearches = %d, want %d", tt.depth, cfg.MaxSearches, tt.maxSearches)
		}
		if cfg.MaxSources != tt.maxSources {
			t.Errorf("%s: MaxSources = %d, want %d", tt.depth, cfg.MaxSources, tt.maxSources)
		}
		if cfg.SynthesisDetail != tt.detail {
			t.Errorf("%s: SynthesisDetail = %q, want %q", tt.depth, cfg.SynthesisDetail, tt.detail)
		}
		if got, want := cfg.DetailTimeout(), cfg.SynthesisTimeout/2; got != want {
			t.Errorf("%s: DetailTimeout() = %v, want %v", tt.depth, got, want)
		}
	}
}

func TestSettingsUnknownDepthFallsBack(t *testing.T) {
	t.Parallel()

	got := research.Settings(research.Depth("exhaustive"))
	want := research.Settings(research.DepthStandard)
	if got != want {
		t.Errorf("Settings(unknown) = %+v, want standard preset %+v", got, want)
	}
}

func TestNewTaskIDFormat(t *testing.T) {
	t.Parallel()

	seen := make(map[string]bool)
	for range 100 {
		id := research.NewTaskID()
		rest, ok := strings.CutPrefix(id, "res_")
		if !ok {
			t.Fatalf("NewTaskID() = %q, want res_ prefix", id)
		}
		if len(rest) != 12 {
			t.Fatalf("NewTaskID() = %q, want 12 hex chars after the prefix", id)
		}
		for _, c := range rest {
			if !strings.ContainsRune("0123456789abcdef", c) {
				t.Fatalf("NewTaskID() = %q: %q is not lowercase hex", id, c)
			}
		}
		if seen[id] {
			t.Fatalf("NewTaskID() repeated %q", id)
		}
		seen[id] = true
	}
}

func TestSessionExpired(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	sess := research.UserSession{ExpiresAt: now.Add(time.Minute)}
	if sess.Expired(now) {
		t.Error("session expired before ExpiresAt")
	}
	if !sess.Expired(now.Add(2 * time.Minute)) {
		t.Error("session not expired after ExpiresAt")
	}
}
