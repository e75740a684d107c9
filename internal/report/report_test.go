package report

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/recondite-labs/scholarpipe/internal/research"
	storemock "github.com/recondite-labs/scholarpipe/internal/store/mock"
)

func fixtureResult() (*research.Task, *research.Result) {
	task := &research.Task{
		ID:     uuid.New(),
		TaskID: "res_1234567890ab",
		Query:  "how does the Go scheduler work",
		Status: research.StatusCompleted,
	}
	result := &research.Result{
		TaskID: task.ID,
		Synthesis: research.Synthesis{
			ExecutiveSummary: "<p>The scheduler multiplexes goroutines onto OS threads.</p><p>Work stealing keeps processors busy.</p>",
			KeyFindings: []research.Finding{
				{Headline: "Run queues", Finding: "Each processor owns a run queue.", Category: research.CategoryPrimary, Confidence: 0.9},
				{Headline: "Stealing", Finding: "Idle processors steal work.", Category: research.CategoryPrimary, Confidence: 0.8},
			},
			Themes: []research.Theme{
				{Theme: "Concurrency", Description: "M:N multiplexing of goroutines."},
			},
			Contradictions: []research.Contradiction{
				{Point: "Preemption granularity", Viewpoints: []string{"Loop back-edges", "Function prologues only"}},
			},
			Recommendations: []string{"Profile before tuning GOMAXPROCS"},
			FurtherResearch: []string{"NUMA-aware scheduling"},
		},
		Sources: []research.SourceSummary{
			{URL: "https://example.com/sched", Title: "Scheduler design", Summary: "Design doc summary.", WordCount: 1200},
			{URL: "https://example.com/steal", Title: "", Summary: "Work stealing explained.", WordCount: 800},
		},
		SourcesUsed: 2,
	}
	return task, result
}

func TestMarkdownSections(t *testing.T) {
	t.Parallel()

	task, result := fixtureResult()
	md := Markdown(task, result)

	for _, section := range []string{
		"# Research Report: how does the Go scheduler work",
		"**Task ID**: res_1234567890ab",
		"**Sources Analyzed**: 2",
		"## Executive Summary",
		"## Key Findings",
		"(Confidence: 90%)",
		"## Detailed Analysis",
		"### Major Themes",
		"### Contradictions Found",
		"## Sources",
		"[Scheduler design](https://example.com/sched)",
		"[Untitled](https://example.com/steal)",
		"## Recommendations",
		"## Topics for Further Research",
	} {
		if !strings.Contains(md, section) {
			t.Errorf("markdown missing %q", section)
		}
	}
	if strings.Contains(md, "<p>") {
		t.Error("markdown carries paragraph markup")
	}
}

func TestHTMLRenders(t *testing.T) {
	t.Parallel()

	task, result := fixtureResult()
	out, err := HTML(task, result)
	if err != nil {
		t.Fatalf("HTML: %v", err)
	}
	for _, want := range []string{
		"<title>Research Report: how does the Go scheduler work</title>",
		"<p>The scheduler multiplexes goroutines onto OS threads.</p>",
		"Run queues",
		`href="https://example.com/sched"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("html missing %q", want)
		}
	}
}

func TestJSONRoundTrips(t *testing.T) {
	t.Parallel()

	task, result := fixtureResult()
	out, err := JSON(task, result)
	if err != nil {
		t.Fatalf("JSON: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal([]byte(out), &decoded); err != nil {
		t.Fatalf("report is not valid JSON: %v", err)
	}
	if decoded["task_id"] != "res_1234567890ab" {
		t.Errorf("task_id = %v", decoded["task_id"])
	}
	stats, ok := decoded["statistics"].(map[string]any)
	if !ok {
		t.Fatal("statistics section missing")
	}
	if stats["total_words_analyzed"].(float64) != 2000 {
		t.Errorf("total_words_analyzed = %v, want 2000", stats["total_words_analyzed"])
	}
}

func TestReportPersistsAndCaches(t *testing.T) {
	t.Parallel()

	st := storemock.NewStore()
	g := New(st)
	task, result := fixtureResult()
	ctx := context.Background()

	first, err := g.Report(ctx, task, result, FormatMarkdown)
	if err != nil {
		t.Fatalf("Report: %v", err)
	}
	if first.Type != research.ArtifactReportMarkdown || first.SizeBytes == 0 {
		t.Errorf("artifact = %+v", first)
	}

	second, err := g.Report(ctx, task, result, FormatMarkdown)
	if err != nil {
		t.Fatalf("Report (cached): %v", err)
	}
	if second.ID != first.ID {
		t.Error("second render did not reuse the stored artifact")
	}

	artifacts, err := st.Artifacts().ByTask(ctx, task.ID)
	if err != nil || len(artifacts) != 1 {
		t.Errorf("stored artifacts = %d (err %v), want 1", len(artifacts), err)
	}
}

func TestUnknownFormat(t *testing.T) {
	t.Parallel()

	task, result := fixtureResult()
	if _, err := Render(task, result, "pdf"); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("err = %v, want ErrUnknownFormat", err)
	}
}
