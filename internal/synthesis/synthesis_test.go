package synthesis

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/recondite-labs/scholarpipe/pkg/llm/mock"
)

func TestAnalyzeQueryParsesResponse(t *testing.T) {
	p := &mock.Provider{GenerateResponse: `{
		"intent": "understand meditation benefits",
		"key_topics": ["meditation", "health"],
		"entities": {"technologies": []},
		"search_strategies": ["benefits of meditation", "meditation research 2025"],
		"research_depth": "standard",
		"time_sensitivity": "recent"
	}`}
	e := New(p)

	a, err := e.AnalyzeQuery(context.Background(), "benefits of meditation")
	if err != nil {
		t.Fatalf("AnalyzeQuery returned error: %v", err)
	}
	if a.Intent != "understand meditation benefits" {
		t.Errorf("Intent = %q", a.Intent)
	}
	if len(a.SearchStrategies) != 2 {
		t.Errorf("SearchStrategies = %v, want 2 entries", a.SearchStrategies)
	}
}

func TestAnalyzeQueryRetriesWithRisingTemperature(t *testing.T) {
	p := &mock.Provider{GenerateResponses: []mock.GenerateResult{
		{Text: "not json at all"},
		{Text: "still broken {"},
		{Text: `{"intent":"x","search_strategies":["a"]}`},
	}}
	e := New(p)

	a, err := e.AnalyzeQuery(context.Background(), "q")
	if err != nil {
		t.Fatalf("AnalyzeQuery returned error: %v", err)
	}
	if a.Intent != "x" {
		t.Errorf("Intent = %q, want the third attempt's parse", a.Intent)
	}
	if len(p.GenerateCalls) != 3 {
		t.Fatalf("Generate called %d times, want 3", len(p.GenerateCalls))
	}

	t0 := p.GenerateCalls[0].Req.Temperature
	t1 := p.GenerateCalls[1].Req.Temperature
	t2 := p.GenerateCalls[2].Req.Temperature
	if !(t0 < t1 && t1 < t2) {
		t.Errorf("temperatures = %v %v %v, want strictly rising", t0, t1, t2)
	}
	// Retries use the simplified prompt.
	if p.GenerateCalls[1].Req.Prompt == p.GenerateCalls[0].Req.Prompt {
		t.Error("second attempt reused the full prompt, want simplified")
	}
}

func TestAnalyzeQueryFallsBackWhenUnparseable(t *testing.T) {
	p := &mock.Provider{GenerateResponse: "never json"}
	e := New(p)

	a, err := e.AnalyzeQuery(context.Background(), "benefits of meditation")
	if err != nil {
		t.Fatalf("AnalyzeQuery returned error: %v", err)
	}
	if len(p.GenerateCalls) != 3 {
		t.Errorf("Generate called %d times, want all 3 attempts", len(p.GenerateCalls))
	}
	if a.SearchStrategies[0] != "benefits of meditation" {
		t.Errorf("fallback SearchStrategies = %v, want raw query first", a.SearchStrategies)
	}
}

func TestAnalyzeQueryPropagatesTransportErrors(t *testing.T) {
	p := &mock.Provider{GenerateErr: errors.New("connection refused")}
	e := New(p)

	if _, err := e.AnalyzeQuery(context.Background(), "q"); err == nil {
		t.Error("AnalyzeQuery returned nil error on transport failure")
	}
	if len(p.GenerateCalls) != 1 {
		t.Errorf("Generate called %d times, want no retries on transport error", len(p.GenerateCalls))
	}
}

func TestSummarizeContentTruncatesInput(t *testing.T) {
	p := &mock.Provider{GenerateResponse: "  a summary  "}
	e := New(p)

	long := strings.Repeat("word ", 3000) // 15000 chars
	got, err := e.SummarizeContent(context.Background(), long, 300, "focus topic")
	if err != nil {
		t.Fatalf("SummarizeContent returned error: %v", err)
	}
	if got != "a summary" {
		t.Errorf("summary = %q, want trimmed response", got)
	}

	prompt := p.GenerateCalls[0].Req.Prompt
	if !strings.Contains(prompt, "approximately 300 words") {
		t.Errorf("prompt missing length bound:\n%s", prompt)
	}
	if !strings.Contains(prompt, "Focus particularly on: focus topic") {
		t.Error("prompt missing focus instruction")
	}
	if len(prompt) > maxContentChars+1000 {
		t.Errorf("prompt length = %d, want content truncated to %d chars", len(prompt), maxContentChars)
	}
}

func TestSynthesizeResearchFlattensStructuredSummary(t *testing.T) {
	p := &mock.Provider{GenerateResponse: `{
		"executive_summary": {
			"lead_paragraph": "Meditation research is maturing.",
			"body_paragraphs": ["Focus improves measurably.", "Benefits appear within weeks."],
			"pull_quote": "Consistency beats duration."
		},
		"key_findings": [
			{"headline": "H1", "finding": "F1", "category": "primary", "impact_score": 0.9, "confidence": 0.9, "supporting_sources": [1]}
		],
		"detailed_analysis": {"sections": [{"title": "Overview", "content": "Text", "sources": [1]}]}
	}`}
	e := New(p)

	s, err := e.SynthesizeResearch(context.Background(), sampleSummaries(), "benefits of meditation", "standard")
	if err != nil {
		t.Fatalf("SynthesizeResearch returned error: %v", err)
	}

	want := "Meditation research is maturing.\n\nFocus improves measurably.\n\nBenefits appear within weeks."
	if s.ExecutiveSummary != want {
		t.Errorf("ExecutiveSummary = %q, want flattened paragraphs", s.ExecutiveSummary)
	}
	if s.PullQuote != "Consistency beats duration." {
		t.Errorf("PullQuote = %q, want the nested pull quote", s.PullQuote)
	}
	if len(s.KeyFindings) != 1 || s.KeyFindings[0].Headline != "H1" {
		t.Errorf("KeyFindings = %+v", s.KeyFindings)
	}
}

func TestSynthesizeResearchSanitizesTrailingComma(t *testing.T) {
	p := &mock.Provider{GenerateResponse: `{
		"executive_summary": "A plain string summary of adequate length for the pipeline.",
		"key_findings": [
			{"headline": "H", "finding": "F", "category": "primary", "impact_score": 0.8, "confidence": 0.8, "supporting_sources": [1],}
		],
	}`}
	e := New(p)

	s, err := e.SynthesizeResearch(context.Background(), sampleSummaries(), "q", "brief")
	if err != nil {
		t.Fatalf("SynthesizeResearch returned error: %v", err)
	}
	if len(p.GenerateCalls) != 1 {
		t.Errorf("Generate called %d times, want sanitizer to fix the first attempt", len(p.GenerateCalls))
	}
	if s.ExecutiveSummary == "" || len(s.KeyFindings) != 1 {
		t.Errorf("synthesis = %+v, want parsed content", s)
	}
}

func TestSynthesizeResearchNumbersSources(t *testing.T) {
	p := &mock.Provider{GenerateResponse: `{"executive_summary":"s","key_findings":[]}`}
	e := New(p)

	if _, err := e.SynthesizeResearch(context.Background(), sampleSummaries(), "q", "standard"); err != nil {
		t.Fatalf("SynthesizeResearch returned error: %v", err)
	}
	prompt := p.GenerateCalls[0].Req.Prompt
	if !strings.Contains(prompt, "Source 1 (https://example.com/a):") ||
		!strings.Contains(prompt, "Source 2 (https://example.com/b):") {
		t.Errorf("prompt missing 1-based source numbering:\n%s", prompt)
	}
}

func TestReformatExecutiveSummaryWrapsOnError(t *testing.T) {
	p := &mock.Provider{GenerateErr: errors.New("backend down")}
	e := New(p)

	got := e.ReformatExecutiveSummary(context.Background(), "raw text")
	if got != "<p>raw text</p>" {
		t.Errorf("reformat on error = %q, want original wrapped once", got)
	}
}

func TestReformatExecutiveSummaryWrapsPlainResponse(t *testing.T) {
	p := &mock.Provider{GenerateResponse: "first para\n\nsecond para"}
	e := New(p)

	got := e.ReformatExecutiveSummary(context.Background(), "raw")
	if !strings.Contains(got, "<p>first para</p>") || !strings.Contains(got, "<p>second para</p>") {
		t.Errorf("reformat = %q, want paragraphs wrapped", got)
	}
}

func TestGenerateSubsectionsParsesResponse(t *testing.T) {
	p := &mock.Provider{GenerateResponse: `SUBSECTION 1: Mechanisms
How the effect arises in practice.

SUBSECTION 2: Applications
Where the effect is used.`}
	e := New(p)

	subs := e.GenerateSubsections(context.Background(), "Main", strings.Repeat("x", 900))
	if len(subs) != 2 {
		t.Fatalf("got %d subsections, want 2", len(subs))
	}
	if subs[0].Subtitle != "Mechanisms" || !strings.Contains(subs[0].Content, "How the effect") {
		t.Errorf("subsection[0] = %+v", subs[0])
	}
}

func TestGenerateSubsectionsNone(t *testing.T) {
	p := &mock.Provider{GenerateResponse: "NO_SUBSECTIONS"}
	e := New(p)
	if subs := e.GenerateSubsections(context.Background(), "Main", "content"); len(subs) != 0 {
		t.Errorf("got %d subsections, want none", len(subs))
	}
}

func TestGenerateAnalysisOutlineDefaultsOnError(t *testing.T) {
	p := &mock.Provider{GenerateErr: errors.New("down")}
	e := New(p)

	titles := e.GenerateAnalysisOutline(context.Background(), sampleSummaries(), "q")
	if len(titles) != len(defaultOutline) {
		t.Errorf("got %d titles, want default outline", len(titles))
	}
}

func TestGenerateDetailedAnalysisBuildsSections(t *testing.T) {
	// Scripted call order: outline, then per-section content and quote
	// extraction. Sections are short so no subsection calls happen.
	provider := &mock.Provider{GenerateResponses: []mock.GenerateResult{
		{Text: "Background\nFindings"},
		{Text: "Section one content citing [1] and [2]."},
		{Text: `{"quotes":[],"statistics":{"rate":"85%"}}`},
		{Text: "Section two content with no citations."},
		{Text: `{"quotes":[{"text":"q","source_id":1}],"statistics":{}}`},
	}}
	e := New(provider)

	var steps []string
	da := e.GenerateDetailedAnalysis(context.Background(), sampleSummaries(), "q", func(frac float64, step string) {
		steps = append(steps, step)
	})

	if len(da.Sections) != 2 {
		t.Fatalf("got %d sections, want 2", len(da.Sections))
	}
	if da.Sections[0].Title != "Background" {
		t.Errorf("section[0].Title = %q", da.Sections[0].Title)
	}
	if got := da.Sections[0].Sources; len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("section[0].Sources = %v, want cited [1 2]", got)
	}
	if da.Sections[0].Statistics["rate"] != "85%" {
		t.Errorf("Statistics = %v", da.Sections[0].Statistics)
	}
	if len(da.Sections[1].Sources) != 0 {
		t.Errorf("section[1].Sources = %v, want none cited", da.Sections[1].Sources)
	}
	if len(steps) == 0 {
		t.Error("progress callback never invoked")
	}
}
