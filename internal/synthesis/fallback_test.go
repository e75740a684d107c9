package synthesis

import (
	"reflect"
	"strings"
	"testing"

	"github.com/recondite-labs/scholarpipe/internal/research"
)

func sampleSummaries() []research.SourceSummary {
	return []research.SourceSummary{
		{URL: "https://example.com/a", Title: "Meditation Study", Summary: "Meditation improves focus across age groups. Further detail follows here.", WordCount: 800, ExtractionMethod: research.MethodPrimary},
		{URL: "https://example.com/b", Title: "Sleep Research", Summary: "Sleep quality improves with regular practice! More detail.", WordCount: 600, ExtractionMethod: research.MethodStructural},
	}
}

func TestFallbackSynthesisShape(t *testing.T) {
	s := FallbackSynthesis(sampleSummaries(), "benefits of meditation")

	if len(s.ExecutiveSummary) < minExecutiveSummaryLen {
		t.Errorf("ExecutiveSummary length = %d, want >= %d", len(s.ExecutiveSummary), minExecutiveSummaryLen)
	}
	if len(s.KeyFindings) < minFindings {
		t.Fatalf("KeyFindings = %d, want >= %d", len(s.KeyFindings), minFindings)
	}
	if len(s.DetailedAnalysis.Sections) < 1 {
		t.Error("DetailedAnalysis has no sections")
	}

	for i, f := range s.KeyFindings {
		if f.ImpactScore < 0 || f.ImpactScore > 1 || f.Confidence < 0 || f.Confidence > 1 {
			t.Errorf("finding %d scores out of range: %+v", i, f)
		}
		for _, idx := range f.SupportingSources {
			if idx < 1 || idx > 2 {
				t.Errorf("finding %d references source %d, want within [1,2]", i, idx)
			}
		}
	}

	// Scores decay with position.
	if s.KeyFindings[0].ImpactScore <= s.KeyFindings[1].ImpactScore {
		t.Errorf("impact scores = %v then %v, want decaying",
			s.KeyFindings[0].ImpactScore, s.KeyFindings[1].ImpactScore)
	}
	if s.Themes == nil || s.KnowledgeGaps == nil || s.Recommendations == nil {
		t.Error("list fields are nil, want empty slices")
	}
}

func TestFallbackSynthesisIdempotent(t *testing.T) {
	a := FallbackSynthesis(sampleSummaries(), "benefits of meditation")
	b := FallbackSynthesis(sampleSummaries(), "benefits of meditation")
	if !reflect.DeepEqual(a, b) {
		t.Error("two fallback runs on the same inputs differ")
	}
}

func TestFallbackSynthesisNoSources(t *testing.T) {
	s := FallbackSynthesis(nil, "obscure topic")
	if len(s.KeyFindings) < minFindings {
		t.Errorf("KeyFindings = %d, want padded to %d", len(s.KeyFindings), minFindings)
	}
	for _, f := range s.KeyFindings {
		if len(f.SupportingSources) != 0 {
			t.Errorf("finding references sources %v with zero sources available", f.SupportingSources)
		}
	}
	if len(s.ExecutiveSummary) < minExecutiveSummaryLen {
		t.Errorf("ExecutiveSummary length = %d, want >= %d", len(s.ExecutiveSummary), minExecutiveSummaryLen)
	}
}

func TestFallbackAnalysis(t *testing.T) {
	a := FallbackAnalysis("benefits of meditation")
	if a.Intent != "benefits of meditation" {
		t.Errorf("Intent = %q, want the raw query", a.Intent)
	}
	if len(a.SearchStrategies) != 3 || a.SearchStrategies[0] != "benefits of meditation" {
		t.Errorf("SearchStrategies = %v, want query-derived triple", a.SearchStrategies)
	}
}

func TestValidateAndRepairFillsMissingFields(t *testing.T) {
	s := research.Synthesis{ExecutiveSummary: "Too short."}
	ValidateAndRepair(&s, sampleSummaries(), "benefits of meditation")

	if len(s.ExecutiveSummary) < minExecutiveSummaryLen {
		t.Errorf("ExecutiveSummary length = %d after repair, want >= %d", len(s.ExecutiveSummary), minExecutiveSummaryLen)
	}
	if !strings.HasPrefix(s.ExecutiveSummary, "Too short.") {
		t.Errorf("repair discarded the original summary: %q", s.ExecutiveSummary)
	}
	if len(s.KeyFindings) < minFindings {
		t.Errorf("KeyFindings = %d after repair, want >= %d", len(s.KeyFindings), minFindings)
	}
	if len(s.DetailedAnalysis.Sections) == 0 {
		t.Error("DetailedAnalysis empty after repair")
	}
	if s.PullQuote == "" {
		t.Error("PullQuote empty after repair")
	}
}

func TestValidateAndRepairDropsInvalidData(t *testing.T) {
	s := research.Synthesis{
		ExecutiveSummary: strings.Repeat("A solid summary sentence. ", 10),
		KeyFindings: []research.Finding{
			{Finding: "valid", Category: "bogus", ImpactScore: 1.7, Confidence: -0.2, SupportingSources: []int{0, 1, 2, 9}},
			{Finding: "   "}, // malformed, dropped
			{Finding: "another", Category: research.CategoryPrimary, ImpactScore: 0.8, Confidence: 0.9, SupportingSources: []int{2}},
		},
	}
	ValidateAndRepair(&s, sampleSummaries(), "q")

	f := s.KeyFindings[0]
	if f.Category != research.CategorySecondary {
		t.Errorf("Category = %q, want invalid category replaced with secondary", f.Category)
	}
	if f.ImpactScore != 1 || f.Confidence != 0 {
		t.Errorf("scores = (%v, %v), want clamped to (1, 0)", f.ImpactScore, f.Confidence)
	}
	if !reflect.DeepEqual(f.SupportingSources, []int{1, 2}) {
		t.Errorf("SupportingSources = %v, want out-of-range indices dropped", f.SupportingSources)
	}
	for _, kept := range s.KeyFindings {
		if strings.TrimSpace(kept.Finding) == "" {
			t.Error("malformed finding survived repair")
		}
	}
}

func TestFirstSentence(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"One sentence. Another one.", "One sentence."},
		{"Question? Yes.", "Question?"},
		{"No terminator here", "No terminator here"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := firstSentence(tt.in); got != tt.want {
			t.Errorf("firstSentence(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
