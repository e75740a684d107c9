package synthesis

import (
	"fmt"
	"strings"

	"github.com/recondite-labs/scholarpipe/internal/research"
)

// minExecutiveSummaryLen is the repair threshold for executive summaries.
const minExecutiveSummaryLen = 100

// minFindings is the minimum number of well-formed findings after repair.
const minFindings = 3

// fallbackSummaryCap bounds how many summaries feed the fallback synthesis.
const fallbackSummaryCap = 5

// FallbackAnalysis is the deterministic query analysis used when the model
// cannot produce one: the raw query becomes the only topic and three obvious
// search strategies are derived from it.
func FallbackAnalysis(query string) research.QueryAnalysis {
	return research.QueryAnalysis{
		Intent:    query,
		KeyTopics: []string{query},
		Entities:  map[string][]string{},
		SearchStrategies: []string{
			query,
			query + " latest",
			query + " 2025",
		},
		ResearchDepth:   string(research.DepthStandard),
		TimeSensitivity: "recent",
	}
}

// FallbackSynthesis assembles a deterministic synthesis from source
// summaries: the executive summary concatenates leading sentences, each
// source contributes one finding with scores decaying by position, and a
// single default section forms the detailed analysis. Running it twice on the
// same inputs produces the same structure.
func FallbackSynthesis(summaries []research.SourceSummary, query string) research.Synthesis {
	capped := summaries
	if len(capped) > fallbackSummaryCap {
		capped = capped[:fallbackSummaryCap]
	}

	var leads []string
	for _, s := range capped {
		if lead := firstSentence(s.Summary); lead != "" {
			leads = append(leads, lead)
		}
	}
	executive := strings.Join(leads, " ")
	filler := fmt.Sprintf("This report synthesizes findings from %d sources on %q.", len(summaries), query)
	for len(executive) < minExecutiveSummaryLen {
		executive = strings.TrimSpace(executive + " " + filler)
	}

	findings := make([]research.Finding, 0, len(summaries))
	for i, s := range summaries {
		finding := firstSentence(s.Summary)
		if finding == "" {
			finding = "No summary available for this source."
		}
		headline := s.Title
		if headline == "" {
			headline = truncateWords(finding, 15)
		}
		category := research.CategorySecondary
		if i < 2 {
			category = research.CategoryPrimary
		}
		findings = append(findings, research.Finding{
			Headline:          headline,
			Finding:           finding,
			Category:          category,
			ImpactScore:       decayScore(0.9, i),
			Confidence:        decayScore(0.85, i),
			SupportingSources: []int{i + 1},
		})
	}
	for len(findings) < minFindings {
		findings = append(findings, research.Finding{
			Headline:    fmt.Sprintf("Research context for %s", truncateWords(query, 10)),
			Finding:     filler,
			Category:    research.CategoryConsideration,
			ImpactScore: 0.3,
			Confidence:  0.3,
		})
	}

	var pullQuote string
	if len(capped) > 0 {
		pullQuote = firstSentence(capped[0].Summary)
	}

	return research.Synthesis{
		ExecutiveSummary: executive,
		PullQuote:        pullQuote,
		KeyFindings:      findings,
		Themes:           []research.Theme{},
		Contradictions:   []research.Contradiction{},
		KnowledgeGaps:    []string{},
		Recommendations:  []string{},
		FurtherResearch:  []string{},
		DetailedAnalysis: defaultDetailedAnalysis(len(summaries)),
	}
}

// defaultDetailedAnalysis is the single-section structure used when no model
// output is available.
func defaultDetailedAnalysis(sourceCount int) research.DetailedAnalysis {
	n := sourceCount
	if n > 3 {
		n = 3
	}
	sources := make([]int, 0, n)
	for i := 1; i <= n; i++ {
		sources = append(sources, i)
	}
	return research.DetailedAnalysis{
		Sections: []research.Section{{
			Title:   "Overview and Background",
			Content: "This research provides comprehensive insights into the topic based on analysis of multiple sources.",
			Sources: sources,
		}},
	}
}

// ValidateAndRepair enforces the synthesis schema in place: executive summary
// of at least 100 characters, at least three well-formed findings with scores
// in [0,1] and source indices within range, non-nil list fields, and at least
// one detailed-analysis section. Missing pieces are filled from the
// deterministic fallback; the function never fails.
func ValidateAndRepair(s *research.Synthesis, summaries []research.SourceSummary, query string) {
	fallback := FallbackSynthesis(summaries, query)

	if len(strings.TrimSpace(s.ExecutiveSummary)) < minExecutiveSummaryLen {
		if s.ExecutiveSummary = strings.TrimSpace(s.ExecutiveSummary); s.ExecutiveSummary == "" {
			s.ExecutiveSummary = fallback.ExecutiveSummary
		} else {
			s.ExecutiveSummary = strings.TrimSpace(s.ExecutiveSummary + " " + fallback.ExecutiveSummary)
		}
	}

	kept := s.KeyFindings[:0]
	for _, f := range s.KeyFindings {
		if strings.TrimSpace(f.Finding) == "" {
			continue
		}
		f.ImpactScore = clamp01(f.ImpactScore)
		f.Confidence = clamp01(f.Confidence)
		if !validCategory(f.Category) {
			f.Category = research.CategorySecondary
		}
		var sources []int
		for _, idx := range f.SupportingSources {
			if idx >= 1 && idx <= len(summaries) {
				sources = append(sources, idx)
			}
		}
		f.SupportingSources = sources
		kept = append(kept, f)
	}
	s.KeyFindings = kept
	for i := 0; len(s.KeyFindings) < minFindings && i < len(fallback.KeyFindings); i++ {
		s.KeyFindings = append(s.KeyFindings, fallback.KeyFindings[i])
	}

	if s.PullQuote == "" {
		s.PullQuote = firstSentence(s.ExecutiveSummary)
	}
	if s.Themes == nil {
		s.Themes = []research.Theme{}
	}
	if s.Contradictions == nil {
		s.Contradictions = []research.Contradiction{}
	}
	if s.KnowledgeGaps == nil {
		s.KnowledgeGaps = []string{}
	}
	if s.Recommendations == nil {
		s.Recommendations = []string{}
	}
	if s.FurtherResearch == nil {
		s.FurtherResearch = []string{}
	}
	if len(s.DetailedAnalysis.Sections) == 0 {
		s.DetailedAnalysis = defaultDetailedAnalysis(len(summaries))
	}
}

func validCategory(c string) bool {
	switch c {
	case research.CategoryPrimary, research.CategorySecondary,
		research.CategoryEmerging, research.CategoryConsideration:
		return true
	}
	return false
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// decayScore decreases base by 0.1 per position with a floor of 0.3.
func decayScore(base float64, index int) float64 {
	score := base - 0.1*float64(index)
	if score < 0.3 {
		return 0.3
	}
	return score
}

// firstSentence returns text up to and including the first sentence
// terminator.
func firstSentence(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '.', '!', '?':
			return strings.TrimSpace(text[:i+1])
		}
	}
	return text
}

// truncateWords caps text at n words.
func truncateWords(text string, n int) string {
	words := strings.Fields(text)
	if len(words) <= n {
		return strings.TrimSpace(text)
	}
	return strings.Join(words[:n], " ")
}
