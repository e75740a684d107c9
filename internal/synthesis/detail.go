package synthesis

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/recondite-labs/scholarpipe/internal/research"
	"github.com/recondite-labs/scholarpipe/pkg/llm"
)

// Detailed-analysis temperatures and token caps.
const (
	outlineTemp      = 0.5
	outlineMaxTokens = 500

	sectionTemp      = 0.6
	sectionMaxTokens = 1000

	quotesTemp      = 0.3
	quotesMaxTokens = 500

	subsectionTemp      = 0.5
	subsectionMaxTokens = 600
)

const (
	maxOutlineSections = 8
	maxSectionSources  = 5
	maxSubsections     = 2

	// subsectionThreshold is the section length above which subsections are
	// attempted.
	subsectionThreshold = 800

	// outlineSummaryChars truncates each summary fed to the outline prompt.
	outlineSummaryChars = 500

	// promptSummaryCap bounds how many summaries feed outline and quote
	// prompts.
	promptSummaryCap = 10
)

// defaultOutline is used when the model cannot produce one.
var defaultOutline = []string{
	"Overview and Background",
	"Key Developments and Findings",
	"Technical Analysis",
	"Challenges and Considerations",
	"Future Implications",
}

// GenerateAnalysisOutline produces 5-8 section titles for the detailed
// analysis. Never fails: on any error the default outline is returned.
func (e *Engine) GenerateAnalysisOutline(ctx context.Context, summaries []research.SourceSummary, query string) []string {
	summariesText := briefSummaries(summaries)

	prompt := fmt.Sprintf(`Based on this research about %q, create an outline for a detailed analysis report.

Research summaries:
%s

Generate 5-8 main section titles that comprehensively cover the topic.
Provide ONLY the section titles, one per line, no numbering or bullets.

Examples of good section titles:
- Technical Innovations and Breakthroughs
- Market Impact and Economic Implications
- Current Implementation Status
- Challenges and Limitations
- Future Outlook and Predictions
- Regulatory and Policy Considerations

Section titles:`, query, summariesText)

	response, err := e.generate(ctx, "outline", llm.GenerateRequest{
		Prompt:      prompt,
		Temperature: outlineTemp,
		MaxTokens:   outlineMaxTokens,
	})
	if err != nil {
		slog.Warn("outline generation failed, using defaults", "error", err)
		return defaultOutline
	}

	var titles []string
	for _, line := range strings.Split(response, "\n") {
		line = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "-"))
		if line != "" {
			titles = append(titles, line)
		}
		if len(titles) == maxOutlineSections {
			break
		}
	}
	if len(titles) == 0 {
		return defaultOutline
	}
	return titles
}

// GenerateSectionContent writes 2-3 analytical paragraphs for one section,
// citing sources as [N].
func (e *Engine) GenerateSectionContent(ctx context.Context, title string, summaries []research.SourceSummary, query string) (string, error) {
	summariesText := numberedSummaries(summaries, 0, 0)

	prompt := fmt.Sprintf(`Write a detailed analysis section titled %q for research about %q.

Research data from all sources:
%s

Requirements:
1. Write 2-3 comprehensive paragraphs (300-500 words total)
2. Include specific details, data points, and examples from the sources
3. Reference source numbers like [1], [2] when citing information
4. Focus specifically on aspects related to %q
5. Make the content informative and analytical, not just descriptive

Section content:`, title, query, summariesText, title)

	response, err := e.generate(ctx, "section", llm.GenerateRequest{
		Prompt:      prompt,
		Temperature: sectionTemp,
		MaxTokens:   sectionMaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("synthesis: section %q: %w", title, err)
	}
	return strings.TrimSpace(response), nil
}

// quotesAndStats is the JSON shape of the quote-extraction operation.
type quotesAndStats struct {
	Quotes     []research.Quote  `json:"quotes"`
	Statistics map[string]string `json:"statistics"`
}

// ExtractQuotesAndStats pulls direct quotes and key statistics relevant to a
// section from the source summaries. Never fails: empty results on any error.
func (e *Engine) ExtractQuotesAndStats(ctx context.Context, title string, summaries []research.SourceSummary) ([]research.Quote, map[string]string) {
	summariesText := numberedSummaries(summaries, promptSummaryCap, 0)

	prompt := fmt.Sprintf(`Extract quotes and statistics relevant to %q from these sources:

%s

Find:
1. 1-2 direct quotes that support the section content (if available)
2. Key statistics or data points mentioned

Format as JSON:
{
    "quotes": [
        {"text": "quote text", "source_id": 1, "author": "Author Name or Source"}
    ],
    "statistics": {"metric_name": "value", "percentage": "85%%"}
}

If no relevant quotes or stats found, return empty arrays/objects.
Return ONLY the JSON:`, title, summariesText)

	var result quotesAndStats
	if err := e.generateJSON(ctx, "extract_quotes", prompt, "", quotesTemp, quotesMaxTokens, &result); err != nil {
		slog.Debug("quote extraction failed", "section", title, "error", err)
		return nil, map[string]string{}
	}
	if result.Statistics == nil {
		result.Statistics = map[string]string{}
	}
	return result.Quotes, result.Statistics
}

// GenerateSubsections asks whether a long section needs subsections and
// parses up to two from the line-oriented response. Never fails.
func (e *Engine) GenerateSubsections(ctx context.Context, title, content string) []research.Subsection {
	preview := content
	if len(preview) > 500 {
		preview = preview[:500]
	}

	prompt := fmt.Sprintf(`Does this section need subsections for better organization?

Section Title: %s
Section Content: %s...

If yes, create 1-2 subsection titles and brief content (1-2 paragraphs each).
If no subsections needed, respond with "NO_SUBSECTIONS".

Format if subsections needed:
SUBSECTION 1: [Title]
[Content]

SUBSECTION 2: [Title]
[Content]`, title, preview)

	response, err := e.generate(ctx, "subsections", llm.GenerateRequest{
		Prompt:      prompt,
		Temperature: subsectionTemp,
		MaxTokens:   subsectionMaxTokens,
	})
	if err != nil {
		slog.Debug("subsection generation failed", "section", title, "error", err)
		return nil
	}
	if strings.Contains(response, "NO_SUBSECTIONS") {
		return nil
	}

	var subsections []research.Subsection
	for _, part := range strings.Split(response, "SUBSECTION")[1:] {
		head, body, ok := strings.Cut(strings.TrimSpace(part), "\n")
		if !ok {
			continue
		}
		_, subTitle, ok := strings.Cut(head, ":")
		if !ok {
			continue
		}
		subTitle = strings.TrimSpace(subTitle)
		body = strings.TrimSpace(body)
		if subTitle != "" && body != "" {
			subsections = append(subsections, research.Subsection{Subtitle: subTitle, Content: body})
		}
		if len(subsections) == maxSubsections {
			break
		}
	}
	return subsections
}

// GenerateDetailedAnalysis builds the multi-section analysis outline-first:
// section titles, then per-section content, quotes and statistics, and
// subsections for substantial sections. progress, when non-nil, receives a
// fraction in [0,1] and a step label as sections complete.
//
// The operation degrades rather than fails: individual section errors leave a
// placeholder, and a fully failed run returns the deterministic default
// structure.
func (e *Engine) GenerateDetailedAnalysis(ctx context.Context, summaries []research.SourceSummary, query string, progress func(frac float64, step string)) research.DetailedAnalysis {
	if progress != nil {
		progress(0, "Generating analysis outline")
	}

	titles := e.GenerateAnalysisOutline(ctx, summaries, query)
	slog.Info("analysis outline generated", "sections", len(titles))

	sections := make([]research.Section, 0, len(titles))
	for i, title := range titles {
		if ctx.Err() != nil {
			break
		}
		if progress != nil {
			progress(float64(i+1)/float64(len(titles)), "Writing section: "+title)
		}

		content, err := e.GenerateSectionContent(ctx, title, summaries, query)
		if err != nil {
			slog.Warn("section content failed", "section", title, "error", err)
			content = fmt.Sprintf("Analysis of %s based on the research findings.", title)
		}

		quotes, stats := e.ExtractQuotesAndStats(ctx, title, summaries)

		var subsections []research.Subsection
		if len(content) > subsectionThreshold {
			subsections = e.GenerateSubsections(ctx, title, content)
		}

		sections = append(sections, research.Section{
			Title:       title,
			Content:     content,
			Sources:     citedSources(content, len(summaries)),
			Quotes:      quotes,
			Statistics:  stats,
			Subsections: subsections,
		})
	}

	if len(sections) == 0 {
		return defaultDetailedAnalysis(len(summaries))
	}
	return research.DetailedAnalysis{Sections: sections}
}

// citedSources scans content for [N] references, bounded by the source count
// and capped at maxSectionSources.
func citedSources(content string, sourceCount int) []int {
	limit := sourceCount
	if limit > 20 {
		limit = 20
	}
	var refs []int
	for j := 1; j <= limit; j++ {
		if strings.Contains(content, fmt.Sprintf("[%d]", j)) {
			refs = append(refs, j)
			if len(refs) == maxSectionSources {
				break
			}
		}
	}
	return refs
}

// briefSummaries renders the first ten summaries truncated for outline
// prompts.
func briefSummaries(summaries []research.SourceSummary) string {
	var sb strings.Builder
	for i, s := range summaries {
		if i == promptSummaryCap {
			break
		}
		if i > 0 {
			sb.WriteString("\n\n")
		}
		text := s.Summary
		if len(text) > outlineSummaryChars {
			text = text[:outlineSummaryChars]
		}
		fmt.Fprintf(&sb, "Source %d: %s", i+1, text)
	}
	return sb.String()
}
