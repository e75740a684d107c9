// Package synthesis composes the higher-level LLM operations of the research
// pipeline on top of [llm.Provider]: query analysis, per-source summarization,
// research synthesis, executive-summary reformatting, and the multi-step
// detailed analysis.
//
// Every operation that expects JSON follows the same discipline: strip code
// fences, run [Sanitize], attempt a parse, and on failure retry with a
// simplified prompt at rising temperature, up to three total attempts. When
// all attempts fail the operation falls back to a deterministic value built
// from its inputs, so callers always receive a well-formed result.
package synthesis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/recondite-labs/scholarpipe/internal/observe"
	"github.com/recondite-labs/scholarpipe/internal/research"
	"github.com/recondite-labs/scholarpipe/pkg/llm"
)

// ErrUnparseable marks a JSON operation whose model output failed to parse on
// every attempt. Callers switch to their deterministic fallback on it.
var ErrUnparseable = errors.New("synthesis: unparseable model output")

// Operation temperatures and token caps.
const (
	analyzeTemp   = 0.3
	summarizeTemp = 0.3

	synthesizeTemp      = 0.4
	synthesizeMaxTokens = 4000

	reformatTemp      = 0.1
	reformatMaxTokens = 3000
)

// maxContentChars bounds the content passed to summarization prompts.
const maxContentChars = 8000

// jsonAttempts is the total number of parse attempts per JSON operation.
const jsonAttempts = 3

// tempStep is the temperature increase applied on each JSON retry.
const tempStep = 0.1

// Engine runs the pipeline's LLM operations. It is stateless beyond the
// provider and safe for concurrent use.
type Engine struct {
	provider llm.Provider
}

// New constructs an Engine on top of provider.
func New(provider llm.Provider) *Engine {
	return &Engine{provider: provider}
}

// generate runs one model call, recording its duration and outcome under the
// given operation label.
func (e *Engine) generate(ctx context.Context, op string, req llm.GenerateRequest) (string, error) {
	start := time.Now()
	response, err := e.provider.Generate(ctx, req)
	observe.DefaultMetrics().RecordLLMCall(ctx, op, time.Since(start), err)
	return response, err
}

// generateJSON runs prompt and parses the sanitized response into out. Retry
// attempts use the simplified prompt (when given) at rising temperature.
// Transport errors abort immediately; only parse failures are retried.
func (e *Engine) generateJSON(ctx context.Context, op, prompt, simplified string, temp float64, maxTokens int, out any) error {
	var lastErr error
	for attempt := 0; attempt < jsonAttempts; attempt++ {
		p := prompt
		if attempt > 0 && simplified != "" {
			p = simplified
		}

		response, err := e.generate(ctx, op, llm.GenerateRequest{
			Prompt:      p,
			Temperature: temp + float64(attempt)*tempStep,
			MaxTokens:   maxTokens,
		})
		if err != nil {
			return fmt.Errorf("synthesis: generate: %w", err)
		}

		if err := json.Unmarshal([]byte(Sanitize(response)), out); err != nil {
			lastErr = err
			slog.Debug("JSON parse failed, retrying",
				"attempt", attempt+1, "error", err)
			continue
		}
		return nil
	}
	return fmt.Errorf("%w (after %d attempts): %v", ErrUnparseable, jsonAttempts, lastErr)
}

// AnalyzeQuery extracts intent, entities, and search strategies from a
// research query. Unparseable model output degrades to the deterministic
// [FallbackAnalysis]; only transport failures surface as errors.
func (e *Engine) AnalyzeQuery(ctx context.Context, query string) (research.QueryAnalysis, error) {
	prompt := fmt.Sprintf(`Analyze the following research query and provide a structured analysis.

Query: %q

Provide your analysis in JSON format with the following structure:
{
    "intent": "Brief description of what the user wants to research",
    "key_topics": ["topic1", "topic2", "topic3"],
    "entities": {
        "technologies": [],
        "organizations": [],
        "people": [],
        "dates": [],
        "locations": []
    },
    "search_strategies": [
        "search query 1",
        "search query 2",
        "search query 3"
    ],
    "research_depth": "quick|standard|comprehensive",
    "time_sensitivity": "current|recent|historical"
}

Return ONLY the JSON object, no additional text.`, query)

	simplified := fmt.Sprintf(`Return a JSON object with keys "intent" (string), "key_topics" (array of strings), "entities" (object of string arrays), "search_strategies" (array of strings), "research_depth" (string), "time_sensitivity" (string) for the query: %q. Return ONLY the JSON object.`, query)

	var analysis research.QueryAnalysis
	if err := e.generateJSON(ctx, "analyze", prompt, simplified, analyzeTemp, 0, &analysis); err != nil {
		if !errors.Is(err, ErrUnparseable) {
			return research.QueryAnalysis{}, err
		}
		slog.Warn("query analysis unparseable, using fallback", "error", err)
		return FallbackAnalysis(query), nil
	}
	if len(analysis.SearchStrategies) == 0 {
		analysis.SearchStrategies = []string{query}
	}
	return analysis, nil
}

// SummarizeContent summarizes content in approximately maxWords words,
// optionally focused on a topic. Content beyond 8000 characters is truncated.
func (e *Engine) SummarizeContent(ctx context.Context, content string, maxWords int, focus string) (string, error) {
	if len(content) > maxContentChars {
		content = content[:maxContentChars]
	}

	focusInstruction := ""
	if focus != "" {
		focusInstruction = "Focus particularly on: " + focus
	}

	prompt := fmt.Sprintf(`Summarize the following content in approximately %d words.
%s

Content:
%s

Provide a clear, concise summary that captures the key points and main ideas.`, maxWords, focusInstruction, content)

	summary, err := e.generate(ctx, "summarize", llm.GenerateRequest{
		Prompt:      prompt,
		Temperature: summarizeTemp,
	})
	if err != nil {
		return "", fmt.Errorf("synthesis: summarize: %w", err)
	}
	return strings.TrimSpace(summary), nil
}

// rawSynthesis mirrors the model's synthesis JSON. The executive summary may
// arrive as a plain string or as the structured lead/body/pull-quote form.
type rawSynthesis struct {
	ExecutiveSummary json.RawMessage           `json:"executive_summary"`
	PullQuote        string                    `json:"pull_quote"`
	KeyFindings      []research.Finding        `json:"key_findings"`
	Themes           []research.Theme          `json:"themes"`
	Contradictions   []research.Contradiction  `json:"contradictions"`
	KnowledgeGaps    []string                  `json:"knowledge_gaps"`
	Recommendations  []string                  `json:"recommendations"`
	FurtherResearch  []string                  `json:"further_research"`
	DetailedAnalysis research.DetailedAnalysis `json:"detailed_analysis"`
}

// structuredSummary is the nested executive-summary variant.
type structuredSummary struct {
	LeadParagraph  string   `json:"lead_paragraph"`
	BodyParagraphs []string `json:"body_paragraphs"`
	PullQuote      string   `json:"pull_quote"`
}

// SynthesizeResearch combines per-source summaries into a structured research
// synthesis. The result is not yet validated; callers run
// [ValidateAndRepair] (the orchestrator does this after the stage deadline
// check).
func (e *Engine) SynthesizeResearch(ctx context.Context, summaries []research.SourceSummary, query, detail string) (research.Synthesis, error) {
	summariesText := numberedSummaries(summaries, 0, 0)

	prompt := fmt.Sprintf(`You are synthesizing research findings for the query: %q

Based on the following summaries from multiple sources, create a comprehensive research synthesis at %q detail level.

%s

Provide your synthesis in JSON format with the following structure:
{
    "executive_summary": {
        "lead_paragraph": "2-3 sentence compelling opening that captures the essence of the research",
        "body_paragraphs": [
            "First main paragraph (3-4 sentences) covering primary findings",
            "Second paragraph (3-4 sentences) covering secondary aspects",
            "Third paragraph (3-4 sentences) covering implications or future directions"
        ],
        "pull_quote": "One powerful sentence that captures the key insight"
    },
    "key_findings": [
        {
            "headline": "Brief 10-15 word headline capturing the essence",
            "finding": "1-2 sentence detailed explanation of the finding with specifics",
            "category": "primary|secondary|emerging|consideration",
            "impact_score": 0.85,
            "confidence": 0.9,
            "supporting_sources": [1, 2],
            "statistics": {"key": "value", "metric": "number"},
            "keywords": ["keyword1", "keyword2"]
        }
    ],
    "detailed_analysis": {
        "sections": [
            {"title": "Overview and Background", "content": "Comprehensive overview in 2-3 paragraphs", "sources": [1, 2]},
            {"title": "Key Technologies and Methods", "content": "Main technologies and approaches in 2-3 paragraphs", "sources": [1, 2, 3]},
            {"title": "Current State and Developments", "content": "Recent developments and current status in 2-3 paragraphs", "sources": [2, 3]},
            {"title": "Challenges and Limitations", "content": "Main challenges and limitations in 2-3 paragraphs", "sources": [1, 3]},
            {"title": "Future Outlook", "content": "Future predictions and trends in 2-3 paragraphs", "sources": [1, 2, 3]}
        ]
    },
    "themes": [
        {"theme": "Major theme 1", "description": "Description", "sources": [1, 2, 3]}
    ],
    "contradictions": [
        {"point": "Contradictory point", "viewpoints": ["View 1", "View 2"], "sources": [1, 3]}
    ],
    "knowledge_gaps": ["Gap 1", "Gap 2"],
    "recommendations": ["Recommendation 1", "Recommendation 2"],
    "further_research": ["Topic 1", "Topic 2"]
}

IMPORTANT:
- The lead_paragraph should be engaging and journalistic
- Each body paragraph should focus on a distinct aspect
- Paragraphs should be complete and self-contained
- The pull_quote should be memorable and impactful
- Generate 6-10 key_findings with diverse categories (primary, secondary, emerging, consideration)
- Each finding needs a concise headline (10-15 words) and detailed explanation (1-2 sentences)
- Include statistics where available as key-value pairs
- Category definitions:
  * primary: Core, well-established findings with strong evidence
  * secondary: Important but less central findings
  * emerging: New or developing insights with growing evidence
  * consideration: Important caveats, warnings, or limitations
- Impact scores (0-1) represent the potential significance of the finding

Return ONLY the JSON object.`, query, detail, summariesText)

	simplified := fmt.Sprintf(`Create a research synthesis for the query %q from these summaries:

%s

Return a JSON object with keys "executive_summary" (string, 3-4 sentences), "pull_quote" (string), "key_findings" (array of {"headline", "finding", "category", "impact_score", "confidence", "supporting_sources"}), "themes" (array), "contradictions" (array), "knowledge_gaps" (array of strings), "recommendations" (array of strings), "further_research" (array of strings), "detailed_analysis" ({"sections": [{"title", "content", "sources"}]}). Return ONLY the JSON object.`, query, summariesText)

	var raw rawSynthesis
	if err := e.generateJSON(ctx, "synthesize", prompt, simplified, synthesizeTemp, synthesizeMaxTokens, &raw); err != nil {
		return research.Synthesis{}, err
	}

	s := research.Synthesis{
		PullQuote:        raw.PullQuote,
		KeyFindings:      raw.KeyFindings,
		Themes:           raw.Themes,
		Contradictions:   raw.Contradictions,
		KnowledgeGaps:    raw.KnowledgeGaps,
		Recommendations:  raw.Recommendations,
		FurtherResearch:  raw.FurtherResearch,
		DetailedAnalysis: raw.DetailedAnalysis,
	}

	// The executive summary arrives either as a plain string or structured.
	var plain string
	if err := json.Unmarshal(raw.ExecutiveSummary, &plain); err == nil {
		s.ExecutiveSummary = plain
	} else {
		var structured structuredSummary
		if err := json.Unmarshal(raw.ExecutiveSummary, &structured); err == nil {
			paragraphs := make([]string, 0, 1+len(structured.BodyParagraphs))
			if structured.LeadParagraph != "" {
				paragraphs = append(paragraphs, structured.LeadParagraph)
			}
			for _, p := range structured.BodyParagraphs {
				if p != "" {
					paragraphs = append(paragraphs, p)
				}
			}
			s.ExecutiveSummary = strings.Join(paragraphs, "\n\n")
			if structured.PullQuote != "" {
				s.PullQuote = structured.PullQuote
			}
		}
	}

	return s, nil
}

// ReformatExecutiveSummary converts a plain-text executive summary into 3-4
// HTML paragraphs. Never fails: any error wraps the original once.
func (e *Engine) ReformatExecutiveSummary(ctx context.Context, rawSummary string) string {
	prompt := fmt.Sprintf(`Convert the following text into exactly 3-4 HTML paragraphs. Output ONLY the HTML <p> tags with the content, nothing else.

Text:
%s

Output format (ONLY output tags like these, no other text):
<p>First part of the text...</p>
<p>Second part of the text...</p>
<p>Third part of the text...</p>`, rawSummary)

	system := "You are an HTML formatter. Output ONLY valid HTML paragraph tags. Never include any commentary, thinking, or wrapper text. Start your response with <p> and end with </p>."

	response, err := e.generate(ctx, "reformat", llm.GenerateRequest{
		Prompt:      prompt,
		System:      system,
		Temperature: reformatTemp,
		MaxTokens:   reformatMaxTokens,
	})
	if err != nil {
		slog.Warn("executive summary reformat failed", "error", err)
		return "<p>" + rawSummary + "</p>"
	}

	response = StripFences(response)
	if !strings.Contains(response, "<p>") {
		return wrapParagraphs(response)
	}
	return response
}

// wrapParagraphs builds <p> tags from plain text, splitting on existing
// paragraph breaks when present.
func wrapParagraphs(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return "<p></p>"
	}
	if !strings.Contains(text, "\n\n") {
		return "<p>" + text + "</p>"
	}
	var sb strings.Builder
	for _, para := range strings.Split(text, "\n\n") {
		if para = strings.TrimSpace(para); para != "" {
			sb.WriteString("<p>")
			sb.WriteString(para)
			sb.WriteString("</p>\n")
		}
	}
	return strings.TrimSpace(sb.String())
}

// numberedSummaries renders summaries as "Source N (url):" blocks. maxSources
// and maxChars of zero mean unbounded.
func numberedSummaries(summaries []research.SourceSummary, maxSources, maxChars int) string {
	var sb strings.Builder
	for i, s := range summaries {
		if maxSources > 0 && i >= maxSources {
			break
		}
		if i > 0 {
			sb.WriteString("\n\n")
		}
		text := s.Summary
		if maxChars > 0 && len(text) > maxChars {
			text = text[:maxChars]
		}
		url := s.URL
		if url == "" {
			url = "Unknown"
		}
		fmt.Fprintf(&sb, "Source %d (%s):\n%s", i+1, url, text)
	}
	return sb.String()
}
