package research

import (
	"time"

	"github.com/google/uuid"
)

// Extraction methods recorded on a [SourceSummary]. Consumers switch on the
// tag and never reflect on types.
const (
	MethodPrimary    = "primary"
	MethodStructural = "structural"
	MethodSnippet    = "snippet_fallback"
	MethodFailed     = "failed"
)

// Finding categories.
const (
	CategoryPrimary       = "primary"
	CategorySecondary     = "secondary"
	CategoryEmerging      = "emerging"
	CategoryConsideration = "consideration"
)

// MediaItem is an image, video, or embedded player discovered on a source page.
type MediaItem struct {
	URL         string `json:"url"`
	Type        string `json:"type"` // "image", "video", "youtube"
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Thumbnail   string `json:"thumbnail,omitempty"`
}

// SourceSummary is one summarized source inside a [Result]. The slice order in
// Result.Sources is the canonical source numbering: findings and analysis
// sections reference sources by 1-based index into it.
type SourceSummary struct {
	URL              string      `json:"url"`
	Title            string      `json:"title"`
	Summary          string      `json:"summary"`
	WordCount        int         `json:"word_count"`
	ExtractionMethod string      `json:"extraction_method"`
	Media            []MediaItem `json:"media,omitempty"` // at most 2 items
}

// Finding is a single structured statement inside a synthesis.
type Finding struct {
	Headline          string            `json:"headline"`
	Finding           string            `json:"finding"`
	Category          string            `json:"category"`
	ImpactScore       float64           `json:"impact_score"`
	Confidence        float64           `json:"confidence"`
	SupportingSources []int             `json:"supporting_sources"` // 1-based indices into Result.Sources
	Statistics        map[string]string `json:"statistics,omitempty"`
	Keywords          []string          `json:"keywords,omitempty"`
}

// Theme groups findings under a shared topic.
type Theme struct {
	Theme       string `json:"theme"`
	Description string `json:"description"`
	Sources     []int  `json:"sources,omitempty"`
}

// Contradiction records a point on which sources disagree.
type Contradiction struct {
	Point      string   `json:"point"`
	Viewpoints []string `json:"viewpoints"`
	Sources    []int    `json:"sources,omitempty"`
}

// Quote is a direct quotation attributed to a source.
type Quote struct {
	Text     string `json:"text"`
	SourceID int    `json:"source_id"`
	Author   string `json:"author,omitempty"`
}

// Subsection is a nested elaboration inside a [Section].
type Subsection struct {
	Subtitle string `json:"subtitle"`
	Content  string `json:"content"`
}

// Section is one titled part of a detailed analysis.
type Section struct {
	Title       string            `json:"title"`
	Content     string            `json:"content"`
	Sources     []int             `json:"sources,omitempty"`
	Quotes      []Quote           `json:"quotes,omitempty"`
	Statistics  map[string]string `json:"statistics,omitempty"`
	Subsections []Subsection      `json:"subsections,omitempty"`
}

// DetailedAnalysis is the multi-section elaboration built outline-first.
type DetailedAnalysis struct {
	Sections []Section `json:"sections"`
}

// Synthesis is the LLM-generated structured summary of a research result.
// After validation and repair (see internal/synthesis) every field satisfies
// the documented invariants: ExecutiveSummary is at least 100 characters,
// KeyFindings holds at least three well-formed findings, and DetailedAnalysis
// has at least one section.
type Synthesis struct {
	ExecutiveSummary string           `json:"executive_summary"`
	PullQuote        string           `json:"pull_quote"`
	KeyFindings      []Finding        `json:"key_findings"`
	Themes           []Theme          `json:"themes"`
	Contradictions   []Contradiction  `json:"contradictions"`
	KnowledgeGaps    []string         `json:"knowledge_gaps"`
	Recommendations  []string         `json:"recommendations"`
	FurtherResearch  []string         `json:"further_research"`
	DetailedAnalysis DetailedAnalysis `json:"detailed_analysis"`
}

// QueryAnalysis is the structured interpretation of the user's query produced
// by the analysis stage. When analysis fails the orchestrator degrades to an
// analysis whose SearchStrategies contains only the raw query.
type QueryAnalysis struct {
	Intent           string              `json:"intent"`
	KeyTopics        []string            `json:"key_topics"`
	Entities         map[string][]string `json:"entities"`
	SearchStrategies []string            `json:"search_strategies"`
	ResearchDepth    string              `json:"research_depth"`
	TimeSensitivity  string              `json:"time_sensitivity"`
}

// Result is the 1-1 output of a completed task. Created once, on successful
// completion, in the same transaction that flips the task to completed.
type Result struct {
	ID     uuid.UUID
	TaskID uuid.UUID // internal record id of the owning task

	Synthesis        Synthesis
	Sources          []SourceSummary
	QueryAnalysis    *QueryAnalysis
	DetailedAnalysis *DetailedAnalysis
	FeaturedMedia    []MediaItem
	SourcesUsed      int
	Metadata         map[string]any

	// Embeddings are unit vectors; nil when embedding generation failed.
	// Vectors are immutable once written.
	SynthesisEmbedding []float32
	QueryEmbedding     []float32

	CreatedAt time.Time
}
