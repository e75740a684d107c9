// Package research defines the domain model shared by every stage of the
// scholarpipe pipeline: research tasks and their lifecycle, per-depth limits,
// fetched source material, the structured synthesis shape, knowledge-graph
// elements, and chat entities.
//
// The package carries no behaviour beyond validation and the depth lookup
// table; all I/O lives in the client packages and the orchestrator.
package research

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

// Status is the lifecycle state of a research task.
type Status string

const (
	StatusPending      Status = "pending"
	StatusAnalyzing    Status = "analyzing"
	StatusSearching    Status = "searching"
	StatusFetching     Status = "fetching"
	StatusSynthesizing Status = "synthesizing"
	StatusGenerating   Status = "generating"
	StatusCompleted    Status = "completed"
	StatusFailed       Status = "failed"
	StatusCancelled    Status = "cancelled"
)

// IsValid reports whether s is a recognised task status.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusAnalyzing, StatusSearching, StatusFetching,
		StatusSynthesizing, StatusGenerating, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether s is an absorbing state. Terminal tasks never
// transition again.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// MaxSourcesLimit caps the per-task source budget. Tasks must carry a
// max_sources in [1, MaxSourcesLimit]; the research_tasks DDL enforces the
// same bound.
const MaxSourcesLimit = 100

// Depth selects the per-stage deadlines and limits for a research task.
type Depth string

const (
	DepthQuick         Depth = "quick"
	DepthStandard      Depth = "standard"
	DepthComprehensive Depth = "comprehensive"
)

// IsValid reports whether d is a recognised research depth.
func (d Depth) IsValid() bool {
	switch d {
	case DepthQuick, DepthStandard, DepthComprehensive:
		return true
	}
	return false
}

// DepthConfig holds the limits that a [Depth] preset selects. It is a lookup
// table, not a computation; see [Settings].
type DepthConfig struct {
	// MaxSearches is the number of search strategies issued to the search
	// backend.
	MaxSearches int

	// MaxSources caps the number of sources summarized per task.
	MaxSources int

	// SummaryLength is the approximate per-source summary length in words.
	SummaryLength int

	// SynthesisDetail is passed verbatim to the synthesis prompt
	// ("brief", "standard", "detailed").
	SynthesisDetail string

	// Stage deadlines.
	AnalysisTimeout  time.Duration
	SearchTimeout    time.Duration
	FetchTimeout     time.Duration
	SynthesisTimeout time.Duration
}

// DetailTimeout is the deadline for the detailed-analysis stage: half the
// synthesis deadline at every depth.
func (c DepthConfig) DetailTimeout() time.Duration {
	return c.SynthesisTimeout / 2
}

// depthConfigs is the per-depth lookup table.
var depthConfigs = map[Depth]DepthConfig{
	DepthQuick: {
		MaxSearches:      1,
		MaxSources:       5,
		SummaryLength:    200,
		SynthesisDetail:  "brief",
		AnalysisTimeout:  30 * time.Second,
		SearchTimeout:    60 * time.Second,
		FetchTimeout:     120 * time.Second,
		SynthesisTimeout: 300 * time.Second,
	},
	DepthStandard: {
		MaxSearches:      3,
		MaxSources:       15,
		SummaryLength:    300,
		SynthesisDetail:  "standard",
		AnalysisTimeout:  60 * time.Second,
		SearchTimeout:    120 * time.Second,
		FetchTimeout:     300 * time.Second,
		SynthesisTimeout: 600 * time.Second,
	},
	DepthComprehensive: {
		MaxSearches:      5,
		MaxSources:       30,
		SummaryLength:    500,
		SynthesisDetail:  "detailed",
		AnalysisTimeout:  120 * time.Second,
		SearchTimeout:    180 * time.Second,
		FetchTimeout:     600 * time.Second,
		SynthesisTimeout: 900 * time.Second,
	},
}

// Settings returns the [DepthConfig] for d. Unknown depths fall back to the
// standard preset.
func Settings(d Depth) DepthConfig {
	if cfg, ok := depthConfigs[d]; ok {
		return cfg
	}
	return depthConfigs[DepthStandard]
}

// NewTaskID generates a globally unique task identifier of the form
// "res_" followed by 12 hex characters.
func NewTaskID() string {
	var b [6]byte
	// rand.Read on crypto/rand never fails on supported platforms.
	_, _ = rand.Read(b[:])
	return "res_" + hex.EncodeToString(b[:])
}
