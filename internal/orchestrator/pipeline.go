package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/recondite-labs/scholarpipe/internal/research"
	"github.com/recondite-labs/scholarpipe/internal/store"
	"github.com/recondite-labs/scholarpipe/internal/synthesis"
	"github.com/recondite-labs/scholarpipe/pkg/search"
	"github.com/recondite-labs/scholarpipe/pkg/webfetch"
)

// maxSourceMedia caps the media items kept per source summary.
const maxSourceMedia = 2

// maxFeaturedMedia caps the featured media carried on a result.
const maxFeaturedMedia = 5

// Execute runs the full pipeline for task and persists the result. The task
// ends completed, failed, or cancelled; the terminal status is durably
// written before Execute returns.
func (o *Orchestrator) Execute(ctx context.Context, task *research.Task) (*research.Result, error) {
	result, err := o.pipeline(ctx, task)
	if err != nil {
		if ctx.Err() != nil {
			o.finish(task, research.StatusCancelled, "")
			return nil, fmt.Errorf("orchestrator: task %s: %w", task.TaskID, ctx.Err())
		}
		o.finish(task, research.StatusFailed, err.Error())
		return nil, fmt.Errorf("orchestrator: task %s: %w", task.TaskID, err)
	}
	o.finish(task, research.StatusCompleted, "")
	return result, nil
}

// observeStage records the duration and outcome of one pipeline stage.
func (o *Orchestrator) observeStage(ctx context.Context, stage string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	o.metrics.RecordStage(ctx, stage, status, time.Since(start))
}

// pipeline runs the stages in order. Degradable stages record warnings and
// continue; fatal conditions and cancellation return errors.
func (o *Orchestrator) pipeline(ctx context.Context, task *research.Task) (*research.Result, error) {
	cfg := research.Settings(task.Depth)
	maxSources := cfg.MaxSources
	if task.MaxSources > 0 && task.MaxSources < maxSources {
		maxSources = task.MaxSources
	}
	started := time.Now()

	// Stage 1: analyze. Failure degrades to searching with the raw query.
	o.transition(task, research.StatusAnalyzing, progressAnalyzing)
	t0 := time.Now()
	analysis := o.analyzeStage(ctx, task, cfg)
	o.observeStage(ctx, "analyze", t0, ctx.Err())
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Stage 2: search. Zero usable URLs is fatal.
	o.transition(task, research.StatusSearching, progressSearching)
	t0 = time.Now()
	strategies, urls, byURL, err := o.searchStage(ctx, task, cfg, analysis, maxSources)
	o.observeStage(ctx, "search", t0, err)
	if err != nil {
		return nil, err
	}

	// Stage 3: fetch, with snippet fallback when extraction yields nothing.
	o.transition(task, research.StatusFetching, progressFetching)
	t0 = time.Now()
	contents, err := o.fetchStage(ctx, task, cfg, urls, byURL, maxSources)
	o.observeStage(ctx, "fetch", t0, err)
	if err != nil {
		return nil, err
	}

	// Stage 4: per-source summarization.
	o.transition(task, research.StatusSynthesizing, progressSummarizing)
	t0 = time.Now()
	summaries, featured, err := o.summarizeStage(ctx, task, cfg, contents)
	o.observeStage(ctx, "summarize", t0, err)
	if err != nil {
		return nil, err
	}

	// Stages 5 and 6: synthesis, then validation, repair, and reformatting.
	t0 = time.Now()
	syn := o.synthesizeStage(ctx, task, cfg, summaries)
	o.observeStage(ctx, "synthesize", t0, ctx.Err())
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Stage 7: detailed analysis, best-effort.
	o.transition(task, research.StatusGenerating, progressSynthesis)
	t0 = time.Now()
	detailed := o.detailStage(ctx, task, cfg, summaries)
	o.observeStage(ctx, "detail", t0, nil)

	result := &research.Result{
		TaskID:           task.ID,
		Synthesis:        syn,
		Sources:          summaries,
		QueryAnalysis:    &analysis,
		DetailedAnalysis: detailed,
		FeaturedMedia:    featured,
		SourcesUsed:      len(summaries),
		Metadata: map[string]any{
			"depth":             string(task.Depth),
			"duration_seconds":  int(time.Since(started).Seconds()),
			"search_strategies": len(strategies),
			"urls_considered":   len(urls),
		},
	}
	o.embedResult(ctx, task, result)

	if err := o.persist(ctx, task, result); err != nil {
		return nil, err
	}
	return result, nil
}

// analyzeStage interprets the query under the analysis deadline. Any failure
// degrades to the deterministic fallback so the pipeline always has at least
// one search strategy.
func (o *Orchestrator) analyzeStage(ctx context.Context, task *research.Task, cfg research.DepthConfig) research.QueryAnalysis {
	actx, cancel := context.WithTimeout(ctx, cfg.AnalysisTimeout)
	defer cancel()

	analysis, err := o.engine.AnalyzeQuery(actx, task.Query)
	if err != nil {
		if ctx.Err() == nil {
			o.addWarning(task, "Query analysis failed; searching with the raw query")
		}
		return synthesis.FallbackAnalysis(task.Query)
	}
	return analysis
}

// searchStage fans the top strategies out to the search backend and collects
// unique URLs in first-seen order, capped at maxSources.
func (o *Orchestrator) searchStage(ctx context.Context, task *research.Task, cfg research.DepthConfig, analysis research.QueryAnalysis, maxSources int) ([]string, []string, map[string]search.Result, error) {
	strategies := analysis.SearchStrategies
	if len(strategies) == 0 {
		strategies = []string{task.Query}
	}
	if len(strategies) > cfg.MaxSearches {
		strategies = strategies[:cfg.MaxSearches]
	}

	sctx, cancel := context.WithTimeout(ctx, cfg.SearchTimeout)
	defer cancel()

	byQuery, err := o.search.BatchSearch(sctx, strategies, search.DefaultLimit)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("search: %w", err)
	}

	seen := make(map[string]struct{})
	byURL := make(map[string]search.Result)
	var urls []string
	for _, q := range strategies {
		for _, r := range byQuery[q] {
			if r.URL == "" {
				continue
			}
			if _, ok := seen[r.URL]; ok {
				continue
			}
			seen[r.URL] = struct{}{}
			byURL[r.URL] = r
			urls = append(urls, r.URL)
			if len(urls) == maxSources {
				return strategies, urls, byURL, nil
			}
		}
	}
	if len(urls) == 0 {
		return nil, nil, nil, ErrNoSearchResults
	}
	return strategies, urls, byURL, nil
}

// fetchStage retrieves and extracts the selected URLs. When no page yields
// text it degrades to contents synthesized from the search snippets; if even
// those are empty the task fails.
func (o *Orchestrator) fetchStage(ctx context.Context, task *research.Task, cfg research.DepthConfig, urls []string, byURL map[string]search.Result, maxSources int) ([]webfetch.Content, error) {
	fctx, cancel := context.WithTimeout(ctx, cfg.FetchTimeout)
	defer cancel()

	fetched := o.fetcher.BatchFetch(fctx, urls)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	usable := make([]webfetch.Content, 0, len(fetched))
	for _, c := range fetched {
		if c.Text != "" {
			usable = append(usable, c)
		}
	}
	usable = webfetch.Prioritize(webfetch.Deduplicate(usable), maxSources)

	if len(usable) == 0 {
		usable = snippetContents(urls, byURL)
		if len(usable) > 0 {
			o.addWarning(task, "Content extraction failed for every source; using search snippets")
		}
	}
	if len(usable) == 0 {
		return nil, ErrNoContent
	}
	return usable, nil
}

// snippetContents builds minimal contents from search snippets, preserving
// URL order.
func snippetContents(urls []string, byURL map[string]search.Result) []webfetch.Content {
	var out []webfetch.Content
	for _, u := range urls {
		r, ok := byURL[u]
		if !ok || r.Snippet == "" {
			continue
		}
		out = append(out, webfetch.Content{
			URL:       u,
			Title:     r.Title,
			Text:      r.Snippet,
			WordCount: len(strings.Fields(r.Snippet)),
			Method:    research.MethodSnippet,
		})
	}
	return out
}

// summarizeStage produces one summary per content in input order, collecting
// featured media along the way. Individual summarization failures degrade to
// a truncation of the source text.
func (o *Orchestrator) summarizeStage(ctx context.Context, task *research.Task, cfg research.DepthConfig, contents []webfetch.Content) ([]research.SourceSummary, []research.MediaItem, error) {
	summaries := make([]research.SourceSummary, 0, len(contents))
	var media []research.MediaItem

	for i, c := range contents {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		summary, err := o.engine.SummarizeContent(ctx, c.Text, cfg.SummaryLength, task.Query)
		if err != nil {
			if ctx.Err() != nil {
				return nil, nil, ctx.Err()
			}
			o.addWarning(task, "Summarization failed for "+c.URL)
			summary = firstWords(c.Text, cfg.SummaryLength)
		}

		items := mediaItems(c.Media)
		media = append(media, items...)
		if len(items) > maxSourceMedia {
			items = items[:maxSourceMedia]
		}

		summaries = append(summaries, research.SourceSummary{
			URL:              c.URL,
			Title:            c.Title,
			Summary:          summary,
			WordCount:        c.WordCount,
			ExtractionMethod: c.Method,
			Media:            items,
		})

		o.setProgress(task, progressSummarizing+
			(i+1)*(progressSynthesis-progressSummarizing)/len(contents))
	}
	return summaries, featuredMedia(media), nil
}

// synthesizeStage runs synthesis under its deadline, falling back to the
// deterministic synthesis on failure, then validates, repairs, and reformats
// the executive summary into paragraph tags.
func (o *Orchestrator) synthesizeStage(ctx context.Context, task *research.Task, cfg research.DepthConfig, summaries []research.SourceSummary) research.Synthesis {
	yctx, cancel := context.WithTimeout(ctx, cfg.SynthesisTimeout)
	syn, err := o.engine.SynthesizeResearch(yctx, summaries, task.Query, cfg.SynthesisDetail)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return syn
		}
		o.addWarning(task, "Synthesis failed; produced a fallback synthesis from source summaries")
		syn = synthesis.FallbackSynthesis(summaries, task.Query)
	}
	o.setProgress(task, progressSynthesis)

	synthesis.ValidateAndRepair(&syn, summaries, task.Query)

	if !strings.Contains(syn.ExecutiveSummary, "<p>") {
		rctx, cancel := context.WithTimeout(ctx, reformatTimeout)
		syn.ExecutiveSummary = o.engine.ReformatExecutiveSummary(rctx, syn.ExecutiveSummary)
		cancel()
	}
	return syn
}

// detailStage generates the multi-step detailed analysis under half the
// synthesis deadline. A deadline hit downgrades to a warning and the result
// ships without the analysis.
func (o *Orchestrator) detailStage(ctx context.Context, task *research.Task, cfg research.DepthConfig, summaries []research.SourceSummary) *research.DetailedAnalysis {
	dctx, cancel := context.WithTimeout(ctx, cfg.DetailTimeout())
	defer cancel()

	span := progressComplete - progressSynthesis - 5
	detailed := o.engine.GenerateDetailedAnalysis(dctx, summaries, task.Query, func(frac float64, step string) {
		o.setProgress(task, progressSynthesis+int(frac*float64(span)))
		slog.Debug("detailed analysis progress", "task", task.TaskID, "step", step)
	})

	if dctx.Err() != nil && ctx.Err() == nil {
		o.addWarning(task, "Detailed analysis timed out; emitting the result without it")
		return nil
	}
	if len(detailed.Sections) == 0 {
		return nil
	}
	return &detailed
}

// embedResult attaches query and synthesis embeddings. Embedding failures
// degrade to a warning; the result is stored without vectors.
func (o *Orchestrator) embedResult(ctx context.Context, task *research.Task, result *research.Result) {
	queryVec, err := o.embedder.Embed(ctx, task.Query)
	if err != nil {
		o.addWarning(task, "Embedding generation failed; result stored without vectors")
		return
	}
	result.QueryEmbedding = queryVec

	synthVec, err := o.embedder.Embed(ctx, synthesisText(result.Synthesis))
	if err != nil {
		o.addWarning(task, "Embedding generation failed; result stored without vectors")
		result.QueryEmbedding = nil
		return
	}
	result.SynthesisEmbedding = synthVec
}

// persist writes the result transactionally, then builds the knowledge graph
// best-effort.
func (o *Orchestrator) persist(ctx context.Context, task *research.Task, result *research.Result) error {
	err := o.store.WithTx(ctx, func(tx store.Store) error {
		return tx.Results().Create(ctx, result)
	})
	if err != nil {
		return fmt.Errorf("persist result: %w", err)
	}

	if o.graph != nil {
		if err := o.graph.Build(ctx, task.ID, result); err != nil {
			o.addWarning(task, "Knowledge graph build failed")
			slog.Warn("graph build failed", "task", task.TaskID, "error", err)
		}
	}
	return nil
}

// synthesisText concatenates the searchable text of a synthesis for
// embedding.
func synthesisText(s research.Synthesis) string {
	parts := make([]string, 0, 1+len(s.KeyFindings)+len(s.Recommendations))
	parts = append(parts, s.ExecutiveSummary)
	for _, f := range s.KeyFindings {
		parts = append(parts, f.Finding)
	}
	parts = append(parts, s.Recommendations...)
	return strings.Join(parts, "\n")
}

// mediaItems converts fetched media to the result representation.
func mediaItems(media []webfetch.Media) []research.MediaItem {
	items := make([]research.MediaItem, 0, len(media))
	for _, m := range media {
		items = append(items, research.MediaItem{
			URL:         m.URL,
			Type:        m.Type,
			Title:       m.Title,
			Description: m.Description,
			Thumbnail:   m.Thumbnail,
		})
	}
	return items
}

// featuredMedia deduplicates media by URL, orders images before videos, and
// caps the selection.
func featuredMedia(media []research.MediaItem) []research.MediaItem {
	seen := make(map[string]struct{}, len(media))
	var images, rest []research.MediaItem
	for _, m := range media {
		if m.URL == "" {
			continue
		}
		if _, ok := seen[m.URL]; ok {
			continue
		}
		seen[m.URL] = struct{}{}
		if m.Type == "image" {
			images = append(images, m)
		} else {
			rest = append(rest, m)
		}
	}
	featured := append(images, rest...)
	if len(featured) > maxFeaturedMedia {
		featured = featured[:maxFeaturedMedia]
	}
	return featured
}

// firstWords truncates text to approximately n words.
func firstWords(text string, n int) string {
	fields := strings.Fields(text)
	if len(fields) <= n {
		return strings.TrimSpace(text)
	}
	return strings.Join(fields[:n], " ")
}
