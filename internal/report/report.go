// Package report renders completed research results as markdown, HTML, or
// JSON documents and persists them as task artifacts. Rendering a format a
// second time returns the stored artifact instead of regenerating it.
package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"strings"
	"time"

	"github.com/recondite-labs/scholarpipe/internal/research"
	"github.com/recondite-labs/scholarpipe/internal/store"
)

// Supported output formats.
const (
	FormatMarkdown = "markdown"
	FormatHTML     = "html"
	FormatJSON     = "json"
)

// ErrUnknownFormat is returned for formats outside the supported set.
var ErrUnknownFormat = errors.New("report: unknown format")

// sourceSummaryChars truncates per-source summaries in rendered reports.
const sourceSummaryChars = 200

// Generator renders and persists reports. Safe for concurrent use.
type Generator struct {
	store store.Store
}

// New constructs a Generator.
func New(st store.Store) *Generator {
	return &Generator{store: st}
}

// Report returns the task's report in the requested format, rendering and
// persisting it on first use.
func (g *Generator) Report(ctx context.Context, task *research.Task, result *research.Result, format string) (*research.Artifact, error) {
	artifactType, err := artifactType(format)
	if err != nil {
		return nil, err
	}

	if cached, err := g.store.Artifacts().ByTaskAndType(ctx, task.ID, artifactType); err == nil {
		return cached, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("report: load artifact: %w", err)
	}

	content, err := Render(task, result, format)
	if err != nil {
		return nil, err
	}

	artifact := &research.Artifact{
		TaskID:    task.ID,
		Type:      artifactType,
		Name:      "report." + extension(format),
		Content:   content,
		SizeBytes: len(content),
		Metadata: map[string]any{
			"format": format,
			"query":  task.Query,
		},
	}
	if err := g.store.Artifacts().Create(ctx, artifact); err != nil {
		return nil, fmt.Errorf("report: store artifact: %w", err)
	}
	slog.Info("report generated",
		"task", task.TaskID, "format", format, "bytes", artifact.SizeBytes)
	return artifact, nil
}

// Render produces the report content without persistence.
func Render(task *research.Task, result *research.Result, format string) (string, error) {
	switch format {
	case FormatMarkdown:
		return Markdown(task, result), nil
	case FormatHTML:
		return HTML(task, result)
	case FormatJSON:
		return JSON(task, result)
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, format)
}

func artifactType(format string) (string, error) {
	switch format {
	case FormatMarkdown:
		return research.ArtifactReportMarkdown, nil
	case FormatHTML:
		return research.ArtifactReportHTML, nil
	case FormatJSON:
		return research.ArtifactReportJSON, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, format)
}

func extension(format string) string {
	switch format {
	case FormatMarkdown:
		return "md"
	case FormatJSON:
		return "json"
	default:
		return format
	}
}

// Markdown renders the report in the canonical section order: summary,
// findings, analysis, sources, recommendations, further research.
func Markdown(task *research.Task, result *research.Result) string {
	syn := result.Synthesis
	var sb strings.Builder

	fmt.Fprintf(&sb, "# Research Report: %s\n\n", task.Query)
	fmt.Fprintf(&sb, "**Generated**: %s\n", time.Now().UTC().Format("2006-01-02 15:04:05 UTC"))
	fmt.Fprintf(&sb, "**Task ID**: %s\n", task.TaskID)
	fmt.Fprintf(&sb, "**Sources Analyzed**: %d\n\n", len(result.Sources))

	sb.WriteString("## Executive Summary\n\n")
	summary := plainParagraphs(syn.ExecutiveSummary)
	if summary == "" {
		summary = "No summary available."
	}
	sb.WriteString(summary + "\n\n")

	sb.WriteString("## Key Findings\n\n")
	for _, f := range syn.KeyFindings {
		fmt.Fprintf(&sb, "- **%s** (Confidence: %.0f%%)\n", f.Finding, f.Confidence*100)
	}

	sb.WriteString("\n## Detailed Analysis\n\n")
	if len(syn.Themes) > 0 {
		sb.WriteString("### Major Themes\n\n")
		for _, th := range syn.Themes {
			fmt.Fprintf(&sb, "**%s**\n%s\n\n", th.Theme, th.Description)
		}
	}
	if len(syn.Contradictions) > 0 {
		sb.WriteString("### Contradictions Found\n\n")
		for _, c := range syn.Contradictions {
			fmt.Fprintf(&sb, "- **%s**\n", c.Point)
			for _, v := range c.Viewpoints {
				fmt.Fprintf(&sb, "  - %s\n", v)
			}
			sb.WriteString("\n")
		}
	}

	sb.WriteString("## Sources\n\n")
	for i, s := range result.Sources {
		title := s.Title
		if title == "" {
			title = "Untitled"
		}
		fmt.Fprintf(&sb, "%d. [%s](%s)\n", i+1, title, s.URL)
		fmt.Fprintf(&sb, "   %s\n\n", truncate(s.Summary, sourceSummaryChars))
	}

	if len(syn.Recommendations) > 0 {
		sb.WriteString("## Recommendations\n\n")
		for _, r := range syn.Recommendations {
			fmt.Fprintf(&sb, "- %s\n", r)
		}
	}
	if len(syn.FurtherResearch) > 0 {
		sb.WriteString("\n## Topics for Further Research\n\n")
		for _, topic := range syn.FurtherResearch {
			fmt.Fprintf(&sb, "- %s\n", topic)
		}
	}
	return sb.String()
}

// htmlContext is the template context for HTML reports.
type htmlContext struct {
	Query            string
	TaskID           string
	GeneratedAt      string
	SourcesCount     int
	ExecutiveSummary template.HTML
	Findings         []research.Finding
	Themes           []research.Theme
	Contradictions   []research.Contradiction
	Sources          []sourceRow
	Recommendations  []string
	FurtherResearch  []string
}

type sourceRow struct {
	Index   int
	Title   string
	URL     string
	Summary string
}

// HTML renders a standalone report page.
func HTML(task *research.Task, result *research.Result) (string, error) {
	syn := result.Synthesis
	ctx := htmlContext{
		Query:        task.Query,
		TaskID:       task.TaskID,
		GeneratedAt:  time.Now().UTC().Format("2006-01-02 15:04:05 UTC"),
		SourcesCount: len(result.Sources),
		// The executive summary is pipeline-generated paragraph markup.
		ExecutiveSummary: template.HTML(syn.ExecutiveSummary),
		Findings:         syn.KeyFindings,
		Themes:           syn.Themes,
		Contradictions:   syn.Contradictions,
		Recommendations:  syn.Recommendations,
		FurtherResearch:  syn.FurtherResearch,
	}
	for i, s := range result.Sources {
		title := s.Title
		if title == "" {
			title = "Untitled"
		}
		ctx.Sources = append(ctx.Sources, sourceRow{
			Index:   i + 1,
			Title:   title,
			URL:     s.URL,
			Summary: truncate(s.Summary, sourceSummaryChars),
		})
	}

	var sb strings.Builder
	if err := htmlTemplate.Execute(&sb, ctx); err != nil {
		return "", fmt.Errorf("report: render html: %w", err)
	}
	return sb.String(), nil
}

// jsonReport is the serialized report payload.
type jsonReport struct {
	TaskID       string                   `json:"task_id"`
	Query        string                   `json:"query"`
	GeneratedAt  string                   `json:"generated_at"`
	Synthesis    research.Synthesis       `json:"synthesis"`
	Sources      []research.SourceSummary `json:"sources"`
	SourcesCount int                      `json:"sources_count"`
	Metadata     map[string]any           `json:"metadata,omitempty"`
	Statistics   jsonStatistics           `json:"statistics"`
}

type jsonStatistics struct {
	TotalWordsAnalyzed int     `json:"total_words_analyzed"`
	AverageConfidence  float64 `json:"average_confidence"`
}

// JSON renders the report as an indented JSON document.
func JSON(task *research.Task, result *research.Result) (string, error) {
	totalWords := 0
	for _, s := range result.Sources {
		totalWords += s.WordCount
	}
	avgConfidence := 0.0
	if n := len(result.Synthesis.KeyFindings); n > 0 {
		for _, f := range result.Synthesis.KeyFindings {
			avgConfidence += f.Confidence
		}
		avgConfidence /= float64(n)
	}

	payload := jsonReport{
		TaskID:       task.TaskID,
		Query:        task.Query,
		GeneratedAt:  time.Now().UTC().Format(time.RFC3339),
		Synthesis:    result.Synthesis,
		Sources:      result.Sources,
		SourcesCount: len(result.Sources),
		Metadata:     result.Metadata,
		Statistics: jsonStatistics{
			TotalWordsAnalyzed: totalWords,
			AverageConfidence:  avgConfidence,
		},
	}
	out, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("report: render json: %w", err)
	}
	return string(out), nil
}

// plainParagraphs converts paragraph markup into blank-line-separated text.
func plainParagraphs(s string) string {
	s = strings.ReplaceAll(s, "</p>", "\n\n")
	s = strings.ReplaceAll(s, "<p>", "")
	return strings.TrimSpace(s)
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}

var htmlTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"pct": func(f float64) string { return fmt.Sprintf("%.0f", f*100) },
}).Parse(`<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8">
    <title>Research Report: {{.Query}}</title>
    <style>
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
            max-width: 800px;
            margin: 0 auto;
            padding: 40px 20px;
            background: #f5f5f5;
            color: #222;
        }
        .card { background: white; border-radius: 8px; padding: 20px; margin: 20px 0; }
        .meta { color: #666; font-size: 0.9em; }
        .finding { margin: 12px 0; }
        .confidence { color: #666; font-size: 0.85em; }
        .source-summary { color: #444; font-size: 0.9em; margin: 4px 0 12px 1em; }
        blockquote { border-left: 3px solid #ccc; margin-left: 0; padding-left: 12px; color: #555; }
    </style>
</head>
<body>
    <h1>Research Report: {{.Query}}</h1>
    <p class="meta">Generated {{.GeneratedAt}} · Task {{.TaskID}} · {{.SourcesCount}} sources analyzed</p>

    <div class="card">
        <h2>Executive Summary</h2>
        {{.ExecutiveSummary}}
    </div>

    <div class="card">
        <h2>Key Findings</h2>
        {{range .Findings}}
        <div class="finding">
            <strong>{{.Headline}}</strong>
            <p>{{.Finding}} <span class="confidence">(confidence {{pct .Confidence}}%)</span></p>
        </div>
        {{end}}
    </div>

    {{if .Themes}}
    <div class="card">
        <h2>Major Themes</h2>
        {{range .Themes}}<p><strong>{{.Theme}}</strong><br>{{.Description}}</p>{{end}}
    </div>
    {{end}}

    {{if .Contradictions}}
    <div class="card">
        <h2>Contradictions Found</h2>
        {{range .Contradictions}}
        <p><strong>{{.Point}}</strong></p>
        <ul>{{range .Viewpoints}}<li>{{.}}</li>{{end}}</ul>
        {{end}}
    </div>
    {{end}}

    <div class="card">
        <h2>Sources</h2>
        <ol>
        {{range .Sources}}
            <li><a href="{{.URL}}">{{.Title}}</a>
            <div class="source-summary">{{.Summary}}</div></li>
        {{end}}
        </ol>
    </div>

    {{if .Recommendations}}
    <div class="card">
        <h2>Recommendations</h2>
        <ul>{{range .Recommendations}}<li>{{.}}</li>{{end}}</ul>
    </div>
    {{end}}

    {{if .FurtherResearch}}
    <div class="card">
        <h2>Topics for Further Research</h2>
        <ul>{{range .FurtherResearch}}<li>{{.}}</li>{{end}}</ul>
    </div>
    {{end}}
</body>
</html>`))
