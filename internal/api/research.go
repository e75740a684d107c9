package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/recondite-labs/scholarpipe/internal/orchestrator"
	"github.com/recondite-labs/scholarpipe/internal/report"
	"github.com/recondite-labs/scholarpipe/internal/research"
	"github.com/recondite-labs/scholarpipe/internal/store"
)

// historyDefaultLimit caps a history page when the request carries no limit.
const historyDefaultLimit = 20

type createResearchRequest struct {
	Query      string         `json:"query"`
	Depth      string         `json:"depth"`
	MaxSources int            `json:"max_sources"`
	Options    map[string]any `json:"options"`
}

// taskResponse is the full JSON shape of a research task.
type taskResponse struct {
	TaskID       string     `json:"task_id"`
	Query        string     `json:"query"`
	Depth        string     `json:"depth"`
	MaxSources   int        `json:"max_sources"`
	Status       string     `json:"status"`
	Progress     int        `json:"progress"`
	Warnings     []string   `json:"warnings,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

func toTaskResponse(t *research.Task) taskResponse {
	return taskResponse{
		TaskID:       t.TaskID,
		Query:        t.Query,
		Depth:        string(t.Depth),
		MaxSources:   t.MaxSources,
		Status:       string(t.Status),
		Progress:     t.Progress,
		Warnings:     t.Warnings,
		ErrorMessage: t.ErrorMessage,
		CreatedAt:    t.CreatedAt,
		StartedAt:    t.StartedAt,
		CompletedAt:  t.CompletedAt,
	}
}

func (s *Server) handleCreateResearch(w http.ResponseWriter, r *http.Request) {
	var req createResearchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	depth := research.Depth(req.Depth)
	if depth == "" {
		depth = s.defaultDepth
	}
	if !depth.IsValid() {
		writeError(w, http.StatusBadRequest, "depth must be quick, standard, or comprehensive")
		return
	}
	if req.MaxSources < 0 || req.MaxSources > research.MaxSourcesLimit {
		writeError(w, http.StatusBadRequest, "max_sources must be between 1 and 100")
		return
	}

	task := &research.Task{
		UserID:     userFrom(r.Context()).ID,
		Query:      req.Query,
		Depth:      depth,
		MaxSources: req.MaxSources,
		Options:    req.Options,
	}
	if err := s.runner.Launch(r.Context(), task); err != nil {
		storeError(w, err)
		return
	}

	// The pipeline goroutine owns the task once Launch returns; respond from
	// the runner's locked snapshot, not the shared pointer.
	snapshot, err := s.runner.Status(r.Context(), task.TaskID)
	if err != nil {
		storeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTaskResponse(snapshot))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", historyDefaultLimit)
	offset := queryInt(r, "offset", 0)

	tasks, err := s.store.Tasks().ByUser(r.Context(), userFrom(r.Context()).ID, limit, offset)
	if err != nil {
		storeError(w, err)
		return
	}
	out := make([]taskResponse, len(tasks))
	for i := range tasks {
		out[i] = toTaskResponse(&tasks[i])
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tasks":  out,
		"limit":  limit,
		"offset": offset,
	})
}

// ownedTask resolves {task_id} to a task owned by the authenticated user.
// Foreign tasks are indistinguishable from absent ones. Returns nil after
// writing the error response.
func (s *Server) ownedTask(w http.ResponseWriter, r *http.Request) *research.Task {
	task, err := s.runner.Status(r.Context(), r.PathValue("task_id"))
	if err != nil {
		storeError(w, err)
		return nil
	}
	if task.UserID != userFrom(r.Context()).ID {
		writeError(w, http.StatusNotFound, "not found")
		return nil
	}
	return task
}

func (s *Server) handleTask(w http.ResponseWriter, r *http.Request) {
	task := s.ownedTask(w, r)
	if task == nil {
		return
	}
	writeJSON(w, http.StatusOK, toTaskResponse(task))
}

func (s *Server) handleTaskStatus(w http.ResponseWriter, r *http.Request) {
	task := s.ownedTask(w, r)
	if task == nil {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"task_id":  task.TaskID,
		"status":   task.Status,
		"progress": task.Progress,
		"warnings": task.Warnings,
		"error":    task.ErrorMessage,
	})
}

// resultResponse wraps a stored result for JSON delivery.
type resultResponse struct {
	TaskID           string                     `json:"task_id"`
	Query            string                     `json:"query"`
	Synthesis        research.Synthesis         `json:"synthesis"`
	Sources          []research.SourceSummary   `json:"sources"`
	QueryAnalysis    *research.QueryAnalysis    `json:"query_analysis,omitempty"`
	DetailedAnalysis *research.DetailedAnalysis `json:"detailed_analysis,omitempty"`
	FeaturedMedia    []research.MediaItem       `json:"featured_media,omitempty"`
	SourcesUsed      int                        `json:"sources_used"`
	Metadata         map[string]any             `json:"metadata,omitempty"`
	CreatedAt        time.Time                  `json:"created_at"`
}

func toResultResponse(task *research.Task, result *research.Result) resultResponse {
	return resultResponse{
		TaskID:           task.TaskID,
		Query:            task.Query,
		Synthesis:        result.Synthesis,
		Sources:          result.Sources,
		QueryAnalysis:    result.QueryAnalysis,
		DetailedAnalysis: result.DetailedAnalysis,
		FeaturedMedia:    result.FeaturedMedia,
		SourcesUsed:      result.SourcesUsed,
		Metadata:         result.Metadata,
		CreatedAt:        result.CreatedAt,
	}
}

func (s *Server) handleTaskResult(w http.ResponseWriter, r *http.Request) {
	task := s.ownedTask(w, r)
	if task == nil {
		return
	}
	if task.Status != research.StatusCompleted {
		writeError(w, http.StatusConflict, "task is "+string(task.Status))
		return
	}
	result, err := s.runner.Result(r.Context(), task.TaskID)
	if err != nil {
		storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResultResponse(task, result))
}

// reportContentTypes maps report formats onto response content types.
var reportContentTypes = map[string]string{
	report.FormatMarkdown: "text/markdown; charset=utf-8",
	report.FormatHTML:     "text/html; charset=utf-8",
	report.FormatJSON:     "application/json; charset=utf-8",
}

func (s *Server) handleTaskReport(w http.ResponseWriter, r *http.Request) {
	task := s.ownedTask(w, r)
	if task == nil {
		return
	}
	if task.Status != research.StatusCompleted {
		writeError(w, http.StatusConflict, "task is "+string(task.Status))
		return
	}
	format := r.URL.Query().Get("format")
	if format == "" {
		format = report.FormatMarkdown
	}
	contentType, ok := reportContentTypes[format]
	if !ok {
		writeError(w, http.StatusBadRequest, "format must be markdown, html, or json")
		return
	}

	result, err := s.runner.Result(r.Context(), task.TaskID)
	if err != nil {
		storeError(w, err)
		return
	}
	artifact, err := s.reports.Report(r.Context(), task, result, format)
	if err != nil {
		storeError(w, err)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+artifact.Name+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(artifact.Content))
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	task := s.ownedTask(w, r)
	if task == nil {
		return
	}
	if err := s.runner.Cancel(task.TaskID); err != nil {
		if errors.Is(err, orchestrator.ErrTerminal) {
			writeError(w, http.StatusConflict, "task already finished")
			return
		}
		storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"task_id": task.TaskID,
		"status":  string(research.StatusCancelled),
	})
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	task := s.ownedTask(w, r)
	if task == nil {
		return
	}
	if !task.Terminal() {
		// Stop the pipeline before removing the record; a finished-by-now
		// task makes Cancel report terminal, which is fine here.
		if err := s.runner.Cancel(task.TaskID); err != nil &&
			!errors.Is(err, orchestrator.ErrTerminal) && !errors.Is(err, store.ErrNotFound) {
			storeError(w, err)
			return
		}
	}
	if err := s.store.Tasks().Delete(r.Context(), task.TaskID); err != nil {
		storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
