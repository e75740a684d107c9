// Package orchestrator drives the staged research pipeline: query analysis,
// web search, content fetching, per-source summarization, synthesis, and
// detailed analysis, with durable task state at every stage boundary.
//
// The orchestrator keeps a read-mostly in-memory task table for status
// polling and cancellation; the database remains authoritative. Status
// updates are written memory-first, with the durable write running off the
// critical path; terminal statuses are written synchronously before a task
// run returns.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/recondite-labs/scholarpipe/internal/observe"
	"github.com/recondite-labs/scholarpipe/internal/research"
	"github.com/recondite-labs/scholarpipe/internal/store"
	"github.com/recondite-labs/scholarpipe/internal/synthesis"
	"github.com/recondite-labs/scholarpipe/pkg/embed"
	"github.com/recondite-labs/scholarpipe/pkg/search"
	"github.com/recondite-labs/scholarpipe/pkg/webfetch"
)

// Fatal pipeline outcomes.
var (
	ErrNoSearchResults = errors.New("no search results found")
	ErrNoContent       = errors.New("no content available")
)

// ErrTerminal is returned by Cancel when the task has already finished.
var ErrTerminal = errors.New("orchestrator: task already terminal")

// Progress checkpoints per stage.
const (
	progressAnalyzing   = 10
	progressSearching   = 25
	progressFetching    = 50
	progressSummarizing = 70
	progressSynthesis   = 85
	progressComplete    = 100
)

// Defaults applied by New when the config leaves them zero.
const (
	defaultMaxTaskAge         = time.Hour
	defaultStatusWriteTimeout = 5 * time.Second
)

// reformatTimeout bounds the executive-summary reformat call.
const reformatTimeout = 30 * time.Second

// Searcher is the slice of the search client the pipeline needs.
type Searcher interface {
	BatchSearch(ctx context.Context, queries []string, limitPerQuery int) (map[string][]search.Result, error)
}

// Fetcher is the slice of the web fetcher the pipeline needs.
type Fetcher interface {
	BatchFetch(ctx context.Context, urls []string) []webfetch.Content
}

// GraphBuilder builds the knowledge graph for a persisted result.
type GraphBuilder interface {
	Build(ctx context.Context, taskUUID uuid.UUID, result *research.Result) error
}

// Config wires the orchestrator's collaborators.
type Config struct {
	Store    store.Store
	Search   Searcher
	Fetcher  Fetcher
	Engine   *synthesis.Engine
	Embedder embed.Provider
	Graph    GraphBuilder

	// MaxTaskAge bounds how long finished tasks stay in the in-memory
	// table before lazy pruning removes them.
	MaxTaskAge time.Duration

	// StatusWriteTimeout bounds each durable status write.
	StatusWriteTimeout time.Duration
}

// taskEntry is one registered task. The task pointer is shared with the
// running pipeline; all access goes through the orchestrator mutex.
type taskEntry struct {
	task   *research.Task
	cancel context.CancelFunc
	doneAt time.Time
}

// Orchestrator runs research tasks. Safe for concurrent use.
type Orchestrator struct {
	store    store.Store
	search   Searcher
	fetcher  Fetcher
	engine   *synthesis.Engine
	embedder embed.Provider
	graph    GraphBuilder
	metrics  *observe.Metrics

	maxTaskAge    time.Duration
	statusTimeout time.Duration

	mu    sync.RWMutex
	tasks map[string]*taskEntry

	wg sync.WaitGroup
}

// New constructs an Orchestrator from cfg, applying defaults for the zero
// tuning fields.
func New(cfg Config) *Orchestrator {
	if cfg.MaxTaskAge <= 0 {
		cfg.MaxTaskAge = defaultMaxTaskAge
	}
	if cfg.StatusWriteTimeout <= 0 {
		cfg.StatusWriteTimeout = defaultStatusWriteTimeout
	}
	return &Orchestrator{
		store:         cfg.Store,
		search:        cfg.Search,
		fetcher:       cfg.Fetcher,
		engine:        cfg.Engine,
		embedder:      cfg.Embedder,
		graph:         cfg.Graph,
		metrics:       observe.DefaultMetrics(),
		maxTaskAge:    cfg.MaxTaskAge,
		statusTimeout: cfg.StatusWriteTimeout,
		tasks:         make(map[string]*taskEntry),
	}
}

// Launch validates and persists task, registers it, and starts the pipeline
// in the background. The task is mutated in place: defaults are filled and
// the lifecycle fields advance as the pipeline runs.
func (o *Orchestrator) Launch(ctx context.Context, task *research.Task) error {
	if task.Query == "" {
		return errors.New("orchestrator: empty query")
	}
	if task.Depth == "" {
		task.Depth = research.DepthStandard
	}
	if !task.Depth.IsValid() {
		return fmt.Errorf("orchestrator: invalid depth %q", task.Depth)
	}
	if task.TaskID == "" {
		task.TaskID = research.NewTaskID()
	}
	if task.MaxSources <= 0 {
		task.MaxSources = research.Settings(task.Depth).MaxSources
	}
	if task.MaxSources > research.MaxSourcesLimit {
		return fmt.Errorf("orchestrator: max sources %d exceeds limit %d",
			task.MaxSources, research.MaxSourcesLimit)
	}
	task.Status = research.StatusPending
	task.Progress = 0

	if err := o.store.Tasks().Create(ctx, task); err != nil {
		return fmt.Errorf("orchestrator: create task: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	o.mu.Lock()
	o.pruneLocked()
	o.tasks[task.TaskID] = &taskEntry{task: task, cancel: cancel}
	o.mu.Unlock()
	o.metrics.TaskStarted(ctx, string(task.Depth))

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer cancel()
		if _, err := o.Execute(runCtx, task); err != nil {
			if errors.Is(err, context.Canceled) {
				slog.Info("research task cancelled", "task", task.TaskID)
				return
			}
			slog.Error("research task failed", "task", task.TaskID, "error", err)
		}
	}()
	return nil
}

// Status returns a snapshot of the task, preferring the in-memory copy and
// falling back to the database for tasks no longer registered.
func (o *Orchestrator) Status(ctx context.Context, taskID string) (*research.Task, error) {
	o.mu.RLock()
	entry, ok := o.tasks[taskID]
	if ok {
		snapshot := *entry.task
		snapshot.Warnings = slices.Clone(entry.task.Warnings)
		o.mu.RUnlock()
		return &snapshot, nil
	}
	o.mu.RUnlock()

	task, err := o.store.Tasks().ByTaskID(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: status %s: %w", taskID, err)
	}
	return task, nil
}

// Result returns the stored result of a completed task.
func (o *Orchestrator) Result(ctx context.Context, taskID string) (*research.Result, error) {
	task, err := o.Status(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status != research.StatusCompleted {
		return nil, fmt.Errorf("orchestrator: result %s: task is %s: %w",
			taskID, task.Status, store.ErrNotFound)
	}
	result, err := o.store.Results().ByTaskUUID(ctx, task.ID)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: result %s: %w", taskID, err)
	}
	return result, nil
}

// Cancel flips a registered, non-terminal task to cancelled and stops its
// pipeline. In-flight stages observe the cancellation at their next deadline
// check and abort without producing a result.
func (o *Orchestrator) Cancel(taskID string) error {
	o.mu.RLock()
	entry, ok := o.tasks[taskID]
	if !ok {
		o.mu.RUnlock()
		return fmt.Errorf("orchestrator: cancel %s: %w", taskID, store.ErrNotFound)
	}
	if entry.task.Status.IsTerminal() {
		o.mu.RUnlock()
		return ErrTerminal
	}
	o.mu.RUnlock()

	o.finish(entry.task, research.StatusCancelled, "")
	entry.cancel()
	return nil
}

// Close cancels every running task and waits for all pipelines and pending
// status writes to drain.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	for _, entry := range o.tasks {
		entry.cancel()
	}
	o.mu.Unlock()
	o.wg.Wait()
}

// pruneLocked drops finished entries older than maxTaskAge. Caller holds the
// write lock.
func (o *Orchestrator) pruneLocked() {
	cutoff := time.Now().Add(-o.maxTaskAge)
	for id, entry := range o.tasks {
		if !entry.doneAt.IsZero() && entry.doneAt.Before(cutoff) {
			delete(o.tasks, id)
		}
	}
}

// transition advances the task to a new status and progress, memory first.
// The durable write runs asynchronously; terminal states never transition.
func (o *Orchestrator) transition(t *research.Task, status research.Status, progress int) {
	now := time.Now().UTC()
	o.mu.Lock()
	if t.Status.IsTerminal() {
		o.mu.Unlock()
		return
	}
	t.Status = status
	t.Progress = progress
	upd := research.TaskUpdate{Status: &status, Progress: &progress}
	if t.StartedAt == nil {
		t.StartedAt = &now
		upd.StartedAt = &now
	}
	taskID := t.TaskID
	o.mu.Unlock()

	o.writeAsync(taskID, upd)
}

// setProgress records a monotonic progress bump without a status change.
func (o *Orchestrator) setProgress(t *research.Task, progress int) {
	o.mu.Lock()
	if t.Status.IsTerminal() || progress <= t.Progress {
		o.mu.Unlock()
		return
	}
	t.Progress = progress
	taskID := t.TaskID
	o.mu.Unlock()

	o.writeAsync(taskID, research.TaskUpdate{Progress: &progress})
}

// addWarning appends a degradation notice to the task record.
func (o *Orchestrator) addWarning(t *research.Task, msg string) {
	o.mu.Lock()
	t.Warnings = append(t.Warnings, msg)
	o.mu.Unlock()
	slog.Warn("pipeline degraded", "task", t.TaskID, "warning", msg)
}

// finish moves the task to a terminal status. Unlike transition, the durable
// write is synchronous: callers may rely on the database reflecting the
// terminal state when finish returns.
func (o *Orchestrator) finish(t *research.Task, status research.Status, errMsg string) {
	now := time.Now().UTC()
	o.mu.Lock()
	if t.Status.IsTerminal() {
		o.mu.Unlock()
		return
	}
	t.Status = status
	t.ErrorMessage = errMsg
	t.CompletedAt = &now
	if status == research.StatusCompleted {
		t.Progress = progressComplete
	}
	progress := t.Progress
	warnings := slices.Clone(t.Warnings)
	taskID := t.TaskID
	depth := t.Depth
	if entry, ok := o.tasks[taskID]; ok {
		entry.doneAt = now
	}
	o.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), o.statusTimeout)
	defer cancel()

	o.metrics.TaskDone(ctx, string(depth), string(status))

	if len(warnings) > 0 {
		if err := o.store.Tasks().SetWarnings(ctx, taskID, warnings); err != nil {
			slog.Warn("warning write failed", "task", taskID, "error", err)
		}
	}
	upd := research.TaskUpdate{Status: &status, Progress: &progress, CompletedAt: &now}
	if errMsg != "" {
		upd.ErrorMessage = &errMsg
	}
	if err := o.store.Tasks().Update(ctx, taskID, upd); err != nil {
		slog.Warn("terminal status write failed", "task", taskID, "error", err)
	}
}

// writeAsync performs a durable task update off the critical path. Failures
// degrade to warnings; the in-memory state already carries the change.
func (o *Orchestrator) writeAsync(taskID string, upd research.TaskUpdate) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), o.statusTimeout)
		defer cancel()
		if err := o.store.Tasks().Update(ctx, taskID, upd); err != nil {
			slog.Warn("status write failed", "task", taskID, "error", err)
		}
	}()
}
