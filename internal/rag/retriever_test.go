package rag

import (
	"context"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/recondite-labs/scholarpipe/internal/research"
	storemock "github.com/recondite-labs/scholarpipe/internal/store/mock"
	embedmock "github.com/recondite-labs/scholarpipe/pkg/embed/mock"
)

func TestMergeBoostsAndSorts(t *testing.T) {
	t.Parallel()

	vector := []Item{
		{Type: "synthesis", Content: "alpha", Similarity: 0.70},
		{Type: "synthesis", Content: "beta", Similarity: 0.50},
	}
	graph := []Item{
		{Type: "graph", Content: "gamma", Similarity: 0.76},
	}

	combined := Merge(vector, graph)
	if len(combined) != 3 {
		t.Fatalf("got %d items, want 3", len(combined))
	}
	for i := 1; i < len(combined); i++ {
		if combined[i].FinalScore > combined[i-1].FinalScore {
			t.Fatalf("combined not sorted at %d: %v > %v", i, combined[i].FinalScore, combined[i-1].FinalScore)
		}
	}
	// 0.70 * 1.10 = 0.77 beats the graph hit at 0.76.
	if combined[0].Content != "alpha" {
		t.Errorf("boosted vector item should rank first, got %q", combined[0].Content)
	}
}

func TestMergeDeduplicatesByPrefix(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("x", 150)
	vector := []Item{{Type: "synthesis", Content: long + " tail one", Similarity: 0.9}}
	graph := []Item{{Type: "graph", Content: long + " different tail", Similarity: 0.95}}

	combined := Merge(vector, graph)
	if len(combined) != 1 {
		t.Fatalf("got %d items, want 1 after prefix dedup", len(combined))
	}
	// The boosted vector item (0.99) wins over the graph item (0.95).
	if combined[0].Type != "synthesis" {
		t.Errorf("kept item type = %q, want the higher-scored synthesis item", combined[0].Type)
	}
}

// TestHybridScenario covers the documented case: a vector hit at 0.80 and a
// graph hit at 0.72 over the same underlying content merge to one source with
// a final score of 0.88.
func TestHybridScenario(t *testing.T) {
	t.Parallel()

	content := strings.Repeat("shared finding text ", 10)
	vector := []Item{{Content: content, Similarity: 0.80, Source: Source{ID: "res_1"}}}
	graph := []Item{{Content: content, Similarity: 0.72, Source: Source{ID: "res_1"}}}

	combined := Merge(vector, graph)
	if len(combined) != 1 {
		t.Fatalf("got %d combined items, want 1", len(combined))
	}
	if got := combined[0].FinalScore; math.Abs(got-0.88) > 1e-9 {
		t.Errorf("final score = %v, want 0.88", got)
	}

	sources := uniqueSources(combined, 10)
	if len(sources) != 1 || sources[0].ID != "res_1" {
		t.Errorf("sources = %v, want single res_1", sources)
	}
}

func TestUniqueSourcesCap(t *testing.T) {
	t.Parallel()

	items := []Item{
		{Source: Source{ID: "a"}},
		{Source: Source{ID: "b"}},
		{Source: Source{ID: "a"}},
		{Source: Source{ID: "c"}},
	}
	sources := uniqueSources(items, 2)
	if len(sources) != 2 || sources[0].ID != "a" || sources[1].ID != "b" {
		t.Errorf("got %v, want [a b]", sources)
	}
}

func TestRetrieveEmptyCorpus(t *testing.T) {
	t.Parallel()

	st := storemock.NewStore()
	r := New(st, &embedmock.Provider{EmbedResult: []float32{1, 0}})

	out, err := r.Retrieve(context.Background(), Query{
		Text: "anything", UserID: uuid.New(), UseVector: true, UseGraph: true,
	})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(out.Combined) != 0 || len(out.Sources) != 0 {
		t.Errorf("expected empty context, got %+v", out)
	}
}

func TestRetrieveBothBranches(t *testing.T) {
	t.Parallel()

	st := storemock.NewStore()
	ctx := context.Background()
	userID := uuid.New()

	completed := research.StatusCompleted
	task := &research.Task{
		TaskID: research.NewTaskID(), UserID: userID,
		Query: "meditation benefits", Status: research.StatusPending,
		Depth: research.DepthQuick, MaxSources: 5,
	}
	if err := st.Tasks().Create(ctx, task); err != nil {
		t.Fatalf("create task: %v", err)
	}
	done := time.Now().UTC()
	if err := st.Tasks().Update(ctx, task.TaskID, research.TaskUpdate{Status: &completed, CompletedAt: &done}); err != nil {
		t.Fatalf("complete task: %v", err)
	}

	if err := st.Results().Create(ctx, &research.Result{
		TaskID: task.ID,
		Synthesis: research.Synthesis{
			ExecutiveSummary: "Meditation improves focus and reduces stress in most study populations.",
		},
		SynthesisEmbedding: []float32{1, 0},
	}); err != nil {
		t.Fatalf("create result: %v", err)
	}

	node := &research.GraphNode{
		TaskID:    task.ID,
		NodeType:  research.NodeFinding,
		NodeValue: "Consistent practice lowers cortisol levels.",
		Embedding: []float32{0.9, float32(math.Sqrt(1 - 0.81))},
	}
	if err := st.Graph().CreateNode(ctx, node); err != nil {
		t.Fatalf("create node: %v", err)
	}

	r := New(st, &embedmock.Provider{EmbedResult: []float32{1, 0}})
	out, err := r.Retrieve(ctx, Query{
		Text: "What are the main findings?", UserID: userID,
		TopK: 5, UseVector: true, UseGraph: true,
	})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}

	if len(out.VectorResults) != 1 {
		t.Fatalf("vector results = %d, want 1", len(out.VectorResults))
	}
	if len(out.GraphResults) != 1 {
		t.Fatalf("graph results = %d, want 1", len(out.GraphResults))
	}
	if len(out.Combined) != 2 {
		t.Fatalf("combined = %d, want 2", len(out.Combined))
	}
	// Vector similarity 1.0 boosted to 1.1 outranks the 0.9 graph hit.
	if out.Combined[0].Type != "synthesis" {
		t.Errorf("first combined item type = %q, want synthesis", out.Combined[0].Type)
	}
	if out.Combined[0].Source.TaskID != task.TaskID {
		t.Errorf("vector source task = %q, want %q", out.Combined[0].Source.TaskID, task.TaskID)
	}
}
