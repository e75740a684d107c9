// Package rag implements hybrid retrieval over the accumulated research
// corpus: vector-nearest-neighbor search over stored synthesis embeddings and
// graph traversal over knowledge-graph nodes, merged into one re-ranked
// context window for chat responses.
package rag

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/google/uuid"

	"github.com/recondite-labs/scholarpipe/internal/store"
	"github.com/recondite-labs/scholarpipe/pkg/embed"
)

// maxCorpusTasks bounds how many recent tasks a retrieval searches over.
const maxCorpusTasks = 50

// vectorBoost is the small prior applied to vector-branch scores before the
// merged ranking.
const vectorBoost = 1.10

// contentChars truncates retrieved content snippets.
const contentChars = 500

// dedupePrefixLen is the content prefix length used for merge deduplication.
const dedupePrefixLen = 100

// maxNeighbors caps the one-hop expansion of each graph hit.
const maxNeighbors = 5

// DefaultTopK is the result cap used when a query carries none.
const DefaultTopK = 10

// Source identifies where a retrieved item came from, snapshotted onto chat
// messages.
type Source struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"task_id,omitempty"`
	Query     string    `json:"query,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// RelatedNode is one neighbor attached to a graph-branch item.
type RelatedNode struct {
	ID       string  `json:"id"`
	Type     string  `json:"type"`
	Value    string  `json:"value"`
	Relation string  `json:"relation"`
	Weight   float64 `json:"weight"`
}

// Item is one retrieved context entry.
type Item struct {
	// Type is "synthesis" for vector hits and "graph" for node hits.
	Type string `json:"type"`

	Content    string  `json:"content"`
	Similarity float64 `json:"similarity"`

	// FinalScore is the ranking key after the vector boost.
	FinalScore float64 `json:"final_score"`

	Source   Source         `json:"source"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Related  []RelatedNode  `json:"related,omitempty"`
}

// Context is the outcome of one retrieval. Combined is sorted non-increasing
// by FinalScore and contains no two entries sharing a 100-character content
// prefix; Sources holds unique source ids in combined order, capped at the
// requested top-k.
type Context struct {
	VectorResults []Item   `json:"vector_results"`
	GraphResults  []Item   `json:"graph_results"`
	Combined      []Item   `json:"combined_results"`
	Sources       []Source `json:"sources"`
}

// Query parameterizes one retrieval.
type Query struct {
	Text   string
	UserID uuid.UUID

	// TopK caps each branch and the source list. Zero means [DefaultTopK].
	TopK int

	// UseVector and UseGraph enable the two branches. A query with both
	// false retrieves nothing.
	UseVector bool
	UseGraph  bool
}

// Retriever performs hybrid retrieval. It never mutates state and is safe for
// concurrent use.
type Retriever struct {
	store    store.Store
	embedder embed.Provider
}

// New constructs a Retriever.
func New(st store.Store, embedder embed.Provider) *Retriever {
	return &Retriever{store: st, embedder: embedder}
}

// Retrieve runs the enabled branches concurrently and merges their results.
// A user with no completed research yields an empty Context, not an error.
func (r *Retriever) Retrieve(ctx context.Context, q Query) (*Context, error) {
	if q.TopK <= 0 {
		q.TopK = DefaultTopK
	}

	tasks, err := r.store.Tasks().RecentCompleted(ctx, q.UserID, maxCorpusTasks)
	if err != nil {
		return nil, fmt.Errorf("rag: load corpus: %w", err)
	}
	if len(tasks) == 0 {
		return &Context{Combined: []Item{}, Sources: []Source{}}, nil
	}
	taskUUIDs := make([]uuid.UUID, len(tasks))
	for i, t := range tasks {
		taskUUIDs[i] = t.ID
	}

	queryVec, err := r.embedder.Embed(ctx, q.Text)
	if err != nil {
		return nil, fmt.Errorf("rag: embed query: %w", err)
	}

	var vectorItems, graphItems []Item
	g, gctx := errgroup.WithContext(ctx)
	if q.UseVector {
		g.Go(func() error {
			var err error
			vectorItems, err = r.vectorBranch(gctx, queryVec, taskUUIDs, q.TopK)
			return err
		})
	}
	if q.UseGraph {
		g.Go(func() error {
			var err error
			graphItems, err = r.graphBranch(gctx, queryVec, taskUUIDs, q.TopK)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &Context{
		VectorResults: vectorItems,
		GraphResults:  graphItems,
	}
	out.Combined = Merge(vectorItems, graphItems)
	out.Sources = uniqueSources(out.Combined, q.TopK)

	slog.Debug("hybrid retrieval complete",
		"vector", len(vectorItems), "graph", len(graphItems),
		"combined", len(out.Combined))
	return out, nil
}

// vectorBranch runs nearest-neighbor search over synthesis embeddings.
func (r *Retriever) vectorBranch(ctx context.Context, queryVec []float32, taskUUIDs []uuid.UUID, topK int) ([]Item, error) {
	hits, err := r.store.Results().SearchSynthesis(ctx, queryVec, taskUUIDs, topK)
	if err != nil {
		return nil, fmt.Errorf("rag: vector search: %w", err)
	}
	items := make([]Item, 0, len(hits))
	for _, h := range hits {
		items = append(items, Item{
			Type:       "synthesis",
			Content:    truncate(h.Content, contentChars),
			Similarity: h.Similarity,
			Source: Source{
				ID:        h.TaskID,
				TaskID:    h.TaskID,
				Query:     h.Query,
				CreatedAt: h.CreatedAt,
			},
		})
	}
	return items, nil
}

// graphBranch runs nearest-neighbor search over graph nodes, expanding each
// hit one hop along its heaviest edges.
func (r *Retriever) graphBranch(ctx context.Context, queryVec []float32, taskUUIDs []uuid.UUID, topK int) ([]Item, error) {
	hits, err := r.store.Graph().SearchNodes(ctx, queryVec, taskUUIDs, topK)
	if err != nil {
		return nil, fmt.Errorf("rag: graph search: %w", err)
	}
	items := make([]Item, 0, len(hits))
	for _, h := range hits {
		item := Item{
			Type:       "graph",
			Content:    truncate(h.Node.NodeValue, contentChars),
			Similarity: h.Similarity,
			Source:     Source{ID: h.Node.ID.String()},
			Metadata:   map[string]any{"node_type": h.Node.NodeType},
		}
		neighbors, err := r.store.Graph().Neighbors(ctx, h.Node.ID, maxNeighbors)
		if err != nil {
			slog.Warn("neighbor expansion failed", "node", h.Node.ID, "error", err)
		}
		for _, n := range neighbors {
			item.Related = append(item.Related, RelatedNode{
				ID:       n.Node.ID.String(),
				Type:     n.Node.NodeType,
				Value:    truncate(n.Node.NodeValue, 200),
				Relation: n.EdgeType,
				Weight:   n.Weight,
			})
		}
		items = append(items, item)
	}
	return items, nil
}

// Merge combines the two branches: vector items get the boost prior, the
// union is sorted by final score descending, and entries sharing a
// 100-character content prefix collapse to the highest-scored one.
func Merge(vectorItems, graphItems []Item) []Item {
	combined := make([]Item, 0, len(vectorItems)+len(graphItems))
	for _, it := range vectorItems {
		it.FinalScore = it.Similarity * vectorBoost
		combined = append(combined, it)
	}
	for _, it := range graphItems {
		it.FinalScore = it.Similarity
		combined = append(combined, it)
	}

	// Insertion sort keeps the merge stable for equal scores.
	for i := 1; i < len(combined); i++ {
		for j := i; j > 0 && combined[j].FinalScore > combined[j-1].FinalScore; j-- {
			combined[j], combined[j-1] = combined[j-1], combined[j]
		}
	}

	seen := make(map[string]struct{}, len(combined))
	deduped := combined[:0]
	for _, it := range combined {
		key := truncate(it.Content, dedupePrefixLen)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		deduped = append(deduped, it)
	}
	return deduped
}

// uniqueSources collects distinct source ids in combined order, capped at
// topK.
func uniqueSources(combined []Item, topK int) []Source {
	seen := make(map[string]struct{}, len(combined))
	sources := make([]Source, 0, topK)
	for _, it := range combined {
		if it.Source.ID == "" {
			continue
		}
		if _, ok := seen[it.Source.ID]; ok {
			continue
		}
		seen[it.Source.ID] = struct{}{}
		sources = append(sources, it.Source)
		if len(sources) == topK {
			break
		}
	}
	return sources
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
