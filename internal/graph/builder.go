// Package graph builds the per-task knowledge graph from a completed
// research result: a topic node for the executive summary, one finding node
// per key finding, one source node per top source, and similarity-weighted
// related_to edges between every pair of nodes that clears the threshold.
package graph

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/recondite-labs/scholarpipe/internal/research"
	"github.com/recondite-labs/scholarpipe/internal/store"
	"github.com/recondite-labs/scholarpipe/pkg/embed"
)

// maxSourceNodes caps how many sources become graph nodes.
const maxSourceNodes = 10

// similarityThreshold is the minimum cosine similarity for a related_to edge.
const similarityThreshold = 0.5

// topicValueChars truncates the executive summary used as the topic node
// value.
const topicValueChars = 200

// previewChars truncates source summaries stored as node properties.
const previewChars = 200

// sourceEmbedChars truncates the summary text fed to source-node embeddings.
const sourceEmbedChars = 500

// Builder emits graph nodes and edges for completed tasks. It is stateless
// beyond its dependencies and safe for concurrent use.
type Builder struct {
	store    store.Store
	embedder embed.Provider
}

// New constructs a Builder.
func New(st store.Store, embedder embed.Provider) *Builder {
	return &Builder{store: st, embedder: embedder}
}

// Build creates the knowledge graph for a completed task inside one
// transaction. Building an already-built task is a no-op: existing nodes are
// detected up front and the edge identity constraint would absorb re-inserts
// regardless.
func (b *Builder) Build(ctx context.Context, taskUUID uuid.UUID, result *research.Result) error {
	existing, err := b.store.Graph().NodesByTask(ctx, taskUUID)
	if err != nil {
		return fmt.Errorf("graph: list nodes: %w", err)
	}
	if len(existing) > 0 {
		slog.Debug("graph already built, skipping", "task", taskUUID, "nodes", len(existing))
		return nil
	}

	nodes, err := b.assembleNodes(ctx, taskUUID, result)
	if err != nil {
		return err
	}
	if len(nodes) == 0 {
		return nil
	}

	edges := relatedEdges(nodes)

	err = b.store.WithTx(ctx, func(tx store.Store) error {
		for i := range nodes {
			if err := tx.Graph().CreateNode(ctx, &nodes[i]); err != nil {
				return fmt.Errorf("create node %q: %w", nodes[i].NodeType, err)
			}
		}
		for i := range edges {
			if err := tx.Graph().CreateEdge(ctx, &edges[i]); err != nil {
				return fmt.Errorf("create edge: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("graph: build task %s: %w", taskUUID, err)
	}

	slog.Info("knowledge graph built",
		"task", taskUUID, "nodes", len(nodes), "edges", len(edges))
	return nil
}

// assembleNodes creates the in-memory node set with embeddings. Nodes whose
// embedding fails are dropped with a warning rather than failing the build.
func (b *Builder) assembleNodes(ctx context.Context, taskUUID uuid.UUID, result *research.Result) ([]research.GraphNode, error) {
	type candidate struct {
		nodeType   string
		value      string
		embedText  string
		properties map[string]any
	}

	var candidates []candidate

	if summary := result.Synthesis.ExecutiveSummary; summary != "" {
		value := "Research: " + truncate(summary, topicValueChars)
		candidates = append(candidates, candidate{
			nodeType:   research.NodeTopic,
			value:      value,
			embedText:  value,
			properties: map[string]any{"source": "executive_summary"},
		})
	}

	for i, f := range result.Synthesis.KeyFindings {
		if f.Finding == "" {
			continue
		}
		candidates = append(candidates, candidate{
			nodeType:  research.NodeFinding,
			value:     f.Finding,
			embedText: f.Finding,
			properties: map[string]any{
				"importance": f.ImpactScore,
				"index":      i,
			},
		})
	}

	for i, s := range result.Sources {
		if i == maxSourceNodes {
			break
		}
		value := s.Title
		if value == "" {
			value = s.URL
		}
		candidates = append(candidates, candidate{
			nodeType:  research.NodeSource,
			value:     value,
			embedText: value + ": " + truncate(s.Summary, sourceEmbedChars),
			properties: map[string]any{
				"url":             s.URL,
				"content_preview": truncate(s.Summary, previewChars),
			},
		})
	}

	if len(candidates) == 0 {
		return nil, nil
	}

	texts := make([]string, len(candidates))
	for i, c := range candidates {
		texts[i] = c.embedText
	}
	vectors, err := b.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("graph: embed nodes: %w", err)
	}

	now := time.Now().UTC()
	nodes := make([]research.GraphNode, 0, len(candidates))
	for i, c := range candidates {
		if len(vectors[i]) == 0 {
			slog.Warn("node embedding empty, dropping node", "type", c.nodeType)
			continue
		}
		nodes = append(nodes, research.GraphNode{
			ID:         uuid.New(),
			TaskID:     taskUUID,
			NodeType:   c.nodeType,
			NodeValue:  c.value,
			Properties: c.properties,
			Embedding:  vectors[i],
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	}
	return nodes, nil
}

// relatedEdges produces related_to edges for every ordered node pair whose
// cosine similarity exceeds the threshold. Weight equals the similarity at
// insertion time.
func relatedEdges(nodes []research.GraphNode) []research.GraphEdge {
	now := time.Now().UTC()
	var edges []research.GraphEdge
	for i := range nodes {
		for j := i + 1; j < len(nodes); j++ {
			sim := embed.Cosine(nodes[i].Embedding, nodes[j].Embedding)
			if sim <= similarityThreshold {
				continue
			}
			edges = append(edges, research.GraphEdge{
				ID:           uuid.New(),
				SourceNodeID: nodes[i].ID,
				TargetNodeID: nodes[j].ID,
				EdgeType:     research.EdgeRelatedTo,
				Weight:       sim,
				Properties:   map[string]any{"similarity_score": sim},
				CreatedAt:    now,
			})
		}
	}
	return edges
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
