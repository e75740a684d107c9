package research

import (
	"time"

	"github.com/google/uuid"
)

// Graph node types.
const (
	NodeTopic   = "topic"
	NodeFinding = "finding"
	NodeSource  = "source"
)

// EdgeRelatedTo is the similarity edge type. For this type the edge weight
// equals the cosine similarity of the endpoint embeddings at insertion time.
const EdgeRelatedTo = "related_to"

// GraphNode is one element of a task's knowledge graph. Nodes carry the
// embedding of their natural-language value.
type GraphNode struct {
	ID         uuid.UUID
	TaskID     uuid.UUID
	NodeType   string
	NodeValue  string
	Properties map[string]any
	Embedding  []float32
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// GraphEdge is a directed relation between two nodes of the same task.
// (SourceNodeID, TargetNodeID, EdgeType) is unique; self-loops are rejected
// by the store.
type GraphEdge struct {
	ID           uuid.UUID
	SourceNodeID uuid.UUID
	TargetNodeID uuid.UUID
	EdgeType     string
	Weight       float64 // in [0, 1]
	Properties   map[string]any
	CreatedAt    time.Time
}
