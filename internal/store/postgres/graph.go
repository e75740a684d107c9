package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/recondite-labs/scholarpipe/internal/research"
	"github.com/recondite-labs/scholarpipe/internal/store"
)

var _ store.GraphRepo = (*graphRepo)(nil)

type graphRepo struct {
	db querier
}

const nodeColumns = `id, task_id, node_type, node_value, properties, embedding, created_at, updated_at`

func (r *graphRepo) CreateNode(ctx context.Context, n *research.GraphNode) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	now := time.Now().UTC()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now
	}
	if n.UpdatedAt.IsZero() {
		n.UpdatedAt = now
	}
	props, err := marshalJSON("graph: create node", n.Properties)
	if err != nil {
		return err
	}

	const q = `
		INSERT INTO graph_nodes
		    (id, task_id, node_type, node_value, properties, embedding, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err = r.db.Exec(ctx, q,
		n.ID, n.TaskID, n.NodeType, n.NodeValue, props,
		nullVector(n.Embedding), n.CreatedAt, n.UpdatedAt,
	)
	if err != nil {
		return wrapErr("graph: create node", err)
	}
	return nil
}

func (r *graphRepo) CreateEdge(ctx context.Context, e *research.GraphEdge) error {
	if e.SourceNodeID == e.TargetNodeID {
		return fmt.Errorf("graph: create edge: %w", store.ErrSelfLoop)
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	props, err := marshalJSON("graph: create edge", e.Properties)
	if err != nil {
		return err
	}

	// (source, target, type) is the edge identity; re-inserting an existing
	// edge leaves the stored row untouched so graph rebuilds are idempotent.
	const q = `
		INSERT INTO graph_edges
		    (id, source_node_id, target_node_id, edge_type, weight, properties, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (source_node_id, target_node_id, edge_type) DO NOTHING`

	_, err = r.db.Exec(ctx, q,
		e.ID, e.SourceNodeID, e.TargetNodeID, e.EdgeType, e.Weight, props, e.CreatedAt,
	)
	if err != nil {
		return wrapErr("graph: create edge", err)
	}
	return nil
}

func (r *graphRepo) NodesByTask(ctx context.Context, taskUUID uuid.UUID) ([]research.GraphNode, error) {
	q := fmt.Sprintf(`
		SELECT %s FROM graph_nodes
		WHERE  task_id = $1
		ORDER  BY created_at`, nodeColumns)

	rows, err := r.db.Query(ctx, q, taskUUID)
	if err != nil {
		return nil, wrapErr("graph: nodes by task", err)
	}

	nodes, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (research.GraphNode, error) {
		return scanNode(row.Scan)
	})
	if err != nil {
		return nil, fmt.Errorf("graph: nodes by task: scan rows: %w", err)
	}
	if nodes == nil {
		nodes = []research.GraphNode{}
	}
	return nodes, nil
}

func (r *graphRepo) DeleteTaskGraph(ctx context.Context, taskUUID uuid.UUID) error {
	// Edges cascade from their endpoint nodes.
	_, err := r.db.Exec(ctx, `DELETE FROM graph_nodes WHERE task_id = $1`, taskUUID)
	if err != nil {
		return wrapErr("graph: delete task graph", err)
	}
	return nil
}

func (r *graphRepo) SearchNodes(ctx context.Context, embedding []float32, taskUUIDs []uuid.UUID, limit int) ([]store.NodeHit, error) {
	if len(taskUUIDs) == 0 {
		return []store.NodeHit{}, nil
	}

	q := fmt.Sprintf(`
		SELECT %s, 1 - (embedding <=> $1) AS similarity
		FROM   graph_nodes
		WHERE  task_id = ANY($2)
		  AND  embedding IS NOT NULL
		ORDER  BY embedding <=> $1
		LIMIT  $3`, nodeColumns)

	rows, err := r.db.Query(ctx, q, pgvector.NewVector(embedding), taskUUIDs, limit)
	if err != nil {
		return nil, wrapErr("graph: search nodes", err)
	}

	hits, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (store.NodeHit, error) {
		var h store.NodeHit
		n, err := scanNodeWith(row.Scan, &h.Similarity)
		if err != nil {
			return store.NodeHit{}, err
		}
		h.Node = n
		return h, nil
	})
	if err != nil {
		return nil, fmt.Errorf("graph: search nodes: scan rows: %w", err)
	}
	if hits == nil {
		hits = []store.NodeHit{}
	}
	return hits, nil
}

func (r *graphRepo) Neighbors(ctx context.Context, nodeID uuid.UUID, limit int) ([]store.Neighbor, error) {
	const q = `
		SELECT n.id, n.task_id, n.node_type, n.node_value, n.properties, n.embedding,
		       n.created_at, n.updated_at, e.edge_type, e.weight
		FROM   graph_edges e
		JOIN   graph_nodes n
		  ON   n.id = CASE WHEN e.source_node_id = $1 THEN e.target_node_id
		                   ELSE e.source_node_id END
		WHERE  e.source_node_id = $1 OR e.target_node_id = $1
		ORDER  BY e.weight DESC
		LIMIT  $2`

	rows, err := r.db.Query(ctx, q, nodeID, limit)
	if err != nil {
		return nil, wrapErr("graph: neighbors", err)
	}

	neighbors, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (store.Neighbor, error) {
		var (
			nb       store.Neighbor
			props    []byte
			embed    *pgvector.Vector
			edgeType string
			weight   float64
		)
		err := row.Scan(
			&nb.Node.ID, &nb.Node.TaskID, &nb.Node.NodeType, &nb.Node.NodeValue,
			&props, &embed, &nb.Node.CreatedAt, &nb.Node.UpdatedAt, &edgeType, &weight,
		)
		if err != nil {
			return store.Neighbor{}, err
		}
		if err := unmarshalJSON("graph: neighbors", props, &nb.Node.Properties); err != nil {
			return store.Neighbor{}, err
		}
		if embed != nil {
			nb.Node.Embedding = embed.Slice()
		}
		nb.EdgeType = edgeType
		nb.Weight = weight
		return nb, nil
	})
	if err != nil {
		return nil, fmt.Errorf("graph: neighbors: scan rows: %w", err)
	}
	if neighbors == nil {
		neighbors = []store.Neighbor{}
	}
	return neighbors, nil
}

func scanNode(scan func(dest ...any) error) (research.GraphNode, error) {
	return scanNodeWith(scan)
}

// scanNodeWith scans the node columns plus any trailing extras (similarity).
func scanNodeWith(scan func(dest ...any) error, extra ...any) (research.GraphNode, error) {
	var (
		n     research.GraphNode
		props []byte
		embed *pgvector.Vector
	)
	dest := []any{&n.ID, &n.TaskID, &n.NodeType, &n.NodeValue, &props, &embed, &n.CreatedAt, &n.UpdatedAt}
	dest = append(dest, extra...)
	if err := scan(dest...); err != nil {
		return research.GraphNode{}, err
	}
	if err := unmarshalJSON("graph", props, &n.Properties); err != nil {
		return research.GraphNode{}, err
	}
	if embed != nil {
		n.Embedding = embed.Slice()
	}
	return n, nil
}
