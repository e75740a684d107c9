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

var _ store.ResultRepo = (*resultRepo)(nil)

type resultRepo struct {
	db querier
}

func (r *resultRepo) Create(ctx context.Context, res *research.Result) error {
	if res.ID == uuid.Nil {
		res.ID = uuid.New()
	}
	if res.CreatedAt.IsZero() {
		res.CreatedAt = time.Now().UTC()
	}

	synthesis, err := marshalJSON("results: create", res.Synthesis)
	if err != nil {
		return err
	}
	sources, err := marshalJSON("results: create", sourcesOrEmpty(res.Sources))
	if err != nil {
		return err
	}
	media, err := marshalJSON("results: create", mediaOrEmpty(res.FeaturedMedia))
	if err != nil {
		return err
	}
	metadata, err := marshalJSON("results: create", res.Metadata)
	if err != nil {
		return err
	}

	var analysis, detail []byte
	if res.QueryAnalysis != nil {
		if analysis, err = marshalJSON("results: create", res.QueryAnalysis); err != nil {
			return err
		}
	}
	if res.DetailedAnalysis != nil {
		if detail, err = marshalJSON("results: create", res.DetailedAnalysis); err != nil {
			return err
		}
	}

	const q = `
		INSERT INTO research_results
		    (id, task_id, synthesis, sources, query_analysis, detailed_analysis,
		     featured_media, metadata, sources_used, synthesis_embedding, query_embedding, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err = r.db.Exec(ctx, q,
		res.ID, res.TaskID, synthesis, sources, analysis, detail,
		media, metadata, res.SourcesUsed,
		nullVector(res.SynthesisEmbedding), nullVector(res.QueryEmbedding),
		res.CreatedAt,
	)
	if err != nil {
		return wrapErr("results: create", err)
	}
	return nil
}

func (r *resultRepo) ByTaskUUID(ctx context.Context, taskUUID uuid.UUID) (*research.Result, error) {
	const q = `
		SELECT id, task_id, synthesis, sources, query_analysis, detailed_analysis,
		       featured_media, metadata, sources_used, synthesis_embedding, query_embedding, created_at
		FROM   research_results
		WHERE  task_id = $1`

	var (
		res                research.Result
		synthesis, sources []byte
		analysis, detail   []byte
		media, metadata    []byte
		synVec, qVec       *pgvector.Vector
	)
	err := r.db.QueryRow(ctx, q, taskUUID).Scan(
		&res.ID, &res.TaskID, &synthesis, &sources, &analysis, &detail,
		&media, &metadata, &res.SourcesUsed, &synVec, &qVec, &res.CreatedAt,
	)
	if err != nil {
		return nil, wrapErr("results: by task", err)
	}

	const op = "results: by task"
	if err := unmarshalJSON(op, synthesis, &res.Synthesis); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(op, sources, &res.Sources); err != nil {
		return nil, err
	}
	if len(analysis) > 0 {
		res.QueryAnalysis = &research.QueryAnalysis{}
		if err := unmarshalJSON(op, analysis, res.QueryAnalysis); err != nil {
			return nil, err
		}
	}
	if len(detail) > 0 {
		res.DetailedAnalysis = &research.DetailedAnalysis{}
		if err := unmarshalJSON(op, detail, res.DetailedAnalysis); err != nil {
			return nil, err
		}
	}
	if err := unmarshalJSON(op, media, &res.FeaturedMedia); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(op, metadata, &res.Metadata); err != nil {
		return nil, err
	}
	if synVec != nil {
		res.SynthesisEmbedding = synVec.Slice()
	}
	if qVec != nil {
		res.QueryEmbedding = qVec.Slice()
	}
	return &res, nil
}

func (r *resultRepo) SearchSynthesis(ctx context.Context, embedding []float32, taskUUIDs []uuid.UUID, limit int) ([]store.SynthesisHit, error) {
	if len(taskUUIDs) == 0 {
		return []store.SynthesisHit{}, nil
	}

	const q = `
		SELECT t.id, t.task_id, t.query,
		       coalesce(r.synthesis->>'executive_summary', ''),
		       1 - (r.synthesis_embedding <=> $1) AS similarity,
		       r.created_at
		FROM   research_results r
		JOIN   research_tasks t ON t.id = r.task_id
		WHERE  r.task_id = ANY($2)
		  AND  r.synthesis_embedding IS NOT NULL
		ORDER  BY r.synthesis_embedding <=> $1
		LIMIT  $3`

	rows, err := r.db.Query(ctx, q, pgvector.NewVector(embedding), taskUUIDs, limit)
	if err != nil {
		return nil, wrapErr("results: search synthesis", err)
	}

	hits, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (store.SynthesisHit, error) {
		var h store.SynthesisHit
		err := row.Scan(&h.TaskUUID, &h.TaskID, &h.Query, &h.Content, &h.Similarity, &h.CreatedAt)
		return h, err
	})
	if err != nil {
		return nil, fmt.Errorf("results: search synthesis: scan rows: %w", err)
	}
	if hits == nil {
		hits = []store.SynthesisHit{}
	}
	return hits, nil
}

func sourcesOrEmpty(s []research.SourceSummary) []research.SourceSummary {
	if s == nil {
		return []research.SourceSummary{}
	}
	return s
}

func mediaOrEmpty(m []research.MediaItem) []research.MediaItem {
	if m == nil {
		return []research.MediaItem{}
	}
	return m
}
