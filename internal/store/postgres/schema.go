// Package postgres provides the PostgreSQL-backed implementation of the
// scholarpipe persistence contracts defined in internal/store.
//
// All repositories share a single [pgxpool.Pool]. The pgvector extension must
// be available in the target database; [Migrate] installs it automatically via
// CREATE EXTENSION IF NOT EXISTS.
//
// Usage:
//
//	st, err := postgres.NewStore(ctx, dsn, 384)
//	if err != nil { … }
//	defer st.Close()
//
//	task, err := st.Tasks().ByTaskID(ctx, "res_a1b2c3d4e5f6")
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ─────────────────────────────────────────────────────────────────────────────
// Accounts DDL: users and sessions
// ─────────────────────────────────────────────────────────────────────────────

const ddlAccounts = `
CREATE TABLE IF NOT EXISTS users (
    id            UUID         PRIMARY KEY DEFAULT gen_random_uuid(),
    email         VARCHAR(255) NOT NULL UNIQUE,
    username      VARCHAR(100) NOT NULL UNIQUE,
    password_hash VARCHAR(255) NOT NULL,
    full_name     VARCHAR(255) NOT NULL DEFAULT '',
    is_active     BOOLEAN      NOT NULL DEFAULT TRUE,
    is_verified   BOOLEAN      NOT NULL DEFAULT FALSE,
    preferences   JSONB        NOT NULL DEFAULT '{}',
    created_at    TIMESTAMPTZ  NOT NULL DEFAULT now(),
    updated_at    TIMESTAMPTZ,
    last_login    TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_users_email    ON users (email);
CREATE INDEX IF NOT EXISTS idx_users_username ON users (username);

CREATE TABLE IF NOT EXISTS user_sessions (
    id            UUID         PRIMARY KEY DEFAULT gen_random_uuid(),
    user_id       UUID         NOT NULL REFERENCES users (id) ON DELETE CASCADE,
    token         VARCHAR(500) NOT NULL UNIQUE,
    refresh_token VARCHAR(500) UNIQUE,
    expires_at    TIMESTAMPTZ  NOT NULL,
    created_at    TIMESTAMPTZ  NOT NULL DEFAULT now(),
    ip_address    INET,
    user_agent    TEXT         NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_user_sessions_token      ON user_sessions (token);
CREATE INDEX IF NOT EXISTS idx_user_sessions_expires_at ON user_sessions (expires_at);
`

// ─────────────────────────────────────────────────────────────────────────────
// Research DDL: tasks, artifacts, shares
// ─────────────────────────────────────────────────────────────────────────────

const ddlResearch = `
CREATE TABLE IF NOT EXISTS research_tasks (
    id            UUID         PRIMARY KEY DEFAULT gen_random_uuid(),
    user_id       UUID         REFERENCES users (id) ON DELETE SET NULL,
    task_id       VARCHAR(50)  NOT NULL UNIQUE,
    query         TEXT         NOT NULL,
    status        VARCHAR(20)  NOT NULL DEFAULT 'pending',
    depth         VARCHAR(20)  NOT NULL DEFAULT 'standard',
    max_sources   INTEGER      NOT NULL DEFAULT 20 CHECK (max_sources > 0 AND max_sources <= 100),
    options       JSONB        NOT NULL DEFAULT '{}',
    progress      INTEGER      NOT NULL DEFAULT 0 CHECK (progress >= 0 AND progress <= 100),
    warnings      JSONB        NOT NULL DEFAULT '[]',
    error_message TEXT         NOT NULL DEFAULT '',
    created_at    TIMESTAMPTZ  NOT NULL DEFAULT now(),
    started_at    TIMESTAMPTZ,
    completed_at  TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_research_tasks_task_id    ON research_tasks (task_id);
CREATE INDEX IF NOT EXISTS idx_research_tasks_user_id    ON research_tasks (user_id);
CREATE INDEX IF NOT EXISTS idx_research_tasks_status     ON research_tasks (status);
CREATE INDEX IF NOT EXISTS idx_research_tasks_created_at ON research_tasks (created_at);

CREATE TABLE IF NOT EXISTS research_artifacts (
    id            UUID         PRIMARY KEY DEFAULT gen_random_uuid(),
    task_id       UUID         NOT NULL REFERENCES research_tasks (id) ON DELETE CASCADE,
    artifact_type VARCHAR(50)  NOT NULL,
    artifact_name VARCHAR(255) NOT NULL DEFAULT '',
    content       TEXT         NOT NULL DEFAULT '',
    metadata      JSONB        NOT NULL DEFAULT '{}',
    size_bytes    INTEGER      NOT NULL DEFAULT 0,
    created_at    TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_research_artifacts_task_id ON research_artifacts (task_id);
CREATE INDEX IF NOT EXISTS idx_research_artifacts_type    ON research_artifacts (artifact_type);

CREATE TABLE IF NOT EXISTS research_shares (
    id               UUID         PRIMARY KEY DEFAULT gen_random_uuid(),
    task_id          UUID         NOT NULL REFERENCES research_tasks (id) ON DELETE CASCADE,
    shared_by_id     UUID         NOT NULL REFERENCES users (id) ON DELETE CASCADE,
    shared_with_id   UUID         REFERENCES users (id) ON DELETE CASCADE,
    share_token      VARCHAR(100) UNIQUE,
    permission_level VARCHAR(20)  NOT NULL DEFAULT 'read',
    is_public        BOOLEAN      NOT NULL DEFAULT FALSE,
    expires_at       TIMESTAMPTZ,
    created_at       TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_research_shares_token   ON research_shares (share_token);
CREATE INDEX IF NOT EXISTS idx_research_shares_task_id ON research_shares (task_id);
`

// ─────────────────────────────────────────────────────────────────────────────
// Chat DDL: sessions and messages
// ─────────────────────────────────────────────────────────────────────────────

const ddlChat = `
CREATE TABLE IF NOT EXISTS chat_sessions (
    id            UUID         PRIMARY KEY DEFAULT gen_random_uuid(),
    user_id       UUID         REFERENCES users (id) ON DELETE CASCADE,
    title         VARCHAR(255) NOT NULL DEFAULT '',
    context       JSONB        NOT NULL DEFAULT '{}',
    created_at    TIMESTAMPTZ  NOT NULL DEFAULT now(),
    last_activity TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_chat_sessions_user_id ON chat_sessions (user_id);

CREATE TABLE IF NOT EXISTS chat_messages (
    id                UUID        PRIMARY KEY DEFAULT gen_random_uuid(),
    session_id        UUID        NOT NULL REFERENCES chat_sessions (id) ON DELETE CASCADE,
    role              VARCHAR(20) NOT NULL,
    content           TEXT        NOT NULL,
    sources           JSONB       NOT NULL DEFAULT '[]',
    retrieved_context JSONB       NOT NULL DEFAULT '{}',
    metadata          JSONB       NOT NULL DEFAULT '{}',
    created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_chat_messages_session_created
    ON chat_messages (session_id, created_at);
`

// ddlVectors returns the embedding-bearing DDL with the dimension substituted.
// The vector dimension is baked into the column type at schema creation time.
func ddlVectors(embeddingDimensions int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS research_results (
    id                  UUID        PRIMARY KEY DEFAULT gen_random_uuid(),
    task_id             UUID        NOT NULL UNIQUE REFERENCES research_tasks (id) ON DELETE CASCADE,
    synthesis           JSONB       NOT NULL,
    sources             JSONB       NOT NULL,
    query_analysis      JSONB,
    detailed_analysis   JSONB,
    featured_media      JSONB       NOT NULL DEFAULT '[]',
    metadata            JSONB       NOT NULL DEFAULT '{}',
    sources_used        INTEGER     NOT NULL DEFAULT 0,
    synthesis_embedding vector(%[1]d),
    query_embedding     vector(%[1]d),
    created_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_research_results_task_id ON research_results (task_id);

CREATE INDEX IF NOT EXISTS idx_research_results_embedding
    ON research_results USING hnsw (synthesis_embedding vector_cosine_ops);

CREATE TABLE IF NOT EXISTS graph_nodes (
    id         UUID        PRIMARY KEY DEFAULT gen_random_uuid(),
    task_id    UUID        NOT NULL REFERENCES research_tasks (id) ON DELETE CASCADE,
    node_type  VARCHAR(50) NOT NULL,
    node_value TEXT        NOT NULL,
    properties JSONB       NOT NULL DEFAULT '{}',
    embedding  vector(%[1]d),
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_graph_nodes_task_id ON graph_nodes (task_id);
CREATE INDEX IF NOT EXISTS idx_graph_nodes_type    ON graph_nodes (node_type);

CREATE INDEX IF NOT EXISTS idx_graph_nodes_embedding
    ON graph_nodes USING hnsw (embedding vector_cosine_ops);

CREATE TABLE IF NOT EXISTS graph_edges (
    id             UUID        PRIMARY KEY DEFAULT gen_random_uuid(),
    source_node_id UUID        NOT NULL REFERENCES graph_nodes (id) ON DELETE CASCADE,
    target_node_id UUID        NOT NULL REFERENCES graph_nodes (id) ON DELETE CASCADE,
    edge_type      VARCHAR(50) NOT NULL,
    weight         DOUBLE PRECISION NOT NULL DEFAULT 1.0,
    properties     JSONB       NOT NULL DEFAULT '{}',
    created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
    UNIQUE (source_node_id, target_node_id, edge_type)
);

CREATE INDEX IF NOT EXISTS idx_graph_edges_source ON graph_edges (source_node_id);
CREATE INDEX IF NOT EXISTS idx_graph_edges_target ON graph_edges (target_node_id);
`, embeddingDimensions)
}

// Migrate creates or ensures all required tables, indexes, and extensions
// exist. It is idempotent (CREATE TABLE IF NOT EXISTS / CREATE INDEX IF NOT
// EXISTS) and safe to call on every application start.
//
// embeddingDimensions must match the configured embedding model (e.g. 384 for
// all-MiniLM-L6-v2, 1536 for OpenAI text-embedding-3-small). Changing it after
// the first migration requires a manual schema update.
func Migrate(ctx context.Context, pool *pgxpool.Pool, embeddingDimensions int) error {
	statements := []string{
		ddlAccounts,
		ddlResearch,
		ddlVectors(embeddingDimensions),
		ddlChat,
	}

	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres migrate: %w", err)
		}
	}
	return nil
}
