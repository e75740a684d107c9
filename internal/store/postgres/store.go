package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/recondite-labs/scholarpipe/internal/store"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// querier is the subset of pgx shared by *pgxpool.Pool and pgx.Tx. Every
// repository runs against it, so the same code serves pooled and
// transactional access.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is the PostgreSQL-backed implementation of [store.Store]. It holds a
// single [pgxpool.Pool]; all operations are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
	db   querier
	inTx bool

	users     *userRepo
	sessions  *sessionRepo
	tasks     *taskRepo
	results   *resultRepo
	artifacts *artifactRepo
	shares    *shareRepo
	graph     *graphRepo
	chats     *chatRepo
}

// NewStore creates a Store, establishes a connection pool to the PostgreSQL
// database at dsn, registers pgvector types on every connection, and runs
// [Migrate] to ensure all required tables and extensions exist.
//
// embeddingDimensions must match the output dimension of the configured
// embedding model. Changing it after the first migration requires a manual
// schema change.
func NewStore(ctx context.Context, dsn string, embeddingDimensions int) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}

	// Register pgvector types on every new connection so that vector columns
	// can be scanned into and inserted from pgvector.Vector values.
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}

	if err := Migrate(ctx, pool, embeddingDimensions); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}

	return newStore(pool, pool, false), nil
}

func newStore(pool *pgxpool.Pool, db querier, inTx bool) *Store {
	return &Store{
		pool:      pool,
		db:        db,
		inTx:      inTx,
		users:     &userRepo{db: db},
		sessions:  &sessionRepo{db: db},
		tasks:     &taskRepo{db: db},
		results:   &resultRepo{db: db},
		artifacts: &artifactRepo{db: db},
		shares:    &shareRepo{db: db},
		graph:     &graphRepo{db: db},
		chats:     &chatRepo{db: db},
	}
}

func (s *Store) Users() store.UserRepo         { return s.users }
func (s *Store) Sessions() store.SessionRepo   { return s.sessions }
func (s *Store) Tasks() store.TaskRepo         { return s.tasks }
func (s *Store) Results() store.ResultRepo     { return s.results }
func (s *Store) Artifacts() store.ArtifactRepo { return s.artifacts }
func (s *Store) Shares() store.ShareRepo       { return s.shares }
func (s *Store) Graph() store.GraphRepo        { return s.graph }
func (s *Store) Chats() store.ChatRepo         { return s.chats }

// WithTx implements [store.Store]. fn receives a Store bound to a single
// transaction; any error from fn rolls the transaction back. Calling WithTx on
// an already transactional Store reuses the open transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store.Store) error) error {
	if s.inTx {
		return fn(s)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres store: begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	if err := fn(newStore(s.pool, tx, true)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres store: commit: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases all connections held by the underlying pool.
func (s *Store) Close() {
	s.pool.Close()
}

// uniqueViolation is the PostgreSQL SQLSTATE for duplicate keys.
const uniqueViolation = "23505"

// wrapErr maps driver errors onto the store sentinels.
func wrapErr(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, store.ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%s: %w", op, store.ErrDuplicate)
	}
	return fmt.Errorf("%s: %w", op, err)
}
