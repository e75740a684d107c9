// Package mock provides an in-memory implementation of [store.Store] for
// tests. Data lives in maps guarded by one mutex; vector search computes
// cosine similarity directly over stored embeddings.
//
// Each repository has an Err field. When set, every method of that repository
// returns it, which lets tests exercise degraded-persistence paths.
package mock

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/recondite-labs/scholarpipe/internal/research"
	"github.com/recondite-labs/scholarpipe/internal/store"
	"github.com/recondite-labs/scholarpipe/pkg/embed"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

type edgeKey struct {
	source, target uuid.UUID
	edgeType       string
}

// Store is the in-memory [store.Store]. The zero value is not usable; create
// one with [NewStore].
type Store struct {
	mu sync.RWMutex

	users        map[uuid.UUID]research.User
	sessions     map[string]research.UserSession
	tasks        map[string]research.Task
	results      map[uuid.UUID]research.Result
	artifacts    []research.Artifact
	shares       map[uuid.UUID]research.Share
	nodes        map[uuid.UUID]research.GraphNode
	edges        map[edgeKey]research.GraphEdge
	chatSessions map[uuid.UUID]research.ChatSession
	chatMessages []research.ChatMessage

	// UsersErr and friends force every method of the matching repository to
	// fail with the given error.
	UsersErr     error
	SessionsErr  error
	TasksErr     error
	ResultsErr   error
	ArtifactsErr error
	SharesErr    error
	GraphErr     error
	ChatsErr     error
}

// NewStore returns an empty in-memory store.
func NewStore() *Store {
	return &Store{
		users:        map[uuid.UUID]research.User{},
		sessions:     map[string]research.UserSession{},
		tasks:        map[string]research.Task{},
		results:      map[uuid.UUID]research.Result{},
		shares:       map[uuid.UUID]research.Share{},
		nodes:        map[uuid.UUID]research.GraphNode{},
		edges:        map[edgeKey]research.GraphEdge{},
		chatSessions: map[uuid.UUID]research.ChatSession{},
	}
}

func (s *Store) Users() store.UserRepo         { return &usersRepo{s} }
func (s *Store) Sessions() store.SessionRepo   { return &sessionsRepo{s} }
func (s *Store) Tasks() store.TaskRepo         { return &tasksRepo{s} }
func (s *Store) Results() store.ResultRepo     { return &resultsRepo{s} }
func (s *Store) Artifacts() store.ArtifactRepo { return &artifactsRepo{s} }
func (s *Store) Shares() store.ShareRepo       { return &sharesRepo{s} }
func (s *Store) Graph() store.GraphRepo        { return &graphRepo{s} }
func (s *Store) Chats() store.ChatRepo         { return &chatsRepo{s} }

// WithTx runs fn against the same store. The mock does not roll back partial
// writes; tests asserting atomicity should inject repository errors instead.
func (s *Store) WithTx(ctx context.Context, fn func(store.Store) error) error {
	return fn(s)
}

// Edges returns a snapshot of every stored graph edge, for test inspection.
func (s *Store) Edges() []research.GraphEdge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]research.GraphEdge, 0, len(s.edges))
	for _, e := range s.edges {
		out = append(out, e)
	}
	return out
}

// ── users ──

type usersRepo struct{ s *Store }

func (r *usersRepo) Create(ctx context.Context, u *research.User) error {
	if r.s.UsersErr != nil {
		return r.s.UsersErr
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	for _, existing := range r.s.users {
		if existing.Email == u.Email || existing.Username == u.Username {
			return fmt.Errorf("users: create: %w", store.ErrDuplicate)
		}
	}
	r.s.users[u.ID] = *u
	return nil
}

func (r *usersRepo) ByID(ctx context.Context, id uuid.UUID) (*research.User, error) {
	if r.s.UsersErr != nil {
		return nil, r.s.UsersErr
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if u, ok := r.s.users[id]; ok {
		return &u, nil
	}
	return nil, fmt.Errorf("users: by id: %w", store.ErrNotFound)
}

func (r *usersRepo) ByEmail(ctx context.Context, email string) (*research.User, error) {
	return r.find(func(u research.User) bool { return u.Email == email })
}

func (r *usersRepo) ByUsername(ctx context.Context, username string) (*research.User, error) {
	return r.find(func(u research.User) bool { return u.Username == username })
}

func (r *usersRepo) find(match func(research.User) bool) (*research.User, error) {
	if r.s.UsersErr != nil {
		return nil, r.s.UsersErr
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, u := range r.s.users {
		if match(u) {
			u := u
			return &u, nil
		}
	}
	return nil, fmt.Errorf("users: find: %w", store.ErrNotFound)
}

func (r *usersRepo) RecordLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	if r.s.UsersErr != nil {
		return r.s.UsersErr
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return fmt.Errorf("users: record login: %w", store.ErrNotFound)
	}
	u.LastLogin = &at
	u.UpdatedAt = &at
	r.s.users[id] = u
	return nil
}

// ── sessions ──

type sessionsRepo struct{ s *Store }

func (r *sessionsRepo) Create(ctx context.Context, sess *research.UserSession) error {
	if r.s.SessionsErr != nil {
		return r.s.SessionsErr
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if sess.ID == uuid.Nil {
		sess.ID = uuid.New()
	}
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = time.Now().UTC()
	}
	if _, ok := r.s.sessions[sess.Token]; ok {
		return fmt.Errorf("sessions: create: %w", store.ErrDuplicate)
	}
	r.s.sessions[sess.Token] = *sess
	return nil
}

func (r *sessionsRepo) ByToken(ctx context.Context, token string) (*research.UserSession, error) {
	if r.s.SessionsErr != nil {
		return nil, r.s.SessionsErr
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if sess, ok := r.s.sessions[token]; ok {
		return &sess, nil
	}
	return nil, fmt.Errorf("sessions: by token: %w", store.ErrNotFound)
}

func (r *sessionsRepo) ByRefreshToken(ctx context.Context, token string) (*research.UserSession, error) {
	if r.s.SessionsErr != nil {
		return nil, r.s.SessionsErr
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, sess := range r.s.sessions {
		if sess.RefreshToken == token && token != "" {
			sess := sess
			return &sess, nil
		}
	}
	return nil, fmt.Errorf("sessions: by refresh token: %w", store.ErrNotFound)
}

func (r *sessionsRepo) Delete(ctx context.Context, token string) error {
	if r.s.SessionsErr != nil {
		return r.s.SessionsErr
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.sessions[token]; !ok {
		return fmt.Errorf("sessions: delete: %w", store.ErrNotFound)
	}
	delete(r.s.sessions, token)
	return nil
}

func (r *sessionsRepo) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	if r.s.SessionsErr != nil {
		return 0, r.s.SessionsErr
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int
	for token, sess := range r.s.sessions {
		if now.After(sess.ExpiresAt) {
			delete(r.s.sessions, token)
			n++
		}
	}
	return n, nil
}

// ── tasks ──

type tasksRepo struct{ s *Store }

func (r *tasksRepo) Create(ctx context.Context, t *research.Task) error {
	if r.s.TasksErr != nil {
		return r.s.TasksErr
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	if _, ok := r.s.tasks[t.TaskID]; ok {
		return fmt.Errorf("tasks: create: %w", store.ErrDuplicate)
	}
	r.s.tasks[t.TaskID] = *t
	return nil
}

func (r *tasksRepo) ByTaskID(ctx context.Context, taskID string) (*research.Task, error) {
	if r.s.TasksErr != nil {
		return nil, r.s.TasksErr
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if t, ok := r.s.tasks[taskID]; ok {
		return &t, nil
	}
	return nil, fmt.Errorf("tasks: by task id: %w", store.ErrNotFound)
}

func (r *tasksRepo) ByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]research.Task, error) {
	if r.s.TasksErr != nil {
		return nil, r.s.TasksErr
	}
	tasks := r.filter(func(t research.Task) bool { return t.UserID == userID })
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].CreatedAt.After(tasks[j].CreatedAt) })
	if offset >= len(tasks) {
		return []research.Task{}, nil
	}
	tasks = tasks[offset:]
	if limit > 0 && len(tasks) > limit {
		tasks = tasks[:limit]
	}
	return tasks, nil
}

func (r *tasksRepo) RecentCompleted(ctx context.Context, userID uuid.UUID, limit int) ([]research.Task, error) {
	if r.s.TasksErr != nil {
		return nil, r.s.TasksErr
	}
	tasks := r.filter(func(t research.Task) bool {
		return t.UserID == userID && t.Status == research.StatusCompleted
	})
	sort.Slice(tasks, func(i, j int) bool {
		ti, tj := tasks[i].CompletedAt, tasks[j].CompletedAt
		switch {
		case ti == nil:
			return false
		case tj == nil:
			return true
		default:
			return ti.After(*tj)
		}
	})
	if limit > 0 && len(tasks) > limit {
		tasks = tasks[:limit]
	}
	return tasks, nil
}

func (r *tasksRepo) filter(match func(research.Task) bool) []research.Task {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := []research.Task{}
	for _, t := range r.s.tasks {
		if match(t) {
			out = append(out, t)
		}
	}
	return out
}

func (r *tasksRepo) Update(ctx context.Context, taskID string, u research.TaskUpdate) error {
	if r.s.TasksErr != nil {
		return r.s.TasksErr
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tasks[taskID]
	if !ok {
		return fmt.Errorf("tasks: update: %w", store.ErrNotFound)
	}
	if u.Status != nil {
		t.Status = *u.Status
	}
	if u.Progress != nil {
		t.Progress = *u.Progress
	}
	if u.ErrorMessage != nil {
		t.ErrorMessage = *u.ErrorMessage
	}
	if u.StartedAt != nil {
		t.StartedAt = u.StartedAt
	}
	if u.CompletedAt != nil {
		t.CompletedAt = u.CompletedAt
	}
	r.s.tasks[taskID] = t
	return nil
}

func (r *tasksRepo) SetWarnings(ctx context.Context, taskID string, warnings []string) error {
	if r.s.TasksErr != nil {
		return r.s.TasksErr
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tasks[taskID]
	if !ok {
		return fmt.Errorf("tasks: set warnings: %w", store.ErrNotFound)
	}
	t.Warnings = append([]string(nil), warnings...)
	r.s.tasks[taskID] = t
	return nil
}

func (r *tasksRepo) Delete(ctx context.Context, taskID string) error {
	if r.s.TasksErr != nil {
		return r.s.TasksErr
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tasks[taskID]
	if !ok {
		return fmt.Errorf("tasks: delete: %w", store.ErrNotFound)
	}
	delete(r.s.tasks, taskID)
	delete(r.s.results, t.ID)
	return nil
}

// ── results ──

type resultsRepo struct{ s *Store }

func (r *resultsRepo) Create(ctx context.Context, res *research.Result) error {
	if r.s.ResultsErr != nil {
		return r.s.ResultsErr
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if res.ID == uuid.Nil {
		res.ID = uuid.New()
	}
	if res.CreatedAt.IsZero() {
		res.CreatedAt = time.Now().UTC()
	}
	if _, ok := r.s.results[res.TaskID]; ok {
		return fmt.Errorf("results: create: %w", store.ErrDuplicate)
	}
	r.s.results[res.TaskID] = *res
	return nil
}

func (r *resultsRepo) ByTaskUUID(ctx context.Context, taskUUID uuid.UUID) (*research.Result, error) {
	if r.s.ResultsErr != nil {
		return nil, r.s.ResultsErr
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if res, ok := r.s.results[taskUUID]; ok {
		return &res, nil
	}
	return nil, fmt.Errorf("results: by task: %w", store.ErrNotFound)
}

func (r *resultsRepo) SearchSynthesis(ctx context.Context, embedding []float32, taskUUIDs []uuid.UUID, limit int) ([]store.SynthesisHit, error) {
	if r.s.ResultsErr != nil {
		return nil, r.s.ResultsErr
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	scope := map[uuid.UUID]bool{}
	for _, id := range taskUUIDs {
		scope[id] = true
	}

	hits := []store.SynthesisHit{}
	for _, res := range r.s.results {
		if !scope[res.TaskID] || len(res.SynthesisEmbedding) == 0 {
			continue
		}
		var taskID, query string
		for _, t := range r.s.tasks {
			if t.ID == res.TaskID {
				taskID, query = t.TaskID, t.Query
				break
			}
		}
		hits = append(hits, store.SynthesisHit{
			TaskUUID:   res.TaskID,
			TaskID:     taskID,
			Query:      query,
			Content:    res.Synthesis.ExecutiveSummary,
			Similarity: embed.Cosine(embedding, res.SynthesisEmbedding),
			CreatedAt:  res.CreatedAt,
		})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Similarity > hits[j].Similarity })
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// ── artifacts ──

type artifactsRepo struct{ s *Store }

func (r *artifactsRepo) Create(ctx context.Context, a *research.Artifact) error {
	if r.s.ArtifactsErr != nil {
		return r.s.ArtifactsErr
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	if a.SizeBytes == 0 {
		a.SizeBytes = len(a.Content)
	}
	r.s.artifacts = append(r.s.artifacts, *a)
	return nil
}

func (r *artifactsRepo) ByTask(ctx context.Context, taskUUID uuid.UUID) ([]research.Artifact, error) {
	if r.s.ArtifactsErr != nil {
		return nil, r.s.ArtifactsErr
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := []research.Artifact{}
	for _, a := range r.s.artifacts {
		if a.TaskID == taskUUID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *artifactsRepo) ByTaskAndType(ctx context.Context, taskUUID uuid.UUID, artifactType string) (*research.Artifact, error) {
	if r.s.ArtifactsErr != nil {
		return nil, r.s.ArtifactsErr
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for i := len(r.s.artifacts) - 1; i >= 0; i-- {
		a := r.s.artifacts[i]
		if a.TaskID == taskUUID && a.Type == artifactType {
			return &a, nil
		}
	}
	return nil, fmt.Errorf("artifacts: by task and type: %w", store.ErrNotFound)
}

// ── shares ──

type sharesRepo struct{ s *Store }

func (r *sharesRepo) Create(ctx context.Context, sh *research.Share) error {
	if r.s.SharesErr != nil {
		return r.s.SharesErr
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if sh.ID == uuid.Nil {
		sh.ID = uuid.New()
	}
	if sh.CreatedAt.IsZero() {
		sh.CreatedAt = time.Now().UTC()
	}
	if sh.Permission == "" {
		sh.Permission = research.PermissionRead
	}
	for _, existing := range r.s.shares {
		if existing.ShareToken != "" && existing.ShareToken == sh.ShareToken {
			return fmt.Errorf("shares: create: %w", store.ErrDuplicate)
		}
	}
	r.s.shares[sh.ID] = *sh
	return nil
}

func (r *sharesRepo) ByToken(ctx context.Context, token string) (*research.Share, error) {
	if r.s.SharesErr != nil {
		return nil, r.s.SharesErr
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, sh := range r.s.shares {
		if sh.ShareToken == token && token != "" {
			sh := sh
			return &sh, nil
		}
	}
	return nil, fmt.Errorf("shares: by token: %w", store.ErrNotFound)
}

func (r *sharesRepo) ByTask(ctx context.Context, taskUUID uuid.UUID) ([]research.Share, error) {
	if r.s.SharesErr != nil {
		return nil, r.s.SharesErr
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := []research.Share{}
	for _, sh := range r.s.shares {
		if sh.TaskID == taskUUID {
			out = append(out, sh)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *sharesRepo) Delete(ctx context.Context, id uuid.UUID) error {
	if r.s.SharesErr != nil {
		return r.s.SharesErr
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.shares[id]; !ok {
		return fmt.Errorf("shares: delete: %w", store.ErrNotFound)
	}
	delete(r.s.shares, id)
	return nil
}

// ── graph ──

type graphRepo struct{ s *Store }

func (r *graphRepo) CreateNode(ctx context.Context, n *research.GraphNode) error {
	if r.s.GraphErr != nil {
		return r.s.GraphErr
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
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
	r.s.nodes[n.ID] = *n
	return nil
}

func (r *graphRepo) CreateEdge(ctx context.Context, e *research.GraphEdge) error {
	if r.s.GraphErr != nil {
		return r.s.GraphErr
	}
	if e.SourceNodeID == e.TargetNodeID {
		return fmt.Errorf("graph: create edge: %w", store.ErrSelfLoop)
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := edgeKey{e.SourceNodeID, e.TargetNodeID, e.EdgeType}
	if _, ok := r.s.edges[key]; ok {
		return nil // idempotent
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	r.s.edges[key] = *e
	return nil
}

func (r *graphRepo) NodesByTask(ctx context.Context, taskUUID uuid.UUID) ([]research.GraphNode, error) {
	if r.s.GraphErr != nil {
		return nil, r.s.GraphErr
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := []research.GraphNode{}
	for _, n := range r.s.nodes {
		if n.TaskID == taskUUID {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *graphRepo) DeleteTaskGraph(ctx context.Context, taskUUID uuid.UUID) error {
	if r.s.GraphErr != nil {
		return r.s.GraphErr
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	removed := map[uuid.UUID]bool{}
	for id, n := range r.s.nodes {
		if n.TaskID == taskUUID {
			removed[id] = true
			delete(r.s.nodes, id)
		}
	}
	for key := range r.s.edges {
		if removed[key.source] || removed[key.target] {
			delete(r.s.edges, key)
		}
	}
	return nil
}

func (r *graphRepo) SearchNodes(ctx context.Context, embedding []float32, taskUUIDs []uuid.UUID, limit int) ([]store.NodeHit, error) {
	if r.s.GraphErr != nil {
		return nil, r.s.GraphErr
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	scope := map[uuid.UUID]bool{}
	for _, id := range taskUUIDs {
		scope[id] = true
	}

	hits := []store.NodeHit{}
	for _, n := range r.s.nodes {
		if !scope[n.TaskID] || len(n.Embedding) == 0 {
			continue
		}
		hits = append(hits, store.NodeHit{Node: n, Similarity: embed.Cosine(embedding, n.Embedding)})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Similarity > hits[j].Similarity })
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (r *graphRepo) Neighbors(ctx context.Context, nodeID uuid.UUID, limit int) ([]store.Neighbor, error) {
	if r.s.GraphErr != nil {
		return nil, r.s.GraphErr
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	neighbors := []store.Neighbor{}
	for key, e := range r.s.edges {
		var other uuid.UUID
		switch nodeID {
		case key.source:
			other = key.target
		case key.target:
			other = key.source
		default:
			continue
		}
		if n, ok := r.s.nodes[other]; ok {
			neighbors = append(neighbors, store.Neighbor{Node: n, EdgeType: e.EdgeType, Weight: e.Weight})
		}
	}
	sort.Slice(neighbors, func(i, j int) bool { return neighbors[i].Weight > neighbors[j].Weight })
	if limit > 0 && len(neighbors) > limit {
		neighbors = neighbors[:limit]
	}
	return neighbors, nil
}

// ── chats ──

type chatsRepo struct{ s *Store }

func (r *chatsRepo) CreateSession(ctx context.Context, sess *research.ChatSession) error {
	if r.s.ChatsErr != nil {
		return r.s.ChatsErr
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if sess.ID == uuid.Nil {
		sess.ID = uuid.New()
	}
	now := time.Now().UTC()
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = now
	}
	if sess.LastActivity.IsZero() {
		sess.LastActivity = sess.CreatedAt
	}
	r.s.chatSessions[sess.ID] = *sess
	return nil
}

func (r *chatsRepo) SessionByID(ctx context.Context, id uuid.UUID) (*research.ChatSession, error) {
	if r.s.ChatsErr != nil {
		return nil, r.s.ChatsErr
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if sess, ok := r.s.chatSessions[id]; ok {
		return &sess, nil
	}
	return nil, fmt.Errorf("chats: session by id: %w", store.ErrNotFound)
}

func (r *chatsRepo) SessionsByUser(ctx context.Context, userID uuid.UUID, limit int) ([]research.ChatSession, error) {
	if r.s.ChatsErr != nil {
		return nil, r.s.ChatsErr
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := []research.ChatSession{}
	for _, sess := range r.s.chatSessions {
		if sess.UserID == userID {
			out = append(out, sess)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastActivity.After(out[j].LastActivity) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *chatsRepo) TouchSession(ctx context.Context, id uuid.UUID, at time.Time) error {
	if r.s.ChatsErr != nil {
		return r.s.ChatsErr
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sess, ok := r.s.chatSessions[id]
	if !ok {
		return fmt.Errorf("chats: touch session: %w", store.ErrNotFound)
	}
	sess.LastActivity = at
	r.s.chatSessions[id] = sess
	return nil
}

func (r *chatsRepo) DeleteSession(ctx context.Context, id uuid.UUID) error {
	if r.s.ChatsErr != nil {
		return r.s.ChatsErr
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.chatSessions[id]; !ok {
		return fmt.Errorf("chats: delete session: %w", store.ErrNotFound)
	}
	delete(r.s.chatSessions, id)
	kept := r.s.chatMessages[:0]
	for _, m := range r.s.chatMessages {
		if m.SessionID != id {
			kept = append(kept, m)
		}
	}
	r.s.chatMessages = kept
	return nil
}

func (r *chatsRepo) CreateMessage(ctx context.Context, m *research.ChatMessage) error {
	if r.s.ChatsErr != nil {
		return r.s.ChatsErr
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	r.s.chatMessages = append(r.s.chatMessages, *m)
	return nil
}

func (r *chatsRepo) MessagesBySession(ctx context.Context, sessionID uuid.UUID, limit int) ([]research.ChatMessage, error) {
	if r.s.ChatsErr != nil {
		return nil, r.s.ChatsErr
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := []research.ChatMessage{}
	for _, m := range r.s.chatMessages {
		if m.SessionID == sessionID {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}
