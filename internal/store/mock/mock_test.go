package mock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/recondite-labs/scholarpipe/internal/research"
	"github.com/recondite-labs/scholarpipe/internal/store"
)

func TestTaskLifecycle(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	task := &research.Task{
		TaskID: "res_0123456789ab",
		UserID: uuid.New(),
		Query:  "benefits of meditation",
		Depth:  research.DepthStandard,
		Status: research.StatusPending,
	}
	if err := s.Tasks().Create(ctx, task); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if err := s.Tasks().Create(ctx, &research.Task{TaskID: task.TaskID}); !errors.Is(err, store.ErrDuplicate) {
		t.Errorf("duplicate Create error = %v, want ErrDuplicate", err)
	}

	status := research.StatusSearching
	progress := 25
	if err := s.Tasks().Update(ctx, task.TaskID, research.TaskUpdate{Status: &status, Progress: &progress}); err != nil {
		t.Fatalf("Update returned error: %v", err)
	}

	got, err := s.Tasks().ByTaskID(ctx, task.TaskID)
	if err != nil {
		t.Fatalf("ByTaskID returned error: %v", err)
	}
	if got.Status != research.StatusSearching || got.Progress != 25 {
		t.Errorf("task = %v/%d, want searching/25", got.Status, got.Progress)
	}

	if _, err := s.Tasks().ByTaskID(ctx, "res_missing00000"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("missing task error = %v, want ErrNotFound", err)
	}
}

func TestRecentCompletedOrdersByCompletion(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	userID := uuid.New()

	base := time.Now().UTC()
	for i, id := range []string{"res_aaaaaaaaaaaa", "res_bbbbbbbbbbbb", "res_cccccccccccc"} {
		done := base.Add(time.Duration(i) * time.Minute)
		task := &research.Task{
			TaskID:      id,
			UserID:      userID,
			Status:      research.StatusCompleted,
			CompletedAt: &done,
		}
		if err := s.Tasks().Create(ctx, task); err != nil {
			t.Fatalf("Create returned error: %v", err)
		}
	}
	// A failed task is out of scope.
	if err := s.Tasks().Create(ctx, &research.Task{TaskID: "res_dddddddddddd", UserID: userID, Status: research.StatusFailed}); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	tasks, err := s.Tasks().RecentCompleted(ctx, userID, 2)
	if err != nil {
		t.Fatalf("RecentCompleted returned error: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("got %d tasks, want 2", len(tasks))
	}
	if tasks[0].TaskID != "res_cccccccccccc" || tasks[1].TaskID != "res_bbbbbbbbbbbb" {
		t.Errorf("order = %s, %s; want newest completion first", tasks[0].TaskID, tasks[1].TaskID)
	}
}

func TestGraphEdgeIdempotenceAndSelfLoops(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	taskUUID := uuid.New()

	a := &research.GraphNode{TaskID: taskUUID, NodeType: research.NodeTopic, NodeValue: "meditation"}
	b := &research.GraphNode{TaskID: taskUUID, NodeType: research.NodeFinding, NodeValue: "improves focus"}
	for _, n := range []*research.GraphNode{a, b} {
		if err := s.Graph().CreateNode(ctx, n); err != nil {
			t.Fatalf("CreateNode returned error: %v", err)
		}
	}

	edge := research.GraphEdge{SourceNodeID: a.ID, TargetNodeID: b.ID, EdgeType: research.EdgeRelatedTo, Weight: 0.8}
	if err := s.Graph().CreateEdge(ctx, &edge); err != nil {
		t.Fatalf("CreateEdge returned error: %v", err)
	}
	dup := research.GraphEdge{SourceNodeID: a.ID, TargetNodeID: b.ID, EdgeType: research.EdgeRelatedTo, Weight: 0.2}
	if err := s.Graph().CreateEdge(ctx, &dup); err != nil {
		t.Errorf("duplicate CreateEdge returned error: %v, want silent no-op", err)
	}

	loop := research.GraphEdge{SourceNodeID: a.ID, TargetNodeID: a.ID, EdgeType: research.EdgeRelatedTo}
	if err := s.Graph().CreateEdge(ctx, &loop); !errors.Is(err, store.ErrSelfLoop) {
		t.Errorf("self-loop error = %v, want ErrSelfLoop", err)
	}

	neighbors, err := s.Graph().Neighbors(ctx, a.ID, 5)
	if err != nil {
		t.Fatalf("Neighbors returned error: %v", err)
	}
	if len(neighbors) != 1 || neighbors[0].Weight != 0.8 {
		t.Errorf("neighbors = %+v, want the first edge's weight preserved", neighbors)
	}
}

func TestSearchNodesOrdersBySimilarity(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	taskUUID := uuid.New()

	near := &research.GraphNode{TaskID: taskUUID, NodeType: research.NodeTopic, NodeValue: "near", Embedding: []float32{1, 0}}
	far := &research.GraphNode{TaskID: taskUUID, NodeType: research.NodeTopic, NodeValue: "far", Embedding: []float32{0, 1}}
	outOfScope := &research.GraphNode{TaskID: uuid.New(), NodeType: research.NodeTopic, NodeValue: "other", Embedding: []float32{1, 0}}
	for _, n := range []*research.GraphNode{near, far, outOfScope} {
		if err := s.Graph().CreateNode(ctx, n); err != nil {
			t.Fatalf("CreateNode returned error: %v", err)
		}
	}

	hits, err := s.Graph().SearchNodes(ctx, []float32{1, 0}, []uuid.UUID{taskUUID}, 10)
	if err != nil {
		t.Fatalf("SearchNodes returned error: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("got %d hits, want 2 in-scope nodes", len(hits))
	}
	if hits[0].Node.NodeValue != "near" || hits[0].Similarity < hits[1].Similarity {
		t.Errorf("hits = %+v, want most similar first", hits)
	}
}

func TestMessagesBySessionWindow(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	sessionID := uuid.New()

	base := time.Now().UTC()
	for i := 0; i < 7; i++ {
		m := &research.ChatMessage{
			SessionID: sessionID,
			Role:      research.RoleUser,
			Content:   string(rune('a' + i)),
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}
		if err := s.Chats().CreateMessage(ctx, m); err != nil {
			t.Fatalf("CreateMessage returned error: %v", err)
		}
	}

	msgs, err := s.Chats().MessagesBySession(ctx, sessionID, 5)
	if err != nil {
		t.Fatalf("MessagesBySession returned error: %v", err)
	}
	if len(msgs) != 5 {
		t.Fatalf("got %d messages, want the 5 most recent", len(msgs))
	}
	if msgs[0].Content != "c" || msgs[4].Content != "g" {
		t.Errorf("window = %q..%q, want c..g in chronological order", msgs[0].Content, msgs[4].Content)
	}
}

func TestRepoErrInjection(t *testing.T) {
	s := NewStore()
	boom := errors.New("boom")
	s.TasksErr = boom

	if err := s.Tasks().Create(context.Background(), &research.Task{TaskID: "res_eeeeeeeeeeee"}); !errors.Is(err, boom) {
		t.Errorf("Create error = %v, want injected error", err)
	}
}
