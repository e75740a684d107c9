package ollama

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNew_RequiresModel(t *testing.T) {
	if _, err := New("", ""); err == nil {
		t.Fatal("expected error for empty model, got nil")
	}
}

func TestEmbed_NormalizesOutput(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Deliberately non-unit vector.
		w.Write([]byte(`{"model":"all-minilm","embeddings":[[3,4,0]]}`))
	}))
	defer srv.Close()

	p, _ := New(srv.URL, "all-minilm")
	vec, err := p.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}

	var norm float64
	for _, x := range vec {
		norm += float64(x) * float64(x)
	}
	if math.Abs(math.Sqrt(norm)-1) > 1e-6 {
		t.Errorf("|v| = %v, want 1 ± 1e-6", math.Sqrt(norm))
	}
	if math.Abs(float64(vec[0])-0.6) > 1e-6 || math.Abs(float64(vec[1])-0.8) > 1e-6 {
		t.Errorf("v = %v, want [0.6 0.8 0]", vec)
	}
}

func TestEmbed_TruncatesLongInput(t *testing.T) {
	var got embedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"model":"all-minilm","embeddings":[[1,0]]}`))
	}))
	defer srv.Close()

	p, _ := New(srv.URL, "all-minilm")
	long := strings.Repeat("a", 2000)
	if _, err := p.Embed(context.Background(), long); err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(got.Input) != 1 || len(got.Input[0]) != 512 {
		t.Errorf("encoded input length = %d, want 512", len(got.Input[0]))
	}
}

func TestEmbedBatch_OrderAndLength(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"model":"all-minilm","embeddings":[[1,0],[0,1]]}`))
	}))
	defer srv.Close()

	p, _ := New(srv.URL, "all-minilm")
	vecs, err := p.EmbedBatch(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(vecs) != 2 {
		t.Fatalf("len = %d, want 2", len(vecs))
	}
	if vecs[0][0] != 1 || vecs[1][1] != 1 {
		t.Errorf("vectors out of order: %v", vecs)
	}
}

func TestEmbedBatch_EmptyInputNoRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("unexpected request for empty batch")
	}))
	defer srv.Close()

	p, _ := New(srv.URL, "all-minilm")
	vecs, err := p.EmbedBatch(context.Background(), nil)
	if err != nil || vecs != nil {
		t.Errorf("EmbedBatch(nil) = %v, %v; want nil, nil", vecs, err)
	}
}

func TestDimensions_KnownModel(t *testing.T) {
	p, _ := New("", "all-minilm")
	if got := p.Dimensions(); got != 384 {
		t.Errorf("Dimensions = %d, want 384", got)
	}
}
