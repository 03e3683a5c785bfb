package reranker_test

import (
	"context"
	"testing"

	"github.com/docufind/mcp-server/internal/embedding"
	"github.com/docufind/mcp-server/internal/reranker"
)

func newLocalEmbedder(t *testing.T) embedding.Embedder {
	t.Helper()
	e, err := embedding.New(embedding.Config{Mode: "local", Dim: 64})
	if err != nil {
		t.Fatalf("embedding.New() error = %v", err)
	}
	return e
}

func TestNew_UnknownMode(t *testing.T) {
	if _, err := reranker.New(reranker.Config{Mode: "quantum"}); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}

func TestNew_LocalModeRequiresEmbedder(t *testing.T) {
	if _, err := reranker.New(reranker.Config{Mode: "local"}); err == nil {
		t.Fatal("expected error when local mode has no embedder")
	}
}

func TestLocalReranker_OrdersByQuerySimilarity(t *testing.T) {
	r, err := reranker.New(reranker.Config{Mode: "local", Embedder: newLocalEmbedder(t)})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	candidates := []reranker.Candidate{
		{ID: "a", Text: "some unrelated sentence about gardening"},
		{ID: "b", Text: "rate limiting query"},
	}

	results, applied, err := r.Rerank(context.Background(), "rate limiting query", candidates)
	if err != nil {
		t.Fatalf("Rerank() error = %v", err)
	}
	if applied {
		t.Error("local reranker should report RerankingApplied=false")
	}
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
	if results[0].ID != "b" {
		t.Errorf("top result = %q, want %q (exact text match to query)", results[0].ID, "b")
	}
	if results[0].Score < results[1].Score {
		t.Errorf("results not sorted descending: %v", results)
	}
}

func TestLocalReranker_DeterministicTieBreakByID(t *testing.T) {
	r, err := reranker.New(reranker.Config{Mode: "local", Embedder: newLocalEmbedder(t)})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	candidates := []reranker.Candidate{
		{ID: "z", Text: "identical text"},
		{ID: "a", Text: "identical text"},
	}

	results, _, err := r.Rerank(context.Background(), "query", candidates)
	if err != nil {
		t.Fatalf("Rerank() error = %v", err)
	}
	if results[0].ID != "a" {
		t.Errorf("expected tie broken by ascending ID, got order %q, %q", results[0].ID, results[1].ID)
	}
}
