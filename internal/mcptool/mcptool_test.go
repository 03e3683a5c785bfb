package mcptool_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/docufind/mcp-server/internal/embedding"
	"github.com/docufind/mcp-server/internal/mcptool"
	"github.com/docufind/mcp-server/internal/retrieval"
	"github.com/docufind/mcp-server/internal/store"
)

func TestValidateContract(t *testing.T) {
	if err := mcptool.ValidateContract(); err != nil {
		t.Fatalf("ValidateContract() error = %v", err)
	}
}

type fakeCandidateStore struct {
	nearest []store.NearestResult
	err     error
}

func (f *fakeCandidateStore) Nearest(ctx context.Context, queryVec []float32, k int) ([]store.NearestResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(f.nearest) > k {
		return f.nearest[:k], nil
	}
	return f.nearest, nil
}

func (f *fakeCandidateStore) Hybrid(ctx context.Context, queryVec []float32, queryText string, k int) ([]store.HybridResult, error) {
	return nil, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHandler_PerformRAGQuery_DefaultsMatchCount(t *testing.T) {
	fs := &fakeCandidateStore{
		nearest: []store.NearestResult{
			{ChunkID: "a", URL: "u1", Content: "result one", Distance: 0.0},
			{ChunkID: "b", URL: "u2", Content: "result two", Distance: 0.2},
		},
	}
	embedder, err := embedding.New(embedding.Config{Mode: "local", Dim: 16})
	if err != nil {
		t.Fatalf("embedding.New() error = %v", err)
	}
	engine := retrieval.New(embedder, fs, nil, retrieval.Config{})
	h := mcptool.NewHandler(engine, discardLogger())

	_, out, err := h.PerformRAGQuery(context.Background(), nil, mcptool.PerformRAGQueryInput{Query: "find something"})
	if err != nil {
		t.Fatalf("PerformRAGQuery() error = %v", err)
	}
	if !out.Success {
		t.Fatalf("Success = false, want true; error = %q", out.Error)
	}
	if out.SearchMode != "vector" {
		t.Errorf("SearchMode = %q, want %q", out.SearchMode, "vector")
	}
	if out.Count != 2 {
		t.Errorf("Count = %d, want 2", out.Count)
	}
	if len(out.Results) != 2 || out.Results[0].URL != "u1" {
		t.Errorf("Results = %+v, want top result u1 first", out.Results)
	}
}

func TestHandler_PerformRAGQuery_RespectsExplicitMatchCount(t *testing.T) {
	fs := &fakeCandidateStore{
		nearest: []store.NearestResult{
			{ChunkID: "a", URL: "u1", Content: "one", Distance: 0.0},
			{ChunkID: "b", URL: "u2", Content: "two", Distance: 0.1},
			{ChunkID: "c", URL: "u3", Content: "three", Distance: 0.2},
		},
	}
	embedder, _ := embedding.New(embedding.Config{Mode: "local", Dim: 16})
	engine := retrieval.New(embedder, fs, nil, retrieval.Config{})
	h := mcptool.NewHandler(engine, discardLogger())

	_, out, err := h.PerformRAGQuery(context.Background(), nil, mcptool.PerformRAGQueryInput{Query: "q", MatchCount: 1})
	if err != nil {
		t.Fatalf("PerformRAGQuery() error = %v", err)
	}
	if out.Count != 1 {
		t.Errorf("Count = %d, want 1", out.Count)
	}
}

func TestHandler_PerformRAGQuery_StoreFailureReturnsStructuredError(t *testing.T) {
	fs := &fakeCandidateStore{err: context.DeadlineExceeded}
	embedder, _ := embedding.New(embedding.Config{Mode: "local", Dim: 16})
	engine := retrieval.New(embedder, fs, nil, retrieval.Config{})
	h := mcptool.NewHandler(engine, discardLogger())

	result, out, err := h.PerformRAGQuery(context.Background(), nil, mcptool.PerformRAGQueryInput{Query: "q"})
	if err != nil {
		t.Fatalf("PerformRAGQuery() should never propagate err, got %v", err)
	}
	if result != nil {
		t.Errorf("result = %+v, want nil", result)
	}
	if out.Success {
		t.Error("Success should be false on store failure")
	}
	if out.Error == "" {
		t.Error("Error should be populated on store failure")
	}
}
