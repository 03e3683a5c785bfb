package embedding_test

import (
	"context"
	"math"
	"testing"

	"github.com/docufind/mcp-server/internal/embedding"
)

func TestNew_UnknownMode(t *testing.T) {
	if _, err := embedding.New(embedding.Config{Mode: "quantum", Dim: 8}); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}

func TestNew_APIModeRequiresKey(t *testing.T) {
	if _, err := embedding.New(embedding.Config{Mode: "api", Dim: 8}); err == nil {
		t.Fatal("expected error when API mode has no key")
	}
}

func TestLocalEmbedder_Dim(t *testing.T) {
	e, err := embedding.New(embedding.Config{Mode: "local", Dim: 2560})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if e.Dim() != 2560 {
		t.Errorf("Dim() = %d, want 2560", e.Dim())
	}
}

func TestLocalEmbedder_Deterministic(t *testing.T) {
	e, err := embedding.New(embedding.Config{Mode: "local", Dim: 64})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	v1, err := e.Embed(context.Background(), []string{"hello world"}, false)
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	v2, err := e.Embed(context.Background(), []string{"hello world"}, false)
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}

	if len(v1[0]) != 64 {
		t.Fatalf("len(vector) = %d, want 64", len(v1[0]))
	}
	for i := range v1[0] {
		if v1[0][i] != v2[0][i] {
			t.Fatalf("embedding not deterministic at index %d: %v != %v", i, v1[0][i], v2[0][i])
		}
	}
}

func TestLocalEmbedder_QueryVsDocumentDiffer(t *testing.T) {
	e, err := embedding.New(embedding.Config{Mode: "local", Dim: 32})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	docVec, err := e.Embed(context.Background(), []string{"same text"}, false)
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	queryVec, err := e.Embed(context.Background(), []string{"same text"}, true)
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}

	identical := true
	for i := range docVec[0] {
		if docVec[0][i] != queryVec[0][i] {
			identical = false
			break
		}
	}
	if identical {
		t.Error("expected query-side and document-side encodings of identical text to differ")
	}
}

func TestLocalEmbedder_L2Normalized(t *testing.T) {
	e, err := embedding.New(embedding.Config{Mode: "local", Dim: 128})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	vecs, err := e.Embed(context.Background(), []string{"normalize me", "and me too"}, false)
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}

	for i, v := range vecs {
		var sumSq float64
		for _, x := range v {
			sumSq += float64(x) * float64(x)
		}
		norm := math.Sqrt(sumSq)
		if math.Abs(norm-1.0) > 1e-4 {
			t.Errorf("vector %d has L2 norm %f, want ~1.0", i, norm)
		}
	}
}

func TestLocalEmbedder_BatchSizeMatchesInput(t *testing.T) {
	e, err := embedding.New(embedding.Config{Mode: "local", Dim: 16})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	vecs, err := e.Embed(context.Background(), []string{"one", "two", "three"}, false)
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(vecs) != 3 {
		t.Fatalf("len(vecs) = %d, want 3", len(vecs))
	}
}
