// Package retrieval composes the embedder, store, and reranker into
// the single query pipeline behind perform_rag_query: embed, fetch
// oversampled candidates (vector-only or hybrid), optionally rerank,
// and return the top k ordered by final similarity descending with
// ties broken by chunk id ascending.
package retrieval

import (
	"context"
	"sort"

	"github.com/docufind/mcp-server/internal/embedding"
	"github.com/docufind/mcp-server/internal/reranker"
	"github.com/docufind/mcp-server/internal/store"
)

// CandidateStore is the narrow store surface the engine needs,
// kept as an interface for the same reason ingest.ChunkStore is.
type CandidateStore interface {
	Nearest(ctx context.Context, queryVec []float32, k int) ([]store.NearestResult, error)
	Hybrid(ctx context.Context, queryVec []float32, queryText string, k int) ([]store.HybridResult, error)
}

// Config toggles the optional pipeline stages.
type Config struct {
	HybridSearch bool
	UseReranking bool
}

// Result is one ranked item in a query response.
type Result struct {
	URL        string
	Content    string
	Similarity float64
}

// Response is the full perform_rag_query payload, success path.
type Response struct {
	SearchMode       string
	RerankingApplied bool
	Results          []Result
	Count            int
}

// Engine runs the retrieval pipeline.
type Engine struct {
	embedder embedding.Embedder
	store    CandidateStore
	reranker reranker.Reranker
	cfg      Config
}

func New(embedder embedding.Embedder, st CandidateStore, rr reranker.Reranker, cfg Config) *Engine {
	return &Engine{embedder: embedder, store: st, reranker: rr, cfg: cfg}
}

// Query runs the full pipeline for text, returning up to k results.
func (e *Engine) Query(ctx context.Context, text string, k int) (Response, error) {
	vectors, err := e.embedder.Embed(ctx, []string{text}, true)
	if err != nil {
		return Response{}, err
	}
	queryVec := vectors[0]

	oversample := 1
	if e.cfg.UseReranking {
		oversample = 3
	}
	candidateK := k * oversample

	searchMode := "vector"
	type candidate struct {
		id      string
		url     string
		content string
		score   float64
	}
	var candidates []candidate

	if e.cfg.HybridSearch {
		searchMode = "hybrid"
		hybridResults, err := e.store.Hybrid(ctx, queryVec, text, candidateK)
		if err != nil {
			return Response{}, err
		}
		for _, r := range hybridResults {
			candidates = append(candidates, candidate{id: r.ChunkID, url: r.URL, content: r.Content, score: r.FusedScore})
		}
	} else {
		nearestResults, err := e.store.Nearest(ctx, queryVec, candidateK)
		if err != nil {
			return Response{}, err
		}
		for _, r := range nearestResults {
			candidates = append(candidates, candidate{id: r.ChunkID, url: r.URL, content: r.Content, score: 1 - r.Distance})
		}
	}

	rerankingApplied := false
	if e.cfg.UseReranking && len(candidates) > 0 && e.reranker != nil {
		rerankCandidates := make([]reranker.Candidate, len(candidates))
		for i, c := range candidates {
			rerankCandidates[i] = reranker.Candidate{ID: c.id, Text: c.content}
		}
		rerankResults, applied, err := e.reranker.Rerank(ctx, text, rerankCandidates)
		if err != nil {
			return Response{}, err
		}
		rerankingApplied = applied

		scoreByID := make(map[string]float64, len(rerankResults))
		for _, r := range rerankResults {
			scoreByID[r.ID] = r.Score
		}
		for i := range candidates {
			if s, ok := scoreByID[candidates[i].id]; ok {
				candidates[i].score = s
			}
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].id < candidates[j].id
	})

	if len(candidates) > k {
		candidates = candidates[:k]
	}

	results := make([]Result, len(candidates))
	for i, c := range candidates {
		results[i] = Result{URL: c.url, Content: c.content, Similarity: c.score}
	}

	return Response{
		SearchMode:       searchMode,
		RerankingApplied: rerankingApplied,
		Results:          results,
		Count:            len(results),
	}, nil
}
