// Package reranker reorders retrieval candidates by query relevance.
// It mirrors the embedding package's remote/local provider split: a
// remote cross-encoder endpoint versus a local fallback that scores
// candidates by cosine similarity against query and candidate vectors
// it embeds itself. Callers always receive a RerankingApplied flag so
// downstream logging and the retrieval response can be honest about
// which path produced the ordering.
package reranker

import (
	"context"
	"fmt"
	"math"
	"sort"

	openai "github.com/sashabaranov/go-openai"

	"github.com/docufind/mcp-server/internal/embedding"
	"github.com/docufind/mcp-server/internal/ragerrors"
)

// Candidate is one item to be scored and reordered.
type Candidate struct {
	ID   string
	Text string
}

// Result is a Candidate with its relevance score attached, sorted
// descending by Score.
type Result struct {
	Candidate
	Score float64
}

// Reranker scores and reorders candidates for a query.
type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []Candidate) ([]Result, bool, error)
}

// Config parameterizes provider construction. UseCalibration applies
// a fixed polynomial recalibration to cosine-similarity scores in the
// local fallback; it is disabled by default because the polynomial's
// coefficients were fit against a specific reference corpus and do
// not necessarily generalize.
type Config struct {
	Mode           string
	Model          string
	APIKey         string
	BaseURL        string
	UseCalibration bool
	Embedder       embedding.Embedder
}

// New builds the Reranker named by cfg.Mode ("api" or "local").
func New(cfg Config) (Reranker, error) {
	switch cfg.Mode {
	case "api":
		if cfg.APIKey == "" {
			return nil, ragerrors.New(ragerrors.KindConfig, "reranker.New", fmt.Errorf("API mode requires an API key"))
		}
		openaiCfg := openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			openaiCfg.BaseURL = cfg.BaseURL
		}
		return &remoteReranker{
			client: openai.NewClientWithConfig(openaiCfg),
			model:  cfg.Model,
		}, nil
	case "local":
		if cfg.Embedder == nil {
			return nil, ragerrors.New(ragerrors.KindConfig, "reranker.New", fmt.Errorf("local mode requires an Embedder"))
		}
		return &localReranker{embedder: cfg.Embedder, useCalibration: cfg.UseCalibration}, nil
	default:
		return nil, ragerrors.New(ragerrors.KindConfig, "reranker.New", fmt.Errorf("unknown reranker mode %q", cfg.Mode))
	}
}

// remoteReranker calls a cross-encoder-shaped chat completion
// endpoint that scores each candidate against the query. It reuses
// go-openai's client for the HTTP transport and bearer auth, the same
// way the remote embedder does.
type remoteReranker struct {
	client *openai.Client
	model  string
}

func (r *remoteReranker) Rerank(ctx context.Context, query string, candidates []Candidate) ([]Result, bool, error) {
	results := make([]Result, len(candidates))
	for i, c := range candidates {
		score, err := r.scorePair(ctx, query, c.Text)
		if err != nil {
			return nil, false, err
		}
		results[i] = Result{Candidate: c, Score: score}
	}
	sortDescending(results)
	return results, true, nil
}

func (r *remoteReranker) scorePair(ctx context.Context, query, doc string) (float64, error) {
	resp, err := r.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: r.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleSystem,
				Content: "Score how relevant the document is to the query on a scale from 0 to 1. " +
					"Respond with only the number.",
			},
			{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf("Query: %s\n\nDocument: %s", query, doc)},
		},
		Temperature: 0,
	})
	if err != nil {
		return 0, ragerrors.New(ragerrors.KindTransient, "reranker.remoteReranker.scorePair", err)
	}
	if len(resp.Choices) == 0 {
		return 0, ragerrors.New(ragerrors.KindMalformed, "reranker.remoteReranker.scorePair",
			fmt.Errorf("provider returned no choices"))
	}

	var score float64
	if _, err := fmt.Sscanf(resp.Choices[0].Message.Content, "%f", &score); err != nil {
		return 0, ragerrors.New(ragerrors.KindMalformed, "reranker.remoteReranker.scorePair", err)
	}
	return score, nil
}

// localReranker scores candidates by cosine similarity between the
// query's embedding and each candidate's embedding. It is always
// available since it only depends on the embedder already configured
// for the pipeline, so retrieval never fails outright for lack of a
// reranking backend.
type localReranker struct {
	embedder       embedding.Embedder
	useCalibration bool
}

func (r *localReranker) Rerank(ctx context.Context, query string, candidates []Candidate) ([]Result, bool, error) {
	queryVecs, err := r.embedder.Embed(ctx, []string{query}, true)
	if err != nil {
		return nil, false, err
	}
	queryVec := queryVecs[0]

	texts := make([]string, len(candidates))
	for i, c := range candidates {
		texts[i] = c.Text
	}
	docVecs, err := r.embedder.Embed(ctx, texts, false)
	if err != nil {
		return nil, false, err
	}

	results := make([]Result, len(candidates))
	for i, c := range candidates {
		score := cosineSimilarity(queryVec, docVecs[i])
		if r.useCalibration {
			score = calibrate(score)
		}
		results[i] = Result{Candidate: c, Score: score}
	}
	sortDescending(results)
	return results, false, nil
}

func cosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// calibrate applies a fixed cubic (smoothstep) remap of cosine
// similarity onto [0, 1]. Disabled by default; see Config.UseCalibration.
func calibrate(cosine float64) float64 {
	x := (cosine + 1) / 2
	return x*x*(3-2*x)
}

func sortDescending(results []Result) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
}
