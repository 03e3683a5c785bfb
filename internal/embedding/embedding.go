// Package embedding turns chunk text into fixed-dimension vectors
// through one of two interchangeable providers, selected by
// config.EmbeddingMode: a remote HTTP API (go-openai's client shape,
// pointed at a SiliconFlow-compatible embeddings endpoint) or a local
// stub standing in for an in-process transformer runtime that Go has
// no first-class equivalent for. Both providers L2-normalize their
// output so downstream cosine-distance comparisons are stable.
package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"

	openai "github.com/sashabaranov/go-openai"

	"github.com/docufind/mcp-server/internal/ragerrors"
)

// Embedder turns text into a fixed-dimension, L2-normalized vector.
// isQuery distinguishes query-side from document-side encoding for
// providers whose underlying model uses asymmetric instructions.
type Embedder interface {
	Embed(ctx context.Context, texts []string, isQuery bool) ([][]float32, error)
	Dim() int
}

// Config parameterizes provider construction. Mode selects the
// backend; Dim and MaxLength bound every provider's contract
// regardless of backend.
type Config struct {
	Mode       string
	Model      string
	APIKey     string
	BaseURL    string
	Dim        int
	MaxLength  int
	Concurrent int
}

const defaultConcurrency = 4

// New builds the Embedder named by cfg.Mode ("api" or "local").
func New(cfg Config) (Embedder, error) {
	concurrent := cfg.Concurrent
	if concurrent <= 0 {
		concurrent = defaultConcurrency
	}

	switch cfg.Mode {
	case "api":
		if cfg.APIKey == "" {
			return nil, ragerrors.New(ragerrors.KindConfig, "embedding.New", fmt.Errorf("API mode requires an API key"))
		}
		openaiCfg := openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			openaiCfg.BaseURL = cfg.BaseURL
		}
		return &remoteEmbedder{
			client: openai.NewClientWithConfig(openaiCfg),
			model:  cfg.Model,
			dim:    cfg.Dim,
			sem:    make(chan struct{}, concurrent),
		}, nil
	case "local":
		return &localEmbedder{dim: cfg.Dim}, nil
	default:
		return nil, ragerrors.New(ragerrors.KindConfig, "embedding.New", fmt.Errorf("unknown embedding mode %q", cfg.Mode))
	}
}

// remoteEmbedder calls a SiliconFlow-compatible embeddings endpoint
// through go-openai's client, bounding in-flight requests to sem's
// capacity so a large ingestion wave cannot overrun the provider's
// rate limit. Requests queue FIFO on the channel.
type remoteEmbedder struct {
	client *openai.Client
	model  string
	dim    int
	sem    chan struct{}
}

func (e *remoteEmbedder) Dim() int { return e.dim }

func (e *remoteEmbedder) Embed(ctx context.Context, texts []string, isQuery bool) ([][]float32, error) {
	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-e.sem }()

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input: texts,
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, ragerrors.New(ragerrors.KindTransient, "embedding.remoteEmbedder.Embed", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, ragerrors.New(ragerrors.KindEmbedding, "embedding.remoteEmbedder.Embed",
			fmt.Errorf("provider returned %d embeddings for %d inputs", len(resp.Data), len(texts)))
	}

	out := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		if len(d.Embedding) != e.dim {
			return nil, ragerrors.New(ragerrors.KindEmbedding, "embedding.remoteEmbedder.Embed",
				fmt.Errorf("embedding %d has dimension %d, want %d", i, len(d.Embedding), e.dim))
		}
		out[i] = normalize(d.Embedding)
	}
	return out, nil
}

// localEmbedder stands in for the local Qwen3 transformer runtime
// (the reference implementation loads the model on-device with
// right-padded, last-token-pooled encoding). Go has no first-class
// binding for that runtime, so this produces a deterministic,
// content-derived pseudo-embedding: same dimension and normalization
// contract as the remote provider, reproducible across runs, but not a
// semantically meaningful vector. It exists so the rest of the
// pipeline (store, retrieval, ranking) can be developed and tested
// against the Embedder interface without a live model.
type localEmbedder struct {
	dim int
}

func (e *localEmbedder) Dim() int { return e.dim }

func (e *localEmbedder) Embed(_ context.Context, texts []string, isQuery bool) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = normalize(deterministicVector(text, isQuery, e.dim))
	}
	return out, nil
}

// deterministicVector expands a SHA-256 digest of text (and the
// isQuery flag, so query-side and document-side encodings of
// identical text differ as they would under a real asymmetric model)
// into dim float32 components via repeated rehashing.
func deterministicVector(text string, isQuery bool, dim int) []float32 {
	seed := text
	if isQuery {
		seed = "query:" + seed
	} else {
		seed = "doc:" + seed
	}

	vec := make([]float32, dim)
	h := sha256.Sum256([]byte(seed))
	block := h[:]
	for i := 0; i < dim; i++ {
		if i > 0 && i%len(block) == 0 {
			next := sha256.Sum256(block)
			block = next[:]
		}
		off := (i % len(block))
		bits := binary.LittleEndian.Uint32(padTo4(block, off))
		vec[i] = float32(bits)/float32(math.MaxUint32)*2 - 1
	}
	return vec
}

func padTo4(block []byte, off int) []byte {
	buf := make([]byte, 4)
	for i := 0; i < 4; i++ {
		buf[i] = block[(off+i)%len(block)]
	}
	return buf
}

func normalize(v []float32) []float32 {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	norm := math.Sqrt(sumSq)
	if norm == 0 {
		return v
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}
