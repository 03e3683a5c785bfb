// Package ingest drives the per-URL pipeline: Fetch → Extract → Chunk
// → Embed → Store, and feeds newly discovered links back into the
// frontier. Waves of up to processor_batch_size URLs run concurrently
// via a buffered-channel semaphore; the caller (internal/crawler)
// blocks on wave completion before leasing the next batch.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/docufind/mcp-server/internal/chunker"
	"github.com/docufind/mcp-server/internal/config"
	"github.com/docufind/mcp-server/internal/embedding"
	"github.com/docufind/mcp-server/internal/extractor"
	"github.com/docufind/mcp-server/internal/fetcher"
	"github.com/docufind/mcp-server/internal/obs"
	"github.com/docufind/mcp-server/internal/ragerrors"
	"github.com/docufind/mcp-server/internal/store"
)

var errVectorCountMismatch = errors.New("ingest: embedder returned a different number of vectors than chunks")

// minExtractedChars is the minimum viable length of an extracted
// document; a successful fetch whose extraction falls short of it is
// indistinguishable from a bot-challenge or JS-gated page that never
// rendered real content, so it is classified KindMalformed and never
// chunked or persisted.
const minExtractedChars = 100

// retryBackoffs are the delays between retry attempts for a Retryable
// failure from Fetch or Embed: up to len(retryBackoffs) retries beyond
// the initial attempt, doubling each time.
var retryBackoffs = []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}

// Config parameterizes per-URL chunking and wave sizing.
type Config struct {
	ChunkSize         int
	ProcessorWaveSize int
	ContextWrapMode   config.ContextWrapMode
	ExtractorConfig   extractor.Config
}

// ChunkStore is the narrow slice of *store.Store that Process needs,
// kept as an interface so the pipeline can be tested against a fake
// without a live Postgres connection.
type ChunkStore interface {
	ReplaceChunks(ctx context.Context, pageURL, content string, newChunks []store.Chunk) error
	UpsertFrontierURL(ctx context.Context, url string) error
}

// PatternSource supplies the current pollution-pattern list, letting a
// hot-reloadable table override the patterns baked into Config at
// construction time. config.PatternTable satisfies this.
type PatternSource interface {
	Patterns() []string
}

// Processor implements crawler.Processor: one leased Page through the
// full pipeline.
type Processor struct {
	fetcher   fetcher.Fetcher
	embedder  embedding.Embedder
	store     ChunkStore
	cfg       Config
	logger    *slog.Logger
	metrics   *obs.Metrics
	semaphore chan struct{}
	patterns  PatternSource
}

// WithPatternSource attaches a dynamic pollution-pattern source whose
// current value overrides cfg.ExtractorConfig.PollutionPatterns on
// every Process call, so edits to the pattern file take effect without
// restarting the processor. Returns p for chaining at construction.
func (p *Processor) WithPatternSource(src PatternSource) *Processor {
	p.patterns = src
	return p
}

func New(f fetcher.Fetcher, e embedding.Embedder, st ChunkStore, cfg Config, logger *slog.Logger, metrics *obs.Metrics) *Processor {
	waveSize := cfg.ProcessorWaveSize
	if waveSize <= 0 {
		waveSize = 5
	}
	if cfg.ContextWrapMode == "" {
		cfg.ContextWrapMode = config.ContextWrapJSON
	}
	return &Processor{
		fetcher:   f,
		embedder:  e,
		store:     st,
		cfg:       cfg,
		logger:    logger,
		metrics:   metrics,
		semaphore: make(chan struct{}, waveSize),
	}
}

// Process runs the full pipeline for one page. Fetcher or Extractor
// failure leaves the page row unchanged (only the lease counter,
// already advanced by the scheduler's lease, differs); Store failure
// rolls back the whole per-URL transaction inside ReplaceChunks, so
// processed_at never advances without a consistent chunk set.
func (p *Processor) Process(ctx context.Context, page store.Page) error {
	select {
	case p.semaphore <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-p.semaphore }()

	var fetchResult fetcher.Result
	err := withRetry(ctx, func() error {
		var ferr error
		fetchResult, ferr = p.fetcher.Fetch(ctx, page.URL)
		return ferr
	})
	if err != nil {
		return err
	}

	extractorCfg := p.cfg.ExtractorConfig
	if p.patterns != nil {
		extractorCfg.PollutionPatterns = p.patterns.Patterns()
	}

	extractResult, err := extractor.Extract(fetchResult.HTML, extractorCfg)
	if err != nil {
		return ragerrors.New(ragerrors.KindPermanent, "ingest.Process", err)
	}

	if len(extractResult.Markdown) < minExtractedChars {
		return ragerrors.New(ragerrors.KindMalformed, "ingest.Process",
			fmt.Errorf("extracted %d chars, want at least %d", len(extractResult.Markdown), minExtractedChars))
	}

	rawChunks := chunker.Chunk(extractResult.Markdown, p.cfg.ChunkSize)
	if len(rawChunks) == 0 {
		return nil
	}

	texts := make([]string, len(rawChunks))
	for i, c := range rawChunks {
		texts[i] = contextualize(c, p.cfg.ContextWrapMode)
	}

	start := time.Now()
	var vectors [][]float32
	err = withRetry(ctx, func() error {
		var eerr error
		vectors, eerr = p.embedder.Embed(ctx, texts, false)
		return eerr
	})
	if p.metrics != nil {
		p.metrics.EmbedderLatency.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		return ragerrors.New(ragerrors.KindEmbedding, "ingest.Process", err)
	}
	if len(vectors) != len(rawChunks) {
		return ragerrors.New(ragerrors.KindEmbedding, "ingest.Process", errVectorCountMismatch)
	}

	storeChunks := make([]store.Chunk, len(rawChunks))
	for i, c := range rawChunks {
		storeChunks[i] = store.Chunk{
			ID:        uuid.NewString(),
			PageURL:   page.URL,
			Ordinal:   i,
			Content:   texts[i],
			BreakType: store.BreakType(c.BreakType),
			CharStart: c.Start,
			CharEnd:   c.End,
			Embedding: vectors[i],
		}
	}

	if err := p.store.ReplaceChunks(ctx, page.URL, extractResult.Markdown, storeChunks); err != nil {
		return err
	}
	if p.metrics != nil {
		p.metrics.PagesCrawled.Inc()
		p.metrics.ChunksProduced.Add(float64(len(storeChunks)))
	}

	for _, discovered := range fetchResult.DiscoveredURLs {
		if err := p.store.UpsertFrontierURL(ctx, discovered); err != nil {
			p.logger.Warn("failed to enqueue discovered url", "url", discovered, "error", err)
		}
	}

	return nil
}

// ProcessWave runs Process over pages concurrently, bounded by the
// processor's wave-size semaphore, and blocks until every page in the
// wave has completed before the caller leases the next batch.
func (p *Processor) ProcessWave(ctx context.Context, pages []store.Page) {
	var wg sync.WaitGroup
	for _, page := range pages {
		page := page
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := p.Process(ctx, page); err != nil {
				p.logger.Warn("page processing failed", "url", page.URL, "error", err)
			}
		}()
	}
	wg.Wait()
}

// withRetry calls fn, retrying with exponential backoff while its
// error is ragerrors.Retryable, up to len(retryBackoffs) additional
// attempts beyond the first.
func withRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if err == nil || !ragerrors.Retryable(err) || attempt >= len(retryBackoffs) {
			return err
		}
		select {
		case <-time.After(retryBackoffs[attempt]):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// contextualChunk is the on-disk shape of a chunk's content in
// ContextWrapJSON mode: the chunk text plus the markdown header path
// it was found under, so a retrieved chunk carries enough of its
// surrounding structure to stand alone.
type contextualChunk struct {
	Context string `json:"context"`
	Content string `json:"content"`
}

// contextualize wraps a raw chunk's content with its enclosing header
// path per mode. In JSON mode a chunk with no enclosing headers
// (HeaderPath empty) is wrapped with an empty context rather than left
// bare; in concat mode such a chunk is returned as its raw content.
func contextualize(c chunker.ChunkResult, mode config.ContextWrapMode) string {
	headerPath := strings.Join(c.HeaderPath, " > ")

	if mode == config.ContextWrapConcat {
		if headerPath == "" {
			return c.Content
		}
		return headerPath + "\n\n" + c.Content
	}

	payload, err := json.Marshal(contextualChunk{Context: headerPath, Content: c.Content})
	if err != nil {
		return c.Content
	}
	return string(payload)
}
