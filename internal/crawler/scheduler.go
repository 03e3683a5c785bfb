// Package crawler runs the frontier scheduler: a dispatch loop that
// leases batches of URLs from the store (the frontier is the pages
// table itself) and hands them to the ingestion pipeline, bounded by
// a configurable concurrency ceiling and inter-tick delay.
package crawler

import (
	"context"
	"log/slog"
	"time"

	"github.com/docufind/mcp-server/internal/store"
)

// Processor drives a leased wave of pages through the ingestion
// pipeline and blocks until every page in the wave has completed. It
// is implemented by internal/ingest.Processor; Scheduler depends only
// on this narrow interface to avoid an import cycle.
type Processor interface {
	ProcessWave(ctx context.Context, pages []store.Page)
}

// Frontier is the narrow slice of *store.Store the scheduler needs,
// kept as an interface so lease ordering and wave-blocking can be
// tested against a fake without a live Postgres connection.
type Frontier interface {
	LeaseBatch(ctx context.Context, batchSize int) ([]store.Page, error)
}

// Config parameterizes the scheduler loop.
type Config struct {
	BatchSize     int
	MaxConcurrent int
	TickInterval  time.Duration
}

// Scheduler dispatches one leased batch at a time to a Processor,
// never leasing more than MaxConcurrent URLs in a single wave, and
// blocks on the processor's ProcessWave until the whole wave completes
// before its next tick can lease again. The lease itself (crawl_count
// and last_crawled_at advance) happens inside Store.LeaseBatch under
// SELECT ... FOR UPDATE SKIP LOCKED, so concurrent schedulers never
// hand the same URL to two workers.
type Scheduler struct {
	store     Frontier
	processor Processor
	cfg       Config
	logger    *slog.Logger
}

func New(st Frontier, processor Processor, cfg Config, logger *slog.Logger) *Scheduler {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 30
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 30
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 500 * time.Millisecond
	}
	return &Scheduler{
		store:     st,
		processor: processor,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run dispatches waves until ctx is canceled. Each tick leases up to
// BatchSize URLs (capped at MaxConcurrent) and blocks on the whole
// wave finishing before the next tick can lease again; a TickInterval
// delay prevents a tight loop when the frontier is briefly empty.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.tick(ctx); err != nil {
				s.logger.Error("scheduler tick failed", "error", err)
			}
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) error {
	batchSize := s.cfg.BatchSize
	if s.cfg.MaxConcurrent < batchSize {
		batchSize = s.cfg.MaxConcurrent
	}

	pages, err := s.store.LeaseBatch(ctx, batchSize)
	if err != nil {
		return err
	}
	if len(pages) == 0 {
		return nil
	}

	s.processor.ProcessWave(ctx, pages)
	return nil
}
