// Command crawler runs the standalone crawl+ingest worker process:
// it owns the frontier scheduler and the per-URL ingestion pipeline,
// independent of the MCP query surface. Long-running workers with
// more than one verb are exactly cobra's niche, so subcommands
// (run/once/status) replace a flag-free single-shot style here.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/docufind/mcp-server/internal/config"
	"github.com/docufind/mcp-server/internal/crawler"
	"github.com/docufind/mcp-server/internal/dashboard"
	"github.com/docufind/mcp-server/internal/embedding"
	"github.com/docufind/mcp-server/internal/extractor"
	"github.com/docufind/mcp-server/internal/fetcher"
	"github.com/docufind/mcp-server/internal/ingest"
	"github.com/docufind/mcp-server/internal/obs"
	"github.com/docufind/mcp-server/internal/store"
)

const version = "0.1.0"

func main() {
	root := &cobra.Command{
		Use:     "crawler",
		Short:   "Crawl and ingest TARGET_URL into the docufind store",
		Version: version,
	}
	root.AddCommand(runCmd(), onceCmd(), statusCmd())

	if err := root.Execute(); err != nil {
		log.Fatalf("crawler: %v", err)
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the scheduler continuously until signaled",
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, cfg, err := wireUp(cmd.Context())
			if err != nil {
				return err
			}
			defer deps.store.Close()
			defer deps.patterns.Close()
			if deps.lexical != nil {
				defer deps.lexical.Close()
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if cfg.CrawlMaintenanceCron != "" {
				go runMaintenanceSchedule(ctx, cfg.CrawlMaintenanceCron, deps.store, deps.logger)
			}

			var lexicalSearcher dashboard.ChunkSearcher
			if deps.lexical != nil {
				lexicalSearcher = deps.lexical
			}

			go func() {
				addr := cfg.DashboardAddr
				deps.logger.Info("dashboard listening", "addr", addr)
				if err := (&http.Server{Addr: addr, Handler: dashboard.NewMux(deps.store, lexicalSearcher, deps.logger)}).ListenAndServe(); err != nil {
					deps.logger.Warn("dashboard server stopped", "error", err)
				}
			}()

			log.Printf("✓ crawler running, target=%s", cfg.TargetURL)
			return deps.scheduler.Run(ctx)
		},
	}
}

func onceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "once",
		Short: "Lease and process a single batch, then exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, cfg, err := wireUp(cmd.Context())
			if err != nil {
				return err
			}
			defer deps.store.Close()
			defer deps.patterns.Close()
			if deps.lexical != nil {
				defer deps.lexical.Close()
			}

			ctx := cmd.Context()
			pages, err := deps.store.LeaseBatch(ctx, cfg.CrawlerBatchSize)
			if err != nil {
				return fmt.Errorf("lease batch: %w", err)
			}
			if len(pages) == 0 {
				log.Printf("frontier empty, nothing to process")
				return nil
			}
			deps.processor.ProcessWave(ctx, pages)
			log.Printf("✓ processed %d page(s)", len(pages))
			return nil
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print store statistics and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := obs.NewLogger(0)
			ctx := cmd.Context()
			st, err := store.Open(ctx, store.Config{DSN: cfg.DatabaseDSN, Dim: cfg.EmbeddingDim}, logger)
			if err != nil {
				return err
			}
			defer st.Close()

			stats, err := st.Stats(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("pages:   %d (%d with content, %.1f%%)\n", stats.PagesCount, stats.PagesWithContent, stats.ContentPercentage)
			fmt.Printf("chunks:  %d\n", stats.ChunksCount)
			fmt.Printf("processed: %d (%.1f%%)\n", stats.PagesProcessed, stats.ProcessingPercentage)
			return nil
		},
	}
}

func wireUp(ctx context.Context) (*wired, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}

	logger := obs.NewLogger(0)
	metrics := obs.NewMetrics(prometheus.DefaultRegisterer)

	st, err := store.Open(ctx, store.Config{
		DSN:           cfg.DatabaseDSN,
		Dim:           cfg.EmbeddingDim,
		AllowANNIndex: cfg.StoreAllowANNIndex,
		MaxConns:      cfg.DBPoolMaxConns,
	}, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("store: %w", err)
	}
	if err := st.EnsureSchema(ctx, cfg.StoreAllowANNIndex); err != nil {
		st.Close()
		return nil, nil, fmt.Errorf("schema: %w", err)
	}
	if err := st.UpsertFrontierURL(ctx, cfg.TargetURL); err != nil {
		st.Close()
		return nil, nil, fmt.Errorf("seed frontier: %w", err)
	}

	f := fetcher.New(cfg.CrawlInterval, cfg.TargetURL)

	embedder, err := embedding.New(embedding.Config{
		Mode:       string(cfg.EmbeddingMode),
		Model:      cfg.EmbeddingModel,
		APIKey:     cfg.EmbeddingAPIKey,
		BaseURL:    cfg.EmbeddingAPIURL,
		Dim:        cfg.EmbeddingDim,
		MaxLength:  cfg.EmbeddingMaxLength,
		Concurrent: cfg.EmbeddingMaxConcur,
	})
	if err != nil {
		st.Close()
		return nil, nil, fmt.Errorf("embedder: %w", err)
	}

	extractorCfg := extractor.Config{
		ContentSelector:   cfg.ExtractorContentSelector,
		PollutionPatterns: extractor.DefaultPollutionPatterns,
	}

	patterns, err := config.NewPatternTable(cfg.PollutionPatternsFile, extractor.DefaultPollutionPatterns, logger)
	if err != nil {
		st.Close()
		return nil, nil, fmt.Errorf("pattern table: %w", err)
	}

	processor := ingest.New(f, embedder, st, ingest.Config{
		ChunkSize:         cfg.ChunkSize,
		ProcessorWaveSize: cfg.ProcessorBatchSize,
		ContextWrapMode:   cfg.ContextWrapMode,
		ExtractorConfig:   extractorCfg,
	}, logger, metrics).WithPatternSource(patterns)

	scheduler := crawler.New(st, processor, crawler.Config{
		BatchSize:     cfg.CrawlerBatchSize,
		MaxConcurrent: cfg.CrawlerMaxConcurrent,
		TickInterval:  cfg.CrawlInterval,
	}, logger)

	var lexical *store.LexicalIndex
	if cfg.LexicalIndexDir != "" {
		lexical, err = store.OpenLexicalIndex(cfg.LexicalIndexDir, logger)
		if err != nil {
			st.Close()
			return nil, nil, fmt.Errorf("lexical index: %w", err)
		}
	}

	return &wired{store: st, processor: processor, scheduler: scheduler, logger: logger, patterns: patterns, lexical: lexical}, cfg, nil
}

type wired struct {
	store     *store.Store
	processor *ingest.Processor
	scheduler *crawler.Scheduler
	logger    *slog.Logger
	patterns  *config.PatternTable
	lexical   *store.LexicalIndex
}

// runMaintenanceSchedule parses CrawlMaintenanceCron once at startup
// and runs a VACUUM/ANALYZE pass against the chunks table on each
// firing until ctx is canceled. This is an optional operational knob,
// not part of any core component's contract.
func runMaintenanceSchedule(ctx context.Context, expr string, st *store.Store, logger *slog.Logger) {
	schedule, err := cron.ParseStandard(expr)
	if err != nil {
		logger.Warn("invalid CRAWL_MAINTENANCE_SCHEDULE, maintenance disabled", "expr", expr, "error", err)
		return
	}

	for {
		next := schedule.Next(time.Now())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			if err := st.Maintain(ctx); err != nil {
				logger.Warn("maintenance pass failed", "error", err)
			} else {
				logger.Info("maintenance pass completed")
			}
		}
	}
}
