// Package store is the persistence layer for pages and chunks: a
// Postgres+pgvector schema accessed through pgx/pgxpool, a brute-force
// exact nearest-neighbor scan (the reference embedding dimension,
// 2560, exceeds pgvector's indexable dimension limit, so "no precision
// loss" rules out an approximate index by default), a lexical index
// over chunk content, and a hybrid fusion of the two. The frontier is
// not a separate structure: it is the pages table itself, leased
// through SELECT ... FOR UPDATE SKIP LOCKED by internal/crawler.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/docufind/mcp-server/internal/ragerrors"
)

// Config parameterizes Store construction.
type Config struct {
	DSN           string
	Dim           int
	AllowANNIndex bool
	MaxConns      int32
}

// Store is the sole mutator of page content/chunks and the query
// surface for nearest/keyword/hybrid candidate retrieval.
type Store struct {
	pool   *pgxpool.Pool
	dim    int
	logger *slog.Logger
}

// Open builds a connection pool against cfg.DSN and verifies
// connectivity with a single ping before returning, mirroring the
// reference implementation's pool-lifecycle health check
// (original_source/src/postgres_client.py acquires a connection and
// pings before marking itself ready).
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, ragerrors.New(ragerrors.KindConfig, "store.Open", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, ragerrors.New(ragerrors.KindTransient, "store.Open", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, ragerrors.New(ragerrors.KindTransient, "store.Open", fmt.Errorf("ping failed: %w", err))
	}

	if cfg.AllowANNIndex {
		logger.Warn("ANN index enabled for nearest-neighbor queries; this trades recall for latency",
			"dim", cfg.Dim)
	}

	return &Store{pool: pool, dim: cfg.Dim, logger: logger}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

// Maintain runs VACUUM ANALYZE against the chunks table. It is the
// operational knob an optional CRAWL_MAINTENANCE_SCHEDULE drives on
// its own schedule, in a goroutine alongside the crawl loop rather
// than between crawl waves; it is not part of any component's core
// contract.
func (s *Store) Maintain(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `VACUUM ANALYZE chunks`); err != nil {
		return ragerrors.New(ragerrors.KindTransient, "store.Maintain", err)
	}
	return nil
}

// EnsureSchema creates the pages/chunks tables and their indexes if
// absent. chunks.embedding is a vector column of Store.dim; an HNSW
// index is created only when the allowANNIndex argument is true,
// since brute-force exact scan is the default for D > 2000.
func (s *Store) EnsureSchema(ctx context.Context, allowANNIndex bool) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS pages (
			url TEXT PRIMARY KEY,
			content TEXT NOT NULL DEFAULT '',
			crawl_count INTEGER NOT NULL DEFAULT 0,
			last_crawled_at TIMESTAMPTZ,
			processed_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`),
		`CREATE INDEX IF NOT EXISTS pages_lease_order_idx ON pages (crawl_count ASC, last_crawled_at ASC NULLS FIRST)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS chunks (
			id TEXT PRIMARY KEY,
			page_url TEXT NOT NULL REFERENCES pages(url),
			ordinal INTEGER NOT NULL,
			content TEXT NOT NULL,
			break_type TEXT NOT NULL,
			char_start INTEGER NOT NULL,
			char_end INTEGER NOT NULL,
			embedding vector(%d) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, s.dim),
		`CREATE INDEX IF NOT EXISTS chunks_page_url_idx ON chunks (page_url)`,
		`CREATE INDEX IF NOT EXISTS chunks_content_fts_idx ON chunks USING gin (to_tsvector('english', content))`,
	}

	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return ragerrors.New(ragerrors.KindPermanent, "store.EnsureSchema", err)
		}
	}

	if allowANNIndex {
		// No dimension check is made here: with D above pgvector's HNSW
		// dimension limit (as for the reference D=2560) Postgres rejects
		// this statement and EnsureSchema returns that error.
		hnsw := `CREATE INDEX IF NOT EXISTS chunks_embedding_hnsw_idx ON chunks
			USING hnsw (embedding vector_cosine_ops) WITH (m = 16, ef_construction = 64)`
		if _, err := s.pool.Exec(ctx, hnsw); err != nil {
			return ragerrors.New(ragerrors.KindPermanent, "store.EnsureSchema", err)
		}
	}

	return nil
}

// UpsertFrontierURL inserts url into the frontier (the pages table)
// with crawl_count=0 if absent: brand-new URLs jump to the head of
// the lease queue via ON CONFLICT DO NOTHING.
func (s *Store) UpsertFrontierURL(ctx context.Context, url string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO pages (url) VALUES ($1)
		ON CONFLICT (url) DO NOTHING`, url)
	if err != nil {
		return ragerrors.New(ragerrors.KindTransient, "store.UpsertFrontierURL", err)
	}
	return nil
}

// LeaseBatch selects up to batchSize URLs for crawling under
// SELECT ... FOR UPDATE SKIP LOCKED, ordered by crawl_count ascending
// then last_crawled_at ascending (nulls first), and advances their
// lease counter and timestamp in the same transaction before
// releasing the row lock. This is the entire frontier dispatch
// mechanism; no in-process queue exists alongside it.
func (s *Store) LeaseBatch(ctx context.Context, batchSize int) ([]Page, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, ragerrors.New(ragerrors.KindTransient, "store.LeaseBatch", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		SELECT url, content, crawl_count, last_crawled_at, processed_at, created_at, updated_at
		FROM pages
		ORDER BY crawl_count ASC, last_crawled_at ASC NULLS FIRST
		LIMIT $1
		FOR UPDATE SKIP LOCKED`, batchSize)
	if err != nil {
		return nil, ragerrors.New(ragerrors.KindTransient, "store.LeaseBatch", err)
	}

	var leased []Page
	for rows.Next() {
		var p Page
		if err := rows.Scan(&p.URL, &p.Content, &p.CrawlCount, &p.LastCrawledAt, &p.ProcessedAt, &p.CreatedAt, &p.UpdatedAt); err != nil {
			rows.Close()
			return nil, ragerrors.New(ragerrors.KindTransient, "store.LeaseBatch", err)
		}
		leased = append(leased, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, ragerrors.New(ragerrors.KindTransient, "store.LeaseBatch", err)
	}

	now := time.Now()
	for i := range leased {
		if _, err := tx.Exec(ctx, `
			UPDATE pages SET crawl_count = crawl_count + 1, last_crawled_at = $2, updated_at = $2
			WHERE url = $1`, leased[i].URL, now); err != nil {
			return nil, ragerrors.New(ragerrors.KindTransient, "store.LeaseBatch", err)
		}
		leased[i].CrawlCount++
		leased[i].LastCrawledAt = &now
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, ragerrors.New(ragerrors.KindTransient, "store.LeaseBatch", err)
	}
	return leased, nil
}

// ReplaceChunks atomically replaces all chunks of a page with newChunks
// and updates the page's content and processed_at timestamp, so no
// partial chunk set is ever observable for a page. A Store failure
// anywhere in this transaction rolls back the whole per-URL write;
// the page's processed_at never advances without a consistent chunk
// set behind it.
func (s *Store) ReplaceChunks(ctx context.Context, pageURL, content string, newChunks []Chunk) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return ragerrors.New(ragerrors.KindTransient, "store.ReplaceChunks", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM chunks WHERE page_url = $1`, pageURL); err != nil {
		return ragerrors.New(ragerrors.KindTransient, "store.ReplaceChunks", err)
	}

	for _, c := range newChunks {
		if _, err := tx.Exec(ctx, `
			INSERT INTO chunks (id, page_url, ordinal, content, break_type, char_start, char_end, embedding)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			c.ID, pageURL, c.Ordinal, c.Content, string(c.BreakType), c.CharStart, c.CharEnd, Vector(c.Embedding).String()); err != nil {
			return ragerrors.New(ragerrors.KindIntegrity, "store.ReplaceChunks", err)
		}
	}

	now := time.Now()
	if _, err := tx.Exec(ctx, `
		UPDATE pages SET content = $2, processed_at = $3, updated_at = $3
		WHERE url = $1`, pageURL, content, now); err != nil {
		return ragerrors.New(ragerrors.KindTransient, "store.ReplaceChunks", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return ragerrors.New(ragerrors.KindTransient, "store.ReplaceChunks", err)
	}
	return nil
}

// Nearest returns up to k chunks ordered by ascending cosine distance
// to queryVec. With AllowANNIndex unset this is a brute-force exact
// scan over the whole chunks table, since pgvector's HNSW index
// cannot be built above its dimension limit.
func (s *Store) Nearest(ctx context.Context, queryVec []float32, k int) ([]NearestResult, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT c.id, c.page_url, c.content, c.embedding <=> $1 AS distance
		FROM chunks c
		ORDER BY distance ASC
		LIMIT $2`, Vector(queryVec).String(), k)
	if err != nil {
		return nil, ragerrors.New(ragerrors.KindTransient, "store.Nearest", err)
	}
	defer rows.Close()

	var out []NearestResult
	for rows.Next() {
		var r NearestResult
		if err := rows.Scan(&r.ChunkID, &r.URL, &r.Content, &r.Distance); err != nil {
			return nil, ragerrors.New(ragerrors.KindTransient, "store.Nearest", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Keyword returns up to k chunks ranked by Postgres full-text match
// score against queryText.
func (s *Store) Keyword(ctx context.Context, queryText string, k int) ([]NearestResult, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT c.id, c.page_url, c.content,
		       ts_rank(to_tsvector('english', c.content), plainto_tsquery('english', $1)) AS score
		FROM chunks c
		WHERE to_tsvector('english', c.content) @@ plainto_tsquery('english', $1)
		ORDER BY score DESC
		LIMIT $2`, queryText, k)
	if err != nil {
		return nil, ragerrors.New(ragerrors.KindTransient, "store.Keyword", err)
	}
	defer rows.Close()

	var out []NearestResult
	for rows.Next() {
		var r NearestResult
		var score float64
		if err := rows.Scan(&r.ChunkID, &r.URL, &r.Content, &score); err != nil {
			return nil, ragerrors.New(ragerrors.KindTransient, "store.Keyword", err)
		}
		r.Distance = 1 - score
		out = append(out, r)
	}
	return out, rows.Err()
}

// Hybrid fuses Nearest and Keyword candidates, de-duplicated by chunk
// id, re-scored as 0.7*vector_score + 0.3*lex_score (vector_score =
// 1 - distance, lex_score normalized to [0,1] by dividing by the top
// lexical score in this candidate set). Ties are broken by
// vector_score descending.
func (s *Store) Hybrid(ctx context.Context, queryVec []float32, queryText string, k int) ([]HybridResult, error) {
	vecResults, err := s.Nearest(ctx, queryVec, k)
	if err != nil {
		return nil, err
	}
	lexResults, err := s.Keyword(ctx, queryText, k)
	if err != nil {
		return nil, err
	}

	return fuseHybrid(vecResults, lexResults, k), nil
}

// fuseHybrid implements the merge-and-rescore half of Hybrid as a
// pure function of its two candidate sets, so the fusion formula and
// tie-break rule are testable without a live Postgres connection.
func fuseHybrid(vecResults, lexResults []NearestResult, k int) []HybridResult {
	maxLexScore := 0.0
	lexScoreByID := make(map[string]float64, len(lexResults))
	lexContentByID := make(map[string]string, len(lexResults))
	lexURLByID := make(map[string]string, len(lexResults))
	for _, r := range lexResults {
		score := 1 - r.Distance
		lexScoreByID[r.ChunkID] = score
		lexContentByID[r.ChunkID] = r.Content
		lexURLByID[r.ChunkID] = r.URL
		if score > maxLexScore {
			maxLexScore = score
		}
	}

	merged := make(map[string]*HybridResult, len(vecResults)+len(lexResults))
	for _, r := range vecResults {
		merged[r.ChunkID] = &HybridResult{
			ChunkID:     r.ChunkID,
			URL:         r.URL,
			Content:     r.Content,
			VectorScore: 1 - r.Distance,
		}
	}
	for id, score := range lexScoreByID {
		norm := score
		if maxLexScore > 0 {
			norm = score / maxLexScore
		}
		if existing, ok := merged[id]; ok {
			existing.LexScore = norm
			continue
		}
		merged[id] = &HybridResult{
			ChunkID:  id,
			URL:      lexURLByID[id],
			Content:  lexContentByID[id],
			LexScore: norm,
		}
	}

	out := make([]HybridResult, 0, len(merged))
	for _, r := range merged {
		r.FusedScore = 0.7*r.VectorScore + 0.3*r.LexScore
		out = append(out, *r)
	}

	sortHybridDescending(out)
	if len(out) > k {
		out = out[:k]
	}
	return out
}

func sortHybridDescending(results []HybridResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].FusedScore != results[j].FusedScore {
			return results[i].FusedScore > results[j].FusedScore
		}
		return results[i].VectorScore > results[j].VectorScore
	})
}

// ListPages returns up to limit pages for the dashboard, most
// recently updated first.
func (s *Store) ListPages(ctx context.Context, limit int) ([]Page, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT url, content, crawl_count, last_crawled_at, processed_at, created_at, updated_at
		FROM pages
		ORDER BY updated_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, ragerrors.New(ragerrors.KindTransient, "store.ListPages", err)
	}
	defer rows.Close()

	var out []Page
	for rows.Next() {
		var p Page
		if err := rows.Scan(&p.URL, &p.Content, &p.CrawlCount, &p.LastCrawledAt, &p.ProcessedAt, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, ragerrors.New(ragerrors.KindTransient, "store.ListPages", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListChunks returns up to limit chunks for pageURL in ordinal order,
// or across all pages if pageURL is empty.
func (s *Store) ListChunks(ctx context.Context, pageURL string, limit int) ([]Chunk, error) {
	var rows pgx.Rows
	var err error
	if pageURL == "" {
		rows, err = s.pool.Query(ctx, `
			SELECT id, page_url, ordinal, content, break_type, char_start, char_end, created_at
			FROM chunks
			ORDER BY page_url, ordinal
			LIMIT $1`, limit)
	} else {
		rows, err = s.pool.Query(ctx, `
			SELECT id, page_url, ordinal, content, break_type, char_start, char_end, created_at
			FROM chunks
			WHERE page_url = $1
			ORDER BY ordinal
			LIMIT $2`, pageURL, limit)
	}
	if err != nil {
		return nil, ragerrors.New(ragerrors.KindTransient, "store.ListChunks", err)
	}
	defer rows.Close()

	var out []Chunk
	for rows.Next() {
		var c Chunk
		var breakType string
		if err := rows.Scan(&c.ID, &c.PageURL, &c.Ordinal, &c.Content, &breakType, &c.CharStart, &c.CharEnd, &c.CreatedAt); err != nil {
			return nil, ragerrors.New(ragerrors.KindTransient, "store.ListChunks", err)
		}
		c.BreakType = BreakType(breakType)
		out = append(out, c)
	}
	return out, rows.Err()
}

// Stats reports page and chunk counts plus derived completion
// percentages for the dashboard's /api/stats.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	row := s.pool.QueryRow(ctx, `
		SELECT
			count(*),
			count(*) FILTER (WHERE content <> ''),
			count(*) FILTER (WHERE processed_at IS NOT NULL)
		FROM pages`)
	if err := row.Scan(&stats.PagesCount, &stats.PagesWithContent, &stats.PagesProcessed); err != nil {
		return Stats{}, ragerrors.New(ragerrors.KindTransient, "store.Stats", err)
	}
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM chunks`).Scan(&stats.ChunksCount); err != nil {
		return Stats{}, ragerrors.New(ragerrors.KindTransient, "store.Stats", err)
	}
	if stats.PagesCount > 0 {
		stats.ContentPercentage = 100 * float64(stats.PagesWithContent) / float64(stats.PagesCount)
		stats.ProcessingPercentage = 100 * float64(stats.PagesProcessed) / float64(stats.PagesCount)
	}
	return stats, nil
}
