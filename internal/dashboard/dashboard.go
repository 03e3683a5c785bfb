// Package dashboard exposes a read-only HTTP API over page/chunk
// state and Prometheus metrics, built on stdlib net/http since no repo
// in the reference pack reaches for a router library for a handful of
// read-only routes.
package dashboard

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/docufind/mcp-server/internal/store"
)

// QueryStore is the narrow store surface the dashboard needs.
type QueryStore interface {
	ListPages(ctx context.Context, limit int) ([]store.Page, error)
	ListChunks(ctx context.Context, pageURL string, limit int) ([]store.Chunk, error)
	Stats(ctx context.Context) (store.Stats, error)
}

// ChunkSearcher ranks chunks by lexical relevance to a query, backed
// by store.LexicalIndex. A nil ChunkSearcher falls back to a
// hand-rolled substring match in handleChunks.
type ChunkSearcher interface {
	Search(queryText string, k int) ([]store.NearestResult, error)
}

// NewMux builds the dashboard's route table. lexical may be nil, in
// which case /api/chunks?search= falls back to a substring match over
// already-fetched chunk content.
func NewMux(st QueryStore, lexical ChunkSearcher, logger *slog.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/pages", handlePages(st, logger))
	mux.HandleFunc("/api/chunks", handleChunks(st, lexical, logger))
	mux.HandleFunc("/api/stats", handleStats(st, logger))
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data"`
	Count   int    `json:"count,omitempty"`
	Error   string `json:"error,omitempty"`
}

type pagination struct {
	Page  int `json:"page"`
	Size  int `json:"size"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

type chunksEnvelope struct {
	Success    bool       `json:"success"`
	Data       any        `json:"data"`
	Pagination pagination `json:"pagination"`
}

// handlePages serves GET /api/pages?sort=<col>&order=<asc|desc>&search=<q>.
func handlePages(st QueryStore, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pages, err := st.ListPages(r.Context(), 1000)
		if err != nil {
			writeJSONError(w, logger, http.StatusInternalServerError, err)
			return
		}

		if q := r.URL.Query().Get("search"); q != "" {
			pages = filterPages(pages, q)
		}
		sortPages(pages, r.URL.Query().Get("sort"), r.URL.Query().Get("order"))

		writeJSON(w, http.StatusOK, envelope{Success: true, Data: pages, Count: len(pages)})
	}
}

func filterPages(pages []store.Page, q string) []store.Page {
	q = strings.ToLower(q)
	out := pages[:0:0]
	for _, p := range pages {
		if strings.Contains(strings.ToLower(p.URL), q) || strings.Contains(strings.ToLower(p.Content), q) {
			out = append(out, p)
		}
	}
	return out
}

func sortPages(pages []store.Page, col, order string) {
	if col == "" {
		return
	}
	desc := strings.EqualFold(order, "desc")
	less := func(i, j int) bool {
		var lt bool
		switch col {
		case "url":
			lt = pages[i].URL < pages[j].URL
		case "crawl_count":
			lt = pages[i].CrawlCount < pages[j].CrawlCount
		case "updated_at":
			lt = pages[i].UpdatedAt.Before(pages[j].UpdatedAt)
		default:
			lt = pages[i].UpdatedAt.Before(pages[j].UpdatedAt)
		}
		if desc {
			return !lt
		}
		return lt
	}
	sort.SliceStable(pages, less)
}

// handleChunks serves GET /api/chunks?page=<n>&size=<n>&search=<q>.
// When lexical is non-nil, search ranks by store.LexicalIndex.Search
// relevance; otherwise it falls back to a substring match.
func handleChunks(st QueryStore, lexical ChunkSearcher, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pageURL := r.URL.Query().Get("page_url")
		chunks, err := st.ListChunks(r.Context(), pageURL, 5000)
		if err != nil {
			writeJSONError(w, logger, http.StatusInternalServerError, err)
			return
		}

		if q := r.URL.Query().Get("search"); q != "" {
			if lexical != nil {
				if hits, err := lexical.Search(q, 5000); err == nil {
					chunks = filterChunksByLexicalHits(chunks, hits)
				} else {
					logger.Warn("lexical chunk search failed, falling back to substring match", "error", err)
					chunks = filterChunks(chunks, q)
				}
			} else {
				chunks = filterChunks(chunks, q)
			}
		}

		page := queryInt(r, "page", 1)
		size := queryInt(r, "size", 50)
		if page < 1 {
			page = 1
		}
		if size < 1 {
			size = 50
		}

		total := len(chunks)
		totalPages := (total + size - 1) / size
		start := (page - 1) * size
		if start > total {
			start = total
		}
		end := start + size
		if end > total {
			end = total
		}

		writeJSON(w, http.StatusOK, chunksEnvelope{
			Success: true,
			Data:    chunks[start:end],
			Pagination: pagination{
				Page:  page,
				Size:  size,
				Total: total,
				Pages: totalPages,
			},
		})
	}
}

// filterChunksByLexicalHits reorders chunks to match hits' relevance
// ranking, keeping each chunk's full fields (lexical hits only carry
// id/url/content).
func filterChunksByLexicalHits(chunks []store.Chunk, hits []store.NearestResult) []store.Chunk {
	byID := make(map[string]store.Chunk, len(chunks))
	for _, c := range chunks {
		byID[c.ID] = c
	}
	out := make([]store.Chunk, 0, len(hits))
	for _, h := range hits {
		if c, ok := byID[h.ChunkID]; ok {
			out = append(out, c)
		}
	}
	return out
}

func filterChunks(chunks []store.Chunk, q string) []store.Chunk {
	q = strings.ToLower(q)
	out := chunks[:0:0]
	for _, c := range chunks {
		if strings.Contains(strings.ToLower(c.Content), q) {
			out = append(out, c)
		}
	}
	return out
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func handleStats(st QueryStore, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := st.Stats(r.Context())
		if err != nil {
			writeJSONError(w, logger, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, envelope{Success: true, Data: stats})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, logger *slog.Logger, status int, err error) {
	logger.Error("dashboard request failed", "error", err)
	writeJSON(w, status, envelope{Success: false, Error: err.Error()})
}
