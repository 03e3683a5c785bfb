package store

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/blevesearch/bleve/v2"

	"github.com/docufind/mcp-server/internal/ragerrors"
)

// chunkDoc is the bleve document shape indexed for a Chunk: just
// enough to recover the chunk id and page url from a hit plus the
// searchable text itself.
type chunkDoc struct {
	ChunkID string `json:"chunk_id"`
	PageURL string `json:"page_url"`
	Content string `json:"content"`
}

// LexicalIndex is a process-local full-text index over chunk content,
// used by the dashboard's search= query parameter. Store.Keyword and
// Store.Hybrid do not consult it; they query Postgres only. It mirrors
// the Postgres tsvector index rather than replacing it; Postgres
// remains the source of truth.
//
// Rebuilds swap the underlying bleve.Index behind an atomic.Pointer,
// a lock-free hot-swap so in-flight searches never observe a
// half-built index.
type LexicalIndex struct {
	dir    string
	lock   *indexLock
	held   atomic.Pointer[bleve.Index]
	logger *slog.Logger
}

// OpenLexicalIndex opens (or creates) a bleve index rooted at dir.
func OpenLexicalIndex(dir string, logger *slog.Logger) (*LexicalIndex, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, ragerrors.New(ragerrors.KindPermanent, "store.OpenLexicalIndex", err)
	}

	li := &LexicalIndex{dir: dir, lock: newIndexLock(dir, logger), logger: logger}

	idx, err := bleve.Open(filepath.Join(dir, "bleve"))
	if err != nil {
		mapping := bleve.NewIndexMapping()
		idx, err = bleve.New(filepath.Join(dir, "bleve"), mapping)
		if err != nil {
			return nil, ragerrors.New(ragerrors.KindPermanent, "store.OpenLexicalIndex", err)
		}
	}
	li.held.Store(&idx)
	return li, nil
}

// Rebuild replaces the entire lexical index with chunks in one pass,
// guarded against concurrent rebuilds by the PID-file lock so two
// cmd/indexer invocations never race on the same on-disk index.
func (li *LexicalIndex) Rebuild(chunks []Chunk) error {
	if err := li.lock.acquire(); err != nil {
		return ragerrors.New(ragerrors.KindTransient, "store.LexicalIndex.Rebuild", err)
	}
	defer li.lock.release()

	tmpDir, err := os.MkdirTemp(li.dir, "bleve-rebuild-*")
	if err != nil {
		return ragerrors.New(ragerrors.KindPermanent, "store.LexicalIndex.Rebuild", err)
	}
	defer os.RemoveAll(tmpDir)

	mapping := bleve.NewIndexMapping()
	newIdx, err := bleve.New(filepath.Join(tmpDir, "bleve"), mapping)
	if err != nil {
		return ragerrors.New(ragerrors.KindPermanent, "store.LexicalIndex.Rebuild", err)
	}

	batch := newIdx.NewBatch()
	for _, c := range chunks {
		doc := chunkDoc{ChunkID: c.ID, PageURL: c.PageURL, Content: c.Content}
		if err := batch.Index(c.ID, doc); err != nil {
			newIdx.Close()
			return ragerrors.New(ragerrors.KindIntegrity, "store.LexicalIndex.Rebuild", err)
		}
	}
	if err := newIdx.Batch(batch); err != nil {
		newIdx.Close()
		return ragerrors.New(ragerrors.KindIntegrity, "store.LexicalIndex.Rebuild", err)
	}
	newIdx.Close()

	finalDir := filepath.Join(li.dir, "bleve")
	oldIdx := li.held.Load()
	if oldIdx != nil {
		(*oldIdx).Close()
	}
	if err := os.RemoveAll(finalDir); err != nil {
		return ragerrors.New(ragerrors.KindPermanent, "store.LexicalIndex.Rebuild", err)
	}
	if err := os.Rename(filepath.Join(tmpDir, "bleve"), finalDir); err != nil {
		return ragerrors.New(ragerrors.KindPermanent, "store.LexicalIndex.Rebuild", err)
	}

	reopened, err := bleve.Open(finalDir)
	if err != nil {
		return ragerrors.New(ragerrors.KindPermanent, "store.LexicalIndex.Rebuild", err)
	}
	li.held.Store(&reopened)
	return nil
}

// Search returns up to k chunk ids ranked by bleve's default scoring
// for queryText.
func (li *LexicalIndex) Search(queryText string, k int) ([]NearestResult, error) {
	idxPtr := li.held.Load()
	if idxPtr == nil {
		return nil, fmt.Errorf("store: lexical index not open")
	}
	idx := *idxPtr

	q := bleve.NewMatchQuery(queryText)
	req := bleve.NewSearchRequestOptions(q, k, 0, false)
	req.Fields = []string{"chunk_id", "page_url", "content"}

	res, err := idx.Search(req)
	if err != nil {
		return nil, ragerrors.New(ragerrors.KindTransient, "store.LexicalIndex.Search", err)
	}

	out := make([]NearestResult, 0, len(res.Hits))
	for _, hit := range res.Hits {
		out = append(out, NearestResult{
			ChunkID:  fmt.Sprint(hit.Fields["chunk_id"]),
			URL:      fmt.Sprint(hit.Fields["page_url"]),
			Content:  fmt.Sprint(hit.Fields["content"]),
			Distance: 1 - hit.Score,
		})
	}
	return out, nil
}

func (li *LexicalIndex) Close() error {
	idxPtr := li.held.Load()
	if idxPtr == nil {
		return nil
	}
	return (*idxPtr).Close()
}
