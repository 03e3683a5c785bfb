// Command indexer performs a one-shot reindex of a local markdown
// doc tree: chunk each file, embed every chunk, and rebuild the
// lexical index directly from the resulting chunk set. It is the
// offline counterpart to cmd/crawler, useful for seeding or repairing
// the lexical index without running the live crawl pipeline.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"

	"github.com/docufind/mcp-server/internal/chunker"
	"github.com/docufind/mcp-server/internal/embedding"
	"github.com/docufind/mcp-server/internal/obs"
	"github.com/docufind/mcp-server/internal/store"
)

func main() {
	if len(os.Args) != 3 {
		fmt.Fprintf(os.Stderr, "Usage: %s <docs-dir> <index-dir>\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nExample:\n")
		fmt.Fprintf(os.Stderr, "  %s docs/ search/index\n", os.Args[0])
		os.Exit(1)
	}

	docsDir := os.Args[1]
	indexDir := os.Args[2]

	chunkSize := 5000
	if v := os.Getenv("CHUNK_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			chunkSize = n
		}
	}

	log.Printf("docufind indexer")
	log.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")

	log.Printf("Scanning documentation tree: %s", docsDir)
	files, err := scanMarkdownFiles(docsDir)
	if err != nil {
		log.Fatalf("Failed to scan documentation tree: %v", err)
	}
	log.Printf("✓ Found %d markdown file(s)", len(files))

	embedder, err := embedding.New(embedding.Config{
		Mode:      "local",
		Model:     "local-stub",
		Dim:       envInt("EMBEDDING_DIM", 1024),
		MaxLength: envInt("EMBEDDING_MAX_LENGTH", 8192),
	})
	if err != nil {
		log.Fatalf("Failed to construct embedder: %v", err)
	}

	var allChunks []store.Chunk
	totalChars := 0

	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			log.Printf("Warning: failed to read %s: %v", path, err)
			continue
		}
		content := string(data)
		totalChars += len(content)

		rawChunks := chunker.Chunk(content, chunkSize)
		if len(rawChunks) == 0 {
			continue
		}

		texts := make([]string, len(rawChunks))
		for i, c := range rawChunks {
			texts[i] = c.Content
		}
		vectors, err := embedder.Embed(context.Background(), texts, false)
		if err != nil {
			log.Printf("Warning: failed to embed %s: %v", path, err)
			continue
		}

		for i, c := range rawChunks {
			allChunks = append(allChunks, store.Chunk{
				ID:        uuid.NewString(),
				PageURL:   path,
				Ordinal:   i,
				Content:   c.Content,
				BreakType: store.BreakType(c.BreakType),
				CharStart: c.Start,
				CharEnd:   c.End,
				Embedding: vectors[i],
			})
		}
	}

	log.Printf("✓ Chunked %d file(s) into %d chunks (%d total chars)", len(files), len(allChunks), totalChars)

	if err := os.RemoveAll(indexDir); err != nil && !os.IsNotExist(err) {
		log.Fatalf("Failed to remove old index: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(indexDir), 0755); err != nil {
		log.Fatalf("Failed to create index directory: %v", err)
	}

	logger := obs.NewLogger(0)
	lexical, err := store.OpenLexicalIndex(indexDir, logger)
	if err != nil {
		log.Fatalf("Failed to open lexical index: %v", err)
	}
	defer lexical.Close()

	log.Printf("Rebuilding lexical index: %s", indexDir)
	if err := lexical.Rebuild(allChunks); err != nil {
		log.Fatalf("Failed to rebuild index: %v", err)
	}

	log.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	log.Printf("✓ Indexing complete!")
	log.Printf("")
	log.Printf("Index details:")
	log.Printf("  Location:     %s", indexDir)
	log.Printf("  Files:        %d", len(files))
	log.Printf("  Total chunks: %d", len(allChunks))
}

func scanMarkdownFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch filepath.Ext(path) {
		case ".md", ".markdown", ".txt":
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
