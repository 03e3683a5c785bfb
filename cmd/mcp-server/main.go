package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/docufind/mcp-server/internal/config"
	"github.com/docufind/mcp-server/internal/embedding"
	"github.com/docufind/mcp-server/internal/mcptool"
	"github.com/docufind/mcp-server/internal/obs"
	"github.com/docufind/mcp-server/internal/reranker"
	"github.com/docufind/mcp-server/internal/retrieval"
	"github.com/docufind/mcp-server/internal/store"
)

const (
	version     = "0.1.0"
	serverName  = "docufind-mcp-server"
	description = "MCP server for retrieval-augmented querying over crawled documentation"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		fmt.Printf("%s version %s\n", serverName, version)
		os.Exit(0)
	}

	log.SetOutput(os.Stderr)
	log.Printf("%s v%s starting...", serverName, version)

	if err := mcptool.ValidateContract(); err != nil {
		log.Fatalf("Tool contract self-check failed: %v", err)
	}
	log.Printf("✓ perform_rag_query contract validated")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	logger := obs.NewLogger(0)

	ctx := context.Background()
	st, err := store.Open(ctx, store.Config{
		DSN:           cfg.DatabaseDSN,
		Dim:           cfg.EmbeddingDim,
		AllowANNIndex: cfg.StoreAllowANNIndex,
		MaxConns:      cfg.DBPoolMaxConns,
	}, logger)
	if err != nil {
		log.Fatalf("Failed to connect to store: %v", err)
	}
	defer st.Close()

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
		log.Fatalf("Failed to construct embedder: %v", err)
	}

	var rr reranker.Reranker
	if cfg.UseReranking {
		rr, err = reranker.New(reranker.Config{
			Mode:           cfg.RerankerMode,
			Model:          cfg.RerankerModel,
			APIKey:         cfg.RerankerAPIKey,
			BaseURL:        cfg.RerankerAPIURL,
			UseCalibration: cfg.RerankerUseCalibration,
			Embedder:       embedder,
		})
		if err != nil {
			log.Fatalf("Failed to construct reranker: %v", err)
		}
	}

	engine := retrieval.New(embedder, st, rr, retrieval.Config{
		HybridSearch: cfg.UseHybridSearch,
		UseReranking: cfg.UseReranking,
	})

	server := createMCPServer()
	mcptool.Register(server, mcptool.NewHandler(engine, logger))
	log.Printf("✓ Server ready and waiting for connections")

	if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func createMCPServer() *mcp.Server {
	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    serverName,
			Version: version,
		},
		nil,
	)
	log.Printf("Server initialized: %s v%s (%s)", serverName, version, description)
	return server
}
