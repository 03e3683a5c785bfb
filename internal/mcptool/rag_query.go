// Package mcptool exposes the retrieval engine as the perform_rag_query
// MCP tool: a typed input/output struct pair registered via
// mcp.AddTool.
package mcptool

import (
	"context"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/docufind/mcp-server/internal/retrieval"
)

// PerformRAGQueryInput defines input for the perform_rag_query tool.
type PerformRAGQueryInput struct {
	Query      string `json:"query" jsonschema:"Search query to run against the indexed content"`
	MatchCount int    `json:"match_count,omitempty" jsonschema:"Maximum number of results to return (optional, defaults to 5)"`
}

// RAGResult is one ranked result in a perform_rag_query response.
type RAGResult struct {
	URL        string  `json:"url"`
	Content    string  `json:"content"`
	Similarity float64 `json:"similarity"`
}

// PerformRAGQueryOutput defines output for the perform_rag_query tool.
type PerformRAGQueryOutput struct {
	Success          bool        `json:"success"`
	Query            string      `json:"query"`
	SearchMode       string      `json:"search_mode"`
	RerankingApplied bool        `json:"reranking_applied"`
	Results          []RAGResult `json:"results"`
	Count            int         `json:"count"`
	Error            string      `json:"error,omitempty"`
}

const defaultMatchCount = 5

// Handler closes over the retrieval engine so PerformRAGQuery matches
// the (ctx, req, input) -> (result, output, error) shape mcp.AddTool
// requires.
type Handler struct {
	engine *retrieval.Engine
	logger *slog.Logger
}

func NewHandler(engine *retrieval.Engine, logger *slog.Logger) *Handler {
	return &Handler{engine: engine, logger: logger}
}

// PerformRAGQuery runs the retrieval pipeline. Failures are returned
// as a structured {success: false, error} payload rather than
// propagated as a tool error, since a crash would sever the MCP
// connection for every other tool on the same server.
func (h *Handler) PerformRAGQuery(ctx context.Context, req *mcp.CallToolRequest, input PerformRAGQueryInput) (*mcp.CallToolResult, PerformRAGQueryOutput, error) {
	matchCount := input.MatchCount
	if matchCount <= 0 {
		matchCount = defaultMatchCount
	}

	resp, err := h.engine.Query(ctx, input.Query, matchCount)
	if err != nil {
		h.logger.Error("perform_rag_query failed", "query", input.Query, "error", err)
		return nil, PerformRAGQueryOutput{
			Success: false,
			Query:   input.Query,
			Error:   err.Error(),
		}, nil
	}

	results := make([]RAGResult, len(resp.Results))
	for i, r := range resp.Results {
		results[i] = RAGResult{URL: r.URL, Content: r.Content, Similarity: r.Similarity}
	}

	return nil, PerformRAGQueryOutput{
		Success:          true,
		Query:            input.Query,
		SearchMode:       resp.SearchMode,
		RerankingApplied: resp.RerankingApplied,
		Results:          results,
		Count:            resp.Count,
	}, nil
}

// Register registers perform_rag_query on server.
func Register(server *mcp.Server, h *Handler) {
	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "perform_rag_query",
			Description: "Search indexed documentation content using vector or hybrid retrieval, with optional reranking",
		},
		h.PerformRAGQuery,
	)
}
