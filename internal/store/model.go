package store

import "time"

// BreakType mirrors chunker.BreakType as a storage-layer string so
// this package does not import chunker just for one type.
type BreakType string

const (
	BreakMarkdownHeader BreakType = "markdown_header"
	BreakParagraph      BreakType = "paragraph"
	BreakNewline        BreakType = "newline"
	BreakSentence       BreakType = "sentence"
	BreakForce          BreakType = "force"
)

// Page is a retrieved URL and its extracted textual content. A Page
// row exists from the moment its URL is first inserted into the
// frontier and is never deleted while reachable.
type Page struct {
	URL           string
	Content       string
	CrawlCount    int
	LastCrawledAt *time.Time
	ProcessedAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Chunk is a segment of a Page with an embedding. Ordinals are
// contiguous 0..N-1 within a page; char offsets are non-overlapping
// and monotonically increasing.
type Chunk struct {
	ID        string
	PageURL   string
	Ordinal   int
	Content   string
	BreakType BreakType
	CharStart int
	CharEnd   int
	Embedding []float32
	CreatedAt time.Time
}

// NearestResult is one row of a nearest-neighbor query response.
type NearestResult struct {
	ChunkID  string
	URL      string
	Content  string
	Distance float64
}

// HybridResult is one row of a hybrid query response, carrying the
// component scores that produced its fused score.
type HybridResult struct {
	ChunkID     string
	URL         string
	Content     string
	VectorScore float64
	LexScore    float64
	FusedScore  float64
}

// Stats summarizes store contents for the dashboard's /api/stats.
type Stats struct {
	PagesCount           int     `json:"pages_count"`
	ChunksCount          int     `json:"chunks_count"`
	PagesWithContent     int     `json:"pages_with_content"`
	ContentPercentage    float64 `json:"content_percentage"`
	PagesProcessed       int     `json:"pages_processed"`
	ProcessingPercentage float64 `json:"processing_percentage"`
}
