package chunker_test

import (
	"strings"
	"testing"

	"github.com/docufind/mcp-server/internal/chunker"
)

func TestChunk_EmptyInput(t *testing.T) {
	if got := chunker.Chunk("", 5000); got != nil {
		t.Errorf("Chunk(\"\", ...) = %v, want nil", got)
	}
}

func TestChunk_SmallerThanChunkSize(t *testing.T) {
	doc := "a short document\n\nwith two paragraphs"
	chunks := chunker.Chunk(doc, 5000)

	if len(chunks) != 1 {
		t.Fatalf("len(chunks) = %d, want 1", len(chunks))
	}
	if chunks[0].BreakType != chunker.BreakParagraph {
		t.Errorf("BreakType = %q, want %q", chunks[0].BreakType, chunker.BreakParagraph)
	}
	if chunks[0].Content != doc {
		t.Errorf("Content = %q, want %q", chunks[0].Content, doc)
	}
}

func TestChunk_SmallerThanChunkSizeNoParagraph(t *testing.T) {
	doc := "one line, no paragraph break"
	chunks := chunker.Chunk(doc, 5000)

	if len(chunks) != 1 || chunks[0].BreakType != chunker.BreakForce {
		t.Fatalf("got %+v, want single force-broken chunk", chunks)
	}
}

// TestChunk_HeaderBoundaries checks that a 12,000-character document
// with three "##" headers at offsets 0, 4000, and 8500 chunked at
// chunk_size=5000 yields exactly 3 chunks split at the header
// boundaries. Each section ends in a newline so every header opens
// its own line.
func TestChunk_HeaderBoundaries(t *testing.T) {
	var b strings.Builder

	writeHeaderSection := func(title string, padTo int) {
		b.WriteString(title)
		b.WriteString("\n")
		for b.Len() < padTo-1 {
			b.WriteString("x")
		}
		b.WriteString("\n")
	}

	writeHeaderSection("## Section One", 4000)
	writeHeaderSection("## Section Two", 8500)
	writeHeaderSection("## Section Three", 12000)

	doc := b.String()
	if len(doc) != 12000 {
		t.Fatalf("test setup: len(doc) = %d, want 12000", len(doc))
	}
	if !strings.HasPrefix(doc, "## Section One") {
		t.Fatalf("test setup: doc does not start with header at offset 0")
	}
	if doc[4000:4000+len("## Section Two")] != "## Section Two" {
		t.Fatalf("test setup: header not at offset 4000")
	}
	if doc[8500:8500+len("## Section Three")] != "## Section Three" {
		t.Fatalf("test setup: header not at offset 8500")
	}

	chunks := chunker.Chunk(doc, 5000)

	if len(chunks) != 3 {
		t.Fatalf("len(chunks) = %d, want 3: %+v", len(chunks), chunks)
	}

	wantOffsets := [][2]int{{0, 4000}, {4000, 8500}, {8500, 12000}}
	for i, c := range chunks {
		if c.Start != wantOffsets[i][0] || c.End != wantOffsets[i][1] {
			t.Errorf("chunk[%d] = [%d,%d), want [%d,%d)", i, c.Start, c.End, wantOffsets[i][0], wantOffsets[i][1])
		}
		if c.BreakType != chunker.BreakMarkdownHeader {
			t.Errorf("chunk[%d].BreakType = %q, want %q", i, c.BreakType, chunker.BreakMarkdownHeader)
		}
	}
}

// TestChunk_Coverage checks that concatenating all chunks' original
// [start,end] slices of the source equals the source exactly.
func TestChunk_Coverage(t *testing.T) {
	doc := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 500) +
		"\n\n## A Header\n\n" + strings.Repeat("more content here. ", 300)

	chunks := chunker.Chunk(doc, 1200)

	var reconstructed strings.Builder
	prevEnd := 0
	for i, c := range chunks {
		if c.Start != prevEnd {
			t.Fatalf("chunk[%d].Start = %d, want %d (no gaps/overlap)", i, c.Start, prevEnd)
		}
		if doc[c.Start:c.End] != c.Content {
			t.Fatalf("chunk[%d].Content does not match doc[%d:%d]", i, c.Start, c.End)
		}
		reconstructed.WriteString(c.Content)
		prevEnd = c.End
	}

	if prevEnd != len(doc) {
		t.Fatalf("final chunk end = %d, want %d", prevEnd, len(doc))
	}
	if reconstructed.String() != doc {
		t.Fatalf("reconstructed document does not match source")
	}
}

func TestChunk_ForceBreak(t *testing.T) {
	doc := strings.Repeat("x", 10000)
	chunks := chunker.Chunk(doc, 3000)

	for i, c := range chunks[:len(chunks)-1] {
		if c.BreakType != chunker.BreakForce {
			t.Errorf("chunk[%d].BreakType = %q, want %q", i, c.BreakType, chunker.BreakForce)
		}
		if c.End-c.Start > 3000 {
			t.Errorf("chunk[%d] length %d exceeds chunk_size 3000", i, c.End-c.Start)
		}
	}
}

func TestChunk_NewlineBreak(t *testing.T) {
	line := strings.Repeat("a", 100)
	doc := strings.Join([]string{line, line, line, line, line, line, line, line, line, line, line}, "\n")

	chunks := chunker.Chunk(doc, 500)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, c := range chunks[:len(chunks)-1] {
		if c.BreakType != chunker.BreakNewline {
			t.Errorf("chunk[%d].BreakType = %q, want %q", i, c.BreakType, chunker.BreakNewline)
		}
	}
}

func TestChunk_SentenceBreak(t *testing.T) {
	sentence := "This is a sentence without any newlines at all here. "
	doc := strings.Repeat(sentence, 20)

	chunks := chunker.Chunk(doc, 200)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, c := range chunks[:len(chunks)-1] {
		if c.BreakType != chunker.BreakSentence {
			t.Errorf("chunk[%d].BreakType = %q, want %q (content %q)", i, c.BreakType, chunker.BreakSentence, c.Content)
		}
	}
}
