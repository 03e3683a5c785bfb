// Package chunker segments markdown into size-bounded, structure-
// respecting pieces with break-type metadata, per a greedy forward
// scan that always prefers the rightmost acceptable break inside the
// current window.
package chunker

import (
	"regexp"
	"strings"
)

// BreakType names the rule that produced a chunk's trailing boundary.
type BreakType string

const (
	BreakMarkdownHeader BreakType = "markdown_header"
	BreakParagraph      BreakType = "paragraph"
	BreakNewline        BreakType = "newline"
	BreakSentence       BreakType = "sentence"
	BreakForce          BreakType = "force"
)

// ChunkResult is one segment produced by Chunk, with its original
// offsets into the source document preserved.
type ChunkResult struct {
	Start      int
	End        int
	Content    string
	BreakType  BreakType
	HeaderPath []string
}

var (
	h2PlusHeaderRe = regexp.MustCompile(`(?m)^##+[^#].*$|^##+$`)
	sentenceEndRe  = regexp.MustCompile(`[.!?][ \t\n]`)
)

// Chunk segments markdown into chunks no larger than chunkSize,
// recording original offsets and the break rule used at each
// boundary. Chunks never contain leading or trailing blank lines
// beyond what the source had.
func Chunk(markdown string, chunkSize int) []ChunkResult {
	if len(markdown) == 0 {
		return nil
	}
	if chunkSize <= 0 {
		chunkSize = 1
	}

	headers := parseHeaders(markdown)

	if len(markdown) <= chunkSize {
		bt := BreakParagraph
		if !hasParagraphBreak(markdown) {
			bt = BreakForce
		}
		return []ChunkResult{{Start: 0, End: len(markdown), Content: markdown, BreakType: bt, HeaderPath: headerPathAt(headers, 0)}}
	}

	var chunks []ChunkResult
	start := 0
	for start < len(markdown) {
		windowEnd := start + chunkSize
		if windowEnd >= len(markdown) {
			chunks = append(chunks, ChunkResult{
				Start:      start,
				End:        len(markdown),
				Content:    markdown[start:],
				BreakType:  classifyFinalChunk(markdown[start:]),
				HeaderPath: headerPathAt(headers, start),
			})
			break
		}

		window := markdown[start:windowEnd]
		brk, bt := findBreak(window)

		end := start + brk
		chunks = append(chunks, ChunkResult{
			Start:      start,
			End:        end,
			Content:    markdown[start:end],
			BreakType:  bt,
			HeaderPath: headerPathAt(headers, start),
		})
		start = end
	}

	return chunks
}

// headerMark is one "##"+ header line's position and text.
type headerMark struct {
	Offset int
	Depth  int
	Text   string
}

// parseHeaders scans markdown once for every "##"+ header line, in
// document order, for headerPathAt to walk per chunk.
func parseHeaders(markdown string) []headerMark {
	matches := h2PlusHeaderRe.FindAllStringIndex(markdown, -1)
	if len(matches) == 0 {
		return nil
	}
	marks := make([]headerMark, 0, len(matches))
	for _, m := range matches {
		line := markdown[m[0]:m[1]]
		depth := 0
		for depth < len(line) && line[depth] == '#' {
			depth++
		}
		marks = append(marks, headerMark{
			Offset: m[0],
			Depth:  depth,
			Text:   strings.TrimSpace(line[depth:]),
		})
	}
	return marks
}

// headerPathAt returns the enclosing header titles at offset,
// outermost first: every header at or before offset, with shallower
// or equal-depth headers popping deeper ones off the path as the scan
// passes them, the same way a table of contents nests.
func headerPathAt(marks []headerMark, offset int) []string {
	var stack []headerMark
	for _, m := range marks {
		if m.Offset > offset {
			break
		}
		for len(stack) > 0 && stack[len(stack)-1].Depth >= m.Depth {
			stack = stack[:len(stack)-1]
		}
		stack = append(stack, m)
	}
	if len(stack) == 0 {
		return nil
	}
	path := make([]string, len(stack))
	for i, m := range stack {
		path[i] = m.Text
	}
	return path
}

// findBreak returns the break offset (relative to window start) and
// the BreakType used, prioritized:
// markdown_header > paragraph > newline > sentence > force.
func findBreak(window string) (int, BreakType) {
	if idx := rightmostHeaderBreak(window); idx > 0 {
		return idx, BreakMarkdownHeader
	}

	if idx := strings.LastIndex(window, "\n\n"); idx > 0 {
		return idx + 2, BreakParagraph
	}

	if idx := strings.LastIndex(window, "\n"); idx > 0 {
		return idx + 1, BreakNewline
	}

	if idx := rightmostSentenceEnd(window); idx > 0 {
		return idx, BreakSentence
	}

	return len(window), BreakForce
}

// rightmostHeaderBreak returns the position just before the last line
// in window beginning with "##" (depth >= 2), provided that position
// is not the window's own start.
func rightmostHeaderBreak(window string) int {
	matches := h2PlusHeaderRe.FindAllStringIndex(window, -1)
	if len(matches) == 0 {
		return 0
	}
	for i := len(matches) - 1; i >= 0; i-- {
		start := matches[i][0]
		if start > 0 {
			return start
		}
	}
	return 0
}

// rightmostSentenceEnd returns the position just after the last
// sentence-ending punctuation followed by whitespace.
func rightmostSentenceEnd(window string) int {
	matches := sentenceEndRe.FindAllStringIndex(window, -1)
	if len(matches) == 0 {
		return 0
	}
	last := matches[len(matches)-1]
	return last[0] + 1
}

func hasParagraphBreak(s string) bool {
	return strings.Contains(s, "\n\n")
}

// classifyFinalChunk labels the trailing (EOF-terminated) chunk. A
// final chunk that opens on a "##" header is still a header-governed
// section even though nothing comes after it to force a split, so it
// keeps the markdown_header label rather than falling back to force.
func classifyFinalChunk(s string) BreakType {
	if startsWithH2PlusHeader(s) {
		return BreakMarkdownHeader
	}
	if hasParagraphBreak(s) {
		return BreakParagraph
	}
	return BreakForce
}

func startsWithH2PlusHeader(s string) bool {
	loc := h2PlusHeaderRe.FindStringIndex(s)
	return loc != nil && loc[0] == 0
}
