package extractor_test

import (
	"strings"
	"testing"

	"github.com/docufind/mcp-server/internal/extractor"
)

var testCfg = extractor.Config{
	ContentSelector:   "main#content",
	PollutionPatterns: extractor.DefaultPollutionPatterns,
}

// TestExtract_PollutionFiltered checks that a keyboard-navigation
// help line inside the content root does not appear in the output
// markdown.
func TestExtract_PollutionFiltered(t *testing.T) {
	html := `<html><body><header>nav chrome</header>
<main id="content">
<p>To navigate the symbols, press Up Arrow, Down Arrow, Left Arrow or Right Arrow</p>
<p>Real documentation content.</p>
</main>
</body></html>`

	result, err := extractor.Extract(html, testCfg)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	for _, line := range strings.Split(result.Markdown, "\n") {
		if strings.Contains(line, "To navigate the symbols") {
			t.Fatalf("output contains pollution line: %q", line)
		}
	}
	if !strings.Contains(result.Markdown, "Real documentation content") {
		t.Errorf("output missing real content: %q", result.Markdown)
	}
}

// TestExtract_CodePreservation checks that a fenced code block's
// indentation survives every stage unchanged.
func TestExtract_CodePreservation(t *testing.T) {
	code := "WindowGroup { \n  Modules()\n    .environment(model)\n}"
	html := `<main id="content"><pre><code>` + code + `</code></pre></main>`

	result, err := extractor.Extract(html, testCfg)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	if !strings.Contains(result.Markdown, "  Modules()") {
		t.Errorf("expected 2-space indent preserved, got:\n%s", result.Markdown)
	}
	if !strings.Contains(result.Markdown, "    .environment(model)") {
		t.Errorf("expected 4-space indent preserved, got:\n%s", result.Markdown)
	}
}

func TestFilterMarkdown_Stage2SubstringCaseSensitive(t *testing.T) {
	md := "Keep this line\nSkip Navigation to content\nKeep this too"
	out := extractor.FilterMarkdown(md, testCfg)

	if strings.Contains(out, "Skip Navigation") {
		t.Errorf("expected pollution line dropped, got:\n%s", out)
	}
	if !strings.Contains(out, "Keep this line") || !strings.Contains(out, "Keep this too") {
		t.Errorf("expected surrounding lines kept, got:\n%s", out)
	}
}

func TestFilterMarkdown_Stage3ImageStrip(t *testing.T) {
	md := "Some text\n![alt text](https://example.com/img.png)\nMore text"
	out := extractor.FilterMarkdown(md, testCfg)

	if strings.Contains(out, "![alt text]") {
		t.Errorf("expected image line stripped, got:\n%s", out)
	}
	if !strings.Contains(out, "Some text") || !strings.Contains(out, "More text") {
		t.Errorf("expected surrounding lines kept, got:\n%s", out)
	}
}

// TestFilterMarkdown_Stage4SeeAlsoTruncation checks that content
// after a case-insensitive "see also" line is discarded.
func TestFilterMarkdown_Stage4SeeAlsoTruncation(t *testing.T) {
	md := "Intro paragraph.\n\n## See Also\n\n- Related Link One\n- Related Link Two"
	out := extractor.FilterMarkdown(md, testCfg)

	if strings.Contains(out, "Related Link") {
		t.Errorf("expected content after 'see also' truncated, got:\n%s", out)
	}
	if !strings.Contains(out, "Intro paragraph.") {
		t.Errorf("expected intro paragraph kept, got:\n%s", out)
	}
}

func TestFilterMarkdown_Stage5TitleLinkCleanup(t *testing.T) {
	md := "  ### [Rate Limiting](https://example.com/rate-limiting)"
	out := extractor.FilterMarkdown(md, testCfg)

	want := "  ### Rate Limiting"
	if out != want {
		t.Errorf("FilterMarkdown() = %q, want %q", out, want)
	}
}

// TestFilterMarkdown_Idempotent checks that the filter stages are
// fixed points on their own output.
func TestFilterMarkdown_Idempotent(t *testing.T) {
	md := "Intro\n\nSkip Navigation chrome\n\n![img](x.png)\n\n## See Also\n\nstuff after\n\n### [Title](url)"

	once := extractor.FilterMarkdown(md, testCfg)
	twice := extractor.FilterMarkdown(once, testCfg)

	if once != twice {
		t.Errorf("FilterMarkdown is not idempotent:\nonce:  %q\ntwice: %q", once, twice)
	}
}

func TestFilterMarkdown_NoWhitespaceStrippedFromRetainedLines(t *testing.T) {
	md := "   indented line with trailing spaces   \nKeep"
	out := extractor.FilterMarkdown(md, testCfg)

	if !strings.Contains(out, "   indented line with trailing spaces   ") {
		t.Errorf("expected leading/trailing whitespace preserved, got:\n%q", out)
	}
}
