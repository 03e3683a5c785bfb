// Package extractor converts HTML into pollution-free markdown,
// preserving code indentation byte-for-byte. It runs the structural
// conversion (Stage 1) through html-to-markdown and goquery, then
// layers the four pure, line-oriented filter stages (2-5) on top. Only
// whole-line drops and the Stage 5 title-link rewrite are permitted
// transformations; no stage may strip leading/trailing whitespace from
// a retained line.
package extractor

import (
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
)

// Config is the pure data table driving extraction. Adding or removing
// a pollution pattern is a config change, not a code change.
type Config struct {
	// ContentSelector scopes Stage 1 to the documentation content
	// root, e.g. "main.docs-content".
	ContentSelector string
	// PollutionPatterns are substrings identifying navigation chrome;
	// any line containing one is dropped in Stage 2.
	PollutionPatterns []string
	// CaseInsensitive opts Stage 2 matching into case-insensitive
	// comparison. Matching is case-sensitive by default.
	CaseInsensitive bool
}

// DefaultPollutionPatterns is the reference pattern table.
var DefaultPollutionPatterns = []string{
	"Skip Navigation",
	"Skip to main content",
	"Global Nav",
	"Search Developer",
	"To navigate the symbols",
	"Platform Selector",
	"Language Selector",
	"symbols inside",
}

// Result carries the extracted markdown plus the observable
// retained/original character ratio.
type Result struct {
	Markdown    string
	RetainRatio float64
}

var excludedTags = []string{"header", "footer", "nav", "aside"}

// Extract runs all five stages against raw HTML and returns clean
// markdown. It is deterministic given the same HTML and Config.
func Extract(html string, cfg Config) (Result, error) {
	original := len([]rune(html))

	structural, err := stage1Structural(html, cfg)
	if err != nil {
		return Result{}, err
	}

	out := FilterMarkdown(structural, cfg)
	ratio := 0.0
	if original > 0 {
		ratio = float64(len([]rune(out))) / float64(original)
	}

	return Result{Markdown: out, RetainRatio: ratio}, nil
}

// FilterMarkdown runs the pollution-filter stages (2-5) over already
// structural markdown. It is exposed independently of Extract so the
// filter stages can be proven fixed points on their own output
// without round-tripping through the HTML parser.
func FilterMarkdown(markdown string, cfg Config) string {
	lines := strings.Split(markdown, "\n")
	lines = stage2PollutionFilter(lines, cfg)
	lines = stage3StripImages(lines)
	lines = stage4TruncateSeeAlso(lines)
	lines = stage5TitleLinkCleanup(lines)
	return strings.Join(lines, "\n")
}

// stage1Structural selects the documentation content root via a
// CSS selector, excludes navigational tags and social-link anchors,
// and converts the remainder to markdown.
func stage1Structural(html string, cfg Config) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}

	root := doc.Selection
	if cfg.ContentSelector != "" {
		if sel := doc.Find(cfg.ContentSelector); sel.Length() > 0 {
			root = sel
		}
	}

	for _, tag := range excludedTags {
		root.Find(tag).Remove()
	}
	root.Find("a.social-link, a[rel~='social']").Remove()

	scopedHTML, err := root.Html()
	if err != nil {
		return "", err
	}

	converter := md.NewConverter("", true, nil)
	return converter.ConvertString(scopedHTML)
}

// stage2PollutionFilter drops any line containing a configured
// substring pattern. Matching is substring containment, case-sensitive
// unless cfg.CaseInsensitive is set.
func stage2PollutionFilter(lines []string, cfg Config) []string {
	patterns := cfg.PollutionPatterns
	if patterns == nil {
		patterns = DefaultPollutionPatterns
	}

	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if containsAnyPattern(line, patterns, cfg.CaseInsensitive) {
			continue
		}
		out = append(out, line)
	}
	return out
}

func containsAnyPattern(line string, patterns []string, caseInsensitive bool) bool {
	haystack := line
	if caseInsensitive {
		haystack = strings.ToLower(haystack)
	}
	for _, p := range patterns {
		needle := p
		if caseInsensitive {
			needle = strings.ToLower(needle)
		}
		if strings.Contains(haystack, needle) {
			return true
		}
	}
	return false
}

var imageLineRe = regexp.MustCompile(`^\s*!\[[^\]]*\]\([^)]*\)\s*$`)

// stage3StripImages drops any line that is exactly a markdown image
// reference.
func stage3StripImages(lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if imageLineRe.MatchString(line) {
			continue
		}
		out = append(out, line)
	}
	return out
}

// stage4TruncateSeeAlso case-insensitively locates the first line
// containing "see also" and discards it and everything after.
func stage4TruncateSeeAlso(lines []string) []string {
	for i, line := range lines {
		if strings.Contains(strings.ToLower(line), "see also") {
			return lines[:i]
		}
	}
	return lines
}

var titleLinkRe = regexp.MustCompile(`^(\s*)(#{1,6})\s*\[([^\]]*)\]\([^)]*\)\s*$`)

// stage5TitleLinkCleanup rewrites "<ws>(#{1,6}) [TITLE](URL)" lines to
// "<ws><hashes> TITLE", dropping the URL but keeping heading level and
// indentation.
func stage5TitleLinkCleanup(lines []string) []string {
	out := make([]string, len(lines))
	for i, line := range lines {
		if m := titleLinkRe.FindStringSubmatch(line); m != nil {
			out[i] = m[1] + m[2] + " " + m[3]
			continue
		}
		out[i] = line
	}
	return out
}
