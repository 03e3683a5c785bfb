// Package fetcher defines the fetch contract: given a URL, return the
// rendered page plus discovered same-origin links, or a classified
// failure. The real implementation requires full browser automation
// (stealth headers are necessary but not sufficient against
// JavaScript-gated content); that automation is explicitly out of
// scope per the project's non-goals, so this package specifies the
// interface and ships a plain-HTTP stub that exercises the contract
// end-to-end — headers, timeout, discovery, failure classification —
// without a real rendering engine behind it.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/time/rate"

	"github.com/docufind/mcp-server/internal/ragerrors"
)

var errBlocked = errors.New("fetcher: challenge page detected")

func errStatus(status int) error {
	return fmt.Errorf("fetcher: unexpected status %d", status)
}

// Result is a successful fetch.
type Result struct {
	Status         int
	HTML           string
	DiscoveredURLs []string
	FetchDuration  time.Duration
}

// Fetcher retrieves a single page, canonicalizes discovered links
// under the same origin, and classifies any failure.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (Result, error)
}

const perPageTimeout = 15 * time.Second

// blockedMarkers are heuristic anti-bot challenge-page indicators; a
// body shorter than blockedBodyThreshold containing one of these is
// classified as blocked rather than permanent.
var blockedMarkers = []string{
	"checking your browser",
	"captcha",
	"cloudflare",
	"access denied",
	"are you a robot",
}

const blockedBodyThreshold = 500

// headlessFetcher is a contract-only stand-in for real stealth-browser
// automation. TODO: replace the net/http round trip with a headless
// browser driver (e.g. chromedp) that executes client-side rendering
// and waits ~3s after DOMContentLoaded.
type headlessFetcher struct {
	client       *http.Client
	limiters     map[string]*rate.Limiter
	limiterRate  rate.Limit
	documentPath string
}

// New builds a headlessFetcher. politenessInterval bounds the minimum
// gap between requests to the same host; documentPath scopes link
// discovery to same-origin URLs under that path prefix.
func New(politenessInterval time.Duration, documentPath string) Fetcher {
	r := rate.Every(politenessInterval)
	return &headlessFetcher{
		client:       &http.Client{Timeout: perPageTimeout},
		limiters:     make(map[string]*rate.Limiter),
		limiterRate:  r,
		documentPath: documentPath,
	}
}

func (f *headlessFetcher) Fetch(ctx context.Context, rawURL string) (Result, error) {
	start := time.Now()

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return Result{}, ragerrors.New(ragerrors.KindPermanent, "fetcher.Fetch", err)
	}

	if err := f.waitForHost(ctx, parsed.Host); err != nil {
		return Result{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Result{}, ragerrors.New(ragerrors.KindPermanent, "fetcher.Fetch", err)
	}
	setStealthHeaders(req)

	resp, err := f.client.Do(req)
	duration := time.Since(start)
	if err != nil {
		if ctx.Err() != nil || isTimeout(err) {
			return Result{}, ragerrors.New(ragerrors.KindTransient, "fetcher.Fetch", err)
		}
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) {
			return Result{}, ragerrors.New(ragerrors.KindPermanent, "fetcher.Fetch", err)
		}
		return Result{}, ragerrors.New(ragerrors.KindTransient, "fetcher.Fetch", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return Result{}, ragerrors.New(ragerrors.KindTransient, "fetcher.Fetch", err)
	}

	if err := classifyStatus(resp.StatusCode, body); err != nil {
		return Result{}, err
	}

	discovered := discoverLinks(string(body), parsed, f.documentPath)

	return Result{
		Status:         resp.StatusCode,
		HTML:           string(body),
		DiscoveredURLs: discovered,
		FetchDuration:  duration,
	}, nil
}

func (f *headlessFetcher) waitForHost(ctx context.Context, host string) error {
	limiter, ok := f.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(f.limiterRate, 1)
		f.limiters[host] = limiter
	}
	if err := limiter.Wait(ctx); err != nil {
		return ragerrors.New(ragerrors.KindTransient, "fetcher.waitForHost", err)
	}
	return nil
}

// setStealthHeaders assembles an Accept family, Client-Hints,
// Sec-Fetch-* for a top-level navigation, and
// Upgrade-Insecure-Requests, presenting as a desktop browser.
func setStealthHeaders(req *http.Request) {
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")
	req.Header.Set("Sec-Ch-Ua", `"Chromium";v="124", "Not-A.Brand";v="99"`)
	req.Header.Set("Sec-Ch-Ua-Mobile", "?0")
	req.Header.Set("Sec-Ch-Ua-Platform", `"macOS"`)
	req.Header.Set("Sec-Fetch-Dest", "document")
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	req.Header.Set("Sec-Fetch-Site", "none")
	req.Header.Set("Sec-Fetch-User", "?1")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
	req.Header.Set("User-Agent",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 "+
			"(KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36")
}

// classifyStatus maps an HTTP status and body into a failure class,
// or nil for success.
func classifyStatus(status int, body []byte) error {
	if status >= 200 && status < 300 {
		if len(body) < blockedBodyThreshold && looksBlocked(body) {
			return ragerrors.New(ragerrors.KindBlocked, "fetcher.classifyStatus",
				errBlocked)
		}
		return nil
	}
	if status == 429 || status >= 500 {
		return ragerrors.New(ragerrors.KindTransient, "fetcher.classifyStatus", errStatus(status))
	}
	return ragerrors.New(ragerrors.KindPermanent, "fetcher.classifyStatus", errStatus(status))
}

func looksBlocked(body []byte) bool {
	lower := strings.ToLower(string(body))
	for _, marker := range blockedMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func isTimeout(err error) bool {
	type timeouter interface{ Timeout() bool }
	var t timeouter
	if te, ok := err.(timeouter); ok {
		t = te
		return t.Timeout()
	}
	return false
}

// discoverLinks extracts same-origin anchors under documentPath from
// raw HTML, canonicalizing (lower-cased scheme/host, fragment
// stripped) and deduplicating.
func discoverLinks(rawHTML string, base *url.URL, documentPath string) []string {
	tokenizer := html.NewTokenizer(strings.NewReader(rawHTML))
	seen := make(map[string]struct{})
	var out []string

	for {
		tt := tokenizer.Next()
		if tt == html.ErrorToken {
			break
		}
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			continue
		}
		token := tokenizer.Token()
		if token.Data != "a" {
			continue
		}
		for _, attr := range token.Attr {
			if attr.Key != "href" {
				continue
			}
			canon, ok := canonicalize(attr.Val, base, documentPath)
			if !ok {
				continue
			}
			if _, dup := seen[canon]; dup {
				continue
			}
			seen[canon] = struct{}{}
			out = append(out, canon)
		}
	}
	return out
}

func canonicalize(href string, base *url.URL, documentPath string) (string, bool) {
	u, err := base.Parse(href)
	if err != nil {
		return "", false
	}
	if !strings.EqualFold(u.Host, base.Host) {
		return "", false
	}
	if documentPath != "" && !strings.HasPrefix(u.Path, documentPath) {
		return "", false
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	return u.String(), true
}
