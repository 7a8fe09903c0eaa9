package crawler

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	docerrors "github.com/docrag/docrag/internal/errors"
)

// UserAgent identifies outbound requests to remote servers.
const UserAgent = "docrag/1.0 (+https://github.com/docrag/docrag)"

// Options configures discovery and fetch behavior. It mirrors the crawl
// section of the project configuration.
type Options struct {
	BaseURL         string
	ManualURLs      []string
	ManualURLsOnly  bool
	MaxCrawlDepth   int
	MaxPages        int
	MaxWorkers      int
	RateLimitDelay  time.Duration
	RequestTimeout  time.Duration
	MaxURLRetries   int
	IncludePatterns []string
	ExcludePatterns []string
}

// Crawler discovers URLs and fetches pages from a single documentation site.
type Crawler struct {
	opts    Options
	base    *url.URL
	client  *http.Client
	robots  *robotsPolicy
	pattern discoveryPattern
}

// New constructs a Crawler for opts.BaseURL. It fetches robots.txt
// immediately so discovery and fetch can both consult it.
func New(opts Options) (*Crawler, error) {
	var base *url.URL
	if opts.BaseURL != "" {
		parsed, err := url.Parse(opts.BaseURL)
		if err != nil {
			return nil, docerrors.New(docerrors.ErrCodeInvalidInput, fmt.Sprintf("invalid base_url %q", opts.BaseURL), err)
		}
		base = parsed
	}

	client := &http.Client{
		Timeout: opts.RequestTimeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{Timeout: opts.RequestTimeout}).DialContext,
		},
	}

	c := &Crawler{
		opts:   opts,
		base:   base,
		client: client,
		pattern: discoveryPattern{
			include: opts.IncludePatterns,
			exclude: opts.ExcludePatterns,
		},
	}
	if base != nil {
		c.robots = fetchRobotsPolicy(client, base, UserAgent)
	}
	return c, nil
}

// Discover returns every URL the crawler finds, in precedence order: manual
// URLs first (always included, never filtered), then sitemap and feed
// results (skipped entirely if manual_urls_only), then recursive
// link-following as a last resort when no sitemap URLs were found.
func (c *Crawler) Discover(ctx context.Context) ([]URLRecord, error) {
	var records []URLRecord
	for _, u := range c.opts.ManualURLs {
		records = append(records, URLRecord{URL: u})
	}

	if c.opts.ManualURLsOnly {
		if len(c.opts.ManualURLs) == 0 {
			return nil, nil
		}
		return dedupeRecords(records), nil
	}

	if c.base == nil {
		return dedupeRecords(records), nil
	}

	seeds := c.robots.sitemapHints()
	if len(seeds) == 0 {
		for _, probe := range defaultSitemapProbes {
			seeds = append(seeds, (&url.URL{Scheme: c.base.Scheme, Host: c.base.Host, Path: probe}).String())
		}
	}

	sitemapRecords := discoverSitemapURLs(c.client, seeds)
	sitemapRecords = append(sitemapRecords, discoverFeedURLs(ctx, c.client, c.base)...)

	var filtered []URLRecord
	for _, r := range sitemapRecords {
		if matchesPatterns(r.URL, c.pattern) {
			filtered = append(filtered, r)
		}
	}
	records = append(records, filtered...)

	if len(filtered) == 0 {
		recursive, err := c.discoverRecursive()
		if err != nil {
			return nil, err
		}
		records = append(records, recursive...)
	}

	out := dedupeRecords(records)
	if c.opts.MaxPages > 0 && len(out) > c.opts.MaxPages {
		out = out[:c.opts.MaxPages]
	}
	return out, nil
}

// discoverRecursive performs a BFS crawl from the base URL using colly,
// scoped to the base's host and path prefix.
func (c *Crawler) discoverRecursive() ([]URLRecord, error) {
	collector := colly.NewCollector(
		colly.UserAgent(UserAgent),
		colly.MaxDepth(c.opts.MaxCrawlDepth),
		colly.Async(true),
	)
	collector.Limit(&colly.LimitRule{
		DomainGlob:  "*" + c.base.Hostname() + "*",
		Parallelism: maxInt(c.opts.MaxWorkers, 1),
		Delay:       c.opts.RateLimitDelay,
	})
	if c.opts.RequestTimeout > 0 {
		collector.SetRequestTimeout(c.opts.RequestTimeout)
	}

	var found []URLRecord
	seen := make(map[string]bool)

	collector.OnHTML("body", func(e *colly.HTMLElement) {
		// Walk the body directly with goquery rather than relying on a
		// second colly selector pass, so link extraction shares the same
		// DOM traversal style as the content extractor.
		e.DOM.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
			href, ok := sel.Attr("href")
			if !ok || href == "" || isSkippableLink(href) {
				return
			}
			next, err := e.Request.URL.Parse(href)
			if err != nil {
				return
			}
			if !underBasePrefix(c.base, next) {
				return
			}
			if c.robots != nil && !c.robots.canFetch(next.String()) {
				return
			}
			if !matchesPatterns(next.String(), c.pattern) {
				return
			}
			norm, err := NormalizeURL(next.String())
			if err != nil || seen[norm] {
				return
			}
			seen[norm] = true
			found = append(found, URLRecord{URL: norm})
			_ = e.Request.Visit(next.String())
		})
	})

	if err := collector.Visit(c.base.String()); err != nil {
		return nil, docerrors.New(docerrors.ErrCodeFetchConnection, "recursive crawl seed failed", err)
	}
	collector.Wait()

	return found, nil
}

// Fetch retrieves a single page, enforcing robots policy, the per-request
// rate-limit delay, the two-part connect/read timeout, and the
// external-redirect drop rule.
func (c *Crawler) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	if c.robots != nil && !c.robots.canFetch(rawURL) {
		return nil, fetchErr(rawURL, ReasonRobotsDenied, nil)
	}

	if c.opts.RateLimitDelay > 0 {
		select {
		case <-time.After(c.opts.RateLimitDelay):
		case <-ctx.Done():
			return nil, fetchErr(rawURL, ReasonTimeout, ctx.Err())
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fetchErr(rawURL, ReasonConnection, err)
	}
	req.Header.Set("User-Agent", UserAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fetchErr(rawURL, ReasonTimeout, err)
		}
		return nil, fetchErr(rawURL, ReasonConnection, err)
	}
	defer resp.Body.Close()

	if c.base != nil {
		if final := resp.Request.URL; !underBasePrefix(c.base, final) {
			return nil, fetchErr(rawURL, ReasonExternalRedirect, nil)
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fetchErr(rawURL, ReasonHTTPStatus, fmt.Errorf("status %d", resp.StatusCode))
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(contentType, "html") && contentType != "" {
		return nil, fetchErr(rawURL, ReasonNonHTML, nil)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fetchErr(rawURL, ReasonConnection, err)
	}

	return &Page{
		URL:       rawURL,
		HTML:      string(body),
		FetchedAt: time.Now(),
	}, nil
}

func fetchErr(rawURL string, reason FetchReason, cause error) error {
	code := map[FetchReason]string{
		ReasonTimeout:          docerrors.ErrCodeFetchTimeout,
		ReasonConnection:       docerrors.ErrCodeFetchConnection,
		ReasonHTTPStatus:       docerrors.ErrCodeFetchHTTPStatus,
		ReasonNonHTML:          docerrors.ErrCodeFetchNonHTML,
		ReasonRobotsDenied:     docerrors.ErrCodeFetchRobotsDenied,
		ReasonExternalRedirect: docerrors.ErrCodeFetchExternalRedir,
	}[reason]
	return docerrors.FetchError(code, fmt.Sprintf("fetch %s failed: %s", rawURL, reason), cause).
		WithDetail("url", rawURL).WithDetail("reason", string(reason))
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
