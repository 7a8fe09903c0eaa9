package crawler

import (
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/temoto/robotstxt"
)

// robotsPolicy wraps a parsed robots.txt. A nil group (unparsed or
// unreachable robots.txt) means every fetch is allowed.
type robotsPolicy struct {
	data      *robotstxt.RobotsData
	userAgent string
}

// fetchRobotsPolicy fetches and parses robots.txt for base. Any failure to
// fetch or parse it is logged and treated as "no restriction" rather than
// blocking the crawl.
func fetchRobotsPolicy(client *http.Client, base *url.URL, userAgent string) *robotsPolicy {
	robotsURL := &url.URL{Scheme: base.Scheme, Host: base.Host, Path: "/robots.txt"}

	resp, err := client.Get(robotsURL.String())
	if err != nil {
		slog.Warn("robots.txt unreachable, crawling without restriction", "url", robotsURL.String(), "error", err)
		return &robotsPolicy{userAgent: userAgent}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		slog.Warn("robots.txt not found, crawling without restriction", "url", robotsURL.String(), "status", resp.StatusCode)
		return &robotsPolicy{userAgent: userAgent}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		slog.Warn("robots.txt read failed, crawling without restriction", "error", err)
		return &robotsPolicy{userAgent: userAgent}
	}

	data, err := robotstxt.FromBytes(body)
	if err != nil {
		slog.Warn("robots.txt parse failed, crawling without restriction", "error", err)
		return &robotsPolicy{userAgent: userAgent}
	}

	return &robotsPolicy{data: data, userAgent: userAgent}
}

// sitemapHints returns Sitemap: lines declared in robots.txt, if any.
func (p *robotsPolicy) sitemapHints() []string {
	if p.data == nil {
		return nil
	}
	return p.data.Sitemaps
}

// canFetch reports whether userAgent may fetch rawURL. Unparsed robots.txt
// always allows.
func (p *robotsPolicy) canFetch(rawURL string) bool {
	if p.data == nil {
		return true
	}
	group := p.data.FindGroup(p.userAgent)
	if group == nil {
		return true
	}
	return group.Test(rawURL)
}
