package crawler

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/mmcdole/gofeed"
)

// feedProbes are common changelog/blog feed paths on documentation sites.
// Feed discovery is supplementary to sitemap discovery: many doc sites
// publish a changelog or blog feed whose entries aren't always linked from
// the site's own navigation, so they'd otherwise be missed by recursive
// link-following.
var feedProbes = []string{"/feed.xml", "/rss.xml", "/atom.xml", "/blog/feed.xml", "/changelog/feed.xml"}

// discoverFeedURLs probes known feed paths under base and returns every
// item link found, using gofeed's RSS/Atom/JSON-feed parser.
func discoverFeedURLs(ctx context.Context, client *http.Client, base *url.URL) []URLRecord {
	parser := gofeed.NewParser()
	parser.Client = client

	var out []URLRecord
	for _, probe := range feedProbes {
		feedURL := &url.URL{Scheme: base.Scheme, Host: base.Host, Path: probe}

		feed, err := parser.ParseURLWithContext(feedURL.String(), ctx)
		if err != nil {
			continue
		}
		for _, item := range feed.Items {
			if item.Link == "" {
				continue
			}
			rec := URLRecord{URL: item.Link}
			if item.PublishedParsed != nil {
				rec.LastMod = *item.PublishedParsed
			}
			out = append(out, rec)
		}
		slog.Debug("feed discovery found entries", "feed", feedURL.String(), "count", len(feed.Items))
	}
	return out
}
