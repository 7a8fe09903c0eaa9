// Package cache persists fetched pages content-addressed by URL, so a
// re-run of the crawler can skip re-fetching pages that haven't changed.
// Records live at cache/pages/{sha256(url)[:32]}.json, one file per URL —
// disjoint paths mean concurrent fetch workers never contend on the same
// file.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	docerrors "github.com/docrag/docrag/internal/errors"
)

// Record is the persisted form of a single cached page.
type Record struct {
	URL       string    `json:"url"`
	HTML      string    `json:"html"`
	LastMod   time.Time `json:"lastmod,omitempty"`
	CachedAt  time.Time `json:"cached_at"`
}

// Cache is a content-addressed, file-backed page cache.
type Cache struct {
	dir string
}

// New creates a Cache rooted at dir (typically "<cache_dir>/pages").
func New(dir string) *Cache {
	return &Cache{dir: dir}
}

// keyFor returns the stable file path for url: sha256(url)[:32] + ".json".
func (c *Cache) keyFor(url string) string {
	sum := sha256.Sum256([]byte(url))
	return filepath.Join(c.dir, hex.EncodeToString(sum[:])[:32]+".json")
}

// Get returns the cached record for url, or (nil, false) on a cache miss.
func (c *Cache) Get(url string) (*Record, bool) {
	data, err := os.ReadFile(c.keyFor(url))
	if err != nil {
		return nil, false
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, false
	}
	return &rec, true
}

// Put writes rec atomically (write-temp-rename) keyed by rec.URL.
func (c *Cache) Put(rec *Record) error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return docerrors.CacheError("failed to create page cache directory", err)
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return docerrors.CacheError("failed to marshal page cache record", err)
	}
	path := c.keyFor(rec.URL)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return docerrors.CacheError("failed to write page cache record", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return docerrors.CacheError("failed to rename page cache record", err)
	}
	return nil
}

// InvalidationInput carries everything Valid needs to decide whether a
// cached record may still be used.
type InvalidationInput struct {
	ForceRefresh   bool
	SitemapLastMod *time.Time // nil if the sitemap didn't supply one
	TTLHours       int        // 0 = never expire on TTL alone
	Now            time.Time
}

// Valid applies the invalidation rules in order:
//  1. force-refresh always misses.
//  2. a sitemap lastmod that differs from the cached one misses.
//  3. with no lastmod, TTL expiry (now - cached_at >= ttl_hours) misses.
//  4. otherwise the cache entry is valid.
func (rec *Record) Valid(in InvalidationInput) bool {
	if in.ForceRefresh {
		return false
	}
	if in.SitemapLastMod != nil {
		return rec.LastMod.Equal(*in.SitemapLastMod)
	}
	if in.TTLHours > 0 {
		age := in.Now.Sub(rec.CachedAt)
		if age >= time.Duration(in.TTLHours)*time.Hour {
			return false
		}
	}
	return true
}
