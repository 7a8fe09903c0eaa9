package contextualizer

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	docerrors "github.com/docrag/docrag/internal/errors"
)

const contextCacheFileName = "context_cache.json"

const frontCacheSize = 4096

// cache makes context generation idempotent: the same chunk content always
// produces the same prefix without calling the generator twice. A bounded
// LRU fronts a full map that mirrors what's on disk, so lookups during a
// single run never touch the filesystem, while the persisted map is what
// survives across runs and crash-recovers a partially contextualized page.
type cache struct {
	mu        sync.Mutex
	path      string
	front     *lru.Cache[string, string]
	persisted map[string]string
	dirty     int
}

// openCache loads dir/context_cache.json if present, or starts empty.
func openCache(dir string) (*cache, error) {
	front, err := lru.New[string, string](frontCacheSize)
	if err != nil {
		return nil, docerrors.InternalError("failed to allocate context front cache", err)
	}

	c := &cache{
		path:      filepath.Join(dir, contextCacheFileName),
		front:     front,
		persisted: make(map[string]string),
	}

	data, err := os.ReadFile(c.path)
	if os.IsNotExist(err) {
		return c, nil
	}
	if err != nil {
		return nil, docerrors.CacheError("failed to read context cache", err)
	}
	if err := json.Unmarshal(data, &c.persisted); err != nil {
		return nil, docerrors.CacheError("failed to parse context cache", err)
	}
	return c, nil
}

// keyFor derives the content-hash key a chunk's context is cached under.
func keyFor(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// get returns a cached context for content, if one exists.
func (c *cache) get(content string) (string, bool) {
	key := keyFor(content)

	c.mu.Lock()
	defer c.mu.Unlock()

	if v, ok := c.front.Get(key); ok {
		return v, true
	}
	if v, ok := c.persisted[key]; ok {
		c.front.Add(key, v)
		return v, true
	}
	return "", false
}

// put records a freshly generated context and reports the number of
// entries written since the last save, so the caller can checkpoint at a
// configured interval.
func (c *cache) put(content, generated string) int {
	key := keyFor(content)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.front.Add(key, generated)
	c.persisted[key] = generated
	c.dirty++
	return c.dirty
}

// save persists the full cache atomically and resets the dirty counter.
func (c *cache) save() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saveLocked()
}

func (c *cache) saveLocked() error {
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return docerrors.CacheError("failed to create cache directory", err)
	}

	data, err := json.MarshalIndent(c.persisted, "", "  ")
	if err != nil {
		return docerrors.CacheError("failed to marshal context cache", err)
	}

	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return docerrors.CacheError("failed to write context cache", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		os.Remove(tmp)
		return docerrors.CacheError("failed to rename context cache", err)
	}
	c.dirty = 0
	return nil
}
