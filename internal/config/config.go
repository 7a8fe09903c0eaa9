// Package config loads and validates docrag's crawl/chunk/search configuration.
// It mirrors the on-disk schema enumerated in the system design: crawl shape,
// chunker budgets, hybrid search weights, embedding/rerank identity, and
// contextual retrieval toggles.
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	docerrors "github.com/docrag/docrag/internal/errors"
)

// Config is the complete docrag configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Crawl      CrawlConfig      `yaml:"crawl" json:"crawl"`
	Chunk      ChunkConfig      `yaml:"chunk" json:"chunk"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Contextual ContextualConfig `yaml:"contextual" json:"contextual"`
	Cache      CacheConfig      `yaml:"cache" json:"cache"`
}

// CrawlConfig configures discovery shape and politeness.
type CrawlConfig struct {
	BaseURL         string   `yaml:"base_url" json:"base_url"`
	ManualURLs      []string `yaml:"manual_urls" json:"manual_urls"`
	ManualURLsOnly  bool     `yaml:"manual_urls_only" json:"manual_urls_only"`
	MaxCrawlDepth   int      `yaml:"max_crawl_depth" json:"max_crawl_depth"`
	MaxPages        int      `yaml:"max_pages" json:"max_pages"`
	MaxWorkers      int      `yaml:"max_workers" json:"max_workers"`
	RateLimitDelay  string   `yaml:"rate_limit_delay" json:"rate_limit_delay"`
	RequestTimeout  string   `yaml:"request_timeout" json:"request_timeout"`
	MaxURLRetries   int      `yaml:"max_url_retries" json:"max_url_retries"`
	URLIncludeRegex []string `yaml:"url_include_patterns" json:"url_include_patterns"`
	URLExcludeRegex []string `yaml:"url_exclude_patterns" json:"url_exclude_patterns"`
}

// ChunkConfig configures the two-level parent/child chunker's token budgets.
type ChunkConfig struct {
	ChildMin       int `yaml:"child_min" json:"child_min"`
	ChildMax       int `yaml:"child_max" json:"child_max"`
	ParentMin      int `yaml:"parent_min" json:"parent_min"`
	ParentMax      int `yaml:"parent_max" json:"parent_max"`
	AbsoluteMaxTok int `yaml:"absolute_max_tokens" json:"absolute_max_tokens"`
}

// resolvedParentMin returns ParentMin, deriving it from ParentMax/3 when unset.
// The source material has two divergent defaults for this value; we resolve the
// ambiguity by treating ParentMin as explicit configuration and only deriving it
// when the caller left it at zero.
func (c ChunkConfig) resolvedParentMin() int {
	if c.ParentMin > 0 {
		return c.ParentMin
	}
	return c.ParentMax / 3
}

// SearchConfig configures hybrid retrieval and re-ranking.
type SearchConfig struct {
	BM25Weight            float64 `yaml:"hybrid_bm25_weight" json:"hybrid_bm25_weight"`
	SemanticWeight        float64 `yaml:"hybrid_semantic_weight" json:"hybrid_semantic_weight"`
	TopK                  int     `yaml:"search_top_k" json:"search_top_k"`
	CandidateMultiplier   int     `yaml:"retriever_candidate_multiplier" json:"retriever_candidate_multiplier"`
	RerankEnabled         bool    `yaml:"rerank_enabled" json:"rerank_enabled"`
	ParentContextMaxChars int     `yaml:"parent_context_max_chars" json:"parent_context_max_chars"`
	RRFConstant           int     `yaml:"rrf_constant" json:"rrf_constant"`
}

// EmbeddingsConfig identifies the embedding and rerank models.
type EmbeddingsConfig struct {
	Provider         string `yaml:"provider" json:"provider"`
	EmbeddingModel   string `yaml:"embedding_model" json:"embedding_model"`
	RerankModel      string `yaml:"rerank_model" json:"rerank_model"`
	Dimensions       int    `yaml:"dimensions" json:"dimensions"`
	BatchSize        int    `yaml:"batch_size" json:"batch_size"`
	OllamaHost       string `yaml:"ollama_host" json:"ollama_host"`
	UpdateCheckHours int    `yaml:"update_check_interval_hours" json:"update_check_interval_hours"`
}

// ContextualConfig configures optional LLM-generated chunk context prefixes.
type ContextualConfig struct {
	Enabled    bool   `yaml:"contextual_retrieval_enabled" json:"contextual_retrieval_enabled"`
	Background bool   `yaml:"contextual_retrieval_background" json:"contextual_retrieval_background"`
	Endpoint   string `yaml:"endpoint" json:"endpoint"`
	Model      string `yaml:"model" json:"model"`
	Timeout    string `yaml:"timeout" json:"timeout"`
	BatchSize  int    `yaml:"batch_size" json:"batch_size"`
	SaveEvery  int    `yaml:"save_every" json:"save_every"`
}

// CacheConfig configures the page cache's invalidation behavior.
type CacheConfig struct {
	PageTTLHours int `yaml:"page_cache_ttl_hours" json:"page_cache_ttl_hours"`
}

// defaultExcludeURLPatterns are always excluded from recursive crawl discovery.
var defaultExcludeURLPatterns = []string{
	`\.(png|jpe?g|gif|svg|ico|woff2?|ttf|eot|css|js)$`,
	`/(tag|category|author)/`,
}

// New returns a Config populated with sensible defaults.
func New() *Config {
	return &Config{
		Version: 1,
		Crawl: CrawlConfig{
			MaxCrawlDepth:   5,
			MaxPages:        1000,
			MaxWorkers:      4,
			RateLimitDelay:  "250ms",
			RequestTimeout:  "30s",
			MaxURLRetries:   2,
			URLExcludeRegex: defaultExcludeURLPatterns,
		},
		Chunk: ChunkConfig{
			ChildMin:       200,
			ChildMax:       500,
			ParentMin:      0, // derived as ParentMax/3 when unset
			ParentMax:      1500,
			AbsoluteMaxTok: 2000,
		},
		Search: SearchConfig{
			BM25Weight:            0.3,
			SemanticWeight:        0.7,
			TopK:                  10,
			CandidateMultiplier:   4,
			RerankEnabled:         true,
			ParentContextMaxChars: 4000,
			RRFConstant:           60,
		},
		Embeddings: EmbeddingsConfig{
			Provider:         "", // empty triggers auto-detection: ollama -> static
			EmbeddingModel:   "nomic-embed-text",
			RerankModel:      "",
			Dimensions:       0, // auto-detect from embedder
			BatchSize:        32,
			OllamaHost:       "",
			UpdateCheckHours: 24,
		},
		Contextual: ContextualConfig{
			Enabled:    false,
			Background: true,
			Endpoint:   "http://localhost:11434/v1",
			Model:      "qwen3:0.6b",
			Timeout:    "5s",
			BatchSize:  8,
			SaveEvery:  50,
		},
		Cache: CacheConfig{
			PageTTLHours: 168, // one week
		},
	}
}

// ResolvedParentMin returns the effective parent_min, deriving it from
// parent_max/3 when the configured value is zero.
func (c *Config) ResolvedParentMin() int {
	return c.Chunk.resolvedParentMin()
}

// Load loads configuration from dir/docrag.yaml (or .yml), then applies
// DOCRAG_* environment variable overrides, then validates the result.
func Load(dir string) (*Config, error) {
	cfg := New()

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) loadFromFile(dir string) error {
	for _, name := range []string{"docrag.yaml", "docrag.yml"} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return c.loadYAML(path)
		}
	}
	return nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return docerrors.ConfigError(fmt.Sprintf("failed to read config file %s", path), err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return docerrors.ConfigError(fmt.Sprintf("failed to parse config file %s", path), err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	if other.Crawl.BaseURL != "" {
		c.Crawl.BaseURL = other.Crawl.BaseURL
	}
	if len(other.Crawl.ManualURLs) > 0 {
		c.Crawl.ManualURLs = other.Crawl.ManualURLs
	}
	if other.Crawl.ManualURLsOnly {
		c.Crawl.ManualURLsOnly = other.Crawl.ManualURLsOnly
	}
	if other.Crawl.MaxCrawlDepth != 0 {
		c.Crawl.MaxCrawlDepth = other.Crawl.MaxCrawlDepth
	}
	if other.Crawl.MaxPages != 0 {
		c.Crawl.MaxPages = other.Crawl.MaxPages
	}
	if other.Crawl.MaxWorkers != 0 {
		c.Crawl.MaxWorkers = other.Crawl.MaxWorkers
	}
	if other.Crawl.RateLimitDelay != "" {
		c.Crawl.RateLimitDelay = other.Crawl.RateLimitDelay
	}
	if other.Crawl.RequestTimeout != "" {
		c.Crawl.RequestTimeout = other.Crawl.RequestTimeout
	}
	if other.Crawl.MaxURLRetries != 0 {
		c.Crawl.MaxURLRetries = other.Crawl.MaxURLRetries
	}
	if len(other.Crawl.URLIncludeRegex) > 0 {
		c.Crawl.URLIncludeRegex = other.Crawl.URLIncludeRegex
	}
	if len(other.Crawl.URLExcludeRegex) > 0 {
		c.Crawl.URLExcludeRegex = other.Crawl.URLExcludeRegex
	}

	if other.Chunk.ChildMin != 0 {
		c.Chunk.ChildMin = other.Chunk.ChildMin
	}
	if other.Chunk.ChildMax != 0 {
		c.Chunk.ChildMax = other.Chunk.ChildMax
	}
	if other.Chunk.ParentMin != 0 {
		c.Chunk.ParentMin = other.Chunk.ParentMin
	}
	if other.Chunk.ParentMax != 0 {
		c.Chunk.ParentMax = other.Chunk.ParentMax
	}
	if other.Chunk.AbsoluteMaxTok != 0 {
		c.Chunk.AbsoluteMaxTok = other.Chunk.AbsoluteMaxTok
	}

	if other.Search.BM25Weight != 0 {
		c.Search.BM25Weight = other.Search.BM25Weight
	}
	if other.Search.SemanticWeight != 0 {
		c.Search.SemanticWeight = other.Search.SemanticWeight
	}
	if other.Search.TopK != 0 {
		c.Search.TopK = other.Search.TopK
	}
	if other.Search.CandidateMultiplier != 0 {
		c.Search.CandidateMultiplier = other.Search.CandidateMultiplier
	}
	if other.Search.ParentContextMaxChars != 0 {
		c.Search.ParentContextMaxChars = other.Search.ParentContextMaxChars
	}
	if other.Search.RRFConstant != 0 {
		c.Search.RRFConstant = other.Search.RRFConstant
	}

	if other.Embeddings.Provider != "" {
		c.Embeddings.Provider = other.Embeddings.Provider
	}
	if other.Embeddings.EmbeddingModel != "" {
		c.Embeddings.EmbeddingModel = other.Embeddings.EmbeddingModel
	}
	if other.Embeddings.RerankModel != "" {
		c.Embeddings.RerankModel = other.Embeddings.RerankModel
	}
	if other.Embeddings.Dimensions != 0 {
		c.Embeddings.Dimensions = other.Embeddings.Dimensions
	}
	if other.Embeddings.BatchSize != 0 {
		c.Embeddings.BatchSize = other.Embeddings.BatchSize
	}
	if other.Embeddings.OllamaHost != "" {
		c.Embeddings.OllamaHost = other.Embeddings.OllamaHost
	}
	if other.Embeddings.UpdateCheckHours != 0 {
		c.Embeddings.UpdateCheckHours = other.Embeddings.UpdateCheckHours
	}

	if other.Contextual.Endpoint != "" {
		c.Contextual.Endpoint = other.Contextual.Endpoint
	}
	if other.Contextual.Model != "" {
		c.Contextual.Model = other.Contextual.Model
	}
	if other.Contextual.Timeout != "" {
		c.Contextual.Timeout = other.Contextual.Timeout
	}
	if other.Contextual.BatchSize != 0 {
		c.Contextual.BatchSize = other.Contextual.BatchSize
	}
	if other.Contextual.SaveEvery != 0 {
		c.Contextual.SaveEvery = other.Contextual.SaveEvery
	}

	if other.Cache.PageTTLHours != 0 {
		c.Cache.PageTTLHours = other.Cache.PageTTLHours
	}
}

// applyEnvOverrides applies DOCRAG_* environment variable overrides.
// These take precedence over both defaults and file-loaded configuration.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("DOCRAG_BASE_URL"); v != "" {
		c.Crawl.BaseURL = v
	}
	if v := os.Getenv("DOCRAG_BM25_WEIGHT"); v != "" {
		if w, err := strconv.ParseFloat(v, 64); err == nil {
			c.Search.BM25Weight = w
		}
	}
	if v := os.Getenv("DOCRAG_SEMANTIC_WEIGHT"); v != "" {
		if w, err := strconv.ParseFloat(v, 64); err == nil {
			c.Search.SemanticWeight = w
		}
	}
	if v := os.Getenv("DOCRAG_RRF_CONSTANT"); v != "" {
		if k, err := strconv.Atoi(v); err == nil && k > 0 {
			c.Search.RRFConstant = k
		}
	}
	if v := os.Getenv("DOCRAG_EMBEDDINGS_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("DOCRAG_EMBEDDING_MODEL"); v != "" {
		c.Embeddings.EmbeddingModel = v
	}
	if v := os.Getenv("DOCRAG_OLLAMA_HOST"); v != "" {
		c.Embeddings.OllamaHost = v
	}
	if v := os.Getenv("DOCRAG_CONTEXTUAL_ENABLED"); v != "" {
		c.Contextual.Enabled = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("DOCRAG_MANUAL_URLS_ONLY"); v != "" {
		c.Crawl.ManualURLsOnly = strings.EqualFold(v, "true") || v == "1"
	}
}

// Validate checks invariants across the configuration.
func (c *Config) Validate() error {
	if c.Crawl.BaseURL == "" && len(c.Crawl.ManualURLs) == 0 {
		return docerrors.ConfigError("base_url or manual_urls must be set", nil)
	}

	sum := c.Search.BM25Weight + c.Search.SemanticWeight
	if math.Abs(sum-1.0) > 0.01+1e-9 { // epsilon keeps a sum of exactly 0.99 or 1.01 inside the tolerance
		return docerrors.New(docerrors.ErrCodeWeightsInvalid,
			fmt.Sprintf("hybrid_bm25_weight + hybrid_semantic_weight must sum to 1.0, got %.3f", sum), nil)
	}
	if c.Search.BM25Weight < 0 || c.Search.BM25Weight > 1 {
		return docerrors.ConfigError(fmt.Sprintf("hybrid_bm25_weight must be in [0,1], got %f", c.Search.BM25Weight), nil)
	}
	if c.Search.SemanticWeight < 0 || c.Search.SemanticWeight > 1 {
		return docerrors.ConfigError(fmt.Sprintf("hybrid_semantic_weight must be in [0,1], got %f", c.Search.SemanticWeight), nil)
	}

	if c.Chunk.ChildMin <= 0 || c.Chunk.ChildMax <= 0 || c.Chunk.ChildMin > c.Chunk.ChildMax {
		return docerrors.ConfigError("child_min must be positive and <= child_max", nil)
	}
	if c.Chunk.ParentMax <= 0 {
		return docerrors.ConfigError("parent_max must be positive", nil)
	}
	if c.ResolvedParentMin() > c.Chunk.ParentMax {
		return docerrors.ConfigError("parent_min must be <= parent_max", nil)
	}
	if c.Chunk.AbsoluteMaxTok < c.Chunk.ParentMax {
		return docerrors.ConfigError("absolute_max_tokens must be >= parent_max", nil)
	}

	if c.Search.TopK <= 0 {
		return docerrors.ConfigError("search_top_k must be positive", nil)
	}
	if c.Search.CandidateMultiplier <= 0 {
		return docerrors.ConfigError("retriever_candidate_multiplier must be positive", nil)
	}

	if c.Embeddings.Provider != "" {
		valid := map[string]bool{"static": true, "ollama": true}
		if !valid[strings.ToLower(c.Embeddings.Provider)] {
			return docerrors.ConfigError(
				fmt.Sprintf("embeddings.provider must be 'static', 'ollama', or empty (auto-detect), got %s", c.Embeddings.Provider), nil)
		}
	}

	return nil
}

// RequestTimeoutDuration parses Crawl.RequestTimeout, defaulting to 30s on error.
func (c *Config) RequestTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.Crawl.RequestTimeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// RateLimitDelayDuration parses Crawl.RateLimitDelay, defaulting to 0 on error.
func (c *Config) RateLimitDelayDuration() time.Duration {
	d, err := time.ParseDuration(c.Crawl.RateLimitDelay)
	if err != nil {
		return 0
	}
	return d
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return docerrors.InternalError("failed to marshal config", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return docerrors.CacheError(fmt.Sprintf("failed to write config file %s", path), err)
	}
	return nil
}
