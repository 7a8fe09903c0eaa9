// Package engine wires the configuration-independent packages
// (crawler, chunker, indexes, orchestrator, query) into the two
// long-lived handles the command-line tool needs: one to run an
// indexing cycle, one to answer search queries. Neither the indexing
// path nor the query path loads the other's indexes eagerly, since a
// search-only invocation shouldn't pay crawler/orchestrator setup cost
// and vice versa.
package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/docrag/docrag/internal/chunkstore"
	"github.com/docrag/docrag/internal/config"
	"github.com/docrag/docrag/internal/consistency"
	"github.com/docrag/docrag/internal/contextualizer"
	"github.com/docrag/docrag/internal/embed"
	"github.com/docrag/docrag/internal/lexical"
	"github.com/docrag/docrag/internal/orchestrator"
	"github.com/docrag/docrag/internal/query"
	"github.com/docrag/docrag/internal/retrieval"
	"github.com/docrag/docrag/internal/vectorindex"
)

// vectorIndexDir mirrors the orchestrator package's vectorIndexDir
// constant; kept in sync by hand since neither package exports it.
const vectorIndexDir = "index/faiss_index"

// Indexer bundles everything a single "run a crawl-and-index cycle"
// invocation needs, plus the close func for its embedder.
type Indexer struct {
	Orchestrator   *orchestrator.Orchestrator
	Contextualizer *contextualizer.Contextualizer
	embedder       embed.Embedder
}

// Close releases the embedder and, if contextualization was enabled,
// flushes its context cache.
func (i *Indexer) Close() error {
	if i.Contextualizer != nil {
		if err := i.Contextualizer.Close(); err != nil {
			return err
		}
	}
	return i.embedder.Close()
}

// NewIndexer builds an Orchestrator rooted at cacheDir from cfg,
// wiring an embedder for cfg.Embeddings and, if contextual retrieval
// is enabled, a contextualizer using cfg.Contextual.
func NewIndexer(ctx context.Context, cfg *config.Config, cacheDir string) (*Indexer, error) {
	embedder, err := buildEmbedder(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var ctxer *contextualizer.Contextualizer
	var hook orchestrator.Contextualizer
	if cfg.Contextual.Enabled {
		ctxer, err = buildContextualizer(cfg, cacheDir)
		if err != nil {
			embedder.Close()
			return nil, err
		}
		hook = ctxer
	}

	orch, err := orchestrator.New(cfg, cacheDir, embedder, hook)
	if err != nil {
		embedder.Close()
		return nil, err
	}

	return &Indexer{Orchestrator: orch, Contextualizer: ctxer, embedder: embedder}, nil
}

func buildEmbedder(ctx context.Context, cfg *config.Config) (embed.Embedder, error) {
	provider := embed.ProviderType(cfg.Embeddings.Provider)
	return embed.NewEmbedder(ctx, provider, cfg.Embeddings.EmbeddingModel)
}

func buildContextualizer(cfg *config.Config, cacheDir string) (*contextualizer.Contextualizer, error) {
	timeout := 5 * time.Second
	if d, err := time.ParseDuration(cfg.Contextual.Timeout); err == nil {
		timeout = d
	}

	llm := contextualizer.NewLLMGenerator(cfg.Contextual.Endpoint, "", cfg.Contextual.Model, timeout)
	generator := contextualizer.NewHybridGenerator(llm)

	return contextualizer.New(filepath.Join(cacheDir, "context"), generator, cfg.Contextual.SaveEvery)
}

// Searcher bundles the read-side handles: a loaded vector index, a
// lexical index rebuilt from the persisted chunk set, and the
// query.Searcher composing both.
type Searcher struct {
	Search   *query.Searcher
	Checker  *consistency.Checker
	embedder embed.Embedder
	vector   *vectorindex.Store
	lexicalI *lexical.Index
}

// Close releases the embedder and index handles.
func (s *Searcher) Close() error {
	s.lexicalI.Close()
	s.vector.Close()
	return s.embedder.Close()
}

// NewSearcher loads the persisted chunk set, vector index, and
// rebuilds the lexical index in-memory, then composes them into a
// query.Searcher. It's safe to call against a cacheDir that hasn't
// been indexed yet: the resulting Searcher simply returns no results.
func NewSearcher(ctx context.Context, cfg *config.Config, cacheDir string) (*Searcher, error) {
	embedder, err := buildEmbedder(ctx, cfg)
	if err != nil {
		return nil, err
	}

	store := chunkstore.Open(cacheDir)
	chunks, err := store.LoadChunks()
	if err != nil {
		embedder.Close()
		return nil, err
	}

	docs := make([]lexical.Document, len(chunks))
	for i, c := range chunks {
		docs[i] = lexical.Document{ID: c.ID, Content: c.PageContent}
	}
	lex, err := lexical.Rebuild(lexical.DefaultConfig(), docs)
	if err != nil {
		embedder.Close()
		return nil, err
	}

	dims := embedder.Dimensions()
	vec, err := vectorindex.New(vectorindex.DefaultConfig(dims))
	if err != nil {
		lex.Close()
		embedder.Close()
		return nil, err
	}
	vecPath := filepath.Join(cacheDir, vectorIndexDir, "graph")
	if err := vec.Load(vecPath); err != nil {
		// No prior index on disk, or dimensions changed: start empty.
		// query.Searcher.Search reports this as "not ready" rather
		// than erroring.
	}

	reranker := buildReranker(ctx, cfg)

	searcher := query.New(cfg, lex, vec, embedder, store, reranker)
	checker := consistency.New(lex, vec)

	return &Searcher{Search: searcher, Checker: checker, embedder: embedder, vector: vec, lexicalI: lex}, nil
}

func buildReranker(ctx context.Context, cfg *config.Config) retrieval.Reranker {
	if !cfg.Search.RerankEnabled {
		return &retrieval.NoOpReranker{}
	}

	rerankCfg := retrieval.DefaultCrossEncoderConfig()
	if cfg.Embeddings.RerankModel != "" {
		rerankCfg.Model = cfg.Embeddings.RerankModel
	}
	reranker, err := retrieval.NewCrossEncoderReranker(ctx, rerankCfg)
	if err != nil {
		return &retrieval.NoOpReranker{}
	}
	return reranker
}

// Stats reports point-in-time counts used by the info command.
type Stats struct {
	ChunkCount   int
	VectorCount  int
	LexicalCount int
	Metadata     chunkstore.Metadata
}

// LoadStats reads the persisted chunk store and metadata without
// constructing an embedder or the lexical index, for a cheap "docrag info".
// The persisted vector index, if any, is loaded only to count its vectors.
func LoadStats(cacheDir string) (Stats, error) {
	store := chunkstore.Open(cacheDir)
	chunks, err := store.LoadChunks()
	if err != nil {
		return Stats{}, err
	}
	meta, err := store.LoadMetadata()
	if err != nil {
		return Stats{}, err
	}

	vecPath := filepath.Join(cacheDir, vectorIndexDir, "graph")
	dims, err := vectorindex.ReadDimensions(vecPath)
	vectorCount := 0
	if err == nil && dims > 0 {
		vec, verr := vectorindex.New(vectorindex.DefaultConfig(dims))
		if verr == nil {
			if lerr := vec.Load(vecPath); lerr == nil {
				vectorCount = vec.Count()
			}
			vec.Close()
		}
	}

	return Stats{
		ChunkCount:   len(chunks),
		VectorCount:  vectorCount,
		LexicalCount: len(chunks),
		Metadata:     meta,
	}, nil
}

// RunCheck loads the persisted chunk set and vector index read-only
// and runs a full consistency check, for "docrag info --check".
func RunCheck(cacheDir string) (*consistency.Result, error) {
	store := chunkstore.Open(cacheDir)
	chunks, err := store.LoadChunks()
	if err != nil {
		return nil, err
	}

	docs := make([]lexical.Document, len(chunks))
	ids := make([]string, len(chunks))
	for i, c := range chunks {
		docs[i] = lexical.Document{ID: c.ID, Content: c.PageContent}
		ids[i] = c.ID
	}
	lex, err := lexical.Rebuild(lexical.DefaultConfig(), docs)
	if err != nil {
		return nil, err
	}
	defer lex.Close()

	vecPath := filepath.Join(cacheDir, vectorIndexDir, "graph")
	dims, err := vectorindex.ReadDimensions(vecPath)
	if err != nil {
		return nil, err
	}
	if dims <= 0 {
		return nil, fmt.Errorf("no vector index found in %s", cacheDir)
	}
	vec, err := vectorindex.New(vectorindex.DefaultConfig(dims))
	if err != nil {
		return nil, err
	}
	defer vec.Close()
	if err := vec.Load(vecPath); err != nil {
		return nil, err
	}

	checker := consistency.New(lex, vec)
	return checker.Check(ids)
}
