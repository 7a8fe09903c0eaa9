// Package query answers a search request by pulling candidates from both
// the lexical and vector indexes, fusing them, optionally reranking, and
// attaching parent context for the caller. It is the read side of the
// engine; the orchestrator package is the write side.
package query

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/docrag/docrag/internal/chunk"
	"github.com/docrag/docrag/internal/chunkstore"
	"github.com/docrag/docrag/internal/config"
	"github.com/docrag/docrag/internal/embed"
	"github.com/docrag/docrag/internal/lexical"
	"github.com/docrag/docrag/internal/retrieval"
	"github.com/docrag/docrag/internal/vectorindex"
)

// Result is a single ranked answer to a search query.
type Result struct {
	ChunkID        string
	Text           string
	URL            string
	HeadingPath    []string
	Metadata       chunk.Metadata
	Score          float64
	ParentText     string
	ParentMetadata chunk.Metadata
}

// Searcher composes the lexical index, vector index, and chunk store into
// a single query surface.
type Searcher struct {
	lexical  *lexical.Index
	vector   *vectorindex.Store
	embedder embed.Embedder
	chunks   *chunkstore.Store
	fusion   *retrieval.RRFFusion
	reranker retrieval.Reranker

	weights               retrieval.Weights
	topK                  int
	candidateMultiplier   int
	rerankEnabled         bool
	parentContextMaxChars int
}

// New builds a Searcher from the already-loaded index handles and the
// configuration governing fusion weights, candidate breadth, and rerank
// behavior. reranker may be a *retrieval.NoOpReranker when cross-encoder
// reranking isn't configured; pass nil only if rerankEnabled is false.
func New(cfg *config.Config, lex *lexical.Index, vec *vectorindex.Store, embedder embed.Embedder, chunks *chunkstore.Store, reranker retrieval.Reranker) *Searcher {
	return &Searcher{
		lexical:               lex,
		vector:                vec,
		embedder:              embedder,
		chunks:                chunks,
		fusion:                retrieval.NewRRFFusionWithK(cfg.Search.RRFConstant),
		reranker:              reranker,
		weights:               retrieval.Weights{BM25: cfg.Search.BM25Weight, Semantic: cfg.Search.SemanticWeight},
		topK:                  cfg.Search.TopK,
		candidateMultiplier:   cfg.Search.CandidateMultiplier,
		rerankEnabled:         cfg.Search.RerankEnabled,
		parentContextMaxChars: cfg.Search.ParentContextMaxChars,
	}
}

// Search runs a hybrid lexical+vector query and returns up to topK ranked
// results. topK<=0 uses the Searcher's configured default. An index that
// isn't ready to serve (no chunks indexed yet) returns an empty slice and
// a nil error — callers shouldn't treat "nothing indexed yet" as failure.
func (s *Searcher) Search(ctx context.Context, query string, topK int, returnParent bool) ([]Result, error) {
	if topK <= 0 {
		topK = s.topK
	}

	if s.lexical == nil || s.vector == nil || s.vector.Count() == 0 {
		slog.Warn("search requested before an index was built")
		return []Result{}, nil
	}

	candidateK := topK * s.candidateMultiplier
	if candidateK <= 0 {
		candidateK = topK
	}

	bm25Results, err := s.lexical.Search(ctx, query, candidateK)
	if err != nil {
		return nil, err
	}

	queryVec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	vecResults, err := s.vector.Search(ctx, queryVec, candidateK)
	if err != nil {
		return nil, err
	}

	fused := s.fusion.Fuse(bm25Results, vecResults, s.weights)
	if len(fused) > candidateK {
		fused = fused[:candidateK]
	}

	chunkRecords, err := s.chunks.LoadChunks()
	if err != nil {
		return nil, err
	}
	byID := make(map[string]chunkstore.ChunkRecord, len(chunkRecords))
	for _, c := range chunkRecords {
		byID[c.ID] = c
	}

	var parents map[string]chunkstore.ParentRecord
	if returnParent {
		parents, err = s.chunks.LoadParents()
		if err != nil {
			return nil, err
		}
	}

	results := make([]Result, 0, len(fused))
	for _, f := range fused {
		record, ok := byID[f.ChunkID]
		if !ok {
			continue // indexed chunk no longer in the chunk store; consistency check will flag this.
		}
		results = append(results, buildResult(record, parents, returnParent, s.parentContextMaxChars, f.RRFScore))
	}

	if s.rerankEnabled && s.reranker != nil {
		results, err = s.rerank(ctx, query, results, topK)
		if err != nil {
			return nil, err
		}
	}

	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func (s *Searcher) rerank(ctx context.Context, query string, results []Result, topK int) ([]Result, error) {
	documents := make([]string, len(results))
	for i, r := range results {
		documents[i] = r.Text
	}

	ranked, err := s.reranker.Rerank(ctx, query, documents, topK)
	if err != nil {
		return nil, err
	}

	reordered := make([]Result, 0, len(ranked))
	for _, rr := range ranked {
		if rr.Index < 0 || rr.Index >= len(results) {
			continue
		}
		r := results[rr.Index]
		r.Score = rr.Score
		reordered = append(reordered, r)
	}
	return reordered, nil
}

func buildResult(record chunkstore.ChunkRecord, parents map[string]chunkstore.ParentRecord, returnParent bool, maxChars int, score float64) Result {
	var meta chunk.Metadata
	_ = json.Unmarshal(record.Metadata, &meta)

	result := Result{
		ChunkID:     record.ID,
		Text:        record.PageContent,
		URL:         record.URL,
		HeadingPath: record.HeadingPath,
		Metadata:    meta,
		Score:       score,
	}

	if returnParent {
		if parent, ok := parents[record.ParentID]; ok {
			result.ParentText = truncateParent(parent.Content, maxChars)
			var parentMeta chunk.Metadata
			_ = json.Unmarshal(parent.Metadata, &parentMeta)
			result.ParentMetadata = parentMeta
		}
	}

	return result
}

// truncateParent applies the parent_context_max_chars budget. 0 means unlimited.
func truncateParent(content string, maxChars int) string {
	if maxChars <= 0 || len(content) <= maxChars {
		return content
	}
	return content[:maxChars]
}
