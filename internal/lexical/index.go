// Package lexical provides BM25 keyword search over child chunk text,
// backed by an in-memory bleve index. The lexical index is never
// persisted across process restarts — it's rebuilt from the current
// chunk list on every load.
package lexical

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/registry"
	"github.com/blevesearch/bleve/v2/search"
)

const (
	docTokenizerName = "doc_tokenizer"
	docStopFilterName = "doc_stop"
	docAnalyzerName   = "doc_analyzer"
)

func init() {
	_ = registry.RegisterTokenizer(docTokenizerName, docTokenizerConstructor)
	_ = registry.RegisterTokenFilter(docStopFilterName, docStopFilterConstructor)
}

// Document is a single chunk handed to the index.
type Document struct {
	ID      string // chunk ID
	Content string
}

// Result is a single BM25 hit.
type Result struct {
	ChunkID      string
	Score        float64
	MatchedTerms []string
}

// Stats summarizes the index contents.
type Stats struct {
	DocumentCount int
}

// Config configures tokenization. Bleve's BM25 scorer itself isn't
// independently tunable (no exposed K1/B knobs in the default text field
// type). The Index stores its Config, but the registered analyzer always
// uses DefaultConfig's MinTokenLength and DefaultStopWords; other values
// are not applied.
type Config struct {
	StopWords      []string
	MinTokenLength int
}

// DefaultConfig returns the documentation-domain defaults.
func DefaultConfig() Config {
	return Config{
		StopWords:      DefaultStopWords,
		MinTokenLength: 2,
	}
}

// Index wraps a bleve in-memory index.
type Index struct {
	mu     sync.RWMutex
	index  bleve.Index
	config Config
	closed bool
}

// New creates an empty in-memory BM25 index.
func New(config Config) (*Index, error) {
	mapping, err := buildMapping()
	if err != nil {
		return nil, fmt.Errorf("failed to build index mapping: %w", err)
	}
	idx, err := bleve.NewMemOnly(mapping)
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory index: %w", err)
	}
	return &Index{index: idx, config: config}, nil
}

// Rebuild discards the current index and reindexes docs from scratch —
// the only persistence model the lexical index has; every indexing run
// rebuilds it fresh from the full chunk set.
func Rebuild(config Config, docs []Document) (*Index, error) {
	idx, err := New(config)
	if err != nil {
		return nil, err
	}
	if err := idx.Index(context.Background(), docs); err != nil {
		idx.Close()
		return nil, err
	}
	return idx, nil
}

func buildMapping() (*mapping.IndexMappingImpl, error) {
	im := bleve.NewIndexMapping()
	err := im.AddCustomAnalyzer(docAnalyzerName, map[string]interface{}{
		"type":      custom.Name,
		"tokenizer": docTokenizerName,
		"token_filters": []string{
			lowercase.Name,
			docStopFilterName,
		},
	})
	if err != nil {
		return nil, err
	}
	im.DefaultAnalyzer = docAnalyzerName
	return im, nil
}

// Index adds docs to the index in a single batch.
func (idx *Index) Index(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed {
		return fmt.Errorf("lexical index is closed")
	}

	batch := idx.index.NewBatch()
	for _, d := range docs {
		if err := batch.Index(d.ID, struct {
			Content string `json:"content"`
		}{Content: d.Content}); err != nil {
			return fmt.Errorf("failed to index chunk %s: %w", d.ID, err)
		}
	}
	return idx.index.Batch(batch)
}

// Search returns up to limit matches for query, ranked by BM25 score.
func (idx *Index) Search(ctx context.Context, query string, limit int) ([]*Result, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if idx.closed {
		return nil, fmt.Errorf("lexical index is closed")
	}
	if strings.TrimSpace(query) == "" {
		return []*Result{}, nil
	}

	matchQuery := bleve.NewMatchQuery(query)
	matchQuery.SetField("content")

	req := bleve.NewSearchRequest(matchQuery)
	req.Size = limit
	req.IncludeLocations = true

	res, err := idx.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("lexical search failed: %w", err)
	}

	results := make([]*Result, 0, len(res.Hits))
	for _, hit := range res.Hits {
		results = append(results, &Result{
			ChunkID:      hit.ID,
			Score:        hit.Score,
			MatchedTerms: matchedTerms(hit),
		})
	}
	return results, nil
}

// Delete removes chunk IDs from the index.
func (idx *Index) Delete(ctx context.Context, chunkIDs []string) error {
	if len(chunkIDs) == 0 {
		return nil
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed {
		return fmt.Errorf("lexical index is closed")
	}
	batch := idx.index.NewBatch()
	for _, id := range chunkIDs {
		batch.Delete(id)
	}
	return idx.index.Batch(batch)
}

// AllIDs returns every indexed chunk ID, used by consistency checks
// against the vector index.
func (idx *Index) AllIDs() ([]string, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if idx.closed {
		return nil, fmt.Errorf("lexical index is closed")
	}

	count, _ := idx.index.DocCount()
	req := bleve.NewSearchRequest(bleve.NewMatchAllQuery())
	req.Size = int(count)
	req.Fields = []string{}

	res, err := idx.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunk ids: %w", err)
	}
	ids := make([]string, len(res.Hits))
	for i, hit := range res.Hits {
		ids[i] = hit.ID
	}
	return ids, nil
}

// Stats reports the current document count.
func (idx *Index) Stats() Stats {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if idx.closed {
		return Stats{}
	}
	count, _ := idx.index.DocCount()
	return Stats{DocumentCount: int(count)}
}

// Close releases the underlying bleve index.
func (idx *Index) Close() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed {
		return nil
	}
	idx.closed = true
	return idx.index.Close()
}

func matchedTerms(hit *search.DocumentMatch) []string {
	seen := make(map[string]struct{})
	for field, locations := range hit.Locations {
		if field != "content" {
			continue
		}
		for term := range locations {
			seen[term] = struct{}{}
		}
	}
	terms := make([]string, 0, len(seen))
	for term := range seen {
		terms = append(terms, term)
	}
	return terms
}

// docTokenizerConstructor builds the doc-domain custom tokenizer.
func docTokenizerConstructor(_ map[string]interface{}, _ *registry.Cache) (analysis.Tokenizer, error) {
	return &docTokenizer{minLength: DefaultConfig().MinTokenLength}, nil
}

type docTokenizer struct {
	minLength int
}

func (t *docTokenizer) Tokenize(input []byte) analysis.TokenStream {
	text := string(input)
	tokens := Tokenize(text, t.minLength)

	result := make(analysis.TokenStream, 0, len(tokens))
	pos := 1
	offset := 0
	lowerText := strings.ToLower(text)

	for _, token := range tokens {
		start := strings.Index(lowerText[offset:], token)
		if start == -1 {
			start = offset
		} else {
			start += offset
		}
		end := start + len(token)

		result = append(result, &analysis.Token{
			Term:     []byte(token),
			Start:    start,
			End:      end,
			Position: pos,
			Type:     analysis.AlphaNumeric,
		})
		pos++
		if end <= len(text) {
			offset = end
		}
	}
	return result
}

// docStopFilterConstructor builds the doc-domain stop word filter.
func docStopFilterConstructor(_ map[string]interface{}, _ *registry.Cache) (analysis.TokenFilter, error) {
	return &docStopFilter{stopWords: BuildStopWordSet(DefaultStopWords)}, nil
}

type docStopFilter struct {
	stopWords map[string]struct{}
}

func (f *docStopFilter) Filter(input analysis.TokenStream) analysis.TokenStream {
	result := make(analysis.TokenStream, 0, len(input))
	for _, token := range input {
		term := strings.ToLower(string(token.Term))
		if _, isStop := f.stopWords[term]; !isStop {
			result = append(result, token)
		}
	}
	return result
}
