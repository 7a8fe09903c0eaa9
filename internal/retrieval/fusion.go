// Package retrieval combines lexical and vector search results via
// Reciprocal Rank Fusion, then optionally reranks the fused candidates
// with a cross-encoder.
package retrieval

import (
	"sort"
	"strconv"

	docerrors "github.com/docrag/docrag/internal/errors"
	"github.com/docrag/docrag/internal/lexical"
	"github.com/docrag/docrag/internal/vectorindex"
)

// DefaultRRFConstant is the standard RRF smoothing parameter.
// k=60 is empirically validated across domains (used by Azure AI Search, OpenSearch, etc.).
const DefaultRRFConstant = 60

// Weights holds the RRF source weights. They must sum to 1.0 ± 0.01.
type Weights struct {
	BM25     float64
	Semantic float64
}

// DefaultWeights returns the documentation-domain defaults.
func DefaultWeights() Weights {
	return Weights{BM25: 0.3, Semantic: 0.7}
}

// ValidateWeights checks the weights sum to 1.0 within tolerance.
func ValidateWeights(w Weights) error {
	sum := w.BM25 + w.Semantic
	if sum < 0.99 || sum > 1.01 {
		return docerrors.New(docerrors.ErrCodeWeightsInvalid,
			"hybrid weights must sum to 1.0 +/- 0.01", nil).
			WithDetail("bm25", strconv.FormatFloat(w.BM25, 'f', -1, 64)).
			WithDetail("semantic", strconv.FormatFloat(w.Semantic, 'f', -1, 64))
	}
	return nil
}

// FusedResult represents a single result after RRF fusion.
type FusedResult struct {
	ChunkID      string
	RRFScore     float64
	BM25Score    float64
	BM25Rank     int
	VecScore     float64
	VecRank      int
	InBothLists  bool
	MatchedTerms []string
}

// RRFFusion combines lexical and vector search results using
// Reciprocal Rank Fusion.
//
// Algorithm: RRF_score(d) = Σ weight_i / (k + rank_i)
type RRFFusion struct {
	K int
}

// NewRRFFusion creates a new RRF fusion instance with default k=60.
func NewRRFFusion() *RRFFusion {
	return &RRFFusion{K: DefaultRRFConstant}
}

// NewRRFFusionWithK creates a new RRF fusion with a custom k value.
// If k <= 0, defaults to 60.
func NewRRFFusionWithK(k int) *RRFFusion {
	if k <= 0 {
		k = DefaultRRFConstant
	}
	return &RRFFusion{K: k}
}

// Fuse combines lexical and vector results using Reciprocal Rank Fusion.
//
// Documents appearing in only one list use missing_rank = max(len(bm25), len(vec)) + 1
// for the missing source's contribution.
//
// Results are sorted by: RRFScore (desc) → best individual rank (asc) → ChunkID (asc).
func (f *RRFFusion) Fuse(bm25 []*lexical.Result, vec []*vectorindex.Result, weights Weights) []*FusedResult {
	if len(bm25) == 0 && len(vec) == 0 {
		return []*FusedResult{}
	}

	capacity := len(bm25) + len(vec)
	scores := make(map[string]*FusedResult, capacity)

	for rank, r := range bm25 {
		result := getOrCreate(scores, r.ChunkID)
		result.BM25Score = r.Score
		result.BM25Rank = rank + 1
		result.MatchedTerms = r.MatchedTerms
		result.RRFScore += weights.BM25 / float64(f.K+rank+1)
	}

	for rank, r := range vec {
		result := getOrCreate(scores, r.ID)
		result.VecScore = float64(r.Score)
		result.VecRank = rank + 1
		result.RRFScore += weights.Semantic / float64(f.K+rank+1)
		if result.BM25Rank > 0 {
			result.InBothLists = true
		}
	}

	// Candidates absent from one retriever's list still get a small
	// contribution from it, scored as if ranked just past that list's end.
	// Pure RRF sums only over the lists a candidate actually appears in;
	// this gives single-retriever candidates a (small, deterministic)
	// boost instead of scoring them solely off the list they did appear
	// in. Doesn't change the sort order's tie-break rule, since every
	// candidate missing from a list gets the same additive term.
	missingRank := calculateMissingRank(len(bm25), len(vec))
	for _, r := range scores {
		if r.BM25Rank == 0 && r.VecRank > 0 {
			r.RRFScore += weights.BM25 / float64(f.K+missingRank)
		}
		if r.VecRank == 0 && r.BM25Rank > 0 {
			r.RRFScore += weights.Semantic / float64(f.K+missingRank)
		}
	}

	results := toSortedSlice(scores)
	normalize(results)
	return results
}

func getOrCreate(m map[string]*FusedResult, id string) *FusedResult {
	if r, ok := m[id]; ok {
		return r
	}
	r := &FusedResult{ChunkID: id}
	m[id] = r
	return r
}

// calculateMissingRank returns the rank assigned to documents absent from a list.
func calculateMissingRank(bm25Len, vecLen int) int {
	if bm25Len > vecLen {
		return bm25Len + 1
	}
	return vecLen + 1
}

func toSortedSlice(m map[string]*FusedResult) []*FusedResult {
	results := make([]*FusedResult, 0, len(m))
	for _, r := range m {
		results = append(results, r)
	}
	sort.Slice(results, func(i, j int) bool {
		return compare(results[i], results[j])
	})
	return results
}

// bestRank returns a result's best (lowest, non-zero) individual rank. A
// result absent from a list contributes no rank there, so only present
// ranks are considered; a result with no ranks at all can't occur, since
// it would never have been added to the score map.
func bestRank(r *FusedResult) int {
	switch {
	case r.BM25Rank == 0:
		return r.VecRank
	case r.VecRank == 0:
		return r.BM25Rank
	case r.BM25Rank < r.VecRank:
		return r.BM25Rank
	default:
		return r.VecRank
	}
}

// compare reports whether a should rank before b.
//
// Priority:
//  1. Higher RRF score
//  2. Better (lower) individual best rank
//  3. Lexicographically smaller ChunkID
func compare(a, b *FusedResult) bool {
	if a.RRFScore != b.RRFScore {
		return a.RRFScore > b.RRFScore
	}
	ra, rb := bestRank(a), bestRank(b)
	if ra != rb {
		return ra < rb
	}
	return a.ChunkID < b.ChunkID
}

// normalize scales all RRF scores to the 0-1 range, using the maximum as
// the reference point (which becomes 1.0).
func normalize(results []*FusedResult) {
	if len(results) == 0 {
		return
	}
	maxScore := results[0].RRFScore
	if maxScore == 0 {
		return
	}
	for _, r := range results {
		r.RRFScore = r.RRFScore / maxScore
	}
}
