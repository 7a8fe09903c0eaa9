package retrieval

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoOpReranker_Rerank_PreservesOrder(t *testing.T) {
	reranker := &NoOpReranker{}
	documents := []string{"doc1", "doc2", "doc3"}

	results, err := reranker.Rerank(context.Background(), "query", documents, 0)

	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "doc1", results[0].Document)
	assert.InDelta(t, 1.0, results[0].Score, 0.001)
	assert.InDelta(t, 0.99, results[1].Score, 0.001)
	assert.InDelta(t, 0.98, results[2].Score, 0.001)
}

func TestNoOpReranker_Rerank_RespectsTopK(t *testing.T) {
	reranker := &NoOpReranker{}
	documents := []string{"doc1", "doc2", "doc3", "doc4"}

	results, err := reranker.Rerank(context.Background(), "query", documents, 2)

	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestNoOpReranker_Available(t *testing.T) {
	reranker := &NoOpReranker{}
	assert.True(t, reranker.Available(context.Background()))
	assert.NoError(t, reranker.Close())
}

func newTestRerankServer(t *testing.T, scores map[string]float64) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/rerank", func(w http.ResponseWriter, r *http.Request) {
		var req rerankRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		type item struct {
			Index int     `json:"index"`
			Score float64 `json:"score"`
		}
		resp := struct {
			Results []item `json:"results"`
		}{}
		for i, doc := range req.Documents {
			resp.Results = append(resp.Results, item{Index: i, Score: scores[doc]})
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestCrossEncoderReranker_RerankNormalizesAndSorts(t *testing.T) {
	server := newTestRerankServer(t, map[string]float64{
		"low":  1.0,
		"mid":  5.0,
		"high": 9.0,
	})

	r, err := NewCrossEncoderReranker(context.Background(), CrossEncoderConfig{Endpoint: server.URL})
	require.NoError(t, err)
	defer r.Close()

	results, err := r.Rerank(context.Background(), "q", []string{"low", "mid", "high"}, 0)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "high", results[0].Document)
	assert.InDelta(t, 1.0, results[0].Score, 1e-9)
	assert.Equal(t, "low", results[2].Document)
	assert.InDelta(t, 0.0, results[2].Score, 1e-9)
	assert.InDelta(t, 0.5, results[1].Score, 1e-9)
}

func TestCrossEncoderReranker_UniformScoresNormalizeToOne(t *testing.T) {
	server := newTestRerankServer(t, map[string]float64{
		"a": 3.0,
		"b": 3.0,
	})

	r, err := NewCrossEncoderReranker(context.Background(), CrossEncoderConfig{Endpoint: server.URL})
	require.NoError(t, err)
	defer r.Close()

	results, err := r.Rerank(context.Background(), "q", []string{"a", "b"}, 0)
	require.NoError(t, err)
	for _, res := range results {
		assert.InDelta(t, 1.0, res.Score, 1e-9)
	}
}

func TestCrossEncoderReranker_TopKTruncates(t *testing.T) {
	server := newTestRerankServer(t, map[string]float64{"a": 1, "b": 2, "c": 3})

	r, err := NewCrossEncoderReranker(context.Background(), CrossEncoderConfig{Endpoint: server.URL})
	require.NoError(t, err)
	defer r.Close()

	results, err := r.Rerank(context.Background(), "q", []string{"a", "b", "c"}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "c", results[0].Document)
}

func TestCrossEncoderReranker_EmptyDocumentsReturnsEmpty(t *testing.T) {
	server := newTestRerankServer(t, nil)
	r, err := NewCrossEncoderReranker(context.Background(), CrossEncoderConfig{Endpoint: server.URL})
	require.NoError(t, err)
	defer r.Close()

	results, err := r.Rerank(context.Background(), "q", nil, 0)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestCrossEncoderReranker_UnreachableHostFailsConstruction(t *testing.T) {
	_, err := NewCrossEncoderReranker(context.Background(), CrossEncoderConfig{Endpoint: "http://127.0.0.1:1"})
	assert.Error(t, err)
}

func TestCrossEncoderReranker_AvailableAfterClose(t *testing.T) {
	server := newTestRerankServer(t, nil)
	r, err := NewCrossEncoderReranker(context.Background(), CrossEncoderConfig{Endpoint: server.URL})
	require.NoError(t, err)

	assert.True(t, r.Available(context.Background()))
	require.NoError(t, r.Close())
	assert.False(t, r.Available(context.Background()))
}
