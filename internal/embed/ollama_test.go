package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOllamaServer(t *testing.T, dims int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			_ = json.NewEncoder(w).Encode(OllamaModelListResponse{
				Models: []OllamaModelInfo{{Name: "nomic-embed-text"}},
			})
		case "/api/embed":
			var req OllamaEmbedRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

			var texts []string
			switch v := req.Input.(type) {
			case string:
				texts = []string{v}
			case []any:
				for _, t := range v {
					texts = append(texts, t.(string))
				}
			}

			embeddings := make([][]float64, len(texts))
			for i := range texts {
				vec := make([]float64, dims)
				vec[0] = 1.0
				embeddings[i] = vec
			}
			_ = json.NewEncoder(w).Encode(OllamaEmbedResponse{Model: req.Model, Embeddings: embeddings})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func TestOllamaEmbedder_EmbedSingle(t *testing.T) {
	srv := newTestOllamaServer(t, 8)
	defer srv.Close()

	cfg := DefaultOllamaConfig()
	cfg.Host = srv.URL
	e, err := NewOllamaEmbedder(context.Background(), cfg)
	require.NoError(t, err)
	defer e.Close()

	assert.Equal(t, 8, e.Dimensions())

	vec, err := e.Embed(context.Background(), "hello world")
	require.NoError(t, err)
	assert.Len(t, vec, 8)
}

func TestOllamaEmbedder_EmbedBatchSplitsOnBatchSize(t *testing.T) {
	srv := newTestOllamaServer(t, 4)
	defer srv.Close()

	cfg := DefaultOllamaConfig()
	cfg.Host = srv.URL
	cfg.BatchSize = 2
	e, err := NewOllamaEmbedder(context.Background(), cfg)
	require.NoError(t, err)
	defer e.Close()

	vecs, err := e.EmbedBatch(context.Background(), []string{"a", "b", "c", "d", "e"})
	require.NoError(t, err)
	assert.Len(t, vecs, 5)
}

func TestOllamaEmbedder_AvailableAfterClose(t *testing.T) {
	srv := newTestOllamaServer(t, 4)
	defer srv.Close()

	cfg := DefaultOllamaConfig()
	cfg.Host = srv.URL
	e, err := NewOllamaEmbedder(context.Background(), cfg)
	require.NoError(t, err)

	assert.True(t, e.Available(context.Background()))
	require.NoError(t, e.Close())
	assert.False(t, e.Available(context.Background()))
}

func TestOllamaEmbedder_UnreachableHostFails(t *testing.T) {
	cfg := DefaultOllamaConfig()
	cfg.Host = "http://127.0.0.1:1"
	cfg.ConnectTimeout = 0
	_, err := NewOllamaEmbedder(context.Background(), cfg)
	assert.Error(t, err)
}
