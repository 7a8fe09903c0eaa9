package orchestrator

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/docrag/docrag/internal/config"
	"github.com/docrag/docrag/internal/embed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body><h1>Page A</h1><p>` + longProse("alpha unique term") + `</p></body></html>`))
	})
	mux.HandleFunc("/b", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body><h1>Page B</h1><p>` + longProse("beta other content") + `</p></body></html>`))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func longProse(seed string) string {
	out := ""
	for i := 0; i < 80; i++ {
		out += seed + " filler words to cross the child token minimum threshold for chunking. "
	}
	return out
}

func testConfig(server *httptest.Server) *config.Config {
	cfg := config.New()
	cfg.Crawl.ManualURLs = []string{server.URL + "/a", server.URL + "/b"}
	cfg.Crawl.ManualURLsOnly = true
	cfg.Crawl.MaxWorkers = 2
	cfg.Embeddings.EmbeddingModel = "static-test"
	return cfg
}

func TestOrchestrator_FreshTwoPageBuild(t *testing.T) {
	server := newTestSite(t)
	cfg := testConfig(server)

	embedder := embed.NewStaticEmbedder()
	defer embedder.Close()

	orc, err := New(cfg, t.TempDir(), embedder, nil)
	require.NoError(t, err)

	report, err := orc.Run(context.Background(), false, false)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Fetched)
	assert.Equal(t, 0, report.FromCache)
	assert.Equal(t, 0, report.Failed)
	assert.Greater(t, report.ChunksAdded, 0)

	chunks, err := orc.chunks.LoadChunks()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(chunks), 2)
}

func TestOrchestrator_ResumeSkipsAlreadyIndexedURLs(t *testing.T) {
	server := newTestSite(t)
	cfg := testConfig(server)
	dir := t.TempDir()

	embedder := embed.NewStaticEmbedder()
	defer embedder.Close()

	orc, err := New(cfg, dir, embedder, nil)
	require.NoError(t, err)
	first, err := orc.Run(context.Background(), false, false)
	require.NoError(t, err)
	firstChunks, err := orc.chunks.LoadChunks()
	require.NoError(t, err)

	orc2, err := New(cfg, dir, embedder, nil)
	require.NoError(t, err)
	second, err := orc2.Run(context.Background(), false, false)
	require.NoError(t, err)

	// Both URLs are already in indexed_urls with no refresh signal, so
	// resume fetches nothing new and produces no additional chunks.
	assert.Equal(t, 0, second.Fetched)
	assert.Equal(t, 0, second.FromCache)
	assert.Equal(t, 0, second.ChunksAdded)

	secondChunks, err := orc2.chunks.LoadChunks()
	require.NoError(t, err)
	assert.Equal(t, len(firstChunks), len(secondChunks))
	assert.Greater(t, first.ChunksAdded, 0)
}

func TestOrchestrator_ForceRefreshRefetchesAndRebuildsVectorIndex(t *testing.T) {
	server := newTestSite(t)
	cfg := testConfig(server)
	dir := t.TempDir()

	embedder := embed.NewStaticEmbedder()
	defer embedder.Close()

	orc, err := New(cfg, dir, embedder, nil)
	require.NoError(t, err)
	_, err = orc.Run(context.Background(), false, false)
	require.NoError(t, err)

	orc2, err := New(cfg, dir, embedder, nil)
	require.NoError(t, err)
	report, err := orc2.Run(context.Background(), true, false)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Fetched)
	assert.True(t, report.Refreshed)
	assert.True(t, report.Rebuilt)
}

func TestOrchestrator_EmbeddingModelSwapReembedsWithoutNetwork(t *testing.T) {
	var hits int32
	mux := http.NewServeMux()
	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body><h1>Page A</h1><p>` + longProse("alpha unique term") + `</p></body></html>`))
	})
	mux.HandleFunc("/b", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body><h1>Page B</h1><p>` + longProse("beta other content") + `</p></body></html>`))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	dir := t.TempDir()
	embedder := embed.NewStaticEmbedder()
	defer embedder.Close()

	cfg := testConfig(server)
	orc, err := New(cfg, dir, embedder, nil)
	require.NoError(t, err)
	first, err := orc.Run(context.Background(), false, false)
	require.NoError(t, err)
	require.Equal(t, int32(2), atomic.LoadInt32(&hits))

	firstChunks, err := orc.chunks.LoadChunks()
	require.NoError(t, err)
	require.Greater(t, len(firstChunks), 0)

	cfg2 := testConfig(server)
	cfg2.Embeddings.EmbeddingModel = "static-test-v2"
	orc2, err := New(cfg2, dir, embedder, nil)
	require.NoError(t, err)
	second, err := orc2.Run(context.Background(), false, false)
	require.NoError(t, err)

	assert.Equal(t, atomic.LoadInt32(&hits), int32(2), "embedding-only rebuild must not hit the network")
	assert.Equal(t, 0, second.Fetched)
	assert.Equal(t, 0, second.ChunksAdded)
	assert.True(t, second.Rebuilt)
	assert.False(t, second.Refreshed)
	assert.Greater(t, first.ChunksAdded, 0)

	secondChunks, err := orc2.chunks.LoadChunks()
	require.NoError(t, err)
	assert.Equal(t, len(firstChunks), len(secondChunks))

	meta, err := orc2.chunks.LoadMetadata()
	require.NoError(t, err)
	assert.Equal(t, "static-test-v2", meta.EmbeddingModel)
}

func TestOrchestrator_ManualURLsOnlyEmptyIsNoOp(t *testing.T) {
	cfg := config.New()
	cfg.Crawl.ManualURLsOnly = true
	cfg.Crawl.BaseURL = "" // no crawl scope, no manual urls

	embedder := embed.NewStaticEmbedder()
	defer embedder.Close()

	orc, err := New(cfg, t.TempDir(), embedder, nil)
	require.NoError(t, err)

	report, err := orc.Run(context.Background(), false, false)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Fetched)
}
