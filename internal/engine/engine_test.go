package engine

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/docrag/docrag/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body><h1>Install Guide</h1><p>` + repeat("installing the docrag command line tool on linux requires downloading the release archive. ") + `</p></body></html>`))
	})
	mux.HandleFunc("/b", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body><h1>Auth Guide</h1><p>` + repeat("configuring api authentication tokens for automated requests. ") + `</p></body></html>`))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func repeat(s string) string {
	out := ""
	for i := 0; i < 80; i++ {
		out += s
	}
	return out
}

func testEngineConfig(server *httptest.Server) *config.Config {
	cfg := config.New()
	cfg.Crawl.ManualURLs = []string{server.URL + "/a", server.URL + "/b"}
	cfg.Crawl.ManualURLsOnly = true
	cfg.Crawl.MaxWorkers = 2
	cfg.Embeddings.Provider = "static"
	cfg.Embeddings.EmbeddingModel = "static-test"
	cfg.Search.RerankEnabled = false
	return cfg
}

func TestNewIndexer_RunsFullCycleAndPersistsVectorIndex(t *testing.T) {
	ctx := context.Background()
	server := testSite(t)
	cfg := testEngineConfig(server)
	cacheDir := t.TempDir()

	idx, err := NewIndexer(ctx, cfg, cacheDir)
	require.NoError(t, err)
	defer idx.Close()

	report, err := idx.Orchestrator.Run(ctx, false, false)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Fetched)
	assert.Greater(t, report.ChunksAdded, 0)

	stats, err := LoadStats(cacheDir)
	require.NoError(t, err)
	assert.Equal(t, stats.ChunkCount, stats.VectorCount)
	assert.Greater(t, stats.ChunkCount, 0)
}

func TestNewSearcher_FindsIndexedContentAfterIndexerRun(t *testing.T) {
	ctx := context.Background()
	server := testSite(t)
	cfg := testEngineConfig(server)
	cacheDir := t.TempDir()

	idx, err := NewIndexer(ctx, cfg, cacheDir)
	require.NoError(t, err)
	_, err = idx.Orchestrator.Run(ctx, false, false)
	require.NoError(t, err)
	require.NoError(t, idx.Close())

	searcher, err := NewSearcher(ctx, cfg, cacheDir)
	require.NoError(t, err)
	defer searcher.Close()

	results, err := searcher.Search.Search(ctx, "installing the command line tool", 2, true)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Contains(t, results[0].URL, "/a")
}

func TestNewSearcher_EmptyCacheDirReturnsEmptyResults(t *testing.T) {
	ctx := context.Background()
	cfg := config.New()
	cfg.Embeddings.Provider = "static"

	searcher, err := NewSearcher(ctx, cfg, t.TempDir())
	require.NoError(t, err)
	defer searcher.Close()

	results, err := searcher.Search.Search(ctx, "anything at all", 5, false)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRunCheck_ReportsErrorWhenNoIndexBuilt(t *testing.T) {
	_, err := RunCheck(t.TempDir())
	assert.Error(t, err)
}

func TestRunCheck_PassesAfterFullIndexerRun(t *testing.T) {
	ctx := context.Background()
	server := testSite(t)
	cfg := testEngineConfig(server)
	cacheDir := t.TempDir()

	idx, err := NewIndexer(ctx, cfg, cacheDir)
	require.NoError(t, err)
	_, err = idx.Orchestrator.Run(ctx, false, false)
	require.NoError(t, err)
	require.NoError(t, idx.Close())

	result, err := RunCheck(cacheDir)
	require.NoError(t, err)
	assert.Empty(t, result.Issues)
}
