// Package orchestrator drives the four-phase crawl-and-index cycle
// (Discover, Fetch, Chunk, Index-build), gated by the signals the crawl
// state store derives from the previous run. It is the only writer of
// the chunk store, vector index, lexical index, and crawl state; fetch
// workers only return results.
package orchestrator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/url"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/docrag/docrag/internal/cache"
	"github.com/docrag/docrag/internal/chunk"
	"github.com/docrag/docrag/internal/chunkstore"
	"github.com/docrag/docrag/internal/config"
	"github.com/docrag/docrag/internal/consistency"
	"github.com/docrag/docrag/internal/crawler"
	"github.com/docrag/docrag/internal/crawlstate"
	"github.com/docrag/docrag/internal/embed"
	docerrors "github.com/docrag/docrag/internal/errors"
	"github.com/docrag/docrag/internal/extractor"
	"github.com/docrag/docrag/internal/lexical"
	"github.com/docrag/docrag/internal/vectorindex"
)

const indexVersion = 1

// vectorIndexDir is the directory under the cache root holding the ANN
// graph and its metadata sidecar; the checksum lands next to it as
// vectorIndexDir+".sha256".
const vectorIndexDir = "index/faiss_index"

// RunReport aggregates counters from a single Run, surfaced to the
// caller as the user-visible end-of-phase summary.
type RunReport struct {
	RunID        string
	Fetched      int
	FromCache    int
	Failed       int
	Quarantined  int
	ChunksAdded  int
	ChunksPurged int
	Refreshed    bool
	Rebuilt      bool
}

// Contextualizer is an optional hook. Implementations generate a
// prefix per chunk; nil disables contextualization entirely.
type Contextualizer interface {
	Contextualize(ctx context.Context, pageText string, children []*chunk.Child) error
}

// Orchestrator owns every persistence layer and drives a single
// crawl-and-index run end to end.
type Orchestrator struct {
	cfg      *config.Config
	cacheDir string

	crawl      *crawler.Crawler
	pages      *cache.Cache
	state      *crawlstate.Store
	chunks     *chunkstore.Store
	embedder   embed.Embedder
	contextual Contextualizer

	mu sync.Mutex
}

// New constructs an Orchestrator rooted at cacheDir, wiring a crawler
// against cfg.Crawl and a page cache at cacheDir/pages.
func New(cfg *config.Config, cacheDir string, embedder embed.Embedder, contextual Contextualizer) (*Orchestrator, error) {
	crawlOpts := crawler.Options{
		BaseURL:         cfg.Crawl.BaseURL,
		ManualURLs:      cfg.Crawl.ManualURLs,
		ManualURLsOnly:  cfg.Crawl.ManualURLsOnly,
		MaxCrawlDepth:   cfg.Crawl.MaxCrawlDepth,
		MaxPages:        cfg.Crawl.MaxPages,
		MaxWorkers:      cfg.Crawl.MaxWorkers,
		RateLimitDelay:  cfg.RateLimitDelayDuration(),
		RequestTimeout:  cfg.RequestTimeoutDuration(),
		MaxURLRetries:   cfg.Crawl.MaxURLRetries,
		IncludePatterns: cfg.Crawl.URLIncludeRegex,
		ExcludePatterns: cfg.Crawl.URLExcludeRegex,
	}
	crawl, err := crawler.New(crawlOpts)
	if err != nil {
		return nil, err
	}

	return &Orchestrator{
		cfg:        cfg,
		cacheDir:   cacheDir,
		crawl:      crawl,
		pages:      cache.New(filepath.Join(cacheDir, "pages")),
		state:      crawlstate.Open(filepath.Join(cacheDir, "crawl_state.json")),
		chunks:     chunkstore.Open(cacheDir),
		embedder:   embedder,
		contextual: contextual,
	}, nil
}

// fetchResult is one worker's outcome for a single URL.
type fetchResult struct {
	url       string
	page      *crawler.Page
	fromCache bool
	err       error
}

// Run executes one full crawl-and-index cycle: derive signals from the
// persisted crawl state, then run however much of Discover/Fetch/Chunk/
// Index-build those signals call for.
func (o *Orchestrator) Run(ctx context.Context, forceRefresh, forceRebuild bool) (*RunReport, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	runID := uuid.NewString()
	report := &RunReport{RunID: runID}
	log := slog.With(slog.String("run_id", runID))
	log.Info("starting crawl and index run")
	defer func() { log.Info("finished crawl and index run") }()

	state, err := o.state.Load()
	if err != nil {
		return nil, err
	}

	signals := state.DeriveSignals(forceRefresh, forceRebuild, o.cfg.Crawl.MaxPages,
		o.cfg.Embeddings.EmbeddingModel, indexVersion, o.cfg.Embeddings.UpdateCheckHours)

	if forceRebuild {
		state = crawlstate.New()
	}

	if o.cfg.Crawl.ManualURLsOnly && len(o.cfg.Crawl.ManualURLs) == 0 {
		log.Warn("manual_urls_only set with no manual_urls configured; nothing to do")
		return report, nil
	}

	if signals.EmbedOnly {
		done, err := o.runEmbedOnlyRebuild(ctx, state, report, log)
		if err != nil {
			return nil, err
		}
		if done {
			return report, nil
		}
		// No chunks persisted yet despite the model-mismatch signal —
		// nothing to re-embed, so fall through to a normal build.
		signals.Refresh = true
	}

	// Phase 1 — Discover.
	urls, err := o.discover(ctx, state, signals)
	if err != nil {
		return nil, err
	}

	// Phase 2 — Fetch.
	results := o.fetch(ctx, urls, state, signals, report)

	// Phase 3 — Chunk.
	newChildren, refreshedURLs, err := o.chunkPhase(ctx, results, signals, report)
	if err != nil {
		return nil, err
	}

	// Phase 4 — Index build.
	if err := o.indexBuild(ctx, newChildren, refreshedURLs, report, forceRebuild); err != nil {
		return nil, err
	}

	state.IndexVersion = indexVersion
	state.EmbeddingModel = o.cfg.Embeddings.EmbeddingModel
	state.LastUpdate = time.Now().UTC()
	state.UpdateCheckHours = o.cfg.Embeddings.UpdateCheckHours
	state.CrawlComplete = true
	if err := o.state.Save(state); err != nil {
		return nil, err
	}

	return report, nil
}

// runEmbedOnlyRebuild implements the embedding-model-changed-only row of
// the signal table: no crawling, fetching, or chunking, just a fresh
// vector index re-embedded from the persisted chunk store. Reports false
// if there are no persisted chunks to re-embed, so the caller can fall
// back to a normal build.
func (o *Orchestrator) runEmbedOnlyRebuild(ctx context.Context, state *crawlstate.State, report *RunReport, log *slog.Logger) (bool, error) {
	chunks, err := o.chunks.LoadChunks()
	if err != nil {
		return false, err
	}
	if len(chunks) == 0 {
		return false, nil
	}

	log.Info("embedding model changed; re-embedding persisted chunks, no network activity")
	if err := o.indexBuild(ctx, nil, nil, report, true); err != nil {
		return false, err
	}

	state.EmbeddingModel = o.cfg.Embeddings.EmbeddingModel
	state.LastUpdate = time.Now().UTC()
	if err := o.state.Save(state); err != nil {
		return false, err
	}
	return true, nil
}

// discover runs crawl discovery when no prior complete crawl exists, or the
// signals call for expansion/rebuild/refresh. Empty results are never
// persisted, so a transient outage during discovery can't poison state.
func (o *Orchestrator) discover(ctx context.Context, state *crawlstate.State, signals crawlstate.Signals) ([]crawler.URLRecord, error) {
	needsDiscovery := !state.CrawlComplete || signals.Expand || signals.Refresh || !signals.Resume
	if !needsDiscovery && len(state.DiscoveredURLs) > 0 {
		records := make([]crawler.URLRecord, len(state.DiscoveredURLs))
		for i, u := range state.DiscoveredURLs {
			records[i] = crawler.URLRecord{URL: u}
		}
		return records, nil
	}

	records, err := o.crawl.Discover(ctx)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	urls := make([]string, len(records))
	for i, r := range records {
		urls[i] = r.URL
	}
	state.DiscoveredURLs = urls
	state.MaxPagesLimit = o.cfg.Crawl.MaxPages
	if err := o.state.Save(state); err != nil {
		return nil, err
	}
	return records, nil
}

// fetch runs a bounded worker pool over the discovered URLs, skipping
// quarantined ones, and serializes every crawl-state mutation back on
// the calling goroutine so workers never write state directly.
func (o *Orchestrator) fetch(ctx context.Context, records []crawler.URLRecord, state *crawlstate.State, signals crawlstate.Signals, report *RunReport) []fetchResult {
	indexed := toSet(state.IndexedURLs)
	maxURLs := o.effectiveURLCap(len(indexed))
	jobs := make(chan crawler.URLRecord)
	resultsCh := make(chan fetchResult)

	workers := o.cfg.Crawl.MaxWorkers
	if workers <= 0 {
		workers = 1
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for rec := range jobs {
				resultsCh <- o.fetchOne(ctx, rec, state, signals)
			}
		}()
	}

	go func() {
		defer close(jobs)
		sent := 0
		for _, rec := range records {
			if maxURLs > 0 && sent >= maxURLs {
				break
			}
			if state.IsQuarantined(rec.URL, o.cfg.Crawl.MaxURLRetries) {
				report.Quarantined++
				continue
			}
			if signals.Resume && !signals.Refresh && indexed[rec.URL] {
				continue
			}
			select {
			case jobs <- rec:
				sent++
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(resultsCh)
	}()

	var results []fetchResult
	for res := range resultsCh {
		results = append(results, res)
		o.recordFetchOutcome(state, res, report)
	}
	if err := o.state.Save(state); err != nil {
		slog.Warn("failed to checkpoint crawl state after fetch phase", slog.String("error", err.Error()))
	}
	return results
}

// effectiveURLCap returns the remaining fetch budget this run given how
// many URLs are already indexed from prior runs; 0 means unlimited.
func (o *Orchestrator) effectiveURLCap(alreadyIndexed int) int {
	if o.cfg.Crawl.MaxPages <= 0 {
		return 0
	}
	remaining := o.cfg.Crawl.MaxPages - alreadyIndexed
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (o *Orchestrator) fetchOne(ctx context.Context, rec crawler.URLRecord, state *crawlstate.State, signals crawlstate.Signals) fetchResult {
	var sitemapLastMod *time.Time
	if !rec.LastMod.IsZero() {
		t := rec.LastMod
		sitemapLastMod = &t
	}

	if cached, ok := o.pages.Get(rec.URL); ok {
		valid := cached.Valid(cache.InvalidationInput{
			ForceRefresh:   signals.Refresh,
			SitemapLastMod: sitemapLastMod,
			TTLHours:       o.cfg.Cache.PageTTLHours,
			Now:            time.Now().UTC(),
		})
		if valid {
			return fetchResult{url: rec.URL, fromCache: true, page: &crawler.Page{
				URL: cached.URL, HTML: cached.HTML, LastMod: cached.LastMod, FetchedAt: cached.CachedAt,
			}}
		}
	}

	page, err := o.crawl.Fetch(ctx, rec.URL)
	if err != nil {
		return fetchResult{url: rec.URL, err: err}
	}
	page.LastMod = rec.LastMod

	pageURL, _ := url.Parse(rec.URL)
	extracted, err := extractor.Extract(page.HTML, pageURL)
	if err != nil {
		return fetchResult{url: rec.URL, err: err}
	}
	page.HTML = extracted.HTML

	_ = o.pages.Put(&cache.Record{URL: page.URL, HTML: page.HTML, LastMod: page.LastMod, CachedAt: page.FetchedAt})

	return fetchResult{url: rec.URL, page: page, fromCache: false}
}

func (o *Orchestrator) recordFetchOutcome(state *crawlstate.State, res fetchResult, report *RunReport) {
	if res.err != nil {
		report.Failed++
		state.RecordFailure(res.url, res.err, o.cfg.Crawl.MaxURLRetries)
		return
	}
	if res.fromCache {
		report.FromCache++
	} else {
		report.Fetched++
	}
	state.ClearFailure(res.url)
	if !contains(state.IndexedURLs, res.url) {
		state.IndexedURLs = append(state.IndexedURLs, res.url)
	}
}

// chunkPhase deduplicates fetched pages by content hash, purges stale
// chunks for refreshed URLs, and chunks only the pages that weren't
// served from cache.
func (o *Orchestrator) chunkPhase(ctx context.Context, results []fetchResult, signals crawlstate.Signals, report *RunReport) ([]*chunk.Child, map[string]bool, error) {
	seen := make(map[string]bool)
	var fresh []fetchResult
	for _, res := range results {
		if res.page == nil {
			continue
		}
		sum := sha256.Sum256([]byte(res.page.HTML))
		key := hex.EncodeToString(sum[:])
		if seen[key] {
			continue
		}
		seen[key] = true
		fresh = append(fresh, res)
	}

	refreshedURLs := make(map[string]bool)
	if signals.Refresh {
		for _, res := range fresh {
			if !res.fromCache {
				refreshedURLs[res.url] = true
			}
		}
	}

	existingChunks, err := o.chunks.LoadChunks()
	if err != nil {
		return nil, nil, err
	}
	existingParents, err := o.chunks.LoadParents()
	if err != nil {
		return nil, nil, err
	}

	if len(refreshedURLs) > 0 {
		existingChunks, existingParents, report.ChunksPurged = purgeURLs(existingChunks, existingParents, refreshedURLs)
	}

	opts := chunk.Options{
		ChildMin:       o.cfg.Chunk.ChildMin,
		ChildMax:       o.cfg.Chunk.ChildMax,
		ParentMin:      o.cfg.ResolvedParentMin(),
		ParentMax:      o.cfg.Chunk.ParentMax,
		AbsoluteMaxTok: o.cfg.Chunk.AbsoluteMaxTok,
	}
	chunker := chunk.New(opts)

	var newChildren []*chunk.Child
	for _, res := range fresh {
		if res.fromCache {
			continue // cache hits already have chunks persisted; re-chunking would duplicate them.
		}
		tree, err := chunker.Chunk(res.url, res.page.HTML, res.page.LastMod)
		if err != nil {
			slog.Warn("chunking failed, skipping page", slog.String("url", res.url), slog.String("error", err.Error()))
			continue
		}

		if o.contextual != nil {
			if err := o.contextual.Contextualize(ctx, res.page.HTML, tree.Children); err != nil {
				slog.Warn("contextualization failed, continuing without prefixes", slog.String("url", res.url), slog.String("error", err.Error()))
			}
		}

		for _, p := range tree.Parents {
			metaJSON, _ := json.Marshal(p.Metadata)
			existingParents[p.ID] = chunkstore.ParentRecord{Content: p.Content, Metadata: metaJSON, URL: p.URL, LastMod: p.LastMod}
		}
		for _, c := range tree.Children {
			metaJSON, _ := json.Marshal(c.Metadata)
			existingChunks = append(existingChunks, chunkstore.ChunkRecord{
				ID: c.ID, ParentID: c.ParentID, URL: c.URL, LastMod: c.LastMod,
				PageContent: c.Content, OriginalContent: c.OriginalContent,
				HeadingPath: c.HeadingPath, HeadingPathJoined: c.HeadingPathJoined,
				Metadata: metaJSON,
			})
			newChildren = append(newChildren, c)
		}
	}

	if err := o.chunks.SaveChunks(existingChunks); err != nil {
		return nil, nil, err
	}
	if err := o.chunks.SaveParents(existingParents); err != nil {
		return nil, nil, err
	}

	return newChildren, refreshedURLs, nil
}

// purgeURLs removes every chunk and parent whose URL is in refreshed,
// returning the filtered tables and how many children were dropped.
func purgeURLs(chunks []chunkstore.ChunkRecord, parents map[string]chunkstore.ParentRecord, refreshed map[string]bool) ([]chunkstore.ChunkRecord, map[string]chunkstore.ParentRecord, int) {
	kept := chunks[:0:0]
	purged := 0
	for _, c := range chunks {
		if refreshed[c.URL] {
			purged++
			continue
		}
		kept = append(kept, c)
	}
	for id, p := range parents {
		if refreshed[p.URL] {
			delete(parents, id)
		}
	}
	return kept, parents, purged
}

// indexBuild embeds new chunks, (re)builds the vector index, rebuilds
// the lexical index from the full chunk set, and persists fresh
// metadata. A refresh forces a full vector rebuild since the underlying
// ANN graph cannot cheaply remove entries; forceFullRebuild does the same
// for the embedding-model-changed-only path, where no URLs were refreshed
// but every persisted chunk still needs re-embedding.
func (o *Orchestrator) indexBuild(ctx context.Context, newChildren []*chunk.Child, refreshedURLs map[string]bool, report *RunReport, forceFullRebuild bool) error {
	allChunks, err := o.chunks.LoadChunks()
	if err != nil {
		return err
	}

	// vecDir is the "faiss_index" directory itself; the graph and its
	// metadata sidecar live inside it, with the checksum written next to
	// the directory as vecDir+".sha256".
	vecDir := filepath.Join(o.cacheDir, vectorIndexDir)
	vecPath := filepath.Join(vecDir, "graph")
	fullRebuild := forceFullRebuild || len(refreshedURLs) > 0

	vecStore, err := o.loadOrCreateVectorIndex(vecPath, fullRebuild)
	if err != nil {
		return err
	}
	defer vecStore.Close()

	if fullRebuild {
		if len(refreshedURLs) > 0 {
			report.Refreshed = true
		}
		report.Rebuilt = true
		if err := o.embedAndAdd(ctx, vecStore, allChunks); err != nil {
			return err
		}
	} else if len(newChildren) > 0 {
		report.ChunksAdded = len(newChildren)
		records := make([]chunkstore.ChunkRecord, 0, len(newChildren))
		byID := make(map[string]chunkstore.ChunkRecord, len(allChunks))
		for _, c := range allChunks {
			byID[c.ID] = c
		}
		for _, child := range newChildren {
			records = append(records, byID[child.ID])
		}
		if err := o.embedAndAdd(ctx, vecStore, records); err != nil {
			return err
		}
	}

	if err := vecStore.Save(vecPath); err != nil {
		return err
	}

	docs := make([]lexical.Document, len(allChunks))
	for i, c := range allChunks {
		docs[i] = lexical.Document{ID: c.ID, Content: c.PageContent}
	}
	lexIdx, err := lexical.Rebuild(lexical.DefaultConfig(), docs)
	if err != nil {
		return err
	}
	defer lexIdx.Close()

	checker := consistency.New(lexIdx, vecStore)
	ids := make([]string, len(allChunks))
	for i, c := range allChunks {
		ids[i] = c.ID
	}
	if result, err := checker.Check(ids); err == nil && len(result.Issues) > 0 {
		slog.Warn("post-build consistency check found issues", slog.Int("count", len(result.Issues)))
	}

	return o.chunks.SaveMetadata(chunkstore.Metadata{
		Version:             indexVersion,
		LastUpdate:          time.Now().UTC(),
		NumChunks:           len(allChunks),
		EmbeddingModel:      o.cfg.Embeddings.EmbeddingModel,
		ContextualRetrieval: o.contextual != nil,
	})
}

func (o *Orchestrator) loadOrCreateVectorIndex(vecPath string, forceFresh bool) (*vectorindex.Store, error) {
	dims := o.embedder.Dimensions()
	cfg := vectorindex.DefaultConfig(dims)

	store, err := vectorindex.New(cfg)
	if err != nil {
		return nil, err
	}
	if forceFresh {
		return store, nil
	}
	if err := store.Load(vecPath); err != nil {
		var tamperErr *docerrors.DocError
		if ok := asDocError(err, &tamperErr); ok && tamperErr.Code == docerrors.ErrCodeIndexTamper {
			return nil, err
		}
		// No prior index on disk: start fresh, not an error.
	}
	return store, nil
}

func asDocError(err error, target **docerrors.DocError) bool {
	de, ok := err.(*docerrors.DocError)
	if ok {
		*target = de
	}
	return ok
}

func (o *Orchestrator) embedAndAdd(ctx context.Context, vecStore *vectorindex.Store, records []chunkstore.ChunkRecord) error {
	if len(records) == 0 {
		return nil
	}
	texts := make([]string, len(records))
	ids := make([]string, len(records))
	for i, r := range records {
		texts[i] = r.PageContent
		ids[i] = r.ID
	}
	vectors, err := o.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return docerrors.New(docerrors.ErrCodeEmbeddingFailed, "failed to embed chunks", err)
	}
	return vecStore.Add(ctx, ids, vectors)
}

func toSet(items []string) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, i := range items {
		m[i] = true
	}
	return m
}

func contains(items []string, target string) bool {
	for _, i := range items {
		if i == target {
			return true
		}
	}
	return false
}
