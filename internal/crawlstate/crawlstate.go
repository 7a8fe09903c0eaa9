// Package crawlstate tracks discovered/indexed/failed URLs across runs and
// derives the resume/expand/refresh/quarantine signals that the indexing
// orchestrator uses to decide what a run should do. It is a single
// JSON record persisted to crawl_state.json, protected by an advisory file
// lock so a concurrently invoked CLI run can't corrupt it mid-write.
package crawlstate

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	docerrors "github.com/docrag/docrag/internal/errors"
)

// FailureRecord tracks retries for a single URL.
type FailureRecord struct {
	FailureCount int       `json:"failure_count"`
	FirstError   string    `json:"first_error"`
	LastError    string    `json:"last_error"`
	LastAttempt  time.Time `json:"last_attempt"`
}

// State is the persisted crawl-state record.
type State struct {
	DiscoveredURLs []string                 `json:"discovered_urls"`
	IndexedURLs    []string                 `json:"indexed_urls"`
	FailedURLs     map[string]*FailureRecord `json:"failed_urls"`
	CrawlComplete  bool                     `json:"crawl_complete"`
	MaxPagesLimit  int                      `json:"max_pages_limit"`

	// Build metadata used by needsUpdate(); carried here since it's what
	// every resume/refresh decision in the orchestrator is keyed off of.
	IndexVersion       int       `json:"index_version"`
	EmbeddingModel     string    `json:"embedding_model"`
	LastUpdate         time.Time `json:"last_update"`
	UpdateCheckHours   int       `json:"update_check_interval_hours"`
}

// New returns an empty State.
func New() *State {
	return &State{
		FailedURLs: make(map[string]*FailureRecord),
	}
}

// Store persists State to path, guarded by an advisory lock on
// path+".lock" so concurrent CLI invocations serialize their writes.
type Store struct {
	path string
	lock *flock.Flock
}

// Open returns a Store bound to path (typically "<cache_dir>/crawl_state.json").
func Open(path string) *Store {
	return &Store{path: path, lock: flock.New(path + ".lock")}
}

// Load reads the persisted state. A missing file returns a fresh, empty
// State rather than an error — the very first run of a site has no prior
// state to load.
func (s *Store) Load() (*State, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return New(), nil
	}
	if err != nil {
		return nil, docerrors.CacheError("failed to read crawl state", err)
	}
	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, docerrors.CacheError("failed to parse crawl state", err)
	}
	if state.FailedURLs == nil {
		state.FailedURLs = make(map[string]*FailureRecord)
	}
	return &state, nil
}

// Save writes state atomically under the advisory lock. Called after
// every phase transition and after batches of failures.
func (s *Store) Save(state *State) error {
	if err := s.lock.Lock(); err != nil {
		return docerrors.CacheError("failed to acquire crawl state lock", err)
	}
	defer s.lock.Unlock()

	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return docerrors.CacheError("failed to create cache directory", err)
		}
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return docerrors.CacheError("failed to marshal crawl state", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return docerrors.CacheError("failed to write crawl state", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return docerrors.CacheError("failed to rename crawl state", err)
	}
	return nil
}

// RecordFailure increments the failure counter for url and records the
// error, returning whether url's failure count has now reached maxRetries
// and it should be quarantined.
func (state *State) RecordFailure(url string, err error, maxRetries int) (quarantined bool) {
	rec, ok := state.FailedURLs[url]
	if !ok {
		rec = &FailureRecord{FirstError: err.Error()}
		state.FailedURLs[url] = rec
	}
	rec.FailureCount++
	rec.LastError = err.Error()
	rec.LastAttempt = time.Now()
	return rec.FailureCount >= maxRetries
}

// ClearFailure drops url from the failure table on a successful fetch.
func (state *State) ClearFailure(url string) {
	delete(state.FailedURLs, url)
}

// IsQuarantined reports whether url's failure count has reached maxRetries
// and it should be skipped by future crawls.
func (state *State) IsQuarantined(url string, maxRetries int) bool {
	rec, ok := state.FailedURLs[url]
	return ok && rec.FailureCount >= maxRetries
}

// Signals bundles the decisions the orchestrator reads off State.
type Signals struct {
	Resume  bool
	Expand  bool
	Refresh bool

	// EmbedOnly is true when the embedding model changed but nothing else
	// calls for a refresh (version match, max_pages unchanged, TTL not
	// elapsed). The orchestrator treats this as a narrower action than
	// Refresh: skip Discover/Fetch/Chunk and re-embed persisted chunks
	// into a fresh vector index without touching the network.
	EmbedOnly bool
}

// DeriveSignals computes resume/expand/refresh from prior state and the
// current run's configuration. forceRefresh and forceRebuild are
// caller-supplied flags (CLI/config);
// newMaxPages/currentEmbeddingModel/currentVersion/updateCheckHours come
// from the run's configuration.
func (state *State) DeriveSignals(forceRefresh, forceRebuild bool, newMaxPages int, currentEmbeddingModel string, currentVersion int, updateCheckHours int) Signals {
	if forceRebuild {
		return Signals{}
	}

	resume := len(state.IndexedURLs) > 0
	expand := state.MaxPagesLimit > 0 && newMaxPages > state.MaxPagesLimit

	embeddingChanged := state.EmbeddingModel != "" && state.EmbeddingModel != currentEmbeddingModel
	otherReason := forceRefresh ||
		state.LastUpdate.IsZero() ||
		(state.IndexVersion != 0 && state.IndexVersion != currentVersion) ||
		newMaxPages > state.MaxPagesLimit ||
		(updateCheckHours > 0 && time.Since(state.LastUpdate) >= time.Duration(updateCheckHours)*time.Hour)

	refresh := otherReason
	embedOnly := !otherReason && embeddingChanged

	return Signals{Resume: resume, Expand: expand, Refresh: refresh, EmbedOnly: embedOnly}
}

// needsUpdate reports true if there's no prior metadata, the persisted
// version/model differ from current, max_pages grew, or the update-check
// interval has elapsed.
func (state *State) needsUpdate(currentEmbeddingModel string, currentVersion, updateCheckHours, newMaxPages int) bool {
	if state.LastUpdate.IsZero() {
		return true
	}
	if state.IndexVersion != 0 && state.IndexVersion != currentVersion {
		return true
	}
	if state.EmbeddingModel != "" && state.EmbeddingModel != currentEmbeddingModel {
		return true
	}
	if newMaxPages > state.MaxPagesLimit {
		return true
	}
	if updateCheckHours > 0 && time.Since(state.LastUpdate) >= time.Duration(updateCheckHours)*time.Hour {
		return true
	}
	return false
}
