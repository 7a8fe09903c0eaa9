// Package vectorindex wraps coder/hnsw as an approximate nearest-neighbor
// store over chunk embeddings, with checksum-verified persistence so a
// tampered or partially-written index directory is detected on load rather
// than silently serving bad results.
package vectorindex

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"

	docerrors "github.com/docrag/docrag/internal/errors"
)

// Result is a single nearest-neighbor hit.
type Result struct {
	ID       string
	Distance float32
	Score    float32
}

// ErrDimensionMismatch is returned when a vector's length doesn't match
// the store's configured dimensionality.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("vector dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}

// Config configures a Store.
type Config struct {
	Dimensions int
	Metric     string // "cos" or "l2"
	M          int
	EfSearch   int
}

// DefaultConfig returns sensible HNSW defaults for dimensions.
func DefaultConfig(dimensions int) Config {
	return Config{
		Dimensions: dimensions,
		Metric:     "cos",
		M:          16,
		EfSearch:   20,
	}
}

// Store is an HNSW-backed vector index. Deletes are lazy (mapping removal
// only) to avoid a coder/hnsw issue when the last remaining node in the
// graph is physically deleted; AllIDs/Count/Contains only ever see live
// mappings, so lazily-deleted nodes are invisible to callers.
type Store struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	config Config

	idMap   map[string]uint64
	keyMap  map[uint64]string
	nextKey uint64

	closed bool
}

type metadata struct {
	IDMap   map[string]uint64
	NextKey uint64
	Config  Config
}

// New creates an empty Store.
func New(cfg Config) (*Store, error) {
	if cfg.Metric == "" {
		cfg.Metric = "cos"
	}
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 20
	}

	graph := hnsw.NewGraph[uint64]()
	switch cfg.Metric {
	case "l2":
		graph.Distance = hnsw.EuclideanDistance
	default:
		graph.Distance = hnsw.CosineDistance
	}
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25

	return &Store{
		graph:   graph,
		config:  cfg,
		idMap:   make(map[string]uint64),
		keyMap:  make(map[uint64]string),
		nextKey: 0,
	}, nil
}

// Add inserts or updates vectors keyed by id.
func (s *Store) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	if len(ids) == 0 {
		return nil
	}
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch: %d vs %d", len(ids), len(vectors))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("vector store is closed")
	}

	for _, v := range vectors {
		if len(v) != s.config.Dimensions {
			return ErrDimensionMismatch{Expected: s.config.Dimensions, Got: len(v)}
		}
	}

	for i, id := range ids {
		if existingKey, exists := s.idMap[id]; exists {
			delete(s.keyMap, existingKey)
			delete(s.idMap, id)
		}

		key := s.nextKey
		s.nextKey++

		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		if s.config.Metric == "cos" {
			normalizeInPlace(vec)
		}

		s.graph.Add(hnsw.MakeNode(key, vec))
		s.idMap[id] = key
		s.keyMap[key] = id
	}

	return nil
}

// Search returns the k nearest neighbors to query.
func (s *Store) Search(ctx context.Context, query []float32, k int) ([]*Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("vector store is closed")
	}
	if len(query) != s.config.Dimensions {
		return nil, ErrDimensionMismatch{Expected: s.config.Dimensions, Got: len(query)}
	}
	if s.graph.Len() == 0 {
		return []*Result{}, nil
	}

	q := make([]float32, len(query))
	copy(q, query)
	if s.config.Metric == "cos" {
		normalizeInPlace(q)
	}

	nodes := s.graph.Search(q, k)
	results := make([]*Result, 0, len(nodes))
	for _, node := range nodes {
		id, exists := s.keyMap[node.Key]
		if !exists {
			continue // orphaned (lazily-deleted) node
		}
		distance := s.graph.Distance(q, node.Value)
		results = append(results, &Result{
			ID:       id,
			Distance: distance,
			Score:    distanceToScore(distance, s.config.Metric),
		})
	}
	return results, nil
}

// Delete lazily removes ids from the store.
func (s *Store) Delete(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("vector store is closed")
	}
	for _, id := range ids {
		if key, exists := s.idMap[id]; exists {
			delete(s.keyMap, key)
			delete(s.idMap, id)
		}
	}
	return nil
}

// AllIDs returns every live (non-deleted) vector ID.
func (s *Store) AllIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil
	}
	ids := make([]string, 0, len(s.idMap))
	for id := range s.idMap {
		ids = append(ids, id)
	}
	return ids
}

// Contains reports whether id is present.
func (s *Store) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false
	}
	_, exists := s.idMap[id]
	return exists
}

// Count returns the number of live vectors.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0
	}
	return len(s.idMap)
}

// Stats reports live vs. orphaned (lazily-deleted) graph nodes.
type Stats struct {
	ValidIDs   int
	GraphNodes int
	Orphans    int
}

func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return Stats{}
	}
	valid := len(s.idMap)
	total := s.graph.Len()
	return Stats{ValidIDs: valid, GraphNodes: total, Orphans: total - valid}
}

// Save persists the graph (path) and id-map metadata (path+".meta") via
// write-temp-rename, then writes a checksum sidecar covering both files
// plus every other file in dir, sorted by name.
func (s *Store) Save(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return fmt.Errorf("vector store is closed")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return docerrors.New(docerrors.ErrCodeIndexNotLoaded, "failed to create index directory", err)
	}

	if err := atomicWrite(path, func(f *os.File) error {
		return s.graph.Export(f)
	}); err != nil {
		return docerrors.New(docerrors.ErrCodeIndexNotLoaded, "failed to export hnsw graph", err)
	}

	metaPath := path + ".meta"
	if err := s.saveMetadata(metaPath); err != nil {
		return docerrors.New(docerrors.ErrCodeIndexNotLoaded, "failed to save index metadata", err)
	}

	return WriteChecksum(dir)
}

func atomicWrite(path string, write func(*os.File) error) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

func (s *Store) saveMetadata(path string) error {
	return atomicWrite(path, func(f *os.File) error {
		return gob.NewEncoder(f).Encode(metadata{IDMap: s.idMap, NextKey: s.nextKey, Config: s.config})
	})
}

// Load verifies the directory checksum (warning-only if the sidecar is
// absent, for compatibility with indexes built before checksums were
// introduced), then loads metadata and the HNSW graph from path.
func (s *Store) Load(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("vector store is closed")
	}

	dir := filepath.Dir(path)
	switch err := VerifyChecksum(dir); {
	case err == nil:
	case err == errChecksumMissing:
		slog.Warn("index checksum sidecar missing, skipping tamper check", "dir", dir)
	default:
		return docerrors.New(docerrors.ErrCodeIndexTamper, "vector index checksum mismatch", err)
	}

	metaPath := path + ".meta"
	if err := s.loadMetadata(metaPath); err != nil {
		return docerrors.New(docerrors.ErrCodeIndexNotLoaded, "failed to load index metadata", err)
	}

	f, err := os.Open(path)
	if err != nil {
		return docerrors.New(docerrors.ErrCodeIndexNotLoaded, "failed to open vector index", err)
	}
	defer f.Close()

	if err := s.graph.Import(bufio.NewReader(f)); err != nil {
		return docerrors.New(docerrors.ErrCodeIndexNotLoaded, "failed to import hnsw graph", err)
	}
	return nil
}

func (s *Store) loadMetadata(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var meta metadata
	if err := gob.NewDecoder(f).Decode(&meta); err != nil {
		return err
	}

	s.idMap = meta.IDMap
	s.keyMap = make(map[uint64]string, len(meta.IDMap))
	s.nextKey = meta.NextKey
	s.config = meta.Config
	for id, key := range s.idMap {
		s.keyMap[key] = id
	}
	return nil
}

// Close releases the store. The underlying graph isn't reusable after Close.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.graph = nil
	return nil
}

// ReadDimensions reads Dimensions from an existing store's metadata
// sidecar without loading the full graph; returns 0 if none exists yet.
func ReadDimensions(vectorPath string) (int, error) {
	f, err := os.Open(vectorPath + ".meta")
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	defer f.Close()

	var meta metadata
	if err := gob.NewDecoder(f).Decode(&meta); err != nil {
		return 0, err
	}
	return meta.Config.Dimensions, nil
}

func normalizeInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}

// distanceToScore converts a raw distance to a 0-1 similarity score.
func distanceToScore(distance float32, metric string) float32 {
	switch metric {
	case "l2":
		return 1.0 / (1.0 + distance)
	default:
		// cosine distance ranges 0 (identical) to 2 (opposite)
		return 1.0 - distance/2.0
	}
}
