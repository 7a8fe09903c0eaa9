// Package chunkstore persists the searchable chunk set to the three JSON
// files that make up the on-disk layout's chunk tables: chunks.json (child
// chunks, the searchable set), parent_chunks.json (parent chunks, keyed by
// ID for O(1) parent-context lookups), and metadata.json (build summary).
// The chunk store is the single source of truth the vector index, lexical
// index, and consistency checker are all built from or verified against.
package chunkstore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	docerrors "github.com/docrag/docrag/internal/errors"
)

const (
	chunksFileName       = "chunks.json"
	parentChunksFileName = "parent_chunks.json"
	metadataFileName     = "metadata.json"
)

// ChunkRecord is the persisted form of a single searchable (child) chunk.
// Field names mirror the "{page_content, metadata}" shape consumers expect
// while still carrying the identifiers downstream stores key on.
type ChunkRecord struct {
	ID                string          `json:"chunk_id"`
	ParentID          string          `json:"parent_id"`
	URL               string          `json:"url"`
	LastMod           time.Time       `json:"lastmod,omitempty"`
	PageContent       string          `json:"page_content"`
	OriginalContent   string          `json:"original_content,omitempty"`
	HeadingPath       []string        `json:"heading_path,omitempty"`
	HeadingPathJoined string          `json:"heading_path_joined,omitempty"`
	Metadata          json.RawMessage `json:"metadata"`
}

// ParentRecord is the persisted form of a single parent chunk.
type ParentRecord struct {
	Content  string          `json:"content"`
	Metadata json.RawMessage `json:"metadata"`
	URL      string          `json:"url"`
	LastMod  time.Time       `json:"lastmod,omitempty"`
}

// Metadata is the top-level build summary written to metadata.json.
type Metadata struct {
	Version             int       `json:"version"`
	LastUpdate          time.Time `json:"last_update"`
	NumChunks           int       `json:"num_chunks"`
	EmbeddingModel      string    `json:"embedding_model"`
	ContextualRetrieval bool      `json:"contextual_retrieval,omitempty"`
}

// Store reads and writes the chunk tables rooted at dir.
type Store struct {
	dir string
}

// Open returns a Store rooted at dir. dir is created on first write.
func Open(dir string) *Store {
	return &Store{dir: dir}
}

// LoadChunks returns the persisted child-chunk list, or an empty slice if
// chunks.json doesn't exist yet.
func (s *Store) LoadChunks() ([]ChunkRecord, error) {
	var chunks []ChunkRecord
	ok, err := readJSON(filepath.Join(s.dir, chunksFileName), &chunks)
	if err != nil {
		return nil, docerrors.New(docerrors.ErrCodeStoreCorrupt, "failed to read chunks.json", err)
	}
	if !ok {
		return []ChunkRecord{}, nil
	}
	return chunks, nil
}

// SaveChunks atomically overwrites chunks.json.
func (s *Store) SaveChunks(chunks []ChunkRecord) error {
	if chunks == nil {
		chunks = []ChunkRecord{}
	}
	return s.writeJSON(chunksFileName, chunks)
}

// LoadParents returns the persisted parent-chunk map, or an empty map if
// parent_chunks.json doesn't exist yet.
func (s *Store) LoadParents() (map[string]ParentRecord, error) {
	parents := make(map[string]ParentRecord)
	ok, err := readJSON(filepath.Join(s.dir, parentChunksFileName), &parents)
	if err != nil {
		return nil, docerrors.New(docerrors.ErrCodeStoreCorrupt, "failed to read parent_chunks.json", err)
	}
	if !ok {
		return map[string]ParentRecord{}, nil
	}
	return parents, nil
}

// SaveParents atomically overwrites parent_chunks.json.
func (s *Store) SaveParents(parents map[string]ParentRecord) error {
	if parents == nil {
		parents = map[string]ParentRecord{}
	}
	return s.writeJSON(parentChunksFileName, parents)
}

// LoadMetadata returns the persisted build metadata, or the zero value if
// metadata.json doesn't exist yet.
func (s *Store) LoadMetadata() (Metadata, error) {
	var meta Metadata
	ok, err := readJSON(filepath.Join(s.dir, metadataFileName), &meta)
	if err != nil {
		return Metadata{}, docerrors.New(docerrors.ErrCodeStoreCorrupt, "failed to read metadata.json", err)
	}
	if !ok {
		return Metadata{}, nil
	}
	return meta, nil
}

// SaveMetadata atomically overwrites metadata.json.
func (s *Store) SaveMetadata(meta Metadata) error {
	return s.writeJSON(metadataFileName, meta)
}

func readJSON(path string, v interface{}) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, err
	}
	return true, nil
}

// writeJSON marshals v and writes it to dir/name via write-temp-rename.
func (s *Store) writeJSON(name string, v interface{}) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return docerrors.CacheError("failed to create chunk store directory", err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return docerrors.CacheError("failed to marshal "+name, err)
	}
	path := filepath.Join(s.dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return docerrors.CacheError("failed to write "+name, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return docerrors.CacheError("failed to rename "+name, err)
	}
	return nil
}
