// Package chunk builds a two-level parent/child chunk tree from a fetched
// HTML page. Parents cover a contiguous document region bounded by
// parent_min/parent_max tokens; each parent subdivides into children bounded
// by child_min/child_max. Every chunk carries the heading path in effect at
// its position in the document, and chunk IDs are deterministic functions of
// (url, position, content hash) so re-chunking unchanged content is a no-op
// for the indexes downstream.
package chunk

import (
	"encoding/json"
	"time"
)

// Metadata carries the frequently-queried chunk attributes plus an
// open-ended extension bag for anything else an extractor or contextualizer
// wants to attach later.
type Metadata struct {
	Section       string
	ContainsCode  bool
	ContainsTable bool
	Position      int
	Extra         map[string]string
}

type jsonMetadata struct {
	Section       string            `json:"section,omitempty"`
	ContainsCode  bool              `json:"contains_code,omitempty"`
	ContainsTable bool              `json:"contains_table,omitempty"`
	Position      int               `json:"position"`
	Extra         map[string]string `json:"extra,omitempty"`
}

// MarshalJSON flattens Metadata's known fields and extension bag into a
// single JSON object.
func (m Metadata) MarshalJSON() ([]byte, error) {
	return json.Marshal(jsonMetadata{
		Section:       m.Section,
		ContainsCode:  m.ContainsCode,
		ContainsTable: m.ContainsTable,
		Position:      m.Position,
		Extra:         m.Extra,
	})
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	var j jsonMetadata
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	m.Section = j.Section
	m.ContainsCode = j.ContainsCode
	m.ContainsTable = j.ContainsTable
	m.Position = j.Position
	m.Extra = j.Extra
	return nil
}

// Parent covers a contiguous document region. Its content is the structural
// aggregation of the children under it plus surrounding heading/boilerplate.
type Parent struct {
	ID      string    `json:"chunk_id"`
	URL     string    `json:"url"`
	LastMod time.Time `json:"lastmod,omitempty"`
	Content string    `json:"content"`

	Metadata Metadata `json:"metadata"`

	// IsParentAsChild is true when this parent has zero children (no
	// subdivision met child_min). It is still indexed directly as a
	// searchable Child so its text is never dropped.
	IsParentAsChild bool `json:"-"`
}

// Child is a searchable leaf chunk. A childless parent is represented as a
// Child too (IsParentAsChild=true, ParentID pointing at its own parent's
// ID), which is already present in the parent store, satisfying the
// every-child-has-a-resolvable-parent invariant.
type Child struct {
	ID       string    `json:"chunk_id"`
	ParentID string    `json:"parent_id"`
	URL      string    `json:"url"`
	LastMod  time.Time `json:"lastmod,omitempty"`

	Content         string `json:"content"`
	OriginalContent string `json:"original_content,omitempty"`

	HeadingPath       []string `json:"heading_path"`
	HeadingPathJoined string   `json:"heading_path_joined"`

	TokenCount      int  `json:"token_count"`
	Position        int  `json:"position"`
	IsParentAsChild bool `json:"is_parent_as_child"`

	Metadata Metadata `json:"metadata"`
}

// Tree is the full chunking result for a single page.
type Tree struct {
	Parents  []*Parent
	Children []*Child
}

// Options configures the child/parent token budgets. Callers typically
// derive this from config.ChunkConfig with ParentMin already resolved via
// Config.ResolvedParentMin().
type Options struct {
	ChildMin       int
	ChildMax       int
	ParentMin      int
	ParentMax      int
	AbsoluteMaxTok int
}
