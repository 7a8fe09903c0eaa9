package chunk

import (
	"time"

	docerrors "github.com/docrag/docrag/internal/errors"
)

// Chunker builds a parent/child chunk tree from a fetched page's HTML,
// honoring the configured token budgets.
type Chunker struct {
	opts Options
}

// New constructs a Chunker from resolved token budgets.
func New(opts Options) *Chunker {
	return &Chunker{opts: opts}
}

// Chunk walks htmlContent's DOM and produces the parent/child tree for url.
// lastMod is stamped onto every resulting chunk for cache/refresh bookkeeping.
func (c *Chunker) Chunk(url, htmlContent string, lastMod time.Time) (*Tree, error) {
	blocks, err := parseBlocks(htmlContent)
	if err != nil {
		return nil, docerrors.Wrap(docerrors.ErrCodeChunkFailed, err)
	}
	if len(blocks) == 0 {
		return &Tree{}, nil
	}

	regions := c.groupIntoParentRegions(blocks)

	tree := &Tree{}
	parentPos := 0
	childPos := 0

	for _, region := range regions {
		parentContent := joinBlocks(region)
		parentHeading := region[0].headingPath
		parentID := generateChunkID("parent", url, parentPos, parentContent)
		parentMeta := Metadata{
			Section:       headingPathJoined(parentHeading),
			ContainsCode:  containsKind(region, blockCode),
			ContainsTable: containsKind(region, blockTable),
			Position:      parentPos,
		}
		parent := &Parent{
			ID:       parentID,
			URL:      url,
			LastMod:  lastMod,
			Content:  parentContent,
			Metadata: parentMeta,
		}

		childGroups := c.groupIntoChildren(region)
		if len(childGroups) == 0 {
			parent.IsParentAsChild = true
			tree.Parents = append(tree.Parents, parent)
			tree.Children = append(tree.Children, &Child{
				ID:                parentID,
				ParentID:          parentID,
				URL:               url,
				LastMod:           lastMod,
				Content:           parentContent,
				HeadingPath:       parentHeading,
				HeadingPathJoined: headingPathJoined(parentHeading),
				TokenCount:        estimateTokens(parentContent),
				Position:          childPos,
				IsParentAsChild:   true,
				Metadata:          parentMeta,
			})
			childPos++
			parentPos++
			continue
		}

		tree.Parents = append(tree.Parents, parent)
		for _, group := range childGroups {
			content := joinBlocks(group)
			heading := group[0].headingPath
			childID := generateChunkID("child", url, childPos, content)
			tree.Children = append(tree.Children, &Child{
				ID:                childID,
				ParentID:          parentID,
				URL:               url,
				LastMod:           lastMod,
				Content:           content,
				HeadingPath:       heading,
				HeadingPathJoined: headingPathJoined(heading),
				TokenCount:        estimateTokens(content),
				Position:          childPos,
				Metadata: Metadata{
					Section:       headingPathJoined(heading),
					ContainsCode:  containsKind(group, blockCode),
					ContainsTable: containsKind(group, blockTable),
					Position:      childPos,
				},
			})
			childPos++
		}
		parentPos++
	}

	return tree, nil
}

// groupIntoParentRegions packs blocks into contiguous regions of at most
// parent_max tokens (at least parent_min where possible); a region is
// force-flushed at absolute_max even short of parent_min.
func (c *Chunker) groupIntoParentRegions(blocks []block) [][]block {
	blocks = expandOversizedBlocks(blocks, c.opts.AbsoluteMaxTok)

	var regions [][]block
	var current []block
	currentTokens := 0

	flush := func() {
		if len(current) > 0 {
			regions = append(regions, current)
			current = nil
			currentTokens = 0
		}
	}

	for _, b := range blocks {
		bTokens := estimateTokens(b.text)
		if currentTokens > 0 && currentTokens+bTokens > c.opts.AbsoluteMaxTok {
			flush()
		} else if currentTokens > 0 && currentTokens+bTokens > c.opts.ParentMax && currentTokens >= c.opts.ParentMin {
			flush()
		}
		current = append(current, b)
		currentTokens += bTokens
	}
	flush()

	return regions
}

// groupIntoChildren subdivides a parent region into child-sized groups. If
// the region as a whole falls short of child_min, it returns nil — the
// caller then emits the parent directly as a parent-as-child.
func (c *Chunker) groupIntoChildren(region []block) [][]block {
	if blockGroupTokens(region) < c.opts.ChildMin {
		return nil
	}

	var groups [][]block
	var current []block
	currentTokens := 0

	flush := func() {
		if len(current) > 0 {
			groups = append(groups, current)
			current = nil
			currentTokens = 0
		}
	}

	for _, b := range region {
		bTokens := estimateTokens(b.text)
		if currentTokens > 0 && currentTokens+bTokens > c.opts.AbsoluteMaxTok {
			flush()
		} else if currentTokens > 0 && currentTokens+bTokens > c.opts.ChildMax && currentTokens >= c.opts.ChildMin {
			flush()
		}
		current = append(current, b)
		currentTokens += bTokens
	}
	flush()

	return c.mergeUndersizedTrailingGroup(groups)
}

// mergeUndersizedTrailingGroup folds a trailing group that fell under
// child_min into its predecessor, when doing so doesn't exceed absolute_max.
func (c *Chunker) mergeUndersizedTrailingGroup(groups [][]block) [][]block {
	if len(groups) < 2 {
		return groups
	}

	last := groups[len(groups)-1]
	if blockGroupTokens(last) >= c.opts.ChildMin {
		return groups
	}

	prev := groups[len(groups)-2]
	if blockGroupTokens(prev)+blockGroupTokens(last) > c.opts.AbsoluteMaxTok {
		return groups
	}

	merged := make([]block, 0, len(prev)+len(last))
	merged = append(merged, prev...)
	merged = append(merged, last...)

	out := make([][]block, 0, len(groups)-1)
	out = append(out, groups[:len(groups)-2]...)
	out = append(out, merged)
	return out
}
