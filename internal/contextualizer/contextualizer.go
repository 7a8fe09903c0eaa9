package contextualizer

import (
	"context"

	"github.com/docrag/docrag/internal/chunk"
)

// Contextualizer generates and applies context prefixes to a page's
// children, backed by a persisted idempotent cache. It satisfies
// orchestrator.Contextualizer.
type Contextualizer struct {
	generator Generator
	cache     *cache
	saveEvery int
}

// New opens (or creates) the context cache under dir and returns a
// Contextualizer that generates prefixes with generator, checkpointing
// the cache to disk every saveEvery newly generated entries. saveEvery <= 0
// disables interval checkpointing; the cache is always flushed when the
// Contextualizer is closed.
func New(dir string, generator Generator, saveEvery int) (*Contextualizer, error) {
	c, err := openCache(dir)
	if err != nil {
		return nil, err
	}
	return &Contextualizer{generator: generator, cache: c, saveEvery: saveEvery}, nil
}

// Contextualize generates a prefix for each child not already contextualized
// and prepends it to Content, preserving the pre-prefix text in
// OriginalContent. Children whose generator call produces no context (empty
// string, nil error) are left untouched. pageText is passed through as
// generator context for generators that want the whole page, not just the
// heading path; the pattern-based default does not use it.
func (c *Contextualizer) Contextualize(ctx context.Context, pageText string, children []*chunk.Child) error {
	for _, child := range children {
		if child.OriginalContent != "" {
			continue // already contextualized by a prior run
		}

		original := child.Content

		cached, ok := c.cache.get(original)
		if ok {
			if cached != "" {
				child.OriginalContent = original
				child.Content = cached + "\n\n" + original
			}
			continue
		}

		generated, err := c.generator.Generate(ctx, child.HeadingPath, pageText, original)
		if err != nil {
			return err
		}

		dirty := c.cache.put(original, generated)
		if c.saveEvery > 0 && dirty >= c.saveEvery {
			if err := c.cache.save(); err != nil {
				return err
			}
		}

		if generated != "" {
			child.OriginalContent = original
			child.Content = generated + "\n\n" + original
		}
	}

	return nil
}

// Flush persists any pending cache entries that haven't reached a
// saveEvery checkpoint yet. Callers should call this once after the last
// Contextualize call in a run.
func (c *Contextualizer) Flush() error {
	return c.cache.save()
}

// Close releases the generator's resources and flushes the cache.
func (c *Contextualizer) Close() error {
	if err := c.Flush(); err != nil {
		return err
	}
	return c.generator.Close()
}
