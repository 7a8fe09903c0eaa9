// Package contextualizer generates a short situating prefix for each chunk
// before it's embedded, improving retrieval recall on chunks whose own text
// is ambiguous out of context (a lone code sample, a bare table row). Prefix
// generation is idempotent and content-hash cached, so re-running over
// unchanged pages never re-calls the generator.
package contextualizer

import (
	"context"
	"fmt"
	"strings"
)

// Generator produces a 1-2 sentence context string situating a chunk
// within its parent page. An empty return value (with a nil error) means
// "no context to add," not a failure.
type Generator interface {
	// Generate returns the context prefix for a single chunk.
	Generate(ctx context.Context, headingPath []string, pageContext, content string) (string, error)

	// Available reports whether the generator is currently usable.
	Available(ctx context.Context) bool

	// ModelName identifies the model or strategy in use, for metadata/debugging.
	ModelName() string

	// Close releases any held resources.
	Close() error
}

// PatternGenerator derives context from structural metadata already on
// hand (heading path, page context) rather than calling a model. It's
// always available and is the fallback when no LLM generator is wired.
type PatternGenerator struct{}

// NewPatternGenerator returns a PatternGenerator.
func NewPatternGenerator() *PatternGenerator { return &PatternGenerator{} }

func (p *PatternGenerator) Generate(_ context.Context, headingPath []string, pageContext, _ string) (string, error) {
	var parts []string
	if pageContext != "" {
		parts = append(parts, pageContext)
	}
	if len(headingPath) > 0 {
		parts = append(parts, fmt.Sprintf("Section: %s", strings.Join(headingPath, " > ")))
	}
	if len(parts) == 0 {
		return "", nil
	}
	return strings.Join(parts, ". ") + ".", nil
}

func (p *PatternGenerator) Available(context.Context) bool { return true }
func (p *PatternGenerator) ModelName() string               { return "pattern-based" }
func (p *PatternGenerator) Close() error                     { return nil }

// HybridGenerator prefers an LLM generator when available, falling back to
// pattern-based context on error or unavailability.
type HybridGenerator struct {
	llm     Generator // nil disables the LLM path entirely
	pattern *PatternGenerator
}

// NewHybridGenerator returns a HybridGenerator. If llm is nil, only
// pattern-based generation is used.
func NewHybridGenerator(llm Generator) *HybridGenerator {
	return &HybridGenerator{llm: llm, pattern: NewPatternGenerator()}
}

func (h *HybridGenerator) Generate(ctx context.Context, headingPath []string, pageContext, content string) (string, error) {
	if h.llm != nil && h.llm.Available(ctx) {
		if generated, err := h.llm.Generate(ctx, headingPath, pageContext, content); err == nil && generated != "" {
			return generated, nil
		}
	}
	return h.pattern.Generate(ctx, headingPath, pageContext, content)
}

func (h *HybridGenerator) Available(ctx context.Context) bool {
	return h.pattern.Available(ctx) || (h.llm != nil && h.llm.Available(ctx))
}

func (h *HybridGenerator) ModelName() string {
	if h.llm != nil {
		return h.llm.ModelName() + "+pattern"
	}
	return h.pattern.ModelName()
}

func (h *HybridGenerator) Close() error {
	if h.llm != nil {
		return h.llm.Close()
	}
	return nil
}
