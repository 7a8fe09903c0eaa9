package contextualizer

import (
	"context"
	"testing"

	"github.com/docrag/docrag/internal/chunk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingGenerator struct {
	calls int
	fixed string
	err   error
}

func (g *countingGenerator) Generate(_ context.Context, _ []string, _ string, _ string) (string, error) {
	g.calls++
	if g.err != nil {
		return "", g.err
	}
	return g.fixed, nil
}

func (g *countingGenerator) Available(context.Context) bool { return true }
func (g *countingGenerator) ModelName() string               { return "counting-test" }
func (g *countingGenerator) Close() error                     { return nil }

func TestContextualizer_AppliesPrefixAndPreservesOriginal(t *testing.T) {
	gen := &countingGenerator{fixed: "This section explains X."}
	ctxer, err := New(t.TempDir(), gen, 0)
	require.NoError(t, err)

	children := []*chunk.Child{
		{ID: "c1", Content: "raw body text", HeadingPath: []string{"Intro"}},
	}

	err = ctxer.Contextualize(context.Background(), "page text", children)
	require.NoError(t, err)

	assert.Equal(t, "raw body text", children[0].OriginalContent)
	assert.Equal(t, "This section explains X.\n\nraw body text", children[0].Content)
	assert.Equal(t, 1, gen.calls)
}

func TestContextualizer_SkipsAlreadyContextualizedChildren(t *testing.T) {
	gen := &countingGenerator{fixed: "ctx"}
	ctxer, err := New(t.TempDir(), gen, 0)
	require.NoError(t, err)

	children := []*chunk.Child{
		{ID: "c1", Content: "prefix\n\nbody", OriginalContent: "body"},
	}

	err = ctxer.Contextualize(context.Background(), "page text", children)
	require.NoError(t, err)
	assert.Equal(t, 0, gen.calls)
}

func TestContextualizer_CacheHitAvoidsSecondGeneratorCall(t *testing.T) {
	gen := &countingGenerator{fixed: "ctx"}
	dir := t.TempDir()
	ctxer, err := New(dir, gen, 0)
	require.NoError(t, err)

	first := []*chunk.Child{{ID: "c1", Content: "same body"}}
	require.NoError(t, ctxer.Contextualize(context.Background(), "", first))
	assert.Equal(t, 1, gen.calls)

	second := []*chunk.Child{{ID: "c2", Content: "same body"}}
	require.NoError(t, ctxer.Contextualize(context.Background(), "", second))
	assert.Equal(t, 1, gen.calls, "identical content should hit the cache, not regenerate")
	assert.Equal(t, "ctx\n\nsame body", second[0].Content)
}

func TestContextualizer_EmptyGenerationLeavesContentUnchanged(t *testing.T) {
	gen := &countingGenerator{fixed: ""}
	ctxer, err := New(t.TempDir(), gen, 0)
	require.NoError(t, err)

	children := []*chunk.Child{{ID: "c1", Content: "body"}}
	require.NoError(t, ctxer.Contextualize(context.Background(), "", children))

	assert.Equal(t, "body", children[0].Content)
	assert.Empty(t, children[0].OriginalContent)
}

func TestContextualizer_PersistsCacheAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	gen1 := &countingGenerator{fixed: "ctx"}
	ctxer1, err := New(dir, gen1, 0)
	require.NoError(t, err)

	children := []*chunk.Child{{ID: "c1", Content: "durable body"}}
	require.NoError(t, ctxer1.Contextualize(context.Background(), "", children))
	require.NoError(t, ctxer1.Flush())

	gen2 := &countingGenerator{fixed: "should not be called"}
	ctxer2, err := New(dir, gen2, 0)
	require.NoError(t, err)

	more := []*chunk.Child{{ID: "c2", Content: "durable body"}}
	require.NoError(t, ctxer2.Contextualize(context.Background(), "", more))

	assert.Equal(t, 0, gen2.calls)
	assert.Equal(t, "ctx\n\ndurable body", more[0].Content)
}

func TestContextualizer_PropagatesGeneratorError(t *testing.T) {
	gen := &countingGenerator{err: assert.AnError}
	ctxer, err := New(t.TempDir(), gen, 0)
	require.NoError(t, err)

	children := []*chunk.Child{{ID: "c1", Content: "body"}}
	err = ctxer.Contextualize(context.Background(), "", children)
	assert.Error(t, err)
}

func TestPatternGenerator_CombinesPageContextAndHeadingPath(t *testing.T) {
	g := NewPatternGenerator()
	out, err := g.Generate(context.Background(), []string{"Guides", "Install"}, "File: docs/install.md", "body")
	require.NoError(t, err)
	assert.Contains(t, out, "docs/install.md")
	assert.Contains(t, out, "Guides > Install")
}

func TestPatternGenerator_EmptyInputsReturnEmpty(t *testing.T) {
	g := NewPatternGenerator()
	out, err := g.Generate(context.Background(), nil, "", "body")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestHybridGenerator_FallsBackToPatternOnLLMError(t *testing.T) {
	failing := &countingGenerator{err: assert.AnError}
	h := NewHybridGenerator(failing)

	out, err := h.Generate(context.Background(), []string{"Intro"}, "", "body")
	require.NoError(t, err)
	assert.Contains(t, out, "Intro")
	assert.Equal(t, 1, failing.calls)
}

func TestHybridGenerator_NilLLMUsesPatternOnly(t *testing.T) {
	h := NewHybridGenerator(nil)
	assert.True(t, h.Available(context.Background()))
	assert.Equal(t, "pattern-based", h.ModelName())
}
