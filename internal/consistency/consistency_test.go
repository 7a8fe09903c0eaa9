package consistency

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLexical struct {
	ids       []string
	deleted   []string
	listErr   error
	deleteErr error
}

func (f *fakeLexical) AllIDs() ([]string, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.ids, nil
}

func (f *fakeLexical) Delete(_ context.Context, chunkIDs []string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, chunkIDs...)
	return nil
}

type fakeVector struct {
	ids     []string
	deleted []string
}

func (f *fakeVector) AllIDs() []string { return f.ids }

func (f *fakeVector) Delete(_ context.Context, ids []string) error {
	f.deleted = append(f.deleted, ids...)
	return nil
}

func TestChecker_Check_DetectsOrphansAndGaps(t *testing.T) {
	lex := &fakeLexical{ids: []string{"c1", "c2", "orphan-lex"}}
	vec := &fakeVector{ids: []string{"c1", "orphan-vec"}}
	checker := New(lex, vec)

	result, err := checker.Check([]string{"c1", "c2", "c3"})
	require.NoError(t, err)
	assert.Equal(t, 3, result.Checked)

	var types []Type
	for _, issue := range result.Issues {
		types = append(types, issue.Type)
	}
	assert.Contains(t, types, OrphanLexical)
	assert.Contains(t, types, OrphanVector)
	assert.Contains(t, types, MissingVector) // c2 absent from vector
	assert.Contains(t, types, MissingLexical) // c3 absent from lexical
}

func TestChecker_Check_CleanStateReturnsNoIssues(t *testing.T) {
	lex := &fakeLexical{ids: []string{"c1", "c2"}}
	vec := &fakeVector{ids: []string{"c1", "c2"}}
	checker := New(lex, vec)

	result, err := checker.Check([]string{"c1", "c2"})
	require.NoError(t, err)
	assert.Empty(t, result.Issues)
}

func TestChecker_Check_ToleratesLexicalListError(t *testing.T) {
	lex := &fakeLexical{listErr: errors.New("boom")}
	vec := &fakeVector{ids: []string{"c1"}}
	checker := New(lex, vec)

	result, err := checker.Check([]string{"c1"})
	require.NoError(t, err)
	assert.NotEmpty(t, result.Issues) // c1 reported missing from lexical
}

func TestChecker_Repair_DeletesOrphansAndLogsGaps(t *testing.T) {
	lex := &fakeLexical{}
	vec := &fakeVector{}
	checker := New(lex, vec)

	err := checker.Repair(context.Background(), []Issue{
		{Type: OrphanLexical, ChunkID: "a"},
		{Type: OrphanVector, ChunkID: "b"},
		{Type: MissingVector, ChunkID: "c"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, lex.deleted)
	assert.Equal(t, []string{"b"}, vec.deleted)
}

func TestChecker_QuickCheck(t *testing.T) {
	lex := &fakeLexical{ids: []string{"c1", "c2"}}
	vec := &fakeVector{ids: []string{"c1", "c2"}}
	checker := New(lex, vec)

	assert.True(t, checker.QuickCheck(2))
	assert.False(t, checker.QuickCheck(3))
}
