package vectorindex

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	docerrors "github.com/docrag/docrag/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func vec(dims int, fill float32) []float32 {
	v := make([]float32, dims)
	for i := range v {
		v[i] = fill
	}
	return v
}

func TestStore_AddSearchRoundTrip(t *testing.T) {
	s, err := New(DefaultConfig(4))
	require.NoError(t, err)

	require.NoError(t, s.Add(context.Background(), []string{"a", "b"}, [][]float32{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
	}))

	results, err := s.Search(context.Background(), []float32{1, 0, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ID)
}

func TestStore_AddRejectsDimensionMismatch(t *testing.T) {
	s, err := New(DefaultConfig(4))
	require.NoError(t, err)

	err = s.Add(context.Background(), []string{"a"}, [][]float32{{1, 2}})
	assert.ErrorAs(t, err, &ErrDimensionMismatch{})
}

func TestStore_UpdateExistingIDReplacesVector(t *testing.T) {
	s, err := New(DefaultConfig(4))
	require.NoError(t, err)

	require.NoError(t, s.Add(context.Background(), []string{"a"}, [][]float32{{1, 0, 0, 0}}))
	require.NoError(t, s.Add(context.Background(), []string{"a"}, [][]float32{{0, 1, 0, 0}}))

	assert.Equal(t, 1, s.Count())
	results, err := s.Search(context.Background(), []float32{0, 1, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ID)
}

func TestStore_DeleteIsLazy(t *testing.T) {
	s, err := New(DefaultConfig(4))
	require.NoError(t, err)

	require.NoError(t, s.Add(context.Background(), []string{"a", "b"}, [][]float32{
		{1, 0, 0, 0}, {0, 1, 0, 0},
	}))
	require.NoError(t, s.Delete(context.Background(), []string{"a"}))

	assert.False(t, s.Contains("a"))
	assert.Equal(t, 1, s.Count())
	stats := s.Stats()
	assert.Equal(t, 1, stats.Orphans)
}

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "faiss_index")
	path := filepath.Join(dir, "vectors.hnsw")

	s, err := New(DefaultConfig(4))
	require.NoError(t, err)
	require.NoError(t, s.Add(context.Background(), []string{"a", "b"}, [][]float32{
		{1, 0, 0, 0}, {0, 1, 0, 0},
	}))
	require.NoError(t, s.Save(path))

	_, err = os.Stat(dir + ".sha256")
	require.NoError(t, err)

	loaded, err := New(DefaultConfig(4))
	require.NoError(t, err)
	require.NoError(t, loaded.Load(path))
	assert.Equal(t, 2, loaded.Count())
	assert.True(t, loaded.Contains("a"))
}

func TestStore_LoadDetectsTamperedIndex(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "faiss_index")
	path := filepath.Join(dir, "vectors.hnsw")

	s, err := New(DefaultConfig(4))
	require.NoError(t, err)
	require.NoError(t, s.Add(context.Background(), []string{"a"}, [][]float32{{1, 0, 0, 0}}))
	require.NoError(t, s.Save(path))

	require.NoError(t, os.WriteFile(path, []byte("tampered"), 0o644))

	loaded, err := New(DefaultConfig(4))
	require.NoError(t, err)
	err = loaded.Load(path)
	require.Error(t, err)
	assert.Equal(t, docerrors.ErrCodeIndexTamper, docerrors.GetCode(err))
}

func TestStore_LoadAcceptsMissingChecksumWithWarning(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "faiss_index")
	path := filepath.Join(dir, "vectors.hnsw")

	s, err := New(DefaultConfig(4))
	require.NoError(t, err)
	require.NoError(t, s.Add(context.Background(), []string{"a"}, [][]float32{{1, 0, 0, 0}}))
	require.NoError(t, s.Save(path))
	require.NoError(t, os.Remove(dir+".sha256"))

	loaded, err := New(DefaultConfig(4))
	require.NoError(t, err)
	require.NoError(t, loaded.Load(path))
	assert.Equal(t, 1, loaded.Count())
}

func TestReadDimensions_MissingReturnsZero(t *testing.T) {
	dims, err := ReadDimensions(filepath.Join(t.TempDir(), "missing.hnsw"))
	require.NoError(t, err)
	assert.Equal(t, 0, dims)
}
