package vectorindex

import (
	"testing"

	"github.com/sbk2k1/sbk-assistant/internal/model"
	"github.com/stretchr/testify/require"
)

func entry(id string, vec ...float32) Entry {
	return Entry{Chunk: model.Chunk{ID: id, Source: "doc.txt", Text: "text " + id}, Vector: vec}
}

func TestIndexAddChecksDimension(t *testing.T) {
	idx := New(0)
	require.NoError(t, idx.Add(entry("a", 1, 0)))
	require.Equal(t, 2, idx.Dimension)
	require.Error(t, idx.Add(entry("b", 1, 0, 0)))
	require.Error(t, idx.Add(entry("c", 1, 1), entry("d", 1)))
	require.Equal(t, 1, idx.Len())
}

func TestIndexAddCopiesVectors(t *testing.T) {
	idx := New(2)
	vec := []float32{1, 0}
	require.NoError(t, idx.Add(Entry{Chunk: model.Chunk{ID: "a"}, Vector: vec}))
	vec[0] = 0
	require.Equal(t, []float32{1, 0}, idx.Entries[0].Vector)
}

func TestIndexQueryOrdering(t *testing.T) {
	idx := New(2)
	require.NoError(t, idx.Add(
		entry("far", 0, 1),
		entry("near", 1, 0.1),
		entry("mid", 1, 1),
		entry("near-twin", 2, 0.2),
	))
	matches, err := idx.Query([]float32{1, 0}, 3)
	require.NoError(t, err)
	require.Len(t, matches, 3)
	require.Equal(t, "near", matches[0].Chunk.ID)
	require.Equal(t, "near-twin", matches[1].Chunk.ID)
	require.Equal(t, "mid", matches[2].Chunk.ID)
	require.InDelta(t, matches[0].Score, matches[1].Score, 1e-9)
	require.GreaterOrEqual(t, matches[1].Score, matches[2].Score)
}

func TestIndexQueryBounds(t *testing.T) {
	idx := New(2)
	require.NoError(t, idx.Add(entry("a", 1, 0)))
	matches, err := idx.Query([]float32{1, 0}, 10)
	require.NoError(t, err)
	require.Len(t, matches, 1)

	matches, err = idx.Query([]float32{1, 0}, 0)
	require.NoError(t, err)
	require.Empty(t, matches)

	_, err = idx.Query([]float32{1, 0, 0}, 1)
	require.Error(t, err)

	var empty *Index
	matches, err = empty.Query([]float32{1}, 1)
	require.NoError(t, err)
	require.Empty(t, matches)
}

func TestIndexQueryZeroVector(t *testing.T) {
	idx := New(2)
	require.NoError(t, idx.Add(entry("a", 0, 0), entry("b", 1, 0)))
	matches, err := idx.Query([]float32{1, 0}, 2)
	require.NoError(t, err)
	require.Equal(t, "b", matches[0].Chunk.ID)
	require.Equal(t, float64(0), matches[1].Score)
}
