package vector

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlatIndex_AddSearch(t *testing.T) {
	idx, err := NewFlatIndex(3)
	require.NoError(t, err)
	ctx := context.Background()

	vecs := [][]float32{
		{1, 0, 0},
		{0.9, 0.1, 0},
		{0, 1, 0},
	}
	require.NoError(t, idx.Add(ctx, []int{0, 1, 2}, vecs))
	assert.Equal(t, 3, idx.Size())

	hits, err := idx.Search(ctx, []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, 0, hits[0].ID)
	assert.Equal(t, 0.0, hits[0].Distance)
	assert.Equal(t, 1, hits[1].ID)
	assert.InDelta(t, 0.02, hits[1].Distance, 1e-6)
}

func TestFlatIndex_SelfMatch(t *testing.T) {
	idx, _ := NewFlatIndex(4)
	ctx := context.Background()
	vecs := [][]float32{
		{0.1, 0.2, 0.3, 0.4},
		{-1, 2, -3, 4},
		{5, 5, 5, 5},
		{0, 0, 0, 1e-3},
	}
	ids := []int{0, 1, 2, 3}
	require.NoError(t, idx.Add(ctx, ids, vecs))
	for i, v := range vecs {
		hits, err := idx.Search(ctx, v, 1)
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, i, hits[0].ID)
		assert.Zero(t, hits[0].Distance)
	}
}

func TestFlatIndex_TiesBreakBySlot(t *testing.T) {
	idx, _ := NewFlatIndex(2)
	ctx := context.Background()
	// Slots 0 and 1 are equidistant from the query; slot 0 carries id 7.
	require.NoError(t, idx.Add(ctx, []int{7, 3}, [][]float32{{1, 0}, {-1, 0}}))
	require.NoError(t, idx.Add(ctx, []int{5}, [][]float32{{0, 1}}))

	hits, err := idx.Search(ctx, []float32{0, 0}, 3)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, []int{0, 1, 2}, []int{hits[0].Slot, hits[1].Slot, hits[2].Slot})
	assert.Equal(t, []int{7, 3, 5}, []int{hits[0].ID, hits[1].ID, hits[2].ID})
}

func TestFlatIndex_KLargerThanSize(t *testing.T) {
	idx, _ := NewFlatIndex(2)
	ctx := context.Background()
	require.NoError(t, idx.Add(ctx, []int{0, 1}, [][]float32{{1, 0}, {0, 1}}))
	hits, err := idx.Search(ctx, []float32{1, 0}, 10)
	require.NoError(t, err)
	assert.Len(t, hits, 2)

	empty, _ := NewFlatIndex(2)
	hits, err = empty.Search(ctx, []float32{1, 0}, 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestFlatIndex_DimensionChecks(t *testing.T) {
	_, err := NewFlatIndex(0)
	assert.Error(t, err)

	idx, _ := NewFlatIndex(3)
	ctx := context.Background()
	err = idx.Add(ctx, []int{0, 1}, [][]float32{{1, 2, 3}, {1, 2}})
	assert.Error(t, err)
	assert.Equal(t, 0, idx.Size(), "failed add must not leave partial slots")

	assert.Error(t, idx.Add(ctx, []int{0}, [][]float32{{1, 2, 3}, {4, 5, 6}}))

	_, err = idx.Search(ctx, []float32{1, 2}, 1)
	assert.Error(t, err)
}

func TestFlatIndex_SaveLoad(t *testing.T) {
	for _, c := range []Compression{CompressionNone, CompressionZSTD, CompressionLZ4} {
		t.Run(c.String(), func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "sub", "index.bin")
			idx, err := NewFlatIndex(3, WithCompression(c))
			require.NoError(t, err)
			ctx := context.Background()
			require.NoError(t, idx.Add(ctx, []int{0, 2, 1}, [][]float32{{1, 0, 0}, {0, 1, 0}, {0.5, 0.5, 0.25}}))
			require.NoError(t, idx.Save(path))

			loaded, err := LoadFlatIndex(path)
			require.NoError(t, err)
			assert.Equal(t, 3, loaded.Dimension())
			assert.Equal(t, 3, loaded.Size())
			assert.Equal(t, []int{0, 2, 1}, loaded.IDs())
			assert.Equal(t, c, loaded.Compression())

			hits, err := loaded.Search(ctx, []float32{0.5, 0.5, 0.25}, 1)
			require.NoError(t, err)
			assert.Equal(t, 1, hits[0].ID)
			assert.Equal(t, 2, hits[0].Slot)
		})
	}
}

func TestFlatIndex_SaveEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.bin")
	idx, _ := NewFlatIndex(768)
	require.NoError(t, idx.Save(path))
	loaded, err := LoadFlatIndex(path)
	require.NoError(t, err)
	assert.Equal(t, 768, loaded.Dimension())
	assert.Equal(t, 0, loaded.Size())
}

func TestLoadFlatIndex_Missing(t *testing.T) {
	_, err := LoadFlatIndex(filepath.Join(t.TempDir(), "nope.bin"))
	assert.ErrorIs(t, err, ErrIndexNotFound)
}

func TestLoadFlatIndex_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.bin")
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0644))
	_, err := LoadFlatIndex(path)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrIndexNotFound)
}

func TestFlatIndex_Reset(t *testing.T) {
	idx, err := NewFlatIndex(2)
	require.NoError(t, err)
	require.NoError(t, idx.Add(context.Background(), []int{0}, [][]float32{{1, 2}}))

	require.NoError(t, idx.Reset(3))
	assert.Equal(t, 0, idx.Size())
	assert.Equal(t, 3, idx.Dimension())
	assert.Error(t, idx.Reset(0))
}

func TestFlatIndex_Truncate(t *testing.T) {
	ctx := context.Background()
	idx, err := NewFlatIndex(2)
	require.NoError(t, err)
	require.NoError(t, idx.Add(ctx, []int{0, 1}, [][]float32{{0, 0}, {1, 1}}))
	require.NoError(t, idx.Add(ctx, []int{2}, [][]float32{{2, 2}}))

	require.NoError(t, idx.Truncate(2))
	assert.Equal(t, []int{0, 1}, idx.IDs())
	hits, err := idx.Search(ctx, []float32{2, 2}, 3)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, 1, hits[0].ID)

	require.NoError(t, idx.Add(ctx, []int{5}, [][]float32{{3, 3}}))
	assert.Equal(t, []int{0, 1, 5}, idx.IDs())

	assert.Error(t, idx.Truncate(4))
	assert.Error(t, idx.Truncate(-1))
}
