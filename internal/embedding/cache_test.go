package embedding

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddingCache_GetSet(t *testing.T) {
	c := NewEmbeddingCache(2)
	v, ok := c.Get("a")
	assert.False(t, ok)
	assert.Nil(t, v)

	c.Set("a", []float32{1, 2, 3})
	v, ok = c.Get("a")
	require.True(t, ok)
	assert.Equal(t, []float32{1, 2, 3}, v)

	c.Set("b", []float32{4, 5})
	c.Set("c", []float32{6}) // evicts a
	_, ok = c.Get("a")
	assert.False(t, ok)
	_, ok = c.Get("b")
	assert.True(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)
	assert.Equal(t, 2, c.Len())
}

func TestEmbeddingCache_GetRefreshesRecency(t *testing.T) {
	c := NewEmbeddingCache(2)
	c.Set("a", []float32{1})
	c.Set("b", []float32{2})
	c.Get("a")
	c.Set("c", []float32{3}) // evicts b

	_, ok := c.Get("a")
	assert.True(t, ok)
	_, ok = c.Get("b")
	assert.False(t, ok)
}

func TestEmbeddingCache_ZeroCapacity(t *testing.T) {
	c := NewEmbeddingCache(0)
	c.Set("a", []float32{1})
	_, ok := c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestEmbeddingCache_Stats(t *testing.T) {
	c := NewEmbeddingCache(4)
	c.Set("a", []float32{1})
	c.Get("a")
	c.Get("a")
	c.Get("missing")

	st := c.Stats()
	assert.Equal(t, 1, st.Entries)
	assert.Equal(t, uint64(2), st.Hits)
	assert.Equal(t, uint64(1), st.Misses)
}
