package embedding

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/kusari/internal/config"
)

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func dist(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}

func TestMockEmbedder(t *testing.T) {
	ctx := context.Background()
	e := NewMockEmbedder(32)
	a, err := e.Embed(ctx, "2+2=4")
	require.NoError(t, err)
	b, err := e.Embed(ctx, "2+2=4")
	require.NoError(t, err)
	c, err := e.Embed(ctx, "The sky is blue")
	require.NoError(t, err)

	assert.Len(t, a, 32)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.InDelta(t, 1.0, norm(a), 1e-5)
	assert.Equal(t, 32, e.Dimensions())

	batch, err := e.EmbedBatch(ctx, []string{"2+2=4", "The sky is blue"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{a, c}, batch)
}

func TestHashingEmbedder_SharedTokensAreCloser(t *testing.T) {
	ctx := context.Background()
	e := NewHashingEmbedder(256)
	q, _ := e.Embed(ctx, "the quick brown fox")
	near, _ := e.Embed(ctx, "the quick brown dog")
	far, _ := e.Embed(ctx, "integral of x squared")

	assert.InDelta(t, 1.0, norm(q), 1e-5)
	assert.Less(t, dist(q, near), dist(q, far))
}

func TestHashingEmbedder_EmptyText(t *testing.T) {
	e := NewHashingEmbedder(8)
	v, err := e.Embed(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, make([]float32, 8), v)
}

func TestEmbedEach_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewMockEmbedder(4).EmbedBatch(ctx, []string{"a"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNew_Providers(t *testing.T) {
	for _, provider := range []string{"hashing", "mock"} {
		t.Run(provider, func(t *testing.T) {
			e, err := New(config.EmbeddingConfig{Provider: provider, Dimensions: 12, CacheSize: 4})
			require.NoError(t, err)
			defer e.Close()
			assert.Equal(t, 12, e.Dimensions())
			v, err := e.Embed(context.Background(), "hello")
			require.NoError(t, err)
			assert.Len(t, v, 12)
		})
	}

	_, err := New(config.EmbeddingConfig{Provider: "unknown", Dimensions: 4})
	assert.Error(t, err)
}

func BenchmarkMockEmbedder_Embed(b *testing.B) {
	e := NewMockEmbedder(384)
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = e.Embed(ctx, "benchmark query text for embedding")
	}
}

func BenchmarkHashingEmbedder_Embed(b *testing.B) {
	e := NewHashingEmbedder(384)
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = e.Embed(ctx, "find the derivative of x^3 + 2x")
	}
}
