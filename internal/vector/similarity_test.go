package vector

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSquaredL2(t *testing.T) {
	assert.Equal(t, 25.0, SquaredL2([]float32{0, 0}, []float32{3, 4}))
	assert.Equal(t, 0.0, SquaredL2([]float32{1, 2}, []float32{1, 2}))
	assert.True(t, math.IsInf(SquaredL2([]float32{1}, []float32{1, 2}), 1))
}

func TestNormAndSub(t *testing.T) {
	r := Sub([]float32{3, 5}, []float32{0, 1})
	assert.Equal(t, []float32{3, 4}, r)
	assert.Equal(t, 5.0, Norm(r))
	assert.Equal(t, 0.0, Norm(nil))
}

func TestParseCompression(t *testing.T) {
	for in, want := range map[string]Compression{"": CompressionNone, "none": CompressionNone, "ZSTD": CompressionZSTD, "lz4": CompressionLZ4} {
		got, err := ParseCompression(in)
		assert.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseCompression("snappy")
	assert.Error(t, err)
}
