package utils

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeL2(t *testing.T) {
	x := []float32{3, 4}
	NormalizeL2(x)
	assert.InDelta(t, 0.6, x[0], 1e-6)
	assert.InDelta(t, 0.8, x[1], 1e-6)

	var sum float64
	for _, v := range x {
		sum += float64(v * v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-6)
}

func TestNormalizeL2_Zero(t *testing.T) {
	x := []float32{0, 0, 0}
	NormalizeL2(x)
	assert.Equal(t, []float32{0, 0, 0}, x)
}
