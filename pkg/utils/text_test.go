package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTruncate(t *testing.T) {
	assert.Equal(t, "hello", Truncate("hello", 10))
	assert.Equal(t, "hello", Truncate("hello", 5))
	assert.Equal(t, "hello...", Truncate("hello world", 5))
	assert.Equal(t, "x", Truncate("x", 0))
}

func TestTruncate_Runes(t *testing.T) {
	assert.Equal(t, "日本...", Truncate("日本語の文", 2))

	long := strings.Repeat("é", 250)
	got := Truncate(long, 200)
	assert.Equal(t, strings.Repeat("é", 200)+Ellipsis, got)
}
