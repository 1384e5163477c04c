package indexer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChunker_Chunk(t *testing.T) {
	c := NewChunker(3, 1)
	got := c.Chunk("one two  three\nfour five six seven")
	assert.Equal(t, []string{"one two three", "three four five", "five six seven"}, got)
}

func TestChunker_ShortTextIsOneChunk(t *testing.T) {
	assert.Equal(t, []string{"a b"}, NewChunker(5, 1).Chunk("  a   b "))
}

func TestChunker_ChunkEmpty(t *testing.T) {
	assert.Nil(t, NewChunker(5, 1).Chunk("   \n\t  "))
}

func TestSplitLines(t *testing.T) {
	text := "2+2=4\n\n  The sky is blue  \r\n\t\n3+5=8"
	assert.Equal(t, []string{"2+2=4", "The sky is blue", "3+5=8"}, SplitLines(text))
	assert.Nil(t, SplitLines(" \n \n"))
}

func TestFilter(t *testing.T) {
	f, err := NewFilter([]string{"*.txt", "notes/**/*.md"}, []string{"**/draft*"})
	assert.NoError(t, err)
	assert.True(t, f.Match("a.txt"))
	assert.False(t, f.Match("sub/a.txt"))
	assert.True(t, f.Match("notes/x/y.md"))
	assert.False(t, f.Match("draft.txt"))
	assert.True(t, f.Recursive())

	flat, err := NewFilter([]string{"*.txt"}, nil)
	assert.NoError(t, err)
	assert.False(t, flat.Recursive())

	_, err = NewFilter([]string{"[a-"}, nil)
	var pe *PatternError
	assert.ErrorAs(t, err, &pe)
}
