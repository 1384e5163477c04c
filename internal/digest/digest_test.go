package digest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContentHash(t *testing.T) {
	h := ContentHash("2+2=4")
	assert.Len(t, h, Size)
	assert.Equal(t, h, ContentHash("2+2=4"), "same text, same hash")
	assert.NotEqual(t, h, ContentHash("2+2=4\n"), "whitespace is significant")
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", ContentHash(""))
}
