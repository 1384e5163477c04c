package extract

import (
	"fmt"
	"strings"

	"github.com/lu4p/cat"
)

// readWithCat handles formats cat detects from content: .odt and .rtf.
func readWithCat(content []byte) (string, error) {
	text, err := cat.FromBytes(content)
	if err != nil {
		return "", fmt.Errorf("extract document: %w", err)
	}
	return strings.TrimSpace(text), nil
}
