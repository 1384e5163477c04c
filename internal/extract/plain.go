package extract

import (
	"strings"
	"unicode/utf8"
)

// readPlain replaces invalid UTF-8 sequences with the replacement character.
func readPlain(content []byte) (string, error) {
	if !utf8.Valid(content) {
		return strings.ToValidUTF8(string(content), "�"), nil
	}
	return string(content), nil
}
