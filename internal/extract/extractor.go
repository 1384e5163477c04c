// Package extract turns document files into plain text for embedding.
package extract

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrUnsupportedFormat is returned for extensions with no registered reader.
var ErrUnsupportedFormat = errors.New("unsupported document format")

// ErrTooLarge is returned when a file exceeds the configured size limit.
var ErrTooLarge = errors.New("document too large")

type readerFunc func(content []byte) (string, error)

var readers = map[string]readerFunc{
	".txt":  readPlain,
	".md":   readPlain,
	".rst":  readPlain,
	".csv":  readPlain,
	".pdf":  readPDF,
	".xlsx": readSpreadsheet,
	".docx": readDOCX,
	".pptx": readPPTX,
	".odp":  readODP,
	".ods":  readODS,
	".odt":  readWithCat,
	".rtf":  readWithCat,
}

// Extractor reads plain text out of supported document files.
type Extractor struct {
	maxBytes     int64
	plainDefault bool
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithMaxBytes rejects files larger than n bytes. Zero disables the check.
func WithMaxBytes(n int64) Option {
	return func(e *Extractor) { e.maxBytes = n }
}

// WithPlainFallback treats unknown extensions as plain text instead of failing.
func WithPlainFallback() Option {
	return func(e *Extractor) { e.plainDefault = true }
}

// NewExtractor returns a new Extractor.
func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extensions lists every extension with a registered reader, sorted.
func Extensions() []string {
	out := make([]string, 0, len(readers))
	for ext := range readers {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// Supported reports whether path has an extension the extractor can read.
func (e *Extractor) Supported(path string) bool {
	if e.plainDefault {
		return true
	}
	_, ok := readers[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Extract reads the file at path and returns its text content.
func (e *Extractor) Extract(path string) (string, error) {
	if e.maxBytes > 0 {
		info, err := os.Stat(path)
		if err != nil {
			return "", fmt.Errorf("stat file: %w", err)
		}
		if info.Size() > e.maxBytes {
			return "", fmt.Errorf("%w: %s is %d bytes, limit %d", ErrTooLarge, path, info.Size(), e.maxBytes)
		}
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	return e.ExtractBytes(content, strings.ToLower(filepath.Ext(path)))
}

// ExtractBytes extracts text from content based on ext, which includes the leading dot.
func (e *Extractor) ExtractBytes(content []byte, ext string) (string, error) {
	read, ok := readers[strings.ToLower(ext)]
	if !ok {
		if ext == "" || e.plainDefault {
			return readPlain(content)
		}
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	return read(content)
}
