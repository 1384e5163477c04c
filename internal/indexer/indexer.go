// Package indexer turns files and directories into stored items.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"github.com/hyperjump/kusari/internal/extract"
	"github.com/hyperjump/kusari/internal/models"
	"github.com/hyperjump/kusari/pkg/utils"
)

// Inserter is the part of the vector store the indexer writes to.
type Inserter interface {
	Insert(ctx context.Context, text, source string) (int, error)
	InsertBatch(ctx context.Context, texts []string, source string) ([]models.BatchOutcome, error)
}

// FileResult is the outcome of storing one whole file.
type FileResult struct {
	Path      string `json:"path"`
	ID        int    `json:"id"`
	Duplicate bool   `json:"duplicate,omitempty"`
	// Chunks is set instead of ID when the file was split into several items.
	Chunks []models.BatchOutcome `json:"chunks,omitempty"`
}

// BatchResult is the outcome of storing one batch file.
type BatchResult struct {
	Path     string                `json:"path"`
	Outcomes []models.BatchOutcome `json:"outcomes"`
	Err      error                 `json:"-"`
}

// Counts returns how many lines were inserted and how many were skipped as duplicates.
func (r BatchResult) Counts() (inserted, skipped int) {
	for _, o := range r.Outcomes {
		switch {
		case o.Skipped:
			skipped++
		case o.Inserted():
			inserted++
		}
	}
	return inserted, skipped
}

// Indexer reads files into the store.
type Indexer struct {
	store     Inserter
	extractor *extract.Extractor
	chunker   *Chunker
	filter    *Filter
	logger    *zap.Logger
}

// Option configures an Indexer.
type Option func(*Indexer)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) Option {
	return func(idx *Indexer) { idx.logger = l }
}

// WithExtractor replaces the default extractor.
func WithExtractor(e *extract.Extractor) Option {
	return func(idx *Indexer) { idx.extractor = e }
}

// WithChunking splits whole files longer than words into overlapping chunks.
// Zero words keeps files whole.
func WithChunking(words, overlap int) Option {
	return func(idx *Indexer) {
		if words > 0 {
			idx.chunker = NewChunker(words, overlap)
		} else {
			idx.chunker = nil
		}
	}
}

// WithFilter sets the patterns used by IndexDirectory.
func WithFilter(f *Filter) Option {
	return func(idx *Indexer) { idx.filter = f }
}

// NewIndexer creates an indexer writing to store. Directories default to top-level *.txt files.
func NewIndexer(store Inserter, opts ...Option) *Indexer {
	idx := &Indexer{
		store:     store,
		extractor: extract.NewExtractor(extract.WithPlainFallback()),
		filter:    &Filter{includes: []string{"*.txt"}},
	}
	for _, opt := range opts {
		opt(idx)
	}
	idx.logger = utils.LoggerOrNop(idx.logger)
	return idx
}

// IndexFile stores the whole content of path as one item labelled with the file's base name.
// Already stored content is reported as a duplicate, not an error.
func (idx *Indexer) IndexFile(ctx context.Context, path string) (FileResult, error) {
	res := FileResult{Path: path}
	text, err := idx.read(path)
	if err != nil {
		return res, err
	}
	label := filepath.Base(path)

	if idx.chunker != nil {
		if chunks := idx.chunker.Chunk(text); len(chunks) > 1 {
			outcomes, err := idx.store.InsertBatch(ctx, chunks, label)
			if err != nil {
				return res, fmt.Errorf("store %s: %w", path, err)
			}
			res.Chunks = outcomes
			idx.logger.Debug("file stored in chunks", zap.String("path", path), zap.Int("chunks", len(chunks)))
			return res, nil
		}
	}

	id, err := idx.store.Insert(ctx, text, label)
	switch {
	case errors.Is(err, models.ErrDuplicateItem):
		res.ID, res.Duplicate = id, true
		idx.logger.Debug("file already stored", zap.String("path", path), zap.Int("id", id))
		return res, nil
	case err != nil:
		return res, fmt.Errorf("store %s: %w", path, err)
	}
	res.ID = id
	idx.logger.Debug("file stored", zap.String("path", path), zap.Int("id", id))
	return res, nil
}

// IndexBatchFile stores each trimmed non-blank line of path as its own item.
// A file with no lines yields an empty result.
func (idx *Indexer) IndexBatchFile(ctx context.Context, path string) (BatchResult, error) {
	res := BatchResult{Path: path}
	text, err := idx.read(path)
	if err != nil {
		return res, err
	}
	lines := SplitLines(text)
	if len(lines) == 0 {
		idx.logger.Debug("batch file has no lines", zap.String("path", path))
		return res, nil
	}
	outcomes, err := idx.store.InsertBatch(ctx, lines, "")
	if err != nil {
		return res, fmt.Errorf("store batch %s: %w", path, err)
	}
	res.Outcomes = outcomes
	inserted, skipped := res.Counts()
	idx.logger.Debug("batch file stored", zap.String("path", path),
		zap.Int("inserted", inserted), zap.Int("skipped", skipped))
	return res, nil
}

// IndexDirectory treats every matching file under dir as a batch file, in path order.
// A failing file is recorded in its result and the walk continues.
func (idx *Indexer) IndexDirectory(ctx context.Context, dir string) ([]BatchResult, error) {
	files, err := idx.Files(dir)
	if err != nil {
		return nil, err
	}
	results := make([]BatchResult, 0, len(files))
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res, err := idx.IndexBatchFile(ctx, path)
		if err != nil {
			idx.logger.Warn("failed to store batch file", zap.String("path", path), zap.Error(err))
			res.Err = err
		}
		results = append(results, res)
	}
	return results, nil
}

// Files lists the regular files under dir accepted by the filter, sorted.
func (idx *Indexer) Files(dir string) ([]string, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absDir)
	if err != nil {
		return nil, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", absDir)
	}
	recursive := idx.filter.Recursive()
	var files []string
	err = filepath.WalkDir(absDir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(absDir, path)
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path == absDir {
				return nil
			}
			if !recursive || idx.filter.Excluded(rel+"/") {
				return filepath.SkipDir
			}
			return nil
		}
		if !idx.filter.Match(rel) {
			return nil
		}
		// Resolve symlinks so only regular files are read.
		if fi, err := os.Stat(path); err != nil || !fi.Mode().IsRegular() {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", absDir, err)
	}
	sort.Strings(files)
	return files, nil
}

func (idx *Indexer) read(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("not a regular file: %s", path)
	}
	text, err := idx.extractor.Extract(path)
	if err != nil {
		return "", fmt.Errorf("extract content: %w", err)
	}
	return text, nil
}
