package indexer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/kusari/internal/embedding"
	"github.com/hyperjump/kusari/internal/storage"
	"github.com/hyperjump/kusari/internal/store"
)

func testStore(t *testing.T) *store.Store {
	t.Helper()
	dir := t.TempDir()
	s, err := store.Open(context.Background(), embedding.NewMockEmbedder(8),
		storage.NewJSONStore(filepath.Join(dir, "problems.json")),
		storage.NewVectorFiles(filepath.Join(dir, "embeddings")),
		filepath.Join(dir, "vectors.index"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestIndexFile(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)
	idx := NewIndexer(s)
	path := writeFile(t, filepath.Join(t.TempDir(), "p1.txt"), "What is 2+2?\n")

	res, err := idx.IndexFile(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 0, res.ID)
	assert.False(t, res.Duplicate)

	it, err := s.Get(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, "p1.txt", it.SourceLabel)
	assert.Equal(t, "What is 2+2?\n", it.TextExcerpt)

	res, err = idx.IndexFile(ctx, path)
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
	assert.Equal(t, 0, res.ID)

	_, err = idx.IndexFile(ctx, filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}

func TestIndexFile_Chunked(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)
	idx := NewIndexer(s, WithChunking(3, 0))
	path := writeFile(t, filepath.Join(t.TempDir(), "long.txt"), "a b c d e f g")

	res, err := idx.IndexFile(ctx, path)
	require.NoError(t, err)
	require.Len(t, res.Chunks, 3)
	items, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, items, 3)
	for _, it := range items {
		assert.Equal(t, "long.txt", it.SourceLabel)
	}
	assert.Equal(t, "g", items[2].TextExcerpt)
}

func TestIndexBatchFile(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)
	idx := NewIndexer(s)
	_, err := s.Insert(ctx, "The sky is blue", "seed.txt")
	require.NoError(t, err)

	path := writeFile(t, filepath.Join(t.TempDir(), "batch.txt"),
		"2+2=4\n\n   The sky is blue \n3+5=8\n2+2=4\n")
	res, err := idx.IndexBatchFile(ctx, path)
	require.NoError(t, err)
	require.Len(t, res.Outcomes, 4)

	inserted, skipped := res.Counts()
	assert.Equal(t, 2, inserted)
	assert.Equal(t, 2, skipped)
	assert.Equal(t, 1, res.Outcomes[0].ID)
	assert.Equal(t, 0, res.Outcomes[1].ID)
	assert.Equal(t, 2, res.Outcomes[2].ID)
	assert.Equal(t, 1, res.Outcomes[3].ID)

	it, err := s.Get(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "batch_2", it.SourceLabel)

	empty := writeFile(t, filepath.Join(t.TempDir(), "empty.txt"), "\n  \n")
	res, err = idx.IndexBatchFile(ctx, empty)
	require.NoError(t, err)
	assert.Empty(t, res.Outcomes)
}

func TestIndexDirectory(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "b.txt"), "3+5=8\n")
	writeFile(t, filepath.Join(dir, "a.txt"), "2+2=4\nThe sky is blue\n")
	writeFile(t, filepath.Join(dir, "notes.md"), "ignored\n")
	writeFile(t, filepath.Join(dir, "sub", "c.txt"), "nested\n")

	results, err := NewIndexer(s).IndexDirectory(ctx, dir)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a.txt", filepath.Base(results[0].Path))
	assert.Equal(t, "b.txt", filepath.Base(results[1].Path))

	items, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "2+2=4", items[0].TextExcerpt)
	assert.Equal(t, "3+5=8", items[2].TextExcerpt)

	f, err := NewFilter([]string{"**/*.txt"}, []string{"sub/"})
	require.NoError(t, err)
	files, err := NewIndexer(s, WithFilter(f)).Files(dir)
	require.NoError(t, err)
	assert.Len(t, files, 2)

	f, err = NewFilter([]string{"**/*.txt"}, nil)
	require.NoError(t, err)
	files, err = NewIndexer(s, WithFilter(f)).Files(dir)
	require.NoError(t, err)
	assert.Len(t, files, 3)
}

func TestIndexDirectory_NotADirectory(t *testing.T) {
	path := writeFile(t, filepath.Join(t.TempDir(), "a.txt"), "x")
	_, err := NewIndexer(testStore(t)).IndexDirectory(context.Background(), path)
	assert.ErrorContains(t, err, "not a directory")
}
