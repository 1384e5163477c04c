// Package store implements the persisted vector store: item records, per-item vectors,
// and the similarity index kept consistent with them.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/hyperjump/kusari/internal/embedding"
	"github.com/hyperjump/kusari/internal/models"
	"github.com/hyperjump/kusari/internal/storage"
	"github.com/hyperjump/kusari/internal/vector"
	"github.com/hyperjump/kusari/pkg/utils"
)

const (
	defaultExcerptLength = 200
	defaultDimension     = 768
	rebuildChunk         = 64
)

// Observer is notified after records are committed. Failures are logged, never propagated.
type Observer interface {
	ItemsAdded(ctx context.Context, items []models.Item) error
	ItemRemoved(ctx context.Context, id int) error
}

// ProgressFunc reports rebuild progress.
type ProgressFunc func(done, total int)

// Store owns the item records, their vectors, and the similarity index.
// All mutations are serialised; reads may run concurrently with each other.
type Store struct {
	meta      storage.MetadataStore
	vectors   *storage.VectorFiles
	embedder  embedding.Embedder
	indexPath string

	compression        vector.Compression
	defaultDimension   int
	excerptLength      int
	rebuildFromVectors bool
	observers          []Observer
	progress           ProgressFunc
	logger             *zap.Logger

	mu           sync.RWMutex
	items        map[int]models.Item
	hashes       map[string]int
	ids          *idSet
	index        vector.Index // nil until an index is persisted
	metaMissing  bool
	needsRebuild bool
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithCompression sets the codec used when the index is saved.
func WithCompression(c vector.Compression) Option {
	return func(s *Store) { s.compression = c }
}

// WithDefaultDimension sets the dimension of the empty index written when the last item is
// removed before any dimension was ever known.
func WithDefaultDimension(d int) Option {
	return func(s *Store) {
		if d > 0 {
			s.defaultDimension = d
		}
	}
}

// WithExcerptLength sets how many runes of the text are kept in the record.
func WithExcerptLength(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.excerptLength = n
		}
	}
}

// WithRebuildFromVectors makes rebuilds read the stored per-item vectors instead of
// re-embedding the excerpts. Items whose vector file is missing are still re-embedded.
func WithRebuildFromVectors(v bool) Option {
	return func(s *Store) { s.rebuildFromVectors = v }
}

// WithObserver registers an observer for committed changes.
func WithObserver(o Observer) Option {
	return func(s *Store) { s.observers = append(s.observers, o) }
}

// WithProgress sets a callback for rebuild progress.
func WithProgress(fn ProgressFunc) Option {
	return func(s *Store) { s.progress = fn }
}

// Open loads the persisted records and index. Missing files mean an empty store.
// If the index does not hold exactly the stored ids, the next mutation rebuilds it first.
func Open(ctx context.Context, embedder embedding.Embedder, meta storage.MetadataStore,
	vectors *storage.VectorFiles, indexPath string, opts ...Option) (*Store, error) {
	s := &Store{
		meta:             meta,
		vectors:          vectors,
		embedder:         embedder,
		indexPath:        indexPath,
		defaultDimension: defaultDimension,
		excerptLength:    defaultExcerptLength,
		items:            make(map[int]models.Item),
		hashes:           make(map[string]int),
		ids:              newIDSet(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = utils.LoggerOrNop(s.logger)

	items, err := meta.Load(ctx)
	switch {
	case errors.Is(err, storage.ErrMetadataNotFound):
		s.metaMissing = true
	case err != nil:
		return nil, fmt.Errorf("failed to load metadata: %w", err)
	}
	for _, it := range items {
		s.addRecordLocked(it)
	}

	idx, err := vector.LoadFlatIndex(indexPath)
	switch {
	case errors.Is(err, vector.ErrIndexNotFound):
	case err != nil:
		return nil, fmt.Errorf("failed to load index: %w", err)
	default:
		s.index = idx
	}

	switch {
	case s.index == nil && len(s.items) > 0:
		s.needsRebuild = true
	case s.index != nil && !s.ids.sameAs(s.index.IDs()):
		s.needsRebuild = true
	}
	if s.needsRebuild {
		s.logger.Warn("index does not match stored items, it will be rebuilt on the next change",
			zap.Int("items", len(s.items)),
			zap.Int("index_size", s.indexSizeLocked()))
	}
	s.logger.Debug("store opened",
		zap.Int("items", len(s.items)),
		zap.Int("dimension", s.dimensionLocked()),
		zap.String("metadata", meta.Location()),
		zap.String("index", indexPath))
	return s, nil
}

// Close releases the metadata backend. The embedder is owned by the caller.
func (s *Store) Close() error {
	return s.meta.Close()
}

// List returns every record in ascending id order.
func (s *Store) List(ctx context.Context) ([]models.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedItemsLocked(), nil
}

// Get returns the record for id, or ErrNotFound.
func (s *Store) Get(ctx context.Context, id int) (models.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	it, ok := s.items[id]
	if !ok {
		return models.Item{}, fmt.Errorf("%w: %d", models.ErrNotFound, id)
	}
	return it, nil
}

// Stats reports the record count, the fixed dimension (0 while empty), and the index size.
func (s *Store) Stats(ctx context.Context) (models.StoreStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return models.StoreStats{
		Items:     len(s.items),
		Dimension: s.dimensionLocked(),
		IndexSize: s.indexSizeLocked(),
	}, nil
}

// Dimension returns the fixed embedding dimension, or 0 when the store is empty.
func (s *Store) Dimension() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dimensionLocked()
}

// Neighbor is an index hit joined with its record.
type Neighbor struct {
	Hit  vector.Hit
	Item models.Item
}

// Nearest returns the k items closest to vec by squared L2 distance.
// It fails with ErrIndexUnavailable when no index was ever persisted and with
// ErrMetadataUnavailable when no records were.
func (s *Store) Nearest(ctx context.Context, vec []float32, k int) ([]Neighbor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.index == nil {
		return nil, models.ErrIndexUnavailable
	}
	if s.metaMissing {
		return nil, models.ErrMetadataUnavailable
	}
	if s.index.Size() == 0 {
		return nil, nil
	}
	if len(vec) != s.index.Dimension() {
		return nil, &models.DimensionMismatchError{Expected: s.index.Dimension(), Actual: len(vec)}
	}
	hits, err := s.index.Search(ctx, vec, k)
	if err != nil {
		return nil, fmt.Errorf("index search: %w", err)
	}
	out := make([]Neighbor, 0, len(hits))
	for _, h := range hits {
		it, ok := s.items[h.ID]
		if !ok {
			return nil, fmt.Errorf("%w: no record for id %d", models.ErrMetadataUnavailable, h.ID)
		}
		out = append(out, Neighbor{Hit: h, Item: it})
	}
	return out, nil
}

func (s *Store) dimensionLocked() int {
	if len(s.items) == 0 || s.index == nil {
		return 0
	}
	return s.index.Dimension()
}

func (s *Store) indexSizeLocked() int {
	if s.index == nil {
		return 0
	}
	return s.index.Size()
}

func (s *Store) sortedItemsLocked() []models.Item {
	out := make([]models.Item, 0, len(s.items))
	for _, it := range s.items {
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) addRecordLocked(it models.Item) {
	s.items[it.ID] = it
	s.hashes[it.ContentHash] = it.ID
	s.ids.add(it.ID)
}

func (s *Store) removeRecordLocked(id int) {
	it := s.items[id]
	delete(s.items, id)
	if s.hashes[it.ContentHash] == id {
		delete(s.hashes, it.ContentHash)
	}
	s.ids.remove(id)
}

func (s *Store) excerpt(text string) string {
	return utils.Truncate(text, s.excerptLength)
}

// persistLocked writes the records and then the index. Vector files are written by the caller.
func (s *Store) persistLocked(ctx context.Context) error {
	if err := s.meta.Save(ctx, s.sortedItemsLocked()); err != nil {
		return fmt.Errorf("failed to save metadata: %w", err)
	}
	s.metaMissing = false
	if err := s.index.Save(s.indexPath); err != nil {
		return fmt.Errorf("failed to save index: %w", err)
	}
	return nil
}

func (s *Store) notifyAdded(ctx context.Context, items []models.Item) {
	for _, o := range s.observers {
		if err := o.ItemsAdded(ctx, items); err != nil {
			s.logger.Warn("observer failed", zap.Error(err))
		}
	}
}

func (s *Store) notifyRemoved(ctx context.Context, id int) {
	for _, o := range s.observers {
		if err := o.ItemRemoved(ctx, id); err != nil {
			s.logger.Warn("observer failed", zap.Int("id", id), zap.Error(err))
		}
	}
}
