package store

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/kusari/internal/digest"
	"github.com/hyperjump/kusari/internal/models"
	"github.com/hyperjump/kusari/internal/vector"
)

// Insert embeds and stores text under the smallest unused id. If the same text is already
// stored, it returns that item's id with an error matching ErrDuplicateItem and changes nothing.
// An empty source is labelled item_<id>. A failed insert leaves the records unchanged.
func (s *Store) Insert(ctx context.Context, text, source string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureConsistentLocked(ctx); err != nil {
		return 0, err
	}

	hash := digest.ContentHash(text)
	if id, ok := s.hashes[hash]; ok {
		s.logger.Debug("skipping duplicate", zap.Int("existing_id", id), zap.String("source", source))
		return id, fmt.Errorf("%w: same content as item %d", models.ErrDuplicateItem, id)
	}

	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return 0, fmt.Errorf("failed to embed text: %w", err)
	}
	if err := s.prepareDimensionLocked(len(vec)); err != nil {
		return 0, err
	}

	id := s.ids.next()
	if source == "" {
		source = fmt.Sprintf("item_%d", id)
	}
	it := models.Item{ID: id, SourceLabel: source, TextExcerpt: s.excerpt(text), ContentHash: hash}
	if err := s.vectors.Write(id, vec); err != nil {
		return 0, err
	}
	slots := s.index.Size()
	if err := s.index.Add(ctx, []int{id}, [][]float32{vec}); err != nil {
		s.discardVectorsLocked([]int{id})
		return 0, fmt.Errorf("failed to index vector: %w", err)
	}
	s.addRecordLocked(it)
	if err := s.persistLocked(ctx); err != nil {
		s.rollbackLocked([]int{id}, slots)
		return 0, err
	}
	s.logger.Debug("item stored", zap.Int("id", id), zap.String("source", source))
	s.notifyAdded(ctx, []models.Item{it})
	return id, nil
}

// InsertBatch stores every text that is new to the store and to the batch so far.
// Duplicates are reported as skipped outcomes, not errors. New texts are embedded with one
// EmbedBatch call, added to the index with one Add call, and given ids in batch order.
// An empty source labels each item batch_<id>. A failed batch stores nothing.
func (s *Store) InsertBatch(ctx context.Context, texts []string, source string) ([]models.BatchOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureConsistentLocked(ctx); err != nil {
		return nil, err
	}

	outcomes := make([]models.BatchOutcome, len(texts))
	seen := make(map[string]int, len(texts))
	dupOf := make(map[int]int)
	var (
		fresh     []string
		freshPos  []int
		freshHash []string
	)
	for i, text := range texts {
		outcomes[i].Text = text
		hash := digest.ContentHash(text)
		if id, ok := s.hashes[hash]; ok {
			outcomes[i].ID, outcomes[i].Skipped = id, true
			continue
		}
		if first, ok := seen[hash]; ok {
			outcomes[i].Skipped = true
			dupOf[i] = first
			continue
		}
		seen[hash] = i
		fresh = append(fresh, text)
		freshPos = append(freshPos, i)
		freshHash = append(freshHash, hash)
	}
	if len(fresh) == 0 {
		s.logger.Debug("batch has no new items", zap.Int("texts", len(texts)))
		return outcomes, nil
	}

	vecs, err := s.embedder.EmbedBatch(ctx, fresh)
	if err != nil {
		return nil, fmt.Errorf("failed to embed batch: %w", err)
	}
	if len(vecs) != len(fresh) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), len(fresh))
	}
	for _, v := range vecs {
		if len(v) != len(vecs[0]) {
			return nil, &models.DimensionMismatchError{Expected: len(vecs[0]), Actual: len(v)}
		}
	}
	if err := s.prepareDimensionLocked(len(vecs[0])); err != nil {
		return nil, err
	}

	ids := make([]int, len(fresh))
	items := make([]models.Item, len(fresh))
	for j := range fresh {
		id := s.ids.next()
		s.ids.add(id)
		ids[j] = id
		label := source
		if label == "" {
			label = fmt.Sprintf("batch_%d", id)
		}
		items[j] = models.Item{ID: id, SourceLabel: label, TextExcerpt: s.excerpt(fresh[j]), ContentHash: freshHash[j]}
	}
	for j, id := range ids {
		if err := s.vectors.Write(id, vecs[j]); err != nil {
			s.freeIDsLocked(ids)
			s.discardVectorsLocked(ids[:j])
			return nil, err
		}
	}
	slots := s.index.Size()
	if err := s.index.Add(ctx, ids, vecs); err != nil {
		s.freeIDsLocked(ids)
		s.discardVectorsLocked(ids)
		return nil, fmt.Errorf("failed to index vectors: %w", err)
	}
	for _, it := range items {
		s.addRecordLocked(it)
	}
	if err := s.persistLocked(ctx); err != nil {
		s.rollbackLocked(ids, slots)
		return nil, err
	}
	for j, it := range items {
		outcomes[freshPos[j]].ID = it.ID
	}
	for i, first := range dupOf {
		outcomes[i].ID = outcomes[first].ID
	}

	s.logger.Debug("batch stored", zap.Int("texts", len(texts)), zap.Int("inserted", len(items)))
	s.notifyAdded(ctx, items)
	return outcomes, nil
}

// prepareDimensionLocked fixes the dimension on an empty store and checks it otherwise.
func (s *Store) prepareDimensionLocked(n int) error {
	if n == 0 {
		return fmt.Errorf("embedder returned an empty vector")
	}
	if len(s.items) == 0 {
		if s.index == nil {
			idx, err := vector.NewFlatIndex(n, vector.WithCompression(s.compression))
			if err != nil {
				return err
			}
			s.index = idx
			return nil
		}
		return s.index.Reset(n)
	}
	if d := s.index.Dimension(); n != d {
		return &models.DimensionMismatchError{Expected: d, Actual: n}
	}
	return nil
}

// rollbackLocked undoes an insert of ids whose persist failed and truncates the index back to
// slots entries. The metadata file may already hold the new records, so the next change
// rebuilds and rewrites both files.
func (s *Store) rollbackLocked(ids []int, slots int) {
	for _, id := range ids {
		s.removeRecordLocked(id)
	}
	if err := s.index.Truncate(slots); err != nil {
		s.logger.Warn("failed to roll back index", zap.Error(err))
	}
	s.discardVectorsLocked(ids)
	s.needsRebuild = true
}

func (s *Store) freeIDsLocked(ids []int) {
	for _, id := range ids {
		s.ids.remove(id)
	}
}

func (s *Store) discardVectorsLocked(ids []int) {
	for _, id := range ids {
		if err := s.vectors.Remove(id); err != nil {
			s.logger.Warn("failed to remove vector file", zap.Int("id", id), zap.Error(err))
		}
	}
}
