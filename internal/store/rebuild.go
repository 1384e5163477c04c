package store

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/kusari/internal/models"
	"github.com/hyperjump/kusari/internal/vector"
)

// Remove deletes the record and vector file for id, then rebuilds the index from the
// surviving items. Unknown ids yield ErrNotFound.
func (s *Store) Remove(ctx context.Context, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ids.contains(id) {
		return fmt.Errorf("%w: %d", models.ErrNotFound, id)
	}
	if err := s.vectors.Remove(id); err != nil {
		return err
	}
	s.removeRecordLocked(id)
	s.needsRebuild = true
	if err := s.rebuildLocked(ctx); err != nil {
		return fmt.Errorf("item %d removed but index rebuild failed: %w", id, err)
	}
	s.logger.Debug("item removed", zap.Int("id", id), zap.Int("remaining", len(s.items)))
	s.notifyRemoved(ctx, id)
	return nil
}

// Rebuild recreates the index from the stored items in ascending id order.
func (s *Store) Rebuild(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rebuildLocked(ctx)
}

func (s *Store) ensureConsistentLocked(ctx context.Context) error {
	if !s.needsRebuild {
		return nil
	}
	s.logger.Info("rebuilding index before applying change")
	return s.rebuildLocked(ctx)
}

func (s *Store) rebuildLocked(ctx context.Context) error {
	items := s.sortedItemsLocked()
	if len(items) == 0 {
		dim := s.defaultDimension
		if s.index != nil {
			dim = s.index.Dimension()
		}
		idx, err := vector.NewFlatIndex(dim, vector.WithCompression(s.compression))
		if err != nil {
			return err
		}
		s.index = idx
		if err := s.persistLocked(ctx); err != nil {
			return err
		}
		s.needsRebuild = false
		s.logger.Debug("index reset", zap.Int("dimension", dim))
		return nil
	}

	vecs := make([][]float32, len(items))
	var pending []int
	for i, it := range items {
		if !s.rebuildFromVectors {
			pending = append(pending, i)
			continue
		}
		v, err := s.vectors.Read(it.ID)
		if err != nil {
			s.logger.Debug("stored vector unavailable, re-embedding", zap.Int("id", it.ID), zap.Error(err))
			pending = append(pending, i)
			continue
		}
		vecs[i] = v
	}

	done := len(items) - len(pending)
	s.reportProgress(done, len(items))
	for start := 0; start < len(pending); start += rebuildChunk {
		end := min(start+rebuildChunk, len(pending))
		texts := make([]string, 0, end-start)
		for _, i := range pending[start:end] {
			texts = append(texts, items[i].TextExcerpt)
		}
		embs, err := s.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return fmt.Errorf("failed to embed items: %w", err)
		}
		if len(embs) != len(texts) {
			return fmt.Errorf("embedder returned %d vectors for %d texts", len(embs), len(texts))
		}
		for j, i := range pending[start:end] {
			vecs[i] = embs[j]
		}
		done += len(texts)
		s.reportProgress(done, len(items))
	}

	dim := len(vecs[0])
	ids := make([]int, len(items))
	for i, it := range items {
		if len(vecs[i]) != dim {
			return &models.DimensionMismatchError{Expected: dim, Actual: len(vecs[i])}
		}
		ids[i] = it.ID
	}
	idx, err := vector.NewFlatIndex(dim, vector.WithCompression(s.compression))
	if err != nil {
		return err
	}
	if err := idx.Add(ctx, ids, vecs); err != nil {
		return fmt.Errorf("failed to index vectors: %w", err)
	}
	if s.index != nil && s.index.Dimension() != dim {
		s.logger.Info("index dimension changed on rebuild",
			zap.Int("from", s.index.Dimension()), zap.Int("to", dim))
	}

	for _, i := range pending {
		if err := s.vectors.Write(items[i].ID, vecs[i]); err != nil {
			return err
		}
	}
	s.index = idx
	if err := s.persistLocked(ctx); err != nil {
		return err
	}
	s.needsRebuild = false
	s.logger.Debug("index rebuilt",
		zap.Int("items", len(items)),
		zap.Int("reembedded", len(pending)),
		zap.Int("dimension", dim))
	return nil
}

func (s *Store) reportProgress(done, total int) {
	if s.progress != nil {
		s.progress(done, total)
	}
}
