// Package search answers nearest-neighbour queries over the store and joins hits with their records.
package search

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kusari/internal/embedding"
	"github.com/hyperjump/kusari/internal/models"
	"github.com/hyperjump/kusari/internal/store"
	"github.com/hyperjump/kusari/pkg/utils"
)

// Backend is the read side of the store used by searches.
type Backend interface {
	Nearest(ctx context.Context, vec []float32, k int) ([]store.Neighbor, error)
}

// Service runs similarity searches.
type Service struct {
	embedder embedding.Embedder
	backend  Backend
	maxTopK  int
	logger   *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithMaxTopK caps the number of results a single query may ask for.
func WithMaxTopK(n int) Option {
	return func(s *Service) { s.maxTopK = n }
}

// NewService creates a search service.
func NewService(embedder embedding.Embedder, backend Backend, opts ...Option) *Service {
	s := &Service{embedder: embedder, backend: backend}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = utils.LoggerOrNop(s.logger)
	return s
}

// Search returns up to query.TopK results by ascending squared L2 distance.
// A text query is embedded first; a vector query is used as-is.
func (s *Service) Search(ctx context.Context, query models.SearchQuery) ([]models.SearchResult, error) {
	startTime := time.Now()
	if err := ProcessQuery(&query, s.maxTopK); err != nil {
		return nil, err
	}
	vec := query.Vector
	if len(vec) == 0 {
		var err error
		vec, err = s.embedder.Embed(ctx, query.Text)
		if err != nil {
			return nil, fmt.Errorf("embedding failed: %w", err)
		}
	}

	neighbors, err := s.backend.Nearest(ctx, vec, query.TopK)
	if err != nil {
		return nil, err
	}
	results := make([]models.SearchResult, 0, len(neighbors))
	for _, n := range neighbors {
		results = append(results, models.SearchResult{
			ID:          n.Item.ID,
			Distance:    n.Hit.Distance,
			SourceLabel: n.Item.SourceLabel,
			TextExcerpt: n.Item.TextExcerpt,
		})
	}
	s.logger.Debug("search",
		zap.Int("top_k", query.TopK),
		zap.Int("results", len(results)),
		zap.Duration("took", time.Since(startTime)))
	return results, nil
}

// SearchText is Search with a text query.
func (s *Service) SearchText(ctx context.Context, text string, topK int) ([]models.SearchResult, error) {
	return s.Search(ctx, models.SearchQuery{Text: text, TopK: topK})
}

// SearchVector is Search with a vector query.
func (s *Service) SearchVector(ctx context.Context, vec []float32, topK int) ([]models.SearchResult, error) {
	return s.Search(ctx, models.SearchQuery{Vector: vec, TopK: topK})
}
