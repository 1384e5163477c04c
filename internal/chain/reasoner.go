// Package chain runs the residual chain walk: starting from a query embedding, it repeatedly
// finds the nearest stored item, subtracts that item's embedding, and continues from the
// remainder until the remainder is small, starts growing, or the step bound is reached.
package chain

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/kusari/internal/embedding"
	"github.com/hyperjump/kusari/internal/models"
	"github.com/hyperjump/kusari/internal/vector"
	"github.com/hyperjump/kusari/pkg/utils"
)

// Searcher finds the stored items nearest to a vector.
type Searcher interface {
	SearchVector(ctx context.Context, vec []float32, topK int) ([]models.SearchResult, error)
}

// Options bounds a walk.
type Options struct {
	MaxIter int
	Tol     float64
}

// DefaultOptions are the library defaults.
var DefaultOptions = Options{MaxIter: 10, Tol: 1e-3}

// Reasoner runs chain walks.
type Reasoner struct {
	embedder embedding.Embedder
	searcher Searcher
	logger   *zap.Logger
}

// Option configures a Reasoner.
type Option func(*Reasoner)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Reasoner) { r.logger = l }
}

// NewReasoner creates a Reasoner.
func NewReasoner(embedder embedding.Embedder, searcher Searcher, opts ...Option) *Reasoner {
	r := &Reasoner{embedder: embedder, searcher: searcher}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = utils.LoggerOrNop(r.logger)
	return r
}

// Run walks from the embedding of query. A step is recorded only when its residual norm is
// at least opts.Tol and not larger than the previous step's; the walk stops at the first
// step that fails either test, when the search finds nothing, or after opts.MaxIter steps.
func (r *Reasoner) Run(ctx context.Context, query string, opts Options) (*models.ChainResult, error) {
	q := models.ChainQuery{Text: query, MaxIter: opts.MaxIter, Tol: opts.Tol}
	if err := q.Validate(); err != nil {
		return nil, err
	}
	res := &models.ChainResult{
		RunID:   uuid.NewString(),
		Query:   query,
		MaxIter: opts.MaxIter,
		Tol:     opts.Tol,
		Steps:   []models.ChainStep{},
		Stop:    models.StopMaxIter,
	}
	log := r.logger.With(zap.String("run_id", res.RunID))

	current, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	prevNorm := -1.0
	for step := 0; step < opts.MaxIter; step++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		hits, err := r.searcher.SearchVector(ctx, current, 1)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", step+1, err)
		}
		if len(hits) == 0 {
			res.Stop = models.StopExhausted
			break
		}
		nearest := hits[0]

		matched, err := r.embedder.Embed(ctx, nearest.TextExcerpt)
		if err != nil {
			return nil, fmt.Errorf("step %d: failed to embed item %d: %w", step+1, nearest.ID, err)
		}
		if len(matched) != len(current) {
			return nil, &models.DimensionMismatchError{Expected: len(current), Actual: len(matched)}
		}
		residual := vector.Sub(current, matched)
		norm := vector.Norm(residual)

		if norm < opts.Tol {
			res.Stop = models.StopConverged
			break
		}
		if prevNorm >= 0 && norm > prevNorm {
			res.Stop = models.StopDiverged
			break
		}
		res.Steps = append(res.Steps, models.ChainStep{
			Step:         step + 1,
			ID:           nearest.ID,
			Distance:     nearest.Distance,
			SourceLabel:  nearest.SourceLabel,
			TextExcerpt:  nearest.TextExcerpt,
			ResidualNorm: norm,
		})
		log.Debug("chain step",
			zap.Int("step", step+1),
			zap.Int("id", nearest.ID),
			zap.Float64("distance", nearest.Distance),
			zap.Float64("residual_norm", norm))
		current = residual
		prevNorm = norm
	}

	log.Debug("chain finished", zap.Int("steps", len(res.Steps)), zap.String("stop", string(res.Stop)))
	return res, nil
}
