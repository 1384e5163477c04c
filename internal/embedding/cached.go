package embedding

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/kusari/internal/digest"
	"github.com/hyperjump/kusari/pkg/utils"
)

// CachedEmbedder wraps an Embedder with an in-memory LRU and an optional persistent cache.
type CachedEmbedder struct {
	inner       Embedder
	fingerprint string
	lru         *EmbeddingCache
	persistent  *BoltCache
	logger      *zap.Logger
}

// CachedOption configures a CachedEmbedder.
type CachedOption func(*CachedEmbedder)

// WithPersistentCache adds a bbolt-backed second level. The CachedEmbedder closes it.
func WithPersistentCache(c *BoltCache) CachedOption {
	return func(e *CachedEmbedder) { e.persistent = c }
}

// WithCacheLogger sets the logger used for persistent cache failures.
func WithCacheLogger(l *zap.Logger) CachedOption {
	return func(e *CachedEmbedder) { e.logger = l }
}

// NewCachedEmbedder wraps inner. fingerprint identifies the provider and model so that
// entries from a different configuration are never reused.
func NewCachedEmbedder(inner Embedder, fingerprint string, capacity int, opts ...CachedOption) *CachedEmbedder {
	e := &CachedEmbedder{
		inner:       inner,
		fingerprint: fingerprint,
		lru:         NewEmbeddingCache(capacity),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = utils.LoggerOrNop(e.logger)
	return e
}

func (e *CachedEmbedder) key(text string) string {
	return fmt.Sprintf("%s/%d/%s", e.fingerprint, e.inner.Dimensions(), digest.ContentHash(text))
}

func (e *CachedEmbedder) lookup(key string) ([]float32, bool) {
	if emb, ok := e.lru.Get(key); ok {
		return emb, true
	}
	if e.persistent == nil {
		return nil, false
	}
	emb, ok, err := e.persistent.Get(key)
	if err != nil {
		e.logger.Warn("embedding cache read failed", zap.Error(err))
		return nil, false
	}
	if ok {
		e.lru.Set(key, emb)
	}
	return emb, ok
}

func (e *CachedEmbedder) store(key string, emb []float32) {
	e.lru.Set(key, emb)
	if e.persistent == nil {
		return
	}
	if err := e.persistent.Put(key, emb); err != nil {
		e.logger.Warn("embedding cache write failed", zap.Error(err))
	}
}

// Embed returns the cached embedding or computes and caches it.
func (e *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := e.key(text)
	if emb, ok := e.lookup(key); ok {
		return copyVec(emb), nil
	}
	emb, err := e.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	e.store(key, copyVec(emb))
	return emb, nil
}

// EmbedBatch serves hits from the cache and sends only the misses to the inner embedder, in one call.
func (e *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	keys := make([]string, len(texts))
	var missIdx []int
	var missTexts []string
	for i, text := range texts {
		keys[i] = e.key(text)
		if emb, ok := e.lookup(keys[i]); ok {
			out[i] = copyVec(emb)
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}
	if len(missTexts) == 0 {
		return out, nil
	}
	embs, err := e.inner.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(embs) != len(missTexts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(embs), len(missTexts))
	}
	for j, i := range missIdx {
		out[i] = embs[j]
		e.store(keys[i], copyVec(embs[j]))
	}
	return out, nil
}

// Dimensions returns the inner embedder's dimension.
func (e *CachedEmbedder) Dimensions() int {
	return e.inner.Dimensions()
}

// Stats returns the in-memory cache counters.
func (e *CachedEmbedder) Stats() CacheStats {
	return e.lru.Stats()
}

// Close closes the inner embedder and the persistent cache.
func (e *CachedEmbedder) Close() error {
	st := e.lru.Stats()
	e.logger.Debug("embedding cache",
		zap.String("provider", e.fingerprint),
		zap.Int("entries", st.Entries),
		zap.Uint64("hits", st.Hits),
		zap.Uint64("misses", st.Misses))
	err := e.inner.Close()
	if e.persistent != nil {
		if cerr := e.persistent.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func copyVec(v []float32) []float32 {
	return append([]float32(nil), v...)
}
