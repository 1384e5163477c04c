package embedding

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/kusari/internal/config"
	"github.com/hyperjump/kusari/pkg/utils"
)

// Option configures New.
type Option func(*factoryOptions)

type factoryOptions struct {
	logger    *zap.Logger
	cachePath string
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *factoryOptions) { o.logger = l }
}

// WithCachePath enables the persistent embedding cache at path.
func WithCachePath(path string) Option {
	return func(o *factoryOptions) { o.cachePath = path }
}

// New builds the configured provider wrapped in a CachedEmbedder.
func New(cfg config.EmbeddingConfig, opts ...Option) (Embedder, error) {
	var o factoryOptions
	for _, opt := range opts {
		opt(&o)
	}
	logger := utils.LoggerOrNop(o.logger)

	var (
		inner       Embedder
		fingerprint string
		persistent  bool
	)
	switch cfg.Provider {
	case "", "hashing":
		inner, fingerprint = NewHashingEmbedder(cfg.Dimensions), "hashing"
	case "mock":
		inner, fingerprint = NewMockEmbedder(cfg.Dimensions), "mock"
	case "onnx":
		e, err := NewONNXEmbedder(ONNXOptions{
			ModelPath:  cfg.ModelPath,
			OutputName: cfg.OutputName,
			Dimensions: cfg.Dimensions,
			MaxTokens:  cfg.MaxTokens,
		})
		if err != nil {
			return nil, err
		}
		inner, fingerprint, persistent = e, "onnx:"+cfg.ModelPath, true
	case "openai":
		e, err := NewOpenAIEmbedder(OpenAIOptions{
			BaseURL:           cfg.BaseURL,
			Model:             cfg.Model,
			APIKeyEnv:         cfg.APIKeyEnv,
			Dimensions:        cfg.Dimensions,
			RequestsPerSecond: cfg.RequestsPerSecond,
			Timeout:           cfg.Timeout,
		})
		if err != nil {
			return nil, err
		}
		inner, fingerprint, persistent = e, "openai:"+cfg.BaseURL+":"+cfg.Model, true
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.Provider)
	}

	cacheOpts := []CachedOption{WithCacheLogger(logger)}
	if persistent && o.cachePath != "" {
		// Another process may hold the file lock; fall back to the in-memory cache.
		bc, err := OpenBoltCache(o.cachePath)
		if err != nil {
			logger.Warn("persistent embedding cache unavailable", zap.String("path", o.cachePath), zap.Error(err))
		} else {
			cacheOpts = append(cacheOpts, WithPersistentCache(bc))
		}
	}
	logger.Debug("embedder ready",
		zap.String("provider", fingerprint),
		zap.Int("dimensions", inner.Dimensions()),
		zap.Bool("persistent_cache", persistent && o.cachePath != ""))
	return NewCachedEmbedder(inner, fingerprint, max(cfg.CacheSize, 1), cacheOpts...), nil
}
