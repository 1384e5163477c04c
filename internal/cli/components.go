package cli

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/kusari/internal/chain"
	"github.com/hyperjump/kusari/internal/config"
	"github.com/hyperjump/kusari/internal/embedding"
	"github.com/hyperjump/kusari/internal/extract"
	"github.com/hyperjump/kusari/internal/indexer"
	"github.com/hyperjump/kusari/internal/lexical"
	"github.com/hyperjump/kusari/internal/search"
	"github.com/hyperjump/kusari/internal/storage"
	"github.com/hyperjump/kusari/internal/store"
	"github.com/hyperjump/kusari/internal/vector"
)

// Components is everything a command may need, built from one config.
type Components struct {
	Config   *config.Config
	Logger   *zap.Logger
	Embedder embedding.Embedder
	Store    *store.Store
	Lexical  *lexical.BleveIndex // nil unless requested
	Search   *search.Service
	Chain    *chain.Reasoner
	Indexer  *indexer.Indexer
}

type componentOptions struct {
	lexical  bool
	progress store.ProgressFunc
}

// ComponentOption configures NewComponents.
type ComponentOption func(*componentOptions)

// WithLexical opens the keyword index and keeps it in step with the store.
func WithLexical() ComponentOption {
	return func(o *componentOptions) { o.lexical = true }
}

// WithRebuildProgress reports rebuild progress.
func WithRebuildProgress(fn store.ProgressFunc) ComponentOption {
	return func(o *componentOptions) { o.progress = fn }
}

// NewComponents wires the store and the services on top of it.
func NewComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts ...ComponentOption) (*Components, error) {
	var o componentOptions
	for _, opt := range opts {
		opt(&o)
	}
	c := &Components{Config: cfg, Logger: logger}

	embedder, err := embedding.New(cfg.Embedding,
		embedding.WithLogger(logger),
		embedding.WithCachePath(cfg.Storage.EmbedCachePath))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	c.Embedder = embedder

	compression, err := vector.ParseCompression(cfg.Index.Compression)
	if err != nil {
		c.Close()
		return nil, err
	}
	meta, err := storage.OpenMetadata(cfg.Storage.MetadataBackend, cfg.Storage.MetadataPath, cfg.Storage.SQLitePath)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to open metadata: %w", err)
	}

	storeOpts := []store.Option{
		store.WithLogger(logger),
		store.WithCompression(compression),
		store.WithDefaultDimension(cfg.Index.DefaultDimension),
		store.WithExcerptLength(cfg.Store.ExcerptLength),
		store.WithRebuildFromVectors(cfg.Store.RebuildFromVectors),
	}
	if o.progress != nil {
		storeOpts = append(storeOpts, store.WithProgress(o.progress))
	}
	if o.lexical {
		lex, err := lexical.NewBleveIndex(cfg.Storage.LexicalIndexPath, lexical.WithLogger(logger))
		if err != nil {
			_ = meta.Close()
			c.Close()
			return nil, fmt.Errorf("failed to open keyword index: %w", err)
		}
		c.Lexical = lex
		storeOpts = append(storeOpts, store.WithObserver(lex))
	}

	st, err := store.Open(ctx, embedder, meta, storage.NewVectorFiles(cfg.Storage.EmbeddingsDir),
		cfg.Storage.IndexPath, storeOpts...)
	if err != nil {
		_ = meta.Close()
		c.Close()
		return nil, err
	}
	c.Store = st

	if c.Lexical != nil {
		items, err := st.List(ctx)
		if err == nil {
			err = c.Lexical.Sync(ctx, items)
		}
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to sync keyword index: %w", err)
		}
	}

	c.Search = search.NewService(embedder, st,
		search.WithLogger(logger),
		search.WithMaxTopK(cfg.Search.MaxTopK))
	c.Chain = chain.NewReasoner(embedder, c.Search, chain.WithLogger(logger))

	filter, err := indexer.NewFilter(cfg.Ingest.Includes, cfg.Ingest.Excludes)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("ingest patterns: %w", err)
	}
	c.Indexer = indexer.NewIndexer(st,
		indexer.WithLogger(logger),
		indexer.WithExtractor(extract.NewExtractor(
			extract.WithMaxBytes(cfg.Ingest.MaxFileBytes),
			extract.WithPlainFallback())),
		indexer.WithChunking(cfg.Ingest.ChunkWords, cfg.Ingest.ChunkOverlap),
		indexer.WithFilter(filter))
	return c, nil
}

// Close releases everything that was opened.
func (c *Components) Close() error {
	var errs []error
	if c.Store != nil {
		errs = append(errs, c.Store.Close())
	}
	if c.Lexical != nil {
		errs = append(errs, c.Lexical.Close())
	}
	if c.Embedder != nil {
		errs = append(errs, c.Embedder.Close())
	}
	return errors.Join(errs...)
}
