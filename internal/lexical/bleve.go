// Package lexical keeps a Bleve keyword index over the stored items so they can be
// found by the words they contain, alongside the vector search.
package lexical

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
	"go.uber.org/zap"

	"github.com/hyperjump/kusari/internal/models"
	"github.com/hyperjump/kusari/pkg/utils"
)

type document struct {
	Text   string `json:"text"`
	Source string `json:"source"`
	Label  string `json:"label"`
}

// BleveIndex is a keyword index keyed by item id.
type BleveIndex struct {
	index  bleve.Index
	logger *zap.Logger
}

// Option configures a BleveIndex.
type Option func(*BleveIndex)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(b *BleveIndex) { b.logger = l }
}

// NewBleveIndex creates or opens a Bleve index at path. An empty path gives an in-memory index.
func NewBleveIndex(path string, opts ...Option) (*BleveIndex, error) {
	b := &BleveIndex{}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = utils.LoggerOrNop(b.logger)

	if path == "" {
		index, err := bleve.NewMemOnly(newMapping())
		if err != nil {
			return nil, fmt.Errorf("failed to create Bleve index: %w", err)
		}
		b.index = index
		return b, nil
	}
	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		b.index = index
		return b, nil
	}
	index, err := bleve.New(path, newMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	b.index = index
	return b, nil
}

func newMapping() *mapping.IndexMappingImpl {
	im := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()

	// Standard analyzer: lowercase + tokenize, no stemming, so short math text survives as typed.
	text := bleve.NewTextFieldMapping()
	text.Analyzer = standard.Name
	text.Store = true
	docMapping.AddFieldMappingsAt("text", text)
	docMapping.AddFieldMappingsAt("source", text)

	label := bleve.NewTextFieldMapping()
	label.Index = false
	label.Store = true
	docMapping.AddFieldMappingsAt("label", label)

	im.DefaultMapping = docMapping
	return im
}

func toDocument(it models.Item) document {
	return document{
		Text:   it.TextExcerpt,
		Source: strings.NewReplacer("_", " ", ".", " ").Replace(it.SourceLabel),
		Label:  it.SourceLabel,
	}
}

// ItemsAdded indexes the given items.
func (b *BleveIndex) ItemsAdded(ctx context.Context, items []models.Item) error {
	batch := b.index.NewBatch()
	for _, it := range items {
		if err := batch.Index(strconv.Itoa(it.ID), toDocument(it)); err != nil {
			return fmt.Errorf("failed to index item %d: %w", it.ID, err)
		}
	}
	return b.index.Batch(batch)
}

// ItemRemoved deletes the item from the index.
func (b *BleveIndex) ItemRemoved(ctx context.Context, id int) error {
	return b.index.Delete(strconv.Itoa(id))
}

// Sync makes the index hold exactly items, dropping ids that are no longer stored.
func (b *BleveIndex) Sync(ctx context.Context, items []models.Item) error {
	count, err := b.index.DocCount()
	if err != nil {
		return err
	}
	req := bleve.NewSearchRequest(bleve.NewMatchAllQuery())
	req.Size = int(count)
	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return fmt.Errorf("Bleve search failed: %w", err)
	}
	keep := make(map[string]bool, len(items))
	for _, it := range items {
		keep[strconv.Itoa(it.ID)] = true
	}
	batch := b.index.NewBatch()
	for _, hit := range res.Hits {
		if !keep[hit.ID] {
			batch.Delete(hit.ID)
		}
	}
	for _, it := range items {
		if err := batch.Index(strconv.Itoa(it.ID), toDocument(it)); err != nil {
			return err
		}
	}
	if err := b.index.Batch(batch); err != nil {
		return err
	}
	b.logger.Debug("keyword index synced", zap.Int("items", len(items)), zap.Uint64("previous", count))
	return nil
}

// Search runs a match query over text and source and returns up to limit hits.
// With fuzzy set, each term matches within edit distance 1.
func (b *BleveIndex) Search(ctx context.Context, query string, limit int, fuzzy bool) ([]models.FindResult, error) {
	if limit <= 0 {
		return nil, models.InvalidArgument("limit must be positive, got %d", limit)
	}
	if strings.TrimSpace(query) == "" {
		return nil, models.InvalidArgument("query is required")
	}
	var q blevequery.Query = bleve.NewMatchQuery(query)
	if fuzzy {
		q = buildFuzzyQuery(query, 1)
	}
	req := bleve.NewSearchRequest(q)
	req.Size = limit
	req.Fields = []string{"text", "label"}
	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}
	out := make([]models.FindResult, 0, len(res.Hits))
	for _, hit := range res.Hits {
		id, err := strconv.Atoi(hit.ID)
		if err != nil {
			continue
		}
		text, _ := hit.Fields["text"].(string)
		label, _ := hit.Fields["label"].(string)
		out = append(out, models.FindResult{ID: id, Score: hit.Score, SourceLabel: label, TextExcerpt: text})
	}
	return out, nil
}

func tokenizeQuery(query string) []string {
	return strings.Fields(strings.ToLower(query))
}

func buildFuzzyQuery(queryStr string, fuzziness int) blevequery.Query {
	terms := tokenizeQuery(queryStr)
	if len(terms) == 1 {
		fq := bleve.NewFuzzyQuery(terms[0])
		fq.SetFuzziness(fuzziness)
		return fq
	}
	queries := make([]blevequery.Query, 0, len(terms))
	for _, term := range terms {
		fq := bleve.NewFuzzyQuery(term)
		fq.SetFuzziness(fuzziness)
		queries = append(queries, fq)
	}
	return bleve.NewDisjunctionQuery(queries...)
}

// DocCount returns the number of indexed items.
func (b *BleveIndex) DocCount() (uint64, error) {
	return b.index.DocCount()
}

// Close closes the index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}
