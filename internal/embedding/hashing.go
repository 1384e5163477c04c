package embedding

import (
	"context"
	"hash/fnv"
	"strings"
	"unicode"

	"github.com/hyperjump/kusari/pkg/utils"
)

// HashingEmbedder maps text to a unit vector by feature hashing: every lowercase word and
// every character trigram (with boundary padding) is hashed into one of the dimensions,
// with a sign taken from a second hash bit. Texts that share tokens land close together,
// which is enough for local use without a model file.
type HashingEmbedder struct {
	dimensions int
}

// NewHashingEmbedder returns a feature-hashing embedder. Non-positive dimensions default to 384.
func NewHashingEmbedder(dimensions int) *HashingEmbedder {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &HashingEmbedder{dimensions: dimensions}
}

// Embed returns the hashed feature vector for text. Empty text yields the zero vector.
func (e *HashingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	emb := make([]float32, e.dimensions)
	for _, word := range SplitWords(strings.ToLower(text)) {
		e.addFeature(emb, "w:"+word, 1)
		runes := []rune("^" + word + "$")
		for i := 0; i+3 <= len(runes); i++ {
			e.addFeature(emb, "c:"+string(runes[i:i+3]), 0.5)
		}
		for _, r := range word {
			if unicode.IsDigit(r) || unicode.IsPunct(r) || unicode.IsSymbol(r) {
				e.addFeature(emb, "s:"+string(r), 0.25)
			}
		}
	}
	utils.NormalizeL2(emb)
	return emb, nil
}

func (e *HashingEmbedder) addFeature(emb []float32, feature string, weight float32) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()
	bucket := int(sum % uint64(e.dimensions))
	if sum&(1<<63) != 0 {
		weight = -weight
	}
	emb[bucket] += weight
}

// EmbedBatch calls Embed for each text.
func (e *HashingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return embedEach(ctx, e, texts)
}

// Dimensions returns the embedding dimension.
func (e *HashingEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op.
func (e *HashingEmbedder) Close() error {
	return nil
}
