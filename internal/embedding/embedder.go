// Package embedding provides the text embedding capability: providers, caching, and a factory.
package embedding

import "context"

// Embedder produces vector embeddings for text. EmbedBatch returns one vector per input,
// aligned index-for-index with texts.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}

// embedEach implements EmbedBatch for providers without a native batch call.
func embedEach(ctx context.Context, e Embedder, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		emb, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		embeddings[i] = emb
	}
	return embeddings, nil
}

const defaultONNXOutput = "output"

// ONNXOptions configures NewONNXEmbedder.
type ONNXOptions struct {
	ModelPath  string
	OutputName string // model output holding the pooled embedding; default "output"
	Dimensions int
	MaxTokens  int
}
