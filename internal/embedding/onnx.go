//go:build cgo
// +build cgo

package embedding

import (
	"context"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/hyperjump/kusari/pkg/utils"
)

var onnxInputNames = []string{"input_ids", "attention_mask", "token_type_ids"}

// onnxTensors are allocated once per embedder; Embed rewrites the inputs and reads the output.
type onnxTensors struct {
	inputIDs      *ort.Tensor[int64]
	attentionMask *ort.Tensor[int64]
	tokenTypeIDs  *ort.Tensor[int64]
	output        *ort.Tensor[float32]
}

func newONNXTensors(maxTokens, dimensions int) (*onnxTensors, error) {
	t := &onnxTensors{}
	ids, mask, types := (&SimpleTokenizer{}).Tokenize("", maxTokens)
	inputShape := ort.NewShape(1, int64(maxTokens))

	var err error
	if t.inputIDs, err = ort.NewTensor(inputShape, ids); err != nil {
		return nil, fmt.Errorf("failed to create input_ids tensor: %w", err)
	}
	if t.attentionMask, err = ort.NewTensor(inputShape, mask); err != nil {
		t.destroy()
		return nil, fmt.Errorf("failed to create attention_mask tensor: %w", err)
	}
	if t.tokenTypeIDs, err = ort.NewTensor(inputShape, types); err != nil {
		t.destroy()
		return nil, fmt.Errorf("failed to create token_type_ids tensor: %w", err)
	}
	if t.output, err = ort.NewTensor(ort.NewShape(1, int64(dimensions)), make([]float32, dimensions)); err != nil {
		t.destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}
	return t, nil
}

func (t *onnxTensors) inputs() []ort.ArbitraryTensor {
	return []ort.ArbitraryTensor{t.inputIDs, t.attentionMask, t.tokenTypeIDs}
}

func (t *onnxTensors) destroy() {
	if t.inputIDs != nil {
		_ = t.inputIDs.Destroy()
		t.inputIDs = nil
	}
	if t.attentionMask != nil {
		_ = t.attentionMask.Destroy()
		t.attentionMask = nil
	}
	if t.tokenTypeIDs != nil {
		_ = t.tokenTypeIDs.Destroy()
		t.tokenTypeIDs = nil
	}
	if t.output != nil {
		_ = t.output.Destroy()
		t.output = nil
	}
}

// ONNXEmbedder runs a sentence embedding model through ONNX Runtime.
// It requires CGO and the onnxruntime shared library.
type ONNXEmbedder struct {
	session    *ort.AdvancedSession
	tensors    *onnxTensors
	tokenizer  Tokenizer
	dimensions int
	maxTokens  int
	mu         sync.Mutex
}

// NewONNXEmbedder loads the model at opts.ModelPath. The runtime environment is
// initialised on first use.
func NewONNXEmbedder(opts ONNXOptions) (*ONNXEmbedder, error) {
	if opts.ModelPath == "" {
		return nil, fmt.Errorf("onnx provider requires embedding.model_path")
	}
	if opts.Dimensions <= 0 || opts.MaxTokens <= 0 {
		return nil, fmt.Errorf("onnx provider requires positive dimensions and max_tokens")
	}
	outputName := opts.OutputName
	if outputName == "" {
		outputName = defaultONNXOutput
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX runtime: %w", err)
		}
	}

	tensors, err := newONNXTensors(opts.MaxTokens, opts.Dimensions)
	if err != nil {
		return nil, err
	}
	session, err := ort.NewAdvancedSession(opts.ModelPath,
		onnxInputNames, []string{outputName},
		tensors.inputs(), []ort.ArbitraryTensor{tensors.output},
		nil)
	if err != nil {
		tensors.destroy()
		return nil, fmt.Errorf("failed to create ONNX session for %s: %w", opts.ModelPath, err)
	}
	return &ONNXEmbedder{
		session:    session,
		tensors:    tensors,
		tokenizer:  &SimpleTokenizer{},
		dimensions: opts.Dimensions,
		maxTokens:  opts.MaxTokens,
	}, nil
}

// Embed runs the model on text and returns the L2-normalized output.
func (e *ONNXEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil, fmt.Errorf("onnx embedder is closed")
	}

	ids, mask, types := e.tokenizer.Tokenize(text, e.maxTokens)
	copy(e.tensors.inputIDs.GetData(), ids)
	copy(e.tensors.attentionMask.GetData(), mask)
	copy(e.tensors.tokenTypeIDs.GetData(), types)
	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	out := make([]float32, e.dimensions)
	copy(out, e.tensors.output.GetData())
	utils.NormalizeL2(out)
	return out, nil
}

// EmbedBatch calls Embed for each text; the session holds a single input row.
func (e *ONNXEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return embedEach(ctx, e, texts)
}

// Dimensions returns the embedding dimension.
func (e *ONNXEmbedder) Dimensions() int {
	return e.dimensions
}

// Close destroys the session and tensors.
func (e *ONNXEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var err error
	if e.session != nil {
		err = e.session.Destroy()
		e.session = nil
	}
	if e.tensors != nil {
		e.tensors.destroy()
		e.tensors = nil
	}
	return err
}
