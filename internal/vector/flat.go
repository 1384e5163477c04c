package vector

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"sort"
	"sync"

	"github.com/hyperjump/kusari/pkg/utils"
)

var indexMagic = [4]byte{'K', 'S', 'R', 'I'}

var _ Index = (*FlatIndex)(nil)

const indexVersion = 1

// FlatIndex is an exact index using brute-force squared L2 search.
// It has no delete: removing an item means rebuilding the index from the survivors.
type FlatIndex struct {
	dimensions  int
	ids         []int
	vectors     [][]float32
	compression Compression
	mu          sync.RWMutex
}

// FlatOption configures a FlatIndex.
type FlatOption func(*FlatIndex)

// WithCompression sets the codec used by Save.
func WithCompression(c Compression) FlatOption {
	return func(f *FlatIndex) { f.compression = c }
}

// NewFlatIndex creates an empty index with the given dimension.
func NewFlatIndex(dimensions int, opts ...FlatOption) (*FlatIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	f := &FlatIndex{dimensions: dimensions}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Add appends vectors, one slot per vector, recording ids[i] for slot i.
// The call is all-or-nothing: a dimension mismatch leaves the index unchanged.
func (f *FlatIndex) Add(ctx context.Context, ids []int, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, v := range vectors {
		if len(v) != f.dimensions {
			return fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(v), f.dimensions)
		}
	}
	for i, id := range ids {
		vec := make([]float32, f.dimensions)
		copy(vec, vectors[i])
		f.ids = append(f.ids, id)
		f.vectors = append(f.vectors, vec)
	}
	return nil
}

// Search returns up to k hits ordered by ascending distance; ties keep slot order.
func (f *FlatIndex) Search(ctx context.Context, query []float32, k int) ([]Hit, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if len(query) != f.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), f.dimensions)
	}
	if k <= 0 || len(f.ids) == 0 {
		return nil, nil
	}
	hits := make([]Hit, len(f.ids))
	for slot, vec := range f.vectors {
		hits[slot] = Hit{ID: f.ids[slot], Slot: slot, Distance: SquaredL2(query, vec)}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })
	if k > len(hits) {
		k = len(hits)
	}
	return hits[:k], nil
}

// Size returns the number of vectors in the index.
func (f *FlatIndex) Size() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.ids)
}

// Dimension returns the vector dimension.
func (f *FlatIndex) Dimension() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dimensions
}

// Compression returns the codec used by Save.
func (f *FlatIndex) Compression() Compression {
	return f.compression
}

// Reset drops every slot and sets a new dimension.
func (f *FlatIndex) Reset(dimensions int) error {
	if dimensions <= 0 {
		return fmt.Errorf("dimensions must be positive")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dimensions = dimensions
	f.ids = nil
	f.vectors = nil
	return nil
}

// Truncate drops every slot at or after n. It undoes an Add whose item could not be persisted.
func (f *FlatIndex) Truncate(n int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n < 0 || n > len(f.ids) {
		return fmt.Errorf("cannot truncate %d slots to %d", len(f.ids), n)
	}
	f.ids = f.ids[:n:n]
	f.vectors = f.vectors[:n:n]
	return nil
}

// IDs returns a copy of the item id stored in each slot.
func (f *FlatIndex) IDs() []int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]int(nil), f.ids...)
}

// Save writes the whole index to path, replacing any previous file.
// Layout: magic (4), version (1), codec (1), then the codec-encoded payload:
// dimension (4), n (4), and per slot: id (4), vector (dimension*4 bytes), little endian.
func (f *FlatIndex) Save(path string) error {
	f.mu.RLock()
	payload := f.encodePayload()
	f.mu.RUnlock()

	body, err := compress(f.compression, payload)
	if err != nil {
		return fmt.Errorf("encode index: %w", err)
	}
	var buf bytes.Buffer
	buf.Grow(6 + len(body))
	buf.Write(indexMagic[:])
	buf.WriteByte(indexVersion)
	buf.WriteByte(byte(f.compression))
	buf.Write(body)

	return utils.WriteFileAtomic(path, buf.Bytes())
}

func (f *FlatIndex) encodePayload() []byte {
	out := make([]byte, 8, 8+len(f.ids)*(4+f.dimensions*4))
	binary.LittleEndian.PutUint32(out[0:4], uint32(f.dimensions))
	binary.LittleEndian.PutUint32(out[4:8], uint32(len(f.ids)))
	for slot, id := range f.ids {
		out = binary.LittleEndian.AppendUint32(out, uint32(id))
		for _, v := range f.vectors[slot] {
			out = binary.LittleEndian.AppendUint32(out, math.Float32bits(v))
		}
	}
	return out
}

// LoadFlatIndex reads an index written by Save. A missing file yields ErrIndexNotFound.
func LoadFlatIndex(path string) (*FlatIndex, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrIndexNotFound
		}
		return nil, fmt.Errorf("read index file: %w", err)
	}
	if len(data) < 6 || !bytes.Equal(data[:4], indexMagic[:]) {
		return nil, fmt.Errorf("not an index file: %s", path)
	}
	if data[4] != indexVersion {
		return nil, fmt.Errorf("unsupported index version %d", data[4])
	}
	compression := Compression(data[5])
	payload, err := decompress(compression, data[6:])
	if err != nil {
		return nil, fmt.Errorf("decode index: %w", err)
	}
	if len(payload) < 8 {
		return nil, fmt.Errorf("truncated index header")
	}
	dim := int(binary.LittleEndian.Uint32(payload[0:4]))
	n := int(binary.LittleEndian.Uint32(payload[4:8]))
	f, err := NewFlatIndex(dim, WithCompression(compression))
	if err != nil {
		return nil, fmt.Errorf("index header: %w", err)
	}
	slotSize := 4 + dim*4
	if len(payload)-8 != n*slotSize {
		return nil, fmt.Errorf("index payload size mismatch: %d slots of %d bytes, have %d bytes", n, slotSize, len(payload)-8)
	}
	f.ids = make([]int, 0, n)
	f.vectors = make([][]float32, 0, n)
	off := 8
	for i := 0; i < n; i++ {
		f.ids = append(f.ids, int(binary.LittleEndian.Uint32(payload[off:])))
		off += 4
		vec := make([]float32, dim)
		for j := range vec {
			vec[j] = math.Float32frombits(binary.LittleEndian.Uint32(payload[off:]))
			off += 4
		}
		f.vectors = append(f.vectors, vec)
	}
	return f, nil
}
