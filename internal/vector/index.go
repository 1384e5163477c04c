// Package vector provides the exact nearest-neighbour index over stored embeddings.
package vector

import (
	"context"
	"errors"
)

// ErrIndexNotFound is returned by LoadFlatIndex when no index has been persisted yet.
var ErrIndexNotFound = errors.New("index file not found")

// Index is an append-only nearest-neighbour index. Slots are assigned in insertion order
// and each slot remembers the item id it was added for. Truncate only drops trailing slots.
type Index interface {
	Add(ctx context.Context, ids []int, vectors [][]float32) error
	Search(ctx context.Context, query []float32, k int) ([]Hit, error)
	Save(path string) error
	Size() int
	Dimension() int
	IDs() []int
	Reset(dimensions int) error
	Truncate(n int) error
}

// Hit is a single search result. Distance is the squared L2 distance to the query.
type Hit struct {
	ID       int
	Slot     int
	Distance float64
}
