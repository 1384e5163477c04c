package models

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateItem is returned when an item with the same content hash is already stored.
	// It is benign: the insertion is skipped.
	ErrDuplicateItem = errors.New("item already exists")
	// ErrDimensionMismatch is matched by every *DimensionMismatchError.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	// ErrIndexUnavailable is returned when the persisted similarity index is missing at query time.
	ErrIndexUnavailable = errors.New("similarity index unavailable")
	// ErrMetadataUnavailable is returned when the persisted metadata is missing at query time.
	ErrMetadataUnavailable = errors.New("item metadata unavailable")
	// ErrNotFound is returned when an item id does not exist.
	ErrNotFound = errors.New("item not found")
	// ErrInvalidArgument is returned for out-of-range inputs such as a non-positive top_k.
	ErrInvalidArgument = errors.New("invalid argument")
)

// DimensionMismatchError reports an embedding whose length disagrees with the store dimension.
type DimensionMismatchError struct {
	Expected int
	Actual   int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("embedding dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// Is makes errors.Is(err, ErrDimensionMismatch) hold for any DimensionMismatchError.
func (e *DimensionMismatchError) Is(target error) bool {
	return target == ErrDimensionMismatch
}

// InvalidArgument wraps ErrInvalidArgument with a description of the offending input.
func InvalidArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
