// Package storage persists item metadata and per-item vectors.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/hyperjump/kusari/internal/models"
)

// ErrMetadataNotFound is returned by Load when nothing has been saved yet.
var ErrMetadataNotFound = errors.New("metadata not found")

// MetadataStore persists the item records. Save replaces the whole collection.
type MetadataStore interface {
	// Load returns all records in ascending id order.
	Load(ctx context.Context) ([]models.Item, error)
	Save(ctx context.Context, items []models.Item) error
	// Location describes where the records live, for status output.
	Location() string
	Close() error
}

// Backend names.
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

// OpenMetadata opens the configured backend. jsonPath is used by the json backend,
// sqlitePath by the sqlite backend.
func OpenMetadata(backend, jsonPath, sqlitePath string) (MetadataStore, error) {
	switch backend {
	case "", BackendJSON:
		return NewJSONStore(jsonPath), nil
	case BackendSQLite:
		return NewSQLiteStore(sqlitePath)
	default:
		return nil, fmt.Errorf("unknown metadata backend: %s", backend)
	}
}
