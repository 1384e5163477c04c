package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strconv"

	"github.com/hyperjump/kusari/internal/models"
	"github.com/hyperjump/kusari/pkg/utils"
)

// JSONStore keeps records in a single JSON object keyed by the decimal id:
//
//	{
//	  "0": {"file": "a.txt", "text": "...", "hash": "..."}
//	}
//
// Keys are written in ascending numeric order with two-space indentation.
type JSONStore struct {
	path string
}

type jsonRecord struct {
	File string `json:"file"`
	Text string `json:"text"`
	Hash string `json:"hash"`
}

// NewJSONStore returns a store backed by the file at path. The file is created on first Save.
func NewJSONStore(path string) *JSONStore {
	return &JSONStore{path: path}
}

// Load reads the file. A missing file yields ErrMetadataNotFound.
func (s *JSONStore) Load(ctx context.Context) ([]models.Item, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrMetadataNotFound
		}
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}
	var raw map[string]jsonRecord
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse metadata %s: %w", s.path, err)
	}
	items := make([]models.Item, 0, len(raw))
	for key, rec := range raw {
		id, err := strconv.Atoi(key)
		if err != nil || id < 0 {
			return nil, fmt.Errorf("invalid item id %q in %s", key, s.path)
		}
		items = append(items, models.Item{ID: id, SourceLabel: rec.File, TextExcerpt: rec.Text, ContentHash: rec.Hash})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

// Save rewrites the whole file atomically.
func (s *JSONStore) Save(ctx context.Context, items []models.Item) error {
	sorted := append([]models.Item(nil), items...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	var buf bytes.Buffer
	if len(sorted) == 0 {
		buf.WriteString("{}")
	} else {
		buf.WriteString("{\n")
		for i, it := range sorted {
			rec, err := marshalRecord(jsonRecord{File: it.SourceLabel, Text: it.TextExcerpt, Hash: it.ContentHash})
			if err != nil {
				return fmt.Errorf("failed to marshal item %d: %w", it.ID, err)
			}
			fmt.Fprintf(&buf, "  %q: %s", strconv.Itoa(it.ID), rec)
			if i < len(sorted)-1 {
				buf.WriteByte(',')
			}
			buf.WriteByte('\n')
		}
		buf.WriteString("}")
	}
	if err := utils.WriteFileAtomic(s.path, buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	return nil
}

func marshalRecord(rec jsonRecord) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("  ", "  ")
	if err := enc.Encode(rec); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Location returns the file path.
func (s *JSONStore) Location() string {
	return s.path
}

// Close is a no-op.
func (s *JSONStore) Close() error {
	return nil
}
