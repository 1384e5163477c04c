// Package models defines core data structures for stored items, queries, and chain steps.
package models

// Item is one stored text unit. Items are immutable once created; they are only ever deleted.
type Item struct {
	ID          int    `json:"id"`
	SourceLabel string `json:"file"`
	TextExcerpt string `json:"text"`
	ContentHash string `json:"hash"`
}

// BatchOutcome reports what happened to one text of a batch insertion. A skipped text
// carries the id of the item it duplicates.
type BatchOutcome struct {
	Text    string `json:"text"`
	ID      int    `json:"id"`
	Skipped bool   `json:"skipped,omitempty"`
}

// Inserted reports whether the text was stored.
func (o BatchOutcome) Inserted() bool {
	return !o.Skipped
}

// StoreStats summarizes persisted store state.
type StoreStats struct {
	Items     int `json:"items"`
	Dimension int `json:"dimension"`
	IndexSize int `json:"index_size"`
}
