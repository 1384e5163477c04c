// Package cli implements the kusari command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/hyperjump/kusari/internal/indexer"
	"github.com/hyperjump/kusari/internal/models"
	"github.com/hyperjump/kusari/internal/storage"
)

// OutputFormat selects how command results are printed.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat validates a --output value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case OutputText, "":
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text or json", s)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteItems prints stored items, one per line in text mode.
func WriteItems(w io.Writer, items []models.Item, format OutputFormat) error {
	if format == OutputJSON {
		if items == nil {
			items = []models.Item{}
		}
		return writeJSON(w, items)
	}
	if len(items) == 0 {
		fmt.Fprintln(w, "No items stored yet.")
		return nil
	}
	for _, it := range items {
		fmt.Fprintf(w, "[%d] %s: %s\n", it.ID, it.SourceLabel, it.TextExcerpt)
	}
	return nil
}

// WriteSearchResults prints nearest-neighbour results.
func WriteSearchResults(w io.Writer, results []models.SearchResult, topK int, format OutputFormat) error {
	if format == OutputJSON {
		if results == nil {
			results = []models.SearchResult{}
		}
		return writeJSON(w, results)
	}
	fmt.Fprintf(w, "Top %d similar items:\n", topK)
	for i, r := range results {
		fmt.Fprintf(w, "[%d] Index: %d, Distance: %.4f\n", i+1, r.ID, r.Distance)
		fmt.Fprintf(w, "    File: %s\n", r.SourceLabel)
		fmt.Fprintf(w, "    Text: %s\n\n", r.TextExcerpt)
	}
	return nil
}

// WriteChainResult prints a chain walk and its stop reason.
func WriteChainResult(w io.Writer, res *models.ChainResult, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, res)
	}
	fmt.Fprintf(w, "Residual chain (max_iter=%d, tol=%g):\n", res.MaxIter, res.Tol)
	for _, s := range res.Steps {
		fmt.Fprintf(w, "Step %d: Index %d, Distance %.4f, Diff Norm %.4f\n", s.Step, s.ID, s.Distance, s.ResidualNorm)
		fmt.Fprintf(w, "    File: %s\n", s.SourceLabel)
		fmt.Fprintf(w, "    Text: %s\n\n", s.TextExcerpt)
	}
	fmt.Fprintf(w, "Chain length: %d (stopped: %s)\n", len(res.Steps), res.Stop)
	return nil
}

// WriteFindResults prints keyword lookup hits.
func WriteFindResults(w io.Writer, results []models.FindResult, format OutputFormat) error {
	if format == OutputJSON {
		if results == nil {
			results = []models.FindResult{}
		}
		return writeJSON(w, results)
	}
	if len(results) == 0 {
		fmt.Fprintln(w, "No matches.")
		return nil
	}
	for _, r := range results {
		fmt.Fprintf(w, "[%d] %s (score %.4f): %s\n", r.ID, r.SourceLabel, r.Score, r.TextExcerpt)
	}
	return nil
}

// WriteFileResult prints the outcome of storing one whole file.
func WriteFileResult(w io.Writer, res indexer.FileResult, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, res)
	}
	switch {
	case res.Duplicate:
		fmt.Fprintf(w, "Item already stored (hash match): %s is item %d\n", res.Path, res.ID)
	case res.Chunks != nil:
		inserted, skipped := indexer.BatchResult{Outcomes: res.Chunks}.Counts()
		fmt.Fprintf(w, "Stored %s as %d chunks (%d already stored)\n", res.Path, inserted, skipped)
	default:
		fmt.Fprintf(w, "Embedded and stored: %s as item %d\n", res.Path, res.ID)
	}
	return nil
}

type batchSummary struct {
	Path     string                `json:"path"`
	Inserted int                   `json:"inserted"`
	Skipped  int                   `json:"skipped"`
	Error    string                `json:"error,omitempty"`
	Outcomes []models.BatchOutcome `json:"outcomes"`
}

// WriteBatchResults prints per-file batch outcomes.
func WriteBatchResults(w io.Writer, results []indexer.BatchResult, format OutputFormat) error {
	if format == OutputJSON {
		out := make([]batchSummary, 0, len(results))
		for _, r := range results {
			inserted, skipped := r.Counts()
			s := batchSummary{Path: r.Path, Inserted: inserted, Skipped: skipped, Outcomes: r.Outcomes}
			if r.Err != nil {
				s.Error = r.Err.Error()
			}
			if s.Outcomes == nil {
				s.Outcomes = []models.BatchOutcome{}
			}
			out = append(out, s)
		}
		return writeJSON(w, out)
	}
	for _, r := range results {
		if len(results) > 1 {
			fmt.Fprintf(w, "\nProcessing %s...\n", r.Path)
		}
		if r.Err != nil {
			fmt.Fprintf(w, "Error processing %s: %v\n", r.Path, r.Err)
			continue
		}
		for _, o := range r.Outcomes {
			if o.Skipped {
				fmt.Fprintf(w, "Skipped duplicate: %s\n", previewText(o.Text))
			}
		}
		inserted, _ := r.Counts()
		if inserted == 0 {
			fmt.Fprintln(w, "No new items to embed.")
			continue
		}
		fmt.Fprintf(w, "Embedded and stored %d new items.\n", inserted)
	}
	return nil
}

func previewText(s string) string {
	r := []rune(s)
	if len(r) > 60 {
		return string(r[:60]) + "..."
	}
	return s
}

// WriteStatus prints store statistics.
func WriteStatus(w io.Writer, st Status, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, st)
	}
	fmt.Fprintf(w, "Items:            %d\n", st.Items)
	fmt.Fprintf(w, "Dimension:        %d\n", st.Dimension)
	fmt.Fprintf(w, "Index size:       %d\n", st.IndexSize)
	if st.Disk != nil {
		fmt.Fprintf(w, "Disk usage:       %s (metadata %s, index %s, %d vector files %s)\n",
			formatBytes(st.Disk.Total()), formatBytes(st.Disk.Metadata), formatBytes(st.Disk.Index),
			st.Disk.Files, formatBytes(st.Disk.Vectors))
	}
	fmt.Fprintf(w, "Embedding:        %s\n", st.EmbeddingProvider)
	fmt.Fprintf(w, "Metadata:         %s\n", st.MetadataPath)
	fmt.Fprintf(w, "Index file:       %s (%s)\n", st.IndexPath, st.IndexCompression)
	return nil
}

// Status is the output of the status command.
type Status struct {
	models.StoreStats
	Disk              *storage.Usage `json:"disk,omitempty"`
	EmbeddingProvider string         `json:"embedding_provider"`
	MetadataPath      string         `json:"metadata_path"`
	IndexPath         string         `json:"index_path"`
	IndexCompression  string         `json:"index_compression"`
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
