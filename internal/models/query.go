package models

// SearchQuery is a similarity search request. Exactly one of Text or Vector should be set;
// when both are set the vector wins.
type SearchQuery struct {
	Text   string    `json:"text,omitempty"`
	Vector []float32 `json:"vector,omitempty"`
	TopK   int       `json:"top_k"`
}

// Validate checks the query has something to search with and a positive TopK.
func (q *SearchQuery) Validate() error {
	if q.TopK <= 0 {
		return InvalidArgument("top_k must be positive, got %d", q.TopK)
	}
	if q.Text == "" && len(q.Vector) == 0 {
		return InvalidArgument("query text or vector is required")
	}
	return nil
}

// ChainQuery is a chain-reasoning request.
type ChainQuery struct {
	Text    string  `json:"text"`
	MaxIter int     `json:"max_iter"`
	Tol     float64 `json:"tol"`
}

// Validate checks the chain bounds.
func (q *ChainQuery) Validate() error {
	if q.Text == "" {
		return InvalidArgument("query text is required")
	}
	if q.MaxIter <= 0 {
		return InvalidArgument("max_iter must be positive, got %d", q.MaxIter)
	}
	if q.Tol < 0 {
		return InvalidArgument("tol must not be negative, got %g", q.Tol)
	}
	return nil
}
