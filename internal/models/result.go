package models

// SearchResult is a single nearest-neighbour hit joined with its item metadata.
type SearchResult struct {
	ID          int     `json:"index"`
	Distance    float64 `json:"distance"` // squared L2
	SourceLabel string  `json:"file"`
	TextExcerpt string  `json:"text"`
}

// ChainStep is one recorded step of a chain walk.
type ChainStep struct {
	Step         int     `json:"step"`
	ID           int     `json:"index"`
	Distance     float64 `json:"distance"`
	SourceLabel  string  `json:"file"`
	TextExcerpt  string  `json:"text"`
	ResidualNorm float64 `json:"diff_norm"`
}

// StopReason names the rule that ended a chain walk.
type StopReason string

const (
	// StopConverged means the residual norm fell below the tolerance.
	StopConverged StopReason = "converged"
	// StopDiverged means the residual norm grew relative to the previous step.
	StopDiverged StopReason = "diverged"
	// StopExhausted means the search returned no item.
	StopExhausted StopReason = "exhausted"
	// StopMaxIter means the iteration bound was reached.
	StopMaxIter StopReason = "max_iter"
)

// ChainResult is the full output of a chain walk.
type ChainResult struct {
	RunID   string      `json:"run_id"`
	Query   string      `json:"query"`
	MaxIter int         `json:"max_iter"`
	Tol     float64     `json:"tol"`
	Steps   []ChainStep `json:"steps"`
	Stop    StopReason  `json:"stop_reason"`
}

// FindResult is a keyword lookup hit.
type FindResult struct {
	ID          int     `json:"index"`
	Score       float64 `json:"score"`
	SourceLabel string  `json:"file"`
	TextExcerpt string  `json:"text"`
}
