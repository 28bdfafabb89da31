// Package ranking turns raw per-query search candidates into the final
// personalized batch: threshold, MMR diversification, deduplication, sort,
// truncation and a final shuffle.
package ranking

import (
	"errors"

	"github.com/papercomputeco/sway/pkg/vector"
)

const (
	// MMRLambda balances query relevance against redundancy.
	MMRLambda = 0.5

	// MinTopK is the smallest top_k ever requested for a weighted query.
	MinTopK = 5

	// MMRTopKFactor widens the candidate pool when MMR runs afterwards.
	MMRTopKFactor = 2

	// ConfidenceIntervalRatio is the share of the batch size that the sum of
	// adjusted weights may deviate by before being rescaled.
	ConfidenceIntervalRatio = 0.15
)

// ErrQueryCountMismatch is returned when results and queries are not index
// aligned.
var ErrQueryCountMismatch = errors.New("ranking: number of results is not equal to number of queries")

// Query is the search that produced a candidate list.
type Query = vector.Query

// Candidate is a single scored search hit. A nil Score sorts as already in
// order against any neighbour.
type Candidate struct {
	ID       string
	Vector   []float32
	Metadata map[string]any
	Score    *float64
}

// FromResults converts vector store results into candidates.
func FromResults(results []vector.Result) []Candidate {
	out := make([]Candidate, len(results))
	for i, r := range results {
		score := r.Score
		meta := r.Metadata
		if meta == nil {
			// stored without metadata, still a valid document
			meta = map[string]any{}
		}
		out[i] = Candidate{
			ID:       r.ID,
			Vector:   r.Embedding,
			Metadata: meta,
			Score:    &score,
		}
	}
	return out
}

// Options are the per-vertex toggles applied by the pipeline.
type Options struct {
	RemoveDuplicates bool
	ApplyMMR         bool

	// ApplyThreshold is the configured score threshold; zero disables it.
	ApplyThreshold float64

	Metric vector.Metric
}

// Batch is the final ranked output. IDs and Metadata are index aligned.
type Batch struct {
	IDs      []string         `json:"ids"`
	Metadata []map[string]any `json:"metadata"`
}

// Len returns the number of items in the batch.
func (b Batch) Len() int {
	return len(b.IDs)
}

// Truncate keeps at most n items.
func (b Batch) Truncate(n int) Batch {
	if n < 0 || n >= len(b.IDs) {
		return b
	}
	return Batch{IDs: b.IDs[:n], Metadata: b.Metadata[:n]}
}
