// Package vector defines the vector store contract the personalizer searches
// candidates through, plus helpers shared by every adapter.
package vector

import "context"

// Metric names how a store scores candidates against a query.
type Metric string

const (
	MetricCosine    Metric = "cosine_sim"
	MetricEuclidean Metric = "euclidean_dist"
	MetricDot       Metric = "dot_product"
)

// HigherIsBetter reports whether larger scores mean closer matches.
// Only euclidean_dist is a distance.
func (m Metric) HigherIsBetter() bool {
	return m != MetricEuclidean
}

// ParseMetric accepts the metric names above. An empty string means cosine.
func ParseMetric(s string) (Metric, error) {
	switch m := Metric(s); m {
	case "":
		return MetricCosine, nil
	case MetricCosine, MetricEuclidean, MetricDot:
		return m, nil
	default:
		return "", ErrUnsupportedMetric
	}
}

// Document represents a stored item with its embedding and metadata.
type Document struct {
	// ID is the caller supplied content identifier.
	ID string `json:"id"`

	// Embedding is the vector representation of the content.
	Embedding []float32 `json:"embedding,omitempty"`

	// Metadata is returned alongside search results.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Result represents a search hit. Score semantics follow the store's Metric.
type Result struct {
	Document

	Score float64 `json:"score"`
}

// Query is a single similarity search.
type Query struct {
	Embedding []float32

	// TopK is the number of candidates requested from the store.
	TopK int

	// TopKMMR is the number of candidates kept after MMR re-ranking.
	TopKMMR int

	Filter Filter

	// IncludeValues asks the store to return embeddings with each result.
	IncludeValues bool
}

// Driver handles storage and retrieval of content embeddings.
type Driver interface {
	// Search returns up to q.TopK results ordered best first.
	Search(ctx context.Context, q Query) ([]Result, error)

	// Fetch returns a single document including its embedding.
	// Missing documents return ErrNotFound.
	Fetch(ctx context.Context, id string) (Document, error)

	// HistoryFilter returns a filter that additionally excludes the seen ids.
	HistoryFilter(seen []string, existing Filter) Filter

	// Add stores documents with their embeddings.
	// If a document with the same ID already exists, implementers should update
	// the document.
	Add(ctx context.Context, docs []Document) error

	// Delete removes documents by their IDs.
	Delete(ctx context.Context, ids []string) error

	// Dimensions is the embedding size accepted by the store.
	Dimensions() int

	// Metric is the scoring metric used by Search.
	Metric() Metric

	// Close releases any resources held by the driver.
	Close() error
}
