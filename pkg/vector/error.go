package vector

import "errors"

var (
	// ErrNotFound is returned when a document is not found in the vector store.
	ErrNotFound = errors.New("document not found")

	// ErrDimensionMismatch is returned when an embedding does not match the
	// store's dimensions.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrUnsupportedMetric is returned for unknown or unsupported metrics.
	ErrUnsupportedMetric = errors.New("unsupported distance metric")

	// ErrConnection is returned when the vector store connection fails.
	ErrConnection = errors.New("vector store connection failed")
)
