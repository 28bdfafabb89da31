package quantizer

import "errors"

var (
	// ErrUntrained is returned by Compress and Decompress before Train.
	ErrUntrained = errors.New("quantizer: not trained")

	// ErrNoTrainingData is returned when Train receives no vector components.
	ErrNoTrainingData = errors.New("quantizer: no training vectors")

	// ErrDimension is returned when a vector's size does not fit the
	// quantizer.
	ErrDimension = errors.New("quantizer: invalid vector dimension")

	// ErrTooFewVectors is returned when there are fewer training vectors
	// than centroids per subspace.
	ErrTooFewVectors = errors.New("quantizer: fewer training vectors than centroids")

	// ErrCodeRange is returned when a code does not index a boundary or
	// centroid.
	ErrCodeRange = errors.New("quantizer: code out of range")
)
