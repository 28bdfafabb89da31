// Package quantizer compresses embeddings before they are registered with a
// personalization backend. Scalar quantization buckets every component by
// global quantiles; product quantization clusters subvectors and refines the
// result with a residual codebook.
//
// Quantizers are not safe for concurrent Train calls. Use one instance per
// vector store.
package quantizer

import (
	"fmt"
	"sort"

	"github.com/influxdata/tdigest"
)

const (
	// DefaultLevels is the number of scalar buckets.
	DefaultLevels = 256

	// digestCompression trades t-digest memory for quantile accuracy.
	digestCompression = 1000
)

// Scalar maps every component of a vector onto one of Levels quantile
// boundaries computed over all components of the training set.
type Scalar struct {
	levels     int
	boundaries []float64
}

// NewScalar creates a scalar quantizer. A non-positive levels means
// DefaultLevels.
func NewScalar(levels int) (*Scalar, error) {
	if levels <= 0 {
		levels = DefaultLevels
	}
	if levels > 1<<16 {
		return nil, fmt.Errorf("quantizer: %d levels do not fit a uint16 code", levels)
	}
	return &Scalar{levels: levels}, nil
}

// Levels returns the number of buckets.
func (s *Scalar) Levels() int {
	return s.levels
}

// Trained reports whether Train has succeeded.
func (s *Scalar) Trained() bool {
	return s.boundaries != nil
}

// Train streams every component into a t-digest and stores boundaries at
// percentiles i/levels. Retraining replaces the previous boundaries.
func (s *Scalar) Train(vectors [][]float32) error {
	td := tdigest.NewWithCompression(digestCompression)
	n := 0
	for _, v := range vectors {
		for _, c := range v {
			td.Add(float64(c), 1)
			n++
		}
	}
	if n == 0 {
		return ErrNoTrainingData
	}

	boundaries := make([]float64, s.levels)
	for i := range boundaries {
		boundaries[i] = td.Quantile(float64(i) / float64(s.levels))
	}
	// interpolation can wobble by an ulp; Compress relies on ascending order
	sort.Float64s(boundaries)

	s.boundaries = boundaries
	return nil
}

// Compress returns, per component, the index of the first boundary strictly
// greater than it, or Levels-1 when there is none.
func (s *Scalar) Compress(v []float32) ([]uint16, error) {
	if !s.Trained() {
		return nil, ErrUntrained
	}

	codes := make([]uint16, len(v))
	for i, c := range v {
		x := float64(c)
		idx := sort.Search(len(s.boundaries), func(j int) bool { return s.boundaries[j] > x })
		if idx == len(s.boundaries) {
			idx = s.levels - 1
		}
		codes[i] = uint16(idx)
	}
	return codes, nil
}

// Decompress maps codes back onto their boundary values.
func (s *Scalar) Decompress(codes []uint16) ([]float32, error) {
	if !s.Trained() {
		return nil, ErrUntrained
	}

	out := make([]float32, len(codes))
	for i, c := range codes {
		if int(c) >= len(s.boundaries) {
			return nil, fmt.Errorf("%w: %d >= %d", ErrCodeRange, c, len(s.boundaries))
		}
		out[i] = float32(s.boundaries[c])
	}
	return out, nil
}

// Quantiles returns a copy of the trained boundaries.
func (s *Scalar) Quantiles() []float64 {
	return append([]float64(nil), s.boundaries...)
}

// CompressAll compresses every vector.
func (s *Scalar) CompressAll(vectors [][]float32) ([][]uint16, error) {
	out := make([][]uint16, len(vectors))
	for i, v := range vectors {
		codes, err := s.Compress(v)
		if err != nil {
			return nil, err
		}
		out[i] = codes
	}
	return out, nil
}
