package vector

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Float64s widens an embedding for gonum.
func Float64s(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, f := range v {
		out[i] = float64(f)
	}
	return out
}

// Float32s narrows a gonum vector back to an embedding.
func Float32s(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(f)
	}
	return out
}

// Cosine returns the cosine similarity of a and b, or 0 when either is a zero
// vector or the lengths differ.
func Cosine(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0
	}
	na, nb := floats.Norm(a, 2), floats.Norm(b, 2)
	if na == 0 || nb == 0 {
		return 0
	}
	return floats.Dot(a, b) / (na * nb)
}

// Score computes the metric between a query and a stored embedding.
func (m Metric) Score(query, emb []float64) float64 {
	switch m {
	case MetricEuclidean:
		return floats.Distance(query, emb, 2)
	case MetricDot:
		return floats.Dot(query, emb)
	default:
		return Cosine(query, emb)
	}
}

// Better reports whether score a ranks ahead of score b under m.
func (m Metric) Better(a, b float64) bool {
	if m.HigherIsBetter() {
		return a > b
	}
	return a < b
}

// Normalize scales v to unit length in place. Zero vectors are left alone.
func Normalize(v []float64) {
	n := floats.Norm(v, 2)
	if n == 0 || math.IsNaN(n) {
		return
	}
	floats.Scale(1/n, v)
}
