package ranking

import (
	"math"

	"github.com/papercomputeco/sway/pkg/vector"
)

// MaximalMarginalRelevance greedily selects up to k candidates, starting
// with the one closest to the query and then maximizing
// lambda*sim(query) - (1-lambda)*max(sim(selected)). The result is in
// selection order. With k <= 0 or no candidates the input is returned as is.
func MaximalMarginalRelevance(query []float32, cands []Candidate, lambda float64, k int) []Candidate {
	if k <= 0 || len(cands) == 0 {
		return cands
	}
	k = min(k, len(cands))

	q := vector.Float64s(query)
	embs := make([][]float64, len(cands))
	simQ := make([]float64, len(cands))
	first := 0
	for i, c := range cands {
		embs[i] = vector.Float64s(c.Vector)
		simQ[i] = vector.Cosine(embs[i], q)
		if simQ[i] > simQ[first] {
			first = i
		}
	}

	picked := make([]bool, len(cands))
	picked[first] = true
	selected := []int{first}

	// redundancy[i] is the max similarity of i to anything selected so far
	redundancy := make([]float64, len(cands))
	for i := range cands {
		redundancy[i] = vector.Cosine(embs[i], embs[first])
	}

	for len(selected) < k {
		best, idx := math.Inf(-1), -1
		for i := range cands {
			if picked[i] {
				continue
			}
			score := lambda*simQ[i] - (1-lambda)*redundancy[i]
			if score > best {
				best, idx = score, i
			}
		}
		if idx < 0 {
			break
		}

		picked[idx] = true
		selected = append(selected, idx)
		for i := range cands {
			if !picked[i] {
				redundancy[i] = max(redundancy[i], vector.Cosine(embs[i], embs[idx]))
			}
		}
	}

	out := make([]Candidate, len(selected))
	for i, idx := range selected {
		out[i] = cands[idx]
	}
	return out
}
