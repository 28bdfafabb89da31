package ranking

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
)

// AdjustWeights shifts weights so the smallest is at least 1, then rescales
// them to sum to roughly batchSize when the sum falls outside
// [batchSize-ci, batchSize+ci]. Rescaled weights are rounded up.
func AdjustWeights(weights []float64, batchSize int, ci float64) []float64 {
	out := slices.Clone(weights)
	if len(out) == 0 {
		return out
	}

	if m := floats.Min(out); m < 1 {
		floats.AddConst(1-m, out)
	}

	b := float64(batchSize)
	sum := floats.Sum(out)
	if sum < b-ci || sum > b+ci {
		scale := b / sum
		for i, w := range out {
			out[i] = math.Ceil(w * scale)
		}
	}
	return out
}

// TopK is the pair of result sizes requested for one weighted query.
type TopK struct {
	TopK    int
	TopKMMR int
}

// TopKs allocates result sizes to weighted queries. Every query asks for at
// least MinTopK results; with MMR the store is asked for MMRTopKFactor times
// as many and MMR keeps the allocated amount.
func TopKs(weights []float64, batchSize int, applyMMR bool) []TopK {
	ci := max(float64(batchSize)*ConfidenceIntervalRatio, 1)
	adjusted := AdjustWeights(weights, batchSize, ci)

	out := make([]TopK, len(adjusted))
	for i, w := range adjusted {
		k := max(int(math.Ceil(w)), MinTopK)
		if applyMMR {
			out[i] = TopK{TopK: k * MMRTopKFactor, TopKMMR: k}
		} else {
			out[i] = TopK{TopK: k, TopKMMR: k / 2}
		}
	}
	return out
}
