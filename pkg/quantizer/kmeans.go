package quantizer

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
)

// KMeans clusters points into k centroids. Centroids are seeded with
// k-means++ and refined until no assignment changes or maxIter rounds have
// run. It returns the centroids and each point's cluster index. k must not
// exceed len(points).
func KMeans(points [][]float64, k, maxIter int, rng *rand.Rand) ([][]float64, []int) {
	centroids := seedPlusPlus(points, k, rng)
	assign := make([]int, len(points))
	for i := range assign {
		assign[i] = -1
	}

	for range max(maxIter, 1) {
		changed := false
		for i, p := range points {
			c := nearest(centroids, p)
			if c != assign[i] {
				assign[i] = c
				changed = true
			}
		}
		if !changed {
			break
		}

		sums := make([][]float64, k)
		counts := make([]int, k)
		for i, p := range points {
			c := assign[i]
			if sums[c] == nil {
				sums[c] = make([]float64, len(p))
			}
			floats.Add(sums[c], p)
			counts[c]++
		}
		for c := range centroids {
			// empty clusters keep their previous centroid
			if counts[c] == 0 {
				continue
			}
			floats.Scale(1/float64(counts[c]), sums[c])
			centroids[c] = sums[c]
		}
	}

	return centroids, assign
}

// seedPlusPlus picks the first centroid uniformly and every next one with
// probability proportional to its squared distance to the closest centroid
// chosen so far.
func seedPlusPlus(points [][]float64, k int, rng *rand.Rand) [][]float64 {
	centroids := make([][]float64, 0, k)
	centroids = append(centroids, clone(points[rng.IntN(len(points))]))

	d2 := make([]float64, len(points))
	for i, p := range points {
		d2[i] = sqDist(p, centroids[0])
	}

	for len(centroids) < k {
		total := floats.Sum(d2)

		var next int
		if total == 0 {
			next = rng.IntN(len(points))
		} else {
			target := rng.Float64() * total
			for next = 0; next < len(d2)-1; next++ {
				target -= d2[next]
				if target <= 0 {
					break
				}
			}
		}

		c := clone(points[next])
		centroids = append(centroids, c)
		for i, p := range points {
			d2[i] = min(d2[i], sqDist(p, c))
		}
	}
	return centroids
}

func nearest(centroids [][]float64, p []float64) int {
	best, bestDist := 0, sqDist(p, centroids[0])
	for c := 1; c < len(centroids); c++ {
		if d := sqDist(p, centroids[c]); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

func sqDist(a, b []float64) float64 {
	d := floats.Distance(a, b, 2)
	return d * d
}

func clone(v []float64) []float64 {
	return append([]float64(nil), v...)
}
