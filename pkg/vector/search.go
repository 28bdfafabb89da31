package vector

import (
	"context"
	"math/rand/v2"

	"golang.org/x/sync/errgroup"
)

// MultiSearch runs every query against d concurrently. The returned slice is
// index-aligned with queries. The first error cancels the remaining searches.
func MultiSearch(ctx context.Context, d Driver, queries []Query) ([][]Result, error) {
	results := make([][]Result, len(queries))

	g, gctx := errgroup.WithContext(ctx)
	for i, q := range queries {
		g.Go(func() error {
			res, err := d.Search(gctx, q)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// RandomQueries builds n queries from uniformly random unit vectors. TopKMMR
// is half of topK.
func RandomQueries(n, dim, topK int, includeValues bool, rng *rand.Rand) []Query {
	queries := make([]Query, n)
	for i := range queries {
		queries[i] = Query{
			Embedding:     RandomVector(dim, rng),
			TopK:          topK,
			TopKMMR:       topK / 2,
			IncludeValues: includeValues,
		}
	}
	return queries
}

// RandomVector returns a unit vector with non-negative components.
func RandomVector(dim int, rng *rand.Rand) []float32 {
	v := make([]float64, dim)
	for i := range v {
		v[i] = rng.Float64()
	}
	Normalize(v)
	return Float32s(v)
}
