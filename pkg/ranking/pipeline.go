package ranking

import (
	"math/rand/v2"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/papercomputeco/sway/pkg/blueprint"
	"github.com/papercomputeco/sway/pkg/vector"
)

// Pipeline runs the ranking stages. The zero value is not usable; use New.
type Pipeline struct {
	rng *rand.Rand
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithRand sets the source used for the final shuffle.
func WithRand(rng *rand.Rand) Option {
	return func(p *Pipeline) {
		p.rng = rng
	}
}

// New creates a pipeline. Without WithRand the shuffle is time seeded.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{}
	for _, opt := range opts {
		opt(p)
	}
	if p.rng == nil {
		seed := uint64(time.Now().UnixNano())
		p.rng = rand.New(rand.NewPCG(seed, seed>>1))
	}
	return p
}

// Stats counts candidates removed by the filtering stages.
type Stats struct {
	Thresholded  int
	Deduplicated int
}

// Apply runs every stage over results, one candidate list per query. The
// personalized mode is treated as random. Input slices are not modified.
//
// A Pipeline's random source is not safe for concurrent use; callers sharing
// one pipeline across goroutines must serialize Apply.
func (p *Pipeline) Apply(results [][]Candidate, queries []Query, mode blueprint.BatchType, opts Options) (Batch, Stats, error) {
	var stats Stats

	if len(results) != len(queries) {
		return Batch{}, stats, ErrQueryCountMismatch
	}
	if mode == blueprint.BatchPersonalized {
		mode = blueprint.BatchRandom
	}

	lists := make([][]Candidate, len(results))
	for i, r := range results {
		lists[i] = append([]Candidate(nil), r...)
	}

	if mode != blueprint.BatchRandom && opts.ApplyThreshold != 0 {
		for i, l := range lists {
			lists[i] = Threshold(l, opts.ApplyThreshold, opts.Metric)
			stats.Thresholded += len(l) - len(lists[i])
		}
	}

	if mode != blueprint.BatchBiased && opts.ApplyMMR {
		for i, l := range lists {
			lists[i] = MaximalMarginalRelevance(queries[i].Embedding, l, MMRLambda, queries[i].TopKMMR)
		}
	}

	if opts.RemoveDuplicates {
		before := count(lists)
		lists = Deduplicate(lists)
		stats.Deduplicated = before - count(lists)
	}

	for _, l := range lists {
		SortByScore(l)
	}

	batch := merge(lists, queries)
	p.shuffle(batch)
	return batch, stats, nil
}

// Threshold keeps the candidates at least as good as the effective
// threshold. The effective threshold is the configured one capped by the
// list's mean score, so the filter adapts to weak result sets.
func Threshold(cands []Candidate, configured float64, metric vector.Metric) []Candidate {
	scores := make([]float64, 0, len(cands))
	for _, c := range cands {
		if c.Score != nil {
			scores = append(scores, *c.Score)
		}
	}
	if len(scores) == 0 {
		return cands
	}

	mean := stat.Mean(scores, nil)
	higher := metric.HigherIsBetter()

	threshold := max(configured, mean)
	if higher {
		threshold = min(configured, mean)
	}

	out := cands[:0:0]
	for _, c := range cands {
		if c.Score == nil {
			continue
		}
		if (higher && *c.Score >= threshold) || (!higher && *c.Score <= threshold) {
			out = append(out, c)
		}
	}
	return out
}

// Deduplicate keeps the first occurrence of every id across all lists, in
// list order.
func Deduplicate(lists [][]Candidate) [][]Candidate {
	seen := make(map[string]struct{})
	out := make([][]Candidate, len(lists))
	for i, l := range lists {
		kept := make([]Candidate, 0, len(l))
		for _, c := range l {
			if _, ok := seen[c.ID]; ok {
				continue
			}
			seen[c.ID] = struct{}{}
			kept = append(kept, c)
		}
		out[i] = kept
	}
	return out
}

// SortByScore orders a list by descending score in place. Pairs where
// either score is missing keep their relative order.
func SortByScore(cands []Candidate) {
	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i].Score, cands[j].Score
		return a != nil && b != nil && *a > *b
	})
}

// merge takes each query's own top_k and concatenates across queries.
// Candidates without an id or metadata are dropped.
func merge(lists [][]Candidate, queries []Query) Batch {
	var b Batch
	for i, l := range lists {
		k := min(queries[i].TopK, len(l))
		for _, c := range l[:max(k, 0)] {
			if c.ID == "" || c.Metadata == nil {
				continue
			}
			b.IDs = append(b.IDs, c.ID)
			b.Metadata = append(b.Metadata, c.Metadata)
		}
	}
	return b
}

func (p *Pipeline) shuffle(b Batch) {
	p.rng.Shuffle(len(b.IDs), func(i, j int) {
		b.IDs[i], b.IDs[j] = b.IDs[j], b.IDs[i]
		b.Metadata[i], b.Metadata[j] = b.Metadata[j], b.Metadata[i]
	})
}

func count(lists [][]Candidate) int {
	n := 0
	for _, l := range lists {
		n += len(l)
	}
	return n
}
