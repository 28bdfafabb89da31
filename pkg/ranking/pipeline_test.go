package ranking_test

import (
	"context"
	"fmt"
	"math/rand/v2"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/sway/pkg/blueprint"
	"github.com/papercomputeco/sway/pkg/ranking"
	"github.com/papercomputeco/sway/pkg/vector"
	"github.com/papercomputeco/sway/pkg/vector/inmemory"
)

func score(f float64) *float64 { return &f }

func cand(id string, s float64, vec ...float32) ranking.Candidate {
	return ranking.Candidate{
		ID:       id,
		Vector:   vec,
		Metadata: map[string]any{"id": id},
		Score:    score(s),
	}
}

func ids(cands []ranking.Candidate) []string {
	out := make([]string, len(cands))
	for i, c := range cands {
		out[i] = c.ID
	}
	return out
}

var _ = Describe("Pipeline", func() {
	var p *ranking.Pipeline

	BeforeEach(func() {
		p = ranking.New(ranking.WithRand(rand.New(rand.NewPCG(7, 11))))
	})

	It("fails when results and queries are not aligned", func() {
		_, _, err := p.Apply([][]ranking.Candidate{{}}, nil, blueprint.BatchRandom, ranking.Options{})
		Expect(err).To(MatchError(ranking.ErrQueryCountMismatch))
	})

	It("returns the top k of a single query", func() {
		var list []ranking.Candidate
		for i := range 8 {
			list = append(list, cand(fmt.Sprintf("c%d", i), float64(i)))
		}

		batch, _, err := p.Apply(
			[][]ranking.Candidate{list},
			[]ranking.Query{{TopK: 5}},
			blueprint.BatchRandom,
			ranking.Options{},
		)
		Expect(err).NotTo(HaveOccurred())
		Expect(batch.IDs).To(HaveLen(5))
		Expect(batch.IDs).To(ConsistOf("c3", "c4", "c5", "c6", "c7"))
		for i, id := range batch.IDs {
			Expect(batch.Metadata[i]).To(HaveKeyWithValue("id", id))
		}
	})

	It("removes duplicates across queries", func() {
		first := []ranking.Candidate{
			cand("a", 0.9), cand("b", 0.8), cand("c", 0.7), cand("d", 0.6), cand("e", 0.5),
		}
		second := []ranking.Candidate{
			cand("a", 0.95), cand("f", 0.8), cand("c", 0.75), cand("g", 0.6), cand("h", 0.5),
		}

		batch, stats, err := p.Apply(
			[][]ranking.Candidate{first, second},
			[]ranking.Query{{TopK: 5}, {TopK: 5}},
			blueprint.BatchSampled,
			ranking.Options{RemoveDuplicates: true},
		)
		Expect(err).NotTo(HaveOccurred())
		Expect(batch.IDs).To(HaveLen(8))
		Expect(batch.IDs).To(ConsistOf("a", "b", "c", "d", "e", "f", "g", "h"))
		Expect(stats.Deduplicated).To(Equal(2))
	})

	It("keeps duplicates when asked to", func() {
		batch, _, err := p.Apply(
			[][]ranking.Candidate{{cand("a", 1)}, {cand("a", 1)}},
			[]ranking.Query{{TopK: 1}, {TopK: 1}},
			blueprint.BatchRandom,
			ranking.Options{},
		)
		Expect(err).NotTo(HaveOccurred())
		Expect(batch.IDs).To(Equal([]string{"a", "a"}))
	})

	It("drops candidates without an id or metadata", func() {
		noMeta := cand("m", 0.5)
		noMeta.Metadata = nil

		batch, _, err := p.Apply(
			[][]ranking.Candidate{{cand("", 0.9), noMeta, cand("ok", 0.1)}},
			[]ranking.Query{{TopK: 3}},
			blueprint.BatchRandom,
			ranking.Options{},
		)
		Expect(err).NotTo(HaveOccurred())
		Expect(batch.IDs).To(Equal([]string{"ok"}))
	})

	It("skips the threshold for random and personalized batches", func() {
		list := []ranking.Candidate{cand("hi", 0.9), cand("lo", 0.1)}
		for _, mode := range []blueprint.BatchType{blueprint.BatchRandom, blueprint.BatchPersonalized} {
			batch, stats, err := p.Apply(
				[][]ranking.Candidate{list},
				[]ranking.Query{{TopK: 2}},
				mode,
				ranking.Options{ApplyThreshold: 0.8, Metric: vector.MetricCosine},
			)
			Expect(err).NotTo(HaveOccurred())
			Expect(batch.IDs).To(HaveLen(2))
			Expect(stats.Thresholded).To(BeZero())
		}
	})

	It("thresholds biased batches against the list mean", func() {
		list := []ranking.Candidate{cand("hi", 0.9), cand("mid", 0.6), cand("lo", 0.0)}
		batch, stats, err := p.Apply(
			[][]ranking.Candidate{list},
			[]ranking.Query{{TopK: 3}},
			blueprint.BatchBiased,
			ranking.Options{ApplyThreshold: 0.95, Metric: vector.MetricCosine},
		)
		Expect(err).NotTo(HaveOccurred())
		Expect(batch.IDs).To(ConsistOf("hi", "mid"))
		Expect(stats.Thresholded).To(Equal(1))
	})

	It("does not modify its input", func() {
		list := []ranking.Candidate{cand("lo", 0.1), cand("hi", 0.9)}
		_, _, err := p.Apply([][]ranking.Candidate{list}, []ranking.Query{{TopK: 2}}, blueprint.BatchRandom, ranking.Options{})
		Expect(err).NotTo(HaveOccurred())
		Expect(ids(list)).To(Equal([]string{"lo", "hi"}))
	})

	It("diversifies with MMR except for biased batches", func() {
		query := []float32{1, 1}
		list := []ranking.Candidate{
			cand("a", 0.99, 1, 0.9),
			cand("a2", 0.98, 1, 0.85),
			cand("b", 0.5, 0.6, 1),
		}
		queries := []ranking.Query{{Embedding: query, TopK: 2, TopKMMR: 2}}

		batch, _, err := p.Apply([][]ranking.Candidate{list}, queries, blueprint.BatchSampled, ranking.Options{ApplyMMR: true})
		Expect(err).NotTo(HaveOccurred())
		Expect(batch.IDs).To(ConsistOf("a", "b"))

		batch, _, err = p.Apply([][]ranking.Candidate{list}, queries, blueprint.BatchBiased, ranking.Options{ApplyMMR: true})
		Expect(err).NotTo(HaveOccurred())
		Expect(batch.IDs).To(ConsistOf("a", "a2"))
	})
})

var _ = Describe("Threshold", func() {
	It("keeps at most as many candidates as the threshold rises", func() {
		list := []ranking.Candidate{cand("a", 0.2), cand("b", 0.4), cand("c", 0.6), cand("d", 0.8)}
		prev := len(list) + 1
		for _, t := range []float64{0.1, 0.3, 0.5, 0.7, 0.9} {
			kept := len(ranking.Threshold(list, t, vector.MetricCosine))
			Expect(kept).To(BeNumerically("<=", prev))
			prev = kept
		}
	})

	It("uses the larger of configured and mean for distances", func() {
		list := []ranking.Candidate{cand("near", 0.1), cand("mid", 0.5), cand("far", 2.0)}
		kept := ranking.Threshold(list, 0.2, vector.MetricEuclidean)
		Expect(ids(kept)).To(Equal([]string{"near", "mid"}))
	})
})

var _ = Describe("Deduplicate", func() {
	It("leaves no repeated id across lists", func() {
		out := ranking.Deduplicate([][]ranking.Candidate{
			{cand("a", 1), cand("b", 1), cand("a", 1)},
			{cand("b", 1), cand("c", 1)},
		})
		Expect(ids(out[0])).To(Equal([]string{"a", "b"}))
		Expect(ids(out[1])).To(Equal([]string{"c"}))
	})
})

var _ = Describe("SortByScore", func() {
	It("orders scores non-increasing", func() {
		list := []ranking.Candidate{cand("a", 0.1), cand("b", 0.7), cand("c", 0.4)}
		ranking.SortByScore(list)
		Expect(ids(list)).To(Equal([]string{"b", "c", "a"}))
	})

	It("does not move candidates relative to a missing score", func() {
		list := []ranking.Candidate{cand("a", 0.1), {ID: "nil"}, cand("b", 0.7)}
		ranking.SortByScore(list)
		Expect(list[1].ID).To(Equal("nil"))
	})
})

var _ = Describe("FromResults", func() {
	It("copies scores into candidates", func() {
		cands := ranking.FromResults([]vector.Result{
			{Document: vector.Document{ID: "x", Embedding: []float32{1}}, Score: 0.4},
		})
		Expect(cands).To(HaveLen(1))
		Expect(*cands[0].Score).To(Equal(0.4))
		Expect(cands[0].Vector).To(Equal([]float32{1}))
	})

	It("gives documents without metadata an empty map", func() {
		cands := ranking.FromResults([]vector.Result{
			{Document: vector.Document{ID: "x"}, Score: 0.4},
		})
		Expect(cands[0].Metadata).NotTo(BeNil())
		Expect(cands[0].Metadata).To(BeEmpty())
	})

	It("serves stored documents that have no metadata", func() {
		ctx := context.Background()
		d, err := inmemory.NewDriver(4, vector.MetricCosine)
		Expect(err).NotTo(HaveOccurred())

		rng := rand.New(rand.NewPCG(3, 4))
		docs := make([]vector.Document, 8)
		for i := range docs {
			docs[i] = vector.Document{ID: fmt.Sprintf("doc-%d", i), Embedding: vector.RandomVector(4, rng)}
		}
		Expect(d.Add(ctx, docs)).To(Succeed())

		queries := []ranking.Query{{Embedding: vector.RandomVector(4, rng), TopK: 5}}
		results, err := vector.MultiSearch(ctx, d, queries)
		Expect(err).NotTo(HaveOccurred())
		Expect(results[0]).To(HaveLen(5))

		p := ranking.New(ranking.WithRand(rand.New(rand.NewPCG(1, 2))))
		batch, _, err := p.Apply(
			[][]ranking.Candidate{ranking.FromResults(results[0])},
			queries,
			blueprint.BatchRandom,
			ranking.Options{RemoveDuplicates: true},
		)
		Expect(err).NotTo(HaveOccurred())
		Expect(batch.IDs).To(HaveLen(5))
	})
})
