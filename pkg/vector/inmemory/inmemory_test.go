package inmemory_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/sway/pkg/vector"
	"github.com/papercomputeco/sway/pkg/vector/inmemory"
)

var _ = Describe("Driver", func() {
	var (
		ctx    context.Context
		driver *inmemory.Driver
	)

	BeforeEach(func() {
		ctx = context.Background()

		var err error
		driver, err = inmemory.NewDriver(3, vector.MetricCosine)
		Expect(err).NotTo(HaveOccurred())

		Expect(driver.Add(ctx, []vector.Document{
			{ID: "x", Embedding: []float32{1, 0, 0}, Metadata: map[string]any{"kind": "a"}},
			{ID: "y", Embedding: []float32{0, 1, 0}, Metadata: map[string]any{"kind": "b"}},
			{ID: "xy", Embedding: []float32{1, 1, 0}, Metadata: map[string]any{"kind": "a"}},
		})).To(Succeed())
	})

	It("implements vector.Driver", func() {
		var _ vector.Driver = driver
	})

	It("rejects non-positive dimensions", func() {
		_, err := inmemory.NewDriver(0, vector.MetricCosine)
		Expect(err).To(HaveOccurred())
	})

	It("rejects embeddings of the wrong size", func() {
		err := driver.Add(ctx, []vector.Document{{ID: "bad", Embedding: []float32{1}}})
		Expect(err).To(MatchError(vector.ErrDimensionMismatch))
	})

	It("orders results best first", func() {
		res, err := driver.Search(ctx, vector.Query{Embedding: []float32{1, 0, 0}, TopK: 3})
		Expect(err).NotTo(HaveOccurred())
		Expect(res).To(HaveLen(3))
		Expect(res[0].ID).To(Equal("x"))
		Expect(res[1].ID).To(Equal("xy"))
		Expect(res[2].ID).To(Equal("y"))
		Expect(res[0].Embedding).To(BeNil())
	})

	It("returns embeddings when asked", func() {
		res, err := driver.Search(ctx, vector.Query{Embedding: []float32{1, 0, 0}, TopK: 1, IncludeValues: true})
		Expect(err).NotTo(HaveOccurred())
		Expect(res[0].Embedding).To(Equal([]float32{1, 0, 0}))
	})

	It("applies the history filter", func() {
		f := driver.HistoryFilter([]string{"x"}, vector.Filter{Match: map[string]any{"kind": "a"}})
		res, err := driver.Search(ctx, vector.Query{Embedding: []float32{1, 0, 0}, TopK: 3, Filter: f})
		Expect(err).NotTo(HaveOccurred())
		Expect(res).To(HaveLen(1))
		Expect(res[0].ID).To(Equal("xy"))
	})

	It("sorts ascending for euclidean distance", func() {
		d, err := inmemory.NewDriver(1, vector.MetricEuclidean)
		Expect(err).NotTo(HaveOccurred())
		Expect(d.Add(ctx, []vector.Document{
			{ID: "far", Embedding: []float32{10}},
			{ID: "near", Embedding: []float32{1}},
		})).To(Succeed())

		res, err := d.Search(ctx, vector.Query{Embedding: []float32{0}, TopK: 2})
		Expect(err).NotTo(HaveOccurred())
		Expect(res[0].ID).To(Equal("near"))
		Expect(res[0].Score).To(BeNumerically("~", 1, 1e-9))
	})

	It("fetches and deletes documents", func() {
		doc, err := driver.Fetch(ctx, "y")
		Expect(err).NotTo(HaveOccurred())
		Expect(doc.Metadata).To(HaveKeyWithValue("kind", "b"))

		Expect(driver.Delete(ctx, []string{"y"})).To(Succeed())
		_, err = driver.Fetch(ctx, "y")
		Expect(err).To(MatchError(vector.ErrNotFound))
		Expect(driver.Len()).To(Equal(2))
	})
})
