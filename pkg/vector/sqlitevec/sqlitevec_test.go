package sqlitevec_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/sway/pkg/logger"
	"github.com/papercomputeco/sway/pkg/vector"
	"github.com/papercomputeco/sway/pkg/vector/sqlitevec"
)

func newDriver() *sqlitevec.SQLiteVecDriver {
	driver, err := sqlitevec.NewSQLiteVecDriver(sqlitevec.Config{
		DBPath:     ":memory:",
		Dimensions: 4,
	}, logger.Nop())
	Expect(err).NotTo(HaveOccurred())
	return driver
}

var _ = Describe("SQLiteVecDriver", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	Describe("NewSQLiteVecDriver", func() {
		It("should return an error when DBPath is empty", func() {
			_, err := sqlitevec.NewSQLiteVecDriver(sqlitevec.Config{DBPath: ""}, logger.Nop())
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("database path is required"))
		})

		It("should create a driver with an in-memory database", func() {
			driver := newDriver()
			Expect(driver.Dimensions()).To(Equal(4))
			Expect(driver.Metric()).To(Equal(vector.MetricCosine))
			Expect(driver.Close()).To(Succeed())
		})

		It("should error when dimension not specified", func() {
			_, err := sqlitevec.NewSQLiteVecDriver(sqlitevec.Config{
				DBPath: ":memory:",
			}, logger.Nop())
			Expect(err).To(HaveOccurred())
		})

		It("should reject dot product scoring", func() {
			_, err := sqlitevec.NewSQLiteVecDriver(sqlitevec.Config{
				DBPath:     ":memory:",
				Dimensions: 4,
				Metric:     vector.MetricDot,
			}, logger.Nop())
			Expect(err).To(MatchError(vector.ErrUnsupportedMetric))
		})
	})

	Describe("Interface compliance", func() {
		It("should implement vector.Driver interface", func() {
			var _ vector.Driver = (*sqlitevec.SQLiteVecDriver)(nil)
		})
	})

	Context("with documents", func() {
		var driver *sqlitevec.SQLiteVecDriver

		BeforeEach(func() {
			driver = newDriver()
			Expect(driver.Add(ctx, []vector.Document{
				{ID: "doc-1", Embedding: []float32{1, 0, 0, 0}, Metadata: map[string]any{"genre": "jazz"}},
				{ID: "doc-2", Embedding: []float32{0.9, 0.1, 0, 0}, Metadata: map[string]any{"genre": "rock"}},
				{ID: "doc-3", Embedding: []float32{0, 0, 1, 0}, Metadata: map[string]any{"genre": "jazz"}},
			})).To(Succeed())
		})

		AfterEach(func() {
			Expect(driver.Close()).To(Succeed())
		})

		It("should do nothing when given empty docs", func() {
			Expect(driver.Add(ctx, nil)).To(Succeed())
		})

		It("should reject embeddings of the wrong size", func() {
			err := driver.Add(ctx, []vector.Document{{ID: "bad", Embedding: []float32{1}}})
			Expect(err).To(MatchError(vector.ErrDimensionMismatch))
		})

		It("should return the closest documents first", func() {
			results, err := driver.Search(ctx, vector.Query{Embedding: []float32{1, 0, 0, 0}, TopK: 2})
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(2))
			Expect(results[0].ID).To(Equal("doc-1"))
			Expect(results[0].Score).To(BeNumerically("~", 1, 1e-5))
			Expect(results[1].ID).To(Equal("doc-2"))
			Expect(results[0].Score).To(BeNumerically(">=", results[1].Score))
			Expect(results[0].Metadata).To(HaveKeyWithValue("genre", "jazz"))
		})

		It("should only return embeddings when asked", func() {
			results, err := driver.Search(ctx, vector.Query{Embedding: []float32{1, 0, 0, 0}, TopK: 1})
			Expect(err).NotTo(HaveOccurred())
			Expect(results[0].Embedding).To(BeNil())

			results, err = driver.Search(ctx, vector.Query{Embedding: []float32{1, 0, 0, 0}, TopK: 1, IncludeValues: true})
			Expect(err).NotTo(HaveOccurred())
			Expect(results[0].Embedding).To(Equal([]float32{1, 0, 0, 0}))
		})

		It("should apply history and metadata filters", func() {
			f := driver.HistoryFilter([]string{"doc-1"}, vector.Filter{Match: map[string]any{"genre": "jazz"}})
			results, err := driver.Search(ctx, vector.Query{Embedding: []float32{1, 0, 0, 0}, TopK: 2, Filter: f})
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(1))
			Expect(results[0].ID).To(Equal("doc-3"))
		})

		It("should update an existing document", func() {
			Expect(driver.Add(ctx, []vector.Document{
				{ID: "doc-3", Embedding: []float32{1, 0, 0, 0}, Metadata: map[string]any{"genre": "pop"}},
			})).To(Succeed())

			doc, err := driver.Fetch(ctx, "doc-3")
			Expect(err).NotTo(HaveOccurred())
			Expect(doc.Embedding).To(Equal([]float32{1, 0, 0, 0}))
			Expect(doc.Metadata).To(HaveKeyWithValue("genre", "pop"))
		})

		It("should return ErrNotFound for unknown documents", func() {
			_, err := driver.Fetch(ctx, "missing")
			Expect(err).To(MatchError(vector.ErrNotFound))
		})

		It("should remove documents from search results after deletion", func() {
			Expect(driver.Delete(ctx, []string{"doc-1", "missing"})).To(Succeed())

			results, err := driver.Search(ctx, vector.Query{Embedding: []float32{1, 0, 0, 0}, TopK: 3})
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(2))
			Expect(results[0].ID).To(Equal("doc-2"))
		})
	})
})
