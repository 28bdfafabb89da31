package vectorutils

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/sway/pkg/logger"
	"github.com/papercomputeco/sway/pkg/vector"
	"github.com/papercomputeco/sway/pkg/vector/chroma"
	"github.com/papercomputeco/sway/pkg/vector/inmemory"
	"github.com/papercomputeco/sway/pkg/vector/sqlitevec"
)

var _ = Describe("NewVectorDriver", func() {
	It("builds the in-memory driver by default", func() {
		d, err := NewVectorDriver(context.Background(), &NewVectorDriverOpts{Dimensions: 8, Logger: logger.Nop()})
		Expect(err).NotTo(HaveOccurred())
		Expect(d).To(BeAssignableToTypeOf(&inmemory.Driver{}))
		Expect(d.Metric()).To(Equal(vector.MetricCosine))
	})

	It("builds the sqlite driver", func() {
		d, err := NewVectorDriver(context.Background(), &NewVectorDriverOpts{
			ProviderType: "sqlite",
			Target:       ":memory:",
			Dimensions:   8,
			Metric:       "euclidean_dist",
			Logger:       logger.Nop(),
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(d).To(BeAssignableToTypeOf(&sqlitevec.SQLiteVecDriver{}))
		Expect(d.Close()).To(Succeed())
	})

	It("builds the chroma driver from a bare host:port", func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"id":"col-1","name":"sway"}`))
		}))
		DeferCleanup(server.Close)

		d, err := NewVectorDriver(context.Background(), &NewVectorDriverOpts{
			ProviderType: "chroma",
			Target:       strings.TrimPrefix(server.URL, "http://"),
			Collection:   "sway",
			Dimensions:   8,
			Logger:       logger.Nop(),
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(d).To(BeAssignableToTypeOf(&chroma.Driver{}))
	})

	It("rejects unknown providers and metrics", func() {
		_, err := NewVectorDriver(context.Background(), &NewVectorDriverOpts{ProviderType: "pinecone", Dimensions: 8})
		Expect(err).To(MatchError(ContainSubstring("unsupported vector store provider")))

		_, err = NewVectorDriver(context.Background(), &NewVectorDriverOpts{Dimensions: 8, Metric: "hamming"})
		Expect(err).To(MatchError(vector.ErrUnsupportedMetric))
	})

	DescribeTable("splitting qdrant targets",
		func(target, host string, port int) {
			h, p, err := splitTarget(target)
			Expect(err).NotTo(HaveOccurred())
			Expect(h).To(Equal(host))
			Expect(p).To(Equal(port))
		},
		Entry("empty", "", "localhost", 0),
		Entry("host only", "qdrant", "qdrant", 0),
		Entry("host and port", "qdrant:6334", "qdrant", 6334),
		Entry("with scheme", "https://cloud.qdrant.io:6334", "cloud.qdrant.io", 6334),
	)
})
