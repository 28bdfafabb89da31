package local_test

import (
	"context"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/sway/pkg/backend"
	"github.com/papercomputeco/sway/pkg/backend/local"
	"github.com/papercomputeco/sway/pkg/blueprint"
	"github.com/papercomputeco/sway/pkg/logger"
	"github.com/papercomputeco/sway/pkg/session/inmemory"
	"github.com/papercomputeco/sway/pkg/signal"
)

var _ = Describe("Backend", func() {
	var (
		ctx context.Context
		b   *local.Backend
		id  string
	)

	BeforeEach(func() {
		ctx = context.Background()
		b = local.New(inmemory.NewDriver(), local.Config{Seed: 7}, logger.Nop())

		var err error
		id, err = b.CreateSession(ctx, backend.CreateSession{
			VectorStoreID: "vdb",
			Source:        blueprint.Source{Kind: blueprint.KindSimple},
		})
		Expect(err).NotTo(HaveOccurred())
	})

	signalWith := func(vec []float32, sig signal.Signal) {
		Expect(b.Signal(ctx, backend.SignalRequest{
			SessionID: id,
			ContentID: "c",
			Vector:    vec,
			State:     "1",
			Signal:    sig,
		})).To(Succeed())
	}

	Describe("CreateSession", func() {
		It("returns the existing session for a persistent id", func() {
			first, err := b.CreateSession(ctx, backend.CreateSession{ID: "user", VectorStoreID: "vdb"})
			Expect(err).NotTo(HaveOccurred())
			Expect(b.UpdateState(ctx, first, "2", blueprint.BatchBiased)).To(Succeed())

			again, err := b.CreateSession(ctx, backend.CreateSession{ID: "user", VectorStoreID: "vdb"})
			Expect(err).NotTo(HaveOccurred())
			Expect(again).To(Equal(first))

			s, err := b.GetSession(ctx, again)
			Expect(err).NotTo(HaveOccurred())
			Expect(s.State).To(Equal("2"))
		})
	})

	Describe("Signal", func() {
		It("flags the session as having embeddings", func() {
			s, _ := b.GetSession(ctx, id)
			Expect(s.HasEmbeddings).To(BeFalse())

			signalWith([]float32{1, 0}, signal.Like)

			s, err := b.GetSession(ctx, id)
			Expect(err).NotTo(HaveOccurred())
			Expect(s.HasEmbeddings).To(BeTrue())
			Expect(s.State).To(Equal("1"))
		})
	})

	Describe("BiasedBatch", func() {
		It("weights signal vectors and appends the bias", func() {
			signalWith([]float32{1, 0}, signal.Like)
			signalWith([]float32{0, 1}, signal.Purchase)

			wv, err := b.BiasedBatch(ctx, backend.BiasedBatchRequest{
				SessionID:   id,
				State:       "2",
				Params:      blueprint.DefaultParams(),
				BiasVectors: [][]float32{{0.5, 0.5}},
				BiasWeights: []float64{3},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(wv.Vectors).To(Equal([][]float32{{1, 0}, {0, 1}, {0.5, 0.5}}))
			Expect(wv.Weights).To(Equal([]float64{signal.Like.Weight, signal.Purchase.Weight, 3}))

			s, _ := b.GetSession(ctx, id)
			Expect(s.State).To(Equal("2"))
		})

		It("honors last_n", func() {
			signalWith([]float32{1, 0}, signal.Like)
			signalWith([]float32{0, 1}, signal.Like)

			params := blueprint.DefaultParams()
			params.LastN = 1
			wv, err := b.BiasedBatch(ctx, backend.BiasedBatchRequest{SessionID: id, State: "1", Params: params})
			Expect(err).NotTo(HaveOccurred())
			Expect(wv.Vectors).To(Equal([][]float32{{0, 1}}))
		})

		It("rejects mismatched bias", func() {
			_, err := b.BiasedBatch(ctx, backend.BiasedBatchRequest{
				SessionID:   id,
				BiasVectors: [][]float32{{1}},
			})
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("SampledBatch", func() {
		It("clusters signal vectors into weighted topics", func() {
			signalWith([]float32{1, 0}, signal.Signal{Label: "LIKE", Weight: 1})
			signalWith([]float32{0.9, 0.1}, signal.Signal{Label: "LIKE", Weight: 1})
			signalWith([]float32{0, 1}, signal.Signal{Label: "LIKE", Weight: 5})

			wv, err := b.SampledBatch(ctx, backend.SampledBatchRequest{SessionID: id, State: "3", NTopics: 2})
			Expect(err).NotTo(HaveOccurred())
			Expect(wv.Len()).To(Equal(2))
			Expect(wv.Weights).To(ConsistOf(2.0, 5.0))
		})

		It("never asks for more topics than signals", func() {
			signalWith([]float32{1, 0}, signal.Like)

			wv, err := b.SampledBatch(ctx, backend.SampledBatchRequest{SessionID: id, State: "3", NTopics: 5})
			Expect(err).NotTo(HaveOccurred())
			Expect(wv.Len()).To(Equal(1))
		})

		It("is empty without signals", func() {
			wv, err := b.SampledBatch(ctx, backend.SampledBatchRequest{SessionID: id, State: "3"})
			Expect(err).NotTo(HaveOccurred())
			Expect(wv.Len()).To(BeZero())
		})
	})

	Describe("UserEmbeddings", func() {
		It("skips signals without vectors", func() {
			signalWith(nil, signal.Like)
			signalWith([]float32{1, 0}, signal.Like)

			wv, err := b.UserEmbeddings(ctx, id, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(wv.Vectors).To(Equal([][]float32{{1, 0}}))
		})
	})

	Describe("history", func() {
		It("round trips served ids", func() {
			Expect(b.AddHistory(ctx, id, []string{"a", "b"})).To(Succeed())
			ids, err := b.History(ctx, id)
			Expect(err).NotTo(HaveOccurred())
			Expect(ids).To(Equal([]string{"a", "b"}))
		})
	})

	Describe("vector stores", func() {
		It("registers scalar sketches", func() {
			ok, err := b.VectorStoreExists(ctx, "vdb")
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())

			Expect(b.InitScalar(ctx, backend.ScalarInit{
				VectorStoreID:    "vdb",
				QuantizedVectors: [][]uint16{{1, 2, 3}},
				Quantiles:        []float64{0, 1},
			})).To(Succeed())

			ok, err = b.VectorStoreExists(ctx, "vdb")
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
		})

		It("registers product sketches", func() {
			Expect(b.InitProduct(ctx, backend.ProductInit{VectorStoreID: "pq", M: 2, Ks: 4, Ds: 2})).To(Succeed())
			ok, _ := b.VectorStoreExists(ctx, "pq")
			Expect(ok).To(BeTrue())
		})
	})

	Describe("Blueprint", func() {
		It("fails without a blueprint directory", func() {
			_, err := b.Blueprint(ctx, "mine")
			Expect(err).To(HaveOccurred())
		})

		It("reads custom documents from the directory", func() {
			dir := GinkgoT().TempDir()
			Expect(os.WriteFile(filepath.Join(dir, "mine.json"), []byte(`{
				"nodes": [{"name": "a", "batch_type": "random"}],
				"edges": [{"name": "e", "edge_type": "BATCH", "start": "a", "end": "a"}]
			}`), 0o600)).To(Succeed())

			withDir := local.New(inmemory.NewDriver(), local.Config{
				Blueprints: blueprint.DirFetcher{Dir: dir},
			}, logger.Nop())
			doc, err := withDir.Blueprint(ctx, "mine")
			Expect(err).NotTo(HaveOccurred())
			Expect(doc.Nodes[0].Name).To(Equal("a"))
		})
	})
})
