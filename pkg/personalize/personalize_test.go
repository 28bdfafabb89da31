package personalize_test

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/sway/pkg/backend"
	"github.com/papercomputeco/sway/pkg/backend/local"
	"github.com/papercomputeco/sway/pkg/blueprint"
	"github.com/papercomputeco/sway/pkg/eventstream"
	"github.com/papercomputeco/sway/pkg/logger"
	"github.com/papercomputeco/sway/pkg/personalize"
	"github.com/papercomputeco/sway/pkg/session"
	sessionmem "github.com/papercomputeco/sway/pkg/session/inmemory"
	"github.com/papercomputeco/sway/pkg/signal"
	"github.com/papercomputeco/sway/pkg/vector"
	"github.com/papercomputeco/sway/pkg/vector/inmemory"
	"github.com/papercomputeco/sway/pkg/worker"
)

const (
	dims    = 4
	numDocs = 40
)

const personalizedDoc = `{
  "nodes": [{"name": "0", "batch_type": "personalized", "params": {}}],
  "edges": [
    {"name": "e1", "edge_type": "BATCH",   "start": "0", "end": "0"},
    {"name": "e2", "edge_type": "DEFAULT", "start": "0", "end": "0"}
  ]
}`

const sampledDoc = `{
  "nodes": [{"name": "0", "batch_type": "sampled", "params": {"n_topics": 2}}],
  "edges": [
    {"name": "e1", "edge_type": "BATCH",   "start": "0", "end": "0"},
    {"name": "e2", "edge_type": "DEFAULT", "start": "0", "end": "0"}
  ]
}`

type docFetcher map[string]string

func (f docFetcher) Blueprint(_ context.Context, id string) (blueprint.Document, error) {
	raw, ok := f[id]
	if !ok {
		return blueprint.Document{}, fmt.Errorf("no blueprint %q", id)
	}
	return blueprint.DecodeJSON([]byte(raw))
}

type recordingPublisher struct {
	mu      sync.Mutex
	signals []*eventstream.SignalEvent
	batches []*eventstream.BatchEvent
}

func (r *recordingPublisher) PublishSignal(_ context.Context, e *eventstream.SignalEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.signals = append(r.signals, e)
	return nil
}

func (r *recordingPublisher) PublishBatch(_ context.Context, e *eventstream.BatchEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, e)
	return nil
}

func (r *recordingPublisher) Close() error { return nil }

func newVectorStore(n int) *inmemory.Driver {
	d, err := inmemory.NewDriver(dims, vector.MetricCosine)
	Expect(err).NotTo(HaveOccurred())

	rng := rand.New(rand.NewPCG(7, 11))
	docs := make([]vector.Document, n)
	for i := range docs {
		docs[i] = vector.Document{
			ID:        fmt.Sprintf("doc-%02d", i),
			Embedding: vector.RandomVector(dims, rng),
			Metadata:  map[string]any{"n": i},
		}
	}
	Expect(d.Add(context.Background(), docs)).To(Succeed())
	return d
}

var _ = Describe("Personalizer", func() {
	var (
		ctx   context.Context
		store session.Store
		be    *local.Backend
		vs    *inmemory.Driver
		cfg   personalize.Config
		p     *personalize.Personalizer
	)

	BeforeEach(func() {
		ctx = context.Background()
		store = sessionmem.NewDriver()
		be = local.New(store, local.Config{
			Seed:       3,
			Blueprints: docFetcher{"personalized": personalizedDoc, "sampled": sampledDoc},
		}, logger.Nop())
		vs = newVectorStore(numDocs)
		cfg = personalize.Config{BatchSize: 5, Logger: logger.Nop()}
	})

	JustBeforeEach(func() {
		var err error
		p, err = personalize.New(cfg, be, personalize.WithSeed(42))
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("New", func() {
		It("rejects unknown quantizer types", func() {
			_, err := personalize.New(personalize.Config{QuantizerType: "binary"}, be)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("AddVectorStore", func() {
		It("sketches an unknown vector store with the scalar quantizer", func() {
			Expect(p.AddVectorStore(ctx, "vdb", vs)).To(Succeed())

			ok, err := be.VectorStoreExists(ctx, "vdb")
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
		})

		It("fails when the vector store returns nothing to train on", func() {
			empty, err := inmemory.NewDriver(dims, vector.MetricCosine)
			Expect(err).NotTo(HaveOccurred())
			Expect(p.AddVectorStore(ctx, "vdb", empty)).To(MatchError(personalize.ErrNoTrainingVectors))
		})

		It("registers known vector stores without sketching", func() {
			Expect(store.PutVectorStore(ctx, session.VectorStore{ID: "vdb", Quantizer: "scalar", Dimensions: dims})).To(Succeed())

			empty, err := inmemory.NewDriver(dims, vector.MetricCosine)
			Expect(err).NotTo(HaveOccurred())
			Expect(p.AddVectorStore(ctx, "vdb", empty)).To(Succeed())
		})

		Context("with the product quantizer", func() {
			BeforeEach(func() {
				cfg.QuantizerType = personalize.QuantizerProduct
				cfg.M = 2
				cfg.Ks = 4
			})

			It("sketches the vector store", func() {
				Expect(p.AddVectorStore(ctx, "vdb", vs)).To(Succeed())
				ok, err := be.VectorStoreExists(ctx, "vdb")
				Expect(err).NotTo(HaveOccurred())
				Expect(ok).To(BeTrue())
			})
		})
	})

	Describe("Session", func() {
		It("returns the given id for persistent sessions", func() {
			id, err := p.Session(ctx, "SIMPLE", "vdb", personalize.SessionOptions{ID: "user-1"})
			Expect(err).NotTo(HaveOccurred())
			Expect(id).To(Equal("user-1"))

			again, err := p.Session(ctx, "SIMPLE", "vdb", personalize.SessionOptions{ID: "user-1"})
			Expect(err).NotTo(HaveOccurred())
			Expect(again).To(Equal("user-1"))
		})

		It("treats unknown algorithms as factory presets", func() {
			id, err := p.Session(ctx, "AI_AGENTS", "vdb", personalize.SessionOptions{})
			Expect(err).NotTo(HaveOccurred())

			s, err := p.GetSession(ctx, id)
			Expect(err).NotTo(HaveOccurred())
			Expect(s.Algorithm).To(Equal(blueprint.KindFactory))
			Expect(s.FactoryID).To(Equal("AI_AGENTS"))
		})

		It("requires a custom id for CUSTOM sessions", func() {
			_, err := p.Session(ctx, "CUSTOM", "vdb", personalize.SessionOptions{})
			Expect(err).To(MatchError(blueprint.ErrMissingCustomID))
		})
	})

	Context("with a registered vector store", func() {
		JustBeforeEach(func() {
			Expect(p.AddVectorStore(ctx, "vdb", vs)).To(Succeed())
		})

		It("fails for sessions on an unknown vector store", func() {
			id, err := p.Session(ctx, "SIMPLE", "other", personalize.SessionOptions{})
			Expect(err).NotTo(HaveOccurred())
			_, err = p.Batch(ctx, id, personalize.BatchOptions{})
			Expect(err).To(MatchError(personalize.ErrUnknownVectorStore))
		})

		It("fails for unknown sessions", func() {
			_, err := p.Batch(ctx, "missing", personalize.BatchOptions{})
			Expect(session.IsNotFound(err)).To(BeTrue())
		})

		Describe("a SIMPLE session", func() {
			var id string

			JustBeforeEach(func() {
				var err error
				id, err = p.Session(ctx, "SIMPLE", "vdb", personalize.SessionOptions{})
				Expect(err).NotTo(HaveOccurred())
			})

			It("serves random batches from the initial state", func() {
				batch, err := p.Batch(ctx, id, personalize.BatchOptions{})
				Expect(err).NotTo(HaveOccurred())
				Expect(batch.IDs).To(HaveLen(5))
				Expect(batch.Metadata).To(HaveLen(5))

				s, err := p.GetSession(ctx, id)
				Expect(err).NotTo(HaveOccurred())
				Expect(s.State).To(Equal("0"))
			})

			It("honors the requested size", func() {
				batch, err := p.Batch(ctx, id, personalize.BatchOptions{Size: 3})
				Expect(err).NotTo(HaveOccurred())
				Expect(batch.IDs).To(HaveLen(3))
			})

			It("moves along the blueprint on signals", func() {
				res, err := p.AddSignal(ctx, id, signal.Like, "doc-01")
				Expect(err).NotTo(HaveOccurred())
				Expect(res.Success).To(BeTrue())
				Expect(res.Source.Name).To(Equal("0"))
				Expect(res.Destination.Name).To(Equal("1"))
				Expect(res.BatchType).To(Equal(blueprint.BatchRandom))

				s, err := p.GetSession(ctx, id)
				Expect(err).NotTo(HaveOccurred())
				Expect(s.State).To(Equal("1"))
				Expect(s.HasEmbeddings).To(BeTrue())
			})

			It("requires bias for biased vertices", func() {
				_, err := p.AddSignal(ctx, id, signal.Like, "doc-01")
				Expect(err).NotTo(HaveOccurred())

				_, err = p.Batch(ctx, id, personalize.BatchOptions{})
				Expect(err).To(MatchError(personalize.ErrBiasRequired))

				bias := &backend.WeightedVectors{
					Vectors: [][]float32{{1, 0, 0, 0}},
					Weights: []float64{1},
				}
				batch, err := p.Batch(ctx, id, personalize.BatchOptions{Bias: bias})
				Expect(err).NotTo(HaveOccurred())
				Expect(batch.Len()).To(BeNumerically(">", 0))
				Expect(batch.Len()).To(BeNumerically("<=", 5))

				s, err := p.GetSession(ctx, id)
				Expect(err).NotTo(HaveOccurred())
				Expect(s.State).To(Equal("2"))
			})

			It("takes the signal weight from the blueprint table", func() {
				_, err := p.AddSignal(ctx, id, signal.Signal{Label: "like"}, "doc-02")
				Expect(err).NotTo(HaveOccurred())

				wv, err := p.UserEmbeddings(ctx, id)
				Expect(err).NotTo(HaveOccurred())
				Expect(wv.Weights).To(Equal([]float64{signal.Like.Weight}))
				Expect(wv.Vectors).To(HaveLen(1))
			})

			It("fails for unknown content", func() {
				_, err := p.AddSignal(ctx, id, signal.Like, "nope")
				Expect(err).To(MatchError(vector.ErrNotFound))
			})
		})

		Describe("a personalized session", func() {
			var id string

			BeforeEach(func() {
				cfg.EnableHistory = true
			})

			JustBeforeEach(func() {
				var err error
				id, err = p.Session(ctx, "CUSTOM", "vdb", personalize.SessionOptions{CustomID: "personalized"})
				Expect(err).NotTo(HaveOccurred())
			})

			It("falls back to random without embeddings", func() {
				batch, err := p.Batch(ctx, id, personalize.BatchOptions{})
				Expect(err).NotTo(HaveOccurred())
				Expect(batch.IDs).To(HaveLen(5))
			})

			It("never serves content twice", func() {
				_, err := p.AddSignal(ctx, id, signal.Like, "doc-00")
				Expect(err).NotTo(HaveOccurred())

				first, err := p.Batch(ctx, id, personalize.BatchOptions{})
				Expect(err).NotTo(HaveOccurred())
				Expect(first.IDs).To(HaveLen(5))
				Expect(first.IDs).NotTo(ContainElement("doc-00"))

				second, err := p.Batch(ctx, id, personalize.BatchOptions{})
				Expect(err).NotTo(HaveOccurred())
				Expect(second.IDs).To(HaveLen(5))
				for _, seen := range append(first.IDs, "doc-00") {
					Expect(second.IDs).NotTo(ContainElement(seen))
				}

				history, err := be.History(ctx, id)
				Expect(err).NotTo(HaveOccurred())
				Expect(history).To(HaveLen(11))
			})
		})

		Describe("a sampled session", func() {
			var id string

			JustBeforeEach(func() {
				var err error
				id, err = p.Session(ctx, "CUSTOM", "vdb", personalize.SessionOptions{CustomID: "sampled"})
				Expect(err).NotTo(HaveOccurred())
			})

			It("falls back to random before any signal", func() {
				batch, err := p.Batch(ctx, id, personalize.BatchOptions{})
				Expect(err).NotTo(HaveOccurred())
				Expect(batch.IDs).To(HaveLen(5))
			})

			It("searches around sampled topics", func() {
				for _, doc := range []string{"doc-03", "doc-04", "doc-05"} {
					_, err := p.AddSignal(ctx, id, signal.Watch, doc)
					Expect(err).NotTo(HaveOccurred())
				}

				batch, err := p.Batch(ctx, id, personalize.BatchOptions{})
				Expect(err).NotTo(HaveOccurred())
				Expect(batch.Len()).To(BeNumerically(">", 0))
				Expect(batch.Len()).To(BeNumerically("<=", 5))
			})
		})

		Describe("events", func() {
			var (
				pub  *recordingPublisher
				pool *worker.Pool
			)

			JustBeforeEach(func() {
				pub = &recordingPublisher{}
				var err error
				pool, err = worker.NewPool(&worker.Config{Publisher: pub, Logger: logger.Nop()})
				Expect(err).NotTo(HaveOccurred())

				p, err = personalize.New(cfg, be, personalize.WithEventPool(pool), personalize.WithSeed(1))
				Expect(err).NotTo(HaveOccurred())
				Expect(p.AddVectorStore(ctx, "vdb", vs)).To(Succeed())
			})

			It("publishes signal and batch events", func() {
				id, err := p.Session(ctx, "SIMPLE", "vdb", personalize.SessionOptions{})
				Expect(err).NotTo(HaveOccurred())

				_, err = p.Batch(ctx, id, personalize.BatchOptions{})
				Expect(err).NotTo(HaveOccurred())
				_, err = p.AddSignal(ctx, id, signal.Like, "doc-01")
				Expect(err).NotTo(HaveOccurred())

				Expect(pool.Close()).To(Succeed())
				Expect(pub.batches).To(HaveLen(1))
				Expect(pub.batches[0].IDs).To(HaveLen(5))
				Expect(pub.batches[0].BatchType).To(Equal("random"))
				Expect(pub.signals).To(HaveLen(1))
				Expect(pub.signals[0].Destination).To(Equal("1"))
			})
		})
	})
})
