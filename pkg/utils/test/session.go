package testutils

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/sway/pkg/blueprint"
	"github.com/papercomputeco/sway/pkg/session"
)

// DescribeStore registers the shared session.Store behavior for a driver.
// newStore is called before every spec and the store is closed after it.
func DescribeStore(newStore func() session.Store) {
	var (
		store session.Store
		ctx   context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		store = newStore()
	})

	AfterEach(func() {
		if store != nil {
			Expect(store.Close()).To(Succeed())
		}
	})

	create := func(id string) *session.Session {
		s := session.New(id, "vdb-1", blueprint.Source{Kind: blueprint.KindFactory, FactoryID: "AI_AGENTS"})
		Expect(store.Create(ctx, s)).To(Succeed())
		return s
	}

	Describe("Create and Get", func() {
		It("round trips a session", func() {
			create("s1")

			got, err := store.Get(ctx, "s1")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.ID).To(Equal("s1"))
			Expect(got.VectorStoreID).To(Equal("vdb-1"))
			Expect(got.Algorithm).To(Equal(blueprint.KindFactory))
			Expect(got.FactoryID).To(Equal("AI_AGENTS"))
			Expect(got.State).To(Equal(blueprint.InitialStateSentinel))
			Expect(got.HasEmbeddings).To(BeFalse())
			Expect(got.Source().Key()).To(Equal("FACTORY:AI_AGENTS"))
		})

		It("rejects a taken id", func() {
			create("s1")
			s := session.New("s1", "vdb-2", blueprint.Source{Kind: blueprint.KindSimple})
			Expect(store.Create(ctx, s)).To(MatchError(session.ErrAlreadyExists))
		})

		It("returns NotFoundError for unknown sessions", func() {
			_, err := store.Get(ctx, "missing")
			Expect(session.IsNotFound(err)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring("missing"))
		})
	})

	Describe("UpdateState", func() {
		It("moves the session", func() {
			create("s1")
			Expect(store.UpdateState(ctx, "s1", "2")).To(Succeed())

			got, err := store.Get(ctx, "s1")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.State).To(Equal("2"))
		})

		It("fails for unknown sessions", func() {
			err := store.UpdateState(ctx, "missing", "2")
			Expect(session.IsNotFound(err)).To(BeTrue())
		})
	})

	Describe("signals", func() {
		BeforeEach(func() {
			create("s1")
		})

		It("records signals oldest first and moves the state", func() {
			base := time.Now().UTC()
			for i, label := range []string{"LIKE", "DISLIKE", "PURCHASE"} {
				Expect(store.AppendSignal(ctx, session.SignalRecord{
					SessionID: "s1",
					ContentID: label + "-item",
					Label:     label,
					Weight:    float64(i + 1),
					State:     label,
					CreatedAt: base.Add(time.Duration(i) * time.Second),
				})).To(Succeed())
			}

			recs, err := store.Signals(ctx, "s1", 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(recs).To(HaveLen(3))
			Expect(recs[0].Label).To(Equal("LIKE"))
			Expect(recs[2].Label).To(Equal("PURCHASE"))

			last, err := store.Signals(ctx, "s1", 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(last).To(HaveLen(2))
			Expect(last[0].Label).To(Equal("DISLIKE"))
			Expect(last[1].Weight).To(Equal(3.0))

			got, err := store.Get(ctx, "s1")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.State).To(Equal("PURCHASE"))
			Expect(got.HasEmbeddings).To(BeFalse())
		})

		It("keeps embeddings and flags the session", func() {
			Expect(store.AppendSignal(ctx, session.SignalRecord{
				SessionID: "s1",
				ContentID: "a",
				Label:     "LIKE",
				Weight:    1,
				Embedding: []float32{0.25, -0.5, 1},
				State:     "1",
			})).To(Succeed())

			recs, err := store.Signals(ctx, "s1", 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(recs[0].Embedding).To(Equal([]float32{0.25, -0.5, 1}))

			got, err := store.Get(ctx, "s1")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.HasEmbeddings).To(BeTrue())
		})

		It("fails for unknown sessions", func() {
			err := store.AppendSignal(ctx, session.SignalRecord{SessionID: "missing", State: "1"})
			Expect(session.IsNotFound(err)).To(BeTrue())

			_, err = store.Signals(ctx, "missing", 0)
			Expect(session.IsNotFound(err)).To(BeTrue())
		})
	})

	Describe("history", func() {
		It("appends in serving order", func() {
			create("s1")
			Expect(store.AppendHistory(ctx, "s1", []string{"a", "b"})).To(Succeed())
			Expect(store.AppendHistory(ctx, "s1", nil)).To(Succeed())
			Expect(store.AppendHistory(ctx, "s1", []string{"c"})).To(Succeed())

			ids, err := store.History(ctx, "s1")
			Expect(err).NotTo(HaveOccurred())
			Expect(ids).To(Equal([]string{"a", "b", "c"}))
		})

		It("is empty for a new session", func() {
			create("s1")
			ids, err := store.History(ctx, "s1")
			Expect(err).NotTo(HaveOccurred())
			Expect(ids).To(BeEmpty())
		})
	})

	Describe("vector stores", func() {
		It("registers and replaces", func() {
			ok, err := store.HasVectorStore(ctx, "vdb-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())

			vs := session.VectorStore{ID: "vdb-1", Quantizer: "scalar", Dimensions: 8, Payload: []byte(`{}`)}
			Expect(store.PutVectorStore(ctx, vs)).To(Succeed())
			vs.Quantizer = "product"
			Expect(store.PutVectorStore(ctx, vs)).To(Succeed())

			ok, err = store.HasVectorStore(ctx, "vdb-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
		})

		It("requires an id", func() {
			Expect(store.PutVectorStore(ctx, session.VectorStore{})).NotTo(Succeed())
		})
	})
}
