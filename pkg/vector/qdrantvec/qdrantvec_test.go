package qdrantvec

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/qdrant/go-client/qdrant"

	"github.com/papercomputeco/sway/pkg/logger"
	"github.com/papercomputeco/sway/pkg/vector"
)

var _ = Describe("Qdrant driver", func() {
	It("implements vector.Driver", func() {
		var _ vector.Driver = (*Driver)(nil)
	})

	It("validates its config before dialing", func() {
		_, err := NewDriver(context.Background(), Config{Dimensions: 4}, logger.Nop())
		Expect(err).To(MatchError(ContainSubstring("collection is required")))

		_, err = NewDriver(context.Background(), Config{Collection: "c"}, logger.Nop())
		Expect(err).To(MatchError(ContainSubstring("dimensions cannot be 0")))

		_, err = NewDriver(context.Background(), Config{Collection: "c", Dimensions: 4, Metric: "manhattan"}, logger.Nop())
		Expect(err).To(MatchError(vector.ErrUnsupportedMetric))
	})

	It("derives stable point ids", func() {
		Expect(pointID("doc-1").GetUuid()).To(Equal(pointID("doc-1").GetUuid()))
		Expect(pointID("doc-1").GetUuid()).NotTo(Equal(pointID("doc-2").GetUuid()))
	})

	It("round trips payloads", func() {
		payload, err := toPayload(vector.Document{
			ID:       "doc-1",
			Metadata: map[string]any{"title": "hello", "views": 3, "tags": []any{"a", "b"}},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(payload).To(HaveKey(idField))

		doc := fromPayload(payload)
		Expect(doc.ID).To(Equal("doc-1"))
		Expect(doc.Metadata).To(HaveKeyWithValue("title", "hello"))
		Expect(doc.Metadata).To(HaveKeyWithValue("views", int64(3)))
		Expect(doc.Metadata).To(HaveKeyWithValue("tags", []any{"a", "b"}))
		Expect(doc.Metadata).NotTo(HaveKey(idField))
	})

	It("rejects metadata that cannot be a payload", func() {
		_, err := toPayload(vector.Document{ID: "x", Metadata: map[string]any{"ch": make(chan int)}})
		Expect(err).To(HaveOccurred())
	})

	It("translates filters", func() {
		Expect(nativeFilter(vector.Filter{})).To(BeNil())

		f := nativeFilter(vector.Filter{
			ExcludeIDs: []string{"seen"},
			Match:      map[string]any{"lang": "en"},
		})
		Expect(f.GetMustNot()).To(HaveLen(1))
		Expect(f.GetMustNot()[0].GetHasId().GetHasId()).To(ConsistOf(
			WithTransform(func(id *qdrant.PointId) string { return id.GetUuid() }, Equal(pointID("seen").GetUuid())),
		))
		Expect(f.GetMust()).To(HaveLen(1))
		Expect(f.GetMust()[0].GetField().GetKey()).To(Equal("lang"))
	})
})
