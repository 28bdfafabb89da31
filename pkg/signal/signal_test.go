package signal_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/sway/pkg/signal"
)

var _ = Describe("Table", func() {
	It("contains every built-in signal", func() {
		t, err := signal.NewTable()
		Expect(err).NotTo(HaveOccurred())
		Expect(t.Len()).To(Equal(len(signal.Builtins())))

		like, ok := t.Lookup("LIKE")
		Expect(ok).To(BeTrue())
		Expect(like.Weight).To(Equal(8.0))

		batch, ok := t.Lookup(signal.LabelBatch)
		Expect(ok).To(BeTrue())
		Expect(batch.IsReserved()).To(BeTrue())
	})

	It("registers declared signals after the built-ins", func() {
		t, err := signal.NewTable(signal.Signal{Label: "new_signal", Weight: 1.5})
		Expect(err).NotTo(HaveOccurred())

		s, ok := t.Lookup("NEW_SIGNAL")
		Expect(ok).To(BeTrue())
		Expect(s.Weight).To(Equal(1.5))

		labels := t.Labels()
		Expect(labels[len(labels)-1]).To(Equal("NEW_SIGNAL"))
	})

	It("keeps declarations local to one table", func() {
		a, err := signal.NewTable(signal.Signal{Label: "LIKE", Weight: 99})
		Expect(err).NotTo(HaveOccurred())
		b, err := signal.NewTable()
		Expect(err).NotTo(HaveOccurred())

		la, _ := a.Lookup("LIKE")
		lb, _ := b.Lookup("LIKE")
		Expect(la.Weight).To(Equal(99.0))
		Expect(lb.Weight).To(Equal(8.0))
		Expect(signal.Like.Weight).To(Equal(8.0))
	})

	It("rejects reserved and empty declarations", func() {
		_, err := signal.NewTable(signal.Signal{Label: "BATCH", Weight: 3})
		Expect(err).To(MatchError(ContainSubstring("reserved")))

		_, err = signal.NewTable(signal.Signal{Label: "  "})
		Expect(err).To(HaveOccurred())
	})
})
