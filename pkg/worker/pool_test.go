package worker

import (
	"context"
	"errors"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/sway/pkg/eventstream"
	"github.com/papercomputeco/sway/pkg/logger"
	"github.com/papercomputeco/sway/pkg/signal"
)

// recordingPublisher collects every event it receives.
type recordingPublisher struct {
	mu      sync.Mutex
	signals []*eventstream.SignalEvent
	batches []*eventstream.BatchEvent
	err     error
	block   chan struct{}
	closed  bool
}

func (r *recordingPublisher) PublishSignal(_ context.Context, e *eventstream.SignalEvent) error {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.signals = append(r.signals, e)
	return r.err
}

func (r *recordingPublisher) PublishBatch(_ context.Context, e *eventstream.BatchEvent) error {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, e)
	return r.err
}

func (r *recordingPublisher) Close() error {
	r.closed = true
	return nil
}

// newTestPool creates a worker pool backed by a recording publisher.
// Callers should "wp.Close()" to drain enqueued jobs before asserting.
func newTestPool(c Config) (*Pool, *recordingPublisher) {
	pub := &recordingPublisher{}
	if c.Publisher != nil {
		pub = c.Publisher.(*recordingPublisher)
	}
	c.Publisher = pub
	c.Logger = logger.Nop()

	wp, err := NewPool(&c)
	Expect(err).NotTo(HaveOccurred())

	return wp, pub
}

var _ = Describe("Worker Pool", func() {
	It("requires a publisher", func() {
		_, err := NewPool(&Config{})
		Expect(err).To(HaveOccurred())
	})

	It("applies defaults", func() {
		wp, _ := newTestPool(Config{})
		Expect(wp.config.NumWorkers).To(Equal(defaultNumWorkers))
		Expect(wp.config.QueueSize).To(Equal(defaultJobQueueSize))
		Expect(wp.config.PublishTimeout).To(Equal(defaultTimeout))
		Expect(wp.Close()).To(Succeed())
	})

	Describe("Enqueue", func() {
		It("returns true when the queue has capacity", func() {
			wp, _ := newTestPool(Config{})
			ok := wp.Enqueue(Job{Batch: eventstream.NewBatchEvent("s1", "1", "random", 5, []string{"a"})})
			Expect(ok).To(BeTrue())
			Expect(wp.Close()).To(Succeed())
		})

		It("drops jobs when the queue is full", func() {
			pub := &recordingPublisher{block: make(chan struct{})}
			wp, _ := newTestPool(Config{Publisher: pub, NumWorkers: 1, QueueSize: 1})

			// the single worker blocks on the first job, the second fills the queue
			Expect(wp.Enqueue(Job{Batch: eventstream.NewBatchEvent("s1", "1", "random", 1, nil)})).To(BeTrue())
			Eventually(func() int { return len(wp.queue) }).Should(Equal(0))
			Expect(wp.Enqueue(Job{Batch: eventstream.NewBatchEvent("s2", "1", "random", 1, nil)})).To(BeTrue())
			Expect(wp.Enqueue(Job{Batch: eventstream.NewBatchEvent("s3", "1", "random", 1, nil)})).To(BeFalse())

			close(pub.block)
			Expect(wp.Close()).To(Succeed())
			Expect(pub.batches).To(HaveLen(2))
		})
	})

	Describe("Close", func() {
		It("drains queued events and closes the publisher", func() {
			wp, pub := newTestPool(Config{})
			for range 10 {
				wp.Enqueue(Job{Signal: eventstream.NewSignalEvent("s1", "c1", signal.Like, "0", "1", "personalized")})
			}
			wp.Enqueue(Job{Batch: eventstream.NewBatchEvent("s1", "1", "personalized", 3, []string{"a", "b", "c"})})

			Expect(wp.Close()).To(Succeed())
			Expect(pub.signals).To(HaveLen(10))
			Expect(pub.batches).To(HaveLen(1))
			Expect(pub.closed).To(BeTrue())
		})
	})

	Describe("processJob", func() {
		It("keeps going after publish failures", func() {
			pub := &recordingPublisher{err: errors.New("broker down")}
			wp, _ := newTestPool(Config{Publisher: pub})
			wp.Enqueue(Job{Signal: eventstream.NewSignalEvent("s1", "c1", signal.Like, "0", "1", "random")})
			wp.Enqueue(Job{Signal: eventstream.NewSignalEvent("s1", "c2", signal.Like, "1", "1", "random")})
			Expect(wp.Close()).To(Succeed())
			Expect(pub.signals).To(HaveLen(2))
		})

		It("ignores empty jobs", func() {
			wp, pub := newTestPool(Config{})
			wp.Enqueue(Job{})
			Expect(wp.Close()).To(Succeed())
			Expect(pub.signals).To(BeEmpty())
			Expect(pub.batches).To(BeEmpty())
		})
	})
})
