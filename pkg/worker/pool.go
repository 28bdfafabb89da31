// Package worker provides an asynchronous worker pool for publishing
// personalization events using the provided eventstream.Publisher.
//
// The pool decouples event publishing from the batch and signal hot paths so
// that a slow or unavailable broker never delays a response.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/papercomputeco/sway/pkg/eventstream"
	"github.com/papercomputeco/sway/pkg/logger"
	"github.com/papercomputeco/sway/pkg/metrics"
)

var (
	defaultNumWorkers   uint = 3
	defaultJobQueueSize uint = 256
	defaultTimeout           = 10 * time.Second
)

// Job is a unit of work for the worker pool to execute against. Exactly one
// of Signal or Batch is set.
type Job struct {
	Signal *eventstream.SignalEvent
	Batch  *eventstream.BatchEvent
}

func (j Job) sessionID() string {
	switch {
	case j.Signal != nil:
		return j.Signal.SessionID
	case j.Batch != nil:
		return j.Batch.SessionID
	}
	return ""
}

func (j Job) eventType() string {
	switch {
	case j.Signal != nil:
		return j.Signal.EventType
	case j.Batch != nil:
		return j.Batch.EventType
	}
	return ""
}

// Config is the configuration options for the worker pool.
type Config struct {
	// Publisher receives every enqueued event.
	Publisher eventstream.Publisher

	// NumWorkers is the number of background workers in the pool.
	NumWorkers uint

	// QueueSize is the capacity of the buffered job channel (defaults to 256).
	QueueSize uint

	// PublishTimeout bounds a single publish (defaults to 10s).
	PublishTimeout time.Duration

	Logger *slog.Logger
}

// Pool publishes events asynchronously via a worker pool.
type Pool struct {
	config *Config
	queue  chan Job
	wg     sync.WaitGroup
	logger *slog.Logger
}

// NewPool creates a new Pool and starts its worker goroutines.
func NewPool(c *Config) (*Pool, error) {
	if c.Publisher == nil {
		return nil, fmt.Errorf("worker pool requires a publisher")
	}

	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}

	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}

	if c.PublishTimeout <= 0 {
		c.PublishTimeout = defaultTimeout
	}

	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	if c.Logger == nil {
		c.Logger = logger.Nop()
	}

	wp := &Pool{
		config: c,
		queue:  make(chan Job, c.QueueSize),
		logger: c.Logger,
	}

	wp.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		go wp.worker(i)
	}

	return wp, nil
}

// Enqueue submits a job for processing by the worker pool.
// Returns true if enqueued, false if the queue is full, resulting in the job being dropped
func (p *Pool) Enqueue(job Job) bool {
	select {
	case p.queue <- job:
		p.logger.Debug("job queued",
			"event_type", job.eventType(),
			"session_id", job.sessionID(),
		)
		return true
	default:
		metrics.EventsDropped.WithLabelValues(job.eventType()).Inc()
		p.logger.Error("job not queued, queue full, job dropped",
			"event_type", job.eventType(),
			"session_id", job.sessionID(),
		)
		return false
	}
}

// Close signals workers to stop and waits for in-flight jobs to drain, then
// closes the publisher. Call this during graceful shutdown after the API
// server has stopped.
func (p *Pool) Close() error {
	close(p.queue)
	p.wg.Wait()
	return p.config.Publisher.Close()
}

// worker is the inner worker thread that continuously pulls jobs off the jobs queue
func (p *Pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("worker started", "worker_id", id)

	for job := range p.queue {
		p.processJob(job)
	}

	p.logger.Debug("event worker stopped", "worker_id", id)
}

// processJob publishes a Job's event. Failures are logged, never retried.
func (p *Pool) processJob(job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), p.config.PublishTimeout)
	defer cancel()

	var err error
	switch {
	case job.Signal != nil:
		err = p.config.Publisher.PublishSignal(ctx, job.Signal)
	case job.Batch != nil:
		err = p.config.Publisher.PublishBatch(ctx, job.Batch)
	default:
		err = eventstream.ErrNilEvent
	}

	if err != nil {
		p.logger.Error("async event publish failed",
			"event_type", job.eventType(),
			"session_id", job.sessionID(),
			"error", err,
		)
		return
	}

	p.logger.Debug("event published",
		"event_type", job.eventType(),
		"session_id", job.sessionID(),
	)
}
