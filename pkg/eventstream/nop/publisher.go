package nop

import (
	"context"

	"github.com/papercomputeco/sway/pkg/eventstream"
)

// Publisher is a no-op eventstream publisher used for tests and disabled mode.
type Publisher struct{}

// NewPublisher creates a new no-op eventstream publisher.
func NewPublisher() *Publisher {
	return &Publisher{}
}

// PublishSignal validates input and otherwise does nothing.
func (p *Publisher) PublishSignal(_ context.Context, event *eventstream.SignalEvent) error {
	if event == nil {
		return eventstream.ErrNilEvent
	}

	return nil
}

// PublishBatch validates input and otherwise does nothing.
func (p *Publisher) PublishBatch(_ context.Context, event *eventstream.BatchEvent) error {
	if event == nil {
		return eventstream.ErrNilEvent
	}

	return nil
}

// Close is a no-op.
func (p *Publisher) Close() error {
	return nil
}
