package eventstream

import "context"

// Publisher publishes personalization events to an event stream backend.
type Publisher interface {
	PublishSignal(ctx context.Context, event *SignalEvent) error
	PublishBatch(ctx context.Context, event *BatchEvent) error
	Close() error
}
