package eventstream

import (
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/sway/pkg/signal"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeSignalRecorded is emitted after a signal moved a session.
	EventTypeSignalRecorded = "sway.signal.recorded"

	// EventTypeBatchServed is emitted after a batch was returned to a session.
	EventTypeBatchServed = "sway.batch.served"
)

// Envelope carries the fields shared by every event.
type Envelope struct {
	SchemaVersion int       `json:"schema_version"`
	EventType     string    `json:"event_type"`
	EventID       string    `json:"event_id"`
	EmittedAt     time.Time `json:"emitted_at"`
	SessionID     string    `json:"session_id"`
}

func newEnvelope(eventType, sessionID string) Envelope {
	return Envelope{
		SchemaVersion: SchemaVersionV1,
		EventType:     eventType,
		EventID:       "evt_" + uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
		SessionID:     sessionID,
	}
}

// SignalEvent is a transport-neutral event payload for a recorded signal.
type SignalEvent struct {
	Envelope

	ContentID   string        `json:"content_id"`
	Signal      signal.Signal `json:"signal"`
	Source      string        `json:"source"`
	Destination string        `json:"destination"`
	BatchType   string        `json:"batch_type"`
}

// NewSignalEvent stamps a signal event.
func NewSignalEvent(sessionID, contentID string, sig signal.Signal, source, destination, batchType string) *SignalEvent {
	return &SignalEvent{
		Envelope:    newEnvelope(EventTypeSignalRecorded, sessionID),
		ContentID:   contentID,
		Signal:      sig,
		Source:      source,
		Destination: destination,
		BatchType:   batchType,
	}
}

// BatchEvent is a transport-neutral event payload for a served batch.
type BatchEvent struct {
	Envelope

	State     string   `json:"state"`
	BatchType string   `json:"batch_type"`
	Requested int      `json:"requested"`
	IDs       []string `json:"ids"`

	// Thresholded and Deduplicated count candidates the ranking pipeline
	// dropped.
	Thresholded  int   `json:"thresholded"`
	Deduplicated int   `json:"deduplicated"`
	DurationMs   int64 `json:"duration_ms"`
}

// NewBatchEvent stamps a batch event.
func NewBatchEvent(sessionID, state, batchType string, requested int, ids []string) *BatchEvent {
	return &BatchEvent{
		Envelope:  newEnvelope(EventTypeBatchServed, sessionID),
		State:     state,
		BatchType: batchType,
		Requested: requested,
		IDs:       ids,
	}
}
