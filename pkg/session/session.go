// Package session holds personalization session state and the Store
// interface its backends persist it through.
package session

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/sway/pkg/blueprint"
)

// Session is a single user's walk through a blueprint.
type Session struct {
	ID            string         `json:"id"`
	VectorStoreID string         `json:"vdb_id"`
	Algorithm     blueprint.Kind `json:"algorithm"`
	FactoryID     string         `json:"factory_id,omitempty"`
	CustomID      string         `json:"custom_id,omitempty"`

	// State is the name of the blueprint vertex the session currently sits on.
	State string `json:"state"`

	// HasEmbeddings is set once the session has received a signal carrying
	// a content vector.
	HasEmbeddings bool `json:"has_embeddings"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Source returns the blueprint source the session was created with.
func (s *Session) Source() blueprint.Source {
	return blueprint.Source{
		Kind:      s.Algorithm,
		FactoryID: s.FactoryID,
		CustomID:  s.CustomID,
	}
}

// New builds a session at the initial state. An empty id gets a random one.
func New(id, vdbID string, src blueprint.Source) *Session {
	if id == "" {
		id = uuid.NewString()
	}
	now := time.Now().UTC()
	return &Session{
		ID:            id,
		VectorStoreID: vdbID,
		Algorithm:     src.Kind,
		FactoryID:     src.FactoryID,
		CustomID:      src.CustomID,
		State:         blueprint.InitialStateSentinel,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// SignalRecord is one signal received by a session.
type SignalRecord struct {
	SessionID string    `json:"session_id"`
	ContentID string    `json:"content_id"`
	Label     string    `json:"label"`
	Weight    float64   `json:"weight"`
	Embedding []float32 `json:"embedding,omitempty"`

	// State is the vertex the session moved to on this signal.
	State     string    `json:"state"`
	CreatedAt time.Time `json:"created_at"`
}

// VectorStore is the quantizer registration of a vector database.
type VectorStore struct {
	ID         string `json:"id"`
	Quantizer  string `json:"quantizer"`
	Dimensions int    `json:"dimensions"`

	// Payload is the JSON encoded quantizer state sent on registration.
	Payload   []byte    `json:"payload,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists sessions, their signals and content history.
type Store interface {
	// Create stores a new session. It fails with ErrAlreadyExists when the
	// id is taken.
	Create(ctx context.Context, s *Session) error

	// Get returns the session or a NotFoundError.
	Get(ctx context.Context, id string) (*Session, error)

	// UpdateState moves the session to state.
	UpdateState(ctx context.Context, id, state string) error

	// AppendSignal records a signal and moves the session to rec.State.
	// A record with an embedding marks the session as having embeddings.
	AppendSignal(ctx context.Context, rec SignalRecord) error

	// Signals returns the last n signals, oldest first. n <= 0 returns all.
	Signals(ctx context.Context, id string, n int) ([]SignalRecord, error)

	// AppendHistory adds served content ids to the session's history.
	AppendHistory(ctx context.Context, id string, contentIDs []string) error

	// History returns the served content ids in serving order.
	History(ctx context.Context, id string) ([]string, error)

	// PutVectorStore registers a vector store's quantizer state.
	PutVectorStore(ctx context.Context, vs VectorStore) error

	// HasVectorStore reports whether a vector store is registered.
	HasVectorStore(ctx context.Context, id string) (bool, error)

	// Close releases any resources.
	Close() error
}
