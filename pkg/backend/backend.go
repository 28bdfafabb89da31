// Package backend defines the personalization backend: the service that owns
// session state, signal history and the user embedding math, and hands the
// SDK weighted vectors to search with.
package backend

import (
	"context"
	"errors"

	"github.com/papercomputeco/sway/pkg/blueprint"
	"github.com/papercomputeco/sway/pkg/session"
	"github.com/papercomputeco/sway/pkg/signal"
)

// DefaultEmbeddingLastN is how many recent signals make up a user embedding
// when the caller does not say.
const DefaultEmbeddingLastN = 50

// ErrNoEmbeddings is returned when a batch needs user vectors and the
// session has none.
var ErrNoEmbeddings = errors.New("backend: session has no embeddings")

// WeightedVectors are query vectors paired with their relative importance.
type WeightedVectors struct {
	Vectors [][]float32 `json:"vectors"`
	Weights []float64   `json:"weights"`
}

// Len returns the number of vectors.
func (w WeightedVectors) Len() int {
	return len(w.Vectors)
}

// ScalarInit registers a vector store sketched with a scalar quantizer.
type ScalarInit struct {
	VectorStoreID    string
	QuantizedVectors [][]uint16
	Quantiles        []float64
}

// ProductInit registers a vector store sketched with a product quantizer.
type ProductInit struct {
	VectorStoreID      string
	QuantizedVectors   [][]uint16
	QuantizedResiduals [][]uint16
	Codebook           [][]float32
	CodebookResidual   [][]float32
	M                  int
	Ks                 int
	Ds                 int
}

// CreateSession describes a new session. A non-empty ID makes the session
// persistent: creating it again returns the same id.
type CreateSession struct {
	ID            string
	VectorStoreID string
	Source        blueprint.Source
}

// SignalRequest records a user action against a session.
type SignalRequest struct {
	SessionID string
	ContentID string
	Vector    []float32

	// State is the vertex the session moves to.
	State  string
	Signal signal.Signal
}

// BiasedBatchRequest asks for the session's weighted user vectors.
type BiasedBatchRequest struct {
	SessionID     string
	VectorStoreID string
	State         string
	Params        blueprint.Params
	BiasVectors   [][]float32
	BiasWeights   []float64
}

// SampledBatchRequest asks for NTopics topic vectors of the session.
type SampledBatchRequest struct {
	SessionID     string
	VectorStoreID string
	State         string
	NTopics       int
	Params        blueprint.Params
}

// Backend is the personalization backend. Implementations must be safe for
// concurrent use.
type Backend interface {
	// VectorStoreExists reports whether vdbID has been registered.
	VectorStoreExists(ctx context.Context, vdbID string) (bool, error)

	// InitScalar registers a vector store with scalar quantized samples.
	InitScalar(ctx context.Context, req ScalarInit) error

	// InitProduct registers a vector store with product quantized samples.
	InitProduct(ctx context.Context, req ProductInit) error

	// CreateSession creates a session and returns its id.
	CreateSession(ctx context.Context, req CreateSession) (string, error)

	// GetSession returns the session state.
	GetSession(ctx context.Context, id string) (*session.Session, error)

	// UpdateState moves a session without recording a signal.
	UpdateState(ctx context.Context, id, state string, batchType blueprint.BatchType) error

	// Signal records a user action and moves the session.
	Signal(ctx context.Context, req SignalRequest) error

	// BiasedBatch returns the vectors a biased or personalized batch
	// searches with, and moves the session to req.State.
	BiasedBatch(ctx context.Context, req BiasedBatchRequest) (WeightedVectors, error)

	// SampledBatch returns topic vectors of the session, and moves the
	// session to req.State.
	SampledBatch(ctx context.Context, req SampledBatchRequest) (WeightedVectors, error)

	// History returns content ids already served to the session.
	History(ctx context.Context, id string) ([]string, error)

	// AddHistory appends served content ids.
	AddHistory(ctx context.Context, id string, contentIDs []string) error

	// UserEmbeddings returns the last n signal vectors of the session.
	UserEmbeddings(ctx context.Context, id string, n int) (WeightedVectors, error)

	// Blueprint fetches a custom blueprint document.
	Blueprint(ctx context.Context, customID string) (blueprint.Document, error)
}
