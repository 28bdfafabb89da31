// Package local provides a self-hosted backend.Backend on top of a
// session.Store. User embeddings are the content vectors of a session's
// recent signals.
package local

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"math/rand/v2"

	"github.com/papercomputeco/sway/pkg/backend"
	"github.com/papercomputeco/sway/pkg/blueprint"
	"github.com/papercomputeco/sway/pkg/quantizer"
	"github.com/papercomputeco/sway/pkg/session"
	"github.com/papercomputeco/sway/pkg/vector"
)

const (
	// DefaultNTopics is used for sampled batches when the vertex does not
	// set n_topics.
	DefaultNTopics = 3

	kmeansIterations = 20
)

// Config holds configuration for the local backend.
type Config struct {
	// LastN bounds how many recent signals feed a biased batch when the
	// vertex does not set last_n. Defaults to backend.DefaultEmbeddingLastN.
	LastN int

	// Blueprints resolves custom blueprint ids. Nil disables custom
	// blueprints.
	Blueprints blueprint.CustomFetcher

	// Seed seeds topic sampling. Zero seeds from the runtime.
	Seed uint64
}

// Backend implements backend.Backend.
type Backend struct {
	store  session.Store
	cfg    Config
	logger *slog.Logger
}

var _ backend.Backend = (*Backend)(nil)

// New creates a local backend over store.
func New(store session.Store, c Config, logger *slog.Logger) *Backend {
	if c.LastN <= 0 {
		c.LastN = backend.DefaultEmbeddingLastN
	}
	return &Backend{
		store:  store,
		cfg:    c,
		logger: logger,
	}
}

// VectorStoreExists implements backend.Backend.
func (b *Backend) VectorStoreExists(ctx context.Context, vdbID string) (bool, error) {
	return b.store.HasVectorStore(ctx, vdbID)
}

// InitScalar implements backend.Backend.
func (b *Backend) InitScalar(ctx context.Context, req backend.ScalarInit) error {
	payload, err := json.Marshal(map[string]any{
		"quantiles": req.Quantiles,
		"samples":   len(req.QuantizedVectors),
	})
	if err != nil {
		return fmt.Errorf("encoding scalar quantizer state: %w", err)
	}

	dims := 0
	if len(req.QuantizedVectors) > 0 {
		dims = len(req.QuantizedVectors[0])
	}

	b.logger.Info("registering vector store",
		"vdb_id", req.VectorStoreID,
		"quantizer", "scalar",
		"samples", len(req.QuantizedVectors),
	)
	return b.store.PutVectorStore(ctx, session.VectorStore{
		ID:         req.VectorStoreID,
		Quantizer:  "scalar",
		Dimensions: dims,
		Payload:    payload,
	})
}

// InitProduct implements backend.Backend.
func (b *Backend) InitProduct(ctx context.Context, req backend.ProductInit) error {
	payload, err := json.Marshal(map[string]any{
		"M":                 req.M,
		"Ks":                req.Ks,
		"Ds":                req.Ds,
		"codebook":          req.Codebook,
		"codebook_residual": req.CodebookResidual,
		"samples":           len(req.QuantizedVectors),
	})
	if err != nil {
		return fmt.Errorf("encoding product quantizer state: %w", err)
	}

	b.logger.Info("registering vector store",
		"vdb_id", req.VectorStoreID,
		"quantizer", "product",
		"samples", len(req.QuantizedVectors),
	)
	return b.store.PutVectorStore(ctx, session.VectorStore{
		ID:         req.VectorStoreID,
		Quantizer:  "product",
		Dimensions: req.M * req.Ds,
		Payload:    payload,
	})
}

// CreateSession implements backend.Backend. Creating a session whose id
// already exists returns that session.
func (b *Backend) CreateSession(ctx context.Context, req backend.CreateSession) (string, error) {
	s := session.New(req.ID, req.VectorStoreID, req.Source)
	err := b.store.Create(ctx, s)
	if errors.Is(err, session.ErrAlreadyExists) {
		return s.ID, nil
	}
	if err != nil {
		return "", err
	}
	return s.ID, nil
}

// GetSession implements backend.Backend.
func (b *Backend) GetSession(ctx context.Context, id string) (*session.Session, error) {
	return b.store.Get(ctx, id)
}

// UpdateState implements backend.Backend.
func (b *Backend) UpdateState(ctx context.Context, id, state string, _ blueprint.BatchType) error {
	return b.store.UpdateState(ctx, id, state)
}

// Signal implements backend.Backend.
func (b *Backend) Signal(ctx context.Context, req backend.SignalRequest) error {
	return b.store.AppendSignal(ctx, session.SignalRecord{
		SessionID: req.SessionID,
		ContentID: req.ContentID,
		Label:     req.Signal.Label,
		Weight:    req.Signal.Weight,
		Embedding: req.Vector,
		State:     req.State,
	})
}

// BiasedBatch implements backend.Backend. The session's recent signal
// vectors are weighted by signal weight; bias vectors are appended as given.
func (b *Backend) BiasedBatch(ctx context.Context, req backend.BiasedBatchRequest) (backend.WeightedVectors, error) {
	if len(req.BiasVectors) != len(req.BiasWeights) {
		return backend.WeightedVectors{}, fmt.Errorf("got %d bias vectors and %d bias weights",
			len(req.BiasVectors), len(req.BiasWeights))
	}

	lastN := b.cfg.LastN
	if req.Params.LastN > 0 {
		lastN = int(req.Params.LastN)
	}

	wv, err := b.userVectors(ctx, req.SessionID, lastN)
	if err != nil {
		return backend.WeightedVectors{}, err
	}

	wv.Vectors = append(wv.Vectors, req.BiasVectors...)
	wv.Weights = append(wv.Weights, req.BiasWeights...)

	if err := b.store.UpdateState(ctx, req.SessionID, req.State); err != nil {
		return backend.WeightedVectors{}, err
	}
	return wv, nil
}

// SampledBatch implements backend.Backend. Signal vectors are clustered into
// NTopics topics; each centroid is weighted by the summed signal weight of
// its cluster.
func (b *Backend) SampledBatch(ctx context.Context, req backend.SampledBatchRequest) (backend.WeightedVectors, error) {
	wv, err := b.userVectors(ctx, req.SessionID, b.cfg.LastN)
	if err != nil {
		return backend.WeightedVectors{}, err
	}
	if err := b.store.UpdateState(ctx, req.SessionID, req.State); err != nil {
		return backend.WeightedVectors{}, err
	}
	if wv.Len() == 0 {
		return wv, nil
	}

	k := req.NTopics
	if k <= 0 {
		k = int(req.Params.NTopics)
	}
	if k <= 0 {
		k = DefaultNTopics
	}
	k = min(k, wv.Len())

	points := make([][]float64, wv.Len())
	for i, v := range wv.Vectors {
		points[i] = vector.Float64s(v)
	}

	centroids, labels := quantizer.KMeans(points, k, kmeansIterations, b.rng(req.SessionID))

	out := backend.WeightedVectors{
		Vectors: make([][]float32, 0, len(centroids)),
		Weights: make([]float64, 0, len(centroids)),
	}
	sums := make([]float64, len(centroids))
	for i, l := range labels {
		sums[l] += wv.Weights[i]
	}
	for i, c := range centroids {
		if sums[i] == 0 {
			continue
		}
		out.Vectors = append(out.Vectors, vector.Float32s(c))
		out.Weights = append(out.Weights, sums[i])
	}

	b.logger.Debug("sampled topics",
		"session_id", req.SessionID,
		"topics", out.Len(),
		"signals", wv.Len(),
	)
	return out, nil
}

// History implements backend.Backend.
func (b *Backend) History(ctx context.Context, id string) ([]string, error) {
	return b.store.History(ctx, id)
}

// AddHistory implements backend.Backend.
func (b *Backend) AddHistory(ctx context.Context, id string, contentIDs []string) error {
	return b.store.AppendHistory(ctx, id, contentIDs)
}

// UserEmbeddings implements backend.Backend.
func (b *Backend) UserEmbeddings(ctx context.Context, id string, n int) (backend.WeightedVectors, error) {
	if n <= 0 {
		n = b.cfg.LastN
	}
	return b.userVectors(ctx, id, n)
}

// Blueprint implements backend.Backend.
func (b *Backend) Blueprint(ctx context.Context, customID string) (blueprint.Document, error) {
	if b.cfg.Blueprints == nil {
		return blueprint.Document{}, fmt.Errorf("custom blueprint %q: no blueprint directory configured", customID)
	}
	return b.cfg.Blueprints.Blueprint(ctx, customID)
}

// userVectors returns the embeddings of the last n signals that carried one.
func (b *Backend) userVectors(ctx context.Context, id string, n int) (backend.WeightedVectors, error) {
	recs, err := b.store.Signals(ctx, id, n)
	if err != nil {
		return backend.WeightedVectors{}, err
	}

	var wv backend.WeightedVectors
	for _, r := range recs {
		if len(r.Embedding) == 0 {
			continue
		}
		wv.Vectors = append(wv.Vectors, r.Embedding)
		wv.Weights = append(wv.Weights, r.Weight)
	}
	return wv, nil
}

func (b *Backend) rng(sessionID string) *rand.Rand {
	if b.cfg.Seed != 0 {
		return rand.New(rand.NewPCG(b.cfg.Seed, hash(sessionID)))
	}
	return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
}

func hash(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}
