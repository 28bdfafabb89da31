// Package personalize is the personalization SDK: it walks a session through
// its blueprint, asks the backend for the vectors that describe the user, and
// turns vector store search results into ranked batches.
package personalize

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/papercomputeco/sway/pkg/backend"
	"github.com/papercomputeco/sway/pkg/blueprint"
	"github.com/papercomputeco/sway/pkg/eventstream"
	"github.com/papercomputeco/sway/pkg/metrics"
	"github.com/papercomputeco/sway/pkg/quantizer"
	"github.com/papercomputeco/sway/pkg/ranking"
	"github.com/papercomputeco/sway/pkg/session"
	"github.com/papercomputeco/sway/pkg/signal"
	"github.com/papercomputeco/sway/pkg/vector"
	"github.com/papercomputeco/sway/pkg/worker"
)

// Option configures a Personalizer.
type Option func(*Personalizer)

// WithBlueprintCache shares a blueprint cache, typically one kept fresh by a
// blueprint.Watcher.
func WithBlueprintCache(c *blueprint.Cache) Option {
	return func(p *Personalizer) {
		p.blueprints = c
	}
}

// WithEventPool publishes signal and batch events through pool.
func WithEventPool(pool *worker.Pool) Option {
	return func(p *Personalizer) {
		p.pool = pool
	}
}

// WithSeed makes random queries, quantizer training and the final shuffle
// reproducible.
func WithSeed(seed uint64) Option {
	return func(p *Personalizer) {
		p.seed = seed
	}
}

// Personalizer serves batches and records signals for sessions.
type Personalizer struct {
	cfg        Config
	backend    backend.Backend
	blueprints *blueprint.Cache
	pool       *worker.Pool
	logger     *slog.Logger
	seed       uint64

	mu     sync.RWMutex
	stores map[string]vector.Driver

	// rngMu guards rng and pipeline, neither is safe for concurrent use.
	rngMu    sync.Mutex
	rng      *rand.Rand
	pipeline *ranking.Pipeline
}

// New creates a Personalizer on top of b.
func New(c Config, b backend.Backend, opts ...Option) (*Personalizer, error) {
	if err := c.applyDefaults(); err != nil {
		return nil, err
	}

	p := &Personalizer{
		cfg:     c,
		backend: b,
		logger:  c.Logger,
		stores:  make(map[string]vector.Driver),
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.blueprints == nil {
		p.blueprints = blueprint.NewCache(b)
	}

	if p.seed != 0 {
		p.rng = rand.New(rand.NewPCG(p.seed, p.seed>>1))
	} else {
		p.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	p.pipeline = ranking.New(ranking.WithRand(rand.New(rand.NewPCG(p.rng.Uint64(), p.rng.Uint64()))))

	return p, nil
}

// AddVectorStore registers d under vdbID. A vector store the backend does not
// know yet is sketched first: a fresh quantizer is trained on vectors sampled
// with random queries and the compressed sample is sent to the backend.
func (p *Personalizer) AddVectorStore(ctx context.Context, vdbID string, d vector.Driver) error {
	exists, err := p.backend.VectorStoreExists(ctx, vdbID)
	if err != nil {
		return fmt.Errorf("checking vector store %q: %w", vdbID, err)
	}

	if !exists {
		p.logger.Info("vector store not found, sketching a new one",
			"vdb_id", vdbID,
			"quantizer", p.cfg.QuantizerType,
		)
		if err := p.sketch(ctx, vdbID, d); err != nil {
			return err
		}
	}

	p.mu.Lock()
	p.stores[vdbID] = d
	p.mu.Unlock()
	return nil
}

func (p *Personalizer) sketch(ctx context.Context, vdbID string, d vector.Driver) error {
	p.rngMu.Lock()
	queries := vector.RandomQueries(p.cfg.trainQueries(), d.Dimensions(), trainTopK, true, p.rng)
	seed := p.rng.Uint64()
	p.rngMu.Unlock()

	results, err := vector.MultiSearch(ctx, d, queries)
	if err != nil {
		return fmt.Errorf("sampling vector store %q: %w", vdbID, err)
	}

	var sample [][]float32
	for _, rs := range results {
		for _, r := range rs {
			if len(r.Embedding) > 0 {
				sample = append(sample, r.Embedding)
			}
		}
	}
	if len(sample) == 0 {
		return fmt.Errorf("%w: %q", ErrNoTrainingVectors, vdbID)
	}

	start := time.Now()
	defer func() {
		metrics.QuantizerTrainDuration.WithLabelValues(p.cfg.QuantizerType).Observe(time.Since(start).Seconds())
	}()

	switch p.cfg.QuantizerType {
	case QuantizerProduct:
		return p.sketchProduct(ctx, vdbID, sample, seed)
	default:
		return p.sketchScalar(ctx, vdbID, sample)
	}
}

func (p *Personalizer) sketchScalar(ctx context.Context, vdbID string, sample [][]float32) error {
	q, err := quantizer.NewScalar(quantizer.DefaultLevels)
	if err != nil {
		return err
	}
	if err := q.Train(sample); err != nil {
		return fmt.Errorf("training scalar quantizer: %w", err)
	}
	codes, err := q.CompressAll(sample)
	if err != nil {
		return fmt.Errorf("compressing sample: %w", err)
	}

	p.logger.Info("initializing with scalar quantizer", "vdb_id", vdbID, "samples", len(sample))
	return p.backend.InitScalar(ctx, backend.ScalarInit{
		VectorStoreID:    vdbID,
		QuantizedVectors: codes,
		Quantiles:        q.Quantiles(),
	})
}

func (p *Personalizer) sketchProduct(ctx context.Context, vdbID string, sample [][]float32, seed uint64) error {
	q, err := quantizer.NewProduct(quantizer.ProductConfig{M: p.cfg.M, Ks: p.cfg.Ks, Seed: seed})
	if err != nil {
		return err
	}
	if err := q.Train(sample); err != nil {
		return fmt.Errorf("training product quantizer: %w", err)
	}
	codes, err := q.CompressAll(sample)
	if err != nil {
		return fmt.Errorf("compressing sample: %w", err)
	}

	primary := make([][]uint16, len(codes))
	residual := make([][]uint16, len(codes))
	for i, c := range codes {
		primary[i] = c.Primary
		residual[i] = c.Residual
	}

	p.logger.Info("initializing with product quantizer", "vdb_id", vdbID, "samples", len(sample))
	return p.backend.InitProduct(ctx, backend.ProductInit{
		VectorStoreID:      vdbID,
		QuantizedVectors:   primary,
		QuantizedResiduals: residual,
		Codebook:           q.Codebook(),
		CodebookResidual:   q.ResidualCodebook(),
		M:                  q.M(),
		Ks:                 q.Ks(),
		Ds:                 q.Ds(),
	})
}

// SessionOptions are the optional arguments of Session.
type SessionOptions struct {
	// ID makes the session persistent: the same id is returned on every call.
	ID string

	// CustomID names the blueprint of a CUSTOM session.
	CustomID string
}

// Session creates a session and returns its id. SIMPLE and CUSTOM are taken
// literally; any other algorithm names a factory preset.
func (p *Personalizer) Session(ctx context.Context, algorithm, vdbID string, opts SessionOptions) (string, error) {
	src := blueprint.SourceFor(algorithm, opts.CustomID)
	if src.Kind == blueprint.KindCustom && src.CustomID == "" {
		return "", blueprint.ErrMissingCustomID
	}

	return p.backend.CreateSession(ctx, backend.CreateSession{
		ID:            opts.ID,
		VectorStoreID: vdbID,
		Source:        src,
	})
}

// GetSession returns the current session state.
func (p *Personalizer) GetSession(ctx context.Context, sessionID string) (*session.Session, error) {
	return p.backend.GetSession(ctx, sessionID)
}

// Blueprint resolves src through the blueprint cache.
func (p *Personalizer) Blueprint(ctx context.Context, src blueprint.Source) (*blueprint.Blueprint, error) {
	return p.blueprints.Get(ctx, src)
}

// SignalResult is the outcome of AddSignal.
type SignalResult struct {
	Success     bool                `json:"success"`
	Source      *blueprint.Vertex   `json:"source"`
	Destination *blueprint.Vertex   `json:"destination"`
	BatchType   blueprint.BatchType `json:"batch_type"`
	Params      blueprint.Params    `json:"params"`
}

// AddSignal records that the session's user acted on contentID and moves the
// session along its blueprint. A signal without a weight takes the weight
// declared in the blueprint's signal table.
func (p *Personalizer) AddSignal(ctx context.Context, sessionID string, sig signal.Signal, contentID string) (SignalResult, error) {
	s, err := p.backend.GetSession(ctx, sessionID)
	if err != nil {
		return SignalResult{}, err
	}

	d, err := p.store(s.VectorStoreID)
	if err != nil {
		return SignalResult{}, err
	}

	doc, err := d.Fetch(ctx, contentID)
	if err != nil {
		return SignalResult{}, fmt.Errorf("fetching content %q: %w", contentID, err)
	}

	bp, err := p.blueprints.Get(ctx, s.Source())
	if err != nil {
		return SignalResult{}, err
	}

	sig.Label = strings.ToUpper(sig.Label)
	if known, ok := bp.Signals().Lookup(sig.Label); ok && sig.Weight == 0 {
		sig = known
	}

	step, err := bp.Step(s.State, sig)
	if err != nil {
		return SignalResult{}, err
	}

	err = p.backend.Signal(ctx, backend.SignalRequest{
		SessionID: sessionID,
		ContentID: contentID,
		Vector:    doc.Embedding,
		State:     step.Destination.Name,
		Signal:    sig,
	})
	if err != nil {
		return SignalResult{}, fmt.Errorf("recording signal: %w", err)
	}

	if p.cfg.EnableHistory {
		if err := p.backend.AddHistory(ctx, sessionID, []string{contentID}); err != nil {
			return SignalResult{}, fmt.Errorf("adding history: %w", err)
		}
	}

	metrics.SignalsRecorded.WithLabelValues(sig.Label).Inc()
	p.publish(worker.Job{Signal: eventstream.NewSignalEvent(
		sessionID, contentID, sig, step.Source.Name, step.Destination.Name, string(step.BatchType),
	)})

	p.logger.Debug("signal recorded",
		"session_id", sessionID,
		"signal", sig.Label,
		"source", step.Source.Name,
		"destination", step.Destination.Name,
	)

	return SignalResult{
		Success:     true,
		Source:      step.Source,
		Destination: step.Destination,
		BatchType:   step.BatchType,
		Params:      step.Params,
	}, nil
}

// UserEmbeddings returns the vectors and weights the backend holds for the
// session.
func (p *Personalizer) UserEmbeddings(ctx context.Context, sessionID string) (backend.WeightedVectors, error) {
	return p.backend.UserEmbeddings(ctx, sessionID, p.cfg.EmbeddingLastN)
}

func (p *Personalizer) store(vdbID string) (vector.Driver, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	d, ok := p.stores[vdbID]
	if !ok {
		return nil, fmt.Errorf("%w: %q, call AddVectorStore first", ErrUnknownVectorStore, vdbID)
	}
	return d, nil
}

func (p *Personalizer) publish(job worker.Job) {
	if p.pool == nil {
		return
	}
	p.pool.Enqueue(job)
}
