package personalize

import (
	"context"
	"fmt"
	"time"

	"github.com/papercomputeco/sway/pkg/backend"
	"github.com/papercomputeco/sway/pkg/blueprint"
	"github.com/papercomputeco/sway/pkg/eventstream"
	"github.com/papercomputeco/sway/pkg/metrics"
	"github.com/papercomputeco/sway/pkg/ranking"
	"github.com/papercomputeco/sway/pkg/session"
	"github.com/papercomputeco/sway/pkg/signal"
	"github.com/papercomputeco/sway/pkg/vector"
	"github.com/papercomputeco/sway/pkg/worker"
)

// BatchOptions are the optional arguments of Batch.
type BatchOptions struct {
	// Size overrides Config.BatchSize.
	Size int

	// Bias is required by biased vertices and added to personalized ones.
	Bias *backend.WeightedVectors
}

// batchRun carries the state of one Batch call.
type batchRun struct {
	sess    *session.Session
	store   vector.Driver
	step    blueprint.StepResult
	size    int
	history []string
	start   time.Time
}

// Batch serves the next batch for the session. The session steps along its
// blueprint with the BATCH signal and the source vertex decides how the batch
// is built.
func (p *Personalizer) Batch(ctx context.Context, sessionID string, opts BatchOptions) (ranking.Batch, error) {
	run := batchRun{start: time.Now()}

	var err error
	run.sess, err = p.backend.GetSession(ctx, sessionID)
	if err != nil {
		return ranking.Batch{}, err
	}

	run.store, err = p.store(run.sess.VectorStoreID)
	if err != nil {
		return ranking.Batch{}, err
	}

	run.size = opts.Size
	if run.size <= 0 {
		run.size = p.cfg.BatchSize
	}

	bp, err := p.blueprints.Get(ctx, run.sess.Source())
	if err != nil {
		return ranking.Batch{}, err
	}

	run.step, err = bp.Step(run.sess.State, signal.Batch)
	if err != nil {
		return ranking.Batch{}, err
	}

	if p.cfg.EnableHistory {
		run.history, err = p.backend.History(ctx, sessionID)
		if err != nil {
			return ranking.Batch{}, fmt.Errorf("fetching history: %w", err)
		}
	}

	p.logger.Info("serving batch",
		"session_id", sessionID,
		"algorithm", run.sess.Algorithm,
		"factory_id", run.sess.FactoryID,
		"custom_id", run.sess.CustomID,
		"batch_type", run.step.BatchType,
		"size", run.size,
	)

	var (
		queries []vector.Query
		mode    blueprint.BatchType
	)

	switch run.step.BatchType {
	case blueprint.BatchRandom:
		queries, mode, err = p.randomBatch(ctx, &run, blueprint.BatchRandom, run.step.Params.ApplyMMR || run.step.Params.ApplyThreshold != 0)

	case blueprint.BatchBiased, blueprint.BatchPersonalized:
		queries, mode, err = p.biasedBatch(ctx, &run, opts.Bias)

	case blueprint.BatchSampled:
		queries, mode, err = p.sampledBatch(ctx, &run)

	default:
		err = fmt.Errorf("%w: %q", blueprint.ErrInvalidBatchType, run.step.BatchType)
	}
	if err != nil {
		return ranking.Batch{}, err
	}

	return p.rank(ctx, &run, queries, mode)
}

func (p *Personalizer) randomQueries(run *batchRun, includeValues bool) []vector.Query {
	p.rngMu.Lock()
	defer p.rngMu.Unlock()
	return vector.RandomQueries(run.size, run.store.Dimensions(), ranking.MinTopK*ranking.MMRTopKFactor, includeValues, p.rng)
}

// randomBatch moves the session and searches with random queries. stateType
// is the batch type recorded with the state update.
func (p *Personalizer) randomBatch(ctx context.Context, run *batchRun, stateType blueprint.BatchType, includeValues bool) ([]vector.Query, blueprint.BatchType, error) {
	queries := p.randomQueries(run, includeValues)
	if err := p.backend.UpdateState(ctx, run.sess.ID, run.step.Destination.Name, stateType); err != nil {
		return nil, "", fmt.Errorf("updating state: %w", err)
	}
	return queries, blueprint.BatchRandom, nil
}

func (p *Personalizer) biasedBatch(ctx context.Context, run *batchRun, bias *backend.WeightedVectors) ([]vector.Query, blueprint.BatchType, error) {
	bt := run.step.BatchType
	if bt == blueprint.BatchBiased && (bias == nil || bias.Len() == 0) {
		return nil, "", ErrBiasRequired
	}

	if bt == blueprint.BatchPersonalized && !run.sess.HasEmbeddings {
		p.logger.Warn("no embeddings found for personalized batch, switching to random batch",
			"session_id", run.sess.ID,
		)
		return p.randomBatch(ctx, run, blueprint.BatchPersonalized, true)
	}

	req := backend.BiasedBatchRequest{
		SessionID:     run.sess.ID,
		VectorStoreID: run.sess.VectorStoreID,
		State:         run.step.Destination.Name,
		Params:        run.step.Params,
	}
	if bias != nil {
		req.BiasVectors = bias.Vectors
		req.BiasWeights = bias.Weights
	}

	wv, err := p.backend.BiasedBatch(ctx, req)
	if err != nil {
		return nil, "", fmt.Errorf("biased batch: %w", err)
	}
	if wv.Len() == 0 {
		return p.emptyFallback(ctx, run)
	}

	return p.weightedQueries(run, wv), blueprint.BatchBiased, nil
}

func (p *Personalizer) sampledBatch(ctx context.Context, run *batchRun) ([]vector.Query, blueprint.BatchType, error) {
	wv, err := p.backend.SampledBatch(ctx, backend.SampledBatchRequest{
		SessionID:     run.sess.ID,
		VectorStoreID: run.sess.VectorStoreID,
		State:         run.step.Destination.Name,
		NTopics:       int(run.step.Params.NTopics),
		Params:        run.step.Params,
	})
	if err != nil {
		return nil, "", fmt.Errorf("sampled batch: %w", err)
	}
	if wv.Len() == 0 {
		return p.emptyFallback(ctx, run)
	}

	return p.weightedQueries(run, wv), blueprint.BatchSampled, nil
}

// emptyFallback serves random queries when the backend had no vectors to
// search with. The backend already moved the session.
func (p *Personalizer) emptyFallback(_ context.Context, run *batchRun) ([]vector.Query, blueprint.BatchType, error) {
	p.logger.Warn("backend returned no vectors, switching to random batch",
		"session_id", run.sess.ID,
		"batch_type", run.step.BatchType,
	)
	return p.randomQueries(run, true), blueprint.BatchRandom, nil
}

// weightedQueries builds one query per weighted vector. Result sizes follow
// the adjusted weights and already served content is filtered out.
func (p *Personalizer) weightedQueries(run *batchRun, wv backend.WeightedVectors) []vector.Query {
	params := run.step.Params
	// MMR widens the pool once (top_k = 2k, top_k_mmr = k), not twice.
	topKs := ranking.TopKs(wv.Weights, run.size, params.ApplyMMR)
	includeValues := params.ApplyMMR || params.ApplyThreshold != 0

	var filter vector.Filter
	if p.cfg.EnableHistory && len(run.history) > 0 {
		filter = run.store.HistoryFilter(run.history, vector.Filter{})
	}

	queries := make([]vector.Query, wv.Len())
	for i, v := range wv.Vectors {
		queries[i] = vector.Query{
			Embedding:     v,
			TopK:          topKs[i].TopK,
			TopKMMR:       topKs[i].TopKMMR,
			Filter:        filter,
			IncludeValues: includeValues,
		}
	}
	return queries
}

func (p *Personalizer) rank(ctx context.Context, run *batchRun, queries []vector.Query, mode blueprint.BatchType) (ranking.Batch, error) {
	results, err := vector.MultiSearch(ctx, run.store, queries)
	if err != nil {
		return ranking.Batch{}, fmt.Errorf("searching vector store: %w", err)
	}

	cands := make([][]ranking.Candidate, len(results))
	for i, r := range results {
		cands[i] = ranking.FromResults(r)
	}

	params := run.step.Params
	opts := ranking.Options{
		RemoveDuplicates: params.RemoveDuplicates,
		ApplyMMR:         params.ApplyMMR,
		ApplyThreshold:   params.ApplyThreshold,
		Metric:           run.store.Metric(),
	}

	rankStart := time.Now()
	p.rngMu.Lock()
	batch, stats, err := p.pipeline.Apply(cands, queries, mode, opts)
	p.rngMu.Unlock()
	if err != nil {
		return ranking.Batch{}, err
	}
	metrics.RankingDuration.Observe(time.Since(rankStart).Seconds())
	metrics.CandidatesDropped.WithLabelValues("threshold").Add(float64(stats.Thresholded))
	metrics.CandidatesDropped.WithLabelValues("dedup").Add(float64(stats.Deduplicated))

	batch = batch.Truncate(run.size)

	if p.cfg.EnableHistory && batch.Len() > 0 {
		if err := p.backend.AddHistory(ctx, run.sess.ID, batch.IDs); err != nil {
			return ranking.Batch{}, fmt.Errorf("adding history: %w", err)
		}
	}

	metrics.BatchesServed.WithLabelValues(string(run.step.BatchType)).Inc()

	event := eventstream.NewBatchEvent(run.sess.ID, run.step.Destination.Name, string(run.step.BatchType), run.size, batch.IDs)
	event.Thresholded = stats.Thresholded
	event.Deduplicated = stats.Deduplicated
	event.DurationMs = time.Since(run.start).Milliseconds()
	p.publish(worker.Job{Batch: event})

	return batch, nil
}
