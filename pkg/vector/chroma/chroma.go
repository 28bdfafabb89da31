// Package chroma provides a vector driver backed by a Chroma collection over
// its REST API.
package chroma

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"sort"
	"time"

	"github.com/papercomputeco/sway/pkg/vector"
)

const (
	defaultTenant   = "default_tenant"
	defaultDatabase = "default_database"

	defaultMaxRetries    = 5
	defaultRetryDelay    = 500 * time.Millisecond
	defaultMaxRetryDelay = 10 * time.Second

	// spaceKey is the collection metadata key Chroma reads its distance
	// function from.
	spaceKey = "hnsw:space"
)

// Config holds configuration for the Chroma driver.
type Config struct {
	// URL is the Chroma server URL (e.g., "http://localhost:8000").
	URL string

	Tenant   string
	Database string

	Collection string
	Dimensions uint
	Metric     vector.Metric

	// MaxRetries bounds the attempts made to reach Chroma on startup.
	MaxRetries    int
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration

	HTTPClient *http.Client
}

// Driver implements vector.Driver using Chroma's REST API.
type Driver struct {
	baseURL      string
	collectionID string
	dim          int
	metric       vector.Metric
	httpClient   *http.Client
	logger       *slog.Logger
}

var _ vector.Driver = (*Driver)(nil)

// NewDriver connects to Chroma and creates the collection when missing.
// Chroma is retried with exponential backoff while it comes up.
func NewDriver(ctx context.Context, c Config, logger *slog.Logger) (*Driver, error) {
	if c.URL == "" {
		return nil, fmt.Errorf("chroma URL is required")
	}
	if c.Collection == "" {
		return nil, fmt.Errorf("chroma collection is required")
	}
	if c.Dimensions == 0 {
		return nil, fmt.Errorf("chroma embedding dimensions cannot be 0, must be configured")
	}
	if c.Tenant == "" {
		c.Tenant = defaultTenant
	}
	if c.Database == "" {
		c.Database = defaultDatabase
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = defaultMaxRetries
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = defaultRetryDelay
	}
	if c.MaxRetryDelay <= 0 {
		c.MaxRetryDelay = defaultMaxRetryDelay
	}

	metric := c.Metric
	if metric == "" {
		metric = vector.MetricCosine
	}
	space, err := spaceFor(metric)
	if err != nil {
		return nil, err
	}

	d := &Driver{
		baseURL:    fmt.Sprintf("%s/api/v2/tenants/%s/databases/%s/collections", c.URL, c.Tenant, c.Database),
		dim:        int(c.Dimensions),
		metric:     metric,
		httpClient: c.HTTPClient,
		logger:     logger,
	}
	if d.httpClient == nil {
		d.httpClient = &http.Client{Timeout: 60 * time.Second}
	}

	var lastErr error
	delay := c.RetryDelay
	for attempt := 1; attempt <= c.MaxRetries; attempt++ {
		d.collectionID, lastErr = d.getOrCreateCollection(ctx, c.Collection, space)
		if lastErr == nil {
			break
		}
		if attempt == c.MaxRetries {
			return nil, fmt.Errorf("%w: collection %q after %d attempts: %w",
				vector.ErrConnection, c.Collection, c.MaxRetries, lastErr)
		}

		logger.Warn("chroma not ready, retrying",
			"attempt", attempt,
			"delay", delay,
			"error", lastErr,
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay = min(delay*2, c.MaxRetryDelay)
	}

	logger.Info("connected to Chroma",
		"url", c.URL,
		"collection", c.Collection,
		"collection_id", d.collectionID,
		"metric", metric,
	)

	return d, nil
}

// spaceFor maps a metric onto a Chroma distance function.
func spaceFor(m vector.Metric) (string, error) {
	switch m {
	case vector.MetricCosine:
		return "cosine", nil
	case vector.MetricEuclidean:
		return "l2", nil
	case vector.MetricDot:
		return "ip", nil
	default:
		return "", fmt.Errorf("%w: %q", vector.ErrUnsupportedMetric, m)
	}
}

// getOrCreateCollection gets an existing collection or creates a new one.
func (d *Driver) getOrCreateCollection(ctx context.Context, name, space string) (string, error) {
	var collection chromaCollection
	status, err := d.do(ctx, http.MethodGet, "/"+name, nil, &collection)
	switch {
	case err == nil:
		if got, ok := collection.Metadata[spaceKey].(string); ok && got != space {
			return "", fmt.Errorf("collection %q uses %s distance, want %s", name, got, space)
		}
		return collection.ID, nil
	case status == 0 || status >= http.StatusInternalServerError:
		return "", err
	}

	_, err = d.do(ctx, http.MethodPost, "", chromaCreateRequest{
		Name:     name,
		Metadata: map[string]any{spaceKey: space},
	}, &collection)
	if err != nil {
		return "", fmt.Errorf("creating collection: %w", err)
	}
	return collection.ID, nil
}

// do sends body as JSON to the collections API and decodes the response into
// out. status is 0 when no response was received.
func (d *Driver) do(ctx context.Context, method, path string, body, out any) (int, error) {
	var r io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("marshaling request: %w", err)
		}
		r = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, d.baseURL+path, r)
	if err != nil {
		return 0, fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, fmt.Errorf("chroma %s %s: status %d: %s", method, path, resp.StatusCode, string(msg))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decoding response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

func (d *Driver) collectionPath(op string) string {
	return "/" + d.collectionID + "/" + op
}

// Add upserts documents with their embeddings.
func (d *Driver) Add(ctx context.Context, docs []vector.Document) error {
	if len(docs) == 0 {
		return nil
	}

	req := chromaUpsertRequest{
		IDs:        make([]string, len(docs)),
		Embeddings: make([][]float32, len(docs)),
		Metadatas:  make([]map[string]any, len(docs)),
	}
	for i, doc := range docs {
		if len(doc.Embedding) != d.dim {
			return fmt.Errorf("%w: doc %s has %d, want %d", vector.ErrDimensionMismatch, doc.ID, len(doc.Embedding), d.dim)
		}
		req.IDs[i] = doc.ID
		req.Embeddings[i] = doc.Embedding
		req.Metadatas[i] = doc.Metadata
	}

	if _, err := d.do(ctx, http.MethodPost, d.collectionPath("upsert"), req, nil); err != nil {
		return fmt.Errorf("adding documents: %w", err)
	}

	d.logger.Debug("added documents to chroma", "count", len(docs))
	return nil
}

// Search runs a nearest neighbour query. Metadata matches run in Chroma;
// excluded ids are over-fetched and dropped afterwards.
func (d *Driver) Search(ctx context.Context, q vector.Query) ([]vector.Result, error) {
	if len(q.Embedding) != d.dim {
		return nil, fmt.Errorf("%w: query has %d, want %d", vector.ErrDimensionMismatch, len(q.Embedding), d.dim)
	}
	topK := q.TopK
	if topK <= 0 {
		topK = 10
	}

	include := []string{"metadatas", "distances"}
	if q.IncludeValues {
		include = append(include, "embeddings")
	}

	var resp chromaQueryResponse
	_, err := d.do(ctx, http.MethodPost, d.collectionPath("query"), chromaQueryRequest{
		QueryEmbeddings: [][]float32{q.Embedding},
		NResults:        topK + len(q.Filter.ExcludeIDs),
		Where:           where(q.Filter.Match),
		Include:         include,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("querying chroma: %w", err)
	}

	if len(resp.IDs) == 0 {
		return nil, nil
	}

	results := make([]vector.Result, 0, topK)
	for i, id := range resp.IDs[0] {
		r := vector.Result{Document: vector.Document{ID: id}}
		if len(resp.Metadatas) > 0 && i < len(resp.Metadatas[0]) {
			r.Metadata = resp.Metadatas[0][i]
		}
		if len(resp.Embeddings) > 0 && i < len(resp.Embeddings[0]) {
			r.Embedding = resp.Embeddings[0][i]
		}
		if len(resp.Distances) > 0 && i < len(resp.Distances[0]) {
			r.Score = d.score(resp.Distances[0][i])
		}

		if !q.Filter.Allows(r.Document) {
			continue
		}
		results = append(results, r)
		if len(results) == topK {
			break
		}
	}

	return results, nil
}

// where translates metadata matches into a Chroma where clause.
func where(match map[string]any) map[string]any {
	switch len(match) {
	case 0:
		return nil
	case 1:
		return match
	}

	keys := make([]string, 0, len(match))
	for k := range match {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	clauses := make([]map[string]any, len(keys))
	for i, k := range keys {
		clauses[i] = map[string]any{k: match[k]}
	}
	return map[string]any{"$and": clauses}
}

// score converts a Chroma distance into the driver's metric. Chroma reports
// 1-cos for cosine, squared L2 for l2 and 1-dot for ip.
func (d *Driver) score(distance float64) float64 {
	switch d.metric {
	case vector.MetricEuclidean:
		return math.Sqrt(math.Max(distance, 0))
	default:
		return 1 - distance
	}
}

// Fetch retrieves a single document by id.
func (d *Driver) Fetch(ctx context.Context, id string) (vector.Document, error) {
	var resp chromaGetResponse
	_, err := d.do(ctx, http.MethodPost, d.collectionPath("get"), chromaGetRequest{
		IDs:     []string{id},
		Include: []string{"metadatas", "embeddings"},
	}, &resp)
	if err != nil {
		return vector.Document{}, fmt.Errorf("fetching document %s: %w", id, err)
	}

	if len(resp.IDs) == 0 {
		return vector.Document{}, vector.ErrNotFound
	}

	doc := vector.Document{ID: resp.IDs[0]}
	if len(resp.Metadatas) > 0 {
		doc.Metadata = resp.Metadatas[0]
	}
	if len(resp.Embeddings) > 0 {
		doc.Embedding = resp.Embeddings[0]
	}
	return doc, nil
}

// HistoryFilter excludes seen ids on top of existing.
func (d *Driver) HistoryFilter(seen []string, existing vector.Filter) vector.Filter {
	return vector.WithHistory(seen, existing)
}

// Delete removes documents by their IDs.
func (d *Driver) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	if _, err := d.do(ctx, http.MethodPost, d.collectionPath("delete"), chromaDeleteRequest{IDs: ids}, nil); err != nil {
		return fmt.Errorf("deleting documents: %w", err)
	}

	d.logger.Debug("deleted documents from chroma", "count", len(ids))
	return nil
}

// Dimensions implements vector.Driver.
func (d *Driver) Dimensions() int {
	return d.dim
}

// Metric implements vector.Driver.
func (d *Driver) Metric() vector.Metric {
	return d.metric
}

// Close releases resources held by the driver.
func (d *Driver) Close() error {
	d.httpClient.CloseIdleConnections()
	return nil
}
