// Package qdrantvec provides a vector driver backed by a Qdrant collection over
// gRPC.
package qdrantvec

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/papercomputeco/sway/pkg/vector"
)

// idField stores the caller's document id in the point payload. Qdrant only
// accepts unsigned integers and UUIDs as point ids.
const idField = "_sway_id"

// Config holds configuration for the Qdrant driver.
type Config struct {
	Host   string
	Port   int
	APIKey string
	UseTLS bool

	Collection string
	Dimensions uint
	Metric     vector.Metric
}

// Driver implements vector.Driver against a Qdrant collection.
type Driver struct {
	client     *qdrant.Client
	collection string
	dim        int
	metric     vector.Metric
	logger     *slog.Logger
}

// NewDriver connects to Qdrant and creates the collection when missing.
func NewDriver(ctx context.Context, c Config, logger *slog.Logger) (*Driver, error) {
	if c.Collection == "" {
		return nil, fmt.Errorf("qdrant collection is required")
	}
	if c.Dimensions == 0 {
		return nil, fmt.Errorf("qdrant embedding dimensions cannot be 0, must be configured")
	}
	if c.Port == 0 {
		c.Port = 6334
	}

	metric := c.Metric
	if metric == "" {
		metric = vector.MetricCosine
	}
	distance, err := distanceFor(metric)
	if err != nil {
		return nil, err
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   c.Host,
		Port:   c.Port,
		APIKey: c.APIKey,
		UseTLS: c.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", vector.ErrConnection, err)
	}

	exists, err := client.CollectionExists(ctx, c.Collection)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: checking collection: %w", vector.ErrConnection, err)
	}

	if !exists {
		err := client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: c.Collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(c.Dimensions),
				Distance: distance,
			}),
		})
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("creating collection %s: %w", c.Collection, err)
		}
		logger.Info("created qdrant collection", "collection", c.Collection)
	}

	logger.Info("qdrant vector driver initialized",
		"host", c.Host,
		"port", c.Port,
		"collection", c.Collection,
		"dimensions", c.Dimensions,
		"metric", metric,
	)

	return &Driver{
		client:     client,
		collection: c.Collection,
		dim:        int(c.Dimensions),
		metric:     metric,
		logger:     logger,
	}, nil
}

func distanceFor(m vector.Metric) (qdrant.Distance, error) {
	switch m {
	case vector.MetricCosine:
		return qdrant.Distance_Cosine, nil
	case vector.MetricDot:
		return qdrant.Distance_Dot, nil
	case vector.MetricEuclidean:
		return qdrant.Distance_Euclid, nil
	default:
		return 0, fmt.Errorf("%w: %s", vector.ErrUnsupportedMetric, m)
	}
}

// pointID maps a document id onto a stable UUIDv5.
func pointID(id string) *qdrant.PointId {
	return qdrant.NewID(uuid.NewSHA1(uuid.NameSpaceURL, []byte(id)).String())
}

func pointIDs(ids []string) []*qdrant.PointId {
	out := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		out[i] = pointID(id)
	}
	return out
}

// Add upserts documents as points.
func (d *Driver) Add(ctx context.Context, docs []vector.Document) error {
	if len(docs) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, 0, len(docs))
	for _, doc := range docs {
		if len(doc.Embedding) != d.dim {
			return fmt.Errorf("%w: doc %s has %d, want %d", vector.ErrDimensionMismatch, doc.ID, len(doc.Embedding), d.dim)
		}

		payload, err := toPayload(doc)
		if err != nil {
			return fmt.Errorf("encoding payload for doc %s: %w", doc.ID, err)
		}

		points = append(points, &qdrant.PointStruct{
			Id:      pointID(doc.ID),
			Vectors: qdrant.NewVectors(doc.Embedding...),
			Payload: payload,
		})
	}

	_, err := d.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: d.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("upserting points: %w", err)
	}

	d.logger.Debug("added documents to qdrant", "count", len(docs))
	return nil
}

// Search runs a nearest neighbour query with the filter translated to a
// native Qdrant filter.
func (d *Driver) Search(ctx context.Context, q vector.Query) ([]vector.Result, error) {
	if len(q.Embedding) != d.dim {
		return nil, fmt.Errorf("%w: query has %d, want %d", vector.ErrDimensionMismatch, len(q.Embedding), d.dim)
	}

	topK := q.TopK
	if topK <= 0 {
		topK = 10
	}

	points, err := d.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: d.collection,
		Query:          qdrant.NewQuery(q.Embedding...),
		Limit:          qdrant.PtrOf(uint64(topK)),
		Filter:         nativeFilter(q.Filter),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(q.IncludeValues),
	})
	if err != nil {
		return nil, fmt.Errorf("querying points: %w", err)
	}

	results := make([]vector.Result, 0, len(points))
	for _, p := range points {
		doc := fromPayload(p.GetPayload())
		if q.IncludeValues {
			doc.Embedding = p.GetVectors().GetVector().GetData()
		}
		results = append(results, vector.Result{
			Document: doc,
			Score:    float64(p.GetScore()),
		})
	}

	d.logger.Debug("queried qdrant", "results", len(results))
	return results, nil
}

// Fetch retrieves a single point with its vector.
func (d *Driver) Fetch(ctx context.Context, id string) (vector.Document, error) {
	points, err := d.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: d.collection,
		Ids:            []*qdrant.PointId{pointID(id)},
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return vector.Document{}, fmt.Errorf("getting point %s: %w", id, err)
	}
	if len(points) == 0 {
		return vector.Document{}, fmt.Errorf("%w: %s", vector.ErrNotFound, id)
	}

	doc := fromPayload(points[0].GetPayload())
	doc.Embedding = points[0].GetVectors().GetVector().GetData()
	return doc, nil
}

// HistoryFilter excludes seen ids on top of existing.
func (d *Driver) HistoryFilter(seen []string, existing vector.Filter) vector.Filter {
	return vector.WithHistory(seen, existing)
}

// Delete removes points by document id.
func (d *Driver) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	_, err := d.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: d.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelector(pointIDs(ids)...),
	})
	if err != nil {
		return fmt.Errorf("deleting points: %w", err)
	}

	d.logger.Debug("deleted documents from qdrant", "count", len(ids))
	return nil
}

// Dimensions returns the collection's vector size.
func (d *Driver) Dimensions() int {
	return d.dim
}

// Metric returns the collection's distance metric.
func (d *Driver) Metric() vector.Metric {
	return d.metric
}

// Close closes the gRPC connection.
func (d *Driver) Close() error {
	return d.client.Close()
}
