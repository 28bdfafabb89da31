// Package inmemory provides a brute-force vector driver held in process
// memory. It backs tests and single-node deployments without a vector store.
package inmemory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"

	"github.com/papercomputeco/sway/pkg/vector"
)

// Driver implements vector.Driver over a map.
type Driver struct {
	mu     sync.RWMutex
	docs   map[string]vector.Document
	order  []string
	dim    int
	metric vector.Metric
}

// NewDriver creates an empty in-memory store.
func NewDriver(dimensions int, metric vector.Metric) (*Driver, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("in-memory vector dimensions must be positive, got %d", dimensions)
	}
	if metric == "" {
		metric = vector.MetricCosine
	}

	return &Driver{
		docs:   make(map[string]vector.Document),
		dim:    dimensions,
		metric: metric,
	}, nil
}

// Add stores or replaces documents.
func (d *Driver) Add(_ context.Context, docs []vector.Document) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, doc := range docs {
		if len(doc.Embedding) != d.dim {
			return fmt.Errorf("%w: doc %s has %d, want %d", vector.ErrDimensionMismatch, doc.ID, len(doc.Embedding), d.dim)
		}
		if _, ok := d.docs[doc.ID]; !ok {
			d.order = append(d.order, doc.ID)
		}
		d.docs[doc.ID] = vector.Document{
			ID:        doc.ID,
			Embedding: slices.Clone(doc.Embedding),
			Metadata:  maps.Clone(doc.Metadata),
		}
	}
	return nil
}

// Search scores every stored document and returns the best q.TopK.
func (d *Driver) Search(_ context.Context, q vector.Query) ([]vector.Result, error) {
	if len(q.Embedding) != d.dim {
		return nil, fmt.Errorf("%w: query has %d, want %d", vector.ErrDimensionMismatch, len(q.Embedding), d.dim)
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	query := vector.Float64s(q.Embedding)
	results := make([]vector.Result, 0, len(d.docs))
	for _, id := range d.order {
		doc := d.docs[id]
		if !q.Filter.Allows(doc) {
			continue
		}

		res := vector.Result{
			Document: vector.Document{ID: doc.ID, Metadata: maps.Clone(doc.Metadata)},
			Score:    d.metric.Score(query, vector.Float64s(doc.Embedding)),
		}
		if q.IncludeValues {
			res.Embedding = slices.Clone(doc.Embedding)
		}
		results = append(results, res)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return d.metric.Better(results[i].Score, results[j].Score)
	})

	if q.TopK > 0 && len(results) > q.TopK {
		results = results[:q.TopK]
	}
	return results, nil
}

// Fetch returns a stored document.
func (d *Driver) Fetch(_ context.Context, id string) (vector.Document, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	doc, ok := d.docs[id]
	if !ok {
		return vector.Document{}, fmt.Errorf("%w: %s", vector.ErrNotFound, id)
	}
	return vector.Document{
		ID:        doc.ID,
		Embedding: slices.Clone(doc.Embedding),
		Metadata:  maps.Clone(doc.Metadata),
	}, nil
}

// HistoryFilter excludes seen ids on top of existing.
func (d *Driver) HistoryFilter(seen []string, existing vector.Filter) vector.Filter {
	return vector.WithHistory(seen, existing)
}

// Delete removes documents by id. Unknown ids are ignored.
func (d *Driver) Delete(_ context.Context, ids []string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, id := range ids {
		delete(d.docs, id)
	}
	d.order = slices.DeleteFunc(d.order, func(id string) bool {
		_, ok := d.docs[id]
		return !ok
	})
	return nil
}

// Len returns the number of stored documents.
func (d *Driver) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.docs)
}

func (d *Driver) Dimensions() int { return d.dim }

func (d *Driver) Metric() vector.Metric { return d.metric }

func (d *Driver) Close() error { return nil }
