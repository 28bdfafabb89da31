package testutils

import (
	"context"
	"sync"

	"github.com/papercomputeco/sway/pkg/vector"
)

// MockVectorDriver is a test vector driver. Search returns Results, or
// SearchErr when set, and records every query it was given.
type MockVectorDriver struct {
	Results   []vector.Result
	SearchErr error
	Dims      int

	mu        sync.Mutex
	documents map[string]vector.Document
	queries   []vector.Query
}

var _ vector.Driver = (*MockVectorDriver)(nil)

func NewMockVectorDriver(dims int) *MockVectorDriver {
	return &MockVectorDriver{
		Dims:      dims,
		documents: make(map[string]vector.Document),
	}
}

func (m *MockVectorDriver) Search(_ context.Context, q vector.Query) ([]vector.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.queries = append(m.queries, q)
	if m.SearchErr != nil {
		return nil, m.SearchErr
	}
	if len(m.Results) < q.TopK {
		return m.Results, nil
	}
	return m.Results[:q.TopK], nil
}

// Queries returns the queries seen by Search.
func (m *MockVectorDriver) Queries() []vector.Query {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]vector.Query(nil), m.queries...)
}

func (m *MockVectorDriver) Fetch(_ context.Context, id string) (vector.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.documents[id]
	if !ok {
		return vector.Document{}, vector.ErrNotFound
	}
	return doc, nil
}

func (m *MockVectorDriver) HistoryFilter(seen []string, existing vector.Filter) vector.Filter {
	return vector.WithHistory(seen, existing)
}

func (m *MockVectorDriver) Add(_ context.Context, docs []vector.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, d := range docs {
		m.documents[d.ID] = d
	}
	return nil
}

func (m *MockVectorDriver) Delete(_ context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range ids {
		delete(m.documents, id)
	}
	return nil
}

func (m *MockVectorDriver) Dimensions() int {
	return m.Dims
}

func (m *MockVectorDriver) Metric() vector.Metric {
	return vector.MetricCosine
}

func (m *MockVectorDriver) Close() error {
	return nil
}
