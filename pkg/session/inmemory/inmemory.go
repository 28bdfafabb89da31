// Package inmemory provides an in-memory session.Store.
package inmemory

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/papercomputeco/sway/pkg/session"
)

// Driver implements session.Store using in-memory maps.
type Driver struct {
	// mu is a read write sync mutex guarding every map below
	mu sync.RWMutex

	sessions     map[string]*session.Session
	signals      map[string][]session.SignalRecord
	history      map[string][]string
	vectorStores map[string]session.VectorStore
}

// NewDriver creates a new in-memory store.
func NewDriver() *Driver {
	return &Driver{
		sessions:     make(map[string]*session.Session),
		signals:      make(map[string][]session.SignalRecord),
		history:      make(map[string][]string),
		vectorStores: make(map[string]session.VectorStore),
	}
}

// Create stores a copy of s.
func (d *Driver) Create(_ context.Context, s *session.Session) error {
	if s == nil {
		return errors.New("cannot store nil session")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.sessions[s.ID]; ok {
		return session.ErrAlreadyExists
	}

	cp := *s
	d.sessions[s.ID] = &cp
	return nil
}

// Get returns a copy of the session.
func (d *Driver) Get(_ context.Context, id string) (*session.Session, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	s, ok := d.sessions[id]
	if !ok {
		return nil, session.NotFoundError{ID: id}
	}

	cp := *s
	return &cp, nil
}

// UpdateState moves the session to state.
func (d *Driver) UpdateState(_ context.Context, id, state string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	s, ok := d.sessions[id]
	if !ok {
		return session.NotFoundError{ID: id}
	}

	s.State = state
	s.UpdatedAt = time.Now().UTC()
	return nil
}

// AppendSignal records rec against its session.
func (d *Driver) AppendSignal(_ context.Context, rec session.SignalRecord) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	s, ok := d.sessions[rec.SessionID]
	if !ok {
		return session.NotFoundError{ID: rec.SessionID}
	}

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	rec.Embedding = slices.Clone(rec.Embedding)
	d.signals[rec.SessionID] = append(d.signals[rec.SessionID], rec)

	s.State = rec.State
	s.UpdatedAt = rec.CreatedAt
	if len(rec.Embedding) > 0 {
		s.HasEmbeddings = true
	}
	return nil
}

// Signals returns the last n signals of the session, oldest first.
func (d *Driver) Signals(_ context.Context, id string, n int) ([]session.SignalRecord, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if _, ok := d.sessions[id]; !ok {
		return nil, session.NotFoundError{ID: id}
	}

	recs := d.signals[id]
	if n > 0 && len(recs) > n {
		recs = recs[len(recs)-n:]
	}
	return slices.Clone(recs), nil
}

// AppendHistory adds content ids to the session history.
func (d *Driver) AppendHistory(_ context.Context, id string, contentIDs []string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.sessions[id]; !ok {
		return session.NotFoundError{ID: id}
	}

	d.history[id] = append(d.history[id], contentIDs...)
	return nil
}

// History returns the served content ids of the session.
func (d *Driver) History(_ context.Context, id string) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if _, ok := d.sessions[id]; !ok {
		return nil, session.NotFoundError{ID: id}
	}

	return slices.Clone(d.history[id]), nil
}

// PutVectorStore registers or replaces a vector store.
func (d *Driver) PutVectorStore(_ context.Context, vs session.VectorStore) error {
	if vs.ID == "" {
		return errors.New("vector store id is required")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if vs.CreatedAt.IsZero() {
		vs.CreatedAt = time.Now().UTC()
	}
	d.vectorStores[vs.ID] = vs
	return nil
}

// HasVectorStore reports whether id is registered.
func (d *Driver) HasVectorStore(_ context.Context, id string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	_, ok := d.vectorStores[id]
	return ok, nil
}

// Close is a no-op for the in-memory store.
func (d *Driver) Close() error {
	return nil
}
