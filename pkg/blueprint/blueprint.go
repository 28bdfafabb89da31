// Package blueprint implements the validated state machine that maps a session
// state and an incoming signal to the next state, the batch mode and the batch
// parameters.
package blueprint

import (
	"fmt"
	"strings"

	"github.com/papercomputeco/sway/pkg/signal"
)

// InitialStateSentinel is the state name some callers send before they know
// any vertex name. It resolves to the first vertex added to the blueprint.
const InitialStateSentinel = "0"

// Blueprint owns a set of vertices and edges plus the signal table used to
// label them. A Blueprint returned by Build or Parse is validated and must be
// treated as read-only; Step is then safe for concurrent use.
type Blueprint struct {
	signals *signal.Table

	vertices []*Vertex
	byName   map[string]*Vertex

	edges     []*Edge
	edgeNames map[string]struct{}
	outgoing  map[string][]*Edge
}

// New returns an empty blueprint labeled by the given table. A nil table
// means the built-in signals only.
func New(table *signal.Table) *Blueprint {
	if table == nil {
		// built-ins never fail to register
		table, _ = signal.NewTable()
	}

	return &Blueprint{
		signals:   table,
		byName:    make(map[string]*Vertex),
		edgeNames: make(map[string]struct{}),
		outgoing:  make(map[string][]*Edge),
	}
}

// AddVertex adds a vertex. Names must be unique.
func (b *Blueprint) AddVertex(name string, batchType BatchType, params Params) (*Vertex, error) {
	if _, ok := b.byName[name]; ok {
		return nil, fmt.Errorf("%w: vertex %q", ErrDuplicateName, name)
	}
	if !batchType.Valid() {
		return nil, fmt.Errorf("%w: %q on vertex %q", ErrInvalidBatchType, batchType, name)
	}

	v := &Vertex{Name: name, BatchType: batchType, Params: params}
	b.vertices = append(b.vertices, v)
	b.byName[name] = v
	return v, nil
}

// AddEdge adds a transition labeled with a signal from the blueprint's table.
// Both endpoints must already exist.
func (b *Blueprint) AddEdge(name, label, start, end string) (*Edge, error) {
	if _, ok := b.edgeNames[name]; ok {
		return nil, fmt.Errorf("%w: edge %q", ErrDuplicateName, name)
	}

	from, ok := b.byName[start]
	if !ok {
		return nil, fmt.Errorf("%w: edge %q starts at unknown vertex %q", ErrDanglingReference, name, start)
	}
	to, ok := b.byName[end]
	if !ok {
		return nil, fmt.Errorf("%w: edge %q ends at unknown vertex %q", ErrDanglingReference, name, end)
	}

	sig, ok := b.signals.Lookup(strings.TrimSpace(label))
	if !ok {
		return nil, fmt.Errorf("%w: %q on edge %q", ErrUnknownSignal, label, name)
	}

	e := &Edge{Name: name, Signal: sig, Start: from, End: to}
	b.edges = append(b.edges, e)
	b.edgeNames[name] = struct{}{}
	b.outgoing[from.Name] = append(b.outgoing[from.Name], e)
	return e, nil
}

// Validate checks every vertex for an outgoing BATCH edge, and for either a
// DEFAULT edge or transitions covering every non-reserved signal.
func (b *Blueprint) Validate() error {
	if len(b.vertices) == 0 {
		return ErrEmpty
	}

	for _, v := range b.vertices {
		var hasBatch, hasDefault bool
		covered := make(map[string]struct{})

		for _, e := range b.outgoing[v.Name] {
			switch e.Signal.Label {
			case signal.LabelBatch:
				hasBatch = true
			case signal.LabelDefault:
				hasDefault = true
			default:
				covered[e.Signal.Label] = struct{}{}
			}
		}

		if !hasBatch {
			return fmt.Errorf("%w: %q", ErrMissingBatchEdge, v.Name)
		}
		if hasDefault {
			continue
		}

		for _, label := range b.signals.Labels() {
			if label == signal.LabelBatch || label == signal.LabelDefault {
				continue
			}
			if _, ok := covered[label]; !ok {
				return fmt.Errorf("%w: %q lacks %s", ErrIncompleteCoverage, v.Name, label)
			}
		}
	}

	return nil
}

// Step resolves a transition. The returned batch type and params belong to
// the source vertex.
func (b *Blueprint) Step(state string, sig signal.Signal) (StepResult, error) {
	source, err := b.resolve(state)
	if err != nil {
		return StepResult{}, err
	}

	var fallback *Edge
	for _, e := range b.outgoing[source.Name] {
		if e.Signal.Label == sig.Label {
			return b.result(source, e), nil
		}
		if fallback == nil && e.Signal.Label == signal.LabelDefault {
			fallback = e
		}
	}

	if fallback == nil {
		return StepResult{}, fmt.Errorf("%w: state %q signal %q", ErrInvariantViolation, source.Name, sig.Label)
	}

	return b.result(source, fallback), nil
}

func (b *Blueprint) result(source *Vertex, e *Edge) StepResult {
	return StepResult{
		Source:      source,
		Destination: e.End,
		BatchType:   source.BatchType,
		Params:      source.Params,
	}
}

func (b *Blueprint) resolve(state string) (*Vertex, error) {
	if v, ok := b.byName[state]; ok {
		return v, nil
	}
	if state == InitialStateSentinel && len(b.vertices) > 0 {
		return b.vertices[0], nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownState, state)
}

// Vertex returns the vertex with the given name.
func (b *Blueprint) Vertex(name string) (*Vertex, bool) {
	v, ok := b.byName[name]
	return v, ok
}

// Initial returns the first vertex added, or nil for an empty blueprint.
func (b *Blueprint) Initial() *Vertex {
	if len(b.vertices) == 0 {
		return nil
	}
	return b.vertices[0]
}

// Vertices returns the vertices in insertion order.
func (b *Blueprint) Vertices() []*Vertex {
	out := make([]*Vertex, len(b.vertices))
	copy(out, b.vertices)
	return out
}

// Edges returns the edges in insertion order.
func (b *Blueprint) Edges() []*Edge {
	out := make([]*Edge, len(b.edges))
	copy(out, b.edges)
	return out
}

// Outgoing returns the edges starting at the named vertex.
func (b *Blueprint) Outgoing(name string) []*Edge {
	edges := b.outgoing[name]
	out := make([]*Edge, len(edges))
	copy(out, edges)
	return out
}

// Signals returns the blueprint's signal table.
func (b *Blueprint) Signals() *signal.Table {
	return b.signals
}
