// Package memgraph is an in-process append-only temporal graph store. It keeps
// the whole edge log in memory and evaluates queries with the same predicates
// the Cypher filters express.
package memgraph

import (
	"context"
	"sort"
	"sync"

	domainagg "github.com/yungbote/branchgraph/internal/domain/aggregates"
	domaingraph "github.com/yungbote/branchgraph/internal/domain/graph"
	"github.com/yungbote/branchgraph/internal/domain/timestamp"
)

type Store struct {
	mu       sync.RWMutex
	vertices map[string]domaingraph.Vertex
	edges    []domaingraph.Edge
	index    map[string]int
	closed   bool
}

var _ domaingraph.Store = (*Store)(nil)

func New() *Store {
	s := &Store{
		vertices: map[string]domaingraph.Vertex{},
		index:    map[string]int{},
	}
	s.vertices[domaingraph.RootID] = domaingraph.Vertex{ID: domaingraph.RootID, Kind: domaingraph.VertexRoot}
	return s
}

func (s *Store) Vertex(ctx context.Context, id string) (domaingraph.Vertex, bool, error) {
	if err := ctx.Err(); err != nil {
		return domaingraph.Vertex{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vertices[id]
	return v, ok, nil
}

func (s *Store) Edges(ctx context.Context, q domaingraph.EdgeQuery) ([]domaingraph.Edge, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.matchLocked(q, nil), nil
}

// Len returns the number of edges ever recorded, open or closed.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.edges)
}

func (s *Store) matchLocked(q domaingraph.EdgeQuery, closures map[string]timestamp.Timestamp) []domaingraph.Edge {
	var out []domaingraph.Edge
	for _, e := range s.edges {
		if to, ok := closures[e.ID]; ok {
			e.Props.To = &to
		}
		if q.Matches(e) {
			out = append(out, copyEdge(e))
		}
	}
	return out
}

func copyEdge(e domaingraph.Edge) domaingraph.Edge {
	if e.Props.To != nil {
		to := *e.Props.To
		e.Props.To = &to
	}
	return e
}

func (s *Store) Begin(ctx context.Context) (domaingraph.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return nil, domainagg.NewError(domainagg.CodeInternal, "memgraph.begin", "store closed", nil)
	}
	return &tx{
		store:    s,
		vertices: map[string]domaingraph.Vertex{},
		closures: map[string]timestamp.Timestamp{},
	}, nil
}

func (s *Store) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// tx stages writes until Commit. Closures are re-checked at commit time so a
// concurrent transaction that already closed the same edge makes this one fail.
type tx struct {
	store    *Store
	vertices map[string]domaingraph.Vertex
	edges    []domaingraph.Edge
	closures map[string]timestamp.Timestamp
	done     bool
}

func (t *tx) Vertex(ctx context.Context, id string) (domaingraph.Vertex, bool, error) {
	if v, ok := t.vertices[id]; ok {
		return v, true, nil
	}
	return t.store.Vertex(ctx, id)
}

func (t *tx) Edges(ctx context.Context, q domaingraph.EdgeQuery) ([]domaingraph.Edge, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.store.mu.RLock()
	out := t.store.matchLocked(q, t.closures)
	t.store.mu.RUnlock()
	for _, e := range t.edges {
		if to, ok := t.closures[e.ID]; ok {
			e.Props.To = &to
		}
		if q.Matches(e) {
			out = append(out, copyEdge(e))
		}
	}
	return out, nil
}

func (t *tx) CreateVertex(ctx context.Context, v domaingraph.Vertex) error {
	const op = "memgraph.create_vertex"
	if t.done {
		return domainagg.NewError(domainagg.CodeInternal, op, "transaction finished", nil)
	}
	if v.ID == "" {
		return domainagg.Validation(op, "vertex id required")
	}
	if _, ok := t.vertices[v.ID]; ok {
		return domainagg.NewError(domainagg.CodeConflict, op, "vertex "+v.ID+" already exists", nil)
	}
	if _, ok, _ := t.store.Vertex(ctx, v.ID); ok {
		return domainagg.NewError(domainagg.CodeConflict, op, "vertex "+v.ID+" already exists", nil)
	}
	t.vertices[v.ID] = v
	return nil
}

func (t *tx) CreateEdge(ctx context.Context, e domaingraph.Edge) error {
	const op = "memgraph.create_edge"
	if t.done {
		return domainagg.NewError(domainagg.CodeInternal, op, "transaction finished", nil)
	}
	if err := e.Validate(); err != nil {
		return domainagg.Wrap(domainagg.CodeValidation, op, err)
	}
	for _, id := range []string{e.Src, e.Dst} {
		if _, ok, err := t.Vertex(ctx, id); err != nil {
			return err
		} else if !ok {
			return domainagg.NotFound(op, "vertex %s", id)
		}
	}
	t.edges = append(t.edges, copyEdge(e))
	return nil
}

func (t *tx) CloseEdge(ctx context.Context, id string, at timestamp.Timestamp) error {
	const op = "memgraph.close_edge"
	if t.done {
		return domainagg.NewError(domainagg.CodeInternal, op, "transaction finished", nil)
	}
	if _, ok := t.closures[id]; ok {
		return domainagg.Invariant(op, "edge %s already closed", id)
	}
	e, ok := t.lookup(id)
	if !ok {
		return domainagg.NotFound(op, "edge %s", id)
	}
	if !e.Open() {
		return domainagg.Invariant(op, "edge %s already closed", id)
	}
	if at.Before(e.Props.From) {
		return domainagg.Invariant(op, "edge %s cannot close at %s before it opened at %s", id, at, e.Props.From)
	}
	t.closures[id] = at
	return nil
}

func (t *tx) lookup(id string) (domaingraph.Edge, bool) {
	for _, e := range t.edges {
		if e.ID == id {
			return e, true
		}
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	if i, ok := t.store.index[id]; ok {
		return t.store.edges[i], true
	}
	return domaingraph.Edge{}, false
}

func (t *tx) Commit(ctx context.Context) error {
	const op = "memgraph.commit"
	if t.done {
		return domainagg.NewError(domainagg.CodeInternal, op, "transaction finished", nil)
	}
	if err := ctx.Err(); err != nil {
		t.done = true
		return err
	}
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	t.done = true
	if s.closed {
		return domainagg.NewError(domainagg.CodeInternal, op, "store closed", nil)
	}
	for id := range t.closures {
		if i, ok := s.index[id]; ok && !s.edges[i].Open() {
			return domainagg.NewError(domainagg.CodeConflict, op, "edge "+id+" was closed concurrently", nil)
		}
	}
	for id := range t.vertices {
		if _, ok := s.vertices[id]; ok {
			return domainagg.NewError(domainagg.CodeConflict, op, "vertex "+id+" was created concurrently", nil)
		}
	}
	for _, e := range t.edges {
		if _, dup := s.index[e.ID]; dup {
			return domainagg.NewError(domainagg.CodeConflict, op, "edge "+e.ID+" already exists", nil)
		}
	}
	for id, v := range t.vertices {
		s.vertices[id] = v
	}
	for _, e := range t.edges {
		s.index[e.ID] = len(s.edges)
		s.edges = append(s.edges, e)
	}
	ids := make([]string, 0, len(t.closures))
	for id := range t.closures {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		to := t.closures[id]
		s.edges[s.index[id]].Props.To = &to
	}
	return nil
}

func (t *tx) Rollback(context.Context) error {
	t.done = true
	t.vertices = nil
	t.edges = nil
	t.closures = nil
	return nil
}
