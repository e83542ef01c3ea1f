package graph

import (
	"context"
	"testing"

	"github.com/yungbote/branchgraph/internal/domain/timestamp"
)

var (
	t0 = timestamp.MustParse("2024-01-01T00:00:00Z")
	t1 = timestamp.MustParse("2024-01-02T00:00:00Z")
	t2 = timestamp.MustParse("2024-01-03T00:00:00Z")
	t3 = timestamp.MustParse("2024-01-04T00:00:00Z")
)

func edge(id, branch string, level int, from timestamp.Timestamp, to *timestamp.Timestamp, status Status) Edge {
	return Edge{
		ID:    id,
		Label: LabelHasValue,
		Src:   "a",
		Dst:   "v-" + id,
		Props: EdgeProps{Branch: branch, BranchLevel: level, From: from, To: to, Status: status},
	}
}

func ptr(ts timestamp.Timestamp) *timestamp.Timestamp { return &ts }

func TestScopeMatchesBoundaries(t *testing.T) {
	scope := Scope{Entries: []ScopeEntry{{Branches: []string{"main"}, At: t1}}}
	cases := []struct {
		name string
		e    Edge
		want bool
	}{
		{"open before", edge("1", "main", 1, t0, nil, StatusActive), true},
		{"starts at", edge("2", "main", 1, t1, nil, StatusActive), true},
		{"starts after", edge("3", "main", 1, t2, nil, StatusActive), false},
		{"closed at", edge("4", "main", 1, t0, ptr(t1), StatusActive), true},
		{"closed before", edge("5", "main", 1, t0, ptr(t0), StatusActive), false},
		{"other branch", edge("6", "br1", 2, t0, nil, StatusActive), false},
	}
	for _, tc := range cases {
		if got := scope.Matches(tc.e); got != tc.want {
			t.Fatalf("%s: want=%v got=%v", tc.name, tc.want, got)
		}
	}
}

func TestChangeWindowMatches(t *testing.T) {
	w := ChangeWindow{Branches: []string{"main"}, Since: t1, Until: t3}
	if w.Matches(edge("1", "main", 1, t0, nil, StatusActive)) {
		t.Fatalf("edge opened before the window must not match")
	}
	if !w.Matches(edge("2", "main", 1, t0, ptr(t2), StatusActive)) {
		t.Fatalf("edge closed inside the window must match")
	}
	if !w.Matches(edge("3", "main", 1, t2, nil, StatusActive)) {
		t.Fatalf("edge opened inside the window must match")
	}
	if w.Matches(edge("4", "main", 1, t1, nil, StatusActive)) {
		t.Fatalf("window start is exclusive")
	}
}

func TestSelectEffectivePrefersDeeperBranch(t *testing.T) {
	main := edge("m", "main", 1, t2, nil, StatusActive)
	br := edge("b", "br1", 2, t1, nil, StatusActive)
	got, ok := SelectEffective([]Edge{main, br})
	if !ok || got.ID != "b" {
		t.Fatalf("want branch edge, got=%+v", got)
	}
}

func TestSelectEffectiveLatestFromWinsAndDeletedIsAResult(t *testing.T) {
	older := edge("1", "main", 1, t0, ptr(t1), StatusActive)
	newer := edge("2", "main", 1, t1, nil, StatusDeleted)
	got, ok := SelectEffective([]Edge{older, newer})
	if !ok || got.ID != "2" {
		t.Fatalf("want newer edge, got=%+v", got)
	}
	if got.Active() {
		t.Fatalf("deleted winner must be returned as-is")
	}
}

func TestSelectEffectiveSameInstantPrefersOpenEdge(t *testing.T) {
	closed := edge("z", "main", 1, t1, ptr(t1), StatusActive)
	open := edge("a", "main", 1, t1, nil, StatusActive)
	got, _ := SelectEffective([]Edge{closed, open})
	if got.ID != "a" {
		t.Fatalf("want open edge, got=%s", got.ID)
	}
	if _, ok := SelectEffective(nil); ok {
		t.Fatalf("empty candidates must not resolve")
	}
}

func TestRankPathsMostDistalHopFirst(t *testing.T) {
	// Both paths share the proximal level; the distal hop decides.
	p1 := Path{edge("a1", "main", 1, t2, nil, StatusActive), edge("a2", "main", 1, t0, nil, StatusActive)}
	p2 := Path{edge("br1", "main", 1, t0, nil, StatusActive), edge("b2", "br1", 2, t0, nil, StatusDeleted)}
	p3 := Path{edge("c1", "main", 1, t0, nil, StatusActive), edge("c2", "main", 1, t1, nil, StatusActive)}
	paths := []Path{p1, p3, p2}
	RankPaths(paths)
	if paths[0][1].ID != "b2" {
		t.Fatalf("deeper distal hop must rank first, got=%s", paths[0][1].ID)
	}
	if paths[1][1].ID != "c2" {
		t.Fatalf("later distal from must rank before proximal from, got=%s", paths[1][1].ID)
	}
	best, ok := SelectPath([]Path{p1, p3})
	if !ok || best[1].ID != "c2" {
		t.Fatalf("select path: got=%v", best)
	}
	if p2.Active() {
		t.Fatalf("path with deleted hop is not active")
	}
}

func TestSelectPerKey(t *testing.T) {
	a := edge("1", "main", 1, t0, nil, StatusActive)
	b := edge("2", "main", 1, t1, nil, StatusActive)
	b.Src = "other"
	c := edge("3", "br1", 2, t0, nil, StatusActive)
	got := SelectPerKey([]Edge{a, b, c}, func(e Edge) string { return e.Src })
	if len(got) != 2 || got["a"].ID != "3" || got["other"].ID != "2" {
		t.Fatalf("per key: %+v", got)
	}
}

type recordingWriter struct {
	closed  map[string]timestamp.Timestamp
	created []Edge
}

func (w *recordingWriter) CreateVertex(context.Context, Vertex) error { return nil }
func (w *recordingWriter) CreateEdge(_ context.Context, e Edge) error {
	w.created = append(w.created, e)
	return nil
}
func (w *recordingWriter) CloseEdge(_ context.Context, id string, at timestamp.Timestamp) error {
	if w.closed == nil {
		w.closed = map[string]timestamp.Timestamp{}
	}
	w.closed[id] = at
	return nil
}

func TestSupersedeClosesOnlySameBranch(t *testing.T) {
	ctx := context.Background()
	w := &recordingWriter{}
	prevMain := edge("m", "main", 1, t0, nil, StatusActive)
	next := NewEdge(LabelHasValue, "a", "v2", "br1", 2, t1, StatusActive)
	if err := Supersede(ctx, w, &prevMain, next); err != nil {
		t.Fatalf("supersede: %v", err)
	}
	if len(w.closed) != 0 {
		t.Fatalf("inherited edge must not be closed: %v", w.closed)
	}
	prevBranch := edge("b", "br1", 2, t0, nil, StatusActive)
	next2 := NewEdge(LabelHasValue, "a", "v3", "br1", 2, t2, StatusActive)
	if err := Supersede(ctx, w, &prevBranch, next2); err != nil {
		t.Fatalf("supersede: %v", err)
	}
	if at, ok := w.closed["b"]; !ok || !at.Equal(t2) {
		t.Fatalf("branch edge must be closed at t2: %v", w.closed)
	}
	if len(w.created) != 2 {
		t.Fatalf("created: want=2 got=%d", len(w.created))
	}
}
