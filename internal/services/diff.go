package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/branchgraph/internal/data/aggregates"
	domainbranch "github.com/yungbote/branchgraph/internal/domain/branch"
	domaingraph "github.com/yungbote/branchgraph/internal/domain/graph"
	"github.com/yungbote/branchgraph/internal/domain/schema"
	"github.com/yungbote/branchgraph/internal/domain/timestamp"
	"github.com/yungbote/branchgraph/internal/observability"
	"github.com/yungbote/branchgraph/internal/platform/logger"
)

type PathCategory string

const (
	PathCategoryNode         PathCategory = "node"
	PathCategoryRelationship PathCategory = "relationship"
)

// ModifiedPath identifies one slot touched on a branch.
type ModifiedPath struct {
	Category     PathCategory `json:"category"`
	NodeID       string       `json:"node_id"`
	FieldName    string       `json:"field_name,omitempty"`
	PropertyType string       `json:"property_type"`
	// PeerID is set for relationship paths; two relationships of one field
	// towards different peers are different slots.
	PeerID string `json:"peer_id,omitempty"`
}

func (p ModifiedPath) String() string {
	parts := []string{string(p.Category), p.NodeID}
	if p.FieldName != "" {
		parts = append(parts, p.FieldName)
	}
	parts = append(parts, p.PropertyType)
	if p.PeerID != "" {
		parts = append(parts, p.PeerID)
	}
	return strings.Join(parts, "/")
}

type DiffOptions struct {
	// BranchOnly skips the scan of the origin branch.
	BranchOnly bool
	// Since defaults to the branch's branched_from, Until to now.
	Since timestamp.Timestamp
	Until timestamp.Timestamp
}

// Diff holds, per scanned branch name, the sorted paths touched in
// (Since, Until].
type Diff struct {
	Branch string                    `json:"branch"`
	Since  timestamp.Timestamp       `json:"since"`
	Until  timestamp.Timestamp       `json:"until"`
	Paths  map[string][]ModifiedPath `json:"paths"`
}

type ValidationResult struct {
	Passed   bool     `json:"passed"`
	Messages []string `json:"messages"`
}

type SummaryAction string

const (
	SummaryAdded   SummaryAction = "added"
	SummaryRemoved SummaryAction = "removed"
	SummaryUpdated SummaryAction = "updated"
)

type NodeSummary struct {
	Branch  string          `json:"branch"`
	Node    string          `json:"node"`
	Kind    string          `json:"kind"`
	Actions []SummaryAction `json:"actions"`
}

type SummaryInput struct {
	Branch     string
	From       timestamp.Timestamp
	To         timestamp.Timestamp
	BranchOnly bool
}

type DiffService interface {
	ModifiedPaths(ctx context.Context, branch string, opts DiffOptions) (Diff, error)
	HasChanges(ctx context.Context, branch string) (bool, error)
	HasConflict(ctx context.Context, branch string) (bool, error)
	ValidateGraph(ctx context.Context, branch string) (ValidationResult, error)
	GetSummary(ctx context.Context, in SummaryInput) ([]NodeSummary, error)
	// ConflictMessages evaluates conflicts through r, which may be an open
	// transaction.
	ConflictMessages(ctx context.Context, r domaingraph.Reader, b domainbranch.Branch, at timestamp.Timestamp) ([]string, error)
}

type diffService struct {
	log      *logger.Logger
	store    domaingraph.Reader
	branches aggregates.BranchLookup
	schemas  *schema.Cache
	metrics  *observability.Metrics
}

func NewDiffService(baseLog *logger.Logger, store domaingraph.Reader, branches aggregates.BranchLookup, schemas *schema.Cache, metrics *observability.Metrics) DiffService {
	return &diffService{
		log:      baseLog.With("service", "DiffService"),
		store:    store,
		branches: branches,
		schemas:  schemas,
		metrics:  metrics,
	}
}

// change is one edge of a scan together with the paths it touches.
type change struct {
	edge  domaingraph.Edge
	paths []ModifiedPath
}

func (s *diffService) ModifiedPaths(ctx context.Context, branch string, opts DiffOptions) (out Diff, err error) {
	ctx, span := observability.StartSpan(ctx, "Diff.ModifiedPaths", attribute.String("branch", branch))
	defer func() { observability.EndSpan(span, err) }()

	b, err := s.branches.Branch(ctx, branch)
	if err != nil {
		return out, err
	}
	since, until := s.window(b, opts.Since, opts.Until)
	scans, err := s.scanBoth(ctx, s.store, b, since, until, opts.BranchOnly)
	if err != nil {
		return out, err
	}
	out = Diff{Branch: b.Name, Since: since, Until: until, Paths: map[string][]ModifiedPath{}}
	for name, changes := range scans {
		out.Paths[name] = uniquePaths(changes)
	}
	return out, nil
}

func (s *diffService) HasChanges(ctx context.Context, branch string) (bool, error) {
	d, err := s.ModifiedPaths(ctx, branch, DiffOptions{BranchOnly: true})
	if err != nil {
		return false, err
	}
	return len(d.Paths[d.Branch]) > 0, nil
}

func (s *diffService) HasConflict(ctx context.Context, branch string) (bool, error) {
	res, err := s.ValidateGraph(ctx, branch)
	if err != nil {
		return false, err
	}
	return !res.Passed, nil
}

func (s *diffService) ValidateGraph(ctx context.Context, branch string) (out ValidationResult, err error) {
	ctx, span := observability.StartSpan(ctx, "Diff.ValidateGraph", attribute.String("branch", branch))
	defer func() { observability.EndSpan(span, err) }()

	b, err := s.branches.Branch(ctx, branch)
	if err != nil {
		return out, err
	}
	msgs, err := s.ConflictMessages(ctx, s.store, b, timestamp.Now())
	if err != nil {
		return out, err
	}
	if len(msgs) > 0 {
		s.log.Warn("branch conflicts with its origin", "branch", b.Name, "conflicts", len(msgs))
	}
	return ValidationResult{Passed: len(msgs) == 0, Messages: msgs}, nil
}

// ConflictMessages returns one message per path touched both on b and on its
// origin since b.BranchedFrom. The default branch never conflicts.
func (s *diffService) ConflictMessages(ctx context.Context, r domaingraph.Reader, b domainbranch.Branch, at timestamp.Timestamp) ([]string, error) {
	if b.IsDefault || b.IsGlobal || b.OriginBranch == b.Name {
		return []string{}, nil
	}
	scans, err := s.scanBoth(ctx, r, b, b.BranchedFrom, at, false)
	if err != nil {
		return nil, err
	}
	upstream := map[string]struct{}{}
	for _, p := range uniquePaths(withoutMerged(scans[b.OriginBranch], scans[b.Name])) {
		upstream[p.String()] = struct{}{}
	}
	msgs := []string{}
	for _, p := range uniquePaths(scans[b.Name]) {
		if _, ok := upstream[p.String()]; ok {
			msgs = append(msgs, "Conflict detected at "+p.String())
		}
	}
	return msgs, nil
}

func (s *diffService) GetSummary(ctx context.Context, in SummaryInput) (out []NodeSummary, err error) {
	ctx, span := observability.StartSpan(ctx, "Diff.GetSummary", attribute.String("branch", in.Branch))
	defer func() { observability.EndSpan(span, err) }()

	b, err := s.branches.Branch(ctx, in.Branch)
	if err != nil {
		return nil, err
	}
	since, until := s.window(b, in.From, in.To)
	if until.Before(since) {
		return nil, aggregates.MapError("Diff.GetSummary", aggregates.ValidationError("time_to precedes time_from"))
	}
	scans, err := s.scanBoth(ctx, s.store, b, since, until, in.BranchOnly)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(scans))
	for name := range scans {
		names = append(names, name)
	}
	sort.Strings(names)

	out = []NodeSummary{}
	for _, name := range names {
		actions := map[string]map[SummaryAction]struct{}{}
		mark := func(nodeID string, a SummaryAction) {
			if actions[nodeID] == nil {
				actions[nodeID] = map[SummaryAction]struct{}{}
			}
			actions[nodeID][a] = struct{}{}
		}
		for _, c := range scans[name] {
			opened := c.edge.Props.From.After(since) && !c.edge.Props.From.After(until)
			for _, p := range c.paths {
				if p.Category == PathCategoryNode && p.PropertyType == string(domaingraph.LabelIsPartOf) {
					if !opened {
						continue
					}
					if c.edge.Active() {
						mark(p.NodeID, SummaryAdded)
					} else {
						mark(p.NodeID, SummaryRemoved)
					}
					continue
				}
				mark(p.NodeID, SummaryUpdated)
			}
		}
		nodeIDs := make([]string, 0, len(actions))
		for id := range actions {
			nodeIDs = append(nodeIDs, id)
		}
		sort.Strings(nodeIDs)
		for _, id := range nodeIDs {
			set := actions[id]
			if _, added := set[SummaryAdded]; added {
				delete(set, SummaryUpdated)
			}
			entry := NodeSummary{Branch: name, Node: id}
			for _, a := range []SummaryAction{SummaryAdded, SummaryRemoved, SummaryUpdated} {
				if _, ok := set[a]; ok {
					entry.Actions = append(entry.Actions, a)
				}
			}
			v, ok, err := s.store.Vertex(ctx, id)
			if err != nil {
				return nil, err
			}
			if ok {
				entry.Kind = v.NodeKind
			}
			out = append(out, entry)
		}
	}
	return out, nil
}

func (s *diffService) window(b domainbranch.Branch, since, until timestamp.Timestamp) (timestamp.Timestamp, timestamp.Timestamp) {
	if since.IsZero() {
		since = b.BranchedFrom
	}
	if until.IsZero() {
		until = timestamp.Now()
	}
	return since, until
}

// scanBoth scans b and, unless branchOnly, its origin concurrently.
func (s *diffService) scanBoth(ctx context.Context, r domaingraph.Reader, b domainbranch.Branch, since, until timestamp.Timestamp, branchOnly bool) (map[string][]change, error) {
	names := []string{b.Name}
	if !branchOnly && b.OriginBranch != "" && b.OriginBranch != b.Name {
		names = append(names, b.OriginBranch)
	}
	results := make([][]change, len(names))
	g, gctx := errgroup.WithContext(ctx)
	if _, inTx := r.(domaingraph.Tx); inTx {
		// a store transaction serves one statement at a time
		g.SetLimit(1)
	}
	for i, name := range names {
		g.Go(func() error {
			changes, err := s.scan(gctx, r, b.Name, name, since, until)
			if err != nil {
				return err
			}
			results[i] = changes
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, aggregates.MapError("Diff.Scan", err)
	}
	out := make(map[string][]change, len(names))
	for i, name := range names {
		out[name] = results[i]
		kind := "origin"
		if name == b.Name {
			kind = "branch"
		}
		s.metrics.ObserveDiffPaths(kind, len(results[i]))
	}
	return out, nil
}

// scan maps every edge opened or closed on name inside (since, until] to the
// paths it touches. schemaBranch picks the schema used to name fields.
func (s *diffService) scan(ctx context.Context, r domaingraph.Reader, schemaBranch, name string, since, until timestamp.Timestamp) ([]change, error) {
	w := domaingraph.ChangeWindow{Branches: []string{name}, Since: since, Until: until}
	edges, err := r.Edges(ctx, domaingraph.EdgeQuery{Window: &w})
	if err != nil {
		return nil, err
	}
	sort.Slice(edges, func(i, j int) bool {
		if c := edges[i].Props.From.Compare(edges[j].Props.From); c != 0 {
			return c < 0
		}
		return edges[i].ID < edges[j].ID
	})
	m := &pathMapper{r: r, schemas: s.schemas, branch: schemaBranch, vertices: map[string]domaingraph.Vertex{}, sides: map[string][]string{}}
	out := make([]change, 0, len(edges))
	for _, e := range edges {
		paths, err := m.paths(ctx, e)
		if err != nil {
			return nil, err
		}
		if len(paths) == 0 {
			continue
		}
		out = append(out, change{edge: e, paths: paths})
	}
	return out, nil
}

// withoutMerged drops the origin changes an earlier merge of the branch wrote:
// promoted copies of branch versions, and the origin versions closed in a slot
// whose open version is such a copy. A merge whose branched_from move did not
// land is then still mergeable.
func withoutMerged(origin, branch []change) []change {
	copies := make(map[string]struct{}, len(branch))
	for _, c := range branch {
		copies[versionKey(c.edge)] = struct{}{}
	}
	merged := map[string]struct{}{}
	for _, c := range origin {
		if _, ok := copies[versionKey(c.edge)]; ok && c.edge.Open() {
			merged[domaingraph.SlotKey(c.edge)] = struct{}{}
		}
	}
	out := make([]change, 0, len(origin))
	for _, c := range origin {
		if _, ok := copies[versionKey(c.edge)]; ok {
			continue
		}
		if _, ok := merged[domaingraph.SlotKey(c.edge)]; ok && !c.edge.Open() {
			continue
		}
		out = append(out, c)
	}
	return out
}

// versionKey identifies an edge version independently of the branch holding
// it. promote keeps all of these when copying.
func versionKey(e domaingraph.Edge) string {
	return strings.Join([]string{string(e.Label), e.Src, e.Dst, string(e.Props.Status), e.Props.From.String()}, "|")
}

func uniquePaths(changes []change) []ModifiedPath {
	seen := map[string]ModifiedPath{}
	for _, c := range changes {
		for _, p := range c.paths {
			seen[p.String()] = p
		}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]ModifiedPath, 0, len(keys))
	for _, k := range keys {
		out = append(out, seen[k])
	}
	return out
}

// pathMapper turns edges into modified paths, caching vertex lookups for the
// duration of one scan.
type pathMapper struct {
	r        domaingraph.Reader
	schemas  *schema.Cache
	branch   string
	vertices map[string]domaingraph.Vertex
	sides    map[string][]string
}

func (m *pathMapper) vertex(ctx context.Context, id string) (domaingraph.Vertex, bool, error) {
	if v, ok := m.vertices[id]; ok {
		return v, true, nil
	}
	v, ok, err := m.r.Vertex(ctx, id)
	if err != nil || !ok {
		return v, ok, err
	}
	m.vertices[id] = v
	return v, true, nil
}

// relationshipSides returns the node ids attached to a relationship vertex.
func (m *pathMapper) relationshipSides(ctx context.Context, relID string) ([]string, error) {
	if sides, ok := m.sides[relID]; ok {
		return sides, nil
	}
	edges, err := m.r.Edges(ctx, domaingraph.EdgeQuery{Labels: []domaingraph.Label{domaingraph.LabelIsRelated}, Dst: relID})
	if err != nil {
		return nil, err
	}
	set := map[string]struct{}{}
	for _, e := range edges {
		set[e.Src] = struct{}{}
	}
	sides := make([]string, 0, len(set))
	for id := range set {
		sides = append(sides, id)
	}
	sort.Strings(sides)
	m.sides[relID] = sides
	return sides, nil
}

// fieldName maps a relationship identifier to the field name nodeID's schema
// uses for it, falling back to the identifier.
func (m *pathMapper) fieldName(ctx context.Context, nodeID, identifier string) (string, error) {
	if m.schemas == nil {
		return identifier, nil
	}
	v, ok, err := m.vertex(ctx, nodeID)
	if err != nil || !ok {
		return identifier, err
	}
	if rel, ok := m.schemas.RelationshipByIdentifier(m.branch, v.NodeKind, identifier); ok {
		return rel.Name, nil
	}
	return identifier, nil
}

func (m *pathMapper) relationshipPaths(ctx context.Context, rel domaingraph.Vertex, only string, label domaingraph.Label) ([]ModifiedPath, error) {
	sides, err := m.relationshipSides(ctx, rel.ID)
	if err != nil {
		return nil, err
	}
	var out []ModifiedPath
	for _, side := range sides {
		if only != "" && side != only {
			continue
		}
		peer := ""
		for _, other := range sides {
			if other != side {
				peer = other
			}
		}
		field, err := m.fieldName(ctx, side, rel.Name)
		if err != nil {
			return nil, err
		}
		out = append(out, ModifiedPath{
			Category:     PathCategoryRelationship,
			NodeID:       side,
			FieldName:    field,
			PropertyType: string(label),
			PeerID:       peer,
		})
	}
	return out, nil
}

func (m *pathMapper) paths(ctx context.Context, e domaingraph.Edge) ([]ModifiedPath, error) {
	switch e.Label {
	case domaingraph.LabelIsPartOf:
		return []ModifiedPath{{Category: PathCategoryNode, NodeID: e.Src, PropertyType: string(e.Label)}}, nil
	case domaingraph.LabelHasAttribute:
		attr, ok, err := m.vertex(ctx, e.Dst)
		if err != nil || !ok {
			return nil, err
		}
		return []ModifiedPath{{Category: PathCategoryNode, NodeID: e.Src, FieldName: attr.Name, PropertyType: string(e.Label)}}, nil
	case domaingraph.LabelIsRelated:
		rel, ok, err := m.vertex(ctx, e.Dst)
		if err != nil || !ok {
			return nil, err
		}
		return m.relationshipPaths(ctx, rel, e.Src, e.Label)
	}

	src, ok, err := m.vertex(ctx, e.Src)
	if err != nil || !ok {
		return nil, err
	}
	switch src.Kind {
	case domaingraph.VertexAttribute:
		return []ModifiedPath{{Category: PathCategoryNode, NodeID: src.NodeID, FieldName: src.Name, PropertyType: string(e.Label)}}, nil
	case domaingraph.VertexRelationship:
		return m.relationshipPaths(ctx, src, "", e.Label)
	default:
		return nil, fmt.Errorf("edge %s: %s from unexpected %s vertex", e.ID, e.Label, src.Kind)
	}
}
