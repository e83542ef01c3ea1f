// Package graph stores the temporal graph in neo4j. Every versioned fact is a
// relationship carrying branch, branch_level, from, to and status; vertices
// are unversioned :Vertex nodes keyed by uuid.
package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	domainagg "github.com/yungbote/branchgraph/internal/domain/aggregates"
	domaingraph "github.com/yungbote/branchgraph/internal/domain/graph"
	"github.com/yungbote/branchgraph/internal/domain/timestamp"
	"github.com/yungbote/branchgraph/internal/platform/logger"
	"github.com/yungbote/branchgraph/internal/platform/neo4jdb"
)

type cypherRunner interface {
	Run(ctx context.Context, cypher string, params map[string]any) (neo4j.ResultWithContext, error)
}

type Neo4jStore struct {
	client *neo4jdb.Client
	log    *logger.Logger
}

var _ domaingraph.Store = (*Neo4jStore)(nil)

func NewNeo4jStore(client *neo4jdb.Client, log *logger.Logger) (*Neo4jStore, error) {
	if client == nil || client.Driver == nil {
		return nil, fmt.Errorf("neo4j graph store: client required")
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Neo4jStore{client: client, log: log.With("store", "Neo4jGraph")}, nil
}

// SchemaStatements returns the constraints and indexes the store relies on.
func SchemaStatements() []string {
	out := []string{
		`CREATE CONSTRAINT vertex_uuid_unique IF NOT EXISTS FOR (v:Vertex) REQUIRE v.uuid IS UNIQUE`,
		`CREATE INDEX vertex_kind_idx IF NOT EXISTS FOR (v:Vertex) ON (v.kind)`,
	}
	for _, l := range domaingraph.AllLabels {
		name := strings.ToLower(string(l))
		out = append(out,
			fmt.Sprintf("CREATE INDEX %s_uuid_idx IF NOT EXISTS FOR ()-[r:%s]-() ON (r.uuid)", name, l),
			fmt.Sprintf("CREATE INDEX %s_branch_from_idx IF NOT EXISTS FOR ()-[r:%s]-() ON (r.branch, r.from)", name, l),
		)
	}
	return out
}

// EnsureSchema creates the root vertex plus constraints and indexes.
func (s *Neo4jStore) EnsureSchema(ctx context.Context) error {
	s.client.RunSchema(ctx, SchemaStatements())
	session := s.client.Session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)
	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `MERGE (v:Vertex {uuid: $uuid}) ON CREATE SET v.kind = $kind`, map[string]any{
			"uuid": domaingraph.RootID,
			"kind": string(domaingraph.VertexRoot),
		})
		if err != nil {
			return nil, err
		}
		return res.Consume(ctx)
	})
	return err
}

func (s *Neo4jStore) Vertex(ctx context.Context, id string) (domaingraph.Vertex, bool, error) {
	session := s.client.Session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)
	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		v, ok, err := readVertex(ctx, tx, id)
		if err != nil || !ok {
			return nil, err
		}
		return v, nil
	})
	if err != nil || out == nil {
		return domaingraph.Vertex{}, false, err
	}
	return out.(domaingraph.Vertex), true, nil
}

func (s *Neo4jStore) Edges(ctx context.Context, q domaingraph.EdgeQuery) ([]domaingraph.Edge, error) {
	session := s.client.Session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)
	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return readEdges(ctx, tx, q)
	})
	if err != nil {
		return nil, err
	}
	return out.([]domaingraph.Edge), nil
}

func (s *Neo4jStore) Begin(ctx context.Context) (domaingraph.Tx, error) {
	session := s.client.Session(ctx, neo4j.AccessModeWrite)
	tx, err := session.BeginTransaction(ctx)
	if err != nil {
		_ = session.Close(ctx)
		return nil, err
	}
	return &neo4jTx{session: session, tx: tx}, nil
}

func (s *Neo4jStore) Close(ctx context.Context) error {
	return s.client.Close(ctx)
}

type neo4jTx struct {
	session neo4j.SessionWithContext
	tx      neo4j.ExplicitTransaction
}

func (t *neo4jTx) Vertex(ctx context.Context, id string) (domaingraph.Vertex, bool, error) {
	return readVertex(ctx, t.tx, id)
}

func (t *neo4jTx) Edges(ctx context.Context, q domaingraph.EdgeQuery) ([]domaingraph.Edge, error) {
	return readEdges(ctx, t.tx, q)
}

func (t *neo4jTx) CreateVertex(ctx context.Context, v domaingraph.Vertex) error {
	if strings.TrimSpace(v.ID) == "" {
		return domainagg.Validation("neo4j.create_vertex", "vertex id required")
	}
	res, err := t.tx.Run(ctx, `
CREATE (v:Vertex {uuid: $uuid, kind: $kind})
SET v.node_kind = $node_kind, v.name = $name, v.node_id = $node_id, v.value = $value
`, map[string]any{
		"uuid":      v.ID,
		"kind":      string(v.Kind),
		"node_kind": nullable(v.NodeKind),
		"name":      nullable(v.Name),
		"node_id":   nullable(v.NodeID),
		"value":     storableValue(v.Value),
	})
	if err != nil {
		return err
	}
	_, err = res.Consume(ctx)
	return err
}

func (t *neo4jTx) CreateEdge(ctx context.Context, e domaingraph.Edge) error {
	const op = "neo4j.create_edge"
	if err := e.Validate(); err != nil {
		return domainagg.Wrap(domainagg.CodeValidation, op, err)
	}
	var to any
	if e.Props.To != nil {
		to = e.Props.To.String()
	}
	// The label is interpolated; Validate restricted it to the known set.
	res, err := t.tx.Run(ctx, fmt.Sprintf(`
MATCH (s:Vertex {uuid: $src}), (d:Vertex {uuid: $dst})
CREATE (s)-[r:%s {uuid: $uuid, branch: $branch, branch_level: $level, from: $from, to: $to, status: $status}]->(d)
RETURN count(r) AS n
`, e.Label), map[string]any{
		"src":    e.Src,
		"dst":    e.Dst,
		"uuid":   e.ID,
		"branch": e.Props.Branch,
		"level":  int64(e.Props.BranchLevel),
		"from":   e.Props.From.String(),
		"to":     to,
		"status": string(e.Props.Status),
	})
	if err != nil {
		return err
	}
	rec, err := res.Single(ctx)
	if err != nil {
		return err
	}
	if n, _ := rec.Get("n"); asInt(n) == 0 {
		return domainagg.NotFound(op, "endpoint of edge %s (%s -> %s)", e.ID, e.Src, e.Dst)
	}
	return nil
}

func (t *neo4jTx) CloseEdge(ctx context.Context, id string, at timestamp.Timestamp) error {
	const op = "neo4j.close_edge"
	res, err := t.tx.Run(ctx, `MATCH ()-[r {uuid: $uuid}]->() RETURN r.from AS from, r.to AS to`, map[string]any{"uuid": id})
	if err != nil {
		return err
	}
	records, err := res.Collect(ctx)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return domainagg.NotFound(op, "edge %s", id)
	}
	if to, _ := records[0].Get("to"); to != nil {
		return domainagg.Invariant(op, "edge %s already closed", id)
	}
	rawFrom, _ := records[0].Get("from")
	from, err := timestamp.Parse(asString(rawFrom))
	if err != nil {
		return domainagg.Wrap(domainagg.CodeInternal, op, err)
	}
	if at.Before(from) {
		return domainagg.Invariant(op, "edge %s cannot close at %s before it opened at %s", id, at, from)
	}
	res, err = t.tx.Run(ctx, `MATCH ()-[r {uuid: $uuid}]->() WHERE r.to IS NULL SET r.to = $at`, map[string]any{
		"uuid": id,
		"at":   at.String(),
	})
	if err != nil {
		return err
	}
	_, err = res.Consume(ctx)
	return err
}

func (t *neo4jTx) Commit(ctx context.Context) error {
	defer t.session.Close(ctx)
	return t.tx.Commit(ctx)
}

func (t *neo4jTx) Rollback(ctx context.Context) error {
	defer t.session.Close(ctx)
	return t.tx.Rollback(ctx)
}

func readVertex(ctx context.Context, r cypherRunner, id string) (domaingraph.Vertex, bool, error) {
	res, err := r.Run(ctx, `
MATCH (v:Vertex {uuid: $uuid})
RETURN v.uuid AS uuid, v.kind AS kind, v.node_kind AS node_kind, v.name AS name, v.node_id AS node_id, v.value AS value
`, map[string]any{"uuid": id})
	if err != nil {
		return domaingraph.Vertex{}, false, err
	}
	records, err := res.Collect(ctx)
	if err != nil || len(records) == 0 {
		return domaingraph.Vertex{}, false, err
	}
	rec := records[0]
	get := func(key string) any {
		v, _ := rec.Get(key)
		return v
	}
	return domaingraph.Vertex{
		ID:       asString(get("uuid")),
		Kind:     domaingraph.VertexKind(asString(get("kind"))),
		NodeKind: asString(get("node_kind")),
		Name:     asString(get("name")),
		NodeID:   asString(get("node_id")),
		Value:    get("value"),
	}, true, nil
}

func readEdges(ctx context.Context, r cypherRunner, q domaingraph.EdgeQuery) ([]domaingraph.Edge, error) {
	cypher, params := BuildEdgeQuery(q)
	res, err := r.Run(ctx, cypher, params)
	if err != nil {
		return nil, err
	}
	records, err := res.Collect(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domaingraph.Edge, 0, len(records))
	for _, rec := range records {
		e, err := edgeFromRecord(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// BuildEdgeQuery renders an EdgeQuery as Cypher. Scope and window predicates
// come from the shared filter builders so the store and the in-memory twin
// agree on edge validity.
func BuildEdgeQuery(q domaingraph.EdgeQuery) (string, map[string]any) {
	labels := q.Labels
	if len(labels) == 0 {
		labels = domaingraph.AllLabels
	}
	names := make([]string, 0, len(labels))
	for _, l := range labels {
		names = append(names, string(l))
	}
	params := map[string]any{"labels": names}
	where := []string{"type(r) IN $labels"}
	if q.Src != "" {
		where = append(where, "s.uuid = $src")
		params["src"] = q.Src
	}
	if q.Dst != "" {
		where = append(where, "d.uuid = $dst")
		params["dst"] = q.Dst
	}
	if len(q.Branches) > 0 {
		where = append(where, "r.branch IN $branches")
		params["branches"] = q.Branches
	}
	if q.OpenOnly {
		where = append(where, "r.to IS NULL")
	}
	if q.Scope != nil {
		filters, scopeParams := domaingraph.BuildFilter(*q.Scope, []string{"r"})
		where = append(where, filters[0])
		for k, v := range scopeParams {
			params[k] = v
		}
	}
	if q.Window != nil {
		filters, windowParams := domaingraph.BuildRangeFilter(*q.Window, []string{"r"})
		where = append(where, filters[0])
		for k, v := range windowParams {
			params[k] = v
		}
	}
	cypher := "MATCH (s:Vertex)-[r]->(d:Vertex)\nWHERE " + strings.Join(where, "\n  AND ") + `
RETURN r.uuid AS id, type(r) AS label, s.uuid AS src, d.uuid AS dst,
       r.branch AS branch, r.branch_level AS level, r.from AS from, r.to AS to, r.status AS status
ORDER BY r.from, r.uuid`
	return cypher, params
}

func edgeFromRecord(rec *neo4j.Record) (domaingraph.Edge, error) {
	get := func(key string) any {
		v, _ := rec.Get(key)
		return v
	}
	from, err := timestamp.Parse(asString(get("from")))
	if err != nil {
		return domaingraph.Edge{}, fmt.Errorf("edge %v: %w", get("id"), err)
	}
	e := domaingraph.Edge{
		ID:    asString(get("id")),
		Label: domaingraph.Label(asString(get("label"))),
		Src:   asString(get("src")),
		Dst:   asString(get("dst")),
		Props: domaingraph.EdgeProps{
			Branch:      asString(get("branch")),
			BranchLevel: int(asInt(get("level"))),
			From:        from,
			Status:      domaingraph.Status(asString(get("status"))),
		},
	}
	if raw := asString(get("to")); raw != "" {
		to, err := timestamp.Parse(raw)
		if err != nil {
			return domaingraph.Edge{}, fmt.Errorf("edge %s: %w", e.ID, err)
		}
		e.Props.To = &to
	}
	return e, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// storableValue narrows a vertex value to a neo4j property type.
func storableValue(v any) any {
	switch t := v.(type) {
	case nil, string, bool, int64, float64:
		return t
	case int:
		return int64(t)
	case int32:
		return int64(t)
	case float32:
		return float64(t)
	default:
		return fmt.Sprint(t)
	}
}

func asString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

func asInt(v any) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t)
	default:
		return 0
	}
}
