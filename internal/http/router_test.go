package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/branchgraph/internal/data/aggregates"
	"github.com/yungbote/branchgraph/internal/data/graph/memgraph"
	branchrepo "github.com/yungbote/branchgraph/internal/data/repos/branch"
	"github.com/yungbote/branchgraph/internal/data/repos/testutil"
	"github.com/yungbote/branchgraph/internal/domain/schema"
	httpH "github.com/yungbote/branchgraph/internal/http/handlers"
	"github.com/yungbote/branchgraph/internal/observability"
	"github.com/yungbote/branchgraph/internal/realtime/bus"
	"github.com/yungbote/branchgraph/internal/services"
)

const routerSchema = `
nodes:
  - kind: Person
    attributes:
      - name: name
    relationships:
      - name: friends
        peer: Person
`

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()
	log := testutil.Logger(t)
	tx := testutil.Tx(t, testutil.DB(t))

	sb, err := schema.Load(strings.NewReader(routerSchema))
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	schemas := schema.NewCache("main")
	schemas.Set("main", sb)

	metrics := observability.New()
	store := memgraph.New()
	graph := aggregates.BaseDeps{Store: store, Log: log}
	registry := services.NewBranchRegistry(services.BranchRegistryDeps{
		DB: tx, Log: log, Repo: branchrepo.NewBranchRepo(tx, log), Graph: graph,
		Schemas: schemas, Bus: bus.NewMemoryBus(), Metrics: metrics, DefaultBranch: "main",
	})
	if err := registry.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	diff := services.NewDiffService(log, store, registry, schemas, metrics)
	merges := services.NewMergeService(services.MergeServiceDeps{
		Log: log, Graph: graph, Registry: registry, Diff: diff, Metrics: metrics,
		Merge: aggregates.NewMergeAggregate(aggregates.MergeAggregateDeps{Base: graph, Branches: registry, Conflicts: diff}),
	})
	rels := services.NewRelationshipService(log, store, registry,
		aggregates.NewRelationshipAggregate(aggregates.RelationshipAggregateDeps{Base: graph, Branches: registry, Schemas: schemas}), metrics)

	return NewRouter(RouterConfig{
		Log:           log,
		Metrics:       metrics,
		BranchHandler: httpH.NewBranchHandler(log, registry, nil, merges),
		DiffHandler:   httpH.NewDiffHandler(diff),
		NodeHandler:   httpH.NewNodeHandler(services.NewNodeService(log, graph, registry), rels),
		HealthHandler: httpH.NewHealthHandler(registry),
	})
}

func do(t *testing.T, r *gin.Engine, method, path string, body any) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	out := map[string]any{}
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("%s %s: decode %q: %v", method, path, rec.Body.String(), err)
		}
	}
	return rec.Code, out
}

func TestConflictingBranchCannotMerge(t *testing.T) {
	r := newTestRouter(t)

	code, _ := do(t, r, http.MethodPost, "/api/branches/main/nodes", map[string]any{
		"id": "c1", "kind": "Person", "at": "2024-01-01T00:00:00Z",
		"attributes": map[string]any{"name": map[string]any{"value": "accord"}},
	})
	if code != http.StatusCreated {
		t.Fatalf("create node: want=201 got=%d", code)
	}
	code, _ = do(t, r, http.MethodPost, "/api/branches", map[string]any{"name": "br1", "at": "2024-01-01T00:00:10Z"})
	if code != http.StatusCreated {
		t.Fatalf("create branch: want=201 got=%d", code)
	}
	for _, step := range []struct{ branch, value, at string }{
		{"main", "renamed on main", "2024-01-01T00:00:20Z"},
		{"br1", "renamed on br1", "2024-01-01T00:00:30Z"},
	} {
		code, body := do(t, r, http.MethodPatch, "/api/branches/"+step.branch+"/nodes/c1/attributes/name", map[string]any{"value": step.value, "at": step.at})
		if code != http.StatusOK || body["changed"] != true {
			t.Fatalf("update on %s: got=%d %v", step.branch, code, body)
		}
	}

	code, body := do(t, r, http.MethodGet, "/api/branches/br1/validate", nil)
	if code != http.StatusOK || body["passed"] != false {
		t.Fatalf("validate: got=%d %v", code, body)
	}
	msgs, _ := body["messages"].([]any)
	if len(msgs) != 1 || msgs[0] != "Conflict detected at node/c1/name/HAS_VALUE" {
		t.Fatalf("messages: got=%v", msgs)
	}

	code, body = do(t, r, http.MethodPost, "/api/branches/br1/merge", nil)
	if code != http.StatusUnprocessableEntity {
		t.Fatalf("merge: want=422 got=%d %v", code, body)
	}
	apiErr, _ := body["error"].(map[string]any)
	details, _ := apiErr["details"].([]any)
	if apiErr["code"] != "validation" || len(details) != 1 {
		t.Fatalf("merge error: got=%v", apiErr)
	}
}

func TestMergeThroughAPI(t *testing.T) {
	r := newTestRouter(t)
	do(t, r, http.MethodPost, "/api/branches/main/nodes", map[string]any{
		"id": "c1", "kind": "Person", "at": "2024-01-01T00:00:00Z",
		"attributes": map[string]any{"name": map[string]any{"value": "accord"}},
	})
	do(t, r, http.MethodPost, "/api/branches", map[string]any{"name": "br1", "at": "2024-01-01T00:00:10Z"})
	do(t, r, http.MethodPatch, "/api/branches/br1/nodes/c1/attributes/name", map[string]any{"value": "renamed", "at": "2024-01-01T00:00:30Z"})

	code, body := do(t, r, http.MethodGet, "/api/branches/br1/diff?branch_only=true", nil)
	if code != http.StatusOK || body["has_changes"] != true {
		t.Fatalf("diff: got=%d %v", code, body)
	}
	code, body = do(t, r, http.MethodPost, "/api/branches/br1/merge", nil)
	if code != http.StatusOK {
		t.Fatalf("merge: got=%d %v", code, body)
	}
	code, body = do(t, r, http.MethodGet, "/api/branches/main/nodes/c1", nil)
	node, _ := body["node"].(map[string]any)
	attrs, _ := node["attributes"].(map[string]any)
	name, _ := attrs["name"].(map[string]any)
	if code != http.StatusOK || name["value"] != "renamed" {
		t.Fatalf("main after merge: got=%d %v", code, body)
	}
	code, body = do(t, r, http.MethodGet, "/api/branches/br1/diff?branch_only=true", nil)
	if code != http.StatusOK || body["has_changes"] != false {
		t.Fatalf("diff after merge: got=%d %v", code, body)
	}
}

func TestQueryFilterEndpoint(t *testing.T) {
	r := newTestRouter(t)
	do(t, r, http.MethodPost, "/api/branches", map[string]any{"name": "br1", "at": "2024-01-01T00:00:10Z"})

	code, body := do(t, r, http.MethodGet, "/api/branches/br1/query-filter?at=2024-01-01T00:01:00Z&labels=r1,r2", nil)
	if code != http.StatusOK {
		t.Fatalf("query-filter: got=%d %v", code, body)
	}
	filters, _ := body["filters"].([]any)
	if len(filters) != 4 {
		t.Fatalf("filters: want two per label got=%v", filters)
	}
	params, _ := body["params"].(map[string]any)
	if params["time0"] != "2024-01-01T00:00:10.000000Z" || params["time1"] != "2024-01-01T00:01:00.000000Z" {
		t.Fatalf("params: got=%v", params)
	}

	code, _ = do(t, r, http.MethodGet, "/api/branches/br1/query-filter?at=yesterday", nil)
	if code != http.StatusUnprocessableEntity {
		t.Fatalf("bad at: want=422 got=%d", code)
	}
}

func TestErrorsMapToStatus(t *testing.T) {
	r := newTestRouter(t)
	cases := []struct {
		method, path string
		body         any
		want         int
	}{
		{http.MethodGet, "/api/branches/nope", nil, http.StatusNotFound},
		{http.MethodPost, "/api/branches", map[string]any{"name": "x"}, http.StatusUnprocessableEntity},
		{http.MethodDelete, "/api/branches/main", nil, http.StatusUnprocessableEntity},
		{http.MethodGet, "/api/branches/main/nodes/ghost", nil, http.StatusNotFound},
		{http.MethodGet, "/api/branches/main/nodes", nil, http.StatusUnprocessableEntity},
		{http.MethodPost, "/api/branches/main/nodes", map[string]any{"kind": "Robot"}, http.StatusUnprocessableEntity},
	}
	for _, tc := range cases {
		if code, body := do(t, r, tc.method, tc.path, tc.body); code != tc.want {
			t.Fatalf("%s %s: want=%d got=%d %v", tc.method, tc.path, tc.want, code, body)
		}
	}
	do(t, r, http.MethodPost, "/api/branches", map[string]any{"name": "dup-1"})
	if code, _ := do(t, r, http.MethodPost, "/api/branches", map[string]any{"name": "dup-1"}); code != http.StatusConflict {
		t.Fatalf("duplicate branch: want=409 got=%d", code)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	r := newTestRouter(t)
	for _, path := range []string{"/healthcheck", "/readyz", "/metrics"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: want=200 got=%d", path, rec.Code)
		}
	}
}
