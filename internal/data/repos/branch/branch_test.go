package branch

import (
	"context"
	"testing"
	"time"

	"github.com/yungbote/branchgraph/internal/data/repos/testutil"
	domainbranch "github.com/yungbote/branchgraph/internal/domain/branch"
	"github.com/yungbote/branchgraph/internal/domain/timestamp"
	"github.com/yungbote/branchgraph/internal/pkg/dbctx"
)

func TestBranchRepo(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	dbc := dbctx.New(context.Background(), tx)
	repo := NewBranchRepo(db, testutil.Logger(t))

	t0 := timestamp.MustParse("2024-01-01T00:00:00.123456Z")
	mainBranch := domainbranch.NewDefault("main", t0)
	if err := repo.EnsureExists(dbc, mainBranch); err != nil {
		t.Fatalf("ensure main: %v", err)
	}
	if err := repo.EnsureExists(dbc, mainBranch); err != nil {
		t.Fatalf("ensure main twice: %v", err)
	}
	if err := repo.EnsureExists(dbc, domainbranch.NewGlobal(t0)); err != nil {
		t.Fatalf("ensure global: %v", err)
	}
	child := domainbranch.NewChild("feature-1", mainBranch, t0.Add(time.Hour))
	child.Description = "first feature"
	if err := repo.Create(dbc, child); err != nil {
		t.Fatalf("create child: %v", err)
	}

	got, err := repo.Get(dbc, "feature-1")
	if err != nil || got == nil {
		t.Fatalf("get child: %v %v", got, err)
	}
	if !got.BranchedFrom.Equal(child.BranchedFrom) || got.HierarchyLevel != 2 || got.OriginBranch != "main" {
		t.Fatalf("child roundtrip: got=%+v", got)
	}
	if got, _ := repo.Get(dbc, "main"); got == nil || got.BranchedFrom.String() != "2024-01-01T00:00:00.123456Z" {
		t.Fatalf("microseconds must survive: got=%+v", got)
	}
	if missing, err := repo.Get(dbc, "nope"); err != nil || missing != nil {
		t.Fatalf("missing branch: want nil,nil got=%v,%v", missing, err)
	}

	list, err := repo.List(dbc)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 3 || list[len(list)-1].Name != "feature-1" {
		t.Fatalf("list order: %+v", list)
	}

	next := t0.Add(2 * time.Hour)
	ok, err := repo.MoveBranchedFrom(dbc, "feature-1", child.BranchedFrom, next)
	if err != nil || !ok {
		t.Fatalf("move branched_from: ok=%v err=%v", ok, err)
	}
	ok, err = repo.MoveBranchedFrom(dbc, "feature-1", child.BranchedFrom, next.Add(time.Hour))
	if err != nil || ok {
		t.Fatalf("stale compare-and-set must not apply: ok=%v err=%v", ok, err)
	}

	if err := repo.UpdateSchemaHash(dbc, "feature-1", "abc"); err != nil {
		t.Fatalf("schema hash: %v", err)
	}
	if got, _ := repo.Get(dbc, "feature-1"); got.SchemaHash != "abc" {
		t.Fatalf("schema hash: want=abc got=%s", got.SchemaHash)
	}

	if deleted, err := repo.Delete(dbc, "main"); err != nil || deleted {
		t.Fatalf("default branch must not be deletable: deleted=%v err=%v", deleted, err)
	}
	if deleted, err := repo.Delete(dbc, "feature-1"); err != nil || !deleted {
		t.Fatalf("delete child: deleted=%v err=%v", deleted, err)
	}
	if got, _ := repo.Get(dbc, "feature-1"); got != nil {
		t.Fatalf("deleted branch must not resolve")
	}
}
