package branch

import (
	"strings"
	"testing"
	"time"

	domainagg "github.com/yungbote/branchgraph/internal/domain/aggregates"
	"github.com/yungbote/branchgraph/internal/domain/graph"
	"github.com/yungbote/branchgraph/internal/domain/timestamp"
)

var (
	created  = timestamp.MustParse("2024-01-01T00:00:00Z")
	branched = timestamp.MustParse("2024-02-01T00:00:00Z")
	later    = timestamp.MustParse("2024-03-01T00:00:00Z")
	earlier  = timestamp.MustParse("2024-01-15T00:00:00Z")
)

func TestDefaultBranchFilterHasOnePair(t *testing.T) {
	main := NewDefault("main", created)
	frags, params := main.QueryFilterRelationships([]string{"r1", "r2", "r3"}, later)
	if len(params) != 2 {
		t.Fatalf("params: want one (branchN,timeN) pair, got=%v", params)
	}
	if len(frags) != 6 {
		t.Fatalf("fragments: want=%d got=%d", 6, len(frags))
	}
	names := params["branch0"].([]string)
	if len(names) != 2 || names[0] != GlobalBranchName || names[1] != "main" {
		t.Fatalf("branch0: got=%v", names)
	}
}

func TestChildBranchFilterHasTwoPairs(t *testing.T) {
	main := NewDefault("main", created)
	br1 := NewChild("br1", main, branched)
	frags, params := br1.QueryFilterRelationships([]string{"r"}, later)
	if len(params) != 4 {
		t.Fatalf("params: want two pairs, got=%v", params)
	}
	if len(frags) != 2 {
		t.Fatalf("fragments: want=2 got=%d", len(frags))
	}
	if params["time0"] != branched.String() {
		t.Fatalf("origin must be frozen at branched_from: got=%v", params["time0"])
	}
	if params["time1"] != later.String() {
		t.Fatalf("branch entry must use at: got=%v", params["time1"])
	}
	if !strings.Contains(frags[1], "$branch1") {
		t.Fatalf("fragment must reference branch1: %s", frags[1])
	}
	if br1.HierarchyLevel != 2 {
		t.Fatalf("level: want=2 got=%d", br1.HierarchyLevel)
	}
}

func TestResolutionSetBeforeBranchedFromReadsOriginAtQueryTime(t *testing.T) {
	br1 := NewChild("br1", NewDefault("main", created), branched)
	scope := br1.ResolutionSet(earlier)
	if !scope.Entries[0].At.Equal(earlier) {
		t.Fatalf("origin time: want=%s got=%s", earlier, scope.Entries[0].At)
	}
}

func TestEphemeralRebaseDoesNotMutate(t *testing.T) {
	br1 := NewChild("br1", NewDefault("main", created), branched)
	rebased := br1.WithEphemeralRebase()
	scope := rebased.ResolutionSet(later)
	if !scope.Entries[0].At.Equal(later) {
		t.Fatalf("ephemeral rebase must read origin at query time")
	}
	if br1.EphemeralRebase {
		t.Fatalf("original branch mutated")
	}
	if !br1.ResolutionSet(later).Entries[0].At.Equal(branched) {
		t.Fatalf("original resolution changed")
	}
}

func TestResolutionSetInheritance(t *testing.T) {
	main := NewDefault("main", created)
	br1 := NewChild("br1", main, branched)
	old := graph.Edge{ID: "e1", Label: graph.LabelHasValue, Src: "a", Dst: "v",
		Props: graph.EdgeProps{Branch: "main", BranchLevel: 1, From: created, Status: graph.StatusActive}}
	upstream := old
	upstream.ID = "e2"
	upstream.Props.From = later.Add(-time.Second)
	local := old
	local.ID = "e3"
	local.Props.Branch = "br1"
	local.Props.BranchLevel = 2
	local.Props.From = branched.Add(time.Second)

	if !br1.ResolutionSet(later).Matches(old) {
		t.Fatalf("inherited edge must be visible")
	}
	if br1.ResolutionSet(later).Matches(upstream) {
		t.Fatalf("origin edge written after branched_from must be invisible")
	}
	if !br1.ResolutionSet(later).Matches(local) || main.ResolutionSet(later).Matches(local) {
		t.Fatalf("branch edge must be visible only on the branch")
	}
}

func TestValidateName(t *testing.T) {
	valid := []string{"b1x", "feature/new-thing", "release-1.2", "abc"}
	for _, name := range valid {
		if err := ValidateName(name); err != nil {
			t.Fatalf("%q: unexpected error %v", name, err)
		}
	}
	invalid := []string{"", "ab", strings.Repeat("a", 33), GlobalBranchName, "-abc", "a..b", "abc/", "with space", "a@{b", "abc.lock", "a//b", "tilde~x"}
	for _, name := range invalid {
		err := ValidateName(name)
		if err == nil {
			t.Fatalf("%q: expected error", name)
		}
		if !domainagg.IsCode(err, domainagg.CodeValidation) {
			t.Fatalf("%q: want validation code, got=%v", name, err)
		}
	}
}
