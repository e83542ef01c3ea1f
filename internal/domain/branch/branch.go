// Package branch models named lines of graph history and turns
// "branch + as-of time" into the resolution set every time-scoped query uses.
package branch

import (
	"github.com/yungbote/branchgraph/internal/domain/graph"
	"github.com/yungbote/branchgraph/internal/domain/timestamp"
)

// GlobalBranchName is the pseudo-branch owning branch-agnostic facts.
const GlobalBranchName = "-global-"

// DefaultLevel is the hierarchy level of the default (root) branch.
const DefaultLevel = 1

type Branch struct {
	Name           string              `json:"name"`
	Description    string              `json:"description,omitempty"`
	OriginBranch   string              `json:"origin_branch"`
	BranchedFrom   timestamp.Timestamp `json:"branched_from"`
	CreatedAt      timestamp.Timestamp `json:"created_at"`
	HierarchyLevel int                 `json:"hierarchy_level"`
	IsDefault      bool                `json:"is_default"`
	IsGlobal       bool                `json:"is_global"`
	SchemaHash     string              `json:"schema_hash,omitempty"`

	// EphemeralRebase reads the branch as if it had just been rebased. It is
	// query-time state only and never persisted.
	EphemeralRebase bool `json:"-"`
}

// NewDefault builds the root branch.
func NewDefault(name string, created timestamp.Timestamp) Branch {
	return Branch{
		Name:           name,
		OriginBranch:   name,
		BranchedFrom:   created,
		CreatedAt:      created,
		HierarchyLevel: DefaultLevel,
		IsDefault:      true,
	}
}

// NewGlobal builds the global pseudo-branch.
func NewGlobal(created timestamp.Timestamp) Branch {
	return Branch{
		Name:           GlobalBranchName,
		OriginBranch:   GlobalBranchName,
		BranchedFrom:   created,
		CreatedAt:      created,
		HierarchyLevel: DefaultLevel,
		IsGlobal:       true,
	}
}

// NewChild builds a branch diverging from origin at the given instant.
func NewChild(name string, origin Branch, at timestamp.Timestamp) Branch {
	return Branch{
		Name:           name,
		OriginBranch:   origin.Name,
		BranchedFrom:   at,
		CreatedAt:      at,
		HierarchyLevel: origin.HierarchyLevel + 1,
	}
}

// WithEphemeralRebase returns a copy flagged for ephemeral rebase; the
// receiver is left untouched.
func (b Branch) WithEphemeralRebase() Branch {
	b.EphemeralRebase = true
	return b
}

// ResolutionSet returns the (branch names, time) pairs to query for this
// branch as of at.
//
// The default branch resolves on itself and the global pseudo-branch at at.
// Any other branch resolves on its own edges at at, and on its origin (plus
// the global pseudo-branch) frozen at branched_from. Querying before
// branched_from, or with ephemeral rebase, reads the origin at at.
func (b Branch) ResolutionSet(at timestamp.Timestamp) graph.Scope {
	if b.IsDefault || b.IsGlobal {
		names := []string{GlobalBranchName}
		if b.Name != GlobalBranchName {
			names = append(names, b.Name)
		}
		return graph.Scope{Entries: []graph.ScopeEntry{{Branches: names, At: at}}}
	}
	originTime := b.BranchedFrom
	if b.EphemeralRebase || at.Before(originTime) {
		originTime = at
	}
	return graph.Scope{Entries: []graph.ScopeEntry{
		{Branches: []string{GlobalBranchName, b.OriginBranch}, At: originTime},
		{Branches: []string{b.Name}, At: at},
	}}
}

// QueryFilterRelationships renders the resolution set as Cypher filter
// fragments over relLabels plus the branchN/timeN parameters they reference.
func (b Branch) QueryFilterRelationships(relLabels []string, at timestamp.Timestamp) ([]string, map[string]any) {
	return graph.BuildFilter(b.ResolutionSet(at), relLabels)
}

// ChangeWindow selects edges this branch opened or closed in (since, until].
func (b Branch) ChangeWindow(since, until timestamp.Timestamp) graph.ChangeWindow {
	return graph.ChangeWindow{Branches: []string{b.Name}, Since: since, Until: until}
}

// QueryFilterRange renders ChangeWindow as Cypher fragments.
func (b Branch) QueryFilterRange(relLabels []string, since, until timestamp.Timestamp) ([]string, map[string]any) {
	return graph.BuildRangeFilter(b.ChangeWindow(since, until), relLabels)
}

// EdgeProps returns the temporal properties of an edge written on this branch.
func (b Branch) EdgeProps(at timestamp.Timestamp, status graph.Status) graph.EdgeProps {
	return graph.EdgeProps{
		Branch:      b.Name,
		BranchLevel: b.HierarchyLevel,
		From:        at,
		Status:      status,
	}
}
