package graph

import (
	"sort"

	"github.com/yungbote/branchgraph/internal/domain/timestamp"
)

// ScopeEntry is one (branch name set, time) pair of a resolution set. Edges of
// these branches are candidates when they are valid at At.
type ScopeEntry struct {
	Branches []string
	At       timestamp.Timestamp
}

// Scope is the resolution set a time-scoped query is built from.
type Scope struct {
	Entries []ScopeEntry
}

func (e ScopeEntry) has(branch string) bool {
	for _, b := range e.Branches {
		if b == branch {
			return true
		}
	}
	return false
}

// Matches is the Go twin of the Cypher fragment built by BuildFilter.
func (s Scope) Matches(e Edge) bool {
	for _, entry := range s.Entries {
		if !entry.has(e.Props.Branch) {
			continue
		}
		if e.Props.From.After(entry.At) {
			continue
		}
		if e.Props.To == nil || !e.Props.To.Before(entry.At) {
			return true
		}
	}
	return false
}

// BranchNames returns every branch name referenced by the scope, sorted.
func (s Scope) BranchNames() []string {
	seen := map[string]struct{}{}
	for _, entry := range s.Entries {
		for _, b := range entry.Branches {
			seen[b] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for b := range seen {
		out = append(out, b)
	}
	sort.Strings(out)
	return out
}

// ChangeWindow selects edges that were opened or closed inside (Since, Until].
type ChangeWindow struct {
	Branches []string
	Since    timestamp.Timestamp
	Until    timestamp.Timestamp
}

// Matches is the Go twin of BuildRangeFilter.
func (w ChangeWindow) Matches(e Edge) bool {
	found := false
	for _, b := range w.Branches {
		if b == e.Props.Branch {
			found = true
			break
		}
	}
	if !found {
		return false
	}
	if e.Props.From.After(w.Since) && !e.Props.From.After(w.Until) {
		return true
	}
	if e.Props.To != nil && e.Props.To.After(w.Since) && !e.Props.To.After(w.Until) {
		return true
	}
	return false
}
