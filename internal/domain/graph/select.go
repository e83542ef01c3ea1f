package graph

import "sort"

// compareVersion orders two edges recorded for the same slot, best first:
// deeper branch, later from, open before closed, later to, then id.
func compareVersion(a, b Edge) int {
	if a.Props.BranchLevel != b.Props.BranchLevel {
		if a.Props.BranchLevel > b.Props.BranchLevel {
			return -1
		}
		return 1
	}
	if c := a.Props.From.Compare(b.Props.From); c != 0 {
		return -c
	}
	return compareClosure(a, b)
}

func compareClosure(a, b Edge) int {
	switch {
	case a.Props.To == nil && b.Props.To == nil:
	case a.Props.To == nil:
		return -1
	case b.Props.To == nil:
		return 1
	default:
		if c := a.Props.To.Compare(*b.Props.To); c != 0 {
			return -c
		}
	}
	switch {
	case a.ID < b.ID:
		return -1
	case a.ID > b.ID:
		return 1
	}
	return 0
}

// SelectEffective picks the single effective version among candidate edges of
// one slot. Status is not consulted: a deleted winner is a valid resolution.
func SelectEffective(candidates []Edge) (Edge, bool) {
	if len(candidates) == 0 {
		return Edge{}, false
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if compareVersion(c, best) < 0 {
			best = c
		}
	}
	return best, true
}

// SelectPerKey groups candidates with key and keeps the effective edge of each
// group.
func SelectPerKey(candidates []Edge, key func(Edge) string) map[string]Edge {
	groups := map[string][]Edge{}
	for _, c := range candidates {
		k := key(c)
		groups[k] = append(groups[k], c)
	}
	out := make(map[string]Edge, len(groups))
	for k, g := range groups {
		if best, ok := SelectEffective(g); ok {
			out[k] = best
		}
	}
	return out
}

// Path is a chain of edges ordered from the anchor vertex outward; the last
// element is the most distal hop.
type Path []Edge

// Active reports whether every hop of the path is active.
func (p Path) Active() bool {
	for _, e := range p {
		if !e.Active() {
			return false
		}
	}
	return len(p) > 0
}

func comparePaths(a, b Path) int {
	if len(a) != len(b) {
		return len(a) - len(b)
	}
	for i := len(a) - 1; i >= 0; i-- {
		if a[i].Props.BranchLevel != b[i].Props.BranchLevel {
			if a[i].Props.BranchLevel > b[i].Props.BranchLevel {
				return -1
			}
			return 1
		}
	}
	for i := len(a) - 1; i >= 0; i-- {
		if c := a[i].Props.From.Compare(b[i].Props.From); c != 0 {
			return -c
		}
	}
	for i := len(a) - 1; i >= 0; i-- {
		if c := compareClosure(a[i], b[i]); c != 0 {
			return c
		}
	}
	return 0
}

// RankPaths sorts candidate paths best first: each hop's branch level
// descending (most distal hop first), then each hop's from descending (most
// distal hop first).
func RankPaths(paths []Path) {
	sort.SliceStable(paths, func(i, j int) bool {
		return comparePaths(paths[i], paths[j]) < 0
	})
}

// SelectPath returns the top ranked path.
func SelectPath(paths []Path) (Path, bool) {
	if len(paths) == 0 {
		return nil, false
	}
	ranked := append([]Path(nil), paths...)
	RankPaths(ranked)
	return ranked[0], true
}
