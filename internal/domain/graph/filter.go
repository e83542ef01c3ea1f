package graph

import (
	"fmt"
	"sort"
	"strings"
)

// BuildFilter renders a Scope as Cypher boolean fragments over the edge
// variables named in relLabels.
//
// For each variable two fragments are produced, in order: the disjunction
// wrapped in parentheses and the bare disjunction. Parameters branchN and timeN
// hold the branch name list and canonical time of the N-th scope entry.
func BuildFilter(scope Scope, relLabels []string) ([]string, map[string]any) {
	params := make(map[string]any, len(scope.Entries)*2)
	for idx, entry := range scope.Entries {
		names := append([]string(nil), entry.Branches...)
		sort.Strings(names)
		params[fmt.Sprintf("branch%d", idx)] = names
		params[fmt.Sprintf("time%d", idx)] = entry.At.String()
	}

	filters := make([]string, 0, len(relLabels)*2)
	for _, rel := range relLabels {
		perRel := make([]string, 0, len(scope.Entries)*2)
		for idx := range scope.Entries {
			perRel = append(perRel,
				fmt.Sprintf("(%s.branch IN $branch%d AND %s.from <= $time%d AND %s.to IS NULL)", rel, idx, rel, idx, rel),
				fmt.Sprintf("(%s.branch IN $branch%d AND %s.from <= $time%d AND %s.to >= $time%d)", rel, idx, rel, idx, rel, idx),
			)
		}
		joined := strings.Join(perRel, "\n OR ")
		filters = append(filters, "("+joined+")", joined)
	}
	return filters, params
}

// BuildRangeFilter renders a ChangeWindow as one parenthesized Cypher fragment
// per edge variable. Parameter names are prefixed to stay clear of BuildFilter.
func BuildRangeFilter(w ChangeWindow, relLabels []string) ([]string, map[string]any) {
	names := append([]string(nil), w.Branches...)
	sort.Strings(names)
	params := map[string]any{
		"diff_branches": names,
		"diff_start":    w.Since.String(),
		"diff_end":      w.Until.String(),
	}
	filters := make([]string, 0, len(relLabels))
	for _, rel := range relLabels {
		filters = append(filters, fmt.Sprintf(
			"((%s.branch IN $diff_branches AND %s.from > $diff_start AND %s.from <= $diff_end)"+
				"\n OR (%s.branch IN $diff_branches AND %s.to > $diff_start AND %s.to <= $diff_end))",
			rel, rel, rel, rel, rel, rel,
		))
	}
	return filters, params
}
