package aggregates

import (
	"context"
	"errors"
	"strings"

	"github.com/yungbote/branchgraph/internal/domain/timestamp"
)

var MergeAggregateContract = Contract{
	Name:             "Branches.MergeAggregate",
	WriteTxOwnership: WriteTxOwnedByAggregate,
	ReadPolicy:       ReadPolicyInvariantScoped,
	Notes: "Re-validates conflicts and promotes every open branch edge into the default branch " +
		"inside one store transaction; the merged branch is rebased afterwards.",
}

// MergeAggregate owns branch merge invariants.
//
// Failures return *aggregates.Error with codes:
// CodeValidation (conflicts, default branch), CodeNotFound, CodeInvariantViolation, CodeDatabase, CodeInternal.
type MergeAggregate interface {
	Aggregate

	// MergeGraph applies every change of the branch onto its origin, all or nothing.
	MergeGraph(ctx context.Context, in MergeGraphInput) (MergeGraphResult, error)
}

type MergeGraphInput struct {
	Branch string
	// At overrides the merge instant; zero means now.
	At timestamp.Timestamp
}

type MergeGraphResult struct {
	Branch       string              `json:"branch"`
	Into         string              `json:"into"`
	MergedAt     timestamp.Timestamp `json:"merged_at"`
	EdgesCreated int                 `json:"edges_created"`
	EdgesClosed  int                 `json:"edges_closed"`
	Skipped      int                 `json:"skipped"`
}

// MergeConflictError carries one message per conflicting path. It is the
// cause of the validation error a refused merge returns.
type MergeConflictError struct {
	Branch   string
	Messages []string
}

func (e *MergeConflictError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if len(e.Messages) == 0 {
		return "merge of " + e.Branch + " refused"
	}
	return "merge of " + e.Branch + " refused: " + strings.Join(e.Messages, "; ")
}

// ConflictMessages extracts the per-path messages of a refused merge.
func ConflictMessages(err error) ([]string, bool) {
	var cerr *MergeConflictError
	if !errors.As(err, &cerr) {
		return nil, false
	}
	return cerr.Messages, true
}
