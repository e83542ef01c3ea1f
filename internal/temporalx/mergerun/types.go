package mergerun

import domainagg "github.com/yungbote/branchgraph/internal/domain/aggregates"

const (
	WorkflowName     = "branch_merge"
	ActivityValidate = "branch_merge_validate"
	ActivityApply    = "branch_merge_apply"
)

// WorkflowID keeps at most one merge of a branch in flight.
func WorkflowID(branch string) string { return "merge/" + branch }

type Request struct {
	Branch string `json:"branch"`
}

// Outcome is either a merge result or the conflicts that refused it.
type Outcome struct {
	Result    domainagg.MergeGraphResult `json:"result"`
	Conflicts []string                   `json:"conflicts,omitempty"`
}
