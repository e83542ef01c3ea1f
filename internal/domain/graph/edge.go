package graph

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/yungbote/branchgraph/internal/domain/timestamp"
)

// Label is the relationship type of a temporal edge.
type Label string

const (
	LabelIsPartOf     Label = "IS_PART_OF"
	LabelHasAttribute Label = "HAS_ATTRIBUTE"
	LabelHasValue     Label = "HAS_VALUE"
	LabelIsVisible    Label = "IS_VISIBLE"
	LabelIsProtected  Label = "IS_PROTECTED"
	LabelHasSource    Label = "HAS_SOURCE"
	LabelHasOwner     Label = "HAS_OWNER"
	LabelIsRelated    Label = "IS_RELATED"
)

// AllLabels lists every label a store must know about.
var AllLabels = []Label{
	LabelIsPartOf,
	LabelHasAttribute,
	LabelHasValue,
	LabelIsVisible,
	LabelIsProtected,
	LabelHasSource,
	LabelHasOwner,
	LabelIsRelated,
}

// PropertyLabels are the labels hanging off an attribute or relationship vertex.
var PropertyLabels = []Label{
	LabelHasValue,
	LabelIsVisible,
	LabelIsProtected,
	LabelHasSource,
	LabelHasOwner,
}

func (l Label) Valid() bool {
	for _, known := range AllLabels {
		if l == known {
			return true
		}
	}
	return false
}

// SingleValued reports whether a source vertex carries at most one effective
// edge with this label, whatever the target. Multi-valued labels are keyed by
// (source, label, target) instead.
func (l Label) SingleValued() bool {
	switch l {
	case LabelHasValue, LabelIsVisible, LabelIsProtected, LabelHasSource, LabelHasOwner:
		return true
	default:
		return false
	}
}

// Status is the logical existence flag of an edge.
type Status string

const (
	StatusActive  Status = "active"
	StatusDeleted Status = "deleted"
)

func (s Status) Valid() bool {
	return s == StatusActive || s == StatusDeleted
}

// EdgeProps is the persisted temporal 5-tuple.
type EdgeProps struct {
	Branch      string               `json:"branch"`
	BranchLevel int                  `json:"branch_level"`
	From        timestamp.Timestamp  `json:"from"`
	To          *timestamp.Timestamp `json:"to,omitempty"`
	Status      Status               `json:"status"`
}

// Edge is one recorded version of a fact between two vertices.
type Edge struct {
	ID    string    `json:"id"`
	Label Label     `json:"label"`
	Src   string    `json:"src"`
	Dst   string    `json:"dst"`
	Props EdgeProps `json:"props"`
}

// NewEdge builds an open edge with a fresh id.
func NewEdge(label Label, src, dst string, branch string, level int, from timestamp.Timestamp, status Status) Edge {
	return Edge{
		ID:    uuid.NewString(),
		Label: label,
		Src:   src,
		Dst:   dst,
		Props: EdgeProps{
			Branch:      branch,
			BranchLevel: level,
			From:        from,
			Status:      status,
		},
	}
}

func (e Edge) Open() bool { return e.Props.To == nil }

func (e Edge) Active() bool { return e.Props.Status == StatusActive }

// Validate checks the invariants every persisted edge must satisfy.
func (e Edge) Validate() error {
	switch {
	case e.ID == "":
		return fmt.Errorf("edge: missing id")
	case !e.Label.Valid():
		return fmt.Errorf("edge %s: unknown label %q", e.ID, e.Label)
	case e.Src == "" || e.Dst == "":
		return fmt.Errorf("edge %s: missing endpoint", e.ID)
	case e.Props.Branch == "":
		return fmt.Errorf("edge %s: missing branch", e.ID)
	case !e.Props.Status.Valid():
		return fmt.Errorf("edge %s: invalid status %q", e.ID, e.Props.Status)
	case e.Props.From.IsZero():
		return fmt.Errorf("edge %s: missing from", e.ID)
	case e.Props.To != nil && e.Props.To.Before(e.Props.From):
		return fmt.Errorf("edge %s: to before from", e.ID)
	}
	return nil
}

// VertexKind discriminates the vertex variants stored in the graph.
type VertexKind string

const (
	VertexRoot           VertexKind = "Root"
	VertexNode           VertexKind = "Node"
	VertexAttribute      VertexKind = "Attribute"
	VertexAttributeValue VertexKind = "AttributeValue"
	VertexBoolean        VertexKind = "Boolean"
	VertexRelationship   VertexKind = "Relationship"
)

// RootID is the id of the single root vertex every node is part of.
const RootID = "root"

// Vertex is not versioned; only edges carry branch and time.
type Vertex struct {
	ID   string     `json:"id"`
	Kind VertexKind `json:"kind"`
	// NodeKind is the schema kind of a Node vertex.
	NodeKind string `json:"node_kind,omitempty"`
	// Name is the attribute name or the relationship identifier.
	Name string `json:"name,omitempty"`
	// NodeID is the owning node of an Attribute vertex.
	NodeID string `json:"node_id,omitempty"`
	// Value holds the scalar of AttributeValue and Boolean vertices.
	Value any `json:"value,omitempty"`
}
