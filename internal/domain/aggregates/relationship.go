package aggregates

import (
	"context"

	"github.com/yungbote/branchgraph/internal/domain/timestamp"
)

var RelationshipAggregateContract = Contract{
	Name:             "Nodes.RelationshipAggregate",
	WriteTxOwnership: WriteTxOwnedByAggregate,
	ReadPolicy:       ReadPolicyInvariantScoped,
	Notes:            "Brings one relationship field of one node in line with a desired peer set without erasing history.",
}

// RelationshipAggregate owns relationship reconciliation invariants.
type RelationshipAggregate interface {
	Aggregate

	Reconcile(ctx context.Context, in ReconcileInput) (ReconcileResult, error)
}

// PeerProperties are the flag and node-reference properties of one relationship.
type PeerProperties struct {
	IsVisible   bool   `json:"is_visible"`
	IsProtected bool   `json:"is_protected"`
	Source      string `json:"source,omitempty"`
	Owner       string `json:"owner,omitempty"`
}

// DefaultPeerProperties is what an absent property edge resolves to.
func DefaultPeerProperties() PeerProperties {
	return PeerProperties{IsVisible: true}
}

type DesiredPeer struct {
	PeerID string `json:"peer_id"`
	// Properties left nil mean DefaultPeerProperties.
	Properties *PeerProperties `json:"properties,omitempty"`
}

// WantedProperties returns the properties the peer asks for.
func (p DesiredPeer) WantedProperties() PeerProperties {
	if p.Properties == nil {
		return DefaultPeerProperties()
	}
	return *p.Properties
}

type ReconcileInput struct {
	Branch string
	At     timestamp.Timestamp
	NodeID string
	// Field is the relationship name on the node's schema.
	Field string
	Peers []DesiredPeer
}

type ReconcileResult struct {
	Created   []string `json:"created"`
	Removed   []string `json:"removed"`
	Updated   []string `json:"updated"`
	Unchanged []string `json:"unchanged"`
}

// Changed reports whether the reconciliation wrote anything.
func (r ReconcileResult) Changed() bool {
	return len(r.Created)+len(r.Removed)+len(r.Updated) > 0
}
