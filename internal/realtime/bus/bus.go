// Package bus fans branch lifecycle events out to every process sharing the
// catalog, so each can refresh its branch registry.
package bus

import (
	"context"

	"github.com/yungbote/branchgraph/internal/domain/timestamp"
)

type EventType string

const (
	EventBranchCreated EventType = "branch.created"
	EventBranchDeleted EventType = "branch.deleted"
	EventBranchRebased EventType = "branch.rebased"
	EventBranchMerged  EventType = "branch.merged"
	EventSchemaChanged EventType = "schema.changed"
)

type BranchEvent struct {
	Type   EventType           `json:"type"`
	Branch string              `json:"branch"`
	At     timestamp.Timestamp `json:"at"`
	// Source identifies the publishing process so it can skip its own events.
	Source string `json:"source,omitempty"`
}

type Bus interface {
	Publish(ctx context.Context, evt BranchEvent) error
	StartForwarder(ctx context.Context, onEvt func(evt BranchEvent)) error
	Close() error
}
