package bus

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/yungbote/branchgraph/internal/domain/timestamp"
)

func TestMemoryBusDeliversInOrder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b := NewMemoryBus()
	var got []EventType
	if err := b.StartForwarder(ctx, func(evt BranchEvent) { got = append(got, evt.Type) }); err != nil {
		t.Fatalf("forwarder: %v", err)
	}
	for _, typ := range []EventType{EventBranchCreated, EventBranchRebased, EventBranchDeleted} {
		if err := b.Publish(ctx, BranchEvent{Type: typ, Branch: "br1"}); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}
	if len(got) != 3 || got[0] != EventBranchCreated || got[2] != EventBranchDeleted {
		t.Fatalf("events: got=%v", got)
	}
	_ = b.Close()
	_ = b.Publish(ctx, BranchEvent{Type: EventBranchMerged})
	if len(got) != 3 {
		t.Fatalf("closed bus must not deliver, got=%v", got)
	}
}

func TestBranchEventJSON(t *testing.T) {
	evt := BranchEvent{Type: EventBranchMerged, Branch: "br1", At: timestamp.MustParse("2024-01-01T00:00:00.000001Z"), Source: "p1"}
	raw, err := json.Marshal(evt)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back BranchEvent
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.Type != evt.Type || !back.At.Equal(evt.At) || back.Source != "p1" {
		t.Fatalf("roundtrip: want=%+v got=%+v", evt, back)
	}
}
