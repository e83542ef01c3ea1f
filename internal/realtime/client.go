package realtime

import (
	"github.com/google/uuid"

	"github.com/yungbote/branchgraph/internal/platform/logger"
)

// AllBranches subscribes a client to the events of every branch.
const AllBranches = "*"

type Client struct {
	ID       uuid.UUID
	Branches map[string]bool
	Outbound chan Message
	done     chan struct{}
	Logger   *logger.Logger
}
