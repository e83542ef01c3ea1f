package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/branchgraph/internal/platform/logger"
	"github.com/yungbote/branchgraph/internal/realtime"
)

type EventsHandler struct {
	log *logger.Logger
	hub *realtime.Hub
}

func NewEventsHandler(log *logger.Logger, hub *realtime.Hub) *EventsHandler {
	return &EventsHandler{log: log.With("handler", "EventsHandler"), hub: hub}
}

// GET /api/events?branch=a,b
//
// Streams branch lifecycle events. Without a branch filter every branch is
// included.
func (h *EventsHandler) Stream(c *gin.Context) {
	client := h.hub.NewClient()
	branches := queryList(c, "branch")
	if len(branches) == 0 {
		branches = []string{realtime.AllBranches}
	}
	for _, b := range branches {
		h.hub.Subscribe(client, b)
	}
	h.log.Debug("event stream open", "client_id", client.ID.String(), "branches", branches)
	defer h.hub.Close(client)
	h.hub.Serve(c.Writer, c.Request, client)
}
