// Package realtime streams branch lifecycle events to HTTP clients over
// server-sent events.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/branchgraph/internal/platform/logger"
	"github.com/yungbote/branchgraph/internal/realtime/bus"
)

type Message struct {
	Branch string          `json:"branch"`
	Event  bus.EventType   `json:"event"`
	Data   bus.BranchEvent `json:"data"`
}

type Hub struct {
	mu            sync.RWMutex
	log           *logger.Logger
	subscriptions map[string]map[*Client]bool
	heartbeat     time.Duration
}

func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		log:           log.With("component", "BranchEventHub"),
		subscriptions: make(map[string]map[*Client]bool),
		heartbeat:     15 * time.Second,
	}
}

func (h *Hub) NewClient() *Client {
	id := uuid.New()
	return &Client{
		ID:       id,
		Branches: make(map[string]bool),
		Outbound: make(chan Message, 32),
		done:     make(chan struct{}),
		Logger:   h.log.With("client_id", id.String()),
	}
}

func (h *Hub) Subscribe(c *Client, branch string) {
	branch = strings.TrimSpace(branch)
	if branch == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	c.Branches[branch] = true
	subs, ok := h.subscriptions[branch]
	if !ok {
		subs = make(map[*Client]bool)
		h.subscriptions[branch] = subs
	}
	subs[c] = true
}

func (h *Hub) unsubscribeAllLocked(c *Client) {
	for branch := range c.Branches {
		if subs, ok := h.subscriptions[branch]; ok {
			delete(subs, c)
			if len(subs) == 0 {
				delete(h.subscriptions, branch)
			}
		}
	}
	c.Branches = make(map[string]bool)
}

// Publish fans evt out to the subscribers of its branch and of AllBranches.
// Slow clients lose messages rather than block the bus.
func (h *Hub) Publish(evt bus.BranchEvent) {
	msg := Message{Branch: evt.Branch, Event: evt.Type, Data: evt}
	h.mu.RLock()
	defer h.mu.RUnlock()
	seen := map[*Client]bool{}
	for _, key := range []string{evt.Branch, AllBranches} {
		for c := range h.subscriptions[key] {
			if seen[c] {
				continue
			}
			seen[c] = true
			select {
			case c.Outbound <- msg:
			default:
				h.log.Warn("dropping branch event; client buffer full", "client_id", c.ID.String(), "event", evt.Type)
			}
		}
	}
}

// Attach forwards every event from b to the hub until ctx is done.
func (h *Hub) Attach(ctx context.Context, b bus.Bus) error {
	return b.StartForwarder(ctx, h.Publish)
}

func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	seen := map[*Client]bool{}
	for _, subs := range h.subscriptions {
		for c := range subs {
			seen[c] = true
		}
	}
	return len(seen)
}

// Serve streams c's messages until the request ends or the client is closed.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, c *Client) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-c.done:
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case msg, ok := <-c.Outbound:
			if !ok {
				return
			}
			raw, err := json.Marshal(msg)
			if err != nil {
				c.Logger.Warn("marshal branch event", "error", err)
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.Event, raw)
			flusher.Flush()
		}
	}
}

// Close unsubscribes c and ends its stream. Safe to call more than once.
func (h *Hub) Close(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	select {
	case <-c.done:
		return
	default:
	}
	close(c.done)
	h.unsubscribeAllLocked(c)
}
