package handlers

import (
	"encoding/json"
	"strings"

	"github.com/gin-gonic/gin"

	domainagg "github.com/yungbote/branchgraph/internal/domain/aggregates"
	"github.com/yungbote/branchgraph/internal/domain/timestamp"
	"github.com/yungbote/branchgraph/internal/http/response"
	"github.com/yungbote/branchgraph/internal/services"
)

type NodeHandler struct {
	nodes services.NodeService
	rels  services.RelationshipService
}

func NewNodeHandler(nodes services.NodeService, rels services.RelationshipService) *NodeHandler {
	return &NodeHandler{nodes: nodes, rels: rels}
}

type createNodeRequest struct {
	ID         string                             `json:"id"`
	Kind       string                             `json:"kind" binding:"required"`
	At         timestamp.Timestamp                `json:"at"`
	Attributes map[string]services.AttributeInput `json:"attributes"`
}

// POST /api/branches/:name/nodes
func (h *NodeHandler) Create(c *gin.Context) {
	var req createNodeRequest
	if err := bindJSON(c, &req); err != nil {
		response.RespondAPIError(c, err)
		return
	}
	n, err := h.nodes.Create(c.Request.Context(), services.CreateNodeInput{
		Branch:     c.Param("name"),
		At:         req.At,
		ID:         req.ID,
		Kind:       req.Kind,
		Attributes: req.Attributes,
	})
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondCreated(c, gin.H{"node": n})
}

// GET /api/branches/:name/nodes?kind=&at=
func (h *NodeHandler) List(c *gin.Context) {
	at, err := queryTime(c, "at")
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	kind := strings.TrimSpace(c.Query("kind"))
	if kind == "" {
		response.RespondAPIError(c, domainagg.Validation("http.query", "kind is required"))
		return
	}
	ids, err := h.nodes.List(c.Request.Context(), c.Param("name"), at, kind)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"ids": ids})
}

// GET /api/branches/:name/nodes/:id?at=
func (h *NodeHandler) Get(c *gin.Context) {
	at, err := queryTime(c, "at")
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	n, ok, err := h.nodes.Get(c.Request.Context(), c.Param("name"), at, c.Param("id"))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	if !ok {
		response.RespondAPIError(c, domainagg.NotFound("Nodes.Get", "node %s on %s", c.Param("id"), c.Param("name")))
		return
	}
	response.RespondOK(c, gin.H{"node": n})
}

// DELETE /api/branches/:name/nodes/:id?at=
func (h *NodeHandler) Delete(c *gin.Context) {
	at, err := queryTime(c, "at")
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	if err := h.nodes.Delete(c.Request.Context(), c.Param("name"), at, c.Param("id")); err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"deleted": c.Param("id")})
}

type updateAttributeRequest struct {
	At timestamp.Timestamp `json:"at"`
	// Value is applied only when present; null is a value.
	Value       json.RawMessage `json:"value"`
	IsVisible   *bool           `json:"is_visible"`
	IsProtected *bool           `json:"is_protected"`
	Source      *string         `json:"source"`
	Owner       *string         `json:"owner"`
}

// PATCH /api/branches/:name/nodes/:id/attributes/:attr
func (h *NodeHandler) UpdateAttribute(c *gin.Context) {
	var req updateAttributeRequest
	if err := bindJSON(c, &req); err != nil {
		response.RespondAPIError(c, err)
		return
	}
	in := services.UpdateAttributeInput{
		Branch: c.Param("name"),
		At:     req.At,
		NodeID: c.Param("id"),
		Name:   c.Param("attr"),
		Input: services.AttributeInput{
			IsVisible:   req.IsVisible,
			IsProtected: req.IsProtected,
			Source:      req.Source,
			Owner:       req.Owner,
		},
	}
	if len(req.Value) > 0 {
		if err := json.Unmarshal(req.Value, &in.Input.Value); err != nil {
			response.RespondAPIError(c, domainagg.Validation("http.body", "invalid value: %v", err))
			return
		}
		in.SetValue = true
	}
	changed, err := h.nodes.UpdateAttribute(c.Request.Context(), in)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"changed": changed})
}

// GET /api/branches/:name/nodes/:id/relationships/:field?at=
func (h *NodeHandler) Relationship(c *gin.Context) {
	at, err := queryTime(c, "at")
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	f, err := h.rels.Field(c.Request.Context(), c.Param("name"), at, c.Param("id"), c.Param("field"))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"relationship": f})
}

type peerRequest struct {
	PeerID      string `json:"peer_id" binding:"required"`
	IsVisible   *bool  `json:"is_visible"`
	IsProtected *bool  `json:"is_protected"`
	Source      string `json:"source"`
	Owner       string `json:"owner"`
}

type reconcileRequest struct {
	At    timestamp.Timestamp `json:"at"`
	Peers []peerRequest       `json:"peers" binding:"dive"`
}

// PUT /api/branches/:name/nodes/:id/relationships/:field
//
// Replaces the field's peers with the given set.
func (h *NodeHandler) ReconcileRelationship(c *gin.Context) {
	var req reconcileRequest
	if err := bindJSON(c, &req); err != nil {
		response.RespondAPIError(c, err)
		return
	}
	peers := make([]domainagg.DesiredPeer, 0, len(req.Peers))
	for _, p := range req.Peers {
		props := domainagg.DefaultPeerProperties()
		if p.IsVisible != nil {
			props.IsVisible = *p.IsVisible
		}
		if p.IsProtected != nil {
			props.IsProtected = *p.IsProtected
		}
		props.Source = strings.TrimSpace(p.Source)
		props.Owner = strings.TrimSpace(p.Owner)
		peers = append(peers, domainagg.DesiredPeer{PeerID: strings.TrimSpace(p.PeerID), Properties: &props})
	}
	res, err := h.rels.Reconcile(c.Request.Context(), domainagg.ReconcileInput{
		Branch: c.Param("name"),
		At:     req.At,
		NodeID: c.Param("id"),
		Field:  c.Param("field"),
		Peers:  peers,
	})
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"result": res, "changed": res.Changed()})
}
