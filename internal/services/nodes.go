package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/yungbote/branchgraph/internal/data/aggregates"
	domainagg "github.com/yungbote/branchgraph/internal/domain/aggregates"
	domainbranch "github.com/yungbote/branchgraph/internal/domain/branch"
	domaingraph "github.com/yungbote/branchgraph/internal/domain/graph"
	"github.com/yungbote/branchgraph/internal/domain/schema"
	"github.com/yungbote/branchgraph/internal/domain/timestamp"
	"github.com/yungbote/branchgraph/internal/observability"
	"github.com/yungbote/branchgraph/internal/platform/logger"
)

// AttributeInput carries the properties to set on one attribute. Nil fields
// keep their current value (or the default on creation).
type AttributeInput struct {
	Value       any     `json:"value"`
	IsVisible   *bool   `json:"is_visible,omitempty"`
	IsProtected *bool   `json:"is_protected,omitempty"`
	Source      *string `json:"source,omitempty"`
	Owner       *string `json:"owner,omitempty"`
}

type AttributeValue struct {
	Value       any    `json:"value"`
	IsVisible   bool   `json:"is_visible"`
	IsProtected bool   `json:"is_protected"`
	Source      string `json:"source,omitempty"`
	Owner       string `json:"owner,omitempty"`
}

type Node struct {
	ID            string                        `json:"id"`
	Kind          string                        `json:"kind"`
	Branch        string                        `json:"branch"`
	At            timestamp.Timestamp           `json:"at"`
	Attributes    map[string]AttributeValue     `json:"attributes"`
	Relationships map[string][]RelationshipPeer `json:"relationships"`
}

type CreateNodeInput struct {
	Branch     string                    `json:"branch"`
	At         timestamp.Timestamp       `json:"at,omitempty"`
	ID         string                    `json:"id,omitempty"`
	Kind       string                    `json:"kind"`
	Attributes map[string]AttributeInput `json:"attributes"`
}

type UpdateAttributeInput struct {
	Branch string              `json:"branch"`
	At     timestamp.Timestamp `json:"at,omitempty"`
	NodeID string              `json:"node_id"`
	Name   string              `json:"name"`
	// SetValue distinguishes "set value to null" from "leave value alone".
	SetValue bool           `json:"set_value"`
	Input    AttributeInput `json:"input"`
}

type NodeService interface {
	Create(ctx context.Context, in CreateNodeInput) (Node, error)
	Get(ctx context.Context, branch string, at timestamp.Timestamp, id string) (Node, bool, error)
	List(ctx context.Context, branch string, at timestamp.Timestamp, kind string) ([]string, error)
	UpdateAttribute(ctx context.Context, in UpdateAttributeInput) (bool, error)
	Delete(ctx context.Context, branch string, at timestamp.Timestamp, id string) error
}

type nodeService struct {
	log      *logger.Logger
	graph    aggregates.BaseDeps
	registry BranchRegistry
}

func NewNodeService(baseLog *logger.Logger, graph aggregates.BaseDeps, registry BranchRegistry) NodeService {
	return &nodeService{
		log:      baseLog.With("service", "NodeService"),
		graph:    graph,
		registry: registry,
	}
}

// writeBranch picks the branch an attribute is recorded on: branch-agnostic
// attributes live on the global pseudo-branch.
func (s *nodeService) writeBranch(ctx context.Context, b domainbranch.Branch, attr schema.AttributeSchema) (domainbranch.Branch, error) {
	if !attr.BranchAgnostic {
		return b, nil
	}
	return s.registry.Branch(ctx, domainbranch.GlobalBranchName)
}

func (s *nodeService) Create(ctx context.Context, in CreateNodeInput) (out Node, err error) {
	const op = "Nodes.Create"
	ctx, span := observability.StartSpan(ctx, op, attribute.String("branch", in.Branch), attribute.String("kind", in.Kind))
	defer func() { observability.EndSpan(span, err) }()

	b, err := s.registry.Branch(ctx, in.Branch)
	if err != nil {
		return out, err
	}
	ns, ok := s.registry.Schemas().Node(b.Name, strings.TrimSpace(in.Kind))
	if !ok {
		return out, domainagg.Validation(op, "unknown kind %q", in.Kind)
	}
	for name := range in.Attributes {
		if _, ok := ns.Attribute(name); !ok {
			return out, domainagg.Validation(op, "%s has no attribute %q", ns.Kind, name)
		}
	}
	for _, a := range ns.Attributes {
		if _, ok := in.Attributes[a.Name]; !ok && !a.Optional {
			return out, domainagg.Validation(op, "%s.%s is required", ns.Kind, a.Name)
		}
	}
	at := in.At
	if at.IsZero() {
		at = timestamp.Now()
	}
	id := strings.TrimSpace(in.ID)
	if id == "" {
		id = domaingraph.NewVertexID()
	}

	err = aggregates.ExecuteWrite(ctx, s.graph, op, func(tx domaingraph.Tx) error {
		if err := tx.CreateVertex(ctx, domaingraph.Vertex{ID: id, Kind: domaingraph.VertexNode, NodeKind: ns.Kind}); err != nil {
			return err
		}
		if err := tx.CreateEdge(ctx, domaingraph.NewEdge(domaingraph.LabelIsPartOf, id, domaingraph.RootID, b.Name, b.HierarchyLevel, at, domaingraph.StatusActive)); err != nil {
			return err
		}
		for _, a := range ns.Attributes {
			input, ok := in.Attributes[a.Name]
			if !ok {
				continue
			}
			wb, err := s.writeBranch(ctx, b, a)
			if err != nil {
				return err
			}
			if err := s.createAttribute(ctx, tx, wb, at, id, a.Name, input); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return out, err
	}
	s.log.Info("node created", "branch", b.Name, "kind", ns.Kind, "node_id", id)
	got, _, err := s.Get(ctx, b.Name, at, id)
	return got, err
}

func (s *nodeService) createAttribute(ctx context.Context, tx domaingraph.Tx, b domainbranch.Branch, at timestamp.Timestamp, nodeID, name string, in AttributeInput) error {
	attrID := domaingraph.NewVertexID()
	if err := tx.CreateVertex(ctx, domaingraph.Vertex{ID: attrID, Kind: domaingraph.VertexAttribute, Name: name, NodeID: nodeID}); err != nil {
		return err
	}
	if err := tx.CreateEdge(ctx, domaingraph.NewEdge(domaingraph.LabelHasAttribute, nodeID, attrID, b.Name, b.HierarchyLevel, at, domaingraph.StatusActive)); err != nil {
		return err
	}
	if err := aggregates.WriteValue(ctx, tx, b, at, attrID, in.Value, nil); err != nil {
		return err
	}
	visible := true
	if in.IsVisible != nil {
		visible = *in.IsVisible
	}
	if err := aggregates.WriteFlag(ctx, tx, b, at, attrID, domaingraph.LabelIsVisible, visible, nil); err != nil {
		return err
	}
	protected := false
	if in.IsProtected != nil {
		protected = *in.IsProtected
	}
	if err := aggregates.WriteFlag(ctx, tx, b, at, attrID, domaingraph.LabelIsProtected, protected, nil); err != nil {
		return err
	}
	if in.Source != nil {
		if err := aggregates.WriteNodeRef(ctx, tx, b, at, attrID, domaingraph.LabelHasSource, *in.Source, nil); err != nil {
			return err
		}
	}
	if in.Owner != nil {
		if err := aggregates.WriteNodeRef(ctx, tx, b, at, attrID, domaingraph.LabelHasOwner, *in.Owner, nil); err != nil {
			return err
		}
	}
	return nil
}

// Get resolves a node as of (branch, at). A node that does not exist there
// is reported as not found, not as an error.
func (s *nodeService) Get(ctx context.Context, branch string, at timestamp.Timestamp, id string) (Node, bool, error) {
	const op = "Nodes.Get"
	b, err := s.registry.Branch(ctx, branch)
	if err != nil {
		return Node{}, false, err
	}
	if at.IsZero() {
		at = timestamp.Now()
	}
	v, ok, err := s.graph.Store.Vertex(ctx, strings.TrimSpace(id))
	if err != nil {
		return Node{}, false, aggregates.MapError(op, err)
	}
	if !ok || v.Kind != domaingraph.VertexNode {
		return Node{}, false, nil
	}
	resolver := domaingraph.NewResolver(s.graph.Store, b.ResolutionSet(at))
	active, err := resolver.NodeActive(ctx, v.ID)
	if err != nil {
		return Node{}, false, aggregates.MapError(op, err)
	}
	if !active {
		return Node{}, false, nil
	}

	out := Node{
		ID:            v.ID,
		Kind:          v.NodeKind,
		Branch:        b.Name,
		At:            at,
		Attributes:    map[string]AttributeValue{},
		Relationships: map[string][]RelationshipPeer{},
	}
	attrs, err := resolver.Attributes(ctx, v.ID)
	if err != nil {
		return Node{}, false, aggregates.MapError(op, err)
	}
	for name, e := range attrs {
		val, err := readAttribute(ctx, resolver, e.Dst)
		if err != nil {
			return Node{}, false, aggregates.MapError(op, err)
		}
		out.Attributes[name] = val
	}
	if ns, ok := s.registry.Schemas().Node(b.Name, v.NodeKind); ok {
		for _, rel := range ns.Relationships {
			peers, err := loadPeers(ctx, resolver, v.ID, rel.Identifier)
			if err != nil {
				return Node{}, false, aggregates.MapError(op, err)
			}
			out.Relationships[rel.Name] = peers
		}
	}
	return out, true, nil
}

func readAttribute(ctx context.Context, resolver domaingraph.Resolver, attrID string) (AttributeValue, error) {
	props, err := resolver.Properties(ctx, attrID)
	if err != nil {
		return AttributeValue{}, err
	}
	flags, err := aggregates.ReadPeerProperties(ctx, resolver.R, props)
	if err != nil {
		return AttributeValue{}, err
	}
	out := AttributeValue{IsVisible: flags.IsVisible, IsProtected: flags.IsProtected, Source: flags.Source, Owner: flags.Owner}
	if e, ok := props[domaingraph.LabelHasValue]; ok && e.Active() {
		v, found, err := resolver.R.Vertex(ctx, e.Dst)
		if err != nil {
			return AttributeValue{}, err
		}
		if found {
			out.Value = v.Value
		}
	}
	return out, nil
}

// List returns the ids of the active nodes of kind, or of every kind when
// kind is empty.
func (s *nodeService) List(ctx context.Context, branch string, at timestamp.Timestamp, kind string) ([]string, error) {
	const op = "Nodes.List"
	b, err := s.registry.Branch(ctx, branch)
	if err != nil {
		return nil, err
	}
	if at.IsZero() {
		at = timestamp.Now()
	}
	ids, err := domaingraph.NewResolver(s.graph.Store, b.ResolutionSet(at)).ActiveNodes(ctx)
	if err != nil {
		return nil, aggregates.MapError(op, err)
	}
	kind = strings.TrimSpace(kind)
	if kind == "" {
		return ids, nil
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		v, ok, err := s.graph.Store.Vertex(ctx, id)
		if err != nil {
			return nil, aggregates.MapError(op, err)
		}
		if ok && v.NodeKind == kind {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out, nil
}

// UpdateAttribute supersedes the properties of one attribute that differ
// from the input and reports whether anything was written.
func (s *nodeService) UpdateAttribute(ctx context.Context, in UpdateAttributeInput) (changed bool, err error) {
	const op = "Nodes.UpdateAttribute"
	ctx, span := observability.StartSpan(ctx, op, attribute.String("branch", in.Branch), attribute.String("node_id", in.NodeID))
	defer func() { observability.EndSpan(span, err) }()

	b, err := s.registry.Branch(ctx, in.Branch)
	if err != nil {
		return false, err
	}
	at := in.At
	if at.IsZero() {
		at = timestamp.Now()
	}
	name := strings.TrimSpace(in.Name)

	err = aggregates.ExecuteWrite(ctx, s.graph, op, func(tx domaingraph.Tx) error {
		changed = false
		node, err := aggregates.RequireVertex(ctx, tx, in.NodeID, domaingraph.VertexNode)
		if err != nil {
			return err
		}
		ns, ok := s.registry.Schemas().Node(b.Name, node.NodeKind)
		if !ok {
			return aggregates.ValidationError("unknown kind " + node.NodeKind)
		}
		as, ok := ns.Attribute(name)
		if !ok {
			return aggregates.ValidationError(fmt.Sprintf("%s has no attribute %q", ns.Kind, name))
		}
		wb, err := s.writeBranch(ctx, b, as)
		if err != nil {
			return err
		}
		resolver := domaingraph.NewResolver(tx, b.ResolutionSet(at))
		active, err := resolver.NodeActive(ctx, node.ID)
		if err != nil {
			return err
		}
		if !active {
			return aggregates.NotFoundError(fmt.Sprintf("node %s on %s", node.ID, b.Name))
		}
		attrs, err := resolver.Attributes(ctx, node.ID)
		if err != nil {
			return err
		}
		current, ok := attrs[name]
		if !ok {
			changed = true
			return s.createAttribute(ctx, tx, wb, at, node.ID, name, in.Input)
		}

		props, err := resolver.Properties(ctx, current.Dst)
		if err != nil {
			return err
		}
		have, err := readAttribute(ctx, resolver, current.Dst)
		if err != nil {
			return err
		}
		attrID := current.Dst
		if in.SetValue && fmt.Sprint(have.Value) != fmt.Sprint(in.Input.Value) {
			if err := aggregates.WriteValue(ctx, tx, wb, at, attrID, in.Input.Value, aggregates.PropertyEdge(props, domaingraph.LabelHasValue)); err != nil {
				return err
			}
			changed = true
		}
		if in.Input.IsVisible != nil && *in.Input.IsVisible != have.IsVisible {
			if err := aggregates.WriteFlag(ctx, tx, wb, at, attrID, domaingraph.LabelIsVisible, *in.Input.IsVisible, aggregates.PropertyEdge(props, domaingraph.LabelIsVisible)); err != nil {
				return err
			}
			changed = true
		}
		if in.Input.IsProtected != nil && *in.Input.IsProtected != have.IsProtected {
			if err := aggregates.WriteFlag(ctx, tx, wb, at, attrID, domaingraph.LabelIsProtected, *in.Input.IsProtected, aggregates.PropertyEdge(props, domaingraph.LabelIsProtected)); err != nil {
				return err
			}
			changed = true
		}
		if in.Input.Source != nil && strings.TrimSpace(*in.Input.Source) != have.Source {
			if err := aggregates.WriteNodeRef(ctx, tx, wb, at, attrID, domaingraph.LabelHasSource, *in.Input.Source, aggregates.PropertyEdge(props, domaingraph.LabelHasSource)); err != nil {
				return err
			}
			changed = true
		}
		if in.Input.Owner != nil && strings.TrimSpace(*in.Input.Owner) != have.Owner {
			if err := aggregates.WriteNodeRef(ctx, tx, wb, at, attrID, domaingraph.LabelHasOwner, *in.Input.Owner, aggregates.PropertyEdge(props, domaingraph.LabelHasOwner)); err != nil {
				return err
			}
			changed = true
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	if changed {
		s.log.Debug("attribute updated", "branch", b.Name, "node_id", in.NodeID, "attribute", name)
	}
	return changed, nil
}

// Delete records the node as deleted on the branch. Its attributes and
// relationships stay in history and become unreachable through the node.
func (s *nodeService) Delete(ctx context.Context, branch string, at timestamp.Timestamp, id string) (err error) {
	const op = "Nodes.Delete"
	ctx, span := observability.StartSpan(ctx, op, attribute.String("branch", branch), attribute.String("node_id", id))
	defer func() { observability.EndSpan(span, err) }()

	b, err := s.registry.Branch(ctx, branch)
	if err != nil {
		return err
	}
	if at.IsZero() {
		at = timestamp.Now()
	}
	err = aggregates.ExecuteWrite(ctx, s.graph, op, func(tx domaingraph.Tx) error {
		slots, err := domaingraph.NewResolver(tx, b.ResolutionSet(at)).Effective(ctx, domaingraph.EdgeQuery{
			Labels: []domaingraph.Label{domaingraph.LabelIsPartOf},
			Src:    strings.TrimSpace(id),
			Dst:    domaingraph.RootID,
		})
		if err != nil {
			return err
		}
		for _, e := range slots {
			if !e.Active() {
				continue
			}
			return aggregates.Tombstone(ctx, tx, b, at, e)
		}
		return aggregates.NotFoundError(fmt.Sprintf("node %s on %s", id, b.Name))
	})
	if err != nil {
		return err
	}
	s.log.Info("node deleted", "branch", b.Name, "node_id", id)
	return nil
}
