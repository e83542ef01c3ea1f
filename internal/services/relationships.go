package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/yungbote/branchgraph/internal/data/aggregates"
	domainagg "github.com/yungbote/branchgraph/internal/domain/aggregates"
	domaingraph "github.com/yungbote/branchgraph/internal/domain/graph"
	"github.com/yungbote/branchgraph/internal/domain/schema"
	"github.com/yungbote/branchgraph/internal/domain/timestamp"
	"github.com/yungbote/branchgraph/internal/observability"
	"github.com/yungbote/branchgraph/internal/platform/logger"
)

// ErrInvalidCardinalityUsage is returned when a single-valued relationship is
// iterated or a multi-valued one is read as a single peer.
var ErrInvalidCardinalityUsage = errors.New("invalid cardinality usage")

type RelationshipPeer struct {
	PeerID         string                   `json:"peer_id"`
	RelationshipID string                   `json:"relationship_id"`
	Properties     domainagg.PeerProperties `json:"properties"`
}

// RelationshipField is one relationship of one node as resolved on a branch
// at a time.
type RelationshipField struct {
	Schema schema.RelationshipSchema `json:"schema"`
	Peers  []RelationshipPeer        `json:"peers"`
}

func cardinalityError(field string, c schema.Cardinality, use string) error {
	return domainagg.NewError(domainagg.CodeValidation, "Nodes.RelationshipField", fmt.Sprintf("%s has cardinality %s, %s", field, c, use), ErrInvalidCardinalityUsage)
}

// Peer returns the single peer of a cardinality-one field.
func (f RelationshipField) Peer() (RelationshipPeer, bool, error) {
	if f.Schema.Cardinality != schema.CardinalityOne {
		return RelationshipPeer{}, false, cardinalityError(f.Schema.Name, f.Schema.Cardinality, "use Iter")
	}
	if len(f.Peers) == 0 {
		return RelationshipPeer{}, false, nil
	}
	return f.Peers[0], true, nil
}

// Iter returns every peer of a cardinality-many field.
func (f RelationshipField) Iter() ([]RelationshipPeer, error) {
	if f.Schema.Cardinality != schema.CardinalityMany {
		return nil, cardinalityError(f.Schema.Name, f.Schema.Cardinality, "use Peer")
	}
	return f.Peers, nil
}

type RelationshipService interface {
	Reconcile(ctx context.Context, in domainagg.ReconcileInput) (domainagg.ReconcileResult, error)
	Field(ctx context.Context, branch string, at timestamp.Timestamp, nodeID, field string) (RelationshipField, error)
}

type relationshipService struct {
	log      *logger.Logger
	store    domaingraph.Reader
	registry BranchRegistry
	agg      domainagg.RelationshipAggregate
	metrics  *observability.Metrics
}

func NewRelationshipService(baseLog *logger.Logger, store domaingraph.Reader, registry BranchRegistry, agg domainagg.RelationshipAggregate, metrics *observability.Metrics) RelationshipService {
	return &relationshipService{
		log:      baseLog.With("service", "RelationshipService"),
		store:    store,
		registry: registry,
		agg:      agg,
		metrics:  metrics,
	}
}

func (s *relationshipService) Reconcile(ctx context.Context, in domainagg.ReconcileInput) (out domainagg.ReconcileResult, err error) {
	ctx, span := observability.StartSpan(ctx, "Nodes.Relationship.Reconcile",
		attribute.String("branch", in.Branch),
		attribute.String("node_id", in.NodeID),
		attribute.String("field", in.Field),
	)
	defer func() { observability.EndSpan(span, err) }()

	out, err = s.agg.Reconcile(ctx, in)
	if err != nil {
		return out, err
	}
	s.metrics.AddReconcile(len(out.Created), len(out.Removed), len(out.Updated))
	return out, nil
}

func (s *relationshipService) Field(ctx context.Context, branch string, at timestamp.Timestamp, nodeID, field string) (RelationshipField, error) {
	const op = "Nodes.Relationship.Field"
	b, err := s.registry.Branch(ctx, branch)
	if err != nil {
		return RelationshipField{}, err
	}
	if at.IsZero() {
		at = timestamp.Now()
	}
	node, err := aggregates.RequireVertex(ctx, s.store, strings.TrimSpace(nodeID), domaingraph.VertexNode)
	if err != nil {
		return RelationshipField{}, aggregates.MapError(op, err)
	}
	rel, ok := s.registry.Schemas().Relationship(b.Name, node.NodeKind, field)
	if !ok {
		return RelationshipField{}, domainagg.Validation(op, "%s has no relationship %q", node.NodeKind, field)
	}
	peers, err := loadPeers(ctx, domaingraph.NewResolver(s.store, b.ResolutionSet(at)), node.ID, rel.Identifier)
	if err != nil {
		return RelationshipField{}, aggregates.MapError(op, err)
	}
	return RelationshipField{Schema: rel, Peers: peers}, nil
}

func loadPeers(ctx context.Context, resolver domaingraph.Resolver, nodeID, identifier string) ([]RelationshipPeer, error) {
	paths, err := resolver.Peers(ctx, nodeID, identifier, false)
	if err != nil {
		return nil, err
	}
	out := make([]RelationshipPeer, 0, len(paths))
	for _, p := range paths {
		props, err := resolver.Properties(ctx, p.RelationshipID)
		if err != nil {
			return nil, err
		}
		decoded, err := aggregates.ReadPeerProperties(ctx, resolver.R, props)
		if err != nil {
			return nil, err
		}
		out = append(out, RelationshipPeer{PeerID: p.PeerID, RelationshipID: p.RelationshipID, Properties: decoded})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PeerID < out[j].PeerID })
	return out, nil
}
