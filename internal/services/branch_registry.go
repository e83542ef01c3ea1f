package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"github.com/yungbote/branchgraph/internal/data/aggregates"
	branchrepo "github.com/yungbote/branchgraph/internal/data/repos/branch"
	domainagg "github.com/yungbote/branchgraph/internal/domain/aggregates"
	domainbranch "github.com/yungbote/branchgraph/internal/domain/branch"
	domaingraph "github.com/yungbote/branchgraph/internal/domain/graph"
	"github.com/yungbote/branchgraph/internal/domain/schema"
	"github.com/yungbote/branchgraph/internal/domain/timestamp"
	"github.com/yungbote/branchgraph/internal/observability"
	"github.com/yungbote/branchgraph/internal/pkg/dbctx"
	"github.com/yungbote/branchgraph/internal/platform/logger"
	"github.com/yungbote/branchgraph/internal/realtime/bus"
)

type CreateBranchInput struct {
	Name        string              `json:"name"`
	Description string              `json:"description,omitempty"`
	At          timestamp.Timestamp `json:"at,omitempty"`
}

// BranchRegistry is the process-wide view of the branch catalog. It is built
// once at startup, kept current by its own writes and by bus events from
// other processes, and passed to every component that resolves a branch.
type BranchRegistry interface {
	Load(ctx context.Context) error
	Branch(ctx context.Context, name string) (domainbranch.Branch, error)
	Default() domainbranch.Branch
	List(ctx context.Context) []domainbranch.Branch
	Create(ctx context.Context, in CreateBranchInput) (domainbranch.Branch, error)
	Delete(ctx context.Context, name string, at timestamp.Timestamp) error
	// MoveBranchedFrom advances branched_from with a compare-and-set on the
	// catalog row.
	MoveBranchedFrom(ctx context.Context, name string, expected, next timestamp.Timestamp, evt bus.EventType) (domainbranch.Branch, error)
	Schemas() *schema.Cache
	StartSync(ctx context.Context) error
}

type BranchRegistryDeps struct {
	DB            *gorm.DB
	Log           *logger.Logger
	Repo          branchrepo.BranchRepo
	Graph         aggregates.BaseDeps
	Schemas       *schema.Cache
	Bus           bus.Bus
	Metrics       *observability.Metrics
	DefaultBranch string
}

type branchRegistry struct {
	db      *gorm.DB
	log     *logger.Logger
	repo    branchrepo.BranchRepo
	graph   aggregates.BaseDeps
	schemas *schema.Cache
	bus     bus.Bus
	metrics *observability.Metrics
	source  string

	defaultName string

	mu       sync.RWMutex
	branches map[string]domainbranch.Branch

	sf singleflight.Group
}

func NewBranchRegistry(deps BranchRegistryDeps) BranchRegistry {
	name := strings.TrimSpace(deps.DefaultBranch)
	if name == "" {
		name = "main"
	}
	schemas := deps.Schemas
	if schemas == nil {
		schemas = schema.NewCache(name)
	}
	return &branchRegistry{
		db:          deps.DB,
		log:         deps.Log.With("service", "BranchRegistry"),
		repo:        deps.Repo,
		graph:       deps.Graph,
		schemas:     schemas,
		bus:         deps.Bus,
		metrics:     deps.Metrics,
		source:      uuid.NewString(),
		defaultName: name,
		branches:    map[string]domainbranch.Branch{},
	}
}

func (r *branchRegistry) dbc(ctx context.Context) dbctx.Context {
	return dbctx.New(ctx, r.db)
}

// Load makes sure the default and global branches exist, then reads the
// whole catalog.
func (r *branchRegistry) Load(ctx context.Context) error {
	if r.repo == nil {
		return fmt.Errorf("branch registry not configured")
	}
	now := timestamp.Now()
	err := dbctx.Transaction(r.dbc(ctx), nil, func(dbc dbctx.Context) error {
		if err := r.repo.EnsureExists(dbc, domainbranch.NewDefault(r.defaultName, now)); err != nil {
			return err
		}
		return r.repo.EnsureExists(dbc, domainbranch.NewGlobal(now))
	})
	if err != nil {
		return aggregates.MapError("Branches.Registry.Load", err)
	}
	return r.reload(ctx)
}

func (r *branchRegistry) reload(ctx context.Context) error {
	_, err, _ := r.sf.Do("reload", func() (any, error) {
		rows, err := r.repo.List(r.dbc(ctx))
		if err != nil {
			return nil, aggregates.MapError("Branches.Registry.Reload", err)
		}
		next := make(map[string]domainbranch.Branch, len(rows))
		for _, b := range rows {
			if b == nil {
				continue
			}
			if b.IsDefault && b.Name != r.defaultName {
				r.log.Warn("catalog default branch differs from configuration", "catalog", b.Name, "configured", r.defaultName)
			}
			next[b.Name] = *b
			if b.Name != r.defaultName && !b.IsGlobal {
				r.schemas.Copy(r.defaultName, b.Name)
			}
		}
		r.mu.Lock()
		r.branches = next
		r.mu.Unlock()
		r.log.Debug("branch registry reloaded", "branches", len(next))
		return nil, nil
	})
	return err
}

func (r *branchRegistry) lookup(name string) (domainbranch.Branch, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.branches[name]
	return b, ok
}

// Branch returns the current view of name; an empty name is the default
// branch. A miss reloads the catalog once before giving up.
func (r *branchRegistry) Branch(ctx context.Context, name string) (domainbranch.Branch, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = r.defaultName
	}
	if b, ok := r.lookup(name); ok {
		return b, nil
	}
	if err := r.reload(ctx); err != nil {
		return domainbranch.Branch{}, err
	}
	if b, ok := r.lookup(name); ok {
		return b, nil
	}
	return domainbranch.Branch{}, domainagg.NotFound("Branches.Registry.Branch", "branch %s not found", name)
}

func (r *branchRegistry) Default() domainbranch.Branch {
	if b, ok := r.lookup(r.defaultName); ok {
		return b
	}
	return domainbranch.NewDefault(r.defaultName, timestamp.Now())
}

// List returns every branch except the global pseudo-branch, default first.
func (r *branchRegistry) List(context.Context) []domainbranch.Branch {
	r.mu.RLock()
	out := make([]domainbranch.Branch, 0, len(r.branches))
	for _, b := range r.branches {
		if b.IsGlobal {
			continue
		}
		out = append(out, b)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].HierarchyLevel != out[j].HierarchyLevel {
			return out[i].HierarchyLevel < out[j].HierarchyLevel
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func (r *branchRegistry) Schemas() *schema.Cache { return r.schemas }

func (r *branchRegistry) Create(ctx context.Context, in CreateBranchInput) (out domainbranch.Branch, err error) {
	const op = "Branches.Registry.Create"
	name := strings.TrimSpace(in.Name)
	ctx, span := observability.StartSpan(ctx, op, attribute.String("branch", name))
	defer func() { observability.EndSpan(span, err) }()

	if err := domainbranch.ValidateName(name); err != nil {
		return out, err
	}
	if _, ok := r.lookup(name); ok {
		return out, domainagg.NewError(domainagg.CodeConflict, op, fmt.Sprintf("branch %s already exists", name), nil)
	}
	origin := r.Default()
	at := in.At
	if at.IsZero() {
		at = timestamp.Now()
	}
	b := domainbranch.NewChild(name, origin, at)
	b.Description = strings.TrimSpace(in.Description)
	if hash, ok := r.schemas.Copy(origin.Name, name); ok {
		b.SchemaHash = hash
	}
	if err := r.repo.Create(r.dbc(ctx), b); err != nil {
		r.schemas.Drop(name)
		return out, aggregates.MapError(op, err)
	}

	r.mu.Lock()
	r.branches[b.Name] = b
	r.mu.Unlock()
	r.log.Info("branch created", "branch", b.Name, "origin", b.OriginBranch, "branched_from", b.BranchedFrom.String())
	r.publish(ctx, bus.EventBranchCreated, b.Name, at)
	return b, nil
}

// Delete closes every open edge owned by the branch, then removes it from
// the catalog. The closed edges stay queryable at earlier times.
func (r *branchRegistry) Delete(ctx context.Context, name string, at timestamp.Timestamp) (err error) {
	const op = "Branches.Registry.Delete"
	ctx, span := observability.StartSpan(ctx, op, attribute.String("branch", name))
	defer func() { observability.EndSpan(span, err) }()

	b, err := r.Branch(ctx, name)
	if err != nil {
		return err
	}
	if b.IsDefault || b.IsGlobal {
		return domainagg.NewError(domainagg.CodeValidation, op, fmt.Sprintf("branch %s cannot be deleted", b.Name), nil)
	}
	if at.IsZero() {
		at = timestamp.Now()
	}

	closed := 0
	err = aggregates.ExecuteWrite(ctx, r.graph, op, func(tx domaingraph.Tx) error {
		closed = 0
		open, err := tx.Edges(ctx, domaingraph.EdgeQuery{Branches: []string{b.Name}, OpenOnly: true})
		if err != nil {
			return err
		}
		for _, e := range open {
			if err := tx.CloseEdge(ctx, e.ID, timestamp.Max(at, e.Props.From)); err != nil {
				return err
			}
			closed++
		}
		return nil
	})
	if err != nil {
		return err
	}
	ok, err := r.repo.Delete(r.dbc(ctx), b.Name)
	if err != nil {
		return aggregates.MapError(op, err)
	}
	if !ok {
		return domainagg.NewError(domainagg.CodeNotFound, op, fmt.Sprintf("branch %s not found", b.Name), nil)
	}

	r.mu.Lock()
	delete(r.branches, b.Name)
	r.mu.Unlock()
	r.schemas.Drop(b.Name)
	r.log.Info("branch deleted", "branch", b.Name, "edges_closed", closed)
	r.publish(ctx, bus.EventBranchDeleted, b.Name, at)
	return nil
}

func (r *branchRegistry) MoveBranchedFrom(ctx context.Context, name string, expected, next timestamp.Timestamp, evt bus.EventType) (domainbranch.Branch, error) {
	const op = "Branches.Registry.MoveBranchedFrom"
	b, err := r.Branch(ctx, name)
	if err != nil {
		return domainbranch.Branch{}, err
	}
	if b.IsDefault || b.IsGlobal {
		return domainbranch.Branch{}, domainagg.NewError(domainagg.CodeValidation, op, fmt.Sprintf("branch %s has no origin to rebase on", b.Name), nil)
	}
	ok, err := r.repo.MoveBranchedFrom(r.dbc(ctx), b.Name, expected, next)
	if err != nil {
		return domainbranch.Branch{}, aggregates.MapError(op, err)
	}
	if err := aggregates.RequireCASSuccess(ok, "branch "+b.Name+" moved concurrently"); err != nil {
		return domainbranch.Branch{}, aggregates.MapError(op, err)
	}

	r.mu.Lock()
	b = r.branches[b.Name]
	b.BranchedFrom = next
	r.branches[b.Name] = b
	r.mu.Unlock()
	r.log.Info("branch rebased", "branch", b.Name, "branched_from", next.String())
	r.publish(ctx, evt, b.Name, next)
	return b, nil
}

func (r *branchRegistry) publish(ctx context.Context, typ bus.EventType, name string, at timestamp.Timestamp) {
	r.metrics.IncBranchEvent(string(typ))
	if r.bus == nil {
		return
	}
	evt := bus.BranchEvent{Type: typ, Branch: name, At: at, Source: r.source}
	if err := r.bus.Publish(context.WithoutCancel(ctx), evt); err != nil {
		r.log.Warn("branch event publish failed", "type", typ, "branch", name, "error", err)
	}
}

// StartSync reloads the catalog whenever another process reports a branch
// change.
func (r *branchRegistry) StartSync(ctx context.Context) error {
	if r.bus == nil {
		return nil
	}
	return r.bus.StartForwarder(ctx, func(evt bus.BranchEvent) {
		if evt.Source == r.source {
			return
		}
		if evt.Type == bus.EventBranchDeleted {
			r.schemas.Drop(evt.Branch)
		}
		if err := r.reload(ctx); err != nil {
			r.log.Warn("branch registry reload failed", "type", evt.Type, "branch", evt.Branch, "error", err)
		}
	})
}
