// Package evaluator resolves ObjectSet expressions into backend plans.
//
// Evaluation is a bottom-up tree walk. Every node first resolves its
// children, then combines their scopes and plans per the node's operator.
// Nothing is materialized: the result is a plan.Set that a backend
// executes, plus the type scope downstream filters, sorts and aggregations
// resolve properties against.
//
// Evaluation is all-or-nothing. Any child failure aborts the whole tree and
// the error carries the path of the offending sub-expression, e.g.
// "$.intersected.objectSets[1].filtered.filter".
package evaluator

import (
	"context"
	"log/slog"
	"maps"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/osq/internal/derived"
	"github.com/roach88/osq/internal/filter"
	"github.com/roach88/osq/internal/objectset"
	"github.com/roach88/osq/internal/ontology"
	"github.com/roach88/osq/internal/plan"
	"github.com/roach88/osq/internal/qerr"
)

// MaxK is the largest number of neighbours a kNN node may request.
const MaxK = 100

// DefaultMaxParallelism bounds the sibling branches resolved concurrently
// at one combination node.
const DefaultMaxParallelism = 8

// SavedSetResolver looks up saved object set definitions by RID.
type SavedSetResolver interface {
	// SavedSet returns the definition saved under rid. ok is false when no
	// such set exists.
	SavedSet(ctx context.Context, rid string) (def objectset.ObjectSet, ok bool, err error)
}

// ResolvedSet is an evaluated object set: its type scope and the plan a
// backend executes to enumerate its members.
type ResolvedSet struct {
	Scope *ontology.Scope
	Plan  plan.Set
}

// Evaluator resolves object set expressions. It is safe for concurrent use;
// all per-request state lives on the stack of Evaluate.
type Evaluator struct {
	catalog        ontology.MetadataProvider
	filters        *filter.Compiler
	derived        *derived.Resolver
	saved          SavedSetResolver
	maxNodes       int
	maxParallelism int
	logger         *slog.Logger
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithSavedSets resolves Referenced nodes through r. Without it every
// Referenced node is OBJECT_SET_NOT_FOUND.
func WithSavedSets(r SavedSetResolver) Option {
	return func(e *Evaluator) {
		e.saved = r
	}
}

// WithMaxNodes sets the node budget per request.
//
// Default: 10,000 nodes (DefaultMaxNodes).
func WithMaxNodes(n int) Option {
	return func(e *Evaluator) {
		e.maxNodes = n
	}
}

// WithMaxParallelism bounds concurrent sibling resolution per combination
// node. Values below 1 resolve siblings one at a time.
func WithMaxParallelism(n int) Option {
	return func(e *Evaluator) {
		e.maxParallelism = max(n, 1)
	}
}

// WithLogger sets the logger used for evaluation diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(e *Evaluator) {
		e.logger = l
	}
}

// New creates an Evaluator over catalog.
func New(catalog ontology.MetadataProvider, opts ...Option) *Evaluator {
	e := &Evaluator{
		catalog:        catalog,
		filters:        filter.NewCompiler(catalog),
		derived:        derived.NewResolver(catalog),
		maxNodes:       DefaultMaxNodes,
		maxParallelism: DefaultMaxParallelism,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Filters returns the filter compiler the evaluator compiles with.
func (e *Evaluator) Filters() *filter.Compiler { return e.filters }

// Derived returns the derived property resolver the evaluator resolves
// with.
func (e *Evaluator) Derived() *derived.Resolver { return e.derived }

// Evaluate resolves s under octx.
func (e *Evaluator) Evaluate(ctx context.Context, s objectset.ObjectSet, octx objectset.Context) (*ResolvedSet, error) {
	ev := &evaluation{Evaluator: e, octx: octx, budget: newNodeBudget(e.maxNodes)}
	rs, err := ev.eval(ctx, s, objectset.RootPath, nil)
	if err != nil {
		return nil, err
	}
	e.logger.Debug("resolved object set",
		"scope", rs.Scope.String(),
		"nodes", ev.budget.Used(),
	)
	return rs, nil
}

// evaluation is the state of one Evaluate call.
type evaluation struct {
	*Evaluator
	octx   objectset.Context
	budget *nodeBudget
}

// eval resolves s at path. refs is the chain of saved set RIDs being
// expanded above s.
func (ev *evaluation) eval(ctx context.Context, s objectset.ObjectSet, path string, refs []string) (*ResolvedSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil {
		return nil, qerr.Validation(qerr.CodeInvalidExpression, "object set is missing").At(path)
	}
	if err := ev.budget.spend(path); err != nil {
		return nil, err
	}
	at := func(field string) string { return objectset.Child(path, objectset.TypeName(s), field) }

	switch n := s.(type) {
	case objectset.Base:
		scope, err := ontology.ObjectTypeScope(ev.catalog, n.ObjectType)
		if err != nil {
			return nil, qerr.WithPath(err, at("objectType"))
		}
		return &ResolvedSet{Scope: scope, Plan: plan.Scan{ObjectTypes: scope.Types()}}, nil

	case objectset.InterfaceBase:
		scope, err := ontology.InterfaceScope(ev.catalog, n.InterfaceType)
		if err != nil {
			return nil, qerr.WithPath(err, at("interfaceType"))
		}
		return &ResolvedSet{Scope: scope, Plan: plan.Scan{ObjectTypes: scope.Types()}}, nil

	case objectset.Static:
		return ev.static(n, path)

	case objectset.Referenced:
		return ev.referenced(ctx, n, path, refs)

	case objectset.Filtered:
		child, err := ev.eval(ctx, n.ObjectSet, at("objectSet"), refs)
		if err != nil {
			return nil, err
		}
		if n.Filter == nil {
			return nil, qerr.Validation(qerr.CodeInvalidExpression, "filtered object set has no filter").At(at("filter"))
		}
		pred, err := ev.filters.Compile(n.Filter, child.Scope, ev.octx, at("filter"))
		if err != nil {
			return nil, err
		}
		if _, all := pred.(plan.True); all {
			return child, nil
		}
		return &ResolvedSet{Scope: child.Scope, Plan: plan.Filter{Input: child.Plan, Predicate: pred}}, nil

	case objectset.Intersected:
		children, err := ev.evalAll(ctx, n.ObjectSets, at("objectSets"), refs)
		if err != nil {
			return nil, err
		}
		if len(children) == 1 {
			return children[0], nil
		}
		return &ResolvedSet{Scope: ontology.Intersect(scopes(children)...), Plan: plan.Intersect{Inputs: plans(children)}}, nil

	case objectset.Unioned:
		children, err := ev.evalAll(ctx, n.ObjectSets, at("objectSets"), refs)
		if err != nil {
			return nil, err
		}
		if len(children) == 1 {
			return children[0], nil
		}
		return &ResolvedSet{Scope: ontology.Union(scopes(children)...), Plan: plan.Union{Inputs: plans(children)}}, nil

	case objectset.Subtracted:
		children, err := ev.evalAll(ctx, n.ObjectSets, at("objectSets"), refs)
		if err != nil {
			return nil, err
		}
		if len(children) == 1 {
			return children[0], nil
		}
		return &ResolvedSet{Scope: children[0].Scope, Plan: plan.Subtract{Inputs: plans(children)}}, nil

	case objectset.SearchAround:
		child, err := ev.eval(ctx, n.ObjectSet, at("objectSet"), refs)
		if err != nil {
			return nil, err
		}
		rs, err := ev.searchAround(child, n.Link, n.Side)
		return rs, qerr.WithPath(err, at("link"))

	case objectset.SoftLinkSearchAround:
		child, err := ev.eval(ctx, n.ObjectSet, at("objectSet"), refs)
		if err != nil {
			return nil, err
		}
		rs, err := ev.softLinkSearchAround(child, n.Link, n.Side)
		return rs, qerr.WithPath(err, at("link"))

	case objectset.InterfaceLinkSearchAround:
		child, err := ev.eval(ctx, n.ObjectSet, at("objectSet"), refs)
		if err != nil {
			return nil, err
		}
		rs, err := ev.interfaceLinkSearchAround(child, n.InterfaceLink, n.Side)
		return rs, qerr.WithPath(err, at("interfaceLink"))

	case objectset.AsType:
		child, err := ev.eval(ctx, n.ObjectSet, at("objectSet"), refs)
		if err != nil {
			return nil, err
		}
		rs, err := ev.asType(child, n.EntityType)
		return rs, qerr.WithPath(err, at("entityType"))

	case objectset.AsBaseObjectTypes:
		child, err := ev.eval(ctx, n.ObjectSet, at("objectSet"), refs)
		if err != nil {
			return nil, err
		}
		scope := child.Scope.StripViews()
		scope.Derived = maps.Clone(child.Scope.Derived)
		return &ResolvedSet{Scope: scope, Plan: child.Plan}, nil

	case objectset.Knn:
		child, err := ev.eval(ctx, n.ObjectSet, at("objectSet"), refs)
		if err != nil {
			return nil, err
		}
		return ev.knn(child, n.Property, n.K, objectset.VectorLiteral{Vector: n.Vector}, at("k"), at("property"), at("vector"))

	case objectset.KnnV2:
		child, err := ev.eval(ctx, n.ObjectSet, at("objectSet"), refs)
		if err != nil {
			return nil, err
		}
		return ev.knn(child, n.Property, n.K, n.Query, at("k"), at("property"), at("query"))

	case objectset.MethodInput:
		return nil, qerr.NotSupported("methodInput %q can only be evaluated inside a method definition", n.ID).At(path)

	case objectset.WithProperties:
		child, err := ev.eval(ctx, n.ObjectSet, at("objectSet"), refs)
		if err != nil {
			return nil, err
		}
		fields, err := ev.derived.ResolveForScope(n.DerivedProperties, child.Scope, at("derivedProperties"))
		if err != nil {
			return nil, err
		}
		if len(fields) == 0 {
			return child, nil
		}
		return &ResolvedSet{
			Scope: child.Scope.WithDerived(derived.ScopeFields(fields)...),
			Plan:  plan.Derive{Input: child.Plan, Fields: fields},
		}, nil

	default:
		return nil, qerr.NotSupported("object set node %T", s).At(path)
	}
}

// evalAll resolves sibling sets concurrently. Results land in
// index-addressed slots so the combination is independent of completion
// order; the first failure cancels the remaining siblings.
func (ev *evaluation) evalAll(ctx context.Context, sets []objectset.ObjectSet, path string, refs []string) ([]*ResolvedSet, error) {
	if len(sets) == 0 {
		return nil, qerr.Validation(qerr.CodeInvalidExpression, "set operation needs at least one object set").At(path)
	}
	out := make([]*ResolvedSet, len(sets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ev.maxParallelism)
	for i, s := range sets {
		g.Go(func() error {
			rs, err := ev.eval(gctx, s, objectset.Elem(path, i), refs)
			if err != nil {
				return err
			}
			out[i] = rs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (ev *evaluation) static(n objectset.Static, path string) (*ResolvedSet, error) {
	at := func(field string) string { return objectset.Child(path, "static", field) }

	types := make(map[string]bool)
	if n.ObjectType != "" {
		if _, err := ontology.RequireObjectType(ev.catalog, n.ObjectType); err != nil {
			return nil, qerr.WithPath(err, at("objectType"))
		}
		types[n.ObjectType] = true
	}
	seen := make(map[plan.Key]bool, len(n.Objects))
	keys := make([]plan.Key, 0, len(n.Objects))
	var errs qerr.MultiError
	for i, loc := range n.Objects {
		locPath := objectset.Elem(at("objects"), i)
		objectType := loc.ObjectType
		if objectType == "" {
			objectType = n.ObjectType
		}
		switch {
		case objectType == "":
			errs.Append(qerr.Validation(qerr.CodeInvalidArgument, "object locator has no object type").At(locPath))
			continue
		case n.ObjectType != "" && objectType != n.ObjectType:
			errs.Append(qerr.Validation(qerr.CodeInvalidArgument,
				"object locator of type %q in a static set of %q", objectType, n.ObjectType).At(locPath))
			continue
		case loc.PrimaryKey == "":
			errs.Append(qerr.Validation(qerr.CodeInvalidArgument, "object locator has no primary key").At(locPath))
			continue
		}
		if _, err := ontology.RequireObjectType(ev.catalog, objectType); err != nil {
			errs.Append(qerr.WithPath(err, locPath))
			continue
		}
		types[objectType] = true
		k := plan.Key{ObjectType: objectType, PrimaryKey: loc.PrimaryKey}
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	if err := errs.ErrOrNil(); err != nil {
		return nil, err
	}
	slices.SortFunc(keys, plan.CompareKeys)
	return &ResolvedSet{
		Scope: ontology.UnionScope(slices.Sorted(maps.Keys(types))),
		Plan:  plan.Static{Keys: keys},
	}, nil
}

func (ev *evaluation) referenced(ctx context.Context, n objectset.Referenced, path string, refs []string) (*ResolvedSet, error) {
	if slices.Contains(refs, n.RID) {
		cycle := append(slices.Clone(refs), n.RID)
		return nil, qerr.Validation(qerr.CodeReferenceCycle,
			"saved object set %q references itself", n.RID).At(path).With("cycle", strings.Join(cycle, " -> "))
	}
	notFound := qerr.Resource(qerr.CodeObjectSetNotFound, "saved object set %q not found", n.RID).
		At(path).With("rid", n.RID)
	if ev.saved == nil {
		return nil, notFound
	}
	def, ok, err := ev.saved.SavedSet(ctx, n.RID)
	if err != nil {
		return nil, qerr.WithPath(err, path)
	}
	if !ok {
		return nil, notFound
	}
	return ev.eval(ctx, def, objectset.Child(path, "referenced", "definition"), append(slices.Clone(refs), n.RID))
}

func (ev *evaluation) asType(child *ResolvedSet, t objectset.TypeRef) (*ResolvedSet, error) {
	var (
		scope *ontology.Scope
		err   error
	)
	switch t.Kind {
	case objectset.KindInterface:
		scope, err = ontology.AsInterface(ev.catalog, child.Scope, t.APIName)
	case objectset.KindObjectType:
		scope, err = ontology.AsObjectType(ev.catalog, child.Scope, t.APIName)
	default:
		return nil, qerr.Validation(qerr.CodeInvalidArgument, "unknown entity type kind %q", t.Kind)
	}
	if err != nil {
		return nil, err
	}
	if len(scope.Members) == 0 {
		return nil, qerr.Validation(qerr.CodeIllegalCast,
			"no object type of %s is a %s %q", child.Scope, t.Kind, t.APIName).With("entityType", t.APIName)
	}
	return &ResolvedSet{Scope: scope, Plan: plan.Restrict{Input: child.Plan, ObjectTypes: scope.Types()}}, nil
}

// knn resolves a nearest-neighbour node. The paths locate the k, property
// and query fields of the node.
func (ev *evaluation) knn(child *ResolvedSet, property string, k int, query objectset.VectorQuery, kPath, propertyPath, queryPath string) (*ResolvedSet, error) {
	if k < 1 || k > MaxK {
		return nil, qerr.Validation(qerr.CodeInvalidKnn, "k must be between 1 and %d, got %d", MaxK, k).At(kPath)
	}
	f, err := ontology.ResolveProperty(ev.catalog, property, child.Scope, ontology.UsageSelect)
	if err != nil {
		return nil, qerr.WithPath(err, propertyPath)
	}
	if f.Type.Base != ontology.TypeVector {
		return nil, qerr.Validation(qerr.CodeInvalidKnn,
			"property %q is %s, not a vector", property, f.Type.Base).At(propertyPath)
	}
	node := plan.Nearest{Input: child.Plan, Field: f, K: k, Similarity: f.Type.VectorSimilarity}
	switch q := query.(type) {
	case objectset.VectorLiteral:
		if len(q.Vector) != f.Type.VectorDimension {
			return nil, qerr.Validation(qerr.CodeInvalidKnn,
				"query vector has %d dimensions, property %q has %d", len(q.Vector), property, f.Type.VectorDimension).
				At(queryPath)
		}
		node.Vector = slices.Clone(q.Vector)
	case objectset.TextQuery:
		if q.Text == "" {
			return nil, qerr.Validation(qerr.CodeInvalidKnn, "text query is empty").At(queryPath)
		}
		node.Text = q.Text
	default:
		return nil, qerr.Validation(qerr.CodeInvalidKnn, "kNN node has no query").At(queryPath)
	}
	return &ResolvedSet{Scope: child.Scope, Plan: node}, nil
}

func scopes(sets []*ResolvedSet) []*ontology.Scope {
	out := make([]*ontology.Scope, len(sets))
	for i, s := range sets {
		out[i] = s.Scope
	}
	return out
}

func plans(sets []*ResolvedSet) []plan.Set {
	out := make([]plan.Set, len(sets))
	for i, s := range sets {
		out[i] = s.Plan
	}
	return out
}
