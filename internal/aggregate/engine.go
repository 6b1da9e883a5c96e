// Package aggregate evaluates aggregation trees over resolved object sets.
//
// Evaluation has two phases. Compilation resolves every property, filter,
// dimension, metric and ordering against the set's scope and reports all
// violations together; nothing reaches the backend until the whole tree
// is valid. Execution then matches the set once and partitions the
// candidates top-down: each branch filter narrows its parent's candidates,
// each dimension buckets them, and each bucket recurses into the branch's
// sub-aggregations.
//
// Buckets of one dimension are evaluated concurrently. Results land in
// index-addressed slots and ordering is re-applied afterwards, so the
// output does not depend on completion order.
package aggregate

import (
	"context"
	"log/slog"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/osq/internal/backend"
	"github.com/roach88/osq/internal/bucket"
	"github.com/roach88/osq/internal/evaluator"
	"github.com/roach88/osq/internal/filter"
	"github.com/roach88/osq/internal/ir"
	"github.com/roach88/osq/internal/metric"
	"github.com/roach88/osq/internal/objectset"
	"github.com/roach88/osq/internal/ontology"
	"github.com/roach88/osq/internal/plan"
)

// DefaultMaxParallelism bounds the buckets of one dimension evaluated
// concurrently.
const DefaultMaxParallelism = 8

// Engine evaluates aggregations. It holds no per-request state and is
// safe for concurrent use.
type Engine struct {
	catalog            ontology.MetadataProvider
	filters            *filter.Compiler
	precisionThreshold int
	maxParallelism     int
	logger             *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithPrecisionThreshold sets the distinct count up to which cardinality
// metrics are exact.
//
// Default: metric.DefaultPrecisionThreshold.
func WithPrecisionThreshold(n int) Option {
	return func(e *Engine) {
		e.precisionThreshold = n
	}
}

// WithMaxParallelism bounds concurrent bucket evaluation. Values below 1
// evaluate buckets one at a time.
func WithMaxParallelism(n int) Option {
	return func(e *Engine) {
		e.maxParallelism = max(n, 1)
	}
}

// WithFilters compiles branch filters with c instead of a private
// compiler.
func WithFilters(c *filter.Compiler) Option {
	return func(e *Engine) {
		e.filters = c
	}
}

// WithLogger sets the logger used for aggregation diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// New creates an Engine over catalog.
func New(catalog ontology.MetadataProvider, opts ...Option) *Engine {
	e := &Engine{
		catalog:            catalog,
		precisionThreshold: metric.DefaultPrecisionThreshold,
		maxParallelism:     DefaultMaxParallelism,
		logger:             slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.filters == nil {
		e.filters = filter.NewCompiler(catalog)
	}
	return e
}

// Options are the per-request inputs of Evaluate.
type Options struct {
	ExecutionMode objectset.ExecutionMode
	Context       objectset.Context

	// Snapshot is the backend snapshot candidates are read at.
	Snapshot int64
}

// Compiled is an aggregation tree validated against the scope of one
// resolved set.
type Compiled struct {
	set  *evaluator.ResolvedSet
	root *node
}

// Compile validates agg against rs without touching a backend.
func (e *Engine) Compile(agg objectset.RootAggregation, rs *evaluator.ResolvedSet, octx objectset.Context) (*Compiled, error) {
	c := &compiler{catalog: e.catalog, filters: e.filters, scope: rs.Scope, octx: octx}
	root := c.root(agg)
	if err := c.errs.ErrOrNil(); err != nil {
		return nil, err
	}
	return &Compiled{set: rs, root: root}, nil
}

// Evaluate computes agg over the members of rs.
func (e *Engine) Evaluate(ctx context.Context, b backend.Backend, agg objectset.RootAggregation, rs *evaluator.ResolvedSet, opts Options) (*Result, error) {
	compiled, err := e.Compile(agg, rs, opts.Context)
	if err != nil {
		return nil, err
	}
	return e.Execute(ctx, b, compiled, opts)
}

// Execute runs a compiled aggregation on b.
func (e *Engine) Execute(ctx context.Context, b backend.Backend, compiled *Compiled, opts Options) (*Result, error) {
	rs, root := compiled.set, compiled.root
	r := &run{
		Engine:  e,
		backend: b,
		metric: metric.Options{
			PreferSpeed:        opts.ExecutionMode == objectset.PreferSpeed,
			PrecisionThreshold: e.precisionThreshold,
		},
	}
	matched, err := b.Match(ctx, backend.MatchRequest{
		Set:      rs.Plan,
		Branch:   opts.Context.BranchOrDefault(),
		Snapshot: opts.Snapshot,
		Links:    root.links(),
		Metric:   r.metric,
	})
	if err != nil {
		return nil, err
	}
	r.links = matched.Links

	cands := make([]*plan.Object, len(matched.Objects))
	for i := range matched.Objects {
		cands[i] = &matched.Objects[i]
	}
	metrics, mExact, err := r.metrics(ctx, root.metrics, cands)
	if err != nil {
		return nil, err
	}
	subs, sExact, err := r.subAggregations(ctx, root.subs, cands)
	if err != nil {
		return nil, err
	}

	res := &Result{Metrics: metrics, SubAggregations: subs, Accuracy: Accurate, Stats: matched.Stats}
	if !(matched.Exact && mExact && sExact) {
		res.Accuracy = Approximate
	}
	e.logger.Debug("aggregated object set",
		"candidates", len(cands),
		"accuracy", res.Accuracy,
		"objects_scanned", matched.Stats.ObjectsScanned,
	)
	return res, nil
}

// links returns every link type a branch filter of the tree tests for
// presence.
func (n *node) links() []string {
	var out []string
	var visit func(*node)
	visit = func(n *node) {
		if n.filter != nil {
			out = append(out, plan.Links(n.filter)...)
		}
		for _, s := range n.subs {
			visit(s)
		}
	}
	visit(n)
	slices.Sort(out)
	return slices.Compact(out)
}

// run is the execution state of one Evaluate call.
type run struct {
	*Engine
	backend backend.Backend
	links   filter.LinkIndex
	metric  metric.Options
}

func (r *run) subAggregations(ctx context.Context, nodes []*node, cands []*plan.Object) (map[string]*Group, bool, error) {
	if len(nodes) == 0 {
		return nil, true, nil
	}
	out := make(map[string]*Group, len(nodes))
	exact := true
	for _, n := range nodes {
		g, ok, err := r.group(ctx, n, cands)
		if err != nil {
			return nil, false, err
		}
		out[n.name] = g
		exact = exact && ok
	}
	return out, exact, nil
}

// group evaluates n over the candidates its parent passed down.
func (r *run) group(ctx context.Context, n *node, cands []*plan.Object) (*Group, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if n.filter != nil {
		kept := make([]*plan.Object, 0, len(cands))
		for _, o := range cands {
			if filter.Match(n.filter, o, r.links) {
				kept = append(kept, o)
			}
		}
		cands = kept
	}

	if n.dimension == nil {
		metrics, mExact, err := r.metrics(ctx, n.metrics, cands)
		if err != nil {
			return nil, false, err
		}
		subs, sExact, err := r.subAggregations(ctx, n.subs, cands)
		if err != nil {
			return nil, false, err
		}
		return &Group{Metrics: metrics, SubAggregations: subs}, mExact && sExact, nil
	}

	items := make([]bucket.Item, len(cands))
	for i, o := range cands {
		if n.dimension.objectType {
			items[i] = bucket.Item{Values: []ir.Value{ir.String(o.ObjectType)}}
		} else {
			items[i] = bucket.Item{Values: ir.Elements(o.Value(n.dimension.field))}
		}
	}
	assignment, err := r.backend.Bucket(ctx, n.dimension.spec, items)
	if err != nil {
		return nil, false, err
	}

	buckets := make([]*Bucket, len(assignment.Buckets))
	exact := make([]bool, len(assignment.Buckets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.maxParallelism)
	for i, ab := range assignment.Buckets {
		g.Go(func() error {
			members := make([]*plan.Object, len(ab.Members))
			for j, m := range ab.Members {
				members[j] = cands[m]
			}
			metrics, mExact, err := r.metrics(gctx, n.metrics, members)
			if err != nil {
				return err
			}
			subs, sExact, err := r.subAggregations(gctx, n.subs, members)
			if err != nil {
				return err
			}
			buckets[i] = &Bucket{Key: ab.Key, Count: len(members), Metrics: metrics, SubAggregations: subs, order: ab.Order}
			exact[i] = mExact && sExact
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, false, err
	}

	// The null-value bucket stays last under every ordering.
	var null *Bucket
	if k := len(buckets); k > 0 && assignment.Buckets[k-1].IsNull() {
		null, buckets = buckets[k-1], buckets[:k-1]
	}
	slices.SortStableFunc(buckets, func(a, b *Bucket) int { return compareOrder(n.ordering, a, b) })
	if null != nil {
		buckets = append(buckets, null)
	}

	return &Group{Buckets: buckets, ItemsInOtherBuckets: assignment.Other}, !slices.Contains(exact, false), nil
}

func (r *run) metrics(ctx context.Context, metrics []namedMetric, cands []*plan.Object) (ir.Object, bool, error) {
	out := make(ir.Object, len(metrics))
	exact := true
	for _, m := range metrics {
		var values []ir.Value
		if m.field != nil {
			for _, o := range cands {
				values = append(values, ir.Elements(o.Value(*m.field))...)
			}
		}
		res, err := r.backend.Metric(ctx, m.spec, len(cands), values, r.metric)
		if err != nil {
			return nil, false, err
		}
		out[m.name] = res.Value
		exact = exact && res.Exact
	}
	return out, exact, nil
}
