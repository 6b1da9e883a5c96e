package engine

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/roach88/osq/internal/aggregate"
	"github.com/roach88/osq/internal/backend"
	"github.com/roach88/osq/internal/derived"
	"github.com/roach88/osq/internal/evaluator"
	"github.com/roach88/osq/internal/objectset"
	"github.com/roach88/osq/internal/ontology"
	"github.com/roach88/osq/internal/paging"
	"github.com/roach88/osq/internal/plan"
	"github.com/roach88/osq/internal/qerr"
	"github.com/roach88/osq/internal/telemetry"
	"github.com/roach88/osq/internal/usage"
)

// Page size bounds used unless configured otherwise.
const (
	DefaultPageSize    = 100
	DefaultMaxPageSize = 10000
)

// Operation names, used as the telemetry operation label.
const (
	OpLoadPage       = "loadPage"
	OpLoadScroll     = "loadScroll"
	OpContinueScroll = "continueScroll"
	OpAggregate      = "aggregate"
	OpSuggest        = "suggest"
)

// Engine serves the external operations over a set of backends.
type Engine struct {
	catalog        ontology.MetadataProvider
	evaluator      *evaluator.Evaluator
	aggregator     *aggregate.Engine
	backends       map[backend.Kind]backend.Backend
	defaultBackend backend.Kind
	tokens         *paging.Codec
	scrolls        *paging.Arena[scrollState]
	scrollOpts     []paging.ArenaOption
	usage          *usage.Accountant
	metrics        *telemetry.Metrics
	logger         *slog.Logger

	defaultPageSize int
	maxPageSize     int
}

// Option configures an Engine.
type Option func(*Engine)

// WithBackend registers b under its kind. The first backend registered
// becomes the default unless WithDefaultBackend says otherwise.
func WithBackend(b backend.Backend) Option {
	return func(e *Engine) {
		if e.defaultBackend == "" {
			e.defaultBackend = b.Kind()
		}
		e.backends[b.Kind()] = b
	}
}

// WithDefaultBackend sets the backend used when a request names none.
func WithDefaultBackend(k backend.Kind) Option {
	return func(e *Engine) {
		e.defaultBackend = k
	}
}

// WithEvaluator sets the object set evaluator.
func WithEvaluator(ev *evaluator.Evaluator) Option {
	return func(e *Engine) {
		e.evaluator = ev
	}
}

// WithAggregator sets the aggregation engine.
func WithAggregator(a *aggregate.Engine) Option {
	return func(e *Engine) {
		e.aggregator = a
	}
}

// WithTokenCodec sets the page token codec.
//
// Default: paging.NewCodec(paging.DefaultTokenTTL, nil).
func WithTokenCodec(c *paging.Codec) Option {
	return func(e *Engine) {
		e.tokens = c
	}
}

// WithScrollOptions configures the scroll cursor arena.
func WithScrollOptions(opts ...paging.ArenaOption) Option {
	return func(e *Engine) {
		e.scrollOpts = append(e.scrollOpts, opts...)
	}
}

// WithUsage sets the usage accountant.
func WithUsage(a *usage.Accountant) Option {
	return func(e *Engine) {
		e.usage = a
	}
}

// WithMetrics records operation metrics on m.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithLogger sets the logger for operation diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithPageSizes sets the page size used when a request gives none and the
// largest page a request may ask for.
//
// Default: DefaultPageSize and DefaultMaxPageSize.
func WithPageSizes(def, max int) Option {
	return func(e *Engine) {
		e.defaultPageSize = def
		e.maxPageSize = max
	}
}

// New creates an Engine over catalog.
func New(catalog ontology.MetadataProvider, opts ...Option) *Engine {
	e := &Engine{
		catalog:         catalog,
		backends:        make(map[backend.Kind]backend.Backend),
		logger:          slog.Default(),
		defaultPageSize: DefaultPageSize,
		maxPageSize:     DefaultMaxPageSize,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.evaluator == nil {
		e.evaluator = evaluator.New(catalog, evaluator.WithLogger(e.logger))
	}
	if e.aggregator == nil {
		e.aggregator = aggregate.New(catalog, aggregate.WithFilters(e.evaluator.Filters()), aggregate.WithLogger(e.logger))
	}
	if e.tokens == nil {
		e.tokens = paging.NewCodec(paging.DefaultTokenTTL, nil)
	}
	if e.usage == nil {
		e.usage = usage.New(usage.WithLogger(e.logger))
	}
	scrollOpts := append([]paging.ArenaOption{paging.WithSizeObserver(e.metrics.SetScrollCursors)}, e.scrollOpts...)
	e.scrolls = paging.NewArena[scrollState](scrollOpts...)
	return e
}

// SweepScrolls drops expired scroll cursors and returns how many were
// dropped.
func (e *Engine) SweepScrolls() int {
	n := e.scrolls.Sweep()
	if n > 0 {
		e.logger.Debug("swept scroll cursors", "dropped", n, "live", e.scrolls.Len())
	}
	return n
}

// query is the part of a request every operation shares.
type query struct {
	ObjectSet         objectset.ObjectSet
	DerivedProperties objectset.TypedDerivedProperties
	Context           objectset.Context
	Backend           backend.Kind
}

// prepared is a validated query bound to its backend.
type prepared struct {
	set     *evaluator.ResolvedSet
	backend backend.Backend
	kind    backend.Kind
}

// prepare resolves q and attaches its request-level derived properties.
func (e *Engine) prepare(ctx context.Context, q query) (*prepared, error) {
	b, kind, err := e.backendFor(q.Backend)
	if err != nil {
		return nil, err
	}
	if q.ObjectSet == nil {
		return nil, qerr.Validation(qerr.CodeInvalidArgument, "object set is required").At(objectset.RootPath)
	}
	rs, err := e.evaluator.Evaluate(ctx, q.ObjectSet, q.Context)
	if err != nil {
		return nil, err
	}
	if len(q.DerivedProperties) > 0 {
		fields, err := e.evaluator.Derived().Resolve(q.DerivedProperties, rs.Scope, "derivedProperties")
		if err != nil {
			return nil, err
		}
		if len(fields) > 0 {
			rs = &evaluator.ResolvedSet{
				Scope: rs.Scope.WithDerived(derived.ScopeFields(fields)...),
				Plan:  plan.Derive{Input: rs.Plan, Fields: fields},
			}
		}
	}
	return &prepared{set: rs, backend: b, kind: kind}, nil
}

func (e *Engine) backendFor(k backend.Kind) (backend.Backend, backend.Kind, error) {
	if k == "" {
		k = e.defaultBackend
	}
	if !k.Valid() {
		return nil, "", qerr.Validation(qerr.CodeInvalidArgument, "unknown backend %q", k).At("backend")
	}
	b, ok := e.backends[k]
	if !ok {
		return nil, "", qerr.NotSupported("backend %s is not configured", k)
	}
	return b, k, nil
}

// snapshot returns the snapshot a request reads at.
func (e *Engine) snapshot(ctx context.Context, b backend.Backend, octx objectset.Context) (int64, error) {
	current, err := b.CurrentSnapshot(ctx)
	if err != nil {
		return 0, err
	}
	if octx.SnapshotID == "" {
		return current, nil
	}
	id, err := strconv.ParseInt(octx.SnapshotID, 10, 64)
	if err != nil || id < 0 {
		return 0, qerr.Validation(qerr.CodeInvalidArgument, "snapshot id %q is not a sequence number", octx.SnapshotID).
			At("context.snapshotId")
	}
	if id > current {
		return 0, qerr.Resource(qerr.CodeSnapshotNotFound, "snapshot %d is ahead of the store (current %d)", id, current)
	}
	return id, nil
}

func (e *Engine) match(ctx context.Context, p *prepared, octx objectset.Context, snapshot int64) (*backend.MatchResult, error) {
	res, err := p.backend.Match(ctx, backend.MatchRequest{
		Set:      p.set.Plan,
		Branch:   octx.BranchOrDefault(),
		Snapshot: snapshot,
	})
	if err != nil {
		return nil, err
	}
	e.metrics.Scanned(string(p.kind), res.Stats.ObjectsScanned)
	return res, nil
}

func (e *Engine) pageSize(n int) (int, error) {
	switch {
	case n == 0:
		return e.defaultPageSize, nil
	case n < 0 || n > e.maxPageSize:
		return 0, qerr.Validation(qerr.CodeInvalidArgument, "page size must be between 1 and %d, got %d", e.maxPageSize, n).
			At("pageSize")
	default:
		return n, nil
	}
}

// observe records a finished operation.
func (e *Engine) observe(ctx context.Context, op string, start time.Time, err error) {
	e.metrics.Observe(op, start, err)
	if err != nil {
		e.logger.DebugContext(ctx, "operation failed",
			"operation", op,
			"code", qerr.CodeOf(err),
			"error", err,
		)
		return
	}
	e.logger.DebugContext(ctx, "operation finished",
		"operation", op,
		"duration", time.Since(start),
	)
}
