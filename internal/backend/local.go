package backend

import (
	"context"

	"github.com/roach88/osq/internal/bucket"
	"github.com/roach88/osq/internal/ir"
	"github.com/roach88/osq/internal/metric"
	"github.com/roach88/osq/internal/ontology"
	"github.com/roach88/osq/internal/store"
)

// Local executes plans over a SQLite store in process.
//
// Scans and key lookups are compiled to SQL; set algebra, traversal, kNN
// and derived properties run in Go over the scanned objects. Every Match
// gets a fresh view of the store, so nothing is cached across requests.
type Local struct {
	store    *store.Store
	catalog  ontology.MetadataProvider
	kind     Kind
	embedder Embedder
}

// LocalOption configures a Local backend.
type LocalOption func(*Local)

// WithKind sets the kind the backend reports.
//
// Default: KindPhonograph.
func WithKind(k Kind) LocalOption {
	return func(l *Local) {
		l.kind = k
	}
}

// WithEmbedder embeds kNN text queries through e. Without an embedder,
// text queries are NOT_SUPPORTED.
func WithEmbedder(e Embedder) LocalOption {
	return func(l *Local) {
		l.embedder = e
	}
}

// NewLocal creates a backend reading s. Stored properties are coerced to
// the types catalog declares.
func NewLocal(s *store.Store, catalog ontology.MetadataProvider, opts ...LocalOption) *Local {
	l := &Local{store: s, catalog: catalog, kind: KindPhonograph}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Kind implements Backend.
func (l *Local) Kind() Kind { return l.kind }

// CurrentSnapshot implements Backend.
func (l *Local) CurrentSnapshot(ctx context.Context) (int64, error) {
	seq, err := l.store.CurrentSeq(ctx)
	return seq, classify(err, "read current snapshot")
}

// Match implements Backend.
func (l *Local) Match(ctx context.Context, req MatchRequest) (*MatchResult, error) {
	v := newView(l, req.Branch, req.Snapshot)
	if err := v.preload(ctx, req); err != nil {
		return nil, err
	}
	x := &executor{view: v, metric: req.Metric, exact: true}
	objs, err := x.exec(ctx, req.Set)
	if err != nil {
		return nil, err
	}
	stats := v.statsSnapshot()
	stats.Nodes = x.nodes
	return &MatchResult{Objects: objs, Links: v, Stats: stats, Exact: x.exact}, nil
}

// Bucket implements Backend.
func (l *Local) Bucket(ctx context.Context, spec bucket.Spec, items []bucket.Item) (bucket.Assignment, error) {
	if err := ctx.Err(); err != nil {
		return bucket.Assignment{}, err
	}
	return bucket.Assign(spec, items)
}

// Metric implements Backend.
func (l *Local) Metric(ctx context.Context, spec metric.Spec, objects int, values []ir.Value, opts metric.Options) (metric.Result, error) {
	if err := ctx.Err(); err != nil {
		return metric.Result{}, err
	}
	return metric.Compute(spec, objects, values, opts)
}

var _ Backend = (*Local)(nil)
