// Package backend defines the seam between query evaluation and the
// systems that store objects.
//
// Evaluation produces backend-agnostic plans (package plan). A Backend
// executes a plan against one read snapshot and returns the matching
// objects in default order: object type, then primary key, bytewise.
// kNN plans carry their own order (distance, then key).
//
// Bucketing and metric computation also go through the Backend so a
// remote search index can push them down. The local backend delegates to
// the pure bucket and metric packages.
package backend

import (
	"context"

	"github.com/roach88/osq/internal/bucket"
	"github.com/roach88/osq/internal/filter"
	"github.com/roach88/osq/internal/ir"
	"github.com/roach88/osq/internal/metric"
	"github.com/roach88/osq/internal/plan"
)

// Kind names a backend. Requests choose one explicitly or take the
// configured default.
type Kind string

const (
	KindPhonograph Kind = "PHONOGRAPH"
	KindHighbury   Kind = "HIGHBURY"
)

// Valid reports whether k is a known backend kind.
func (k Kind) Valid() bool {
	return k == KindPhonograph || k == KindHighbury
}

// Backend executes plans against stored objects.
//
// Implementations must be safe for concurrent use: the engine shares one
// Backend across requests and the aggregation engine calls Bucket and
// Metric from several goroutines.
type Backend interface {
	Kind() Kind

	// Match enumerates the members of req.Set at req.Snapshot.
	Match(ctx context.Context, req MatchRequest) (*MatchResult, error)

	// Bucket groups items per spec.
	Bucket(ctx context.Context, spec bucket.Spec, items []bucket.Item) (bucket.Assignment, error)

	// Metric computes spec over values drawn from objects candidates.
	Metric(ctx context.Context, spec metric.Spec, objects int, values []ir.Value, opts metric.Options) (metric.Result, error)

	// CurrentSnapshot returns the newest readable snapshot.
	CurrentSnapshot(ctx context.Context) (int64, error)
}

// MatchRequest is one plan execution.
type MatchRequest struct {
	Set      plan.Set
	Branch   string
	Snapshot int64

	// Links names link types the caller will test for presence on the
	// result, in addition to those the plan itself tests.
	Links []string

	// Metric tunes link aggregations computed for derived properties.
	Metric metric.Options
}

// MatchResult is the outcome of a Match.
type MatchResult struct {
	Objects []plan.Object

	// Links answers presence questions for every link type the plan or
	// MatchRequest.Links named.
	Links filter.LinkIndex

	Stats Stats

	// Exact is false when some derived value was estimated.
	Exact bool
}

// Stats counts the work one Match performed.
type Stats struct {
	// ObjectsScanned is the number of object rows read.
	ObjectsScanned int
	// LinksScanned is the number of link rows read.
	LinksScanned int
	// Nodes is the number of plan nodes executed.
	Nodes int
}

// Add returns the sum of s and o.
func (s Stats) Add(o Stats) Stats {
	return Stats{
		ObjectsScanned: s.ObjectsScanned + o.ObjectsScanned,
		LinksScanned:   s.LinksScanned + o.LinksScanned,
		Nodes:          s.Nodes + o.Nodes,
	}
}

// Embedder turns query text into a vector for kNN text queries.
type Embedder interface {
	Embed(ctx context.Context, text string, dimension int) ([]float64, error)
}
