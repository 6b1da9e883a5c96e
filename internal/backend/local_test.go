package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/osq/internal/bucket"
	"github.com/roach88/osq/internal/evaluator"
	"github.com/roach88/osq/internal/ir"
	"github.com/roach88/osq/internal/metric"
	"github.com/roach88/osq/internal/objectset"
	"github.com/roach88/osq/internal/plan"
	"github.com/roach88/osq/internal/qerr"
	"github.com/roach88/osq/internal/store"
	"github.com/roach88/osq/internal/testutil"
)

func key(objectType, pk string) plan.Key {
	return plan.Key{ObjectType: objectType, PrimaryKey: pk}
}

func keys(objs []plan.Object) []plan.Key {
	out := []plan.Key{}
	for _, o := range objs {
		out = append(out, o.Key)
	}
	return out
}

type fixture struct {
	local    *Local
	store    *store.Store
	eval     *evaluator.Evaluator
	snapshot int64
}

func newFixture(t *testing.T, opts ...LocalOption) *fixture {
	t.Helper()
	c := testutil.Catalog(t)
	s, seq := testutil.OpenStore(t)
	return &fixture{
		local:    NewLocal(s, c, opts...),
		store:    s,
		eval:     evaluator.New(c, evaluator.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))),
		snapshot: seq,
	}
}

func (f *fixture) match(t *testing.T, set objectset.ObjectSet) *MatchResult {
	t.Helper()
	res, err := f.matchErr(set)
	require.NoError(t, err)
	return res
}

func (f *fixture) matchErr(set objectset.ObjectSet) (*MatchResult, error) {
	ctx := context.Background()
	rs, err := f.eval.Evaluate(ctx, set, objectset.Context{})
	if err != nil {
		return nil, err
	}
	return f.local.Match(ctx, MatchRequest{Set: rs.Plan, Snapshot: f.snapshot})
}

func base(t string) objectset.ObjectSet { return objectset.Base{ObjectType: t} }

func static(objectType string, pks ...string) objectset.ObjectSet {
	s := objectset.Static{ObjectType: objectType}
	for _, pk := range pks {
		s.Objects = append(s.Objects, objectset.ObjectLocator{PrimaryKey: pk})
	}
	return s
}

func TestLocal_Match(t *testing.T) {
	f := newFixture(t)
	engineers := objectset.Filtered{
		ObjectSet: base("employee"),
		Filter:    objectset.ExactMatch{Property: "title", Terms: []ir.Value{ir.String("Engineer")}},
	}

	tests := []struct {
		name string
		set  objectset.ObjectSet
		want []plan.Key
	}{
		{
			name: "scan",
			set:  base("office"),
			want: []plan.Key{key("office", "o1"), key("office", "o2"), key("office", "o3"), key("office", "o4")},
		},
		{
			name: "pushed down exact match",
			set:  engineers,
			want: []plan.Key{key("employee", "e1"), key("employee", "e2")},
		},
		{
			name: "range skips null",
			set: objectset.Filtered{
				ObjectSet: base("employee"),
				Filter:    objectset.Range{Property: "salary", Gt: ir.Int(100000)},
			},
			want: []plan.Key{key("employee", "e1"), key("employee", "e2"), key("employee", "e3")},
		},
		{
			name: "link presence",
			set: objectset.Filtered{
				ObjectSet: base("employee"),
				Filter:    objectset.LinkPresence{Link: "carOwner", Side: objectset.SideTarget},
			},
			want: []plan.Key{key("employee", "e1"), key("employee", "e3")},
		},
		{
			name: "interface property across local names",
			set: objectset.Filtered{
				ObjectSet: objectset.InterfaceBase{InterfaceType: "Vehicle"},
				Filter:    objectset.ExactMatch{Property: "vehicleMake", Terms: []ir.Value{ir.String("Volvo")}},
			},
			want: []plan.Key{key("car", "c2"), key("truck", "t1")},
		},
		{
			name: "static drops missing objects",
			set:  static("car", "c3", "c9", "c1"),
			want: []plan.Key{key("car", "c1"), key("car", "c3")},
		},
		{
			name: "search around toward target",
			set:  objectset.SearchAround{ObjectSet: static("employee", "e3"), Link: "carOwner", Side: objectset.SideTarget},
			want: []plan.Key{key("car", "c2"), key("car", "c3")},
		},
		{
			name: "search around toward source",
			set:  objectset.SearchAround{ObjectSet: static("car", "c1", "c2"), Link: "carOwner", Side: objectset.SideSource},
			want: []plan.Key{key("employee", "e1"), key("employee", "e3")},
		},
		{
			name: "self link both ways",
			set:  objectset.SearchAround{ObjectSet: static("employee", "e1"), Link: "mentors"},
			want: []plan.Key{key("employee", "e2")},
		},
		{
			name: "soft link",
			set:  objectset.SoftLinkSearchAround{ObjectSet: static("employee", "e3", "e5"), Link: "employeeOffice", Side: objectset.SideTarget},
			want: []plan.Key{key("office", "o2"), key("office", "o3")},
		},
		{
			name: "soft link back",
			set:  objectset.SoftLinkSearchAround{ObjectSet: static("office", "o1"), Link: "employeeOffice", Side: objectset.SideSource},
			want: []plan.Key{key("employee", "e1"), key("employee", "e2")},
		},
		{
			name: "intersect",
			set:  objectset.Intersected{ObjectSets: []objectset.ObjectSet{engineers, static("employee", "e2", "e3")}},
			want: []plan.Key{key("employee", "e2")},
		},
		{
			name: "union keeps default order",
			set:  objectset.Unioned{ObjectSets: []objectset.ObjectSet{static("employee", "e2"), static("car", "c1"), static("employee", "e2")}},
			want: []plan.Key{key("car", "c1"), key("employee", "e2")},
		},
		{
			name: "subtract",
			set:  objectset.Subtracted{ObjectSets: []objectset.ObjectSet{base("employee"), engineers}},
			want: []plan.Key{key("employee", "e3"), key("employee", "e4"), key("employee", "e5")},
		},
		{
			name: "subtract from itself",
			set:  objectset.Subtracted{ObjectSets: []objectset.ObjectSet{base("employee"), base("employee")}},
			want: []plan.Key{},
		},
		{
			name: "subtract filtered set from itself",
			set:  objectset.Subtracted{ObjectSets: []objectset.ObjectSet{engineers, engineers}},
			want: []plan.Key{},
		},
		{
			name: "as interface drops non implementers",
			set: objectset.AsType{
				ObjectSet:  objectset.InterfaceBase{InterfaceType: "Vehicle"},
				EntityType: objectset.TypeRef{Kind: objectset.KindInterface, APIName: "MotorVehicle"},
			},
			want: []plan.Key{key("car", "c1"), key("car", "c2"), key("car", "c3")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := f.match(t, tt.set)
			assert.Equal(t, tt.want, keys(res.Objects))
			assert.True(t, res.Exact)
		})
	}
}

func TestLocal_CoercesStoredProperties(t *testing.T) {
	f := newFixture(t)

	res := f.match(t, static("employee", "e1", "e4"))
	require.Len(t, res.Objects, 2)

	e1 := res.Objects[0]
	assert.Equal(t, ir.Double(120000), e1.Properties["salary"])
	assert.Equal(t, ir.Array{ir.Double(1), ir.Double(0), ir.Double(0)}, e1.Properties["embedding"])
	start, ok := e1.Properties["startDate"].(ir.Timestamp)
	require.True(t, ok, "startDate is %T", e1.Properties["startDate"])
	assert.Equal(t, "2020-01-15", start.Time().UTC().Format("2006-01-02"))

	assert.True(t, ir.IsNull(res.Objects[1].Properties.Get("salary")))
}

func TestLocal_Knn(t *testing.T) {
	f := newFixture(t)

	res := f.match(t, objectset.Knn{ObjectSet: base("employee"), Property: "embedding", K: 2, Vector: []float64{1, 0, 0}})
	assert.Equal(t, []plan.Key{key("employee", "e1"), key("employee", "e2")}, keys(res.Objects))
	require.NotNil(t, res.Objects[0].Distance)
	assert.InDelta(t, 0, *res.Objects[0].Distance, 1e-9)
	assert.Less(t, *res.Objects[0].Distance, *res.Objects[1].Distance)

	// K larger than the candidates returns them all.
	res = f.match(t, objectset.Knn{ObjectSet: static("employee", "e3", "e4"), Property: "embedding", K: 10, Vector: []float64{0, 1, 0}})
	assert.Equal(t, []plan.Key{key("employee", "e3"), key("employee", "e4")}, keys(res.Objects))
}

func TestLocal_KnnText(t *testing.T) {
	query := objectset.KnnV2{ObjectSet: base("employee"), Property: "embedding", K: 3, Query: objectset.TextQuery{Text: "analytical engine"}}

	_, err := newFixture(t).matchErr(query)
	assert.True(t, qerr.IsNotSupported(err), "got %v", err)

	res := newFixture(t, WithEmbedder(TokenEmbedder{})).match(t, query)
	assert.Len(t, res.Objects, 3)
	for _, o := range res.Objects {
		assert.NotNil(t, o.Distance)
	}
}

func TestLocal_DerivedProperties(t *testing.T) {
	f := newFixture(t)

	res := f.match(t, objectset.WithProperties{
		ObjectSet: static("employee", "e1", "e3", "e5"),
		DerivedProperties: []objectset.DerivedProperty{
			{ID: "carCount", Definition: objectset.LinkedObjectsAggregationProperty{
				Link: objectset.LinkHop{Link: "carOwner"}, Aggregation: objectset.Count{}}},
			{ID: "officeCity", Definition: objectset.LinkedObjectProperty{
				Link: objectset.LinkHop{Link: "officeEmployees"}, Property: "city"}},
		},
	})
	require.Len(t, res.Objects, 3)

	counts := map[string]ir.Value{}
	cities := map[string]ir.Value{}
	for _, o := range res.Objects {
		counts[o.PrimaryKey] = o.Derived["carCount"]
		cities[o.PrimaryKey] = o.Derived["officeCity"]
	}
	assert.Equal(t, map[string]ir.Value{"e1": ir.Int(1), "e3": ir.Int(2), "e5": ir.Int(0)}, counts)
	assert.Equal(t, map[string]ir.Value{"e1": ir.String("London"), "e3": ir.String("Washington"), "e5": ir.String("Eindhoven")}, cities)
	assert.True(t, res.Exact)
}

func TestLocal_Snapshots(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	before := f.snapshot

	after, err := f.store.Apply(ctx, "master", store.Batch{
		DeleteObjects: []plan.Key{key("car", "c1")},
		DeleteLinks:   []store.LinkRecord{{Link: "carOwner", Source: key("employee", "e1"), Target: key("car", "c1")}},
	})
	require.NoError(t, err)

	current, err := f.local.CurrentSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, after, current)

	owners := objectset.Filtered{
		ObjectSet: base("employee"),
		Filter:    objectset.LinkPresence{Link: "carOwner", Side: objectset.SideTarget},
	}

	f.snapshot = before
	assert.Equal(t, []plan.Key{key("employee", "e1"), key("employee", "e3")}, keys(f.match(t, owners).Objects))
	assert.Len(t, f.match(t, base("car")).Objects, 3)

	f.snapshot = after
	assert.Equal(t, []plan.Key{key("employee", "e3")}, keys(f.match(t, owners).Objects))
	assert.Equal(t, []plan.Key{key("car", "c2"), key("car", "c3")}, keys(f.match(t, base("car")).Objects))
}

func TestLocal_Branches(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rs, err := f.eval.Evaluate(ctx, base("car"), objectset.Context{})
	require.NoError(t, err)

	res, err := f.local.Match(ctx, MatchRequest{Set: rs.Plan, Branch: "feature", Snapshot: f.snapshot})
	require.NoError(t, err)
	assert.Empty(t, res.Objects)

	res, err = f.local.Match(ctx, MatchRequest{Set: rs.Plan, Snapshot: f.snapshot})
	require.NoError(t, err)
	assert.Len(t, res.Objects, 3)
}

func TestLocal_ExtraLinksAndStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rs, err := f.eval.Evaluate(ctx, base("employee"), objectset.Context{})
	require.NoError(t, err)
	res, err := f.local.Match(ctx, MatchRequest{Set: rs.Plan, Snapshot: f.snapshot, Links: []string{"mentors"}})
	require.NoError(t, err)

	assert.True(t, res.Links.HasLink("mentors", objectset.SideTarget, key("employee", "e4")))
	assert.False(t, res.Links.HasLink("mentors", objectset.SideSource, key("employee", "e4")))
	assert.False(t, res.Links.HasLink("carOwner", objectset.SideEither, key("employee", "e1")), "not preloaded")

	assert.Equal(t, Stats{ObjectsScanned: 5, LinksScanned: 2, Nodes: 1}, res.Stats)
}

func TestLocal_BucketAndMetric(t *testing.T) {
	l := NewLocal(nil, testutil.Catalog(t), WithKind(KindHighbury))
	assert.Equal(t, KindHighbury, l.Kind())
	ctx := context.Background()

	a, err := l.Bucket(ctx, bucket.Spec{Kind: bucket.KindExactValue, MaxBuckets: 10}, []bucket.Item{
		{Values: []ir.Value{ir.String("b")}},
		{Values: []ir.Value{ir.String("a")}},
		{Values: []ir.Value{ir.String("b")}},
	})
	require.NoError(t, err)
	require.Len(t, a.Buckets, 2)
	assert.Equal(t, ir.String("a"), a.Buckets[0].Key)
	assert.Equal(t, []int{0, 2}, a.Buckets[1].Members)

	r, err := l.Metric(ctx, metric.Spec{Kind: metric.KindSum}, 2, []ir.Value{ir.Int(2), ir.Int(3)}, metric.Options{})
	require.NoError(t, err)
	assert.Equal(t, metric.Result{Value: ir.Int(5), Exact: true}, r)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = l.Metric(cancelled, metric.Spec{Kind: metric.KindCount}, 0, nil, metric.Options{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClassify(t *testing.T) {
	busy := fmt.Errorf("query objects: %w", sqlite3.Error{Code: sqlite3.ErrBusy})
	classified := qerr.Resource(qerr.CodeObjectSetNotFound, "missing")

	tests := []struct {
		name      string
		err       error
		code      qerr.Code
		retryable bool
	}{
		{"busy is retryable", busy, qerr.CodeBackendUnavailable, true},
		{"locked is retryable", sqlite3.Error{Code: sqlite3.ErrLocked}, qerr.CodeBackendUnavailable, true},
		{"other storage errors are deterministic", errors.New("no such table: objects"), qerr.CodeBackendQuery, false},
		{"classified errors pass through", classified, qerr.CodeObjectSetNotFound, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify(tt.err, "scan")
			assert.Equal(t, tt.code, qerr.CodeOf(err))
			assert.Equal(t, tt.retryable, qerr.IsRetryable(err))
		})
	}

	assert.Nil(t, classify(nil, "scan"))
	assert.Equal(t, context.Canceled, classify(context.Canceled, "scan"))
}

func TestTokenEmbedder(t *testing.T) {
	ctx := context.Background()
	e := TokenEmbedder{}

	a, err := e.Embed(ctx, "Analytical Engine", 8)
	require.NoError(t, err)
	b, err := e.Embed(ctx, "analytical   ENGINE!", 8)
	require.NoError(t, err)
	assert.Equal(t, a, b, "embedding is over normalised tokens")

	var norm float64
	for _, f := range a {
		norm += f * f
	}
	assert.InDelta(t, 1, math.Sqrt(norm), 1e-9)

	_, err = e.Embed(ctx, "  ...  ", 8)
	assert.True(t, qerr.HasCode(err, qerr.CodeInvalidKnn))
}

func TestDistance(t *testing.T) {
	a, b := []float64{1, 0}, []float64{0, 2}

	assert.InDelta(t, 1, cosineDistance(a, b), 1e-9)
	assert.InDelta(t, 0, cosineDistance(b, []float64{0, 5}), 1e-9)
	assert.InDelta(t, 1, cosineDistance(a, []float64{0, 0}), 1e-9)
	assert.InDelta(t, math.Sqrt(5), euclideanDistance(a, b), 1e-9)

	dist, err := distanceFunc(SimilarityDot)
	require.NoError(t, err)
	assert.InDelta(t, -2, dist([]float64{1, 1}, b), 1e-9)

	_, err = distanceFunc("manhattan")
	assert.True(t, qerr.IsNotSupported(err))
}
