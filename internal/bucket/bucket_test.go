package bucket

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/osq/internal/ir"
	"github.com/roach88/osq/internal/objectset"
	"github.com/roach88/osq/internal/qerr"
)

func items(vals ...ir.Value) []Item {
	out := make([]Item, len(vals))
	for i, v := range vals {
		out[i] = Item{Values: ir.Elements(v)}
	}
	return out
}

func keys(a Assignment) []ir.Value {
	out := make([]ir.Value, len(a.Buckets))
	for i, b := range a.Buckets {
		out[i] = b.Key
	}
	return out
}

func members(a Assignment) [][]int {
	out := make([][]int, len(a.Buckets))
	for i, b := range a.Buckets {
		out[i] = b.Members
	}
	return out
}

func ptr(f float64) *float64 { return &f }

func TestAssign_ExactValue(t *testing.T) {
	in := items(ir.String("b"), ir.String("a"), ir.Null{}, ir.String("b"),
		ir.Array{ir.String("a"), ir.String("c"), ir.String("a")})

	t.Run("sorted by key with null bucket last", func(t *testing.T) {
		got, err := Assign(Spec{Kind: KindExactValue, MaxBuckets: 10, NullBucket: true}, in)
		require.NoError(t, err)
		assert.Equal(t, []ir.Value{ir.String("a"), ir.String("b"), ir.String("c"), ir.Null{}}, keys(got))
		assert.Equal(t, [][]int{{1, 4}, {0, 3}, {4}, {2}}, members(got))
		assert.True(t, got.Buckets[3].IsNull())
		assert.Zero(t, got.Other)
	})

	t.Run("cap keeps largest buckets", func(t *testing.T) {
		got, err := Assign(Spec{Kind: KindExactValue, MaxBuckets: 1}, in)
		require.NoError(t, err)
		// a and b tie on two members; a wins on key order.
		assert.Equal(t, []ir.Value{ir.String("a")}, keys(got))
		assert.Equal(t, 2, got.Other)
	})

	t.Run("value filter applies before cap", func(t *testing.T) {
		vf, err := CompileValueFilter(&objectset.ValueFilter{Exclude: []ir.Value{ir.String("a")}})
		require.NoError(t, err)
		got, err := Assign(Spec{Kind: KindExactValue, MaxBuckets: 1, ValueFilter: vf}, in)
		require.NoError(t, err)
		assert.Equal(t, []ir.Value{ir.String("b")}, keys(got))
		assert.Equal(t, 2, got.Other)
	})
}

func TestAssign_Keywords(t *testing.T) {
	got, err := Assign(Spec{Kind: KindKeywords, MaxBuckets: 10, Tokenize: true},
		items(ir.String("Grace Hopper"), ir.String("grace kelly")))
	require.NoError(t, err)
	assert.Equal(t, []ir.Value{ir.String("grace"), ir.String("hopper"), ir.String("kelly")}, keys(got))
	assert.Equal(t, [][]int{{0, 1}, {0}, {1}}, members(got))
}

func TestAssign_Numeric(t *testing.T) {
	in := items(ir.Int(0), ir.Double(2.5), ir.Int(5), ir.Int(10), ir.Null{})
	from := func(k ir.Value) ir.Value { return k.(ir.Object)["from"] }

	t.Run("fixed count closes last bucket", func(t *testing.T) {
		got, err := Assign(Spec{Kind: KindFixedCount, Count: 4, MaxBuckets: 10}, in)
		require.NoError(t, err)
		// [0,2.5) [2.5,5) [5,7.5) [7.5,10]
		require.Len(t, got.Buckets, 4)
		assert.Equal(t, ir.Object{"from": ir.Double(7.5), "to": ir.Double(10)}, got.Buckets[3].Key)
		assert.Equal(t, [][]int{{0}, {1}, {2}, {3}}, members(got))
	})

	t.Run("fixed width with offset", func(t *testing.T) {
		got, err := Assign(Spec{Kind: KindFixedWidth, Width: 5, Offset: 1, MaxBuckets: 10}, in)
		require.NoError(t, err)
		assert.Equal(t, []ir.Value{ir.Double(-4), ir.Double(1), ir.Double(6)},
			[]ir.Value{from(got.Buckets[0].Key), from(got.Buckets[1].Key), from(got.Buckets[2].Key)})
		assert.Equal(t, [][]int{{0}, {1, 2}, {3}}, members(got))
	})

	t.Run("fixed width over cap", func(t *testing.T) {
		_, err := Assign(Spec{Kind: KindFixedWidth, Width: 1, MaxBuckets: 5}, in)
		require.Error(t, err)
		qe, ok := qerr.As(err)
		require.True(t, ok)
		assert.Equal(t, qerr.CodeTooManyBuckets, qe.Code)
		assert.Equal(t, "5", qe.Details["maxBuckets"])
	})

	t.Run("ranges keep declared order and empty ranges", func(t *testing.T) {
		got, err := Assign(Spec{Kind: KindRanges, MaxBuckets: 10, Ranges: []objectset.NumericRange{
			{From: ptr(5)},
			{To: ptr(5)},
			{From: ptr(100), To: ptr(200)},
			{From: ptr(0), To: ptr(10)},
		}}, in)
		require.NoError(t, err)
		assert.Equal(t, [][]int{{2, 3}, {0, 1}, nil, {0, 1, 2}}, members(got))
		assert.Equal(t, ir.Object{"to": ir.Double(5)}, got.Buckets[1].Key)
		assert.Zero(t, got.Other)
	})

	t.Run("ranges count misses as other", func(t *testing.T) {
		got, err := Assign(Spec{Kind: KindRanges, Ranges: []objectset.NumericRange{{From: ptr(3), To: ptr(6)}}}, in)
		require.NoError(t, err)
		assert.Equal(t, 3, got.Other)
	})
}

func TestAssign_Date(t *testing.T) {
	ts := func(s string) ir.Value {
		v, err := ir.ParseTimestamp(s)
		require.NoError(t, err)
		return v
	}
	in := items(ts("2024-01-03T10:00:00Z"), ts("2024-01-08T00:30:00Z"), ts("2024-02-29T23:59:59Z"))

	t.Run("months", func(t *testing.T) {
		got, err := Assign(Spec{Kind: KindDate, Unit: objectset.UnitMonth, Interval: 1, MaxBuckets: 10}, in)
		require.NoError(t, err)
		assert.Equal(t, []ir.Value{ts("2024-01-01T00:00:00Z"), ts("2024-02-01T00:00:00Z")}, keys(got))
	})

	t.Run("weeks start on monday", func(t *testing.T) {
		got, err := Assign(Spec{Kind: KindDate, Unit: objectset.UnitWeek, Interval: 1, MaxBuckets: 10}, in)
		require.NoError(t, err)
		assert.Equal(t, []ir.Value{ts("2024-01-01T00:00:00Z"), ts("2024-01-08T00:00:00Z"), ts("2024-02-26T00:00:00Z")}, keys(got))
	})

	t.Run("too many buckets", func(t *testing.T) {
		_, err := Assign(Spec{Kind: KindDate, Unit: objectset.UnitDay, Interval: 1, MaxBuckets: 2}, in)
		assert.True(t, qerr.HasCode(err, qerr.CodeTooManyBuckets))
	})
}

func TestTruncate(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*60*60)
	at := time.Date(2024, 5, 17, 22, 47, 31, 0, time.UTC)

	tests := []struct {
		name  string
		unit  objectset.TimeUnit
		value int
		loc   *time.Location
		want  time.Time
	}{
		{"second", objectset.UnitSecond, 15, time.UTC, time.Date(2024, 5, 17, 22, 47, 30, 0, time.UTC)},
		{"minute", objectset.UnitMinute, 10, time.UTC, time.Date(2024, 5, 17, 22, 40, 0, 0, time.UTC)},
		{"hour", objectset.UnitHour, 6, time.UTC, time.Date(2024, 5, 17, 18, 0, 0, 0, time.UTC)},
		{"day", objectset.UnitDay, 1, time.UTC, time.Date(2024, 5, 17, 0, 0, 0, 0, time.UTC)},
		{"day in zone", objectset.UnitDay, 1, tokyo, time.Date(2024, 5, 18, 0, 0, 0, 0, tokyo)},
		{"week", objectset.UnitWeek, 1, time.UTC, time.Date(2024, 5, 13, 0, 0, 0, 0, time.UTC)},
		{"quarter", objectset.UnitQuarter, 1, time.UTC, time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)},
		{"two quarters", objectset.UnitQuarter, 2, time.UTC, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"year", objectset.UnitYear, 1, time.UTC, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"decade", objectset.UnitYear, 10, time.UTC, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := truncate(at, tt.unit, tt.value, tt.loc)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %v, want %v", got, tt.want)
		})
	}

	_, err := truncate(at, objectset.UnitDay, 0, time.UTC)
	assert.Error(t, err)
}

func TestGeohash(t *testing.T) {
	p := ir.GeoPoint{Lat: 57.64911, Lon: 10.40744}
	assert.Equal(t, "u4pruydqqvj", Geohash(p, 11))
	assert.Equal(t, "u4pru", Geohash(p, 5))

	got, err := Assign(Spec{Kind: KindGeoHash, Precision: 3, MaxBuckets: 10}, items(p, ir.GeoPoint{Lat: 57.6, Lon: 10.4}))
	require.NoError(t, err)
	assert.Equal(t, []ir.Value{ir.String("u4p")}, keys(got))
	assert.Equal(t, []int{0, 1}, got.Buckets[0].Members)
}

func TestValueFilter(t *testing.T) {
	vf, err := CompileValueFilter(&objectset.ValueFilter{
		IncludeRegex: "a.*",
		Exclude:      []ir.Value{ir.String("ab")},
	})
	require.NoError(t, err)

	assert.True(t, vf.Accept(ir.String("abc")))
	assert.False(t, vf.Accept(ir.String("ab")))
	assert.False(t, vf.Accept(ir.String("xa")))

	var none *ValueFilter
	assert.True(t, none.Accept(ir.String("anything")))

	_, err = CompileValueFilter(&objectset.ValueFilter{ExcludeRegex: "("})
	assert.True(t, qerr.HasCode(err, qerr.CodeInvalidRegex))
}
