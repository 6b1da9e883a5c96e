// Package bucket assigns candidate objects to aggregation buckets.
//
// Assignment is pure: callers pass the flattened property values of each
// candidate and receive bucket membership by candidate index. An object
// whose property is an array joins every bucket one of its elements falls
// in, but at most once per bucket.
package bucket

import (
	"cmp"
	"math"
	"slices"
	"strconv"
	"time"

	"github.com/roach88/osq/internal/ir"
	"github.com/roach88/osq/internal/objectset"
	"github.com/roach88/osq/internal/qerr"
	"github.com/roach88/osq/internal/token"
)

// Kind is a bucketing rule.
type Kind string

const (
	KindExactValue Kind = "exactValue"
	KindKeywords   Kind = "keywords"
	KindGeoHash    Kind = "geoHash"
	KindFixedCount Kind = "fixedBucketCount"
	KindFixedWidth Kind = "fixedWidth"
	KindRanges     Kind = "ranges"
	KindDate       Kind = "date"
)

// Spec is a validated bucketing rule.
type Spec struct {
	Kind       Kind
	MaxBuckets int
	NullBucket bool

	// KindExactValue, KindKeywords
	ValueFilter *ValueFilter
	Tokenize    bool

	// KindGeoHash
	Precision int

	// KindFixedCount
	Count int

	// KindFixedWidth
	Width  float64
	Offset float64

	// KindRanges
	Ranges []objectset.NumericRange

	// KindDate
	Unit     objectset.TimeUnit
	Interval int
	Location *time.Location
}

// Item is one candidate's values for the bucketed property: non-null
// scalars with arrays flattened. No values means the property is null.
type Item struct {
	Values []ir.Value
}

// Bucket is one emitted bucket. Key is Null for the null-value bucket.
// Order is the value key ordering compares.
type Bucket struct {
	Key     ir.Value
	Order   ir.Value
	Members []int
}

// IsNull reports whether b is the null-value bucket.
func (b Bucket) IsNull() bool {
	_, ok := b.Key.(ir.Null)
	return ok
}

// Assignment is the result of bucketing. Buckets are in ascending key
// order with the null-value bucket last. Other counts candidates with a
// value that landed in no emitted bucket.
type Assignment struct {
	Buckets []Bucket
	Other   int
}

type group struct {
	key, order ir.Value
	members    []int
}

type grouper struct {
	byKey map[string]*group
	keys  []string
}

func newGrouper() *grouper {
	return &grouper{byKey: make(map[string]*group)}
}

func (g *grouper) add(key, order ir.Value, item int) {
	k := ir.KeyString(key)
	grp, ok := g.byKey[k]
	if !ok {
		grp = &group{key: key, order: order}
		g.byKey[k] = grp
		g.keys = append(g.keys, k)
	}
	if n := len(grp.members); n == 0 || grp.members[n-1] != item {
		grp.members = append(grp.members, item)
	}
}

func (g *grouper) groups() []*group {
	out := make([]*group, 0, len(g.keys))
	for _, k := range g.keys {
		out = append(out, g.byKey[k])
	}
	return out
}

// Assign buckets items per spec.
func Assign(spec Spec, items []Item) (Assignment, error) {
	var nulls []int
	for i, item := range items {
		if len(item.Values) == 0 {
			nulls = append(nulls, i)
		}
	}

	var (
		groups []*group
		err    error
	)
	switch spec.Kind {
	case KindExactValue, KindKeywords:
		groups = topByCount(spec, exactGroups(spec, items))
	case KindGeoHash:
		groups = topByCount(spec, geoGroups(spec, items))
	case KindFixedCount:
		groups = fixedCountGroups(spec, items)
	case KindFixedWidth:
		groups, err = fixedWidthGroups(spec, items)
	case KindRanges:
		groups, err = rangeGroups(spec, items)
	case KindDate:
		groups, err = dateGroups(spec, items)
	default:
		return Assignment{}, qerr.Validation(qerr.CodeInvalidBucketing, "unknown bucketing %q", spec.Kind)
	}
	if err != nil {
		return Assignment{}, err
	}

	if spec.Kind != KindRanges {
		slices.SortStableFunc(groups, func(a, b *group) int { return ir.Compare(a.order, b.order) })
	}

	out := Assignment{Buckets: make([]Bucket, 0, len(groups)+1)}
	placed := make([]bool, len(items))
	for _, g := range groups {
		for _, m := range g.members {
			placed[m] = true
		}
		out.Buckets = append(out.Buckets, Bucket{Key: g.key, Order: g.order, Members: g.members})
	}
	for i, item := range items {
		if len(item.Values) > 0 && !placed[i] {
			out.Other++
		}
	}
	if spec.NullBucket && len(nulls) > 0 {
		out.Buckets = append(out.Buckets, Bucket{Key: ir.Null{}, Order: ir.Null{}, Members: nulls})
	}
	return out, nil
}

func exactGroups(spec Spec, items []Item) []*group {
	g := newGrouper()
	for i, item := range items {
		for _, v := range item.Values {
			keys := []ir.Value{v}
			if s, ok := v.(ir.String); ok && spec.Tokenize {
				keys = keys[:0]
				for _, tok := range token.Tokenize(string(s)) {
					keys = append(keys, ir.String(tok))
				}
			}
			for _, k := range keys {
				if spec.ValueFilter.Accept(k) {
					g.add(k, k, i)
				}
			}
		}
	}
	return g.groups()
}

func geoGroups(spec Spec, items []Item) []*group {
	g := newGrouper()
	for i, item := range items {
		for _, v := range item.Values {
			if p, ok := v.(ir.GeoPoint); ok {
				k := ir.String(Geohash(p, spec.Precision))
				g.add(k, k, i)
			}
		}
	}
	return g.groups()
}

// topByCount keeps the MaxBuckets largest groups, ties broken by key.
func topByCount(spec Spec, groups []*group) []*group {
	slices.SortStableFunc(groups, func(a, b *group) int {
		if c := cmp.Compare(len(b.members), len(a.members)); c != 0 {
			return c
		}
		return ir.Compare(a.order, b.order)
	})
	if spec.MaxBuckets > 0 && len(groups) > spec.MaxBuckets {
		groups = groups[:spec.MaxBuckets]
	}
	return groups
}

func numeric(v ir.Value) (float64, bool) {
	n, ok := ir.Float64(v)
	return n, ok && !math.IsNaN(n)
}

func rangeKey(from, to *float64) ir.Value {
	key := ir.Object{}
	if from != nil {
		key["from"] = ir.Double(*from)
	}
	if to != nil {
		key["to"] = ir.Double(*to)
	}
	return key
}

func rangeOrder(from *float64) ir.Value {
	if from == nil {
		return ir.Null{}
	}
	return ir.Double(*from)
}

// fixedCountGroups splits [min, max] into Count equal buckets. The last
// bucket is closed so max falls inside it.
func fixedCountGroups(spec Spec, items []Item) []*group {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, item := range items {
		for _, v := range item.Values {
			if n, ok := numeric(v); ok {
				lo, hi = math.Min(lo, n), math.Max(hi, n)
			}
		}
	}
	if lo > hi {
		return nil
	}
	count := max(spec.Count, 1)
	width := (hi - lo) / float64(count)
	g := newGrouper()
	for i, item := range items {
		for _, v := range item.Values {
			n, ok := numeric(v)
			if !ok {
				continue
			}
			idx := 0
			if width > 0 {
				idx = min(int((n-lo)/width), count-1)
			}
			from := lo + float64(idx)*width
			to := lo + float64(idx+1)*width
			if idx == count-1 {
				to = hi
			}
			g.add(rangeKey(&from, &to), ir.Double(from), i)
		}
	}
	return g.groups()
}

func fixedWidthGroups(spec Spec, items []Item) ([]*group, error) {
	g := newGrouper()
	lo, hi := math.MaxInt, math.MinInt
	for i, item := range items {
		for _, v := range item.Values {
			n, ok := numeric(v)
			if !ok {
				continue
			}
			idx := int(math.Floor((n - spec.Offset) / spec.Width))
			lo, hi = min(lo, idx), max(hi, idx)
			if spec.MaxBuckets > 0 && hi-lo+1 > spec.MaxBuckets {
				return nil, tooMany(spec.MaxBuckets, "width %g", spec.Width)
			}
			from := spec.Offset + float64(idx)*spec.Width
			to := from + spec.Width
			g.add(rangeKey(&from, &to), ir.Double(from), i)
		}
	}
	return g.groups(), nil
}

// rangeGroups emits every declared range, in declaration order, even when
// empty. Ranges are half-open [from, to) and may overlap.
func rangeGroups(spec Spec, items []Item) ([]*group, error) {
	if spec.MaxBuckets > 0 && len(spec.Ranges) > spec.MaxBuckets {
		return nil, tooMany(spec.MaxBuckets, "%d ranges", len(spec.Ranges))
	}
	groups := make([]*group, len(spec.Ranges))
	for r, rng := range spec.Ranges {
		groups[r] = &group{key: rangeKey(rng.From, rng.To), order: rangeOrder(rng.From)}
	}
	for i, item := range items {
		for _, v := range item.Values {
			n, ok := numeric(v)
			if !ok {
				continue
			}
			for r, rng := range spec.Ranges {
				if (rng.From == nil || n >= *rng.From) && (rng.To == nil || n < *rng.To) {
					grp := groups[r]
					if k := len(grp.members); k == 0 || grp.members[k-1] != i {
						grp.members = append(grp.members, i)
					}
				}
			}
		}
	}
	return groups, nil
}

func dateGroups(spec Spec, items []Item) ([]*group, error) {
	loc := spec.Location
	if loc == nil {
		loc = time.UTC
	}
	g := newGrouper()
	for i, item := range items {
		for _, v := range item.Values {
			ts, ok := v.(ir.Timestamp)
			if !ok {
				continue
			}
			start, err := truncate(ts.Time(), spec.Unit, spec.Interval, loc)
			if err != nil {
				return nil, qerr.Validation(qerr.CodeInvalidBucketing, "%v", err)
			}
			k := ir.NewTimestamp(start)
			g.add(k, k, i)
			if spec.MaxBuckets > 0 && len(g.keys) > spec.MaxBuckets {
				return nil, tooMany(spec.MaxBuckets, "%d %s interval", spec.Interval, spec.Unit)
			}
		}
	}
	return g.groups(), nil
}

func tooMany(limit int, format string, args ...any) error {
	return qerr.Validation(qerr.CodeTooManyBuckets,
		"bucketing by "+format+" produces more than %d buckets", append(args, limit)...).
		With("maxBuckets", strconv.Itoa(limit))
}
