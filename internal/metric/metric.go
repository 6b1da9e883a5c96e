// Package metric computes aggregation metrics over the values of one
// bucket. It is pure: callers extract values from objects and pass them in.
package metric

import (
	"fmt"
	"math"
	"slices"
	"sort"
	"time"

	"github.com/roach88/osq/internal/ir"
)

// Kind identifies a metric computation.
type Kind string

const (
	KindCount             Kind = "count"
	KindAvg               Kind = "avg"
	KindSum               Kind = "sum"
	KindMin               Kind = "min"
	KindMax               Kind = "max"
	KindPercentile        Kind = "percentile"
	KindCardinality       Kind = "cardinality"
	KindExactCardinality  Kind = "exactCardinality"
	KindStandardDeviation Kind = "standardDeviation"
	KindVariance          Kind = "variance"
	KindBoundingBox       Kind = "boundingBox"
	KindCollectList       Kind = "collectList"
	KindCollectSet        Kind = "collectSet"
)

// DefaultPrecisionThreshold is the distinct count up to which cardinality
// is counted exactly.
const DefaultPrecisionThreshold = 3000

// Spec is a resolved metric definition.
type Spec struct {
	Kind       Kind
	Percentile float64 // KindPercentile, in [0, 100]
	Sample     bool    // KindStandardDeviation, KindVariance
	Limit      int     // KindCollectList, KindCollectSet
}

// Options tune the accuracy/speed trade-off.
type Options struct {
	// PreferSpeed allows approximate distinct counts regardless of size.
	PreferSpeed bool

	// PrecisionThreshold bounds exact distinct counting. Zero means
	// DefaultPrecisionThreshold.
	PrecisionThreshold int
}

func (o Options) threshold() int {
	if o.PrecisionThreshold <= 0 {
		return DefaultPrecisionThreshold
	}
	return o.PrecisionThreshold
}

// Result is one computed metric. Exact is false when the value is an
// estimate.
type Result struct {
	Value ir.Value
	Exact bool
}

// Compute evaluates spec over one bucket. objects is the number of
// candidate objects in the bucket; values holds the non-null scalar
// values of the metric's property, arrays already flattened, in candidate
// order. Empty inputs yield Null for every metric except the counts.
func Compute(spec Spec, objects int, values []ir.Value, opts Options) (Result, error) {
	exact := func(v ir.Value) (Result, error) { return Result{Value: v, Exact: true}, nil }

	switch spec.Kind {
	case KindCount:
		return exact(ir.Int(objects))
	case KindSum:
		return exact(sum(values))
	case KindAvg:
		nums, dates := numbers(values)
		if len(nums) == 0 {
			return exact(ir.Null{})
		}
		var total float64
		for _, n := range nums {
			total += n
		}
		return exact(restore(total/float64(len(nums)), dates))
	case KindMin, KindMax:
		if len(values) == 0 {
			return exact(ir.Null{})
		}
		best := values[0]
		for _, v := range values[1:] {
			c := ir.Compare(v, best)
			if (spec.Kind == KindMin && c < 0) || (spec.Kind == KindMax && c > 0) {
				best = v
			}
		}
		return exact(best)
	case KindPercentile:
		if spec.Percentile < 0 || spec.Percentile > 100 {
			return Result{}, fmt.Errorf("percentile %g out of range [0, 100]", spec.Percentile)
		}
		nums, dates := numbers(values)
		if len(nums) == 0 {
			return exact(ir.Null{})
		}
		return exact(restore(percentile(nums, spec.Percentile), dates))
	case KindStandardDeviation, KindVariance:
		nums, _ := numbers(values)
		v, ok := variance(nums, spec.Sample)
		if !ok {
			return exact(ir.Null{})
		}
		if spec.Kind == KindStandardDeviation {
			v = math.Sqrt(v)
		}
		return exact(ir.Double(v))
	case KindCardinality:
		return distinct(values, opts.PreferSpeed, opts.threshold()), nil
	case KindExactCardinality:
		if opts.PreferSpeed {
			return distinct(values, false, opts.threshold()), nil
		}
		return distinct(values, false, math.MaxInt), nil
	case KindBoundingBox:
		return exact(boundingBox(values))
	case KindCollectList:
		out := make(ir.Array, 0, min(len(values), spec.Limit))
		for _, v := range values {
			if len(out) == spec.Limit {
				break
			}
			out = append(out, v)
		}
		return exact(out)
	case KindCollectSet:
		seen := make(map[string]bool, len(values))
		set := make(ir.Array, 0, len(values))
		for _, v := range values {
			k := ir.KeyString(v)
			if !seen[k] {
				seen[k] = true
				set = append(set, v)
			}
		}
		slices.SortStableFunc(set, ir.Compare)
		if len(set) > spec.Limit {
			set = set[:spec.Limit]
		}
		return exact(set)
	default:
		return Result{}, fmt.Errorf("unknown metric kind %q", spec.Kind)
	}
}

// sum keeps integer precision while every value is an Int.
func sum(values []ir.Value) ir.Value {
	if len(values) == 0 {
		return ir.Null{}
	}
	allInt := true
	var i int64
	var f float64
	for _, v := range values {
		switch n := v.(type) {
		case ir.Int:
			i += int64(n)
			f += float64(n)
		case ir.Double:
			allInt = false
			f += float64(n)
		}
	}
	if allInt {
		return ir.Int(i)
	}
	return ir.Double(f)
}

// numbers converts values to floats. dates reports that every value was a
// timestamp, in which case results convert back to timestamps.
func numbers(values []ir.Value) (nums []float64, dates bool) {
	nums = make([]float64, 0, len(values))
	dates = len(values) > 0
	for _, v := range values {
		n, ok := ir.Float64(v)
		if !ok {
			continue
		}
		if _, isDate := v.(ir.Timestamp); !isDate {
			dates = false
		}
		nums = append(nums, n)
	}
	return nums, dates
}

func restore(n float64, dates bool) ir.Value {
	if dates {
		return ir.NewTimestamp(timeFromMillis(n))
	}
	return ir.Double(n)
}

// percentile interpolates linearly between the closest ranks.
func percentile(nums []float64, p float64) float64 {
	sorted := slices.Clone(nums)
	sort.Float64s(sorted)
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

// variance is the population variance, or the Bessel-corrected sample
// variance when sample is set.
func variance(nums []float64, sample bool) (float64, bool) {
	n := len(nums)
	if n == 0 || (sample && n < 2) {
		return 0, false
	}
	var mean float64
	for _, x := range nums {
		mean += x
	}
	mean /= float64(n)
	var ss float64
	for _, x := range nums {
		d := x - mean
		ss += d * d
	}
	if sample {
		return ss / float64(n-1), true
	}
	return ss / float64(n), true
}

// distinct counts distinct values exactly until threshold is exceeded, then
// falls back to a HyperLogLog estimate.
func distinct(values []ir.Value, approximate bool, threshold int) Result {
	if approximate {
		return estimate(values)
	}
	seen := make(map[string]struct{})
	for _, v := range values {
		seen[ir.KeyString(v)] = struct{}{}
		if len(seen) > threshold {
			return estimate(values)
		}
	}
	return Result{Value: ir.Int(len(seen)), Exact: true}
}

func estimate(values []ir.Value) Result {
	h := NewHLL()
	for _, v := range values {
		h.Add(ir.KeyString(v))
	}
	return Result{Value: ir.Int(h.Count()), Exact: false}
}

// boundingBox returns {topLeft, bottomRight} over geopoint values.
func boundingBox(values []ir.Value) ir.Value {
	var box struct{ minLat, maxLat, minLon, maxLon float64 }
	found := false
	for _, v := range values {
		p, ok := v.(ir.GeoPoint)
		if !ok {
			continue
		}
		if !found {
			box.minLat, box.maxLat, box.minLon, box.maxLon = p.Lat, p.Lat, p.Lon, p.Lon
			found = true
			continue
		}
		box.minLat = math.Min(box.minLat, p.Lat)
		box.maxLat = math.Max(box.maxLat, p.Lat)
		box.minLon = math.Min(box.minLon, p.Lon)
		box.maxLon = math.Max(box.maxLon, p.Lon)
	}
	if !found {
		return ir.Null{}
	}
	return ir.Object{
		"topLeft":     ir.GeoPoint{Lat: box.maxLat, Lon: box.minLon},
		"bottomRight": ir.GeoPoint{Lat: box.minLat, Lon: box.maxLon},
	}
}

func timeFromMillis(ms float64) time.Time {
	return time.UnixMilli(int64(math.Round(ms)))
}
