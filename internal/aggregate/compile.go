package aggregate

import (
	"cmp"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/roach88/osq/internal/bucket"
	"github.com/roach88/osq/internal/filter"
	"github.com/roach88/osq/internal/ir"
	"github.com/roach88/osq/internal/metric"
	"github.com/roach88/osq/internal/objectset"
	"github.com/roach88/osq/internal/ontology"
	"github.com/roach88/osq/internal/plan"
	"github.com/roach88/osq/internal/qerr"
)

// MaxGeohashPrecision is the longest geohash a dimension may bucket by.
const MaxGeohashPrecision = 12

// node is a compiled aggregation.
type node struct {
	name      string
	filter    plan.Predicate // nil: inherit the parent's candidates
	dimension *dimension     // nil: one group of every candidate
	metrics   []namedMetric
	subs      []*node
	ordering  []ordering
}

type dimension struct {
	objectType bool
	field      plan.Field
	spec       bucket.Spec
}

type namedMetric struct {
	name  string
	spec  metric.Spec
	field *plan.Field // nil for metrics that read no property
}

type ordering struct {
	metric     string // empty: order by bucket key
	descending bool
}

// compiler validates an aggregation tree against one scope. Every error is
// collected so a client sees all of them at once.
type compiler struct {
	catalog ontology.MetadataProvider
	filters *filter.Compiler
	scope   *ontology.Scope
	octx    objectset.Context
	errs    qerr.MultiError
}

func (c *compiler) root(agg objectset.RootAggregation) *node {
	return &node{
		metrics: c.metrics(agg.Metrics, objectset.Field(objectset.RootPath, "metrics")),
		subs:    c.subAggregations(agg.SubAggregations, objectset.Field(objectset.RootPath, "subAggregations")),
	}
}

func (c *compiler) subAggregations(aggs map[string]objectset.Aggregation, path string) []*node {
	var out []*node
	for _, name := range slices.Sorted(maps.Keys(aggs)) {
		if n := c.aggregation(name, aggs[name], objectset.Field(path, name)); n != nil {
			out = append(out, n)
		}
	}
	return out
}

func (c *compiler) aggregation(name string, agg objectset.Aggregation, path string) *node {
	n := &node{name: name}
	var (
		dim    objectset.Dimension
		filt   objectset.AggregationFilter
		orders []objectset.Ordering
		subs   map[string]objectset.Aggregation
	)
	switch a := agg.(type) {
	case objectset.MetricsAggregation:
		dim, filt, orders, subs = a.Dimension, a.Filter, a.Ordering, a.SubAggregations
		n.metrics = c.metrics(a.Metrics, objectset.Field(path, "metrics"))
	case objectset.NestedAggregation:
		dim, filt, orders, subs = a.Dimension, a.Filter, a.Ordering, a.SubAggregations
		if a.Dimension == nil {
			c.errs.Append(qerr.Validation(qerr.CodeInvalidExpression, "nested aggregation has no dimension").
				At(objectset.Field(path, "dimension")))
		}
	default:
		c.errs.Append(qerr.Validation(qerr.CodeInvalidExpression, "aggregation %q is missing or malformed", name).At(path))
		return nil
	}

	if filt != nil {
		pred, err := c.filters.CompileAggregation(filt, c.scope, c.octx, objectset.Field(path, "filter"))
		if err != nil {
			c.errs.Append(err)
		}
		n.filter = pred
	}
	if dim != nil {
		n.dimension = c.dimension(dim, objectset.Field(path, "dimension"))
	}
	n.ordering = c.orderings(orders, n, objectset.Field(path, "ordering"))
	n.subs = c.subAggregations(subs, objectset.Field(path, "subAggregations"))
	return n
}

func (c *compiler) metrics(defs map[string]objectset.Metric, path string) []namedMetric {
	var out []namedMetric
	for _, name := range slices.Sorted(maps.Keys(defs)) {
		at := objectset.Field(path, name)
		spec, property, err := metric.FromDefinition(defs[name])
		if err != nil {
			c.errs.Append(qerr.WithPath(err, at))
			continue
		}
		m := namedMetric{name: name, spec: spec}
		if property != "" {
			f, err := ontology.ResolveProperty(c.catalog, property, c.scope, ontology.UsageAggregate)
			if err != nil {
				c.errs.Append(qerr.WithPath(err, objectset.Field(at, "property")))
				continue
			}
			if err := metric.Check(spec, property, f.Type); err != nil {
				c.errs.Append(qerr.WithPath(err, at))
				continue
			}
			m.field = &f
		}
		out = append(out, m)
	}
	return out
}

func (c *compiler) orderings(orders []objectset.Ordering, n *node, path string) []ordering {
	var out []ordering
	for i, o := range orders {
		at := objectset.Elem(path, i)
		switch o := o.(type) {
		case objectset.KeyOrdering:
			out = append(out, ordering{descending: o.Direction == objectset.Descending})
		case objectset.ValueOrdering:
			if !slices.ContainsFunc(n.metrics, func(m namedMetric) bool { return m.name == o.Metric }) {
				c.errs.Append(qerr.Validation(qerr.CodeInvalidArgument,
					"ordering by metric %q, which the aggregation does not compute", o.Metric).At(at))
				continue
			}
			out = append(out, ordering{metric: o.Metric, descending: o.Direction == objectset.Descending})
		default:
			c.errs.Append(qerr.Validation(qerr.CodeInvalidExpression, "unknown ordering %T", o).At(at))
		}
	}
	return out
}

func maxBuckets(n int, path string) (int, error) {
	switch {
	case n == 0:
		return objectset.DefaultMaxBuckets, nil
	case n < 0 || n > objectset.MaxBuckets:
		return 0, qerr.Validation(qerr.CodeTooManyBuckets,
			"maxBuckets %d is outside [1, %d]", n, objectset.MaxBuckets).At(path)
	default:
		return n, nil
	}
}

func (c *compiler) dimension(dim objectset.Dimension, path string) *dimension {
	switch d := dim.(type) {
	case objectset.ObjectTypeDimension:
		limit, err := maxBuckets(d.MaxBuckets, objectset.Field(path, "maxBuckets"))
		if err != nil {
			c.errs.Append(err)
			return nil
		}
		return &dimension{
			objectType: true,
			spec:       bucket.Spec{Kind: bucket.KindExactValue, MaxBuckets: limit, NullBucket: d.ShouldCreateNullValueBucket},
		}

	case objectset.PropertyValueDimension:
		limit, err := maxBuckets(d.MaxBuckets, objectset.Field(path, "maxBuckets"))
		if err != nil {
			c.errs.Append(err)
			return nil
		}
		f, err := ontology.ResolveProperty(c.catalog, d.Property, c.scope, ontology.UsageAggregate)
		if err != nil {
			c.errs.Append(qerr.WithPath(err, objectset.Field(path, "property")))
			return nil
		}
		spec, err := bucketSpec(d.Bucketing, f, objectset.Field(path, "bucketing"))
		if err != nil {
			c.errs.Append(err)
			return nil
		}
		spec.MaxBuckets = limit
		spec.NullBucket = d.ShouldCreateNullValueBucket
		return &dimension{field: f, spec: spec}

	default:
		c.errs.Append(qerr.Validation(qerr.CodeInvalidExpression, "unknown dimension %T", dim).At(path))
		return nil
	}
}

func invalidBucketing(path, format string, args ...any) error {
	return qerr.Validation(qerr.CodeInvalidBucketing, format, args...).At(path)
}

// bucketSpec validates bucketing b over f.
func bucketSpec(b objectset.Bucketing, f plan.Field, path string) (bucket.Spec, error) {
	switch b := b.(type) {
	case nil:
		return exactSpec(bucket.KindExactValue, nil, f, false, path)

	case objectset.ExactValueBucketing:
		return exactSpec(bucket.KindExactValue, b.ValueFilter, f, false, path)

	case objectset.KeywordsBucketing:
		return exactSpec(bucket.KindKeywords, b.ValueFilter, f, f.Type.Base == ontology.TypeString && f.Type.Analyzed, path)

	case objectset.GeoHashBucketing:
		if f.Type.Base != ontology.TypeGeoPoint {
			return bucket.Spec{}, invalidBucketing(path, "geohash bucketing needs a geopoint property, %q is %s", f.Identifier, f.Type.Base)
		}
		if b.Precision < 1 || b.Precision > MaxGeohashPrecision {
			return bucket.Spec{}, invalidBucketing(objectset.Field(path, "precision"),
				"geohash precision %d is outside [1, %d]", b.Precision, MaxGeohashPrecision)
		}
		return bucket.Spec{Kind: bucket.KindGeoHash, Precision: b.Precision}, nil

	case objectset.NumericBucketing:
		if !f.Type.IsNumeric() {
			return bucket.Spec{}, invalidBucketing(path, "numeric bucketing needs a numeric property, %q is %s", f.Identifier, f.Type.Base)
		}
		return numericSpec(b, path)

	case objectset.DateBucketing:
		if !f.Type.IsDate() {
			return bucket.Spec{}, invalidBucketing(path, "date bucketing needs a date or timestamp property, %q is %s", f.Identifier, f.Type.Base)
		}
		if b.Interval.Value < 1 {
			return bucket.Spec{}, invalidBucketing(objectset.Field(path, "interval"), "date interval must be at least 1, got %d", b.Interval.Value)
		}
		if !validUnit(b.Interval.Unit) {
			return bucket.Spec{}, invalidBucketing(objectset.Field(path, "interval"), "unknown date interval unit %q", b.Interval.Unit)
		}
		loc := time.UTC
		if b.TimeZoneID != "" {
			var err error
			if loc, err = time.LoadLocation(b.TimeZoneID); err != nil {
				return bucket.Spec{}, invalidBucketing(objectset.Field(path, "timeZoneId"), "unknown time zone %q", b.TimeZoneID)
			}
		}
		return bucket.Spec{Kind: bucket.KindDate, Unit: b.Interval.Unit, Interval: b.Interval.Value, Location: loc}, nil

	default:
		return bucket.Spec{}, invalidBucketing(path, "unknown bucketing %T", b)
	}
}

func exactSpec(kind bucket.Kind, vf *objectset.ValueFilter, f plan.Field, tokenize bool, path string) (bucket.Spec, error) {
	if f.Type.Base == ontology.TypeVector || f.Type.Base == ontology.TypeGeoShape {
		return bucket.Spec{}, invalidBucketing(path, "cannot bucket %s property %q by value", f.Type.Base, f.Identifier)
	}
	if vf != nil {
		coerced := *vf
		var err error
		if coerced.Include, err = coerceKeys(vf.Include, f, tokenize); err != nil {
			return bucket.Spec{}, invalidBucketing(objectset.Field(path, "valueFilter"), "%v", err)
		}
		if coerced.Exclude, err = coerceKeys(vf.Exclude, f, tokenize); err != nil {
			return bucket.Spec{}, invalidBucketing(objectset.Field(path, "valueFilter"), "%v", err)
		}
		vf = &coerced
	}
	compiled, err := bucket.CompileValueFilter(vf)
	if err != nil {
		return bucket.Spec{}, qerr.WithPath(err, objectset.Field(path, "valueFilter"))
	}
	return bucket.Spec{Kind: kind, ValueFilter: compiled, Tokenize: tokenize}, nil
}

// coerceKeys converts value filter literals to the field's type so they
// compare equal to bucket keys. Token keys are already strings.
func coerceKeys(values []ir.Value, f plan.Field, tokenize bool) ([]ir.Value, error) {
	if tokenize || len(values) == 0 {
		return values, nil
	}
	out := make([]ir.Value, len(values))
	for i, v := range values {
		c, err := ir.Coerce(v, f.Type.Kind())
		if err != nil {
			return nil, fmt.Errorf("value filter literal %d for %q: %w", i, f.Identifier, err)
		}
		out[i] = c
	}
	return out, nil
}

func numericSpec(b objectset.NumericBucketing, path string) (bucket.Spec, error) {
	set := 0
	if b.FixedBucketCount != 0 {
		set++
	}
	if b.FixedWidth != nil {
		set++
	}
	if len(b.Ranges) > 0 {
		set++
	}
	if set != 1 {
		return bucket.Spec{}, invalidBucketing(path, "numeric bucketing needs exactly one of fixedBucketCount, fixedWidth or ranges")
	}

	switch {
	case b.FixedBucketCount != 0:
		if b.FixedBucketCount < 1 || b.FixedBucketCount > objectset.MaxBuckets {
			return bucket.Spec{}, invalidBucketing(objectset.Field(path, "fixedBucketCount"),
				"bucket count %d is outside [1, %d]", b.FixedBucketCount, objectset.MaxBuckets)
		}
		return bucket.Spec{Kind: bucket.KindFixedCount, Count: b.FixedBucketCount}, nil
	case b.FixedWidth != nil:
		if !(b.FixedWidth.Width > 0) {
			return bucket.Spec{}, invalidBucketing(objectset.Field(path, "fixedWidth"), "bucket width must be positive, got %g", b.FixedWidth.Width)
		}
		return bucket.Spec{Kind: bucket.KindFixedWidth, Width: b.FixedWidth.Width, Offset: b.FixedWidth.Offset}, nil
	default:
		for i, r := range b.Ranges {
			if r.From != nil && r.To != nil && *r.From >= *r.To {
				return bucket.Spec{}, invalidBucketing(objectset.Elem(objectset.Field(path, "ranges"), i),
					"range [%g, %g) is empty", *r.From, *r.To)
			}
		}
		return bucket.Spec{Kind: bucket.KindRanges, Ranges: slices.Clone(b.Ranges)}, nil
	}
}

func validUnit(u objectset.TimeUnit) bool {
	switch u {
	case objectset.UnitSecond, objectset.UnitMinute, objectset.UnitHour, objectset.UnitDay,
		objectset.UnitWeek, objectset.UnitMonth, objectset.UnitQuarter, objectset.UnitYear:
		return true
	}
	return false
}

// compareOrder orders buckets by the node's orderings, then by key.
func compareOrder(orders []ordering, a, b *Bucket) int {
	for _, o := range orders {
		var c int
		if o.metric == "" {
			c = ir.Compare(a.order, b.order)
		} else {
			c = ir.Compare(a.Metrics.Get(o.metric), b.Metrics.Get(o.metric))
		}
		if o.descending {
			c = -c
		}
		if c != 0 {
			return c
		}
	}
	if c := ir.Compare(a.order, b.order); c != 0 {
		return c
	}
	return cmp.Compare(ir.KeyString(a.Key), ir.KeyString(b.Key))
}
