package objectset

import "github.com/roach88/osq/internal/ir"

// MaxBuckets is the largest bucket cap a dimension may request.
const MaxBuckets = 10000

// DefaultMaxBuckets applies when a dimension sets no cap.
const DefaultMaxBuckets = 100

// RootAggregation is the top of an aggregation tree. Metrics are computed
// over the whole set; each sub-aggregation partitions it further.
type RootAggregation struct {
	Metrics         map[string]Metric
	SubAggregations map[string]Aggregation
}

// Aggregation is a sealed aggregation node.
type Aggregation interface {
	aggregationNode()
}

// MetricsAggregation computes Metrics per bucket of Dimension, or once over
// all candidates when Dimension is nil.
type MetricsAggregation struct {
	Dimension       Dimension
	Filter          AggregationFilter
	Metrics         map[string]Metric
	Ordering        []Ordering
	SubAggregations map[string]Aggregation
}

func (MetricsAggregation) aggregationNode() {}

// NestedAggregation groups without computing metrics of its own.
type NestedAggregation struct {
	Dimension       Dimension
	Filter          AggregationFilter
	SubAggregations map[string]Aggregation
	Ordering        []Ordering
}

func (NestedAggregation) aggregationNode() {}

// Dimension partitions candidates into buckets.
type Dimension interface {
	dimensionNode()
}

// PropertyValueDimension buckets by the value of a property.
type PropertyValueDimension struct {
	Property                    string
	Bucketing                   Bucketing
	MaxBuckets                  int
	ShouldCreateNullValueBucket bool
}

func (PropertyValueDimension) dimensionNode() {}

// ObjectTypeDimension buckets by object type.
type ObjectTypeDimension struct {
	MaxBuckets                  int
	ShouldCreateNullValueBucket bool
}

func (ObjectTypeDimension) dimensionNode() {}

// Bucketing is the rule assigning values to buckets.
type Bucketing interface {
	bucketingNode()
}

// ValueFilter includes or excludes bucket keys before the bucket cap is
// applied. Include and IncludeRegex, when set, must both accept a key.
type ValueFilter struct {
	Include      []ir.Value
	Exclude      []ir.Value
	IncludeRegex string
	ExcludeRegex string
}

// ExactValueBucketing is one bucket per distinct value.
type ExactValueBucketing struct {
	ValueFilter *ValueFilter
}

func (ExactValueBucketing) bucketingNode() {}

// KeywordsBucketing is one bucket per distinct token of an analyzed string,
// or per distinct value otherwise.
type KeywordsBucketing struct {
	ValueFilter *ValueFilter
}

func (KeywordsBucketing) bucketingNode() {}

// GeoHashBucketing buckets geopoints by geohash prefix.
type GeoHashBucketing struct {
	Precision int
}

func (GeoHashBucketing) bucketingNode() {}

// FixedWidth buckets numbers into [Offset + n*Width, Offset + (n+1)*Width).
type FixedWidth struct {
	Width  float64
	Offset float64
}

// NumericRange is a half-open range [From, To). Nil bounds are open.
type NumericRange struct {
	From *float64
	To   *float64
}

// NumericBucketing sets exactly one of FixedBucketCount, FixedWidth or
// Ranges.
type NumericBucketing struct {
	FixedBucketCount int
	FixedWidth       *FixedWidth
	Ranges           []NumericRange
}

func (NumericBucketing) bucketingNode() {}

// DateInterval is Value calendar units.
type DateInterval struct {
	Unit  TimeUnit
	Value int
}

// DateBucketing buckets timestamps by calendar interval in a time zone.
type DateBucketing struct {
	Interval   DateInterval
	TimeZoneID string
}

func (DateBucketing) bucketingNode() {}

// Metric is a sealed metric definition.
type Metric interface {
	metricNode()
}

type Count struct{}

func (Count) metricNode() {}

type Avg struct{ Property string }

func (Avg) metricNode() {}

type Sum struct{ Property string }

func (Sum) metricNode() {}

type Min struct{ Property string }

func (Min) metricNode() {}

type Max struct{ Property string }

func (Max) metricNode() {}

// Percentile is in [0, 100].
type Percentile struct {
	Property   string
	Percentile float64
}

func (Percentile) metricNode() {}

// Cardinality is an approximate distinct count.
type Cardinality struct{ Property string }

func (Cardinality) metricNode() {}

// ExactCardinality is an exact distinct count unless PREFER_SPEED forces
// an approximation.
type ExactCardinality struct{ Property string }

func (ExactCardinality) metricNode() {}

// DeviationMethod selects population or sample statistics.
type DeviationMethod string

const (
	Population DeviationMethod = "POPULATION"
	Sample     DeviationMethod = "SAMPLE"
)

type StandardDeviation struct {
	Property string
	Method   DeviationMethod
}

func (StandardDeviation) metricNode() {}

type Variance struct {
	Property string
	Method   DeviationMethod
}

func (Variance) metricNode() {}

// BoundingBox is the extent of a geopoint property.
type BoundingBox struct{ Property string }

func (BoundingBox) metricNode() {}

// CollectList collects up to Limit values in candidate order.
type CollectList struct {
	Property string
	Limit    int
}

func (CollectList) metricNode() {}

// CollectSet collects up to Limit distinct values in value order.
type CollectSet struct {
	Property string
	Limit    int
}

func (CollectSet) metricNode() {}

// Direction is a sort direction.
type Direction string

const (
	Ascending  Direction = "ASC"
	Descending Direction = "DESC"
)

// Ordering orders the buckets of one aggregation.
type Ordering interface {
	orderingNode()
}

// KeyOrdering orders buckets by key.
type KeyOrdering struct {
	Direction Direction
}

func (KeyOrdering) orderingNode() {}

// ValueOrdering orders buckets by one of the node's metrics.
type ValueOrdering struct {
	Metric    string
	Direction Direction
}

func (ValueOrdering) orderingNode() {}
