package metric

import (
	"github.com/roach88/osq/internal/objectset"
	"github.com/roach88/osq/internal/ontology"
	"github.com/roach88/osq/internal/qerr"
)

// DefaultCollectLimit applies when a collect metric sets no limit.
const DefaultCollectLimit = 100

// MaxCollectLimit bounds collectList and collectSet.
const MaxCollectLimit = 10000

// FromDefinition converts a metric definition into a Spec and the property
// it reads. Count reads no property.
func FromDefinition(m objectset.Metric) (Spec, string, error) {
	switch d := m.(type) {
	case objectset.Count:
		return Spec{Kind: KindCount}, "", nil
	case objectset.Avg:
		return Spec{Kind: KindAvg}, d.Property, nil
	case objectset.Sum:
		return Spec{Kind: KindSum}, d.Property, nil
	case objectset.Min:
		return Spec{Kind: KindMin}, d.Property, nil
	case objectset.Max:
		return Spec{Kind: KindMax}, d.Property, nil
	case objectset.Percentile:
		if d.Percentile < 0 || d.Percentile > 100 {
			return Spec{}, "", qerr.Validation(qerr.CodeInvalidMetric,
				"percentile %g is outside [0, 100]", d.Percentile)
		}
		return Spec{Kind: KindPercentile, Percentile: d.Percentile}, d.Property, nil
	case objectset.Cardinality:
		return Spec{Kind: KindCardinality}, d.Property, nil
	case objectset.ExactCardinality:
		return Spec{Kind: KindExactCardinality}, d.Property, nil
	case objectset.StandardDeviation:
		return Spec{Kind: KindStandardDeviation, Sample: d.Method == objectset.Sample}, d.Property, nil
	case objectset.Variance:
		return Spec{Kind: KindVariance, Sample: d.Method == objectset.Sample}, d.Property, nil
	case objectset.BoundingBox:
		return Spec{Kind: KindBoundingBox}, d.Property, nil
	case objectset.CollectList:
		limit, err := collectLimit(d.Limit)
		return Spec{Kind: KindCollectList, Limit: limit}, d.Property, err
	case objectset.CollectSet:
		limit, err := collectLimit(d.Limit)
		return Spec{Kind: KindCollectSet, Limit: limit}, d.Property, err
	default:
		return Spec{}, "", qerr.NotSupported("metric %T", m)
	}
}

func collectLimit(limit int) (int, error) {
	switch {
	case limit == 0:
		return DefaultCollectLimit, nil
	case limit < 0 || limit > MaxCollectLimit:
		return 0, qerr.Validation(qerr.CodeInvalidMetric,
			"collect limit %d is outside [1, %d]", limit, MaxCollectLimit)
	default:
		return limit, nil
	}
}

// Check reports whether a property of type t can feed spec.
func Check(spec Spec, property string, t ontology.PropertyType) error {
	ok := true
	switch spec.Kind {
	case KindSum, KindStandardDeviation, KindVariance:
		ok = t.IsNumeric()
	case KindAvg, KindPercentile:
		ok = t.IsNumeric() || t.IsDate()
	case KindMin, KindMax:
		ok = t.Sortable() || (t.Array && !t.IsGeo() && t.Base != ontology.TypeVector)
	case KindBoundingBox:
		ok = t.Base == ontology.TypeGeoPoint
	case KindCardinality, KindExactCardinality, KindCollectList, KindCollectSet:
		ok = t.Base != ontology.TypeVector
	}
	if !ok {
		return qerr.Validation(qerr.CodeInvalidMetric,
			"%s cannot be computed over property %q of type %s", spec.Kind, property, t.Base)
	}
	return nil
}

// OutputType is the property type of the value spec produces from input.
// Bounding boxes have no property type.
func OutputType(spec Spec, input ontology.PropertyType) (ontology.PropertyType, bool) {
	switch spec.Kind {
	case KindCount, KindCardinality, KindExactCardinality:
		return ontology.PropertyType{Base: ontology.TypeLong}, true
	case KindSum:
		if input.Base == ontology.TypeDouble {
			return ontology.PropertyType{Base: ontology.TypeDouble}, true
		}
		return ontology.PropertyType{Base: ontology.TypeLong}, true
	case KindAvg, KindPercentile:
		if input.IsDate() {
			return ontology.PropertyType{Base: ontology.TypeTimestamp}, true
		}
		return ontology.PropertyType{Base: ontology.TypeDouble}, true
	case KindStandardDeviation, KindVariance:
		return ontology.PropertyType{Base: ontology.TypeDouble}, true
	case KindMin, KindMax:
		return ontology.PropertyType{Base: input.Base}, true
	case KindCollectList, KindCollectSet:
		return ontology.PropertyType{Base: input.Base, Array: true}, true
	default:
		return ontology.PropertyType{}, false
	}
}
