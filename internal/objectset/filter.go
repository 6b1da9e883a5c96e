package objectset

import "github.com/roach88/osq/internal/ir"

// Filter is a predicate over the objects of a set.
//
// This is a sealed interface - only types in this package implement it.
// Properties are identifiers resolved against the scope of the set being
// filtered.
type Filter interface {
	filterNode() // Marker method - seals interface to this package
}

// And matches objects matching every filter. An empty And matches all.
type And struct {
	Filters []Filter
}

func (And) filterNode() {}

// Or matches objects matching any filter. An empty Or matches none.
type Or struct {
	Filters []Filter
}

func (Or) filterNode() {}

// Not inverts Filter.
type Not struct {
	Filter Filter
}

func (Not) filterNode() {}

// ExactMatch matches when the whole property value equals one of Terms.
// An empty Terms list matches every object.
type ExactMatch struct {
	Property string
	Terms    []ir.Value
}

func (ExactMatch) filterNode() {}

// Terms matches when the indexed value equals one of Terms. On analyzed
// strings the indexed values are tokens.
type Terms struct {
	Property string
	Terms    []ir.Value
}

func (Terms) filterNode() {}

// Range matches values within the given bounds. Nil bounds are open.
type Range struct {
	Property string
	Gt       ir.Value
	Gte      ir.Value
	Lt       ir.Value
	Lte      ir.Value
}

func (Range) filterNode() {}

// Phrase matches when the query tokens appear contiguously and in order.
type Phrase struct {
	Property string
	Query    string
	Fuzzy    bool
}

func (Phrase) filterNode() {}

// PrefixOnLastToken is Phrase where the last query token may be a prefix.
type PrefixOnLastToken struct {
	Property string
	Query    string
}

func (PrefixOnLastToken) filterNode() {}

// MatchOperator combines query tokens in MultiMatch.
type MatchOperator string

const (
	OperatorAnd MatchOperator = "AND"
	OperatorOr  MatchOperator = "OR"
)

// MultiMatch matches when any of Properties contains the query tokens.
type MultiMatch struct {
	Properties []string
	Query      string
	Operator   MatchOperator
	Fuzzy      bool
}

func (MultiMatch) filterNode() {}

// Wildcard matches a glob pattern (* and ?) against the whole value.
type Wildcard struct {
	Property string
	Pattern  string
}

func (Wildcard) filterNode() {}

// Regex matches a regular expression against the whole value.
type Regex struct {
	Property string
	Pattern  string
}

func (Regex) filterNode() {}

// GeoBoundingBox matches points inside the box.
type GeoBoundingBox struct {
	Property    string
	TopLeft     ir.GeoPoint
	BottomRight ir.GeoPoint
}

func (GeoBoundingBox) filterNode() {}

// GeoDistance matches points within DistanceMeters of Center.
type GeoDistance struct {
	Property       string
	Center         ir.GeoPoint
	DistanceMeters float64
}

func (GeoDistance) filterNode() {}

// GeoPolygon matches points inside the polygon.
type GeoPolygon struct {
	Property string
	Points   []ir.GeoPoint
}

func (GeoPolygon) filterNode() {}

// ShapeRelation is the spatial relation tested by GeoShape.
type ShapeRelation string

const (
	RelationIntersects ShapeRelation = "INTERSECTS"
	RelationWithin     ShapeRelation = "WITHIN"
	RelationDisjoint   ShapeRelation = "DISJOINT"
)

// GeoShape matches geometries in Relation to Shape.
type GeoShape struct {
	Property string
	Shape    ir.GeoShape
	Relation ShapeRelation
}

func (GeoShape) filterNode() {}

// HasProperty matches objects where the property exists and is non-null.
type HasProperty struct {
	Property string
}

func (HasProperty) filterNode() {}

// LinkPresence matches objects with at least one edge of Link to an object
// on Side. It does not check that the linked object still exists.
type LinkPresence struct {
	Link string
	Side RelationSide
}

func (LinkPresence) filterNode() {}

// UserContextValue selects which part of the caller identity to compare.
type UserContextValue string

const (
	UserContextUserID   UserContextValue = "USER_ID"
	UserContextGroupIDs UserContextValue = "GROUP_IDS"
)

// UserContext matches when the property equals the caller's user id, or
// one of the caller's group ids.
type UserContext struct {
	Property string
	Value    UserContextValue
}

func (UserContext) filterNode() {}

// FilterParameter is a literal or a parameter bound from the request
// context.
type FilterParameter interface {
	filterParameter()
}

// LiteralParameter is a parameter with a fixed value.
type LiteralParameter struct {
	Value ir.Value
}

func (LiteralParameter) filterParameter() {}

// UnresolvedFilterParameter is bound from Context.ParameterOverrides, or
// Default when no override exists.
type UnresolvedFilterParameter struct {
	ParameterID string
	Default     ir.Value
}

func (UnresolvedFilterParameter) filterParameter() {}

// ParameterizedExactMatch is ExactMatch with parameterized terms.
type ParameterizedExactMatch struct {
	Property string
	Terms    []FilterParameter
}

func (ParameterizedExactMatch) filterNode() {}

// ParameterizedTerms is Terms with parameterized terms.
type ParameterizedTerms struct {
	Property string
	Terms    []FilterParameter
}

func (ParameterizedTerms) filterNode() {}

// ParameterizedRange is Range with parameterized bounds.
type ParameterizedRange struct {
	Property string
	Gt       FilterParameter
	Gte      FilterParameter
	Lt       FilterParameter
	Lte      FilterParameter
}

func (ParameterizedRange) filterNode() {}

// ParameterizedPhrase is Phrase with a parameterized query.
type ParameterizedPhrase struct {
	Property string
	Query    FilterParameter
}

func (ParameterizedPhrase) filterNode() {}

// AggregationFilter restricts the candidates of one aggregation branch.
type AggregationFilter interface {
	aggregationFilterNode() // Marker method - seals interface to this package
}

type AggregationAnd struct {
	Filters []AggregationFilter
}

func (AggregationAnd) aggregationFilterNode() {}

type AggregationOr struct {
	Filters []AggregationFilter
}

func (AggregationOr) aggregationFilterNode() {}

type AggregationNot struct {
	Filter AggregationFilter
}

func (AggregationNot) aggregationFilterNode() {}

// ExactMatchAggregationFilter requires at least one term.
type ExactMatchAggregationFilter struct {
	Property string
	Terms    []ir.Value
}

func (ExactMatchAggregationFilter) aggregationFilterNode() {}

type RangeAggregationFilter struct {
	Property string
	Gt       ir.Value
	Gte      ir.Value
	Lt       ir.Value
	Lte      ir.Value
}

func (RangeAggregationFilter) aggregationFilterNode() {}

type HasPropertyAggregationFilter struct {
	Property string
}

func (HasPropertyAggregationFilter) aggregationFilterNode() {}

type WildcardAggregationFilter struct {
	Property string
	Pattern  string
}

func (WildcardAggregationFilter) aggregationFilterNode() {}

// ObjectSetAggregationFilter embeds an object set filter.
type ObjectSetAggregationFilter struct {
	Filter Filter
}

func (ObjectSetAggregationFilter) aggregationFilterNode() {}
