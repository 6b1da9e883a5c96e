package plan

import (
	"sort"

	"github.com/dlclark/regexp2"

	"github.com/roach88/osq/internal/ir"
	"github.com/roach88/osq/internal/objectset"
)

// Predicate is a compiled filter.
//
// This is a sealed interface - only types in this package implement it.
// Literal values are already coerced to the field's type and strings for
// token matching are already normalised.
type Predicate interface {
	predicateNode() // Marker method - seals interface to this package
}

// True matches every object.
type True struct{}

func (True) predicateNode() {}

// False matches nothing.
type False struct{}

func (False) predicateNode() {}

// And is true when every predicate is true; empty is true.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// Or is true when any predicate is true; empty is false.
type Or struct {
	Predicates []Predicate
}

func (Or) predicateNode() {}

type Not struct {
	Predicate Predicate
}

func (Not) predicateNode() {}

// Exact is true when the field value, or any element of an array value,
// equals one of Terms.
type Exact struct {
	Field Field
	Terms []ir.Value
}

func (Exact) predicateNode() {}

// Tokens matches normalised query tokens against the tokens of an
// analyzed field: any of them, or every one when All is set.
type Tokens struct {
	Field  Field
	Tokens []string
	All    bool
	Fuzzy  bool
}

func (Tokens) predicateNode() {}

// Phrase is true when Tokens occur contiguously and in order in an
// analyzed field. With PrefixLast the final token may match as a prefix.
type Phrase struct {
	Field      Field
	Tokens     []string
	Fuzzy      bool
	PrefixLast bool
}

func (Phrase) predicateNode() {}

// Prefix is true when the whole string value starts with Prefix.
type Prefix struct {
	Field  Field
	Prefix string
}

func (Prefix) predicateNode() {}

// Range bounds are coerced to the field type; nil bounds are open.
type Range struct {
	Field Field
	Gt    ir.Value
	Gte   ir.Value
	Lt    ir.Value
	Lte   ir.Value
}

func (Range) predicateNode() {}

// Pattern is a regular expression anchored on both ends. With Tokens set it
// is matched against each token of an analyzed value rather than the whole
// value.
type Pattern struct {
	Field  Field
	Regex  *regexp2.Regexp
	Tokens bool
}

func (Pattern) predicateNode() {}

type GeoBox struct {
	Field       Field
	TopLeft     ir.GeoPoint
	BottomRight ir.GeoPoint
}

func (GeoBox) predicateNode() {}

// GeoDistance uses great-circle distance in metres.
type GeoDistance struct {
	Field  Field
	Center ir.GeoPoint
	Meters float64
}

func (GeoDistance) predicateNode() {}

type GeoPolygon struct {
	Field  Field
	Points []ir.GeoPoint
}

func (GeoPolygon) predicateNode() {}

type GeoShape struct {
	Field    Field
	Shape    ir.GeoShape
	Relation objectset.ShapeRelation
}

func (GeoShape) predicateNode() {}

// Has is true when the field is present and non-null.
type Has struct {
	Field Field
}

func (Has) predicateNode() {}

// LinkPresence is true when the object has at least one edge of Link with
// the object at End. Linked objects are not checked for existence.
type LinkPresence struct {
	Link string
	End  objectset.RelationSide
}

func (LinkPresence) predicateNode() {}

// Links returns the link types pred tests for presence, sorted and
// deduplicated.
func Links(pred Predicate) []string {
	seen := make(map[string]bool)
	var visit func(Predicate)
	visit = func(p Predicate) {
		switch n := p.(type) {
		case And:
			for _, sub := range n.Predicates {
				visit(sub)
			}
		case Or:
			for _, sub := range n.Predicates {
				visit(sub)
			}
		case Not:
			visit(n.Predicate)
		case LinkPresence:
			seen[n.Link] = true
		}
	}
	visit(pred)

	out := make([]string, 0, len(seen))
	for l := range seen {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}
