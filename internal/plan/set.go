package plan

import (
	"github.com/roach88/osq/internal/objectset"
	"github.com/roach88/osq/internal/ontology"
)

// Set is a resolved object set definition.
//
// This is a sealed interface - only types in this package implement it.
// A Set describes membership without materializing it; backends execute it.
type Set interface {
	setNode() // Marker method - seals interface to this package
}

// Scan is every object of ObjectTypes.
type Scan struct {
	ObjectTypes []string
}

func (Scan) setNode() {}

// Static is an explicit list of objects. Keys naming objects that do not
// exist at the read snapshot are dropped.
type Static struct {
	Keys []Key
}

func (Static) setNode() {}

// Filter keeps the objects of Input satisfying Predicate.
type Filter struct {
	Input     Set
	Predicate Predicate
}

func (Filter) setNode() {}

// Intersect is the objects present in every input.
type Intersect struct {
	Inputs []Set
}

func (Intersect) setNode() {}

// Union is the objects present in any input.
type Union struct {
	Inputs []Set
}

func (Union) setNode() {}

// Subtract is the first input minus every other input.
type Subtract struct {
	Inputs []Set
}

func (Subtract) setNode() {}

// Traverse follows Link from the objects of Input. Toward is the end of the
// link where result objects sit; EITHER follows the link both ways and
// unions the results.
type Traverse struct {
	Input  Set
	Link   string
	Toward objectset.RelationSide
}

func (Traverse) setNode() {}

// SoftTraverse follows a soft link: objects are linked when the source
// property value equals the target property value.
type SoftTraverse struct {
	Input  Set
	Link   ontology.SoftLinkType
	Toward objectset.RelationSide
}

func (SoftTraverse) setNode() {}

// Restrict keeps the objects of Input whose type is in ObjectTypes.
type Restrict struct {
	Input       Set
	ObjectTypes []string
}

func (Restrict) setNode() {}

// Nearest is the K objects of Input closest to the query on a vector
// property, closest first. Exactly one of Vector and Text is set; Text is
// embedded by the backend.
type Nearest struct {
	Input      Set
	Field      Field
	K          int
	Vector     []float64
	Text       string
	Similarity string
}

func (Nearest) setNode() {}

// Derive attaches derived property values to the objects of Input.
type Derive struct {
	Input  Set
	Fields []DerivedField
}

func (Derive) setNode() {}

// Inputs returns the direct inputs of s.
func Inputs(s Set) []Set {
	switch n := s.(type) {
	case Filter:
		return []Set{n.Input}
	case Intersect:
		return n.Inputs
	case Union:
		return n.Inputs
	case Subtract:
		return n.Inputs
	case Traverse:
		return []Set{n.Input}
	case SoftTraverse:
		return []Set{n.Input}
	case Restrict:
		return []Set{n.Input}
	case Nearest:
		return []Set{n.Input}
	case Derive:
		return []Set{n.Input}
	default:
		return nil
	}
}

// Ordered reports whether s carries its own result order (kNN distance)
// that the default key order must not replace.
func Ordered(s Set) bool {
	switch n := s.(type) {
	case Nearest:
		return true
	case Derive:
		return Ordered(n.Input)
	default:
		return false
	}
}
