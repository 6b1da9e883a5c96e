package plan

import (
	"github.com/roach88/osq/internal/ir"
	"github.com/roach88/osq/internal/ontology"
)

// Constraint is one SQL-expressible conjunct: the property, read per object
// type, equals one of Values, or is present when Values is empty.
type Constraint struct {
	Field  Field
	Values []ir.Value
}

// PushdownResult is the scan-level fragment of a predicate.
type PushdownResult struct {
	Constraints []Constraint

	// Complete is true when the constraints express the whole predicate.
	Complete bool
}

// Pushdown extracts the conjuncts of pred a storage scan can evaluate:
// exact matches on scalar string, integer and boolean properties, and
// presence checks. Anything else is left to the caller, which must
// evaluate the full predicate regardless.
//
// Pushdown is a pure function with no side effects.
func Pushdown(pred Predicate) PushdownResult {
	p := &pushdown{complete: true}
	p.visit(pred)
	return PushdownResult{Constraints: p.constraints, Complete: p.complete}
}

// pushdown accumulates constraints during traversal.
type pushdown struct {
	constraints []Constraint
	complete    bool
}

func (p *pushdown) visit(pred Predicate) {
	switch n := pred.(type) {
	case nil, True:
	case And:
		for _, sub := range n.Predicates {
			p.visit(sub)
		}
	case Exact:
		if len(n.Terms) == 0 {
			return
		}
		if !pushable(n.Field) {
			p.complete = false
			return
		}
		for _, term := range n.Terms {
			switch term.(type) {
			case ir.String, ir.Int, ir.Bool:
			default:
				p.complete = false
				return
			}
		}
		p.constraints = append(p.constraints, Constraint{Field: n.Field, Values: n.Terms})
	case Has:
		if !pushable(n.Field) {
			p.complete = false
			return
		}
		p.constraints = append(p.constraints, Constraint{Field: n.Field})
	default:
		p.complete = false
	}
}

// pushable reports whether a stored JSON value of f compares equal in SQL
// exactly when it does in Go.
func pushable(f Field) bool {
	if f.Derived || f.Type.Array || f.Type.Analyzed {
		return false
	}
	switch f.Type.Base {
	case ontology.TypeString, ontology.TypeInteger, ontology.TypeLong, ontology.TypeBoolean:
		return true
	}
	return false
}
