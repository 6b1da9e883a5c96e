package plan

import (
	"cmp"

	"github.com/roach88/osq/internal/ir"
	"github.com/roach88/osq/internal/ontology"
)

// Field is a property reference resolved against a scope.
type Field = ontology.ResolvedProperty

// Key identifies one object.
type Key struct {
	ObjectType string
	PrimaryKey string
}

func (k Key) String() string {
	return k.ObjectType + "/" + k.PrimaryKey
}

// CompareKeys is the default object order: object type, then primary key,
// both bytewise.
func CompareKeys(a, b Key) int {
	if c := cmp.Compare(a.ObjectType, b.ObjectType); c != 0 {
		return c
	}
	return cmp.Compare(a.PrimaryKey, b.PrimaryKey)
}

// Object is one matched object.
type Object struct {
	Key
	Properties ir.Object

	// Derived holds request-scoped derived property values by identifier.
	Derived ir.Object

	// Distance is set on kNN results.
	Distance *float64
}

// Value reads field on o. Missing properties are Null.
func (o *Object) Value(f Field) ir.Value {
	if f.Derived {
		return o.Derived.Get(f.Identifier)
	}
	return o.Properties.Get(f.Local(o.ObjectType))
}

// WithDerived returns a copy of o carrying the given derived value. The
// property map is shared; derived values are copied on write.
func (o Object) WithDerived(id string, v ir.Value) Object {
	derived := make(ir.Object, len(o.Derived)+1)
	for k, dv := range o.Derived {
		derived[k] = dv
	}
	derived[id] = v
	o.Derived = derived
	return o
}
