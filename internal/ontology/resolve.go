package ontology

import (
	"github.com/roach88/osq/internal/qerr"
)

// Usage is the operation a property identifier is resolved for.
type Usage int

const (
	UsageFilter Usage = iota
	UsageSort
	UsageAggregate
	UsageSelect
)

func (u Usage) String() string {
	switch u {
	case UsageSort:
		return "sort"
	case UsageAggregate:
		return "aggregate"
	case UsageSelect:
		return "select"
	default:
		return "filter"
	}
}

// ResolvedProperty is a property identifier bound to the concrete property
// of every member object type in a scope.
type ResolvedProperty struct {
	Identifier string

	// ByType maps member object type to local property name. Empty for
	// derived properties, which are addressed by Identifier.
	ByType map[string]string

	Type    PropertyType
	Derived bool
}

// Local returns the property name to read on objects of objectType.
func (r ResolvedProperty) Local(objectType string) string {
	if r.Derived {
		return r.Identifier
	}
	if local, ok := r.ByType[objectType]; ok {
		return local
	}
	return r.Identifier
}

// ResolveProperty validates id against scope for usage. Within an object
// type or union scope, identifiers name local properties or shared
// properties of any carried interface view; within an interface scope only
// the interface's shared properties are visible. Derived fields shadow
// nothing, since their ids may not collide with native properties.
func ResolveProperty(p MetadataProvider, id string, scope *Scope, usage Usage) (ResolvedProperty, error) {
	if f, ok := scope.Derived[id]; ok {
		rp := ResolvedProperty{Identifier: id, Type: f.Type, Derived: true}
		return rp, checkUsage(rp, usage)
	}
	if len(scope.Members) == 0 {
		return ResolvedProperty{}, qerr.Validation(qerr.CodePropertyNotFound,
			"property %q not found: scope %s has no object types", id, scope)
	}

	rp := ResolvedProperty{Identifier: id, ByType: make(map[string]string, len(scope.Members))}
	first := true
	for _, name := range scope.Types() {
		local, typ, ok := lookupMember(p, scope, scope.Members[name], id)
		if !ok {
			return ResolvedProperty{}, qerr.Validation(qerr.CodePropertyNotFound,
				"property %q not found on object type %q in scope %s", id, name, scope)
		}
		if first {
			rp.Type = typ
			first = false
		} else if !rp.Type.Compatible(typ) {
			return ResolvedProperty{}, qerr.Validation(qerr.CodePropertyTypeMismatch,
				"property %q has incompatible types across scope %s (%s vs %s)", id, scope, rp.Type.Base, typ.Base)
		} else if !typ.Analyzed {
			rp.Type.Analyzed = false
		}
		rp.ByType[name] = local
	}
	return rp, checkUsage(rp, usage)
}

func lookupMember(p MetadataProvider, scope *Scope, m *Member, id string) (string, PropertyType, bool) {
	ot, ok := p.ObjectType(m.ObjectType)
	if !ok {
		return "", PropertyType{}, false
	}
	if scope.Kind != ScopeInterface {
		if typ, ok := ot.Properties[id]; ok {
			return id, typ, true
		}
	}
	for _, iface := range sortedKeys(m.Views) {
		if scope.Kind == ScopeInterface && iface != scope.Interface {
			continue
		}
		local, ok := m.Views[iface][id]
		if !ok {
			continue
		}
		if typ, ok := ot.Properties[local]; ok {
			return local, typ, true
		}
	}
	return "", PropertyType{}, false
}

func checkUsage(rp ResolvedProperty, usage Usage) error {
	switch usage {
	case UsageSort:
		if !rp.Type.Sortable() {
			return qerr.Validation(qerr.CodePropertyNotSortable,
				"property %q of type %s cannot be sorted on", rp.Identifier, describe(rp.Type))
		}
	case UsageAggregate:
		if rp.Type.Base == TypeVector {
			return qerr.Validation(qerr.CodePropertyTypeMismatch,
				"vector property %q cannot be aggregated", rp.Identifier)
		}
	}
	return nil
}

func describe(t PropertyType) string {
	switch {
	case t.Array:
		return "array<" + string(t.Base) + ">"
	case t.Analyzed:
		return "analyzed " + string(t.Base)
	default:
		return string(t.Base)
	}
}
