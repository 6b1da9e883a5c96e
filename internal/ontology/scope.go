package ontology

import (
	"fmt"
	"maps"
	"strings"
)

// ScopeKind identifies the shape of a type scope.
type ScopeKind string

const (
	ScopeObjectType ScopeKind = "OBJECT_TYPE"
	ScopeInterface  ScopeKind = "INTERFACE"
	ScopeUnion      ScopeKind = "UNION"
)

// Member is one object type in a scope together with the interface views
// it carries. Views maps interface -> shared property -> local property.
type Member struct {
	ObjectType string
	Views      map[string]map[string]string
}

func (m *Member) clone() *Member {
	out := &Member{ObjectType: m.ObjectType, Views: make(map[string]map[string]string, len(m.Views))}
	for iface, view := range m.Views {
		out.Views[iface] = maps.Clone(view)
	}
	return out
}

func (m *Member) mergeViews(views map[string]map[string]string) {
	for iface, view := range views {
		dst, ok := m.Views[iface]
		if !ok {
			dst = make(map[string]string, len(view))
			m.Views[iface] = dst
		}
		for shared, local := range view {
			dst[shared] = local
		}
	}
}

// DerivedField is a request-scoped property attached to a scope.
type DerivedField struct {
	ID   string
	Type PropertyType
}

// Scope is the type scope attached to every resolved set. Scopes are
// values: operations return new scopes and never mutate their inputs.
type Scope struct {
	Kind       ScopeKind
	ObjectType string
	Interface  string
	Members    map[string]*Member
	Derived    map[string]DerivedField
}

// ObjectTypeScope is the scope of Base(name).
func ObjectTypeScope(p MetadataProvider, name string) (*Scope, error) {
	if _, err := RequireObjectType(p, name); err != nil {
		return nil, err
	}
	return &Scope{
		Kind:       ScopeObjectType,
		ObjectType: name,
		Members:    map[string]*Member{name: {ObjectType: name, Views: map[string]map[string]string{}}},
	}, nil
}

// InterfaceScope is the scope of InterfaceBase(iface): every object type
// implementing iface directly or through an extending interface, each
// carrying its view of iface.
func InterfaceScope(p MetadataProvider, iface string) (*Scope, error) {
	if _, err := RequireInterface(p, iface); err != nil {
		return nil, err
	}
	s := &Scope{Kind: ScopeInterface, Interface: iface, Members: map[string]*Member{}}
	for _, name := range Implementers(p, iface) {
		view, _ := View(p, name, iface)
		s.Members[name] = &Member{ObjectType: name, Views: map[string]map[string]string{iface: view}}
	}
	return s, nil
}

// UnionScope is a scope over raw object types with no interface views.
func UnionScope(types []string) *Scope {
	s := &Scope{Kind: ScopeUnion, Members: make(map[string]*Member, len(types))}
	for _, t := range types {
		s.Members[t] = &Member{ObjectType: t, Views: map[string]map[string]string{}}
	}
	if len(types) == 1 {
		s.Kind = ScopeObjectType
		s.ObjectType = types[0]
	}
	return s
}

// Types returns the member object types in sorted order.
func (s *Scope) Types() []string {
	return sortedKeys(s.Members)
}

// Has reports whether objectType is a member of s.
func (s *Scope) Has(objectType string) bool {
	_, ok := s.Members[objectType]
	return ok
}

// Clone returns a deep copy of s.
func (s *Scope) Clone() *Scope {
	out := &Scope{
		Kind:       s.Kind,
		ObjectType: s.ObjectType,
		Interface:  s.Interface,
		Members:    make(map[string]*Member, len(s.Members)),
		Derived:    maps.Clone(s.Derived),
	}
	for name, m := range s.Members {
		out.Members[name] = m.clone()
	}
	return out
}

// WithDerived returns a copy of s extended with derived fields.
func (s *Scope) WithDerived(fields ...DerivedField) *Scope {
	out := s.Clone()
	if out.Derived == nil {
		out.Derived = make(map[string]DerivedField, len(fields))
	}
	for _, f := range fields {
		out.Derived[f.ID] = f
	}
	return out
}

// StripViews returns the union of raw member object types, without views
// or derived fields.
func (s *Scope) StripViews() *Scope {
	return UnionScope(s.Types())
}

// Intersect combines the scopes of intersected inputs. Members are the
// object types present in every input; each carries the merged views of
// all inputs.
func Intersect(scopes ...*Scope) *Scope {
	if len(scopes) == 0 {
		return UnionScope(nil)
	}
	out := &Scope{Members: map[string]*Member{}}
	for name := range scopes[0].Members {
		inAll := true
		for _, s := range scopes[1:] {
			if !s.Has(name) {
				inAll = false
				break
			}
		}
		if !inAll {
			continue
		}
		m := &Member{ObjectType: name, Views: map[string]map[string]string{}}
		for _, s := range scopes {
			m.mergeViews(s.Members[name].Views)
		}
		out.Members[name] = m
	}
	for _, s := range scopes {
		for id, f := range s.Derived {
			if out.Derived == nil {
				out.Derived = map[string]DerivedField{}
			}
			out.Derived[id] = f
		}
	}
	classify(out, scopes)
	return out
}

// Union combines the scopes of unioned inputs. Members are the object
// types present in any input; each carries the merged views of every
// input it appeared in. Derived fields survive only when every input
// defines them.
func Union(scopes ...*Scope) *Scope {
	if len(scopes) == 0 {
		return UnionScope(nil)
	}
	out := &Scope{Members: map[string]*Member{}}
	for _, s := range scopes {
		for name, sm := range s.Members {
			m, ok := out.Members[name]
			if !ok {
				m = &Member{ObjectType: name, Views: map[string]map[string]string{}}
				out.Members[name] = m
			}
			m.mergeViews(sm.Views)
		}
	}
	for id, f := range scopes[0].Derived {
		shared := true
		for _, s := range scopes[1:] {
			if g, ok := s.Derived[id]; !ok || !g.Type.Compatible(f.Type) {
				shared = false
				break
			}
		}
		if shared {
			if out.Derived == nil {
				out.Derived = map[string]DerivedField{}
			}
			out.Derived[id] = f
		}
	}
	classify(out, scopes)
	return out
}

// classify sets the kind of a combined scope. Inputs that all agree on a
// single type keep it; a single surviving member is an object type scope;
// anything else is a union.
func classify(out *Scope, inputs []*Scope) {
	first := inputs[0]
	same := true
	for _, s := range inputs[1:] {
		if s.Kind != first.Kind || s.ObjectType != first.ObjectType || s.Interface != first.Interface {
			same = false
			break
		}
	}
	switch {
	case same && first.Kind != ScopeUnion:
		out.Kind, out.ObjectType, out.Interface = first.Kind, first.ObjectType, first.Interface
	case len(out.Members) == 1:
		out.Kind = ScopeObjectType
		for name := range out.Members {
			out.ObjectType = name
		}
	default:
		out.Kind = ScopeUnion
	}
}

// AsInterface rescopes s to iface, dropping members that do not satisfy it.
// Existing views are kept and the view of iface is added.
func AsInterface(p MetadataProvider, s *Scope, iface string) (*Scope, error) {
	if _, err := RequireInterface(p, iface); err != nil {
		return nil, err
	}
	out := &Scope{Kind: ScopeInterface, Interface: iface, Members: map[string]*Member{}, Derived: maps.Clone(s.Derived)}
	for name, m := range s.Members {
		view, ok := View(p, name, iface)
		if !ok {
			continue
		}
		cp := m.clone()
		cp.Views[iface] = view
		out.Members[name] = cp
	}
	return out, nil
}

// AsObjectType rescopes s to a single object type, dropping other members.
func AsObjectType(p MetadataProvider, s *Scope, objectType string) (*Scope, error) {
	if _, err := RequireObjectType(p, objectType); err != nil {
		return nil, err
	}
	out := &Scope{Kind: ScopeObjectType, ObjectType: objectType, Members: map[string]*Member{}, Derived: maps.Clone(s.Derived)}
	if m, ok := s.Members[objectType]; ok {
		out.Members[objectType] = m.clone()
	}
	return out, nil
}

// String renders the scope for diagnostics.
func (s *Scope) String() string {
	switch s.Kind {
	case ScopeObjectType:
		return fmt.Sprintf("objectType(%s)", s.ObjectType)
	case ScopeInterface:
		return fmt.Sprintf("interface(%s)[%s]", s.Interface, strings.Join(s.Types(), ","))
	default:
		return fmt.Sprintf("union[%s]", strings.Join(s.Types(), ","))
	}
}
