// Package derived validates request-scoped derived properties and computes
// their values.
//
// Resolution is static: every violation is found by inspecting the
// definitions, never by executing them, and all violations of a request are
// reported together in a qerr.MultiError.
package derived

import (
	"sort"

	"github.com/roach88/osq/internal/metric"
	"github.com/roach88/osq/internal/objectset"
	"github.com/roach88/osq/internal/ontology"
	"github.com/roach88/osq/internal/plan"
	"github.com/roach88/osq/internal/qerr"
)

// Resolver validates derived property definitions against the catalog.
// It is safe for concurrent use.
type Resolver struct {
	catalog ontology.MetadataProvider
}

// NewResolver returns a resolver reading link and property metadata from
// catalog.
func NewResolver(catalog ontology.MetadataProvider) *Resolver {
	return &Resolver{catalog: catalog}
}

// Resolve validates every entry and returns the fields applying to scope,
// sorted by identifier. An entry applies when its target object type is a
// member of scope, or some member implements its target interface. Entries
// that do not apply are still validated.
func (r *Resolver) Resolve(entries objectset.TypedDerivedProperties, scope *ontology.Scope, path string) ([]plan.DerivedField, error) {
	forbidden := make(map[string]bool)
	for id := range scope.Derived {
		forbidden[id] = true
	}
	for _, e := range entries {
		for _, p := range e.Properties {
			forbidden[p.ID] = true
		}
	}

	var errs qerr.MultiError
	merged := make(map[string]*plan.DerivedField)
	// owners maps id -> object type -> index of the entry defining it there.
	owners := make(map[string]map[string]int)
	defs := make(map[string]map[int]plan.DerivedDef)
	for i, entry := range entries {
		entryPath := objectset.Elem(path, i)
		target, err := r.targetScope(entry.Target)
		if err != nil {
			errs.Append(qerr.WithPath(err, objectset.Field(entryPath, "target")))
			continue
		}
		fields := r.resolveAll(entry.Properties, target, forbidden, objectset.Field(entryPath, "properties"), &errs)

		var applies []string
		for _, t := range target.Types() {
			if scope.Has(t) {
				applies = append(applies, t)
			}
		}
		if len(applies) == 0 {
			continue
		}
		for _, f := range fields {
			prev, ok := merged[f.ID]
			if !ok {
				cp := f
				merged[f.ID] = &cp
				owners[f.ID] = make(map[string]int)
				defs[f.ID] = make(map[int]plan.DerivedDef)
			} else if !prev.Type.Compatible(f.Type) {
				errs.Append(qerr.Validation(qerr.CodePropertyTypeMismatch,
					"derived property %q is %s for %s but %s for an earlier entry", f.ID, f.Type.Base, entry.Target.APIName, prev.Type.Base).
					At(objectset.Field(entryPath, "properties")))
				continue
			}
			defs[f.ID][i] = f.Def
			for _, t := range applies {
				if _, taken := owners[f.ID][t]; !taken {
					owners[f.ID][t] = i
				}
			}
		}
	}
	if err := errs.ErrOrNil(); err != nil {
		return nil, err
	}

	out := make([]plan.DerivedField, 0, len(merged))
	for id, f := range merged {
		entriesUsed := make(map[int]bool)
		for _, i := range owners[id] {
			entriesUsed[i] = true
		}
		if len(entriesUsed) > 1 {
			byType := make(map[string]plan.DerivedDef, len(owners[id]))
			for t, i := range owners[id] {
				byType[t] = defs[id][i]
			}
			f.Def = plan.ByTypeDef{Defs: byType}
		}
		out = append(out, *f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ResolveForScope validates the properties attached by a withProperties
// node and returns them in declaration order.
func (r *Resolver) ResolveForScope(props []objectset.DerivedProperty, scope *ontology.Scope, path string) ([]plan.DerivedField, error) {
	forbidden := make(map[string]bool)
	for id := range scope.Derived {
		forbidden[id] = true
	}
	for _, p := range props {
		forbidden[p.ID] = true
	}
	var errs qerr.MultiError
	fields := r.resolveAll(props, scope, forbidden, path, &errs)
	if err := errs.ErrOrNil(); err != nil {
		return nil, err
	}
	return fields, nil
}

// ScopeFields converts resolved fields into the scope extension they
// declare.
func ScopeFields(fields []plan.DerivedField) []ontology.DerivedField {
	out := make([]ontology.DerivedField, len(fields))
	for i, f := range fields {
		out[i] = ontology.DerivedField{ID: f.ID, Type: f.Type}
	}
	return out
}

func (r *Resolver) targetScope(t objectset.TypeRef) (*ontology.Scope, error) {
	if t.Kind == objectset.KindInterface {
		return ontology.InterfaceScope(r.catalog, t.APIName)
	}
	return ontology.ObjectTypeScope(r.catalog, t.APIName)
}

func (r *Resolver) resolveAll(props []objectset.DerivedProperty, scope *ontology.Scope, forbidden map[string]bool, path string, errs *qerr.MultiError) []plan.DerivedField {
	native := scope.Clone()
	native.Derived = nil

	seen := make(map[string]bool, len(props))
	var out []plan.DerivedField
	for j, p := range props {
		propPath := objectset.Elem(path, j)
		switch {
		case p.ID == "":
			errs.Append(qerr.Validation(qerr.CodeInvalidArgument, "derived property needs an identifier").At(propPath))
			continue
		case seen[p.ID]:
			errs.Append(qerr.Validation(qerr.CodeDuplicateDerivedProperty,
				"derived property %q is declared more than once", p.ID).At(propPath).With("propertyIdentifier", p.ID))
			continue
		}
		seen[p.ID] = true
		if r.isNative(p.ID, scope) {
			errs.Append(qerr.Validation(qerr.CodeDerivedPropertyCollision,
				"derived property %q collides with a property of %s", p.ID, scope).At(propPath).With("propertyIdentifier", p.ID))
			continue
		}
		rs := &resolution{Resolver: r, scope: native, forbidden: forbidden, path: objectset.Field(propPath, "definition")}
		f, err := rs.field(p)
		if err != nil {
			errs.Append(qerr.WithPath(err, rs.path))
			continue
		}
		out = append(out, f)
	}
	return out
}

// isNative reports whether id names a stored property visible in scope or
// a local property of any member type.
func (r *Resolver) isNative(id string, scope *ontology.Scope) bool {
	for _, t := range scope.Types() {
		if ot, ok := r.catalog.ObjectType(t); ok {
			if _, ok := ot.Properties[id]; ok {
				return true
			}
		}
	}
	stripped := scope.Clone()
	stripped.Derived = nil
	_, err := ontology.ResolveProperty(r.catalog, id, stripped, ontology.UsageSelect)
	return err == nil
}

// resolution resolves one definition. scope carries no derived fields, so
// every property reference names stored data.
type resolution struct {
	*Resolver
	scope     *ontology.Scope
	forbidden map[string]bool
	path      string
}

func (rs *resolution) native(id string) (plan.Field, error) {
	if rs.forbidden[id] {
		return plan.Field{}, qerr.Validation(qerr.CodeDerivedFromDerived,
			"property %q is derived and cannot be referenced by another derived property", id).With("property", id)
	}
	return ontology.ResolveProperty(rs.catalog, id, rs.scope, ontology.UsageSelect)
}

func (rs *resolution) field(p objectset.DerivedProperty) (plan.DerivedField, error) {
	switch d := p.Definition.(type) {
	case objectset.NativeProperty:
		f, err := rs.native(d.Property)
		if err != nil {
			return plan.DerivedField{}, err
		}
		return plan.DerivedField{ID: p.ID, Type: f.Type, Def: plan.NativeDef{Field: f}}, nil
	case objectset.LinkedObjectProperty:
		return rs.linked(p.ID, []objectset.LinkHop{d.Link}, d.Property)
	case objectset.LinkedProperty:
		if len(d.Links) == 0 {
			return plan.DerivedField{}, qerr.Validation(qerr.CodeInvalidArgument, "linked property %q needs at least one link", p.ID)
		}
		return rs.linked(p.ID, d.Links, d.Property)
	case objectset.LinkedObjectsAggregationProperty:
		return rs.linkAggregate(p.ID, d)
	case objectset.CalculatedProperty:
		return rs.calculated(p.ID, d)
	default:
		return plan.DerivedField{}, qerr.NotSupported("derived property definition %T", p.Definition)
	}
}

// chains walks hops from every member type of the scope. With preserving
// set, every hop must reach at most one object.
func (rs *resolution) chains(hops []objectset.LinkHop, preserving bool) (map[string]plan.Chain, error) {
	out := make(map[string]plan.Chain, len(rs.scope.Members))
	for _, start := range rs.scope.Types() {
		cur := start
		chain := plan.Chain{Hops: make([]plan.Hop, 0, len(hops))}
		for _, h := range hops {
			hop, next, link, err := rs.hop(cur, h)
			if err != nil {
				return nil, err
			}
			if preserving {
				single := link.Cardinality == ontology.OneToOne ||
					(link.Cardinality == ontology.OneToMany && hop.Toward == objectset.SideSource)
				if !single {
					return nil, qerr.Validation(qerr.CodeInvalidLinkCardinality,
						"link %q is %s and reaches more than one object from %q", link.APIName, link.Cardinality, cur).
						With("link", link.APIName)
				}
			}
			chain.Hops = append(chain.Hops, hop)
			cur = next
		}
		chain.EndType = cur
		out[start] = chain
	}
	return out, nil
}

// hop resolves one link step from objects of type from. Interface links
// resolve to the concrete link the type binds.
func (rs *resolution) hop(from string, h objectset.LinkHop) (plan.Hop, string, *ontology.LinkType, error) {
	name := h.Link
	if _, ok := rs.catalog.LinkType(name); !ok {
		if _, isIface := rs.catalog.InterfaceLinkType(name); isIface {
			concrete, err := ontology.ConcreteLink(rs.catalog, from, name)
			if err != nil {
				return plan.Hop{}, "", nil, err
			}
			name = concrete
		}
	}
	link, err := ontology.RequireLinkType(rs.catalog, name)
	if err != nil {
		return plan.Hop{}, "", nil, err
	}
	toward := h.Side
	switch toward {
	case objectset.SideSource:
		if link.Target != from {
			return plan.Hop{}, "", nil, notEndpoint(link, from, "target")
		}
		return plan.Hop{Link: name, Toward: toward}, link.Source, link, nil
	case objectset.SideTarget:
		if link.Source != from {
			return plan.Hop{}, "", nil, notEndpoint(link, from, "source")
		}
		return plan.Hop{Link: name, Toward: toward}, link.Target, link, nil
	}
	switch {
	case link.Source == from && link.Target == from:
		return plan.Hop{}, "", nil, qerr.Validation(qerr.CodeInvalidArgument,
			"link %q joins %q to itself; name the side to traverse", name, from)
	case link.Source == from:
		return plan.Hop{Link: name, Toward: objectset.SideTarget}, link.Target, link, nil
	case link.Target == from:
		return plan.Hop{Link: name, Toward: objectset.SideSource}, link.Source, link, nil
	default:
		return plan.Hop{}, "", nil, notEndpoint(link, from, "source or target")
	}
}

func notEndpoint(link *ontology.LinkType, objectType, end string) error {
	return qerr.Validation(qerr.CodeInvalidArgument,
		"object type %q is not the %s of link %q", objectType, end, link.APIName).With("link", link.APIName)
}

// endProperty resolves property on every chain's end type. The types must
// agree across chains.
func (rs *resolution) endProperty(chains map[string]plan.Chain, property string) (map[string]plan.Chain, ontology.PropertyType, error) {
	var typ ontology.PropertyType
	first := true
	for _, start := range sortedChains(chains) {
		chain := chains[start]
		ot, err := ontology.RequireObjectType(rs.catalog, chain.EndType)
		if err != nil {
			return nil, typ, err
		}
		t, ok := ot.Properties[property]
		if !ok {
			return nil, typ, qerr.Validation(qerr.CodePropertyNotFound,
				"property %q not found on linked object type %q", property, chain.EndType).With("property", property)
		}
		if first {
			typ, first = t, false
		} else if !typ.Compatible(t) {
			return nil, typ, qerr.Validation(qerr.CodePropertyTypeMismatch,
				"property %q has incompatible types across linked object types", property)
		}
		chain.Property = property
		chains[start] = chain
	}
	return chains, typ, nil
}

func sortedChains(chains map[string]plan.Chain) []string {
	out := make([]string, 0, len(chains))
	for t := range chains {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func (rs *resolution) linked(id string, hops []objectset.LinkHop, property string) (plan.DerivedField, error) {
	chains, err := rs.chains(hops, true)
	if err != nil {
		return plan.DerivedField{}, err
	}
	chains, typ, err := rs.endProperty(chains, property)
	if err != nil {
		return plan.DerivedField{}, err
	}
	return plan.DerivedField{ID: id, Type: typ, Def: plan.LinkedDef{Chains: chains}}, nil
}

func (rs *resolution) linkAggregate(id string, d objectset.LinkedObjectsAggregationProperty) (plan.DerivedField, error) {
	spec, property, err := metric.FromDefinition(d.Aggregation)
	if err != nil {
		return plan.DerivedField{}, err
	}
	chains, err := rs.chains([]objectset.LinkHop{d.Link}, false)
	if err != nil {
		return plan.DerivedField{}, err
	}
	var input ontology.PropertyType
	if property != "" {
		chains, input, err = rs.endProperty(chains, property)
		if err != nil {
			return plan.DerivedField{}, err
		}
		if err := metric.Check(spec, property, input); err != nil {
			return plan.DerivedField{}, err
		}
	}
	out, ok := metric.OutputType(spec, input)
	if !ok {
		return plan.DerivedField{}, qerr.Validation(qerr.CodeInvalidMetric,
			"%s cannot define a derived property", spec.Kind)
	}
	return plan.DerivedField{ID: id, Type: out, Def: plan.LinkAggregateDef{Chains: chains, Metric: spec}}, nil
}
