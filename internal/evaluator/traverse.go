package evaluator

import (
	"github.com/roach88/osq/internal/objectset"
	"github.com/roach88/osq/internal/ontology"
	"github.com/roach88/osq/internal/plan"
	"github.com/roach88/osq/internal/qerr"
)

// directions expands a requested side into the ends results may sit on.
func directions(side objectset.RelationSide) ([]objectset.RelationSide, error) {
	switch side {
	case objectset.SideSource:
		return []objectset.RelationSide{objectset.SideSource}, nil
	case objectset.SideTarget:
		return []objectset.RelationSide{objectset.SideTarget}, nil
	case objectset.SideEither, "":
		return []objectset.RelationSide{objectset.SideTarget, objectset.SideSource}, nil
	default:
		return nil, qerr.Validation(qerr.CodeInvalidArgument, "unknown relation side %q", side)
	}
}

// endpoints returns the object types a traversal toward the given end
// starts from and arrives at.
func endpoints(source, target string, toward objectset.RelationSide) (from, to string) {
	if toward == objectset.SideSource {
		return target, source
	}
	return source, target
}

// combine merges the directions a traversal took. Both directions become
// EITHER so the backend unions them.
func combine(towards []objectset.RelationSide) objectset.RelationSide {
	if len(towards) == 1 {
		return towards[0]
	}
	return objectset.SideEither
}

func (ev *evaluation) searchAround(child *ResolvedSet, name string, side objectset.RelationSide) (*ResolvedSet, error) {
	link, err := ontology.RequireLinkType(ev.catalog, name)
	if err != nil {
		return nil, err
	}
	dirs, err := directions(side)
	if err != nil {
		return nil, err
	}
	var (
		towards []objectset.RelationSide
		types   []string
	)
	for _, toward := range dirs {
		from, to := endpoints(link.Source, link.Target, toward)
		if child.Scope.Has(from) {
			towards = append(towards, toward)
			types = append(types, to)
		}
	}
	if len(towards) == 0 {
		return nil, qerr.Validation(qerr.CodeInvalidArgument,
			"link %q cannot be traversed toward %s from %s", name, sideOrEither(side), child.Scope).With("link", name)
	}
	return &ResolvedSet{
		Scope: ontology.UnionScope(dedupe(types)),
		Plan:  plan.Traverse{Input: child.Plan, Link: name, Toward: combine(towards)},
	}, nil
}

func (ev *evaluation) softLinkSearchAround(child *ResolvedSet, name string, side objectset.RelationSide) (*ResolvedSet, error) {
	link, ok := ev.catalog.SoftLinkType(name)
	if !ok {
		return nil, qerr.Validation(qerr.CodeUnknownLinkType, "unknown soft link type %q", name)
	}
	dirs, err := directions(side)
	if err != nil {
		return nil, err
	}
	var (
		towards []objectset.RelationSide
		types   []string
	)
	for _, toward := range dirs {
		from, to := endpoints(link.Source, link.Target, toward)
		if child.Scope.Has(from) {
			towards = append(towards, toward)
			types = append(types, to)
		}
	}
	if len(towards) == 0 {
		return nil, qerr.Validation(qerr.CodeInvalidArgument,
			"soft link %q cannot be traversed toward %s from %s", name, sideOrEither(side), child.Scope).With("link", name)
	}
	return &ResolvedSet{
		Scope: ontology.UnionScope(dedupe(types)),
		Plan:  plan.SoftTraverse{Input: child.Plan, Link: *link, Toward: combine(towards)},
	}, nil
}

// interfaceLinkSearchAround traverses an interface link through the
// concrete link every implementing type binds it to. Toward TARGET starts
// from the implementers in the input; toward SOURCE arrives at them and
// carries the interface's view.
func (ev *evaluation) interfaceLinkSearchAround(child *ResolvedSet, name string, side objectset.RelationSide) (*ResolvedSet, error) {
	il, ok := ev.catalog.InterfaceLinkType(name)
	if !ok {
		return nil, qerr.Validation(qerr.CodeUnknownLinkType, "unknown interface link type %q", name)
	}
	dirs, err := directions(side)
	if err != nil {
		return nil, err
	}

	var (
		parts      []plan.Set
		partScopes []*ontology.Scope
	)
	add := func(s plan.Set, scope *ontology.Scope) {
		parts = append(parts, s)
		partScopes = append(partScopes, scope)
	}
	for _, dir := range dirs {
		for _, t := range ontology.Implementers(ev.catalog, il.Interface) {
			concrete, err := ontology.ConcreteLink(ev.catalog, t, name)
			if err != nil {
				return nil, err
			}
			link, err := ontology.RequireLinkType(ev.catalog, concrete)
			if err != nil {
				return nil, err
			}
			// The implementer's end of the concrete link.
			implEnd, other := objectset.SideSource, link.Target
			if link.Source != t {
				implEnd, other = objectset.SideTarget, link.Source
			}
			if link.Source == link.Target {
				implEnd = objectset.SideEither
			}

			if dir == objectset.SideTarget {
				if !child.Scope.Has(t) {
					continue
				}
				toward := opposite(implEnd)
				scope, err := ev.targetScope(il, other)
				if err != nil {
					return nil, err
				}
				add(plan.Traverse{
					Input:  plan.Restrict{Input: child.Plan, ObjectTypes: []string{t}},
					Link:   concrete,
					Toward: toward,
				}, scope)
				continue
			}

			if !child.Scope.Has(other) {
				continue
			}
			scope, err := ontology.AsInterface(ev.catalog, ontology.UnionScope([]string{t}), il.Interface)
			if err != nil {
				return nil, err
			}
			add(plan.Traverse{Input: child.Plan, Link: concrete, Toward: implEnd}, scope)
		}
	}

	switch len(parts) {
	case 0:
		return nil, qerr.Validation(qerr.CodeInvalidArgument,
			"interface link %q cannot be traversed toward %s from %s", name, sideOrEither(side), child.Scope).With("link", name)
	case 1:
		return &ResolvedSet{Scope: partScopes[0], Plan: parts[0]}, nil
	default:
		return &ResolvedSet{Scope: ontology.Union(partScopes...), Plan: plan.Union{Inputs: parts}}, nil
	}
}

// targetScope is the scope of the objects an interface link reaches.
func (ev *evaluation) targetScope(il *ontology.InterfaceLinkType, objectType string) (*ontology.Scope, error) {
	if il.TargetInterface != "" {
		return ontology.AsInterface(ev.catalog, ontology.UnionScope([]string{objectType}), il.TargetInterface)
	}
	return ontology.ObjectTypeScope(ev.catalog, objectType)
}

func opposite(side objectset.RelationSide) objectset.RelationSide {
	switch side {
	case objectset.SideSource:
		return objectset.SideTarget
	case objectset.SideTarget:
		return objectset.SideSource
	default:
		return objectset.SideEither
	}
}

func sideOrEither(side objectset.RelationSide) objectset.RelationSide {
	if side == "" {
		return objectset.SideEither
	}
	return side
}

func dedupe(types []string) []string {
	seen := make(map[string]bool, len(types))
	out := types[:0:0]
	for _, t := range types {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}
