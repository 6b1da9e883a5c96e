package backend

import (
	"context"
	"slices"

	"github.com/roach88/osq/internal/derived"
	"github.com/roach88/osq/internal/filter"
	"github.com/roach88/osq/internal/ir"
	"github.com/roach88/osq/internal/metric"
	"github.com/roach88/osq/internal/objectset"
	"github.com/roach88/osq/internal/plan"
	"github.com/roach88/osq/internal/qerr"
)

// executor runs one plan against a view.
type executor struct {
	view   *view
	metric metric.Options
	nodes  int
	exact  bool
}

// exec returns the members of s in default order, or in distance order
// for kNN plans.
func (x *executor) exec(ctx context.Context, s plan.Set) ([]plan.Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	x.nodes++

	switch n := s.(type) {
	case plan.Scan:
		return x.view.scan(ctx, n.ObjectTypes, nil)

	case plan.Static:
		return x.view.lookup(ctx, n.Keys)

	case plan.Filter:
		var (
			in  []plan.Object
			err error
		)
		if scan, ok := n.Input.(plan.Scan); ok {
			x.nodes++
			in, err = x.view.scan(ctx, scan.ObjectTypes, plan.Pushdown(n.Predicate).Constraints)
		} else {
			in, err = x.exec(ctx, n.Input)
		}
		if err != nil {
			return nil, err
		}
		out := in[:0:0]
		for i := range in {
			if filter.Match(n.Predicate, &in[i], x.view) {
				out = append(out, in[i])
			}
		}
		return out, nil

	case plan.Intersect:
		sets, err := x.execAll(ctx, n.Inputs)
		if err != nil {
			return nil, err
		}
		return intersect(sets), nil

	case plan.Union:
		sets, err := x.execAll(ctx, n.Inputs)
		if err != nil {
			return nil, err
		}
		return union(sets), nil

	case plan.Subtract:
		sets, err := x.execAll(ctx, n.Inputs)
		if err != nil {
			return nil, err
		}
		return subtract(sets), nil

	case plan.Traverse:
		in, err := x.exec(ctx, n.Input)
		if err != nil {
			return nil, err
		}
		var keys []plan.Key
		for _, o := range in {
			next, err := x.view.neighbours(ctx, n.Link, n.Toward, o.Key)
			if err != nil {
				return nil, err
			}
			keys = append(keys, next...)
		}
		slices.SortFunc(keys, plan.CompareKeys)
		return x.view.lookup(ctx, slices.Compact(keys))

	case plan.SoftTraverse:
		in, err := x.exec(ctx, n.Input)
		if err != nil {
			return nil, err
		}
		return x.softTraverse(ctx, n, in)

	case plan.Restrict:
		in, err := x.exec(ctx, n.Input)
		if err != nil {
			return nil, err
		}
		out := in[:0:0]
		for _, o := range in {
			if slices.Contains(n.ObjectTypes, o.ObjectType) {
				out = append(out, o)
			}
		}
		return out, nil

	case plan.Nearest:
		in, err := x.exec(ctx, n.Input)
		if err != nil {
			return nil, err
		}
		return x.nearest(ctx, n, in)

	case plan.Derive:
		in, err := x.exec(ctx, n.Input)
		if err != nil {
			return nil, err
		}
		out, exact, err := derived.NewComputer(x.view, x.metric).Apply(ctx, n.Fields, in)
		if err != nil {
			return nil, err
		}
		x.exact = x.exact && exact
		return out, nil

	default:
		return nil, qerr.NotSupported("plan node %T", s)
	}
}

func (x *executor) execAll(ctx context.Context, sets []plan.Set) ([][]plan.Object, error) {
	out := make([][]plan.Object, len(sets))
	for i, s := range sets {
		objs, err := x.exec(ctx, s)
		if err != nil {
			return nil, err
		}
		out[i] = objs
	}
	return out, nil
}

// softTraverse links objects whose source property value equals the
// target property value.
func (x *executor) softTraverse(ctx context.Context, n plan.SoftTraverse, in []plan.Object) ([]plan.Object, error) {
	type leg struct {
		fromType, fromProp string
		toType, toProp     string
	}
	var legs []leg
	if n.Toward != objectset.SideSource {
		legs = append(legs, leg{n.Link.Source, n.Link.SourceProperty, n.Link.Target, n.Link.TargetProperty})
	}
	if n.Toward != objectset.SideTarget {
		legs = append(legs, leg{n.Link.Target, n.Link.TargetProperty, n.Link.Source, n.Link.SourceProperty})
	}

	var results [][]plan.Object
	for _, l := range legs {
		wanted := make(map[string]bool)
		for _, o := range in {
			if o.ObjectType != l.fromType {
				continue
			}
			for _, v := range ir.Elements(o.Properties.Get(l.fromProp)) {
				wanted[ir.KeyString(v)] = true
			}
		}
		if len(wanted) == 0 {
			continue
		}
		candidates, err := x.view.scan(ctx, []string{l.toType}, nil)
		if err != nil {
			return nil, err
		}
		var hit []plan.Object
		for _, o := range candidates {
			for _, v := range ir.Elements(o.Properties.Get(l.toProp)) {
				if wanted[ir.KeyString(v)] {
					hit = append(hit, o)
					break
				}
			}
		}
		results = append(results, hit)
	}
	return union(results), nil
}

// intersect keeps the objects of the first set present in every other
// set. Derived values from every input are merged.
func intersect(sets [][]plan.Object) []plan.Object {
	if len(sets) == 0 {
		return []plan.Object{}
	}
	others := make([]map[plan.Key]plan.Object, len(sets)-1)
	for i, s := range sets[1:] {
		others[i] = byKey(s)
	}
	out := []plan.Object{}
	for _, o := range sets[0] {
		keep := true
		for _, m := range others {
			other, ok := m[o.Key]
			if !ok {
				keep = false
				break
			}
			o = mergeDerived(o, other)
		}
		if keep {
			out = append(out, o)
		}
	}
	slices.SortFunc(out, func(a, b plan.Object) int { return plan.CompareKeys(a.Key, b.Key) })
	return out
}

func union(sets [][]plan.Object) []plan.Object {
	merged := make(map[plan.Key]plan.Object)
	for _, s := range sets {
		for _, o := range s {
			if prev, ok := merged[o.Key]; ok {
				o = mergeDerived(prev, o)
			}
			merged[o.Key] = o
		}
	}
	out := make([]plan.Object, 0, len(merged))
	for _, o := range merged {
		out = append(out, o)
	}
	slices.SortFunc(out, func(a, b plan.Object) int { return plan.CompareKeys(a.Key, b.Key) })
	return out
}

func subtract(sets [][]plan.Object) []plan.Object {
	if len(sets) == 0 {
		return []plan.Object{}
	}
	drop := make(map[plan.Key]bool)
	for _, s := range sets[1:] {
		for _, o := range s {
			drop[o.Key] = true
		}
	}
	out := []plan.Object{}
	for _, o := range sets[0] {
		if !drop[o.Key] {
			out = append(out, o)
		}
	}
	slices.SortFunc(out, func(a, b plan.Object) int { return plan.CompareKeys(a.Key, b.Key) })
	return out
}

func byKey(objs []plan.Object) map[plan.Key]plan.Object {
	m := make(map[plan.Key]plan.Object, len(objs))
	for _, o := range objs {
		m[o.Key] = o
	}
	return m
}

// mergeDerived copies onto a the derived values only b carries. The
// earlier value wins when both carry one.
func mergeDerived(a, b plan.Object) plan.Object {
	for id, v := range b.Derived {
		if _, ok := a.Derived[id]; !ok {
			a = a.WithDerived(id, v)
		}
	}
	if a.Distance == nil {
		a.Distance = b.Distance
	}
	return a
}
