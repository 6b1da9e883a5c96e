package derived

import (
	"context"

	"github.com/roach88/osq/internal/ir"
	"github.com/roach88/osq/internal/metric"
	"github.com/roach88/osq/internal/plan"
)

// Graph follows stored links for derived property computation.
type Graph interface {
	// Follow returns the objects reached from key over hop, in default
	// order. Edges to objects that no longer exist are skipped.
	Follow(ctx context.Context, hop plan.Hop, from plan.Key) ([]plan.Object, error)
}

// Computer computes derived property values.
type Computer struct {
	graph Graph
	opts  metric.Options
}

// NewComputer returns a computer reading links from graph. opts tune link
// aggregation metrics.
func NewComputer(graph Graph, opts metric.Options) *Computer {
	return &Computer{graph: graph, opts: opts}
}

// Apply returns copies of objs carrying every field. Membership and order
// are unchanged. The boolean is false when some link aggregation was
// estimated.
func (c *Computer) Apply(ctx context.Context, fields []plan.DerivedField, objs []plan.Object) ([]plan.Object, bool, error) {
	exact := true
	out := make([]plan.Object, len(objs))
	for i := range objs {
		obj := objs[i]
		for _, f := range fields {
			if err := ctx.Err(); err != nil {
				return nil, false, err
			}
			v, ok, err := c.Value(ctx, f.Def, &obj)
			if err != nil {
				return nil, false, err
			}
			exact = exact && ok
			obj = obj.WithDerived(f.ID, v)
		}
		out[i] = obj
	}
	return out, exact, nil
}

// Value computes def on obj.
func (c *Computer) Value(ctx context.Context, def plan.DerivedDef, obj *plan.Object) (ir.Value, bool, error) {
	switch d := def.(type) {
	case plan.NativeDef:
		return obj.Value(d.Field), true, nil
	case plan.ByTypeDef:
		inner, ok := d.Defs[obj.ObjectType]
		if !ok {
			return ir.Null{}, true, nil
		}
		return c.Value(ctx, inner, obj)
	case plan.CalculatedDef:
		v := Eval(d.Expr, obj)
		if n, ok := v.(ir.Int); ok && !d.Datetime {
			v = ir.Double(n)
		}
		return v, true, nil
	case plan.LinkedDef:
		chain, ok := d.Chains[obj.ObjectType]
		if !ok {
			return ir.Null{}, true, nil
		}
		reached, err := c.walk(ctx, chain, obj.Key)
		if err != nil || len(reached) == 0 {
			return ir.Null{}, true, err
		}
		return reached[0].Properties.Get(chain.Property), true, nil
	case plan.LinkAggregateDef:
		chain, ok := d.Chains[obj.ObjectType]
		if !ok {
			return ir.Null{}, true, nil
		}
		reached, err := c.walk(ctx, chain, obj.Key)
		if err != nil {
			return nil, false, err
		}
		var values []ir.Value
		if chain.Property != "" {
			for _, o := range reached {
				values = append(values, ir.Elements(o.Properties.Get(chain.Property))...)
			}
		}
		res, err := metric.Compute(d.Metric, len(reached), values, c.opts)
		if err != nil {
			return nil, false, err
		}
		return res.Value, res.Exact, nil
	default:
		return ir.Null{}, true, nil
	}
}

// walk follows chain from key, deduplicating objects reached at each hop.
func (c *Computer) walk(ctx context.Context, chain plan.Chain, key plan.Key) ([]plan.Object, error) {
	frontier := []plan.Key{key}
	var reached []plan.Object
	for _, hop := range chain.Hops {
		seen := make(map[plan.Key]bool)
		reached = reached[:0:0]
		for _, k := range frontier {
			next, err := c.graph.Follow(ctx, hop, k)
			if err != nil {
				return nil, err
			}
			for _, o := range next {
				if !seen[o.Key] {
					seen[o.Key] = true
					reached = append(reached, o)
				}
			}
		}
		frontier = frontier[:0]
		for _, o := range reached {
			frontier = append(frontier, o.Key)
		}
	}
	return reached, nil
}
