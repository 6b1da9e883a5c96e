package engine

import (
	"slices"

	"github.com/roach88/osq/internal/ir"
	"github.com/roach88/osq/internal/objectset"
	"github.com/roach88/osq/internal/ontology"
	"github.com/roach88/osq/internal/plan"
	"github.com/roach88/osq/internal/qerr"
)

// Object is one object of a page.
type Object struct {
	ObjectType string    `json:"objectType"`
	PrimaryKey string    `json:"primaryKey"`
	Properties ir.Object `json:"properties"`

	// Distance is set on nearest-neighbour results.
	Distance *float64 `json:"distance,omitempty"`
}

// OrderBy sorts a page on one property.
type OrderBy struct {
	Property  string              `json:"property" yaml:"property"`
	Direction objectset.Direction `json:"direction,omitempty" yaml:"direction,omitempty"`
}

type sortKey struct {
	field      plan.Field
	descending bool
}

// projection is the validated select list and ordering of a request.
type projection struct {
	fields []plan.Field // nil selects every property
	order  []sortKey
}

func newProjection(catalog ontology.MetadataProvider, scope *ontology.Scope, sel []string, orderBy []OrderBy) (*projection, error) {
	var (
		p    projection
		errs qerr.MultiError
		seen = make(map[string]bool, len(sel))
	)
	for i, id := range sel {
		f, err := ontology.ResolveProperty(catalog, id, scope, ontology.UsageSelect)
		if err != nil {
			errs.Append(qerr.WithPath(err, objectset.Elem("select", i)))
			continue
		}
		if !seen[id] {
			seen[id] = true
			p.fields = append(p.fields, f)
		}
	}
	for i, o := range orderBy {
		at := objectset.Elem("orderBy", i)
		f, err := ontology.ResolveProperty(catalog, o.Property, scope, ontology.UsageSort)
		if err != nil {
			errs.Append(qerr.WithPath(err, objectset.Field(at, "property")))
			continue
		}
		switch o.Direction {
		case "", objectset.Ascending:
			p.order = append(p.order, sortKey{field: f})
		case objectset.Descending:
			p.order = append(p.order, sortKey{field: f, descending: true})
		default:
			errs.Append(qerr.Validation(qerr.CodeInvalidArgument, "unknown sort direction %q", o.Direction).
				At(objectset.Field(at, "direction")))
		}
	}
	if err := errs.ErrOrNil(); err != nil {
		return nil, err
	}
	return &p, nil
}

// sort orders objs in place. Objects equal on every key keep backend
// order.
func (p *projection) sort(objs []plan.Object) {
	if len(p.order) == 0 {
		return
	}
	slices.SortStableFunc(objs, func(a, b plan.Object) int {
		for _, k := range p.order {
			va, vb := a.Value(k.field), b.Value(k.field)
			na, nb := ir.IsNull(va), ir.IsNull(vb)
			switch {
			case na && nb:
				continue
			case na:
				return 1
			case nb:
				return -1
			}
			c := ir.Compare(va, vb)
			if k.descending {
				c = -c
			}
			if c != 0 {
				return c
			}
		}
		return 0
	})
}

// project renders o. Null properties are left out.
func (p *projection) project(o plan.Object) Object {
	out := Object{ObjectType: o.ObjectType, PrimaryKey: o.PrimaryKey, Properties: ir.Object{}, Distance: o.Distance}
	if p.fields == nil {
		for k, v := range o.Properties {
			if !ir.IsNull(v) {
				out.Properties[k] = v
			}
		}
		for k, v := range o.Derived {
			if !ir.IsNull(v) {
				out.Properties[k] = v
			}
		}
		return out
	}
	for _, f := range p.fields {
		if v := o.Value(f); !ir.IsNull(v) {
			out.Properties[f.Identifier] = v
		}
	}
	return out
}

func (p *projection) page(objs []plan.Object, offset, size int) []Object {
	lo := min(offset, len(objs))
	hi := min(offset+size, len(objs))
	out := make([]Object, 0, hi-lo)
	for _, o := range objs[lo:hi] {
		out = append(out, p.project(o))
	}
	return out
}
