package filter

import (
	"github.com/roach88/osq/internal/ir"
	"github.com/roach88/osq/internal/objectset"
	"github.com/roach88/osq/internal/ontology"
	"github.com/roach88/osq/internal/plan"
	"github.com/roach88/osq/internal/qerr"
	"github.com/roach88/osq/internal/token"
)

// Compiler compiles filter trees into plan predicates against a scope.
// It is safe for concurrent use.
type Compiler struct {
	catalog ontology.MetadataProvider
}

// NewCompiler returns a compiler resolving identifiers through catalog.
func NewCompiler(catalog ontology.MetadataProvider) *Compiler {
	return &Compiler{catalog: catalog}
}

// Compile resolves f in scope. path locates f in the enclosing request and
// prefixes the location of every error.
func (c *Compiler) Compile(f objectset.Filter, scope *ontology.Scope, octx objectset.Context, path string) (plan.Predicate, error) {
	s := &session{Compiler: c, scope: scope, octx: octx}
	return s.compile(f, path)
}

// CompileAggregation resolves an aggregation filter in scope.
func (c *Compiler) CompileAggregation(f objectset.AggregationFilter, scope *ontology.Scope, octx objectset.Context, path string) (plan.Predicate, error) {
	s := &session{Compiler: c, scope: scope, octx: octx}
	return s.compileAggregation(f, path)
}

type session struct {
	*Compiler
	scope *ontology.Scope
	octx  objectset.Context
}

func (s *session) field(id, path string) (plan.Field, error) {
	rp, err := ontology.ResolveProperty(s.catalog, id, s.scope, ontology.UsageFilter)
	if err != nil {
		return plan.Field{}, qerr.WithPath(err, path)
	}
	return rp, nil
}

func (s *session) stringField(id, filterType, path string) (plan.Field, error) {
	f, err := s.field(id, path)
	if err != nil {
		return f, err
	}
	if f.Type.Base != ontology.TypeString {
		return f, mismatch(path, "%s requires a string property, %q is %s", filterType, id, f.Type.Base)
	}
	return f, nil
}

func (s *session) geoField(id, filterType, path string) (plan.Field, error) {
	f, err := s.field(id, path)
	if err != nil {
		return f, err
	}
	if !f.Type.IsGeo() {
		return f, mismatch(path, "%s requires a geopoint or geoshape property, %q is %s", filterType, id, f.Type.Base)
	}
	return f, nil
}

func mismatch(path, format string, args ...any) error {
	return qerr.Validation(qerr.CodePropertyTypeMismatch, format, args...).At(path)
}

func invalidArgument(path, format string, args ...any) error {
	return qerr.Validation(qerr.CodeInvalidArgument, format, args...).At(path)
}

// coerce converts a literal to the kind of f.
func coerce(f plan.Field, v ir.Value, path string) (ir.Value, error) {
	if v == nil {
		return nil, nil
	}
	out, err := ir.Coerce(v, f.Type.Kind())
	if err != nil {
		return nil, mismatch(path, "property %q: %v", f.Identifier, err)
	}
	return out, nil
}

func coerceAll(f plan.Field, terms []ir.Value, termsPath string) ([]ir.Value, error) {
	out := make([]ir.Value, 0, len(terms))
	for i, t := range terms {
		v, err := coerce(f, t, objectset.Elem(termsPath, i))
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *session) compile(f objectset.Filter, path string) (plan.Predicate, error) {
	at := func(field string) string { return objectset.Child(path, objectset.FilterTypeName(f), field) }

	switch n := f.(type) {
	case nil:
		return nil, invalidArgument(path, "filter is missing")
	case objectset.And:
		preds, err := s.compileAll(n.Filters, at("filters"))
		if err != nil {
			return nil, err
		}
		return plan.And{Predicates: preds}, nil
	case objectset.Or:
		preds, err := s.compileAll(n.Filters, at("filters"))
		if err != nil {
			return nil, err
		}
		return plan.Or{Predicates: preds}, nil
	case objectset.Not:
		inner, err := s.compile(n.Filter, at("filter"))
		if err != nil {
			return nil, err
		}
		return plan.Not{Predicate: inner}, nil
	case objectset.ExactMatch:
		return s.exactMatch(n.Property, n.Terms, path, at("terms"))
	case objectset.Terms:
		return s.terms(n.Property, n.Terms, path, at("terms"))
	case objectset.Range:
		return s.rangeOf(n.Property, n.Gt, n.Gte, n.Lt, n.Lte, path)
	case objectset.Phrase:
		return s.phrase(n.Property, n.Query, n.Fuzzy, false, "phrase", path)
	case objectset.PrefixOnLastToken:
		return s.phrase(n.Property, n.Query, false, true, "prefixOnLastToken", path)
	case objectset.MultiMatch:
		return s.multiMatch(n, path)
	case objectset.Wildcard:
		return s.wildcard(n.Property, n.Pattern, "wildcard", path)
	case objectset.Regex:
		field, err := s.stringField(n.Property, "regex", path)
		if err != nil {
			return nil, err
		}
		re, err := plan.CompileRegex(n.Pattern)
		if err != nil {
			return nil, qerr.WithPath(err, at("pattern"))
		}
		return plan.Pattern{Field: field, Regex: re}, nil
	case objectset.GeoBoundingBox:
		field, err := s.geoField(n.Property, "geoBoundingBox", path)
		if err != nil {
			return nil, err
		}
		if err := validPoint(n.TopLeft, at("topLeft")); err != nil {
			return nil, err
		}
		if err := validPoint(n.BottomRight, at("bottomRight")); err != nil {
			return nil, err
		}
		if n.TopLeft.Lat < n.BottomRight.Lat {
			return nil, invalidArgument(path, "bounding box top %g is below bottom %g", n.TopLeft.Lat, n.BottomRight.Lat)
		}
		return plan.GeoBox{Field: field, TopLeft: n.TopLeft, BottomRight: n.BottomRight}, nil
	case objectset.GeoDistance:
		field, err := s.geoField(n.Property, "geoDistance", path)
		if err != nil {
			return nil, err
		}
		if err := validPoint(n.Center, at("center")); err != nil {
			return nil, err
		}
		if n.DistanceMeters < 0 {
			return nil, invalidArgument(at("distanceMeters"), "distance must not be negative")
		}
		return plan.GeoDistance{Field: field, Center: n.Center, Meters: n.DistanceMeters}, nil
	case objectset.GeoPolygon:
		field, err := s.geoField(n.Property, "geoPolygon", path)
		if err != nil {
			return nil, err
		}
		if len(n.Points) < 3 {
			return nil, invalidArgument(at("points"), "polygon needs at least 3 points, got %d", len(n.Points))
		}
		for i, p := range n.Points {
			if err := validPoint(p, objectset.Elem(at("points"), i)); err != nil {
				return nil, err
			}
		}
		return plan.GeoPolygon{Field: field, Points: n.Points}, nil
	case objectset.GeoShape:
		field, err := s.geoField(n.Property, "geoShape", path)
		if err != nil {
			return nil, err
		}
		if len(n.Shape.Rings) == 0 || len(n.Shape.Rings[0]) < 3 {
			return nil, invalidArgument(at("shape"), "shape needs an outer ring of at least 3 points")
		}
		return plan.GeoShape{Field: field, Shape: n.Shape, Relation: n.Relation}, nil
	case objectset.HasProperty:
		field, err := s.field(n.Property, path)
		if err != nil {
			return nil, err
		}
		return plan.Has{Field: field}, nil
	case objectset.LinkPresence:
		return s.linkPresence(n, path)
	case objectset.UserContext:
		field, err := s.stringField(n.Property, "userContext", path)
		if err != nil {
			return nil, err
		}
		var terms []ir.Value
		switch n.Value {
		case objectset.UserContextGroupIDs:
			for _, g := range s.octx.GroupIDs {
				terms = append(terms, ir.String(g))
			}
		default:
			if s.octx.UserID != "" {
				terms = []ir.Value{ir.String(s.octx.UserID)}
			}
		}
		if len(terms) == 0 {
			return plan.False{}, nil
		}
		return plan.Exact{Field: field, Terms: terms}, nil
	case objectset.ParameterizedExactMatch:
		terms, err := s.parameters(n.Terms, at("terms"))
		if err != nil {
			return nil, err
		}
		return s.exactMatch(n.Property, terms, path, at("terms"))
	case objectset.ParameterizedTerms:
		terms, err := s.parameters(n.Terms, at("terms"))
		if err != nil {
			return nil, err
		}
		return s.terms(n.Property, terms, path, at("terms"))
	case objectset.ParameterizedRange:
		var bounds [4]ir.Value
		for i, p := range []objectset.FilterParameter{n.Gt, n.Gte, n.Lt, n.Lte} {
			if p == nil {
				continue
			}
			v, err := s.parameter(p, at([]string{"gt", "gte", "lt", "lte"}[i]))
			if err != nil {
				return nil, err
			}
			bounds[i] = v
		}
		return s.rangeOf(n.Property, bounds[0], bounds[1], bounds[2], bounds[3], path)
	case objectset.ParameterizedPhrase:
		v, err := s.parameter(n.Query, at("query"))
		if err != nil {
			return nil, err
		}
		q, ok := v.(ir.String)
		if !ok {
			return nil, invalidArgument(at("query"), "phrase query must be a string, got %s", ir.KindOf(v))
		}
		return s.phrase(n.Property, string(q), false, false, "parameterizedPhrase", path)
	default:
		return nil, qerr.NotSupported("filter %T", f).At(path)
	}
}

func (s *session) compileAll(filters []objectset.Filter, path string) ([]plan.Predicate, error) {
	out := make([]plan.Predicate, 0, len(filters))
	for i, f := range filters {
		p, err := s.compile(f, objectset.Elem(path, i))
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// parameter binds p from the parameter overrides, falling back to its
// default.
func (s *session) parameter(p objectset.FilterParameter, path string) (ir.Value, error) {
	switch v := p.(type) {
	case objectset.LiteralParameter:
		return v.Value, nil
	case objectset.UnresolvedFilterParameter:
		if bound, ok := s.octx.ParameterOverrides[v.ParameterID]; ok && !ir.IsNull(bound) {
			return bound, nil
		}
		if !ir.IsNull(v.Default) {
			return v.Default, nil
		}
		return nil, qerr.Validation(qerr.CodeMissingParameterValue,
			"parameter %q has no override and no default", v.ParameterID).At(path).With("parameterId", v.ParameterID)
	default:
		return nil, invalidArgument(path, "filter parameter is missing")
	}
}

func (s *session) parameters(params []objectset.FilterParameter, path string) ([]ir.Value, error) {
	out := make([]ir.Value, 0, len(params))
	for i, p := range params {
		v, err := s.parameter(p, objectset.Elem(path, i))
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// exactMatch compiles exactMatch. Empty terms match every object.
func (s *session) exactMatch(property string, terms []ir.Value, path, termsPath string) (plan.Predicate, error) {
	field, err := s.field(property, path)
	if err != nil {
		return nil, err
	}
	if len(terms) == 0 {
		return plan.True{}, nil
	}
	coerced, err := coerceAll(field, terms, termsPath)
	if err != nil {
		return nil, err
	}
	return plan.Exact{Field: field, Terms: coerced}, nil
}

// terms matches indexed values: tokens on analyzed strings, whole values
// otherwise.
func (s *session) terms(property string, terms []ir.Value, path, termsPath string) (plan.Predicate, error) {
	field, err := s.field(property, path)
	if err != nil {
		return nil, err
	}
	if len(terms) == 0 {
		return plan.True{}, nil
	}
	coerced, err := coerceAll(field, terms, termsPath)
	if err != nil {
		return nil, err
	}
	if !field.Type.Analyzed {
		return plan.Exact{Field: field, Terms: coerced}, nil
	}
	tokens := make([]string, 0, len(coerced))
	for _, t := range coerced {
		if str, ok := t.(ir.String); ok {
			tokens = append(tokens, token.Normalize(string(str)))
		}
	}
	return plan.Tokens{Field: field, Tokens: tokens}, nil
}

func (s *session) rangeOf(property string, gt, gte, lt, lte ir.Value, path string) (plan.Predicate, error) {
	field, err := s.field(property, path)
	if err != nil {
		return nil, err
	}
	switch {
	case field.Type.IsNumeric(), field.Type.IsDate(), field.Type.Base == ontology.TypeString:
	default:
		return nil, mismatch(path, "range requires a numeric, date or string property, %q is %s", property, field.Type.Base)
	}
	r := plan.Range{Field: field}
	for _, b := range []struct {
		name string
		in   ir.Value
		out  *ir.Value
	}{{"gt", gt, &r.Gt}, {"gte", gte, &r.Gte}, {"lt", lt, &r.Lt}, {"lte", lte, &r.Lte}} {
		if ir.IsNull(b.in) {
			continue
		}
		v, err := coerce(field, b.in, objectset.Child(path, "range", b.name))
		if err != nil {
			return nil, err
		}
		*b.out = v
	}
	return r, nil
}

func (s *session) phrase(property, query string, fuzzy, prefixLast bool, filterType, path string) (plan.Predicate, error) {
	field, err := s.stringField(property, filterType, path)
	if err != nil {
		return nil, err
	}
	if !field.Type.Analyzed {
		if prefixLast {
			return plan.Prefix{Field: field, Prefix: query}, nil
		}
		return plan.Exact{Field: field, Terms: []ir.Value{ir.String(query)}}, nil
	}
	tokens := token.Tokenize(query)
	if len(tokens) == 0 {
		return plan.False{}, nil
	}
	return plan.Phrase{Field: field, Tokens: tokens, Fuzzy: fuzzy, PrefixLast: prefixLast}, nil
}

func (s *session) multiMatch(n objectset.MultiMatch, path string) (plan.Predicate, error) {
	if len(n.Properties) == 0 {
		return nil, invalidArgument(path, "multiMatch needs at least one property")
	}
	tokens := token.Tokenize(n.Query)
	preds := make([]plan.Predicate, 0, len(n.Properties))
	for _, property := range n.Properties {
		field, err := s.stringField(property, "multiMatch", path)
		if err != nil {
			return nil, err
		}
		if !field.Type.Analyzed {
			preds = append(preds, plan.Exact{Field: field, Terms: []ir.Value{ir.String(n.Query)}})
			continue
		}
		if len(tokens) == 0 {
			continue
		}
		preds = append(preds, plan.Tokens{Field: field, Tokens: tokens, All: n.Operator == objectset.OperatorAnd, Fuzzy: n.Fuzzy})
	}
	return plan.Or{Predicates: preds}, nil
}

func (s *session) wildcard(property, pattern, filterType, path string) (plan.Predicate, error) {
	field, err := s.stringField(property, filterType, path)
	if err != nil {
		return nil, err
	}
	if field.Type.Analyzed {
		pattern = token.Normalize(pattern)
	}
	re, err := plan.CompileWildcard(pattern)
	if err != nil {
		return nil, qerr.WithPath(err, objectset.Child(path, "wildcard", "pattern"))
	}
	return plan.Pattern{Field: field, Regex: re, Tokens: field.Type.Analyzed}, nil
}

// linkPresence checks that some member type sits on the end of the link
// opposite Side.
func (s *session) linkPresence(n objectset.LinkPresence, path string) (plan.Predicate, error) {
	link, err := ontology.RequireLinkType(s.catalog, n.Link)
	if err != nil {
		return nil, qerr.WithPath(err, path)
	}
	end := objectset.SideEither
	switch n.Side {
	case objectset.SideSource:
		end = objectset.SideTarget
	case objectset.SideTarget:
		end = objectset.SideSource
	}
	applies := false
	for _, t := range s.scope.Types() {
		if (end != objectset.SideSource && link.Target == t) || (end != objectset.SideTarget && link.Source == t) {
			applies = true
		}
	}
	if !applies {
		return nil, invalidArgument(path, "link %q does not connect any object type of scope %s on that side", n.Link, s.scope)
	}
	return plan.LinkPresence{Link: n.Link, End: end}, nil
}

func validPoint(p ir.GeoPoint, path string) error {
	if p.Lat < -90 || p.Lat > 90 || p.Lon < -180 || p.Lon > 180 {
		return invalidArgument(path, "point (%g, %g) is outside WGS84 bounds", p.Lat, p.Lon)
	}
	return nil
}

func (s *session) compileAggregation(f objectset.AggregationFilter, path string) (plan.Predicate, error) {
	name := aggregationFilterName(f)
	at := func(field string) string { return objectset.Child(path, name, field) }

	switch n := f.(type) {
	case nil:
		return nil, invalidArgument(path, "aggregation filter is missing")
	case objectset.AggregationAnd, objectset.AggregationOr:
		var filters []objectset.AggregationFilter
		if and, ok := n.(objectset.AggregationAnd); ok {
			filters = and.Filters
		} else {
			filters = n.(objectset.AggregationOr).Filters
		}
		preds := make([]plan.Predicate, 0, len(filters))
		for i, sub := range filters {
			p, err := s.compileAggregation(sub, objectset.Elem(at("filters"), i))
			if err != nil {
				return nil, err
			}
			preds = append(preds, p)
		}
		if _, ok := n.(objectset.AggregationAnd); ok {
			return plan.And{Predicates: preds}, nil
		}
		return plan.Or{Predicates: preds}, nil
	case objectset.AggregationNot:
		inner, err := s.compileAggregation(n.Filter, at("filter"))
		if err != nil {
			return nil, err
		}
		return plan.Not{Predicate: inner}, nil
	case objectset.ExactMatchAggregationFilter:
		if len(n.Terms) == 0 {
			return nil, qerr.Validation(qerr.CodeEmptyTerms,
				"exactMatch aggregation filter on %q needs at least one term", n.Property).At(path)
		}
		return s.exactMatch(n.Property, n.Terms, path, at("terms"))
	case objectset.RangeAggregationFilter:
		return s.rangeOf(n.Property, n.Gt, n.Gte, n.Lt, n.Lte, path)
	case objectset.HasPropertyAggregationFilter:
		field, err := s.field(n.Property, path)
		if err != nil {
			return nil, err
		}
		return plan.Has{Field: field}, nil
	case objectset.WildcardAggregationFilter:
		return s.wildcard(n.Property, n.Pattern, "wildcard", path)
	case objectset.ObjectSetAggregationFilter:
		return s.compile(n.Filter, at("filter"))
	default:
		return nil, qerr.NotSupported("aggregation filter %T", f).At(path)
	}
}

func aggregationFilterName(f objectset.AggregationFilter) string {
	switch f.(type) {
	case objectset.AggregationAnd:
		return "and"
	case objectset.AggregationOr:
		return "or"
	case objectset.AggregationNot:
		return "not"
	case objectset.ExactMatchAggregationFilter:
		return "exactMatch"
	case objectset.RangeAggregationFilter:
		return "range"
	case objectset.HasPropertyAggregationFilter:
		return "hasProperty"
	case objectset.WildcardAggregationFilter:
		return "wildcard"
	case objectset.ObjectSetAggregationFilter:
		return "objectSetFilter"
	default:
		return "unknown"
	}
}
