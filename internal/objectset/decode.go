package objectset

import (
	"bytes"
	"encoding/json"
	"sort"

	"github.com/roach88/osq/internal/ir"
	"github.com/roach88/osq/internal/qerr"
)

// DecodeObjectSet decodes a {"type": ...} JSON object set.
func DecodeObjectSet(data []byte) (ObjectSet, error) {
	tree, err := parseTree(data)
	if err != nil {
		return nil, err
	}
	return ParseObjectSet(tree)
}

// DecodeFilter decodes a JSON object set filter.
func DecodeFilter(data []byte) (Filter, error) {
	tree, err := parseTree(data)
	if err != nil {
		return nil, err
	}
	return ParseFilter(tree)
}

// DecodeAggregation decodes a JSON root aggregation.
func DecodeAggregation(data []byte) (RootAggregation, error) {
	tree, err := parseTree(data)
	if err != nil {
		return RootAggregation{}, err
	}
	return ParseAggregation(tree)
}

// DecodeDerivedProperties decodes a JSON list of typed derived property
// entries.
func DecodeDerivedProperties(data []byte) (TypedDerivedProperties, error) {
	tree, err := parseTree(data)
	if err != nil {
		return nil, err
	}
	return ParseDerivedProperties(tree)
}

func parseTree(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var tree any
	if err := dec.Decode(&tree); err != nil {
		return nil, qerr.Validation(qerr.CodeInvalidExpression, "invalid JSON: %v", err).At(RootPath)
	}
	return tree, nil
}

// ParseObjectSet converts a generic tree (from encoding/json or yaml.v3)
// into an ObjectSet.
func ParseObjectSet(tree any) (ObjectSet, error) {
	return parseObjectSet(tree, RootPath)
}

// ParseFilter converts a generic tree into a Filter.
func ParseFilter(tree any) (Filter, error) {
	return parseFilter(tree, RootPath)
}

// ParseAggregation converts a generic tree into a RootAggregation.
func ParseAggregation(tree any) (RootAggregation, error) {
	f, err := node(tree, RootPath)
	if err != nil {
		return RootAggregation{}, err
	}
	root := RootAggregation{
		Metrics:         f.metrics("metrics"),
		SubAggregations: f.aggregations("subAggregations"),
	}
	return root, f.err
}

// ParseDerivedProperties converts a generic list into typed derived
// property entries.
func ParseDerivedProperties(tree any) (TypedDerivedProperties, error) {
	list, ok := tree.([]any)
	if !ok && tree != nil {
		return nil, invalid(RootPath, "expected a list of derived property entries")
	}
	out := make(TypedDerivedProperties, 0, len(list))
	for i, item := range list {
		path := Elem(RootPath, i)
		f, err := node(item, path)
		if err != nil {
			return nil, err
		}
		entry := TypedDerivedPropertiesEntry{
			Target:     f.typeRef("target"),
			Properties: f.derivedList("properties"),
		}
		if f.err != nil {
			return nil, f.err
		}
		out = append(out, entry)
	}
	return out, nil
}

func invalid(path, format string, args ...any) error {
	return qerr.Validation(qerr.CodeInvalidExpression, format, args...).At(path)
}

// fields reads typed fields from one JSON object, keeping the first error.
type fields struct {
	m    map[string]any
	path string
	kind string
	err  error
}

func node(v any, path string) (*fields, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, invalid(path, "expected an object, got %T", v)
	}
	f := &fields{m: m, path: path}
	if t, ok := m["type"].(string); ok {
		f.kind = t
	}
	return f, nil
}

func (f *fields) fail(key, format string, args ...any) {
	if f.err == nil {
		f.err = invalid(f.at(key), format, args...)
	}
}

func (f *fields) at(key string) string {
	if f.kind == "" {
		return Field(f.path, key)
	}
	return Child(f.path, f.kind, key)
}

func (f *fields) has(key string) bool {
	v, ok := f.m[key]
	return ok && v != nil
}

func (f *fields) str(key string) string {
	s, ok := f.m[key].(string)
	if !ok {
		f.fail(key, "field %q must be a string", key)
	}
	return s
}

func (f *fields) optStr(key string) string {
	if !f.has(key) {
		return ""
	}
	return f.str(key)
}

func (f *fields) boolean(key string) bool {
	if !f.has(key) {
		return false
	}
	b, ok := f.m[key].(bool)
	if !ok {
		f.fail(key, "field %q must be a boolean", key)
	}
	return b
}

func (f *fields) float(key string) float64 {
	v, err := ir.FromAny(f.m[key])
	if err == nil {
		if n, ok := ir.Float64(v); ok && ir.KindOf(v) != ir.KindTimestamp {
			return n
		}
	}
	f.fail(key, "field %q must be a number", key)
	return 0
}

func (f *fields) optFloat(key string) *float64 {
	if !f.has(key) {
		return nil
	}
	n := f.float(key)
	return &n
}

func (f *fields) integer(key string, def int) int {
	if !f.has(key) {
		return def
	}
	n := f.float(key)
	if n != float64(int(n)) {
		f.fail(key, "field %q must be an integer", key)
	}
	return int(n)
}

func (f *fields) value(key string) ir.Value {
	if !f.has(key) {
		return nil
	}
	v, err := ir.FromAny(f.m[key])
	if err != nil {
		f.fail(key, "field %q: %v", key, err)
	}
	return v
}

func (f *fields) list(key string) []any {
	if !f.has(key) {
		return nil
	}
	l, ok := f.m[key].([]any)
	if !ok {
		f.fail(key, "field %q must be a list", key)
	}
	return l
}

func (f *fields) values(key string) []ir.Value {
	items := f.list(key)
	out := make([]ir.Value, 0, len(items))
	for _, item := range items {
		v, err := ir.FromAny(item)
		if err != nil {
			f.fail(key, "field %q: %v", key, err)
			return nil
		}
		out = append(out, v)
	}
	return out
}

func (f *fields) strs(key string) []string {
	items := f.list(key)
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			f.fail(key, "field %q must be a list of strings", key)
			return nil
		}
		out = append(out, s)
	}
	return out
}

func (f *fields) floats(key string) []float64 {
	items := f.list(key)
	out := make([]float64, 0, len(items))
	for _, item := range items {
		v, err := ir.FromAny(item)
		n, ok := ir.Float64(v)
		if err != nil || !ok {
			f.fail(key, "field %q must be a list of numbers", key)
			return nil
		}
		out = append(out, n)
	}
	return out
}

func (f *fields) side(key string) RelationSide {
	s := RelationSide(f.optStr(key))
	switch s {
	case "":
		return SideEither
	case SideSource, SideTarget, SideEither:
		return s
	}
	f.fail(key, "unknown relation side %q", s)
	return SideEither
}

func (f *fields) geoPoint(key string) ir.GeoPoint {
	v := f.value(key)
	p, ok := v.(ir.GeoPoint)
	if !ok && f.err == nil {
		f.fail(key, "field %q must be a {lat, lon} point", key)
	}
	return p
}

func (f *fields) objectSet(key string) ObjectSet {
	if f.err != nil {
		return nil
	}
	s, err := parseObjectSet(f.m[key], f.at(key))
	if err != nil {
		f.err = err
	}
	return s
}

func (f *fields) objectSets(key string) []ObjectSet {
	items := f.list(key)
	out := make([]ObjectSet, 0, len(items))
	for i, item := range items {
		if f.err != nil {
			return nil
		}
		s, err := parseObjectSet(item, Elem(f.at(key), i))
		if err != nil {
			f.err = err
			return nil
		}
		out = append(out, s)
	}
	return out
}

func (f *fields) filter(key string) Filter {
	if f.err != nil {
		return nil
	}
	flt, err := parseFilter(f.m[key], f.at(key))
	if err != nil {
		f.err = err
	}
	return flt
}

func (f *fields) filters(key string) []Filter {
	items := f.list(key)
	out := make([]Filter, 0, len(items))
	for i, item := range items {
		if f.err != nil {
			return nil
		}
		flt, err := parseFilter(item, Elem(f.at(key), i))
		if err != nil {
			f.err = err
			return nil
		}
		out = append(out, flt)
	}
	return out
}

func (f *fields) typeRef(key string) TypeRef {
	if f.err != nil {
		return TypeRef{}
	}
	sub, err := node(f.m[key], f.at(key))
	if err != nil {
		f.err = err
		return TypeRef{}
	}
	ref := TypeRef{APIName: sub.str("apiName")}
	switch TypeKind(sub.kind) {
	case KindObjectType, KindInterface:
		ref.Kind = TypeKind(sub.kind)
	default:
		sub.fail("type", "type reference must be objectType or interface")
	}
	if sub.err != nil {
		f.err = sub.err
	}
	return ref
}

func parseObjectSet(tree any, path string) (ObjectSet, error) {
	f, err := node(tree, path)
	if err != nil {
		return nil, err
	}
	var s ObjectSet
	switch f.kind {
	case "base":
		s = Base{ObjectType: f.str("objectType")}
	case "interfaceBase":
		s = InterfaceBase{InterfaceType: f.str("interfaceType")}
	case "static":
		st := Static{ObjectType: f.str("objectType"), Provenance: f.optStr("provenance")}
		for i, item := range f.list("objects") {
			loc, err := parseLocator(item, Elem(f.at("objects"), i), st.ObjectType)
			if err != nil {
				return nil, err
			}
			st.Objects = append(st.Objects, loc)
		}
		s = st
	case "referenced":
		s = Referenced{RID: f.str("rid")}
	case "filtered":
		s = Filtered{ObjectSet: f.objectSet("objectSet"), Filter: f.filter("filter")}
	case "intersected":
		s = Intersected{ObjectSets: f.objectSets("objectSets")}
	case "unioned":
		s = Unioned{ObjectSets: f.objectSets("objectSets")}
	case "subtracted":
		s = Subtracted{ObjectSets: f.objectSets("objectSets")}
	case "searchAround":
		s = SearchAround{ObjectSet: f.objectSet("objectSet"), Link: f.str("link"), Side: f.side("side")}
	case "softLinkSearchAround":
		s = SoftLinkSearchAround{ObjectSet: f.objectSet("objectSet"), Link: f.str("link"), Side: f.side("side")}
	case "interfaceLinkSearchAround":
		s = InterfaceLinkSearchAround{ObjectSet: f.objectSet("objectSet"), InterfaceLink: f.str("interfaceLink"), Side: f.side("side")}
	case "asType":
		s = AsType{ObjectSet: f.objectSet("objectSet"), EntityType: f.typeRef("entityType")}
	case "asBaseObjectTypes":
		s = AsBaseObjectTypes{ObjectSet: f.objectSet("objectSet")}
	case "knn":
		s = Knn{ObjectSet: f.objectSet("objectSet"), Property: f.str("property"), K: f.integer("k", 0), Vector: f.floats("vector")}
	case "knnV2":
		knn := KnnV2{ObjectSet: f.objectSet("objectSet"), Property: f.str("property"), K: f.integer("k", 0)}
		if f.err == nil {
			q, err := node(f.m["query"], f.at("query"))
			if err != nil {
				return nil, err
			}
			switch q.kind {
			case "vector":
				knn.Query = VectorLiteral{Vector: q.floats("vector")}
			case "text":
				knn.Query = TextQuery{Text: q.str("text")}
			default:
				q.fail("type", "knn query must be vector or text")
			}
			if q.err != nil {
				return nil, q.err
			}
		}
		s = knn
	case "methodInput":
		s = MethodInput{ID: f.optStr("id")}
	case "withProperties":
		s = WithProperties{ObjectSet: f.objectSet("objectSet"), DerivedProperties: f.derivedList("derivedProperties")}
	case "":
		return nil, invalid(path, "object set is missing its type")
	default:
		return nil, invalid(path, "unknown object set type %q", f.kind)
	}
	if f.err != nil {
		return nil, f.err
	}
	return s, nil
}

func parseLocator(item any, path, objectType string) (ObjectLocator, error) {
	switch v := item.(type) {
	case string:
		return ObjectLocator{ObjectType: objectType, PrimaryKey: v}, nil
	case map[string]any:
		f := &fields{m: v, path: path}
		loc := ObjectLocator{ObjectType: f.optStr("objectType"), PrimaryKey: ir.KeyString(f.value("primaryKey"))}
		if loc.ObjectType == "" {
			loc.ObjectType = objectType
		}
		if loc.PrimaryKey == "" && f.err == nil {
			f.fail("primaryKey", "object locator needs a primaryKey")
		}
		return loc, f.err
	default:
		return ObjectLocator{}, invalid(path, "object locator must be a primary key or an object")
	}
}

func parseFilter(tree any, path string) (Filter, error) {
	f, err := node(tree, path)
	if err != nil {
		return nil, err
	}
	var flt Filter
	switch f.kind {
	case "and":
		flt = And{Filters: f.filters("filters")}
	case "or":
		flt = Or{Filters: f.filters("filters")}
	case "not":
		flt = Not{Filter: f.filter("filter")}
	case "exactMatch", "eq":
		flt = ExactMatch{Property: f.str("property"), Terms: f.termsOrValue()}
	case "terms":
		flt = Terms{Property: f.str("property"), Terms: f.values("terms")}
	case "range":
		flt = Range{Property: f.str("property"), Gt: f.value("gt"), Gte: f.value("gte"), Lt: f.value("lt"), Lte: f.value("lte")}
	case "phrase":
		flt = Phrase{Property: f.str("property"), Query: f.str("query"), Fuzzy: f.boolean("fuzzy")}
	case "prefixOnLastToken":
		flt = PrefixOnLastToken{Property: f.str("property"), Query: f.str("query")}
	case "multiMatch":
		op := MatchOperator(f.optStr("operator"))
		switch op {
		case "":
			op = OperatorOr
		case OperatorAnd, OperatorOr:
		default:
			f.fail("operator", "operator must be AND or OR")
		}
		flt = MultiMatch{Properties: f.strs("properties"), Query: f.str("query"), Operator: op, Fuzzy: f.boolean("fuzzy")}
	case "wildcard":
		flt = Wildcard{Property: f.str("property"), Pattern: f.str("pattern")}
	case "regex":
		flt = Regex{Property: f.str("property"), Pattern: f.str("pattern")}
	case "geoBoundingBox":
		flt = GeoBoundingBox{Property: f.str("property"), TopLeft: f.geoPoint("topLeft"), BottomRight: f.geoPoint("bottomRight")}
	case "geoDistance":
		flt = GeoDistance{Property: f.str("property"), Center: f.geoPoint("center"), DistanceMeters: f.float("distanceMeters")}
	case "geoPolygon":
		g := GeoPolygon{Property: f.str("property")}
		for i, item := range f.list("points") {
			v, err := ir.FromAny(item)
			p, ok := v.(ir.GeoPoint)
			if err != nil || !ok {
				return nil, invalid(Elem(f.at("points"), i), "polygon point must be {lat, lon}")
			}
			g.Points = append(g.Points, p)
		}
		flt = g
	case "geoShape":
		rel := ShapeRelation(f.optStr("relation"))
		switch rel {
		case "":
			rel = RelationIntersects
		case RelationIntersects, RelationWithin, RelationDisjoint:
		default:
			f.fail("relation", "unknown shape relation %q", rel)
		}
		shape, ok := f.value("shape").(ir.GeoShape)
		if !ok {
			f.fail("shape", "shape must be a GeoJSON polygon")
		}
		flt = GeoShape{Property: f.str("property"), Shape: shape, Relation: rel}
	case "hasProperty":
		flt = HasProperty{Property: f.str("property")}
	case "linkPresence":
		flt = LinkPresence{Link: f.str("link"), Side: f.side("side")}
	case "userContext":
		v := UserContextValue(f.optStr("value"))
		switch v {
		case "":
			v = UserContextUserID
		case UserContextUserID, UserContextGroupIDs:
		default:
			f.fail("value", "userContext value must be USER_ID or GROUP_IDS")
		}
		flt = UserContext{Property: f.str("property"), Value: v}
	case "parameterizedExactMatch":
		terms, err := f.parameters("terms")
		if err != nil {
			return nil, err
		}
		flt = ParameterizedExactMatch{Property: f.str("property"), Terms: terms}
	case "parameterizedTerms":
		terms, err := f.parameters("terms")
		if err != nil {
			return nil, err
		}
		flt = ParameterizedTerms{Property: f.str("property"), Terms: terms}
	case "parameterizedRange":
		pr := ParameterizedRange{Property: f.str("property")}
		for key, dst := range map[string]*FilterParameter{"gt": &pr.Gt, "gte": &pr.Gte, "lt": &pr.Lt, "lte": &pr.Lte} {
			if !f.has(key) {
				continue
			}
			p, err := parseParameter(f.m[key], f.at(key))
			if err != nil {
				return nil, err
			}
			*dst = p
		}
		flt = pr
	case "parameterizedPhrase":
		p, err := parseParameter(f.m["query"], f.at("query"))
		if err != nil {
			return nil, err
		}
		flt = ParameterizedPhrase{Property: f.str("property"), Query: p}
	case "":
		return nil, invalid(path, "filter is missing its type")
	default:
		return nil, invalid(path, "unknown filter type %q", f.kind)
	}
	if f.err != nil {
		return nil, f.err
	}
	return flt, nil
}

// parameters decodes the filter parameter list at key.
func (f *fields) parameters(key string) ([]FilterParameter, error) {
	var out []FilterParameter
	for i, item := range f.list(key) {
		p, err := parseParameter(item, Elem(f.at(key), i))
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// termsOrValue accepts both {"terms": [...]} and the single-value
// shorthand {"value": x}.
func (f *fields) termsOrValue() []ir.Value {
	if f.has("value") && !f.has("terms") {
		return []ir.Value{f.value("value")}
	}
	return f.values("terms")
}

func parseParameter(tree any, path string) (FilterParameter, error) {
	f, err := node(tree, path)
	if err != nil {
		return nil, err
	}
	switch f.kind {
	case "literal":
		p := LiteralParameter{Value: f.value("value")}
		if p.Value == nil {
			f.fail("value", "literal parameter needs a value")
		}
		return p, f.err
	case "unresolved":
		p := UnresolvedFilterParameter{ParameterID: f.str("parameterId"), Default: f.value("default")}
		return p, f.err
	default:
		return nil, invalid(path, "filter parameter must be literal or unresolved")
	}
}

func parseAggregationFilter(tree any, path string) (AggregationFilter, error) {
	f, err := node(tree, path)
	if err != nil {
		return nil, err
	}
	sub := func(key string) []AggregationFilter {
		var out []AggregationFilter
		for i, item := range f.list(key) {
			if f.err != nil {
				return nil
			}
			af, err := parseAggregationFilter(item, Elem(f.at(key), i))
			if err != nil {
				f.err = err
				return nil
			}
			out = append(out, af)
		}
		return out
	}
	var af AggregationFilter
	switch f.kind {
	case "and":
		af = AggregationAnd{Filters: sub("filters")}
	case "or":
		af = AggregationOr{Filters: sub("filters")}
	case "not":
		inner, err := parseAggregationFilter(f.m["filter"], f.at("filter"))
		if err != nil {
			return nil, err
		}
		af = AggregationNot{Filter: inner}
	case "exactMatch":
		af = ExactMatchAggregationFilter{Property: f.str("property"), Terms: f.values("terms")}
	case "range":
		af = RangeAggregationFilter{Property: f.str("property"), Gt: f.value("gt"), Gte: f.value("gte"), Lt: f.value("lt"), Lte: f.value("lte")}
	case "hasProperty":
		af = HasPropertyAggregationFilter{Property: f.str("property")}
	case "wildcard":
		af = WildcardAggregationFilter{Property: f.str("property"), Pattern: f.str("pattern")}
	case "objectSetFilter":
		af = ObjectSetAggregationFilter{Filter: f.filter("filter")}
	default:
		return nil, invalid(path, "unknown aggregation filter type %q", f.kind)
	}
	if f.err != nil {
		return nil, f.err
	}
	return af, nil
}

func (f *fields) derivedList(key string) []DerivedProperty {
	var out []DerivedProperty
	for i, item := range f.list(key) {
		if f.err != nil {
			return nil
		}
		dp, err := parseDerivedProperty(item, Elem(f.at(key), i))
		if err != nil {
			f.err = err
			return nil
		}
		out = append(out, dp)
	}
	return out
}

func parseDerivedProperty(tree any, path string) (DerivedProperty, error) {
	f, err := node(tree, path)
	if err != nil {
		return DerivedProperty{}, err
	}
	dp := DerivedProperty{ID: f.str("propertyIdentifier")}
	if f.err != nil {
		return DerivedProperty{}, f.err
	}
	def, err := parseDefinition(f.m["definition"], f.at("definition"))
	if err != nil {
		return DerivedProperty{}, err
	}
	dp.Definition = def
	return dp, nil
}

func (f *fields) hop(key string) LinkHop {
	switch v := f.m[key].(type) {
	case string:
		return LinkHop{Link: v, Side: SideEither}
	case map[string]any:
		sub := &fields{m: v, path: f.at(key)}
		h := LinkHop{Link: sub.str("link"), Side: sub.side("side")}
		if sub.err != nil && f.err == nil {
			f.err = sub.err
		}
		return h
	default:
		f.fail(key, "link must be a link name or {link, side}")
		return LinkHop{}
	}
}

func parseDefinition(tree any, path string) (DerivedDefinition, error) {
	f, err := node(tree, path)
	if err != nil {
		return nil, err
	}
	var def DerivedDefinition
	switch f.kind {
	case "nativeProperty":
		def = NativeProperty{Property: f.str("property")}
	case "linkedObjectProperty":
		def = LinkedObjectProperty{Link: f.hop("link"), Property: f.str("property")}
	case "linkedObjectsAggregationProperty":
		hop := f.hop("link")
		if f.err != nil {
			return nil, f.err
		}
		m, err := parseMetric(f.m["aggregation"], f.at("aggregation"))
		if err != nil {
			return nil, err
		}
		def = LinkedObjectsAggregationProperty{Link: hop, Aggregation: m}
	case "linkedProperty":
		lp := LinkedProperty{Property: f.str("property")}
		for i, item := range f.list("links") {
			wrapper := &fields{m: map[string]any{"link": item}, path: Elem(f.at("links"), i)}
			h := wrapper.hop("link")
			if wrapper.err != nil {
				return nil, wrapper.err
			}
			lp.Links = append(lp.Links, h)
		}
		def = lp
	case "calculatedProperty":
		kind := CalculatedKind(f.optStr("kind"))
		switch kind {
		case "":
			kind = CalculatedNumeric
		case CalculatedNumeric, CalculatedDatetime:
		default:
			f.fail("kind", "calculated kind must be NUMERIC or DATETIME")
		}
		if f.err != nil {
			return nil, f.err
		}
		op, err := parseOperation(f.m["operation"], f.at("operation"))
		if err != nil {
			return nil, err
		}
		def = CalculatedProperty{Kind: kind, Operation: op}
	default:
		return nil, invalid(path, "unknown derived property definition %q", f.kind)
	}
	if f.err != nil {
		return nil, f.err
	}
	return def, nil
}

func parseOperation(tree any, path string) (Operation, error) {
	f, err := node(tree, path)
	if err != nil {
		return nil, err
	}
	one := func(key string) Operation {
		if f.err != nil {
			return nil
		}
		op, err := parseOperation(f.m[key], f.at(key))
		if err != nil {
			f.err = err
		}
		return op
	}
	many := func() []Operation {
		var out []Operation
		for i, item := range f.list("operands") {
			if f.err != nil {
				return nil
			}
			op, err := parseOperation(item, Elem(f.at("operands"), i))
			if err != nil {
				f.err = err
				return nil
			}
			out = append(out, op)
		}
		if len(out) == 0 && f.err == nil {
			f.fail("operands", "%s needs at least one operand", f.kind)
		}
		return out
	}
	unit := func() TimeUnit {
		u := TimeUnit(f.str("unit"))
		if !u.Valid() {
			f.fail("unit", "unknown time unit %q", u)
		}
		return u
	}
	var op Operation
	switch f.kind {
	case "literal":
		op = Literal{Value: f.value("value")}
	case "property":
		op = PropertyRef{Property: f.str("property")}
	case "add":
		op = Add{Operands: many()}
	case "subtract":
		op = Subtract{Left: one("left"), Right: one("right")}
	case "multiply":
		op = Multiply{Operands: many()}
	case "divide":
		op = Divide{Left: one("left"), Right: one("right")}
	case "negate":
		op = Negate{Operand: one("operand")}
	case "absolute":
		op = Absolute{Operand: one("operand")}
	case "least":
		op = Least{Operands: many()}
	case "greatest":
		op = Greatest{Operands: many()}
	case "dateAdd":
		op = DateAdd{Operand: one("operand"), Amount: one("amount"), Unit: unit()}
	case "dateDiff":
		op = DateDiff{Left: one("left"), Right: one("right"), Unit: unit()}
	default:
		return nil, invalid(path, "unknown operation %q", f.kind)
	}
	if f.err != nil {
		return nil, f.err
	}
	return op, nil
}

// Valid reports whether u is a known unit.
func (u TimeUnit) Valid() bool {
	switch u {
	case UnitSecond, UnitMinute, UnitHour, UnitDay, UnitWeek, UnitMonth, UnitQuarter, UnitYear:
		return true
	}
	return false
}

func parseMetric(tree any, path string) (Metric, error) {
	f, err := node(tree, path)
	if err != nil {
		return nil, err
	}
	method := func() DeviationMethod {
		m := DeviationMethod(f.optStr("method"))
		switch m {
		case "":
			return Population
		case Population, Sample:
			return m
		}
		f.fail("method", "method must be POPULATION or SAMPLE")
		return m
	}
	var m Metric
	switch f.kind {
	case "count":
		m = Count{}
	case "avg":
		m = Avg{Property: f.str("property")}
	case "sum":
		m = Sum{Property: f.str("property")}
	case "min":
		m = Min{Property: f.str("property")}
	case "max":
		m = Max{Property: f.str("property")}
	case "percentile":
		m = Percentile{Property: f.str("property"), Percentile: f.float("percentile")}
	case "cardinality", "approximateDistinct":
		m = Cardinality{Property: f.str("property")}
	case "exactCardinality", "exactDistinct":
		m = ExactCardinality{Property: f.str("property")}
	case "standardDeviation":
		m = StandardDeviation{Property: f.str("property"), Method: method()}
	case "variance":
		m = Variance{Property: f.str("property"), Method: method()}
	case "boundingBox":
		m = BoundingBox{Property: f.str("property")}
	case "collectList":
		m = CollectList{Property: f.str("property"), Limit: f.integer("limit", 100)}
	case "collectSet":
		m = CollectSet{Property: f.str("property"), Limit: f.integer("limit", 100)}
	default:
		return nil, invalid(path, "unknown metric type %q", f.kind)
	}
	if f.err != nil {
		return nil, f.err
	}
	return m, nil
}

func (f *fields) metrics(key string) map[string]Metric {
	if !f.has(key) || f.err != nil {
		return nil
	}
	m, ok := f.m[key].(map[string]any)
	if !ok {
		f.fail(key, "field %q must be an object of named metrics", key)
		return nil
	}
	out := make(map[string]Metric, len(m))
	for _, name := range sortedNames(m) {
		metric, err := parseMetric(m[name], Field(f.at(key), name))
		if err != nil {
			f.err = err
			return nil
		}
		out[name] = metric
	}
	return out
}

func (f *fields) aggregations(key string) map[string]Aggregation {
	if !f.has(key) || f.err != nil {
		return nil
	}
	m, ok := f.m[key].(map[string]any)
	if !ok {
		f.fail(key, "field %q must be an object of named aggregations", key)
		return nil
	}
	out := make(map[string]Aggregation, len(m))
	for _, name := range sortedNames(m) {
		agg, err := parseAggregationNode(m[name], Field(f.at(key), name))
		if err != nil {
			f.err = err
			return nil
		}
		out[name] = agg
	}
	return out
}

func parseAggregationNode(tree any, path string) (Aggregation, error) {
	f, err := node(tree, path)
	if err != nil {
		return nil, err
	}
	var dim Dimension
	if f.has("dimension") {
		if dim, err = parseDimension(f.m["dimension"], f.at("dimension")); err != nil {
			return nil, err
		}
	}
	var filter AggregationFilter
	if f.has("filter") {
		if filter, err = parseAggregationFilter(f.m["filter"], f.at("filter")); err != nil {
			return nil, err
		}
	}
	var ordering []Ordering
	for i, item := range f.list("ordering") {
		o, err := parseOrdering(item, Elem(f.at("ordering"), i))
		if err != nil {
			return nil, err
		}
		ordering = append(ordering, o)
	}
	var agg Aggregation
	switch f.kind {
	case "metrics", "":
		agg = MetricsAggregation{
			Dimension:       dim,
			Filter:          filter,
			Metrics:         f.metrics("metrics"),
			Ordering:        ordering,
			SubAggregations: f.aggregations("subAggregations"),
		}
	case "nested":
		if dim == nil {
			f.fail("dimension", "nested aggregation needs a dimension")
		}
		agg = NestedAggregation{
			Dimension:       dim,
			Filter:          filter,
			SubAggregations: f.aggregations("subAggregations"),
			Ordering:        ordering,
		}
	default:
		return nil, invalid(path, "unknown aggregation type %q", f.kind)
	}
	if f.err != nil {
		return nil, f.err
	}
	return agg, nil
}

func parseDimension(tree any, path string) (Dimension, error) {
	f, err := node(tree, path)
	if err != nil {
		return nil, err
	}
	maxBuckets := f.integer("maxBuckets", 0)
	nullBucket := f.boolean("shouldCreateNullValueBucket")
	var dim Dimension
	switch f.kind {
	case "propertyValue":
		prop := f.str("property")
		var b Bucketing = ExactValueBucketing{}
		if f.has("bucketing") && f.err == nil {
			if b, err = parseBucketing(f.m["bucketing"], f.at("bucketing")); err != nil {
				return nil, err
			}
		}
		dim = PropertyValueDimension{Property: prop, Bucketing: b, MaxBuckets: maxBuckets, ShouldCreateNullValueBucket: nullBucket}
	case "objectType":
		dim = ObjectTypeDimension{MaxBuckets: maxBuckets, ShouldCreateNullValueBucket: nullBucket}
	default:
		return nil, invalid(path, "unknown dimension type %q", f.kind)
	}
	if f.err != nil {
		return nil, f.err
	}
	return dim, nil
}

func parseBucketing(tree any, path string) (Bucketing, error) {
	f, err := node(tree, path)
	if err != nil {
		return nil, err
	}
	valueFilter := func() *ValueFilter {
		if !f.has("valueFilter") || f.err != nil {
			return nil
		}
		sub, err := node(f.m["valueFilter"], f.at("valueFilter"))
		if err != nil {
			f.err = err
			return nil
		}
		vf := &ValueFilter{
			Include:      sub.values("include"),
			Exclude:      sub.values("exclude"),
			IncludeRegex: sub.optStr("includeRegex"),
			ExcludeRegex: sub.optStr("excludeRegex"),
		}
		if sub.err != nil {
			f.err = sub.err
		}
		return vf
	}
	var b Bucketing
	switch f.kind {
	case "exactValue":
		b = ExactValueBucketing{ValueFilter: valueFilter()}
	case "keywords":
		b = KeywordsBucketing{ValueFilter: valueFilter()}
	case "geoHash":
		b = GeoHashBucketing{Precision: f.integer("precision", 5)}
	case "numeric":
		nb := NumericBucketing{FixedBucketCount: f.integer("fixedBucketCount", 0)}
		if f.has("fixedWidth") && f.err == nil {
			sub, err := node(f.m["fixedWidth"], f.at("fixedWidth"))
			if err != nil {
				return nil, err
			}
			nb.FixedWidth = &FixedWidth{Width: sub.float("width")}
			if sub.has("offset") {
				nb.FixedWidth.Offset = sub.float("offset")
			}
			if sub.err != nil {
				return nil, sub.err
			}
		}
		for i, item := range f.list("ranges") {
			sub, err := node(item, Elem(f.at("ranges"), i))
			if err != nil {
				return nil, err
			}
			r := NumericRange{From: sub.optFloat("from"), To: sub.optFloat("to")}
			if sub.err != nil {
				return nil, sub.err
			}
			nb.Ranges = append(nb.Ranges, r)
		}
		b = nb
	case "date":
		db := DateBucketing{TimeZoneID: f.optStr("timeZoneId")}
		if f.err == nil {
			sub, err := node(f.m["interval"], f.at("interval"))
			if err != nil {
				return nil, err
			}
			db.Interval = DateInterval{Unit: TimeUnit(sub.str("unit")), Value: sub.integer("value", 1)}
			if sub.err != nil {
				return nil, sub.err
			}
		}
		b = db
	default:
		return nil, invalid(path, "unknown bucketing type %q", f.kind)
	}
	if f.err != nil {
		return nil, f.err
	}
	return b, nil
}

func parseOrdering(tree any, path string) (Ordering, error) {
	f, err := node(tree, path)
	if err != nil {
		return nil, err
	}
	dir := Direction(f.optStr("direction"))
	switch dir {
	case "":
		dir = Ascending
	case Ascending, Descending:
	default:
		f.fail("direction", "direction must be ASC or DESC")
	}
	var o Ordering
	switch f.kind {
	case "key":
		o = KeyOrdering{Direction: dir}
	case "value":
		o = ValueOrdering{Metric: f.str("metric"), Direction: dir}
	default:
		return nil, invalid(path, "unknown ordering type %q", f.kind)
	}
	if f.err != nil {
		return nil, f.err
	}
	return o, nil
}

func sortedNames(m map[string]any) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

