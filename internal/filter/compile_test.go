package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/osq/internal/ir"
	"github.com/roach88/osq/internal/objectset"
	"github.com/roach88/osq/internal/ontology"
	"github.com/roach88/osq/internal/plan"
	"github.com/roach88/osq/internal/qerr"
	"github.com/roach88/osq/internal/testutil"
)

func employeeScope(t *testing.T, c ontology.MetadataProvider) *ontology.Scope {
	t.Helper()
	s, err := ontology.ObjectTypeScope(c, "employee")
	require.NoError(t, err)
	return s
}

func TestCompile_Predicates(t *testing.T) {
	c := testutil.Catalog(t)
	comp := NewCompiler(c)
	scope := employeeScope(t, c)

	tests := []struct {
		name   string
		filter objectset.Filter
		check  func(t *testing.T, p plan.Predicate)
	}{
		{
			name:   "empty exact match is true",
			filter: objectset.ExactMatch{Property: "title"},
			check:  func(t *testing.T, p plan.Predicate) { assert.Equal(t, plan.True{}, p) },
		},
		{
			name:   "exact match coerces terms",
			filter: objectset.ExactMatch{Property: "salary", Terms: []ir.Value{ir.Int(95000)}},
			check: func(t *testing.T, p plan.Predicate) {
				exact := p.(plan.Exact)
				assert.Equal(t, []ir.Value{ir.Double(95000)}, exact.Terms)
			},
		},
		{
			name:   "terms on analyzed field become tokens",
			filter: objectset.Terms{Property: "name", Terms: []ir.Value{ir.String("Ada")}},
			check: func(t *testing.T, p plan.Predicate) {
				assert.Equal(t, []string{"ada"}, p.(plan.Tokens).Tokens)
			},
		},
		{
			name:   "terms on keyword field stay exact",
			filter: objectset.Terms{Property: "title", Terms: []ir.Value{ir.String("Engineer")}},
			check: func(t *testing.T, p plan.Predicate) {
				assert.IsType(t, plan.Exact{}, p)
			},
		},
		{
			name:   "phrase on analyzed field",
			filter: objectset.Phrase{Property: "name", Query: "Grace HOPPER"},
			check: func(t *testing.T, p plan.Predicate) {
				assert.Equal(t, []string{"grace", "hopper"}, p.(plan.Phrase).Tokens)
			},
		},
		{
			name:   "empty phrase matches nothing",
			filter: objectset.Phrase{Property: "name", Query: "  "},
			check:  func(t *testing.T, p plan.Predicate) { assert.Equal(t, plan.False{}, p) },
		},
		{
			name:   "prefix on keyword field",
			filter: objectset.PrefixOnLastToken{Property: "title", Query: "Eng"},
			check: func(t *testing.T, p plan.Predicate) {
				assert.Equal(t, "Eng", p.(plan.Prefix).Prefix)
			},
		},
		{
			name:   "range coerces date bounds",
			filter: objectset.Range{Property: "startDate", Gte: ir.String("2019-01-01")},
			check: func(t *testing.T, p plan.Predicate) {
				r := p.(plan.Range)
				assert.IsType(t, ir.Timestamp{}, r.Gte)
				assert.Nil(t, r.Lt)
			},
		},
		{
			name:   "user context without user matches nothing",
			filter: objectset.UserContext{Property: "id", Value: objectset.UserContextUserID},
			check:  func(t *testing.T, p plan.Predicate) { assert.Equal(t, plan.False{}, p) },
		},
		{
			name:   "link presence on source side sits on target end",
			filter: objectset.LinkPresence{Link: "officeEmployees", Side: objectset.SideSource},
			check: func(t *testing.T, p plan.Predicate) {
				assert.Equal(t, plan.LinkPresence{Link: "officeEmployees", End: objectset.SideTarget}, p)
			},
		},
		{
			name: "parameter default",
			filter: objectset.ParameterizedExactMatch{Property: "title", Terms: []objectset.FilterParameter{
				objectset.UnresolvedFilterParameter{ParameterID: "p", Default: ir.String("Admiral")},
			}},
			check: func(t *testing.T, p plan.Predicate) {
				assert.Equal(t, []ir.Value{ir.String("Admiral")}, p.(plan.Exact).Terms)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := comp.Compile(tt.filter, scope, objectset.Context{}, objectset.RootPath)
			require.NoError(t, err)
			tt.check(t, p)
		})
	}
}

func TestCompile_Errors(t *testing.T) {
	c := testutil.Catalog(t)
	comp := NewCompiler(c)
	scope := employeeScope(t, c)

	tests := []struct {
		name   string
		filter objectset.Filter
		code   qerr.Code
		path   string
	}{
		{
			name:   "unknown property",
			filter: objectset.ExactMatch{Property: "nope", Terms: []ir.Value{ir.String("x")}},
			code:   qerr.CodePropertyNotFound,
			path:   "$",
		},
		{
			name:   "term of wrong type",
			filter: objectset.ExactMatch{Property: "age", Terms: []ir.Value{ir.String("old")}},
			code:   qerr.CodePropertyTypeMismatch,
			path:   "$.exactMatch.terms[0]",
		},
		{
			name: "nested path",
			filter: objectset.And{Filters: []objectset.Filter{
				objectset.HasProperty{Property: "id"},
				objectset.Not{Filter: objectset.Regex{Property: "title", Pattern: "("}},
			}},
			code: qerr.CodeInvalidRegex,
			path: "$.and.filters[1].not.filter.regex.pattern",
		},
		{
			name:   "geo filter on non geo field",
			filter: objectset.GeoDistance{Property: "title", DistanceMeters: 10},
			code:   qerr.CodePropertyTypeMismatch,
			path:   "$",
		},
		{
			name: "polygon with two points",
			filter: objectset.GeoPolygon{Property: "location", Points: []ir.GeoPoint{
				{Lat: 1, Lon: 1}, {Lat: 2, Lon: 2},
			}},
			code: qerr.CodeInvalidArgument,
			path: "$.geoPolygon.points",
		},
		{
			name:   "latitude out of range",
			filter: objectset.GeoDistance{Property: "location", Center: ir.GeoPoint{Lat: 91}, DistanceMeters: 1},
			code:   qerr.CodeInvalidArgument,
			path:   "$.geoDistance.center",
		},
		{
			name:   "link not touching scope",
			filter: objectset.LinkPresence{Link: "officeEmployees", Side: objectset.SideTarget},
			code:   qerr.CodeInvalidArgument,
			path:   "$",
		},
		{
			name:   "unknown link",
			filter: objectset.LinkPresence{Link: "nope"},
			code:   qerr.CodeUnknownLinkType,
			path:   "$",
		},
		{
			name:   "range on geo field",
			filter: objectset.Range{Property: "location", Gt: ir.Int(1)},
			code:   qerr.CodePropertyTypeMismatch,
			path:   "$",
		},
		{
			name: "missing parameter",
			filter: objectset.ParameterizedRange{Property: "age",
				Gt: objectset.UnresolvedFilterParameter{ParameterID: "minAge"}},
			code: qerr.CodeMissingParameterValue,
			path: "$.parameterizedRange.gt",
		},
		{
			name:   "multi match without properties",
			filter: objectset.MultiMatch{Query: "ada"},
			code:   qerr.CodeInvalidArgument,
			path:   "$",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := comp.Compile(tt.filter, scope, objectset.Context{}, objectset.RootPath)
			require.Error(t, err)
			qe, ok := qerr.As(err)
			require.True(t, ok, "unclassified error %v", err)
			assert.Equal(t, tt.code, qe.Code)
			assert.Equal(t, tt.path, qe.Path)
		})
	}
}

func TestCompile_ParameterOverride(t *testing.T) {
	c := testutil.Catalog(t)
	comp := NewCompiler(c)
	octx := objectset.Context{ParameterOverrides: map[string]ir.Value{"minAge": ir.Int(80)}}

	p, err := comp.Compile(objectset.ParameterizedRange{
		Property: "age",
		Gt:       objectset.UnresolvedFilterParameter{ParameterID: "minAge", Default: ir.Int(10)},
	}, employeeScope(t, c), octx, objectset.RootPath)
	require.NoError(t, err)
	assert.Equal(t, ir.Int(80), p.(plan.Range).Gt)
}

func TestCompile_ParameterizedTerms(t *testing.T) {
	c := testutil.Catalog(t)
	comp := NewCompiler(c)
	scope := employeeScope(t, c)
	who := objectset.UnresolvedFilterParameter{ParameterID: "who", Default: ir.String("Ada")}

	t.Run("override on analyzed property", func(t *testing.T) {
		octx := objectset.Context{ParameterOverrides: map[string]ir.Value{"who": ir.String("GRACE")}}
		p, err := comp.Compile(objectset.ParameterizedTerms{Property: "name", Terms: []objectset.FilterParameter{who}},
			scope, octx, objectset.RootPath)
		require.NoError(t, err)
		assert.Equal(t, []string{"grace"}, p.(plan.Tokens).Tokens)
	})

	t.Run("default on keyword property", func(t *testing.T) {
		p, err := comp.Compile(objectset.ParameterizedTerms{Property: "title", Terms: []objectset.FilterParameter{
			objectset.LiteralParameter{Value: ir.String("Engineer")},
			objectset.UnresolvedFilterParameter{ParameterID: "title", Default: ir.String("Manager")},
		}}, scope, objectset.Context{}, objectset.RootPath)
		require.NoError(t, err)
		assert.Equal(t, []ir.Value{ir.String("Engineer"), ir.String("Manager")}, p.(plan.Exact).Terms)
	})

	t.Run("empty terms match everything", func(t *testing.T) {
		p, err := comp.Compile(objectset.ParameterizedTerms{Property: "title"}, scope, objectset.Context{}, objectset.RootPath)
		require.NoError(t, err)
		assert.Equal(t, plan.True{}, p)
	})

	t.Run("missing parameter value", func(t *testing.T) {
		_, err := comp.Compile(objectset.ParameterizedTerms{Property: "title", Terms: []objectset.FilterParameter{
			objectset.UnresolvedFilterParameter{ParameterID: "title"},
		}}, scope, objectset.Context{}, objectset.RootPath)
		require.Error(t, err)
		assert.True(t, qerr.HasCode(err, qerr.CodeMissingParameterValue))
		qe, _ := qerr.As(err)
		assert.Equal(t, "$.parameterizedTerms.terms[0]", qe.Path)
	})
}

func TestCompile_UserContextGroups(t *testing.T) {
	c := testutil.Catalog(t)
	octx := objectset.Context{UserID: "u1", GroupIDs: []string{"g1", "g2"}}

	p, err := NewCompiler(c).Compile(objectset.UserContext{Property: "office", Value: objectset.UserContextGroupIDs},
		employeeScope(t, c), octx, objectset.RootPath)
	require.NoError(t, err)
	assert.Equal(t, []ir.Value{ir.String("g1"), ir.String("g2")}, p.(plan.Exact).Terms)
}

func TestCompile_InterfaceScope(t *testing.T) {
	c := testutil.Catalog(t)
	scope, err := ontology.InterfaceScope(c, "Vehicle")
	require.NoError(t, err)

	p, err := NewCompiler(c).Compile(objectset.ExactMatch{Property: "vehicleMake", Terms: []ir.Value{ir.String("Volvo")}},
		scope, objectset.Context{}, objectset.RootPath)
	require.NoError(t, err)
	exact := p.(plan.Exact)
	assert.Equal(t, map[string]string{"car": "make", "truck": "brand"}, exact.Field.ByType)
}

func TestCompileAggregation(t *testing.T) {
	c := testutil.Catalog(t)
	comp := NewCompiler(c)
	scope := employeeScope(t, c)

	t.Run("empty terms rejected", func(t *testing.T) {
		_, err := comp.CompileAggregation(objectset.AggregationNot{
			Filter: objectset.ExactMatchAggregationFilter{Property: "title"},
		}, scope, objectset.Context{}, objectset.RootPath)
		require.Error(t, err)
		assert.True(t, qerr.HasCode(err, qerr.CodeEmptyTerms))
		qe, _ := qerr.As(err)
		assert.Equal(t, "$.not.filter", qe.Path)
	})

	t.Run("embedded object set filter", func(t *testing.T) {
		p, err := comp.CompileAggregation(objectset.AggregationAnd{Filters: []objectset.AggregationFilter{
			objectset.HasPropertyAggregationFilter{Property: "salary"},
			objectset.ObjectSetAggregationFilter{Filter: objectset.Wildcard{Property: "title", Pattern: "Eng*"}},
		}}, scope, objectset.Context{}, objectset.RootPath)
		require.NoError(t, err)
		and := p.(plan.And)
		require.Len(t, and.Predicates, 2)
		assert.IsType(t, plan.Has{}, and.Predicates[0])
		assert.IsType(t, plan.Pattern{}, and.Predicates[1])
	})
}
