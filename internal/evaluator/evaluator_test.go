package evaluator

import (
	"context"
	"io"
	"log/slog"
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

type savedSets map[string]objectset.ObjectSet

func (s savedSets) SavedSet(_ context.Context, rid string) (objectset.ObjectSet, bool, error) {
	def, ok := s[rid]
	return def, ok, nil
}

func newEvaluator(t *testing.T, opts ...Option) *Evaluator {
	t.Helper()
	opts = append([]Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	return New(testutil.Catalog(t), opts...)
}

func base(t string) objectset.ObjectSet { return objectset.Base{ObjectType: t} }

func asInterface(s objectset.ObjectSet, iface string) objectset.ObjectSet {
	return objectset.AsType{ObjectSet: s, EntityType: objectset.TypeRef{Kind: objectset.KindInterface, APIName: iface}}
}

func TestEvaluate_Plans(t *testing.T) {
	tests := []struct {
		name  string
		set   objectset.ObjectSet
		types []string
		kind  ontology.ScopeKind
		plan  plan.Set
	}{
		{
			name:  "base",
			set:   base("employee"),
			types: []string{"employee"},
			kind:  ontology.ScopeObjectType,
			plan:  plan.Scan{ObjectTypes: []string{"employee"}},
		},
		{
			name:  "interface base includes extending implementers",
			set:   objectset.InterfaceBase{InterfaceType: "Vehicle"},
			types: []string{"car", "truck"},
			kind:  ontology.ScopeInterface,
			plan:  plan.Scan{ObjectTypes: []string{"car", "truck"}},
		},
		{
			name: "static dedupes and sorts keys",
			set: objectset.Static{ObjectType: "employee", Objects: []objectset.ObjectLocator{
				{PrimaryKey: "e3"}, {PrimaryKey: "e1"}, {PrimaryKey: "e3"},
			}},
			types: []string{"employee"},
			kind:  ontology.ScopeObjectType,
			plan: plan.Static{Keys: []plan.Key{
				{ObjectType: "employee", PrimaryKey: "e1"},
				{ObjectType: "employee", PrimaryKey: "e3"},
			}},
		},
		{
			name:  "empty exact match keeps the input",
			set:   objectset.Filtered{ObjectSet: base("employee"), Filter: objectset.ExactMatch{Property: "title"}},
			types: []string{"employee"},
			kind:  ontology.ScopeObjectType,
			plan:  plan.Scan{ObjectTypes: []string{"employee"}},
		},
		{
			name:  "subtracted keeps the first scope",
			set:   objectset.Subtracted{ObjectSets: []objectset.ObjectSet{base("car"), asInterface(base("car"), "MotorVehicle")}},
			types: []string{"car"},
			kind:  ontology.ScopeObjectType,
			plan: plan.Subtract{Inputs: []plan.Set{
				plan.Scan{ObjectTypes: []string{"car"}},
				plan.Restrict{Input: plan.Scan{ObjectTypes: []string{"car"}}, ObjectTypes: []string{"car"}},
			}},
		},
		{
			name:  "search around toward source",
			set:   objectset.SearchAround{ObjectSet: base("employee"), Link: "officeEmployees", Side: objectset.SideSource},
			types: []string{"office"},
			kind:  ontology.ScopeObjectType,
			plan:  plan.Traverse{Input: plan.Scan{ObjectTypes: []string{"employee"}}, Link: "officeEmployees", Toward: objectset.SideSource},
		},
		{
			name:  "either side of a self link follows both directions",
			set:   objectset.SearchAround{ObjectSet: base("employee"), Link: "mentors", Side: objectset.SideEither},
			types: []string{"employee"},
			kind:  ontology.ScopeObjectType,
			plan:  plan.Traverse{Input: plan.Scan{ObjectTypes: []string{"employee"}}, Link: "mentors", Toward: objectset.SideEither},
		},
		{
			name:  "either side infers the only applicable direction",
			set:   objectset.SearchAround{ObjectSet: base("office"), Link: "officeEmployees"},
			types: []string{"employee"},
			kind:  ontology.ScopeObjectType,
			plan:  plan.Traverse{Input: plan.Scan{ObjectTypes: []string{"office"}}, Link: "officeEmployees", Toward: objectset.SideTarget},
		},
		{
			name:  "interface link resolves the concrete binding",
			set:   objectset.InterfaceLinkSearchAround{ObjectSet: objectset.InterfaceBase{InterfaceType: "MotorVehicle"}, InterfaceLink: "vehicleOwner", Side: objectset.SideTarget},
			types: []string{"employee"},
			kind:  ontology.ScopeObjectType,
			plan: plan.Traverse{
				Input:  plan.Restrict{Input: plan.Scan{ObjectTypes: []string{"car"}}, ObjectTypes: []string{"car"}},
				Link:   "carOwner",
				Toward: objectset.SideSource,
			},
		},
		{
			name:  "interface link toward the implementers",
			set:   objectset.InterfaceLinkSearchAround{ObjectSet: base("employee"), InterfaceLink: "vehicleOwner", Side: objectset.SideSource},
			types: []string{"car"},
			kind:  ontology.ScopeInterface,
			plan:  plan.Traverse{Input: plan.Scan{ObjectTypes: []string{"employee"}}, Link: "carOwner", Toward: objectset.SideTarget},
		},
		{
			name:  "soft link",
			set:   objectset.SoftLinkSearchAround{ObjectSet: base("employee"), Link: "employeeOffice", Side: objectset.SideTarget},
			types: []string{"office"},
			kind:  ontology.ScopeObjectType,
			plan: plan.SoftTraverse{
				Input: plan.Scan{ObjectTypes: []string{"employee"}},
				Link: ontology.SoftLinkType{APIName: "employeeOffice", Source: "employee", SourceProperty: "office",
					Target: "office", TargetProperty: "id"},
				Toward: objectset.SideTarget,
			},
		},
		{
			name:  "as base object types keeps the plan",
			set:   objectset.AsBaseObjectTypes{ObjectSet: objectset.InterfaceBase{InterfaceType: "Vehicle"}},
			types: []string{"car", "truck"},
			kind:  ontology.ScopeUnion,
			plan:  plan.Scan{ObjectTypes: []string{"car", "truck"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rs, err := newEvaluator(t).Evaluate(context.Background(), tt.set, objectset.Context{})
			require.NoError(t, err)
			assert.Equal(t, tt.types, rs.Scope.Types())
			assert.Equal(t, tt.kind, rs.Scope.Kind)
			assert.Equal(t, tt.plan, rs.Plan)
		})
	}
}

func TestEvaluate_UnionMergesViews(t *testing.T) {
	set := objectset.Unioned{ObjectSets: []objectset.ObjectSet{
		asInterface(base("car"), "MotorVehicle"),
		asInterface(base("truck"), "Vehicle"),
	}}
	rs, err := newEvaluator(t).Evaluate(context.Background(), set, objectset.Context{})
	require.NoError(t, err)

	assert.Equal(t, ontology.ScopeUnion, rs.Scope.Kind)
	assert.Equal(t, "mileage", rs.Scope.Members["car"].Views["MotorVehicle"]["mileageKm"])
	assert.Equal(t, "brand", rs.Scope.Members["truck"].Views["Vehicle"]["vehicleMake"])

	// The interface view of the car branch stays usable after the union.
	f, err := ontology.ResolveProperty(testutil.Catalog(t), "vehicleMake", rs.Scope, ontology.UsageFilter)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"car": "make", "truck": "brand"}, f.ByType)
}

func TestEvaluate_IntersectKeepsCommonTypes(t *testing.T) {
	set := objectset.Intersected{ObjectSets: []objectset.ObjectSet{
		objectset.InterfaceBase{InterfaceType: "Vehicle"},
		objectset.InterfaceBase{InterfaceType: "MotorVehicle"},
	}}
	rs, err := newEvaluator(t, WithMaxParallelism(1)).Evaluate(context.Background(), set, objectset.Context{})
	require.NoError(t, err)
	assert.Equal(t, []string{"car"}, rs.Scope.Types())
	assert.Equal(t, plan.Intersect{Inputs: []plan.Set{
		plan.Scan{ObjectTypes: []string{"car", "truck"}},
		plan.Scan{ObjectTypes: []string{"car"}},
	}}, rs.Plan)
}

func TestEvaluate_Filtered(t *testing.T) {
	set := objectset.Filtered{
		ObjectSet: base("employee"),
		Filter:    objectset.ExactMatch{Property: "title", Terms: []ir.Value{ir.String("Engineer")}},
	}
	rs, err := newEvaluator(t).Evaluate(context.Background(), set, objectset.Context{})
	require.NoError(t, err)

	f, ok := rs.Plan.(plan.Filter)
	require.True(t, ok, "got %T", rs.Plan)
	assert.Equal(t, plan.Scan{ObjectTypes: []string{"employee"}}, f.Input)
	assert.IsType(t, plan.Exact{}, f.Predicate)
}

func TestEvaluate_WithProperties(t *testing.T) {
	set := objectset.Filtered{
		ObjectSet: objectset.WithProperties{
			ObjectSet: base("employee"),
			DerivedProperties: []objectset.DerivedProperty{{
				ID:         "officeCity",
				Definition: objectset.LinkedObjectProperty{Link: objectset.LinkHop{Link: "officeEmployees"}, Property: "city"},
			}},
		},
		Filter: objectset.ExactMatch{Property: "officeCity", Terms: []ir.Value{ir.String("London")}},
	}
	rs, err := newEvaluator(t).Evaluate(context.Background(), set, objectset.Context{})
	require.NoError(t, err)

	assert.Contains(t, rs.Scope.Derived, "officeCity")
	f, ok := rs.Plan.(plan.Filter)
	require.True(t, ok, "got %T", rs.Plan)
	derive, ok := f.Input.(plan.Derive)
	require.True(t, ok, "got %T", f.Input)
	require.Len(t, derive.Fields, 1)
	assert.Equal(t, "officeCity", derive.Fields[0].ID)
}

func TestEvaluate_Knn(t *testing.T) {
	rs, err := newEvaluator(t).Evaluate(context.Background(), objectset.KnnV2{
		ObjectSet: base("employee"),
		Property:  "embedding",
		K:         2,
		Query:     objectset.VectorLiteral{Vector: []float64{1, 0, 0}},
	}, objectset.Context{})
	require.NoError(t, err)

	n, ok := rs.Plan.(plan.Nearest)
	require.True(t, ok, "got %T", rs.Plan)
	assert.Equal(t, 2, n.K)
	assert.Equal(t, []float64{1, 0, 0}, n.Vector)
	assert.Equal(t, "cosine", n.Similarity)
	assert.True(t, plan.Ordered(rs.Plan))
}

func TestEvaluate_Referenced(t *testing.T) {
	saved := savedSets{
		"ri.engineers": objectset.Filtered{
			ObjectSet: base("employee"),
			Filter:    objectset.ExactMatch{Property: "title", Terms: []ir.Value{ir.String("Engineer")}},
		},
		"ri.a": objectset.Unioned{ObjectSets: []objectset.ObjectSet{base("employee"), objectset.Referenced{RID: "ri.b"}}},
		"ri.b": objectset.Referenced{RID: "ri.a"},
	}
	ev := newEvaluator(t, WithSavedSets(saved))

	t.Run("resolves the saved definition", func(t *testing.T) {
		rs, err := ev.Evaluate(context.Background(), objectset.Referenced{RID: "ri.engineers"}, objectset.Context{})
		require.NoError(t, err)
		assert.IsType(t, plan.Filter{}, rs.Plan)
	})

	t.Run("cycle", func(t *testing.T) {
		_, err := ev.Evaluate(context.Background(), objectset.Referenced{RID: "ri.a"}, objectset.Context{})
		require.Error(t, err)
		qe, ok := qerr.As(err)
		require.True(t, ok)
		assert.Equal(t, qerr.CodeReferenceCycle, qe.Code)
		assert.Equal(t, "ri.a -> ri.b -> ri.a", qe.Details["cycle"])
		assert.Equal(t, "$.referenced.definition.unioned.objectSets[1].referenced.definition", qe.Path)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := ev.Evaluate(context.Background(), objectset.Referenced{RID: "ri.missing"}, objectset.Context{})
		assert.True(t, qerr.HasCode(err, qerr.CodeObjectSetNotFound))
		assert.True(t, qerr.IsResource(err))
	})

	t.Run("no resolver", func(t *testing.T) {
		_, err := newEvaluator(t).Evaluate(context.Background(), objectset.Referenced{RID: "ri.engineers"}, objectset.Context{})
		assert.True(t, qerr.HasCode(err, qerr.CodeObjectSetNotFound))
	})
}

func TestEvaluate_Errors(t *testing.T) {
	tests := []struct {
		name string
		set  objectset.ObjectSet
		code qerr.Code
		path string
	}{
		{"unknown object type", base("spaceship"), qerr.CodeUnknownObjectType, "$.base.objectType"},
		{"unknown interface", objectset.InterfaceBase{InterfaceType: "Boat"}, qerr.CodeUnknownInterfaceType, "$.interfaceBase.interfaceType"},
		{"missing child", objectset.Filtered{Filter: objectset.HasProperty{Property: "name"}}, qerr.CodeInvalidExpression, "$.filtered.objectSet"},
		{
			"filter error in a sibling",
			objectset.Intersected{ObjectSets: []objectset.ObjectSet{
				base("employee"),
				objectset.Filtered{ObjectSet: base("employee"), Filter: objectset.HasProperty{Property: "wingspan"}},
			}},
			qerr.CodePropertyNotFound,
			"$.intersected.objectSets[1].filtered.filter.hasProperty.property",
		},
		{"empty union", objectset.Unioned{}, qerr.CodeInvalidExpression, "$.unioned.objectSets"},
		{"unknown link", objectset.SearchAround{ObjectSet: base("employee"), Link: "friends"}, qerr.CodeUnknownLinkType, "$.searchAround.link"},
		{
			"link not reachable from scope",
			objectset.SearchAround{ObjectSet: base("office"), Link: "carOwner"},
			qerr.CodeInvalidArgument,
			"$.searchAround.link",
		},
		{
			"link side not reachable from scope",
			objectset.SearchAround{ObjectSet: base("office"), Link: "officeEmployees", Side: objectset.SideSource},
			qerr.CodeInvalidArgument,
			"$.searchAround.link",
		},
		{"illegal cast", asInterface(base("bicycle"), "Vehicle"), qerr.CodeIllegalCast, "$.asType.entityType"},
		{"method input", objectset.MethodInput{ID: "input"}, qerr.CodeNotSupported, "$"},
		{
			"static locator of unknown type",
			objectset.Static{Objects: []objectset.ObjectLocator{{ObjectType: "employee", PrimaryKey: "e1"}, {ObjectType: "ufo", PrimaryKey: "u1"}}},
			qerr.CodeUnknownObjectType,
			"$.static.objects[1]",
		},
		{"knn k too large", objectset.Knn{ObjectSet: base("employee"), Property: "embedding", K: 101, Vector: []float64{1, 0, 0}}, qerr.CodeInvalidKnn, "$.knn.k"},
		{"knn wrong dimension", objectset.Knn{ObjectSet: base("employee"), Property: "embedding", K: 1, Vector: []float64{1, 0}}, qerr.CodeInvalidKnn, "$.knn.vector"},
		{"knn on a non-vector", objectset.Knn{ObjectSet: base("employee"), Property: "salary", K: 1, Vector: []float64{1}}, qerr.CodeInvalidKnn, "$.knn.property"},
		{"knn empty text", objectset.KnnV2{ObjectSet: base("employee"), Property: "embedding", K: 1, Query: objectset.TextQuery{}}, qerr.CodeInvalidKnn, "$.knnV2.query"},
		{
			"derived from derived inside withProperties",
			objectset.WithProperties{
				ObjectSet: objectset.WithProperties{
					ObjectSet:         base("employee"),
					DerivedProperties: []objectset.DerivedProperty{{ID: "role", Definition: objectset.NativeProperty{Property: "title"}}},
				},
				DerivedProperties: []objectset.DerivedProperty{{ID: "role2", Definition: objectset.NativeProperty{Property: "role"}}},
			},
			qerr.CodeDerivedFromDerived,
			"$.withProperties.derivedProperties[0].definition",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newEvaluator(t).Evaluate(context.Background(), tt.set, objectset.Context{})
			require.Error(t, err)
			qe, ok := qerr.As(err)
			require.True(t, ok, "unclassified error: %v", err)
			assert.Equal(t, tt.code, qe.Code)
			assert.Equal(t, tt.path, qe.Path)
		})
	}
}

func TestEvaluate_NodeBudget(t *testing.T) {
	set := objectset.Unioned{ObjectSets: []objectset.ObjectSet{base("employee"), base("office"), base("car")}}

	_, err := newEvaluator(t, WithMaxNodes(4)).Evaluate(context.Background(), set, objectset.Context{})
	require.NoError(t, err)

	_, err = newEvaluator(t, WithMaxNodes(3)).Evaluate(context.Background(), set, objectset.Context{})
	require.Error(t, err)
	assert.True(t, qerr.HasCode(err, qerr.CodeExpressionTooLarge))
}

func TestEvaluate_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newEvaluator(t).Evaluate(ctx, base("employee"), objectset.Context{})
	assert.ErrorIs(t, err, context.Canceled)
}
