package ontology

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/osq/internal/qerr"
)

func TestResolvePropertyObjectType(t *testing.T) {
	c := fixtureCatalog(t)
	s, _ := ObjectTypeScope(c, "employee")

	rp, err := ResolveProperty(c, "salary", s, UsageSort)
	require.NoError(t, err)
	assert.Equal(t, "salary", rp.Local("employee"))
	assert.Equal(t, TypeDouble, rp.Type.Base)

	_, err = ResolveProperty(c, "missing", s, UsageFilter)
	assert.Equal(t, qerr.CodePropertyNotFound, qerr.CodeOf(err))
}

func TestResolvePropertyNotSortable(t *testing.T) {
	c := fixtureCatalog(t)
	s, _ := ObjectTypeScope(c, "employee")

	for _, prop := range []string{"tags", "name", "location", "embedding"} {
		t.Run(prop, func(t *testing.T) {
			_, err := ResolveProperty(c, prop, s, UsageSort)
			assert.Equal(t, qerr.CodePropertyNotSortable, qerr.CodeOf(err))

			_, err = ResolveProperty(c, prop, s, UsageFilter)
			assert.NoError(t, err)
		})
	}

	_, err := ResolveProperty(c, "embedding", s, UsageAggregate)
	assert.Equal(t, qerr.CodePropertyTypeMismatch, qerr.CodeOf(err))
}

func TestResolvePropertyInterfaceScope(t *testing.T) {
	c := fixtureCatalog(t)
	s, _ := InterfaceScope(c, "Vehicle")

	rp, err := ResolveProperty(c, "vehicleMake", s, UsageFilter)
	require.NoError(t, err)
	assert.Equal(t, "make", rp.Local("car"))
	assert.Equal(t, "brand", rp.Local("truck"))

	// Local names are not part of the interface API.
	_, err = ResolveProperty(c, "make", s, UsageFilter)
	assert.Equal(t, qerr.CodePropertyNotFound, qerr.CodeOf(err))
}

func TestResolvePropertyObjectScopeWithView(t *testing.T) {
	c := fixtureCatalog(t)
	cars, _ := ObjectTypeScope(c, "car")
	vehicles, _ := InterfaceScope(c, "Vehicle")
	s := Intersect(cars, vehicles)

	for _, id := range []string{"make", "vehicleMake"} {
		rp, err := ResolveProperty(c, id, s, UsageFilter)
		require.NoError(t, err, id)
		assert.Equal(t, "make", rp.Local("car"))
	}
}

func TestResolvePropertyUnionRequiresEveryMember(t *testing.T) {
	c := fixtureCatalog(t)
	vehicles, _ := InterfaceScope(c, "Vehicle")
	bikes, _ := ObjectTypeScope(c, "bicycle")

	_, err := ResolveProperty(c, "vehicleMake", Union(vehicles, bikes), UsageFilter)
	assert.Equal(t, qerr.CodePropertyNotFound, qerr.CodeOf(err))

	_, err = ResolveProperty(c, "vin", UnionScope([]string{"car", "truck"}), UsageSort)
	assert.NoError(t, err)
}

func TestResolveDerivedProperty(t *testing.T) {
	c := fixtureCatalog(t)
	s, _ := ObjectTypeScope(c, "employee")
	s = s.WithDerived(DerivedField{ID: "carCount", Type: PropertyType{Base: TypeLong}})

	rp, err := ResolveProperty(c, "carCount", s, UsageSort)
	require.NoError(t, err)
	assert.True(t, rp.Derived)
	assert.Equal(t, "carCount", rp.Local("employee"))

	_, err = ResolveProperty(c, "carCount", UnionScope(nil).WithDerived(DerivedField{ID: "x"}), UsageFilter)
	assert.Equal(t, qerr.CodePropertyNotFound, qerr.CodeOf(err))
}
