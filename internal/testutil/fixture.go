package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/osq/internal/ir"
	"github.com/roach88/osq/internal/objectset"
	"github.com/roach88/osq/internal/ontology"
	"github.com/roach88/osq/internal/plan"
)

// FixtureCUE is the ontology shared by package tests: employees working in
// offices and owning vehicles, with interfaces over the vehicle types.
const FixtureCUE = `
objectTypes: {
	employee: {
		primaryKey: "id"
		properties: {
			id:        {type: "string"}
			name:      {type: "string", analyzed: true}
			title:     {type: "string"}
			office:    {type: "string"}
			salary:    {type: "double"}
			age:       {type: "integer"}
			startDate: {type: "date"}
			tags:      {type: "string", array: true}
			location:  {type: "geopoint"}
			embedding: {type: "vector", dimension: 3, similarity: "cosine"}
		}
	}
	office: {
		primaryKey: "id"
		properties: {
			id:       {type: "string"}
			city:     {type: "string"}
			capacity: {type: "integer"}
			area:     {type: "geoshape"}
		}
	}
	car: {
		primaryKey: "vin"
		properties: {
			vin:     {type: "string"}
			make:    {type: "string"}
			mileage: {type: "double"}
		}
		implements: MotorVehicle: {
			properties: {vehicleMake: "make", mileageKm: "mileage"}
			links: {vehicleOwner: "carOwner"}
		}
	}
	truck: {
		primaryKey: "vin"
		properties: {
			vin:   {type: "string"}
			brand: {type: "string"}
		}
		implements: Vehicle: properties: vehicleMake: "brand"
	}
	bicycle: {
		primaryKey: "serial"
		properties: serial: {type: "string"}
	}
}
interfaces: {
	Vehicle: properties: ["vehicleMake"]
	MotorVehicle: {
		extends: ["Vehicle"]
		properties: ["mileageKm"]
		links: ["vehicleOwner"]
	}
}
sharedProperties: {
	vehicleMake: {type: "string"}
	mileageKm:   {type: "double"}
}
linkTypes: {
	officeEmployees: {source: "office", target: "employee", cardinality: "ONE_TO_MANY"}
	carOwner: {source: "employee", target: "car", cardinality: "ONE_TO_MANY"}
	mentors: {source: "employee", target: "employee", cardinality: "MANY_TO_MANY"}
}
softLinkTypes: employeeOffice: {
	source:         "employee"
	sourceProperty: "office"
	target:         "office"
	targetProperty: "id"
}
interfaceLinkTypes: vehicleOwner: {
	interface:        "MotorVehicle"
	targetObjectType: "employee"
}
`

// Catalog compiles FixtureCUE.
func Catalog(t testing.TB) *ontology.Catalog {
	t.Helper()
	c, err := ontology.CompileString(FixtureCUE, "fixture.cue")
	require.NoError(t, err)
	return c
}

// Edge is one stored link between two fixture objects.
type Edge struct {
	Link   string
	Source plan.Key
	Target plan.Key
}

func date(s string) ir.Value {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return ir.NewTimestamp(t)
}

func strs(ss ...string) ir.Value {
	out := make(ir.Array, len(ss))
	for i, s := range ss {
		out[i] = ir.String(s)
	}
	return out
}

func vec(fs ...float64) ir.Value {
	out := make(ir.Array, len(fs))
	for i, f := range fs {
		out[i] = ir.Double(f)
	}
	return out
}

func square(lat, lon, d float64) ir.Value {
	return ir.GeoShape{Rings: [][]ir.GeoPoint{{
		{Lat: lat + d, Lon: lon - d},
		{Lat: lat + d, Lon: lon + d},
		{Lat: lat - d, Lon: lon + d},
		{Lat: lat - d, Lon: lon - d},
	}}}
}

func employee(id, name, title, office string, salary ir.Value, age int, start string, tags ir.Value, lat, lon float64, embedding ir.Value) plan.Object {
	return plan.Object{
		Key: plan.Key{ObjectType: "employee", PrimaryKey: id},
		Properties: ir.Object{
			"id":        ir.String(id),
			"name":      ir.String(name),
			"title":     ir.String(title),
			"office":    ir.String(office),
			"salary":    salary,
			"age":       ir.Int(age),
			"startDate": date(start),
			"tags":      tags,
			"location":  ir.GeoPoint{Lat: lat, Lon: lon},
			"embedding": embedding,
		},
	}
}

func office(id, city string, capacity int, area ir.Value) plan.Object {
	return plan.Object{
		Key: plan.Key{ObjectType: "office", PrimaryKey: id},
		Properties: ir.Object{
			"id":       ir.String(id),
			"city":     ir.String(city),
			"capacity": ir.Int(capacity),
			"area":     area,
		},
	}
}

func car(vin, brand string, mileage float64) plan.Object {
	return plan.Object{
		Key:        plan.Key{ObjectType: "car", PrimaryKey: vin},
		Properties: ir.Object{"vin": ir.String(vin), "make": ir.String(brand), "mileage": ir.Double(mileage)},
	}
}

// Objects returns the fixture objects in default order.
func Objects() []plan.Object {
	return []plan.Object{
		{Key: plan.Key{ObjectType: "bicycle", PrimaryKey: "b1"}, Properties: ir.Object{"serial": ir.String("b1")}},
		car("c1", "Tesla", 12000),
		car("c2", "Volvo", 80000),
		car("c3", "Tesla", 30000),
		employee("e1", "Ada Lovelace", "Engineer", "o1", ir.Double(120000), 36, "2020-01-15",
			strs("math", "poet"), 51.5074, -0.1278, vec(1, 0, 0)),
		employee("e2", "Alan Turing", "Engineer", "o1", ir.Double(110000), 41, "2019-06-01",
			strs("math", "crypto"), 52.2053, 0.1218, vec(0.9, 0.1, 0)),
		employee("e3", "Grace Hopper", "Admiral", "o2", ir.Double(130000), 85, "2018-03-10",
			strs("navy", "compilers"), 38.9072, -77.0369, vec(0, 1, 0)),
		employee("e4", "Katherine Johnson", "Mathematician", "o2", ir.Null{}, 101, "2021-11-30",
			ir.Array{}, 37.0871, -76.4730, vec(0, 0.9, 0.1)),
		employee("e5", "Edsger Dijkstra", "Professor", "o3", ir.Double(95000), 72, "2017-08-20",
			strs("algorithms"), 51.4416, 5.4697, vec(0.5, 0.5, 0)),
		office("o1", "London", 200, square(51.5, -0.12, 0.1)),
		office("o2", "Washington", 150, square(38.9, -77.03, 0.1)),
		office("o3", "Eindhoven", 50, square(51.44, 5.47, 0.05)),
		office("o4", "Tokyo", 80, square(35.68, 139.76, 0.1)),
		{Key: plan.Key{ObjectType: "truck", PrimaryKey: "t1"}, Properties: ir.Object{"vin": ir.String("t1"), "brand": ir.String("Volvo")}},
	}
}

// Edges returns the stored links between fixture objects.
func Edges() []Edge {
	key := func(t, pk string) plan.Key { return plan.Key{ObjectType: t, PrimaryKey: pk} }
	edge := func(link, st, sk, tt, tk string) Edge {
		return Edge{Link: link, Source: key(st, sk), Target: key(tt, tk)}
	}
	return []Edge{
		edge("officeEmployees", "office", "o1", "employee", "e1"),
		edge("officeEmployees", "office", "o1", "employee", "e2"),
		edge("officeEmployees", "office", "o2", "employee", "e3"),
		edge("officeEmployees", "office", "o2", "employee", "e4"),
		edge("officeEmployees", "office", "o3", "employee", "e5"),
		edge("carOwner", "employee", "e1", "car", "c1"),
		edge("carOwner", "employee", "e3", "car", "c2"),
		edge("carOwner", "employee", "e3", "car", "c3"),
		edge("mentors", "employee", "e3", "employee", "e4"),
		edge("mentors", "employee", "e2", "employee", "e1"),
	}
}

// Object returns the fixture object with the given key.
func Object(objectType, primaryKey string) plan.Object {
	for _, o := range Objects() {
		if o.ObjectType == objectType && o.PrimaryKey == primaryKey {
			return o
		}
	}
	panic("testutil: no fixture object " + objectType + "/" + primaryKey)
}

// Links is an in-memory link index over Edges.
type Links []Edge

// HasLink reports whether key sits on end of some edge of link.
func (l Links) HasLink(link string, end objectset.RelationSide, key plan.Key) bool {
	for _, e := range l {
		if e.Link != link {
			continue
		}
		if (end != objectset.SideSource && e.Target == key) || (end != objectset.SideTarget && e.Source == key) {
			return true
		}
	}
	return false
}
