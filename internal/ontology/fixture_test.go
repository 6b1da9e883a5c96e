package ontology

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const fixtureCUE = `
objectTypes: {
	employee: {
		primaryKey: "id"
		properties: {
			id:        {type: "string"}
			name:      {type: "string", analyzed: true}
			office:    {type: "string"}
			salary:    {type: "double"}
			tags:      {type: "string", array: true}
			location:  {type: "geopoint"}
			embedding: {type: "vector", dimension: 3, similarity: "cosine"}
		}
	}
	office: {
		primaryKey: "id"
		properties: {
			id:   {type: "string"}
			city: {type: "string"}
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
			links: {vehicleOwner: "employeeCars"}
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
	}
}
sharedProperties: {
	vehicleMake: {type: "string"}
	mileageKm:   {type: "double"}
}
linkTypes: {
	officeEmployees: {source: "office", target: "employee", cardinality: "ONE_TO_MANY"}
	employeeCars: {source: "employee", target: "car", cardinality: "ONE_TO_MANY"}
}
softLinkTypes: employeeOfficeByName: {
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

func fixtureCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := CompileString(fixtureCUE, "fixture.cue")
	require.NoError(t, err)
	return c
}
