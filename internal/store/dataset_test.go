package store

import (
	"strings"
	"testing"

	"github.com/roach88/osq/internal/ir"
	"github.com/roach88/osq/internal/ontology"
)

const datasetOntology = `
objectTypes: {
	employee: {
		primaryKey: "id"
		properties: {
			id:        {type: "string"}
			age:       {type: "integer"}
			startDate: {type: "date"}
			tags:      {type: "string", array: true}
		}
	}
	office: {
		primaryKey: "id"
		properties: id: {type: "string"}
	}
}
linkTypes: officeEmployees: {source: "office", target: "employee", cardinality: "ONE_TO_MANY"}
`

func datasetCatalog(t *testing.T) *ontology.Catalog {
	t.Helper()
	c, err := ontology.CompileString(datasetOntology, "dataset.cue")
	if err != nil {
		t.Fatalf("CompileString() failed: %v", err)
	}
	return c
}

func TestParseDataset_Batch(t *testing.T) {
	d, err := ParseDataset([]byte(`
objects:
  - type: employee
    properties: {id: e1, age: 36, startDate: 2020-01-15, tags: [math], shoeSize: 9}
  - type: office
    primaryKey: o1
    properties: {}
links:
  - link: officeEmployees
    source: {type: office, primaryKey: o1}
    target: {type: employee, primaryKey: e1}
`))
	if err != nil {
		t.Fatalf("ParseDataset() failed: %v", err)
	}

	b, err := d.Batch(datasetCatalog(t))
	if err != nil {
		t.Fatalf("Batch() failed: %v", err)
	}
	if len(b.PutObjects) != 2 || len(b.PutLinks) != 1 {
		t.Fatalf("got %d objects and %d links, want 2 and 1", len(b.PutObjects), len(b.PutLinks))
	}

	e1 := b.PutObjects[0]
	if e1.Key != key("employee", "e1") {
		t.Errorf("key = %v, want employee/e1", e1.Key)
	}
	if _, ok := e1.Properties["shoeSize"]; ok {
		t.Error("undeclared property was kept")
	}
	if got := e1.Properties["age"]; got != ir.Int(36) {
		t.Errorf("age = %#v, want Int(36)", got)
	}
	if _, ok := e1.Properties["startDate"].(ir.Timestamp); !ok {
		t.Errorf("startDate = %#v, want a timestamp", e1.Properties["startDate"])
	}

	o1 := b.PutObjects[1]
	if got := o1.Properties["id"]; got != ir.String("o1") {
		t.Errorf("primary key property = %#v, want String(o1)", got)
	}
}

func TestParseDataset_JSON(t *testing.T) {
	d, err := ParseDataset([]byte(`{"objects": [{"type": "office", "properties": {"id": "o9"}}]}`))
	if err != nil {
		t.Fatalf("ParseDataset() failed: %v", err)
	}
	b, err := d.Batch(datasetCatalog(t))
	if err != nil {
		t.Fatalf("Batch() failed: %v", err)
	}
	if len(b.PutObjects) != 1 || b.PutObjects[0].Key != key("office", "o9") {
		t.Errorf("got %+v, want office/o9", b.PutObjects)
	}
}

func TestParseDataset_RejectsUnknownFields(t *testing.T) {
	if _, err := ParseDataset([]byte("object: []\n")); err == nil {
		t.Error("expected error for unknown field")
	}
}

func TestDataset_BatchCollectsErrors(t *testing.T) {
	d := &Dataset{
		Objects: []DatasetObject{
			{Type: "spaceship", Properties: map[string]any{"id": "s1"}},
			{Type: "employee", Properties: map[string]any{"age": 30}},
			{Type: "employee", Properties: map[string]any{"id": "e2", "age": "old"}},
		},
		Links: []DatasetLink{{
			Link:   "officeEmployees",
			Source: DatasetRef{Type: "employee", PrimaryKey: "e1"},
			Target: DatasetRef{Type: "office", PrimaryKey: "o1"},
		}},
	}

	_, err := d.Batch(datasetCatalog(t))
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"objects[0]", "objects[1]", "objects[2]", "links[0]"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}
