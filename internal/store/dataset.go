package store

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/osq/internal/ir"
	"github.com/roach88/osq/internal/ontology"
	"github.com/roach88/osq/internal/plan"
)

// Dataset is an importable document of objects and links. YAML and JSON
// documents are both accepted.
//
//	objects:
//	  - type: employee
//	    properties: {id: e1, name: Ada Lovelace, startDate: 2020-01-15}
//	links:
//	  - link: officeEmployees
//	    source: {type: office, primaryKey: o1}
//	    target: {type: employee, primaryKey: e1}
type Dataset struct {
	Objects []DatasetObject `yaml:"objects"`
	Links   []DatasetLink   `yaml:"links"`
}

// DatasetObject is one object of a Dataset. PrimaryKey defaults to the
// value of the type's primary key property.
type DatasetObject struct {
	Type       string         `yaml:"type"`
	PrimaryKey string         `yaml:"primaryKey,omitempty"`
	Properties map[string]any `yaml:"properties"`
}

// DatasetRef names an object by type and primary key.
type DatasetRef struct {
	Type       string `yaml:"type"`
	PrimaryKey string `yaml:"primaryKey"`
}

// DatasetLink is one edge of a Dataset.
type DatasetLink struct {
	Link   string     `yaml:"link"`
	Source DatasetRef `yaml:"source"`
	Target DatasetRef `yaml:"target"`
}

// LoadDataset reads and parses the dataset file at path.
func LoadDataset(path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	return ParseDataset(data)
}

// ParseDataset parses a dataset document. Unknown fields are rejected.
func ParseDataset(data []byte) (*Dataset, error) {
	var d Dataset
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&d); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse dataset: %w", err)
	}
	return &d, nil
}

// Batch validates d against catalog and converts it into a write batch.
// Property values are coerced to their declared types and undeclared
// properties are dropped. Every problem found is reported.
func (d *Dataset) Batch(catalog ontology.MetadataProvider) (Batch, error) {
	var (
		b    Batch
		errs []error
	)
	for i, o := range d.Objects {
		rec, err := objectRecord(catalog, o)
		if err != nil {
			errs = append(errs, fmt.Errorf("objects[%d]: %w", i, err))
			continue
		}
		b.PutObjects = append(b.PutObjects, rec)
	}
	for i, l := range d.Links {
		rec, err := linkRecord(catalog, l)
		if err != nil {
			errs = append(errs, fmt.Errorf("links[%d]: %w", i, err))
			continue
		}
		b.PutLinks = append(b.PutLinks, rec)
	}
	if len(errs) > 0 {
		return Batch{}, errors.Join(errs...)
	}
	return b, nil
}

func objectRecord(catalog ontology.MetadataProvider, o DatasetObject) (ObjectRecord, error) {
	ot, err := ontology.RequireObjectType(catalog, o.Type)
	if err != nil {
		return ObjectRecord{}, err
	}
	raw, err := ir.FromAny(map[string]any(o.Properties))
	if err != nil {
		return ObjectRecord{}, err
	}
	obj, ok := raw.(ir.Object)
	if !ok {
		obj = ir.Object{}
	}
	props, err := ot.Coerce(obj)
	if err != nil {
		return ObjectRecord{}, err
	}

	pk := o.PrimaryKey
	if pk == "" {
		s, ok := props.Get(ot.PrimaryKey).(ir.String)
		if !ok {
			return ObjectRecord{}, fmt.Errorf("%s object has no string primary key %q", o.Type, ot.PrimaryKey)
		}
		pk = string(s)
	}
	if _, ok := props[ot.PrimaryKey]; !ok {
		props[ot.PrimaryKey] = ir.String(pk)
	}
	return ObjectRecord{Key: plan.Key{ObjectType: o.Type, PrimaryKey: pk}, Properties: props}, nil
}

func linkRecord(catalog ontology.MetadataProvider, l DatasetLink) (LinkRecord, error) {
	lt, err := ontology.RequireLinkType(catalog, l.Link)
	if err != nil {
		return LinkRecord{}, err
	}
	if l.Source.Type != lt.Source || l.Target.Type != lt.Target {
		return LinkRecord{}, fmt.Errorf("link %s relates %s to %s, got %s to %s",
			l.Link, lt.Source, lt.Target, l.Source.Type, l.Target.Type)
	}
	if l.Source.PrimaryKey == "" || l.Target.PrimaryKey == "" {
		return LinkRecord{}, fmt.Errorf("link %s: both ends need a primary key", l.Link)
	}
	return LinkRecord{
		Link:   l.Link,
		Source: plan.Key{ObjectType: l.Source.Type, PrimaryKey: l.Source.PrimaryKey},
		Target: plan.Key{ObjectType: l.Target.Type, PrimaryKey: l.Target.PrimaryKey},
	}, nil
}
