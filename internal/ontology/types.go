package ontology

import (
	"fmt"
	"sort"

	"github.com/roach88/osq/internal/ir"
)

// BaseType is the storage type of a property.
type BaseType string

const (
	TypeString    BaseType = "string"
	TypeInteger   BaseType = "integer"
	TypeLong      BaseType = "long"
	TypeDouble    BaseType = "double"
	TypeBoolean   BaseType = "boolean"
	TypeDate      BaseType = "date"
	TypeTimestamp BaseType = "timestamp"
	TypeGeoPoint  BaseType = "geopoint"
	TypeGeoShape  BaseType = "geoshape"
	TypeVector    BaseType = "vector"
)

// Valid reports whether b is a known base type.
func (b BaseType) Valid() bool {
	switch b {
	case TypeString, TypeInteger, TypeLong, TypeDouble, TypeBoolean,
		TypeDate, TypeTimestamp, TypeGeoPoint, TypeGeoShape, TypeVector:
		return true
	}
	return false
}

// PropertyType describes how a property is stored and indexed.
type PropertyType struct {
	Base BaseType `json:"type"`

	// Array marks multi-valued properties.
	Array bool `json:"array,omitempty"`

	// Analyzed strings are tokenized for phrase and prefix matching.
	Analyzed bool `json:"analyzed,omitempty"`

	VectorDimension  int    `json:"dimension,omitempty"`
	VectorSimilarity string `json:"similarity,omitempty"`
}

// Kind returns the value kind of a single element of the property.
func (p PropertyType) Kind() ir.Kind {
	switch p.Base {
	case TypeString:
		return ir.KindString
	case TypeInteger, TypeLong:
		return ir.KindInt
	case TypeDouble:
		return ir.KindDouble
	case TypeBoolean:
		return ir.KindBool
	case TypeDate, TypeTimestamp:
		return ir.KindTimestamp
	case TypeGeoPoint:
		return ir.KindGeoPoint
	case TypeGeoShape:
		return ir.KindGeoShape
	case TypeVector:
		return ir.KindArray
	default:
		return ir.KindNull
	}
}

// IsNumeric reports whether the property holds numbers.
func (p PropertyType) IsNumeric() bool {
	return p.Base == TypeInteger || p.Base == TypeLong || p.Base == TypeDouble
}

// IsDate reports whether the property holds dates or timestamps.
func (p PropertyType) IsDate() bool {
	return p.Base == TypeDate || p.Base == TypeTimestamp
}

// IsGeo reports whether the property holds geopoints or geoshapes.
func (p PropertyType) IsGeo() bool {
	return p.Base == TypeGeoPoint || p.Base == TypeGeoShape
}

// Sortable reports whether values of the property have a single total order
// usable as a sort key.
func (p PropertyType) Sortable() bool {
	if p.Array || p.Analyzed || p.IsGeo() || p.Base == TypeVector {
		return false
	}
	return true
}

// Compatible reports whether two property types store the same kind of
// value, so a single predicate or bucket rule can apply to both.
func (p PropertyType) Compatible(o PropertyType) bool {
	return p.Kind() == o.Kind() && p.Array == o.Array
}

// Cardinality describes a link type. ONE_TO_MANY means one source object
// links to many target objects.
type Cardinality string

const (
	OneToOne   Cardinality = "ONE_TO_ONE"
	OneToMany  Cardinality = "ONE_TO_MANY"
	ManyToMany Cardinality = "MANY_TO_MANY"
)

// ObjectType is a concrete type of stored object.
type ObjectType struct {
	APIName    string                             `json:"-"`
	PrimaryKey string                             `json:"primaryKey"`
	Properties map[string]PropertyType            `json:"properties"`
	Implements map[string]InterfaceImplementation `json:"implements,omitempty"`
}

// PropertyNames returns the local property names in sorted order.
func (o *ObjectType) PropertyNames() []string {
	return sortedKeys(o.Properties)
}

// Coerce converts stored property values to their declared types.
// Undeclared properties are dropped and missing ones stay missing.
// Vector elements become doubles.
func (o *ObjectType) Coerce(props ir.Object) (ir.Object, error) {
	out := make(ir.Object, len(o.Properties))
	for name, typ := range o.Properties {
		v, ok := props[name]
		if !ok {
			continue
		}
		kind := typ.Kind()
		if typ.Base == TypeVector {
			kind = ir.KindDouble
		}
		c, err := ir.Coerce(v, kind)
		if err != nil {
			return nil, fmt.Errorf("property %q of %s: %w", name, o.APIName, err)
		}
		out[name] = c
	}
	return out, nil
}

// InterfaceImplementation maps an interface's shared properties and links
// onto an object type's local properties and link types.
type InterfaceImplementation struct {
	Properties map[string]string `json:"properties,omitempty"`
	Links      map[string]string `json:"links,omitempty"`
}

// InterfaceType is an abstract type that object types implement.
type InterfaceType struct {
	APIName    string   `json:"-"`
	Extends    []string `json:"extends,omitempty"`
	Properties []string `json:"properties,omitempty"`
	Links      []string `json:"links,omitempty"`
}

// SharedProperty is a property declared once and used by interfaces.
type SharedProperty struct {
	APIName string       `json:"-"`
	Type    PropertyType `json:"type"`
}

// LinkType is a stored relation between two object types.
type LinkType struct {
	APIName     string      `json:"-"`
	Source      string      `json:"source"`
	Target      string      `json:"target"`
	Cardinality Cardinality `json:"cardinality"`
}

// SoftLinkType relates objects whose property values are equal, without
// stored edges.
type SoftLinkType struct {
	APIName        string `json:"-"`
	Source         string `json:"source"`
	SourceProperty string `json:"sourceProperty"`
	Target         string `json:"target"`
	TargetProperty string `json:"targetProperty"`
}

// InterfaceLinkType is a link declared on an interface. Implementing object
// types bind it to one of their concrete link types.
type InterfaceLinkType struct {
	APIName          string      `json:"-"`
	Interface        string      `json:"interface"`
	TargetInterface  string      `json:"targetInterface,omitempty"`
	TargetObjectType string      `json:"targetObjectType,omitempty"`
	Cardinality      Cardinality `json:"cardinality,omitempty"`
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
