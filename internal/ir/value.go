package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"time"
	"unicode/utf16"
)

// Value is a sealed interface representing a property value.
// Only the types in this file implement it.
type Value interface {
	irValue() // Sealed - only these types implement it
}

// Kind identifies the concrete type of a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindDouble
	KindString
	KindTimestamp
	KindGeoPoint
	KindGeoShape
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindDouble:
		return "double"
	case KindString:
		return "string"
	case KindTimestamp:
		return "timestamp"
	case KindGeoPoint:
		return "geopoint"
	case KindGeoShape:
		return "geoshape"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "null"
	}
}

// Null represents an absent or JSON null value.
// Using an explicit type ensures all Values satisfy the sealed interface.
type Null struct{}

func (Null) irValue() {}

// String is a string value.
type String string

func (String) irValue() {}

// Int is a 64-bit integer value.
type Int int64

func (Int) irValue() {}

// Double is a 64-bit floating point value.
type Double float64

func (Double) irValue() {}

// Bool is a boolean value.
type Bool bool

func (Bool) irValue() {}

// Timestamp is an instant in time, always held in UTC.
type Timestamp time.Time

func (Timestamp) irValue() {}

// Time returns the underlying time.Time.
func (t Timestamp) Time() time.Time { return time.Time(t) }

// GeoPoint is a WGS84 coordinate.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

func (GeoPoint) irValue() {}

// GeoShape is a polygon. Rings[0] is the outer ring, further rings are holes.
type GeoShape struct {
	Rings [][]GeoPoint
}

func (GeoShape) irValue() {}

// Array is an ordered list of values.
type Array []Value

func (Array) irValue() {}

// Object is a map of property names to values.
// Use SortedKeys() for deterministic iteration.
type Object map[string]Value

func (Object) irValue() {}

// NewTimestamp creates a Timestamp normalised to UTC.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp(t.UTC())
}

// KindOf reports the kind of v. A nil interface is KindNull.
func KindOf(v Value) Kind {
	switch v.(type) {
	case Bool:
		return KindBool
	case Int:
		return KindInt
	case Double:
		return KindDouble
	case String:
		return KindString
	case Timestamp:
		return KindTimestamp
	case GeoPoint:
		return KindGeoPoint
	case GeoShape:
		return KindGeoShape
	case Array:
		return KindArray
	case Object:
		return KindObject
	default:
		return KindNull
	}
}

// IsNull reports whether v is absent, Null, or an empty array.
func IsNull(v Value) bool {
	switch val := v.(type) {
	case nil, Null:
		return true
	case Array:
		return len(val) == 0
	default:
		return false
	}
}

// Elements flattens a value into the scalars it contributes: arrays yield
// their non-null elements, scalars yield themselves, null yields nothing.
func Elements(v Value) []Value {
	switch val := v.(type) {
	case nil, Null:
		return nil
	case Array:
		out := make([]Value, 0, len(val))
		for _, e := range val {
			if !IsNull(e) {
				out = append(out, e)
			}
		}
		return out
	default:
		return []Value{v}
	}
}

// Get returns the value of key, or Null when absent.
func (obj Object) Get(key string) Value {
	if v, ok := obj[key]; ok && v != nil {
		return v
	}
	return Null{}
}

// Clone returns a shallow copy of obj.
func (obj Object) Clone() Object {
	out := make(Object, len(obj))
	for k, v := range obj {
		out[k] = v
	}
	return out
}

// SortedKeys returns keys in RFC 8785 canonical order (UTF-16 code units).
// CRITICAL: Go's sort.Strings uses UTF-8 which produces DIFFERENT order.
func (obj Object) SortedKeys() []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysRFC8785)
	return keys
}

// compareKeysRFC8785 compares strings using UTF-16 code unit ordering
// as required by RFC 8785 (Canonical JSON).
func compareKeysRFC8785(a, b string) int {
	return slices.Compare(utf16.Encode([]rune(a)), utf16.Encode([]rune(b)))
}

// MarshalJSON implements json.Marshaler for Object with sorted keys.
// NOTE: This is NOT canonical marshaling. Use MarshalCanonical for tokens.
func (obj Object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range obj.SortedKeys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyBytes, err := json.Marshal(k)
		if err != nil {
			return nil, fmt.Errorf("marshal key %q: %w", k, err)
		}
		buf.Write(keyBytes)
		buf.WriteByte(':')
		valBytes, err := MarshalValue(obj[k])
		if err != nil {
			return nil, fmt.Errorf("marshal value for key %q: %w", k, err)
		}
		buf.Write(valBytes)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MarshalJSON implements json.Marshaler for Array.
func (arr Array) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, elem := range arr {
		if i > 0 {
			buf.WriteByte(',')
		}
		elemBytes, err := MarshalValue(elem)
		if err != nil {
			return nil, fmt.Errorf("array[%d]: %w", i, err)
		}
		buf.Write(elemBytes)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// MarshalJSON encodes a Timestamp as an RFC 3339 string.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Time(t).UTC().Format(time.RFC3339Nano))
}

// MarshalJSON encodes a GeoShape as a GeoJSON polygon ([lon, lat] pairs).
func (g GeoShape) MarshalJSON() ([]byte, error) {
	coords := make([][][2]float64, len(g.Rings))
	for i, ring := range g.Rings {
		coords[i] = make([][2]float64, len(ring))
		for j, p := range ring {
			coords[i][j] = [2]float64{p.Lon, p.Lat}
		}
	}
	return json.Marshal(map[string]any{"type": "Polygon", "coordinates": coords})
}

// MarshalValue marshals a Value to plain JSON bytes.
func MarshalValue(v Value) ([]byte, error) {
	switch val := v.(type) {
	case nil, Null:
		return []byte("null"), nil
	case String:
		return json.Marshal(string(val))
	case Int:
		return json.Marshal(int64(val))
	case Double:
		return json.Marshal(float64(val))
	case Bool:
		return json.Marshal(bool(val))
	case Timestamp:
		return val.MarshalJSON()
	case GeoPoint:
		return json.Marshal(struct {
			Lat float64 `json:"lat"`
			Lon float64 `json:"lon"`
		}{val.Lat, val.Lon})
	case GeoShape:
		return val.MarshalJSON()
	case Array:
		return val.MarshalJSON()
	case Object:
		return val.MarshalJSON()
	default:
		return nil, fmt.Errorf("unknown Value type: %T", v)
	}
}

// UnmarshalJSON implements json.Unmarshaler for Object.
// Numbers keep integer precision via json.Number.
func (obj *Object) UnmarshalJSON(data []byte) error {
	v, err := ParseJSON(data)
	if err != nil {
		return err
	}
	o, ok := v.(Object)
	if !ok {
		return fmt.Errorf("expected JSON object, got %s", KindOf(v))
	}
	*obj = o
	return nil
}
