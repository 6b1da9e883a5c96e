package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

// ParseJSON decodes JSON into a Value without type information.
// Integral numbers become Int, other numbers Double. Objects shaped like
// {"lat", "lon"} become GeoPoint and GeoJSON polygons become GeoShape.
func ParseJSON(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return FromAny(raw)
}

// FromAny converts a decoded Go value (from encoding/json or yaml.v3) to a Value.
func FromAny(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return val, nil
	case bool:
		return Bool(val), nil
	case string:
		return String(val), nil
	case json.Number:
		return numberValue(val)
	case int:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case int32:
		return Int(val), nil
	case uint64:
		if val > math.MaxInt64 {
			return Double(float64(val)), nil
		}
		return Int(val), nil
	case float32:
		return Double(float64(val)), nil
	case float64:
		return Double(val), nil
	case time.Time:
		return NewTimestamp(val), nil
	case []any:
		arr := make(Array, len(val))
		for i, elem := range val {
			e, err := FromAny(elem)
			if err != nil {
				return nil, fmt.Errorf("array[%d]: %w", i, err)
			}
			arr[i] = e
		}
		return arr, nil
	case map[string]any:
		if p, ok := asGeoPoint(val); ok {
			return p, nil
		}
		if s, ok, err := asGeoShape(val); ok || err != nil {
			return s, err
		}
		obj := make(Object, len(val))
		for k, elem := range val {
			e, err := FromAny(elem)
			if err != nil {
				return nil, fmt.Errorf("object[%q]: %w", k, err)
			}
			obj[k] = e
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

func numberValue(n json.Number) (Value, error) {
	s := string(n)
	if !strings.ContainsAny(s, ".eE") {
		if i, err := n.Int64(); err == nil {
			return Int(i), nil
		}
	}
	f, err := n.Float64()
	if err != nil {
		return nil, fmt.Errorf("invalid number %q: %w", s, err)
	}
	return Double(f), nil
}

func asGeoPoint(m map[string]any) (GeoPoint, bool) {
	if len(m) != 2 {
		return GeoPoint{}, false
	}
	lat, ok1 := toFloat(m["lat"])
	lon, ok2 := toFloat(m["lon"])
	if !ok1 || !ok2 {
		return GeoPoint{}, false
	}
	return GeoPoint{Lat: lat, Lon: lon}, true
}

func asGeoShape(m map[string]any) (GeoShape, bool, error) {
	if t, _ := m["type"].(string); t != "Polygon" {
		return GeoShape{}, false, nil
	}
	rings, ok := m["coordinates"].([]any)
	if !ok {
		return GeoShape{}, true, fmt.Errorf("polygon coordinates must be an array")
	}
	shape := GeoShape{Rings: make([][]GeoPoint, 0, len(rings))}
	for i, r := range rings {
		pts, ok := r.([]any)
		if !ok {
			return GeoShape{}, true, fmt.Errorf("polygon ring %d must be an array", i)
		}
		ring := make([]GeoPoint, 0, len(pts))
		for j, p := range pts {
			pair, ok := p.([]any)
			if !ok || len(pair) != 2 {
				return GeoShape{}, true, fmt.Errorf("polygon ring %d point %d must be [lon, lat]", i, j)
			}
			lon, ok1 := toFloat(pair[0])
			lat, ok2 := toFloat(pair[1])
			if !ok1 || !ok2 {
				return GeoShape{}, true, fmt.Errorf("polygon ring %d point %d is not numeric", i, j)
			}
			ring = append(ring, GeoPoint{Lat: lat, Lon: lon})
		}
		shape.Rings = append(shape.Rings, ring)
	}
	return shape, true, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// Coerce converts v to the requested kind, following the ontology's storage
// rules: numbers widen to Double, strings parse into timestamps, integral
// doubles narrow to Int. Arrays are coerced element-wise. Null stays Null.
func Coerce(v Value, kind Kind) (Value, error) {
	if IsNull(v) {
		if arr, ok := v.(Array); ok {
			return arr, nil
		}
		return Null{}, nil
	}
	if arr, ok := v.(Array); ok && kind != KindArray {
		out := make(Array, len(arr))
		for i, e := range arr {
			c, err := Coerce(e, kind)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = c
		}
		return out, nil
	}
	switch kind {
	case KindString:
		if s, ok := v.(String); ok {
			return s, nil
		}
	case KindInt:
		switch n := v.(type) {
		case Int:
			return n, nil
		case Double:
			if float64(n) == math.Trunc(float64(n)) {
				return Int(int64(n)), nil
			}
		}
	case KindDouble:
		if f, ok := Float64(v); ok {
			return Double(f), nil
		}
	case KindBool:
		if b, ok := v.(Bool); ok {
			return b, nil
		}
	case KindTimestamp:
		switch t := v.(type) {
		case Timestamp:
			return t, nil
		case String:
			return ParseTimestamp(string(t))
		case Int:
			return NewTimestamp(time.UnixMilli(int64(t))), nil
		}
	case KindGeoPoint:
		if p, ok := v.(GeoPoint); ok {
			return p, nil
		}
	case KindGeoShape:
		switch s := v.(type) {
		case GeoShape:
			return s, nil
		case GeoPoint:
			return GeoShape{Rings: [][]GeoPoint{{s}}}, nil
		}
	case KindArray, KindObject:
		return v, nil
	}
	return nil, fmt.Errorf("cannot use %s value as %s", KindOf(v), kind)
}

// ParseTimestamp accepts RFC 3339 timestamps and ISO dates (YYYY-MM-DD).
func ParseTimestamp(s string) (Timestamp, error) {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			return NewTimestamp(t), nil
		}
	}
	return Timestamp{}, fmt.Errorf("invalid timestamp %q", s)
}
