package ir

import (
	"cmp"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// rank orders kinds for cross-kind comparison. Int and Double share a rank
// so numbers compare by magnitude regardless of representation.
func rank(k Kind) int {
	switch k {
	case KindNull:
		return 0
	case KindBool:
		return 1
	case KindInt, KindDouble:
		return 2
	case KindString:
		return 3
	case KindTimestamp:
		return 4
	case KindGeoPoint:
		return 5
	case KindGeoShape:
		return 6
	case KindArray:
		return 7
	default:
		return 8
	}
}

// Compare is a total order over values, used for sort keys and bucket keys.
// Nulls sort first; strings compare by bytes (the COLLATE BINARY order the
// store uses), so in-memory and SQL ordering agree.
func Compare(a, b Value) int {
	ka, kb := KindOf(a), KindOf(b)
	if ra, rb := rank(ka), rank(kb); ra != rb {
		return cmp.Compare(ra, rb)
	}
	switch ka {
	case KindNull:
		return 0
	case KindBool:
		return cmp.Compare(boolInt(bool(a.(Bool))), boolInt(bool(b.(Bool))))
	case KindInt, KindDouble:
		if ka == KindInt && kb == KindInt {
			return cmp.Compare(a.(Int), b.(Int))
		}
		fa, _ := Float64(a)
		fb, _ := Float64(b)
		return cmp.Compare(fa, fb)
	case KindString:
		return strings.Compare(string(a.(String)), string(b.(String)))
	case KindTimestamp:
		return a.(Timestamp).Time().Compare(b.(Timestamp).Time())
	case KindGeoPoint:
		pa, pb := a.(GeoPoint), b.(GeoPoint)
		if c := cmp.Compare(pa.Lat, pb.Lat); c != 0 {
			return c
		}
		return cmp.Compare(pa.Lon, pb.Lon)
	case KindArray:
		aa, ab := a.(Array), b.(Array)
		for i := 0; i < len(aa) && i < len(ab); i++ {
			if c := Compare(aa[i], ab[i]); c != 0 {
				return c
			}
		}
		return cmp.Compare(len(aa), len(ab))
	default:
		return strings.Compare(KeyString(a), KeyString(b))
	}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Equal reports whether two values are equal under Compare.
func Equal(a, b Value) bool {
	return Compare(a, b) == 0
}

// Float64 returns the numeric value of v. Timestamps convert to epoch
// milliseconds so date metrics (min/max/avg) share the numeric path.
func Float64(v Value) (float64, bool) {
	switch n := v.(type) {
	case Int:
		return float64(n), true
	case Double:
		return float64(n), true
	case Timestamp:
		return float64(n.Time().UnixMilli()), true
	default:
		return 0, false
	}
}

// KeyString renders v as a stable string, used for hashing, distinct-value
// sets and suggestion output.
func KeyString(v Value) string {
	switch val := v.(type) {
	case nil, Null:
		return ""
	case String:
		return string(val)
	case Int:
		return strconv.FormatInt(int64(val), 10)
	case Double:
		return strconv.FormatFloat(float64(val), 'g', -1, 64)
	case Bool:
		return strconv.FormatBool(bool(val))
	case Timestamp:
		return val.Time().UTC().Format(time.RFC3339Nano)
	case GeoPoint:
		return fmt.Sprintf("%g,%g", val.Lat, val.Lon)
	default:
		data, err := MarshalValue(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	}
}
