package filter

import (
	"math"

	"github.com/roach88/osq/internal/ir"
	"github.com/roach88/osq/internal/objectset"
)

// earthRadius is the mean Earth radius in metres.
const earthRadius = 6371008.8

// Haversine is the great-circle distance between a and b in metres.
func Haversine(a, b ir.GeoPoint) float64 {
	lat1, lat2 := radians(a.Lat), radians(b.Lat)
	dLat := lat2 - lat1
	dLon := radians(b.Lon - a.Lon)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadius * math.Asin(math.Min(1, math.Sqrt(h)))
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }

// inBox reports whether p lies in the box. A box whose left edge is east of
// its right edge crosses the antimeridian.
func inBox(p, topLeft, bottomRight ir.GeoPoint) bool {
	if p.Lat > topLeft.Lat || p.Lat < bottomRight.Lat {
		return false
	}
	if topLeft.Lon <= bottomRight.Lon {
		return p.Lon >= topLeft.Lon && p.Lon <= bottomRight.Lon
	}
	return p.Lon >= topLeft.Lon || p.Lon <= bottomRight.Lon
}

// inRing is the even-odd rule. Points on an edge count as inside.
func inRing(p ir.GeoPoint, ring []ir.GeoPoint) bool {
	n := len(ring)
	if n < 3 {
		return false
	}
	inside := false
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		a, b := ring[i], ring[j]
		if onSegment(p, a, b) {
			return true
		}
		if (a.Lat > p.Lat) != (b.Lat > p.Lat) {
			lon := (b.Lon-a.Lon)*(p.Lat-a.Lat)/(b.Lat-a.Lat) + a.Lon
			if p.Lon < lon {
				inside = !inside
			}
		}
	}
	return inside
}

// inShape reports whether p is inside the outer ring and outside every
// hole.
func inShape(p ir.GeoPoint, s ir.GeoShape) bool {
	if len(s.Rings) == 0 || !inRing(p, s.Rings[0]) {
		return false
	}
	for _, hole := range s.Rings[1:] {
		if inRing(p, hole) && !onRing(p, hole) {
			return false
		}
	}
	return true
}

func onRing(p ir.GeoPoint, ring []ir.GeoPoint) bool {
	for i := range ring {
		if onSegment(p, ring[i], ring[(i+1)%len(ring)]) {
			return true
		}
	}
	return false
}

func cross(o, a, b ir.GeoPoint) float64 {
	return (a.Lon-o.Lon)*(b.Lat-o.Lat) - (a.Lat-o.Lat)*(b.Lon-o.Lon)
}

func onSegment(p, a, b ir.GeoPoint) bool {
	if math.Abs(cross(a, b, p)) > 1e-12 {
		return false
	}
	return p.Lon >= math.Min(a.Lon, b.Lon) && p.Lon <= math.Max(a.Lon, b.Lon) &&
		p.Lat >= math.Min(a.Lat, b.Lat) && p.Lat <= math.Max(a.Lat, b.Lat)
}

// segmentsCross reports a proper crossing of ab and cd, excluding touching
// endpoints.
func segmentsCross(a, b, c, d ir.GeoPoint) bool {
	d1, d2 := cross(c, d, a), cross(c, d, b)
	d3, d4 := cross(a, b, c), cross(a, b, d)
	return ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) && ((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0))
}

func edgesCross(r1, r2 []ir.GeoPoint) bool {
	for i := range r1 {
		a, b := r1[i], r1[(i+1)%len(r1)]
		for j := range r2 {
			if segmentsCross(a, b, r2[j], r2[(j+1)%len(r2)]) {
				return true
			}
		}
	}
	return false
}

// geometry is a stored geo value: a point or a polygon.
type geometry struct {
	points []ir.GeoPoint
	shape  *ir.GeoShape
}

func geometryOf(v ir.Value) (geometry, bool) {
	switch g := v.(type) {
	case ir.GeoPoint:
		return geometry{points: []ir.GeoPoint{g}}, true
	case ir.GeoShape:
		if len(g.Rings) == 0 || len(g.Rings[0]) == 0 {
			return geometry{}, false
		}
		if len(g.Rings[0]) < 3 {
			return geometry{points: g.Rings[0]}, true
		}
		return geometry{points: g.Rings[0], shape: &g}, true
	default:
		return geometry{}, false
	}
}

func (g geometry) intersects(q ir.GeoShape) bool {
	for _, p := range g.points {
		if inShape(p, q) {
			return true
		}
	}
	if g.shape == nil {
		return false
	}
	for _, p := range q.Rings[0] {
		if inShape(p, *g.shape) {
			return true
		}
	}
	return edgesCross(g.points, q.Rings[0])
}

func (g geometry) within(q ir.GeoShape) bool {
	for _, p := range g.points {
		if !inShape(p, q) {
			return false
		}
	}
	if g.shape == nil {
		return true
	}
	for _, hole := range q.Rings[1:] {
		if edgesCross(g.points, hole) {
			return false
		}
	}
	return !edgesCross(g.points, q.Rings[0])
}

func (g geometry) relate(q ir.GeoShape, rel objectset.ShapeRelation) bool {
	switch rel {
	case objectset.RelationWithin:
		return g.within(q)
	case objectset.RelationDisjoint:
		return !g.intersects(q)
	default:
		return g.intersects(q)
	}
}

// boxShapes is the box as a polygon, split at the antimeridian when it
// crosses it.
func boxShapes(topLeft, bottomRight ir.GeoPoint) []ir.GeoShape {
	rect := func(west, east float64) ir.GeoShape {
		return ir.GeoShape{Rings: [][]ir.GeoPoint{{
			{Lat: topLeft.Lat, Lon: west},
			{Lat: topLeft.Lat, Lon: east},
			{Lat: bottomRight.Lat, Lon: east},
			{Lat: bottomRight.Lat, Lon: west},
		}}}
	}
	if topLeft.Lon <= bottomRight.Lon {
		return []ir.GeoShape{rect(topLeft.Lon, bottomRight.Lon)}
	}
	return []ir.GeoShape{rect(topLeft.Lon, 180), rect(-180, bottomRight.Lon)}
}
