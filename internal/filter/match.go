package filter

import (
	"strings"

	"github.com/roach88/osq/internal/ir"
	"github.com/roach88/osq/internal/objectset"
	"github.com/roach88/osq/internal/plan"
	"github.com/roach88/osq/internal/token"
)

// LinkIndex answers link presence questions during matching.
type LinkIndex interface {
	// HasLink reports whether key has at least one edge of link, with key
	// sitting on end. EITHER accepts both ends.
	HasLink(link string, end objectset.RelationSide, key plan.Key) bool
}

// Match evaluates pred against obj. links may be nil when pred contains no
// LinkPresence.
func Match(pred plan.Predicate, obj *plan.Object, links LinkIndex) bool {
	switch p := pred.(type) {
	case nil, plan.True:
		return true
	case plan.False:
		return false
	case plan.And:
		for _, sub := range p.Predicates {
			if !Match(sub, obj, links) {
				return false
			}
		}
		return true
	case plan.Or:
		for _, sub := range p.Predicates {
			if Match(sub, obj, links) {
				return true
			}
		}
		return false
	case plan.Not:
		return !Match(p.Predicate, obj, links)
	case plan.Exact:
		return anyElement(obj.Value(p.Field), func(v ir.Value) bool {
			for _, t := range p.Terms {
				if ir.Equal(v, t) {
					return true
				}
			}
			return false
		})
	case plan.Tokens:
		return matchTokens(p, stringValues(obj.Value(p.Field)))
	case plan.Phrase:
		for _, s := range stringValues(obj.Value(p.Field)) {
			if matchPhrase(p, token.Tokenize(s)) {
				return true
			}
		}
		return false
	case plan.Prefix:
		for _, s := range stringValues(obj.Value(p.Field)) {
			if strings.HasPrefix(s, p.Prefix) {
				return true
			}
		}
		return false
	case plan.Range:
		return anyElement(obj.Value(p.Field), func(v ir.Value) bool { return inRange(p, v) })
	case plan.Pattern:
		for _, s := range stringValues(obj.Value(p.Field)) {
			if !p.Tokens {
				if plan.FullMatch(p.Regex, s) {
					return true
				}
				continue
			}
			for _, tok := range token.Tokenize(s) {
				if plan.FullMatch(p.Regex, tok) {
					return true
				}
			}
		}
		return false
	case plan.GeoBox:
		return anyGeometry(obj.Value(p.Field), func(g geometry) bool {
			if g.shape == nil {
				for _, pt := range g.points {
					if inBox(pt, p.TopLeft, p.BottomRight) {
						return true
					}
				}
				return false
			}
			for _, box := range boxShapes(p.TopLeft, p.BottomRight) {
				if g.intersects(box) {
					return true
				}
			}
			return false
		})
	case plan.GeoDistance:
		return anyGeometry(obj.Value(p.Field), func(g geometry) bool {
			for _, pt := range g.points {
				if Haversine(pt, p.Center) <= p.Meters {
					return true
				}
			}
			return g.shape != nil && inShape(p.Center, *g.shape)
		})
	case plan.GeoPolygon:
		poly := ir.GeoShape{Rings: [][]ir.GeoPoint{p.Points}}
		return anyGeometry(obj.Value(p.Field), func(g geometry) bool { return g.intersects(poly) })
	case plan.GeoShape:
		v := obj.Value(p.Field)
		if p.Relation == objectset.RelationDisjoint {
			// Objects without geometry are disjoint from every shape.
			return !anyGeometry(v, func(g geometry) bool { return g.intersects(p.Shape) })
		}
		return anyGeometry(v, func(g geometry) bool { return g.relate(p.Shape, p.Relation) })
	case plan.Has:
		return !ir.IsNull(obj.Value(p.Field))
	case plan.LinkPresence:
		return links != nil && links.HasLink(p.Link, p.End, obj.Key)
	default:
		return false
	}
}

func anyElement(v ir.Value, fn func(ir.Value) bool) bool {
	for _, e := range ir.Elements(v) {
		if fn(e) {
			return true
		}
	}
	return false
}

func anyGeometry(v ir.Value, fn func(geometry) bool) bool {
	return anyElement(v, func(e ir.Value) bool {
		g, ok := geometryOf(e)
		return ok && fn(g)
	})
}

// stringValues returns the string elements of v.
func stringValues(v ir.Value) []string {
	var out []string
	for _, e := range ir.Elements(v) {
		if s, ok := e.(ir.String); ok {
			out = append(out, string(s))
		}
	}
	return out
}

func inRange(p plan.Range, v ir.Value) bool {
	if ir.KindOf(v) == ir.KindNull {
		return false
	}
	if p.Gt != nil && ir.Compare(v, p.Gt) <= 0 {
		return false
	}
	if p.Gte != nil && ir.Compare(v, p.Gte) < 0 {
		return false
	}
	if p.Lt != nil && ir.Compare(v, p.Lt) >= 0 {
		return false
	}
	if p.Lte != nil && ir.Compare(v, p.Lte) > 0 {
		return false
	}
	return true
}

func matchTokens(p plan.Tokens, values []string) bool {
	if len(p.Tokens) == 0 || len(values) == 0 {
		return false
	}
	var candidates []string
	for _, s := range values {
		candidates = append(candidates, token.Tokenize(s)...)
	}
	found := func(q string) bool {
		for _, c := range candidates {
			if token.Matches(q, c, p.Fuzzy) {
				return true
			}
		}
		return false
	}
	for _, q := range p.Tokens {
		ok := found(q)
		if p.All && !ok {
			return false
		}
		if !p.All && ok {
			return true
		}
	}
	return p.All
}

func matchPhrase(p plan.Phrase, tokens []string) bool {
	n := len(p.Tokens)
	for start := 0; start+n <= len(tokens); start++ {
		ok := true
		for i, q := range p.Tokens {
			c := tokens[start+i]
			if i == n-1 && p.PrefixLast {
				ok = strings.HasPrefix(c, q)
			} else {
				ok = token.Matches(q, c, p.Fuzzy)
			}
			if !ok {
				break
			}
		}
		if ok {
			return true
		}
	}
	return false
}
