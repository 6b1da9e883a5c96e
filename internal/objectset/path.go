package objectset

import "strconv"

// RootPath is the path of the outermost expression.
const RootPath = "$"

// Child is the path of field within a node of the given wire type, e.g.
// Child("$", "filtered", "filter") is "$.filtered.filter".
func Child(path, nodeType, field string) string {
	return path + "." + nodeType + "." + field
}

// Elem is the path of element i of the list at path.
func Elem(path string, i int) string {
	return path + "[" + strconv.Itoa(i) + "]"
}

// Field is the path of a plain field at path.
func Field(path, field string) string {
	return path + "." + field
}

// TypeName returns the wire type name of an object set node.
func TypeName(s ObjectSet) string {
	switch s.(type) {
	case Base:
		return "base"
	case InterfaceBase:
		return "interfaceBase"
	case Static:
		return "static"
	case Referenced:
		return "referenced"
	case Filtered:
		return "filtered"
	case Intersected:
		return "intersected"
	case Unioned:
		return "unioned"
	case Subtracted:
		return "subtracted"
	case SearchAround:
		return "searchAround"
	case SoftLinkSearchAround:
		return "softLinkSearchAround"
	case InterfaceLinkSearchAround:
		return "interfaceLinkSearchAround"
	case AsType:
		return "asType"
	case AsBaseObjectTypes:
		return "asBaseObjectTypes"
	case Knn:
		return "knn"
	case KnnV2:
		return "knnV2"
	case MethodInput:
		return "methodInput"
	case WithProperties:
		return "withProperties"
	default:
		return "unknown"
	}
}

// Walk calls fn for s and every object set nested in it, depth first.
// Sets nested in filters are not visited. Walk stops when fn returns false.
func Walk(s ObjectSet, fn func(ObjectSet) bool) bool {
	if s == nil || !fn(s) {
		return s == nil
	}
	for _, child := range Children(s) {
		if !Walk(child, fn) {
			return false
		}
	}
	return true
}

// Children returns the direct object set children of s.
func Children(s ObjectSet) []ObjectSet {
	switch n := s.(type) {
	case Filtered:
		return []ObjectSet{n.ObjectSet}
	case Intersected:
		return n.ObjectSets
	case Unioned:
		return n.ObjectSets
	case Subtracted:
		return n.ObjectSets
	case SearchAround:
		return []ObjectSet{n.ObjectSet}
	case SoftLinkSearchAround:
		return []ObjectSet{n.ObjectSet}
	case InterfaceLinkSearchAround:
		return []ObjectSet{n.ObjectSet}
	case AsType:
		return []ObjectSet{n.ObjectSet}
	case AsBaseObjectTypes:
		return []ObjectSet{n.ObjectSet}
	case Knn:
		return []ObjectSet{n.ObjectSet}
	case KnnV2:
		return []ObjectSet{n.ObjectSet}
	case WithProperties:
		return []ObjectSet{n.ObjectSet}
	default:
		return nil
	}
}

// FilterTypeName returns the wire type name of a filter node.
func FilterTypeName(f Filter) string {
	switch f.(type) {
	case And:
		return "and"
	case Or:
		return "or"
	case Not:
		return "not"
	case ExactMatch:
		return "exactMatch"
	case Terms:
		return "terms"
	case Range:
		return "range"
	case Phrase:
		return "phrase"
	case PrefixOnLastToken:
		return "prefixOnLastToken"
	case MultiMatch:
		return "multiMatch"
	case Wildcard:
		return "wildcard"
	case Regex:
		return "regex"
	case GeoBoundingBox:
		return "geoBoundingBox"
	case GeoDistance:
		return "geoDistance"
	case GeoPolygon:
		return "geoPolygon"
	case GeoShape:
		return "geoShape"
	case HasProperty:
		return "hasProperty"
	case LinkPresence:
		return "linkPresence"
	case UserContext:
		return "userContext"
	case ParameterizedExactMatch:
		return "parameterizedExactMatch"
	case ParameterizedTerms:
		return "parameterizedTerms"
	case ParameterizedRange:
		return "parameterizedRange"
	case ParameterizedPhrase:
		return "parameterizedPhrase"
	default:
		return "unknown"
	}
}
