package ontology

import (
	"fmt"
	"sort"
	"strings"
)

// Ontology validation error codes (E200-E299)
const (
	ErrPrimaryKeyMissing        = "E201" // primary key is not a declared property
	ErrUnknownBaseType          = "E202" // property type is not a known base type
	ErrVectorDimension          = "E203" // vector property needs a positive dimension
	ErrUnknownImplemented       = "E204" // implements an unknown interface
	ErrImplementationMissing    = "E205" // mapping targets a missing local property
	ErrImplementationType       = "E206" // local property type differs from the shared property
	ErrUnknownSharedProperty    = "E207" // interface lists an unknown shared property
	ErrUnknownExtends           = "E208" // interface extends an unknown interface
	ErrExtendsCycle             = "E209" // interface extends chain is cyclic
	ErrUnknownLinkEndpoint      = "E210" // link endpoint is not an object type
	ErrSoftLinkProperty         = "E211" // soft link property missing on its endpoint
	ErrInterfaceLinkEndpoint    = "E212" // interface link endpoint unknown
	ErrImplementationIncomplete = "E213" // shared property of an implemented interface is not mapped
	ErrImplementationLink       = "E214" // interface link bound to an unknown link type
	ErrInvalidCardinality       = "E215" // link cardinality is not recognised
)

// ValidationError represents an ontology validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks a catalog for internal consistency.
// Returns all errors found (does not fail-fast), in a stable order.
func Validate(c *Catalog) []ValidationError {
	var errs []ValidationError
	add := func(field, code, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Code: code, Message: fmt.Sprintf(format, args...)})
	}

	for _, name := range c.ObjectTypeNames() {
		ot := c.objectTypes[name]
		field := "objectTypes." + name
		if _, ok := ot.Properties[ot.PrimaryKey]; !ok {
			add(field+".primaryKey", ErrPrimaryKeyMissing, "primary key %q is not a declared property", ot.PrimaryKey)
		}
		for _, prop := range ot.PropertyNames() {
			validatePropertyType(field+".properties."+prop, ot.Properties[prop], add)
		}
		for _, iface := range sortedKeys(ot.Implements) {
			implField := field + ".implements." + iface
			if _, ok := c.interfaces[iface]; !ok {
				add(implField, ErrUnknownImplemented, "unknown interface %q", iface)
				continue
			}
			impl := ot.Implements[iface]
			wanted := InterfaceProperties(c, iface)
			for _, shared := range sortedKeys(wanted) {
				local, ok := impl.Properties[shared]
				if !ok {
					add(implField+".properties", ErrImplementationIncomplete,
						"shared property %q of interface %q is not mapped", shared, iface)
					continue
				}
				typ, ok := ot.Properties[local]
				if !ok {
					add(implField+".properties."+shared, ErrImplementationMissing,
						"local property %q does not exist", local)
					continue
				}
				if !typ.Compatible(wanted[shared]) {
					add(implField+".properties."+shared, ErrImplementationType,
						"local property %q is %s, shared property %q is %s", local, typ.Base, shared, wanted[shared].Base)
				}
			}
			for _, ilink := range sortedKeys(impl.Links) {
				if _, ok := c.links[impl.Links[ilink]]; !ok {
					add(implField+".links."+ilink, ErrImplementationLink, "unknown link type %q", impl.Links[ilink])
				}
			}
		}
	}

	for _, name := range c.InterfaceNames() {
		it := c.interfaces[name]
		field := "interfaces." + name
		for _, sp := range it.Properties {
			if _, ok := c.shared[sp]; !ok {
				add(field+".properties", ErrUnknownSharedProperty, "unknown shared property %q", sp)
			}
		}
		for _, parent := range it.Extends {
			if _, ok := c.interfaces[parent]; !ok {
				add(field+".extends", ErrUnknownExtends, "unknown interface %q", parent)
			}
		}
	}
	for _, cycle := range extendsCycles(c) {
		add("interfaces."+cycle[0]+".extends", ErrExtendsCycle, "extends cycle: %s", strings.Join(cycle, " -> "))
	}

	for _, name := range sortedKeys(c.shared) {
		validatePropertyType("sharedProperties."+name, c.shared[name].Type, add)
	}

	for _, name := range sortedKeys(c.links) {
		l := c.links[name]
		field := "linkTypes." + name
		for _, end := range []string{l.Source, l.Target} {
			if _, ok := c.objectTypes[end]; !ok {
				add(field, ErrUnknownLinkEndpoint, "unknown object type %q", end)
			}
		}
		switch l.Cardinality {
		case OneToOne, OneToMany, ManyToMany:
		default:
			add(field+".cardinality", ErrInvalidCardinality, "unknown cardinality %q", l.Cardinality)
		}
	}

	for _, name := range sortedKeys(c.softLinks) {
		l := c.softLinks[name]
		field := "softLinkTypes." + name
		for _, end := range [][2]string{{l.Source, l.SourceProperty}, {l.Target, l.TargetProperty}} {
			ot, ok := c.objectTypes[end[0]]
			if !ok {
				add(field, ErrUnknownLinkEndpoint, "unknown object type %q", end[0])
				continue
			}
			if _, ok := ot.Properties[end[1]]; !ok {
				add(field, ErrSoftLinkProperty, "object type %q has no property %q", end[0], end[1])
			}
		}
	}

	for _, name := range sortedKeys(c.interfaceLinks) {
		l := c.interfaceLinks[name]
		field := "interfaceLinkTypes." + name
		if _, ok := c.interfaces[l.Interface]; !ok {
			add(field, ErrInterfaceLinkEndpoint, "unknown interface %q", l.Interface)
		}
		switch {
		case l.TargetInterface != "":
			if _, ok := c.interfaces[l.TargetInterface]; !ok {
				add(field, ErrInterfaceLinkEndpoint, "unknown target interface %q", l.TargetInterface)
			}
		case l.TargetObjectType != "":
			if _, ok := c.objectTypes[l.TargetObjectType]; !ok {
				add(field, ErrInterfaceLinkEndpoint, "unknown target object type %q", l.TargetObjectType)
			}
		default:
			add(field, ErrInterfaceLinkEndpoint, "interface link needs a target interface or object type")
		}
	}

	return errs
}

func validatePropertyType(field string, t PropertyType, add func(field, code, format string, args ...any)) {
	if !t.Base.Valid() {
		add(field, ErrUnknownBaseType, "unknown property type %q", t.Base)
	}
	if t.Base == TypeVector && t.VectorDimension <= 0 {
		add(field, ErrVectorDimension, "vector property needs a positive dimension")
	}
}

// extendsCycles returns each distinct cycle in the interface extends graph,
// rotated to start at its lexically smallest interface.
func extendsCycles(c *Catalog) [][]string {
	const (
		white = iota
		gray
		black
	)
	color := make(map[string]int)
	seen := make(map[string]bool)
	var cycles [][]string
	var stack []string

	var visit func(name string)
	visit = func(name string) {
		color[name] = gray
		stack = append(stack, name)
		if it, ok := c.interfaces[name]; ok {
			for _, parent := range it.Extends {
				if _, ok := c.interfaces[parent]; !ok {
					continue
				}
				switch color[parent] {
				case white:
					visit(parent)
				case gray:
					start := len(stack) - 1
					for stack[start] != parent {
						start--
					}
					cycle := rotate(stack[start:])
					key := strings.Join(cycle, ",")
					if !seen[key] {
						seen[key] = true
						cycles = append(cycles, append(cycle, cycle[0]))
					}
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[name] = black
	}

	for _, name := range c.InterfaceNames() {
		if color[name] == white {
			visit(name)
		}
	}
	sort.Slice(cycles, func(i, j int) bool { return cycles[i][0] < cycles[j][0] })
	return cycles
}

func rotate(path []string) []string {
	lo := 0
	for i, p := range path {
		if p < path[lo] {
			lo = i
		}
	}
	out := make([]string, 0, len(path))
	out = append(out, path[lo:]...)
	return append(out, path[:lo]...)
}
