package ontology

import (
	"fmt"
	"slices"

	"github.com/roach88/osq/internal/qerr"
)

// MetadataProvider is the read-only view of ontology metadata that the
// evaluator and filter compiler depend on.
type MetadataProvider interface {
	ObjectType(name string) (*ObjectType, bool)
	InterfaceType(name string) (*InterfaceType, bool)
	SharedProperty(name string) (*SharedProperty, bool)
	LinkType(name string) (*LinkType, bool)
	SoftLinkType(name string) (*SoftLinkType, bool)
	InterfaceLinkType(name string) (*InterfaceLinkType, bool)

	// ObjectTypeNames returns every object type name in sorted order.
	ObjectTypeNames() []string
}

// Catalog is the in-memory MetadataProvider. It is immutable once built and
// safe for concurrent reads.
type Catalog struct {
	objectTypes    map[string]*ObjectType
	interfaces     map[string]*InterfaceType
	shared         map[string]*SharedProperty
	links          map[string]*LinkType
	softLinks      map[string]*SoftLinkType
	interfaceLinks map[string]*InterfaceLinkType
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		objectTypes:    make(map[string]*ObjectType),
		interfaces:     make(map[string]*InterfaceType),
		shared:         make(map[string]*SharedProperty),
		links:          make(map[string]*LinkType),
		softLinks:      make(map[string]*SoftLinkType),
		interfaceLinks: make(map[string]*InterfaceLinkType),
	}
}

// AddObjectType registers an object type under its APIName.
func (c *Catalog) AddObjectType(t ObjectType) *Catalog {
	if t.Properties == nil {
		t.Properties = map[string]PropertyType{}
	}
	c.objectTypes[t.APIName] = &t
	return c
}

// AddInterface registers an interface type.
func (c *Catalog) AddInterface(t InterfaceType) *Catalog {
	c.interfaces[t.APIName] = &t
	return c
}

// AddSharedProperty registers a shared property.
func (c *Catalog) AddSharedProperty(p SharedProperty) *Catalog {
	c.shared[p.APIName] = &p
	return c
}

// AddLinkType registers a link type.
func (c *Catalog) AddLinkType(l LinkType) *Catalog {
	c.links[l.APIName] = &l
	return c
}

// AddSoftLinkType registers a soft link type.
func (c *Catalog) AddSoftLinkType(l SoftLinkType) *Catalog {
	c.softLinks[l.APIName] = &l
	return c
}

// AddInterfaceLinkType registers an interface link type.
func (c *Catalog) AddInterfaceLinkType(l InterfaceLinkType) *Catalog {
	c.interfaceLinks[l.APIName] = &l
	return c
}

func (c *Catalog) ObjectType(name string) (*ObjectType, bool) {
	t, ok := c.objectTypes[name]
	return t, ok
}

func (c *Catalog) InterfaceType(name string) (*InterfaceType, bool) {
	t, ok := c.interfaces[name]
	return t, ok
}

func (c *Catalog) SharedProperty(name string) (*SharedProperty, bool) {
	p, ok := c.shared[name]
	return p, ok
}

func (c *Catalog) LinkType(name string) (*LinkType, bool) {
	l, ok := c.links[name]
	return l, ok
}

func (c *Catalog) SoftLinkType(name string) (*SoftLinkType, bool) {
	l, ok := c.softLinks[name]
	return l, ok
}

func (c *Catalog) InterfaceLinkType(name string) (*InterfaceLinkType, bool) {
	l, ok := c.interfaceLinks[name]
	return l, ok
}

func (c *Catalog) ObjectTypeNames() []string { return sortedKeys(c.objectTypes) }

// InterfaceNames returns every interface name in sorted order.
func (c *Catalog) InterfaceNames() []string { return sortedKeys(c.interfaces) }

// RequireObjectType looks up an object type or returns UNKNOWN_OBJECT_TYPE.
func RequireObjectType(p MetadataProvider, name string) (*ObjectType, error) {
	t, ok := p.ObjectType(name)
	if !ok {
		return nil, qerr.Validation(qerr.CodeUnknownObjectType, "unknown object type %q", name)
	}
	return t, nil
}

// RequireInterface looks up an interface or returns UNKNOWN_INTERFACE_TYPE.
func RequireInterface(p MetadataProvider, name string) (*InterfaceType, error) {
	t, ok := p.InterfaceType(name)
	if !ok {
		return nil, qerr.Validation(qerr.CodeUnknownInterfaceType, "unknown interface type %q", name)
	}
	return t, nil
}

// RequireLinkType looks up a link type or returns UNKNOWN_LINK_TYPE.
func RequireLinkType(p MetadataProvider, name string) (*LinkType, error) {
	l, ok := p.LinkType(name)
	if !ok {
		return nil, qerr.Validation(qerr.CodeUnknownLinkType, "unknown link type %q", name)
	}
	return l, nil
}

// Ancestors returns iface followed by every interface it extends,
// transitively, in breadth-first order without duplicates. Cycles are
// tolerated here; Validate reports them.
func Ancestors(p MetadataProvider, iface string) []string {
	seen := map[string]bool{iface: true}
	out := []string{iface}
	for i := 0; i < len(out); i++ {
		t, ok := p.InterfaceType(out[i])
		if !ok {
			continue
		}
		for _, parent := range t.Extends {
			if !seen[parent] {
				seen[parent] = true
				out = append(out, parent)
			}
		}
	}
	return out
}

// InterfaceProperties returns the shared properties an interface declares,
// including those inherited through extends.
func InterfaceProperties(p MetadataProvider, iface string) map[string]PropertyType {
	props := make(map[string]PropertyType)
	for _, name := range Ancestors(p, iface) {
		t, ok := p.InterfaceType(name)
		if !ok {
			continue
		}
		for _, sp := range t.Properties {
			if shared, ok := p.SharedProperty(sp); ok {
				props[sp] = shared.Type
			}
		}
	}
	return props
}

// View returns the interface view of objectType for iface: the map from
// each of iface's shared properties to the local property fulfilling it.
// An object type satisfies iface when it implements iface directly or
// implements an interface that extends iface.
func View(p MetadataProvider, objectType, iface string) (map[string]string, bool) {
	ot, ok := p.ObjectType(objectType)
	if !ok {
		return nil, false
	}
	wanted := InterfaceProperties(p, iface)
	for _, implemented := range sortedKeys(ot.Implements) {
		if !slices.Contains(Ancestors(p, implemented), iface) {
			continue
		}
		impl := ot.Implements[implemented]
		view := make(map[string]string, len(wanted))
		for shared := range wanted {
			if local, ok := impl.Properties[shared]; ok {
				view[shared] = local
			}
		}
		return view, true
	}
	return nil, false
}

// Implementers returns the object types satisfying iface in sorted order.
func Implementers(p MetadataProvider, iface string) []string {
	var out []string
	for _, name := range p.ObjectTypeNames() {
		if _, ok := View(p, name, iface); ok {
			out = append(out, name)
		}
	}
	return out
}

// ConcreteLink resolves an interface link for an implementing object type.
func ConcreteLink(p MetadataProvider, objectType, ifaceLink string) (string, error) {
	il, ok := p.InterfaceLinkType(ifaceLink)
	if !ok {
		return "", qerr.Validation(qerr.CodeUnknownLinkType, "unknown interface link type %q", ifaceLink)
	}
	ot, ok := p.ObjectType(objectType)
	if !ok {
		return "", qerr.Validation(qerr.CodeUnknownObjectType, "unknown object type %q", objectType)
	}
	for _, implemented := range sortedKeys(ot.Implements) {
		if !slices.Contains(Ancestors(p, implemented), il.Interface) {
			continue
		}
		if link, ok := ot.Implements[implemented].Links[ifaceLink]; ok {
			return link, nil
		}
	}
	return "", qerr.Validation(qerr.CodeUnknownLinkType,
		"object type %q does not bind interface link %q", objectType, ifaceLink)
}

// String summarises the catalog for logging.
func (c *Catalog) String() string {
	return fmt.Sprintf("catalog(objectTypes=%d, interfaces=%d, links=%d)",
		len(c.objectTypes), len(c.interfaces), len(c.links))
}
