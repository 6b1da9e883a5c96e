// Package ontology is the type and scope catalog.
//
// It resolves object types, interfaces, shared properties and link types
// against an injected MetadataProvider, builds the type Scope attached to
// every resolved object set, and validates property identifiers for the
// operation they are used in (filter, sort, aggregate, select).
//
// Interface views are a capability map, not inheritance: each scope member
// carries interface -> shared property -> local property, and lookups go
// through that map.
//
// Catalogs are usually compiled from CUE (CompileString, LoadDir). Every
// lookup in this package is pure.
package ontology
