// Package objectset defines the object set algebra: object set
// definitions, filters, derived properties and aggregations.
//
// Every node family is a sealed interface, so evaluators can switch over
// it exhaustively. Definitions arrive as {"type": ...} tagged JSON (or the
// equivalent YAML tree) and are decoded fail-fast: the first malformed
// node is reported as INVALID_EXPRESSION with a JSONPath-like location
// such as $.filtered.filter.and.filters[1].
package objectset
