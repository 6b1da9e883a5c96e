// Package plan provides the resolved, backend-agnostic description of an
// object set: what the evaluator produces and what backends execute.
//
// A plan is the boundary between the query algebra and storage:
//
//	[objectset tree] -> evaluator -> [plan.Set] -> backend.Match
//	[filter tree]    -> filter    -> [plan.Predicate]
//
// Every identifier in a plan is already resolved. Property references carry
// the local property name per object type, parameters are substituted,
// user context is bound, and regular expressions are compiled. Backends
// never consult the catalog.
//
// SEALED INTERFACES:
//
// Set, Predicate, DerivedDef and Expr are sealed with marker methods, so
// backends can switch over them exhaustively:
//
//	switch s := set.(type) {
//	case plan.Scan:
//	    // all objects of s.ObjectTypes
//	case plan.Filter:
//	    // match s.Input, keep objects satisfying s.Predicate
//	...
//	}
//
// PUSHDOWN:
//
// Pushdown extracts the conjunctive fragment of a predicate that a SQL
// scan can evaluate. It is a prefilter only; backends always re-apply the
// full predicate in Go, so pushdown can never change results.
package plan
