// Package engine implements the external osq operations: load page,
// load and continue scroll, aggregate and suggest.
//
// Every operation follows the same path. The request's object set is
// resolved by the evaluator, request-level derived properties are attached,
// and every property the request names is validated against the resolved
// scope. Only then is a backend called. Validation failures therefore never
// cost a backend round trip.
//
// Snapshots:
//
// Reads happen at a store snapshot. A request names one through
// Context.SnapshotID; otherwise the backend's current snapshot is used.
// Consistent paging pins the first page's snapshot into the page token, and
// a scroll pins the snapshot it was opened at for its whole life.
//
// Ordering:
//
// Without an explicit order, objects come back in backend order: kNN
// distance for nearest-neighbour sets, otherwise object type then primary
// key. An explicit order sorts stably on top of that, with nulls last in
// either direction.
//
// Thread-safety: Engine is safe for concurrent use. Scroll cursors admit
// one caller at a time.
package engine
