// Package store provides SQLite-backed versioned storage for ontology
// objects, links and saved object sets.
//
// The store is append-mostly:
//   - Objects: property maps keyed by (branch, object type, primary key)
//   - Links: edges of a link type between two object keys
//   - Saved object sets: raw object set definitions addressed by RID
//
// # Logical Snapshots
//
// Every write batch advances a single seq counter (a logical clock, never
// wall time). Rows record the seq that created them and the seq that
// deleted them, so a read at snapshot S sees exactly the rows live at S.
// Page tokens and scroll cursors pin a snapshot this way.
//
// # Deterministic Query Results
//
// All object reads are ordered by object_type, primary_key COLLATE BINARY;
// link reads by source then target key. Queries are compiled by
// internal/querysql.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//
// Property maps are stored as JSON. The store is schema agnostic; callers
// coerce values to their declared property types after reading.
package store
