// Package ir provides the value model shared by every osq package.
//
// This package contains value types and their encodings only. All other
// internal packages import ir; ir imports nothing internal. This keeps the
// value layer at the bottom of the dependency graph.
//
// Key design constraints:
//   - Value is a sealed interface; exhaustive type switches are safe
//   - Object keys are iterated through SortedKeys for deterministic output
//   - Timestamps are always normalised to UTC
//   - Canonical JSON (page tokens, fingerprints) forbids floats and nulls
//     so that encoded cursors are byte-stable across platforms
package ir
