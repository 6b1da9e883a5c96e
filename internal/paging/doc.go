// Package paging issues and consumes the resumable cursors of paged and
// scrolled reads.
//
// Page tokens are stateless. A token carries the offset of the next page,
// the fingerprint of the request that minted it and, when the caller asked
// for consistent paging, the snapshot the first page was read at. A token
// is only valid for the request that produced it: resuming a different
// request, or presenting a token older than the configured TTL, fails with
// INVALID_PAGE_TOKEN rather than silently restarting.
//
// Scrolls are server-held. An Arena keeps one cursor per scroll id, each
// pinned to the snapshot the scroll was opened at. Cursors expire after an
// idle TTL; expiry is checked lazily on every lookup and in bulk by Sweep.
// A cursor is advanced by one caller at a time: acquiring a cursor that is
// already in use is a CONCURRENT_SCROLL usage error.
package paging
