// Package reconcile merges the three sources of a live feed into one
// ordered, duplicate-free list.
//
// A Reconciler is owned by exactly one view. It holds no locks and
// performs no I/O: when an event needs the full row it returns
// OutcomeNeedsDetail and the owner feeds the fetched record back through
// ApplyDetail. All calls must come from a single goroutine.
//
// # Deduplication
//
// No two items may represent the same logical write. An inserted event is
// matched against optimistic items in this order:
//  1. an optimistic item whose acknowledged ServerID equals the row id
//  2. the oldest optimistic item by the same author, with the same
//     normalized body, created within the match window of the event
//  3. an existing item with the row id (duplicate delivery, ignored)
//
// Only when none match is the row inserted as a new confirmed item.
//
// # Buffering
//
// Events applied before Seed are buffered and replayed after it, so an
// insert that lands while the snapshot is loading is never lost. Resync
// re-enters buffering mode ahead of a re-seed after reconnecting.
package reconcile
