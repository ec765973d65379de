// Package feed defines the data model shared by the feed synchronizer.
//
// A feed is an ordered list of Items that all belong to one parent key
// (a comment thread, or a user's notification inbox). Items reach a feed
// from three places:
//   - Snapshot: the authoritative page loaded when a view opens
//   - Optimistic: records written locally and shown before the server confirms
//   - Confirmed: records delivered by the change feed (or promoted optimistic ones)
//
// # Ordering
//
// Display order is CreatedAt descending with ties broken by ID ascending
// (byte-wise). Every observer of the same set of items renders the same
// order, including after a reload re-fetches the snapshot.
//
// # Errors
//
// All I/O failures crossing into the presentation layer are converted to
// *Error with one of the ErrorCode categories. Raw transport errors stay
// wrapped inside.
package feed
