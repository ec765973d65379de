// Package harness runs reconciliation scenarios written in YAML.
//
// A scenario drives one Reconciler through a scripted sequence of seeds,
// optimistic writes, change events, detail fetches, acknowledgements and
// read-state flips, all on a fixed clock, then checks assertions on the
// final list. Every step is recorded in a trace so runs can be compared
// against golden files.
//
// # Scenario Format
//
//	name: own_echo_promotes
//	description: "An optimistic comment is replaced by its echo"
//	feed: comments
//	parent: r1
//	steps:
//	  - op: seed
//	    rows:
//	      - { id: c1, author: u1, body: "first", at: "0s" }
//	  - op: advance
//	    by: 2s
//	  - op: optimistic
//	    local_id: local-1
//	    row: { author: u2, body: "hello" }
//	  - op: event
//	    kind: inserted
//	    row: { id: c2, author: u2, body: "hello", at: "2s" }
//	    expect: applied
//	assertions:
//	  - type: items
//	    items:
//	      - { id: c2, origin: confirmed }
//	      - { id: c1, origin: snapshot }
//
// Row times are offsets from the scenario epoch. Steps that return an
// outcome may name the expected one with expect.
//
// # Operations
//
//   - seed: replace the list with rows
//   - resync: re-enter buffering mode before a re-seed
//   - advance: move the clock forward by a duration
//   - optimistic: insert a local write under local_id
//   - ack: record the server id (row.id) and time for local_id
//   - write_failed: drop the optimistic item local_id
//   - event: apply a change event of kind for row
//   - detail: answer the pending detail fetch for row.id
//   - detail_missing: drop the pending detail fetch for ids
//   - mark_read, revert_read: flip read state of ids
//
// # Assertion Types
//
//   - items: the full list, in order, matched on the fields given
//   - len: the number of items
//   - unread: the unread count
//   - absent: none of ids is listed
package harness
