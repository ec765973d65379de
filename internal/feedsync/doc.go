// Package feedsync keeps Reconcilers in step with a live change feed.
//
// A Session follows one topic for one caller. It moves through
//
//	Idle -> Connecting -> Active <-> Reconnecting -> Closed
//
// with Failed as a terminal state once reconnection gives up. Connecting
// subscribes and fetches the snapshot concurrently; events that arrive
// first are buffered and replayed after the snapshot is seeded. After a
// dropped subscription the session resubscribes with bounded, jittered
// exponential backoff and re-seeds from a fresh snapshot.
//
// Each Session runs a single-writer loop. Change events, fetch results,
// write results and caller operations all become queue events processed
// one at a time, so the Reconciler needs no locking. I/O happens on
// helper goroutines tagged with the connection epoch that started them;
// results from an older connection are dropped.
//
// Listeners only ever see *feed.Error values: WRITE_FAILED after an
// optimistic write or mark-read is rolled back, and DISCONNECTED when the
// session fails. Transient errors are retried and logged. Detail fetch
// failures drop the event.
package feedsync
